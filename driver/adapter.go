package driver

import (
	"errors"
	"fmt"
	"log"

	"github.com/LoveWonYoung/vci4go/vci"
)

// Adapter exposes a started CANDriver as send and poll functions on
// vci.CanMessage frames.
type Adapter struct {
	driver CANDriver
	rxChan <-chan UnifiedCANMessage
}

// NewAdapter initializes and starts dev.
func NewAdapter(dev CANDriver) (*Adapter, error) {
	if dev == nil {
		return nil, errors.New("CAN driver instance cannot be nil")
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize CAN device: %w", err)
	}
	dev.Start()

	adapter := &Adapter{
		driver: dev,
		rxChan: dev.RxChan(),
	}

	log.Println("CAN adapter created and device started successfully.")
	return adapter, nil
}

// Close stops the driver.
func (t *Adapter) Close() {
	log.Println("Closing CAN adapter...")
	t.driver.Stop()
}

// TxFunc sends the payload of msg.
func (t *Adapter) TxFunc(msg vci.CanMessage) error {
	if err := t.driver.Write(int32(msg.Identifier), msg.Payload()); err != nil {
		log.Printf("ERROR: Adapter failed to send message: %v", err)
		return err
	}
	return nil
}

// RxFunc returns the next received frame without blocking. ok is false when
// nothing is pending or the driver stopped.
func (t *Adapter) RxFunc() (vci.CanMessage, bool) {
	select {
	case received, ok := <-t.rxChan:
		if !ok {
			return vci.CanMessage{}, false
		}
		return toCanMessage(&received), true
	default:
		return vci.CanMessage{}, false
	}
}

// Messages is the receive channel, closed when the driver stops.
func (t *Adapter) Messages() <-chan UnifiedCANMessage { return t.rxChan }

func toCanMessage(u *UnifiedCANMessage) vci.CanMessage {
	msg := vci.CanMessage{
		TimeStamp:           u.TimeStamp,
		Identifier:          u.ID,
		FrameType:           vci.FrameData,
		ExtendedFrameFormat: u.Extended,
		ExtendedDataLength:  u.IsFD,
	}
	payloadLength := vci.DLCToDataLen(u.DLC)
	if !u.IsFD && payloadLength > 8 {
		log.Printf("警告: 收到的经典CAN报文DLC (%d) 超过8字节。ID: 0x%X", u.DLC, u.ID)
		payloadLength = 8
	}
	msg.SetPayload(u.Data[:payloadLength])
	return msg
}
