package driver

import (
	"context"
	"log"

	"github.com/LoveWonYoung/vci4go/vci"
)

type DirectionType byte

const (
	TX DirectionType = iota
	RX
)

func (d DirectionType) String() string {
	if d == TX {
		return "TX"
	}
	return "RX"
}

// logCANMessage 统一的CAN消息日志记录函数
func logCANMessage(direction DirectionType, id uint32, dlc byte, data []byte, canType CanType) {
	typeStr := "CANFD"
	if canType == CAN {
		typeStr = "CAN  "
	}
	format := "%s %s: ID=0x%03X, DLC=%02d, Data=% 02X"
	log.Printf(format, direction, typeStr, id, dlc, data)
}

// UnifiedCANMessage 是一个通用的CAN/CAN-FD消息结构体，用于在channel中传递。
// DLC 是总线上的 DLC 码, Payload 按 DLC 截取数据。
type UnifiedCANMessage struct {
	Direction DirectionType
	TimeStamp uint32
	ID        uint32
	DLC       byte
	Data      [64]byte // 使用64字节以兼容CAN-FD
	IsFD      bool     // 标志位，用于区分是CAN还是CAN-FD消息
	Extended  bool
}

// Payload 返回 DLC 对应的有效数据
func (m *UnifiedCANMessage) Payload() []byte {
	return m.Data[:vci.DLCToDataLen(m.DLC)]
}

// unifiedFrom converts a received data frame.
func unifiedFrom(m *vci.CanMessage) UnifiedCANMessage {
	return UnifiedCANMessage{
		Direction: RX,
		TimeStamp: m.TimeStamp,
		ID:        m.Identifier,
		DLC:       vci.DataLenToDLC(int(m.DataLength)),
		Data:      m.Data,
		IsFD:      m.ExtendedDataLength,
		Extended:  m.ExtendedFrameFormat,
	}
}

// CANDriver 定义了CAN/CAN-FD驱动的统一接口
type CANDriver interface {
	Init() error
	Start()
	Stop()
	Write(id int32, data []byte) error
	RxChan() <-chan UnifiedCANMessage
	Context() context.Context
}
