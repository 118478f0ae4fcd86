package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/LoveWonYoung/vci4go/vci"
)

// IxxatOptions selects and configures the CAN port driven by Ixxat.
type IxxatOptions struct {
	Device     string // see OpenDevice
	Port       uint8
	Bitrate    vci.CanBitrate   // CAN
	FdBitrate  vci.CanFdBitrate // CANFD
	RxFifoSize uint16
	TxFifoSize uint16
	Exclusive  bool
	Extended   bool // send 29-bit identifiers
}

// DefaultIxxatOptions is 500 kbit/s, 500K/2M for CAN FD, on the first port
// of the first device.
func DefaultIxxatOptions() IxxatOptions {
	return IxxatOptions{
		Bitrate:    vci.Cia500KBit,
		FdBitrate:  vci.CanFdBitrate{Std: vci.CANFD500KBit, Fast: vci.CANFD2000KBit},
		RxFifoSize: MsgBufferSize,
		TxFifoSize: TxFifoSize,
	}
}

type lineControl interface {
	StartLine() error
	StopLine() error
	Close() error
}

type canChannel interface {
	Activate() error
	MessageReader() (*vci.CanMessageReader, error)
	MessageWriter() (*vci.CanMessageWriter, error)
	Close() error
}

// Ixxat drives one CAN port of an IXXAT adapter through the VCI server.
type Ixxat struct {
	srv     *vci.Server
	canType CanType
	opts    IxxatOptions

	rxChan chan UnifiedCANMessage
	fanout *rxFanout
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	opened  []io.Closer
	line    lineControl // nil while another application controls the line
	reader  *vci.CanMessageReader
	writer  *vci.CanMessageWriter
	event   *vci.Event
	started bool
}

func NewIxxat(srv *vci.Server, canType CanType, opts IxxatOptions) *Ixxat {
	ctx, cancel := context.WithCancel(context.Background())
	return &Ixxat{
		srv:     srv,
		canType: canType,
		opts:    opts,
		rxChan:  make(chan UnifiedCANMessage, RxChannelBufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (x *Ixxat) Init() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.reader != nil {
		return errors.New("ixxat driver already initialized")
	}
	x.ctx, x.cancel = context.WithCancel(context.Background())
	x.rxChan = make(chan UnifiedCANMessage, RxChannelBufferSize)
	x.fanout = newRxFanout(x.ctx, x.rxChan)

	if err := x.open(); err != nil {
		x.release()
		x.cancel()
		x.fanout.Close()
		return err
	}
	log.Printf("IXXAT %s port %d initialized", x.canType, x.opts.Port)
	return nil
}

func (x *Ixxat) open() error {
	dev, err := OpenDevice(x.srv, x.opts.Device)
	if err != nil {
		return fmt.Errorf("ixxat open device: %w", err)
	}
	defer dev.Close()
	bal, err := dev.OpenBusAccessLayer()
	if err != nil {
		return fmt.Errorf("ixxat open bal: %w", err)
	}
	x.track(bal)

	var ch canChannel
	if x.canType == CANFD {
		ch, err = x.openFD(bal)
	} else {
		ch, err = x.openCAN(bal)
	}
	if err != nil {
		return err
	}

	event, err := x.srv.NewEvent(false)
	if err != nil {
		return fmt.Errorf("ixxat create event: %w", err)
	}
	x.track(event)
	reader, err := ch.MessageReader()
	if err != nil {
		return fmt.Errorf("ixxat open reader: %w", err)
	}
	x.track(reader)
	if err := reader.AssignEvent(event); err != nil {
		return fmt.Errorf("ixxat assign event: %w", err)
	}
	writer, err := ch.MessageWriter()
	if err != nil {
		return fmt.Errorf("ixxat open writer: %w", err)
	}
	x.track(writer)
	if err := ch.Activate(); err != nil {
		return fmt.Errorf("ixxat activate channel: %w", err)
	}
	x.reader, x.writer, x.event = reader, writer, event
	return nil
}

// openControl takes the line when nobody else has it. ok is false when the
// line stays with its current owner.
func openControl[C lineControl](x *Ixxat, open func(uint8) (C, error)) (ctl C, ok bool, err error) {
	ctl, err = open(x.opts.Port)
	switch {
	case errors.Is(err, vci.ErrAccessDenied):
		log.Printf("IXXAT port %d is controlled by another application, keeping its line settings", x.opts.Port)
		return ctl, false, nil
	case err != nil:
		return ctl, false, fmt.Errorf("ixxat open control: %w", err)
	}
	x.track(ctl)
	x.line = ctl
	return ctl, true, nil
}

func (x *Ixxat) openCAN(bal *vci.Bal) (canChannel, error) {
	ctl, ok, err := openControl(x, bal.OpenCanControl)
	if err != nil {
		return nil, err
	}
	if ok {
		mode := vci.OpModeStandard | vci.OpModeExtended | vci.OpModeErrFrame
		if err := ctl.InitLine(mode, x.opts.Bitrate); err != nil {
			return nil, fmt.Errorf("ixxat: %w", err)
		}
	}
	ch, err := bal.OpenCanChannel(x.opts.Port)
	if err != nil {
		return nil, fmt.Errorf("ixxat open channel: %w", err)
	}
	x.track(ch)
	if err := ch.Initialize(x.opts.RxFifoSize, x.opts.TxFifoSize, x.opts.Exclusive); err != nil {
		return nil, fmt.Errorf("ixxat: %w", err)
	}
	return ch, nil
}

func (x *Ixxat) openFD(bal *vci.Bal) (canChannel, error) {
	ctl, ok, err := openControl(x, bal.OpenCanControl2)
	if err != nil {
		return nil, err
	}
	if ok {
		init := vci.CanInitLine2{
			OperatingMode:         vci.OpModeStandard | vci.OpModeExtended | vci.OpModeErrFrame,
			ExtendedOperatingMode: vci.ExModeExtendedDataLength | vci.ExModeFastDataRate,
			StdFilterMode:         vci.FilterModePass,
			ExtFilterMode:         vci.FilterModePass,
			Bitrate:               x.opts.FdBitrate,
		}
		if err := ctl.InitLine(init); err != nil {
			return nil, fmt.Errorf("ixxat: %w", err)
		}
	}
	ch, err := bal.OpenCanChannel2(x.opts.Port)
	if err != nil {
		return nil, fmt.Errorf("ixxat open channel: %w", err)
	}
	x.track(ch)
	if err := ch.Initialize(x.opts.RxFifoSize, x.opts.TxFifoSize, 0, vci.FilterModePass, x.opts.Exclusive); err != nil {
		return nil, fmt.Errorf("ixxat: %w", err)
	}
	return ch, nil
}

func (x *Ixxat) track(c io.Closer) { x.opened = append(x.opened, c) }

// release closes everything opened by Init, newest first.
func (x *Ixxat) release() {
	for i := len(x.opened) - 1; i >= 0; i-- {
		if err := x.opened[i].Close(); err != nil {
			log.Printf("IXXAT close failed: %v", err)
		}
	}
	x.opened = nil
	x.line, x.reader, x.writer, x.event = nil, nil, nil, nil
	x.started = false
}

func (x *Ixxat) Start() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.reader == nil {
		log.Println("IXXAT driver start called before init")
		return
	}
	if x.started {
		return
	}
	x.drainInitialBuffer()
	if x.line != nil {
		if err := x.line.StartLine(); err != nil {
			log.Printf("IXXAT start line failed: %v", err)
		}
	}
	x.started = true
	log.Println("IXXAT driver started...")
	x.wg.Add(1)
	go x.readLoop(x.ctx, x.reader, x.event)
}

func (x *Ixxat) Stop() {
	log.Println("Stopping IXXAT driver...")
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.cancel != nil {
		x.cancel()
	}
	x.wg.Wait()
	if x.line != nil && x.started {
		if err := x.line.StopLine(); err != nil {
			log.Printf("IXXAT stop line failed: %v", err)
		}
	}
	if x.fanout != nil {
		x.fanout.Close()
	}
	x.release()
}

func (x *Ixxat) Write(id int32, data []byte) error {
	if len(data) == 0 {
		return errors.New("data length is 0")
	}
	if x.canType == CAN && len(data) > 8 {
		return fmt.Errorf("data length %d exceeds CAN maximum of 8", len(data))
	}
	if x.canType == CANFD && len(data) > 64 {
		return fmt.Errorf("data length %d exceeds CAN-FD maximum of 64", len(data))
	}
	x.mu.Lock()
	writer := x.writer
	x.mu.Unlock()
	if writer == nil {
		return errors.New("driver not initialized")
	}

	var msg vci.CanMessage
	msg.Identifier = uint32(id)
	msg.ExtendedFrameFormat = x.opts.Extended || uint32(id) > 0x7FF
	msg.SetPayload(data)
	if x.canType == CANFD {
		msg.ExtendedDataLength = true
		msg.FastDataRate = true
		msg.DataLength = uint8(vci.DLCToDataLen(vci.DataLenToDLC(len(data))))
	}

	deadline := time.Now().Add(WriteTimeout)
	for {
		err := writer.SendMessage(msg)
		if err == nil {
			break
		}
		if !errors.Is(err, vci.ErrTxQueueFull) || time.Now().After(deadline) {
			return fmt.Errorf("ixxat write failed: %w", err)
		}
		time.Sleep(PollingInterval)
	}
	logCANMessage(TX, msg.Identifier, vci.DataLenToDLC(int(msg.DataLength)), msg.Payload(), x.canType)
	return nil
}

// RxChan returns a new subscription to received frames.
func (x *Ixxat) RxChan() <-chan UnifiedCANMessage {
	ch, _ := x.Subscribe(RxChannelBufferSize)
	return ch
}

// Subscribe is RxChan with a cancel function that ends the subscription.
func (x *Ixxat) Subscribe(buffer int) (<-chan UnifiedCANMessage, func()) {
	x.mu.Lock()
	fanout := x.fanout
	x.mu.Unlock()
	if fanout == nil {
		return nil, func() {}
	}
	return fanout.Subscribe(buffer)
}

func (x *Ixxat) Context() context.Context { return x.ctx }

// drainInitialBuffer drops whatever arrived between Init and Start.
func (x *Ixxat) drainInitialBuffer() {
	buf := make([]vci.CanMessage, ReadBatchSize)
	for {
		n, err := x.reader.ReadMessages(buf)
		if err != nil || n == 0 {
			return
		}
	}
}

func (x *Ixxat) readLoop(ctx context.Context, reader *vci.CanMessageReader, event *vci.Event) {
	defer x.wg.Done()
	buf := make([]vci.CanMessage, ReadBatchSize)
	for {
		n, err := reader.ReadMessages(buf)
		if err != nil {
			if !errors.Is(err, vci.ErrClosed) {
				log.Printf("IXXAT read error: %v", err)
			}
			return
		}
		for i := range buf[:n] {
			x.enqueueMessage(&buf[i])
		}
		if n > 0 {
			continue
		}
		if err := event.Wait(ctx); err != nil {
			return
		}
	}
}

func (x *Ixxat) enqueueMessage(m *vci.CanMessage) {
	switch m.FrameType {
	case vci.FrameData:
	case vci.FrameError, vci.FrameStatus:
		log.Printf("IXXAT bus warning: %s", m)
		return
	default:
		return
	}
	if m.RemoteTransmissionRequest {
		return
	}
	unified := unifiedFrom(m)
	msgType := CAN
	if unified.IsFD {
		msgType = CANFD
	}
	logCANMessage(RX, unified.ID, unified.DLC, unified.Payload(), msgType)

	select {
	case x.rxChan <- unified:
	default:
		log.Println("Warning: receive channel full, dropping message")
	}
}
