package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/LoveWonYoung/vci4go/config"
	"github.com/LoveWonYoung/vci4go/driver"
	"github.com/LoveWonYoung/vci4go/trace"
	"github.com/LoveWonYoung/vci4go/vci"
)

const (
	cyclicID    = 0x200
	cyclicTicks = 100
	testID      = 0x100
)

type canLine interface {
	StartLine() error
	StopLine() error
	ResetLine() error
	Close() error
}

type cyclicScheduler interface {
	AddMessage() *vci.CyclicTxMessage
	Resume() error
	Suspend() error
	Reset() error
	Close() error
}

type canChannel interface {
	Activate() error
	MessageReader() (*vci.CanMessageReader, error)
	MessageWriter() (*vci.CanMessageWriter, error)
	Close() error
}

// session holds one CAN port opened the way the VCI samples do: socket,
// control, channel with reader and writer, and the cyclic scheduler when
// the port has one.
type session struct {
	out  io.Writer
	cfg  config.Config
	rec  *trace.Recorder
	port uint8

	opened     []io.Closer
	lineStatus func() (fmt.Stringer, error)
	line       canLine // nil when another application controls the line
	reader     *vci.CanMessageReader
	writer     *vci.CanMessageWriter
	event      *vci.Event
	sched      cyclicScheduler
	cyclic     *vci.CyclicTxMessage
	cyclicOn   bool
	counter    byte
}

func openSession(srv *vci.Server, cfg config.Config, rec *trace.Recorder, out io.Writer) (_ *session, err error) {
	s := &session{out: out, cfg: cfg, rec: rec, port: uint8(cfg.CAN.Port)}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	dev, err := driver.OpenDevice(srv, cfg.Device)
	if err != nil {
		return nil, err
	}
	defer dev.Close()
	fmt.Fprintf(out, "Device : %s\n", dev)
	fmt.Fprintf(out, "  Hardware ID : %s\n", dev.UniqueHardwareID)

	bal, err := dev.OpenBusAccessLayer()
	if err != nil {
		return nil, err
	}
	s.track(bal)
	for _, res := range bal.Resources() {
		fmt.Fprintf(out, "  Port %d : %s\n", res.Port, res.BusName())
	}

	var ch canChannel
	if cfg.CAN.FD {
		ch, err = s.openFD(bal)
	} else {
		ch, err = s.openClassic(bal)
	}
	if err != nil {
		return nil, err
	}

	if s.event, err = srv.NewEvent(false); err != nil {
		return nil, err
	}
	s.track(s.event)
	if s.reader, err = ch.MessageReader(); err != nil {
		return nil, err
	}
	s.track(s.reader)
	if err := s.reader.AssignEvent(s.event); err != nil {
		return nil, err
	}
	if s.writer, err = ch.MessageWriter(); err != nil {
		return nil, err
	}
	s.track(s.writer)
	if err := ch.Activate(); err != nil {
		return nil, err
	}
	if s.line != nil {
		if err := s.line.StartLine(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *session) track(c io.Closer) { s.opened = append(s.opened, c) }

func (s *session) openClassic(bal *vci.Bal) (canChannel, error) {
	socket, err := bal.OpenCanSocket(s.port)
	if err != nil {
		return nil, err
	}
	s.track(socket)
	caps := socket.Capabilities()
	fmt.Fprintf(s.out, "  Controller : %s, features 0x%08X\n", caps.CtrlType, uint32(caps.Features))
	s.lineStatus = func() (fmt.Stringer, error) { return socket.LineStatus() }

	bitrate, err := vci.ParseCanBitrate(s.cfg.CAN.Bitrate)
	if err != nil {
		return nil, err
	}
	ctl, err := bal.OpenCanControl(s.port)
	switch {
	case errors.Is(err, vci.ErrAccessDenied):
		fmt.Fprintln(s.out, "  Line is controlled by another application")
	case err != nil:
		return nil, err
	default:
		s.track(ctl)
		mode := vci.OpModeStandard | vci.OpModeExtended | vci.OpModeErrFrame
		if err := ctl.InitLine(mode, bitrate); err != nil {
			return nil, err
		}
		s.line = ctl
		fmt.Fprintf(s.out, "  Line : %s\n", bitrate)
	}

	ch, err := bal.OpenCanChannel(s.port)
	if err != nil {
		return nil, err
	}
	s.track(ch)
	if err := ch.Initialize(uint16(s.cfg.CAN.RxFifo), uint16(s.cfg.CAN.TxFifo), s.cfg.CAN.Exclusive); err != nil {
		return nil, err
	}

	if caps.Features.Has(vci.FeatureScheduler) {
		sched, err := bal.OpenCanScheduler(s.port)
		if err != nil {
			return nil, err
		}
		s.track(sched)
		s.sched = sched
	}
	return ch, nil
}

func (s *session) openFD(bal *vci.Bal) (canChannel, error) {
	socket, err := bal.OpenCanSocket2(s.port)
	if err != nil {
		return nil, err
	}
	s.track(socket)
	caps := socket.Capabilities()
	fmt.Fprintf(s.out, "  Controller : %s, features 0x%08X\n", caps.CtrlType, uint32(caps.Features))
	s.lineStatus = func() (fmt.Stringer, error) { return socket.LineStatus() }

	opts, err := s.cfg.IxxatOptions()
	if err != nil {
		return nil, err
	}
	ctl, err := bal.OpenCanControl2(s.port)
	switch {
	case errors.Is(err, vci.ErrAccessDenied):
		fmt.Fprintln(s.out, "  Line is controlled by another application")
	case err != nil:
		return nil, err
	default:
		s.track(ctl)
		init := vci.CanInitLine2{
			OperatingMode:         vci.OpModeStandard | vci.OpModeExtended | vci.OpModeErrFrame,
			ExtendedOperatingMode: vci.ExModeExtendedDataLength | vci.ExModeFastDataRate,
			StdFilterMode:         vci.FilterModePass,
			ExtFilterMode:         vci.FilterModePass,
			Bitrate:               opts.FdBitrate,
		}
		if err := ctl.InitLine(init); err != nil {
			return nil, err
		}
		s.line = ctl
		fmt.Fprintf(s.out, "  Line : %s\n", opts.FdBitrate)
	}

	ch, err := bal.OpenCanChannel2(s.port)
	if err != nil {
		return nil, err
	}
	s.track(ch)
	if err := ch.Initialize(opts.RxFifoSize, opts.TxFifoSize, 0, vci.FilterModePass, opts.Exclusive); err != nil {
		return nil, err
	}

	if caps.Features.Has(vci.FeatureScheduler) {
		sched, err := bal.OpenCanScheduler2(s.port)
		if err != nil {
			return nil, err
		}
		s.track(sched)
		s.sched = sched
	}
	return ch, nil
}

// receive prints and traces frames until ctx is done.
func (s *session) receive(ctx context.Context) error {
	buf := make([]vci.CanMessage, driver.ReadBatchSize)
	for {
		n, err := s.reader.ReadMessages(buf)
		if err != nil {
			if errors.Is(err, vci.ErrClosed) {
				return nil
			}
			return err
		}
		for i := range buf[:n] {
			s.show(&buf[i])
		}
		if n > 0 {
			continue
		}
		if err := s.event.Wait(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, vci.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func (s *session) show(msg *vci.CanMessage) {
	fmt.Fprintf(s.out, "\nTime: %s", msg)
	if msg.FrameType == vci.FrameData && s.rec != nil {
		if err := s.rec.Record(trace.CanRecord(trace.DirectionRx, s.port, *msg)); err != nil {
			log.Printf("trace failed: %v", err)
		}
	}
}

func (s *session) send(msg vci.CanMessage) error {
	if err := s.writer.SendMessage(msg); err != nil {
		return err
	}
	if s.rec != nil {
		if err := s.rec.Record(trace.CanRecord(trace.DirectionTx, s.port, msg)); err != nil {
			log.Printf("trace failed: %v", err)
		}
	}
	return nil
}

// sendTest sends the sample frame with a running counter in its first byte.
func (s *session) sendTest() error {
	data := []byte{s.counter, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	s.counter++
	return s.send(dataFrame(testID, s.cfg.CAN.FD, data))
}

// sendHex sends the contents of an Intel HEX file and returns the number of
// frames.
func (s *session) sendHex(path string, id uint32) (int, error) {
	frames, err := hexFrames(path, id, s.cfg.CAN.FD)
	if err != nil {
		return 0, err
	}
	for i, msg := range frames {
		if err := s.send(msg); err != nil {
			return i, err
		}
	}
	return len(frames), nil
}

// toggleCyclic starts or stops the cyclic sample message and reports
// whether it is running afterwards.
func (s *session) toggleCyclic() (bool, error) {
	if s.sched == nil {
		return false, fmt.Errorf("port %d has no cyclic scheduler: %w", s.port, vci.ErrNotSupported)
	}
	if s.cyclic == nil {
		m := s.sched.AddMessage()
		m.Identifier = cyclicID
		m.FrameType = vci.FrameData
		m.CycleTicks = cyclicTicks
		m.AutoIncrementMode = vci.IncMode8
		m.AutoIncrementIndex = 0
		m.SetPayload([]byte{0x00, 0xAA, 0x55, 0xAA})
		m.ExtendedDataLength = s.cfg.CAN.FD
		s.cyclic = m
	}
	if s.cyclicOn {
		if err := s.cyclic.Stop(); err != nil {
			return true, err
		}
		s.cyclicOn = false
		return false, s.sched.Suspend()
	}
	if err := s.sched.Resume(); err != nil {
		return false, err
	}
	if err := s.cyclic.Start(0); err != nil {
		return false, err
	}
	s.cyclicOn = true
	return true, nil
}

func (s *session) status() (string, error) {
	st, err := s.lineStatus()
	if err != nil {
		return "", err
	}
	return st.String(), nil
}

// Close stops the line and releases everything, newest first.
func (s *session) Close() {
	if s.sched != nil {
		s.sched.Reset()
	}
	if s.line != nil {
		s.line.StopLine()
		s.line.ResetLine()
	}
	for i := len(s.opened) - 1; i >= 0; i-- {
		if err := s.opened[i].Close(); err != nil {
			log.Printf("close failed: %v", err)
		}
	}
	s.opened = nil
	s.line, s.sched = nil, nil
}
