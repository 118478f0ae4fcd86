package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/LoveWonYoung/vci4go/config"
	"github.com/LoveWonYoung/vci4go/driver"
	"github.com/LoveWonYoung/vci4go/trace"
	"github.com/LoveWonYoung/vci4go/vci"
)

const monitorFifoSize = 1024

// session is one LIN port with its control, when nobody else owns it, and
// a monitor receiving every frame on the line.
type session struct {
	out  io.Writer
	rec  *trace.Recorder
	port uint8

	opened  []io.Closer
	socket  *vci.LinSocket
	control *vci.LinControl
	monitor *vci.LinMonitor
	reader  *vci.LinMessageReader
	event   *vci.Event
}

func openSession(srv *vci.Server, cfg config.Config, rec *trace.Recorder, out io.Writer) (_ *session, err error) {
	s := &session{out: out, rec: rec, port: uint8(cfg.LIN.Port)}
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

	bal, err := dev.OpenBusAccessLayer()
	if err != nil {
		return nil, err
	}
	s.track(bal)

	if s.socket, err = bal.OpenLinSocket(s.port); err != nil {
		return nil, err
	}
	s.track(s.socket)
	caps := s.socket.Capabilities()
	fmt.Fprintf(out, "  LIN port %d : features 0x%08X, clock %d Hz\n", s.port, uint32(caps.Features), caps.ClockFrequency)

	init, err := cfg.LinInitLine()
	if err != nil {
		return nil, err
	}
	ctl, err := bal.OpenLinControl(s.port)
	switch {
	case errors.Is(err, vci.ErrAccessDenied):
		fmt.Fprintln(out, "  Line is controlled by another application")
	case err != nil:
		return nil, err
	default:
		s.track(ctl)
		if err := ctl.InitLine(init); err != nil {
			return nil, err
		}
		s.control = ctl
		fmt.Fprintf(out, "  Line : %s, %s\n", init.OperatingMode, init.Bitrate)
	}

	if s.monitor, err = bal.OpenLinMonitor(s.port); err != nil {
		return nil, err
	}
	s.track(s.monitor)
	if err := s.monitor.Initialize(monitorFifoSize, false); err != nil {
		return nil, err
	}
	if s.event, err = srv.NewEvent(false); err != nil {
		return nil, err
	}
	s.track(s.event)
	if s.reader, err = s.monitor.MessageReader(); err != nil {
		return nil, err
	}
	s.track(s.reader)
	if err := s.reader.AssignEvent(s.event); err != nil {
		return nil, err
	}
	if err := s.monitor.Activate(); err != nil {
		return nil, err
	}
	if s.control != nil {
		if err := s.control.StartLine(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *session) track(c io.Closer) { s.opened = append(s.opened, c) }

// receive prints and traces frames until ctx is done.
func (s *session) receive(ctx context.Context) error {
	buf := make([]vci.LinMessage, driver.ReadBatchSize)
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

func (s *session) show(msg *vci.LinMessage) {
	fmt.Fprintf(s.out, "\nTime: %s", msg)
	if msg.MessageType == vci.LinMsgTypeData && s.rec != nil {
		if err := s.rec.Record(trace.LinRecord(trace.DirectionRx, s.port, *msg)); err != nil {
			log.Printf("trace failed: %v", err)
		}
	}
}

func (s *session) write(send bool, msg vci.LinMessage) error {
	if s.control == nil {
		return fmt.Errorf("port %d: no line control: %w", s.port, vci.ErrAccessDenied)
	}
	if err := s.control.WriteMessage(send, msg); err != nil {
		return err
	}
	if send && !msg.IdOnly && s.rec != nil {
		if err := s.rec.Record(trace.LinRecord(trace.DirectionTx, s.port, msg)); err != nil {
			log.Printf("trace failed: %v", err)
		}
	}
	return nil
}

const helpText = `Commands:
  r <pid> <bytes>      store the response for pid, for example "r 3C 01 02"
  m <pid>              send a master request for pid
  s <pid> <bytes>      send a frame with data as master
  st                   show the monitor status
  help                 show this help
  q                    quit`

// exec runs one console command. quit is set for the quit command.
func (s *session) exec(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "r", "s":
		if len(args) < 2 {
			return false, fmt.Errorf("usage: %s <pid> <bytes>", cmd)
		}
		msg, err := parseFrame(args[0], args[1:])
		if err != nil {
			return false, err
		}
		return false, s.write(cmd == "s", msg)
	case "m":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: m <pid>")
		}
		msg, err := parseFrame(args[0], nil)
		if err != nil {
			return false, err
		}
		msg.IdOnly = true
		return false, s.write(true, msg)
	case "st":
		st, err := s.monitor.MonitorStatus()
		if err == nil {
			fmt.Fprintf(s.out, "%s\n%s\n", st.LineStatus, st)
		}
		return false, err
	case "help", "?":
		fmt.Fprintln(s.out, helpText)
		return false, nil
	case "q", "quit", "exit":
		return true, nil
	}
	return false, fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
}

func parseFrame(pid string, data []string) (vci.LinMessage, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(pid), "0x"), 16, 8)
	if err != nil {
		return vci.LinMessage{}, fmt.Errorf("pid %q invalid", pid)
	}
	payload, err := hex.DecodeString(strings.Join(data, ""))
	if err != nil {
		return vci.LinMessage{}, fmt.Errorf("data: %w", err)
	}
	if len(payload) > 8 {
		return vci.LinMessage{}, fmt.Errorf("data length %d exceeds 8", len(payload))
	}
	msg := vci.LinMessage{ProtId: uint8(id), MessageType: vci.LinMsgTypeData, DataLength: uint8(len(payload))}
	copy(msg.Data[:], payload)
	return msg, nil
}

// Close stops the line and releases everything, newest first.
func (s *session) Close() {
	if s.control != nil {
		s.control.StopLine()
		s.control.ResetLine()
	}
	for i := len(s.opened) - 1; i >= 0; i-- {
		if err := s.opened[i].Close(); err != nil {
			log.Printf("close failed: %v", err)
		}
	}
	s.opened = nil
	s.control = nil
}
