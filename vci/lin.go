package vci

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/LoveWonYoung/vci4go/native"
)

type LinFeatures uint32

const (
	LinFeatureMaster   LinFeatures = 0x0001
	LinFeatureAutorate LinFeatures = 0x0002
	LinFeatureErrFrame LinFeatures = 0x0004
	LinFeatureBusload  LinFeatures = 0x0008
	LinFeatureSleep    LinFeatures = 0x0010
	LinFeatureWakeup   LinFeatures = 0x0020
)

func (f LinFeatures) Has(flag LinFeatures) bool { return f&flag == flag }

func (f LinFeatures) SupportsMasterMode() bool         { return f.Has(LinFeatureMaster) }
func (f LinFeatures) SupportsAutorate() bool           { return f.Has(LinFeatureAutorate) }
func (f LinFeatures) SupportsErrorFrames() bool        { return f.Has(LinFeatureErrFrame) }
func (f LinFeatures) SupportsBusLoadComputation() bool { return f.Has(LinFeatureBusload) }
func (f LinFeatures) SupportsSleepMessage() bool       { return f.Has(LinFeatureSleep) }
func (f LinFeatures) SupportsWakeupMessage() bool      { return f.Has(LinFeatureWakeup) }

type LinOperatingModes uint8

const (
	LinModeSlave  LinOperatingModes = LinOperatingModes(native.LinOpModeSlave)
	LinModeMaster LinOperatingModes = LinOperatingModes(native.LinOpModeMaster)
	LinModeErrors LinOperatingModes = LinOperatingModes(native.LinOpModeErrors)
)

func (m LinOperatingModes) String() string {
	s := "Slave"
	if m&LinModeMaster != 0 {
		s = "Master"
	}
	if m&LinModeErrors != 0 {
		s += "|Errors"
	}
	return s
}

type LinCtrlStatus uint32

const (
	LinCtrlOverrun LinCtrlStatus = LinCtrlStatus(native.LinStatusOverrun)
	LinCtrlInInit  LinCtrlStatus = LinCtrlStatus(native.LinStatusInInit)
)

func (s LinCtrlStatus) String() string {
	var parts []string
	if s&LinCtrlOverrun != 0 {
		parts = append(parts, "Overrun")
	}
	if s&LinCtrlInInit != 0 {
		parts = append(parts, "InInit")
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, "|")
}

// LinBitrate is a LIN bit rate in bit/s.
type LinBitrate uint16

const (
	LinBitrateUndefined LinBitrate = 0xFFFF
	LinBitrateAuto      LinBitrate = 0
	LinBitrateMin       LinBitrate = 1000
	LinBitrateMax       LinBitrate = 20000

	Lin1000Bit  LinBitrate = 1000
	Lin1200Bit  LinBitrate = 1200
	Lin2400Bit  LinBitrate = 2400
	Lin4800Bit  LinBitrate = 4800
	Lin9600Bit  LinBitrate = 9600
	Lin10400Bit LinBitrate = 10400
	Lin19200Bit LinBitrate = 19200
	Lin20000Bit LinBitrate = 20000
)

// LinBitRates lists the standard LIN rates.
var LinBitRates = []LinBitrate{
	Lin1000Bit, Lin1200Bit, Lin2400Bit, Lin4800Bit, Lin9600Bit, Lin10400Bit, Lin19200Bit, Lin20000Bit,
}

func (b LinBitrate) String() string { return fmt.Sprintf("%d bit/s", uint16(b)) }

// ParseLinBitrate accepts "auto", "19200" or "19200 bit/s".
func ParseLinBitrate(name string) (LinBitrate, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.TrimSpace(strings.TrimSuffix(s, "bit/s"))
	if s == "auto" {
		return LinBitrateAuto, nil
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil || LinBitrate(n) < LinBitrateMin || LinBitrate(n) > LinBitrateMax {
		return LinBitrateUndefined, fmt.Errorf("lin bitrate %q: %w", name, ErrInvalidArgument)
	}
	return LinBitrate(n), nil
}

// LinLineStatus is the state of a LIN line.
type LinLineStatus struct {
	OperatingMode    LinOperatingModes
	Bitrate          LinBitrate
	BusLoad          uint8
	ControllerStatus LinCtrlStatus
}

func newLinLineStatus(s native.LinLineStatus) LinLineStatus {
	return LinLineStatus{
		OperatingMode:    LinOperatingModes(s.OpMode),
		Bitrate:          LinBitrate(s.Bitrate),
		BusLoad:          s.BusLoad,
		ControllerStatus: LinCtrlStatus(s.Status),
	}
}

func (s LinLineStatus) IsInSlaveMode() bool    { return s.OperatingMode&LinModeMaster == 0 }
func (s LinLineStatus) IsInMasterMode() bool   { return s.OperatingMode&LinModeMaster != 0 }
func (s LinLineStatus) IsErrModeEnabled() bool { return s.OperatingMode&LinModeErrors != 0 }
func (s LinLineStatus) HasDataOverrun() bool   { return s.ControllerStatus&LinCtrlOverrun != 0 }
func (s LinLineStatus) IsInInitMode() bool     { return s.ControllerStatus&LinCtrlInInit != 0 }

func (s LinLineStatus) String() string {
	return fmt.Sprintf("opmode: %s, busload: %d, ctrlstat: %s, bitrate: %s", s.OperatingMode, s.BusLoad, s.ControllerStatus, s.Bitrate)
}

type LinCapabilities struct {
	Features                LinFeatures
	ClockFrequency          uint32
	TimeStampCounterDivisor uint32
}

// LinSocket reports the capabilities and line state of a LIN port.
type LinSocket struct {
	lib  native.Library
	port uint8
	h    *ref[native.LinSocket]
	caps LinCapabilities
}

func newLinSocket(lib native.Library, port uint8, s native.LinSocket) (*LinSocket, error) {
	c, st := s.Capabilities()
	if err := statusError(lib, "get lin capabilities", st); err != nil {
		s.Release()
		return nil, err
	}
	return &LinSocket{
		lib:  lib,
		port: port,
		h:    newRef(s),
		caps: LinCapabilities{
			Features:                LinFeatures(c.Features),
			ClockFrequency:          c.ClockFreq,
			TimeStampCounterDivisor: c.TscDivisor,
		},
	}, nil
}

func (s *LinSocket) Port() uint8 { return s.port }

func (s *LinSocket) Capabilities() LinCapabilities { return s.caps }

func (s *LinSocket) Supports(f LinFeatures) bool { return s.caps.Features.Has(f) }

func (s *LinSocket) LineStatus() (LinLineStatus, error) {
	return call(s.h, func(sock native.LinSocket) (LinLineStatus, error) {
		ls, st := sock.LineStatus()
		if err := statusError(s.lib, "get line status", st); err != nil {
			return LinLineStatus{}, err
		}
		return newLinLineStatus(ls), nil
	})
}

func (s *LinSocket) Close() error { return s.h.close() }

type LinMessageType uint8

const (
	LinMsgTypeData        LinMessageType = LinMessageType(native.LinMsgTypeData)
	LinMsgTypeInfo        LinMessageType = LinMessageType(native.LinMsgTypeInfo)
	LinMsgTypeError       LinMessageType = LinMessageType(native.LinMsgTypeError)
	LinMsgTypeStatus      LinMessageType = LinMessageType(native.LinMsgTypeStatus)
	LinMsgTypeWakeup      LinMessageType = LinMessageType(native.LinMsgTypeWakeup)
	LinMsgTypeSleep       LinMessageType = LinMessageType(native.LinMsgTypeSleep)
	LinMsgTypeTimeOverrun LinMessageType = LinMessageType(native.LinMsgTypeTimeOverrun)
)

var linMsgTypeNames = [...]string{"Data", "Info", "Error", "Status", "Wakeup", "Sleep", "TimeOverrun"}

func (t LinMessageType) String() string {
	if int(t) < len(linMsgTypeNames) {
		return linMsgTypeNames[t]
	}
	return fmt.Sprintf("LinMessageType(%d)", uint8(t))
}

// LinMsgError is the first data byte of a LIN error frame.
type LinMsgError uint8

const (
	LinErrBit LinMsgError = iota + 1
	LinErrCrc
	LinErrParity
	LinErrSlaveNoResponse
	LinErrSync
	LinErrNoBus
	LinErrOther
)

var linErrNames = [...]string{"", "Bit", "Crc", "Parity", "SlaveNoResponse", "Sync", "NoBus", "Other"}

func (e LinMsgError) String() string {
	if e > 0 && int(e) < len(linErrNames) {
		return linErrNames[e]
	}
	return fmt.Sprintf("LinMsgError(%d)", uint8(e))
}

// LinMessage is a LIN frame.
type LinMessage struct {
	TimeStamp        uint32
	ProtId           uint8
	MessageType      LinMessageType
	DataLength       uint8
	PossibleOverrun  bool
	ExtendedCrc      bool
	SenderOfResponse bool
	IdOnly           bool
	Data             [native.LinMaxData]byte
}

func (m *LinMessage) Payload() []byte {
	return m.Data[:min(int(m.DataLength), len(m.Data))]
}

func (m *LinMessage) native() native.LinMsg {
	var flags uint8
	if m.ExtendedCrc {
		flags |= native.LinFlagECS
	}
	if m.SenderOfResponse {
		flags |= native.LinFlagSOR
	}
	if m.PossibleOverrun {
		flags |= native.LinFlagOVR
	}
	if m.IdOnly {
		flags |= native.LinFlagIDO
	}
	return native.LinMsg{
		Time: m.TimeStamp,
		Info: native.LinMsgInfo{PID: m.ProtId, Type: uint8(m.MessageType), DLen: m.DataLength, Flags: flags},
		Data: m.Data,
	}
}

func fromLinMsg(msg native.LinMsg) LinMessage {
	return LinMessage{
		TimeStamp:        msg.Time,
		ProtId:           msg.Info.PID,
		MessageType:      LinMessageType(msg.Info.Type),
		DataLength:       msg.Info.DLen,
		ExtendedCrc:      msg.Info.Flags&native.LinFlagECS != 0,
		SenderOfResponse: msg.Info.Flags&native.LinFlagSOR != 0,
		PossibleOverrun:  msg.Info.Flags&native.LinFlagOVR != 0,
		IdOnly:           msg.Info.Flags&native.LinFlagIDO != 0,
		Data:             msg.Data,
	}
}

func decodeLinMessage(entry []byte) (LinMessage, error) {
	var msg native.LinMsg
	if _, err := binary.Decode(entry, binary.LittleEndian, &msg); err != nil {
		return LinMessage{}, err
	}
	return fromLinMsg(msg), nil
}

func (m LinMessage) String() string {
	switch m.MessageType {
	case LinMsgTypeData:
		var b strings.Builder
		fmt.Fprintf(&b, "%d : Data [%03d]", m.TimeStamp, m.ProtId)
		for _, d := range m.Payload() {
			fmt.Fprintf(&b, " %02X", d)
		}
		return b.String()
	case LinMsgTypeInfo:
		return fmt.Sprintf("%d : Info %s", m.TimeStamp, CanMsgInfoValue(m.Data[0]))
	case LinMsgTypeError:
		return fmt.Sprintf("%d : Error %s", m.TimeStamp, LinMsgError(m.Data[0]))
	case LinMsgTypeStatus:
		return fmt.Sprintf("%d : Status %s", m.TimeStamp, LinCtrlStatus(m.Data[0]))
	case LinMsgTypeSleep:
		return fmt.Sprintf("%d : Sleep", m.TimeStamp)
	case LinMsgTypeTimeOverrun:
		return fmt.Sprintf("%d : TimeOverrun : Count=%d", m.TimeStamp, m.DataLength)
	case LinMsgTypeWakeup:
		return fmt.Sprintf("%d : Wakeup", m.TimeStamp)
	}
	return fmt.Sprintf("%d : %s", m.TimeStamp, m.MessageType)
}

// LinInitLine configures a LIN line.
type LinInitLine struct {
	OperatingMode LinOperatingModes
	Bitrate       LinBitrate
}

// LinControl controls a LIN line.
type LinControl struct {
	lib  native.Library
	port uint8
	h    *ref[native.LinControl]
}

func (c *LinControl) Port() uint8 { return c.port }

// InitLine sets operating mode and bit rate and leaves the line stopped.
func (c *LinControl) InitLine(init LinInitLine) error {
	return c.h.do(func(ctl native.LinControl) error {
		raw := native.LinInitLine{OpMode: uint8(init.OperatingMode), Bitrate: uint16(init.Bitrate)}
		return statusError(c.lib, fmt.Sprintf("init line (%s, %s)", init.OperatingMode, init.Bitrate), ctl.InitLine(raw))
	})
}

func (c *LinControl) ResetLine() error {
	return c.h.do(func(ctl native.LinControl) error {
		return statusError(c.lib, "reset line", ctl.ResetLine())
	})
}

func (c *LinControl) StartLine() error {
	return c.h.do(func(ctl native.LinControl) error {
		return statusError(c.lib, "start line", ctl.StartLine())
	})
}

func (c *LinControl) StopLine() error {
	return c.h.do(func(ctl native.LinControl) error {
		return statusError(c.lib, "stop line", ctl.StopLine())
	})
}

// WriteMessage transmits msg when send is set; a master sends an id-only
// frame to request a response. With send unset msg updates the response
// table for its protected id.
func (c *LinControl) WriteMessage(send bool, msg LinMessage) error {
	if msg.DataLength > native.LinMaxData {
		return fmt.Errorf("data length %d exceeds %d: %w", msg.DataLength, native.LinMaxData, ErrInvalidArgument)
	}
	return c.h.do(func(ctl native.LinControl) error {
		return statusError(c.lib, "write message", ctl.WriteMessage(send, msg.native()))
	})
}

func (c *LinControl) Close() error { return c.h.close() }

type LinMonitorStatus struct {
	LineStatus      LinLineStatus
	IsActivated     bool
	HasFifoOverrun  bool
	ReceiveFifoLoad uint8
}

func (s LinMonitorStatus) String() string {
	return fmt.Sprintf("active: %t, overrun: %t, fifoload: %02X", s.IsActivated, s.HasFifoOverrun, s.ReceiveFifoLoad)
}

// LinMonitor receives every frame on a LIN line. The native monitor is
// created by the first Initialize and again when the exclusive flag
// changes.
type LinMonitor struct {
	lib    native.Library
	port   uint8
	socket *ref[native.LinSocket]

	mu        sync.Mutex
	mon       native.LinMonitor
	exclusive bool
	closed    bool
}

func newLinMonitor(lib native.Library, port uint8, s native.LinSocket) *LinMonitor {
	return &LinMonitor{lib: lib, port: port, socket: newRef(s)}
}

func (m *LinMonitor) Port() uint8 { return m.port }

// Initialize creates the receive FIFO with room for fifoSize messages.
func (m *LinMonitor) Initialize(fifoSize uint16, exclusive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.mon != nil && m.exclusive != exclusive {
		m.mon.Release()
		m.mon = nil
	}
	if m.mon == nil {
		mon, err := call(m.socket, func(s native.LinSocket) (native.LinMonitor, error) {
			mon, st := s.CreateMonitor(exclusive)
			return mon, statusError(m.lib, "create monitor", st)
		})
		if err != nil {
			return err
		}
		m.mon, m.exclusive = mon, exclusive
	}
	return statusError(m.lib, fmt.Sprintf("initialize monitor (fifo %d)", fifoSize), m.mon.Initialize(fifoSize))
}

func (m *LinMonitor) with(op string, fn func(native.LinMonitor) native.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.mon == nil {
		return fmt.Errorf("%s: monitor not initialized: %w", op, ErrInvalidOperation)
	}
	return statusError(m.lib, op, fn(m.mon))
}

func (m *LinMonitor) Activate() error {
	return m.with("activate monitor", native.LinMonitor.Activate)
}

func (m *LinMonitor) Deactivate() error {
	return m.with("deactivate monitor", native.LinMonitor.Deactivate)
}

func (m *LinMonitor) MonitorStatus() (LinMonitorStatus, error) {
	var s native.LinMonitorStatus
	err := m.with("get monitor status", func(mon native.LinMonitor) native.Status {
		var st native.Status
		s, st = mon.Status()
		return st
	})
	if err != nil {
		return LinMonitorStatus{}, err
	}
	return LinMonitorStatus{
		LineStatus:      newLinLineStatus(s.LineStatus),
		IsActivated:     s.Activated != 0,
		HasFifoOverrun:  s.RxOverrun != 0,
		ReceiveFifoLoad: s.RxFifoLoad,
	}, nil
}

// MessageReader opens the receive FIFO of the monitor.
func (m *LinMonitor) MessageReader() (*LinMessageReader, error) {
	var r native.FifoReader
	err := m.with("open reader", func(mon native.LinMonitor) native.Status {
		var st native.Status
		r, st = mon.Reader()
		return st
	})
	if err != nil {
		return nil, err
	}
	return &LinMessageReader{fifo[native.FifoReader]{lib: m.lib, h: newRef(r)}}, nil
}

func (m *LinMonitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.mon != nil {
		m.mon.Release()
		m.mon = nil
	}
	return m.socket.close()
}
