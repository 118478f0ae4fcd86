package vci

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/LoveWonYoung/vci4go/native"
)

type CanMsgFrameType uint8

const (
	FrameData        CanMsgFrameType = CanMsgFrameType(native.CanMsgTypeData)
	FrameInfo        CanMsgFrameType = CanMsgFrameType(native.CanMsgTypeInfo)
	FrameError       CanMsgFrameType = CanMsgFrameType(native.CanMsgTypeError)
	FrameStatus      CanMsgFrameType = CanMsgFrameType(native.CanMsgTypeStatus)
	FrameWakeup      CanMsgFrameType = CanMsgFrameType(native.CanMsgTypeWakeup)
	FrameTimeOverrun CanMsgFrameType = CanMsgFrameType(native.CanMsgTypeTimeOverrun)
	FrameTimeReset   CanMsgFrameType = CanMsgFrameType(native.CanMsgTypeTimeReset)
)

var frameTypeNames = [...]string{"Data", "Info", "Error", "Status", "Wakeup", "TimeOverrun", "TimeReset"}

func (t CanMsgFrameType) String() string {
	if int(t) < len(frameTypeNames) {
		return frameTypeNames[t]
	}
	return fmt.Sprintf("CanMsgFrameType(%d)", uint8(t))
}

// CanMsgAccReason tells which filter accepted a received message.
type CanMsgAccReason uint8

const (
	AccReject  CanMsgAccReason = 0x00
	AccFilter1 CanMsgAccReason = 0x01
	AccFilter2 CanMsgAccReason = 0x02
	AccAlways  CanMsgAccReason = 0xFF
)

func (r CanMsgAccReason) String() string {
	switch r {
	case AccReject:
		return "Reject"
	case AccFilter1:
		return "Filter1"
	case AccFilter2:
		return "Filter2"
	case AccAlways:
		return "Always"
	}
	return fmt.Sprintf("CanMsgAccReason(%d)", uint8(r))
}

// CanMsgInfoValue is the first data byte of an info frame.
type CanMsgInfoValue uint8

const (
	InfoStart CanMsgInfoValue = CanMsgInfoValue(native.CanInfoStart)
	InfoStop  CanMsgInfoValue = CanMsgInfoValue(native.CanInfoStop)
	InfoReset CanMsgInfoValue = CanMsgInfoValue(native.CanInfoReset)
)

func (v CanMsgInfoValue) String() string {
	switch v {
	case InfoStart:
		return "Start"
	case InfoStop:
		return "Stop"
	case InfoReset:
		return "Reset"
	}
	return fmt.Sprintf("CanMsgInfoValue(%d)", uint8(v))
}

// CanMsgError is the first data byte of an error frame.
type CanMsgError uint8

const (
	MsgErrStuff CanMsgError = iota + 1
	MsgErrForm
	MsgErrAcknowledge
	MsgErrBit
	MsgErrFdb
	MsgErrCrc
	MsgErrDlc
	MsgErrOther
)

var msgErrorNames = [...]string{"", "Stuff", "Form", "Acknowledge", "Bit", "Fdb", "Crc", "Dlc", "Other"}

func (e CanMsgError) String() string {
	if e > 0 && int(e) < len(msgErrorNames) {
		return msgErrorNames[e]
	}
	return fmt.Sprintf("CanMsgError(%d)", uint8(e))
}

// DataLenToDLC converts a CAN or CAN FD payload length to its DLC code.
// Lengths between the FD steps round up.
func DataLenToDLC(n int) uint8 {
	switch {
	case n <= 8:
		return uint8(max(n, 0))
	case n <= 12:
		return 9
	case n <= 16:
		return 10
	case n <= 20:
		return 11
	case n <= 24:
		return 12
	case n <= 32:
		return 13
	case n <= 48:
		return 14
	}
	return 15
}

// DLCToDataLen converts a DLC code to the CAN FD payload length.
func DLCToDataLen(dlc uint8) int {
	if dlc <= 8 {
		return int(dlc)
	}
	switch dlc {
	case 9:
		return 12
	case 10:
		return 16
	case 11:
		return 20
	case 12:
		return 24
	case 13:
		return 32
	case 14:
		return 48
	}
	return 64
}

// CanMessage is a CAN or CAN FD frame. DataLength counts payload bytes; the
// DLC code is derived from it when the frame is written.
type CanMessage struct {
	TimeStamp    uint32
	Identifier   uint32
	FrameType    CanMsgFrameType
	AcceptReason CanMsgAccReason
	DataLength   uint8

	PossibleOverrun           bool
	SelfReceptionRequest      bool
	RemoteTransmissionRequest bool
	ExtendedFrameFormat       bool
	SingleShotMode            bool
	HighPriorityMsg           bool
	ExtendedDataLength        bool
	FastDataRate              bool
	ErrorStateIndicator       bool

	Data [native.CanFdlcMax]byte
}

// Payload returns the first DataLength bytes of Data.
func (m *CanMessage) Payload() []byte {
	return m.Data[:min(int(m.DataLength), len(m.Data))]
}

// SetPayload copies b into Data and sets DataLength.
func (m *CanMessage) SetPayload(b []byte) {
	n := copy(m.Data[:], b)
	m.DataLength = uint8(n)
}

// InfoValue is the info code of an info frame.
func (m *CanMessage) InfoValue() CanMsgInfoValue { return CanMsgInfoValue(m.Data[0]) }

// ErrorCode is the error code of an error frame.
func (m *CanMessage) ErrorCode() CanMsgError { return CanMsgError(m.Data[0]) }

// ControllerStatus is the controller status of a status frame.
func (m *CanMessage) ControllerStatus() CanCtrlStatus { return CanCtrlStatus(m.Data[0]) }

// OverrunCount is the number of timer overruns of a time overrun frame.
func (m *CanMessage) OverrunCount() uint32 { return m.Identifier }

func (m *CanMessage) info() native.CanMsgInfo {
	return native.CanMsgInfo(0).
		WithType(uint8(m.FrameType)).
		WithDLC(DataLenToDLC(int(m.DataLength))).
		WithAccept(uint8(m.AcceptReason)).
		With(native.InfoSSM, m.SingleShotMode).
		With(native.InfoHPM, m.HighPriorityMsg).
		With(native.InfoEDL, m.ExtendedDataLength).
		With(native.InfoFDR, m.FastDataRate).
		With(native.InfoESI, m.ErrorStateIndicator).
		With(native.InfoOVR, m.PossibleOverrun).
		With(native.InfoSRR, m.SelfReceptionRequest).
		With(native.InfoRTR, m.RemoteTransmissionRequest).
		With(native.InfoEXT, m.ExtendedFrameFormat)
}

func (m *CanMessage) setInfo(i native.CanMsgInfo) {
	m.FrameType = CanMsgFrameType(i.Type())
	m.AcceptReason = CanMsgAccReason(i.Accept())
	m.SingleShotMode = i.Has(native.InfoSSM)
	m.HighPriorityMsg = i.Has(native.InfoHPM)
	m.ExtendedDataLength = i.Has(native.InfoEDL)
	m.FastDataRate = i.Has(native.InfoFDR)
	m.ErrorStateIndicator = i.Has(native.InfoESI)
	m.PossibleOverrun = i.Has(native.InfoOVR)
	m.SelfReceptionRequest = i.Has(native.InfoSRR)
	m.RemoteTransmissionRequest = i.Has(native.InfoRTR)
	m.ExtendedFrameFormat = i.Has(native.InfoEXT)
	switch {
	case m.ExtendedDataLength:
		m.DataLength = uint8(DLCToDataLen(i.DLC()))
	case m.FrameType == FrameData && !m.RemoteTransmissionRequest:
		m.DataLength = min(i.DLC(), native.CanSdlcMax)
	default:
		m.DataLength = i.DLC()
	}
}

func (m *CanMessage) checkClassic() error {
	if m.DataLength > native.CanSdlcMax {
		return fmt.Errorf("data length %d exceeds %d: %w", m.DataLength, native.CanSdlcMax, ErrInvalidArgument)
	}
	return nil
}

func (m *CanMessage) classic() native.CanMsg {
	msg := native.CanMsg{Time: m.TimeStamp, ID: m.Identifier, Info: m.info()}
	copy(msg.Data[:], m.Data[:])
	return msg
}

func (m *CanMessage) fd() native.CanMsg2 {
	return native.CanMsg2{Time: m.TimeStamp, ID: m.Identifier, Info: m.info(), Data: m.Data}
}

func fromClassic(msg native.CanMsg) CanMessage {
	m := CanMessage{TimeStamp: msg.Time, Identifier: msg.ID}
	copy(m.Data[:], msg.Data[:])
	m.setInfo(msg.Info)
	return m
}

func fromFd(msg native.CanMsg2) CanMessage {
	m := CanMessage{TimeStamp: msg.Time, Identifier: msg.ID, Data: msg.Data}
	m.setInfo(msg.Info)
	return m
}

// canLayout encodes messages in the FIFO entry layout of a channel.
type canLayout bool

const (
	layoutClassic canLayout = false
	layoutFd      canLayout = true
)

func (l canLayout) size() int {
	if l == layoutFd {
		return binary.Size(native.CanMsg2{})
	}
	return binary.Size(native.CanMsg{})
}

func (l canLayout) encode(m *CanMessage, entry []byte) error {
	// without EDL the frame is classic on either layout
	if l == layoutClassic || !m.ExtendedDataLength {
		if err := m.checkClassic(); err != nil {
			return err
		}
	}
	var err error
	if l == layoutFd {
		_, err = binary.Encode(entry, binary.LittleEndian, m.fd())
	} else {
		_, err = binary.Encode(entry, binary.LittleEndian, m.classic())
	}
	return err
}

func (l canLayout) decode(entry []byte) (CanMessage, error) {
	if l == layoutFd {
		var msg native.CanMsg2
		if _, err := binary.Decode(entry, binary.LittleEndian, &msg); err != nil {
			return CanMessage{}, err
		}
		return fromFd(msg), nil
	}
	var msg native.CanMsg
	if _, err := binary.Decode(entry, binary.LittleEndian, &msg); err != nil {
		return CanMessage{}, err
	}
	return fromClassic(msg), nil
}

func (m CanMessage) String() string {
	switch m.FrameType {
	case FrameData:
		var b strings.Builder
		kind := "Data"
		if m.RemoteTransmissionRequest {
			kind = "RTR"
		}
		fmt.Fprintf(&b, "%d : %s [%03d] Dlc=%d", m.TimeStamp, kind, m.Identifier, m.DataLength)
		if !m.RemoteTransmissionRequest {
			for _, d := range m.Payload() {
				fmt.Fprintf(&b, " %02X", d)
			}
		}
		return b.String()
	case FrameInfo:
		return fmt.Sprintf("%d : Info %s", m.TimeStamp, m.InfoValue())
	case FrameError:
		return fmt.Sprintf("%d : Error %s", m.TimeStamp, m.ErrorCode())
	case FrameStatus:
		return fmt.Sprintf("%d : Status %s", m.TimeStamp, m.ControllerStatus())
	case FrameTimeReset:
		return fmt.Sprintf("%d : TimeReset", m.TimeStamp)
	case FrameTimeOverrun:
		return fmt.Sprintf("%d : TimeOverrun : Count=%d", m.TimeStamp, m.OverrunCount())
	case FrameWakeup:
		return fmt.Sprintf("%d : Wakeup", m.TimeStamp)
	}
	return fmt.Sprintf("%d : %s", m.TimeStamp, m.FrameType)
}
