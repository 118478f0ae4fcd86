// Package trace records CAN and LIN frames to CBOR files and reads them back.
package trace

import (
	"fmt"
	"time"

	"github.com/LoveWonYoung/vci4go/vci"
)

// Bus is the bus a frame was seen on.
type Bus uint8

const (
	BusCAN Bus = 0
	BusLIN Bus = 1
)

func (b Bus) String() string {
	switch b {
	case BusCAN:
		return "CAN"
	case BusLIN:
		return "LIN"
	default:
		return "UNKNOWN"
	}
}

// Direction is the flow of a frame relative to the application.
type Direction uint8

const (
	DirectionRx Direction = 0
	DirectionTx Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionRx:
		return "RX"
	case DirectionTx:
		return "TX"
	default:
		return "UNKNOWN"
	}
}

// Flags carry the frame format bits.
type Flags uint8

const (
	FlagExtended Flags = 1 << iota
	FlagRemote
	FlagFD
	FlagBitrateSwitch
	FlagExtendedCrc // LIN enhanced checksum
	FlagIdOnly      // LIN header without response
)

func (f Flags) Has(flag Flags) bool { return f&flag == flag }

// Record is one traced frame. CBOR encoding uses integer keys.
type Record struct {
	// Time is the host time the frame was recorded.
	Time time.Time `cbor:"1,keyasint"`

	// Session groups the records of one recorder.
	Session string `cbor:"2,keyasint"`

	Bus       Bus       `cbor:"3,keyasint"`
	Direction Direction `cbor:"4,keyasint"`
	Port      uint8     `cbor:"5,keyasint"`

	// TimeStamp is the controller time stamp in ticks.
	TimeStamp uint32 `cbor:"6,keyasint,omitempty"`

	// ID is the CAN identifier or the LIN protected id.
	ID    uint32 `cbor:"7,keyasint"`
	Flags Flags  `cbor:"8,keyasint,omitempty"`
	Data  []byte `cbor:"9,keyasint,omitempty"`
}

// CanRecord builds the record of a CAN data frame.
func CanRecord(dir Direction, port uint8, msg vci.CanMessage) Record {
	var flags Flags
	if msg.ExtendedFrameFormat {
		flags |= FlagExtended
	}
	if msg.RemoteTransmissionRequest {
		flags |= FlagRemote
	}
	if msg.ExtendedDataLength {
		flags |= FlagFD
	}
	if msg.FastDataRate {
		flags |= FlagBitrateSwitch
	}
	return Record{
		Bus:       BusCAN,
		Direction: dir,
		Port:      port,
		TimeStamp: msg.TimeStamp,
		ID:        msg.Identifier,
		Flags:     flags,
		Data:      append([]byte(nil), msg.Payload()...),
	}
}

// LinRecord builds the record of a LIN data frame.
func LinRecord(dir Direction, port uint8, msg vci.LinMessage) Record {
	var flags Flags
	if msg.ExtendedCrc {
		flags |= FlagExtendedCrc
	}
	if msg.IdOnly {
		flags |= FlagIdOnly
	}
	return Record{
		Bus:       BusLIN,
		Direction: dir,
		Port:      port,
		TimeStamp: msg.TimeStamp,
		ID:        uint32(msg.ProtId),
		Flags:     flags,
		Data:      append([]byte(nil), msg.Payload()...),
	}
}

// CanMessage rebuilds the CAN frame of a BusCAN record.
func (r Record) CanMessage() (vci.CanMessage, error) {
	if r.Bus != BusCAN {
		return vci.CanMessage{}, fmt.Errorf("trace: %s record is not a CAN frame", r.Bus)
	}
	msg := vci.CanMessage{
		TimeStamp:                 r.TimeStamp,
		Identifier:                r.ID,
		FrameType:                 vci.FrameData,
		ExtendedFrameFormat:       r.Flags.Has(FlagExtended),
		RemoteTransmissionRequest: r.Flags.Has(FlagRemote),
		ExtendedDataLength:        r.Flags.Has(FlagFD),
		FastDataRate:              r.Flags.Has(FlagBitrateSwitch),
	}
	msg.SetPayload(r.Data)
	return msg, nil
}

func (r Record) String() string {
	return fmt.Sprintf("%s %s %s%d: ID=0x%03X, Len=%02d, Data=% 02X",
		r.Time.Format("15:04:05.000"), r.Direction, r.Bus, r.Port+1, r.ID, len(r.Data), r.Data)
}
