package vci

import (
	"fmt"
	"strings"

	"github.com/LoveWonYoung/vci4go/native"
)

// CanFeatures are the capability flags of a CAN controller.
type CanFeatures uint32

const (
	FeatureStdOrExt           CanFeatures = 0x00000001
	FeatureStdAndExt          CanFeatures = 0x00000002
	FeatureRemoteFrame        CanFeatures = 0x00000004
	FeatureErrFrame           CanFeatures = 0x00000008
	FeatureBusload            CanFeatures = 0x00000010
	FeatureIDFilter           CanFeatures = 0x00000020
	FeatureListenOnly         CanFeatures = 0x00000040
	FeatureScheduler          CanFeatures = 0x00000080
	FeatureGenErrFrame        CanFeatures = 0x00000100
	FeatureDelayedTX          CanFeatures = 0x00000200
	FeatureSingleShot         CanFeatures = 0x00000400
	FeatureHighPriorityMsg    CanFeatures = 0x00000800
	FeatureAutoBaudrate       CanFeatures = 0x00001000
	FeatureExtendedDataLength CanFeatures = 0x00002000
	FeatureFastDataRate       CanFeatures = 0x00004000
	FeatureIsoCanFd           CanFeatures = 0x00008000
	FeatureNonIsoCanFd        CanFeatures = 0x00010000
	FeatureLongBitTimeStamp   CanFeatures = 0x00020000
)

func (f CanFeatures) Has(flag CanFeatures) bool { return f&flag == flag }

func (f CanFeatures) SupportsStdOrExtFrames() bool         { return f.Has(FeatureStdOrExt) }
func (f CanFeatures) SupportsStdAndExtFrames() bool        { return f.Has(FeatureStdAndExt) }
func (f CanFeatures) SupportsRemoteFrames() bool           { return f.Has(FeatureRemoteFrame) }
func (f CanFeatures) SupportsErrorFrames() bool            { return f.Has(FeatureErrFrame) }
func (f CanFeatures) SupportsBusLoadComputation() bool     { return f.Has(FeatureBusload) }
func (f CanFeatures) SupportsExactMessageFilter() bool     { return f.Has(FeatureIDFilter) }
func (f CanFeatures) SupportsListenOnlyMode() bool         { return f.Has(FeatureListenOnly) }
func (f CanFeatures) SupportsCyclicMessageScheduler() bool { return f.Has(FeatureScheduler) }
func (f CanFeatures) SupportsErrorFrameGeneration() bool   { return f.Has(FeatureGenErrFrame) }
func (f CanFeatures) SupportsDelayedTransmission() bool    { return f.Has(FeatureDelayedTX) }
func (f CanFeatures) SupportsSingleShotMessages() bool     { return f.Has(FeatureSingleShot) }
func (f CanFeatures) SupportsHighPriorityMessages() bool   { return f.Has(FeatureHighPriorityMsg) }
func (f CanFeatures) SupportsAutoBaudrateDetection() bool  { return f.Has(FeatureAutoBaudrate) }
func (f CanFeatures) SupportsExtendedDataLength() bool     { return f.Has(FeatureExtendedDataLength) }
func (f CanFeatures) SupportsFastDataRate() bool           { return f.Has(FeatureFastDataRate) }
func (f CanFeatures) SupportsIsoCanFdFrames() bool         { return f.Has(FeatureIsoCanFd) }
func (f CanFeatures) SupportsNonIsoCanFdFrames() bool      { return f.Has(FeatureNonIsoCanFd) }
func (f CanFeatures) Supports64BitTimeStamps() bool        { return f.Has(FeatureLongBitTimeStamp) }

type CanBusCoupling uint16

const (
	BusCouplingUndefined CanBusCoupling = 0
	BusCouplingLowSpeed  CanBusCoupling = 1
	BusCouplingHighSpeed CanBusCoupling = 2
)

func (c CanBusCoupling) String() string {
	switch c {
	case BusCouplingLowSpeed:
		return "LowSpeed"
	case BusCouplingHighSpeed:
		return "HighSpeed"
	}
	return "Undefined"
}

type CanCtrlType uint16

var canCtrlNames = []string{
	"Unknown", "Intel82527", "Intel82C200", "Intel81C90", "Intel81C92", "SJA1000",
	"Infineon82C900", "TouCAN", "msCAN", "FLEXCAN", "IFI_CAN", "C_CAN", "bxCAN",
	"IFI_CAN_FD", "M_CAN",
}

func (c CanCtrlType) String() string {
	if int(c) < len(canCtrlNames) {
		return canCtrlNames[c]
	}
	return fmt.Sprintf("CanCtrlType(%d)", int(c))
}

// CanOperatingModes are the operating mode bits of a CAN line.
type CanOperatingModes uint8

const (
	OpModeUndefined    CanOperatingModes = 0
	OpModeStandard     CanOperatingModes = CanOperatingModes(native.CanOpModeStandard)
	OpModeExtended     CanOperatingModes = CanOperatingModes(native.CanOpModeExtended)
	OpModeErrFrame     CanOperatingModes = CanOperatingModes(native.CanOpModeErrFrame)
	OpModeListenOnly   CanOperatingModes = CanOperatingModes(native.CanOpModeListenOnly)
	OpModeLowSpeed     CanOperatingModes = CanOperatingModes(native.CanOpModeLowSpeed)
	OpModeAutoBaudrate CanOperatingModes = CanOperatingModes(native.CanOpModeAutoBaud)
)

var opModeNames = []struct {
	mode CanOperatingModes
	name string
}{
	{OpModeStandard, "Standard"},
	{OpModeExtended, "Extended"},
	{OpModeErrFrame, "ErrFrame"},
	{OpModeListenOnly, "ListenOnly"},
	{OpModeLowSpeed, "LowSpeed"},
	{OpModeAutoBaudrate, "AutoBaudrate"},
}

func (m CanOperatingModes) String() string {
	var names []string
	for _, n := range opModeNames {
		if m&n.mode != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "Undefined"
	}
	return strings.Join(names, "|")
}

// CanExtendedOperatingModes are the CAN FD mode bits of a CAN line.
type CanExtendedOperatingModes uint8

const (
	ExModeUndefined          CanExtendedOperatingModes = 0
	ExModeExtendedDataLength CanExtendedOperatingModes = 0x01
	ExModeFastDataRate       CanExtendedOperatingModes = 0x02
	ExModeNonIsoCanFd        CanExtendedOperatingModes = 0x04
)

func (m CanExtendedOperatingModes) String() string {
	var names []string
	if m&ExModeExtendedDataLength != 0 {
		names = append(names, "ExtendedDataLength")
	}
	if m&ExModeFastDataRate != 0 {
		names = append(names, "FastDataRate")
	}
	if m&ExModeNonIsoCanFd != 0 {
		names = append(names, "NonIsoCanFd")
	}
	if len(names) == 0 {
		return "Undefined"
	}
	return strings.Join(names, "|")
}

// CanCtrlStatus are the controller status bits of a CAN line.
type CanCtrlStatus uint32

const (
	CtrlTxPending CanCtrlStatus = CanCtrlStatus(native.CanStatusTxPending)
	CtrlOverrun   CanCtrlStatus = CanCtrlStatus(native.CanStatusOverrun)
	CtrlErrLimit  CanCtrlStatus = CanCtrlStatus(native.CanStatusErrLimit)
	CtrlBusOff    CanCtrlStatus = CanCtrlStatus(native.CanStatusBusOff)
	CtrlInInit    CanCtrlStatus = CanCtrlStatus(native.CanStatusInInit)
	CtrlBusCErr   CanCtrlStatus = CanCtrlStatus(native.CanStatusBusCErr)
)

func (s CanCtrlStatus) String() string {
	var names []string
	for _, n := range []struct {
		bit  CanCtrlStatus
		name string
	}{
		{CtrlTxPending, "TxPending"},
		{CtrlOverrun, "Overrun"},
		{CtrlErrLimit, "ErrLimit"},
		{CtrlBusOff, "BusOff"},
		{CtrlInInit, "InInit"},
		{CtrlBusCErr, "BusCErr"},
	} {
		if s&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "0"
	}
	return strings.Join(names, "|")
}

// CanLineStatus is the state of a classic CAN line.
type CanLineStatus struct {
	OperatingMode    CanOperatingModes
	Bitrate          CanBitrate
	BusLoad          uint8
	ControllerStatus CanCtrlStatus
}

func newCanLineStatus(s native.CanLineStatus) CanLineStatus {
	return CanLineStatus{
		OperatingMode:    CanOperatingModes(s.OpMode),
		Bitrate:          CanBitrate{Btr0: s.BtReg0, Btr1: s.BtReg1},
		BusLoad:          s.BusLoad,
		ControllerStatus: CanCtrlStatus(s.Status),
	}
}

func (s CanLineStatus) IsTransmitPending() bool  { return s.ControllerStatus&CtrlTxPending != 0 }
func (s CanLineStatus) HasDataOverrun() bool     { return s.ControllerStatus&CtrlOverrun != 0 }
func (s CanLineStatus) HasErrorOverrun() bool    { return s.ControllerStatus&CtrlErrLimit != 0 }
func (s CanLineStatus) IsBusOff() bool           { return s.ControllerStatus&CtrlBusOff != 0 }
func (s CanLineStatus) IsInInitMode() bool       { return s.ControllerStatus&CtrlInInit != 0 }
func (s CanLineStatus) IsBusCouplingError() bool { return s.ControllerStatus&CtrlBusCErr != 0 }

func (s CanLineStatus) String() string {
	return fmt.Sprintf("opmode: %s, busload: %d, ctrlstat: %s, bitrate: %s", s.OperatingMode, s.BusLoad, s.ControllerStatus, s.Bitrate)
}

// CanLineStatus2 is the state of a CAN FD capable line.
type CanLineStatus2 struct {
	OperatingMode         CanOperatingModes
	ExtendedOperatingMode CanExtendedOperatingModes
	StdBitrate            CanBitrate2
	FastBitrate           CanBitrate2
	BusLoad               uint8
	ControllerStatus      CanCtrlStatus
}

func newCanLineStatus2(s native.CanLineStatus2) CanLineStatus2 {
	return CanLineStatus2{
		OperatingMode:         CanOperatingModes(s.OpMode),
		ExtendedOperatingMode: CanExtendedOperatingModes(s.ExMode),
		StdBitrate:            bitrate2(s.BtpSdr),
		FastBitrate:           bitrate2(s.BtpFdr),
		BusLoad:               s.BusLoad,
		ControllerStatus:      CanCtrlStatus(s.Status),
	}
}

func (s CanLineStatus2) IsTransmitPending() bool  { return s.ControllerStatus&CtrlTxPending != 0 }
func (s CanLineStatus2) HasDataOverrun() bool     { return s.ControllerStatus&CtrlOverrun != 0 }
func (s CanLineStatus2) HasErrorOverrun() bool    { return s.ControllerStatus&CtrlErrLimit != 0 }
func (s CanLineStatus2) IsBusOff() bool           { return s.ControllerStatus&CtrlBusOff != 0 }
func (s CanLineStatus2) IsInInitMode() bool       { return s.ControllerStatus&CtrlInInit != 0 }
func (s CanLineStatus2) IsBusCouplingError() bool { return s.ControllerStatus&CtrlBusCErr != 0 }

func (s CanLineStatus2) String() string {
	return fmt.Sprintf("opmode: %s, exmode: %s, busload: %d, ctrlstat: %s, stdbitrate: %s, fastbitrate: %s",
		s.OperatingMode, s.ExtendedOperatingMode, s.BusLoad, s.ControllerStatus, s.StdBitrate, s.FastBitrate)
}

// CanCapabilities describes a classic CAN controller.
type CanCapabilities struct {
	BusCoupling               CanBusCoupling
	CtrlType                  CanCtrlType
	Features                  CanFeatures
	ClockFrequency            uint32
	TimeStampCounterDivisor   uint32
	CyclicMessageTimerDivisor uint32
	MaxCyclicMessageTicks     uint32
	DelayedTXTimerDivisor     uint32
	MaxDelayedTXTicks         uint32
}

// CanSocket reports the capabilities and line state of a classic CAN port.
type CanSocket struct {
	lib  native.Library
	port uint8
	h    *ref[native.CanSocket]
	caps CanCapabilities
}

func newCanSocket(lib native.Library, port uint8, s native.CanSocket) (*CanSocket, error) {
	c, st := s.Capabilities()
	if err := statusError(lib, "get can capabilities", st); err != nil {
		s.Release()
		return nil, err
	}
	return &CanSocket{
		lib:  lib,
		port: port,
		h:    newRef(s),
		caps: CanCapabilities{
			BusCoupling:               CanBusCoupling(c.BusCoupling),
			CtrlType:                  CanCtrlType(c.CtrlType),
			Features:                  CanFeatures(c.Features),
			ClockFrequency:            c.ClockFreq,
			TimeStampCounterDivisor:   c.TscDivisor,
			CyclicMessageTimerDivisor: c.CmsDivisor,
			MaxCyclicMessageTicks:     c.CmsMaxTicks,
			DelayedTXTimerDivisor:     c.DtxDivisor,
			MaxDelayedTXTicks:         c.DtxMaxTicks,
		},
	}, nil
}

func (s *CanSocket) Port() uint8 { return s.port }

func (s *CanSocket) Capabilities() CanCapabilities { return s.caps }

func (s *CanSocket) Supports(f CanFeatures) bool { return s.caps.Features.Has(f) }

func (s *CanSocket) LineStatus() (CanLineStatus, error) {
	return call(s.h, func(sock native.CanSocket) (CanLineStatus, error) {
		ls, st := sock.LineStatus()
		if err := statusError(s.lib, "get line status", st); err != nil {
			return CanLineStatus{}, err
		}
		return newCanLineStatus(ls), nil
	})
}

func (s *CanSocket) Close() error { return s.h.close() }

// CanCapabilities2 describes a CAN FD capable controller.
type CanCapabilities2 struct {
	BusCoupling               CanBusCoupling
	CtrlType                  CanCtrlType
	Features                  CanFeatures
	CanClockFrequency         uint32
	SdrRangeMin               CanBitrate2
	SdrRangeMax               CanBitrate2
	FdrRangeMin               CanBitrate2
	FdrRangeMax               CanBitrate2
	TimeStampCounterClock     uint32
	TimeStampCounterDivisor   uint32
	CyclicMessageTimerClock   uint32
	CyclicMessageTimerDivisor uint32
	MaxCyclicMessageTicks     uint32
	DelayedTXTimerClock       uint32
	DelayedTXTimerDivisor     uint32
	MaxDelayedTXTicks         uint32
}

// CanSocket2 reports the capabilities and line state of a CAN FD port.
type CanSocket2 struct {
	lib  native.Library
	port uint8
	h    *ref[native.CanSocket2]
	caps CanCapabilities2
}

func newCanSocket2(lib native.Library, port uint8, s native.CanSocket2) (*CanSocket2, error) {
	c, st := s.Capabilities()
	if err := statusError(lib, "get can capabilities", st); err != nil {
		s.Release()
		return nil, err
	}
	return &CanSocket2{
		lib:  lib,
		port: port,
		h:    newRef(s),
		caps: CanCapabilities2{
			BusCoupling:               CanBusCoupling(c.BusCoupling),
			CtrlType:                  CanCtrlType(c.CtrlType),
			Features:                  CanFeatures(c.Features),
			CanClockFrequency:         c.CanClkFreq,
			SdrRangeMin:               bitrate2(c.SdrRangeMin),
			SdrRangeMax:               bitrate2(c.SdrRangeMax),
			FdrRangeMin:               bitrate2(c.FdrRangeMin),
			FdrRangeMax:               bitrate2(c.FdrRangeMax),
			TimeStampCounterClock:     c.TscClkFreq,
			TimeStampCounterDivisor:   c.TscDivisor,
			CyclicMessageTimerClock:   c.CmsClkFreq,
			CyclicMessageTimerDivisor: c.CmsDivisor,
			MaxCyclicMessageTicks:     c.CmsMaxTicks,
			DelayedTXTimerClock:       c.DtxClkFreq,
			DelayedTXTimerDivisor:     c.DtxDivisor,
			MaxDelayedTXTicks:         c.DtxMaxTicks,
		},
	}, nil
}

func (s *CanSocket2) Port() uint8 { return s.port }

func (s *CanSocket2) Capabilities() CanCapabilities2 { return s.caps }

func (s *CanSocket2) Supports(f CanFeatures) bool { return s.caps.Features.Has(f) }

func (s *CanSocket2) LineStatus() (CanLineStatus2, error) {
	return call(s.h, func(sock native.CanSocket2) (CanLineStatus2, error) {
		ls, st := sock.LineStatus()
		if err := statusError(s.lib, "get line status", st); err != nil {
			return CanLineStatus2{}, err
		}
		return newCanLineStatus2(ls), nil
	})
}

func (s *CanSocket2) Close() error { return s.h.close() }
