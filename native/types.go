package native

// Packed mirrors of the vendor structs. Every field is fixed size so the
// encoding/binary layout equals the native pack(1) layout.

const (
	MaxBusCtrls       = 32
	MaxBusSockets     = 32
	CanBtrTableSize   = 64
	CanBtpTableSize   = 64
	CanMaxCtxMsgs     = 16
	CanSdlcMax        = 8
	CanFdlcMax        = 64
	LinMaxData        = 8
	descriptionLength = 128
	vendorLength      = 126
)

type GUID [16]byte

// IID selects the interface requested from BalObject.OpenSocket.
type IID int

const (
	IIDCanSocket IID = iota + 1
	IIDCanSocket2
	IIDCanControl
	IIDCanControl2
	IIDCanScheduler
	IIDCanScheduler2
	IIDLinSocket
	IIDLinControl
)

func (i IID) String() string {
	switch i {
	case IIDCanSocket:
		return "ICanSocket"
	case IIDCanSocket2:
		return "ICanSocket2"
	case IIDCanControl:
		return "ICanControl"
	case IIDCanControl2:
		return "ICanControl2"
	case IIDCanScheduler:
		return "ICanScheduler"
	case IIDCanScheduler2:
		return "ICanScheduler2"
	case IIDLinSocket:
		return "ILinSocket"
	case IIDLinControl:
		return "ILinControl"
	}
	return "IUnknown"
}

// Bus and controller type codes packed in one 16-bit word.
const (
	BusTypeCan     = 1
	BusTypeLin     = 2
	BusTypeFlexRay = 4
)

func BusType(busCtrlType uint16) uint8  { return uint8(busCtrlType >> 8) }
func CtrlType(busCtrlType uint16) uint8 { return uint8(busCtrlType) }

func BusCtrlType(bus, ctrl uint8) uint16 { return uint16(bus)<<8 | uint16(ctrl) }

type VersionInfo struct {
	VciMajor     uint32
	VciMinor     uint32
	VciRevision  uint32
	VciBuild     uint32
	OsMajor      uint32
	OsMinor      uint32
	OsBuild      uint32
	OsPlatformID uint32
}

type DeviceInfo struct {
	VciObjectID      uint64
	DeviceClass      GUID
	DriverMajor      uint8
	DriverMinor      uint8
	DriverBuild      uint16
	HardwareBranch   uint8
	HardwareMajor    uint8
	HardwareMinor    uint8
	HardwareBuild    uint8
	UniqueHardwareID [16]byte
	Description      [descriptionLength]byte
	Manufacturer     [vendorLength]byte
	DriverRelease    uint16
}

type DeviceCaps struct {
	BusCtrlCount uint16
	BusCtrlTypes [MaxBusCtrls]uint16
}

type BalFeatures struct {
	FwMajor        uint16
	FwMinor        uint16
	BusSocketCount uint16
	BusSocketType  [MaxBusSockets]uint16
}

// CAN

type CanCapabilities struct {
	CtrlType    uint16
	BusCoupling uint16
	Features    uint32
	ClockFreq   uint32
	TscDivisor  uint32
	CmsDivisor  uint32
	CmsMaxTicks uint32
	DtxDivisor  uint32
	DtxMaxTicks uint32
}

type CanBtp struct {
	Mode uint32
	BPS  uint32
	TS1  uint16
	TS2  uint16
	SJW  uint16
	TDO  uint16
}

type CanCapabilities2 struct {
	CtrlType    uint16
	BusCoupling uint16
	Features    uint32
	CanClkFreq  uint32
	SdrRangeMin CanBtp
	SdrRangeMax CanBtp
	FdrRangeMin CanBtp
	FdrRangeMax CanBtp
	TscClkFreq  uint32
	TscDivisor  uint32
	CmsClkFreq  uint32
	CmsDivisor  uint32
	CmsMaxTicks uint32
	DtxClkFreq  uint32
	DtxDivisor  uint32
	DtxMaxTicks uint32
}

type CanLineStatus struct {
	OpMode  uint8
	BtReg0  uint8
	BtReg1  uint8
	BusLoad uint8
	Status  uint32
}

type CanLineStatus2 struct {
	OpMode   uint8
	ExMode   uint8
	BusLoad  uint8
	Reserved uint8
	BtpSdr   CanBtp
	BtpFdr   CanBtp
	Status   uint32
}

type CanChanStatus struct {
	LineStatus CanLineStatus
	Activated  uint8
	RxOverrun  uint8
	RxFifoLoad uint8
	TxFifoLoad uint8
}

type CanChanStatus2 struct {
	LineStatus CanLineStatus2
	Activated  uint8
	RxOverrun  uint8
	RxFifoLoad uint8
	TxFifoLoad uint8
}

type CanInitLine struct {
	OpMode   uint8
	Reserved uint8
	BtReg0   uint8
	BtReg1   uint8
}

type CanInitLine2 struct {
	OpMode uint8
	ExMode uint8
	SFMode uint8
	EFMode uint8
	SFIds  uint32
	EFIds  uint32
	BtpSdr CanBtp
	BtpFdr CanBtp
}

type CanBtrTable struct {
	Count uint8
	Index uint8
	Btr0  [CanBtrTableSize]uint8
	Btr1  [CanBtrTableSize]uint8
}

type CanBtpPair struct {
	Sdr CanBtp
	Fdr CanBtp
}

type CanBtpTable struct {
	Count uint8
	Index uint8
	Btp   [CanBtpTableSize]CanBtpPair
}

// CanMsgInfo is the CANMSGINFO bit field.
type CanMsgInfo uint32

const (
	InfoSSM CanMsgInfo = 1 << (8 + iota)
	InfoHPM
	InfoEDL
	InfoFDR
	InfoESI
)

const (
	InfoOVR CanMsgInfo = 1 << (20 + iota)
	InfoSRR
	InfoRTR
	InfoEXT
)

func (i CanMsgInfo) Type() uint8   { return uint8(i) }
func (i CanMsgInfo) DLC() uint8    { return uint8(i>>16) & 0x0F }
func (i CanMsgInfo) Accept() uint8 { return uint8(i >> 24) }

func (i CanMsgInfo) Has(flag CanMsgInfo) bool { return i&flag != 0 }

func (i CanMsgInfo) WithType(t uint8) CanMsgInfo {
	return i&^0xFF | CanMsgInfo(t)
}

func (i CanMsgInfo) WithDLC(dlc uint8) CanMsgInfo {
	return i&^(0x0F<<16) | CanMsgInfo(dlc&0x0F)<<16
}

func (i CanMsgInfo) WithAccept(a uint8) CanMsgInfo {
	return i&^(0xFF<<24) | CanMsgInfo(a)<<24
}

func (i CanMsgInfo) With(flag CanMsgInfo, on bool) CanMsgInfo {
	if on {
		return i | flag
	}
	return i &^ flag
}

type CanMsg struct {
	Time uint32
	ID   uint32
	Info CanMsgInfo
	Data [CanSdlcMax]byte
}

type CanMsg2 struct {
	Time     uint32
	Reserved uint32
	ID       uint32
	Info     CanMsgInfo
	Data     [CanFdlcMax]byte
}

type CanCyclicTxMsg struct {
	CycleTime uint16
	IncrMode  uint8
	ByteIndex uint8
	ID        uint32
	Info      CanMsgInfo
	Data      [CanSdlcMax]byte
}

type CanCyclicTxMsg2 struct {
	CycleTime uint16
	IncrMode  uint8
	ByteIndex uint8
	ID        uint32
	Info      CanMsgInfo
	Data      [CanFdlcMax]byte
}

type CanSchedulerStatus struct {
	TaskStat uint8
	MsgStat  [CanMaxCtxMsgs]uint8
}

// Scheduler slot states.
const (
	CtxStatusEmpty uint8 = 0
	CtxStatusBusy  uint8 = 1
	CtxStatusDone  uint8 = 2
)

// Frame types carried in CanMsgInfo.Type.
const (
	CanMsgTypeData uint8 = iota
	CanMsgTypeInfo
	CanMsgTypeError
	CanMsgTypeStatus
	CanMsgTypeWakeup
	CanMsgTypeTimeOverrun
	CanMsgTypeTimeReset
)

// Info frame payloads.
const (
	CanInfoStart uint8 = 1
	CanInfoStop  uint8 = 2
	CanInfoReset uint8 = 3
)

// Operating mode bits shared by CanInitLine and CanLineStatus.
const (
	CanOpModeStandard   uint8 = 0x01
	CanOpModeExtended   uint8 = 0x02
	CanOpModeErrFrame   uint8 = 0x04
	CanOpModeListenOnly uint8 = 0x08
	CanOpModeLowSpeed   uint8 = 0x10
	CanOpModeAutoBaud   uint8 = 0x20
)

// Line status bits.
const (
	CanStatusTxPending uint32 = 0x01
	CanStatusOverrun   uint32 = 0x02
	CanStatusErrLimit  uint32 = 0x04
	CanStatusBusOff    uint32 = 0x08
	CanStatusInInit    uint32 = 0x10
	CanStatusBusCErr   uint32 = 0x20
)

// Filter selectors and modes.
const (
	CanFilterStd uint8 = 1
	CanFilterExt uint8 = 2

	CanFilterModeInvalid   uint8 = 0
	CanFilterModeLock      uint8 = 1
	CanFilterModePass      uint8 = 2
	CanFilterModeInclusive uint8 = 3
	CanFilterModeExclusive uint8 = 4
	CanFilterModeSRR       uint8 = 0x80
)

// LIN

type LinCapabilities struct {
	Features   uint32
	ClockFreq  uint32
	TscDivisor uint32
}

type LinLineStatus struct {
	OpMode  uint8
	BusLoad uint8
	Bitrate uint16
	Status  uint32
}

type LinInitLine struct {
	OpMode   uint8
	Reserved uint8
	Bitrate  uint16
}

type LinMonitorStatus struct {
	LineStatus LinLineStatus
	Activated  uint8
	RxOverrun  uint8
	RxFifoLoad uint8
	Reserved   uint8
}

type LinMsgInfo struct {
	PID   uint8
	Type  uint8
	DLen  uint8
	Flags uint8
}

const (
	LinFlagECS uint8 = 0x01
	LinFlagSOR uint8 = 0x02
	LinFlagOVR uint8 = 0x04
	LinFlagIDO uint8 = 0x08
)

type LinMsg struct {
	Time uint32
	Info LinMsgInfo
	Data [LinMaxData]byte
}

const (
	LinMsgTypeData uint8 = iota
	LinMsgTypeInfo
	LinMsgTypeError
	LinMsgTypeStatus
	LinMsgTypeWakeup
	LinMsgTypeSleep
	LinMsgTypeTimeOverrun
)

const (
	LinOpModeSlave  uint8 = 0x00
	LinOpModeMaster uint8 = 0x01
	LinOpModeErrors uint8 = 0x02
)

const (
	LinStatusOverrun uint32 = 0x01
	LinStatusInInit  uint32 = 0x10
)
