// Package native declares the native VCI interface set as Go interfaces.
//
// The Windows implementation calls into vciapi.dll through COM vtables;
// package sim provides an in-memory implementation. Every method returns the
// raw Status so the binding layer decides how to translate it.
package native

// Unknown is the reference counting part shared by all native objects.
// Objects returned from Open/Create/Get calls carry one reference owned by
// the caller.
type Unknown interface {
	AddRef() uint32
	Release() uint32
}

// Library is the process wide entry point of the driver.
type Library interface {
	Initialize() Status
	Version() (VersionInfo, Status)
	DeviceManager() (DeviceManager, Status)
	FormatError(code Status) (string, Status)
	NewEvent(manualReset bool) (Event, Status)
	Close() error
}

// Event is a waitable event object that FIFOs and enumerators signal.
type Event interface {
	Handle() uintptr
	Set() Status
	Reset() Status
	// Wait blocks up to timeoutMs milliseconds and reports whether the
	// event was signalled.
	Wait(timeoutMs uint32) bool
	Close() error
}

// Infinite is the timeout value that waits forever.
const Infinite uint32 = 0xFFFFFFFF

type DeviceManager interface {
	Unknown
	EnumDevices() (EnumDevice, Status)
	OpenDevice(id uint64) (Device, Status)
}

type EnumDevice interface {
	Unknown
	// Next returns ENoMoreItems after the last device.
	Next() (DeviceInfo, Status)
	Reset() Status
	AssignEvent(ev Event) Status
}

type Device interface {
	Unknown
	DeviceInfo() (DeviceInfo, Status)
	DeviceCaps() (DeviceCaps, Status)
	OpenBal() (BalObject, Status)
}

type BalObject interface {
	Unknown
	Features() (BalFeatures, Status)
	// OpenSocket returns an object implementing the interface named by iid.
	OpenSocket(port uint8, iid IID) (Unknown, Status)
}

type LineControl interface {
	ResetLine() Status
	StartLine() Status
	StopLine() Status
}

type IDFilter interface {
	SetAccFilter(sel uint8, code, mask uint32) Status
	AddFilterIds(sel uint8, code, mask uint32) Status
	RemFilterIds(sel uint8, code, mask uint32) Status
}

type CanSocket interface {
	Unknown
	Capabilities() (CanCapabilities, Status)
	LineStatus() (CanLineStatus, Status)
	CreateChannel(exclusive bool) (CanChannel, Status)
}

type CanSocket2 interface {
	Unknown
	Capabilities() (CanCapabilities2, Status)
	LineStatus() (CanLineStatus2, Status)
	CreateChannel(exclusive bool) (CanChannel2, Status)
}

type CanControl interface {
	Unknown
	LineControl
	IDFilter
	DetectBaud(timeoutMs uint16, table *CanBtrTable) Status
	InitLine(init CanInitLine) Status
}

type CanControl2 interface {
	Unknown
	LineControl
	IDFilter
	DetectBaud(opMode, exMode uint8, timeoutMs uint16, table *CanBtpTable) Status
	InitLine(init CanInitLine2) Status
}

type Channel interface {
	Unknown
	Activate() Status
	Deactivate() Status
	Reader() (FifoReader, Status)
	Writer() (FifoWriter, Status)
}

type CanChannel interface {
	Channel
	Initialize(rxSize, txSize uint16) Status
	Status() (CanChanStatus, Status)
}

type CanChannel2 interface {
	Channel
	IDFilter
	Initialize(rxSize, txSize uint16, filterSize uint32, filterMode uint8) Status
	Status() (CanChanStatus2, Status)
	FilterMode(sel uint8) (uint8, Status)
	// SetFilterMode returns the previous mode.
	SetFilterMode(sel, mode uint8) (uint8, Status)
}

type CanScheduler interface {
	Unknown
	Suspend() Status
	Resume() Status
	Reset() Status
	Status() (CanSchedulerStatus, Status)
	AddMessage(msg CanCyclicTxMsg) (uint32, Status)
	RemMessage(handle uint32) Status
	StartMessage(handle uint32, repeat uint16) Status
	StopMessage(handle uint32) Status
}

type CanScheduler2 interface {
	Unknown
	Suspend() Status
	Resume() Status
	Reset() Status
	Status() (CanSchedulerStatus, Status)
	AddMessage(msg CanCyclicTxMsg2) (uint32, Status)
	RemMessage(handle uint32) Status
	StartMessage(handle uint32, repeat uint16) Status
	StopMessage(handle uint32) Status
}

// FifoReader reads fixed size entries from a native receive FIFO. Entries
// are exchanged as raw bytes in the packed layout of the channel's message
// struct (CanMsg, CanMsg2 or LinMsg).
type FifoReader interface {
	Unknown
	EntrySize() int
	Capacity() (uint16, Status)
	FillCount() (uint16, Status)
	Threshold() (uint16, Status)
	SetThreshold(n uint16) Status
	Lock() Status
	Unlock() Status
	AssignEvent(ev Event) Status
	GetDataEntry(entry []byte) Status
	// AcquireRead exposes up to max contiguous entries without copying.
	// The slice is only valid until ReleaseRead.
	AcquireRead(max uint16) ([]byte, uint16, Status)
	ReleaseRead(count uint16) Status
}

type FifoWriter interface {
	Unknown
	EntrySize() int
	Capacity() (uint16, Status)
	FreeCount() (uint16, Status)
	Threshold() (uint16, Status)
	SetThreshold(n uint16) Status
	Lock() Status
	Unlock() Status
	AssignEvent(ev Event) Status
	PutDataEntry(entry []byte) Status
	AcquireWrite(max uint16) ([]byte, uint16, Status)
	ReleaseWrite(count uint16) Status
}

type LinSocket interface {
	Unknown
	Capabilities() (LinCapabilities, Status)
	LineStatus() (LinLineStatus, Status)
	CreateMonitor(exclusive bool) (LinMonitor, Status)
}

type LinControl interface {
	Unknown
	LineControl
	InitLine(init LinInitLine) Status
	WriteMessage(send bool, msg LinMsg) Status
}

type LinMonitor interface {
	Unknown
	Initialize(fifoSize uint16) Status
	Activate() Status
	Deactivate() Status
	Status() (LinMonitorStatus, Status)
	Reader() (FifoReader, Status)
}
