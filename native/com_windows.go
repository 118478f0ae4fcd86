//go:build windows

package native

import (
	"bytes"
	"encoding/binary"
	"runtime"
	"syscall"
	"unsafe"
)

// comObject is a raw interface pointer. The first word of the object is the
// vtable; slots 0-2 are QueryInterface, AddRef and Release.
type comObject struct {
	ptr uintptr
}

const ptrSize = unsafe.Sizeof(uintptr(0))

func (o comObject) method(slot int) uintptr {
	vtbl := *(*uintptr)(unsafe.Pointer(o.ptr))
	return *(*uintptr)(unsafe.Pointer(vtbl + uintptr(slot)*ptrSize))
}

func (o comObject) call(slot int, args ...uintptr) Status {
	r, _, _ := syscall.SyscallN(o.method(slot), append([]uintptr{o.ptr}, args...)...)
	return Status(r)
}

func (o comObject) AddRef() uint32 {
	r, _, _ := syscall.SyscallN(o.method(1), o.ptr)
	return uint32(r)
}

func (o comObject) Release() uint32 {
	r, _, _ := syscall.SyscallN(o.method(2), o.ptr)
	return uint32(r)
}

// outPtr calls a method whose last argument receives an interface pointer.
func (o comObject) outPtr(slot int, args ...uintptr) (comObject, Status) {
	var p uintptr
	st := o.call(slot, append(args, uintptr(unsafe.Pointer(&p)))...)
	if st != StatusOK {
		return comObject{}, st
	}
	return comObject{ptr: p}, st
}

func (o comObject) u16(slot int) (uint16, Status) {
	var v uint16
	st := o.call(slot, uintptr(unsafe.Pointer(&v)))
	return v, st
}

// getStruct calls a method filling a packed struct through its only argument.
func getStruct[T any](o comObject, slot int) (T, Status) {
	var v T
	buf := make([]byte, binary.Size(&v))
	st := o.call(slot, uintptr(unsafe.Pointer(&buf[0])))
	runtime.KeepAlive(buf)
	if st == StatusOK {
		_ = binary.Read(bytes.NewReader(buf), binary.LittleEndian, &v)
	}
	return v, st
}

func pack(v any) []byte {
	var b bytes.Buffer
	_ = binary.Write(&b, binary.LittleEndian, v)
	return b.Bytes()
}

func unpack(buf []byte, v any) {
	_ = binary.Read(bytes.NewReader(buf), binary.LittleEndian, v)
}

func boolArg(b bool) uintptr {
	if b {
		return 1
	}
	return 0
}

// Vtable slots, in vendor header declaration order.
const (
	slotDevMgrEnumDevices = 3
	slotDevMgrOpenDevice  = 4

	slotEnumNext        = 3
	slotEnumReset       = 5
	slotEnumAssignEvent = 7

	slotDevInfo          = 3
	slotDevCaps          = 4
	slotDevOpenComponent = 5

	slotBalFeatures   = 3
	slotBalOpenSocket = 4

	slotSocketCaps          = 3
	slotSocketLineStatus    = 4
	slotSocketCreateChannel = 5

	slotCtlDetectBaud   = 3
	slotCtlInitLine     = 4
	slotCtlResetLine    = 5
	slotCtlStartLine    = 6
	slotCtlStopLine     = 7
	slotCtlSetAccFilter = 8
	slotCtlAddFilterIds = 9
	slotCtlRemFilterIds = 10

	slotChnInitialize    = 3
	slotChnGetReader     = 4
	slotChnGetWriter     = 5
	slotChnGetStatus     = 6
	slotChnActivate      = 7
	slotChnDeactivate    = 8
	slotChnGetFilterMode = 9
	slotChnSetFilterMode = 10
	slotChnSetAccFilter  = 11
	slotChnAddFilterIds  = 12
	slotChnRemFilterIds  = 13

	slotShdResume       = 3
	slotShdSuspend      = 4
	slotShdReset        = 5
	slotShdGetStatus    = 6
	slotShdAddMessage   = 7
	slotShdRemMessage   = 8
	slotShdStartMessage = 9
	slotShdStopMessage  = 10

	slotFifoLock         = 3
	slotFifoUnlock       = 4
	slotFifoCapacity     = 5
	slotFifoCount        = 6
	slotFifoThreshold    = 7
	slotFifoSetThreshold = 8
	slotFifoAssignEvent  = 9
	slotFifoEntry        = 10
	slotFifoAcquire      = 11
	slotFifoRelease      = 12

	slotLinCtlInitLine     = 3
	slotLinCtlResetLine    = 4
	slotLinCtlStartLine    = 5
	slotLinCtlStopLine     = 6
	slotLinCtlWriteMessage = 7

	slotLinMonInitialize = 3
	slotLinMonGetReader  = 4
	slotLinMonGetStatus  = 5
	slotLinMonActivate   = 6
	slotLinMonDeactivate = 7
)

type comDeviceManager struct {
	comObject
	lib *dllLibrary
}

func (m comDeviceManager) EnumDevices() (EnumDevice, Status) {
	o, st := m.outPtr(slotDevMgrEnumDevices)
	if st != StatusOK {
		return nil, st
	}
	return comEnumDevice{o}, st
}

func (m comDeviceManager) OpenDevice(id uint64) (Device, Status) {
	o, st := m.outPtr(slotDevMgrOpenDevice, uintptr(unsafe.Pointer(&id)))
	if st != StatusOK {
		return nil, st
	}
	return comDevice{comObject: o, lib: m.lib}, st
}

type comEnumDevice struct{ comObject }

func (e comEnumDevice) Next() (DeviceInfo, Status) {
	var info DeviceInfo
	buf := make([]byte, binary.Size(&info))
	var fetched uint32
	st := e.call(slotEnumNext, 1, uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&fetched)))
	runtime.KeepAlive(buf)
	if st != StatusOK {
		return info, st
	}
	if fetched == 0 {
		return info, ENoMoreItems
	}
	unpack(buf, &info)
	return info, st
}

func (e comEnumDevice) Reset() Status { return e.call(slotEnumReset) }

func (e comEnumDevice) AssignEvent(ev Event) Status {
	return e.call(slotEnumAssignEvent, eventHandle(ev))
}

type comDevice struct {
	comObject
	lib *dllLibrary
}

func (d comDevice) DeviceInfo() (DeviceInfo, Status) {
	return getStruct[DeviceInfo](d.comObject, slotDevInfo)
}

func (d comDevice) DeviceCaps() (DeviceCaps, Status) {
	return getStruct[DeviceCaps](d.comObject, slotDevCaps)
}

func (d comDevice) OpenBal() (BalObject, Status) {
	clsid := d.lib.guids[SymbolBalClass]
	iid := d.lib.guids[SymbolBalObject]
	o, st := d.outPtr(slotDevOpenComponent, uintptr(unsafe.Pointer(&clsid)), uintptr(unsafe.Pointer(&iid)))
	if st != StatusOK {
		return nil, st
	}
	return comBal{comObject: o, lib: d.lib}, st
}

type comBal struct {
	comObject
	lib *dllLibrary
}

func (b comBal) Features() (BalFeatures, Status) {
	return getStruct[BalFeatures](b.comObject, slotBalFeatures)
}

func (b comBal) OpenSocket(port uint8, iid IID) (Unknown, Status) {
	guid, ok := b.lib.guids[iid.Symbol()]
	if !ok {
		return nil, ENoInterface
	}
	o, st := b.outPtr(slotBalOpenSocket, uintptr(port), uintptr(unsafe.Pointer(&guid)))
	if st != StatusOK {
		return nil, st
	}
	switch iid {
	case IIDCanSocket:
		return comCanSocket{o}, st
	case IIDCanSocket2:
		return comCanSocket2{o}, st
	case IIDCanControl:
		return comCanControl{o}, st
	case IIDCanControl2:
		return comCanControl2{o}, st
	case IIDCanScheduler:
		return comCanScheduler{comScheduler{o}}, st
	case IIDCanScheduler2:
		return comCanScheduler2{comScheduler{o}}, st
	case IIDLinSocket:
		return comLinSocket{o}, st
	case IIDLinControl:
		return comLinControl{o}, st
	}
	o.Release()
	return nil, ENoInterface
}

type comCanSocket struct{ comObject }

func (s comCanSocket) Capabilities() (CanCapabilities, Status) {
	return getStruct[CanCapabilities](s.comObject, slotSocketCaps)
}

func (s comCanSocket) LineStatus() (CanLineStatus, Status) {
	return getStruct[CanLineStatus](s.comObject, slotSocketLineStatus)
}

func (s comCanSocket) CreateChannel(exclusive bool) (CanChannel, Status) {
	o, st := s.outPtr(slotSocketCreateChannel, boolArg(exclusive))
	if st != StatusOK {
		return nil, st
	}
	return comCanChannel{comChannel{comObject: o, entry: binary.Size(CanMsg{})}}, st
}

type comCanSocket2 struct{ comObject }

func (s comCanSocket2) Capabilities() (CanCapabilities2, Status) {
	return getStruct[CanCapabilities2](s.comObject, slotSocketCaps)
}

func (s comCanSocket2) LineStatus() (CanLineStatus2, Status) {
	return getStruct[CanLineStatus2](s.comObject, slotSocketLineStatus)
}

func (s comCanSocket2) CreateChannel(exclusive bool) (CanChannel2, Status) {
	o, st := s.outPtr(slotSocketCreateChannel, boolArg(exclusive))
	if st != StatusOK {
		return nil, st
	}
	return comCanChannel2{comChannel{comObject: o, entry: binary.Size(CanMsg2{})}}, st
}

type comLineControl struct {
	comObject
	reset, start, stop int
}

func (c comLineControl) ResetLine() Status { return c.call(c.reset) }
func (c comLineControl) StartLine() Status { return c.call(c.start) }
func (c comLineControl) StopLine() Status  { return c.call(c.stop) }

type comIDFilter struct {
	comObject
	acc, add, rem int
}

func (f comIDFilter) SetAccFilter(sel uint8, code, mask uint32) Status {
	return f.call(f.acc, uintptr(sel), uintptr(code), uintptr(mask))
}

func (f comIDFilter) AddFilterIds(sel uint8, code, mask uint32) Status {
	return f.call(f.add, uintptr(sel), uintptr(code), uintptr(mask))
}

func (f comIDFilter) RemFilterIds(sel uint8, code, mask uint32) Status {
	return f.call(f.rem, uintptr(sel), uintptr(code), uintptr(mask))
}

func ctlLine(o comObject) comLineControl {
	return comLineControl{o, slotCtlResetLine, slotCtlStartLine, slotCtlStopLine}
}

func ctlFilter(o comObject) comIDFilter {
	return comIDFilter{o, slotCtlSetAccFilter, slotCtlAddFilterIds, slotCtlRemFilterIds}
}

type comCanControl struct{ comObject }

func (c comCanControl) ResetLine() Status { return ctlLine(c.comObject).ResetLine() }
func (c comCanControl) StartLine() Status { return ctlLine(c.comObject).StartLine() }
func (c comCanControl) StopLine() Status  { return ctlLine(c.comObject).StopLine() }

func (c comCanControl) SetAccFilter(sel uint8, code, mask uint32) Status {
	return ctlFilter(c.comObject).SetAccFilter(sel, code, mask)
}

func (c comCanControl) AddFilterIds(sel uint8, code, mask uint32) Status {
	return ctlFilter(c.comObject).AddFilterIds(sel, code, mask)
}

func (c comCanControl) RemFilterIds(sel uint8, code, mask uint32) Status {
	return ctlFilter(c.comObject).RemFilterIds(sel, code, mask)
}

func (c comCanControl) DetectBaud(timeoutMs uint16, table *CanBtrTable) Status {
	buf := pack(table)
	st := c.call(slotCtlDetectBaud, uintptr(timeoutMs), uintptr(unsafe.Pointer(&buf[0])))
	unpack(buf, table)
	return st
}

func (c comCanControl) InitLine(init CanInitLine) Status {
	buf := pack(&init)
	st := c.call(slotCtlInitLine, uintptr(unsafe.Pointer(&buf[0])))
	runtime.KeepAlive(buf)
	return st
}

type comCanControl2 struct{ comObject }

func (c comCanControl2) ResetLine() Status { return ctlLine(c.comObject).ResetLine() }
func (c comCanControl2) StartLine() Status { return ctlLine(c.comObject).StartLine() }
func (c comCanControl2) StopLine() Status  { return ctlLine(c.comObject).StopLine() }

func (c comCanControl2) SetAccFilter(sel uint8, code, mask uint32) Status {
	return ctlFilter(c.comObject).SetAccFilter(sel, code, mask)
}

func (c comCanControl2) AddFilterIds(sel uint8, code, mask uint32) Status {
	return ctlFilter(c.comObject).AddFilterIds(sel, code, mask)
}

func (c comCanControl2) RemFilterIds(sel uint8, code, mask uint32) Status {
	return ctlFilter(c.comObject).RemFilterIds(sel, code, mask)
}

func (c comCanControl2) DetectBaud(opMode, exMode uint8, timeoutMs uint16, table *CanBtpTable) Status {
	buf := pack(table)
	st := c.call(slotCtlDetectBaud, uintptr(opMode), uintptr(exMode), uintptr(timeoutMs), uintptr(unsafe.Pointer(&buf[0])))
	unpack(buf, table)
	return st
}

func (c comCanControl2) InitLine(init CanInitLine2) Status {
	buf := pack(&init)
	st := c.call(slotCtlInitLine, uintptr(unsafe.Pointer(&buf[0])))
	runtime.KeepAlive(buf)
	return st
}

// comChannel carries the FIFO entry size of the channel's message layout.
type comChannel struct {
	comObject
	entry int
}

func (c comChannel) Activate() Status   { return c.call(slotChnActivate) }
func (c comChannel) Deactivate() Status { return c.call(slotChnDeactivate) }

func (c comChannel) Reader() (FifoReader, Status) {
	o, st := c.outPtr(slotChnGetReader)
	if st != StatusOK {
		return nil, st
	}
	return comFifoReader{comFifo{o, c.entry}}, st
}

func (c comChannel) Writer() (FifoWriter, Status) {
	o, st := c.outPtr(slotChnGetWriter)
	if st != StatusOK {
		return nil, st
	}
	return comFifoWriter{comFifo{o, c.entry}}, st
}

type comCanChannel struct{ comChannel }

func (c comCanChannel) Initialize(rxSize, txSize uint16) Status {
	return c.call(slotChnInitialize, uintptr(rxSize), uintptr(txSize))
}

func (c comCanChannel) Status() (CanChanStatus, Status) {
	return getStruct[CanChanStatus](c.comObject, slotChnGetStatus)
}

type comCanChannel2 struct{ comChannel }

func (c comCanChannel2) Initialize(rxSize, txSize uint16, filterSize uint32, filterMode uint8) Status {
	return c.call(slotChnInitialize, uintptr(rxSize), uintptr(txSize), uintptr(filterSize), uintptr(filterMode))
}

func (c comCanChannel2) Status() (CanChanStatus2, Status) {
	return getStruct[CanChanStatus2](c.comObject, slotChnGetStatus)
}

func (c comCanChannel2) FilterMode(sel uint8) (uint8, Status) {
	var mode uint8
	st := c.call(slotChnGetFilterMode, uintptr(sel), uintptr(unsafe.Pointer(&mode)))
	return mode, st
}

func (c comCanChannel2) SetFilterMode(sel, mode uint8) (uint8, Status) {
	var prev uint8
	st := c.call(slotChnSetFilterMode, uintptr(sel), uintptr(mode), uintptr(unsafe.Pointer(&prev)))
	return prev, st
}

func (c comCanChannel2) filter() comIDFilter {
	return comIDFilter{c.comObject, slotChnSetAccFilter, slotChnAddFilterIds, slotChnRemFilterIds}
}

func (c comCanChannel2) SetAccFilter(sel uint8, code, mask uint32) Status {
	return c.filter().SetAccFilter(sel, code, mask)
}

func (c comCanChannel2) AddFilterIds(sel uint8, code, mask uint32) Status {
	return c.filter().AddFilterIds(sel, code, mask)
}

func (c comCanChannel2) RemFilterIds(sel uint8, code, mask uint32) Status {
	return c.filter().RemFilterIds(sel, code, mask)
}

type comScheduler struct{ comObject }

func (s comScheduler) Suspend() Status { return s.call(slotShdSuspend) }
func (s comScheduler) Resume() Status  { return s.call(slotShdResume) }
func (s comScheduler) Reset() Status   { return s.call(slotShdReset) }

func (s comScheduler) Status() (CanSchedulerStatus, Status) {
	return getStruct[CanSchedulerStatus](s.comObject, slotShdGetStatus)
}

func (s comScheduler) addPacked(buf []byte) (uint32, Status) {
	var handle uint32
	st := s.call(slotShdAddMessage, uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&handle)))
	runtime.KeepAlive(buf)
	return handle, st
}

func (s comScheduler) RemMessage(handle uint32) Status {
	return s.call(slotShdRemMessage, uintptr(handle))
}

func (s comScheduler) StartMessage(handle uint32, repeat uint16) Status {
	return s.call(slotShdStartMessage, uintptr(handle), uintptr(repeat))
}

func (s comScheduler) StopMessage(handle uint32) Status {
	return s.call(slotShdStopMessage, uintptr(handle))
}

type comCanScheduler struct{ comScheduler }

func (s comCanScheduler) AddMessage(msg CanCyclicTxMsg) (uint32, Status) {
	return s.addPacked(pack(&msg))
}

type comCanScheduler2 struct{ comScheduler }

func (s comCanScheduler2) AddMessage(msg CanCyclicTxMsg2) (uint32, Status) {
	return s.addPacked(pack(&msg))
}

type comFifo struct {
	comObject
	entry int
}

func (f comFifo) EntrySize() int               { return f.entry }
func (f comFifo) Capacity() (uint16, Status)   { return f.u16(slotFifoCapacity) }
func (f comFifo) Threshold() (uint16, Status)  { return f.u16(slotFifoThreshold) }
func (f comFifo) SetThreshold(n uint16) Status { return f.call(slotFifoSetThreshold, uintptr(n)) }
func (f comFifo) Lock() Status                 { return f.call(slotFifoLock) }
func (f comFifo) Unlock() Status               { return f.call(slotFifoUnlock) }

func (f comFifo) AssignEvent(ev Event) Status {
	return f.call(slotFifoAssignEvent, eventHandle(ev))
}

func (f comFifo) acquire(max uint16) ([]byte, uint16, Status) {
	var p uintptr
	var n uint16
	st := f.call(slotFifoAcquire, uintptr(unsafe.Pointer(&p)), uintptr(unsafe.Pointer(&n)))
	if st != StatusOK || p == 0 {
		return nil, 0, st
	}
	if n > max {
		n = max
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), int(n)*f.entry), n, st
}

func (f comFifo) release(count uint16) Status {
	return f.call(slotFifoRelease, uintptr(count))
}

type comFifoReader struct{ comFifo }

func (f comFifoReader) FillCount() (uint16, Status) { return f.u16(slotFifoCount) }

func (f comFifoReader) GetDataEntry(entry []byte) Status {
	st := f.call(slotFifoEntry, uintptr(unsafe.Pointer(&entry[0])))
	runtime.KeepAlive(entry)
	return st
}

func (f comFifoReader) AcquireRead(max uint16) ([]byte, uint16, Status) { return f.acquire(max) }
func (f comFifoReader) ReleaseRead(count uint16) Status                 { return f.release(count) }

type comFifoWriter struct{ comFifo }

func (f comFifoWriter) FreeCount() (uint16, Status) { return f.u16(slotFifoCount) }

func (f comFifoWriter) PutDataEntry(entry []byte) Status {
	st := f.call(slotFifoEntry, uintptr(unsafe.Pointer(&entry[0])))
	runtime.KeepAlive(entry)
	return st
}

func (f comFifoWriter) AcquireWrite(max uint16) ([]byte, uint16, Status) { return f.acquire(max) }
func (f comFifoWriter) ReleaseWrite(count uint16) Status                 { return f.release(count) }

type comLinSocket struct{ comObject }

func (s comLinSocket) Capabilities() (LinCapabilities, Status) {
	return getStruct[LinCapabilities](s.comObject, slotSocketCaps)
}

func (s comLinSocket) LineStatus() (LinLineStatus, Status) {
	return getStruct[LinLineStatus](s.comObject, slotSocketLineStatus)
}

func (s comLinSocket) CreateMonitor(exclusive bool) (LinMonitor, Status) {
	o, st := s.outPtr(slotSocketCreateChannel, boolArg(exclusive))
	if st != StatusOK {
		return nil, st
	}
	return comLinMonitor{o}, st
}

type comLinControl struct{ comObject }

func (c comLinControl) ResetLine() Status { return c.call(slotLinCtlResetLine) }
func (c comLinControl) StartLine() Status { return c.call(slotLinCtlStartLine) }
func (c comLinControl) StopLine() Status  { return c.call(slotLinCtlStopLine) }

func (c comLinControl) InitLine(init LinInitLine) Status {
	buf := pack(&init)
	st := c.call(slotLinCtlInitLine, uintptr(unsafe.Pointer(&buf[0])))
	runtime.KeepAlive(buf)
	return st
}

func (c comLinControl) WriteMessage(send bool, msg LinMsg) Status {
	buf := pack(&msg)
	st := c.call(slotLinCtlWriteMessage, boolArg(send), uintptr(unsafe.Pointer(&buf[0])))
	runtime.KeepAlive(buf)
	return st
}

type comLinMonitor struct{ comObject }

func (m comLinMonitor) Initialize(fifoSize uint16) Status {
	return m.call(slotLinMonInitialize, uintptr(fifoSize))
}

func (m comLinMonitor) Activate() Status   { return m.call(slotLinMonActivate) }
func (m comLinMonitor) Deactivate() Status { return m.call(slotLinMonDeactivate) }

func (m comLinMonitor) Status() (LinMonitorStatus, Status) {
	return getStruct[LinMonitorStatus](m.comObject, slotLinMonGetStatus)
}

func (m comLinMonitor) Reader() (FifoReader, Status) {
	o, st := m.outPtr(slotLinMonGetReader)
	if st != StatusOK {
		return nil, st
	}
	return comFifoReader{comFifo{o, binary.Size(LinMsg{})}}, st
}
