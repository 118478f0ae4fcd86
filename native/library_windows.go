//go:build windows

package native

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

type dllLibrary struct {
	dll   *syscall.LazyDLL
	guids map[string]GUID

	initializeProc    *syscall.LazyProc
	versionProc       *syscall.LazyProc
	deviceManagerProc *syscall.LazyProc
	formatErrorWProc  *syscall.LazyProc
	formatErrorProc   *syscall.LazyProc
}

// Load opens vciapi.dll and the interface identifiers of the installed SDK.
func Load() (Library, error) {
	dll, path, err := loadDLL()
	if err != nil {
		return nil, err
	}
	guids, err := loadGUIDs(path)
	if err != nil {
		return nil, err
	}
	lib := &dllLibrary{
		dll:               dll,
		guids:             guids,
		initializeProc:    dll.NewProc("VciInitialize"),
		deviceManagerProc: dll.NewProc("VciGetDeviceManager"),
		formatErrorWProc:  dll.NewProc("VciFormatErrorW"),
		formatErrorProc:   dll.NewProc("VciFormatError"),
	}
	// VciGetVersion2 only exists on older drivers.
	if proc := dll.NewProc("VciGetVersion2"); proc.Find() == nil {
		lib.versionProc = proc
	} else {
		lib.versionProc = dll.NewProc("VciGetVersion")
	}
	if err := lib.initializeProc.Find(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lib, nil
}

func (l *dllLibrary) Initialize() Status {
	r, _, _ := l.initializeProc.Call()
	return Status(r)
}

func (l *dllLibrary) Version() (VersionInfo, Status) {
	var info VersionInfo
	if l.versionProc.Find() != nil {
		return info, ENotImpl
	}
	buf := make([]byte, 64)
	r, _, _ := l.versionProc.Call(uintptr(unsafe.Pointer(&buf[0])))
	if Status(r) == StatusOK {
		unpack(buf, &info)
	}
	return info, Status(r)
}

func (l *dllLibrary) DeviceManager() (DeviceManager, Status) {
	if l.deviceManagerProc.Find() != nil {
		return nil, ENotImpl
	}
	var p uintptr
	r, _, _ := l.deviceManagerProc.Call(uintptr(unsafe.Pointer(&p)))
	if Status(r) != StatusOK {
		return nil, Status(r)
	}
	return comDeviceManager{comObject: comObject{ptr: p}, lib: l}, StatusOK
}

func (l *dllLibrary) FormatError(code Status) (string, Status) {
	if l.formatErrorWProc.Find() == nil {
		var buf [256]uint16
		l.formatErrorWProc.Call(uintptr(code), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)-1))
		return windows.UTF16ToString(buf[:]), StatusOK
	}
	if l.formatErrorProc.Find() == nil {
		var buf [256]byte
		l.formatErrorProc.Call(uintptr(code), uintptr(unsafe.Pointer(&buf[0])))
		return windows.ByteSliceToString(buf[:]), StatusOK
	}
	return "", ENotImpl
}

func (l *dllLibrary) NewEvent(manualReset bool) (Event, Status) {
	var manual uint32
	if manualReset {
		manual = 1
	}
	h, err := windows.CreateEvent(nil, manual, 0, nil)
	if err != nil {
		var errno syscall.Errno
		if errors.As(err, &errno) {
			return nil, Status(0x80070000 | uint32(errno))
		}
		return nil, EFail
	}
	return &winEvent{h: h}, StatusOK
}

func (l *dllLibrary) Close() error {
	if l.dll == nil {
		return nil
	}
	h := windows.Handle(l.dll.Handle())
	l.dll = nil
	if h == 0 {
		return nil
	}
	return windows.FreeLibrary(h)
}

type winEvent struct {
	h windows.Handle
}

func (e *winEvent) Handle() uintptr { return uintptr(e.h) }

func (e *winEvent) Set() Status {
	if err := windows.SetEvent(e.h); err != nil {
		return EFail
	}
	return StatusOK
}

func (e *winEvent) Reset() Status {
	if err := windows.ResetEvent(e.h); err != nil {
		return EFail
	}
	return StatusOK
}

func (e *winEvent) Wait(timeoutMs uint32) bool {
	ev, err := windows.WaitForSingleObject(e.h, timeoutMs)
	return err == nil && ev == windows.WAIT_OBJECT_0
}

func (e *winEvent) Close() error {
	if e.h == 0 {
		return nil
	}
	err := windows.CloseHandle(e.h)
	e.h = 0
	return err
}

func eventHandle(ev Event) uintptr {
	if ev == nil {
		return 0
	}
	return ev.Handle()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
