package vci

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/LoveWonYoung/vci4go/native"
)

// DeviceManager gives access to the adapters known to the driver.
type DeviceManager struct {
	lib native.Library
	h   *ref[native.DeviceManager]
}

// DeviceList opens the list of installed devices.
func (m *DeviceManager) DeviceList() (*DeviceList, error) {
	return call(m.h, func(mgr native.DeviceManager) (*DeviceList, error) {
		en, st := mgr.EnumDevices()
		if err := statusError(m.lib, "enumerate devices", st); err != nil {
			return nil, err
		}
		return &DeviceList{lib: m.lib, mgr: share(mgr), events: newRef(en)}, nil
	})
}

// OpenDevice opens the device with the given VCI object id.
func (m *DeviceManager) OpenDevice(id uint64) (*Device, error) {
	return call(m.h, func(mgr native.DeviceManager) (*Device, error) {
		dev, st := mgr.OpenDevice(id)
		if err := statusError(m.lib, fmt.Sprintf("open device %016X", id), st); err != nil {
			return nil, err
		}
		info, st := dev.DeviceInfo()
		if err := statusError(m.lib, "get device info", st); err != nil {
			dev.Release()
			return nil, err
		}
		d := newDevice(m.lib, mgr, info)
		d.dev = dev
		return d, nil
	})
}

func (m *DeviceManager) Close() error { return m.h.close() }

// DeviceList is the live list of installed devices.
type DeviceList struct {
	lib    native.Library
	mgr    *ref[native.DeviceManager]
	events *ref[native.EnumDevice]
}

// AssignEvent makes the list signal ev whenever a device is added or
// removed. A nil ev detaches the current event.
func (l *DeviceList) AssignEvent(ev *Event) error {
	raw, err := nativeEvent(ev)
	if err != nil {
		return err
	}
	return l.events.do(func(en native.EnumDevice) error {
		return statusError(l.lib, "assign event", en.AssignEvent(raw))
	})
}

// Enumerator starts a new enumeration positioned before the first device.
func (l *DeviceList) Enumerator() (*DeviceEnumerator, error) {
	return call(l.mgr, func(mgr native.DeviceManager) (*DeviceEnumerator, error) {
		en, st := mgr.EnumDevices()
		if err := statusError(l.lib, "enumerate devices", st); err != nil {
			return nil, err
		}
		return &DeviceEnumerator{lib: l.lib, mgr: share(mgr), h: newRef(en)}, nil
	})
}

// Devices returns every device currently installed. The caller closes them.
func (l *DeviceList) Devices() ([]*Device, error) {
	en, err := l.Enumerator()
	if err != nil {
		return nil, err
	}
	defer en.Close()

	var devices []*Device
	for en.Next() {
		dev, err := en.Current()
		if err != nil {
			closeAll(devices)
			return nil, err
		}
		devices = append(devices, dev)
	}
	if err := en.Err(); err != nil {
		closeAll(devices)
		return nil, err
	}
	return devices, nil
}

func (l *DeviceList) Close() error {
	l.events.close()
	return l.mgr.close()
}

func closeAll(devices []*Device) {
	for _, d := range devices {
		d.Close()
	}
}

// DeviceEnumerator walks a device list.
//
//	for en.Next() {
//		dev, err := en.Current()
//		...
//	}
//	if err := en.Err(); err != nil { ... }
type DeviceEnumerator struct {
	lib native.Library
	mgr *ref[native.DeviceManager]
	h   *ref[native.EnumDevice]

	mu      sync.Mutex
	current *native.DeviceInfo
	err     error
}

// Next advances to the next device and reports whether there is one.
func (e *DeviceEnumerator) Next() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = nil
	if e.err != nil {
		return false
	}
	info, err := call(e.h, func(en native.EnumDevice) (native.DeviceInfo, error) {
		info, st := en.Next()
		return info, statusError(e.lib, "next device", st)
	})
	switch {
	case errors.Is(err, ErrNoMoreItems):
		return false
	case err != nil:
		e.err = err
		return false
	}
	e.current = &info
	return true
}

// Current returns the device Next moved to. It fails with
// ErrInvalidOperation before the first Next and after the last device.
func (e *DeviceEnumerator) Current() (*Device, error) {
	e.mu.Lock()
	info := e.current
	e.mu.Unlock()
	if info == nil {
		return nil, ErrInvalidOperation
	}
	return call(e.mgr, func(mgr native.DeviceManager) (*Device, error) {
		return newDevice(e.lib, mgr, *info), nil
	})
}

// Reset moves the enumerator back before the first device.
func (e *DeviceEnumerator) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = nil
	e.err = nil
	return e.h.do(func(en native.EnumDevice) error {
		return statusError(e.lib, "reset enumerator", en.Reset())
	})
}

func (e *DeviceEnumerator) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *DeviceEnumerator) Close() error {
	e.h.close()
	return e.mgr.close()
}

// Version is a major.minor.build version triple.
type Version struct {
	Major uint32
	Minor uint32
	Build uint32
}

func (v Version) String() string { return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build) }

// HardwareID is the unique id of an adapter. Newer adapters carry a
// printable serial number starting with "HW", older ones a GUID.
type HardwareID [16]byte

func (h HardwareID) IsGUID() bool { return !(h[0] == 'H' && h[1] == 'W') }

func (h HardwareID) GUID() uuid.UUID { return native.GUID(h).UUID() }

func (h HardwareID) String() string {
	if h.IsGUID() {
		return h.GUID().String()
	}
	return cstring(h[:])
}

// CtrlInfo describes one bus controller of a device.
type CtrlInfo struct {
	BusType  BusType
	CtrlType uint8
}

func ctrlInfo(busCtrlType uint16) CtrlInfo {
	return CtrlInfo{
		BusType:  BusType(native.BusType(busCtrlType)),
		CtrlType: native.CtrlType(busCtrlType),
	}
}

func (c CtrlInfo) String() string {
	return fmt.Sprintf("%s controller %d", c.BusType, c.CtrlType)
}

// DeviceInfo is the snapshot of a device taken when it was enumerated.
type DeviceInfo struct {
	VciObjectID      uint64
	DeviceClass      uuid.UUID
	DriverVersion    Version
	HardwareVersion  Version
	HardwareBranch   uint8
	UniqueHardwareID HardwareID
	Description      string
	Manufacturer     string
}

func newDeviceInfo(info native.DeviceInfo) DeviceInfo {
	return DeviceInfo{
		VciObjectID: info.VciObjectID,
		DeviceClass: info.DeviceClass.UUID(),
		DriverVersion: Version{
			Major: uint32(info.DriverMajor),
			Minor: uint32(info.DriverMinor),
			Build: uint32(info.DriverBuild),
		},
		HardwareVersion: Version{
			Major: uint32(info.HardwareMajor),
			Minor: uint32(info.HardwareMinor),
			Build: uint32(info.HardwareBuild),
		},
		HardwareBranch:   info.HardwareBranch,
		UniqueHardwareID: HardwareID(info.UniqueHardwareID),
		Description:      cstring(info.Description[:]),
		Manufacturer:     cstring(info.Manufacturer[:]),
	}
}

// Device is one adapter. Its DeviceInfo fields remain readable after Close.
type Device struct {
	DeviceInfo

	lib native.Library
	mgr *ref[native.DeviceManager]

	mu  sync.Mutex
	dev native.Device
}

func newDevice(lib native.Library, mgr native.DeviceManager, info native.DeviceInfo) *Device {
	return &Device{
		DeviceInfo: newDeviceInfo(info),
		lib:        lib,
		mgr:        share(mgr),
	}
}

// open returns the native device with a reference owned by the caller. The
// device object is opened once and cached.
func (d *Device) open() (native.Device, error) {
	return call(d.mgr, func(mgr native.DeviceManager) (native.Device, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.dev == nil {
			dev, st := mgr.OpenDevice(d.VciObjectID)
			if err := statusError(d.lib, fmt.Sprintf("open device %016X", d.VciObjectID), st); err != nil {
				return nil, err
			}
			d.dev = dev
		}
		d.dev.AddRef()
		return d.dev, nil
	})
}

// DeviceCapabilities holds the raw bus controller types of a device. Each
// entry carries the bus type in the high byte and the controller type in the
// low byte.
type DeviceCapabilities struct {
	BusCtrlTypes []uint16
}

// DeviceCapabilities reads the controller table of the device.
func (d *Device) DeviceCapabilities() (DeviceCapabilities, error) {
	dev, err := d.open()
	if err != nil {
		return DeviceCapabilities{}, err
	}
	defer dev.Release()

	caps, st := dev.DeviceCaps()
	if err := statusError(d.lib, "get device caps", st); err != nil {
		return DeviceCapabilities{}, err
	}
	n := min(int(caps.BusCtrlCount), native.MaxBusCtrls)
	return DeviceCapabilities{BusCtrlTypes: append([]uint16(nil), caps.BusCtrlTypes[:n]...)}, nil
}

// Equipment lists the bus controllers of the device.
func (d *Device) Equipment() ([]CtrlInfo, error) {
	caps, err := d.DeviceCapabilities()
	if err != nil {
		return nil, err
	}
	out := make([]CtrlInfo, len(caps.BusCtrlTypes))
	for i, t := range caps.BusCtrlTypes {
		out[i] = ctrlInfo(t)
	}
	return out, nil
}

// OpenBusAccessLayer opens the BAL of the device.
func (d *Device) OpenBusAccessLayer() (*Bal, error) {
	dev, err := d.open()
	if err != nil {
		return nil, err
	}
	defer dev.Release()

	bal, st := dev.OpenBal()
	if err := statusError(d.lib, "open bal", st); err != nil {
		return nil, err
	}
	features, st := bal.Features()
	if err := statusError(d.lib, "get bal features", st); err != nil {
		bal.Release()
		return nil, err
	}
	return newBal(d.lib, bal, features), nil
}

func (d *Device) String() string {
	return fmt.Sprintf("[%016X] %s - %s", d.VciObjectID, d.Manufacturer, d.Description)
}

func (d *Device) Close() error {
	if d.mgr.isClosed() {
		return nil
	}
	d.mu.Lock()
	if d.dev != nil {
		d.dev.Release()
		d.dev = nil
	}
	d.mu.Unlock()
	return d.mgr.close()
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
