package sim

import (
	"sync"

	"github.com/google/uuid"

	"github.com/LoveWonYoung/vci4go/native"
)

// DeviceConfig describes a simulated adapter.
type DeviceConfig struct {
	Description  string
	Manufacturer string
	// HardwareID is stored as characters when it starts with "HW",
	// otherwise HardwareGUID is used.
	HardwareID   string
	HardwareGUID uuid.UUID
	DeviceClass  uuid.UUID
	FwMajor      uint16
	FwMinor      uint16
	Ports        []PortConfig
}

// PortConfig describes one bus socket of a device.
type PortConfig struct {
	Bus      uint8 // native.BusTypeCan, native.BusTypeLin, ...
	Ctrl     uint8
	Features uint32
	// ClockFreq defaults to 80 MHz for CAN and 1 MHz for LIN.
	ClockFreq uint32
	// BusBtr0/BusBtr1 is the bit timing DetectBaud recognises on the bus;
	// BusBitrate2 the SDR timing for the FD variant.
	BusBtr0     uint8
	BusBtr1     uint8
	BusBitrate2 native.CanBtp
}

// DefaultCanPort is an SJA1000-like port with every classic feature.
var DefaultCanPort = PortConfig{
	Bus:      native.BusTypeCan,
	Ctrl:     5,
	Features: 0x1 | 0x4 | 0x8 | 0x10 | 0x20 | 0x40 | 0x80 | 0x100 | 0x400,
	BusBtr0:  0x00,
	BusBtr1:  0x1C,
}

// DefaultCanFdPort is an IFI CAN FD port.
var DefaultCanFdPort = PortConfig{
	Bus:         native.BusTypeCan,
	Ctrl:        13,
	Features:    0x1 | 0x4 | 0x8 | 0x10 | 0x20 | 0x40 | 0x80 | 0x100 | 0x400 | 0x2000 | 0x4000 | 0x8000,
	BusBtr0:     0x00,
	BusBtr1:     0x1C,
	BusBitrate2: native.CanBtp{Mode: 0, BPS: 500000, TS1: 6400, TS2: 1600, SJW: 1600, TDO: 0},
}

// DefaultLinPort is a LIN master capable port.
var DefaultLinPort = PortConfig{
	Bus:      native.BusTypeLin,
	Ctrl:     1,
	Features: 0x1 | 0x2 | 0x4 | 0x8,
}

// Device is a simulated adapter plugged into the driver.
type Device struct {
	drv   *Driver
	id    uint64
	info  native.DeviceInfo
	cfg   DeviceConfig
	ports []*port
}

func newDevice(drv *Driver, id uint64, cfg DeviceConfig) *Device {
	dev := &Device{drv: drv, id: id, cfg: cfg}

	info := native.DeviceInfo{
		VciObjectID:   id,
		DeviceClass:   guidFrom(cfg.DeviceClass),
		DriverMajor:   4,
		DriverMinor:   0,
		DriverBuild:   1300,
		HardwareMajor: 1,
		HardwareMinor: 2,
		HardwareBuild: 3,
		DriverRelease: 1,
	}
	if len(cfg.HardwareID) >= 2 && cfg.HardwareID[:2] == "HW" {
		copy(info.UniqueHardwareID[:], cfg.HardwareID)
	} else {
		info.UniqueHardwareID = guidFrom(cfg.HardwareGUID)
	}
	copy(info.Description[:len(info.Description)-1], cfg.Description)
	copy(info.Manufacturer[:len(info.Manufacturer)-1], cfg.Manufacturer)
	dev.info = info

	for i, pc := range cfg.Ports {
		dev.ports = append(dev.ports, newPort(drv, i, pc))
	}
	return dev
}

func (d *Device) ID() uint64 { return d.id }

// Port returns the bus behind socket n for driving it from tests.
func (d *Device) Port(n int) *Port {
	return &Port{p: d.ports[n]}
}

type deviceManager struct {
	object
	drv *Driver
}

func (m *deviceManager) EnumDevices() (native.EnumDevice, native.Status) {
	if st := m.drv.fault("DeviceManager.EnumDevices"); st != native.StatusOK {
		return nil, st
	}
	e := &enumDevice{drv: m.drv, devices: m.drv.snapshot()}
	m.AddRef()
	e.init(m.drv, func() {
		m.drv.mu.Lock()
		delete(m.drv.listEvents, e)
		m.drv.mu.Unlock()
		m.Release()
	})
	return e, native.StatusOK
}

func (m *deviceManager) OpenDevice(id uint64) (native.Device, native.Status) {
	if st := m.drv.fault("DeviceManager.OpenDevice"); st != native.StatusOK {
		return nil, st
	}
	dev := m.drv.lookup(id)
	if dev == nil {
		return nil, native.ENoSuchDevice
	}
	obj := &deviceObject{dev: dev}
	obj.init(m.drv, nil)
	return obj, native.StatusOK
}

type enumDevice struct {
	object
	drv *Driver

	mu      sync.Mutex
	devices []*Device
	pos     int
}

func (e *enumDevice) Next() (native.DeviceInfo, native.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pos >= len(e.devices) {
		return native.DeviceInfo{}, native.ENoMoreItems
	}
	info := e.devices[e.pos].info
	e.pos++
	return info, native.StatusOK
}

func (e *enumDevice) Reset() native.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.devices = e.drv.snapshot()
	e.pos = 0
	return native.StatusOK
}

func (e *enumDevice) AssignEvent(ev native.Event) native.Status {
	e.drv.mu.Lock()
	defer e.drv.mu.Unlock()
	if ev == nil {
		delete(e.drv.listEvents, e)
		return native.StatusOK
	}
	e.drv.listEvents[e] = ev
	return native.StatusOK
}

type deviceObject struct {
	object
	dev *Device
}

func (o *deviceObject) DeviceInfo() (native.DeviceInfo, native.Status) {
	return o.dev.info, native.StatusOK
}

func (o *deviceObject) DeviceCaps() (native.DeviceCaps, native.Status) {
	if st := o.drv.fault("Device.DeviceCaps"); st != native.StatusOK {
		return native.DeviceCaps{}, st
	}
	var caps native.DeviceCaps
	for i, p := range o.dev.ports {
		if i >= native.MaxBusCtrls {
			break
		}
		caps.BusCtrlTypes[i] = native.BusCtrlType(p.cfg.Bus, p.cfg.Ctrl)
		caps.BusCtrlCount++
	}
	return caps, native.StatusOK
}

func (o *deviceObject) OpenBal() (native.BalObject, native.Status) {
	if st := o.drv.fault("Device.OpenBal"); st != native.StatusOK {
		return nil, st
	}
	b := &balObject{dev: o.dev}
	o.AddRef()
	b.init(o.drv, func() { o.Release() })
	return b, native.StatusOK
}

type balObject struct {
	object
	dev *Device
}

func (b *balObject) Features() (native.BalFeatures, native.Status) {
	if st := b.drv.fault("Bal.Features"); st != native.StatusOK {
		return native.BalFeatures{}, st
	}
	f := native.BalFeatures{
		FwMajor: b.dev.cfg.FwMajor,
		FwMinor: b.dev.cfg.FwMinor,
	}
	for i, p := range b.dev.ports {
		if i >= native.MaxBusSockets {
			break
		}
		f.BusSocketType[i] = native.BusCtrlType(p.cfg.Bus, p.cfg.Ctrl)
		f.BusSocketCount++
	}
	return f, native.StatusOK
}

func (b *balObject) OpenSocket(portNo uint8, iid native.IID) (native.Unknown, native.Status) {
	if st := b.drv.fault("Bal.OpenSocket"); st != native.StatusOK {
		return nil, st
	}
	if int(portNo) >= len(b.dev.ports) {
		return nil, native.EInvalidIndex
	}
	p := b.dev.ports[portNo]

	var (
		obj interface {
			native.Unknown
			init(*Driver, func())
		}
		onFinal func()
	)
	switch p.cfg.Bus {
	case native.BusTypeCan:
		switch iid {
		case native.IIDCanSocket:
			obj = &canSocket{port: p}
		case native.IIDCanSocket2:
			obj = &canSocket2{canSocket{port: p}}
		case native.IIDCanControl, native.IIDCanControl2:
			if !p.claimControl() {
				return nil, native.EAccessDenied
			}
			ctl := &canControl{port: p}
			if iid == native.IIDCanControl {
				obj = ctl
			} else {
				obj = &canControl2{ctl}
			}
			onFinal = p.releaseControl
		case native.IIDCanScheduler, native.IIDCanScheduler2:
			if p.cfg.Features&0x80 == 0 {
				return nil, native.ENotSupported
			}
			shd := &canScheduler{port: p}
			if iid == native.IIDCanScheduler {
				obj = shd
			} else {
				obj = &canScheduler2{shd}
			}
		}
	case native.BusTypeLin:
		switch iid {
		case native.IIDLinSocket:
			obj = &linSocket{port: p}
		case native.IIDLinControl:
			if !p.claimControl() {
				return nil, native.EAccessDenied
			}
			obj = &linControl{port: p}
			onFinal = p.releaseControl
		}
	}
	if obj == nil {
		return nil, native.ENoInterface
	}
	b.AddRef()
	obj.init(b.drv, func() {
		if onFinal != nil {
			onFinal()
		}
		b.Release()
	})
	return obj, native.StatusOK
}
