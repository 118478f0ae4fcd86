// Package sim is an in-memory VCI driver. It implements the native
// interface set with loopback CAN ports and LIN ports, counts every native
// reference it hands out and lets tests inject failing status codes.
package sim

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/LoveWonYoung/vci4go/native"
)

// Driver is the simulated vciapi.dll.
type Driver struct {
	mu          sync.Mutex
	start       time.Time
	initialized bool
	closed      bool
	version     native.VersionInfo
	devices     []*Device
	nextID      uint64
	listEvents  map[*enumDevice]native.Event
	injected    map[string]native.Status

	live atomic.Int64
}

var _ native.Library = (*Driver)(nil)

func New() *Driver {
	return &Driver{
		start:      time.Now(),
		version:    native.VersionInfo{VciMajor: 4, VciMinor: 0, VciRevision: 1300, VciBuild: 0},
		nextID:     0x1000,
		listEvents: make(map[*enumDevice]native.Event),
		injected:   make(map[string]native.Status),
	}
}

// Live returns the number of native objects still referenced.
func (d *Driver) Live() int { return int(d.live.Load()) }

// Inject makes the next call of op (for example "CanControl.InitLine")
// return st.
func (d *Driver) Inject(op string, st native.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.injected[op] = st
}

func (d *Driver) fault(op string) native.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.injected[op]
	if !ok {
		return native.StatusOK
	}
	delete(d.injected, op)
	return st
}

func (d *Driver) timestamp() uint32 {
	return uint32(time.Since(d.start).Microseconds())
}

// SetVersion overrides the version reported by the library.
func (d *Driver) SetVersion(v native.VersionInfo) {
	d.mu.Lock()
	d.version = v
	d.mu.Unlock()
}

func (d *Driver) Initialize() native.Status {
	if st := d.fault("Initialize"); st != native.StatusOK {
		return st
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized = true
	return native.StatusOK
}

func (d *Driver) ready() native.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized || d.closed {
		return native.ENotInitialized
	}
	return native.StatusOK
}

func (d *Driver) Version() (native.VersionInfo, native.Status) {
	if st := d.fault("Version"); st != native.StatusOK {
		return native.VersionInfo{}, st
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version, native.StatusOK
}

func (d *Driver) DeviceManager() (native.DeviceManager, native.Status) {
	if st := d.ready(); st != native.StatusOK {
		return nil, st
	}
	if st := d.fault("DeviceManager"); st != native.StatusOK {
		return nil, st
	}
	m := &deviceManager{drv: d}
	m.init(d, nil)
	return m, native.StatusOK
}

var errorTexts = map[native.Status]string{
	native.ETimeout:        "The operation timed out.",
	native.EAccessDenied:   "Access denied.",
	native.EInvalidArg:     "One or more arguments are invalid.",
	native.ERxQueueEmpty:   "The receive queue is empty.",
	native.ETxQueueFull:    "The transmit queue is full.",
	native.ENoMoreItems:    "No more items available.",
	native.EInvalidState:   "Invalid state.",
	native.ENotInitialized: "Object not initialized.",
	native.ENoSuchDevice:   "No such device.",
	native.ENotSupported:   "The requested operation is not supported.",
}

func (d *Driver) FormatError(code native.Status) (string, native.Status) {
	if st := d.fault("FormatError"); st != native.StatusOK {
		return "", st
	}
	if text, ok := errorTexts[code]; ok {
		return text, native.StatusOK
	}
	return fmt.Sprintf("Error 0x%08X.", uint32(code)), native.StatusOK
}

func (d *Driver) NewEvent(manualReset bool) (native.Event, native.Status) {
	if st := d.fault("NewEvent"); st != native.StatusOK {
		return nil, st
	}
	return NewEvent(manualReset), native.StatusOK
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// AddDevice plugs a new device in and signals every device list event.
func (d *Driver) AddDevice(cfg DeviceConfig) *Device {
	d.mu.Lock()
	d.nextID++
	dev := newDevice(d, d.nextID, cfg)
	d.devices = append(d.devices, dev)
	events := d.eventsLocked()
	d.mu.Unlock()

	for _, ev := range events {
		ev.Set()
	}
	return dev
}

// RemoveDevice unplugs dev. Objects already opened on it keep working.
func (d *Driver) RemoveDevice(dev *Device) {
	d.mu.Lock()
	for i, cur := range d.devices {
		if cur == dev {
			d.devices = append(d.devices[:i], d.devices[i+1:]...)
			break
		}
	}
	events := d.eventsLocked()
	d.mu.Unlock()

	for _, ev := range events {
		ev.Set()
	}
}

func (d *Driver) eventsLocked() []native.Event {
	events := make([]native.Event, 0, len(d.listEvents))
	for _, ev := range d.listEvents {
		events = append(events, ev)
	}
	return events
}

func (d *Driver) snapshot() []*Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Device(nil), d.devices...)
}

func (d *Driver) lookup(id uint64) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dev := range d.devices {
		if dev.id == id {
			return dev
		}
	}
	return nil
}

// object is the reference counting core of every simulated interface.
type object struct {
	drv     *Driver
	refs    atomic.Int32
	onFinal func()
}

func (o *object) init(drv *Driver, onFinal func()) {
	o.drv = drv
	o.onFinal = onFinal
	o.refs.Store(1)
	drv.live.Add(1)
}

func (o *object) AddRef() uint32 {
	return uint32(o.refs.Add(1))
}

func (o *object) Release() uint32 {
	n := o.refs.Add(-1)
	switch {
	case n == 0:
		o.drv.live.Add(-1)
		if o.onFinal != nil {
			o.onFinal()
		}
	case n < 0:
		panic("sim: native object released more often than referenced")
	}
	return uint32(n)
}

// Refs returns the current reference count.
func (o *object) Refs() int { return int(o.refs.Load()) }

func encode(v any) []byte {
	var b bytes.Buffer
	_ = binary.Write(&b, binary.LittleEndian, v)
	return b.Bytes()
}

func decode(buf []byte, v any) error {
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, v)
}

func guidFrom(u uuid.UUID) native.GUID { return native.GUIDFromUUID(u) }
