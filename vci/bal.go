package vci

import (
	"fmt"

	"github.com/LoveWonYoung/vci4go/native"
)

type BusType uint8

const (
	BusUnknown BusType = 0
	BusCan     BusType = native.BusTypeCan
	BusLin     BusType = native.BusTypeLin
	BusFlexRay BusType = native.BusTypeFlexRay
)

func (b BusType) String() string {
	switch b {
	case BusCan:
		return "CAN"
	case BusLin:
		return "LIN"
	case BusFlexRay:
		return "FlexRay"
	}
	return "???"
}

// BalFeatures is the feature snapshot of a bus access layer.
type BalFeatures struct {
	FirmwareVersion Version
	BusSockets      []CtrlInfo
}

// BalResource describes one bus socket. BusTypeIndex counts sockets of the
// same bus type in a row.
type BalResource struct {
	Port         uint8
	BusType      BusType
	BusTypeIndex uint8
}

// BusName returns names like "CAN-1" or "LIN-2".
func (r BalResource) BusName() string {
	return fmt.Sprintf("%s-%d", r.BusType, int(r.BusTypeIndex)+1)
}

func (r BalResource) String() string { return r.BusName() }

// SocketKind selects the interface opened by Bal.OpenSocket.
type SocketKind int

const (
	KindCanSocket SocketKind = iota + 1
	KindCanSocket2
	KindCanControl
	KindCanControl2
	KindCanChannel
	KindCanChannel2
	KindCanScheduler
	KindCanScheduler2
	KindLinSocket
	KindLinControl
	KindLinMonitor
)

var socketKindNames = map[SocketKind]string{
	KindCanSocket:     "CanSocket",
	KindCanSocket2:    "CanSocket2",
	KindCanControl:    "CanControl",
	KindCanControl2:   "CanControl2",
	KindCanChannel:    "CanChannel",
	KindCanChannel2:   "CanChannel2",
	KindCanScheduler:  "CanScheduler",
	KindCanScheduler2: "CanScheduler2",
	KindLinSocket:     "LinSocket",
	KindLinControl:    "LinControl",
	KindLinMonitor:    "LinMonitor",
}

func (k SocketKind) String() string {
	if name, ok := socketKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("SocketKind(%d)", int(k))
}

// Resource is anything opened on a bus socket.
type Resource interface {
	Close() error
}

// Bal is the bus access layer of a device.
type Bal struct {
	lib      native.Library
	h        *ref[native.BalObject]
	features BalFeatures
}

func newBal(lib native.Library, bal native.BalObject, f native.BalFeatures) *Bal {
	n := min(int(f.BusSocketCount), native.MaxBusSockets)
	features := BalFeatures{
		FirmwareVersion: Version{Major: uint32(f.FwMajor), Minor: uint32(f.FwMinor)},
		BusSockets:      make([]CtrlInfo, n),
	}
	for i := range features.BusSockets {
		features.BusSockets[i] = ctrlInfo(f.BusSocketType[i])
	}
	return &Bal{lib: lib, h: newRef(bal), features: features}
}

func (b *Bal) Features() BalFeatures { return b.features }

// Resources lists the bus sockets of the BAL.
func (b *Bal) Resources() []BalResource {
	out := make([]BalResource, len(b.features.BusSockets))
	var index uint8
	for i, s := range b.features.BusSockets {
		if i > 0 && s.BusType != b.features.BusSockets[i-1].BusType {
			index = 0
		}
		out[i] = BalResource{Port: uint8(i), BusType: s.BusType, BusTypeIndex: index}
		index++
	}
	return out
}

func (b *Bal) checkPort(port uint8, bus BusType, kind SocketKind) error {
	if int(port) >= len(b.features.BusSockets) {
		return fmt.Errorf("open %s on port %d: %w", kind, port, ErrOutOfRange)
	}
	if b.features.BusSockets[port].BusType != bus {
		return fmt.Errorf("open %s on %s port %d: %w", kind, b.features.BusSockets[port].BusType, port, ErrNotImplemented)
	}
	return nil
}

// openAs opens iid on port and asserts the native interface type.
func openAs[T native.Unknown](b *Bal, port uint8, bus BusType, kind SocketKind, iid native.IID) (T, error) {
	var zero T
	if err := b.checkPort(port, bus, kind); err != nil {
		return zero, err
	}
	unk, err := call(b.h, func(bal native.BalObject) (native.Unknown, error) {
		unk, st := bal.OpenSocket(port, iid)
		return unk, statusError(b.lib, fmt.Sprintf("open %s on port %d", kind, port), st)
	})
	if err != nil {
		return zero, err
	}
	obj, ok := unk.(T)
	if !ok {
		unk.Release()
		return zero, fmt.Errorf("open %s on port %d: %w", kind, port, ErrNoInterface)
	}
	return obj, nil
}

// OpenSocket opens kind on port. Ports out of range fail with
// ErrOutOfRange, kinds the port's bus does not offer with ErrNotImplemented.
func (b *Bal) OpenSocket(port uint8, kind SocketKind) (Resource, error) {
	switch kind {
	case KindCanSocket:
		return b.OpenCanSocket(port)
	case KindCanSocket2:
		return b.OpenCanSocket2(port)
	case KindCanControl:
		return b.OpenCanControl(port)
	case KindCanControl2:
		return b.OpenCanControl2(port)
	case KindCanChannel:
		return b.OpenCanChannel(port)
	case KindCanChannel2:
		return b.OpenCanChannel2(port)
	case KindCanScheduler:
		return b.OpenCanScheduler(port)
	case KindCanScheduler2:
		return b.OpenCanScheduler2(port)
	case KindLinSocket:
		return b.OpenLinSocket(port)
	case KindLinControl:
		return b.OpenLinControl(port)
	case KindLinMonitor:
		return b.OpenLinMonitor(port)
	}
	return nil, fmt.Errorf("open %s on port %d: %w", kind, port, ErrNotImplemented)
}

func (b *Bal) OpenCanSocket(port uint8) (*CanSocket, error) {
	s, err := openAs[native.CanSocket](b, port, BusCan, KindCanSocket, native.IIDCanSocket)
	if err != nil {
		return nil, err
	}
	return newCanSocket(b.lib, port, s)
}

func (b *Bal) OpenCanSocket2(port uint8) (*CanSocket2, error) {
	s, err := openAs[native.CanSocket2](b, port, BusCan, KindCanSocket2, native.IIDCanSocket2)
	if err != nil {
		return nil, err
	}
	return newCanSocket2(b.lib, port, s)
}

func (b *Bal) OpenCanControl(port uint8) (*CanControl, error) {
	c, err := openAs[native.CanControl](b, port, BusCan, KindCanControl, native.IIDCanControl)
	if err != nil {
		return nil, err
	}
	return &CanControl{lib: b.lib, port: port, h: newRef(c)}, nil
}

func (b *Bal) OpenCanControl2(port uint8) (*CanControl2, error) {
	c, err := openAs[native.CanControl2](b, port, BusCan, KindCanControl2, native.IIDCanControl2)
	if err != nil {
		return nil, err
	}
	return &CanControl2{lib: b.lib, port: port, h: newRef(c)}, nil
}

// OpenCanChannel opens a channel on port. The native channel is created by
// the first Initialize.
func (b *Bal) OpenCanChannel(port uint8) (*CanChannel, error) {
	s, err := openAs[native.CanSocket](b, port, BusCan, KindCanChannel, native.IIDCanSocket)
	if err != nil {
		return nil, err
	}
	return newCanChannel(b.lib, port, s), nil
}

func (b *Bal) OpenCanChannel2(port uint8) (*CanChannel2, error) {
	s, err := openAs[native.CanSocket2](b, port, BusCan, KindCanChannel2, native.IIDCanSocket2)
	if err != nil {
		return nil, err
	}
	return newCanChannel2(b.lib, port, s), nil
}

// requireScheduler fails with ErrNotImplemented when the controller on port
// has no cyclic message scheduler.
func (b *Bal) requireScheduler(port uint8, kind SocketKind) (CanCapabilities, error) {
	s, err := b.OpenCanSocket(port)
	if err != nil {
		return CanCapabilities{}, err
	}
	defer s.Close()
	caps := s.Capabilities()
	if !caps.Features.Has(FeatureScheduler) {
		return caps, fmt.Errorf("open %s on port %d: %w", kind, port, ErrNotImplemented)
	}
	return caps, nil
}

func (b *Bal) OpenCanScheduler(port uint8) (*CanScheduler, error) {
	if _, err := b.requireScheduler(port, KindCanScheduler); err != nil {
		return nil, err
	}
	s, err := openAs[native.CanScheduler](b, port, BusCan, KindCanScheduler, native.IIDCanScheduler)
	if err != nil {
		return nil, err
	}
	return newCanScheduler(b.lib, port, s), nil
}

func (b *Bal) OpenCanScheduler2(port uint8) (*CanScheduler2, error) {
	if _, err := b.requireScheduler(port, KindCanScheduler2); err != nil {
		return nil, err
	}
	s, err := openAs[native.CanScheduler2](b, port, BusCan, KindCanScheduler2, native.IIDCanScheduler2)
	if err != nil {
		return nil, err
	}
	return newCanScheduler2(b.lib, port, s), nil
}

func (b *Bal) OpenLinSocket(port uint8) (*LinSocket, error) {
	s, err := openAs[native.LinSocket](b, port, BusLin, KindLinSocket, native.IIDLinSocket)
	if err != nil {
		return nil, err
	}
	return newLinSocket(b.lib, port, s)
}

func (b *Bal) OpenLinControl(port uint8) (*LinControl, error) {
	c, err := openAs[native.LinControl](b, port, BusLin, KindLinControl, native.IIDLinControl)
	if err != nil {
		return nil, err
	}
	return &LinControl{lib: b.lib, port: port, h: newRef(c)}, nil
}

// OpenLinMonitor opens a monitor on port. The native monitor is created by
// the first Initialize.
func (b *Bal) OpenLinMonitor(port uint8) (*LinMonitor, error) {
	s, err := openAs[native.LinSocket](b, port, BusLin, KindLinMonitor, native.IIDLinSocket)
	if err != nil {
		return nil, err
	}
	return newLinMonitor(b.lib, port, s), nil
}

func (b *Bal) Close() error { return b.h.close() }
