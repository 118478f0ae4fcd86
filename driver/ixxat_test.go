package driver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoveWonYoung/vci4go/native"
	"github.com/LoveWonYoung/vci4go/native/sim"
	"github.com/LoveWonYoung/vci4go/vci"
)

// newServer plugs one simulated adapter with ports into a fresh driver. The
// test fails if native references are left over at the end.
func newServer(t *testing.T, ports ...sim.PortConfig) (*sim.Driver, *sim.Device, *vci.Server) {
	t.Helper()
	drv := sim.New()
	t.Cleanup(func() {
		assert.Zero(t, drv.Live(), "native references leaked")
	})
	dev := drv.AddDevice(sim.DeviceConfig{
		Description:  "USB-to-CAN FD",
		Manufacturer: "HMS Ixxat",
		HardwareID:   "HW424242",
		Ports:        ports,
	})
	srv, err := vci.Open(drv)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return drv, dev, srv
}

func recv(t *testing.T, rx <-chan UnifiedCANMessage) UnifiedCANMessage {
	t.Helper()
	select {
	case msg, ok := <-rx:
		require.True(t, ok, "receive channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	return UnifiedCANMessage{}
}

func frame(id uint32, fd bool, data ...byte) native.CanMsg2 {
	info := native.CanMsgInfo(0).WithType(native.CanMsgTypeData).WithDLC(vci.DataLenToDLC(len(data)))
	if fd {
		info = info.With(native.InfoEDL, true)
	}
	msg := native.CanMsg2{ID: id, Info: info}
	copy(msg.Data[:], data)
	return msg
}

func TestIxxatClassicRoundTrip(t *testing.T) {
	_, dev, srv := newServer(t, sim.DefaultCanPort)
	port := dev.Port(0)

	x := NewIxxat(srv, CAN, DefaultIxxatOptions())
	require.NoError(t, x.Init())
	rx := x.RxChan()
	x.Start()
	assert.True(t, port.Started())

	port.Inject(frame(0x7E8, false, 0x02, 0x50, 0x03))
	got := recv(t, rx)
	assert.Equal(t, RX, got.Direction)
	assert.Equal(t, uint32(0x7E8), got.ID)
	assert.Equal(t, byte(3), got.DLC)
	assert.False(t, got.IsFD)
	assert.Equal(t, []byte{0x02, 0x50, 0x03}, got.Payload())

	require.NoError(t, x.Write(0x7E0, []byte{0x02, 0x10, 0x03}))
	require.NoError(t, x.Write(0x18DA00F1, []byte{0x01}))
	frames := port.Frames()
	require.Len(t, frames, 3)
	assert.Equal(t, uint32(0x7E0), frames[1].ID)
	assert.False(t, frames[1].Info.Has(native.InfoEXT))
	assert.True(t, frames[2].Info.Has(native.InfoEXT))

	x.Stop()
	assert.False(t, port.Started())
	_, ok := <-rx
	assert.False(t, ok, "stop closes subscriptions")
	assert.Error(t, x.Write(0x7E0, []byte{1}))
}

func TestIxxatFdRoundTrip(t *testing.T) {
	_, dev, srv := newServer(t, sim.DefaultCanFdPort)
	port := dev.Port(0)

	x := NewIxxat(srv, CANFD, DefaultIxxatOptions())
	require.NoError(t, x.Init())
	defer x.Stop()
	rx, cancel := x.Subscribe(8)
	defer cancel()
	x.Start()

	payload := make([]byte, 48)
	payload[47] = 0xEE
	port.Inject(frame(0x123, true, payload...))
	got := recv(t, rx)
	assert.True(t, got.IsFD)
	assert.Equal(t, byte(14), got.DLC)
	assert.Equal(t, payload, got.Payload())

	require.NoError(t, x.Write(0x456, make([]byte, 20)))
	frames := port.Frames()
	require.Len(t, frames, 2)
	sent := frames[1]
	assert.True(t, sent.Info.Has(native.InfoEDL))
	assert.True(t, sent.Info.Has(native.InfoFDR))
	assert.Equal(t, uint8(11), sent.Info.DLC())
}

func TestIxxatWriteChecks(t *testing.T) {
	_, _, srv := newServer(t, sim.DefaultCanPort)
	x := NewIxxat(srv, CAN, DefaultIxxatOptions())

	assert.EqualError(t, x.Write(1, []byte{1}), "driver not initialized")
	assert.EqualError(t, x.Write(1, nil), "data length is 0")
	assert.EqualError(t, x.Write(1, make([]byte, 9)), "data length 9 exceeds CAN maximum of 8")

	fd := NewIxxat(srv, CANFD, DefaultIxxatOptions())
	assert.EqualError(t, fd.Write(1, make([]byte, 65)), "data length 65 exceeds CAN-FD maximum of 64")
}

func TestIxxatSharesControlledLine(t *testing.T) {
	_, dev, srv := newServer(t, sim.DefaultCanPort)

	owner := NewIxxat(srv, CAN, DefaultIxxatOptions())
	require.NoError(t, owner.Init())
	defer owner.Stop()
	owner.Start()

	guest := NewIxxat(srv, CAN, DefaultIxxatOptions())
	require.NoError(t, guest.Init(), "a second application uses the line as configured")
	defer guest.Stop()
	rx := guest.RxChan()
	guest.Start()

	require.NoError(t, owner.Write(0x100, []byte{0xAB}))
	got := recv(t, rx)
	assert.Equal(t, uint32(0x100), got.ID)
	assert.Equal(t, []byte{0xAB}, got.Payload())
	assert.True(t, dev.Port(0).Started())

	exclusive := DefaultIxxatOptions()
	exclusive.Exclusive = true
	err := NewIxxat(srv, CAN, exclusive).Init()
	assert.ErrorIs(t, err, vci.ErrAccessDenied)
}

func TestIxxatInitFailures(t *testing.T) {
	drv, _, srv := newServer(t, sim.DefaultCanPort, sim.DefaultLinPort)

	opts := DefaultIxxatOptions()
	opts.Port = 1
	assert.ErrorIs(t, NewIxxat(srv, CAN, opts).Init(), vci.ErrNotImplemented)

	opts.Port = 0
	opts.Device = "HW000000"
	assert.ErrorIs(t, NewIxxat(srv, CAN, opts).Init(), vci.ErrNoSuchDevice)

	assert.ErrorIs(t, NewIxxat(srv, CANFD, DefaultIxxatOptions()).Init(), vci.ErrNotSupported)

	drv.Inject("CanChannel.Initialize", native.EFail)
	assert.ErrorIs(t, NewIxxat(srv, CAN, DefaultIxxatOptions()).Init(), vci.ErrFail)

	x := NewIxxat(srv, CAN, DefaultIxxatOptions())
	require.NoError(t, x.Init(), "the port is free again after failed attempts")
	assert.Error(t, x.Init())
	x.Stop()
}

func TestOpenDevice(t *testing.T) {
	drv, _, srv := newServer(t, sim.DefaultCanPort)
	drv.AddDevice(sim.DeviceConfig{Description: "USB-to-CAN V2", HardwareID: "HW777777", Ports: []sim.PortConfig{sim.DefaultCanPort}})

	infos, err := ListDevices(srv)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "HW424242", infos[0].UniqueHardwareID.String())

	for sel, want := range map[string]string{"": "USB-to-CAN FD", "1": "USB-to-CAN V2", "hw777777": "USB-to-CAN V2"} {
		dev, err := OpenDevice(srv, sel)
		require.NoError(t, err, sel)
		assert.Equal(t, want, dev.Description, sel)
		require.NoError(t, dev.Close())
	}
	for _, sel := range []string{"2", "-1", "HW1"} {
		_, err := OpenDevice(srv, sel)
		assert.ErrorIs(t, err, vci.ErrNoSuchDevice, sel)
	}
}
