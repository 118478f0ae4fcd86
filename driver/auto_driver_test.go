package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoveWonYoung/vci4go/native/sim"
	"github.com/LoveWonYoung/vci4go/vci"
)

func TestAutoDriverSelectsFirstWorkingPort(t *testing.T) {
	drv, _, srv := newServer(t, sim.DefaultLinPort, sim.DefaultCanPort)
	fd := drv.AddDevice(sim.DeviceConfig{Description: "CAN-IB640", HardwareID: "HW555555", Ports: []sim.PortConfig{sim.DefaultCanFdPort}})

	a := NewAutoDriver(srv, CANFD, DefaultIxxatOptions())
	assert.EqualError(t, a.Write(1, []byte{1}), "driver not initialized")
	assert.Nil(t, a.RxChan())

	require.NoError(t, a.Init())
	assert.Equal(t, "IXXAT CAN-IB640 CAN-1", a.Selected())
	require.NoError(t, a.Init(), "init is done once")

	rx := a.RxChan()
	a.Start()
	fd.Port(0).Inject(frame(0x55, true, make([]byte, 12)...))
	got := recv(t, rx)
	assert.Equal(t, uint32(0x55), got.ID)
	require.NoError(t, a.Write(0x66, []byte{1, 2}))
	assert.Len(t, fd.Port(0).Frames(), 2)
	assert.NoError(t, a.Context().Err())

	a.Stop()
	assert.Error(t, a.Context().Err())
}

func TestAutoDriverNoDevice(t *testing.T) {
	_, _, srv := newServer(t, sim.DefaultLinPort)
	a := NewAutoDriver(srv, CAN, DefaultIxxatOptions())
	assert.EqualError(t, a.Init(), "no available CAN device ()")
	a.Start()
	a.Stop()
	assert.NoError(t, a.Context().Err())
}

func TestAutoDriverCollectsErrors(t *testing.T) {
	_, _, srv := newServer(t, sim.DefaultCanPort)
	a := NewAutoDriver(srv, CANFD, DefaultIxxatOptions())
	err := a.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ixxat usb-to-can fd can-1: ")
	assert.Empty(t, a.Selected())
}

func TestAdapter(t *testing.T) {
	_, dev, srv := newServer(t, sim.DefaultCanPort)
	_, err := NewAdapter(nil)
	assert.Error(t, err)

	ad, err := NewAdapter(NewIxxat(srv, CAN, DefaultIxxatOptions()))
	require.NoError(t, err)

	_, ok := ad.RxFunc()
	assert.False(t, ok)

	var msg vci.CanMessage
	msg.Identifier = 0x7DF
	msg.SetPayload([]byte{0x02, 0x01, 0x00})
	require.NoError(t, ad.TxFunc(msg))
	assert.Len(t, dev.Port(0).Frames(), 1)

	dev.Port(0).Inject(frame(0x7E8, false, 0x03, 0x41, 0x00, 0xBE))
	got := recv(t, ad.Messages())
	rebuilt := toCanMessage(&got)
	assert.Equal(t, uint32(0x7E8), rebuilt.Identifier)
	assert.Equal(t, []byte{0x03, 0x41, 0x00, 0xBE}, rebuilt.Payload())
	assert.Equal(t, "0 : Data [2024] Dlc=4 03 41 00 BE", vci.CanMessage{Identifier: 0x7E8, DataLength: 4, Data: rebuilt.Data}.String())

	ad.Close()
	_, ok = ad.RxFunc()
	assert.False(t, ok)
}
