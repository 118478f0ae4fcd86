package vci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoveWonYoung/vci4go/native"
	"github.com/LoveWonYoung/vci4go/native/sim"
)

func TestBalResources(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort, sim.DefaultCanFdPort, sim.DefaultLinPort)

	f := r.bal.Features()
	assert.Equal(t, Version{Major: 1, Minor: 7}, f.FirmwareVersion)
	require.Len(t, f.BusSockets, 3)
	assert.Equal(t, BusLin, f.BusSockets[2].BusType)

	res := r.bal.Resources()
	require.Len(t, res, 3)
	assert.Equal(t, []string{"CAN-1", "CAN-2", "LIN-1"}, []string{res[0].BusName(), res[1].BusName(), res[2].String()})
	assert.Equal(t, uint8(2), res[2].Port)
}

func TestBalOpenSocketKinds(t *testing.T) {
	r := newRig(t, sim.DefaultCanFdPort, sim.DefaultLinPort)

	for _, kind := range []SocketKind{
		KindCanSocket, KindCanSocket2, KindCanControl, KindCanControl2,
		KindCanChannel, KindCanChannel2, KindCanScheduler, KindCanScheduler2,
	} {
		res, err := r.bal.OpenSocket(0, kind)
		require.NoError(t, err, kind.String())
		require.NoError(t, res.Close())
	}
	for _, kind := range []SocketKind{KindLinSocket, KindLinControl, KindLinMonitor} {
		res, err := r.bal.OpenSocket(1, kind)
		require.NoError(t, err, kind.String())
		require.NoError(t, res.Close())
	}
}

func TestBalOpenSocketErrors(t *testing.T) {
	noScheduler := sim.DefaultCanPort
	noScheduler.Features &^= uint32(FeatureScheduler)
	r := newRig(t, sim.DefaultCanPort, sim.DefaultLinPort, noScheduler)

	_, err := r.bal.OpenSocket(9, KindCanSocket)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = r.bal.OpenSocket(1, KindCanChannel)
	assert.ErrorIs(t, err, ErrNotImplemented)
	_, err = r.bal.OpenLinMonitor(0)
	assert.ErrorIs(t, err, ErrNotImplemented)

	_, err = r.bal.OpenCanScheduler(2)
	assert.ErrorIs(t, err, ErrNotImplemented)
	_, err = r.bal.OpenCanScheduler2(2)
	assert.ErrorIs(t, err, ErrNotImplemented)

	_, err = r.bal.OpenSocket(0, SocketKind(99))
	assert.ErrorIs(t, err, ErrNotImplemented)

	r.drv.Inject("Bal.OpenSocket", native.EFail)
	_, err = r.bal.OpenCanSocket(0)
	assert.ErrorIs(t, err, ErrFail)

	r.drv.Inject("CanSocket.Capabilities", native.EDisconnected)
	_, err = r.bal.OpenCanSocket(0)
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestBalControlIsExclusive(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort)

	ctl, err := r.bal.OpenCanControl(0)
	require.NoError(t, err)
	_, err = r.bal.OpenCanControl2(0)
	assert.ErrorIs(t, err, ErrAccessDenied)

	require.NoError(t, ctl.Close())
	ctl2, err := r.bal.OpenCanControl2(0)
	require.NoError(t, err)
	require.NoError(t, ctl2.Close())
}

func TestBalClosed(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort)
	require.NoError(t, r.bal.Close())

	_, err := r.bal.OpenCanSocket(0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Len(t, r.bal.Resources(), 1)
}

func TestCanSocketCapabilities(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort, sim.DefaultCanFdPort)

	s, err := r.bal.OpenCanSocket(0)
	require.NoError(t, err)
	defer s.Close()
	caps := s.Capabilities()
	assert.Equal(t, uint8(0), s.Port())
	assert.Equal(t, CanCtrlType(sim.DefaultCanPort.Ctrl), caps.CtrlType)
	assert.True(t, caps.Features.SupportsCyclicMessageScheduler())
	assert.True(t, caps.Features.SupportsRemoteFrames())
	assert.False(t, caps.Features.SupportsExtendedDataLength())
	assert.True(t, s.Supports(FeatureSingleShot))
	assert.Equal(t, uint32(80000000), caps.ClockFrequency)
	assert.Equal(t, uint32(0xFFFF), caps.MaxCyclicMessageTicks)

	ls, err := s.LineStatus()
	require.NoError(t, err)
	assert.True(t, ls.IsInInitMode())

	s2, err := r.bal.OpenCanSocket2(1)
	require.NoError(t, err)
	defer s2.Close()
	caps2 := s2.Capabilities()
	assert.True(t, caps2.Features.SupportsExtendedDataLength())
	assert.True(t, caps2.Features.SupportsFastDataRate())
	assert.True(t, s2.Supports(FeatureIsoCanFd))

	require.NoError(t, s.Close())
	_, err = s.LineStatus()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, caps, s.Capabilities())
}
