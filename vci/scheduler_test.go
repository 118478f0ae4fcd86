package vci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoveWonYoung/vci4go/native"
	"github.com/LoveWonYoung/vci4go/native/sim"
)

func openScheduler(t *testing.T, r *rig) *CanScheduler {
	t.Helper()
	s, err := r.bal.OpenCanScheduler(0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSchedulerSuspendResume(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort)
	s := openScheduler(t, r)

	running, err := s.IsRunning()
	require.NoError(t, err)
	assert.False(t, running)

	require.NoError(t, s.Resume())
	running, err = s.IsRunning()
	require.NoError(t, err)
	assert.True(t, running)

	require.NoError(t, s.Suspend())
	running, err = s.IsRunning()
	require.NoError(t, err)
	assert.False(t, running)
}

func TestSchedulerRepeatCount(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort)
	r.startCan(t, 0)
	ch := r.openChannel(t, 0, false)
	reader, err := ch.MessageReader()
	require.NoError(t, err)
	defer reader.Close()

	s := openScheduler(t, r)
	require.NoError(t, s.Resume())

	m := s.AddMessage()
	m.Identifier = 0x321
	m.CycleTicks = 10
	m.SetPayload([]byte{0xAA, 0x00})
	assert.Equal(t, CyclicEmpty, m.Status())

	require.NoError(t, m.Start(3))
	assert.Equal(t, CyclicBusy, m.Status())

	port := r.dev.Port(0)
	for i := 0; i < 5; i++ {
		port.Tick()
	}
	assert.Equal(t, CyclicDone, m.Status())

	buf := make([]CanMessage, 8)
	n, err := reader.ReadMessages(buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	for _, got := range buf[:n] {
		assert.Equal(t, uint32(0x321), got.Identifier)
		assert.Equal(t, []byte{0xAA, 0x00}, got.Payload())
	}
}

func TestSchedulerAutoIncrement(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort)
	r.startCan(t, 0)
	s := openScheduler(t, r)
	require.NoError(t, s.Resume())

	counter := s.AddMessage()
	counter.Identifier = 0x100
	counter.CycleTicks = 1
	counter.AutoIncrementMode = IncMode16
	counter.AutoIncrementIndex = 1
	counter.SetPayload([]byte{0x55, 0xFF, 0x00})
	require.NoError(t, counter.Start(0))

	ids := s.AddMessage()
	ids.Identifier = 0x200
	ids.CycleTicks = 1
	ids.AutoIncrementMode = IncModeID
	require.NoError(t, ids.Start(2))

	port := r.dev.Port(0)
	port.Tick()
	port.Tick()
	port.Tick()

	var counters [][]byte
	var idSeen []uint32
	for _, f := range port.Frames() {
		if f.ID < 0x200 {
			counters = append(counters, append([]byte(nil), f.Data[:3]...))
		} else {
			idSeen = append(idSeen, f.ID)
		}
	}
	assert.Equal(t, [][]byte{{0x55, 0xFF, 0x00}, {0x55, 0x00, 0x01}, {0x55, 0x01, 0x01}}, counters)
	assert.Equal(t, []uint32{0x200, 0x201}, idSeen)

	require.NoError(t, counter.Stop())
	assert.Equal(t, CyclicDone, counter.Status())
	port.Tick()
	assert.Len(t, port.Frames(), 5)
}

func TestSchedulerRestartsOnlyChangedMessages(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort)
	r.startCan(t, 0)
	s := openScheduler(t, r)
	require.NoError(t, s.Resume())

	m := s.AddMessage()
	m.Identifier = 0x10
	m.CycleTicks = 5
	m.SetPayload([]byte{1})
	require.NoError(t, m.Start(1))

	r.drv.Inject("CanScheduler.AddMessage", native.EFail)
	require.NoError(t, m.Start(1), "an unchanged message is not added again")

	m.Data[0] = 2
	assert.ErrorIs(t, m.Start(1), ErrFail, "a changed message is added again")
	require.NoError(t, m.Start(1))

	port := r.dev.Port(0)
	port.Tick()
	frames := port.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, uint8(2), frames[0].Data[0])
}

func TestSchedulerRejectsBadMessages(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort)
	s := openScheduler(t, r)

	m := s.AddMessage()
	m.CycleTicks = 1
	m.Identifier = 0x800
	assert.ErrorIs(t, m.Start(0), ErrInvalidArg)

	m.ExtendedFrameFormat = true
	require.NoError(t, m.Start(0))
	m.Identifier = 0x20000000
	assert.ErrorIs(t, m.Start(0), ErrInvalidArg)

	m.Identifier = 0x1
	m.ExtendedFrameFormat = false
	m.AutoIncrementIndex = 8
	assert.ErrorIs(t, m.Start(0), ErrOutOfRange)

	m.AutoIncrementIndex = 0
	m.DataLength = 9
	assert.ErrorIs(t, m.Start(0), ErrInvalidArgument)

	m.DataLength = 1
	m.CycleTicks = 0
	assert.ErrorIs(t, m.Start(0), ErrInvalidArg)

	var orphan CyclicTxMessage
	assert.ErrorIs(t, orphan.Start(1), ErrInvalidOperation)
	assert.ErrorIs(t, orphan.Stop(), ErrInvalidOperation)
	assert.NoError(t, orphan.Reset())
	assert.Equal(t, CyclicEmpty, orphan.Status())
}

func TestSchedulerTableFull(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort)
	s := openScheduler(t, r)

	msgs := make([]*CyclicTxMessage, native.CanMaxCtxMsgs)
	for i := range msgs {
		msgs[i] = s.AddMessage()
		msgs[i].Identifier = uint32(i)
		msgs[i].CycleTicks = 1
		require.NoError(t, msgs[i].Start(0))
	}
	extra := s.AddMessage()
	extra.CycleTicks = 1
	assert.ErrorIs(t, extra.Start(0), ErrNoMoreItems)

	require.NoError(t, msgs[3].Reset())
	assert.Equal(t, CyclicEmpty, msgs[3].Status())
	require.NoError(t, extra.Start(0))
	assert.Equal(t, CyclicBusy, extra.Status())
}

func TestSchedulerReset(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort)
	r.startCan(t, 0)
	s := openScheduler(t, r)
	require.NoError(t, s.Resume())

	m := s.AddMessage()
	m.Identifier = 0x42
	m.CycleTicks = 1
	require.NoError(t, m.Start(0))

	require.NoError(t, s.Reset())
	assert.Equal(t, CyclicEmpty, m.Status())
	running, err := s.IsRunning()
	require.NoError(t, err)
	assert.False(t, running)

	require.NoError(t, m.Start(0))
	require.NoError(t, s.Resume())
	require.NoError(t, s.UpdateStatus())
	assert.Equal(t, CyclicBusy, m.Status())
	r.dev.Port(0).Tick()
	assert.Len(t, r.dev.Port(0).Frames(), 1)

	r.drv.Inject("CanScheduler.Reset", native.EFail)
	assert.ErrorIs(t, s.Reset(), ErrFail)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Resume(), ErrClosed)
	assert.ErrorIs(t, m.Start(0), ErrClosed)
	assert.ErrorIs(t, s.Reset(), ErrClosed)
}

func TestScheduler2FdMessages(t *testing.T) {
	r := newRig(t, sim.DefaultCanFdPort)
	ctl, err := r.bal.OpenCanControl2(0)
	require.NoError(t, err)
	defer ctl.Close()
	require.NoError(t, ctl.InitLine(CanInitLine2{
		OperatingMode:         OpModeStandard,
		ExtendedOperatingMode: ExModeExtendedDataLength,
		Bitrate:               SingleRate(CANFD500KBit),
	}))
	require.NoError(t, ctl.StartLine())

	s, err := r.bal.OpenCanScheduler2(0)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Resume())

	m := s.AddMessage()
	m.Identifier = 0x700
	m.CycleTicks = 2
	m.ExtendedDataLength = true
	m.AutoIncrementMode = IncMode8
	m.AutoIncrementIndex = 40
	m.SetPayload(make([]byte, 48))
	require.NoError(t, m.Start(2))

	port := r.dev.Port(0)
	port.Tick()
	port.Tick()
	frames := port.Frames()
	require.Len(t, frames, 2)
	assert.True(t, frames[0].Info.Has(native.InfoEDL))
	assert.Equal(t, uint8(14), frames[0].Info.DLC())
	assert.Equal(t, []byte{0, 1}, []byte{frames[0].Data[40], frames[1].Data[40]})
	assert.Equal(t, CyclicDone, m.Status())

	m.AutoIncrementIndex = 64
	assert.ErrorIs(t, m.Start(0), ErrOutOfRange)
}
