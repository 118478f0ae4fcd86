package vci

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoveWonYoung/vci4go/native"
	"github.com/LoveWonYoung/vci4go/native/sim"
)

func TestCanControlLineLifecycle(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort)
	ctl, err := r.bal.OpenCanControl(0)
	require.NoError(t, err)
	defer ctl.Close()
	sock, err := r.bal.OpenCanSocket(0)
	require.NoError(t, err)
	defer sock.Close()

	assert.ErrorIs(t, ctl.StartLine(), ErrInvalidState)

	err = ctl.InitLine(OpModeStandard, CanBitrateEmpty)
	assert.ErrorIs(t, err, ErrInvalidArg)
	assert.Contains(t, err.Error(), "init line (Standard, <Empty>)")

	require.NoError(t, ctl.InitLine(OpModeStandard|OpModeExtended, Cia250KBit))
	ls, err := sock.LineStatus()
	require.NoError(t, err)
	assert.Equal(t, Cia250KBit, ls.Bitrate)
	assert.Equal(t, OpModeStandard|OpModeExtended, ls.OperatingMode)
	assert.True(t, ls.IsInInitMode())

	require.NoError(t, ctl.StartLine())
	assert.True(t, r.dev.Port(0).Started())
	ls, err = sock.LineStatus()
	require.NoError(t, err)
	assert.False(t, ls.IsInInitMode())

	require.NoError(t, ctl.StopLine())
	assert.False(t, r.dev.Port(0).Started())
	require.NoError(t, ctl.ResetLine())
	assert.ErrorIs(t, ctl.StartLine(), ErrInvalidState)

	require.NoError(t, ctl.Close())
	assert.ErrorIs(t, ctl.StartLine(), ErrClosed)
}

func TestCanControlInfoFrames(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort)
	ch := r.openChannel(t, 0, false)
	reader, err := ch.MessageReader()
	require.NoError(t, err)
	defer reader.Close()

	ctl := r.startCan(t, 0)
	require.NoError(t, ctl.StopLine())
	require.NoError(t, ctl.ResetLine())

	buf := make([]CanMessage, 8)
	n, err := reader.ReadMessages(buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	for i, want := range []CanMsgInfoValue{InfoStart, InfoStop, InfoReset} {
		assert.Equal(t, FrameInfo, buf[i].FrameType)
		assert.Equal(t, want, buf[i].InfoValue())
	}
	assert.Contains(t, buf[0].String(), "Info Start")
}

func TestCanControlFilters(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort)
	ctl, err := r.bal.OpenCanControl(0)
	require.NoError(t, err)
	defer ctl.Close()
	require.NoError(t, ctl.InitLine(OpModeStandard, Cia500KBit))

	require.NoError(t, ctl.SetAccFilter(FilterStd, AccCodeAll, AccMaskAll))
	require.NoError(t, ctl.AddFilterIds(FilterExt, 0x18DA00F1<<1, 0x1FFF00FF<<1))
	require.NoError(t, ctl.RemFilterIds(FilterExt, 0x18DA00F1<<1, 0x1FFF00FF<<1))
	assert.ErrorIs(t, ctl.SetAccFilter(CanFilter(7), AccCodeNone, AccMaskNone), ErrInvalidArg)

	require.NoError(t, ctl.StartLine())
	assert.ErrorIs(t, ctl.AddFilterIds(FilterStd, 0x100<<1, 0x7FF<<1), ErrInvalidState)
}

func TestCanControlDetectBaud(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort)
	ctl, err := r.bal.OpenCanControl(0)
	require.NoError(t, err)
	defer ctl.Close()

	idx, err := ctl.DetectBaud(100*time.Millisecond, CiaBitRates)
	require.NoError(t, err)
	assert.Equal(t, Cia500KBit, CiaBitRates[idx])

	idx, err = ctl.DetectBaud(time.Second, []CanBitrate{Cia10KBit, Cia20KBit})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, -1, idx)

	idx, err = ctl.DetectBaud(time.Second, nil)
	assert.ErrorIs(t, err, ErrInvalidArg)
	assert.Equal(t, -1, idx)
}

func TestCanControlDetectBaudBeyondOneTable(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort)
	ctl, err := r.bal.OpenCanControl(0)
	require.NoError(t, err)
	defer ctl.Close()

	table := make([]CanBitrate, native.CanBtrTableSize+10)
	for i := range table {
		table[i] = Cia10KBit
	}
	table[native.CanBtrTableSize+3] = Cia500KBit

	idx, err := ctl.DetectBaud(time.Millisecond, table)
	require.NoError(t, err)
	assert.Equal(t, native.CanBtrTableSize+3, idx)
}

func TestCanControl2InitLine(t *testing.T) {
	r := newRig(t, sim.DefaultCanPort, sim.DefaultCanFdPort)

	classic, err := r.bal.OpenCanControl2(0)
	require.NoError(t, err)
	defer classic.Close()
	init := CanInitLine2{
		OperatingMode:         OpModeStandard | OpModeExtended,
		ExtendedOperatingMode: ExModeExtendedDataLength | ExModeFastDataRate,
		StdFilterMode:         FilterModePass,
		ExtFilterMode:         FilterModePass,
		Bitrate:               CanFdBitrate{Std: CANFD500KBit, Fast: CANFD2000KBit},
	}
	err = classic.InitLine(init)
	assert.ErrorIs(t, err, ErrNotSupported)
	assert.Contains(t, err.Error(), "exmode: ExtendedDataLength|FastDataRate")
	assert.Contains(t, err.Error(), "fdr: CANFD 2000 kbit/s")

	fd, err := r.bal.OpenCanControl2(1)
	require.NoError(t, err)
	defer fd.Close()
	require.NoError(t, fd.InitLine(init))
	require.NoError(t, fd.StartLine())

	sock, err := r.bal.OpenCanSocket2(1)
	require.NoError(t, err)
	defer sock.Close()
	ls, err := sock.LineStatus()
	require.NoError(t, err)
	assert.Equal(t, CANFD500KBit, ls.StdBitrate)
	assert.Equal(t, CANFD2000KBit, ls.FastBitrate)
	assert.Equal(t, ExModeExtendedDataLength|ExModeFastDataRate, ls.ExtendedOperatingMode)
	assert.False(t, ls.IsInInitMode())

	assert.ErrorIs(t, fd.InitLine(CanInitLine2{}), ErrInvalidArg)
}

func TestCanControl2DetectBaud(t *testing.T) {
	r := newRig(t, sim.DefaultCanFdPort)
	ctl, err := r.bal.OpenCanControl2(0)
	require.NoError(t, err)
	defer ctl.Close()

	onBus := SingleRate(bitrate2(sim.DefaultCanFdPort.BusBitrate2))
	table := append(append([]CanFdBitrate{}, LongLineCanFdBitRates...), onBus)
	idx, err := ctl.DetectBaud(OpModeStandard, ExModeExtendedDataLength, 10*time.Millisecond, table)
	require.NoError(t, err)
	assert.Equal(t, len(LongLineCanFdBitRates), idx)

	_, err = ctl.DetectBaud(OpModeStandard, ExModeUndefined, 10*time.Millisecond, ShortLineCanFdBitRates)
	assert.ErrorIs(t, err, ErrTimeout)

	idx, err = ctl.DetectBaud(OpModeStandard, ExModeUndefined, 10*time.Millisecond, nil)
	assert.ErrorIs(t, err, ErrInvalidArg)
	assert.Equal(t, -1, idx)
}

func TestTimeoutMs(t *testing.T) {
	assert.Equal(t, uint16(0), timeoutMs(-time.Second))
	assert.Equal(t, uint16(250), timeoutMs(250*time.Millisecond))
	assert.Equal(t, uint16(0xFFFF), timeoutMs(2*time.Minute))
}

func TestCanFilterModeString(t *testing.T) {
	assert.Equal(t, "Pass", FilterModePass.String())
	assert.Equal(t, "Inclusive|PassSelfReceptions", (FilterModeInclusive | FilterModePassSelfReceptions).String())
	assert.Equal(t, "Ext", FilterExt.String())
}
