package vci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoveWonYoung/vci4go/native"
)

func TestDataLenToDLC(t *testing.T) {
	cases := []struct {
		n   int
		dlc uint8
	}{
		{-1, 0}, {0, 0}, {8, 8}, {9, 9}, {12, 9}, {13, 10}, {16, 10},
		{20, 11}, {24, 12}, {25, 13}, {32, 13}, {48, 14}, {49, 15}, {64, 15}, {100, 15},
	}
	for _, c := range cases {
		assert.Equal(t, c.dlc, DataLenToDLC(c.n), "len %d", c.n)
	}
	for dlc, n := range []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64} {
		assert.Equal(t, n, DLCToDataLen(uint8(dlc)), "dlc %d", dlc)
	}
}

func TestCanMessageInfoBits(t *testing.T) {
	m := CanMessage{
		Identifier:                0x1ABCDE,
		AcceptReason:              AccFilter2,
		ExtendedFrameFormat:       true,
		RemoteTransmissionRequest: true,
		SingleShotMode:            true,
		HighPriorityMsg:           true,
		SelfReceptionRequest:      true,
		DataLength:                3,
	}
	info := m.info()
	assert.Equal(t, native.CanMsgTypeData, info.Type())
	assert.Equal(t, uint8(3), info.DLC())
	assert.Equal(t, uint8(AccFilter2), info.Accept())
	assert.True(t, info.Has(native.InfoEXT))
	assert.True(t, info.Has(native.InfoRTR))
	assert.True(t, info.Has(native.InfoSSM))
	assert.True(t, info.Has(native.InfoHPM))
	assert.True(t, info.Has(native.InfoSRR))
	assert.False(t, info.Has(native.InfoEDL))

	var back CanMessage
	back.setInfo(info)
	back.Identifier = m.Identifier
	assert.Equal(t, m, back)
}

func TestCanMessageDecodeLengths(t *testing.T) {
	raw := native.CanMsg{ID: 1, Info: native.CanMsgInfo(0).WithType(native.CanMsgTypeData).WithDLC(15)}
	assert.Equal(t, uint8(8), fromClassic(raw).DataLength, "classic data frames carry at most 8 bytes")

	raw.Info = raw.Info.With(native.InfoRTR, true)
	assert.Equal(t, uint8(15), fromClassic(raw).DataLength, "remote frames keep the requested dlc")

	fd := native.CanMsg2{ID: 1, Info: native.CanMsgInfo(0).WithType(native.CanMsgTypeData).WithDLC(13).With(native.InfoEDL, true)}
	assert.Equal(t, uint8(32), fromFd(fd).DataLength)
}

func TestCanLayoutEncoding(t *testing.T) {
	var m CanMessage
	m.Identifier = 0x7DF
	m.TimeStamp = 1234
	m.SetPayload([]byte{0x02, 0x10, 0x03})

	entry := make([]byte, layoutClassic.size())
	require.NoError(t, layoutClassic.encode(&m, entry))
	assert.Equal(t, []byte{0xD2, 0x04, 0x00, 0x00}, entry[:4], "time stamp little endian")
	assert.Equal(t, []byte{0xDF, 0x07, 0x00, 0x00}, entry[4:8], "identifier little endian")

	back, err := layoutClassic.decode(entry)
	require.NoError(t, err)
	assert.Equal(t, m, back)

	fdEntry := make([]byte, layoutFd.size())
	require.Greater(t, len(fdEntry), len(entry))
	m.ExtendedDataLength = true
	m.SetPayload(make([]byte, 20))
	require.NoError(t, layoutFd.encode(&m, fdEntry))
	back, err = layoutFd.decode(fdEntry)
	require.NoError(t, err)
	assert.Equal(t, uint8(20), back.DataLength)
	assert.True(t, back.ExtendedDataLength)

	assert.ErrorIs(t, layoutClassic.encode(&m, entry), ErrInvalidArgument)

	m.ExtendedDataLength = false
	m.SetPayload(make([]byte, 12))
	assert.ErrorIs(t, layoutFd.encode(&m, fdEntry), ErrInvalidArgument, "classic frame on an FD layout")
	m.SetPayload(make([]byte, 8))
	assert.NoError(t, layoutFd.encode(&m, fdEntry))

	_, err = layoutFd.decode(entry)
	assert.Error(t, err)
}

func TestCanMessageString(t *testing.T) {
	var data CanMessage
	data.TimeStamp = 100
	data.Identifier = 0x12
	data.SetPayload([]byte{0x01, 0xAB})
	assert.Equal(t, "100 : Data [018] Dlc=2 01 AB", data.String())

	rtr := CanMessage{TimeStamp: 5, Identifier: 7, DataLength: 4, RemoteTransmissionRequest: true}
	assert.Equal(t, "5 : RTR [007] Dlc=4", rtr.String())

	info := CanMessage{TimeStamp: 1, FrameType: FrameInfo}
	info.Data[0] = byte(InfoStop)
	assert.Equal(t, "1 : Info Stop", info.String())

	errFrame := CanMessage{TimeStamp: 2, FrameType: FrameError}
	errFrame.Data[0] = byte(MsgErrAcknowledge)
	assert.Equal(t, "2 : Error Acknowledge", errFrame.String())

	status := CanMessage{TimeStamp: 3, FrameType: FrameStatus}
	status.Data[0] = byte(CtrlBusOff)
	assert.Equal(t, "3 : Status BusOff", status.String())

	overrun := CanMessage{TimeStamp: 4, FrameType: FrameTimeOverrun, Identifier: 9}
	assert.Equal(t, "4 : TimeOverrun : Count=9", overrun.String())
	assert.Equal(t, "6 : TimeReset", CanMessage{TimeStamp: 6, FrameType: FrameTimeReset}.String())
	assert.Equal(t, "7 : Wakeup", CanMessage{TimeStamp: 7, FrameType: FrameWakeup}.String())
	assert.Equal(t, "8 : CanMsgFrameType(9)", CanMessage{TimeStamp: 8, FrameType: 9}.String())
}

func TestCanMessagePayload(t *testing.T) {
	var m CanMessage
	m.SetPayload(make([]byte, 80))
	assert.Equal(t, uint8(64), m.DataLength)
	assert.Len(t, m.Payload(), 64)

	m.DataLength = 200
	assert.Len(t, m.Payload(), 64)
}
