package trace

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoveWonYoung/vci4go/vci"
)

func fdMessage() vci.CanMessage {
	msg := vci.CanMessage{
		Identifier:          0x18DAF110,
		FrameType:           vci.FrameData,
		ExtendedFrameFormat: true,
		ExtendedDataLength:  true,
		FastDataRate:        true,
		TimeStamp:           1234,
	}
	msg.SetPayload([]byte{0x10, 0x14, 0x62, 0xF1, 0x90, 0x57, 0x30, 0x4C, 0x30, 0x30, 0x30})
	return msg
}

func TestCanRecord(t *testing.T) {
	rec := CanRecord(DirectionTx, 1, fdMessage())
	assert.Equal(t, BusCAN, rec.Bus)
	assert.Equal(t, FlagExtended|FlagFD|FlagBitrateSwitch, rec.Flags)
	assert.Len(t, rec.Data, 11)

	back, err := rec.CanMessage()
	require.NoError(t, err)
	assert.Equal(t, fdMessage(), back)

	lin := LinRecord(DirectionRx, 0, vci.LinMessage{ProtId: 0x3C, MessageType: vci.LinMsgTypeData, DataLength: 2, ExtendedCrc: true, Data: [8]byte{1, 2}})
	assert.Equal(t, BusLIN, lin.Bus)
	assert.Equal(t, uint32(0x3C), lin.ID)
	assert.True(t, lin.Flags.Has(FlagExtendedCrc))
	assert.False(t, lin.Flags.Has(FlagIdOnly))
	assert.Equal(t, []byte{1, 2}, lin.Data)
	_, err = lin.CanMessage()
	assert.EqualError(t, err, "trace: LIN record is not a CAN frame")
}

func TestRecordString(t *testing.T) {
	rec := Record{
		Time:      time.Date(2024, 3, 1, 12, 30, 5, 250*int(time.Millisecond), time.UTC),
		Bus:       BusCAN,
		Direction: DirectionRx,
		ID:        0x7E8,
		Data:      []byte{0x02, 0x50, 0x03},
	}
	assert.Equal(t, "12:30:05.250 RX CAN1: ID=0x7E8, Len=03, Data=02 50 03", rec.String())
	assert.Equal(t, "UNKNOWN", Bus(7).String())
	assert.Equal(t, "UNKNOWN", Direction(7).String())
}

func TestEncodeDecode(t *testing.T) {
	rec := CanRecord(DirectionRx, 0, fdMessage())
	rec.Time = time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	rec.Session = "s"

	data, err := Encode(rec)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, rec.Time.Equal(got.Time))
	got.Time = rec.Time
	assert.Equal(t, rec, got)

	_, err = Decode([]byte{0xFF})
	assert.Error(t, err)
}

func TestRecorderAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.trace")
	rec, err := NewRecorder(path)
	require.NoError(t, err)
	require.NotEmpty(t, rec.Session())

	require.NoError(t, rec.Record(CanRecord(DirectionTx, 0, fdMessage())))
	classic := vci.CanMessage{Identifier: 0x7E8, FrameType: vci.FrameData}
	classic.SetPayload([]byte{0x03, 0x7F, 0x22, 0x31})
	require.NoError(t, rec.Record(CanRecord(DirectionRx, 0, classic)))
	require.NoError(t, rec.Record(LinRecord(DirectionRx, 1, vci.LinMessage{ProtId: 0x20, DataLength: 1})))
	assert.Equal(t, 3, rec.Count())
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Record(Record{}), "records after close are dropped")
	assert.Equal(t, 3, rec.Count())

	r, err := NewReader(path)
	require.NoError(t, err)
	all, err := r.ReadAll()
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Len(t, all, 3)
	for _, got := range all {
		assert.Equal(t, rec.Session(), got.Session)
		assert.False(t, got.Time.IsZero())
	}
	assert.Equal(t, uint32(0x18DAF110), all[0].ID)
	assert.Equal(t, BusLIN, all[2].Bus)

	rx := DirectionRx
	can := BusCAN
	r, err = NewFilteredReader(path, Filter{Bus: &can, Direction: &rx})
	require.NoError(t, err)
	defer r.Close()
	got, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7E8), got.ID)
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestRecorderAppendsSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.trace")
	var sessions []string
	for i := 0; i < 2; i++ {
		rec, err := NewRecorder(path)
		require.NoError(t, err)
		rec.now = func() time.Time { return time.Unix(int64(i), 0) }
		require.NoError(t, rec.Record(Record{ID: uint32(i)}))
		require.NoError(t, rec.Close())
		sessions = append(sessions, rec.Session())
	}
	require.NotEqual(t, sessions[0], sessions[1])

	r, err := NewFilteredReader(path, Filter{Session: sessions[1]})
	require.NoError(t, err)
	defer r.Close()
	all, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, uint32(1), all[0].ID)
	assert.True(t, all[0].Time.Equal(time.Unix(1, 0)))

	r2, err := NewFilteredReader(path, Filter{IDs: []uint32{0, 5}})
	require.NoError(t, err)
	defer r2.Close()
	all, err = r2.ReadAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecorderConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.trace")
	rec, err := NewRecorder(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				assert.NoError(t, rec.Record(Record{ID: id}))
			}
		}(uint32(i))
	}
	wg.Wait()
	require.NoError(t, rec.Close())

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	all, err := r.ReadAll()
	require.NoError(t, err)
	assert.Len(t, all, 200)
}

func TestNewReaderMissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
