package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoveWonYoung/vci4go/config"
	"github.com/LoveWonYoung/vci4go/native"
	"github.com/LoveWonYoung/vci4go/trace"
)

const sampleHex = `:10010000101112131415161718191A1B1C1D1E1F77
:020110002021AC
:00000001FF
`

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	s       *session
	backend *config.Backend
	rec     *trace.Recorder
	out     *syncBuffer
}

func openFixture(t *testing.T, fd bool) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Backend = config.BackendSim
	cfg.CAN.FD = fd

	backend, err := cfg.OpenBackend()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, backend.Close())
		assert.Zero(t, backend.Sim.Live(), "native references leaked")
	})

	rec, err := trace.NewRecorder(filepath.Join(t.TempDir(), "can.trace"))
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })

	out := &syncBuffer{}
	s, err := openSession(backend.Server, cfg, rec, out)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.receive(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return &fixture{s: s, backend: backend, rec: rec, out: out}
}

func TestSessionFd(t *testing.T) {
	f := openFixture(t, true)
	port := f.backend.SimDevice.Port(0)

	out := f.out.String()
	assert.Contains(t, out, "USB-to-CAN FD (simulated)")
	assert.Contains(t, out, "Port 0 : CAN-1")
	assert.Contains(t, out, "Port 1 : LIN-1")
	assert.Contains(t, out, "Line : CANFD 500 kbit/s / CANFD 2000 kbit/s")
	assert.True(t, port.Started())

	quit, err := f.s.exec("s 7E0 02 10 03")
	require.NoError(t, err)
	assert.False(t, quit)
	frames := port.Frames()
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.Equal(t, uint32(0x7E0), last.ID)
	assert.True(t, last.Info.Has(native.InfoEDL))
	assert.Equal(t, uint8(3), last.Info.DLC())

	for i := 0; i < 2; i++ {
		_, err = f.s.exec("t")
		require.NoError(t, err)
		frames = port.Frames()
		last = frames[len(frames)-1]
		assert.Equal(t, uint32(testID), last.ID)
		assert.Equal(t, byte(i), last.Data[0])
	}

	msg := native.CanMsg2{ID: 0x7E8, Info: native.CanMsgInfo(0).WithType(native.CanMsgTypeData).WithDLC(2)}
	msg.Data[0], msg.Data[1] = 0x50, 0x03
	port.Inject(msg)
	assert.Eventually(t, func() bool {
		return strings.Contains(f.out.String(), "Data [2024]")
	}, 2*time.Second, 10*time.Millisecond)

	_, err = f.s.exec("st")
	require.NoError(t, err)

	_, err = f.s.exec("c")
	require.NoError(t, err)
	assert.Contains(t, f.out.String(), "cyclic message 0x200 started")
	assert.Eventually(t, func() bool {
		return strings.Contains(f.out.String(), "Data [512]")
	}, 2*time.Second, 10*time.Millisecond)
	_, err = f.s.exec("c")
	require.NoError(t, err)
	assert.Contains(t, f.out.String(), "cyclic message 0x200 stopped")

	assert.GreaterOrEqual(t, f.rec.Count(), 5)
}

func TestSessionCommandErrors(t *testing.T) {
	f := openFixture(t, false)

	for cmd, want := range map[string]string{
		"bogus":                            "unknown command: bogus (type 'help' for commands)",
		"s 7E0":                            "usage: s <id> <bytes>",
		"s zz 01":                          `identifier "zz" invalid`,
		"s 7E0 0":                          "data: encoding/hex: odd length hex string",
		"s 7E0 00 01 02 03 04 05 06 07 08": "data length 9 not in 1..8",
		"h":                                "usage: h <file> [id]",
	} {
		_, err := f.s.exec(cmd)
		assert.EqualError(t, err, want, cmd)
	}

	quit, err := f.s.exec("")
	assert.NoError(t, err)
	assert.False(t, quit)
	quit, err = f.s.exec("help")
	assert.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, f.out.String(), "send the contents of an Intel HEX file")
	quit, err = f.s.exec("Q")
	assert.NoError(t, err)
	assert.True(t, quit)
}

func TestSessionHexFile(t *testing.T) {
	f := openFixture(t, false)
	path := filepath.Join(t.TempDir(), "app.hex")
	require.NoError(t, os.WriteFile(path, []byte(sampleHex), 0644))

	_, err := f.s.exec("h " + path + " 7E0")
	require.NoError(t, err)
	assert.Contains(t, f.out.String(), "3 frames sent")

	frames := f.backend.SimDevice.Port(0).Frames()
	require.Len(t, frames, 3)
	assert.Equal(t, uint32(0x7E0), frames[0].ID)
	assert.Equal(t, []byte{0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17}, frames[0].Data[:8])
	assert.Equal(t, uint8(2), frames[2].Info.DLC())
	assert.Equal(t, []byte{0x20, 0x21}, frames[2].Data[:2])

	_, err = f.s.exec("h " + filepath.Join(t.TempDir(), "missing.hex"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHexFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.hex")
	require.NoError(t, os.WriteFile(path, []byte(sampleHex), 0644))

	frames, err := hexFrames(path, 0x18DA10F1, true)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].ExtendedFrameFormat)
	assert.Equal(t, uint8(20), frames[0].DataLength, "padded to the next CAN FD length")

	empty := filepath.Join(t.TempDir(), "empty.hex")
	require.NoError(t, os.WriteFile(empty, []byte(":00000001FF\n"), 0644))
	_, err = hexFrames(empty, 1, false)
	assert.ErrorContains(t, err, "no data segments found in hex file")

	assert.Nil(t, splitBlock([]byte{1}, 0))
	assert.Equal(t, [][]byte{{1, 2}, {3}}, splitBlock([]byte{1, 2, 3}, 2))
}

func TestLoadConfigFlags(t *testing.T) {
	cfg, err := loadConfig([]string{"-backend", "sim", "-port", "2", "-fd", "-bitrate", "250K"})
	require.NoError(t, err)
	assert.Equal(t, config.BackendSim, cfg.Backend)
	assert.Equal(t, 2, cfg.CAN.Port)
	assert.True(t, cfg.CAN.FD)
	assert.Equal(t, "250K", cfg.CAN.Bitrate)

	_, err = loadConfig([]string{"-backend", "usb"})
	assert.ErrorIs(t, err, config.ErrInvalid)
}
