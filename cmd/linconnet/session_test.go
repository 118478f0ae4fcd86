package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoveWonYoung/vci4go/config"
	"github.com/LoveWonYoung/vci4go/trace"
	"github.com/LoveWonYoung/vci4go/vci"
)

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

func openBackend(t *testing.T) (config.Config, *config.Backend) {
	t.Helper()
	cfg := config.Default()
	cfg.Backend = config.BackendSim
	backend, err := cfg.OpenBackend()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, backend.Close())
		assert.Zero(t, backend.Sim.Live(), "native references leaked")
	})
	return cfg, backend
}

func startSession(t *testing.T, backend *config.Backend, cfg config.Config, rec *trace.Recorder) (*session, *syncBuffer) {
	t.Helper()
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
	return s, out
}

func waitFor(t *testing.T, out *syncBuffer, text string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), text)
	}, 2*time.Second, 10*time.Millisecond, text)
}

func TestSessionMaster(t *testing.T) {
	cfg, backend := openBackend(t)
	rec, err := trace.NewRecorder(filepath.Join(t.TempDir(), "lin.trace"))
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })

	s, out := startSession(t, backend, cfg, rec)
	assert.Contains(t, out.String(), "LIN port 1 : features 0x0000000F")
	assert.Contains(t, out.String(), "Line : Master|Errors, 19200 bit/s")
	waitFor(t, out, "Info Start")

	_, err = s.exec("r 3C 01 02")
	require.NoError(t, err)
	_, err = s.exec("m 3C")
	require.NoError(t, err)
	waitFor(t, out, "Data [060] 01 02")

	_, err = s.exec("m 0x20")
	require.NoError(t, err)
	waitFor(t, out, "Error SlaveNoResponse")

	_, err = s.exec("s 21 AA")
	require.NoError(t, err)
	waitFor(t, out, "Data [033] AA")

	_, err = s.exec("st")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "active: true")

	assert.Eventually(t, func() bool { return rec.Count() >= 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestSessionSharedLine(t *testing.T) {
	cfg, backend := openBackend(t)
	owner, ownerOut := startSession(t, backend, cfg, nil)
	guest, guestOut := startSession(t, backend, cfg, nil)
	assert.Contains(t, guestOut.String(), "Line is controlled by another application")

	_, err := guest.exec("s 21 AA")
	assert.ErrorIs(t, err, vci.ErrAccessDenied)

	_, err = owner.exec("s 22 BB CC")
	require.NoError(t, err)
	waitFor(t, ownerOut, "Data [034] BB CC")
	waitFor(t, guestOut, "Data [034] BB CC")
}

func TestSessionCommandErrors(t *testing.T) {
	cfg, backend := openBackend(t)
	s, out := startSession(t, backend, cfg, nil)

	for cmd, want := range map[string]string{
		"x":                              "unknown command: x (type 'help' for commands)",
		"r 3C":                           "usage: r <pid> <bytes>",
		"m":                              "usage: m <pid>",
		"s zz 01":                        `pid "zz" invalid`,
		"s 1 0":                          "data: encoding/hex: odd length hex string",
		"s 1 00 01 02 03 04 05 06 07 08": "data length 9 exceeds 8",
	} {
		_, err := s.exec(cmd)
		assert.EqualError(t, err, want, cmd)
	}

	quit, err := s.exec("help")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, out.String(), "send a master request for pid")
	quit, err = s.exec("quit")
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestLoadConfigFlags(t *testing.T) {
	cfg, err := loadConfig([]string{"-backend", "sim", "-port", "3", "-bitrate", "auto", "-slave"})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.LIN.Port)
	assert.Equal(t, "auto", cfg.LIN.Bitrate)
	assert.False(t, cfg.LIN.Master)

	_, err = loadConfig([]string{"-bitrate", "300"})
	assert.ErrorIs(t, err, config.ErrInvalid)
}
