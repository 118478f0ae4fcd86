package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoveWonYoung/vci4go/driver"
	"github.com/LoveWonYoung/vci4go/vci"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, driver.CAN, cfg.CanType())

	opts, err := cfg.IxxatOptions()
	require.NoError(t, err)
	assert.Equal(t, driver.DefaultIxxatOptions(), opts)

	init, err := cfg.LinInitLine()
	require.NoError(t, err)
	assert.Equal(t, vci.LinModeMaster|vci.LinModeErrors, init.OperatingMode)
	assert.Equal(t, vci.Lin19200Bit, init.Bitrate)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "bus.yaml", `
backend: sim
device: HW424242
trace: bus.trace
can:
  port: 1
  bitrate: 250K
  fd: true
  fd_nominal: CANFD 1000 kbit/s
  fd_data: IFI4000K
  exclusive: true
lin:
  bitrate: auto
  master: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendSim, cfg.Backend)
	assert.Equal(t, "bus.trace", cfg.Trace)
	assert.Equal(t, 1, cfg.LIN.Port, "unset keys keep their default")
	assert.Equal(t, driver.CANFD, cfg.CanType())

	opts, err := cfg.IxxatOptions()
	require.NoError(t, err)
	assert.Equal(t, "HW424242", opts.Device)
	assert.Equal(t, uint8(1), opts.Port)
	assert.Equal(t, vci.Cia250KBit, opts.Bitrate)
	assert.Equal(t, vci.CanFdBitrate{Std: vci.CANFD1000KBit, Fast: vci.IFI4000KBit}, opts.FdBitrate)
	assert.True(t, opts.Exclusive)
	assert.Equal(t, uint16(driver.MsgBufferSize), opts.RxFifoSize)

	init, err := cfg.LinInitLine()
	require.NoError(t, err)
	assert.Equal(t, vci.LinModeSlave|vci.LinModeErrors, init.OperatingMode)
	assert.Equal(t, vci.LinBitrateAuto, init.Bitrate)
}

func TestLoadINI(t *testing.T) {
	path := writeFile(t, "bus.ini", `
backend = native
device = 1

[can]
port = 0
bitrate = 1000K
rx_fifo = 256
tx_fifo = 16
extended = true

[lin]
port = 2
bitrate = 9600
master = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendNative, cfg.Backend)
	assert.Equal(t, "1", cfg.Device)
	assert.Equal(t, 256, cfg.CAN.RxFifo)
	assert.Equal(t, 16, cfg.CAN.TxFifo)
	assert.True(t, cfg.CAN.Extended)
	assert.False(t, cfg.CAN.FD)
	assert.Equal(t, "CANFD500K", cfg.CAN.Nominal)
	assert.Equal(t, 2, cfg.LIN.Port)

	opts, err := cfg.IxxatOptions()
	require.NoError(t, err)
	assert.Equal(t, vci.Cia1000KBit, opts.Bitrate)
	assert.Equal(t, uint16(16), opts.TxFifoSize)
	assert.True(t, opts.Extended)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "bus.json", `{}`))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, "bad.yaml", "can: [1, 2"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.ini", "backend = usb\n[can]\nbitrate = 42K\n"))
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), `backend "usb" not one of native, sim`)
	assert.Contains(t, err.Error(), `can bitrate "42K" not one of 1000K, 100K, 10K`)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.CAN.FD = true
	cfg.CAN.Nominal = "CANFD3K"
	cfg.CAN.Data = "CANFD3K"
	cfg.CAN.RxFifo = 0
	cfg.CAN.TxFifo = 70000
	cfg.CAN.Port = 300
	cfg.LIN.Port = -1
	cfg.LIN.Bitrate = "500"

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.EqualError(t, err, `invalid config: can port 300 out of range; lin port -1 out of range; `+
		`fd bitrate "CANFD3K" unknown; can rx_fifo 0 out of range; can tx_fifo 70000 out of range; `+
		`lin bitrate "500" invalid`)

	_, err = cfg.IxxatOptions()
	assert.ErrorIs(t, err, vci.ErrInvalidArgument)
	_, err = cfg.LinInitLine()
	assert.ErrorIs(t, err, vci.ErrInvalidArgument)
}

func TestOpenSimBackend(t *testing.T) {
	cfg := Default()
	cfg.Backend = BackendSim
	b, err := cfg.OpenBackend()
	require.NoError(t, err)
	require.NotNil(t, b.Sim)

	infos, err := driver.ListDevices(b.Server)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "HW000001", infos[0].UniqueHardwareID.String())

	require.NoError(t, b.Close())
	assert.Zero(t, b.Sim.Live())

	cfg.Backend = "usb"
	_, err = cfg.OpenBackend()
	assert.ErrorIs(t, err, ErrInvalid)
}
