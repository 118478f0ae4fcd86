// Package config loads the settings of the console tools from YAML or INI
// files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/thoas/go-funk"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/LoveWonYoung/vci4go/driver"
	"github.com/LoveWonYoung/vci4go/vci"
)

const (
	BackendNative = "native"
	BackendSim    = "sim"
)

// Backends lists the accepted backend names.
var Backends = []string{BackendNative, BackendSim}

var ErrInvalid = errors.New("invalid config")

type Config struct {
	// Backend is "native" for the installed VCI driver or "sim" for the
	// in-memory one.
	Backend string `yaml:"backend" ini:"backend"`
	// Device is a device list index or a hardware id, empty for the first
	// adapter.
	Device string `yaml:"device" ini:"device"`
	// Trace is the CBOR trace file, empty to disable tracing.
	Trace string `yaml:"trace" ini:"trace"`

	CAN CAN `yaml:"can" ini:"can"`
	LIN LIN `yaml:"lin" ini:"lin"`
}

type CAN struct {
	Port      int    `yaml:"port" ini:"port"`
	Bitrate   string `yaml:"bitrate" ini:"bitrate"`
	FD        bool   `yaml:"fd" ini:"fd"`
	Nominal   string `yaml:"fd_nominal" ini:"fd_nominal"`
	Data      string `yaml:"fd_data" ini:"fd_data"`
	RxFifo    int    `yaml:"rx_fifo" ini:"rx_fifo"`
	TxFifo    int    `yaml:"tx_fifo" ini:"tx_fifo"`
	Exclusive bool   `yaml:"exclusive" ini:"exclusive"`
	Extended  bool   `yaml:"extended" ini:"extended"`
}

type LIN struct {
	Port    int    `yaml:"port" ini:"port"`
	Bitrate string `yaml:"bitrate" ini:"bitrate"`
	Master  bool   `yaml:"master" ini:"master"`
}

// Default is the native backend on the first adapter, 500 kbit/s CAN,
// 500K/2M CAN FD and 19200 bit/s LIN master.
func Default() Config {
	return Config{
		Backend: BackendNative,
		CAN: CAN{
			Bitrate: "500K",
			Nominal: "CANFD500K",
			Data:    "CANFD2000K",
			RxFifo:  driver.MsgBufferSize,
			TxFifo:  driver.TxFifoSize,
		},
		LIN: LIN{
			Port:    1,
			Bitrate: "19200",
			Master:  true,
		},
	}
}

// Load reads path over Default and validates the result. The decoder is
// picked by the extension: .yaml, .yml or .ini.
func Load(path string) (Config, error) {
	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	case ".ini":
		file, err := ini.Load(path)
		if err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
		if err := file.MapTo(&cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("config %s: unknown format %q: %w", path, ext, ErrInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks names and ranges. All problems are reported together.
func (c Config) Validate() error {
	var problems []string
	if !funk.ContainsString(Backends, c.Backend) {
		problems = append(problems, fmt.Sprintf("backend %q not one of %s", c.Backend, strings.Join(Backends, ", ")))
	}
	if c.CAN.Port < 0 || c.CAN.Port > 255 {
		problems = append(problems, fmt.Sprintf("can port %d out of range", c.CAN.Port))
	}
	if c.LIN.Port < 0 || c.LIN.Port > 255 {
		problems = append(problems, fmt.Sprintf("lin port %d out of range", c.LIN.Port))
	}
	if _, err := vci.ParseCanBitrate(c.CAN.Bitrate); err != nil {
		problems = append(problems, fmt.Sprintf("can bitrate %q not one of %s", c.CAN.Bitrate, strings.Join(vci.CanBitrateNames(), ", ")))
	}
	if c.CAN.FD {
		for _, name := range funk.UniqString([]string{c.CAN.Nominal, c.CAN.Data}) {
			if _, err := vci.ParseCanBitrate2(name); err != nil {
				problems = append(problems, fmt.Sprintf("fd bitrate %q unknown", name))
			}
		}
	}
	for _, fifo := range []struct {
		name string
		size int
	}{{"rx_fifo", c.CAN.RxFifo}, {"tx_fifo", c.CAN.TxFifo}} {
		if fifo.size < 1 || fifo.size > 0xFFFF {
			problems = append(problems, fmt.Sprintf("can %s %d out of range", fifo.name, fifo.size))
		}
	}
	if _, err := vci.ParseLinBitrate(c.LIN.Bitrate); err != nil {
		problems = append(problems, fmt.Sprintf("lin bitrate %q invalid", c.LIN.Bitrate))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// CanType is CANFD when FD is enabled.
func (c Config) CanType() driver.CanType {
	if c.CAN.FD {
		return driver.CANFD
	}
	return driver.CAN
}

// IxxatOptions converts the CAN section for driver.NewIxxat. The config
// must be valid.
func (c Config) IxxatOptions() (driver.IxxatOptions, error) {
	opts := driver.DefaultIxxatOptions()
	opts.Device = c.Device
	opts.Port = uint8(c.CAN.Port)
	opts.RxFifoSize = uint16(c.CAN.RxFifo)
	opts.TxFifoSize = uint16(c.CAN.TxFifo)
	opts.Exclusive = c.CAN.Exclusive
	opts.Extended = c.CAN.Extended

	var err error
	if opts.Bitrate, err = vci.ParseCanBitrate(c.CAN.Bitrate); err != nil {
		return opts, err
	}
	if !c.CAN.FD {
		return opts, nil
	}
	if opts.FdBitrate.Std, err = vci.ParseCanBitrate2(c.CAN.Nominal); err != nil {
		return opts, err
	}
	if opts.FdBitrate.Fast, err = vci.ParseCanBitrate2(c.CAN.Data); err != nil {
		return opts, err
	}
	return opts, nil
}

// LinInitLine converts the LIN section.
func (c Config) LinInitLine() (vci.LinInitLine, error) {
	bitrate, err := vci.ParseLinBitrate(c.LIN.Bitrate)
	if err != nil {
		return vci.LinInitLine{}, err
	}
	mode := vci.LinModeSlave | vci.LinModeErrors
	if c.LIN.Master {
		mode = vci.LinModeMaster | vci.LinModeErrors
	}
	return vci.LinInitLine{OperatingMode: mode, Bitrate: bitrate}, nil
}
