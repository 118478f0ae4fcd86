package vci

import (
	"errors"
	"fmt"
	"time"

	"github.com/LoveWonYoung/vci4go/native"
)

// CanFilter selects the 11-bit or the 29-bit acceptance filter.
type CanFilter uint8

const (
	FilterStd CanFilter = CanFilter(native.CanFilterStd)
	FilterExt CanFilter = CanFilter(native.CanFilterExt)
)

func (f CanFilter) String() string {
	switch f {
	case FilterStd:
		return "Std"
	case FilterExt:
		return "Ext"
	}
	return fmt.Sprintf("CanFilter(%d)", uint8(f))
}

// Acceptance code and mask values that open or close a filter completely.
const (
	AccCodeAll  uint32 = 0x00000000
	AccCodeNone uint32 = 0x80000000
	AccMaskAll  uint32 = 0x00000000
	AccMaskNone uint32 = 0xFFFFFFFF
)

// CanFilterMode is the filter mode of a CAN FD channel.
type CanFilterMode uint8

const (
	FilterModeInvalid            CanFilterMode = CanFilterMode(native.CanFilterModeInvalid)
	FilterModeLock               CanFilterMode = CanFilterMode(native.CanFilterModeLock)
	FilterModePass               CanFilterMode = CanFilterMode(native.CanFilterModePass)
	FilterModeInclusive          CanFilterMode = CanFilterMode(native.CanFilterModeInclusive)
	FilterModeExclusive          CanFilterMode = CanFilterMode(native.CanFilterModeExclusive)
	FilterModePassSelfReceptions CanFilterMode = CanFilterMode(native.CanFilterModeSRR)
)

func (m CanFilterMode) String() string {
	name := "Invalid"
	switch m &^ FilterModePassSelfReceptions {
	case FilterModeLock:
		name = "Lock"
	case FilterModePass:
		name = "Pass"
	case FilterModeInclusive:
		name = "Inclusive"
	case FilterModeExclusive:
		name = "Exclusive"
	}
	if m&FilterModePassSelfReceptions != 0 {
		name += "|PassSelfReceptions"
	}
	return name
}

func timeoutMs(d time.Duration) uint16 {
	ms := d / time.Millisecond
	switch {
	case ms < 0:
		return 0
	case ms > 0xFFFF:
		return 0xFFFF
	}
	return uint16(ms)
}

// CanControl controls a classic CAN line. Only one control can be open per
// port at a time.
type CanControl struct {
	lib  native.Library
	port uint8
	h    *ref[native.CanControl]
}

func (c *CanControl) Port() uint8 { return c.port }

// InitLine sets operating mode and bit timing and leaves the controller
// stopped.
func (c *CanControl) InitLine(mode CanOperatingModes, bitrate CanBitrate) error {
	return c.h.do(func(ctl native.CanControl) error {
		init := native.CanInitLine{OpMode: uint8(mode), BtReg0: bitrate.Btr0, BtReg1: bitrate.Btr1}
		return statusError(c.lib, fmt.Sprintf("init line (%s, %s)", mode, bitrate), ctl.InitLine(init))
	})
}

// DetectBaud listens on the bus for up to timeout per block of candidates
// and returns the index into table of the timing that matched.
func (c *CanControl) DetectBaud(timeout time.Duration, table []CanBitrate) (int, error) {
	if len(table) == 0 {
		return -1, fmt.Errorf("detect baud: empty table: %w", ErrInvalidArg)
	}
	index := -1
	err := c.h.do(func(ctl native.CanControl) error {
		var lastErr error
		for start := 0; start < len(table); start += native.CanBtrTableSize {
			chunk := table[start:min(start+native.CanBtrTableSize, len(table))]
			var t native.CanBtrTable
			t.Count = uint8(len(chunk))
			for i, b := range chunk {
				t.Btr0[i], t.Btr1[i] = b.Btr0, b.Btr1
			}
			err := statusError(c.lib, "detect baud", ctl.DetectBaud(timeoutMs(timeout), &t))
			if err == nil {
				index = start + int(t.Index)
				return nil
			}
			if !errors.Is(err, ErrTimeout) {
				return err
			}
			lastErr = err
		}
		return lastErr
	})
	return index, err
}

func (c *CanControl) ResetLine() error {
	return c.h.do(func(ctl native.CanControl) error {
		return statusError(c.lib, "reset line", ctl.ResetLine())
	})
}

func (c *CanControl) StartLine() error {
	return c.h.do(func(ctl native.CanControl) error {
		return statusError(c.lib, "start line", ctl.StartLine())
	})
}

func (c *CanControl) StopLine() error {
	return c.h.do(func(ctl native.CanControl) error {
		return statusError(c.lib, "stop line", ctl.StopLine())
	})
}

// SetAccFilter sets the acceptance code and mask of the selected filter.
// The line must be stopped.
func (c *CanControl) SetAccFilter(sel CanFilter, code, mask uint32) error {
	return c.h.do(func(ctl native.CanControl) error {
		return statusError(c.lib, "set acceptance filter", ctl.SetAccFilter(uint8(sel), code, mask))
	})
}

// AddFilterIds adds the ids matching code and mask to the filter list.
func (c *CanControl) AddFilterIds(sel CanFilter, code, mask uint32) error {
	return c.h.do(func(ctl native.CanControl) error {
		return statusError(c.lib, "add filter ids", ctl.AddFilterIds(uint8(sel), code, mask))
	})
}

func (c *CanControl) RemFilterIds(sel CanFilter, code, mask uint32) error {
	return c.h.do(func(ctl native.CanControl) error {
		return statusError(c.lib, "remove filter ids", ctl.RemFilterIds(uint8(sel), code, mask))
	})
}

func (c *CanControl) Close() error { return c.h.close() }

// CanInitLine2 configures a CAN FD capable line.
type CanInitLine2 struct {
	OperatingMode         CanOperatingModes
	ExtendedOperatingMode CanExtendedOperatingModes
	StdFilterMode         CanFilterMode
	ExtFilterMode         CanFilterMode
	StdFilterSize         uint32
	ExtFilterSize         uint32
	Bitrate               CanFdBitrate
}

func (i CanInitLine2) native() native.CanInitLine2 {
	return native.CanInitLine2{
		OpMode: uint8(i.OperatingMode),
		ExMode: uint8(i.ExtendedOperatingMode),
		SFMode: uint8(i.StdFilterMode),
		EFMode: uint8(i.ExtFilterMode),
		SFIds:  i.StdFilterSize,
		EFIds:  i.ExtFilterSize,
		BtpSdr: i.Bitrate.Std.btp(),
		BtpFdr: i.Bitrate.Fast.btp(),
	}
}

func (i CanInitLine2) String() string {
	return fmt.Sprintf("opmode: %s, exmode: %s, sfmode: %s, efmode: %s, sfids: %d, efids: %d, sdr: %s, fdr: %s",
		i.OperatingMode, i.ExtendedOperatingMode, i.StdFilterMode, i.ExtFilterMode,
		i.StdFilterSize, i.ExtFilterSize, i.Bitrate.Std, i.Bitrate.Fast)
}

// CanControl2 controls a CAN FD capable line.
type CanControl2 struct {
	lib  native.Library
	port uint8
	h    *ref[native.CanControl2]
}

func (c *CanControl2) Port() uint8 { return c.port }

// InitLine configures the line and leaves it stopped. The error lists the
// rejected parameters.
func (c *CanControl2) InitLine(init CanInitLine2) error {
	return c.h.do(func(ctl native.CanControl2) error {
		return statusError(c.lib, "init line ("+init.String()+")", ctl.InitLine(init.native()))
	})
}

// DetectBaud works like CanControl.DetectBaud on CAN FD timings.
func (c *CanControl2) DetectBaud(mode CanOperatingModes, exMode CanExtendedOperatingModes, timeout time.Duration, table []CanFdBitrate) (int, error) {
	if len(table) == 0 {
		return -1, fmt.Errorf("detect baud: empty table: %w", ErrInvalidArg)
	}
	index := -1
	err := c.h.do(func(ctl native.CanControl2) error {
		var lastErr error
		for start := 0; start < len(table); start += native.CanBtpTableSize {
			chunk := table[start:min(start+native.CanBtpTableSize, len(table))]
			var t native.CanBtpTable
			t.Count = uint8(len(chunk))
			for i, b := range chunk {
				t.Btp[i] = native.CanBtpPair{Sdr: b.Std.btp(), Fdr: b.Fast.btp()}
			}
			err := statusError(c.lib, "detect baud", ctl.DetectBaud(uint8(mode), uint8(exMode), timeoutMs(timeout), &t))
			if err == nil {
				index = start + int(t.Index)
				return nil
			}
			if !errors.Is(err, ErrTimeout) {
				return err
			}
			lastErr = err
		}
		return lastErr
	})
	return index, err
}

func (c *CanControl2) ResetLine() error {
	return c.h.do(func(ctl native.CanControl2) error {
		return statusError(c.lib, "reset line", ctl.ResetLine())
	})
}

func (c *CanControl2) StartLine() error {
	return c.h.do(func(ctl native.CanControl2) error {
		return statusError(c.lib, "start line", ctl.StartLine())
	})
}

func (c *CanControl2) StopLine() error {
	return c.h.do(func(ctl native.CanControl2) error {
		return statusError(c.lib, "stop line", ctl.StopLine())
	})
}

func (c *CanControl2) SetAccFilter(sel CanFilter, code, mask uint32) error {
	return c.h.do(func(ctl native.CanControl2) error {
		return statusError(c.lib, "set acceptance filter", ctl.SetAccFilter(uint8(sel), code, mask))
	})
}

func (c *CanControl2) AddFilterIds(sel CanFilter, code, mask uint32) error {
	return c.h.do(func(ctl native.CanControl2) error {
		return statusError(c.lib, "add filter ids", ctl.AddFilterIds(uint8(sel), code, mask))
	})
}

func (c *CanControl2) RemFilterIds(sel CanFilter, code, mask uint32) error {
	return c.h.do(func(ctl native.CanControl2) error {
		return statusError(c.lib, "remove filter ids", ctl.RemFilterIds(uint8(sel), code, mask))
	})
}

func (c *CanControl2) Close() error { return c.h.close() }
