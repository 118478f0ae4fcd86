package vci

import (
	"fmt"
	"sort"
	"strings"

	"github.com/LoveWonYoung/vci4go/native"
)

// CanBitrate is an SJA1000 style bus timing register pair.
type CanBitrate struct {
	Btr0 uint8
	Btr1 uint8
}

// CiA recommended bit timings for a 16 MHz SJA1000 clock.
var (
	CanBitrateEmpty = CanBitrate{}
	Cia10KBit       = CanBitrate{0x31, 0x1C}
	Cia20KBit       = CanBitrate{0x18, 0x1C}
	Cia50KBit       = CanBitrate{0x09, 0x1C}
	Cia100KBit      = CanBitrate{0x04, 0x1C}
	Cia125KBit      = CanBitrate{0x03, 0x1C}
	Cia250KBit      = CanBitrate{0x01, 0x1C}
	Cia500KBit      = CanBitrate{0x00, 0x1C}
	Cia800KBit      = CanBitrate{0x00, 0x16}
	Cia1000KBit     = CanBitrate{0x00, 0x14}
)

// CiaBitRates lists the CiA bit timings from the lowest to the highest rate.
var CiaBitRates = []CanBitrate{
	Cia10KBit, Cia20KBit, Cia50KBit, Cia100KBit, Cia125KBit,
	Cia250KBit, Cia500KBit, Cia800KBit, Cia1000KBit,
}

var ciaKbit = map[CanBitrate]int{
	Cia10KBit:   10,
	Cia20KBit:   20,
	Cia50KBit:   50,
	Cia100KBit:  100,
	Cia125KBit:  125,
	Cia250KBit:  250,
	Cia500KBit:  500,
	Cia800KBit:  800,
	Cia1000KBit: 1000,
}

func (b CanBitrate) IsEmpty() bool { return b == CanBitrateEmpty }

// BitTime returns the bit time in periods of the 16 MHz controller
// clock.
func (b CanBitrate) BitTime() int {
	brp := int(b.Btr0 & 0x3F)
	ts1 := int(b.Btr1 & 0x0F)
	ts2 := int(b.Btr1&0x70) >> 4
	return 2 * (brp + 1) * (ts1 + ts2 + 3)
}

func (b CanBitrate) Name() string {
	if b.IsEmpty() {
		return "<Empty>"
	}
	if kbit, ok := ciaKbit[b]; ok {
		return fmt.Sprintf("CiA %d kbit/s", kbit)
	}
	return fmt.Sprintf("BTR0=0x%02X BTR1=0x%02X", b.Btr0, b.Btr1)
}

func (b CanBitrate) String() string { return b.Name() }

type CanBitrateMode uint32

const (
	BitrateModeNone           CanBitrateMode = 0
	BitrateModeRaw            CanBitrateMode = 1
	BitrateModeTripleSampling CanBitrateMode = 2
)

// CanBitrate2 is a controller independent bit timing. In raw mode
// Prescaler is the clock prescaler and the segments are time quanta;
// otherwise Prescaler is the bit rate in bit/s.
type CanBitrate2 struct {
	Mode      CanBitrateMode
	Prescaler uint32
	TS1       uint16
	TS2       uint16
	SJW       uint16
	TDO       uint16
}

func bitrate2(b native.CanBtp) CanBitrate2 {
	return CanBitrate2{
		Mode:      CanBitrateMode(b.Mode),
		Prescaler: b.BPS,
		TS1:       b.TS1,
		TS2:       b.TS2,
		SJW:       b.SJW,
		TDO:       b.TDO,
	}
}

func (b CanBitrate2) btp() native.CanBtp {
	return native.CanBtp{Mode: uint32(b.Mode), BPS: b.Prescaler, TS1: b.TS1, TS2: b.TS2, SJW: b.SJW, TDO: b.TDO}
}

func (b CanBitrate2) IsEmpty() bool { return b == CanBitrate2{} }

func (b CanBitrate2) Name() string {
	if b.IsEmpty() {
		return "<Empty>"
	}
	if name, ok := bitrate2Names[b]; ok {
		return name
	}
	return fmt.Sprintf("mode=%d bps=%d ts1=%d ts2=%d sjw=%d tdo=%d", b.Mode, b.Prescaler, b.TS1, b.TS2, b.SJW, b.TDO)
}

func (b CanBitrate2) String() string { return b.Name() }

var (
	CanBitrate2Empty = CanBitrate2{}

	Cia10KBit2   = CanBitrate2{BitrateModeNone, 10000, 14, 2, 1, 0}
	Cia20KBit2   = CanBitrate2{BitrateModeNone, 20000, 14, 2, 1, 0}
	Cia50KBit2   = CanBitrate2{BitrateModeNone, 50000, 14, 2, 1, 0}
	Bitrate100K2 = CanBitrate2{BitrateModeNone, 100000, 14, 2, 1, 0}
	Cia125KBit2  = CanBitrate2{BitrateModeNone, 125000, 14, 2, 1, 0}
	Cia250KBit2  = CanBitrate2{BitrateModeNone, 250000, 14, 2, 1, 0}
	Cia500KBit2  = CanBitrate2{BitrateModeNone, 500000, 14, 2, 1, 0}
	Cia800KBit2  = CanBitrate2{BitrateModeNone, 800000, 8, 2, 1, 0}
	Cia1000KBit2 = CanBitrate2{BitrateModeNone, 1000000, 6, 2, 1, 0}

	// Raw timings for IFI CAN FD controllers.
	IFI833KBit   = CanBitrate2{BitrateModeRaw, 6, 12, 3, 3, 78}
	IFI1000KBit  = CanBitrate2{BitrateModeRaw, 4, 15, 4, 4, 64}
	IFI2000KBit  = CanBitrate2{BitrateModeRaw, 2, 15, 4, 4, 32}
	IFI4000KBit  = CanBitrate2{BitrateModeRaw, 2, 7, 2, 2, 16}
	IFI5000KBit  = CanBitrate2{BitrateModeRaw, 2, 5, 2, 2, 12}
	IFI6667KBit  = CanBitrate2{BitrateModeRaw, 2, 3, 2, 2, 8}
	IFI8000KBit  = CanBitrate2{BitrateModeRaw, 2, 3, 1, 1, 5}
	IFI10000KBit = CanBitrate2{BitrateModeRaw, 2, 2, 1, 1, 4}

	CANFD250KBit   = CanBitrate2{BitrateModeNone, 250000, 6400, 1600, 1600, 6400}
	CANFD500KBit   = CanBitrate2{BitrateModeNone, 500000, 6400, 1600, 1600, 6400}
	CANFD833KBit   = CanBitrate2{BitrateModeNone, 833333, 1600, 400, 400, 6480}
	CANFD1000KBit  = CanBitrate2{BitrateModeNone, 1000000, 1600, 400, 400, 1600}
	CANFD1538KBit  = CanBitrate2{BitrateModeNone, 1538461, 1000, 300, 300, 1040}
	CANFD2000KBit  = CanBitrate2{BitrateModeNone, 2000000, 1600, 400, 400, 1600}
	CANFD4000KBit  = CanBitrate2{BitrateModeNone, 4000000, 800, 200, 200, 800}
	CANFD5000KBit  = CanBitrate2{BitrateModeNone, 5000000, 600, 200, 200, 600}
	CANFD6667KBit  = CanBitrate2{BitrateModeNone, 6666666, 400, 200, 200, 402}
	CANFD8000KBit  = CanBitrate2{BitrateModeNone, 8000000, 400, 100, 100, 250}
	CANFD10000KBit = CanBitrate2{BitrateModeNone, 10000000, 300, 100, 100, 200}
)

var bitrate2Names = map[CanBitrate2]string{
	Cia10KBit2:     "CiA 10 kbit/s",
	Cia20KBit2:     "CiA 20 kbit/s",
	Cia50KBit2:     "CiA 50 kbit/s",
	Bitrate100K2:   "100 kbit/s",
	Cia125KBit2:    "CiA 125 kbit/s",
	Cia250KBit2:    "CiA 250 kbit/s",
	Cia500KBit2:    "CiA 500 kbit/s",
	Cia800KBit2:    "CiA 800 kbit/s",
	Cia1000KBit2:   "CiA 1000 kbit/s",
	IFI833KBit:     "IFI CAN-FD 833 kbit/s",
	IFI1000KBit:    "IFI CAN-FD 1000 kbit/s",
	IFI2000KBit:    "IFI CAN-FD 2000 kbit/s",
	IFI4000KBit:    "IFI CAN-FD 4000 kbit/s",
	IFI5000KBit:    "IFI CAN-FD 5000 kbit/s",
	IFI6667KBit:    "IFI CAN-FD 6667 kbit/s",
	IFI8000KBit:    "IFI CAN-FD 8000 kbit/s",
	IFI10000KBit:   "IFI CAN-FD 10000 kbit/s",
	CANFD250KBit:   "CANFD 250 kbit/s",
	CANFD500KBit:   "CANFD 500 kbit/s",
	CANFD833KBit:   "CANFD 833 kbit/s",
	CANFD1000KBit:  "CANFD 1000 kbit/s",
	CANFD1538KBit:  "CANFD 1538 kbit/s",
	CANFD2000KBit:  "CANFD 2000 kbit/s",
	CANFD4000KBit:  "CANFD 4000 kbit/s",
	CANFD5000KBit:  "CANFD 5000 kbit/s",
	CANFD6667KBit:  "CANFD 6667 kbit/s",
	CANFD8000KBit:  "CANFD 8000 kbit/s",
	CANFD10000KBit: "CANFD 10000 kbit/s",
}

var (
	// CiaBitRates2 lists the CiA timings in CanBitrate2 form.
	CiaBitRates2 = []CanBitrate2{
		Cia10KBit2, Cia20KBit2, Cia50KBit2, Cia125KBit2,
		Cia250KBit2, Cia500KBit2, Cia800KBit2, Cia1000KBit2,
	}
	// CanFdBitRates lists the fast data rates in percent form.
	CanFdBitRates = []CanBitrate2{
		CANFD1000KBit, CANFD2000KBit, CANFD4000KBit, CANFD5000KBit,
		CANFD6667KBit, CANFD8000KBit, CANFD10000KBit,
	}
	// CanFdIFIBitRates lists the raw fast data rates of IFI controllers.
	CanFdIFIBitRates = []CanBitrate2{
		IFI1000KBit, IFI2000KBit, IFI4000KBit, IFI5000KBit,
		IFI6667KBit, IFI8000KBit, IFI10000KBit,
	}
)

// CanFdBitrate pairs the arbitration (Std) and data phase (Fast) timings.
type CanFdBitrate struct {
	Std  CanBitrate2
	Fast CanBitrate2
}

// SingleRate uses b for both phases.
func SingleRate(b CanBitrate2) CanFdBitrate { return CanFdBitrate{Std: b, Fast: b} }

func (b CanFdBitrate) String() string {
	if b.Std == b.Fast {
		return b.Std.String()
	}
	return b.Std.String() + " / " + b.Fast.String()
}

var (
	CiaFdBitRates = []CanFdBitrate{
		SingleRate(Cia10KBit2), SingleRate(Cia20KBit2), SingleRate(Cia50KBit2),
		SingleRate(Cia125KBit2), SingleRate(Cia250KBit2), SingleRate(Cia500KBit2),
		SingleRate(Cia800KBit2), SingleRate(Cia1000KBit2),
	}
	ShortLineCanFdBitRates = []CanFdBitrate{
		{CANFD500KBit, CANFD1000KBit},
		{CANFD500KBit, CANFD2000KBit},
		{CANFD500KBit, CANFD4000KBit},
		{CANFD500KBit, CANFD5000KBit},
		{CANFD500KBit, CANFD6667KBit},
		{CANFD500KBit, CANFD8000KBit},
		{CANFD500KBit, CANFD10000KBit},
	}
	LongLineCanFdBitRates = []CanFdBitrate{
		{CANFD250KBit, CANFD500KBit},
		{CANFD250KBit, CANFD833KBit},
		{CANFD250KBit, CANFD1000KBit},
		{CANFD250KBit, CANFD1538KBit},
		{CANFD250KBit, CANFD2000KBit},
		{CANFD250KBit, CANFD4000KBit},
	}
)

func normalizeRate(name string) string {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), " ", ""))
	s = strings.TrimSuffix(s, "BIT/S")
	s = strings.TrimSuffix(s, "BIT")
	return strings.TrimPrefix(s, "CIA")
}

var canBitrateByName = func() map[string]CanBitrate {
	m := make(map[string]CanBitrate)
	for b, kbit := range ciaKbit {
		m[fmt.Sprintf("%dK", kbit)] = b
	}
	return m
}()

var canBitrate2ByName = func() map[string]CanBitrate2 {
	m := make(map[string]CanBitrate2)
	for b, name := range bitrate2Names {
		fields := strings.Fields(name)
		kbit := fields[len(fields)-2]
		switch {
		case strings.HasPrefix(name, "IFI"):
			m["IFI"+kbit+"K"] = b
		case strings.HasPrefix(name, "CANFD"):
			m["CANFD"+kbit+"K"] = b
		default:
			m[kbit+"K"] = b
		}
	}
	return m
}()

// ParseCanBitrate looks up a CiA timing by names like "125K", "125kbit" or
// "CiA 125 kbit/s".
func ParseCanBitrate(name string) (CanBitrate, error) {
	if b, ok := canBitrateByName[normalizeRate(name)]; ok {
		return b, nil
	}
	return CanBitrate{}, fmt.Errorf("bitrate %q: %w", name, ErrInvalidArgument)
}

// ParseCanBitrate2 looks up a CanBitrate2 preset by names like "500K",
// "CANFD2000K" or "IFI4000K".
func ParseCanBitrate2(name string) (CanBitrate2, error) {
	if b, ok := canBitrate2ByName[normalizeRate(name)]; ok {
		return b, nil
	}
	return CanBitrate2{}, fmt.Errorf("bitrate %q: %w", name, ErrInvalidArgument)
}

// CanBitrateNames returns the names ParseCanBitrate accepts in short form.
func CanBitrateNames() []string { return sortedKeys(canBitrateByName) }

// CanBitrate2Names returns the names ParseCanBitrate2 accepts in short form.
func CanBitrate2Names() []string { return sortedKeys(canBitrate2ByName) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
