package vci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanBitrateNames(t *testing.T) {
	assert.Equal(t, "CiA 500 kbit/s", Cia500KBit.Name())
	assert.Equal(t, "<Empty>", CanBitrateEmpty.String())
	assert.Equal(t, "BTR0=0x07 BTR1=0x2F", CanBitrate{0x07, 0x2F}.Name())
	assert.True(t, CanBitrateEmpty.IsEmpty())

	assert.Equal(t, 32, Cia500KBit.BitTime())
	assert.Equal(t, 16, Cia1000KBit.BitTime())
	for i := 1; i < len(CiaBitRates); i++ {
		assert.Greater(t, CiaBitRates[i-1].BitTime(), CiaBitRates[i].BitTime(), CiaBitRates[i].Name())
	}
}

func TestParseCanBitrate(t *testing.T) {
	for _, name := range []string{"125K", "125kbit", "CiA 125 kbit/s", " 125 K "} {
		b, err := ParseCanBitrate(name)
		require.NoError(t, err, name)
		assert.Equal(t, Cia125KBit, b, name)
	}
	_, err := ParseCanBitrate("123K")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Equal(t, []string{"1000K", "100K", "10K", "125K", "20K", "250K", "500K", "50K", "800K"}, CanBitrateNames())
}

func TestParseCanBitrate2(t *testing.T) {
	cases := map[string]CanBitrate2{
		"500K":              Cia500KBit2,
		"100 kbit/s":        Bitrate100K2,
		"CANFD 2000 kbit/s": CANFD2000KBit,
		"canfd833k":         CANFD833KBit,
		"IFI4000K":          IFI4000KBit,
		"ifi 833 kbit":      IFI833KBit,
	}
	for name, want := range cases {
		b, err := ParseCanBitrate2(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, b, name)
	}
	_, err := ParseCanBitrate2("CANFD 3000K")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	names := CanBitrate2Names()
	assert.Len(t, names, len(bitrate2Names))
	assert.Contains(t, names, "CANFD10000K")
	assert.IsNonDecreasing(t, names)
}

func TestCanBitrate2Names(t *testing.T) {
	assert.Equal(t, "IFI CAN-FD 833 kbit/s", IFI833KBit.Name())
	assert.Equal(t, "<Empty>", CanBitrate2Empty.Name())
	assert.Equal(t, "mode=1 bps=3 ts1=4 ts2=5 sjw=6 tdo=7", CanBitrate2{BitrateModeRaw, 3, 4, 5, 6, 7}.Name())

	assert.Equal(t, "CANFD 500 kbit/s", SingleRate(CANFD500KBit).String())
	assert.Equal(t, "CANFD 250 kbit/s / CANFD 833 kbit/s", LongLineCanFdBitRates[1].String())
	assert.Len(t, LongLineCanFdBitRates, 6)
	assert.Len(t, ShortLineCanFdBitRates, 7)
	assert.Len(t, CiaFdBitRates, len(CiaBitRates2))
}

func TestCanBitrate2NativeRoundTrip(t *testing.T) {
	for _, b := range append(append([]CanBitrate2{}, CanFdBitRates...), CanFdIFIBitRates...) {
		assert.Equal(t, b, bitrate2(b.btp()), b.Name())
	}
}
