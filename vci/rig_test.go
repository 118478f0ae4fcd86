package vci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoveWonYoung/vci4go/native"
	"github.com/LoveWonYoung/vci4go/native/sim"
)

// rig is one simulated adapter opened down to its BAL.
type rig struct {
	drv *sim.Driver
	dev *sim.Device
	srv *Server
	bal *Bal
}

// newRig plugs in a device with the given ports and opens its BAL. At the
// end of the test every native reference must have been released.
func newRig(t *testing.T, ports ...sim.PortConfig) *rig {
	t.Helper()
	drv := sim.New()
	t.Cleanup(func() {
		assert.Zero(t, drv.Live(), "native references leaked")
	})
	dev := drv.AddDevice(sim.DeviceConfig{
		Description:  "USB-to-CAN V2",
		Manufacturer: "HMS Ixxat",
		HardwareID:   "HW123456",
		FwMajor:      1,
		FwMinor:      7,
		Ports:        ports,
	})

	srv, err := Open(drv)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	mgr, err := srv.DeviceManager()
	require.NoError(t, err)
	defer mgr.Close()
	d, err := mgr.OpenDevice(dev.ID())
	require.NoError(t, err)
	defer d.Close()
	bal, err := d.OpenBusAccessLayer()
	require.NoError(t, err)
	t.Cleanup(func() { bal.Close() })

	return &rig{drv: drv, dev: dev, srv: srv, bal: bal}
}

// startCan opens the control of port, initialises it at 500 kbit/s and
// starts the line.
func (r *rig) startCan(t *testing.T, port uint8) *CanControl {
	t.Helper()
	ctl, err := r.bal.OpenCanControl(port)
	require.NoError(t, err)
	t.Cleanup(func() { ctl.Close() })
	require.NoError(t, ctl.InitLine(OpModeStandard|OpModeExtended|OpModeErrFrame, Cia500KBit))
	require.NoError(t, ctl.StartLine())
	return ctl
}

// openChannel opens, initialises and activates a classic channel.
func (r *rig) openChannel(t *testing.T, port uint8, exclusive bool) *CanChannel {
	t.Helper()
	ch, err := r.bal.OpenCanChannel(port)
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })
	require.NoError(t, ch.Initialize(16, 16, exclusive))
	require.NoError(t, ch.Activate())
	return ch
}

func dataFrame(id uint32, data ...byte) native.CanMsg2 {
	msg := native.CanMsg2{
		ID:   id,
		Info: native.CanMsgInfo(0).WithType(native.CanMsgTypeData).WithDLC(uint8(len(data))),
	}
	copy(msg.Data[:], data)
	return msg
}
