package driver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/thoas/go-funk"

	"github.com/LoveWonYoung/vci4go/vci"
)

// ListDevices returns the info of every installed adapter.
func ListDevices(srv *vci.Server) ([]vci.DeviceInfo, error) {
	devices, err := installedDevices(srv)
	if err != nil {
		return nil, err
	}
	infos := make([]vci.DeviceInfo, len(devices))
	for i, d := range devices {
		infos[i] = d.DeviceInfo
		d.Close()
	}
	return infos, nil
}

// OpenDevice opens the adapter chosen by sel: empty for the first one, a
// decimal index into the device list or a hardware id such as "HW123456".
func OpenDevice(srv *vci.Server, sel string) (*vci.Device, error) {
	devices, err := installedDevices(srv)
	if err != nil {
		return nil, err
	}
	pick := selectDevice(devices, sel)
	var dev *vci.Device
	for i, d := range devices {
		if i == pick {
			dev = d
			continue
		}
		d.Close()
	}
	if dev == nil {
		return nil, fmt.Errorf("device %q not found among %d: %w", sel, len(devices), vci.ErrNoSuchDevice)
	}
	return dev, nil
}

func selectDevice(devices []*vci.Device, sel string) int {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return 0
	}
	if idx, err := strconv.Atoi(sel); err == nil {
		return idx
	}
	ids := make([]string, len(devices))
	for i, d := range devices {
		ids[i] = strings.ToUpper(d.UniqueHardwareID.String())
	}
	return funk.IndexOfString(ids, strings.ToUpper(sel))
}

func installedDevices(srv *vci.Server) ([]*vci.Device, error) {
	mgr, err := srv.DeviceManager()
	if err != nil {
		return nil, err
	}
	defer mgr.Close()
	list, err := mgr.DeviceList()
	if err != nil {
		return nil, err
	}
	defer list.Close()
	return list.Devices()
}
