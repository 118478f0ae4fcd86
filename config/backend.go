package config

import (
	"context"
	"fmt"
	"time"

	"github.com/LoveWonYoung/vci4go/native/sim"
	"github.com/LoveWonYoung/vci4go/vci"
)

// SimCycle is how often the simulated adapter runs its cyclic scheduler.
const SimCycle = 100 * time.Millisecond

// simAdapter is plugged into the sim backend: CAN FD on port 0, LIN on
// port 1.
var simAdapter = sim.DeviceConfig{
	Description:  "USB-to-CAN FD (simulated)",
	Manufacturer: "HMS Ixxat",
	HardwareID:   "HW000001",
	Ports:        []sim.PortConfig{sim.DefaultCanFdPort, sim.DefaultLinPort},
}

// Backend is an opened VCI server.
type Backend struct {
	Server *vci.Server
	// Sim and SimDevice are set for the sim backend.
	Sim       *sim.Driver
	SimDevice *sim.Device

	cancel context.CancelFunc
	done   chan struct{}
}

// OpenBackend opens the server named by c.Backend. The sim backend ticks
// the schedulers of its adapter until Close.
func (c Config) OpenBackend() (*Backend, error) {
	switch c.Backend {
	case BackendNative:
		srv, err := vci.Default()
		if err != nil {
			return nil, err
		}
		return &Backend{Server: srv}, nil
	case BackendSim:
		drv := sim.New()
		dev := drv.AddDevice(simAdapter)
		srv, err := vci.Open(drv)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithCancel(context.Background())
		b := &Backend{Server: srv, Sim: drv, SimDevice: dev, cancel: cancel, done: make(chan struct{})}
		go b.tick(ctx, dev.Port(0))
		return b, nil
	}
	return nil, fmt.Errorf("backend %q: %w", c.Backend, ErrInvalid)
}

func (b *Backend) tick(ctx context.Context, port *sim.Port) {
	defer close(b.done)
	ticker := time.NewTicker(SimCycle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			port.Tick()
		}
	}
}

// Close stops the sim ticker and closes the server. The native server is
// shared by the process and stays open.
func (b *Backend) Close() error {
	if b.Sim == nil {
		return nil
	}
	b.cancel()
	<-b.done
	return b.Server.Close()
}
