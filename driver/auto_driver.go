package driver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/LoveWonYoung/vci4go/vci"
)

// AutoDriver selects the first CAN port that initializes, walking the
// adapters in device list order and their ports in BAL order.
type AutoDriver struct {
	srv     *vci.Server
	canType CanType
	opts    IxxatOptions
	mu      sync.Mutex
	driver  CANDriver
	name    string
}

// NewAutoDriver uses opts for every candidate port; Device and Port are
// filled in per candidate.
func NewAutoDriver(srv *vci.Server, canType CanType, opts IxxatOptions) *AutoDriver {
	return &AutoDriver{srv: srv, canType: canType, opts: opts}
}

type candidate struct {
	name   string
	driver CANDriver
}

func (a *AutoDriver) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.driver != nil {
		return nil
	}
	candidates, err := a.candidates()
	if err != nil {
		return fmt.Errorf("auto driver: %w", err)
	}

	var errs []string
	for _, candidate := range candidates {
		if err := candidate.driver.Init(); err == nil {
			a.driver, a.name = candidate.driver, candidate.name
			log.Printf("Auto driver selected: %s", candidate.name)
			return nil
		} else {
			log.Printf("Auto driver: %s init failed: %v", candidate.name, err)
			errs = append(errs, fmt.Sprintf("%s: %v", strings.ToLower(candidate.name), err))
		}
	}

	return fmt.Errorf("no available CAN device (%s)", strings.Join(errs, "; "))
}

// candidates lists one driver per CAN port of every installed adapter.
func (a *AutoDriver) candidates() ([]candidate, error) {
	devices, err := installedDevices(a.srv)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, d := range devices {
			d.Close()
		}
	}()

	var out []candidate
	for i, dev := range devices {
		bal, err := dev.OpenBusAccessLayer()
		if err != nil {
			log.Printf("Auto driver: %s skipped: %v", dev, err)
			continue
		}
		for _, res := range bal.Resources() {
			if res.BusType != vci.BusCan {
				continue
			}
			opts := a.opts
			opts.Device = strconv.Itoa(i)
			opts.Port = res.Port
			out = append(out, candidate{
				name:   fmt.Sprintf("IXXAT %s %s", dev.Description, res.BusName()),
				driver: NewIxxat(a.srv, a.canType, opts),
			})
		}
		bal.Close()
	}
	return out, nil
}

// Selected names the chosen port, empty before a successful Init.
func (a *AutoDriver) Selected() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

func (a *AutoDriver) Start() {
	if drv := a.getDriver(); drv != nil {
		drv.Start()
		return
	}
	log.Println("Auto driver start called before init")
}

func (a *AutoDriver) Stop() {
	if drv := a.getDriver(); drv != nil {
		drv.Stop()
		return
	}
}

func (a *AutoDriver) Write(id int32, data []byte) error {
	if drv := a.getDriver(); drv != nil {
		return drv.Write(id, data)
	}
	return errors.New("driver not initialized")
}

func (a *AutoDriver) RxChan() <-chan UnifiedCANMessage {
	if drv := a.getDriver(); drv != nil {
		return drv.RxChan()
	}
	return nil
}

func (a *AutoDriver) Context() context.Context {
	if drv := a.getDriver(); drv != nil {
		return drv.Context()
	}
	return context.Background()
}

func (a *AutoDriver) getDriver() CANDriver {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.driver
}
