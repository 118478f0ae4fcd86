package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/LoveWonYoung/vci4go/config"
	"github.com/LoveWonYoung/vci4go/driver"
	"github.com/LoveWonYoung/vci4go/vci"
)

func main() {
	backend := flag.String("backend", config.BackendNative, "native or sim")
	flag.Parse()

	fmt.Println("GOARCH =", runtime.GOARCH)
	cfg := config.Default()
	cfg.Backend = *backend
	b, err := cfg.OpenBackend()
	if err != nil {
		log.Fatal(err)
	}
	defer b.Close()
	if err := listDevices(os.Stdout, b.Server); err != nil {
		log.Fatal(err)
	}
}

// listDevices prints the driver version and every adapter with its bus
// ports.
func listDevices(w io.Writer, srv *vci.Server) error {
	version, err := srv.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "VCI server %s\n", version)

	infos, err := driver.ListDevices(srv)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(w, "no device found")
		return nil
	}
	for i, info := range infos {
		fmt.Fprintf(w, "%d: %s - %s (%s)\n", i, info.Manufacturer, info.Description, info.UniqueHardwareID)
		dev, err := driver.OpenDevice(srv, fmt.Sprint(i))
		if err != nil {
			return err
		}
		bal, err := dev.OpenBusAccessLayer()
		dev.Close()
		if err != nil {
			return err
		}
		for _, res := range bal.Resources() {
			fmt.Fprintf(w, "   port %d: %s\n", res.Port, res.BusName())
		}
		bal.Close()
	}
	return nil
}
