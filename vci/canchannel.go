package vci

import (
	"fmt"
	"sync"

	"github.com/LoveWonYoung/vci4go/native"
)

// canChannel is the part shared by both channel versions. The native
// channel is created on the socket by the first Initialize and created
// again when the exclusive flag changes.
type canChannel[S native.Unknown, C native.Channel] struct {
	lib    native.Library
	port   uint8
	socket *ref[S]
	layout canLayout
	create func(S, bool) (C, native.Status)

	mu        sync.Mutex
	ch        C
	created   bool
	exclusive bool
	closed    bool
}

// open makes sure a native channel with the requested exclusive flag
// exists. c.mu must be held.
func (c *canChannel[S, C]) open(exclusive bool) error {
	if c.created && c.exclusive == exclusive {
		return nil
	}
	if c.created {
		c.ch.Release()
		var zero C
		c.ch, c.created = zero, false
	}
	ch, err := call(c.socket, func(s S) (C, error) {
		ch, st := c.create(s, exclusive)
		return ch, statusError(c.lib, "create channel", st)
	})
	if err != nil {
		return err
	}
	c.ch, c.created, c.exclusive = ch, true, exclusive
	return nil
}

// with runs fn on the native channel. A channel that was never initialised
// fails with ErrInvalidOperation.
func (c *canChannel[S, C]) with(op string, fn func(C) native.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.created {
		return fmt.Errorf("%s: channel not initialized: %w", op, ErrInvalidOperation)
	}
	return statusError(c.lib, op, fn(c.ch))
}

func (c *canChannel[S, C]) Port() uint8 { return c.port }

// Activate connects the channel to the bus.
func (c *canChannel[S, C]) Activate() error {
	return c.with("activate channel", func(ch C) native.Status { return ch.Activate() })
}

func (c *canChannel[S, C]) Deactivate() error {
	return c.with("deactivate channel", func(ch C) native.Status { return ch.Deactivate() })
}

// IsExclusive reports whether the channel was initialised for exclusive use.
func (c *canChannel[S, C]) IsExclusive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created && c.exclusive
}

// MessageReader opens the receive FIFO. The reader keeps working after the
// channel is closed.
func (c *canChannel[S, C]) MessageReader() (*CanMessageReader, error) {
	var r native.FifoReader
	err := c.with("open reader", func(ch C) native.Status {
		var st native.Status
		r, st = ch.Reader()
		return st
	})
	if err != nil {
		return nil, err
	}
	return &CanMessageReader{fifo: fifo[native.FifoReader]{lib: c.lib, h: newRef(r)}, layout: c.layout}, nil
}

// MessageWriter opens the transmit FIFO.
func (c *canChannel[S, C]) MessageWriter() (*CanMessageWriter, error) {
	var w native.FifoWriter
	err := c.with("open writer", func(ch C) native.Status {
		var st native.Status
		w, st = ch.Writer()
		return st
	})
	if err != nil {
		return nil, err
	}
	return &CanMessageWriter{fifo: fifo[native.FifoWriter]{lib: c.lib, h: newRef(w)}, layout: c.layout}, nil
}

func (c *canChannel[S, C]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.created {
		c.ch.Release()
		var zero C
		c.ch, c.created = zero, false
	}
	return c.socket.close()
}

// CanChannelStatus is a snapshot of a channel and its line.
type CanChannelStatus struct {
	LineStatus       CanLineStatus
	IsActivated      bool
	HasFifoOverrun   bool
	ReceiveFifoLoad  uint8
	TransmitFifoLoad uint8
}

// CanChannel sends and receives classic CAN messages.
type CanChannel struct {
	canChannel[native.CanSocket, native.CanChannel]
}

func newCanChannel(lib native.Library, port uint8, s native.CanSocket) *CanChannel {
	return &CanChannel{canChannel[native.CanSocket, native.CanChannel]{
		lib:    lib,
		port:   port,
		socket: newRef(s),
		layout: layoutClassic,
		create: native.CanSocket.CreateChannel,
	}}
}

// Initialize creates the FIFOs with room for rxSize and txSize messages.
// An exclusive channel is the only one allowed on the port.
func (c *CanChannel) Initialize(rxSize, txSize uint16, exclusive bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.open(exclusive); err != nil {
		return err
	}
	return statusError(c.lib, fmt.Sprintf("initialize channel (rx %d, tx %d)", rxSize, txSize), c.ch.Initialize(rxSize, txSize))
}

func (c *CanChannel) ChannelStatus() (CanChannelStatus, error) {
	var s native.CanChanStatus
	err := c.with("get channel status", func(ch native.CanChannel) native.Status {
		var st native.Status
		s, st = ch.Status()
		return st
	})
	if err != nil {
		return CanChannelStatus{}, err
	}
	return CanChannelStatus{
		LineStatus:       newCanLineStatus(s.LineStatus),
		IsActivated:      s.Activated != 0,
		HasFifoOverrun:   s.RxOverrun != 0,
		ReceiveFifoLoad:  s.RxFifoLoad,
		TransmitFifoLoad: s.TxFifoLoad,
	}, nil
}

type CanChannelStatus2 struct {
	LineStatus       CanLineStatus2
	IsActivated      bool
	HasFifoOverrun   bool
	ReceiveFifoLoad  uint8
	TransmitFifoLoad uint8
}

// CanChannel2 sends and receives CAN and CAN FD messages and has its own
// acceptance filters.
type CanChannel2 struct {
	canChannel[native.CanSocket2, native.CanChannel2]
}

func newCanChannel2(lib native.Library, port uint8, s native.CanSocket2) *CanChannel2 {
	return &CanChannel2{canChannel[native.CanSocket2, native.CanChannel2]{
		lib:    lib,
		port:   port,
		socket: newRef(s),
		layout: layoutFd,
		create: native.CanSocket2.CreateChannel,
	}}
}

// Initialize creates the FIFOs and a filter table of filterSize ids. The
// filter mode applies to both the 11-bit and the 29-bit filter.
func (c *CanChannel2) Initialize(rxSize, txSize uint16, filterSize uint32, filterMode CanFilterMode, exclusive bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.open(exclusive); err != nil {
		return err
	}
	op := fmt.Sprintf("initialize channel (rx %d, tx %d, filter %d, %s)", rxSize, txSize, filterSize, filterMode)
	return statusError(c.lib, op, c.ch.Initialize(rxSize, txSize, filterSize, uint8(filterMode)))
}

func (c *CanChannel2) ChannelStatus() (CanChannelStatus2, error) {
	var s native.CanChanStatus2
	err := c.with("get channel status", func(ch native.CanChannel2) native.Status {
		var st native.Status
		s, st = ch.Status()
		return st
	})
	if err != nil {
		return CanChannelStatus2{}, err
	}
	return CanChannelStatus2{
		LineStatus:       newCanLineStatus2(s.LineStatus),
		IsActivated:      s.Activated != 0,
		HasFifoOverrun:   s.RxOverrun != 0,
		ReceiveFifoLoad:  s.RxFifoLoad,
		TransmitFifoLoad: s.TxFifoLoad,
	}, nil
}

func (c *CanChannel2) FilterMode(sel CanFilter) (CanFilterMode, error) {
	var mode uint8
	err := c.with("get filter mode", func(ch native.CanChannel2) native.Status {
		var st native.Status
		mode, st = ch.FilterMode(uint8(sel))
		return st
	})
	return CanFilterMode(mode), err
}

// SetFilterMode changes the mode of the selected filter and returns the
// previous one. The channel must be inactive.
func (c *CanChannel2) SetFilterMode(sel CanFilter, mode CanFilterMode) (CanFilterMode, error) {
	var prev uint8
	err := c.with("set filter mode", func(ch native.CanChannel2) native.Status {
		var st native.Status
		prev, st = ch.SetFilterMode(uint8(sel), uint8(mode))
		return st
	})
	return CanFilterMode(prev), err
}

func (c *CanChannel2) SetAccFilter(sel CanFilter, code, mask uint32) error {
	return c.with("set acceptance filter", func(ch native.CanChannel2) native.Status {
		return ch.SetAccFilter(uint8(sel), code, mask)
	})
}

func (c *CanChannel2) AddFilterIds(sel CanFilter, code, mask uint32) error {
	return c.with("add filter ids", func(ch native.CanChannel2) native.Status {
		return ch.AddFilterIds(uint8(sel), code, mask)
	})
}

func (c *CanChannel2) RemFilterIds(sel CanFilter, code, mask uint32) error {
	return c.with("remove filter ids", func(ch native.CanChannel2) native.Status {
		return ch.RemFilterIds(uint8(sel), code, mask)
	})
}
