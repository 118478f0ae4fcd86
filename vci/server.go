// Package vci binds the IXXAT VCI driver. Every type wraps one native
// interface, forwards calls to it, turns failed status codes into *Error
// values and releases its native reference on Close.
//
// Objects stay usable after the object they were opened from is closed:
// a socket keeps working after its Bal is closed, a Bal after its Device.
package vci

import (
	"fmt"
	"sync"

	"github.com/LoveWonYoung/vci4go/native"
)

// Server is the entry point to the driver.
type Server struct {
	lib native.Library

	mu     sync.Mutex
	closed bool
}

// Open initializes lib and returns a server using it.
func Open(lib native.Library) (*Server, error) {
	if err := statusError(lib, "initialize", lib.Initialize()); err != nil {
		return nil, err
	}
	return &Server{lib: lib}, nil
}

var (
	defaultOnce   sync.Once
	defaultServer *Server
	defaultErr    error
)

// Default returns the server of the platform library, loading it on first
// use. It fails on platforms without VCI.
func Default() (*Server, error) {
	defaultOnce.Do(func() {
		lib, err := native.Load()
		if err != nil {
			defaultErr = fmt.Errorf("vci: load library: %w", err)
			return
		}
		defaultServer, defaultErr = Open(lib)
	})
	return defaultServer, defaultErr
}

func (s *Server) library() (native.Library, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.lib, nil
}

// ServerVersion is the version of the installed driver.
type ServerVersion struct {
	Major    uint32
	Minor    uint32
	Revision uint32
	Build    uint32
}

func (v ServerVersion) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Revision, v.Build)
}

func (s *Server) Version() (ServerVersion, error) {
	lib, err := s.library()
	if err != nil {
		return ServerVersion{}, err
	}
	info, st := lib.Version()
	if err := statusError(lib, "get version", st); err != nil {
		return ServerVersion{}, err
	}
	return ServerVersion{
		Major:    info.VciMajor,
		Minor:    info.VciMinor,
		Revision: info.VciRevision,
		Build:    info.VciBuild,
	}, nil
}

func (s *Server) DeviceManager() (*DeviceManager, error) {
	lib, err := s.library()
	if err != nil {
		return nil, err
	}
	mgr, st := lib.DeviceManager()
	if err := statusError(lib, "get device manager", st); err != nil {
		return nil, err
	}
	return &DeviceManager{lib: lib, h: newRef(mgr)}, nil
}

// ErrorText returns the driver's description of code.
func (s *Server) ErrorText(code native.Status) string {
	lib, err := s.library()
	if err != nil {
		return code.String()
	}
	text, st := lib.FormatError(code)
	if st != native.StatusOK || text == "" {
		return code.String()
	}
	return text
}

// NewEvent creates a waitable event for AssignEvent. A manual reset event
// stays signalled until Reset.
func (s *Server) NewEvent(manualReset bool) (*Event, error) {
	lib, err := s.library()
	if err != nil {
		return nil, err
	}
	ev, st := lib.NewEvent(manualReset)
	if err := statusError(lib, "create event", st); err != nil {
		return nil, err
	}
	return &Event{ev: ev}, nil
}

func (s *Server) MessageFactory() MessageFactory { return MessageFactory{} }

// Close releases the library. Objects opened through the server must be
// closed first.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.lib.Close()
}

// MessageKind selects the message type created by MessageFactory.
type MessageKind int

const (
	MessageCan MessageKind = iota + 1
	MessageCan2
	MessageLin
)

func (k MessageKind) String() string {
	switch k {
	case MessageCan:
		return "CanMessage"
	case MessageCan2:
		return "CanMessage2"
	case MessageLin:
		return "LinMessage"
	}
	return fmt.Sprintf("MessageKind(%d)", int(k))
}

type MessageFactory struct{}

// CreateMsg returns a zero *CanMessage for MessageCan, a *CanMessage marked
// with ExtendedDataLength for MessageCan2 and a zero *LinMessage for
// MessageLin.
func (MessageFactory) CreateMsg(kind MessageKind) (any, error) {
	switch kind {
	case MessageCan:
		return &CanMessage{}, nil
	case MessageCan2:
		return &CanMessage{ExtendedDataLength: true}, nil
	case MessageLin:
		return &LinMessage{}, nil
	}
	return nil, fmt.Errorf("create message %s: %w", kind, ErrInvalidArgument)
}
