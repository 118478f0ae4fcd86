package vci

import (
	"errors"
	"fmt"
	"sync"

	"github.com/LoveWonYoung/vci4go/native"
)

type CanCyclicTxIncMode uint8

const (
	IncModeNone CanCyclicTxIncMode = 0x00
	IncModeID   CanCyclicTxIncMode = 0x01
	IncMode8    CanCyclicTxIncMode = 0x02
	IncMode16   CanCyclicTxIncMode = 0x03
)

func (m CanCyclicTxIncMode) String() string {
	switch m {
	case IncModeNone:
		return "NoInc"
	case IncModeID:
		return "IncId"
	case IncMode8:
		return "Inc8"
	case IncMode16:
		return "Inc16"
	}
	return fmt.Sprintf("CanCyclicTxIncMode(%d)", uint8(m))
}

type CanCyclicTxStatus uint8

const (
	CyclicEmpty CanCyclicTxStatus = CanCyclicTxStatus(native.CtxStatusEmpty)
	CyclicBusy  CanCyclicTxStatus = CanCyclicTxStatus(native.CtxStatusBusy)
	CyclicDone  CanCyclicTxStatus = CanCyclicTxStatus(native.CtxStatusDone)
)

func (s CanCyclicTxStatus) String() string {
	switch s {
	case CyclicEmpty:
		return "Empty"
	case CyclicBusy:
		return "Busy"
	case CyclicDone:
		return "Done"
	}
	return fmt.Sprintf("CanCyclicTxStatus(%d)", uint8(s))
}

const (
	maxStdID = 0x800
	maxExtID = 0x20000000
)

type cyclicOwner interface {
	start(m *CyclicTxMessage, repeat uint16) error
	stop(m *CyclicTxMessage) error
	remove(m *CyclicTxMessage) error
	status(m *CyclicTxMessage) CanCyclicTxStatus
}

// CyclicTxMessage is a message the scheduler transmits every CycleTicks
// ticks. Changes to the fields take effect on the next Start.
type CyclicTxMessage struct {
	CanMessage
	CycleTicks         uint16
	AutoIncrementMode  CanCyclicTxIncMode
	AutoIncrementIndex uint8

	owner cyclicOwner

	// guarded by the owning scheduler
	added  bool
	handle uint32
	last   any
	state  CanCyclicTxStatus
}

// Start (re)registers the message with the scheduler if it changed since it
// was last registered and starts transmission. A repeat count of 0 sends
// until Stop.
func (m *CyclicTxMessage) Start(repeat uint16) error {
	if m.owner == nil {
		return fmt.Errorf("start cyclic message: %w", ErrInvalidOperation)
	}
	return m.owner.start(m, repeat)
}

func (m *CyclicTxMessage) Stop() error {
	if m.owner == nil {
		return fmt.Errorf("stop cyclic message: %w", ErrInvalidOperation)
	}
	return m.owner.stop(m)
}

// Reset removes the message from the scheduler. A later Start registers it
// again.
func (m *CyclicTxMessage) Reset() error {
	if m.owner == nil {
		return nil
	}
	return m.owner.remove(m)
}

// Status refreshes the scheduler status and returns the one of m.
func (m *CyclicTxMessage) Status() CanCyclicTxStatus {
	if m.owner == nil {
		return CyclicEmpty
	}
	return m.owner.status(m)
}

func (m *CyclicTxMessage) checkID() error {
	limit := uint32(maxStdID)
	if m.ExtendedFrameFormat {
		limit = maxExtID
	}
	if m.Identifier >= limit {
		return fmt.Errorf("identifier 0x%X: %w", m.Identifier, ErrInvalidArg)
	}
	return nil
}

func (m *CyclicTxMessage) checkIndex(limit int) error {
	if int(m.AutoIncrementIndex) >= limit {
		return fmt.Errorf("auto increment index %d: %w", m.AutoIncrementIndex, ErrOutOfRange)
	}
	return nil
}

func cyclicClassic(m *CyclicTxMessage) (any, error) {
	if err := m.checkIndex(native.CanSdlcMax); err != nil {
		return nil, err
	}
	if err := m.checkClassic(); err != nil {
		return nil, err
	}
	raw := native.CanCyclicTxMsg{
		CycleTime: m.CycleTicks,
		IncrMode:  uint8(m.AutoIncrementMode),
		ByteIndex: m.AutoIncrementIndex,
		ID:        m.Identifier,
		Info:      m.info(),
	}
	copy(raw.Data[:], m.Data[:])
	return raw, nil
}

func cyclicFd(m *CyclicTxMessage) (any, error) {
	if err := m.checkIndex(native.CanFdlcMax); err != nil {
		return nil, err
	}
	return native.CanCyclicTxMsg2{
		CycleTime: m.CycleTicks,
		IncrMode:  uint8(m.AutoIncrementMode),
		ByteIndex: m.AutoIncrementIndex,
		ID:        m.Identifier,
		Info:      m.info(),
		Data:      m.Data,
	}, nil
}

type schedulerNative interface {
	native.Unknown
	Suspend() native.Status
	Resume() native.Status
	Reset() native.Status
	Status() (native.CanSchedulerStatus, native.Status)
	RemMessage(handle uint32) native.Status
	StartMessage(handle uint32, repeat uint16) native.Status
	StopMessage(handle uint32) native.Status
}

// scheduler is shared by both scheduler versions. It keeps track of which
// message occupies which native slot.
type scheduler[T schedulerNative] struct {
	lib   native.Library
	port  uint8
	h     *ref[T]
	build func(*CyclicTxMessage) (any, error)
	add   func(T, any) (uint32, native.Status)

	mu    sync.Mutex
	slots [native.CanMaxCtxMsgs]*CyclicTxMessage
}

func (s *scheduler[T]) Port() uint8 { return s.port }

// Suspend pauses transmission of all messages.
func (s *scheduler[T]) Suspend() error {
	return s.h.do(func(x T) error {
		return statusError(s.lib, "suspend scheduler", x.Suspend())
	})
}

func (s *scheduler[T]) Resume() error {
	return s.h.do(func(x T) error {
		return statusError(s.lib, "resume scheduler", x.Resume())
	})
}

// Reset stops the scheduler and removes every message from it.
func (s *scheduler[T]) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.h.do(func(x T) error {
		return statusError(s.lib, "reset scheduler", x.Reset())
	})
	if errors.Is(err, ErrClosed) {
		return err
	}
	for i, m := range s.slots {
		if m != nil {
			m.added, m.last, m.state = false, nil, CyclicEmpty
			s.slots[i] = nil
		}
	}
	return err
}

// UpdateStatus reads the slot states into the registered messages.
func (s *scheduler[T]) UpdateStatus() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.refresh()
	return err
}

// IsRunning reports whether the scheduler is not suspended.
func (s *scheduler[T]) IsRunning() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.refresh()
	return st.TaskStat != 0, err
}

// refresh must be called with s.mu held.
func (s *scheduler[T]) refresh() (native.CanSchedulerStatus, error) {
	return call(s.h, func(x T) (native.CanSchedulerStatus, error) {
		st, code := x.Status()
		if err := statusError(s.lib, "get scheduler status", code); err != nil {
			return st, err
		}
		for i, m := range s.slots {
			if m != nil {
				m.state = CanCyclicTxStatus(st.MsgStat[i])
			}
		}
		return st, nil
	})
}

// AddMessage creates a message owned by this scheduler. It is registered
// with the native scheduler on its first Start.
func (s *scheduler[T]) AddMessage() *CyclicTxMessage {
	return &CyclicTxMessage{owner: s}
}

func (s *scheduler[T]) start(m *CyclicTxMessage, repeat uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.build(m)
	if err != nil {
		return err
	}
	return s.h.do(func(x T) error {
		if !m.added || raw != m.last {
			if err := m.checkID(); err != nil {
				return err
			}
			if m.added {
				s.detach(x, m)
			}
			handle, st := s.add(x, raw)
			if err := statusError(s.lib, "add cyclic message", st); err != nil {
				return err
			}
			if handle >= native.CanMaxCtxMsgs || s.slots[handle] != nil {
				x.RemMessage(handle)
				return fmt.Errorf("add cyclic message: handle %d: %w", handle, ErrOutOfRange)
			}
			s.slots[handle] = m
			m.added, m.handle, m.last = true, handle, raw
		}
		if err := statusError(s.lib, "start cyclic message", x.StartMessage(m.handle, repeat)); err != nil {
			return err
		}
		m.state = CyclicBusy
		return nil
	})
}

func (s *scheduler[T]) stop(m *CyclicTxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.do(func(x T) error {
		if !m.added {
			return nil
		}
		if err := statusError(s.lib, "stop cyclic message", x.StopMessage(m.handle)); err != nil {
			return err
		}
		m.state = CyclicDone
		return nil
	})
}

func (s *scheduler[T]) remove(m *CyclicTxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.do(func(x T) error {
		if m.added {
			s.detach(x, m)
		}
		return nil
	})
}

// detach removes m from its native slot. s.mu must be held.
func (s *scheduler[T]) detach(x T, m *CyclicTxMessage) {
	x.RemMessage(m.handle)
	s.slots[m.handle] = nil
	m.added, m.last, m.state = false, nil, CyclicEmpty
}

func (s *scheduler[T]) status(m *CyclicTxMessage) CanCyclicTxStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh()
	return m.state
}

func (s *scheduler[T]) Close() error { return s.h.close() }

// CanScheduler transmits classic CAN messages cyclically.
type CanScheduler struct {
	scheduler[native.CanScheduler]
}

func newCanScheduler(lib native.Library, port uint8, s native.CanScheduler) *CanScheduler {
	return &CanScheduler{scheduler[native.CanScheduler]{
		lib:   lib,
		port:  port,
		h:     newRef(s),
		build: cyclicClassic,
		add: func(x native.CanScheduler, raw any) (uint32, native.Status) {
			return x.AddMessage(raw.(native.CanCyclicTxMsg))
		},
	}}
}

// CanScheduler2 transmits CAN and CAN FD messages cyclically.
type CanScheduler2 struct {
	scheduler[native.CanScheduler2]
}

func newCanScheduler2(lib native.Library, port uint8, s native.CanScheduler2) *CanScheduler2 {
	return &CanScheduler2{scheduler[native.CanScheduler2]{
		lib:   lib,
		port:  port,
		h:     newRef(s),
		build: cyclicFd,
		add: func(x native.CanScheduler2, raw any) (uint32, native.Status) {
			return x.AddMessage(raw.(native.CanCyclicTxMsg2))
		},
	}}
}
