package sim

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/LoveWonYoung/vci4go/native"
)

var eventHandles atomic.Uintptr

// Event mimics a Win32 event object.
type Event struct {
	mu       sync.Mutex
	manual   bool
	signaled bool
	ch       chan struct{}
	handle   uintptr
}

func NewEvent(manualReset bool) *Event {
	return &Event{
		manual: manualReset,
		ch:     make(chan struct{}),
		handle: eventHandles.Add(1),
	}
}

func (e *Event) Handle() uintptr { return e.handle }

func (e *Event) Set() native.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.signaled {
		e.signaled = true
		close(e.ch)
	}
	return native.StatusOK
}

func (e *Event) Reset() native.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
	return native.StatusOK
}

func (e *Event) resetLocked() {
	if e.signaled {
		e.signaled = false
		e.ch = make(chan struct{})
	}
}

func (e *Event) Wait(timeoutMs uint32) bool {
	var expired <-chan time.Time
	if timeoutMs != native.Infinite {
		t := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
		defer t.Stop()
		expired = t.C
	}
	for {
		e.mu.Lock()
		if e.signaled {
			if !e.manual {
				e.resetLocked()
			}
			e.mu.Unlock()
			return true
		}
		ch := e.ch
		e.mu.Unlock()

		// a signal consumed by another waiter sends us round again
		select {
		case <-ch:
		case <-expired:
			return false
		}
	}
}

func (e *Event) Close() error { return nil }

func signal(ev native.Event) {
	if ev != nil {
		ev.Set()
	}
}
