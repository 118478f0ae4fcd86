package vci

import (
	"context"
	"sync"
	"time"

	"github.com/LoveWonYoung/vci4go/native"
)

// waitSlice bounds a single native wait so Wait can observe ctx.
const waitSlice = 20 * time.Millisecond

// Event is a native waitable event. FIFOs signal it when their fill level
// reaches the threshold, device lists when devices come and go.
type Event struct {
	ev native.Event

	mu     sync.RWMutex
	closed bool
}

func (e *Event) raw() (native.Event, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.ev, nil
}

func (e *Event) Set() error {
	ev, err := e.raw()
	if err != nil {
		return err
	}
	return statusError(nil, "set event", ev.Set())
}

func (e *Event) Reset() error {
	ev, err := e.raw()
	if err != nil {
		return err
	}
	return statusError(nil, "reset event", ev.Reset())
}

// waitOnce waits up to d, at most one slice, on the native handle. The read
// lock keeps Close from releasing the handle under a running wait.
func (e *Event) waitOnce(d time.Duration) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false, ErrClosed
	}
	return e.ev.Wait(uint32(min(d, waitSlice) / time.Millisecond)), nil
}

// WaitTimeout reports whether the event was signalled within d. A negative d
// waits forever.
func (e *Event) WaitTimeout(d time.Duration) bool {
	if d < 0 {
		return e.Wait(context.Background()) == nil
	}
	deadline := time.Now().Add(d)
	for {
		left := max(time.Until(deadline), 0)
		ok, err := e.waitOnce(left)
		if ok || err != nil {
			return ok
		}
		if left <= waitSlice {
			return false
		}
	}
}

// Wait blocks until the event is signalled or ctx is done.
func (e *Event) Wait(ctx context.Context) error {
	for {
		ok, err := e.waitOnce(waitSlice)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Close releases the native event. A Wait in progress returns ErrClosed
// after its current slice.
func (e *Event) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.ev.Close()
}

// nativeEvent returns the native handle of ev, nil detaching.
func nativeEvent(ev *Event) (native.Event, error) {
	if ev == nil {
		return nil, nil
	}
	return ev.raw()
}
