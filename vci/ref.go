package vci

import (
	"sync"

	"github.com/LoveWonYoung/vci4go/native"
)

// ref owns exactly one reference of a native object. Calls run under the
// read lock, so close waits for calls in flight and releases once.
type ref[T native.Unknown] struct {
	mu     sync.RWMutex
	obj    T
	closed bool
}

func newRef[T native.Unknown](obj T) *ref[T] {
	return &ref[T]{obj: obj}
}

// share takes an additional reference on obj and wraps it.
func share[T native.Unknown](obj T) *ref[T] {
	obj.AddRef()
	return newRef(obj)
}

func (r *ref[T]) do(fn func(T) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	return fn(r.obj)
}

func (r *ref[T]) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *ref[T]) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.obj.Release()
	return nil
}

// call runs fn on the object of r and returns its result.
func call[T native.Unknown, R any](r *ref[T], fn func(T) (R, error)) (R, error) {
	var out R
	err := r.do(func(obj T) error {
		var err error
		out, err = fn(obj)
		return err
	})
	return out, err
}
