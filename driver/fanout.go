package driver

import (
	"context"
	"sync"
	"sync/atomic"
)

// rxFanout copies every message of source to each subscriber. A subscriber
// that does not keep up loses messages instead of stalling the others.
type rxFanout struct {
	mu      sync.RWMutex
	subs    map[chan UnifiedCANMessage]struct{}
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

func newRxFanout(ctx context.Context, source <-chan UnifiedCANMessage) *rxFanout {
	f := &rxFanout{
		subs: make(map[chan UnifiedCANMessage]struct{}),
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-ctx.Done():
				f.closeAll()
				return
			case msg, ok := <-source:
				if !ok {
					f.closeAll()
					return
				}
				f.dispatch(msg)
			}
		}
	}()
	return f
}

// Subscribe returns a channel receiving every message from now on. The
// channel is closed when the fanout stops or cancel is called.
func (f *rxFanout) Subscribe(buffer int) (<-chan UnifiedCANMessage, func()) {
	ch := make(chan UnifiedCANMessage, buffer)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	f.subs[ch] = struct{}{}
	return ch, func() { f.unsubscribe(ch) }
}

func (f *rxFanout) unsubscribe(ch chan UnifiedCANMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[ch]; ok {
		delete(f.subs, ch)
		close(ch)
	}
}

func (f *rxFanout) dispatch(msg UnifiedCANMessage) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subs {
		select {
		case ch <- msg:
		default:
			f.dropped.Add(1)
		}
	}
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (f *rxFanout) Dropped() uint64 { return f.dropped.Load() }

func (f *rxFanout) closeAll() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()

	for ch := range subs {
		close(ch)
	}
}

func (f *rxFanout) Close() {
	f.closeAll()
	f.wg.Wait()
}
