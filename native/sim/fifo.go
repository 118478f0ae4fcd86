package sim

import (
	"sync"

	"github.com/LoveWonYoung/vci4go/native"
)

// fifo is the ring buffer behind a channel. Readers and writers handed out
// to callers are separately referenced views of it.
type fifo struct {
	mu        sync.Mutex
	userMu    sync.Mutex
	entrySize int
	capacity  uint16
	threshold uint16
	entries   [][]byte
	event     native.Event
	overrun   bool
	scratch   []byte
	// commit runs after entries were put into a transmit FIFO.
	commit func()
}

func newFifo(entrySize int, capacity uint16, commit func()) *fifo {
	return &fifo{
		entrySize: entrySize,
		capacity:  capacity,
		threshold: 1,
		commit:    commit,
	}
}

func (f *fifo) fill() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint16(len(f.entries))
}

func (f *fifo) load() uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capacity == 0 {
		return 0
	}
	return uint8(len(f.entries) * 100 / int(f.capacity))
}

// push appends an entry; a full FIFO drops it and records the overrun.
func (f *fifo) push(entry []byte) bool {
	f.mu.Lock()
	if len(f.entries) >= int(f.capacity) {
		f.overrun = true
		f.mu.Unlock()
		return false
	}
	f.entries = append(f.entries, entry)
	ev, fire := f.event, len(f.entries) >= int(f.threshold)
	f.mu.Unlock()
	if fire {
		signal(ev)
	}
	return true
}

// drain removes every entry and signals writers waiting for free space.
func (f *fifo) drain() [][]byte {
	f.mu.Lock()
	out := f.entries
	f.entries = nil
	ev, fire := f.event, len(out) > 0 && int(f.capacity) >= int(f.threshold)
	f.mu.Unlock()
	if fire {
		signal(ev)
	}
	return out
}

func (f *fifo) hasOverrun() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overrun
}

type fifoView struct {
	object
	f *fifo
}

func (v *fifoView) EntrySize() int { return v.f.entrySize }

func (v *fifoView) Capacity() (uint16, native.Status) { return v.f.capacity, native.StatusOK }

func (v *fifoView) Threshold() (uint16, native.Status) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	return v.f.threshold, native.StatusOK
}

func (v *fifoView) SetThreshold(n uint16) native.Status {
	if n == 0 || n > v.f.capacity {
		return native.EInvalidArg
	}
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	v.f.threshold = n
	return native.StatusOK
}

func (v *fifoView) Lock() native.Status {
	v.f.userMu.Lock()
	return native.StatusOK
}

func (v *fifoView) Unlock() native.Status {
	v.f.userMu.Unlock()
	return native.StatusOK
}

func (v *fifoView) AssignEvent(ev native.Event) native.Status {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	v.f.event = ev
	return native.StatusOK
}

type fifoReader struct{ fifoView }

func (r *fifoReader) FillCount() (uint16, native.Status) { return r.f.fill(), native.StatusOK }

func (r *fifoReader) GetDataEntry(entry []byte) native.Status {
	if st := r.drv.fault("FifoReader.GetDataEntry"); st != native.StatusOK {
		return st
	}
	if len(entry) < r.f.entrySize {
		return native.EInvalidArg
	}
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if len(r.f.entries) == 0 {
		return native.ERxQueueEmpty
	}
	copy(entry, r.f.entries[0])
	r.f.entries = r.f.entries[1:]
	return native.StatusOK
}

func (r *fifoReader) AcquireRead(max uint16) ([]byte, uint16, native.Status) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	n := min(int(max), len(r.f.entries))
	if n == 0 {
		return nil, 0, native.ERxQueueEmpty
	}
	buf := make([]byte, 0, n*r.f.entrySize)
	for _, e := range r.f.entries[:n] {
		buf = append(buf, e...)
	}
	return buf, uint16(n), native.StatusOK
}

func (r *fifoReader) ReleaseRead(count uint16) native.Status {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if int(count) > len(r.f.entries) {
		return native.EInvalidArg
	}
	r.f.entries = r.f.entries[count:]
	return native.StatusOK
}

type fifoWriter struct{ fifoView }

func (w *fifoWriter) FreeCount() (uint16, native.Status) {
	return w.f.capacity - w.f.fill(), native.StatusOK
}

func (w *fifoWriter) PutDataEntry(entry []byte) native.Status {
	if st := w.drv.fault("FifoWriter.PutDataEntry"); st != native.StatusOK {
		return st
	}
	if len(entry) < w.f.entrySize {
		return native.EInvalidArg
	}
	w.f.mu.Lock()
	if len(w.f.entries) >= int(w.f.capacity) {
		w.f.mu.Unlock()
		return native.ETxQueueFull
	}
	w.f.entries = append(w.f.entries, append([]byte(nil), entry[:w.f.entrySize]...))
	w.f.mu.Unlock()
	if w.f.commit != nil {
		w.f.commit()
	}
	return native.StatusOK
}

func (w *fifoWriter) AcquireWrite(max uint16) ([]byte, uint16, native.Status) {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	n := min(int(max), int(w.f.capacity)-len(w.f.entries))
	if n <= 0 {
		return nil, 0, native.ETxQueueFull
	}
	w.f.scratch = make([]byte, n*w.f.entrySize)
	return w.f.scratch, uint16(n), native.StatusOK
}

func (w *fifoWriter) ReleaseWrite(count uint16) native.Status {
	w.f.mu.Lock()
	if int(count)*w.f.entrySize > len(w.f.scratch) {
		w.f.mu.Unlock()
		return native.EInvalidArg
	}
	for i := 0; i < int(count); i++ {
		e := w.f.scratch[i*w.f.entrySize : (i+1)*w.f.entrySize]
		w.f.entries = append(w.f.entries, append([]byte(nil), e...))
	}
	w.f.scratch = nil
	w.f.mu.Unlock()
	if count > 0 && w.f.commit != nil {
		w.f.commit()
	}
	return native.StatusOK
}
