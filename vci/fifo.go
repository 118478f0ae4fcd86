package vci

import (
	"errors"

	"github.com/LoveWonYoung/vci4go/native"
)

const maxFifoBlock = 0xFFFF

type fifoNative interface {
	native.Unknown
	EntrySize() int
	Capacity() (uint16, native.Status)
	Threshold() (uint16, native.Status)
	SetThreshold(n uint16) native.Status
	Lock() native.Status
	Unlock() native.Status
	AssignEvent(ev native.Event) native.Status
}

// fifo holds what receive and transmit FIFOs have in common. Counters read
// as 0 once the FIFO is closed.
type fifo[T fifoNative] struct {
	lib native.Library
	h   *ref[T]
}

func (f *fifo[T]) counter(op string, get func(T) (uint16, native.Status)) uint16 {
	n, _ := call(f.h, func(x T) (uint16, error) {
		n, st := get(x)
		return n, statusError(f.lib, op, st)
	})
	return n
}

// Capacity is the number of entries the FIFO holds.
func (f *fifo[T]) Capacity() uint16 {
	return f.counter("get capacity", func(x T) (uint16, native.Status) { return x.Capacity() })
}

// Threshold is the fill level (reader) or free space (writer) at which the
// assigned event is signalled.
func (f *fifo[T]) Threshold() uint16 {
	return f.counter("get threshold", func(x T) (uint16, native.Status) { return x.Threshold() })
}

func (f *fifo[T]) SetThreshold(n uint16) error {
	return f.h.do(func(x T) error {
		return statusError(f.lib, "set threshold", x.SetThreshold(n))
	})
}

// Lock serialises access to the FIFO between several users of the same
// reader or writer.
func (f *fifo[T]) Lock() error {
	return f.h.do(func(x T) error {
		return statusError(f.lib, "lock fifo", x.Lock())
	})
}

func (f *fifo[T]) Unlock() error {
	return f.h.do(func(x T) error {
		return statusError(f.lib, "unlock fifo", x.Unlock())
	})
}

// AssignEvent makes the FIFO signal ev when the threshold is reached.
func (f *fifo[T]) AssignEvent(ev *Event) error {
	raw, err := nativeEvent(ev)
	if err != nil {
		return err
	}
	return f.h.do(func(x T) error {
		return statusError(f.lib, "assign event", x.AssignEvent(raw))
	})
}

func (f *fifo[T]) Close() error { return f.h.close() }

// fillCount is shared by the CAN and LIN readers.
func fillCount(f *fifo[native.FifoReader]) uint16 {
	return f.counter("get fill count", native.FifoReader.FillCount)
}

// readEntries moves up to len(buf) entries out of the FIFO, decoding each
// with decode. An empty FIFO yields 0 and no error.
func readEntries[M any](f *fifo[native.FifoReader], buf []M, decode func([]byte) (M, error)) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	return call(f.h, func(r native.FifoReader) (int, error) {
		block, count, st := r.AcquireRead(uint16(min(len(buf), maxFifoBlock)))
		if err := statusError(f.lib, "acquire read", st); err != nil {
			if errors.Is(err, ErrRxQueueEmpty) {
				return 0, nil
			}
			return 0, err
		}
		size := r.EntrySize()
		n := 0
		var decodeErr error
		for ; n < int(count) && n < len(buf); n++ {
			m, err := decode(block[n*size : (n+1)*size])
			if err != nil {
				decodeErr = err
				break
			}
			buf[n] = m
		}
		if err := statusError(f.lib, "release read", r.ReleaseRead(uint16(n))); err != nil {
			return n, err
		}
		return n, decodeErr
	})
}

// readEntry removes the oldest entry of the FIFO.
func readEntry[M any](f *fifo[native.FifoReader], decode func([]byte) (M, error)) (M, error) {
	return call(f.h, func(r native.FifoReader) (M, error) {
		var zero M
		entry := make([]byte, r.EntrySize())
		if err := statusError(f.lib, "read message", r.GetDataEntry(entry)); err != nil {
			return zero, err
		}
		return decode(entry)
	})
}

// CanMessageReader reads the receive FIFO of a CAN channel. The entry
// layout follows the channel version.
type CanMessageReader struct {
	fifo[native.FifoReader]
	layout canLayout
}

// FillCount is the number of messages waiting in the FIFO.
func (r *CanMessageReader) FillCount() uint16 { return fillCount(&r.fifo) }

// ReadMessage removes the oldest message from the FIFO. It fails with
// ErrRxQueueEmpty when nothing is pending.
func (r *CanMessageReader) ReadMessage() (CanMessage, error) {
	return readEntry(&r.fifo, r.layout.decode)
}

// ReadMessages fills buf with as many pending messages as are available in
// one contiguous block and returns how many were read.
func (r *CanMessageReader) ReadMessages(buf []CanMessage) (int, error) {
	return readEntries(&r.fifo, buf, r.layout.decode)
}

// CanMessageWriter writes the transmit FIFO of a CAN channel.
type CanMessageWriter struct {
	fifo[native.FifoWriter]
	layout canLayout
}

// FreeCount is the number of free entries in the FIFO.
func (w *CanMessageWriter) FreeCount() uint16 {
	return w.counter("get free count", native.FifoWriter.FreeCount)
}

// SendMessage queues msg for transmission and returns without waiting for
// it to go out. It fails with ErrTxQueueFull when the FIFO has no room.
func (w *CanMessageWriter) SendMessage(msg CanMessage) error {
	return w.h.do(func(f native.FifoWriter) error {
		entry := make([]byte, f.EntrySize())
		if err := w.layout.encode(&msg, entry); err != nil {
			return err
		}
		return statusError(w.lib, "send message", f.PutDataEntry(entry))
	})
}

// SendMessages queues as many of msgs as fit and returns how many were
// queued. A full FIFO ends the batch without an error.
func (w *CanMessageWriter) SendMessages(msgs []CanMessage) (int, error) {
	return call(w.h, func(f native.FifoWriter) (int, error) {
		size := f.EntrySize()
		sent := 0
		for sent < len(msgs) {
			block, count, st := f.AcquireWrite(uint16(min(len(msgs)-sent, maxFifoBlock)))
			if err := statusError(w.lib, "acquire write", st); err != nil {
				if errors.Is(err, ErrTxQueueFull) {
					break
				}
				return sent, err
			}
			done := 0
			var encodeErr error
			for done < int(count) && sent < len(msgs) {
				if encodeErr = w.layout.encode(&msgs[sent], block[done*size:(done+1)*size]); encodeErr != nil {
					break
				}
				done++
				sent++
			}
			if err := statusError(w.lib, "release write", f.ReleaseWrite(uint16(done))); err != nil {
				return sent, err
			}
			if encodeErr != nil {
				return sent, encodeErr
			}
		}
		return sent, nil
	})
}

// LinMessageReader reads the receive FIFO of a LIN monitor.
type LinMessageReader struct {
	fifo[native.FifoReader]
}

func (r *LinMessageReader) FillCount() uint16 { return fillCount(&r.fifo) }

// ReadMessage removes the oldest message from the FIFO. It fails with
// ErrRxQueueEmpty when nothing is pending.
func (r *LinMessageReader) ReadMessage() (LinMessage, error) {
	return readEntry(&r.fifo, decodeLinMessage)
}

func (r *LinMessageReader) ReadMessages(buf []LinMessage) (int, error) {
	return readEntries(&r.fifo, buf, decodeLinMessage)
}
