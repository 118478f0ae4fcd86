package trace

import (
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Recorder appends records to a trace file. It is safe for concurrent use.
type Recorder struct {
	session string
	now     func() time.Time

	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	count   int
	closed  bool
}

// NewRecorder opens path for appending, creating it if needed. Records of
// this recorder share a new session id.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		session: uuid.NewString(),
		now:     time.Now,
		file:    f,
		encoder: newEncoder(f),
	}, nil
}

// Session is the id stamped on every record.
func (r *Recorder) Session() string { return r.session }

// Record writes rec, filling in Time and Session when they are unset.
// Records after Close are dropped.
func (r *Recorder) Record(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if rec.Time.IsZero() {
		rec.Time = r.now()
	}
	if rec.Session == "" {
		rec.Session = r.session
	}
	if err := r.encoder.Encode(rec); err != nil {
		return err
	}
	r.count++
	return nil
}

// Count is the number of records written.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close closes the file. It is safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}
