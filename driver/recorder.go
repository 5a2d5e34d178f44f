package driver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// TraceEntry is one frame in a recorded trace. Frame holds the raw bytes as
// they crossed the wire, header included.
type TraceEntry struct {
	Seq          uint64    `cbor:"1,keyasint"`
	Time         time.Time `cbor:"2,keyasint"`
	Direction    string    `cbor:"3,keyasint"`
	Channel      uint16    `cbor:"4,keyasint"`
	Performative string    `cbor:"5,keyasint"`
	Frame        []byte    `cbor:"6,keyasint"`
}

// Recorder appends every frame a driver reads or writes to a CBOR stream.
type Recorder struct {
	mutex   sync.Mutex
	encoder *cbor.Encoder
	closer  io.Closer
	seq     uint64
	now     func() time.Time
}

// NewRecorder writes trace entries to w.
func NewRecorder(w io.Writer) *Recorder {
	r := &Recorder{
		encoder: cbor.NewEncoder(w),
		now:     time.Now,
	}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// OpenRecorder creates or truncates the trace file at path.
func OpenRecorder(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	return NewRecorder(f), nil
}

// Record appends one entry. frame is copied.
func (r *Recorder) Record(direction Direction, channel uint16, performative string, frame []byte) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.seq++
	entry := TraceEntry{
		Seq:          r.seq,
		Time:         r.now(),
		Direction:    direction.String(),
		Channel:      channel,
		Performative: performative,
		Frame:        append([]byte(nil), frame...),
	}
	if err := r.encoder.Encode(&entry); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return nil
}

// Close closes the underlying writer when it is closable.
func (r *Recorder) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// ReadTrace decodes every entry of a trace stream.
func ReadTrace(rd io.Reader) ([]TraceEntry, error) {
	dec := cbor.NewDecoder(rd)
	var entries []TraceEntry
	for {
		var entry TraceEntry
		if err := dec.Decode(&entry); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return entries, fmt.Errorf("failed to read trace entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
}
