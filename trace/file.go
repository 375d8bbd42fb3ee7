package trace

import (
	"os"
	"sync"
	"time"

	"github.com/linht/uwb-manager/header"
)

// FileRecorder appends events to a file as a stream of CBOR items.
type FileRecorder struct {
	file   *os.File
	out    *eventWriter
	mu     sync.Mutex
	closed bool
}

// NewFileRecorder opens path for appending, creating it with mode 0644.
func NewFileRecorder(path string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileRecorder{
		file: f,
		out:  newEventWriter(f),
	}, nil
}

// Record writes the event. Malformed events and write errors are dropped;
// tracing must not disturb the bus.
func (r *FileRecorder) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	_ = r.out.write(event)
}

// Close closes the file. Later Record calls are ignored.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

var _ Recorder = (*FileRecorder)(nil)

// Filter selects events. Zero-valued criteria match everything.
type Filter struct {
	Session  string
	Kind     *header.Kind
	Register string
	// OnlyErrors keeps failed transactions only.
	OnlyErrors bool
	TimeStart  *time.Time
	TimeEnd    *time.Time
}

func (f *Filter) matches(event Event) bool {
	if f.Session != "" && event.Session != f.Session {
		return false
	}
	if f.Kind != nil && event.Kind != *f.Kind {
		return false
	}
	if f.Register != "" && event.Register != f.Register {
		return false
	}
	if f.OnlyErrors && !event.Failed() {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	return true
}

// Reader iterates over a trace file.
type Reader struct {
	file   *os.File
	in     *eventReader
	filter Filter
}

func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:   f,
		in:     newEventReader(f),
		filter: filter,
	}, nil
}

// Next returns the next matching event, or io.EOF.
func (r *Reader) Next() (Event, error) {
	for {
		event, err := r.in.read()
		if err != nil {
			return Event{}, err
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

func (r *Reader) Close() error {
	return r.file.Close()
}
