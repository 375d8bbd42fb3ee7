package trace

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/linht/uwb-manager/transport"
)

// Tap turns bus transactions into events for a Recorder.
type Tap struct {
	rec     Recorder
	session string
	seq     atomic.Uint64
}

// NewTap records into rec under session. An empty session gets a fresh UUID.
func NewTap(rec Recorder, session string) *Tap {
	if session == "" {
		session = uuid.NewString()
	}
	return &Tap{rec: rec, session: session}
}

// Session returns the identifier stamped on every event.
func (t *Tap) Session() string { return t.session }

// Observe implements transport.Tracer.
func (t *Tap) Observe(tx transport.Transaction) {
	ev := Event{
		Timestamp: tx.Start,
		Session:   t.session,
		Seq:       t.seq.Add(1),
		Kind:      tx.Header.Kind,
		Register:  tx.Register,
		Header:    append([]byte(nil), tx.Raw...),
		Payload:   append([]byte(nil), tx.Payload...),
		Duration:  tx.Duration,
	}
	if tx.Err != nil {
		ev.Err = tx.Err.Error()
	}
	t.rec.Record(ev)
}

var _ transport.Tracer = (*Tap)(nil)
