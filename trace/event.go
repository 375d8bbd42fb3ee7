// Package trace captures bus transactions as compact CBOR events. Events can
// be appended to a file, read back with a filter, mirrored to slog or fanned
// out to live subscribers.
package trace

import (
	"time"

	"github.com/linht/uwb-manager/header"
)

// Event is one recorded bus transaction.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the transaction started.
	Timestamp time.Time `cbor:"1,keyasint" json:"timestamp"`

	// Session identifies the process or connection that produced the event (UUID).
	Session string `cbor:"2,keyasint" json:"session"`

	// Seq increases by one per event within a session.
	Seq uint64 `cbor:"3,keyasint" json:"seq"`

	Kind header.Kind `cbor:"4,keyasint" json:"kind"`

	// Register is the register name, or the command mnemonic for fast commands.
	Register string `cbor:"5,keyasint,omitempty" json:"register,omitempty"`

	Header   []byte        `cbor:"6,keyasint" json:"header"`
	Payload  []byte        `cbor:"7,keyasint,omitempty" json:"payload,omitempty"`
	Duration time.Duration `cbor:"8,keyasint,omitempty" json:"duration,omitempty"`
	Err      string        `cbor:"9,keyasint,omitempty" json:"error,omitempty"`
}

// Write reports whether the transaction carried data to the device.
func (e Event) Write() bool {
	info, err := header.Parse(e.Header)
	return err == nil && info.Access == header.Write
}

// Failed reports whether the transaction returned an error.
func (e Event) Failed() bool { return e.Err != "" }
