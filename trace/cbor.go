package trace

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/linht/uwb-manager/header"
)

// ErrMalformedEvent is returned for events whose header bytes do not decode
// to the recorded kind.
var ErrMalformedEvent = errors.New("malformed trace event")

// A trace file is a flat sequence of single-level event maps with at most
// nine keys, written only by this package, so the decoder rejects anything
// larger, nested or indefinite.
var (
	eventEnc cbor.EncMode
	eventDec cbor.DecMode
)

func init() {
	var err error

	eventEnc, err = cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: bad CBOR encoder options: %v", err))
	}

	eventDec, err = cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthForbidden,
		MaxNestedLevels: 4,
		MaxMapPairs:     16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("trace: bad CBOR decoder options: %v", err))
	}
}

// checkEvent verifies that the raw header is a complete transaction header
// of the kind the event claims.
func checkEvent(e Event) error {
	info, err := header.Parse(e.Header)
	if err != nil {
		return fmt.Errorf("%w: seq %d: %v", ErrMalformedEvent, e.Seq, err)
	}
	if info.HeaderLen() != len(e.Header) {
		return fmt.Errorf("%w: seq %d: %d header bytes for a %s header", ErrMalformedEvent, e.Seq, len(e.Header), info.Kind)
	}
	if info.Kind != e.Kind {
		return fmt.Errorf("%w: seq %d: kind %s but header is %s", ErrMalformedEvent, e.Seq, e.Kind, info.Kind)
	}
	return nil
}

// EncodeEvent encodes a single event.
func EncodeEvent(event Event) ([]byte, error) {
	if err := checkEvent(event); err != nil {
		return nil, err
	}
	return eventEnc.Marshal(event)
}

// DecodeEvent decodes a single event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := eventDec.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	if err := checkEvent(event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// eventWriter appends events to a stream.
type eventWriter struct{ enc *cbor.Encoder }

func newEventWriter(w io.Writer) *eventWriter {
	return &eventWriter{enc: eventEnc.NewEncoder(w)}
}

func (w *eventWriter) write(e Event) error {
	if err := checkEvent(e); err != nil {
		return err
	}
	return w.enc.Encode(e)
}

// eventReader reads events back from a stream. It returns io.EOF at a clean
// end and io.ErrUnexpectedEOF for a truncated final record.
type eventReader struct{ dec *cbor.Decoder }

func newEventReader(r io.Reader) *eventReader {
	return &eventReader{dec: eventDec.NewDecoder(r)}
}

func (r *eventReader) read() (Event, error) {
	var e Event
	if err := r.dec.Decode(&e); err != nil {
		return Event{}, err
	}
	if err := checkEvent(e); err != nil {
		return Event{}, err
	}
	return e, nil
}
