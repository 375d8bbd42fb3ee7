package trace_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linht/uwb-manager/devsim"
	"github.com/linht/uwb-manager/fastcmd"
	"github.com/linht/uwb-manager/header"
	"github.com/linht/uwb-manager/regs"
	"github.com/linht/uwb-manager/trace"
	"github.com/linht/uwb-manager/transport"
)

type collect struct{ events []trace.Event }

func (c *collect) Record(e trace.Event) { c.events = append(c.events, e) }

func readAll(t *testing.T, r *trace.Reader) []trace.Event {
	t.Helper()
	var out []trace.Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, e)
	}
}

func TestEventEncoding(t *testing.T) {
	now := time.Now()
	in := trace.Event{
		Timestamp: now,
		Session:   "s1",
		Seq:       7,
		Kind:      header.KindFull,
		Register:  "SYS_CFG",
		Header:    []byte{0x40, 0x40},
		Payload:   []byte{1, 2, 3, 4},
		Duration:  time.Microsecond,
	}
	b, err := trace.EncodeEvent(in)
	require.NoError(t, err)

	out, err := trace.DecodeEvent(b)
	require.NoError(t, err)
	assert.True(t, now.Equal(out.Timestamp))
	assert.Equal(t, in.Header, out.Header)
	assert.Equal(t, in.Payload, out.Payload)
	assert.Equal(t, header.KindFull, out.Kind)
	assert.False(t, out.Write())
	assert.False(t, out.Failed())

	_, err = trace.DecodeEvent([]byte{0xFF})
	assert.Error(t, err)
}

func TestTapRecordsBusTransactions(t *testing.T) {
	c := &collect{}
	tap := trace.NewTap(c, "")
	assert.Len(t, tap.Session(), 36)

	bus := transport.NewBus(devsim.New(), transport.WithTracer(tap))
	ctx := context.Background()
	require.NoError(t, bus.FastCommand(ctx, fastcmd.ClrIrqs))
	_, err := transport.Read[regs.DevID](ctx, bus)
	require.NoError(t, err)

	require.Len(t, c.events, 2)
	assert.Equal(t, uint64(1), c.events[0].Seq)
	assert.Equal(t, uint64(2), c.events[1].Seq)
	assert.Equal(t, tap.Session(), c.events[1].Session)

	assert.Equal(t, header.KindFastCommand, c.events[0].Kind)
	assert.True(t, c.events[0].Write())
	assert.Equal(t, []byte{0xA5}, c.events[0].Header)

	assert.Equal(t, "DEV_ID", c.events[1].Register)
	assert.Equal(t, []byte{0x02, 0x03, 0xCA, 0xDE}, c.events[1].Payload)
	assert.False(t, c.events[1].Write())
}

func TestFileRecorderAndFilteredReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.trace")
	rec, err := trace.NewFileRecorder(path)
	require.NoError(t, err)

	t0 := time.Now()
	short := header.KindShort
	events := []trace.Event{
		{Timestamp: t0, Session: "a", Seq: 1, Kind: header.KindFastCommand, Register: "CMD_TX", Header: []byte{0x83}},
		{Timestamp: t0.Add(time.Millisecond), Session: "a", Seq: 2, Kind: header.KindShort, Register: "DEV_ID", Header: []byte{0x00}, Payload: []byte{1, 2, 3, 4}},
		{Timestamp: t0.Add(2 * time.Millisecond), Session: "b", Seq: 1, Kind: header.KindShort, Register: "DEV_ID", Header: []byte{0x00}, Err: "boom"},
	}
	for _, e := range events {
		rec.Record(e)
	}
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	rec.Record(events[0])

	r, err := trace.NewReader(path)
	require.NoError(t, err)
	all := readAll(t, r)
	require.NoError(t, r.Close())
	require.Len(t, all, 3)
	assert.Equal(t, "CMD_TX", all[0].Register)

	end := t0.Add(2 * time.Millisecond)
	tests := []struct {
		name   string
		filter trace.Filter
		want   int
	}{
		{"session", trace.Filter{Session: "a"}, 2},
		{"kind", trace.Filter{Kind: &short}, 2},
		{"register", trace.Filter{Register: "CMD_TX"}, 1},
		{"errors", trace.Filter{OnlyErrors: true}, 1},
		{"time window", trace.Filter{TimeStart: &t0, TimeEnd: &end}, 2},
		{"combined", trace.Filter{Session: "b", Kind: &short}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := trace.NewFilteredReader(path, tt.filter)
			require.NoError(t, err)
			defer r.Close()
			assert.Len(t, readAll(t, r), tt.want)
		})
	}

	_, err = trace.NewReader(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestBroadcaster(t *testing.T) {
	b := trace.NewBroadcaster()
	ch, cancel := b.Subscribe(1)
	assert.Equal(t, 1, b.Subscribers())

	b.Record(trace.Event{Seq: 1})
	b.Record(trace.Event{Seq: 2})

	e := <-ch
	assert.Equal(t, uint64(1), e.Seq)

	cancel()
	cancel()
	assert.Equal(t, 0, b.Subscribers())
	_, open := <-ch
	assert.False(t, open)

	other, _ := b.Subscribe(4)
	b.Close()
	_, open = <-other
	assert.False(t, open)

	late, _ := b.Subscribe(1)
	_, open = <-late
	assert.False(t, open)
}

func TestSlogAndMultiRecorder(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := &collect{}

	m := trace.NewMultiRecorder(trace.NewSlogRecorder(logger), c, trace.NoopRecorder{})
	m.Record(trace.Event{Session: "s", Seq: 3, Kind: header.KindShort, Register: "DEV_ID", Header: []byte{0x00}, Payload: []byte{0xCA, 0xDE}, Err: "bus fault"})

	out := buf.String()
	assert.Contains(t, out, "msg=trace")
	assert.Contains(t, out, "register=DEV_ID")
	assert.Contains(t, out, "payload=cade")
	assert.Contains(t, out, `error="bus fault"`)
	assert.Len(t, c.events, 1)
}

func TestEventValidation(t *testing.T) {
	fast := trace.Event{Seq: 1, Kind: header.KindFastCommand, Header: []byte{0xA5}}
	_, err := trace.EncodeEvent(fast)
	require.NoError(t, err)

	wrongKind := fast
	wrongKind.Kind = header.KindShort
	_, err = trace.EncodeEvent(wrongKind)
	assert.ErrorIs(t, err, trace.ErrMalformedEvent)

	// A full header cut down to its first byte.
	cut := trace.Event{Seq: 2, Kind: header.KindFull, Header: []byte{0x40}}
	_, err = trace.EncodeEvent(cut)
	assert.ErrorIs(t, err, trace.ErrMalformedEvent)

	_, err = trace.DecodeEvent([]byte{0xA2, 0x02, 0x61, 'a', 0x02, 0x61, 'b'})
	assert.Error(t, err, "duplicate keys")
}

func TestFileRecorderSkipsMalformedEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.trace")
	rec, err := trace.NewFileRecorder(path)
	require.NoError(t, err)

	rec.Record(trace.Event{Seq: 1, Kind: header.KindShort, Header: []byte{0x00}})
	rec.Record(trace.Event{Seq: 2, Kind: header.KindMasked})
	rec.Record(trace.Event{Seq: 3, Kind: header.KindFastCommand, Header: []byte{0x83}})
	require.NoError(t, rec.Close())

	r, err := trace.NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	all := readAll(t, r)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(3), all[1].Seq)
}

func TestReaderReportsTruncatedRecord(t *testing.T) {
	b, err := trace.EncodeEvent(trace.Event{Seq: 1, Kind: header.KindShort, Register: "DEV_ID", Header: []byte{0x00}})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "bus.trace")
	require.NoError(t, os.WriteFile(path, b[:len(b)-1], 0644))

	r, err := trace.NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
