// Package transport moves transaction headers and register payloads over the
// serial bus. A Bus allows one transaction in flight at a time.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3"

	"github.com/linht/uwb-manager/fastcmd"
	"github.com/linht/uwb-manager/header"
	"github.com/linht/uwb-manager/reg"
)

var (
	ErrPayloadLength = errors.New("payload length out of range for register")
	ErrClosed        = errors.New("bus closed")
)

// Transaction describes one completed bus exchange.
type Transaction struct {
	Start    time.Time
	Duration time.Duration
	Header   header.Info
	Register string
	Raw      []byte // header bytes
	Payload  []byte // bytes written or read after the header
	Err      error
}

// Tracer observes every transaction after it completes. Implementations
// must not retain Payload beyond the call.
type Tracer interface {
	Observe(Transaction)
}

// Bus serialises transactions on a conn.Conn. A periph spi.Conn satisfies
// conn.Conn.
type Bus struct {
	mu     sync.Mutex
	conn   conn.Conn
	logger *slog.Logger
	tracer Tracer
	closed bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for per-transaction debug output.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithTracer installs a transaction observer.
func WithTracer(t Tracer) Option {
	return func(b *Bus) { b.tracer = t }
}

// NewBus wraps c.
func NewBus(c conn.Conn, opts ...Option) *Bus {
	b := &Bus{conn: c, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// String names the underlying connection.
func (b *Bus) String() string { return b.conn.String() }

// Close stops further transactions. It does not close the underlying
// connection, which belongs to the caller.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// FastCommand sends a single-byte fast command.
func (b *Bus) FastCommand(ctx context.Context, cmd fastcmd.Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := header.FastCommand(cmd)
	info := header.Info{Kind: header.KindFastCommand, Access: header.Write, Command: cmd}
	if err := b.exchange(ctx, info, cmd.String(), h[:], nil, nil); err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd, err)
	}
	return nil
}

// ReadRaw reads len(buf) bytes starting at register r. A prefix of the
// register may be read, for example the used part of a receive buffer.
func (b *Bus) ReadRaw(ctx context.Context, r reg.Register, buf []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readLocked(ctx, r, buf)
}

// WriteRaw writes data starting at register r.
func (b *Bus) WriteRaw(ctx context.Context, r reg.Register, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeLocked(ctx, r, data)
}

// ModifyRaw reads the whole of register r, lets fn edit the image and writes
// it back under a single hold of the bus.
func (b *Bus) ModifyRaw(ctx context.Context, r reg.Register, fn func(buf []byte) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := make([]byte, r.Len)
	if err := b.readLocked(ctx, r, buf); err != nil {
		return err
	}
	if err := fn(buf); err != nil {
		return err
	}
	return b.writeLocked(ctx, r, buf)
}

// MaskedWrite updates register r in place on the device: new = (old & and) | or.
// The payload is the AND operand followed by the OR operand, each
// little-endian and as wide as mode (1, 2 or 4 bytes), so 2, 4 or 8 bytes
// follow the header in total.
func (b *Bus) MaskedWrite(ctx context.Context, r reg.Register, mode header.MaskedWriteMode, and, or uint32) error {
	w := mode.Width()
	if w == 0 {
		return fmt.Errorf("register %s: masked write needs a width", r.Name)
	}
	if !r.Access.Writable() {
		return fmt.Errorf("register %s: %w", r.Name, reg.ErrNotWritable)
	}
	if w > r.Len {
		return fmt.Errorf("register %s: %w: %d-byte mask", r.Name, ErrPayloadLength, w)
	}

	payload := make([]byte, 2*w)
	for i := 0; i < w; i++ {
		payload[i] = byte(and >> (8 * i))
		payload[w+i] = byte(or >> (8 * i))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	h := header.MaskedWrite(header.BaseAddress(r.Base), header.SubAddress(r.Sub), mode)
	info := header.Info{Kind: header.KindMasked, Access: header.Write, Base: header.BaseAddress(r.Base), Sub: header.SubAddress(r.Sub), Mode: mode}
	if err := b.exchange(ctx, info, r.Name, h[:], payload, nil); err != nil {
		return fmt.Errorf("failed to masked-write %s: %w", r.Name, err)
	}
	return nil
}

func addressHeader(r reg.Register, mode header.AccessMode) ([]byte, header.Info) {
	base := header.BaseAddress(r.Base)
	if r.Sub == 0 {
		h := header.ShortAddressed(base, mode)
		return h[:], header.Info{Kind: header.KindShort, Access: mode, Base: base}
	}
	sub := header.SubAddress(r.Sub)
	h := header.FullAddressed(base, sub, mode)
	return h[:], header.Info{Kind: header.KindFull, Access: mode, Base: base, Sub: sub}
}

func (b *Bus) readLocked(ctx context.Context, r reg.Register, buf []byte) error {
	if !r.Access.Readable() {
		return fmt.Errorf("register %s: %w", r.Name, reg.ErrNotReadable)
	}
	if len(buf) == 0 || len(buf) > r.Len {
		return fmt.Errorf("register %s: %w: %d bytes", r.Name, ErrPayloadLength, len(buf))
	}
	h, info := addressHeader(r, header.Read)
	if err := b.exchange(ctx, info, r.Name, h, nil, buf); err != nil {
		return fmt.Errorf("failed to read %s: %w", r.Name, err)
	}
	return nil
}

func (b *Bus) writeLocked(ctx context.Context, r reg.Register, data []byte) error {
	if !r.Access.Writable() {
		return fmt.Errorf("register %s: %w", r.Name, reg.ErrNotWritable)
	}
	if len(data) == 0 || len(data) > r.Len {
		return fmt.Errorf("register %s: %w: %d bytes", r.Name, ErrPayloadLength, len(data))
	}
	h, info := addressHeader(r, header.Write)
	if err := b.exchange(ctx, info, r.Name, h, data, nil); err != nil {
		return fmt.Errorf("failed to write %s: %w", r.Name, err)
	}
	return nil
}

// exchange performs one chip-select-framed transfer: the header, then either
// the outgoing payload or len(in) clocked-in bytes. Caller holds b.mu.
func (b *Bus) exchange(ctx context.Context, info header.Info, name string, h, out, in []byte) error {
	if b.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	n := len(h) + len(out) + len(in)
	w := make([]byte, n)
	copy(w, h)
	copy(w[len(h):], out)

	var r []byte
	if in != nil {
		r = make([]byte, n)
	}

	start := time.Now()
	err := b.conn.Tx(w, r)
	if err == nil && in != nil {
		copy(in, r[len(h):])
	}

	payload := out
	if in != nil {
		payload = in
	}
	b.logger.Debug("spi transaction",
		"header", info.String(),
		"register", name,
		"len", len(payload),
		"error", err)

	if b.tracer != nil {
		b.tracer.Observe(Transaction{
			Start:    start,
			Duration: time.Since(start),
			Header:   info,
			Register: name,
			Raw:      h,
			Payload:  payload,
			Err:      err,
		})
	}
	return err
}
