// Package reg models the transceiver's register files and the bit ranges
// (fields) inside them.
//
// A register is identified by a 5-bit base address (the register file) and a
// 7-bit sub-address (the byte offset inside that file), and spans Len bytes.
// Values are exchanged with the device through a View, a byte buffer exactly
// Len bytes long that lives for one bus transaction.
//
// Typed access pairs every field with its register at compile time: a
// register is represented by a tag type implementing Def, views and fields
// carry that tag as a type parameter, and applying a field to the view of a
// different register does not compile. Readability and writability are
// carried the same way: RO fields have no Write method, WO fields have no
// Read method.
package reg

import (
	"errors"
	"fmt"
)

const (
	// MaxBase is the largest representable base address (5 bits).
	MaxBase = 0x1F
	// MaxSub is the largest representable sub-address (7 bits).
	MaxSub = 0x7F
	// MaxFieldBits is the widest field the bit engine supports.
	MaxFieldBits = 128
)

var (
	ErrBaseRange   = errors.New("base address out of range")
	ErrSubRange    = errors.New("sub-address out of range")
	ErrEmpty       = errors.New("register length must be at least one byte")
	ErrFieldBounds = errors.New("field exceeds register bounds")
	ErrFieldSize   = errors.New("field size out of range")
	ErrValueWidth  = errors.New("value type narrower than field")
	ErrViewLength  = errors.New("view length does not match register")
	ErrNotReadable = errors.New("field is not readable")
	ErrNotWritable = errors.New("field is not writable")
)

// Access describes which directions a register or field supports.
type Access uint8

const (
	ReadOnly  Access = 1
	WriteOnly Access = 2
	ReadWrite Access = ReadOnly | WriteOnly
)

// Readable reports whether values may be read back from the device.
func (a Access) Readable() bool { return a&ReadOnly != 0 }

// Writable reports whether values may be written to the device.
func (a Access) Writable() bool { return a&WriteOnly != 0 }

// String returns the catalogue spelling of the access mode.
func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "RO"
	case WriteOnly:
		return "WO"
	case ReadWrite:
		return "RW"
	default:
		return fmt.Sprintf("Access(%d)", uint8(a))
	}
}

// MarshalText encodes the access mode as RO, WO or RW.
func (a Access) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// ParseAccess converts "RO", "WO" or "RW" to an Access.
func ParseAccess(s string) (Access, error) {
	switch s {
	case "RO", "ro":
		return ReadOnly, nil
	case "WO", "wo":
		return WriteOnly, nil
	case "RW", "rw", "":
		return ReadWrite, nil
	default:
		return 0, fmt.Errorf("unknown access mode %q", s)
	}
}

// Register describes one register: where it lives and how long it is.
type Register struct {
	Name   string
	Base   uint8
	Sub    uint8
	Len    int
	Access Access
}

// NewRegister validates and returns a register descriptor.
func NewRegister(name string, base, sub uint8, length int, access Access) (Register, error) {
	r := Register{Name: name, Base: base, Sub: sub, Len: length, Access: access}
	if err := r.Validate(); err != nil {
		return Register{}, err
	}
	return r, nil
}

// MustRegister is like NewRegister but panics on an invalid descriptor. It is
// intended for package-level descriptor tables.
func MustRegister(name string, base, sub uint8, length int, access Access) Register {
	r, err := NewRegister(name, base, sub, length, access)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks the addressing invariants of the descriptor.
func (r Register) Validate() error {
	if r.Base > MaxBase {
		return fmt.Errorf("register %s: %w: 0x%02X", r.Name, ErrBaseRange, r.Base)
	}
	if r.Sub > MaxSub {
		return fmt.Errorf("register %s: %w: 0x%02X", r.Name, ErrSubRange, r.Sub)
	}
	if r.Len < 1 {
		return fmt.Errorf("register %s: %w", r.Name, ErrEmpty)
	}
	return nil
}

// Bits returns the number of bits the register spans.
func (r Register) Bits() int { return r.Len * 8 }

// String formats the register as NAME(0xBB:0xSS/len).
func (r Register) String() string {
	return fmt.Sprintf("%s(0x%02X:0x%02X/%d)", r.Name, r.Base, r.Sub, r.Len)
}

// Def is implemented by register tag types. Tag types are empty structs whose
// Register method returns a constant descriptor.
type Def interface {
	Register() Register
}

// DescriptorOf returns the descriptor carried by the tag type R.
func DescriptorOf[R Def]() Register {
	var r R
	return r.Register()
}

// View is the transaction-scoped byte image of register R.
type View[R Def] struct {
	buf []byte
}

// NewView returns a zeroed view exactly as long as register R.
func NewView[R Def]() *View[R] {
	return &View[R]{buf: make([]byte, DescriptorOf[R]().Len)}
}

// ViewOf wraps an existing buffer. The buffer must be exactly as long as
// register R.
func ViewOf[R Def](b []byte) (*View[R], error) {
	r := DescriptorOf[R]()
	if len(b) != r.Len {
		return nil, fmt.Errorf("register %s: %w: got %d bytes, want %d", r.Name, ErrViewLength, len(b), r.Len)
	}
	return &View[R]{buf: b}, nil
}

// Bytes exposes the underlying buffer for the transport to fill or send.
func (v *View[R]) Bytes() []byte { return v.buf }

// Register returns the descriptor of the viewed register.
func (v *View[R]) Register() Register { return DescriptorOf[R]() }
