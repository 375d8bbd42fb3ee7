package reg

import (
	"fmt"
	"math/bits"

	"lukechampine.com/uint128"
)

// Value is the set of integer types a typed field may be read into.
// Fields wider than 64 bits use the Wide* accessors.
type Value interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

func widthOf[V Value]() uint {
	return uint(bits.Len64(uint64(^V(0))))
}

// span is the shared layout of every typed field.
type span struct {
	first uint
	size  uint
}

func newSpan[R Def](first, size, valueBits uint) (span, error) {
	r := DescriptorOf[R]()
	if err := r.Validate(); err != nil {
		return span{}, err
	}
	if err := checkSpan(r, first, size); err != nil {
		return span{}, err
	}
	if size > valueBits {
		return span{}, fmt.Errorf("register %s: %w: %d-bit field in %d-bit value", r.Name, ErrValueWidth, size, valueBits)
	}
	return span{first: first, size: size}, nil
}

func mustSpan[R Def](first, size, valueBits uint) span {
	s, err := newSpan[R](first, size, valueBits)
	if err != nil {
		panic(err)
	}
	return s
}

// FirstBit returns the index of the field's least significant bit.
func (s span) FirstBit() uint { return s.first }

// Size returns the field width in bits.
func (s span) Size() uint { return s.size }

func readSpan[R Def, V Value](s span, v *View[R]) V {
	return V(extract(v.buf, s.first, s.size).Lo)
}

func writeSpan[R Def, V Value](s span, v *View[R], value V) {
	insert(v.buf, s.first, s.size, uint128.From64(uint64(value)))
}

// RO is a read-only field of register R decoded as V.
type RO[R Def, V Value] struct{ span }

// WO is a write-only field of register R.
type WO[R Def, V Value] struct{ span }

// RW is a readable and writable field of register R.
type RW[R Def, V Value] struct{ span }

// NewRO validates the layout and returns a read-only field.
func NewRO[R Def, V Value](first, size uint) (RO[R, V], error) {
	s, err := newSpan[R](first, size, widthOf[V]())
	return RO[R, V]{s}, err
}

// NewWO validates the layout and returns a write-only field.
func NewWO[R Def, V Value](first, size uint) (WO[R, V], error) {
	s, err := newSpan[R](first, size, widthOf[V]())
	return WO[R, V]{s}, err
}

// NewRW validates the layout and returns a read-write field.
func NewRW[R Def, V Value](first, size uint) (RW[R, V], error) {
	s, err := newSpan[R](first, size, widthOf[V]())
	return RW[R, V]{s}, err
}

// MustRO is NewRO for package-level descriptor tables; it panics on a bad layout.
func MustRO[R Def, V Value](first, size uint) RO[R, V] {
	return RO[R, V]{mustSpan[R](first, size, widthOf[V]())}
}

// MustWO is NewWO for package-level descriptor tables.
func MustWO[R Def, V Value](first, size uint) WO[R, V] {
	return WO[R, V]{mustSpan[R](first, size, widthOf[V]())}
}

// MustRW is NewRW for package-level descriptor tables.
func MustRW[R Def, V Value](first, size uint) RW[R, V] {
	return RW[R, V]{mustSpan[R](first, size, widthOf[V]())}
}

// Read extracts the field from the view, zero-extended into V.
func (f RO[R, V]) Read(v *View[R]) V { return readSpan[R, V](f.span, v) }

// Write stores the low Size bits of value; all other bits are preserved.
func (f WO[R, V]) Write(v *View[R], value V) { writeSpan(f.span, v, value) }

// Read extracts the field from the view, zero-extended into V.
func (f RW[R, V]) Read(v *View[R]) V { return readSpan[R, V](f.span, v) }

// Write stores the low Size bits of value; all other bits are preserved.
func (f RW[R, V]) Write(v *View[R], value V) { writeSpan(f.span, v, value) }

// WideRO is a read-only field of up to 128 bits.
type WideRO[R Def] struct{ span }

// WideRW is a read-write field of up to 128 bits.
type WideRW[R Def] struct{ span }

// MustWideRO returns a wide read-only field or panics on a bad layout.
func MustWideRO[R Def](first, size uint) WideRO[R] {
	return WideRO[R]{mustSpan[R](first, size, MaxFieldBits)}
}

// MustWideRW returns a wide read-write field or panics on a bad layout.
func MustWideRW[R Def](first, size uint) WideRW[R] {
	return WideRW[R]{mustSpan[R](first, size, MaxFieldBits)}
}

func (f WideRO[R]) Read(v *View[R]) Uint128 { return extract(v.buf, f.first, f.size) }
func (f WideRW[R]) Read(v *View[R]) Uint128 { return extract(v.buf, f.first, f.size) }

func (f WideRW[R]) Write(v *View[R], value Uint128) {
	insert(v.buf, f.first, f.size, value)
}
