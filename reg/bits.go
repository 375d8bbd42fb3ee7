package reg

import (
	"fmt"
	"strings"

	"lukechampine.com/uint128"
)

// Uint128 holds values of fields up to 128 bits wide.
type Uint128 = uint128.Uint128

// Hex renders v in upper-case hex without leading zero words, the form the
// register API reports field values in.
func Hex(v Uint128) string {
	if v.Hi == 0 {
		return fmt.Sprintf("0x%X", v.Lo)
	}
	return fmt.Sprintf("0x%X%016X", v.Hi, v.Lo)
}

// ParseUint128 accepts decimal or 0x, 0o and 0b prefixed values.
func ParseUint128(s string) (Uint128, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t") {
		return Uint128{}, fmt.Errorf("invalid 128-bit value %q", s)
	}
	v, err := uint128.FromString(s)
	if err != nil {
		return Uint128{}, fmt.Errorf("invalid 128-bit value %q: %w", s, err)
	}
	return v, nil
}

// extract reads size bits starting at first. Bit 0 is the least significant
// bit of b[0] and bytes are little-endian.
func extract(b []byte, first, size uint) Uint128 {
	var out Uint128
	for i := uint(0); i < size; {
		bit := first + i
		idx, off := bit/8, bit%8
		n := min(8-off, size-i)
		chunk := uint64(b[idx]>>off) & (1<<n - 1)
		out = out.Or(uint128.From64(chunk).Lsh(i))
		i += n
	}
	return out
}

// insert writes the low size bits of v starting at first and leaves every
// other bit of b untouched.
func insert(b []byte, first, size uint, v Uint128) {
	for i := uint(0); i < size; {
		bit := first + i
		idx, off := bit/8, bit%8
		n := min(8-off, size-i)
		m := byte((1<<n - 1) << off)
		chunk := byte(v.Rsh(i).Lo << off)
		b[idx] = b[idx]&^m | chunk&m
		i += n
	}
}

func checkSpan(r Register, first, size uint) error {
	if size == 0 || size > MaxFieldBits {
		return fmt.Errorf("register %s: %w: %d", r.Name, ErrFieldSize, size)
	}
	if first+size > uint(r.Bits()) {
		return fmt.Errorf("register %s: %w: bits %d..%d of %d", r.Name, ErrFieldBounds, first, first+size-1, r.Bits())
	}
	return nil
}
