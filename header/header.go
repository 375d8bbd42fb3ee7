// Package header encodes the one- and two-byte transaction headers that open
// every bus transaction with the transceiver.
//
// Bit positions below count from the most significant bit of each byte:
//
//	fast command      1 0 C C C C C 1
//	short addressed   A 0 B B B B B 0
//	full addressed    A 1 B B B B B S | S S S S S S M M
//
// A is the access mode (1 = write), B the 5-bit base address, S the 7-bit
// sub-address (its most significant bit sits in the last bit of byte 0), C
// the fast command opcode and M the masked-write width code.
package header

import (
	"github.com/linht/uwb-manager/fastcmd"
)

// AccessMode selects a read or write transaction.
type AccessMode uint8

const (
	Read  AccessMode = 0
	Write AccessMode = 1
)

func (m AccessMode) String() string {
	if m == Write {
		return "write"
	}
	return "read"
}

// MaskedWriteMode is the width code of a masked write. Unmasked is a plain
// full-addressed write.
type MaskedWriteMode uint8

const (
	Unmasked     MaskedWriteMode = 0b00
	EightBit     MaskedWriteMode = 0b01
	SixteenBit   MaskedWriteMode = 0b10
	ThirtyTwoBit MaskedWriteMode = 0b11
)

// Width returns the operand size in bytes, or 0 for Unmasked.
func (m MaskedWriteMode) Width() int {
	switch m & 0b11 {
	case EightBit:
		return 1
	case SixteenBit:
		return 2
	case ThirtyTwoBit:
		return 4
	}
	return 0
}

func (m MaskedWriteMode) String() string {
	switch m & 0b11 {
	case EightBit:
		return "8-bit"
	case SixteenBit:
		return "16-bit"
	case ThirtyTwoBit:
		return "32-bit"
	}
	return "unmasked"
}

// BaseAddress selects a register file. Only the low 5 bits are encoded.
type BaseAddress uint8

// SubAddress is the byte offset inside a register file. Only the low 7 bits
// are encoded.
type SubAddress uint8

func (b BaseAddress) bits() uint8 { return uint8(b) & 0x1F }
func (s SubAddress) bits() uint8  { return uint8(s) & 0x7F }

// FastCommand encodes the header of a fast command transaction.
func FastCommand(c fastcmd.Command) [1]byte {
	b := NewFastCommandBuilder()
	return b.WriteFastCommand(c).Build()
}

// ShortAddressed encodes a one-byte header addressing sub-address 0 of base.
func ShortAddressed(base BaseAddress, mode AccessMode) [1]byte {
	b := NewShortBuilder()
	return b.WriteAccessMode(mode).WriteBaseAddress(base).Build()
}

// FullAddressed encodes a two-byte header addressing base:sub.
func FullAddressed(base BaseAddress, sub SubAddress, mode AccessMode) [2]byte {
	b := NewFullBuilder()
	return b.WriteAccessMode(mode).WriteBaseAddress(base).WriteSubAddress(sub).Build()
}

// MaskedWrite encodes a two-byte masked write header. The access mode is
// always write; with Unmasked the result equals FullAddressed(base, sub, Write).
func MaskedWrite(base BaseAddress, sub SubAddress, mode MaskedWriteMode) [2]byte {
	b := NewFullBuilder()
	return b.WriteAccessMode(Write).
		WriteBaseAddress(base).
		WriteSubAddress(sub).
		WriteOperationMode(mode).
		Build()
}
