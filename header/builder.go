package header

import "github.com/linht/uwb-manager/fastcmd"

// Byte 0 regions shared by both header lengths.
const (
	accessMask byte = 0x80
	lengthMask byte = 0x40
	fiveMask   byte = 0x3E
	typeMask   byte = 0x01
)

// Byte 1 regions of the two-byte header.
const (
	subMask  byte = 0xFC
	modeMask byte = 0x03
)

// Region operations come in three flavours. Clear zeroes the region, Write
// ORs the value in and assumes the region is already zero, Set is Clear
// followed by Write.

func clearAccess(b *byte)               { *b &^= accessMask }
func writeAccess(b *byte, m AccessMode) { *b |= byte(m&1) << 7 }
func clearType(b *byte)                 { *b &^= typeMask }
func writeType(b *byte, bit uint8)      { *b |= bit & 1 }
func clearFive(b *byte)                 { *b &^= fiveMask }
func writeFive(b *byte, v uint8)        { *b |= (v & 0x1F) << 1 }

func boolBit(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// ShortBuilder assembles one-byte headers.
type ShortBuilder struct {
	b [1]byte
}

// FullBuilder assembles two-byte headers.
type FullBuilder struct {
	b [2]byte
}

// emptyFastCommand is a short header with the write bit and the type bit
// set and no opcode, computed once.
var emptyFastCommand = func() [1]byte {
	var s ShortBuilder
	return s.WriteAccessMode(Write).WriteTypeBit(1).Build()
}()

// NewShortBuilder returns a builder for a zeroed one-byte header.
func NewShortBuilder() *ShortBuilder { return &ShortBuilder{} }

// NewFastCommandBuilder returns a builder preloaded with an empty fast
// command header.
func NewFastCommandBuilder() *ShortBuilder { return &ShortBuilder{b: emptyFastCommand} }

// NewFullBuilder returns a builder for a two-byte header with the length bit set.
func NewFullBuilder() *FullBuilder { return &FullBuilder{b: [2]byte{lengthMask, 0x00}} }

func (s *ShortBuilder) ClearAccessMode() *ShortBuilder { clearAccess(&s.b[0]); return s }
func (s *ShortBuilder) WriteAccessMode(m AccessMode) *ShortBuilder {
	writeAccess(&s.b[0], m)
	return s
}
func (s *ShortBuilder) SetAccessMode(m AccessMode) *ShortBuilder {
	return s.ClearAccessMode().WriteAccessMode(m)
}

func (s *ShortBuilder) ClearTypeBit() *ShortBuilder         { clearType(&s.b[0]); return s }
func (s *ShortBuilder) WriteTypeBit(bit uint8) *ShortBuilder { writeType(&s.b[0], bit); return s }
func (s *ShortBuilder) SetTypeBit(bit uint8) *ShortBuilder {
	return s.ClearTypeBit().WriteTypeBit(bit)
}

func (s *ShortBuilder) ClearFiveBits() *ShortBuilder         { clearFive(&s.b[0]); return s }
func (s *ShortBuilder) WriteFiveBits(v uint8) *ShortBuilder { writeFive(&s.b[0], v); return s }
func (s *ShortBuilder) SetFiveBits(v uint8) *ShortBuilder {
	return s.ClearFiveBits().WriteFiveBits(v)
}

func (s *ShortBuilder) ClearBaseAddress() *ShortBuilder { return s.ClearFiveBits() }
func (s *ShortBuilder) WriteBaseAddress(a BaseAddress) *ShortBuilder {
	return s.WriteFiveBits(a.bits())
}
func (s *ShortBuilder) SetBaseAddress(a BaseAddress) *ShortBuilder {
	return s.ClearBaseAddress().WriteBaseAddress(a)
}

// ClearType marks the header as register addressed.
func (s *ShortBuilder) ClearType() *ShortBuilder { return s.ClearTypeBit() }

// WriteType ORs in the fast command flag.
func (s *ShortBuilder) WriteType(fast bool) *ShortBuilder { return s.WriteTypeBit(boolBit(fast)) }

// SetType selects between a fast command (true) and a short addressed header.
func (s *ShortBuilder) SetType(fast bool) *ShortBuilder { return s.ClearType().WriteType(fast) }

// The opcode operations touch only the five middle bits; the access mode
// and type bit are left as they are.

func (s *ShortBuilder) ClearOpcode() *ShortBuilder { return s.ClearFiveBits() }
func (s *ShortBuilder) WriteOpcode(c fastcmd.Command) *ShortBuilder {
	return s.WriteFiveBits(c.Opcode())
}
func (s *ShortBuilder) SetOpcode(c fastcmd.Command) *ShortBuilder {
	return s.ClearOpcode().WriteOpcode(c)
}

// ClearFastCommand clears the opcode, the access mode and the type bit.
func (s *ShortBuilder) ClearFastCommand() *ShortBuilder {
	return s.ClearAccessMode().ClearType().ClearOpcode()
}

// WriteFastCommand ORs in the opcode and forces write mode and the type bit.
func (s *ShortBuilder) WriteFastCommand(c fastcmd.Command) *ShortBuilder {
	return s.WriteAccessMode(Write).WriteType(true).WriteOpcode(c)
}

// SetFastCommand replaces the whole header with a fast command.
func (s *ShortBuilder) SetFastCommand(c fastcmd.Command) *ShortBuilder {
	return s.ClearFastCommand().WriteFastCommand(c)
}

// Build clears the length bit and returns the header.
func (s *ShortBuilder) Build() [1]byte {
	s.b[0] &^= lengthMask
	return s.b
}

func (f *FullBuilder) ClearAccessMode() *FullBuilder { clearAccess(&f.b[0]); return f }
func (f *FullBuilder) WriteAccessMode(m AccessMode) *FullBuilder {
	writeAccess(&f.b[0], m)
	return f
}
func (f *FullBuilder) SetAccessMode(m AccessMode) *FullBuilder {
	return f.ClearAccessMode().WriteAccessMode(m)
}

func (f *FullBuilder) ClearTypeBit() *FullBuilder         { clearType(&f.b[0]); return f }
func (f *FullBuilder) WriteTypeBit(bit uint8) *FullBuilder { writeType(&f.b[0], bit); return f }
func (f *FullBuilder) SetTypeBit(bit uint8) *FullBuilder {
	return f.ClearTypeBit().WriteTypeBit(bit)
}

func (f *FullBuilder) ClearFiveBits() *FullBuilder         { clearFive(&f.b[0]); return f }
func (f *FullBuilder) WriteFiveBits(v uint8) *FullBuilder { writeFive(&f.b[0], v); return f }
func (f *FullBuilder) SetFiveBits(v uint8) *FullBuilder {
	return f.ClearFiveBits().WriteFiveBits(v)
}

func (f *FullBuilder) ClearBaseAddress() *FullBuilder { return f.ClearFiveBits() }
func (f *FullBuilder) WriteBaseAddress(a BaseAddress) *FullBuilder {
	return f.WriteFiveBits(a.bits())
}
func (f *FullBuilder) SetBaseAddress(a BaseAddress) *FullBuilder {
	return f.ClearBaseAddress().WriteBaseAddress(a)
}

// ClearSubAddress clears the sub-address bits in both bytes, including the
// type bit of byte 0 that carries its most significant bit.
func (f *FullBuilder) ClearSubAddress() *FullBuilder {
	f.ClearTypeBit()
	f.b[1] &^= subMask
	return f
}

func (f *FullBuilder) WriteSubAddress(a SubAddress) *FullBuilder {
	v := a.bits()
	f.WriteTypeBit(v >> 6)
	f.b[1] |= (v & 0x3F) << 2
	return f
}

func (f *FullBuilder) SetSubAddress(a SubAddress) *FullBuilder {
	return f.ClearSubAddress().WriteSubAddress(a)
}

func (f *FullBuilder) ClearOperationMode() *FullBuilder { f.b[1] &^= modeMask; return f }
func (f *FullBuilder) WriteOperationMode(m MaskedWriteMode) *FullBuilder {
	f.b[1] |= byte(m) & modeMask
	return f
}
func (f *FullBuilder) SetOperationMode(m MaskedWriteMode) *FullBuilder {
	return f.ClearOperationMode().WriteOperationMode(m)
}

// Build sets the length bit and returns the header.
func (f *FullBuilder) Build() [2]byte {
	f.b[0] |= lengthMask
	return f.b
}
