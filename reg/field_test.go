package reg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/linht/uwb-manager/reg"
)

type devID struct{}

func (devID) Register() reg.Register {
	return reg.Register{Name: "DEV_ID", Base: 0x00, Sub: 0x00, Len: 4, Access: reg.ReadOnly}
}

type scratch struct{}

func (scratch) Register() reg.Register {
	return reg.Register{Name: "SCRATCH", Base: 0x16, Sub: 0x00, Len: 4, Access: reg.ReadWrite}
}

type keyRAM struct{}

func (keyRAM) Register() reg.Register {
	return reg.Register{Name: "KEY", Base: 0x17, Sub: 0x00, Len: 17, Access: reg.ReadWrite}
}

type badSub struct{}

func (badSub) Register() reg.Register {
	return reg.Register{Name: "BAD", Base: 0x01, Sub: 0x80, Len: 1}
}

var (
	devRev    = reg.MustRO[devID, uint8](0, 4)
	devVer    = reg.MustRO[devID, uint8](4, 4)
	devModel  = reg.MustRO[devID, uint8](8, 8)
	devRidtag = reg.MustRO[devID, uint16](16, 16)
)

func TestDevIDDecode(t *testing.T) {
	v, err := reg.ViewOf[devID]([]byte{0x02, 0x03, 0xCA, 0xDE})
	require.NoError(t, err)

	assert.Equal(t, uint8(2), devRev.Read(v))
	assert.Equal(t, uint8(0), devVer.Read(v))
	assert.Equal(t, uint8(3), devModel.Read(v))
	assert.Equal(t, uint16(0xDECA), devRidtag.Read(v))
}

func TestWriteStraddlingByteBoundary(t *testing.T) {
	f := reg.MustRW[scratch, uint8](4, 8)
	v, err := reg.ViewOf[scratch]([]byte{0xFF, 0x00, 0x00, 0x00})
	require.NoError(t, err)

	f.Write(v, 0xAB)

	assert.Equal(t, []byte{0xBF, 0x0A, 0x00, 0x00}, v.Bytes())
	assert.Equal(t, uint8(0xAB), f.Read(v))
}

func TestWritePreservesNeighbours(t *testing.T) {
	tests := []struct {
		name  string
		first uint
		size  uint
		value uint32
	}{
		{"single bit low", 0, 1, 1},
		{"single bit high", 31, 1, 1},
		{"nibble", 12, 4, 0x5},
		{"three bytes straddled", 3, 24, 0xA5A5A5},
		{"whole register", 0, 32, 0xDEADBEEF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := reg.NewRW[scratch, uint32](tt.first, tt.size)
			require.NoError(t, err)

			for _, fill := range []byte{0x00, 0xFF, 0x5A} {
				v := reg.NewView[scratch]()
				for i := range v.Bytes() {
					v.Bytes()[i] = fill
				}
				before := append([]byte(nil), v.Bytes()...)

				f.Write(v, tt.value)
				assert.Equal(t, tt.value, f.Read(v))

				for bit := uint(0); bit < 32; bit++ {
					if bit >= tt.first && bit < tt.first+tt.size {
						continue
					}
					want := before[bit/8] >> (bit % 8) & 1
					got := v.Bytes()[bit/8] >> (bit % 8) & 1
					assert.Equal(t, want, got, "bit %d changed", bit)
				}
			}
		})
	}
}

func TestWriteTruncatesToFieldWidth(t *testing.T) {
	f := reg.MustRW[scratch, uint16](8, 4)
	v := reg.NewView[scratch]()

	f.Write(v, 0xFFF3)

	assert.Equal(t, uint16(0x3), f.Read(v))
	assert.Equal(t, []byte{0x00, 0x03, 0x00, 0x00}, v.Bytes())
}

func TestWideFieldRoundTrip(t *testing.T) {
	f := reg.MustWideRW[keyRAM](4, 128)
	v := reg.NewView[keyRAM]()
	for i := range v.Bytes() {
		v.Bytes()[i] = 0xFF
	}

	want := reg.Uint128{Hi: 0x0123456789ABCDEF, Lo: 0xFEDCBA9876543210}
	f.Write(v, want)

	assert.Equal(t, want, f.Read(v))
	assert.Equal(t, byte(0x0F), v.Bytes()[0], "low nibble of first byte must survive")
	assert.Equal(t, byte(0xF0), v.Bytes()[16]&0xF0, "high nibble of last byte must survive")
}

func TestFieldLayoutValidation(t *testing.T) {
	_, err := reg.NewRO[devID, uint8](28, 8)
	assert.ErrorIs(t, err, reg.ErrFieldBounds)

	_, err = reg.NewRO[devID, uint8](0, 9)
	assert.ErrorIs(t, err, reg.ErrValueWidth)

	_, err = reg.NewRW[scratch, uint64](0, 0)
	assert.ErrorIs(t, err, reg.ErrFieldSize)

	_, err = reg.NewRO[badSub, uint8](0, 1)
	assert.ErrorIs(t, err, reg.ErrSubRange)

	assert.Panics(t, func() { reg.MustRW[scratch, uint8](30, 4) })
	assert.NotPanics(t, func() { reg.MustRW[scratch, uint8](28, 4) })
}

func TestViewOfRejectsWrongLength(t *testing.T) {
	_, err := reg.ViewOf[devID](make([]byte, 3))
	assert.ErrorIs(t, err, reg.ErrViewLength)

	v := reg.NewView[devID]()
	assert.Len(t, v.Bytes(), 4)
	assert.Equal(t, "DEV_ID", v.Register().Name)
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name    string
		base    uint8
		sub     uint8
		length  int
		wantErr error
	}{
		{"lowest", 0x00, 0x00, 1, nil},
		{"highest", 0x1F, 0x7F, 1, nil},
		{"base overflow", 0x20, 0x00, 1, reg.ErrBaseRange},
		{"sub overflow", 0x00, 0x80, 1, reg.ErrSubRange},
		{"empty", 0x00, 0x00, 0, reg.ErrEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.NewRegister("R", tt.base, tt.sub, tt.length, reg.ReadWrite)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseUint128(t *testing.T) {
	tests := []struct {
		in   string
		want reg.Uint128
	}{
		{"0", reg.Uint128{}},
		{"48879", uint128.From64(0xBEEF)},
		{"0xBEEF", uint128.From64(0xBEEF)},
		{"0b101", uint128.From64(5)},
		{"0x10000000000000000", reg.Uint128{Hi: 1}},
		{"0xFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF", uint128.Max},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := reg.ParseUint128(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}

	for _, bad := range []string{"", "-1", "0x100000000000000000000000000000000", "1 2", "zz"} {
		_, err := reg.ParseUint128(bad)
		assert.Error(t, err, bad)
	}
}

func TestHex(t *testing.T) {
	assert.Equal(t, "0x0", reg.Hex(reg.Uint128{}))
	assert.Equal(t, "0xDECA", reg.Hex(uint128.From64(0xDECA)))
	assert.Equal(t, "0x10000000000000000", reg.Hex(reg.Uint128{Hi: 1}))
	assert.Equal(t, "0x1000000000000000F", reg.Hex(reg.Uint128{Hi: 1, Lo: 0xF}))
}
