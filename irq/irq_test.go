package irq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitPositions(t *testing.T) {
	tests := []struct {
		irq Interrupt
		bit uint
	}{
		{Cplock, 1}, {Txfrs, 7}, {Rxfcg, 14}, {Rxfce, 15}, {Rxpto, 21},
		{Spirdy, 23}, {Arfe, 29}, {Rxprej, 33}, {VtDet, 36}, {CmdErr, 40},
		{Spierr, 43}, {CcaFail, 44},
	}
	for _, tt := range tests {
		assert.Equal(t, Mask(1)<<tt.bit, tt.irq.Bit(), tt.irq.String())
	}
}

func TestAllIsOrderedAndComplete(t *testing.T) {
	all := All()
	require.Len(t, all, 38)
	for n := 1; n < len(all); n++ {
		assert.Less(t, all[n-1], all[n])
	}
	assert.False(t, Interrupt(22).Valid())
	assert.False(t, Interrupt(30).Valid())
}

func TestMaskOperations(t *testing.T) {
	m := MaskOf(Txfrs, CmdErr)
	assert.True(t, m.Has(Txfrs))
	assert.True(t, m.Has(CmdErr))
	assert.False(t, m.Has(Rxfcg))
	assert.Equal(t, []Interrupt{Txfrs, CmdErr}, m.Interrupts())
	assert.Equal(t, "TXFRS|CMD_ERR", m.String())

	m = m.Without(Txfrs).With(Rxfcg)
	assert.Equal(t, "RXFCG|CMD_ERR", m.String())
	assert.True(t, m.Any(RxDone))
	assert.False(t, m.Any(TxDone))
	assert.Equal(t, "none", Mask(0).String())
}

func TestMaskBytesRoundTrip(t *testing.T) {
	m := MaskOf(Cplock, Rxfcg, Rxprej, CcaFail)
	b := m.Bytes(StatusBytes)
	require.Len(t, b, StatusBytes)
	assert.Equal(t, []byte{0x02, 0x40, 0x00, 0x00, 0x02, 0x10}, b)
	assert.Equal(t, m, MaskFromBytes(b))
}

func TestParse(t *testing.T) {
	i, err := Parse("pll_hilo")
	require.NoError(t, err)
	assert.Equal(t, PllHilo, i)

	_, err = Parse("RXFOO")
	assert.Error(t, err)
}

func TestUnknownBitsAreIgnored(t *testing.T) {
	m := Mask(1<<22 | 1<<63).With(Aat)
	assert.Equal(t, []Interrupt{Aat}, m.Interrupts())
	assert.Equal(t, "IRQ(22)", Interrupt(22).String())
}
