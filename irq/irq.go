// Package irq names the interrupt events reported in the transceiver's
// system status and enable registers.
package irq

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strings"
)

// Interrupt is a bit position in the 48-bit status word.
type Interrupt uint8

const (
	Cplock  Interrupt = 1  // clock PLL lock
	Spicrce Interrupt = 2  // SPI CRC error
	Aat     Interrupt = 3  // automatic acknowledge trigger
	Txfrb   Interrupt = 4  // TX frame begins
	Txprs   Interrupt = 5  // TX preamble sent
	Txphs   Interrupt = 6  // TX PHY header sent
	Txfrs   Interrupt = 7  // TX frame sent
	Rxprd   Interrupt = 8  // RX preamble detected
	Rxsfdd  Interrupt = 9  // RX SFD detected
	Ciadone Interrupt = 10 // CIA processing done
	Rxphd   Interrupt = 11 // RX PHY header detected
	Rxphe   Interrupt = 12 // RX PHY header error
	Rxfr    Interrupt = 13 // RX data frame ready
	Rxfcg   Interrupt = 14 // RX FCS good
	Rxfce   Interrupt = 15 // RX FCS error
	Rxfsl   Interrupt = 16 // RX Reed-Solomon frame sync loss
	Rxfto   Interrupt = 17 // RX frame wait timeout
	Ciaerr  Interrupt = 18 // CIA processing error
	Vwarn   Interrupt = 19 // low voltage warning
	Rxovrr  Interrupt = 20 // RX double buffer overrun
	Rxpto   Interrupt = 21 // preamble detection timeout
	Spirdy  Interrupt = 23 // SPI ready
	Rcinit  Interrupt = 24 // IDLE_RC entered
	PllHilo Interrupt = 25 // PLL losing lock
	Rxsto   Interrupt = 26 // SFD timeout
	Hpdwarn Interrupt = 27 // half period delay warning
	Cperr   Interrupt = 28 // STS quality warning
	Arfe    Interrupt = 29 // auto-acknowledge frame filter rejection
	Rxprej  Interrupt = 33 // RX preamble rejection
	VtDet   Interrupt = 36 // voltage or temperature variation
	Gpioirq Interrupt = 37 // GPIO interrupt
	AesDone Interrupt = 38 // AES-DMA operation complete
	AesErr  Interrupt = 39 // AES-DMA error
	CmdErr  Interrupt = 40 // command error
	SpiOvf  Interrupt = 41 // SPI overflow
	SpiUnf  Interrupt = 42 // SPI underflow
	Spierr  Interrupt = 43 // SPI collision
	CcaFail Interrupt = 44 // CCA failed to transmit
)

// StatusBytes is the length of the status and enable registers.
const StatusBytes = 6

var names = map[Interrupt]string{
	Cplock: "CPLOCK", Spicrce: "SPICRCE", Aat: "AAT", Txfrb: "TXFRB",
	Txprs: "TXPRS", Txphs: "TXPHS", Txfrs: "TXFRS", Rxprd: "RXPRD",
	Rxsfdd: "RXSFDD", Ciadone: "CIADONE", Rxphd: "RXPHD", Rxphe: "RXPHE",
	Rxfr: "RXFR", Rxfcg: "RXFCG", Rxfce: "RXFCE", Rxfsl: "RXFSL",
	Rxfto: "RXFTO", Ciaerr: "CIAERR", Vwarn: "VWARN", Rxovrr: "RXOVRR",
	Rxpto: "RXPTO", Spirdy: "SPIRDY", Rcinit: "RCINIT", PllHilo: "PLL_HILO",
	Rxsto: "RXSTO", Hpdwarn: "HPDWARN", Cperr: "CPERR", Arfe: "ARFE",
	Rxprej: "RXPREJ", VtDet: "VT_DET", Gpioirq: "GPIOIRQ", AesDone: "AES_DONE",
	AesErr: "AES_ERR", CmdErr: "CMD_ERR", SpiOvf: "SPI_OVF", SpiUnf: "SPI_UNF",
	Spierr: "SPIERR", CcaFail: "CCA_FAIL",
}

// Valid reports whether i names a defined interrupt.
func (i Interrupt) Valid() bool {
	_, ok := names[i]
	return ok
}

// Bit returns the single-bit mask of the interrupt.
func (i Interrupt) Bit() Mask { return Mask(1) << i }

func (i Interrupt) String() string {
	if n, ok := names[i]; ok {
		return n
	}
	return fmt.Sprintf("IRQ(%d)", uint8(i))
}

// All returns every defined interrupt in bit order.
func All() []Interrupt {
	out := make([]Interrupt, 0, len(names))
	for i := Interrupt(0); i < 64; i++ {
		if i.Valid() {
			out = append(out, i)
		}
	}
	return out
}

// Parse looks an interrupt up by name, case-insensitively.
func Parse(name string) (Interrupt, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for i, s := range names {
		if s == n {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown interrupt %q", name)
}

// Mask is a set of interrupts.
type Mask uint64

// MaskOf combines interrupts into a mask.
func MaskOf(irqs ...Interrupt) Mask {
	var m Mask
	for _, i := range irqs {
		m |= i.Bit()
	}
	return m
}

// Named groups used to classify completion and failure.
var (
	TxDone     = MaskOf(Txfrs)
	RxGood     = MaskOf(Rxfcg)
	RxDone     = MaskOf(Rxfcg, Rxfce)
	RxErrors   = MaskOf(Rxphe, Rxfsl, Ciaerr, Rxovrr, Rxprej)
	RxTimeouts = MaskOf(Rxfto, Rxpto, Rxsto)
	SpiErrors  = MaskOf(Spicrce, SpiOvf, SpiUnf, Spierr)
	RxAll      = MaskOf(Rxprd, Rxsfdd, Ciadone, Rxphd, Rxfr) | RxDone | RxErrors | RxTimeouts
)

func (m Mask) Has(i Interrupt) bool { return m&i.Bit() != 0 }

// Any reports whether m and o share at least one interrupt.
func (m Mask) Any(o Mask) bool { return m&o != 0 }

func (m Mask) With(irqs ...Interrupt) Mask    { return m | MaskOf(irqs...) }
func (m Mask) Without(irqs ...Interrupt) Mask { return m &^ MaskOf(irqs...) }

// Interrupts lists the defined interrupts present in m in bit order.
func (m Mask) Interrupts() []Interrupt {
	var out []Interrupt
	for v := uint64(m); v != 0; v &= v - 1 {
		i := Interrupt(bits.TrailingZeros64(v))
		if i.Valid() {
			out = append(out, i)
		}
	}
	return out
}

func (m Mask) String() string {
	irqs := m.Interrupts()
	if len(irqs) == 0 {
		return "none"
	}
	parts := make([]string, len(irqs))
	for n, i := range irqs {
		parts[n] = i.String()
	}
	return strings.Join(parts, "|")
}

// Bytes renders the mask little-endian into n bytes, as written to the
// status or enable register.
func (m Mask) Bytes(n int) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(m))
	out := make([]byte, n)
	copy(out, b[:])
	return out
}

// MaskFromBytes decodes a little-endian register image of up to 8 bytes.
func MaskFromBytes(b []byte) Mask {
	var buf [8]byte
	copy(buf[:], b)
	return Mask(binary.LittleEndian.Uint64(buf[:]))
}
