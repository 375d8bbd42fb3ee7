// Package radioerr classifies the error conditions the transceiver reports
// through its interrupt status.
//
// Bus errors (SpiError) mean the last transaction cannot be trusted and are
// surfaced to the caller. Receiver errors only invalidate the current receive
// attempt; Retryable reports true for them.
package radioerr

import (
	"errors"
	"fmt"

	"github.com/linht/uwb-manager/fastcmd"
	"github.com/linht/uwb-manager/irq"
)

// SpiError is a bus-level fault flagged by the device.
type SpiError uint8

const (
	ErrSpiCRC       SpiError = iota + 1 // CRC mismatch on a write (SPICRCE)
	ErrSpiOverflow                      // write buffer overflow (SPI_OVF)
	ErrSpiUnderflow                     // read buffer underflow (SPI_UNF)
	ErrSpiCollision                     // access collision (SPIERR)
)

func (e SpiError) Error() string {
	switch e {
	case ErrSpiCRC:
		return "spi: crc error"
	case ErrSpiOverflow:
		return "spi: overflow"
	case ErrSpiUnderflow:
		return "spi: underflow"
	case ErrSpiCollision:
		return "spi: collision"
	default:
		return fmt.Sprintf("spi: error %d", uint8(e))
	}
}

// Interrupt returns the status bit that reports the error.
func (e SpiError) Interrupt() irq.Interrupt {
	switch e {
	case ErrSpiCRC:
		return irq.Spicrce
	case ErrSpiOverflow:
		return irq.SpiOvf
	case ErrSpiUnderflow:
		return irq.SpiUnf
	default:
		return irq.Spierr
	}
}

// ErrCommandRejected is reported when a fast command was issued while the
// previous one was still being processed (CMD_ERR).
var ErrCommandRejected = errors.New("fast command issued too quickly")

// FastCommandError wraps the cause of a failed fast command: a SpiError or
// ErrCommandRejected.
type FastCommandError struct {
	Command fastcmd.Command
	Err     error
}

func (e *FastCommandError) Error() string {
	return fmt.Sprintf("fast command %s failed: %v", e.Command, e.Err)
}

func (e *FastCommandError) Unwrap() error { return e.Err }

// ReceiverError explains why a receive attempt produced no frame.
type ReceiverError uint8

const (
	ErrPreambleTimeout ReceiverError = iota + 1
	ErrPreambleRejection
	ErrSfdTimeout
	ErrFrameTimeout
	ErrPhrDecode
	ErrReedSolomon
	ErrCiaTimeout
	ErrDoubleBufferOverrun
)

func (e ReceiverError) Error() string {
	switch e {
	case ErrPreambleTimeout:
		return "receiver: preamble detection timeout"
	case ErrPreambleRejection:
		return "receiver: preamble rejected"
	case ErrSfdTimeout:
		return "receiver: SFD timeout"
	case ErrFrameTimeout:
		return "receiver: frame wait timeout"
	case ErrPhrDecode:
		return "receiver: PHY header decode error"
	case ErrReedSolomon:
		return "receiver: Reed-Solomon frame sync loss"
	case ErrCiaTimeout:
		return "receiver: CIA processing error"
	case ErrDoubleBufferOverrun:
		return "receiver: double buffer overrun"
	default:
		return fmt.Sprintf("receiver: error %d", uint8(e))
	}
}

// Interrupt returns the status bit that reports the error.
func (e ReceiverError) Interrupt() irq.Interrupt {
	for _, c := range receiverOrder {
		if c.err == e {
			return c.irq
		}
	}
	return 0
}

// Check order is fixed: earlier entries win when several bits are set.
var spiOrder = []SpiError{ErrSpiCRC, ErrSpiOverflow, ErrSpiUnderflow, ErrSpiCollision}

var receiverOrder = []struct {
	irq irq.Interrupt
	err ReceiverError
}{
	{irq.Rxovrr, ErrDoubleBufferOverrun},
	{irq.Rxphe, ErrPhrDecode},
	{irq.Rxfsl, ErrReedSolomon},
	{irq.Ciaerr, ErrCiaTimeout},
	{irq.Rxprej, ErrPreambleRejection},
	{irq.Rxpto, ErrPreambleTimeout},
	{irq.Rxsto, ErrSfdTimeout},
	{irq.Rxfto, ErrFrameTimeout},
}

// SpiErrorFromStatus returns the highest-priority SpiError in m, or nil.
func SpiErrorFromStatus(m irq.Mask) error {
	for _, e := range spiOrder {
		if m.Has(e.Interrupt()) {
			return e
		}
	}
	return nil
}

// ReceiverErrorFromStatus returns the highest-priority ReceiverError in m,
// or nil. Overruns only count when double buffering is enabled.
func ReceiverErrorFromStatus(m irq.Mask, doubleBuffered bool) error {
	for _, c := range receiverOrder {
		if c.err == ErrDoubleBufferOverrun && !doubleBuffered {
			continue
		}
		if m.Has(c.irq) {
			return c.err
		}
	}
	return nil
}

// CommandErrorFromStatus returns a *FastCommandError when m reports a bus
// error or a rejected command, or nil.
func CommandErrorFromStatus(cmd fastcmd.Command, m irq.Mask) error {
	if err := SpiErrorFromStatus(m); err != nil {
		return &FastCommandError{Command: cmd, Err: err}
	}
	if m.Has(irq.CmdErr) {
		return &FastCommandError{Command: cmd, Err: ErrCommandRejected}
	}
	return nil
}

// Retryable reports whether err only invalidated the current receive attempt.
func Retryable(err error) bool {
	var re ReceiverError
	return errors.As(err, &re)
}
