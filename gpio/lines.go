// Package gpio drives the transceiver's reset and interrupt lines through the
// Linux GPIO character device.
package gpio

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Reset timing for RSTn.
const (
	ResetPulse  = 1 * time.Millisecond
	ResetSettle = 2 * time.Millisecond
)

var ErrNotInitialized = errors.New("line not initialized")

// Lines holds the reset output and the optional IRQ input.
type Lines struct {
	chip      *gpiocdev.Chip
	resetLine *gpiocdev.Line
	irqLine   *gpiocdev.Line
	chipPath  string
	resetPin  int
	irqPin    int
	irq       chan struct{}
	edges     atomic.Uint64
}

// Open requests the lines on chipPath. A negative irqPin leaves the IRQ line
// unused and the driver falls back to polling.
func Open(chipPath string, resetPin, irqPin int) (*Lines, error) {
	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", chipPath, err)
	}

	l := &Lines{
		chip:     chip,
		chipPath: chipPath,
		resetPin: resetPin,
		irqPin:   irqPin,
		irq:      make(chan struct{}, 1),
	}

	// RSTn is active low; start released.
	resetLine, err := chip.RequestLine(
		resetPin,
		gpiocdev.AsOutput(1),
		gpiocdev.WithConsumer("uwb-reset"),
	)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("failed to request reset pin %d: %w", resetPin, err)
	}
	l.resetLine = resetLine

	if irqPin >= 0 {
		irqLine, err := chip.RequestLine(
			irqPin,
			gpiocdev.AsInput,
			gpiocdev.WithRisingEdge,
			gpiocdev.WithEventHandler(l.onEdge),
			gpiocdev.WithConsumer("uwb-irq"),
		)
		if err != nil {
			resetLine.Close()
			chip.Close()
			return nil, fmt.Errorf("failed to request IRQ pin %d: %w", irqPin, err)
		}
		l.irqLine = irqLine
	}

	return l, nil
}

// onEdge coalesces edges: one pending wakeup is enough for the driver to
// re-read SYS_STATUS.
func (l *Lines) onEdge(gpiocdev.LineEvent) {
	l.edges.Add(1)
	select {
	case l.irq <- struct{}{}:
	default:
	}
}

// IRQ returns the wakeup channel, or nil when no IRQ line was requested.
func (l *Lines) IRQ() <-chan struct{} {
	if l.irqLine == nil {
		return nil
	}
	return l.irq
}

// Edges counts rising edges seen on the IRQ line.
func (l *Lines) Edges() uint64 { return l.edges.Load() }

// Reset pulses RSTn low and waits for the device to come back up.
func (l *Lines) Reset() error {
	if l.resetLine == nil {
		return fmt.Errorf("reset: %w", ErrNotInitialized)
	}

	if err := l.resetLine.SetValue(0); err != nil {
		return fmt.Errorf("failed to assert reset: %w", err)
	}
	time.Sleep(ResetPulse)

	if err := l.resetLine.SetValue(1); err != nil {
		return fmt.Errorf("failed to release reset: %w", err)
	}
	time.Sleep(ResetSettle)

	return nil
}

// IRQLevel reads the current level of the IRQ line.
func (l *Lines) IRQLevel() (bool, error) {
	if l.irqLine == nil {
		return false, fmt.Errorf("irq: %w", ErrNotInitialized)
	}
	v, err := l.irqLine.Value()
	if err != nil {
		return false, fmt.Errorf("failed to read IRQ pin: %w", err)
	}
	return v == 1, nil
}

// Close releases all GPIO resources.
func (l *Lines) Close() error {
	var errs []error

	if l.irqLine != nil {
		if err := l.irqLine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close IRQ line: %w", err))
		}
		l.irqLine = nil
	}

	if l.resetLine != nil {
		if err := l.resetLine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close reset line: %w", err))
		}
		l.resetLine = nil
	}

	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close GPIO chip: %w", err))
		}
		l.chip = nil
	}

	return errors.Join(errs...)
}

// String describes the lines.
func (l *Lines) String() string {
	if l.chip == nil {
		return fmt.Sprintf("GPIO: %s (closed)", l.chipPath)
	}
	irq := "polling"
	if l.irqLine != nil {
		irq = fmt.Sprintf("%d", l.irqPin)
	}
	return fmt.Sprintf("GPIO: %s (%s, %s), Reset Pin: %d, IRQ Pin: %s",
		l.chipPath, l.chip.Name, l.chip.Label, l.resetPin, irq)
}

// ValidateChip checks that the chip exists and that pin is a valid offset.
func ValidateChip(chipPath string, pin int) error {
	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return fmt.Errorf("cannot access GPIO chip %s: %w", chipPath, err)
	}
	defer chip.Close()

	if pin < 0 {
		return fmt.Errorf("invalid pin %d: must be non-negative", pin)
	}
	if _, err := chip.LineInfo(pin); err != nil {
		return fmt.Errorf("invalid pin %d for chip %s: %w", pin, chipPath, err)
	}
	return nil
}
