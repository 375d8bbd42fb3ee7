package driver

import (
	"context"
	"fmt"

	"github.com/linht/uwb-manager/fastcmd"
	"github.com/linht/uwb-manager/irq"
	"github.com/linht/uwb-manager/radioerr"
	"github.com/linht/uwb-manager/reg"
	"github.com/linht/uwb-manager/regs"
	"github.com/linht/uwb-manager/transport"
)

// TransceiverDelay selects the reference a delayed operation is measured from.
type TransceiverDelay uint8

const (
	// Absolute: DX_TIME alone.
	Absolute TransceiverDelay = iota
	// LastRx: RX timestamp + DX_TIME.
	LastRx
	// LastTx: TX timestamp + DX_TIME.
	LastTx
	// Internal: DREF_TIME + DX_TIME.
	Internal
)

var delayNames = [...]string{"absolute", "last_rx", "last_tx", "internal"}

func (k TransceiverDelay) String() string {
	if int(k) < len(delayNames) {
		return delayNames[k]
	}
	return fmt.Sprintf("delay(%d)", uint8(k))
}

// ParseDelay accepts the names returned by String.
func ParseDelay(s string) (TransceiverDelay, error) {
	for i, n := range delayNames {
		if n == s {
			return TransceiverDelay(i), nil
		}
	}
	return 0, fmt.Errorf("unknown delay reference %q", s)
}

// TxCommand returns the delayed transmit command for k, optionally followed
// by an automatic receive.
func (k TransceiverDelay) TxCommand(thenReceive bool) fastcmd.Command {
	switch k {
	case LastRx:
		return pick(thenReceive, fastcmd.DtxRsW4r, fastcmd.DtxRs)
	case LastTx:
		return pick(thenReceive, fastcmd.DtxTsW4r, fastcmd.DtxTs)
	case Internal:
		return pick(thenReceive, fastcmd.DtxRefW4r, fastcmd.DtxRef)
	default:
		return pick(thenReceive, fastcmd.DtxW4r, fastcmd.Dtx)
	}
}

// RxCommand returns the delayed receive command for k.
func (k TransceiverDelay) RxCommand() fastcmd.Command {
	switch k {
	case LastRx:
		return fastcmd.DrxRs
	case LastTx:
		return fastcmd.DrxTs
	case Internal:
		return fastcmd.DrxRef
	default:
		return fastcmd.Drx
	}
}

func pick(cond bool, a, b fastcmd.Command) fastcmd.Command {
	if cond {
		return a
	}
	return b
}

// Transmit sends frame immediately and returns its TX timestamp.
func (d *Device) Transmit(ctx context.Context, frame []byte) (uint64, error) {
	return d.transmit(ctx, frame, fastcmd.Tx, nil)
}

// ListenTransmit sends frame only if no preamble is heard first. A busy
// channel yields ErrChannelBusy.
func (d *Device) ListenTransmit(ctx context.Context, frame []byte) (uint64, error) {
	return d.transmit(ctx, frame, fastcmd.CcaTx, nil)
}

// DelayedTransmit sends frame dx device time units after the reference.
func (d *Device) DelayedTransmit(ctx context.Context, frame []byte, kind TransceiverDelay, dx uint32) (uint64, error) {
	return d.transmit(ctx, frame, kind.TxCommand(false), &dx)
}

// Receive enables the receiver immediately and waits for one frame.
func (d *Device) Receive(ctx context.Context) (Frame, error) {
	return d.receive(ctx, fastcmd.Rx, nil)
}

// DelayedReceive enables the receiver dx device time units after the
// reference and waits for one frame.
func (d *Device) DelayedReceive(ctx context.Context, kind TransceiverDelay, dx uint32) (Frame, error) {
	return d.receive(ctx, kind.RxCommand(), &dx)
}

// TransmitReceive sends frame and then waits for a response.
func (d *Device) TransmitReceive(ctx context.Context, frame []byte) (Frame, error) {
	return d.transmitReceive(ctx, frame, fastcmd.TxW4r, nil)
}

// ListenTransmitReceive is ListenTransmit followed by a receive.
func (d *Device) ListenTransmitReceive(ctx context.Context, frame []byte) (Frame, error) {
	return d.transmitReceive(ctx, frame, fastcmd.CcaTxW4r, nil)
}

// DelayedTransmitReceive is DelayedTransmit followed by a receive.
func (d *Device) DelayedTransmitReceive(ctx context.Context, frame []byte, kind TransceiverDelay, dx uint32) (Frame, error) {
	return d.transmitReceive(ctx, frame, kind.TxCommand(true), &dx)
}

func (d *Device) transmit(ctx context.Context, frame []byte, cmd fastcmd.Command, dx *uint32) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.startTransmit(ctx, frame, cmd, dx); err != nil {
		return 0, err
	}
	return d.finishTransmit(ctx, cmd)
}

func (d *Device) transmitReceive(ctx context.Context, frame []byte, cmd fastcmd.Command, dx *uint32) (Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.startTransmit(ctx, frame, cmd, dx); err != nil {
		return Frame{}, err
	}
	if _, err := d.finishTransmit(ctx, cmd); err != nil {
		return Frame{}, err
	}
	return d.finishReceive(ctx, cmd)
}

func (d *Device) receive(ctx context.Context, cmd fastcmd.Command, dx *uint32) (Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.prepare(ctx, dx); err != nil {
		return Frame{}, err
	}
	if _, err := d.issue(ctx, cmd); err != nil {
		return Frame{}, err
	}
	return d.finishReceive(ctx, cmd)
}

// prepare acknowledges stale events and loads DX_TIME for delayed commands.
func (d *Device) prepare(ctx context.Context, dx *uint32) error {
	if err := d.ClearStatus(ctx, operationBits); err != nil {
		return err
	}
	if dx != nil {
		v := reg.NewView[regs.DxTime]()
		regs.DxTimeValue.Write(v, *dx)
		if err := transport.Write(ctx, d.bus, v); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) startTransmit(ctx context.Context, frame []byte, cmd fastcmd.Command, dx *uint32) error {
	if len(frame) > MaxFrameLen {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLong, len(frame))
	}
	if len(frame) > 0 {
		if err := d.bus.WriteRaw(ctx, reg.DescriptorOf[regs.TxBuffer](), frame); err != nil {
			return err
		}
	}
	err := transport.Modify(ctx, d.bus, func(v *reg.View[regs.TxFctrl]) {
		regs.TxFctrlTxflen.Write(v, uint16(len(frame)+fcsLen))
		regs.TxFctrlTxbOffset.Write(v, 0)
	})
	if err != nil {
		return err
	}
	if err := d.prepare(ctx, dx); err != nil {
		return err
	}
	_, err = d.issue(ctx, cmd)
	return err
}

func (d *Device) finishTransmit(ctx context.Context, cmd fastcmd.Command) (uint64, error) {
	m, err := d.wait(ctx, cmd, irq.TxDone|irq.CcaFail.Bit())
	if err != nil {
		return 0, err
	}
	if m.Has(irq.CcaFail) {
		if err := d.ClearStatus(ctx, irq.CcaFail.Bit()); err != nil {
			d.logger.Warn("failed to acknowledge CCA failure", "command", cmd, "error", err)
		}
		return 0, ErrChannelBusy
	}

	v, err := transport.Read[regs.TxTime](ctx, d.bus)
	if err != nil {
		return 0, err
	}
	ts := regs.TxTimeStamp.Read(v)
	if err := d.ClearStatus(ctx, txBits); err != nil {
		return 0, err
	}
	d.logger.Debug("frame transmitted", "command", cmd, "timestamp", ts)
	return ts, nil
}

func (d *Device) finishReceive(ctx context.Context, cmd fastcmd.Command) (Frame, error) {
	want := irq.RxDone | irq.RxErrors | irq.RxTimeouts
	if !d.doubleBuffer {
		want = want.Without(irq.Rxovrr)
	}
	m, err := d.wait(ctx, cmd, want)
	if err != nil {
		return Frame{}, err
	}
	defer func() {
		if err := d.ClearStatus(ctx, irq.RxAll); err != nil {
			d.logger.Warn("failed to acknowledge receive events", "error", err)
		}
	}()

	if rerr := radioerr.ReceiverErrorFromStatus(m, d.doubleBuffer); rerr != nil {
		d.logger.Debug("receive failed", "command", cmd, "status", m.String(), "error", rerr)
		return Frame{}, rerr
	}
	f, err := d.readFrame(ctx)
	if err != nil {
		return Frame{}, err
	}
	f.Partial = !m.Has(irq.Rxfcg)

	if d.doubleBuffer {
		if err := d.toggle(ctx); err != nil {
			return f, err
		}
	}
	d.logger.Debug("frame received", "command", cmd, "len", len(f.Data), "partial", f.Partial)
	return f, nil
}

func (d *Device) readFrame(ctx context.Context) (Frame, error) {
	finfo, err := transport.Read[regs.RxFinfo](ctx, d.bus)
	if err != nil {
		return Frame{}, err
	}
	n := int(regs.RxFinfoRxflen.Read(finfo)) - fcsLen
	if n < 0 {
		n = 0
	}

	var f Frame
	if n > 0 {
		buf := reg.DescriptorOf[regs.RxBuffer0]()
		if d.rxBuffer == 1 {
			buf = reg.DescriptorOf[regs.RxBuffer1]()
		}
		f.Data = make([]byte, n)
		if err := d.bus.ReadRaw(ctx, buf, f.Data); err != nil {
			return Frame{}, err
		}
	}

	ts, err := transport.Read[regs.RxTime](ctx, d.bus)
	if err != nil {
		return Frame{}, err
	}
	f.Timestamp = regs.RxTimeStamp.Read(ts)
	return f, nil
}
