// Package driver sequences transceiver operations on top of the bus: it
// stages frames, issues fast commands, waits for completion through the
// status register and classifies failures.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/linht/uwb-manager/fastcmd"
	"github.com/linht/uwb-manager/irq"
	"github.com/linht/uwb-manager/radioerr"
	"github.com/linht/uwb-manager/reg"
	"github.com/linht/uwb-manager/regs"
	"github.com/linht/uwb-manager/transport"
)

// DefaultPollInterval is used when no IRQ line is available.
const DefaultPollInterval = time.Millisecond

// MaxFrameLen is the largest payload that fits TXFLEN with the FCS.
const MaxFrameLen = 1023 - fcsLen

const fcsLen = 2

var (
	ErrUnknownDevice = errors.New("unexpected device identifier")
	ErrFrameTooLong  = errors.New("frame exceeds maximum length")
	ErrChannelBusy   = errors.New("preamble detected, transmission cancelled")
)

var (
	txBits        = irq.MaskOf(irq.Txfrb, irq.Txprs, irq.Txphs, irq.Txfrs)
	commandFaults = irq.SpiErrors.With(irq.CmdErr)
	operationBits = txBits | irq.RxAll | commandFaults | irq.CcaFail.Bit()

	// interruptSources are enabled in SYS_ENABLE when an IRQ line is wired.
	interruptSources = irq.TxDone | irq.RxDone | irq.RxErrors | irq.RxTimeouts |
		commandFaults | irq.CcaFail.Bit()
)

// Identity is the decoded DEV_ID register.
type Identity struct {
	Ridtag uint16 `json:"ridtag"`
	Model  uint8  `json:"model"`
	Ver    uint8  `json:"ver"`
	Rev    uint8  `json:"rev"`
}

func (i Identity) String() string {
	return fmt.Sprintf("RIDTAG 0x%04X model 0x%02X ver %d rev %d", i.Ridtag, i.Model, i.Ver, i.Rev)
}

// Frame is a received data frame without its FCS.
type Frame struct {
	Data []byte `json:"data"`
	// Partial is set when the frame failed the FCS check.
	Partial bool `json:"partial"`
	// Timestamp is the 40-bit RX_STAMP in device time units.
	Timestamp uint64 `json:"timestamp"`
}

// State is the decoded SYS_STATE register.
type State struct {
	TX   uint8 `json:"tx"`
	RX   uint8 `json:"rx"`
	PMSC uint8 `json:"pmsc"`
}

// Idle reports whether neither transmitter nor receiver is active.
func (s State) Idle() bool { return s.TX == 0 && s.RX == 0 }

// Device drives one transceiver. Operations are serialised; Status and State
// may be called concurrently with a running operation.
type Device struct {
	bus          *transport.Bus
	logger       *slog.Logger
	irq          <-chan struct{}
	poll         time.Duration
	doubleBuffer bool

	mu       sync.Mutex
	rxBuffer int
}

// Option configures a Device.
type Option func(*Device)

// WithIRQ wakes completion waits on every value received from ch.
func WithIRQ(ch <-chan struct{}) Option {
	return func(d *Device) { d.irq = ch }
}

// WithPollInterval sets how often SYS_STATUS is read while waiting.
func WithPollInterval(p time.Duration) Option {
	return func(d *Device) {
		if p > 0 {
			d.poll = p
		}
	}
}

// WithDoubleBuffer enables the receiver's double buffer.
func WithDoubleBuffer(enabled bool) Option {
	return func(d *Device) { d.doubleBuffer = enabled }
}

// WithRxBuffer starts reading from receive buffer i (0 or 1). Callers that
// reconnect between operations use it to stay in step with the device's
// double buffer pointer.
func WithRxBuffer(i int) Option {
	return func(d *Device) { d.rxBuffer = i & 1 }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Device) { d.logger = l }
}

// New returns a driver for the device behind bus.
func New(bus *transport.Bus, opts ...Option) *Device {
	d := &Device{
		bus:    bus,
		logger: slog.Default(),
		poll:   DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Bus returns the underlying bus for raw register access.
func (d *Device) Bus() *transport.Bus { return d.bus }

// RxBuffer returns the receive buffer the next frame will be read from.
func (d *Device) RxBuffer() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rxBuffer
}

// DoubleBuffered reports whether the receiver double buffer is in use.
func (d *Device) DoubleBuffered() bool { return d.doubleBuffer }

// Init identifies the device, applies the buffer and interrupt configuration
// and clears all pending events.
func (d *Device) Init(ctx context.Context) (Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, err := d.identify(ctx)
	if err != nil {
		return Identity{}, err
	}

	err = transport.Modify(ctx, d.bus, func(v *reg.View[regs.SysCfg]) {
		var dis uint8 = 1
		if d.doubleBuffer {
			dis = 0
		}
		regs.SysCfgDisDrxb.Write(v, dis)
	})
	if err != nil {
		return Identity{}, fmt.Errorf("failed to configure receive buffer: %w", err)
	}

	enable := reg.NewView[regs.SysEnable]()
	if d.irq != nil {
		regs.SysEnableMask.Write(enable, uint64(interruptSources))
	}
	if err := transport.Write(ctx, d.bus, enable); err != nil {
		return Identity{}, fmt.Errorf("failed to configure interrupts: %w", err)
	}

	if _, err := d.issue(ctx, fastcmd.ClrIrqs); err != nil {
		return Identity{}, err
	}

	d.logger.Info("UWB transceiver initialized",
		"device", d.bus.String(),
		"identity", id.String(),
		"double_buffer", d.doubleBuffer,
		"irq", d.irq != nil)
	return id, nil
}

// Identify reads DEV_ID without touching configuration.
func (d *Device) Identify(ctx context.Context) (Identity, error) {
	return d.identify(ctx)
}

func (d *Device) identify(ctx context.Context) (Identity, error) {
	v, err := transport.Read[regs.DevID](ctx, d.bus)
	if err != nil {
		return Identity{}, err
	}
	id := Identity{
		Ridtag: regs.DevIDRidtag.Read(v),
		Model:  regs.DevIDModel.Read(v),
		Ver:    regs.DevIDVer.Read(v),
		Rev:    regs.DevIDRev.Read(v),
	}
	if id.Ridtag != regs.DecaRidtag {
		return id, fmt.Errorf("%w: RIDTAG 0x%04X", ErrUnknownDevice, id.Ridtag)
	}
	return id, nil
}

// Status reads SYS_STATUS.
func (d *Device) Status(ctx context.Context) (irq.Mask, error) {
	v, err := transport.Read[regs.SysStatus](ctx, d.bus)
	if err != nil {
		return 0, err
	}
	return irq.Mask(regs.SysStatusMask.Read(v)), nil
}

// ClearStatus acknowledges the given status bits.
func (d *Device) ClearStatus(ctx context.Context, m irq.Mask) error {
	if m == 0 {
		return nil
	}
	v, err := reg.ViewOf[regs.SysStatus](m.Bytes(reg.DescriptorOf[regs.SysStatus]().Len))
	if err != nil {
		return err
	}
	return transport.Write(ctx, d.bus, v)
}

// State reads SYS_STATE.
func (d *Device) State(ctx context.Context) (State, error) {
	v, err := transport.Read[regs.SysState](ctx, d.bus)
	if err != nil {
		return State{}, err
	}
	return State{
		TX:   regs.SysStateTx.Read(v),
		RX:   regs.SysStateRx.Read(v),
		PMSC: regs.SysStatePmsc.Read(v),
	}, nil
}

// SystemTime reads the high 32 bits of the device clock.
func (d *Device) SystemTime(ctx context.Context) (uint32, error) {
	v, err := transport.Read[regs.SysTime](ctx, d.bus)
	if err != nil {
		return 0, err
	}
	return regs.SysTimeValue.Read(v), nil
}

// SetReferenceTime loads DREF_TIME, the base of Internal delays.
func (d *Device) SetReferenceTime(ctx context.Context, t uint32) error {
	v := reg.NewView[regs.DrefTime]()
	regs.DrefTimeValue.Write(v, t)
	return transport.Write(ctx, d.bus, v)
}

// ClearInterrupts clears every status event.
func (d *Device) ClearInterrupts(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.issue(ctx, fastcmd.ClrIrqs)
	return err
}

// ToggleBuffer hands the current receive buffer back to the device.
func (d *Device) ToggleBuffer(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.toggle(ctx)
}

// ForceIdle aborts any transmission or reception.
func (d *Device) ForceIdle(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ClearStatus(ctx, commandFaults); err != nil {
		return err
	}
	_, err := d.issue(ctx, fastcmd.TxRxOff)
	return err
}

// Command issues an arbitrary fast command and checks for a rejection. It is
// meant for diagnostics; the operation methods should be preferred.
func (d *Device) Command(ctx context.Context, cmd fastcmd.Command) (irq.Mask, error) {
	if !cmd.Valid() {
		return 0, fmt.Errorf("invalid fast command 0x%02X", uint8(cmd))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ClearStatus(ctx, commandFaults); err != nil {
		return 0, err
	}
	return d.issue(ctx, cmd)
}

func (d *Device) toggle(ctx context.Context) error {
	if _, err := d.issue(ctx, fastcmd.DbToggle); err != nil {
		return err
	}
	d.rxBuffer ^= 1
	return nil
}

// issue sends cmd and reports a *radioerr.FastCommandError when the device
// flags a bus fault or a rejected command.
func (d *Device) issue(ctx context.Context, cmd fastcmd.Command) (irq.Mask, error) {
	if err := d.bus.FastCommand(ctx, cmd); err != nil {
		return 0, err
	}
	m, err := d.Status(ctx)
	if err != nil {
		return 0, err
	}
	if cerr := radioerr.CommandErrorFromStatus(cmd, m); cerr != nil {
		if err := d.ClearStatus(ctx, m&commandFaults); err != nil {
			d.logger.Warn("failed to acknowledge command fault", "command", cmd, "error", err)
		}
		return m, cerr
	}
	return m, nil
}

// wait polls SYS_STATUS until any bit of want is set. Bus faults reported
// while waiting are attributed to cmd.
func (d *Device) wait(ctx context.Context, cmd fastcmd.Command, want irq.Mask) (irq.Mask, error) {
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		m, err := d.Status(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.abort(cmd)
			}
			return 0, err
		}
		if serr := radioerr.SpiErrorFromStatus(m); serr != nil {
			return m, &radioerr.FastCommandError{Command: cmd, Err: serr}
		}
		if m.Any(want) {
			return m, nil
		}

		select {
		case <-ctx.Done():
			d.abort(cmd)
			return m, ctx.Err()
		case <-d.irq:
		case <-ticker.C:
		}
	}
}

// abort idles the radio after an abandoned wait.
func (d *Device) abort(cmd fastcmd.Command) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.bus.FastCommand(ctx, fastcmd.TxRxOff); err != nil {
		d.logger.Warn("failed to idle transceiver", "after", cmd, "error", err)
	}
}
