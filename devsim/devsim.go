// Package devsim is an in-memory stand-in for a DW3000 on the SPI bus. It
// implements periph's conn.Conn, decodes transaction headers, keeps a byte
// image of every register file and reacts to fast commands the way the
// device's status register would.
package devsim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3"

	"github.com/linht/uwb-manager/fastcmd"
	"github.com/linht/uwb-manager/header"
	"github.com/linht/uwb-manager/irq"
	"github.com/linht/uwb-manager/reg"
	"github.com/linht/uwb-manager/regs"
)

// DefaultDevID is DEV_ID of a DW3000 C0 part.
const DefaultDevID = 0xDECA0302

// fcsLen is the frame check sequence appended by the device.
const fcsLen = 2

// tickPerTx advances the device clock on every transaction.
const tickPerTx = 0x1000

var ErrReadBufferMismatch = errors.New("read buffer must match write length")

// Outcome is what the next receive produces.
type Outcome struct {
	Data []byte
	// BadFCS delivers the frame with RXFCE instead of RXFCG.
	BadFCS bool
	// Fail, when non-zero, reports this status bit instead of a frame.
	Fail irq.Interrupt
}

// Device is a simulated transceiver. The zero value is not usable; call New.
type Device struct {
	mu        sync.Mutex
	files     [32][]byte
	rxQueue   []Outcome
	rxPending bool
	rxBuffer  int
	reject    int
	ccaBusy   bool
	clock     uint64
	sent      [][]byte
	commands  []fastcmd.Command
	irqCh     chan struct{}
}

// New returns a powered-up device in IDLE with DEV_ID preset.
func New() *Device {
	d := &Device{irqCh: make(chan struct{}, 1)}
	id := make([]byte, 4)
	binary.LittleEndian.PutUint32(id, DefaultDevID)
	d.store(reg.DescriptorOf[regs.DevID](), id)
	d.setState(0, 0, PmscIdlePLL)
	d.raise(irq.MaskOf(irq.Spirdy, irq.Rcinit, irq.Cplock))
	return d
}

var _ conn.Conn = (*Device)(nil)

func (d *Device) String() string { return "devsim" }

// Duplex reports a full-duplex bus.
func (d *Device) Duplex() conn.Duplex { return conn.Full }

// Tx handles one chip-select-framed transfer.
func (d *Device) Tx(w, r []byte) error {
	if r != nil && len(r) != len(w) {
		return ErrReadBufferMismatch
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.clock += tickPerTx

	info, err := header.Parse(w)
	if err != nil {
		return fmt.Errorf("devsim: %w", err)
	}
	payload := w[info.HeaderLen():]
	base, sub := int(info.Base), int(info.Sub)

	switch info.Kind {
	case header.KindFastCommand:
		d.execute(info.Command)
	case header.KindMasked:
		width := info.Mode.Width()
		if len(payload) != 2*width {
			d.raise(irq.SpiOvf.Bit())
			return nil
		}
		cur := d.load(base, sub, width)
		for i := 0; i < width; i++ {
			cur[i] = cur[i]&payload[i] | payload[width+i]
		}
		d.write(base, sub, cur)
	default:
		if info.Access == header.Write {
			d.write(base, sub, payload)
			return nil
		}
		if r != nil {
			copy(r[info.HeaderLen():], d.load(base, sub, len(payload)))
		}
	}
	return nil
}

// QueueReceive schedules outcomes for subsequent receive commands. If a
// receive is already pending the first outcome is delivered immediately.
func (d *Device) QueueReceive(o ...Outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rxQueue = append(d.rxQueue, o...)
	if d.rxPending {
		d.deliver()
	}
}

// RejectNext makes the next n fast commands fail with CMD_ERR.
func (d *Device) RejectNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reject = n
}

// SetChannelBusy makes clear-channel-assessment transmissions fail.
func (d *Device) SetChannelBusy(busy bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ccaBusy = busy
}

// Raise sets status bits as if the device had reported them.
func (d *Device) Raise(m irq.Mask) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.raise(m)
}

// Status returns the current SYS_STATUS bits.
func (d *Device) Status() irq.Mask {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status()
}

// Sent returns copies of every transmitted frame, without FCS.
func (d *Device) Sent() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.sent))
	for i, f := range d.sent {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Commands returns the fast commands executed so far, including rejected ones.
func (d *Device) Commands() []fastcmd.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]fastcmd.Command(nil), d.commands...)
}

// Peek returns a copy of n bytes at base:sub.
func (d *Device) Peek(r reg.Register) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.load(int(r.Base), int(r.Sub), r.Len)
}

// Poke stores bytes at the register's address without side effects.
func (d *Device) Poke(r reg.Register, b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.store(r, b)
}

// IRQ is signalled whenever an enabled status bit becomes set.
func (d *Device) IRQ() <-chan struct{} { return d.irqCh }

func (d *Device) load(base, sub, n int) []byte {
	out := make([]byte, n)
	f := d.files[base&0x1F]
	if sub < len(f) {
		copy(out, f[sub:])
	}
	return out
}

func (d *Device) store(r reg.Register, b []byte) {
	d.put(int(r.Base), int(r.Sub), b)
}

func (d *Device) put(base, sub int, b []byte) {
	base &= 0x1F
	if need := sub + len(b); need > len(d.files[base]) {
		grown := make([]byte, need)
		copy(grown, d.files[base])
		d.files[base] = grown
	}
	copy(d.files[base][sub:], b)
}

var statusReg = reg.DescriptorOf[regs.SysStatus]()

// write applies a host write, honouring write-1-to-clear on SYS_STATUS.
func (d *Device) write(base, sub int, b []byte) {
	sb, ss := int(statusReg.Base), int(statusReg.Sub)
	if base == sb && sub < ss+statusReg.Len && sub+len(b) > ss {
		cur := d.load(sb, ss, statusReg.Len)
		for i, v := range b {
			off := sub + i - ss
			if off >= 0 && off < len(cur) {
				cur[off] &^= v
			}
		}
		if sub < ss {
			d.put(base, sub, b[:ss-sub])
		}
		d.put(sb, ss, cur)
		if end := sub + len(b); end > ss+statusReg.Len {
			d.put(base, ss+statusReg.Len, b[ss+statusReg.Len-sub:])
		}
		return
	}
	d.put(base, sub, b)

	if base == int(softRstReg.Base) && sub == int(softRstReg.Sub) && len(b) >= softRstReg.Len && b[0] == 0 && b[1]&0x01 == 0 {
		d.softReset()
	}
}

var softRstReg = reg.DescriptorOf[regs.SoftRst]()

// softReset models every block held in reset: events are lost, the receiver
// is idle and the double buffer pointer is back on buffer 0.
func (d *Device) softReset() {
	d.store(statusReg, make([]byte, statusReg.Len))
	d.rxPending = false
	d.rxBuffer = 0
	d.setState(0, 0, PmscIdlePLL)
	d.raise(irq.MaskOf(irq.Spirdy, irq.Rcinit, irq.Cplock))
}

func (d *Device) status() irq.Mask {
	return irq.MaskFromBytes(d.load(int(statusReg.Base), int(statusReg.Sub), statusReg.Len))
}

func (d *Device) raise(m irq.Mask) {
	next := d.status() | m
	d.store(statusReg, next.Bytes(statusReg.Len))

	enableReg := reg.DescriptorOf[regs.SysEnable]()
	enabled := irq.MaskFromBytes(d.load(int(enableReg.Base), int(enableReg.Sub), enableReg.Len))
	if m&enabled != 0 {
		select {
		case d.irqCh <- struct{}{}:
		default:
		}
	}
}
