package devsim

import (
	"encoding/binary"

	"github.com/linht/uwb-manager/fastcmd"
	"github.com/linht/uwb-manager/irq"
	"github.com/linht/uwb-manager/reg"
	"github.com/linht/uwb-manager/regs"
)

// SYS_STATE values reported by the simulator.
const (
	PmscIdlePLL = 0x03
	PmscTx      = 0x0D
	PmscRx      = 0x0E
	rxStateWait = 0x01
)

var txFrameSent = irq.MaskOf(irq.Txfrb, irq.Txprs, irq.Txphs, irq.Txfrs)

var rxFrameReady = irq.MaskOf(irq.Rxprd, irq.Rxsfdd, irq.Rxphd, irq.Rxfr, irq.Ciadone)

// execute runs a fast command. Caller holds d.mu.
func (d *Device) execute(cmd fastcmd.Command) {
	d.commands = append(d.commands, cmd)
	if d.reject > 0 {
		d.reject--
		d.raise(irq.CmdErr.Bit())
		return
	}

	switch {
	case cmd == fastcmd.TxRxOff:
		d.rxPending = false
		d.setState(0, 0, PmscIdlePLL)
	case cmd == fastcmd.ClrIrqs:
		d.store(statusReg, make([]byte, statusReg.Len))
	case cmd == fastcmd.DbToggle:
		d.rxBuffer ^= 1
	case cmd.Transmits():
		if (cmd == fastcmd.CcaTx || cmd == fastcmd.CcaTxW4r) && d.ccaBusy {
			d.raise(irq.CcaFail.Bit())
			return
		}
		d.transmit()
		if cmd.Receives() {
			d.startReceive()
		}
	case cmd.Receives():
		d.startReceive()
	}
}

func (d *Device) transmit() {
	fctrl := reg.DescriptorOf[regs.TxFctrl]()
	v, _ := reg.ViewOf[regs.TxFctrl](d.load(int(fctrl.Base), int(fctrl.Sub), fctrl.Len))
	length := int(regs.TxFctrlTxflen.Read(v))
	offset := int(regs.TxFctrlTxbOffset.Read(v))

	n := length - fcsLen
	if n < 0 {
		n = 0
	}
	buf := reg.DescriptorOf[regs.TxBuffer]()
	d.sent = append(d.sent, d.load(int(buf.Base), offset, n))

	d.stamp(reg.DescriptorOf[regs.TxTime]())
	d.setState(0, 0, PmscIdlePLL)
	d.raise(txFrameSent)
}

func (d *Device) startReceive() {
	d.rxPending = true
	d.setState(0, rxStateWait, PmscRx)
	if len(d.rxQueue) > 0 {
		d.deliver()
	}
}

// deliver completes the pending receive with the next queued outcome.
func (d *Device) deliver() {
	o := d.rxQueue[0]
	d.rxQueue = d.rxQueue[1:]
	d.rxPending = false
	d.setState(0, 0, PmscIdlePLL)

	if o.Fail != 0 {
		d.raise(irq.Rxprd.Bit() | o.Fail.Bit())
		return
	}

	target := reg.DescriptorOf[regs.RxBuffer0]()
	if d.rxBuffer == 1 {
		target = reg.DescriptorOf[regs.RxBuffer1]()
	}
	d.store(target, o.Data)

	finfo := make([]byte, 4)
	binary.LittleEndian.PutUint32(finfo, uint32(len(o.Data)+fcsLen)&0x3FF)
	d.store(reg.DescriptorOf[regs.RxFinfo](), finfo)
	d.stamp(reg.DescriptorOf[regs.RxTime]())

	status := rxFrameReady | irq.Rxfcg.Bit()
	if o.BadFCS {
		status = rxFrameReady | irq.Rxfce.Bit()
	}
	d.raise(status)
}

// stamp writes the 40-bit device clock into the first five bytes of r.
func (d *Device) stamp(r reg.Register) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, d.clock&0xFF_FFFF_FFFF)
	d.store(r, b[:5])
}

func (d *Device) setState(tx, rx, pmsc uint8) {
	d.store(reg.DescriptorOf[regs.SysState](), []byte{tx, rx, pmsc, 0})
}
