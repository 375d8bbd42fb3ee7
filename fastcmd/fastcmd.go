// Package fastcmd enumerates the single-byte fast commands understood by the
// transceiver.
package fastcmd

import (
	"fmt"
	"strings"
)

// Command is a 5-bit fast command opcode.
type Command uint8

const (
	TxRxOff    Command = 0x00
	Tx         Command = 0x01
	Rx         Command = 0x02
	Dtx        Command = 0x03
	Drx        Command = 0x04
	DtxTs      Command = 0x05
	DrxTs      Command = 0x06
	DtxRs      Command = 0x07
	DrxRs      Command = 0x08
	DtxRef     Command = 0x09
	DrxRef     Command = 0x0A
	CcaTx      Command = 0x0B
	TxW4r      Command = 0x0C
	DtxW4r     Command = 0x0D
	DtxTsW4r   Command = 0x0E
	DtxRsW4r   Command = 0x0F
	DtxRefW4r  Command = 0x10
	CcaTxW4r   Command = 0x11
	ClrIrqs    Command = 0x12
	DbToggle   Command = 0x13
	numCommand         = 0x14
)

type info struct {
	name string
	desc string
}

var commands = [numCommand]info{
	TxRxOff:   {"CMD_TXRXOFF", "Put the device into IDLE_PLL state"},
	Tx:        {"CMD_TX", "Immediate start of transmission"},
	Rx:        {"CMD_RX", "Enable RX immediately"},
	Dtx:       {"CMD_DTX", "Delayed TX w.r.t. DX_TIME"},
	Drx:       {"CMD_DRX", "Delayed RX w.r.t. DX_TIME"},
	DtxTs:     {"CMD_DTX_TS", "Delayed TX w.r.t. TX timestamp + DX_TIME"},
	DrxTs:     {"CMD_DRX_TS", "Delayed RX w.r.t. TX timestamp + DX_TIME"},
	DtxRs:     {"CMD_DTX_RS", "Delayed TX w.r.t. RX timestamp + DX_TIME"},
	DrxRs:     {"CMD_DRX_RS", "Delayed RX w.r.t. RX timestamp + DX_TIME"},
	DtxRef:    {"CMD_DTX_REF", "Delayed TX w.r.t. DREF_TIME + DX_TIME"},
	DrxRef:    {"CMD_DRX_REF", "Delayed RX w.r.t. DREF_TIME + DX_TIME"},
	CcaTx:     {"CMD_CCA_TX", "TX if no preamble detected"},
	TxW4r:     {"CMD_TX_W4R", "Start TX immediately, then when TX is done, enable the receiver"},
	DtxW4r:    {"CMD_DTX_W4R", "Delayed TX w.r.t. DX_TIME, then enable receiver"},
	DtxTsW4r:  {"CMD_DTX_TS_W4R", "Delayed TX w.r.t. TX timestamp + DX_TIME, then enable receiver"},
	DtxRsW4r:  {"CMD_DTX_RS_W4R", "Delayed TX w.r.t. RX timestamp + DX_TIME, then enable receiver"},
	DtxRefW4r: {"CMD_DTX_REF_W4R", "Delayed TX w.r.t. DREF_TIME + DX_TIME, then enable receiver"},
	CcaTxW4r:  {"CMD_CCA_TX_W4R", "TX packet if no preamble detected, then enable receiver"},
	ClrIrqs:   {"CMD_CLR_IRQS", "Clear all interrupt events"},
	DbToggle:  {"CMD_DB_TOGGLE", "Toggle double buffer pointer / notify the device that the host has finished processing the received buffer/data"},
}

// Valid reports whether c is a defined opcode.
func (c Command) Valid() bool { return c < numCommand }

// Opcode returns the 5-bit value carried in the fast command header.
func (c Command) Opcode() uint8 { return uint8(c) & 0x1F }

// String returns the datasheet mnemonic, e.g. CMD_TX.
func (c Command) String() string {
	if !c.Valid() {
		return fmt.Sprintf("CMD_UNKNOWN(0x%02X)", uint8(c))
	}
	return commands[c].name
}

// Description returns a one-line summary of the command's effect.
func (c Command) Description() string {
	if !c.Valid() {
		return ""
	}
	return commands[c].desc
}

// Transmits reports whether the command starts a transmission.
func (c Command) Transmits() bool {
	switch c {
	case Tx, Dtx, DtxTs, DtxRs, DtxRef, CcaTx,
		TxW4r, DtxW4r, DtxTsW4r, DtxRsW4r, DtxRefW4r, CcaTxW4r:
		return true
	}
	return false
}

// Receives reports whether the command ends with the receiver enabled.
func (c Command) Receives() bool {
	switch c {
	case Rx, Drx, DrxTs, DrxRs, DrxRef,
		TxW4r, DtxW4r, DtxTsW4r, DtxRsW4r, DtxRefW4r, CcaTxW4r:
		return true
	}
	return false
}

// All returns every defined command in opcode order.
func All() []Command {
	out := make([]Command, 0, numCommand)
	for c := Command(0); c < numCommand; c++ {
		out = append(out, c)
	}
	return out
}

// Parse accepts the mnemonic with or without the CMD_ prefix, in any case.
func Parse(name string) (Command, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(n, "CMD_") {
		n = "CMD_" + n
	}
	for c := Command(0); c < numCommand; c++ {
		if commands[c].name == n {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown fast command %q", name)
}
