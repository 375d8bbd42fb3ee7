package transport_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"

	"github.com/linht/uwb-manager/devsim"
	"github.com/linht/uwb-manager/fastcmd"
	"github.com/linht/uwb-manager/header"
	"github.com/linht/uwb-manager/reg"
	"github.com/linht/uwb-manager/regs"
	"github.com/linht/uwb-manager/transport"
)

// recorder captures the bytes clocked out on every transfer.
type recorder struct {
	*devsim.Device
	mu     sync.Mutex
	writes [][]byte
	fail   error
}

func (r *recorder) Tx(w, rd []byte) error {
	r.mu.Lock()
	r.writes = append(r.writes, append([]byte(nil), w...))
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return fail
	}
	return r.Device.Tx(w, rd)
}

func (r *recorder) last() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes[len(r.writes)-1]
}

var _ conn.Conn = (*recorder)(nil)

type tracer struct{ seen []transport.Transaction }

func (t *tracer) Observe(tx transport.Transaction) {
	tx.Payload = append([]byte(nil), tx.Payload...)
	t.seen = append(t.seen, tx)
}

func newBus(opts ...transport.Option) (*transport.Bus, *recorder) {
	rec := &recorder{Device: devsim.New()}
	return transport.NewBus(rec, opts...), rec
}

func TestFastCommandSendsOneByte(t *testing.T) {
	bus, rec := newBus()
	require.NoError(t, bus.FastCommand(context.Background(), fastcmd.ClrIrqs))
	assert.Equal(t, []byte{0xA5}, rec.last())

	require.NoError(t, bus.FastCommand(context.Background(), fastcmd.Tx))
	assert.Equal(t, []byte{0x83}, rec.last())
}

func TestShortHeaderForSubAddressZero(t *testing.T) {
	bus, rec := newBus()
	ctx := context.Background()

	v, err := transport.Read[regs.DevID](ctx, bus)
	require.NoError(t, err)
	assert.Equal(t, uint16(regs.DecaRidtag), regs.DevIDRidtag.Read(v))
	assert.Equal(t, []byte{0x00, 0, 0, 0, 0}, rec.last())

	require.NoError(t, bus.WriteRaw(ctx, reg.DescriptorOf[regs.TxBuffer](), []byte{0xAB}))
	assert.Equal(t, []byte{0xA8, 0xAB}, rec.last())
}

func TestFullHeaderForSubAddress(t *testing.T) {
	bus, rec := newBus()
	ctx := context.Background()

	v := reg.NewView[regs.Panadr]()
	regs.PanadrPanID.Write(v, 0xDECA)
	regs.PanadrShortAddr.Write(v, 0x1234)
	require.NoError(t, transport.Write(ctx, bus, v))

	h := header.FullAddressed(0x00, 0x0C, header.Write)
	assert.Equal(t, append(h[:], 0x34, 0x12, 0xCA, 0xDE), rec.last())

	got, err := transport.Read[regs.Panadr](ctx, bus)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xDECA), regs.PanadrPanID.Read(got))
	assert.Equal(t, uint16(0x1234), regs.PanadrShortAddr.Read(got))
}

func TestPrefixRead(t *testing.T) {
	bus, rec := newBus()
	rec.QueueReceive(devsim.Outcome{Data: []byte{9, 8, 7, 6}})
	ctx := context.Background()
	require.NoError(t, bus.FastCommand(ctx, fastcmd.Rx))

	buf := make([]byte, 4)
	require.NoError(t, bus.ReadRaw(ctx, reg.DescriptorOf[regs.RxBuffer0](), buf))
	assert.Equal(t, []byte{9, 8, 7, 6}, buf)
	assert.Len(t, rec.last(), 5)
}

func TestMaskedWritePayload(t *testing.T) {
	bus, rec := newBus()
	ctx := context.Background()
	cfg := reg.DescriptorOf[regs.SysCfg]()
	rec.Poke(cfg, []byte{0xFF, 0xFF, 0xFF, 0xFF})

	require.NoError(t, bus.MaskedWrite(ctx, cfg, header.EightBit, 0xF0, 0x05))
	h := header.MaskedWrite(0x00, 0x10, header.EightBit)
	assert.Equal(t, append(h[:], 0xF0, 0x05), rec.last())
	assert.Equal(t, []byte{0xF5, 0xFF, 0xFF, 0xFF}, rec.Peek(cfg))

	require.NoError(t, bus.MaskedWrite(ctx, cfg, header.ThirtyTwoBit, 0x0000FFFF, 0x12340000))
	h = header.MaskedWrite(0x00, 0x10, header.ThirtyTwoBit)
	assert.Equal(t, append(h[:], 0xFF, 0xFF, 0, 0, 0, 0, 0x34, 0x12), rec.last())
	assert.Equal(t, []byte{0xF5, 0xFF, 0x34, 0x12}, rec.Peek(cfg))

	require.NoError(t, bus.MaskedWrite(ctx, cfg, header.SixteenBit, 0xFF00, 0x00AA))
	assert.Equal(t, []byte{0xC0, 0x42, 0x00, 0xFF, 0xAA, 0x00}, rec.last())
	assert.Equal(t, []byte{0xAA, 0xFF, 0x34, 0x12}, rec.Peek(cfg))

	require.NoError(t, bus.MaskedWrite(ctx, cfg, header.EightBit, 0xFE, 0x01))
	assert.Equal(t, []byte{0xC0, 0x41, 0xFE, 0x01}, rec.last())
}

func TestMaskedWriteRejected(t *testing.T) {
	bus, _ := newBus()
	ctx := context.Background()

	err := bus.MaskedWrite(ctx, reg.DescriptorOf[regs.SysCfg](), header.Unmasked, 0, 0)
	assert.Error(t, err)

	err = bus.MaskedWrite(ctx, reg.DescriptorOf[regs.DevID](), header.EightBit, 0, 0)
	assert.ErrorIs(t, err, reg.ErrNotWritable)

	err = bus.MaskedWrite(ctx, reg.DescriptorOf[regs.RdbStatus](), header.SixteenBit, 0, 0)
	assert.ErrorIs(t, err, transport.ErrPayloadLength)
}

func TestAccessAndLengthChecks(t *testing.T) {
	bus, rec := newBus()
	ctx := context.Background()

	err := bus.WriteRaw(ctx, reg.DescriptorOf[regs.DevID](), []byte{1})
	assert.ErrorIs(t, err, reg.ErrNotWritable)

	err = bus.ReadRaw(ctx, reg.DescriptorOf[regs.TxBuffer](), make([]byte, 1))
	assert.ErrorIs(t, err, reg.ErrNotReadable)

	err = bus.ReadRaw(ctx, reg.DescriptorOf[regs.DevID](), make([]byte, 5))
	assert.ErrorIs(t, err, transport.ErrPayloadLength)

	err = bus.WriteRaw(ctx, reg.DescriptorOf[regs.Eui](), nil)
	assert.ErrorIs(t, err, transport.ErrPayloadLength)

	assert.Empty(t, rec.writes)
}

func TestContextAndClose(t *testing.T) {
	bus, rec := newBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := bus.FastCommand(ctx, fastcmd.Tx)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, bus.Close())
	err = bus.FastCommand(context.Background(), fastcmd.Tx)
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.Empty(t, rec.writes)
}

func TestConnErrorPropagates(t *testing.T) {
	bus, rec := newBus()
	boom := errors.New("spi: device gone")
	rec.fail = boom

	_, err := transport.Read[regs.SysStatus](context.Background(), bus)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "SYS_STATUS")
}

func TestTracerObservesTransactions(t *testing.T) {
	tr := &tracer{}
	bus, _ := newBus(transport.WithTracer(tr))
	ctx := context.Background()

	require.NoError(t, bus.FastCommand(ctx, fastcmd.ClrIrqs))
	_, err := transport.Read[regs.DevID](ctx, bus)
	require.NoError(t, err)

	require.Len(t, tr.seen, 2)
	assert.Equal(t, header.KindFastCommand, tr.seen[0].Header.Kind)
	assert.Equal(t, "CMD_CLR_IRQS", tr.seen[0].Register)
	assert.Equal(t, []byte{0xA5}, tr.seen[0].Raw)

	assert.Equal(t, header.KindShort, tr.seen[1].Header.Kind)
	assert.Equal(t, "DEV_ID", tr.seen[1].Register)
	assert.Equal(t, []byte{0x02, 0x03, 0xCA, 0xDE}, tr.seen[1].Payload)
	assert.NoError(t, tr.seen[1].Err)
}

func TestModify(t *testing.T) {
	bus, _ := newBus()
	ctx := context.Background()

	err := transport.Modify(ctx, bus, func(v *reg.View[regs.SysCfg]) {
		regs.SysCfgFfen.Write(v, 1)
		regs.SysCfgPdoaMode.Write(v, 3)
	})
	require.NoError(t, err)

	v, err := transport.Read[regs.SysCfg](ctx, bus)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), regs.SysCfgFfen.Read(v))
	assert.Equal(t, uint8(3), regs.SysCfgPdoaMode.Read(v))
	assert.Equal(t, uint8(0), regs.SysCfgDisDrxb.Read(v))
}

func TestModifyRaw(t *testing.T) {
	bus, rec := newBus()
	ctx := context.Background()
	panadr := reg.DescriptorOf[regs.Panadr]()
	rec.Poke(panadr, []byte{0x11, 0x22, 0x33, 0x44})

	err := bus.ModifyRaw(ctx, panadr, func(buf []byte) error {
		buf[0] = 0xAA
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0x22, 0x33, 0x44}, rec.Peek(panadr))

	stop := errors.New("stop")
	n := len(rec.writes)
	err = bus.ModifyRaw(ctx, panadr, func([]byte) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Len(t, rec.writes, n+1)

	err = bus.ModifyRaw(ctx, reg.DescriptorOf[regs.TxBuffer](), func([]byte) error { return nil })
	assert.ErrorIs(t, err, reg.ErrNotReadable)
}
