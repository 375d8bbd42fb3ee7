package regs

import "github.com/linht/uwb-manager/reg"

// Register tags.
type (
	DevID     struct{}
	Eui       struct{}
	Panadr    struct{}
	SysCfg    struct{}
	SysTime   struct{}
	TxFctrl   struct{}
	DxTime    struct{}
	DrefTime  struct{}
	RxFwto    struct{}
	SysEnable struct{}
	SysStatus struct{}
	RxFinfo   struct{}
	RxTime    struct{}
	TxTime    struct{}
	TxAntd    struct{}
	ChanCtrl  struct{}
	RdbStatus struct{}
	SysState  struct{}
	FcmdStat  struct{}
	SoftRst   struct{}
	RxBuffer0 struct{}
	RxBuffer1 struct{}
	TxBuffer  struct{}
	AesKeyRAM struct{}
	FintStat  struct{}
)

func (DevID) Register() reg.Register     { return def("DEV_ID", 0x00, 0x00, 4, reg.ReadOnly) }
func (Eui) Register() reg.Register       { return def("EUI", 0x00, 0x04, 8, reg.ReadWrite) }
func (Panadr) Register() reg.Register    { return def("PANADR", 0x00, 0x0C, 4, reg.ReadWrite) }
func (SysCfg) Register() reg.Register    { return def("SYS_CFG", 0x00, 0x10, 4, reg.ReadWrite) }
func (SysTime) Register() reg.Register   { return def("SYS_TIME", 0x00, 0x1C, 4, reg.ReadOnly) }
func (TxFctrl) Register() reg.Register   { return def("TX_FCTRL", 0x00, 0x24, 6, reg.ReadWrite) }
func (DxTime) Register() reg.Register    { return def("DX_TIME", 0x00, 0x2C, 4, reg.ReadWrite) }
func (DrefTime) Register() reg.Register  { return def("DREF_TIME", 0x00, 0x30, 4, reg.ReadWrite) }
func (RxFwto) Register() reg.Register    { return def("RX_FWTO", 0x00, 0x34, 3, reg.ReadWrite) }
func (SysEnable) Register() reg.Register { return def("SYS_ENABLE", 0x00, 0x3C, 6, reg.ReadWrite) }
func (SysStatus) Register() reg.Register { return def("SYS_STATUS", 0x00, 0x44, 6, reg.ReadWrite) }
func (RxFinfo) Register() reg.Register   { return def("RX_FINFO", 0x00, 0x4C, 4, reg.ReadOnly) }
func (RxTime) Register() reg.Register    { return def("RX_TIME", 0x00, 0x64, 16, reg.ReadOnly) }
func (TxTime) Register() reg.Register    { return def("TX_TIME", 0x00, 0x74, 5, reg.ReadOnly) }
func (TxAntd) Register() reg.Register    { return def("TX_ANTD", 0x01, 0x04, 2, reg.ReadWrite) }
func (ChanCtrl) Register() reg.Register  { return def("CHAN_CTRL", 0x01, 0x14, 2, reg.ReadWrite) }
func (RdbStatus) Register() reg.Register { return def("RDB_STATUS", 0x01, 0x24, 1, reg.ReadWrite) }
func (SysState) Register() reg.Register  { return def("SYS_STATE", 0x0F, 0x30, 4, reg.ReadOnly) }
func (FcmdStat) Register() reg.Register  { return def("FCMD_STAT", 0x0F, 0x3C, 1, reg.ReadOnly) }
func (SoftRst) Register() reg.Register   { return def("SOFT_RST", 0x11, 0x00, 2, reg.ReadWrite) }
func (RxBuffer0) Register() reg.Register { return def("RX_BUFFER_0", 0x12, 0x00, 1024, reg.ReadOnly) }
func (RxBuffer1) Register() reg.Register { return def("RX_BUFFER_1", 0x13, 0x00, 1024, reg.ReadOnly) }
func (TxBuffer) Register() reg.Register  { return def("TX_BUFFER", 0x14, 0x00, 1024, reg.WriteOnly) }
func (AesKeyRAM) Register() reg.Register { return def("AES_KEY_RAM", 0x17, 0x00, 128, reg.ReadWrite) }
func (FintStat) Register() reg.Register  { return def("FINT_STAT", 0x1F, 0x00, 1, reg.ReadOnly) }

// RIDTAG value of every DW3000-family part.
const DecaRidtag = 0xDECA

var (
	DevIDRev    = reg.MustRO[DevID, uint8](0, 4)
	DevIDVer    = reg.MustRO[DevID, uint8](4, 4)
	DevIDModel  = reg.MustRO[DevID, uint8](8, 8)
	DevIDRidtag = reg.MustRO[DevID, uint16](16, 16)
)

var EuiValue = reg.MustRW[Eui, uint64](0, 64)

var (
	PanadrShortAddr = reg.MustRW[Panadr, uint16](0, 16)
	PanadrPanID     = reg.MustRW[Panadr, uint16](16, 16)
)

var (
	SysCfgFfen     = reg.MustRW[SysCfg, uint8](0, 1)
	SysCfgDisFcsTx = reg.MustRW[SysCfg, uint8](1, 1)
	SysCfgDisFce   = reg.MustRW[SysCfg, uint8](2, 1)
	SysCfgDisDrxb  = reg.MustRW[SysCfg, uint8](3, 1)
	SysCfgPhrMode  = reg.MustRW[SysCfg, uint8](4, 1)
	SysCfgSpiCrcen = reg.MustRW[SysCfg, uint8](6, 1)
	SysCfgRxwtoe   = reg.MustRW[SysCfg, uint8](9, 1)
	SysCfgRxautr   = reg.MustRW[SysCfg, uint8](10, 1)
	SysCfgAutoAck  = reg.MustRW[SysCfg, uint8](11, 1)
	SysCfgCpSpc    = reg.MustRW[SysCfg, uint8](12, 2)
	SysCfgPdoaMode = reg.MustRW[SysCfg, uint8](16, 2)
)

var SysTimeValue = reg.MustRO[SysTime, uint32](0, 32)

var (
	TxFctrlTxflen    = reg.MustRW[TxFctrl, uint16](0, 10)
	TxFctrlTxbr      = reg.MustRW[TxFctrl, uint8](10, 1)
	TxFctrlTr        = reg.MustRW[TxFctrl, uint8](11, 1)
	TxFctrlTxpsr     = reg.MustRW[TxFctrl, uint8](12, 4)
	TxFctrlTxbOffset = reg.MustRW[TxFctrl, uint16](16, 10)
	TxFctrlFinePlen  = reg.MustRW[TxFctrl, uint8](40, 8)
)

var (
	DxTimeValue   = reg.MustRW[DxTime, uint32](0, 32)
	DrefTimeValue = reg.MustRW[DrefTime, uint32](0, 32)
	RxFwtoValue   = reg.MustRW[RxFwto, uint32](0, 24)
)

// The status and enable registers share the irq bit layout and are accessed
// as a whole through irq.Mask.
var (
	SysEnableMask = reg.MustRW[SysEnable, uint64](0, 48)
	SysStatusMask = reg.MustRW[SysStatus, uint64](0, 48)
	SysStatusIrqs = reg.MustRW[SysStatus, uint8](0, 1)
)

var (
	RxFinfoRxflen = reg.MustRO[RxFinfo, uint16](0, 10)
	RxFinfoRxnspl = reg.MustRO[RxFinfo, uint8](11, 2)
	RxFinfoRxbr   = reg.MustRO[RxFinfo, uint8](13, 1)
	RxFinfoRng    = reg.MustRO[RxFinfo, uint8](15, 1)
	RxFinfoRxprf  = reg.MustRO[RxFinfo, uint8](16, 2)
	RxFinfoRxpsr  = reg.MustRO[RxFinfo, uint8](18, 2)
	RxFinfoRxpacc = reg.MustRO[RxFinfo, uint16](20, 12)
)

var (
	RxTimeStamp = reg.MustRO[RxTime, uint64](0, 40)
	RxTimeRawst = reg.MustRO[RxTime, uint32](64, 32)
	TxTimeStamp = reg.MustRO[TxTime, uint64](0, 40)
	TxAntdValue = reg.MustRW[TxAntd, uint16](0, 16)
)

var (
	ChanCtrlRfChan  = reg.MustRW[ChanCtrl, uint8](0, 1)
	ChanCtrlSfdType = reg.MustRW[ChanCtrl, uint8](1, 2)
	ChanCtrlTxPcode = reg.MustRW[ChanCtrl, uint8](3, 5)
	ChanCtrlRxPcode = reg.MustRW[ChanCtrl, uint8](8, 5)
)

var (
	RdbStatusRxfcg0 = reg.MustRW[RdbStatus, uint8](0, 1)
	RdbStatusRxfr0  = reg.MustRW[RdbStatus, uint8](1, 1)
	RdbStatusRxfcg1 = reg.MustRW[RdbStatus, uint8](4, 1)
	RdbStatusRxfr1  = reg.MustRW[RdbStatus, uint8](5, 1)
)

var (
	SysStateTx   = reg.MustRO[SysState, uint8](0, 4)
	SysStateRx   = reg.MustRO[SysState, uint8](8, 4)
	SysStatePmsc = reg.MustRO[SysState, uint8](16, 8)
)

var FcmdStatValue = reg.MustRO[FcmdStat, uint8](0, 5)

var (
	SoftRstArm  = reg.MustRW[SoftRst, uint8](0, 1)
	SoftRstPrgn = reg.MustRW[SoftRst, uint8](1, 1)
	SoftRstCia  = reg.MustRW[SoftRst, uint8](2, 1)
	SoftRstBist = reg.MustRW[SoftRst, uint8](3, 1)
	SoftRstRx   = reg.MustRW[SoftRst, uint8](4, 1)
	SoftRstTx   = reg.MustRW[SoftRst, uint8](5, 1)
	SoftRstHif  = reg.MustRW[SoftRst, uint8](6, 1)
	SoftRstPmsc = reg.MustRW[SoftRst, uint8](7, 1)
	SoftRstGpio = reg.MustRW[SoftRst, uint8](8, 1)
	SoftRstAll  = reg.MustRW[SoftRst, uint16](0, 9)
)

// AES_KEY_RAM holds eight 128-bit keys.
var AesKeys = [8]reg.WideRW[AesKeyRAM]{
	reg.MustWideRW[AesKeyRAM](0, 128),
	reg.MustWideRW[AesKeyRAM](128, 128),
	reg.MustWideRW[AesKeyRAM](256, 128),
	reg.MustWideRW[AesKeyRAM](384, 128),
	reg.MustWideRW[AesKeyRAM](512, 128),
	reg.MustWideRW[AesKeyRAM](640, 128),
	reg.MustWideRW[AesKeyRAM](768, 128),
	reg.MustWideRW[AesKeyRAM](896, 128),
}

var (
	FintStatTxok  = reg.MustRO[FintStat, uint8](0, 1)
	FintStatRxok  = reg.MustRO[FintStat, uint8](3, 1)
	FintStatRxerr = reg.MustRO[FintStat, uint8](4, 1)
	FintStatRxto  = reg.MustRO[FintStat, uint8](5, 1)
)
