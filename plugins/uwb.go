package plugins

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"

	"github.com/linht/uwb-manager/devsim"
	"github.com/linht/uwb-manager/driver"
	"github.com/linht/uwb-manager/fastcmd"
	"github.com/linht/uwb-manager/gpio"
	"github.com/linht/uwb-manager/reg"
	"github.com/linht/uwb-manager/regs"
	"github.com/linht/uwb-manager/transport"
)

// Default operation timeout for transmit and receive requests
const DefaultOperationTimeout = 2 * time.Second

// UWBPlugin provides DW3000 transceiver control
// Uses transient connections - opens the bus for each request and releases it
type UWBPlugin struct {
	config    UWBConfig
	catalogue *reg.Catalogue
	tracer    transport.Tracer

	// sim stands in for the hardware in simulate mode; it outlives requests
	sim *devsim.Device

	mu          sync.Mutex
	initialized bool
	rxBuffer    int
}

// UWBConfig holds transceiver configuration
type UWBConfig struct {
	DW3000 struct {
		SPIDevice    string        `yaml:"spi_device" json:"spi_device"`
		SPISpeed     uint32        `yaml:"spi_speed" json:"spi_speed"`
		GPIOChip     string        `yaml:"gpio_chip" json:"gpio_chip"`
		ResetPin     int           `yaml:"reset_pin" json:"reset_pin"`
		IRQPin       int           `yaml:"irq_pin" json:"irq_pin"`
		PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
		DoubleBuffer bool          `yaml:"double_buffer" json:"double_buffer"`
		Simulate     bool          `yaml:"simulate" json:"simulate"`
	} `yaml:"dw3000" json:"dw3000"`
	Catalogue string        `yaml:"catalogue" json:"catalogue"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// uwbSession is one transient connection to the transceiver
type uwbSession struct {
	dev   *driver.Device
	bus   *transport.Bus
	port  *transport.SPIPort
	lines *gpio.Lines
	irq   <-chan struct{}
}

func (s *uwbSession) close() error {
	var errs []error
	errs = append(errs, s.bus.Close())
	if s.lines != nil {
		slog.Debug("UWB session closed", "irq_edges", s.lines.Edges())
		errs = append(errs, s.lines.Close())
	}
	if s.port != nil {
		errs = append(errs, s.port.Close())
	}
	return errors.Join(errs...)
}

// NewUWBPlugin creates a new UWB plugin instance
func NewUWBPlugin(cfg UWBConfig, tracer transport.Tracer) (*UWBPlugin, error) {
	// Set defaults if not configured
	if cfg.DW3000.SPISpeed == 0 {
		cfg.DW3000.SPISpeed = uint32(transport.DefaultSPISpeed / physic.Hertz)
	}
	if cfg.DW3000.PollInterval == 0 {
		cfg.DW3000.PollInterval = driver.DefaultPollInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultOperationTimeout
	}

	if !cfg.DW3000.Simulate {
		if err := validateHardware(cfg); err != nil {
			return nil, err
		}
	}

	cat, err := regs.Load(cfg.Catalogue)
	if err != nil {
		return nil, err
	}

	p := &UWBPlugin{
		config:    cfg,
		catalogue: cat,
		tracer:    tracer,
	}
	if cfg.DW3000.Simulate {
		p.sim = devsim.New()
	}

	slog.Info("UWB plugin initializing",
		"spi_device", cfg.DW3000.SPIDevice,
		"spi_speed", cfg.DW3000.SPISpeed,
		"gpio_chip", cfg.DW3000.GPIOChip,
		"reset_pin", cfg.DW3000.ResetPin,
		"irq_pin", cfg.DW3000.IRQPin,
		"double_buffer", cfg.DW3000.DoubleBuffer,
		"simulate", cfg.DW3000.Simulate,
		"registers", cat.Len())

	return p, nil
}

// validateHardware opens the configured SPI port and GPIO lines
func validateHardware(cfg UWBConfig) error {
	dw := cfg.DW3000
	if err := transport.ValidateSPIDevice(dw.SPIDevice, dw.SPISpeed); err != nil {
		return fmt.Errorf("invalid uwb config: %w", err)
	}
	if dw.GPIOChip == "" {
		return nil
	}
	if err := gpio.ValidateChip(dw.GPIOChip, dw.ResetPin); err != nil {
		return fmt.Errorf("invalid uwb reset_pin: %w", err)
	}
	if dw.IRQPin >= 0 {
		if err := gpio.ValidateChip(dw.GPIOChip, dw.IRQPin); err != nil {
			return fmt.Errorf("invalid uwb irq_pin: %w", err)
		}
	}
	return nil
}

// Name returns the plugin identifier
func (p *UWBPlugin) Name() string {
	return "uwb"
}

// Simulator returns the simulated device, or nil when real hardware is used
func (p *UWBPlugin) Simulator() *devsim.Device {
	return p.sim
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *UWBPlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/uwb")

	// Device control endpoints
	api.Post("/init", p.handleInit)
	api.Post("/reset", p.handleReset)
	api.Get("/info", p.handleInfo)
	api.Get("/identify", p.handleIdentify)
	api.Get("/status", p.handleStatus)
	api.Post("/status/clear", p.handleClearStatus)
	api.Post("/reference_time", p.handleReferenceTime)

	// Register access endpoints
	api.Get("/registers", p.handleListRegisters)
	api.Get("/registers/:name", p.handleReadRegister)
	api.Post("/registers/:name", p.handleWriteRegister)
	api.Post("/registers/:name/:field", p.handleWriteField)

	// Fast commands
	api.Get("/commands", p.handleListCommands)
	api.Post("/command/:name", p.handleCommand)

	// Transceiver operations
	api.Post("/transmit", p.handleTransmit)
	api.Post("/receive", p.handleReceive)
	api.Post("/idle", p.handleIdle)

	slog.Info("UWB plugin routes registered")
}

// Shutdown performs cleanup
func (p *UWBPlugin) Shutdown() error {
	// No persistent resources to clean up
	return nil
}

// openSession creates a temporary connection for an operation
func (p *UWBPlugin) openSession() (*uwbSession, error) {
	cfg := p.config.DW3000
	s := &uwbSession{}

	var c conn.Conn
	if p.sim != nil {
		c = p.sim
		s.irq = p.sim.IRQ()
	} else {
		port, err := transport.OpenSPI(cfg.SPIDevice, cfg.SPISpeed)
		if err != nil {
			return nil, err
		}
		s.port = port
		c = port.Conn()

		if cfg.GPIOChip != "" {
			lines, err := gpio.Open(cfg.GPIOChip, cfg.ResetPin, cfg.IRQPin)
			if err != nil {
				port.Close()
				return nil, err
			}
			s.lines = lines
			s.irq = lines.IRQ()
		}
	}

	busOpts := []transport.Option{transport.WithLogger(slog.Default())}
	if p.tracer != nil {
		busOpts = append(busOpts, transport.WithTracer(p.tracer))
	}
	s.bus = transport.NewBus(c, busOpts...)
	s.dev = driver.New(s.bus, p.driverOptions(s.irq, p.rxBuffer)...)
	return s, nil
}

func (p *UWBPlugin) driverOptions(irqCh <-chan struct{}, rxBuffer int) []driver.Option {
	opts := []driver.Option{
		driver.WithLogger(slog.Default()),
		driver.WithPollInterval(p.config.DW3000.PollInterval),
		driver.WithDoubleBuffer(p.config.DW3000.DoubleBuffer),
		driver.WithRxBuffer(rxBuffer),
	}
	if irqCh != nil {
		opts = append(opts, driver.WithIRQ(irqCh))
	}
	return opts
}

// withDevice executes a function with a temporary connection. Requests are
// serialised so the receive buffer index stays in step with the device.
func (p *UWBPlugin) withDevice(fn func(*uwbSession) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.openSession()
	if err != nil {
		return err
	}
	defer func() {
		if err := s.close(); err != nil {
			slog.Warn("Failed to release UWB device", "error", err)
		}
	}()

	err = fn(s)
	p.rxBuffer = s.dev.RxBuffer()
	return err
}

// ensureInit configures the device once before the first operation
func (p *UWBPlugin) ensureInit(ctx context.Context, s *uwbSession) error {
	if p.initialized {
		return nil
	}
	if _, err := s.dev.Init(ctx); err != nil {
		return err
	}
	p.initialized = true
	return nil
}

// operationContext bounds a request by its timeout_ms or the configured default
func (p *UWBPlugin) operationContext(c *fiber.Ctx, timeoutMs int) (context.Context, context.CancelFunc) {
	timeout := p.config.Timeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return context.WithTimeout(c.UserContext(), timeout)
}

// Device control handlers

func (p *UWBPlugin) handleInit(c *fiber.Ctx) error {
	var id driver.Identity

	err := p.withDevice(func(s *uwbSession) error {
		var err error
		id, err = s.dev.Init(c.UserContext())
		if err != nil {
			return err
		}
		p.initialized = true
		return nil
	})

	if err != nil {
		slog.Error("Failed to initialize transceiver", "error", err)
		return SendDeviceError(c, err)
	}

	return SendSuccess(c, fiber.Map{
		"identity": id,
		"device":   id.String(),
	}, "Transceiver initialized")
}

func (p *UWBPlugin) handleReset(c *fiber.Ctx) error {
	var id driver.Identity
	var method string

	err := p.withDevice(func(s *uwbSession) error {
		ctx := c.UserContext()
		if s.lines != nil {
			method = "hardware"
			if err := s.lines.Reset(); err != nil {
				return err
			}
		} else {
			method = "soft"
			if err := softReset(ctx, s.bus); err != nil {
				return err
			}
		}

		// The device restarts on receive buffer 0
		s.dev = driver.New(s.bus, p.driverOptions(s.irq, 0)...)
		var err error
		id, err = s.dev.Init(ctx)
		if err != nil {
			return err
		}
		p.initialized = true
		return nil
	})

	if err != nil {
		slog.Error("Failed to reset transceiver", "error", err)
		return SendDeviceError(c, err)
	}

	slog.Info("Transceiver reset", "method", method)
	return SendSuccess(c, fiber.Map{
		"identity": id,
		"method":   method,
	}, "Transceiver reset successful")
}

// softReset holds every block in reset through SOFT_RST and releases them
func softReset(ctx context.Context, bus *transport.Bus) error {
	v := reg.NewView[regs.SoftRst]()
	if err := transport.Write(ctx, bus, v); err != nil {
		return fmt.Errorf("failed to assert soft reset: %w", err)
	}
	time.Sleep(time.Millisecond)
	regs.SoftRstAll.Write(v, 0x1FF)
	if err := transport.Write(ctx, bus, v); err != nil {
		return fmt.Errorf("failed to release soft reset: %w", err)
	}
	return nil
}

func (p *UWBPlugin) handleInfo(c *fiber.Ctx) error {
	p.mu.Lock()
	initialized := p.initialized
	rxBuffer := p.rxBuffer
	p.mu.Unlock()

	return SendSuccess(c, fiber.Map{
		"config":      p.config,
		"mode":        "transient",
		"initialized": initialized,
		"rx_buffer":   rxBuffer,
		"registers":   p.catalogue.Len(),
	}, "")
}

func (p *UWBPlugin) handleStatus(c *fiber.Ctx) error {
	var resp fiber.Map

	err := p.withDevice(func(s *uwbSession) error {
		ctx := c.UserContext()
		status, err := s.dev.Status(ctx)
		if err != nil {
			return err
		}
		state, err := s.dev.State(ctx)
		if err != nil {
			return err
		}
		now, err := s.dev.SystemTime(ctx)
		if err != nil {
			return err
		}

		events := make([]string, 0)
		for _, i := range status.Interrupts() {
			events = append(events, i.String())
		}
		resp = fiber.Map{
			"status":      fmt.Sprintf("0x%012X", uint64(status)),
			"events":      events,
			"state":       state,
			"idle":        state.Idle(),
			"system_time": now,
		}
		if s.lines != nil && s.lines.IRQ() != nil {
			level, err := s.lines.IRQLevel()
			if err != nil {
				return err
			}
			resp["irq_line"] = level
		}
		return nil
	})

	if err != nil {
		return SendDeviceError(c, err)
	}

	return SendSuccess(c, resp, "")
}

func (p *UWBPlugin) handleIdentify(c *fiber.Ctx) error {
	var id driver.Identity

	err := p.withDevice(func(s *uwbSession) error {
		var err error
		id, err = s.dev.Identify(c.UserContext())
		return err
	})

	if err != nil {
		return SendDeviceError(c, err)
	}

	return SendSuccess(c, fiber.Map{
		"identity": id,
		"device":   id.String(),
	}, "")
}

// handleReferenceTime loads DREF_TIME, the base of "internal" delays
func (p *UWBPlugin) handleReferenceTime(c *fiber.Ctx) error {
	var req struct {
		Time *uint32 `json:"time"`
	}
	if err := c.BodyParser(&req); err != nil || req.Time == nil {
		return SendErrorMessage(c, fiber.StatusBadRequest, "Body must contain a 32-bit time")
	}

	err := p.withDevice(func(s *uwbSession) error {
		return s.dev.SetReferenceTime(c.UserContext(), *req.Time)
	})

	if err != nil {
		return SendDeviceError(c, err)
	}

	return SendSuccess(c, fiber.Map{"time": *req.Time}, "Reference time set")
}

func (p *UWBPlugin) handleClearStatus(c *fiber.Ctx) error {
	err := p.withDevice(func(s *uwbSession) error {
		return s.dev.ClearInterrupts(c.UserContext())
	})

	if err != nil {
		return SendDeviceError(c, err)
	}

	return SendSuccess(c, nil, "Status cleared")
}

// Register access handlers

func (p *UWBPlugin) handleListRegisters(c *fiber.Ctx) error {
	entries := p.catalogue.Entries()

	regList := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		regList = append(regList, fiber.Map{
			"name":        e.Name,
			"address":     fmt.Sprintf("0x%02X:0x%02X", e.Base, e.Sub),
			"length":      e.Len,
			"access":      e.Access,
			"description": e.Description,
			"fields":      e.Fields,
		})
	}

	return SendSuccess(c, fiber.Map{
		"registers": regList,
		"count":     len(regList),
	}, "")
}

func (p *UWBPlugin) lookup(c *fiber.Ctx) (reg.Entry, error) {
	e, ok := p.catalogue.Lookup(c.Params("name"))
	if !ok {
		return reg.Entry{}, fmt.Errorf("%w: %s", errUnknownRegister, c.Params("name"))
	}
	return e, nil
}

func (p *UWBPlugin) handleReadRegister(c *fiber.Ctx) error {
	e, err := p.lookup(c)
	if err != nil {
		return SendError(c, fiber.StatusNotFound, err)
	}

	n := c.QueryInt("len", e.Len)
	if n <= 0 || n > e.Len {
		return SendErrorMessage(c, fiber.StatusBadRequest, fmt.Sprintf("Length must be between 1 and %d", e.Len))
	}

	buf := make([]byte, n)
	err = p.withDevice(func(s *uwbSession) error {
		return s.bus.ReadRaw(c.UserContext(), e.Register, buf)
	})

	if err != nil {
		return SendDeviceError(c, err)
	}

	fields := make(fiber.Map)
	for name, v := range e.Decode(buf) {
		fields[name] = reg.Hex(v)
	}

	return SendSuccess(c, fiber.Map{
		"name":    e.Name,
		"address": fmt.Sprintf("0x%02X:0x%02X", e.Base, e.Sub),
		"value":   hex.EncodeToString(buf),
		"fields":  fields,
	}, "")
}

func (p *UWBPlugin) handleWriteRegister(c *fiber.Ctx) error {
	e, err := p.lookup(c)
	if err != nil {
		return SendError(c, fiber.StatusNotFound, err)
	}

	var req struct {
		Value string `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, fiber.StatusBadRequest, "Invalid request body")
	}
	data, err := hex.DecodeString(strings.TrimPrefix(req.Value, "0x"))
	if err != nil {
		return SendErrorMessage(c, fiber.StatusBadRequest, "Value must be hex encoded")
	}

	err = p.withDevice(func(s *uwbSession) error {
		return s.bus.WriteRaw(c.UserContext(), e.Register, data)
	})

	if err != nil {
		return SendDeviceError(c, err)
	}

	slog.Info("Register write", "register", e.Name, "bytes", len(data))
	return SendSuccess(c, nil, "Register written successfully")
}

func (p *UWBPlugin) handleWriteField(c *fiber.Ctx) error {
	e, err := p.lookup(c)
	if err != nil {
		return SendError(c, fiber.StatusNotFound, err)
	}
	f, ok := e.Field(c.Params("field"))
	if !ok {
		return SendErrorMessage(c, fiber.StatusNotFound, fmt.Sprintf("Unknown field %s.%s", e.Name, c.Params("field")))
	}

	var req struct {
		Value string `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, fiber.StatusBadRequest, "Invalid request body")
	}
	v, err := reg.ParseUint128(req.Value)
	if err != nil {
		return SendError(c, fiber.StatusBadRequest, err)
	}
	if !v.Rsh(f.Size).IsZero() {
		return SendErrorMessage(c, fiber.StatusBadRequest, fmt.Sprintf("Value does not fit in %d bits", f.Size))
	}

	err = p.withDevice(func(s *uwbSession) error {
		ctx := c.UserContext()
		if !e.Access.Readable() {
			// Nothing to preserve, start from a zero image
			buf := make([]byte, e.Len)
			if err := f.Set(buf, v); err != nil {
				return err
			}
			return s.bus.WriteRaw(ctx, e.Register, buf)
		}
		return s.bus.ModifyRaw(ctx, e.Register, func(buf []byte) error {
			return f.Set(buf, v)
		})
	})

	if err != nil {
		return SendDeviceError(c, err)
	}

	slog.Info("Field write", "register", e.Name, "field", f.Name, "value", reg.Hex(v))
	return SendSuccess(c, fiber.Map{
		"register": e.Name,
		"field":    f.Name,
		"value":    reg.Hex(v),
	}, "Field written successfully")
}

// Fast command handlers

func (p *UWBPlugin) handleListCommands(c *fiber.Ctx) error {
	cmdList := make([]fiber.Map, 0)
	for _, cmd := range fastcmd.All() {
		cmdList = append(cmdList, fiber.Map{
			"name":        cmd.String(),
			"opcode":      fmt.Sprintf("0x%02X", cmd.Opcode()),
			"description": cmd.Description(),
		})
	}
	return SendSuccess(c, fiber.Map{
		"commands": cmdList,
		"count":    len(cmdList),
	}, "")
}

func (p *UWBPlugin) handleCommand(c *fiber.Ctx) error {
	cmd, err := fastcmd.Parse(c.Params("name"))
	if err != nil {
		return SendError(c, fiber.StatusBadRequest, err)
	}

	var status string
	err = p.withDevice(func(s *uwbSession) error {
		m, err := s.dev.Command(c.UserContext(), cmd)
		status = fmt.Sprintf("0x%012X", uint64(m))
		return err
	})

	if err != nil {
		return SendDeviceError(c, err)
	}

	slog.Info("Fast command issued", "command", cmd)
	return SendSuccess(c, fiber.Map{
		"command": cmd.String(),
		"status":  status,
	}, fmt.Sprintf("%s issued", cmd))
}

// Transceiver operation handlers

// transmitRequest is the body of POST /transmit
type transmitRequest struct {
	Data      string `json:"data"`
	Mode      string `json:"mode"`
	Delay     string `json:"delay"`
	DX        uint32 `json:"dx"`
	Response  bool   `json:"response"`
	TimeoutMs int    `json:"timeout_ms"`
}

func (p *UWBPlugin) handleTransmit(c *fiber.Ctx) error {
	var req transmitRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, fiber.StatusBadRequest, "Invalid request body")
	}
	frame, err := hex.DecodeString(req.Data)
	if err != nil {
		return SendErrorMessage(c, fiber.StatusBadRequest, "Data must be hex encoded")
	}

	var kind driver.TransceiverDelay
	switch req.Mode {
	case "", "immediate", "listen":
	case "delayed":
		if kind, err = driver.ParseDelay(defaultString(req.Delay, "absolute")); err != nil {
			return SendError(c, fiber.StatusBadRequest, err)
		}
	default:
		return SendErrorMessage(c, fiber.StatusBadRequest, "Invalid mode. Use: immediate, listen or delayed")
	}

	ctx, cancel := p.operationContext(c, req.TimeoutMs)
	defer cancel()

	var resp fiber.Map
	err = p.withDevice(func(s *uwbSession) error {
		if err := p.ensureInit(ctx, s); err != nil {
			return err
		}

		if req.Response {
			var f driver.Frame
			var err error
			switch req.Mode {
			case "listen":
				f, err = s.dev.ListenTransmitReceive(ctx, frame)
			case "delayed":
				f, err = s.dev.DelayedTransmitReceive(ctx, frame, kind, req.DX)
			default:
				f, err = s.dev.TransmitReceive(ctx, frame)
			}
			if err != nil {
				return err
			}
			resp = frameResponse(f)
			return nil
		}

		var ts uint64
		var err error
		switch req.Mode {
		case "listen":
			ts, err = s.dev.ListenTransmit(ctx, frame)
		case "delayed":
			ts, err = s.dev.DelayedTransmit(ctx, frame, kind, req.DX)
		default:
			ts, err = s.dev.Transmit(ctx, frame)
		}
		if err != nil {
			return err
		}
		resp = fiber.Map{"timestamp": ts, "length": len(frame)}
		return nil
	})

	if err != nil {
		slog.Warn("Transmit failed", "mode", req.Mode, "error", err)
		return SendDeviceError(c, err)
	}

	return SendSuccess(c, resp, "Frame transmitted")
}

// receiveRequest is the body of POST /receive
type receiveRequest struct {
	Delay     string `json:"delay"`
	DX        uint32 `json:"dx"`
	TimeoutMs int    `json:"timeout_ms"`
}

func (p *UWBPlugin) handleReceive(c *fiber.Ctx) error {
	var req receiveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return SendErrorMessage(c, fiber.StatusBadRequest, "Invalid request body")
		}
	}

	var kind driver.TransceiverDelay
	delayed := req.Delay != ""
	if delayed {
		var err error
		if kind, err = driver.ParseDelay(req.Delay); err != nil {
			return SendError(c, fiber.StatusBadRequest, err)
		}
	}

	ctx, cancel := p.operationContext(c, req.TimeoutMs)
	defer cancel()

	var f driver.Frame
	err := p.withDevice(func(s *uwbSession) error {
		if err := p.ensureInit(ctx, s); err != nil {
			return err
		}
		var err error
		if delayed {
			f, err = s.dev.DelayedReceive(ctx, kind, req.DX)
		} else {
			f, err = s.dev.Receive(ctx)
		}
		return err
	})

	if err != nil {
		return SendDeviceError(c, err)
	}

	return SendSuccess(c, frameResponse(f), "Frame received")
}

func (p *UWBPlugin) handleIdle(c *fiber.Ctx) error {
	err := p.withDevice(func(s *uwbSession) error {
		return s.dev.ForceIdle(c.UserContext())
	})

	if err != nil {
		return SendDeviceError(c, err)
	}

	return SendSuccess(c, nil, "Transceiver idle")
}

func frameResponse(f driver.Frame) fiber.Map {
	return fiber.Map{
		"data":      hex.EncodeToString(f.Data),
		"length":    len(f.Data),
		"partial":   f.Partial,
		"timestamp": f.Timestamp,
	}
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Register the plugin
func init() {
	Register("uwb", func(config interface{}) (Plugin, error) {
		configMap, ok := config.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid config for uwb plugin")
		}

		var uwbConfig UWBConfig
		uwbConfig.DW3000.IRQPin = -1

		// Parse DW3000 config with proper type handling
		if dwCfg, ok := configMap["dw3000"].(map[string]interface{}); ok {
			if spiDevice, ok := dwCfg["spi_device"].(string); ok {
				uwbConfig.DW3000.SPIDevice = spiDevice
			}
			// Handle both int and uint32 for spi_speed
			if spiSpeed, ok := dwCfg["spi_speed"].(int); ok {
				uwbConfig.DW3000.SPISpeed = uint32(spiSpeed)
			} else if spiSpeed, ok := dwCfg["spi_speed"].(uint32); ok {
				uwbConfig.DW3000.SPISpeed = spiSpeed
			} else if spiSpeed, ok := dwCfg["spi_speed"].(int64); ok {
				uwbConfig.DW3000.SPISpeed = uint32(spiSpeed)
			}
			if gpioChip, ok := dwCfg["gpio_chip"].(string); ok {
				uwbConfig.DW3000.GPIOChip = gpioChip
			}
			if resetPin, ok := dwCfg["reset_pin"].(int); ok {
				uwbConfig.DW3000.ResetPin = resetPin
			}
			if irqPin, ok := dwCfg["irq_pin"].(int); ok {
				uwbConfig.DW3000.IRQPin = irqPin
			}
			// Accept a duration or a string such as "500us"
			if poll, ok := dwCfg["poll_interval"].(time.Duration); ok {
				uwbConfig.DW3000.PollInterval = poll
			} else if poll, ok := dwCfg["poll_interval"].(string); ok && poll != "" {
				d, err := time.ParseDuration(poll)
				if err != nil {
					return nil, fmt.Errorf("invalid poll_interval: %w", err)
				}
				uwbConfig.DW3000.PollInterval = d
			}
			if doubleBuffer, ok := dwCfg["double_buffer"].(bool); ok {
				uwbConfig.DW3000.DoubleBuffer = doubleBuffer
			}
			if simulate, ok := dwCfg["simulate"].(bool); ok {
				uwbConfig.DW3000.Simulate = simulate
			}
		}
		if catalogue, ok := configMap["catalogue"].(string); ok {
			uwbConfig.Catalogue = catalogue
		}
		if timeout, ok := configMap["timeout"].(time.Duration); ok {
			uwbConfig.Timeout = timeout
		} else if timeout, ok := configMap["timeout"].(string); ok && timeout != "" {
			d, err := time.ParseDuration(timeout)
			if err != nil {
				return nil, fmt.Errorf("invalid timeout: %w", err)
			}
			uwbConfig.Timeout = d
		}

		var tracer transport.Tracer
		if t, ok := configMap["tracer"].(transport.Tracer); ok {
			tracer = t
		}

		slog.Info("UWB plugin config parsed",
			"spi_device", uwbConfig.DW3000.SPIDevice,
			"spi_speed", uwbConfig.DW3000.SPISpeed,
			"gpio_chip", uwbConfig.DW3000.GPIOChip,
			"reset_pin", uwbConfig.DW3000.ResetPin,
			"irq_pin", uwbConfig.DW3000.IRQPin,
			"simulate", uwbConfig.DW3000.Simulate,
			"tracing", tracer != nil)

		return NewUWBPlugin(uwbConfig, tracer)
	})
}
