package plugins_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linht/uwb-manager/devsim"
	"github.com/linht/uwb-manager/irq"
	"github.com/linht/uwb-manager/plugins"
	"github.com/linht/uwb-manager/reg"
	"github.com/linht/uwb-manager/regs"
	"github.com/linht/uwb-manager/trace"
	"github.com/linht/uwb-manager/transport"
)

type response struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
}

type collect struct {
	mu     sync.Mutex
	events []trace.Event
}

func (c *collect) Record(e trace.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collect) registers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Register)
	}
	return out
}

func newUWB(t *testing.T, doubleBuffer bool, tracer *trace.Tap) (*fiber.App, *devsim.Device) {
	t.Helper()
	var cfg plugins.UWBConfig
	cfg.DW3000.Simulate = true
	cfg.DW3000.IRQPin = -1
	cfg.DW3000.PollInterval = time.Millisecond
	cfg.DW3000.DoubleBuffer = doubleBuffer

	var tr transport.Tracer
	if tracer != nil {
		tr = tracer
	}
	p, err := plugins.NewUWBPlugin(cfg, tr)
	require.NoError(t, err)
	require.NotNil(t, p.Simulator())

	app := fiber.New()
	p.RegisterRoutes(app)
	return app, p.Simulator()
}

func call(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, response) {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestUWBInitAndInfo(t *testing.T) {
	app, _ := newUWB(t, false, nil)

	code, resp := call(t, app, "GET", "/api/uwb/info", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, false, resp.Data["initialized"])

	code, resp = call(t, app, "POST", "/api/uwb/init", nil)
	require.Equal(t, 200, code, resp.Error)
	assert.Equal(t, "RIDTAG 0xDECA model 0x03 ver 0 rev 2", resp.Data["device"])

	_, resp = call(t, app, "GET", "/api/uwb/info", nil)
	assert.Equal(t, true, resp.Data["initialized"])
	assert.Equal(t, "transient", resp.Data["mode"])
}

func TestUWBTransmitAndReceive(t *testing.T) {
	app, sim := newUWB(t, false, nil)

	code, resp := call(t, app, "POST", "/api/uwb/transmit", fiber.Map{"data": "418800cade"})
	require.Equal(t, 200, code, resp.Error)
	assert.NotZero(t, resp.Data["timestamp"])
	assert.Equal(t, [][]byte{{0x41, 0x88, 0x00, 0xCA, 0xDE}}, sim.Sent())

	sim.QueueReceive(devsim.Outcome{Data: []byte{0xCA, 0xFE}})
	code, resp = call(t, app, "POST", "/api/uwb/receive", nil)
	require.Equal(t, 200, code, resp.Error)
	assert.Equal(t, "cafe", resp.Data["data"])
	assert.Equal(t, false, resp.Data["partial"])

	code, _ = call(t, app, "POST", "/api/uwb/transmit", fiber.Map{"data": "zz"})
	assert.Equal(t, 400, code)
	code, _ = call(t, app, "POST", "/api/uwb/transmit", fiber.Map{"data": "00", "mode": "later"})
	assert.Equal(t, 400, code)
}

func TestUWBTransmitWithResponse(t *testing.T) {
	app, sim := newUWB(t, false, nil)
	sim.QueueReceive(devsim.Outcome{Data: []byte{0x01, 0x02}})

	code, resp := call(t, app, "POST", "/api/uwb/transmit", fiber.Map{
		"data":     "00",
		"mode":     "delayed",
		"delay":    "last_rx",
		"dx":       1000,
		"response": true,
	})
	require.Equal(t, 200, code, resp.Error)
	assert.Equal(t, "0102", resp.Data["data"])

	code, _ = call(t, app, "POST", "/api/uwb/transmit", fiber.Map{"data": "00", "mode": "delayed", "delay": "soon"})
	assert.Equal(t, 400, code)
}

func TestUWBOperationErrors(t *testing.T) {
	app, sim := newUWB(t, false, nil)

	code, resp := call(t, app, "POST", "/api/uwb/receive", fiber.Map{"timeout_ms": 20})
	assert.Equal(t, 504, code)
	assert.False(t, resp.Success)

	sim.QueueReceive(devsim.Outcome{Fail: irq.Rxpto})
	code, _ = call(t, app, "POST", "/api/uwb/receive", nil)
	assert.Equal(t, 422, code)

	sim.SetChannelBusy(true)
	code, _ = call(t, app, "POST", "/api/uwb/transmit", fiber.Map{"data": "01", "mode": "listen"})
	assert.Equal(t, 409, code)
	sim.SetChannelBusy(false)

	code, _ = call(t, app, "POST", "/api/uwb/receive", fiber.Map{"delay": "whenever"})
	assert.Equal(t, 400, code)
}

func TestUWBDoubleBufferAcrossRequests(t *testing.T) {
	app, sim := newUWB(t, true, nil)

	frames := []struct {
		data []byte
		want string
	}{
		{[]byte{0x01}, "01"},
		{[]byte{0x02}, "02"},
		{[]byte{0x03}, "03"},
	}
	for _, f := range frames {
		sim.QueueReceive(devsim.Outcome{Data: f.data})
		code, resp := call(t, app, "POST", "/api/uwb/receive", nil)
		require.Equal(t, 200, code, resp.Error)
		assert.Equal(t, f.want, resp.Data["data"])
	}

	_, resp := call(t, app, "GET", "/api/uwb/info", nil)
	assert.Equal(t, float64(1), resp.Data["rx_buffer"])
}

func TestUWBResetRestartsBufferPointer(t *testing.T) {
	app, sim := newUWB(t, true, nil)

	sim.QueueReceive(devsim.Outcome{Data: []byte{0x11}})
	code, _ := call(t, app, "POST", "/api/uwb/receive", nil)
	require.Equal(t, 200, code)

	code, resp := call(t, app, "POST", "/api/uwb/reset", nil)
	require.Equal(t, 200, code, resp.Error)
	assert.Equal(t, "soft", resp.Data["method"])

	sim.QueueReceive(devsim.Outcome{Data: []byte{0x22}})
	code, resp = call(t, app, "POST", "/api/uwb/receive", nil)
	require.Equal(t, 200, code, resp.Error)
	assert.Equal(t, "22", resp.Data["data"])
}

func TestUWBRegisterAccess(t *testing.T) {
	tap := &collect{}
	app, _ := newUWB(t, false, trace.NewTap(tap, "test"))

	code, resp := call(t, app, "GET", "/api/uwb/registers", nil)
	require.Equal(t, 200, code)
	assert.Greater(t, resp.Data["count"], float64(20))

	code, resp = call(t, app, "GET", "/api/uwb/registers/dev_id", nil)
	require.Equal(t, 200, code, resp.Error)
	assert.Equal(t, "0203cade", resp.Data["value"])
	fields := resp.Data["fields"].(map[string]interface{})
	assert.Equal(t, "0xDECA", fields["RIDTAG"])
	assert.Equal(t, "0x3", fields["MODEL"])
	assert.Contains(t, tap.registers(), "DEV_ID")

	code, resp = call(t, app, "GET", "/api/uwb/registers/DEV_ID?len=2", nil)
	require.Equal(t, 200, code, resp.Error)
	assert.Equal(t, "0203", resp.Data["value"])

	code, _ = call(t, app, "GET", "/api/uwb/registers/DEV_ID?len=9", nil)
	assert.Equal(t, 400, code)
	code, _ = call(t, app, "GET", "/api/uwb/registers/NOPE", nil)
	assert.Equal(t, 404, code)
	code, _ = call(t, app, "GET", "/api/uwb/registers/TX_BUFFER", nil)
	assert.Equal(t, 400, code)
	code, _ = call(t, app, "POST", "/api/uwb/registers/DEV_ID", fiber.Map{"value": "00000000"})
	assert.Equal(t, 400, code)

	code, resp = call(t, app, "POST", "/api/uwb/registers/PANADR", fiber.Map{"value": "3412cade"})
	require.Equal(t, 200, code, resp.Error)
	_, resp = call(t, app, "GET", "/api/uwb/registers/PANADR", nil)
	assert.Equal(t, "3412cade", resp.Data["value"])

	code, resp = call(t, app, "POST", "/api/uwb/registers/PANADR/pan_id", fiber.Map{"value": "0xBEEF"})
	require.Equal(t, 200, code, resp.Error)
	_, resp = call(t, app, "GET", "/api/uwb/registers/PANADR", nil)
	assert.Equal(t, "3412efbe", resp.Data["value"])

	code, _ = call(t, app, "POST", "/api/uwb/registers/PANADR/PAN_ID", fiber.Map{"value": "0x10000"})
	assert.Equal(t, 400, code)
	code, _ = call(t, app, "POST", "/api/uwb/registers/PANADR/NOPE", fiber.Map{"value": "1"})
	assert.Equal(t, 404, code)
}

func TestUWBCommandsAndStatus(t *testing.T) {
	app, sim := newUWB(t, false, nil)

	code, resp := call(t, app, "GET", "/api/uwb/commands", nil)
	require.Equal(t, 200, code)
	assert.NotZero(t, resp.Data["count"])

	code, resp = call(t, app, "POST", "/api/uwb/command/clr_irqs", nil)
	require.Equal(t, 200, code, resp.Error)
	assert.Equal(t, "CMD_CLR_IRQS", resp.Data["command"])

	code, _ = call(t, app, "POST", "/api/uwb/command/bogus", nil)
	assert.Equal(t, 400, code)

	sim.RejectNext(1)
	code, _ = call(t, app, "POST", "/api/uwb/command/tx", nil)
	assert.Equal(t, 409, code)

	sim.Raise(irq.Txfrs.Bit())
	code, resp = call(t, app, "GET", "/api/uwb/status", nil)
	require.Equal(t, 200, code, resp.Error)
	assert.Contains(t, resp.Data["events"], "TXFRS")
	assert.Equal(t, true, resp.Data["idle"])

	code, _ = call(t, app, "POST", "/api/uwb/status/clear", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, irq.Mask(0), sim.Status())

	code, _ = call(t, app, "POST", "/api/uwb/idle", nil)
	assert.Equal(t, 200, code)
}

func TestUWBFactoryParsesConfig(t *testing.T) {
	factory, ok := plugins.Get("uwb")
	require.True(t, ok)

	p, err := factory(map[string]interface{}{
		"dw3000": map[string]interface{}{
			"simulate":      true,
			"spi_speed":     8000000,
			"poll_interval": "500us",
			"double_buffer": true,
		},
		"timeout": "250ms",
	})
	require.NoError(t, err)
	assert.Equal(t, "uwb", p.Name())

	_, err = factory(map[string]interface{}{
		"dw3000": map[string]interface{}{"poll_interval": "often"},
	})
	assert.Error(t, err)

	_, err = factory("not a map")
	assert.Error(t, err)

	_, err = factory(map[string]interface{}{
		"dw3000": map[string]interface{}{"spi_device": "/dev/spidev-does-not-exist"},
	})
	assert.Error(t, err)
}

func TestUWBValidatesHardwareConfig(t *testing.T) {
	var cfg plugins.UWBConfig
	cfg.DW3000.IRQPin = -1

	_, err := plugins.NewUWBPlugin(cfg, nil)
	assert.ErrorIs(t, err, transport.ErrNoSPIDevice)

	cfg.DW3000.SPIDevice = "/dev/spidev-does-not-exist"
	_, err = plugins.NewUWBPlugin(cfg, nil)
	assert.Error(t, err)
}

func TestUWBIdentifyAndReferenceTime(t *testing.T) {
	app, sim := newUWB(t, false, nil)

	code, resp := call(t, app, "GET", "/api/uwb/identify", nil)
	require.Equal(t, 200, code, resp.Error)
	assert.Equal(t, "RIDTAG 0xDECA model 0x03 ver 0 rev 2", resp.Data["device"])

	code, resp = call(t, app, "POST", "/api/uwb/reference_time", fiber.Map{"time": 0x12345678})
	require.Equal(t, 200, code, resp.Error)
	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12}, sim.Peek(reg.DescriptorOf[regs.DrefTime]()))

	code, _ = call(t, app, "POST", "/api/uwb/reference_time", fiber.Map{})
	assert.Equal(t, 400, code)
	code, _ = call(t, app, "POST", "/api/uwb/reference_time", fiber.Map{"time": -1})
	assert.Equal(t, 400, code)

	sim.Poke(reg.DescriptorOf[regs.DevID](), []byte{0x02, 0x03, 0x00, 0x00})
	code, _ = call(t, app, "GET", "/api/uwb/identify", nil)
	assert.Equal(t, 502, code)
}
