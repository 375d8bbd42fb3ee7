package plugins

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/linht/uwb-manager/header"
	"github.com/linht/uwb-manager/trace"
)

// Trace streaming constants
const (
	SubscriberBuffer  = 256
	KeepAlivePeriod   = 15 * time.Second
	DefaultEventLimit = 1000
)

// TracePlugin exposes recorded bus transactions
type TracePlugin struct {
	broadcaster    *trace.Broadcaster
	file           string
	session        string
	tokenValidator TokenValidator
}

// eventView is the JSON form of a trace event
type eventView struct {
	Timestamp time.Time `json:"timestamp"`
	Session   string    `json:"session"`
	Seq       uint64    `json:"seq"`
	Kind      string    `json:"kind"`
	Register  string    `json:"register,omitempty"`
	Write     bool      `json:"write"`
	Header    string    `json:"header"`
	Payload   string    `json:"payload,omitempty"`
	Micros    int64     `json:"duration_us"`
	Error     string    `json:"error,omitempty"`
}

func newEventView(e trace.Event) eventView {
	return eventView{
		Timestamp: e.Timestamp,
		Session:   e.Session,
		Seq:       e.Seq,
		Kind:      e.Kind.String(),
		Register:  e.Register,
		Write:     e.Write(),
		Header:    hex.EncodeToString(e.Header),
		Payload:   hex.EncodeToString(e.Payload),
		Micros:    e.Duration.Microseconds(),
		Error:     e.Err,
	}
}

// NewTracePlugin creates a new trace plugin instance
func NewTracePlugin(b *trace.Broadcaster, file, session string) (*TracePlugin, error) {
	if b == nil {
		return nil, fmt.Errorf("trace plugin requires a broadcaster")
	}
	return &TracePlugin{
		broadcaster: b,
		file:        file,
		session:     session,
	}, nil
}

// SetTokenValidator sets the token validation function
func (p *TracePlugin) SetTokenValidator(validator TokenValidator) {
	p.tokenValidator = validator
}

// Name returns the plugin identifier
func (p *TracePlugin) Name() string {
	return "trace"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *TracePlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/trace")

	api.Get("/info", p.handleInfo)
	api.Get("/events", p.streamEvents)
	api.Get("/file", p.handleReadFile)

	// WebSocket endpoint for live events
	api.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	api.Get("/ws", websocket.New(p.handleWebSocket))
}

// Shutdown performs cleanup
func (p *TracePlugin) Shutdown() error {
	// Closing the broadcaster ends every live stream
	p.broadcaster.Close()
	return nil
}

func (p *TracePlugin) handleInfo(c *fiber.Ctx) error {
	return SendSuccess(c, fiber.Map{
		"session":     p.session,
		"file":        p.file,
		"subscribers": p.broadcaster.Subscribers(),
	}, "")
}

// handleWebSocket sends each event as a JSON text message
func (p *TracePlugin) handleWebSocket(c *websocket.Conn) {
	events, cancel := p.broadcaster.Subscribe(SubscriberBuffer)
	defer cancel()

	// Reads only serve to notice the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := c.WriteJSON(newEventView(e)); err != nil {
				return
			}
		}
	}
}

func (p *TracePlugin) streamEvents(c *fiber.Ctx) error {
	// Validate token from query parameter (EventSource can't use headers)
	token := c.Query("token")
	if p.tokenValidator != nil && !p.tokenValidator(token) {
		return c.Status(401).JSON(APIResponse{
			Success: false,
			Error:   "Unauthorized",
		})
	}

	// Set SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	events, cancel := p.broadcaster.Subscribe(SubscriberBuffer)

	// Stream events until the client disconnects or tracing stops
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		keepAlive := time.NewTicker(KeepAlivePeriod)
		defer keepAlive.Stop()

		for {
			select {
			case e, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(newEventView(e))
				if err != nil {
					slog.Warn("Failed to encode trace event", "error", err)
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", data)
			case <-keepAlive.C:
				fmt.Fprint(w, ": keepalive\n\n")
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})

	return nil
}

func (p *TracePlugin) handleReadFile(c *fiber.Ctx) error {
	if p.file == "" {
		return SendErrorMessage(c, fiber.StatusNotFound, "Trace file not configured")
	}

	filter, err := parseFilter(c)
	if err != nil {
		return SendError(c, fiber.StatusBadRequest, err)
	}
	limit := c.QueryInt("limit", DefaultEventLimit)
	if limit <= 0 {
		return SendErrorMessage(c, fiber.StatusBadRequest, "Limit must be positive")
	}

	r, err := trace.NewFilteredReader(p.file, filter)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return SendErrorMessage(c, fiber.StatusNotFound, "No trace recorded yet")
		}
		return SendError(c, fiber.StatusInternalServerError, err)
	}
	defer r.Close()

	events := make([]eventView, 0)
	truncated := false
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return SendError(c, fiber.StatusInternalServerError, err)
		}
		if len(events) == limit {
			truncated = true
			break
		}
		events = append(events, newEventView(e))
	}

	return SendSuccess(c, fiber.Map{
		"events":    events,
		"count":     len(events),
		"truncated": truncated,
	}, "")
}

// parseFilter builds a trace filter from the query string
func parseFilter(c *fiber.Ctx) (trace.Filter, error) {
	f := trace.Filter{
		Session:    c.Query("session"),
		Register:   c.Query("register"),
		OnlyErrors: c.QueryBool("errors", false),
	}
	if s := c.Query("kind"); s != "" {
		k, err := header.ParseKind(s)
		if err != nil {
			return f, err
		}
		f.Kind = &k
	}
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return f, fmt.Errorf("invalid since: %w", err)
		}
		f.TimeStart = &t
	}
	if s := c.Query("until"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return f, fmt.Errorf("invalid until: %w", err)
		}
		f.TimeEnd = &t
	}
	return f, nil
}

// Register the plugin
func init() {
	Register("trace", func(config interface{}) (Plugin, error) {
		configMap, ok := config.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid config for trace plugin")
		}

		b, ok := configMap["broadcaster"].(*trace.Broadcaster)
		if !ok {
			return nil, fmt.Errorf("invalid config for trace plugin: expected *trace.Broadcaster")
		}
		file, _ := configMap["file"].(string)
		session, _ := configMap["session"].(string)

		return NewTracePlugin(b, file, session)
	})
}
