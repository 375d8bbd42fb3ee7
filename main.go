package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberLogger "github.com/gofiber/fiber/v2/middleware/logger"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/linht/uwb-manager/plugins"
	"github.com/linht/uwb-manager/trace"
)

// Configuration constants
const (
	// Server timeouts
	ServerReadTimeout  = 30 * time.Second
	ServerWriteTimeout = 30 * time.Second

	// Request body limit; the largest body is a hex encoded frame
	MaxBodySize = 64 * 1024

	// Session management (24-hour expiry)
	SessionDuration = 24 * time.Hour
	TokenBytes      = 32

	DefaultConfigPath = "config.yaml"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`
	Auth struct {
		PasswordHash string `yaml:"password_hash"`
	} `yaml:"auth"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	UWB   plugins.UWBConfig `yaml:"uwb"`
	Trace struct {
		Enabled bool   `yaml:"enabled"`
		File    string `yaml:"file"`
		// Log mirrors every bus transaction to the debug log
		Log bool `yaml:"log"`
	} `yaml:"trace"`
	Plugins []string `yaml:"plugins"`
}

// Session represents a simple authenticated session for local use
type Session struct {
	Token     string
	ExpiresAt time.Time
}

var (
	config         Config
	currentSession *Session
	sessionMu      sync.RWMutex
)

// tracing holds the bus trace pipeline shared by the uwb and trace plugins
type tracing struct {
	broadcaster *trace.Broadcaster
	file        *trace.FileRecorder
	tap         *trace.Tap
}

func main() {
	// Load configuration
	path := os.Getenv("UWB_MANAGER_CONFIG")
	if path == "" {
		path = DefaultConfigPath
	}
	configErr := loadConfig(path)

	// Setup structured logging
	var level slog.Level
	if err := level.UnmarshalText([]byte(config.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if configErr != nil {
		slog.Error("Failed to load config", "error", configErr, "path", path)
		os.Exit(1)
	}
	slog.Info("Configuration loaded", "path", path, "log_level", level.String())

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  ServerReadTimeout,
		WriteTimeout: ServerWriteTimeout,
		AppName:      "Linht UWB Manager",
		BodyLimit:    MaxBodySize,
	})

	// Add logger middleware
	app.Use(fiberLogger.New(fiberLogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))

	// Serve static files
	app.Static("/", "./web")

	// Login/logout endpoints (no auth required for login)
	app.Post("/login", handleLogin)
	app.Post("/logout", handleLogout)

	// Auth middleware for all other API routes
	app.Use("/api", authMiddleware)

	// Build the bus trace pipeline
	tr, err := setupTracing()
	if err != nil {
		slog.Error("Failed to set up tracing", "error", err, "file", config.Trace.File)
		os.Exit(1)
	}
	defer tr.close()

	// Initialize and register plugins
	loaded, err := initPlugins(app, tr)
	if err != nil {
		slog.Error("Failed to initialize plugins", "error", err)
		os.Exit(1)
	}

	// Start server with graceful shutdown
	addr := config.Server.Host + ":" + config.Server.Port

	// Setup graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		slog.Info("Shutting down server...")
		if err := app.ShutdownWithContext(context.Background()); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
	}()

	slog.Info("Starting Linht UWB Manager", "address", addr)
	if err := app.Listen(addr); err != nil {
		slog.Error("Failed to start server", "error", err, "address", addr)
		os.Exit(1)
	}

	for _, p := range loaded {
		if err := p.Shutdown(); err != nil {
			slog.Warn("Plugin shutdown error", "name", p.Name(), "error", err)
		}
	}
}

func loadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// No IRQ line unless configured
	config.UWB.DW3000.IRQPin = -1
	return yaml.Unmarshal(data, &config)
}

func handleLogin(c *fiber.Ctx) error {
	var req struct {
		Password string `json:"password"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}

	// Check password
	if err := bcrypt.CompareHashAndPassword([]byte(config.Auth.PasswordHash), []byte(req.Password)); err != nil {
		slog.Warn("Failed login attempt", "ip", c.IP())
		return c.Status(401).JSON(fiber.Map{"error": "Invalid password"})
	}

	slog.Info("Successful login", "ip", c.IP())

	// Generate new session (replaces any existing session for local-only use)
	sessionMu.Lock()
	currentSession = &Session{
		Token:     generateToken(),
		ExpiresAt: time.Now().Add(SessionDuration),
	}
	token, expires := currentSession.Token, currentSession.ExpiresAt
	sessionMu.Unlock()

	return c.JSON(fiber.Map{
		"success": true,
		"token":   token,
		"expires": expires.Unix(),
	})
}

func handleLogout(c *fiber.Ctx) error {
	sessionMu.Lock()
	currentSession = nil
	sessionMu.Unlock()
	slog.Info("User logged out", "ip", c.IP())
	return c.JSON(fiber.Map{"success": true})
}

func authMiddleware(c *fiber.Ctx) error {
	// Check for token in header first, fallback to query parameter (for WebSocket/SSE)
	token := c.Get("X-Auth-Token")
	if token == "" {
		token = c.Query("token")
	}

	if !validateToken(token) {
		return c.Status(401).JSON(fiber.Map{"error": "Unauthorized"})
	}
	return c.Next()
}

func validateToken(token string) bool {
	if token == "" {
		return false
	}

	sessionMu.RLock()
	defer sessionMu.RUnlock()

	if currentSession == nil {
		return false
	}

	// Check token match and expiration
	if currentSession.Token != token {
		return false
	}

	if time.Now().After(currentSession.ExpiresAt) {
		return false
	}

	return true
}

func generateToken() string {
	b := make([]byte, TokenBytes)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// setupTracing fans bus transactions out to live subscribers, the trace file
// and optionally the log. Without tracing the tap is nil.
func setupTracing() (*tracing, error) {
	t := &tracing{broadcaster: trace.NewBroadcaster()}
	if !config.Trace.Enabled {
		return t, nil
	}

	recorders := []trace.Recorder{t.broadcaster}
	if config.Trace.File != "" {
		f, err := trace.NewFileRecorder(config.Trace.File)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace file: %w", err)
		}
		t.file = f
		recorders = append(recorders, f)
	}
	if config.Trace.Log {
		recorders = append(recorders, trace.NewSlogRecorder(slog.Default()))
	}

	t.tap = trace.NewTap(trace.NewMultiRecorder(recorders...), "")
	slog.Info("Bus tracing enabled", "session", t.tap.Session(), "file", config.Trace.File, "log", config.Trace.Log)
	return t, nil
}

func (t *tracing) close() {
	if t.file != nil {
		if err := t.file.Close(); err != nil {
			slog.Warn("Failed to close trace file", "error", err)
		}
	}
}

func (t *tracing) session() string {
	if t.tap == nil {
		return ""
	}
	return t.tap.Session()
}

func initPlugins(app *fiber.App, tr *tracing) ([]plugins.Plugin, error) {
	var loaded []plugins.Plugin
	for _, name := range config.Plugins {
		factory, exists := plugins.Get(name)
		if !exists {
			slog.Warn("Unknown plugin", "name", name, "available", plugins.Names())
			continue
		}

		// Get plugin-specific config
		var pluginConfig interface{}
		switch name {
		case "uwb":
			dw := config.UWB.DW3000
			uwbConfig := map[string]interface{}{
				"dw3000": map[string]interface{}{
					"spi_device":    dw.SPIDevice,
					"spi_speed":     dw.SPISpeed,
					"gpio_chip":     dw.GPIOChip,
					"reset_pin":     dw.ResetPin,
					"irq_pin":       dw.IRQPin,
					"poll_interval": dw.PollInterval,
					"double_buffer": dw.DoubleBuffer,
					"simulate":      dw.Simulate,
				},
				"catalogue": config.UWB.Catalogue,
				"timeout":   config.UWB.Timeout,
			}
			if tr.tap != nil {
				uwbConfig["tracer"] = tr.tap
			}
			pluginConfig = uwbConfig
		case "trace":
			pluginConfig = map[string]interface{}{
				"broadcaster": tr.broadcaster,
				"file":        config.Trace.File,
				"session":     tr.session(),
			}
		}

		plugin, err := factory(pluginConfig)
		if err != nil {
			return loaded, err
		}

		// Set token validator for plugins
		if tracePlugin, ok := plugin.(*plugins.TracePlugin); ok {
			tracePlugin.SetTokenValidator(validateToken)
		}

		plugin.RegisterRoutes(app)
		loaded = append(loaded, plugin)
		slog.Info("Plugin loaded", "name", plugin.Name())
	}
	return loaded, nil
}
