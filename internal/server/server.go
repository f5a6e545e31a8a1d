package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/professor93/cunzhi/internal/api"
	"github.com/professor93/cunzhi/internal/assets"
	"github.com/professor93/cunzhi/internal/config"
	"github.com/professor93/cunzhi/internal/mcp"
	"github.com/professor93/cunzhi/pkg/constants"
)

// Server is the control-plane HTTP server of web mode
type Server struct {
	app     *fiber.App
	port    int
	config  *Config
	store   *config.Store
	decider mcp.DecisionProvider
	sink    mcp.ResponseSink
	assets  *assets.Resolver
	logger  *zap.Logger
}

// Config holds server configuration
type Config struct {
	Port                  int
	Version               string
	Mode                  string
	ReadTimeout           time.Duration
	WriteTimeout          time.Duration
	IdleTimeout           time.Duration
	DisableStartupMessage bool
	DisableRequestLog     bool
}

// Dependencies are the collaborators the routes are bound to. Store is
// required; Decider, Sink and Assets fall back to the web-mode defaults.
type Dependencies struct {
	Store   *config.Store
	Decider mcp.DecisionProvider
	Sink    mcp.ResponseSink
	Assets  *assets.Resolver
	Logger  *zap.Logger
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:                  constants.DefaultWebPort,
		Version:               "dev",
		Mode:                  constants.ServerModeName,
		ReadTimeout:           constants.DefaultRequestTimeout * time.Second,
		WriteTimeout:          constants.DefaultRequestTimeout * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
	}
}

// New creates the server and binds its routes
func New(cfg *Config, deps Dependencies) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Store == nil {
		return nil, errors.New("server requires a configuration store")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Decider == nil {
		deps.Decider = mcp.AutoContinue{Source: mcp.SourceWeb}
	}
	if deps.Sink == nil {
		deps.Sink = mcp.LogSink{Logger: deps.Logger}
	}
	if deps.Assets == nil {
		deps.Assets = assets.Empty()
	}

	app := fiber.New(fiber.Config{
		AppName:               constants.AppDisplayName,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           cfg.IdleTimeout,
		DisableStartupMessage: cfg.DisableStartupMessage,
		ErrorHandler:          newErrorHandler(deps.Logger),
	})

	app.Use(recover.New())
	if !cfg.DisableRequestLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	// Local control surface: every origin is allowed
	app.Use(cors.New())

	server := &Server{
		app:     app,
		port:    cfg.Port,
		config:  cfg,
		store:   deps.Store,
		decider: deps.Decider,
		sink:    deps.Sink,
		assets:  deps.Assets,
		logger:  deps.Logger,
	}

	server.setupRoutes()

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Application info
	s.app.Get("/api/app/info", s.handleAppInfo)
	s.app.Get("/api/app/version", s.handleVersion)

	// Configuration
	s.app.Get("/api/config", s.handleGetConfig)
	s.app.Post("/api/config", s.handleUpdateConfig)

	// Theme
	s.app.Get("/api/theme", s.handleGetTheme)
	s.app.Post("/api/theme", s.handleSetTheme)

	// Window (no window exists in web mode)
	s.app.Get("/api/window/always-on-top", s.handleGetAlwaysOnTop)
	s.app.Post("/api/window/always-on-top", s.handleSetAlwaysOnTop)

	// Audio
	s.app.Get("/api/audio/enabled", s.handleGetAudioEnabled)
	s.app.Post("/api/audio/enabled", s.handleSetAudioEnabled)
	s.app.Get("/api/audio/url", s.handleGetAudioURL)
	s.app.Post("/api/audio/url", s.handleSetAudioURL)

	// MCP bridge
	s.app.Post("/api/mcp/popup", s.handleMCPPopup)
	s.app.Post("/api/mcp/response", s.handleMCPResponse)

	// Telegram
	s.app.Get("/api/telegram/config", s.handleGetTelegramConfig)
	s.app.Post("/api/telegram/config", s.handleSetTelegramConfig)

	// Everything else is the frontend bundle
	s.app.Use(s.assets.Handler)
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.port)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Web server starting",
		zap.String("local", fmt.Sprintf("http://localhost:%d", s.port)),
		zap.Strings("lan", lanURLs(s.port)),
	)
	return s.app.Listen(s.Addr())
}

// lanURLs lists the server URL on every non-loopback IPv4 address of the host
func lanURLs(port int) []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}

	urls := []string{}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.To4() == nil {
			continue
		}
		urls = append(urls, "http://"+net.JoinHostPort(ip.String(), strconv.Itoa(port)))
	}
	return urls
}

// StartWithContext starts the server and shuts it down when ctx is done
func (s *Server) StartWithContext(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// ShutdownWithTimeout shuts down the server with timeout
func (s *Server) ShutdownWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return s.app.ShutdownWithContext(ctx)
}

// GetApp returns the underlying Fiber app
func (s *Server) GetApp() *fiber.App {
	return s.app
}

// newErrorHandler renders errors as api.ErrorResponse
func newErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := api.MessageInternalError

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			log.Error("Unhandled request error", zap.String("path", c.Path()), zap.Error(err))
		}

		return c.Status(code).JSON(api.NewErrorResponse(message))
	}
}

// parseBody decodes and validates the JSON body into out
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, api.MessageBadRequest+": "+err.Error())
	}
	if err := api.Validate(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

// saved answers a write whose persistence result is err
func saved(c *fiber.Ctx, err error) error {
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, api.MessagePersistFailed)
	}
	return c.JSON(api.OK)
}

func (s *Server) handleAppInfo(c *fiber.Ctx) error {
	return c.JSON(api.AppInfo{
		Name:    constants.AppName,
		Version: s.config.Version,
		Mode:    s.config.Mode,
	})
}

func (s *Server) handleVersion(c *fiber.Ctx) error {
	return c.JSON(api.VersionInfo{Version: s.config.Version})
}

func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	return c.JSON(s.store.Snapshot())
}

func (s *Server) handleUpdateConfig(c *fiber.Ctx) error {
	// Fields absent from the body keep their defaults
	req := api.UpdateConfigRequest{Config: config.Default()}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return saved(c, s.store.Replace(req.Config))
}

func (s *Server) handleGetTheme(c *fiber.Ctx) error {
	return c.JSON(api.ThemePayload{Theme: s.store.Theme()})
}

func (s *Server) handleSetTheme(c *fiber.Ctx) error {
	var req api.ThemePayload
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return saved(c, s.store.SetTheme(req.Theme))
}

func (s *Server) handleGetAlwaysOnTop(c *fiber.Ctx) error {
	return c.JSON(api.AlwaysOnTopPayload{AlwaysOnTop: s.store.AlwaysOnTop()})
}

func (s *Server) handleSetAlwaysOnTop(c *fiber.Ctx) error {
	var req api.AlwaysOnTopPayload
	if err := parseBody(c, &req); err != nil {
		return err
	}
	// Recorded only; there is no window to pin in web mode
	s.store.SetAlwaysOnTop(req.AlwaysOnTop)
	return c.JSON(api.OK)
}

func (s *Server) handleGetAudioEnabled(c *fiber.Ctx) error {
	return c.JSON(api.AudioEnabledPayload{Enabled: s.store.AudioEnabled()})
}

func (s *Server) handleSetAudioEnabled(c *fiber.Ctx) error {
	var req api.AudioEnabledPayload
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return saved(c, s.store.SetAudioEnabled(req.Enabled))
}

func (s *Server) handleGetAudioURL(c *fiber.Ctx) error {
	return c.JSON(api.AudioURLPayload{URL: s.store.AudioURL()})
}

func (s *Server) handleSetAudioURL(c *fiber.Ctx) error {
	var req api.AudioURLPayload
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return saved(c, s.store.SetAudioURL(req.URL))
}

func (s *Server) handleMCPPopup(c *fiber.Ctx) error {
	var req mcp.PopupRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	s.logger.Info("Received MCP popup request", zap.String("id", req.ID), zap.String("message", req.Message))

	resp, err := s.decider.Decide(c.UserContext(), req)
	if err != nil {
		return errors.Wrap(err, "failed to decide popup request")
	}
	return c.JSON(resp)
}

func (s *Server) handleMCPResponse(c *fiber.Ctx) error {
	body := c.Body()
	if !json.Valid(body) {
		return fiber.NewError(fiber.StatusBadRequest, api.MessageBadRequest)
	}

	// Copy: fasthttp reuses the request buffer once the handler returns
	payload := make(json.RawMessage, len(body))
	copy(payload, body)

	if err := s.sink.Deliver(c.UserContext(), payload); err != nil {
		return errors.Wrap(err, "failed to deliver MCP response")
	}
	return c.JSON(api.OK)
}

func (s *Server) handleGetTelegramConfig(c *fiber.Ctx) error {
	return c.JSON(s.store.Telegram())
}

func (s *Server) handleSetTelegramConfig(c *fiber.Ctx) error {
	req := api.TelegramConfigRequest{Config: config.DefaultTelegram()}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return saved(c, s.store.SetTelegram(req.Config))
}
