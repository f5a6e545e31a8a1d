// Package desktop runs the wails window, the tray icon and the UI-backed
// popup flow.
package desktop

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/professor93/cunzhi/internal/api"
	"github.com/professor93/cunzhi/internal/config"
	"github.com/professor93/cunzhi/internal/mcp"
	"github.com/professor93/cunzhi/pkg/constants"
)

// EventRequest carries a popup request to the frontend
const EventRequest = "mcp-request"

// App is bound into the wails frontend. Its exported methods mirror the
// REST surface of the control server.
type App struct {
	store   *config.Store
	version string
	logger  *zap.Logger
	out     io.Writer

	decider *mcp.Interactive
	request *mcp.PopupRequest

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	window  Window
	current *mcp.PopupRequest
	once    sync.Once
	done    chan error
}

// NewApp creates the bound application. With request set, the window answers
// that request and quits; the response is written to out.
func NewApp(store *config.Store, version string, request *mcp.PopupRequest, out io.Writer, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		store:   store,
		version: version,
		logger:  logger,
		out:     out,
		request: request,
		done:    make(chan error, 1),
	}
	a.decider = mcp.NewInteractive(a.present)
	return a
}

// startup is the wails OnStartup hook
func (a *App) startup(ctx context.Context) {
	a.attach(ctx, wailsWindow{ctx: ctx})
}

// attach binds the App to a running window
func (a *App) attach(ctx context.Context, window Window) {
	a.mu.Lock()
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.window = window
	a.mu.Unlock()

	window.SetAlwaysOnTop(a.store.AlwaysOnTop())
}

// domReady is the wails OnDomReady hook. A pending request is only shown
// once the frontend can receive events.
func (a *App) domReady(ctx context.Context) {
	a.serveRequest()
}

// shutdown is the wails OnShutdown hook
func (a *App) shutdown(ctx context.Context) {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// serveRequest decides the startup request in the background, writes the
// response and quits the window.
func (a *App) serveRequest() {
	if a.request == nil {
		return
	}

	a.once.Do(func() {
		a.mu.Lock()
		ctx := a.ctx
		a.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}

		go func() {
			err := a.answer(ctx, *a.request)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("Popup request failed", zap.Error(err))
			}
			a.done <- err
			if w := a.win(); w != nil {
				w.Quit()
			}
		}()
	})
}

func (a *App) answer(ctx context.Context, req mcp.PopupRequest) error {
	resp, err := a.decider.Decide(ctx, req)
	if err != nil {
		return err
	}
	return mcp.WriteResponse(a.out, resp)
}

// present shows req in the window
func (a *App) present(req mcp.PopupRequest) error {
	a.mu.Lock()
	a.current = &req
	window := a.window
	a.mu.Unlock()

	if window == nil {
		return errors.New("window is not running")
	}
	window.Show()
	window.Emit(EventRequest, req)
	return nil
}

func (a *App) win() Window {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.window
}

// result reports the outcome of the startup request
func (a *App) result() <-chan error {
	return a.done
}

// GetAppInfo returns name, version and mode
func (a *App) GetAppInfo() api.AppInfo {
	return api.AppInfo{
		Name:    constants.AppName,
		Version: a.version,
		Mode:    constants.DesktopModeName,
	}
}

// GetConfig returns the whole configuration
func (a *App) GetConfig() config.AppConfig {
	return a.store.Snapshot()
}

// UpdateConfig replaces the whole configuration
func (a *App) UpdateConfig(cfg config.AppConfig) error {
	if err := api.Validate(cfg); err != nil {
		return err
	}
	if err := a.store.Replace(cfg); err != nil {
		return err
	}
	if w := a.win(); w != nil {
		w.SetAlwaysOnTop(cfg.UI.AlwaysOnTop)
	}
	return nil
}

func (a *App) GetTheme() string {
	return a.store.Theme()
}

func (a *App) SetTheme(theme string) error {
	if err := api.Validate(api.ThemePayload{Theme: theme}); err != nil {
		return err
	}
	return a.store.SetTheme(theme)
}

func (a *App) GetAlwaysOnTop() bool {
	return a.store.AlwaysOnTop()
}

// SetAlwaysOnTop pins the window and persists the choice
func (a *App) SetAlwaysOnTop(onTop bool) error {
	if w := a.win(); w != nil {
		w.SetAlwaysOnTop(onTop)
	}
	return a.store.Update(func(c *config.AppConfig) {
		c.UI.AlwaysOnTop = onTop
	})
}

func (a *App) GetAudioNotificationEnabled() bool {
	return a.store.AudioEnabled()
}

func (a *App) SetAudioNotificationEnabled(enabled bool) error {
	return a.store.SetAudioEnabled(enabled)
}

func (a *App) GetAudioURL() string {
	return a.store.AudioURL()
}

func (a *App) SetAudioURL(url string) error {
	if err := api.Validate(api.AudioURLPayload{URL: url}); err != nil {
		return err
	}
	return a.store.SetAudioURL(url)
}

func (a *App) GetTelegramConfig() config.TelegramConfig {
	return a.store.Telegram()
}

func (a *App) SetTelegramConfig(tg config.TelegramConfig) error {
	if err := api.Validate(tg); err != nil {
		return err
	}
	return a.store.SetTelegram(tg)
}

// GetCurrentRequest returns the request on screen, or nil
func (a *App) GetCurrentRequest() *mcp.PopupRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	req := *a.current
	return &req
}

// SubmitPopupResponse answers the request on screen
func (a *App) SubmitPopupResponse(resp mcp.Response) error {
	if resp.Metadata.Source == "" {
		resp.Metadata.Source = mcp.SourcePopup
	}
	if resp.Metadata.RequestID == "" {
		if cur := a.GetCurrentRequest(); cur != nil {
			resp.Metadata.RequestID = cur.ID
		}
	}
	if err := a.decider.Submit(resp); err != nil {
		return err
	}

	a.mu.Lock()
	a.current = nil
	a.mu.Unlock()
	return nil
}
