package mode

import (
	"go.uber.org/zap"

	"github.com/professor93/cunzhi/internal/config"
)

// RequestRoute is how an automated request gets answered
type RequestRoute int

const (
	// RouteUI shows the desktop popup
	RouteUI RequestRoute = iota
	// RouteHeadless answers over Telegram without any UI
	RouteHeadless
)

func (r RequestRoute) String() string {
	if r == RouteHeadless {
		return "headless"
	}
	return "ui"
}

// SelectRequestRoute picks headless handling only when the Telegram
// configuration loads and has both enabled and hide_frontend_popup set.
// Any load failure falls back to the visible UI.
func SelectRequestRoute(load func() (config.TelegramConfig, error), logger *zap.Logger) (RequestRoute, config.TelegramConfig) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tg, err := load()
	if err != nil {
		logger.Warn("Failed to load Telegram configuration, using the desktop popup", zap.Error(err))
		return RouteUI, config.TelegramConfig{}
	}

	if tg.Headless() {
		return RouteHeadless, tg
	}
	return RouteUI, tg
}
