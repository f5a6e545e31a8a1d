package config

import (
	"github.com/professor93/cunzhi/pkg/constants"
)

// AppConfig is the persisted application configuration. It holds only value
// fields, so copying an AppConfig copies all of it.
type AppConfig struct {
	UI       UIConfig       `json:"ui_config"`
	Audio    AudioConfig    `json:"audio_config"`
	Telegram TelegramConfig `json:"telegram_config"`
}

// UIConfig holds window and appearance preferences
type UIConfig struct {
	Theme       string `json:"theme" validate:"required,max=64"`
	AlwaysOnTop bool   `json:"always_on_top"`
}

// AudioConfig holds notification sound preferences
type AudioConfig struct {
	NotificationEnabled bool   `json:"notification_enabled"`
	CustomURL           string `json:"custom_url" validate:"max=2048"`
}

// TelegramConfig configures the Telegram channel used to answer popups
// without the desktop UI.
type TelegramConfig struct {
	Enabled           bool   `json:"enabled"`
	BotToken          string `json:"bot_token" validate:"required_if=Enabled true"`
	ChatID            string `json:"chat_id" validate:"required_if=Enabled true"`
	HideFrontendPopup bool   `json:"hide_frontend_popup"`
	APIBaseURL        string `json:"api_base_url" validate:"omitempty,url"`
}

// Headless reports whether popups should go to Telegram only. Missing
// credentials (e.g. a token that could not be unsealed) keep the popup
// visible.
func (t TelegramConfig) Headless() bool {
	return t.Enabled && t.HideFrontendPopup && t.BotToken != "" && t.ChatID != ""
}

// Default returns the configuration used when nothing is persisted yet
func Default() AppConfig {
	return AppConfig{
		UI: UIConfig{
			Theme:       constants.DefaultTheme,
			AlwaysOnTop: constants.DefaultAlwaysOnTop,
		},
		Audio: AudioConfig{
			NotificationEnabled: constants.DefaultAudioEnabled,
		},
		Telegram: DefaultTelegram(),
	}
}

// DefaultTelegram returns a disabled Telegram configuration
func DefaultTelegram() TelegramConfig {
	return TelegramConfig{
		APIBaseURL: constants.DefaultTelegramAPI,
	}
}
