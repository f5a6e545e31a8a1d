// Package api holds the JSON bodies of the control server.
package api

import (
	"github.com/professor93/cunzhi/internal/config"
)

// SuccessResponse acknowledges a write
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is rendered by the server's error handler
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Common response values
var (
	OK = SuccessResponse{Success: true}
)

// NewErrorResponse creates an error body
func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Success: false, Error: message}
}

// AppInfo describes the running binary
type AppInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Mode    string `json:"mode"`
}

// VersionInfo carries the version only
type VersionInfo struct {
	Version string `json:"version"`
}

// UpdateConfigRequest replaces the whole configuration
type UpdateConfigRequest struct {
	Config config.AppConfig `json:"config"`
}

// ThemePayload is both the GET response and the POST body of /api/theme
type ThemePayload struct {
	Theme string `json:"theme" validate:"required,max=64"`
}

// AlwaysOnTopPayload is used by /api/window/always-on-top
type AlwaysOnTopPayload struct {
	AlwaysOnTop bool `json:"always_on_top"`
}

// AudioEnabledPayload is used by /api/audio/enabled
type AudioEnabledPayload struct {
	Enabled bool `json:"enabled"`
}

// AudioURLPayload is used by /api/audio/url
type AudioURLPayload struct {
	URL string `json:"url" validate:"max=2048"`
}

// TelegramConfigRequest replaces the Telegram configuration
type TelegramConfigRequest struct {
	Config config.TelegramConfig `json:"config"`
}

// Error messages
const (
	MessageBadRequest    = "Invalid request body"
	MessagePersistFailed = "Failed to save configuration"
	MessageInternalError = "Internal server error"
)
