package config

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Codec reads and writes the durable copy of AppConfig. Load returns the
// defaults with a nil error when nothing has been persisted yet.
type Codec interface {
	Load() (AppConfig, error)
	Save(AppConfig) error
}

// Store is the single shared AppConfig. Every read and write goes through
// one mutex, so no caller observes a partially applied update.
//
// Writes are persisted while the lock is held. When persisting fails the
// in-memory value keeps the update and the error is returned; the durable
// copy catches up on the next successful write.
type Store struct {
	mu     sync.Mutex
	cfg    AppConfig
	codec  Codec
	logger *zap.Logger
}

// NewStore loads the configuration through codec. A load failure is logged
// and replaced by the defaults.
func NewStore(codec Codec, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := codec.Load()
	if err != nil {
		logger.Warn("Failed to load configuration, using defaults", zap.Error(err))
		cfg = Default()
	}

	return &Store{
		cfg:    cfg,
		codec:  codec,
		logger: logger,
	}
}

// Snapshot returns a copy of the current configuration
func (s *Store) Snapshot() AppConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Replace swaps the whole configuration and persists it
func (s *Store) Replace(cfg AppConfig) error {
	return s.Update(func(c *AppConfig) {
		*c = cfg
	})
}

// Update applies fn and persists the result
func (s *Store) Update(fn func(*AppConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.cfg)

	if err := s.codec.Save(s.cfg); err != nil {
		s.logger.Error("Failed to persist configuration", zap.Error(err))
		return errors.Wrap(err, "failed to persist configuration")
	}
	return nil
}

// UpdateInMemory applies fn without touching the durable copy
func (s *Store) UpdateInMemory(fn func(*AppConfig)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cfg)
}

// Theme returns the UI theme identifier
func (s *Store) Theme() string {
	return s.Snapshot().UI.Theme
}

// SetTheme sets and persists the UI theme
func (s *Store) SetTheme(theme string) error {
	return s.Update(func(c *AppConfig) {
		c.UI.Theme = theme
	})
}

// AlwaysOnTop returns the window pinning preference
func (s *Store) AlwaysOnTop() bool {
	return s.Snapshot().UI.AlwaysOnTop
}

// SetAlwaysOnTop records the preference in memory only. There is no window
// to apply it to in server mode; the desktop shell persists it itself.
func (s *Store) SetAlwaysOnTop(onTop bool) {
	s.UpdateInMemory(func(c *AppConfig) {
		c.UI.AlwaysOnTop = onTop
	})
}

// AudioEnabled returns whether notification sounds are enabled
func (s *Store) AudioEnabled() bool {
	return s.Snapshot().Audio.NotificationEnabled
}

// SetAudioEnabled sets and persists the notification sound flag
func (s *Store) SetAudioEnabled(enabled bool) error {
	return s.Update(func(c *AppConfig) {
		c.Audio.NotificationEnabled = enabled
	})
}

// AudioURL returns the custom notification sound URL
func (s *Store) AudioURL() string {
	return s.Snapshot().Audio.CustomURL
}

// SetAudioURL sets and persists the custom notification sound URL
func (s *Store) SetAudioURL(url string) error {
	return s.Update(func(c *AppConfig) {
		c.Audio.CustomURL = url
	})
}

// Telegram returns the Telegram sub-configuration
func (s *Store) Telegram() TelegramConfig {
	return s.Snapshot().Telegram
}

// SetTelegram replaces and persists the Telegram sub-configuration
func (s *Store) SetTelegram(tg TelegramConfig) error {
	return s.Update(func(c *AppConfig) {
		c.Telegram = tg
	})
}

// LoadTelegram reads only the Telegram sub-configuration from codec,
// without building a Store.
func LoadTelegram(codec Codec) (TelegramConfig, error) {
	cfg, err := codec.Load()
	if err != nil {
		return TelegramConfig{}, err
	}
	return cfg.Telegram, nil
}
