package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	koanfjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/professor93/cunzhi/internal/security"
)

// FileCodec stores AppConfig as a JSON file. The Telegram bot token is sealed
// when a Sealer is configured.
type FileCodec struct {
	path   string
	sealer *security.Sealer
	logger *zap.Logger
}

// NewFileCodec creates a codec for the JSON file at path
func NewFileCodec(path string, sealer *security.Sealer, logger *zap.Logger) *FileCodec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileCodec{
		path:   path,
		sealer: sealer,
		logger: logger,
	}
}

// Path returns the configuration file path
func (c *FileCodec) Path() string {
	return c.path
}

// Load reads the file over the defaults, so fields missing from the file keep
// their default values.
func (c *FileCodec) Load() (AppConfig, error) {
	cfg := Default()

	if _, err := os.Stat(c.path); os.IsNotExist(err) {
		return cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(c.path), koanfjson.Parser()); err != nil {
		return AppConfig{}, errors.Wrapf(err, "failed to read config file %s", c.path)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return AppConfig{}, errors.Wrap(err, "failed to decode config")
	}

	return openSecrets(cfg, c.sealer, c.logger), nil
}

// Save writes the file atomically (temp file + rename)
func (c *FileCodec) Save(cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	sealed, err := sealSecrets(cfg, c.sealer)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	tempPath := c.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write temp config file")
	}

	if err := os.Rename(tempPath, c.path); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(err, "failed to rename config file")
	}

	return nil
}

func sealSecrets(cfg AppConfig, sealer *security.Sealer) (AppConfig, error) {
	if sealer == nil {
		return cfg, nil
	}
	token, err := sealer.SealString(cfg.Telegram.BotToken)
	if err != nil {
		return AppConfig{}, errors.Wrap(err, "failed to seal bot token")
	}
	cfg.Telegram.BotToken = token
	return cfg, nil
}

// openSecrets unseals the bot token. A token sealed on another machine cannot
// be recovered; it is dropped so the rest of the configuration still loads.
func openSecrets(cfg AppConfig, sealer *security.Sealer, logger *zap.Logger) AppConfig {
	if !security.IsSealed(cfg.Telegram.BotToken) {
		return cfg
	}
	if sealer == nil {
		logger.Warn("Bot token is sealed but no sealer is configured, dropping it")
		cfg.Telegram.BotToken = ""
		return cfg
	}
	token, err := sealer.OpenString(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn("Failed to unseal bot token, dropping it", zap.Error(err))
		token = ""
	}
	cfg.Telegram.BotToken = token
	return cfg
}
