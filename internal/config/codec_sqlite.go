package config

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/professor93/cunzhi/internal/database"
)

const appConfigKey = "app_config"

// SQLiteCodec stores AppConfig as one JSON row of the settings table. The
// database seals the whole value, so no per-field sealing happens here.
type SQLiteCodec struct {
	db *database.DB
}

// NewSQLiteCodec creates a codec backed by db
func NewSQLiteCodec(db *database.DB) *SQLiteCodec {
	return &SQLiteCodec{db: db}
}

// Load implements Codec
func (c *SQLiteCodec) Load() (AppConfig, error) {
	cfg := Default()

	value, err := c.db.GetSetting(appConfigKey)
	if errors.Is(err, database.ErrSettingNotFound) {
		return cfg, nil
	}
	if err != nil {
		return AppConfig{}, err
	}

	if err := json.Unmarshal([]byte(value), &cfg); err != nil {
		return AppConfig{}, errors.Wrap(err, "failed to decode stored config")
	}
	return cfg, nil
}

// Save implements Codec
func (c *SQLiteCodec) Save(cfg AppConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	return c.db.SetSetting(appConfigKey, string(data))
}
