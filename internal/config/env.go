package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"

	"github.com/professor93/cunzhi/pkg/constants"
)

// Environment keys, i.e. CUNZHI_* variables without the prefix, lower-cased
const (
	EnvMode      = "mode"
	EnvWebPort   = "web_port"
	EnvConfigDir = "config_dir"
	EnvStore     = "store"
	EnvLogLevel  = "log_level"
)

// Environment is the process environment relevant to cunzhi, read once at
// start-up.
type Environment struct {
	k *koanf.Koanf
}

// LoadEnvironment reads the CUNZHI_* variables of the current process
func LoadEnvironment() (*Environment, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider(constants.EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, constants.EnvPrefix))
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read environment")
	}
	return &Environment{k: k}, nil
}

// NewEnvironment builds an Environment from explicit key/value pairs
func NewEnvironment(values map[string]string) *Environment {
	k := koanf.New(".")
	for key, value := range values {
		// Set only fails on a nil koanf instance
		_ = k.Set(key, value)
	}
	return &Environment{k: k}
}

// Lookup returns the value for key and whether it was set at all
func (e *Environment) Lookup(key string) (string, bool) {
	if e == nil || !e.k.Exists(key) {
		return "", false
	}
	return e.k.String(key), true
}

// Get returns the value for key, or def when it is unset or empty
func (e *Environment) Get(key, def string) string {
	if v, ok := e.Lookup(key); ok && v != "" {
		return v
	}
	return def
}

// Dir returns the configuration directory: CUNZHI_CONFIG_DIR when set,
// otherwise <user config dir>/cunzhi.
func (e *Environment) Dir() (string, error) {
	if dir := e.Get(EnvConfigDir, ""); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to locate user config directory")
	}
	return filepath.Join(base, constants.ConfigDirName), nil
}
