package config

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/professor93/cunzhi/internal/database"
	"github.com/professor93/cunzhi/internal/security"
	"github.com/professor93/cunzhi/pkg/constants"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenCodec selects the durable backend named by CUNZHI_STORE ("json" by
// default, or "sqlite") inside dir. The returned closer releases the backend.
func OpenCodec(dir, backend string, sealer *security.Sealer, logger *zap.Logger) (Codec, io.Closer, error) {
	switch strings.ToLower(backend) {
	case "", constants.DefaultStoreBackend:
		return NewFileCodec(filepath.Join(dir, constants.ConfigFileName), sealer, logger), nopCloser{}, nil
	case constants.SQLiteStoreBackend:
		db, err := database.New(&database.Config{DataDir: dir, Sealer: sealer})
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to open settings database")
		}
		return NewSQLiteCodec(db), db, nil
	default:
		return nil, nil, errors.Errorf("unknown store backend %q, supported values: json, sqlite", backend)
	}
}
