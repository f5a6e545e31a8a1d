// Package logging builds the process-wide zap logger.
//
// Standard output is never used: in request mode it carries the MCP
// response. Logs go to standard error and, when a directory is given, to a
// file per calendar day inside it.
package logging

import (
	"fmt"
	"io"
	"os"
		"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/professor93/cunzhi/pkg/constants"
)

// Options configures New
type Options struct {
	// Level is a zap level name; empty means info
	Level string
	// Dir receives the daily log file; empty disables file output
	Dir string
	// Debug forces debug level and development mode
	Debug bool
	// Output replaces standard error, mostly for tests
	Output io.Writer
	// Now replaces the clock that picks the daily file, mostly for tests
	Now func() time.Time
}

// Logger is a zap logger plus the log file it owns
type Logger struct {
	*zap.Logger
	file *dailyFile
}

// New initializes the zap logger
func New(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid log level %q", opts.Level)
		}
		level = parsed
	}
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(config.EncoderConfig)

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	sinks := []zapcore.WriteSyncer{zapcore.Lock(zapcore.AddSync(out))}

	var file *dailyFile
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create log directory")
		}
		file = newDailyFile(opts.Dir, opts.Now)
		sinks = append(sinks, file)
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), zap.NewAtomicLevelAt(level))

	zapOpts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if opts.Debug {
		zapOpts = append(zapOpts, zap.Development())
	}

	return &Logger{Logger: zap.New(core, zapOpts...), file: file}, nil
}

// FileName is the daily log file name for t
func FileName(t time.Time) string {
	return fmt.Sprintf("%s-%s.log", constants.AppName, t.Format("2006-01-02"))
}

// Close flushes the logger and closes its file
func (l *Logger) Close() error {
	_ = l.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
