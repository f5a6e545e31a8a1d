package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/professor93/cunzhi/internal/assets"
	"github.com/professor93/cunzhi/internal/config"
	"github.com/professor93/cunzhi/internal/desktop"
	"github.com/professor93/cunzhi/internal/logging"
	"github.com/professor93/cunzhi/internal/mcp"
	"github.com/professor93/cunzhi/internal/mode"
	"github.com/professor93/cunzhi/internal/security"
	"github.com/professor93/cunzhi/internal/server"
	"github.com/professor93/cunzhi/internal/service"
	"github.com/professor93/cunzhi/internal/telegram"
	"github.com/professor93/cunzhi/pkg/constants"
	"github.com/professor93/cunzhi/web"
)

// Version information (set during build)
var (
	version   = "0.1.0"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Application holds the main application state
type Application struct {
	env    *config.Environment
	dir    string
	logger *logging.Logger
	codec  config.Codec
	closer io.Closer
	stdout io.Writer
}

func main() {
	env, err := config.LoadEnvironment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(os.Args[1:], env, os.Stdout, os.Stderr))
}

// run dispatches on the selected mode and returns the exit status
func run(args []string, env *config.Environment, stdout, stderr io.Writer) int {
	m, err := mode.Resolve(args, env)
	if err != nil {
		var usage *mode.UsageError
		if errors.As(err, &usage) {
			fmt.Fprintln(stderr, usage.Message)
			if usage.ShowHelp {
				fmt.Fprintln(stderr)
				mode.PrintHelp(stderr)
			}
			return 1
		}
		fmt.Fprintln(stderr, err)
		return 1
	}

	switch m.Kind {
	case mode.Help:
		mode.PrintHelp(stdout)
		return 0
	case mode.Version:
		mode.PrintVersion(stdout, version)
		return 0
	}

	app, err := NewApplication(env, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize application: %v\n", err)
		return 1
	}
	defer app.Close()

	app.logger.Debug("Mode selected",
		zap.Stringer("mode", m.Kind),
		zap.String("version", version),
		zap.String("build_time", buildTime),
		zap.String("git_commit", gitCommit),
	)

	switch m.Kind {
	case mode.Server:
		err = app.RunServer(m.Port)
	case mode.AutomatedRequest:
		err = app.RunRequest(m.RequestFile)
	default:
		err = app.RunDesktop("")
	}
	if err != nil {
		app.logger.Error("Exiting after failure", zap.Stringer("mode", m.Kind), zap.Error(err))
		return 1
	}
	return 0
}

// NewApplication creates the logger and opens the configuration backend.
// The configuration itself is loaded by the mode that needs it.
func NewApplication(env *config.Environment, stdout, stderr io.Writer) (*Application, error) {
	dir, err := env.Dir()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(env, dir, stderr)
	if err != nil {
		return nil, err
	}

	sealer, err := security.NewHostSealer()
	if err != nil {
		logger.Warn("Machine identity unavailable, secrets are stored unsealed", zap.Error(err))
		sealer = nil
	}

	codec, closer, err := config.OpenCodec(dir, env.Get(config.EnvStore, constants.DefaultStoreBackend), sealer, logger.Logger)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	return &Application{
		env:    env,
		dir:    dir,
		logger: logger,
		codec:  codec,
		closer: closer,
		stdout: stdout,
	}, nil
}

// newLogger writes to stderr and the daily file. A log directory that cannot
// be created only loses the file output.
func newLogger(env *config.Environment, dir string, stderr io.Writer) (*logging.Logger, error) {
	opts := logging.Options{
		Level:  env.Get(config.EnvLogLevel, constants.DefaultLogLevel),
		Dir:    filepath.Join(dir, constants.LogDirName),
		Output: stderr,
	}

	logger, err := logging.New(opts)
	if err == nil {
		return logger, nil
	}

	opts.Dir = ""
	logger, fallbackErr := logging.New(opts)
	if fallbackErr != nil {
		return nil, errors.Wrap(fallbackErr, "failed to initialize logger")
	}
	logger.Warn("Log file disabled", zap.Error(err))
	return logger, nil
}

// Close releases the configuration backend and flushes the logger
func (a *Application) Close() {
	if err := a.closer.Close(); err != nil {
		a.logger.Warn("Failed to close configuration backend", zap.Error(err))
	}
	_ = a.logger.Close()
}

func (a *Application) assets() *assets.Resolver {
	resolver, err := assets.New(web.Dist())
	if err != nil {
		a.logger.Warn("Frontend bundle unavailable", zap.Error(err))
		return assets.Empty()
	}
	return resolver
}

// RunServer runs the control server until SIGINT/SIGTERM or the service
// manager stops it
func (a *Application) RunServer(port int) error {
	store := config.NewStore(a.codec, a.logger.Logger)

	cfg := server.DefaultConfig()
	cfg.Port = port
	cfg.Version = version

	srv, err := server.New(cfg, server.Dependencies{
		Store:   store,
		Decider: mcp.AutoContinue{Source: mcp.SourceWeb},
		Sink:    mcp.LogSink{Logger: a.logger.Logger},
		Assets:  a.assets(),
		Logger:  a.logger.Logger,
	})
	if err != nil {
		return err
	}

	program, err := service.New(&service.Config{
		OnStart: func(ctx context.Context) error {
			return srv.Start()
		},
		OnStop: func() error {
			return srv.ShutdownWithTimeout(constants.DefaultShutdownTimeout * time.Second)
		},
		Logger: a.logger.Logger,
	})
	if err != nil {
		return err
	}

	return program.Run()
}

// RunRequest answers the popup request in file, headless over Telegram when
// configured so, otherwise through the desktop window
func (a *Application) RunRequest(file string) error {
	route, tg := mode.SelectRequestRoute(func() (config.TelegramConfig, error) {
		return config.LoadTelegram(a.codec)
	}, a.logger.Logger)

	a.logger.Info("Handling MCP request", zap.String("file", file), zap.Stringer("route", route))

	if route == mode.RouteHeadless {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := telegram.HandleRequestFile(ctx, file, tg, a.stdout, a.logger.Logger); err != nil {
			return errors.Wrap(err, "headless request failed")
		}
		return nil
	}

	return a.RunDesktop(file)
}

// RunDesktop opens the desktop window, answering requestFile when set
func (a *Application) RunDesktop(requestFile string) error {
	return desktop.Run(desktop.Options{
		Store:       config.NewStore(a.codec, a.logger.Logger),
		Assets:      web.Dist(),
		Version:     version,
		RequestFile: requestFile,
		Out:         a.stdout,
		Logger:      a.logger.Logger,
	})
}
