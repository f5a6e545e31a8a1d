package service

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kardianos/service"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/professor93/cunzhi/pkg/constants"
)

// Program implements the service.Interface from kardianos/service. It hosts
// one long-running task (the web server) and stops it on a signal or a
// service-manager request.
type Program struct {
	ctx    context.Context
	cancel context.CancelFunc

	// Lifecycle callbacks
	onStart func(ctx context.Context) error
	onStop  func() error

	stopTimeout time.Duration

	// Service instance, nil when no service manager was detected
	svc service.Service
	// interactive reports whether no service manager launched the process
	interactive func() bool

	logger *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	finished  chan struct{}
	failed    chan struct{}

	mu      sync.Mutex
	runErr  error
	stopErr error
}

// Config holds service configuration
type Config struct {
	Name        string
	DisplayName string
	Description string

	// OnStart blocks for as long as the task runs. A non-nil return before
	// Stop is a failure and ends Run with that error.
	OnStart func(ctx context.Context) error
	OnStop  func() error

	// StopTimeout bounds how long Stop waits for OnStart to return
	StopTimeout time.Duration

	Logger *zap.Logger
}

// New creates a new service program
func New(cfg *Config) (*Program, error) {
	if cfg.Name == "" {
		cfg.Name = constants.ServiceName
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = constants.ServiceDisplayName
	}
	if cfg.Description == "" {
		cfg.Description = constants.ServiceDescription
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = constants.DefaultShutdownTimeout * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Program{
		ctx:         ctx,
		cancel:      cancel,
		onStart:     cfg.OnStart,
		onStop:      cfg.OnStop,
		stopTimeout: cfg.StopTimeout,
		logger:      cfg.Logger,
		interactive: service.Interactive,
		finished:    make(chan struct{}),
		failed:      make(chan struct{}),
	}

	svcConfig := &service.Config{
		Name:        cfg.Name,
		DisplayName: cfg.DisplayName,
		Description: cfg.Description,
	}

	svc, err := service.New(p, svcConfig)
	switch {
	case errors.Is(err, service.ErrNoServiceSystemDetected):
		p.logger.Debug("No service manager detected, running in the foreground")
	case err != nil:
		cancel()
		return nil, errors.Wrap(err, "failed to create service")
	default:
		p.svc = svc
	}

	return p, nil
}

// Start implements service.Interface. It launches OnStart once and returns
// immediately.
func (p *Program) Start(s service.Service) error {
	p.startOnce.Do(func() {
		p.logger.Info("Service starting...")

		go func() {
			defer close(p.finished)
			if p.onStart == nil {
				<-p.ctx.Done()
				return
			}
			if err := p.onStart(p.ctx); err != nil && p.ctx.Err() == nil {
				p.logger.Error("Service start callback failed", zap.Error(err))
				p.mu.Lock()
				p.runErr = err
				p.mu.Unlock()
				close(p.failed)
			}
		}()
	})
	return nil
}

// Stop implements service.Interface. It cancels the context, runs OnStop
// and waits up to the stop timeout for OnStart to return.
func (p *Program) Stop(s service.Service) error {
	p.stopOnce.Do(func() {
		p.logger.Info("Service stopping...")

		p.cancel()

		if p.onStop != nil {
			if err := p.onStop(); err != nil {
				p.logger.Error("Service stop callback failed", zap.Error(err))
				p.mu.Lock()
				p.stopErr = err
				p.mu.Unlock()
			}
		}

		// Never started: nothing to wait for
		p.startOnce.Do(func() { close(p.finished) })

		select {
		case <-p.finished:
		case <-time.After(p.stopTimeout):
			p.logger.Warn("Service did not stop in time", zap.Duration("timeout", p.stopTimeout))
		}

		p.logger.Info("Service stopped")
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopErr
}

// Run starts the program and blocks until it is stopped or OnStart fails.
// Under a service manager the manager drives Start and Stop; in the
// foreground SIGINT and SIGTERM stop it.
func (p *Program) Run() error {
	if p.svc != nil && !p.interactive() {
		return p.runManaged()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return p.RunContext(ctx)
}

// runManaged hands control to the service manager. A failing OnStart ends
// Run directly: the manager may not know this process at all.
func (p *Program) runManaged() error {
	done := make(chan error, 1)
	go func() {
		done <- p.svc.Run()
	}()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, "service run failed")
		}
		return p.Err()
	case <-p.failed:
		_ = p.Stop(p.svc)
		return p.Err()
	}
}

// RunContext runs the program in the foreground until ctx is done or
// OnStart fails.
func (p *Program) RunContext(ctx context.Context) error {
	if err := p.Start(p.svc); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		p.logger.Info("Received shutdown signal")
	case <-p.failed:
	}

	stopErr := p.Stop(p.svc)
	if err := p.Err(); err != nil {
		return err
	}
	return stopErr
}

// Err returns the OnStart failure, if any
func (p *Program) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runErr
}

// Context returns the service context
func (p *Program) Context() context.Context {
	return p.ctx
}
