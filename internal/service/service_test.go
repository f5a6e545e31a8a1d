package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kardianos/service"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	cfg := &Config{
		Name:        "TestService",
		DisplayName: "Test Service",
		Description: "Test service description",
	}

	program, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	if program == nil {
		t.Fatal("Program is nil")
	}

	if program.ctx == nil {
		t.Error("Context is nil")
	}

	if program.logger == nil {
		t.Error("Logger is nil")
	}
}

func TestNew_DefaultConfig(t *testing.T) {
	cfg := &Config{}

	program, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create service with default config: %v", err)
	}

	if cfg.Name != "cunzhi-web" {
		t.Errorf("Expected default name, got %q", cfg.Name)
	}
	if cfg.StopTimeout != 5*time.Second {
		t.Errorf("Expected 5s stop timeout, got %v", cfg.StopTimeout)
	}
	if program.stopTimeout != cfg.StopTimeout {
		t.Error("Stop timeout not applied to program")
	}
}

func TestProgram_Lifecycle(t *testing.T) {
	var startCalled, stopCalled atomic.Bool

	cfg := &Config{
		Name:        "TestLifecycleService",
		DisplayName: "Test Lifecycle Service",
		OnStart: func(ctx context.Context) error {
			startCalled.Store(true)
			<-ctx.Done()
			return nil
		},
		OnStop: func() error {
			stopCalled.Store(true)
			return nil
		},
	}

	program, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	if err := program.Start(program.svc); err != nil {
		t.Errorf("Start failed: %v", err)
	}

	// Give time for start callback to execute
	time.Sleep(100 * time.Millisecond)

	if !startCalled.Load() {
		t.Error("OnStart callback was not called")
	}

	if err := program.Stop(program.svc); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	if !stopCalled.Load() {
		t.Error("OnStop callback was not called")
	}

	select {
	case <-program.finished:
	default:
		t.Error("OnStart did not return after Stop")
	}
}

func TestProgram_StopWithoutStart(t *testing.T) {
	program, err := New(&Config{Name: "TestStopOnlyService", StopTimeout: time.Second})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	begin := time.Now()
	if err := program.Stop(program.svc); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if time.Since(begin) >= time.Second {
		t.Error("Stop waited for a task that never started")
	}
}

func TestProgram_StopIsIdempotent(t *testing.T) {
	var stops atomic.Int32

	program, err := New(&Config{
		Name:   "TestIdempotentService",
		OnStop: func() error { stops.Add(1); return nil },
	})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	program.Start(program.svc)
	program.Stop(program.svc)
	program.Stop(program.svc)

	if stops.Load() != 1 {
		t.Errorf("Expected OnStop once, got %d", stops.Load())
	}
}

func TestProgram_StopError(t *testing.T) {
	expectedErr := errors.New("stop error")

	program, err := New(&Config{
		Name:   "TestStopErrorService",
		OnStop: func() error { return expectedErr },
	})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	if err := program.Stop(program.svc); !errors.Is(err, expectedErr) {
		t.Errorf("Expected stop error, got %v", err)
	}
}

func TestProgram_RunContext_Cancelled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	program, err := New(&Config{
		Name: "TestRunService",
		OnStart: func(ctx context.Context) error {
			<-ctx.Done()
			return errors.New("server closed")
		},
		Logger: zap.New(core),
	})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- program.RunContext(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		// Errors after cancellation are part of shutting down
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunContext did not return after cancel")
	}

	if logs.FilterMessage("Received shutdown signal").Len() != 1 {
		t.Error("Shutdown was not logged")
	}
}

func TestProgram_RunContext_StartFailure(t *testing.T) {
	expectedErr := errors.New("address already in use")
	var stopCalled atomic.Bool

	program, err := New(&Config{
		Name: "TestFailService",
		OnStart: func(ctx context.Context) error {
			return expectedErr
		},
		OnStop: func() error {
			stopCalled.Store(true)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- program.RunContext(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, expectedErr) {
			t.Errorf("Expected start error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunContext did not return after a start failure")
	}

	if !stopCalled.Load() {
		t.Error("OnStop was not called after a start failure")
	}
	if !errors.Is(program.Err(), expectedErr) {
		t.Errorf("Err() = %v", program.Err())
	}
}

func TestProgram_StopTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	program, err := New(&Config{
		Name:        "TestSlowService",
		StopTimeout: 100 * time.Millisecond,
		OnStart: func(ctx context.Context) error {
			<-release
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	program.Start(program.svc)

	begin := time.Now()
	program.Stop(program.svc)
	if elapsed := time.Since(begin); elapsed > 2*time.Second {
		t.Errorf("Stop ignored its timeout: %v", elapsed)
	}
}

func TestProgram_Context(t *testing.T) {
	program, err := New(&Config{Name: "TestContextService"})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	ctx := program.Context()
	if ctx == nil {
		t.Fatal("Context is nil")
	}

	select {
	case <-ctx.Done():
		t.Error("Context is already cancelled")
	default:
	}

	program.Stop(program.svc)

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Error("Context was not cancelled after stop")
	}
}

func BenchmarkNew(b *testing.B) {
	cfg := &Config{
		Name: "BenchService",
	}

	for i := 0; i < b.N; i++ {
		_, _ = New(cfg)
	}
}

// managedService stands in for a service manager: Run starts the program and
// blocks until release is closed, then stops it.
type managedService struct {
	service.Service
	program *Program
	release chan struct{}
}

func (m *managedService) Run() error {
	if err := m.program.Start(m); err != nil {
		return err
	}
	<-m.release
	return m.program.Stop(m)
}

func newManaged(t *testing.T, cfg *Config) (*Program, *managedService) {
	t.Helper()

	program, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	svc := &managedService{program: program, release: make(chan struct{})}
	program.svc = svc
	program.interactive = func() bool { return false }
	return program, svc
}

func TestProgram_Run_ManagedStartFailure(t *testing.T) {
	expectedErr := errors.New("listen tcp :3000: address already in use")

	program, svc := newManaged(t, &Config{
		Name: "TestManagedFailService",
		OnStart: func(ctx context.Context) error {
			return expectedErr
		},
	})
	defer close(svc.release)

	done := make(chan error, 1)
	go func() { done <- program.Run() }()

	select {
	case err := <-done:
		if !errors.Is(err, expectedErr) {
			t.Errorf("Expected start error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after a start failure under a service manager")
	}
}

func TestProgram_Run_ManagedStop(t *testing.T) {
	var stopCalled atomic.Bool

	program, svc := newManaged(t, &Config{
		Name: "TestManagedStopService",
		OnStart: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
		OnStop: func() error {
			stopCalled.Store(true)
			return nil
		},
	})

	done := make(chan error, 1)
	go func() { done <- program.Run() }()

	time.Sleep(50 * time.Millisecond)
	close(svc.release)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the manager stopped it")
	}

	if !stopCalled.Load() {
		t.Error("OnStop was not called")
	}
}
