package mcp

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrUnknownRequest is returned when a response names no pending request
var ErrUnknownRequest = errors.New("no pending popup request with this id")

// DecisionProvider produces the user's decision for a popup request. The
// surrounding mode picks the implementation.
type DecisionProvider interface {
	Decide(ctx context.Context, req PopupRequest) (Response, error)
}

// AutoContinue answers every request immediately with a continue decision.
// It serves the web topology, which has no interactive popup.
type AutoContinue struct {
	Source string
}

// Decide implements DecisionProvider
func (a AutoContinue) Decide(_ context.Context, req PopupRequest) (Response, error) {
	req.EnsureID()
	source := a.Source
	if source == "" {
		source = SourceWeb
	}
	return NewContinueResponse(req.ID, source), nil
}

// Interactive hands each request to a presenter and waits for the matching
// Submit. It serves the desktop topology.
type Interactive struct {
	present func(PopupRequest) error

	mu      sync.Mutex
	pending map[string]chan Response
}

// NewInteractive creates a provider that shows requests through present
func NewInteractive(present func(PopupRequest) error) *Interactive {
	return &Interactive{
		present: present,
		pending: make(map[string]chan Response),
	}
}

// Decide implements DecisionProvider. It blocks until Submit delivers a
// response for req.ID or ctx is done.
func (p *Interactive) Decide(ctx context.Context, req PopupRequest) (Response, error) {
	req.EnsureID()

	ch := make(chan Response, 1)
	p.mu.Lock()
	p.pending[req.ID] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, req.ID)
		p.mu.Unlock()
	}()

	if p.present != nil {
		if err := p.present(req); err != nil {
			return Response{}, errors.Wrap(err, "failed to present popup")
		}
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Submit delivers resp to the request named by resp.Metadata.RequestID
func (p *Interactive) Submit(resp Response) error {
	p.mu.Lock()
	ch, ok := p.pending[resp.Metadata.RequestID]
	if ok {
		delete(p.pending, resp.Metadata.RequestID)
	}
	p.mu.Unlock()

	if !ok {
		return errors.Wrap(ErrUnknownRequest, resp.Metadata.RequestID)
	}
	ch <- resp
	return nil
}

// Pending returns the number of requests awaiting a response
func (p *Interactive) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// ResponseSink receives response payloads posted by a client
type ResponseSink interface {
	Deliver(ctx context.Context, payload json.RawMessage) error
}

// LogSink only logs delivered payloads. The web topology has no channel back
// to the process that raised the popup.
type LogSink struct {
	Logger *zap.Logger
}

// Deliver implements ResponseSink
func (s LogSink) Deliver(_ context.Context, payload json.RawMessage) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Received MCP response", zap.ByteString("payload", payload))
	return nil
}
