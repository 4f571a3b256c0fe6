// Package engine implements the autonomous agent conversation loop: repeated
// turns against a model provider, concurrent tool execution, cooperative
// cancellation, and heuristic completion detection.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/nstogner/dispatch/pkg/domain"
	"github.com/nstogner/dispatch/pkg/model"
	"github.com/nstogner/dispatch/pkg/registry"
	"github.com/nstogner/dispatch/pkg/tools"
)

const (
	// DefaultToolTimeout bounds each individual tool call.
	DefaultToolTimeout = 30 * time.Second
	// DefaultStreamCancelWindow is how long a single stream read stays
	// interruptible by cancellation before being awaited unconditionally.
	DefaultStreamCancelWindow = 30 * time.Second
)

// Engine drives conversations. It owns no conversation state itself; the
// registry is the single source of truth, re-read on every turn.
type Engine struct {
	provider   model.Provider
	gateway    tools.Gateway
	registry   *registry.Registry
	classifier Classifier

	toolTimeout        time.Duration
	streamCancelWindow time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithClassifier replaces the default heuristic completion classifier.
func WithClassifier(c Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithToolTimeout overrides the per-call tool timeout.
func WithToolTimeout(d time.Duration) Option {
	return func(e *Engine) { e.toolTimeout = d }
}

// WithStreamCancelWindow overrides the stream read cancellation window.
func WithStreamCancelWindow(d time.Duration) Option {
	return func(e *Engine) { e.streamCancelWindow = d }
}

// New creates an Engine.
func New(provider model.Provider, gateway tools.Gateway, reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		provider:           provider,
		gateway:            gateway,
		registry:           reg,
		classifier:         NewClassifier(),
		toolTimeout:        DefaultToolTimeout,
		streamCancelWindow: DefaultStreamCancelWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request starts a conversation.
type Request struct {
	Goal         string
	Instructions string
	Model        string
	MaxTurns     int
	ToolIDs      []string
	// AllowUnsafeTools opts in to tools on the unsafe/write denylist.
	AllowUnsafeTools bool
	Caller           string
	Title            string
}

// Result is what the caller receives when a conversation terminates: the
// full history, the terminal reason, and the last turn result.
type Result struct {
	ConversationID string
	History        []domain.HistoryEntry
	Reason         domain.Reason
	LastResponse   *domain.TurnResult
	ErrorMessage   string
}

// Run executes a conversation to termination. It registers the conversation,
// attaches a cancellation token to the registry, resolves the model, and
// drives the turn loop. The goal must be non-empty; instructions may be
// empty.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Goal == "" {
		return nil, fmt.Errorf("goal must not be empty")
	}
	if req.MaxTurns < 0 {
		req.MaxTurns = 0
	}

	id := e.registry.Register(domain.Conversation{
		Goal:         req.Goal,
		Instructions: req.Instructions,
		Model:        req.Model,
		MaxTurns:     req.MaxTurns,
		Caller:       req.Caller,
		Title:        req.Title,
	})

	tok := NewCancelToken()
	if err := e.registry.SetCanceller(id, tok); err != nil {
		return nil, err
	}

	// Model resolution happens before any turn runs; an unknown model is a
	// conversation-level error.
	if err := e.resolveModel(ctx, req.Model); err != nil {
		return e.finish(id, domain.ReasonError, nil, err.Error()), nil
	}

	specs := e.gateway.Specs(req.ToolIDs, req.AllowUnsafeTools)

	return e.runLoop(ctx, id, req, tok, specs), nil
}

// Start registers and runs a conversation in the background, returning its
// ID immediately. Used by the server so callers can watch progress through
// the registry.
func (e *Engine) Start(ctx context.Context, req Request, done func(*Result)) (string, error) {
	if req.Goal == "" {
		return "", fmt.Errorf("goal must not be empty")
	}
	if req.MaxTurns < 0 {
		req.MaxTurns = 0
	}

	id := e.registry.Register(domain.Conversation{
		Goal:         req.Goal,
		Instructions: req.Instructions,
		Model:        req.Model,
		MaxTurns:     req.MaxTurns,
		Caller:       req.Caller,
		Title:        req.Title,
	})

	tok := NewCancelToken()
	if err := e.registry.SetCanceller(id, tok); err != nil {
		return "", err
	}

	go func() {
		var result *Result
		if err := e.resolveModel(ctx, req.Model); err != nil {
			result = e.finish(id, domain.ReasonError, nil, err.Error())
		} else {
			specs := e.gateway.Specs(req.ToolIDs, req.AllowUnsafeTools)
			result = e.runLoop(ctx, id, req, tok, specs)
		}
		if done != nil {
			done(result)
		}
	}()

	return id, nil
}

func (e *Engine) resolveModel(ctx context.Context, modelID string) error {
	models, err := e.provider.List(ctx)
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}
	for _, m := range models {
		if m.ID == modelID {
			return nil
		}
	}
	return fmt.Errorf("model not found: %s", modelID)
}
