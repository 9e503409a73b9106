package tool

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxConcurrent caps how many tool processes an engine runs at once.
const DefaultMaxConcurrent = 8

// Engine drives the invocation pipeline: lookup, argument validation,
// command assembly, runtime dispatch, execution, and result formatting.
// Every collaborator is injectable; the zero-configuration path uses the
// host PATH resolver and a real process runner.
type Engine struct {
	registry *Registry
	resolver Resolver
	runner   Runner
	observer Observer
	logger   *slog.Logger
	sem      chan struct{}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithResolver overrides interpreter resolution.
func WithResolver(r Resolver) EngineOption {
	return func(e *Engine) { e.resolver = r }
}

// WithRunner overrides subprocess execution.
func WithRunner(r Runner) EngineOption {
	return func(e *Engine) { e.runner = r }
}

// WithObserver installs an invocation observer.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// WithLogger overrides the engine's logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithMaxConcurrent caps concurrent executions. Values below one fall back
// to the default.
func WithMaxConcurrent(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.sem = make(chan struct{}, n)
		}
	}
}

// NewEngine creates an engine over the given registry.
func NewEngine(registry *Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		registry: registry,
		resolver: NewPathResolver(),
		runner:   NewProcessRunner(),
		observer: NoopObserver(),
		logger:   slog.Default(),
		sem:      make(chan struct{}, DefaultMaxConcurrent),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry exposes the engine's tool registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Invoke runs the named tool with the given arguments. Validation failures,
// unavailable runtimes, timeouts, and spawn failures return an *InvokeError;
// a tool that ran and exited non-zero returns a result with Success false
// and a nil error. On timeout the result is still populated with whatever
// output was captured before the kill, alongside the error.
func (e *Engine) Invoke(ctx context.Context, name string, args map[string]any) (InvokeResult, error) {
	requestID := uuid.NewString()
	log := e.logger.With("tool", name, "request_id", requestID)

	def, ok := e.registry.Lookup(name)
	if !ok {
		err := NewInvokeError(StageLookup, CodeToolNotFound,
			"Tool "+name+" is not registered").WithDetail("tool", name)
		log.Warn("tool lookup failed")
		return InvokeResult{}, err
	}

	start := time.Now()
	e.observer.InvokeStarted(name, requestID)
	result, invErr := e.invoke(ctx, def, args, requestID, log)

	obs := InvokeObservation{
		Tool:      name,
		RequestID: requestID,
		Runtime:   def.Runtime,
		Duration:  time.Since(start),
		ExitCode:  result.ExitCode,
	}
	if invErr != nil {
		obs.Stage = invErr.Stage
		obs.Code = invErr.Code
		obs.TimedOut = invErr.Code == CodeTimeout
		e.observer.InvokeFinished(obs)
		return result, invErr
	}
	e.observer.InvokeFinished(obs)
	return result, nil
}

func (e *Engine) invoke(ctx context.Context, def ToolDefinition, args map[string]any, requestID string, log *slog.Logger) (InvokeResult, *InvokeError) {
	normalized, invErr := ValidateArguments(def, args)
	if invErr != nil {
		log.Warn("argument validation failed", "code", invErr.Code, "error", invErr.Message)
		return InvokeResult{}, invErr
	}

	inv, invErr := BuildInvocation(def, normalized)
	if invErr != nil {
		log.Warn("command assembly failed", "code", invErr.Code, "error", invErr.Message)
		return InvokeResult{}, invErr
	}

	argv, invErr := Dispatch(e.resolver, inv)
	if invErr != nil {
		log.Warn("runtime unavailable", "runtime", string(def.Runtime))
		return InvokeResult{}, invErr
	}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return InvokeResult{}, NewInvokeError(StageExecute, CodeExecutionFailed,
			"Invocation canceled while waiting for an execution slot").WithCause(ctx.Err())
	}

	log.Info("executing tool", "runtime", string(def.Runtime), "timeout", def.Timeout().String())
	res, invErr := e.runner.Run(ctx, ExecSpec{
		Argv:    argv,
		Stdin:   inv.Stdin,
		Dir:     inv.Dir,
		Env:     inv.Env,
		Timeout: def.Timeout(),
	})
	if invErr != nil {
		log.Error("execution failed", "code", invErr.Code, "error", invErr.Message)
		if invErr.Code == CodeTimeout {
			// A timed-out tool still produced output worth returning; the
			// partial capture travels with the error.
			result := FormatResult(def, res)
			result.RequestID = requestID
			return result, invErr
		}
		return InvokeResult{ExitCode: res.ExitCode}, invErr
	}

	result := FormatResult(def, res)
	result.RequestID = requestID
	log.Info("tool finished",
		"exit_code", res.ExitCode,
		"duration_ms", res.Duration.Milliseconds(),
		"truncated", res.Truncated)
	return result, nil
}
