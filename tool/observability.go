package tool

import "time"

// InvokeObservation describes one completed invocation attempt, successful
// or not, for metrics and tracing hooks.
type InvokeObservation struct {
	Tool      string
	RequestID string
	Runtime   RuntimeKind
	Duration  time.Duration
	ExitCode  int
	TimedOut  bool
	// Stage is empty on success; otherwise the pipeline stage that failed.
	Stage Stage
	// Code is empty on success; otherwise the error code.
	Code string
}

// Observer receives invocation lifecycle events. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	InvokeStarted(tool, requestID string)
	InvokeFinished(obs InvokeObservation)
}

type noopObserver struct{}

func (noopObserver) InvokeStarted(string, string)     {}
func (noopObserver) InvokeFinished(InvokeObservation) {}

// NoopObserver returns an observer that discards all events.
func NoopObserver() Observer { return noopObserver{} }
