package tool

import "fmt"

// Stage identifies the pipeline phase an invocation error originated from.
type Stage string

const (
	StageLookup   Stage = "lookup"
	StageValidate Stage = "validate"
	StageBuild    Stage = "build"
	StageDispatch Stage = "dispatch"
	StageExecute  Stage = "execute"
	StageFormat   Stage = "format"
)

// Error codes surfaced to callers. Validation codes are stable identifiers
// an agent can branch on; the human-readable message carries the detail.
const (
	CodeUnknownParameter   = "UNKNOWN_PARAMETER"
	CodeMissingRequired    = "MISSING_REQUIRED"
	CodeTypeMismatch       = "TYPE_MISMATCH"
	CodeEnumViolation      = "ENUM_VIOLATION"
	CodeRangeViolation     = "RANGE_VIOLATION"
	CodeTemplateParameter  = "TEMPLATE_PARAMETER"
	CodeRuntimeUnavailable = "RUNTIME_UNAVAILABLE"
	CodeToolNotFound       = "TOOL_NOT_FOUND"
	CodeExecutionFailed    = "EXECUTION_FAILED"
	CodeTimeout            = "TIMEOUT"
)

// InvokeError is the structured error type returned by every stage of the
// invocation pipeline. Stage and Code are machine-readable; Details carries
// stage-specific context such as the offending parameter name.
type InvokeError struct {
	Stage   Stage          `json:"stage"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *InvokeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Stage, e.Code, e.Message)
}

func (e *InvokeError) Unwrap() error { return e.Cause }

// NewInvokeError builds an InvokeError without a cause.
func NewInvokeError(stage Stage, code, message string) *InvokeError {
	return &InvokeError{Stage: stage, Code: code, Message: message}
}

// WithDetail attaches a single key/value pair to the error's details.
func (e *InvokeError) WithDetail(key string, value any) *InvokeError {
	if e.Details == nil {
		e.Details = make(map[string]any, 1)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches an underlying error.
func (e *InvokeError) WithCause(cause error) *InvokeError {
	e.Cause = cause
	return e
}
