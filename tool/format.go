package tool

import (
	"encoding/json"
	"strings"
	"time"
)

// InvokeResult is the structured outcome of a tool invocation handed back
// to callers. Output holds parsed JSON for json-format tools and the raw
// stdout string otherwise. A failed JSON parse is not an error: the raw
// output is returned with ParseWarning set so callers still see what the
// tool printed.
type InvokeResult struct {
	Tool         string        `json:"tool"`
	RequestID    string        `json:"request_id,omitempty"`
	Success      bool          `json:"success"`
	ExitCode     int           `json:"exit_code"`
	Output       any           `json:"output"`
	Stderr       string        `json:"stderr,omitempty"`
	Duration     time.Duration `json:"-"`
	DurationMS   int64         `json:"duration_ms"`
	TimedOut     bool          `json:"timed_out,omitempty"`
	Truncated    bool          `json:"truncated,omitempty"`
	ParseWarning string        `json:"parse_warning,omitempty"`
}

// FormatResult converts a raw execution result into an InvokeResult
// according to the tool's declared output format.
func FormatResult(def ToolDefinition, res ExecutionResult) InvokeResult {
	out := InvokeResult{
		Tool:       def.Name,
		Success:    res.ExitCode == 0 && !res.TimedOut,
		ExitCode:   res.ExitCode,
		Stderr:     res.Stderr,
		Duration:   res.Duration,
		DurationMS: res.Duration.Milliseconds(),
		TimedOut:   res.TimedOut,
		Truncated:  res.Truncated,
	}

	raw := strings.TrimSpace(res.Stdout)
	if def.OutputFormat == OutputJSON && raw != "" {
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			out.Output = parsed
			return out
		}
		out.ParseWarning = "stdout was not valid JSON; returning raw text"
	}
	out.Output = raw
	return out
}
