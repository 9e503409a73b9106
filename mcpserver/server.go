package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/petal-labs/toolbridge/tool"
)

// maxLineBytes bounds a single JSON-RPC line. Large tool outputs travel in
// responses, not requests, so this only needs to fit argument payloads.
const maxLineBytes = 10 * 1024 * 1024

// Server answers MCP requests over a line-delimited stdio transport and
// executes tools/call through the engine.
type Server struct {
	engine *tool.Engine
	info   ServerInfo
	logger *slog.Logger

	in  io.Reader
	out io.Writer
	// outMu serializes response writes; a partial interleaved line would
	// corrupt the transport.
	outMu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithLogger overrides the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithIO overrides the transport streams, which defaults tests use to drive
// the server over pipes.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(s *Server) {
		s.in = in
		s.out = out
	}
}

// New creates an MCP server over an engine.
func New(engine *tool.Engine, info ServerInfo, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		info:   info,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve reads requests line by line until EOF or context cancelation.
// Malformed JSON gets a parse-error response; notifications are consumed
// without a response, as JSON-RPC requires.
func (s *Server) Serve(ctx context.Context) error {
	if s.in == nil || s.out == nil {
		return errors.New("mcpserver: transport streams are not configured")
	}

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.writeError(json.RawMessage("null"), codeParseError, "Parse error")
			continue
		}
		if len(msg.ID) == 0 || string(msg.ID) == "null" {
			// Notification; nothing to answer.
			continue
		}
		s.handle(ctx, msg)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("mcpserver: read transport: %w", err)
	}
	return nil
}

func (s *Server) handle(ctx context.Context, msg Message) {
	switch msg.Method {
	case "initialize":
		s.writeResult(msg.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      s.info,
		})
	case "ping":
		s.writeResult(msg.ID, map[string]any{})
	case "tools/list":
		s.writeResult(msg.ID, s.listTools())
	case "tools/call":
		s.handleToolsCall(ctx, msg)
	default:
		s.writeError(msg.ID, codeMethodNotFound, fmt.Sprintf("Method not found: %s", msg.Method))
	}
}

func (s *Server) listTools() ToolsListResult {
	defs := s.engine.Registry().List()
	tools := make([]Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema(),
		})
	}
	return ToolsListResult{Tools: tools}
}

func (s *Server) handleToolsCall(ctx context.Context, msg Message) {
	var params ToolsCallParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.writeError(msg.ID, codeInvalidParams, "Invalid tools/call params")
		return
	}
	if params.Name == "" {
		s.writeError(msg.ID, codeInvalidParams, "Tool name is required")
		return
	}

	result, err := s.engine.Invoke(ctx, params.Name, params.Arguments)
	if err != nil {
		var invErr *tool.InvokeError
		if errors.As(err, &invErr) {
			// The call was delivered but the tool could not run;
			// that is a tool-level error, not a protocol failure.
			if result.TimedOut {
				s.writeResult(msg.ID, timeoutCallResult(invErr, result))
				return
			}
			s.writeResult(msg.ID, errorCallResult(invErr))
			return
		}
		s.writeError(msg.ID, codeInternalError, err.Error())
		return
	}
	s.writeResult(msg.ID, callResult(result))
}

// callResult renders an invocation outcome as MCP content. A non-zero exit
// code keeps IsError false: the tool ran and its result, failure included,
// is data for the caller.
func callResult(result tool.InvokeResult) ToolsCallResult {
	text := ""
	switch out := result.Output.(type) {
	case string:
		text = out
	default:
		if encoded, err := json.Marshal(out); err == nil {
			text = string(encoded)
		}
	}

	structured := map[string]any{
		"success":     result.Success,
		"exit_code":   result.ExitCode,
		"duration_ms": result.DurationMS,
	}
	if result.Stderr != "" {
		structured["stderr"] = result.Stderr
	}
	if result.TimedOut {
		structured["timed_out"] = true
	}
	if result.Truncated {
		structured["truncated"] = true
	}
	if result.ParseWarning != "" {
		structured["parse_warning"] = result.ParseWarning
	}

	return ToolsCallResult{
		Content:           []ContentBlock{{Type: "text", Text: text}},
		StructuredContent: structured,
	}
}

// timeoutCallResult carries the partial output captured before the kill
// along with the timeout classification.
func timeoutCallResult(invErr *tool.InvokeError, result tool.InvokeResult) ToolsCallResult {
	out := callResult(result)
	out.IsError = true
	out.StructuredContent["stage"] = string(invErr.Stage)
	out.StructuredContent["code"] = invErr.Code
	return out
}

func errorCallResult(invErr *tool.InvokeError) ToolsCallResult {
	structured := map[string]any{
		"stage": string(invErr.Stage),
		"code":  invErr.Code,
	}
	for key, value := range invErr.Details {
		structured[key] = value
	}
	return ToolsCallResult{
		Content:           []ContentBlock{{Type: "text", Text: invErr.Message}},
		StructuredContent: structured,
		IsError:           true,
	}
}

func (s *Server) writeResult(id json.RawMessage, result any) {
	encoded, err := json.Marshal(result)
	if err != nil {
		s.writeError(id, codeInternalError, "Failed to encode result")
		return
	}
	s.write(Message{JSONRPC: jsonRPCVersion, ID: id, Result: encoded})
}

func (s *Server) writeError(id json.RawMessage, code int, message string) {
	s.write(Message{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	})
}

func (s *Server) write(msg Message) {
	encoded, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("encode response failed", "error", err)
		return
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if _, err := s.out.Write(append(encoded, '\n')); err != nil {
		s.logger.Error("write response failed", "error", err)
	}
}
