package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// shortStringMax bounds string params logged verbatim.
const shortStringMax = 64

// loggingMiddleware logs every tool call with its sanitized params,
// duration and response size.
func (s *Server) loggingMiddleware() server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			start := time.Now()
			result, err := next(ctx, req)

			attrs := []any{
				"tool", req.Params.Name,
				"params", sanitizeParams(req.GetArguments()),
				"duration_ms", time.Since(start).Milliseconds(),
				"response_bytes", responseBytes(result),
			}
			switch {
			case err != nil:
				s.logger.Warn("mcp tool call failed", append(attrs, "error", err)...)
			case result != nil && result.IsError:
				s.logger.Info("mcp tool call returned error result", attrs...)
			default:
				s.logger.Debug("mcp tool call", attrs...)
			}
			return result, err
		}
	}
}

// sanitizeParams replaces long string values with a "<key>_len" entry.
func sanitizeParams(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if str, ok := v.(string); ok && len(str) > shortStringMax {
			out[k+"_len"] = len(str)
		} else {
			out[k] = v
		}
	}
	return out
}

func responseBytes(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	b, err := json.Marshal(result.Content)
	if err != nil {
		return 0
	}
	return len(b)
}
