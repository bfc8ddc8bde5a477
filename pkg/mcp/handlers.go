package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gnana997/compreg/pkg/catalog"
)

// componentSummary is the compact list_components row.
type componentSummary struct {
	Name      string           `json:"name"`
	Path      string           `json:"path"`
	Category  catalog.Category `json:"category"`
	Exports   []string         `json:"exports"`
	PropCount int              `json:"prop_count"`
	Fallback  bool             `json:"filename_fallback,omitempty"`
}

type detailsResponse struct {
	Components []catalog.ComponentRecord `json:"components"`
	NotFound   []string                  `json:"not_found,omitempty"`
}

func (s *Server) query() (*catalog.QueryService, *mcp.CallToolResult) {
	doc, err := s.source.Document()
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("registry unavailable: %v", err))
	}
	return catalog.NewQueryService(doc), nil
}

func (s *Server) handleListCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	qs, errResult := s.query()
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(qs.ListCategories())
}

func (s *Server) handleListComponents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	qs, errResult := s.query()
	if errResult != nil {
		return errResult, nil
	}

	category := catalog.Category(getOptionalString(req, "category"))
	switch category {
	case "", catalog.CategoryAtom, catalog.CategoryMolecule, catalog.CategoryOrganism, catalog.CategoryUnknown:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown category: %s", category)), nil
	}

	records := qs.ListComponents(category, getOptionalString(req, "keyword"))
	out := make([]componentSummary, 0, len(records))
	for _, c := range records {
		out = append(out, componentSummary{
			Name:      c.Name,
			Path:      c.Path,
			Category:  c.Category,
			Exports:   c.Exports,
			PropCount: len(c.Props),
			Fallback:  c.DetectionMethod == catalog.DetectionFilenameFallback,
		})
	}
	return jsonResult(out)
}

func (s *Server) handleGetComponentDetails(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := getStringSlice(req, "names")
	if len(names) == 0 {
		return mcp.NewToolResultError("names is required and must be a non-empty array of strings"), nil
	}

	qs, errResult := s.query()
	if errResult != nil {
		return errResult, nil
	}

	resp := detailsResponse{Components: []catalog.ComponentRecord{}}
	for _, name := range names {
		records, ok := qs.GetComponent(name)
		if !ok {
			resp.NotFound = append(resp.NotFound, name)
			continue
		}
		resp.Components = append(resp.Components, records...)
	}
	if len(resp.Components) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("components not found: %s", strings.Join(resp.NotFound, ", "))), nil
	}
	return jsonResult(resp)
}

func (s *Server) handleRegistryStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	qs, errResult := s.query()
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(qs.Stats())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, _ := args[key].(string)
	return strings.TrimSpace(val)
}

// getStringSlice accepts a JSON array of strings or a single string.
func getStringSlice(req mcp.CallToolRequest, key string) []string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil
	}
	switch v := args[key].(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return []string{v}
		}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}
