package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gnana997/compreg/pkg/catalog"
)

func readOnly() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	}
}

func listCategoriesTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Returns atomic-design categories present in the registry with component counts."),
	}, readOnly()...)
	return mcp.NewTool("list_categories", opts...)
}

func listComponentsTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Lists registry components, optionally filtered by category and/or a keyword " +
			"matched against name, path and description."),
		mcp.WithString("category",
			mcp.Description("Category filter"),
			mcp.Enum(
				string(catalog.CategoryAtom),
				string(catalog.CategoryMolecule),
				string(catalog.CategoryOrganism),
				string(catalog.CategoryUnknown),
			),
		),
		mcp.WithString("keyword",
			mcp.Description("Case-insensitive keyword"),
		),
	}, readOnly()...)
	return mcp.NewTool("list_components", opts...)
}

func getComponentDetailsTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Returns full records (path, exports, props, description) for the named components. " +
			"A name declared in several files returns every record."),
		mcp.WithArray("names",
			mcp.Required(),
			mcp.Description("Component names to look up"),
			mcp.WithStringItems(),
		),
	}, readOnly()...)
	return mcp.NewTool("get_component_details", opts...)
}

func registryStatusTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Returns registry header fields and scan diagnostics: counts, timestamps, cache hits, warnings."),
	}, readOnly()...)
	return mcp.NewTool("registry_status", opts...)
}
