package api

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/graphseed/internal/provider"
)

// ToolDefinitions converts capabilities into Messages API tool params. The
// provider's input schema is passed through unchanged.
func ToolDefinitions(caps []*provider.Capability) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(caps))
	for _, c := range caps {
		tools = append(tools, toolParam(c.Name(), c.Description(), c.InputSchema()))
	}
	return tools
}

func toolParam(name, description string, schema provider.Schema) anthropic.ToolUnionParam {
	props := schema.Properties
	if props == nil {
		props = map[string]any{}
	}
	param := &anthropic.ToolParam{
		Name: name,
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: props,
			Required:   schema.Required,
		},
	}
	if description != "" {
		param.Description = anthropic.String(description)
	}
	return anthropic.ToolUnionParam{OfTool: param}
}
