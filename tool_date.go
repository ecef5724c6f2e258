package birthdaybot

import (
	"google.golang.org/genai"
)

// NewDateTool returns the get_current_date tool, reporting clock's today
// in the same DD-MM-YYYY layout users are asked for.
func NewDateTool(clock Clock) *ToolDefinition {
	return &ToolDefinition{
		Tool: &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{
				{
					Name:        "get_current_date",
					Description: "Returns today's date formatted as DD-MM-YYYY.",
					Parameters:  &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}},
				},
			},
		},
		Function: func(args map[string]any) (map[string]any, error) {
			return map[string]any{"current_date": clock.Today().String()}, nil
		},
	}
}
