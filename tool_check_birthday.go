package birthdaybot

import (
	_ "embed"
	"fmt"

	"github.com/dhamidi/birthdaybot/birthday"
	"google.golang.org/genai"
)

//go:embed schemas/check_birthday.json
var checkBirthdaySchemaJSON []byte

// NewCheckBirthdayTool returns the check_birthday tool. It compares the
// date_of_birth argument against clock's today and answers with the
// outcome tag and the reply text from replies.
func NewCheckBirthdayTool(clock Clock, replies Replies) (*ToolDefinition, error) {
	params, err := DeserializeToolSchema(checkBirthdaySchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("check_birthday: %w", err)
	}

	return &ToolDefinition{
		Tool: &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{
				{
					Name:        "check_birthday",
					Description: "Check whether today matches the user's birthday (day and month). Accepts only DD-MM-YYYY dates.",
					Parameters:  params,
				},
			},
		},
		Function: func(args map[string]any) (map[string]any, error) {
			input, ok := args["date_of_birth"].(string)
			if !ok {
				return nil, fmt.Errorf("check_birthday: no date_of_birth provided")
			}
			result := birthday.Check(input, clock.Today())
			return map[string]any{
				"result":  result.String(),
				"message": replies.Explain(input, result),
			}, nil
		},
	}, nil
}
