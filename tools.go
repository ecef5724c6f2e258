package birthdaybot

import (
	"bytes"
	"fmt"
	"sort"

	"google.golang.org/genai"
)

// ToolDefinition pairs a function declaration shown to the model with the
// Go function that executes it.
type ToolDefinition struct {
	Tool     *genai.Tool
	Function func(map[string]any) (map[string]any, error)
}

func (def *ToolDefinition) Name() string {
	return def.Tool.FunctionDeclarations[0].Name
}

type ToolBox map[string]*ToolDefinition

func NewToolBox() ToolBox { return ToolBox{} }

func (tools ToolBox) Add(def *ToolDefinition) ToolBox {
	tools[def.Name()] = def
	return tools
}

// Names returns the tool names in alphabetical order.
func (tools ToolBox) Names() []string {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (tools ToolBox) Get(name string) (def *ToolDefinition, found bool) {
	def, found = tools[name]
	return
}

// List merges all declarations into a single genai.Tool, in name order.
func (tools ToolBox) List() *genai.Tool {
	result := &genai.Tool{}
	for _, name := range tools.Names() {
		result.FunctionDeclarations = append(result.FunctionDeclarations, tools[name].Tool.FunctionDeclarations...)
	}
	return result
}

func FormatFunctionCall(fc *genai.FunctionCall) string {
	buf := bytes.NewBufferString(fc.Name)
	if fc.ID != "" {
		fmt.Fprintf(buf, "@%s", fc.ID)
	}
	fmt.Fprintf(buf, "(%s)", AsJSON(fc.Args))
	return buf.String()
}

// NewBirthdayToolBox returns the tools the birthday agent is given.
func NewBirthdayToolBox(clock Clock, replies Replies) (ToolBox, error) {
	checkBirthday, err := NewCheckBirthdayTool(clock, replies)
	if err != nil {
		return nil, err
	}
	return NewToolBox().
		Add(checkBirthday).
		Add(NewDateTool(clock)), nil
}
