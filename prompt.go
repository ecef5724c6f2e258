package birthdaybot

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/dhamidi/birthdaybot/birthday"
)

//go:embed prompts/system.md
var systemPromptTemplate string

// SystemPrompt renders the system instruction. When path names an
// existing file, that file is used as the template instead of the
// embedded one.
func SystemPrompt(path string, replies Replies) (string, error) {
	source := systemPromptTemplate
	if path != "" {
		content, err := readFileContent(path)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(content) != "" {
			source = content
		}
	}

	tmpl, err := template.New("system").Option("missingkey=error").Parse(source)
	if err != nil {
		return "", fmt.Errorf("parsing system prompt: %w", err)
	}

	var out strings.Builder
	err = tmpl.Execute(&out, struct {
		Replies
		Example string
	}{replies, birthday.Example})
	if err != nil {
		return "", fmt.Errorf("rendering system prompt: %w", err)
	}
	return out.String(), nil
}

func readFileContent(filepath string) (string, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// A missing override falls back to the embedded prompt.
			return "", nil
		}
		return "", fmt.Errorf("reading file %q: %w", filepath, err)
	}
	return string(content), nil
}
