package birthdaybot

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
)

// ANSI colour codes used for role prefixes.
const (
	ColorUser  = "94"
	ColorModel = "93"
	ColorTool  = "95"
	ColorTrace = "90"
	ColorError = "91"
)

// TextDisplayer defines an interface for displaying text content.
type TextDisplayer interface {
	Display(content string) error
	DisplayPrompt(format string, args ...any) // For inline prompts
	DisplayError(format string, args ...any)
	DisplayMessage(role string, colorCode string, historyCount int, format string, args ...any)
}

// RawTextDisplay prints plain text with ANSI colour prefixes.
// A nil Out writes to stdout.
type RawTextDisplay struct {
	Out io.Writer
}

func (r *RawTextDisplay) out() io.Writer {
	if r.Out == nil {
		return os.Stdout
	}
	return r.Out
}

// DisplayPrompt prints a formatted prompt without a trailing newline.
func (r *RawTextDisplay) DisplayPrompt(format string, args ...any) {
	fmt.Fprintf(r.out(), format, args...)
}

// Display prints the content followed by a newline.
func (r *RawTextDisplay) Display(content string) error {
	_, err := fmt.Fprintln(r.out(), content)
	return err
}

// DisplayError prints a formatted error message in red.
func (r *RawTextDisplay) DisplayError(format string, args ...any) {
	fmt.Fprintf(r.out(), "\u001b["+ColorError+"mError\u001b[0m: "+format+"\n", args...)
}

// DisplayMessage prints a message with a coloured role prefix. A negative
// historyCount omits the counter.
func (r *RawTextDisplay) DisplayMessage(role string, colorCode string, historyCount int, format string, args ...any) {
	fmt.Fprintf(r.out(), "%s%s\n", rolePrefix(role, colorCode, historyCount), fmt.Sprintf(format, args...))
}

func rolePrefix(role string, colorCode string, historyCount int) string {
	if historyCount >= 0 {
		return fmt.Sprintf("\u001b[%sm%s [%d]\u001b[0m: ", colorCode, role, historyCount)
	}
	return fmt.Sprintf("\u001b[%sm%s\u001b[0m: ", colorCode, role)
}

// GlamourousTextDisplay renders markdown with glamour, falling back to RawTextDisplay.
type GlamourousTextDisplay struct {
	RawTextDisplay
}

// Display attempts to render the content using glamour.
func (g *GlamourousTextDisplay) Display(content string) error {
	prettyOutput, err := glamour.RenderWithEnvironmentConfig(content)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Glamour rendering failed: %v. Falling back to raw display.\n", err)
		return g.RawTextDisplay.Display(content)
	}
	_, err = fmt.Fprint(g.out(), prettyOutput)
	return err
}

// DisplayMessage prints the role prefix raw and the message rendered by glamour.
func (g *GlamourousTextDisplay) DisplayMessage(role string, colorCode string, historyCount int, format string, args ...any) {
	coreMessage := fmt.Sprintf(format, args...)

	prettyOutput, err := glamour.RenderWithEnvironmentConfig(coreMessage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Glamour rendering failed for message: %v. Falling back to raw display.\n", err)
		g.RawTextDisplay.DisplayMessage(role, colorCode, historyCount, format, args...)
		return
	}

	fmt.Fprint(g.out(), rolePrefix(role, colorCode, historyCount))
	fmt.Fprint(g.out(), prettyOutput)
}

// JSONDisplay writes one "kind: {json}" line per message, for feeding the
// chat into other programs. Prompts are suppressed.
type JSONDisplay struct {
	Out io.Writer
}

type jsonMessage struct {
	Role    string `json:"role,omitempty"`
	Index   *int   `json:"index,omitempty"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (j *JSONDisplay) out() io.Writer {
	if j.Out == nil {
		return os.Stdout
	}
	return j.Out
}

func (j *JSONDisplay) Display(content string) error {
	return j.write("text", jsonMessage{Content: content})
}

func (j *JSONDisplay) DisplayPrompt(format string, args ...any) {}

func (j *JSONDisplay) DisplayError(format string, args ...any) {
	j.write("error", jsonMessage{Error: fmt.Sprintf(format, args...)})
}

func (j *JSONDisplay) DisplayMessage(role string, colorCode string, historyCount int, format string, args ...any) {
	msg := jsonMessage{Role: role, Content: fmt.Sprintf(format, args...)}
	if historyCount >= 0 {
		msg.Index = &historyCount
	}
	j.write("message", msg)
}

func (j *JSONDisplay) write(kind string, msg jsonMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", kind, err)
	}
	_, err = fmt.Fprintf(j.out(), "%s: %s\n", kind, data)
	return err
}
