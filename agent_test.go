package birthdaybot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// scriptedGenerator answers GenerateContent calls with respond and records
// every request it receives.
type scriptedGenerator struct {
	requests [][]*genai.Content
	configs  []*genai.GenerateContentConfig
	respond  func(call int, contents []*genai.Content) (*genai.GenerateContentResponse, error)
}

func (g *scriptedGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	g.requests = append(g.requests, append([]*genai.Content(nil), contents...))
	g.configs = append(g.configs, config)
	return g.respond(len(g.requests)-1, contents)
}

func modelResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: string(genai.RoleModel), Parts: parts}},
		},
	}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return modelResponse(&genai.Part{Text: text})
}

func callResponse(name string, args map[string]any) *genai.GenerateContentResponse {
	return modelResponse(&genai.Part{FunctionCall: &genai.FunctionCall{ID: "call-1", Name: name, Args: args}})
}

// lastFunctionResponse returns the function response at the end of contents.
func lastFunctionResponse(contents []*genai.Content) *genai.FunctionResponse {
	if len(contents) == 0 {
		return nil
	}
	last := contents[len(contents)-1]
	for _, part := range last.Parts {
		if part.FunctionResponse != nil {
			return part.FunctionResponse
		}
	}
	return nil
}

// birthdayModel calls check_birthday with whatever date the user wrote and
// then repeats the tool's message, like a well-behaved model would.
func birthdayModel() *scriptedGenerator {
	return &scriptedGenerator{
		respond: func(call int, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
			if fr := lastFunctionResponse(contents); fr != nil {
				if msg, ok := fr.Response["message"].(string); ok {
					return textResponse(msg), nil
				}
				return textResponse(fmt.Sprintf("tool said %v", fr.Response)), nil
			}
			text := contents[len(contents)-1].Parts[0].Text
			return callResponse("check_birthday", map[string]any{"date_of_birth": text}), nil
		},
	}
}

func newTestAgent(t *testing.T, generator ContentGenerator) *Agent {
	t.Helper()
	tools, err := NewBirthdayToolBox(FixedClock(september4), DefaultReplies)
	require.NoError(t, err)
	return NewAgent(generator, tools, "You check birthdays.", nil).
		WithDisplay(&RawTextDisplay{Out: &bytes.Buffer{}}).
		WithRetryDelays(0)
}

func TestRespond(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"My birthday is 04-09-2025", "Happy Birthday 🎉"},
		{"25-12-1997", "Not your birthday today"},
		{"12/25/1997", DefaultReplies.FormatInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			generator := birthdayModel()
			agent := newTestAgent(t, generator)

			reply, err := agent.Respond(context.Background(), tt.message)

			require.NoError(t, err)
			assert.Equal(t, tt.want, reply)
			require.Len(t, generator.requests, 2)

			fr := lastFunctionResponse(generator.requests[1])
			require.NotNil(t, fr)
			assert.Equal(t, "check_birthday", fr.Name)
			assert.Equal(t, "call-1", fr.ID)
			assert.Empty(t, agent.History())
		})
	}
}

func TestRespondSendsConfig(t *testing.T) {
	generator := birthdayModel()
	agent := newTestAgent(t, generator).ChooseModel("gemini-test").WithTemperature(0.3)

	_, err := agent.Respond(context.Background(), "04-09-2025")
	require.NoError(t, err)

	config := generator.configs[0]
	require.NotNil(t, config.Temperature)
	assert.InDelta(t, 0.3, *config.Temperature, 1e-6)
	require.Len(t, config.Tools, 1)
	assert.Len(t, config.Tools[0].FunctionDeclarations, 2)
	require.NotNil(t, config.SystemInstruction)
	assert.Equal(t, "You check birthdays.", config.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "gemini-test", agent.modelName)
}

func TestRespondWithoutToolCall(t *testing.T) {
	generator := &scriptedGenerator{
		respond: func(call int, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
			return textResponse("  " + DefaultReplies.Welcome + "\n"), nil
		},
	}
	agent := newTestAgent(t, generator)

	reply, err := agent.Respond(context.Background(), "Hi there!")

	require.NoError(t, err)
	assert.Equal(t, DefaultReplies.Welcome, reply)
	assert.Len(t, generator.requests, 1)
}

func TestRespondUnknownTool(t *testing.T) {
	generator := &scriptedGenerator{
		respond: func(call int, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
			if fr := lastFunctionResponse(contents); fr != nil {
				return textResponse(fmt.Sprint(fr.Response["error"])), nil
			}
			return callResponse("read_file", map[string]any{"filepath": "/etc/passwd"}), nil
		},
	}
	agent := newTestAgent(t, generator)

	reply, err := agent.Respond(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, "tool not found", reply)
}

func TestRespondToolError(t *testing.T) {
	generator := &scriptedGenerator{
		respond: func(call int, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
			if fr := lastFunctionResponse(contents); fr != nil {
				return textResponse(fmt.Sprint(fr.Response["error"])), nil
			}
			return callResponse("check_birthday", map[string]any{}), nil
		},
	}
	agent := newTestAgent(t, generator)

	reply, err := agent.Respond(context.Background(), "hello")

	require.NoError(t, err)
	assert.Contains(t, reply, "no date_of_birth provided")
}

func TestRespondEmptyResponse(t *testing.T) {
	generator := &scriptedGenerator{
		respond: func(call int, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{}, nil
		},
	}
	agent := newTestAgent(t, generator)

	reply, err := agent.Respond(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply)
}

func TestRespondStopsEndlessToolCalls(t *testing.T) {
	generator := &scriptedGenerator{
		respond: func(call int, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
			return callResponse("get_current_date", nil), nil
		},
	}
	agent := newTestAgent(t, generator)

	reply, err := agent.Respond(context.Background(), "what day is it?")

	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply)
	assert.Len(t, generator.requests, maxToolRounds)
}

func TestRunInferenceRetriesServerErrors(t *testing.T) {
	generator := &scriptedGenerator{
		respond: func(call int, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
			if call < 2 {
				return nil, errors.New("Error 500, Message: An internal error has occurred")
			}
			return textResponse("recovered"), nil
		},
	}
	agent := newTestAgent(t, generator)

	reply, err := agent.Respond(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, "recovered", reply)
	assert.Len(t, generator.requests, 3)
}

func TestRunInferenceGivesUp(t *testing.T) {
	generator := &scriptedGenerator{
		respond: func(call int, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
			return nil, errors.New("server error")
		},
	}
	agent := newTestAgent(t, generator)

	_, err := agent.Respond(context.Background(), "hello")

	require.ErrorContains(t, err, "after 5 attempts")
	assert.Len(t, generator.requests, 5)
}

func TestRunInferenceDoesNotRetryClientErrors(t *testing.T) {
	generator := &scriptedGenerator{
		respond: func(call int, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
			return nil, errors.New("Error 400, Message: API key not valid")
		},
	}
	agent := newTestAgent(t, generator)

	_, err := agent.Respond(context.Background(), "hello")

	require.ErrorContains(t, err, "API key not valid")
	assert.Len(t, generator.requests, 1)
}

func TestRunInferenceHonoursCancellation(t *testing.T) {
	generator := &scriptedGenerator{
		respond: func(call int, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
			return nil, errors.New("server error")
		},
	}
	agent := newTestAgent(t, generator).WithRetryDelays(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agent.Respond(ctx, "hello")

	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, generator.requests, 1)
}

func TestRetryDelay(t *testing.T) {
	agent := NewAgent(nil, nil, "", nil)

	assert.Equal(t, 5*time.Second, agent.retryDelay(0))
	assert.Equal(t, 30*time.Second, agent.retryDelay(3))
	assert.Equal(t, 30*time.Second, agent.retryDelay(10))

	agent.WithRetryDelays()
	assert.Equal(t, time.Duration(0), agent.retryDelay(0))
}

// scriptedInput feeds lines to Agent.Run.
func scriptedInput(lines ...string) func() (string, bool) {
	return func() (string, bool) {
		if len(lines) == 0 {
			return "", false
		}
		line := lines[0]
		lines = lines[1:]
		return line, true
	}
}

func TestRun(t *testing.T) {
	var out bytes.Buffer
	generator := birthdayModel()
	agent := newTestAgent(t, generator).
		WithDisplay(&RawTextDisplay{Out: &out}).
		WithUserInput(scriptedInput("", "/trace", "My birthday is 04-09-2025", "/no-trace", "quit", "never read"))

	err := agent.Run(context.Background())

	require.NoError(t, err)
	// user message, tool call, tool response, final text
	require.Len(t, agent.History(), 4)
	assert.Equal(t, "My birthday is 04-09-2025", agent.History()[0].Parts[0].Text)
	assert.Equal(t, "Happy Birthday 🎉", agent.History()[3].Parts[0].Text)

	printed := out.String()
	assert.Contains(t, printed, DefaultReplies.Welcome)
	assert.Contains(t, printed, "Happy Birthday 🎉")
	assert.Contains(t, printed, "check_birthday@call-1")
	assert.Contains(t, printed, "Trace >")
	assert.Contains(t, printed, "Goodbye!")
}

func TestRunKeepsHistoryAcrossTurns(t *testing.T) {
	generator := birthdayModel()
	agent := newTestAgent(t, generator).
		WithUserInput(scriptedInput("04-09-2025", "25-12-1997"))

	require.NoError(t, agent.Run(context.Background()))

	require.Len(t, agent.History(), 8)
	assert.Equal(t, "Not your birthday today", agent.History()[7].Parts[0].Text)
	// The second turn saw the whole first exchange.
	assert.Len(t, generator.requests[2], 5)
}

func TestRunReturnsGenerationErrors(t *testing.T) {
	generator := &scriptedGenerator{
		respond: func(call int, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
			return nil, errors.New("Error 403, Message: permission denied")
		},
	}
	agent := newTestAgent(t, generator).WithUserInput(scriptedInput("hello"))

	err := agent.Run(context.Background())

	require.ErrorContains(t, err, "permission denied")
}

func TestRunStopsWhenContextDone(t *testing.T) {
	generator := birthdayModel()
	agent := newTestAgent(t, generator).WithUserInput(scriptedInput("04-09-2025"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, agent.Run(ctx))
	assert.Empty(t, generator.requests)
}

func TestCropText(t *testing.T) {
	assert.Equal(t, "short", CropText("short", 10))

	cropped := CropText(strings.Repeat("a", 50)+strings.Repeat("b", 50), 10)
	assert.Equal(t, "aaaaa…bbbbb", cropped)

	// Multi-byte characters are never split.
	assert.Equal(t, "🎉🎉", CropText("🎉🎉", 2))
	cropped = CropText(`{"message":"Happy Birthday 🎉🎉🎉🎉"}`, 30)
	assert.True(t, utf8.ValidString(cropped))
	assert.Equal(t, `{"message":"Hap…Birthday 🎉🎉🎉🎉"}`, cropped)
}

func TestFormatUsageMetadata(t *testing.T) {
	assert.Equal(t, "usage metadata not available", formatUsageMetadata(nil))
	assert.Equal(t, "prompt=10 candidates=5 total=15", formatUsageMetadata(&genai.GenerateContentResponseUsageMetadata{
		PromptTokenCount:     10,
		CandidatesTokenCount: 5,
		TotalTokenCount:      15,
	}))
}
