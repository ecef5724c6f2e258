package birthdaybot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// DefaultModel is used when no model is chosen explicitly.
const DefaultModel = "gemini-2.0-flash"

// FallbackReply is returned when the model produced no text at all.
const FallbackReply = "Sorry, I couldn't process that message."

// maxToolRounds bounds how many times a single user message may bounce
// between the model and the tools.
const maxToolRounds = 8

// ContentGenerator is the part of *genai.Models the agent needs.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewClient returns a Gemini client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing gemini client: %w", err)
	}
	return client, nil
}

type Agent struct {
	name              string
	generator         ContentGenerator
	getUserMessage    func() (string, bool)
	tools             ToolBox
	tracingEnabled    bool
	systemInstruction string
	history           []*genai.Content
	modelName         string
	temperature       float32
	welcome           string
	display           TextDisplayer
	logger            *slog.Logger
	retryDelays       []time.Duration
	maxRetries        int
}

func NewAgent(generator ContentGenerator, tools ToolBox, systemInstruction string, initialHistory []*genai.Content) *Agent {
	return &Agent{
		name:              "birthdaybot",
		generator:         generator,
		getUserMessage:    func() (string, bool) { return "", false },
		tools:             tools,
		systemInstruction: systemInstruction,
		history:           initialHistory,
		modelName:         DefaultModel,
		temperature:       0.1,
		welcome:           DefaultReplies.Welcome,
		display:           &RawTextDisplay{},
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		retryDelays:       []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second, 30 * time.Second},
		maxRetries:        5,
	}
}

func (agent *Agent) ChooseModel(modelName string) *Agent {
	if modelName != "" {
		agent.modelName = modelName
	}
	return agent
}

func (agent *Agent) WithTemperature(temperature float32) *Agent {
	agent.temperature = temperature
	return agent
}

func (agent *Agent) WithDisplay(display TextDisplayer) *Agent {
	agent.display = display
	return agent
}

func (agent *Agent) WithLogger(logger *slog.Logger) *Agent {
	agent.logger = logger.With(slog.String("agent", agent.name))
	return agent
}

// WithUserInput sets the source of user lines for Run. The function
// returns false once input is exhausted.
func (agent *Agent) WithUserInput(getUserMessage func() (string, bool)) *Agent {
	agent.getUserMessage = getUserMessage
	return agent
}

// WithWelcome sets the greeting Run prints before reading input.
func (agent *Agent) WithWelcome(welcome string) *Agent {
	agent.welcome = welcome
	return agent
}

// WithRetryDelays replaces the delays between retried inference calls.
func (agent *Agent) WithRetryDelays(delays ...time.Duration) *Agent {
	agent.retryDelays = delays
	return agent
}

func (agent *Agent) EnableTracing() *Agent {
	agent.tracingEnabled = true
	return agent
}

func (agent *Agent) DisableTracing() *Agent {
	agent.tracingEnabled = false
	return agent
}

// History returns the conversation accumulated by Run.
func (agent *Agent) History() []*genai.Content {
	return agent.history
}

// Respond answers a single message without touching the agent's history,
// running tools until the model replies with text.
func (agent *Agent) Respond(ctx context.Context, message string) (string, error) {
	conversation := []*genai.Content{genai.NewContentFromText(message, genai.RoleUser)}
	_, reply, err := agent.converse(ctx, conversation, false)
	if err != nil {
		return "", err
	}
	return reply, nil
}

// Run reads user lines until input ends, the user quits or ctx is done.
func (agent *Agent) Run(ctx context.Context) error {
	if agent.history == nil {
		agent.history = []*genai.Content{}
	}
	agent.logger.Info("chat started", slog.String("model", agent.modelName), slog.String("tools", strings.Join(agent.tools.Names(), ", ")))
	if agent.welcome != "" {
		agent.display.DisplayMessage("Agent", ColorModel, -1, "%s", agent.welcome)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		agent.display.DisplayPrompt("\u001b[%smYou [%d]\u001b[0m: ", ColorUser, len(agent.history))
		userInput, ok := agent.getUserMessage()
		if !ok {
			return nil
		}

		switch command := strings.TrimSpace(userInput); strings.ToLower(command) {
		case "":
			continue
		case "quit", "exit", "q":
			agent.display.DisplayMessage("Agent", ColorModel, -1, "Goodbye!")
			return nil
		case "/trace":
			agent.EnableTracing()
			continue
		case "/no-trace":
			agent.DisableTracing()
			continue
		}

		conversation := append(agent.history, genai.NewContentFromText(userInput, genai.RoleUser))
		conversation, _, err := agent.converse(ctx, conversation, true)
		agent.history = conversation
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// converse drives the model until it answers without tool calls. It
// returns the extended conversation and the final text reply. When show is
// set, model text and tool calls are sent to the display as they happen.
func (agent *Agent) converse(ctx context.Context, conversation []*genai.Content, show bool) ([]*genai.Content, string, error) {
	for round := 0; round < maxToolRounds; round++ {
		response, err := agent.runInference(ctx, conversation)
		if err != nil {
			return conversation, "", err
		}
		agent.logger.Debug("inference finished", slog.String("usage", formatUsageMetadata(response.UsageMetadata)))

		if len(response.Candidates) == 0 || response.Candidates[0].Content == nil || len(response.Candidates[0].Content.Parts) == 0 {
			agent.logger.Warn("empty response received")
			if show {
				agent.display.DisplayError("empty response received")
			}
			return conversation, FallbackReply, nil
		}

		responseMessage := response.Candidates[0].Content
		conversation = append(conversation, responseMessage)

		var text []string
		toolResults := []*genai.Part{}
		for _, part := range responseMessage.Parts {
			if part.Text != "" {
				text = append(text, part.Text)
				if show {
					agent.display.DisplayMessage("Agent", ColorModel, len(conversation), "%s", strings.TrimSpace(part.Text))
				}
			} else if part.FunctionCall != nil {
				toolResults = append(toolResults, agent.executeTool(part.FunctionCall, len(conversation), show))
			}
		}

		if len(toolResults) == 0 {
			reply := strings.TrimSpace(strings.Join(text, "\n"))
			if reply == "" {
				reply = FallbackReply
			}
			return conversation, reply, nil
		}

		conversation = append(conversation, &genai.Content{Role: string(genai.RoleUser), Parts: toolResults})
	}

	agent.logger.Warn("too many tool rounds", slog.Int("limit", maxToolRounds))
	return conversation, FallbackReply, nil
}

func (agent *Agent) executeTool(call *genai.FunctionCall, historyCount int, show bool) *genai.Part {
	toolMessage := func(format string, args ...any) {
		if show {
			agent.display.DisplayMessage("Tool", ColorTool, historyCount, format, args...)
		}
	}

	toolMessage("%s", FormatFunctionCall(call))
	tool, found := agent.tools.Get(call.Name)
	if !found {
		agent.logger.Warn("model called unknown tool", slog.String("tool", call.Name))
		toolMessage("%s", "not found")
		return functionResponse(call, map[string]any{"error": "tool not found"})
	}

	result, err := tool.Function(call.Args)
	if err != nil {
		agent.logger.Warn("tool failed", slog.String("tool", call.Name), slog.Any("error", err))
		toolMessage("%s", err)
		return functionResponse(call, map[string]any{"error": err.Error()})
	}

	agent.logger.Debug("tool finished", slog.String("tool", call.Name), slog.String("result", AsJSON(result)))
	toolMessage("%s", CropText(AsJSON(result), 70))
	return functionResponse(call, result)
}

func functionResponse(call *genai.FunctionCall, response map[string]any) *genai.Part {
	return &genai.Part{
		FunctionResponse: &genai.FunctionResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: response,
		},
	}
}

func (agent *Agent) trace(direction string, arg any) {
	if !agent.tracingEnabled {
		return
	}
	agent.display.DisplayMessage("Trace "+direction, ColorTrace, -1, "%s", AsJSON(arg))
}

func (agent *Agent) generateContentConfig() *genai.GenerateContentConfig {
	temperature := agent.temperature
	config := &genai.GenerateContentConfig{
		MaxOutputTokens:   1024,
		Temperature:       &temperature,
		SystemInstruction: agent.systemPrompt(),
	}
	if len(agent.tools) > 0 {
		config.Tools = []*genai.Tool{agent.tools.List()}
	}
	return config
}

func (agent *Agent) runInference(ctx context.Context, conversation []*genai.Content) (*genai.GenerateContentResponse, error) {
	agent.trace(">", conversation)

	config := agent.generateContentConfig()
	var err error
	for attempt := 0; attempt < agent.maxRetries; attempt++ {
		var response *genai.GenerateContentResponse
		response, err = agent.generator.GenerateContent(ctx, agent.modelName, conversation, config)
		if err == nil {
			agent.trace("<", response)
			return response, nil
		}

		if !isRetryable(err) || attempt == agent.maxRetries-1 {
			break
		}

		delay := agent.retryDelay(attempt)
		agent.logger.Warn("inference failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", agent.maxRetries),
			slog.Duration("delay", delay),
			slog.Any("error", err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if !isRetryable(err) {
		return nil, fmt.Errorf("generating content: %w", err)
	}
	return nil, fmt.Errorf("after %d attempts, last error: %w", agent.maxRetries, err)
}

// retryDelay returns the pause before retry attempt+1, repeating the last
// configured delay once the list is exhausted.
func (agent *Agent) retryDelay(attempt int) time.Duration {
	if len(agent.retryDelays) == 0 {
		return 0
	}
	if attempt < len(agent.retryDelays) {
		return agent.retryDelays[attempt]
	}
	return agent.retryDelays[len(agent.retryDelays)-1]
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "An internal error has occurred") ||
		strings.Contains(msg, "server error") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "UNAVAILABLE")
}

func (agent *Agent) systemPrompt() *genai.Content {
	if strings.TrimSpace(agent.systemInstruction) == "" {
		return nil
	}

	return genai.NewContentFromText(agent.systemInstruction, genai.RoleUser)
}

func AsJSON(value any) string {
	asBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(asBytes)
}

// formatUsageMetadata creates a single-line summary of token usage.
func formatUsageMetadata(metadata *genai.GenerateContentResponseUsageMetadata) string {
	if metadata == nil {
		return "usage metadata not available"
	}
	return fmt.Sprintf(
		"prompt=%d candidates=%d total=%d",
		metadata.PromptTokenCount,
		metadata.CandidatesTokenCount,
		metadata.TotalTokenCount,
	)
}

// CropText shortens in to width runes, keeping both ends.
func CropText(in string, width int) string {
	runes := []rune(in)
	if len(runes) <= width {
		return in
	}

	half := width / 2
	return string(runes[:half]) + "…" + string(runes[len(runes)-half:])
}
