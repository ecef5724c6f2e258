package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dhamidi/birthdaybot"
	"github.com/dhamidi/birthdaybot/config"
	"google.golang.org/genai"
)

// die prints a formatted error message to stderr and exits with status 1.
// Only main calls it, after every command has cleaned up.
func die(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format, a...)
	if !strings.HasSuffix(format, "\n") {
		fmt.Fprintln(os.Stderr)
	}
	os.Exit(1)
}

// newLogger writes text logs to stderr so they never mix with chat output.
func newLogger(cfg config.Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)
	return logger
}

// newAgent wires a Gemini-backed agent with the birthday tools.
// initial seeds the conversation history.
func newAgent(ctx context.Context, cfg config.Config, model string, initial []*genai.Content, logger *slog.Logger) (*birthdaybot.Agent, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}

	client, err := birthdaybot.NewClient(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	prompt, err := birthdaybot.SystemPrompt(cfg.SystemPromptPath, birthdaybot.DefaultReplies)
	if err != nil {
		return nil, err
	}

	tools, err := birthdaybot.NewBirthdayToolBox(birthdaybot.SystemClock(cfg.Location), birthdaybot.DefaultReplies)
	if err != nil {
		return nil, fmt.Errorf("building tools: %w", err)
	}

	if model == "" {
		model = cfg.Model
	}
	return birthdaybot.NewAgent(client.Models, tools, prompt, initial).
		ChooseModel(model).
		WithTemperature(cfg.Temperature).
		WithLogger(logger), nil
}
