package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dhamidi/birthdaybot"
	"github.com/dhamidi/birthdaybot/config"
	"github.com/dhamidi/birthdaybot/history"
	"github.com/spf13/afero"
	"google.golang.org/genai"
)

// continueFlag accepts a bare -continue as well as -continue=<id|latest>.
type continueFlag struct {
	set bool
	id  string
}

func (c *continueFlag) String() string { return c.id }

func (c *continueFlag) IsBoolFlag() bool { return true }

func (c *continueFlag) Set(value string) error {
	c.set = true
	switch value {
	case "true", "latest":
		c.id = ""
	case "false":
		c.set = false
	default:
		c.id = value
	}
	return nil
}

// handleChatCommand runs the interactive chat and records it in the
// history database when it ends.
func handleChatCommand(args []string) error {
	var (
		modelName        string
		conversationPath string
		exportPath       string
		plain, asJSON    bool
		continueConv     continueFlag
	)

	chatCmd := flag.NewFlagSet("chat", flag.ContinueOnError)
	chatCmd.StringVar(&modelName, "model", "", "The name of the model to use")
	chatCmd.StringVar(&modelName, "m", "", "The name of the model to use (shorthand)")
	chatCmd.StringVar(&conversationPath, "conversation", "", "Path to a JSON file to initialize the conversation")
	chatCmd.Var(&continueConv, "continue", "Continue a recorded chat: bare flag or 'latest' for the newest, or -continue=<id>")
	chatCmd.StringVar(&exportPath, "export", "", "Write the conversation as JSON to this file when the chat ends")
	chatCmd.BoolVar(&plain, "plain", false, "Print plain text instead of rendered markdown")
	chatCmd.BoolVar(&asJSON, "json", false, "Print one JSON line per message")
	if err := chatCmd.Parse(args); err != nil {
		return err
	}

	if chatCmd.NArg() > 0 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unexpected positional arguments: %v", chatCmd.Args())
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	fsys := afero.NewOsFs()
	conv, initial, err := startConversation(ctx, store, fsys, continueConv, conversationPath, logger)
	if err != nil {
		return err
	}

	var display birthdaybot.TextDisplayer = &birthdaybot.GlamourousTextDisplay{}
	switch {
	case asJSON:
		display = &birthdaybot.JSONDisplay{}
	case plain:
		display = &birthdaybot.RawTextDisplay{}
	}

	agent, err := newAgent(ctx, cfg, modelName, initial, logger)
	if err != nil {
		return err
	}
	agent.WithDisplay(display).WithUserInput(lineReader(ctx, os.Stdin))
	runErr := agent.Run(ctx)

	// Save even after an error so the exchange so far is not lost.
	if err := finishConversation(store, fsys, conv, agent.History(), exportPath, logger); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		return fmt.Errorf("running birthdaybot: %w", runErr)
	}
	return nil
}

// finishConversation records contents in store and, when exportPath is
// set, writes them to that file.
func finishConversation(store *history.Store, fsys afero.Fs, conv *history.Conversation, contents []*genai.Content, exportPath string, logger *slog.Logger) error {
	birthdaybot.SyncConversation(conv, contents)
	if len(conv.Messages) > 0 {
		if err := store.Save(context.Background(), conv); err != nil {
			return fmt.Errorf("saving conversation %s: %w", conv.ID, err)
		}
		logger.Info("conversation saved", slog.String("id", conv.ID), slog.Int("messages", len(conv.Messages)))
	}
	if exportPath != "" {
		if err := birthdaybot.SaveConversationToFile(fsys, exportPath, contents); err != nil {
			return err
		}
	}
	return nil
}

// startConversation picks the conversation record to append to and the
// contents the agent starts from.
func startConversation(ctx context.Context, store *history.Store, fsys afero.Fs, cont continueFlag, conversationPath string, logger *slog.Logger) (*history.Conversation, []*genai.Content, error) {
	if cont.set {
		if conversationPath != "" {
			logger.Warn("both -continue and -conversation given, using -continue")
		}

		id := cont.id
		if id == "" {
			latest, err := store.LatestFor(ctx, "")
			if errors.Is(err, history.ErrConversationNotFound) {
				logger.Info("no conversations found in history, starting a new one")
				return newConversation(nil)
			}
			if err != nil {
				return nil, nil, err
			}
			id = latest
		}

		conv, err := store.Load(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		contents, err := birthdaybot.ContentsFromConversation(conv)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("continuing conversation", slog.String("id", conv.ID), slog.Int("messages", len(contents)))
		return conv, contents, nil
	}

	initial, err := birthdaybot.LoadConversationFromFile(fsys, conversationPath)
	if err != nil {
		return nil, nil, err
	}
	return newConversation(initial)
}

func newConversation(initial []*genai.Content) (*history.Conversation, []*genai.Content, error) {
	conv, err := history.New("")
	if err != nil {
		return nil, nil, fmt.Errorf("creating conversation: %w", err)
	}
	return conv, initial, nil
}

// lineReader returns an input function for Agent.Run that gives up as
// soon as ctx is done, even while stdin is blocked.
func lineReader(ctx context.Context, r io.Reader) func() (string, bool) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() (string, bool) {
		select {
		case <-ctx.Done():
			return "", false
		case line, ok := <-lines:
			return line, ok
		}
	}
}
