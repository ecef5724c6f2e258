package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dhamidi/birthdaybot/config"
	"github.com/dhamidi/birthdaybot/history"
)

// handleHistoryCommand processes subcommands for the 'history' feature.
func handleHistoryCommand(args []string, out io.Writer) error {
	if len(args) < 1 {
		return errors.New("no history subcommand provided, use: birthdaybot history <list|show>")
	}

	subcommand := args[0]
	remainingArgs := args[1:]
	if subcommand != "list" && subcommand != "show" {
		return fmt.Errorf("unknown history subcommand '%s', available: list, show", subcommand)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if subcommand == "list" {
		return listConversations(ctx, store, remainingArgs, out)
	}
	return showConversation(ctx, store, remainingArgs, out)
}

func listConversations(ctx context.Context, store *history.Store, args []string, out io.Writer) error {
	listCmd := flag.NewFlagSet("list", flag.ContinueOnError)
	listCmd.Usage = func() {
		fmt.Fprintf(listCmd.Output(), "Usage: birthdaybot history list\n")
		fmt.Fprintf(listCmd.Output(), "Lists all conversations, newest first.\n")
	}
	if err := listCmd.Parse(args); err != nil {
		return err
	}
	if listCmd.NArg() != 0 {
		listCmd.Usage()
		return errors.New("'list' does not take any arguments")
	}

	conversations, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}

	if len(conversations) == 0 {
		fmt.Fprintln(out, "No conversations found.")
		return nil
	}
	fmt.Fprintln(out, "Conversations:")
	for _, conv := range conversations {
		sender := conv.Sender
		if sender == "" {
			sender = "(local)"
		}
		fmt.Fprintf(out, "  ID: %s, Sender: %s, Created: %s, Last Message: %s, Messages: %d\n",
			conv.ID, sender, conv.CreatedAt.Format(time.RFC3339),
			conv.LatestMessageTime.Format(time.RFC3339), conv.MessageCount)
	}
	return nil
}

func showConversation(ctx context.Context, store *history.Store, args []string, out io.Writer) error {
	showCmd := flag.NewFlagSet("show", flag.ContinueOnError)
	var conversationID string
	showCmd.StringVar(&conversationID, "id", "", "ID of the conversation to show, or 'latest'")
	showCmd.Usage = func() {
		fmt.Fprintf(showCmd.Output(), "Usage: birthdaybot history show -id <conversation-id|latest>\n")
		fmt.Fprintf(showCmd.Output(), "Shows the messages of a specific conversation.\n")
		showCmd.PrintDefaults()
	}
	if err := showCmd.Parse(args); err != nil {
		return err
	}

	if conversationID == "" {
		showCmd.Usage()
		return errors.New("-id flag is required for 'show'")
	}
	if showCmd.NArg() != 0 {
		showCmd.Usage()
		return errors.New("'show' does not take positional arguments")
	}

	if conversationID == "latest" {
		latest, err := store.Latest(ctx)
		if errors.Is(err, history.ErrConversationNotFound) {
			fmt.Fprintln(out, "No conversations found.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("finding latest conversation: %w", err)
		}
		conversationID = latest
	}

	conv, err := store.Load(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("loading conversation '%s': %w", conversationID, err)
	}

	fmt.Fprintf(out, "Conversation ID: %s\n", conv.ID)
	if conv.Sender != "" {
		fmt.Fprintf(out, "Sender: %s\n", conv.Sender)
	}
	fmt.Fprintf(out, "Created At: %s\n", conv.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Messages (%d):\n", len(conv.Messages))
	for i, msg := range conv.Messages {
		fmt.Fprintf(out, "  [%d] Created At: %s\n", i, msg.CreatedAt.Format(time.RFC3339))
		payloadJSON, jsonErr := json.MarshalIndent(msg.Payload, "      ", "  ")
		if jsonErr != nil {
			fmt.Fprintf(out, "      Payload: %v\n", msg.Payload)
		} else {
			fmt.Fprintf(out, "      Payload: %s\n", string(payloadJSON))
		}
	}
	return nil
}
