package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dhamidi/birthdaybot"
	"github.com/dhamidi/birthdaybot/birthday"
	"github.com/dhamidi/birthdaybot/config"
)

// handleCheckCommand answers a message with the deterministic checker only.
// It returns exitCode(2) when no usable date was found.
func handleCheckCommand(args []string, out io.Writer) error {
	var today string

	checkCmd := flag.NewFlagSet("check", flag.ContinueOnError)
	checkCmd.StringVar(&today, "today", "", "Pretend today is this date (DD-MM-YYYY)")
	checkCmd.Usage = func() {
		fmt.Fprintf(checkCmd.Output(), "Usage: birthdaybot check [-today DD-MM-YYYY] <message...>\n")
		checkCmd.PrintDefaults()
	}
	if err := checkCmd.Parse(args); err != nil {
		return err
	}

	message := strings.Join(checkCmd.Args(), " ")
	if strings.TrimSpace(message) == "" {
		checkCmd.Usage()
		return errors.New("check needs a message")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	date := birthdaybot.SystemClock(cfg.Location).Today()
	if today != "" {
		parsed, err := birthday.Parse(today)
		if err != nil {
			return fmt.Errorf("-today: %w", err)
		}
		date = parsed
	}

	result := birthday.Check(message, date)
	fmt.Fprintln(out, birthdaybot.DefaultReplies.Explain(message, result))
	if result == birthday.FormatInvalid {
		return exitCode(2)
	}
	return nil
}
