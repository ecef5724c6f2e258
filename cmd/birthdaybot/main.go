package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

const usage = `Usage: birthdaybot [command] [flags]

Commands:
  chat       talk to the birthday agent (default)
  check      check a message offline, without calling the model
  history    list or show recorded conversations
  serve      run the webhook server
`

// exitCode ends the process with a specific status and no message.
type exitCode int

func (c exitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(c))
}

func main() {
	err := run(os.Args[1:])

	var code exitCode
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return
	case errors.As(err, &code):
		os.Exit(int(code))
	default:
		die("Error: %v", err)
	}
}

// run dispatches to the subcommand named by args[0]. Commands return their
// errors here so their deferred cleanup runs before the process exits.
func run(args []string) error {
	if len(args) == 0 {
		return handleChatCommand(nil)
	}

	switch args[0] {
	case "chat":
		return handleChatCommand(args[1:])
	case "check":
		return handleCheckCommand(args[1:], os.Stdout)
	case "history":
		return handleHistoryCommand(args[1:], os.Stdout)
	case "serve":
		return handleServeCommand(args[1:])
	case "help", "-h", "-help", "--help":
		fmt.Print(usage)
		return nil
	default:
		// Flags without a command belong to chat.
		return handleChatCommand(args)
	}
}
