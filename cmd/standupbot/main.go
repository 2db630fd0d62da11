package main

import (
	"errors"
	"fmt"
	"os"
	_ "time/tzdata"

	"standupbot/internal/standup"
)

// Exit codes.
const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(os.Stderr, "fatal:", err)
	var ce *standup.ConfigurationError
	if errors.As(err, &ce) {
		return exitConfig
	}
	return exitError
}
