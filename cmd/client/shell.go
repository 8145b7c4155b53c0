package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.repl(cmd)
		},
	}
}

// repl runs commands line by line against the same daemon until exit.
func (a *app) repl(parent *cobra.Command) error {
	for {
		line, err := a.in.Ask("gophlock> ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "exit", "quit":
			fmt.Fprintln(a.out, "Bye")
			return nil
		case "shell":
			continue
		}

		server := a.server
		root := newRootCmd(a)
		root.SetArgs(append(args, "--server", server))
		root.SetOut(a.out)
		root.SetErr(a.out)
		if err := root.ExecuteContext(parent.Context()); err != nil {
			fmt.Fprintln(a.out, err)
		}
	}
}
