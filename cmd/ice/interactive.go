package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/cubeice/ice/internal/transaction"
)

type interactiveCtxKeyType struct{}

var interactiveCtxKey = interactiveCtxKeyType{}

func isInteractiveEnvironment() bool {
	if os.Getenv("CI") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func withInteractive(ctx context.Context, interactive bool) context.Context {
	return context.WithValue(ctx, interactiveCtxKey, interactive)
}

func isInteractive(ctx context.Context) bool {
	interactive, ok := ctx.Value(interactiveCtxKey).(bool)
	if !ok {
		return false
	}
	return interactive
}

// terminalPrompt asks the user on the controlling terminal. Prompts go to
// stderr so stdout stays usable for streamed archives.
type terminalPrompt struct {
	in  *os.File
	out io.Writer
}

func newTerminalPrompt() *terminalPrompt {
	return &terminalPrompt{in: os.Stdin, out: os.Stderr}
}

// RequestPassword reads a password without echo. An interrupted read or
// EOF cancels.
func (p *terminalPrompt) RequestPassword() (string, bool) {
	fmt.Fprint(p.out, "Password: ")
	value, err := term.ReadPassword(int(p.in.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", true
	}
	return string(value), false
}

func (p *terminalPrompt) ResolveConflict(ctx context.Context, path string) (transaction.Conflict, error) {
	reader := bufio.NewReader(p.in)
	for {
		fmt.Fprintf(p.out, "%s already exists. [o]verwrite, [r]ename or [c]ancel? ", path)
		line, err := reader.ReadString('\n')
		if err != nil {
			return transaction.ConflictCancel, nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "o", "overwrite":
			return transaction.ConflictOverwrite, nil
		case "r", "rename", "":
			return transaction.ConflictRename, nil
		case "c", "cancel":
			return transaction.ConflictCancel, nil
		}
		if ctx.Err() != nil {
			return transaction.ConflictCancel, nil
		}
	}
}

// noPrompt answers without a terminal: no password, rename on conflict.
type noPrompt struct{}

func (noPrompt) RequestPassword() (string, bool) {
	return "", false
}
