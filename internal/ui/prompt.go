package ui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotTerminal is returned when a secret is requested without a terminal.
var ErrNotTerminal = errors.New("stdin is not a terminal")

// StdinIsTerminal reports whether secrets can be prompted for.
func StdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// PromptSecret asks for a secret on the terminal without echoing it.
func PromptSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNotTerminal
	}
	fmt.Fprint(writer, prompt+": ")
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(writer)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(prompt), err)
	}
	return strings.TrimSpace(string(secret)), nil
}
