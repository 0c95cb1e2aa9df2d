package utils

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/term"
)

// ReadPassphrase prompts for input on stderr without echoing it.
// Returns an error if stdin is not a terminal.
func ReadPassphrase(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())

	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("cannot read passphrase: stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, prompt)
	passphrase, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}

	return passphrase, nil
}

// ReadNewPassphrase prompts twice and fails if the entries differ.
func ReadNewPassphrase(prompt string) ([]byte, error) {
	first, err := ReadPassphrase(prompt)
	if err != nil {
		return nil, err
	}
	second, err := ReadPassphrase("Confirm: ")
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(first, second) {
		return nil, fmt.Errorf("passphrases do not match")
	}
	return first, nil
}

// IsTerminal returns true if stdin is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTerminal returns true if stdout is a terminal. Spinners are
// only drawn when it is.
func IsStdoutTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
