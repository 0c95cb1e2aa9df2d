package utils

import (
	"fmt"
	"io"
	"os"
)

// ReadStdin reads all of stdin. It fails if stdin is a terminal or empty.
func ReadStdin() ([]byte, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat stdin: %w", err)
	}

	if (stat.Mode() & os.ModeCharDevice) != 0 {
		return nil, fmt.Errorf("no data provided on stdin (hint: pipe the secret value to this command)")
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read from stdin: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("stdin is empty")
	}

	return data, nil
}

// ReadSecretValue reads a secret from piped stdin, or prompts for it
// without echo when stdin is a terminal.
func ReadSecretValue(prompt string) ([]byte, error) {
	if IsTerminal() {
		return ReadPassphrase(prompt)
	}
	return ReadStdin()
}
