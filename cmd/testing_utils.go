package cmd

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/PolarWolf314/strongbox/internal/configs"
)

// setupTestEnvironment points the node settings at a fresh temporary home
// for the rest of the test.
func setupTestEnvironment(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	original := configs.StrongboxSettings
	configs.StrongboxSettings = configs.SettingsForHome(home, "testuser")
	t.Cleanup(func() {
		configs.StrongboxSettings = original
		ResetGlobalState()
	})
	return home
}

// captureOutput captures both stdout and stderr during function execution.
func captureOutput(fn func() error) (string, error) {
	originalStdout := os.Stdout
	originalStderr := os.Stderr

	reader, writer, err := os.Pipe()
	if err != nil {
		return "", err
	}
	os.Stdout = writer
	os.Stderr = writer

	outputChan := make(chan string, 1)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, reader)
		outputChan <- buf.String()
	}()

	runErr := fn()

	writer.Close()
	os.Stdout = originalStdout
	os.Stderr = originalStderr

	return <-outputChan, runErr
}

// runCommand executes the strongbox CLI with args and returns its output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ResetGlobalState()
	RootCmd.SetArgs(args)
	return captureOutput(RootCmd.Execute)
}

// mustRun executes the CLI and fails the test on error.
func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	output, err := runCommand(t, args...)
	if err != nil {
		t.Fatalf("strongbox %v failed: %v\nOutput: %s", args, err, output)
	}
	return output
}
