package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/briandowns/spinner"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/ui"
	"github.com/PolarWolf314/strongbox/internal/utils"
	"github.com/PolarWolf314/strongbox/internal/workflows"
)

// startSpinner creates and starts a spinner with the given message when not in verbose or debug mode.
// Returns the spinner and a function that should be deferred to clean up.
//
// spinner.FinalMSG values do NOT need trailing newlines. The cleanup function
// calls ui.EnsureNewline() on the final message before printing it.
func startSpinner(message string) (*spinner.Spinner, func()) {
	Logger.Debugf("Starting spinner with message: %s", message)
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message

	if err := s.Color("cyan"); err != nil {
		Logger.Warnf("Failed to set spinner color: %v", err)
	}

	quiet := !verbose && !debug
	animate := quiet && utils.IsStdoutTerminal()
	if animate {
		s.Start()
	}
	if quiet {
		// Ensure log output is discarded unless in verbose mode.
		log.SetOutput(io.Discard)
	} else {
		Logger.Infof("Running in verbose or debug mode: %s", message)
	}

	cleanup := func() {
		if quiet {
			log.SetOutput(os.Stderr)
		}

		finalMsg := ""
		if s.FinalMSG != "" {
			finalMsg = ui.EnsureNewline(s.FinalMSG)
			// Clear FinalMSG so s.Stop() doesn't print it.
			s.FinalMSG = ""
		}

		if animate {
			s.Stop()
		}

		// Print final message to stdout (for tests to capture).
		if finalMsg != "" {
			fmt.Print(finalMsg)
		}
	}

	return s, cleanup
}

// progressOutput is where a peer's progress messages go. They are only
// shown in verbose or debug mode, where no spinner is drawn over them.
func progressOutput() io.Writer {
	if verbose || debug {
		return os.Stderr
	}
	return nil
}

// loadNode loads this node, prompting for the key passphrase if the key
// is protected and stdin is a terminal.
func loadNode(ctx context.Context) (*workflows.Node, error) {
	n, err := workflows.LoadNode(ctx, workflows.LoadOptions{Log: Logger})
	if !errors.Is(err, kerrors.ErrPassphraseRequired) || !utils.IsTerminal() {
		return n, err
	}
	passphrase, perr := utils.ReadPassphrase("Enter passphrase for node key: ")
	if perr != nil {
		return nil, perr
	}
	return workflows.LoadNode(ctx, workflows.LoadOptions{Passphrase: passphrase, Log: Logger})
}

// formatError formats an error for display to the user. Errors without a
// dedicated message fall back to prefix.
func formatError(prefix string, err error) string {
	cross := ui.Error.Sprint("✗") + " "
	hint := ui.Info.Sprint("→") + " "

	switch {
	case errors.Is(err, kerrors.ErrNodeNotInitialized):
		return cross + "This node has not been initialized\n" +
			hint + "Run " + ui.Code.Sprint("strongbox node init") + " first"

	case errors.Is(err, kerrors.ErrNodeAlreadyInitialized):
		return cross + "This node is already initialized\n" +
			hint + "Run " + ui.Code.Sprint("strongbox node init --force") + " to replace its key pair"

	case errors.Is(err, kerrors.ErrPassphraseRequired):
		return cross + "The node key is passphrase protected\n" +
			hint + "Run the command from a terminal to enter the passphrase"

	case errors.Is(err, kerrors.ErrVaultNotFound):
		return cross + err.Error() + "\n" +
			hint + "Run " + ui.Code.Sprint("strongbox vaults list") + " to see this node's vaults"

	case errors.Is(err, kerrors.ErrVaultExists),
		errors.Is(err, kerrors.ErrInvalidVaultName),
		errors.Is(err, kerrors.ErrSecretExists),
		errors.Is(err, kerrors.ErrInvalidSecretName),
		errors.Is(err, kerrors.ErrKeyAlreadyShared),
		errors.Is(err, kerrors.ErrKeyNotShared),
		errors.Is(err, kerrors.ErrInvalidEmail),
		errors.Is(err, kerrors.ErrNothingToCommit):
		return cross + err.Error()

	case errors.Is(err, kerrors.ErrSecretNotFound):
		return cross + err.Error() + "\n" +
			hint + "Run " + ui.Code.Sprint("strongbox secrets list <vault>") + " to see the vault's secrets"

	case errors.Is(err, kerrors.ErrUnknownPeer):
		return cross + err.Error() + "\n" +
			hint + "Add it with " + ui.Code.Sprint("strongbox node peer add <name> <url>") + " or pass a URL"

	case errors.Is(err, kerrors.ErrPeerNoVault):
		return cross + "The peer does not hold that vault"

	case errors.Is(err, kerrors.ErrNonFastForward):
		return cross + "The vault has diverged from the peer and cannot be fast-forwarded"

	case errors.Is(err, kerrors.ErrDecryptFailed):
		return cross + prefix + ": the data could not be decrypted with this node's key"

	default:
		return cross + prefix + ": " + err.Error()
	}
}

// isUnexpectedError returns true if the error is unexpected and should cause a non-zero exit.
func isUnexpectedError(err error) bool {
	switch {
	case errors.Is(err, kerrors.ErrNodeNotInitialized),
		errors.Is(err, kerrors.ErrNodeAlreadyInitialized),
		errors.Is(err, kerrors.ErrVaultNotFound),
		errors.Is(err, kerrors.ErrVaultExists),
		errors.Is(err, kerrors.ErrInvalidVaultName),
		errors.Is(err, kerrors.ErrSecretExists),
		errors.Is(err, kerrors.ErrSecretNotFound),
		errors.Is(err, kerrors.ErrInvalidSecretName),
		errors.Is(err, kerrors.ErrKeyAlreadyShared),
		errors.Is(err, kerrors.ErrKeyNotShared),
		errors.Is(err, kerrors.ErrInvalidEmail),
		errors.Is(err, kerrors.ErrNothingToCommit),
		errors.Is(err, kerrors.ErrUnknownPeer),
		errors.Is(err, kerrors.ErrPeerNoVault):
		return false
	default:
		return true
	}
}

// fail reports err on the spinner and decides the command's exit error.
func fail(s *spinner.Spinner, prefix string, err error) error {
	Logger.Debugf("%s: %v", prefix, err)
	s.FinalMSG = formatError(prefix, err)
	if isUnexpectedError(err) {
		return err
	}
	return nil
}
