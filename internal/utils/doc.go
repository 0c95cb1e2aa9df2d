// Package utils provides small helpers shared by the strongbox CLI.
//
// # System Utilities
//
//   - GetUsername, GetHostname: identify the local machine
//   - SanitizeNodeName, DefaultNodeName: derive a node name from the host
//
// # String Utilities
//
//   - FormatList: render names as a bullet list
//   - IsValidEmail: check the node contact address
//
// # I/O and Terminal Utilities
//
//   - ReadStdin, ReadSecretValue: read secret values from a pipe or prompt
//   - ReadPassphrase, ReadNewPassphrase: hidden input via golang.org/x/term
//   - IsTerminal, IsStdoutTerminal: terminal detection
package utils
