// Package audit records what a node did to its vaults.
//
// Every vault and secret operation appends one JSON object to a JSON Lines
// file at <data>/audit.jsonl. Each entry carries a UTC timestamp with
// microseconds, the acting node's name and UUID, the operation name and
// whichever of vault, secret, peer, commit and key fingerprint apply.
//
//	entry := audit.LogWithNode(audit.OpSecretAdd)
//	entry.Vault, entry.Secret = "secrets-1", "db-pass"
//	audit.Log(entry)
//
// Logging is best-effort: if the log cannot be written the operation still
// succeeds. Secret values are never recorded.
package audit
