// Package configs manages node configuration for strongbox.
//
// # Settings
//
// StrongboxSettings is initialized at startup with the paths this node
// uses:
//
//   - KeysPath: the node's RSA key pair ($XDG_DATA_HOME/strongbox/keys)
//   - ConfigPath: config.toml (os.UserConfigDir()/strongbox)
//   - DataPath: the vault registry, vault directories and the audit log
//
// Setting STRONGBOX_HOME places all of them below one directory, which is
// how several nodes can run side by side on one machine.
//
// # Node Configuration
//
// config.toml stores:
//   - [node]: the node's UUID, display name and contact email
//   - [server]: listen address and per-peer rate limits for serve
//   - [peers]: short names for peer base URLs
//
// The node UUID is generated on first use by EnsureNodeConfig and sent to
// peers so their rate limits and audit entries can tell nodes apart.
package configs
