// Package ui provides semantic text formatting for CLI output.
//
// Formatters render with color when the terminal supports it. When
// NO_COLOR is set or the terminal doesn't support colors, text-based
// decorations (backticks, quotes) are used instead.
//
//	ui.Code.Sprint("strongbox vaults pull secrets-1")
//	ui.Highlight.Sprint("db-pass")
//	ui.Oid.Sprint(ui.ShortOid(commit))
//	ui.Success.Sprint("✓")
//	ui.Muted.Sprint("no secrets")
package ui
