package utils

import (
	"regexp"
	"strings"

	"github.com/PolarWolf314/strongbox/internal/ui"
)

// emailRegex checks for local-part@domain.tld.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// FormatList renders items as an indented bullet list, one per line.
func FormatList(items []string, f ui.Formatter) string {
	var b strings.Builder
	b.WriteString("\n")
	for _, item := range items {
		b.WriteString("    - ")
		b.WriteString(f.Sprint(item))
		b.WriteString("\n")
	}
	return b.String()
}

// IsValidEmail checks if the given string is a valid email address format.
func IsValidEmail(email string) bool {
	if email == "" {
		return false
	}
	return emailRegex.MatchString(email)
}
