package utils

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

var (
	nodeNameInvalid = regexp.MustCompile(`[^a-z0-9\-_]`)
	repeatedHyphens = regexp.MustCompile(`-+`)
)

// GetUsername returns the current username.
func GetUsername() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// GetHostname returns the system hostname.
func GetHostname() (string, error) {
	return os.Hostname()
}

// SanitizeNodeName lowercases name, turns spaces into hyphens and drops
// anything that is not alphanumeric, a hyphen or an underscore.
func SanitizeNodeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "-")
	name = nodeNameInvalid.ReplaceAllString(name, "")
	name = repeatedHyphens.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if name == "" {
		name = "node"
	}
	return name
}

// DefaultNodeName derives a node name from the hostname, falling back to
// the username.
func DefaultNodeName() string {
	hostname, err := GetHostname()
	if err != nil || hostname == "" {
		if hostname, err = GetUsername(); err != nil {
			hostname = ""
		}
	}
	return SanitizeNodeName(hostname)
}
