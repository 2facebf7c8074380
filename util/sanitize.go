// Package util holds small shared helpers.
package util

import "regexp"

// MaxMessageLength caps outbound error message size.
const MaxMessageLength = 500

var (
	connStringPattern = regexp.MustCompile(`(?:redis|sqlite|postgres|mysql)://[^\s"']+`)
	filePathPattern   = regexp.MustCompile(`(?:[A-Za-z]:\\|/)(?:[^\\/:*?"<>|\s]+[\\/])+[^\\/:*?"<>|\s]+`)
	privateIPPattern  = regexp.MustCompile(`\b(?:10|127|192\.168|172\.(?:1[6-9]|2[0-9]|3[01]))(?:\.\d{1,3}){2,3}(?::\d{1,5})?\b`)
	secretPattern     = regexp.MustCompile(`(?i)(password|secret|token|key|credential)[:=]\s*["']?[^"'\s]+["']?`)
)

// SanitizeMessage strips connection strings, file paths, private addresses
// and embedded secrets from a message before it is sent to a client.
func SanitizeMessage(message string) string {
	message = connStringPattern.ReplaceAllString(message, "[CONNECTION]")
	message = filePathPattern.ReplaceAllString(message, "[PATH]")
	message = privateIPPattern.ReplaceAllString(message, "[PRIVATE_IP]")
	message = secretPattern.ReplaceAllString(message, "$1=[REDACTED]")

	if len(message) > MaxMessageLength {
		message = message[:MaxMessageLength-3] + "..."
	}
	return message
}
