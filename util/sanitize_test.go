package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeMessage(t *testing.T) {
	sanitized := SanitizeMessage("dial redis://user:pw@host:6379/0: refused")
	assert.Contains(t, sanitized, "[CONNECTION]")
	assert.NotContains(t, sanitized, "redis://")

	assert.Equal(t, "open [PATH]: permission denied",
		SanitizeMessage("open /var/lib/trailguard/ledger.db: permission denied"))

	assert.Equal(t, "connect [PRIVATE_IP] timed out",
		SanitizeMessage("connect 192.168.1.20:8080 timed out"))

	assert.Equal(t, "bad value password=[REDACTED]",
		SanitizeMessage(`bad value password: "hunter2"`))

	long := strings.Repeat("x", 2*MaxMessageLength)
	truncated := SanitizeMessage(long)
	assert.Len(t, truncated, MaxMessageLength)
	assert.True(t, strings.HasSuffix(truncated, "..."))
}
