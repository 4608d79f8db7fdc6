package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateMessageIDUsesSenderDomain(t *testing.T) {
	id := generateMessageID("assistant@acme.com")
	require.True(t, strings.HasPrefix(id, "<"))
	require.True(t, strings.HasSuffix(id, "@acme.com>"))
}

func TestGenerateMessageIDFallbackDomain(t *testing.T) {
	id := generateMessageID("not-an-address")
	require.True(t, strings.HasSuffix(id, "@meetsync.local>"))
}

func TestIsTemporaryError(t *testing.T) {
	require.False(t, isTemporaryError(nil))
	require.True(t, isTemporaryError(errors.New("451 4.3.0 temporary local problem")))
	require.True(t, isTemporaryError(errors.New("421 service not available, try again")))
	require.False(t, isTemporaryError(errors.New("550 mailbox unavailable")))
	require.False(t, isTemporaryError(errors.New("535 authentication failed")))
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "dana@example.com", NormalizeEmail("  Dana@Example.COM "))
}
