package tunnelflight

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCredentials(t *testing.T) {
	creds := NewCredentials("  Alice@Example.com ", "hunter2")
	require.Equal(t, "alice@example.com", creds.Username())

	require.NotContains(t, creds.String(), "hunter2")
	require.NotContains(t, fmt.Sprintf("%v %+v %s", creds, creds, creds), "hunter2")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("login", "creds", creds)
	require.NotContains(t, buf.String(), "hunter2")
	require.Contains(t, buf.String(), "alice@example.com")

	require.Panics(t, func() { NewCredentials("", "x") })
	require.Panics(t, func() { NewCredentials("   ", "x") })
	require.Panics(t, func() { NewCredentials("alice", "") })
}
