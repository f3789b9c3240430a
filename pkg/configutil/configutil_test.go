package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	BaseUrl  string `json:"base_url"`
	Username string `json:"username"`
	Rate     int    `json:"rate"`
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "tunnelflight.json5")

	_, err := ReadConfig[testConfig](name)
	require.ErrorIs(t, err, os.ErrNotExist)

	err = os.WriteFile(name, []byte(`{
		// comments are allowed
		base_url: "https://www.tunnelflight.com",
		username: "alice",
		rate: 2,
	}`), 0o600)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, testConfig{BaseUrl: "https://www.tunnelflight.com", Username: "alice", Rate: 2}, cfg)

	err = os.WriteFile(filepath.Join(dir, "tunnelflight.local.json5"), []byte(`{username: "bob"}`), 0o600)
	require.NoError(t, err)

	cfg, err = ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, "bob", cfg.Username)
	require.Equal(t, "https://www.tunnelflight.com", cfg.BaseUrl)
	require.Equal(t, 2, cfg.Rate)
}

func TestLocalName(t *testing.T) {
	require.Equal(t, "a/b/config.local.json5", localName("a/b/config.json5"))
	require.Equal(t, "config.local", localName("config"))
}
