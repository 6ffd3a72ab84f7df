package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHISPART_CONFIG_DIR", t.TempDir())
	t.Setenv("CHISPART_DEFAULT_API", "")
	t.Setenv("CHISPART_PLAN", "")
	t.Setenv("CHISPART_MOBILE", "")
	t.Setenv("CHISPART_FALLBACK", "")
	t.Setenv("CHISPART_HISTORY", "")
	t.Setenv("PORT", "")

	s, err := Load()
	require.NoError(t, err)

	require.Equal(t, "free", s.Plan)
	require.Equal(t, "jsonl", s.HistoryBackend)
	require.Equal(t, "8080", s.Port)
	require.False(t, s.Mobile)
	require.True(t, filepath.IsAbs(s.HistoryPath))
	require.Equal(t, "chat_history.jsonl", filepath.Base(s.HistoryPath))
	require.Equal(t, "api_keys.json.b64", filepath.Base(s.KeyStorePath))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CHISPART_CONFIG_DIR", t.TempDir())
	t.Setenv("CHISPART_DEFAULT_API", "groq")
	t.Setenv("CHISPART_PLAN", "pro")
	t.Setenv("CHISPART_MOBILE", "true")
	t.Setenv("CHISPART_FALLBACK", "")
	t.Setenv("CHISPART_HISTORY", "/tmp/custom.jsonl")
	t.Setenv("PORT", "9999")

	s, err := Load()
	require.NoError(t, err)

	require.Equal(t, "groq", s.DefaultProvider)
	require.Equal(t, "pro", s.Plan)
	require.True(t, s.Mobile)
	require.Equal(t, "/tmp/custom.jsonl", s.HistoryPath)
	require.Equal(t, "9999", s.Port)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHISPART_CONFIG_DIR", dir)
	t.Setenv("CHISPART_DEFAULT_API", "")
	t.Setenv("CHISPART_PLAN", "")
	t.Setenv("CHISPART_MOBILE", "")
	t.Setenv("CHISPART_FALLBACK", "")
	t.Setenv("CHISPART_HISTORY", "")
	t.Setenv("PORT", "")

	require.NoError(t, Save(&Settings{
		DefaultProvider: "anthropic",
		Plan:            "basic",
		HistoryBackend:  "sqlite",
		Port:            "8081",
	}))

	info, err := os.Stat(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	s, err := Load()
	require.NoError(t, err)
	require.Equal(t, "anthropic", s.DefaultProvider)
	require.Equal(t, "basic", s.Plan)
	require.Equal(t, "sqlite", s.HistoryBackend)
	require.Equal(t, "8081", s.Port)
	require.Equal(t, "chat_history.db", filepath.Base(s.HistoryPath))
}

func TestLoadRejectsBadYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHISPART_CONFIG_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{not yaml"), 0o600))

	_, err := Load()
	require.Error(t, err)
}
