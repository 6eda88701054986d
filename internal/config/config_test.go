package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.DefaultProvider)
	assert.Equal(t, "claude-3-5-sonnet-20241022", c.DefaultModel)
	assert.Equal(t, 2000, c.MaxTokens)
	assert.Equal(t, 1500, c.VizMaxTokens)
	assert.Equal(t, "en", c.Language)
	assert.Equal(t, 10, c.ExecTimeoutSec)
	assert.Equal(t, filepath.Join(home, ".vizloom", "history.db"), c.HistoryDB)
	assert.True(t, c.HistoryEnabled)
	require.NoError(t, c.Validate())
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "vizloom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("language: fr\nmax_tokens: 900\ndefault_provider: openrouter\n"), 0o644))
	t.Setenv("VIZLOOM_MAX_TOKENS", "1234")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fr", c.Language)
	assert.Equal(t, 1234, c.MaxTokens)
	assert.Equal(t, "openrouter", c.DefaultProvider)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "cfg", "config.yaml")
	c, err := Load("")
	require.NoError(t, err)
	c.APIKey = "sk-123"
	c.SummaryDetail = "extended"
	require.NoError(t, Save(c, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-123", back.APIKey)
	assert.Equal(t, "extended", back.SummaryDetail)
}

func TestKeyForFallsBackToProviderEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "ant")
	t.Setenv("GEMINI_API_KEY", "gem")
	c := &Global{DefaultProvider: "anthropic"}
	assert.Equal(t, "ant", c.KeyFor(""))
	assert.Equal(t, "gem", c.KeyFor("google"))
	assert.Equal(t, "", c.KeyFor("ollama"))

	c.APIKey = "explicit"
	assert.Equal(t, "explicit", c.KeyFor("gemini"))
}

func TestValidate(t *testing.T) {
	c := &Global{Language: "de", SummaryDetail: "basic", MaxTokens: 1, VizMaxTokens: 1, ExecTimeoutSec: 1}
	assert.ErrorContains(t, c.Validate(), "language")
	c.Language = "en"
	c.SummaryDetail = "full"
	assert.ErrorContains(t, c.Validate(), "summary_detail")
	c.SummaryDetail = "basic"
	c.ExecTimeoutSec = 0
	assert.ErrorContains(t, c.Validate(), "exec_timeout_sec")
}
