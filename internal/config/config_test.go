package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GRAPHCHAT_ADDR", "NEO4J_URI", "NEO4J_USER", "NEO4J_PASSWORD", "NEO4J_DATABASE",
		"GRAPHCHAT_HISTORY_BACKEND", "GRAPHCHAT_SQLITE_PATH", "GRAPHCHAT_LLM_PROVIDER",
		"GRAPHCHAT_LLM_MODEL", "GRAPHCHAT_LLM_BASE_URL", "GRAPHCHAT_LLM_API_KEY",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GRAPHCHAT_ACTION_TIMEOUT",
		"GRAPHCHAT_RECORD_SELECTIONS", "GRAPHCHAT_USERS", "GRAPHCHAT_LOG_LEVEL", "GRAPHCHAT_LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3.1", cfg.LLM.Model)
	assert.Equal(t, 3, cfg.Chat.TopLimit)
	assert.False(t, cfg.Chat.RecordSelections)
	assert.Empty(t, cfg.Neo4j.Password)
	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_SaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "graphchat.yaml")

	cfg := DefaultConfig()
	cfg.History.Backend = "sqlite"
	cfg.History.SQLitePath = "/tmp/history.db"
	cfg.Chat.ActionTimeout = 90 * time.Second
	cfg.Auth.Users = map[string]string{"analyst": "s3cret"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", loaded.History.Backend)
	assert.Equal(t, 90*time.Second, loaded.Chat.ActionTimeout)
	assert.Equal(t, "s3cret", loaded.Auth.Users["analyst"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEO4J_URI", "neo4j+s://example.databases.neo4j.io")
	t.Setenv("NEO4J_PASSWORD", "from-env")
	t.Setenv("GRAPHCHAT_RECORD_SELECTIONS", "true")
	t.Setenv("GRAPHCHAT_ACTION_TIMEOUT", "45s")
	t.Setenv("GRAPHCHAT_USERS", "admin:pw1, reader:pw2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "neo4j+s://example.databases.neo4j.io", cfg.Neo4j.URI)
	assert.Equal(t, "from-env", cfg.Neo4j.Password)
	assert.True(t, cfg.Chat.RecordSelections)
	assert.Equal(t, 45*time.Second, cfg.Chat.ActionTimeout)
	assert.Equal(t, map[string]string{"admin": "pw1", "reader": "pw2"}, cfg.Auth.Users)
}

func TestLoad_ProviderKeyFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GRAPHCHAT_LLM_PROVIDER", "openai")
	t.Setenv("GRAPHCHAT_LLM_MODEL", "gpt-4o")

	_, err := Load("")
	require.Error(t, err, "openai without a key must fail validation")

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad backend", map[string]string{"GRAPHCHAT_HISTORY_BACKEND": "redis"}},
		{"bad provider", map[string]string{"GRAPHCHAT_LLM_PROVIDER": "phi"}},
		{"bad level", map[string]string{"GRAPHCHAT_LOG_LEVEL": "verbose"}},
		{"bad duration", map[string]string{"GRAPHCHAT_ACTION_TIMEOUT": "soon"}},
		{"bad users", map[string]string{"GRAPHCHAT_USERS": "nopassword"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
