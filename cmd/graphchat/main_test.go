package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/graphchat/internal/config"
)

func TestLLMOptions_DropsOllamaDefaultsForHostedProviders(t *testing.T) {
	c := config.DefaultConfig().LLM

	opts := llmOptions(c)
	assert.Equal(t, "ollama", opts.Provider)
	assert.Equal(t, "llama3.1", opts.Model)
	assert.Equal(t, ollamaDefaultURL, opts.BaseURL)

	c.Provider = "openai"
	c.APIKey = "sk-test"
	opts = llmOptions(c)
	assert.Empty(t, opts.Model)
	assert.Empty(t, opts.BaseURL)

	c.Model = "gpt-4o-mini"
	c.BaseURL = "https://gateway.internal/v1"
	opts = llmOptions(c)
	assert.Equal(t, "gpt-4o-mini", opts.Model)
	assert.Equal(t, "https://gateway.internal/v1", opts.BaseURL)
}

func TestCurrentUser(t *testing.T) {
	t.Setenv("GRAPHCHAT_USER", "")
	userFlag = ""
	assert.Equal(t, "admin", currentUser())

	t.Setenv("GRAPHCHAT_USER", "carol")
	assert.Equal(t, "carol", currentUser())

	userFlag = "dave"
	t.Cleanup(func() { userFlag = "" })
	assert.Equal(t, "dave", currentUser())
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "graphchat dev\n", out.String())
}

func TestInitConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphchat.yaml")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil); initConfigForce = false })

	rootCmd.SetArgs([]string{"init-config", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "top_limit: 3")

	rootCmd.SetArgs([]string{"init-config", path})
	assert.Error(t, rootCmd.Execute(), "existing file is not overwritten")

	rootCmd.SetArgs([]string{"init-config", "--force", path})
	assert.NoError(t, rootCmd.Execute())
}
