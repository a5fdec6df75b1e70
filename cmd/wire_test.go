package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/mathchat/internal/config"
)

func mockConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "mock"
	cfg.Solver.AppID = "test-app"
	cfg.Retrieval.Enabled = false
	cfg.Vision.Enabled = false
	cfg.Store.Path = filepath.Join(t.TempDir(), "events.db")
	return cfg
}

func TestBuildApp(t *testing.T) {
	cfg := mockConfig(t)
	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.chat)
	assert.NotNil(t, a.metrics)

	id := a.chat.NewSession()
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, a.sessions.Len())

	_, err = os.Stat(cfg.Store.Path)
	assert.NoError(t, err, "event log is created")
}

func TestBuildAppRejectsInvalidConfig(t *testing.T) {
	cfg := mockConfig(t)
	cfg.LLM.Provider = "nope"
	_, err := buildApp(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown LLM provider")
}

func TestBuildAppWithoutSolver(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Solver.AppID = ""
	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.NotEmpty(t, a.chat.NewSession())
}

func TestBuildAppVisionWithoutKeyDegrades(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Vision.Enabled = true
	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)
	a.Close()
}

func TestBuildAppRetrievalNeedsOpenAIKey(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Retrieval.Enabled = true
	cfg.Retrieval.BaseURL = "http://chroma.invalid"
	cfg.Retrieval.CollectionID = "c"
	_, err := buildApp(context.Background(), cfg)
	assert.ErrorContains(t, err, "embed")
}
