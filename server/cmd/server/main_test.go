package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/searchrelay/searchrelay/server/internal/config"
	logpkg "github.com/searchrelay/searchrelay/server/internal/logger"
	"github.com/searchrelay/searchrelay/server/internal/search"
)

func TestBuildSearcher_Fixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queries:\n  - match: r2\n    items:\n      - {text: R2-D2}\n"), 0o600))

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.Search.Driver = "fixture"
	cfg.Search.Fixture.Path = path

	s, closeFn, err := buildSearcher(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer closeFn()

	items, err := s.Search(context.Background(), "R2")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "R2-D2", items[0]["text"])
}

func TestBuildSearcher_SWAPIWithoutCache(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	s, closeFn, err := buildSearcher(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &search.SWAPI{}, s)
}

func TestBuildSearcher_UnknownDriver(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.Search.Driver = "ldap"

	_, _, err = buildSearcher(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestApplyReload_ChangesLevel(t *testing.T) {
	_, level, err := logpkg.NewLogger("dev", "info")
	require.NoError(t, err)

	current, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	next := *current
	next.Logging.Level = "debug"

	applyReload(zap.NewNop(), level, current, &next)
	assert.Equal(t, "debug", level.String())

	next.Logging.Level = "verbose"
	applyReload(zap.NewNop(), level, current, &next)
	assert.Equal(t, "debug", level.String())
}

func TestSameRestartKeys(t *testing.T) {
	a, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	b := *a
	assert.True(t, sameRestartKeys(a, &b))

	b.Server.Port = 4000
	assert.False(t, sameRestartKeys(a, &b))
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()
	f := cmd.Flags().Lookup("config")
	require.NotNil(t, f)
	assert.Equal(t, "config.yaml", f.DefValue)
	assert.Equal(t, "c", f.Shorthand)
}
