package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKDLEmptyContentReturnsDefaults(t *testing.T) {
	cfg, err := parseKDL("", "/project")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, defaultWorkerCount(), cfg.WorkerPool.NumWorkers)
	assert.Equal(t, int64(2*1024*1024), cfg.Store.MaxParseableSize)
}

func TestParseKDLWorkerPoolOverrides(t *testing.T) {
	content := `
worker_pool {
    num_workers 8
    max_parses_before_recycle 1000
    default_timeout_ms 5000
    max_timeout_ms 60000
}
`
	cfg, err := parseKDL(content, "/project")
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.WorkerPool.NumWorkers)
	assert.Equal(t, 1000, cfg.WorkerPool.MaxParsesBeforeRecycle)
	assert.Equal(t, 5000, cfg.WorkerPool.DefaultTimeoutMS)
	assert.Equal(t, 60000, cfg.WorkerPool.MaxTimeoutMS)
}

func TestParseKDLQueueStorePathRelativeToProjectRoot(t *testing.T) {
	content := `
queue {
    store_path ".state"
    max_retries 3
}
`
	cfg, err := parseKDL(content, "/project")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/project", ".state"), cfg.Queue.StorePath)
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
}

func TestParseKDLQueueStorePathAbsoluteIsKept(t *testing.T) {
	content := `
queue {
    store_path "/var/ckindex"
}
`
	cfg, err := parseKDL(content, "/project")
	require.NoError(t, err)

	assert.Equal(t, "/var/ckindex", cfg.Queue.StorePath)
}

func TestParseKDLWatchAndFeatureFlags(t *testing.T) {
	content := `
watch {
    enabled false
    debounce_ms 500
}
feature_flags {
    enable_watch_mode false
    enable_determinism_check true
}
`
	cfg, err := parseKDL(content, "/project")
	require.NoError(t, err)

	assert.False(t, cfg.Watch.Enabled)
	assert.Equal(t, 500, cfg.Watch.DebounceMS)
	assert.False(t, cfg.FeatureFlags.EnableWatchMode)
	assert.True(t, cfg.FeatureFlags.EnableDeterminismCheck)
}

func TestParseKDLIncludeAndExclude(t *testing.T) {
	content := `
include {
    "*.txt"
    "*.yml"
}
exclude {
    "**/archive/**"
}
`
	cfg, err := parseKDL(content, "/project")
	require.NoError(t, err)

	assert.Equal(t, []string{"*.txt", "*.yml"}, cfg.Include)
	assert.Equal(t, []string{"**/archive/**"}, cfg.Exclude)
}

func TestParseKDLRoutingOverlayPath(t *testing.T) {
	content := `
routing {
    overlay_path "routing.json"
}
`
	cfg, err := parseKDL(content, "/project")
	require.NoError(t, err)

	assert.Equal(t, "routing.json", cfg.Routing.OverlayPath)
}

func TestParseKDLInvalidSyntaxReturnsError(t *testing.T) {
	_, err := parseKDL("worker_pool { num_workers", "/project")
	assert.Error(t, err)
}

func TestLoadKDLMissingFileReturnsNilNil(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadKDL(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadKDLReadsFileFromProjectRoot(t *testing.T) {
	dir := t.TempDir()
	content := `
worker_pool {
    num_workers 3
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ckindex.kdl"), []byte(content), 0644))

	cfg, err := LoadKDL(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 3, cfg.WorkerPool.NumWorkers)
}
