package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Unit tests for config merging logic

func TestMergeExclusionsUnionAcrossBaseAndProject(t *testing.T) {
	base := &Config{
		Exclude: []string{"**/node_modules/**", "**/vendor/**", "**/real_mods/**"},
	}
	project := &Config{
		Exclude: []string{"**/dist/**", "**/build/**"},
	}

	merged := Merge(base, project)

	assert.Contains(t, merged.Exclude, "**/node_modules/**")
	assert.Contains(t, merged.Exclude, "**/vendor/**")
	assert.Contains(t, merged.Exclude, "**/real_mods/**")
	assert.Contains(t, merged.Exclude, "**/dist/**")
	assert.Contains(t, merged.Exclude, "**/build/**")
	assert.Len(t, merged.Exclude, 5)
}

func TestMergeExclusionsDeduplicates(t *testing.T) {
	base := &Config{Exclude: []string{"**/node_modules/**", "**/vendor/**"}}
	project := &Config{Exclude: []string{"**/node_modules/**", "**/dist/**"}}

	merged := Merge(base, project)

	assert.Len(t, merged.Exclude, 3)
	assert.Contains(t, merged.Exclude, "**/node_modules/**")
	assert.Contains(t, merged.Exclude, "**/vendor/**")
	assert.Contains(t, merged.Exclude, "**/dist/**")
}

func TestMergeIncludesProjectOverridesBase(t *testing.T) {
	base := &Config{Include: []string{"*.txt", "*.yml"}}
	project := &Config{Include: []string{"*.gui", "*.gfx"}}

	merged := Merge(base, project)

	assert.Equal(t, project.Include, merged.Include)
}

func TestMergeIncludesFallsBackToBaseWhenProjectEmpty(t *testing.T) {
	base := &Config{Include: []string{"*.txt", "*.yml"}}
	project := &Config{Include: []string{}}

	merged := Merge(base, project)

	assert.Equal(t, base.Include, merged.Include)
}

func TestMergeProjectSettingsTakePrecedence(t *testing.T) {
	base := &Config{WorkerPool: WorkerPool{NumWorkers: 1}, Queue: Queue{MaxRetries: 0}}
	project := &Config{WorkerPool: WorkerPool{NumWorkers: 8}, Queue: Queue{MaxRetries: 3}}

	merged := Merge(base, project)

	assert.Equal(t, 8, merged.WorkerPool.NumWorkers)
	assert.Equal(t, 3, merged.Queue.MaxRetries)
}

func TestMergeEmptyBaseExclusionsUsesProjectOnly(t *testing.T) {
	base := &Config{Exclude: []string{}}
	project := &Config{Exclude: []string{"**/dist/**"}}

	merged := Merge(base, project)

	assert.Equal(t, project.Exclude, merged.Exclude)
}

func TestMergeNilBaseReturnsProject(t *testing.T) {
	project := &Config{Include: []string{"*.txt"}}
	assert.Same(t, project, Merge(nil, project))
}

func TestMergeNilProjectReturnsBase(t *testing.T) {
	base := &Config{Include: []string{"*.txt"}}
	assert.Same(t, base, Merge(base, nil))
}

// Integration tests for config loading with a home directory base.

func TestLoadMergesGlobalAndProjectConfigs(t *testing.T) {
	tmpHome := t.TempDir()
	tmpProject := t.TempDir()

	globalConfig := `
exclude {
    "**/node_modules/**"
    "**/real_mods/**"
}
worker_pool {
    num_workers 2
}
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpHome, ".ckindex.kdl"), []byte(globalConfig), 0644))

	projectConfig := `
exclude {
    "**/dist/**"
}
worker_pool {
    num_workers 6
}
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpProject, ".ckindex.kdl"), []byte(projectConfig), 0644))

	originalHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpHome)
	defer os.Setenv("HOME", originalHome)

	cfg, err := Load(tmpProject)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Contains(t, cfg.Exclude, "**/node_modules/**")
	assert.Contains(t, cfg.Exclude, "**/real_mods/**")
	assert.Contains(t, cfg.Exclude, "**/dist/**")
	assert.Equal(t, 6, cfg.WorkerPool.NumWorkers)
}

func TestLoadProjectConfigOnly(t *testing.T) {
	tmpProject := t.TempDir()

	projectConfig := `
exclude {
    "**/dist/**"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpProject, ".ckindex.kdl"), []byte(projectConfig), 0644))

	os.Setenv("HOME", "/nonexistent")
	defer os.Unsetenv("HOME")

	cfg, err := Load(tmpProject)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Contains(t, cfg.Exclude, "**/dist/**")
}

func TestLoadDefaultConfigFallback(t *testing.T) {
	tmpProject := t.TempDir()
	os.Setenv("HOME", "/nonexistent")
	defer os.Unsetenv("HOME")

	cfg, err := Load(tmpProject)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.NotEmpty(t, cfg.Exclude, "should fall back to Default's exclusions")
	assert.Empty(t, cfg.Include, "Default includes everything by leaving Include empty")
}
