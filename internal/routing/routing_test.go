package routing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paradoxindex/ckindex/internal/types"
)

func TestDefaultRoutesScriptFiles(t *testing.T) {
	table := Default()
	class, envelope := table.Route("common/traits/00_traits.txt")
	assert.Equal(t, types.ClassScript, class)
	assert.True(t, envelope.Has(types.StageParse))
	assert.True(t, envelope.Has(types.StageSymbols))
	assert.True(t, envelope.Has(types.StageRefs))
}

func TestDefaultRoutesLocalization(t *testing.T) {
	table := Default()
	class, envelope := table.Route("localization/english/l_english.yml")
	assert.Equal(t, types.ClassLocalization, class)
	assert.True(t, envelope.Has(types.StageLocalization))
	assert.False(t, envelope.Has(types.StageParse))
}

func TestDefaultRoutesUnknownFallsBackToIngestOnly(t *testing.T) {
	table := Default()
	class, envelope := table.Route("readme.md")
	assert.Equal(t, types.ClassUnknown, class)
	assert.True(t, envelope.Has(types.StageIngest))
	assert.False(t, envelope.Has(types.StageParse))
}

func TestLoadOverlayTakesPrecedenceOverDefault(t *testing.T) {
	dir := t.TempDir()
	overlayPath := filepath.Join(dir, "routing.json")
	require.NoError(t, os.WriteFile(overlayPath, []byte(`[
		{"patterns": ["common/traits/**"], "file_type": "data", "envelope": ["INGEST"]}
	]`), 0644))

	table, err := LoadOverlay(overlayPath)
	require.NoError(t, err)

	class, envelope := table.Route("common/traits/00_traits.txt")
	assert.Equal(t, types.ClassData, class)
	assert.False(t, envelope.Has(types.StageParse))
}

func TestLoadOverlayMissingFileFallsBackToDefault(t *testing.T) {
	table, err := LoadOverlay(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	class, _ := table.Route("common/traits/00_traits.txt")
	assert.Equal(t, types.ClassScript, class)
}
