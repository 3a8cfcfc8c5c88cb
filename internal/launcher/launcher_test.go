package launcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paradoxindex/ckindex/internal/registry"
	"github.com/paradoxindex/ckindex/internal/scanner"
	"github.com/paradoxindex/ckindex/internal/types"
)

func entry(relpath, content string) scanner.Entry {
	var hash types.ContentHash
	copy(hash[:], relpath+content)
	return scanner.Entry{Relpath: relpath, ContentHash: hash, Bytes: []byte(content)}
}

func TestParseExportDecodesModsInOrder(t *testing.T) {
	raw := `{
		"name": "My Playset",
		"gameVersion": "1.12",
		"mods": [
			{"displayName": "Mod A", "steamId": "111", "enabled": true},
			{"name": "Mod B", "id": "222", "enabled": false}
		]
	}`
	export, err := ParseExport([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "My Playset", export.Name)
	require.Len(t, export.Mods, 2)
	assert.Equal(t, "111", export.Mods[0].workshopID())
	assert.True(t, export.Mods[0].enabled())
	assert.False(t, export.Mods[1].enabled())
}

func TestParseExportRejectsInvalidJSON(t *testing.T) {
	_, err := ParseExport([]byte("{not json"))
	assert.Error(t, err)
}

func TestConvertToPlaysetResolvesIngestedModsInOrder(t *testing.T) {
	reg := registry.New()
	modACV, _ := reg.IngestMod("111", "Mod A", []scanner.Entry{entry("common/traits/00_traits.txt", "a")}, "/a", 1000)
	modBCV, _ := reg.IngestMod("222", "Mod B Compatch", []scanner.Entry{entry("common/traits/00_traits.txt", "b")}, "/b", 1001)

	export := &Export{Mods: []ExportMod{
		{DisplayName: "Mod A", SteamID: "111", Enabled: boolPtr(true)},
		{DisplayName: "Mod B Compatch", SteamID: "222", Enabled: boolPtr(true)},
	}}

	playset, unresolved := ConvertToPlayset(export, reg)
	assert.Empty(t, unresolved)
	require.Len(t, playset, 2)
	assert.Equal(t, modACV.CVID, playset[0])
	assert.Equal(t, modBCV.CVID, playset[1])
}

func TestConvertToPlaysetSkipsDisabledMods(t *testing.T) {
	reg := registry.New()
	reg.IngestMod("111", "Mod A", []scanner.Entry{entry("f.txt", "a")}, "/a", 1000)

	export := &Export{Mods: []ExportMod{
		{DisplayName: "Mod A", SteamID: "111", Enabled: boolPtr(false)},
	}}

	playset, unresolved := ConvertToPlayset(export, reg)
	assert.Empty(t, playset)
	assert.Empty(t, unresolved)
}

func TestConvertToPlaysetReportsUnresolvedMods(t *testing.T) {
	reg := registry.New()

	export := &Export{Mods: []ExportMod{
		{DisplayName: "Never Ingested", SteamID: "999", Enabled: boolPtr(true)},
	}}

	playset, unresolved := ConvertToPlayset(export, reg)
	assert.Empty(t, playset)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "Never Ingested", unresolved[0].Name)
}

func TestIsCompatPatchNameMatchesKnownMarkers(t *testing.T) {
	assert.True(t, IsCompatPatchName("CK3AGOT Compatch"))
	assert.True(t, IsCompatPatchName("Compatibility Patch for X and Y"))
	assert.True(t, IsCompatPatchName("Bugfix Collection"))
	assert.False(t, IsCompatPatchName("Regular Gameplay Mod"))
}

func TestCompatPatchHintClassifiesByDisplayName(t *testing.T) {
	reg := registry.New()
	patchCV, _ := reg.IngestMod("1", "Some Compatch", []scanner.Entry{entry("f.txt", "a")}, "/p", 1000)
	modCV, _ := reg.IngestMod("2", "Some Mod", []scanner.Entry{entry("f.txt", "b")}, "/m", 1000)
	vanillaCV, _ := reg.IngestVanilla("1.12", []scanner.Entry{entry("f.txt", "c")}, "/v", 1000)

	hint := CompatPatchHint(reg)
	assert.True(t, hint(patchCV.CVID))
	assert.False(t, hint(modCV.CVID))
	assert.False(t, hint(vanillaCV.CVID))
	assert.False(t, hint(types.CVID(9999)))
}

func boolPtr(b bool) *bool { return &b }
