package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paradoxindex/ckindex/internal/registry"
	"github.com/paradoxindex/ckindex/internal/resolver"
	"github.com/paradoxindex/ckindex/internal/scanner"
	"github.com/paradoxindex/ckindex/internal/types"
)

func entry(relpath, content string) scanner.Entry {
	var hash types.ContentHash
	copy(hash[:], relpath+content)
	return scanner.Entry{Relpath: relpath, ContentHash: hash, Bytes: []byte(content)}
}

func TestBuildIsDeterministicAcrossRuns(t *testing.T) {
	reg := registry.New()
	vanillaCV, _ := reg.IngestVanilla("1.12", []scanner.Entry{
		entry("common/traits/00_traits.txt", "a"),
	}, "/vanilla", 1000)
	modCV, _ := reg.IngestMod("111", "Mod A", []scanner.Entry{
		entry("common/traits/00_traits.txt", "b"),
	}, "/mods/a", 1001)

	playset := resolver.Playset{vanillaCV.CVID, modCV.CVID}
	files := resolver.ResolveFiles(playset, reg, resolver.DefaultPolicyMap())
	ctx := ContextFromPlayset(playset, reg)

	r1 := Build(ctx, files, nil, "2026-01-01T00:00:00Z")
	r2 := Build(ctx, files, nil, "2026-01-02T00:00:00Z")

	b1, err := json.Marshal(r1)
	require.NoError(t, err)
	b2, err := json.Marshal(r2)
	require.NoError(t, err)

	r1.GeneratedAt = ""
	r2.GeneratedAt = ""
	bNorm1, _ := json.Marshal(r1)
	bNorm2, _ := json.Marshal(r2)
	assert.Equal(t, string(bNorm1), string(bNorm2))
	assert.NotEqual(t, string(b1), string(b2))
	assert.Equal(t, SchemaName, r1.Schema)
}

func TestBuildSortsFileLevelByRelpath(t *testing.T) {
	files := []resolver.FileResolution{
		{Relpath: "z/file.txt", WinnerCVID: 1},
		{Relpath: "a/file.txt", WinnerCVID: 1},
	}
	r := Build(Context{}, files, nil, "now")
	require.Len(t, r.FileLevel, 2)
	assert.Equal(t, "a/file.txt", r.FileLevel[0].Relpath)
	assert.Equal(t, "z/file.txt", r.FileLevel[1].Relpath)
}

func TestBuildSummarizesByRisk(t *testing.T) {
	units := []resolver.ConflictUnit{
		{UnitKey: "trait:brave", Risk: types.RiskHigh},
		{UnitKey: "trait:craven", Risk: types.RiskLow},
	}
	r := Build(Context{}, nil, units, "now")
	assert.Equal(t, 2, r.Summary.TotalConflicts)
	assert.Equal(t, 1, r.Summary.ByRisk["high"])
	assert.Equal(t, 1, r.Summary.ByRisk["low"])
}

func TestSymbolsHashChangesWithUnitSet(t *testing.T) {
	unitsA := []resolver.ConflictUnit{{UnitKey: "trait:brave"}}
	unitsB := []resolver.ConflictUnit{{UnitKey: "trait:craven"}}

	rA := Build(Context{}, nil, unitsA, "now")
	rB := Build(Context{}, nil, unitsB, "now")
	assert.NotEqual(t, rA.SymbolsHash, rB.SymbolsHash)
}

func TestContextFromPlaysetCollectsVanillaAndModNames(t *testing.T) {
	reg := registry.New()
	vanillaCV, _ := reg.IngestVanilla("1.12", []scanner.Entry{entry("a.txt", "x")}, "/vanilla", 1000)
	modCV, _ := reg.IngestMod("111", "Mod A", []scanner.Entry{entry("b.txt", "y")}, "/mods/a", 1001)

	ctx := ContextFromPlayset(resolver.Playset{vanillaCV.CVID, modCV.CVID}, reg)
	assert.Equal(t, "1.12", ctx.VanillaVersion)
	assert.Equal(t, []string{"Mod A"}, ctx.ModNames)
	assert.Equal(t, []types.CVID{vanillaCV.CVID, modCV.CVID}, ctx.CVIDs)
}

func TestSchemaDescribesRequiredTopLevelFields(t *testing.T) {
	s := Schema()
	assert.Equal(t, "object", s.Type)
	assert.Contains(t, s.Required, "schema")
	assert.Contains(t, s.Required, "file_level")
	assert.Contains(t, s.Required, "id_level")
}

func TestValidateAcceptsABuiltReport(t *testing.T) {
	reg := registry.New()
	vanillaCV, _ := reg.IngestVanilla("1.12", []scanner.Entry{entry("a.txt", "x")}, "/vanilla", 1000)
	playset := resolver.Playset{vanillaCV.CVID}
	files := resolver.ResolveFiles(playset, reg, resolver.DefaultPolicyMap())
	ctx := ContextFromPlayset(playset, reg)

	r := Build(ctx, files, nil, "2026-01-01T00:00:00Z")
	assert.NoError(t, Validate(r))
}

func TestValidateRejectsWrongSchemaConst(t *testing.T) {
	r := Build(Context{}, nil, nil, "now")
	r.Schema = "not-conflicts.v1"
	assert.Error(t, Validate(r))
}
