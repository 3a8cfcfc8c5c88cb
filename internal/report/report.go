// Package report renders resolver output into the conflicts.v1 document
// of spec.md §4.11: a deterministic JSON artifact whose arrays are
// sorted so two runs over identical inputs are byte-identical apart
// from generated_at. Grounded on the teacher's internal/mcp/server.go
// use of github.com/google/jsonschema-go to describe JSON shapes, and
// on its internal/core/file_content_store.go use of
// github.com/cespare/xxhash/v2 for the cheap non-cryptographic digest
// behind symbols_hash.
package report

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/paradoxindex/ckindex/internal/debug"
	"github.com/paradoxindex/ckindex/internal/registry"
	"github.com/paradoxindex/ckindex/internal/resolver"
	"github.com/paradoxindex/ckindex/internal/types"
)

const SchemaName = "conflicts.v1"

// Context names the playset a report was generated against (spec.md
// §4.11: "context = playset's ordered cvid list + vanilla version
// string + mod names in load order").
type Context struct {
	CVIDs          []types.CVID `json:"cvids"`
	VanillaVersion string       `json:"vanilla_version"`
	ModNames       []string     `json:"mod_names"`
}

// FileLevelCandidate is one source's contribution to a FileLevelEntry.
type FileLevelCandidate struct {
	CVID      types.CVID `json:"cvid"`
	LoadOrder int        `json:"load_order"`
}

// FileLevelEntry reports one relpath's winner and the sources that
// contributed to it.
type FileLevelEntry struct {
	Relpath    string               `json:"relpath"`
	Policy     string               `json:"policy"`
	WinnerCVID types.CVID           `json:"winner_cvid"`
	Candidates []FileLevelCandidate `json:"candidates"`
}

// IDLevelCandidate is one source's contribution to an IDLevelEntry.
type IDLevelCandidate struct {
	CVID      types.CVID `json:"cvid"`
	LoadOrder int        `json:"load_order"`
}

// IDLevelEntry reports one unit-key conflict (spec.md §3 ConflictUnit).
type IDLevelEntry struct {
	UnitKey    string             `json:"unit_key"`
	Domain     string             `json:"domain"`
	WinnerCVID types.CVID         `json:"winner_cvid"`
	Risk       types.RiskLevel    `json:"risk"`
	Candidates []IDLevelCandidate `json:"candidates"`
}

// Summary aggregates counts for quick inspection without walking the
// full arrays.
type Summary struct {
	TotalFiles     int            `json:"total_files"`
	TotalConflicts int            `json:"total_conflicts"`
	ByRisk         map[string]int `json:"by_risk"`
}

// Report is the conflicts.v1 document.
type Report struct {
	Schema      string         `json:"schema"`
	GeneratedAt string         `json:"generated_at"`
	Context     Context        `json:"context"`
	FileLevel   []FileLevelEntry `json:"file_level"`
	IDLevel     []IDLevelEntry   `json:"id_level"`
	Summary     Summary        `json:"summary"`
	SymbolsHash string         `json:"symbols_hash"`
}

// Build assembles a Report from resolver output. generatedAt is passed
// in rather than computed here (this package performs no I/O and the
// wall clock is one) so callers control the one field allowed to vary
// between identical runs.
func Build(ctx Context, files []resolver.FileResolution, units []resolver.ConflictUnit, generatedAt string) Report {
	fileLevel := make([]FileLevelEntry, 0, len(files))
	for _, f := range files {
		candidates := make([]FileLevelCandidate, 0, len(f.Candidates))
		for _, c := range f.Candidates {
			candidates = append(candidates, FileLevelCandidate{CVID: c.CVID, LoadOrder: c.LoadOrder})
		}
		fileLevel = append(fileLevel, FileLevelEntry{
			Relpath:    f.Relpath,
			Policy:     policyName(f.Policy),
			WinnerCVID: f.WinnerCVID,
			Candidates: candidates,
		})
	}
	sort.Slice(fileLevel, func(i, j int) bool { return fileLevel[i].Relpath < fileLevel[j].Relpath })

	idLevel := make([]IDLevelEntry, 0, len(units))
	byRisk := map[string]int{"low": 0, "medium": 0, "high": 0}
	for _, u := range units {
		candidates := make([]IDLevelCandidate, 0, len(u.Candidates))
		for _, c := range u.Candidates {
			candidates = append(candidates, IDLevelCandidate{CVID: c.CVID, LoadOrder: c.LoadOrder})
		}
		idLevel = append(idLevel, IDLevelEntry{
			UnitKey:    u.UnitKey,
			Domain:     u.Domain,
			WinnerCVID: u.WinnerCVID,
			Risk:       u.Risk,
			Candidates: candidates,
		})
		byRisk[string(u.Risk)]++
	}
	sort.Slice(idLevel, func(i, j int) bool { return idLevel[i].UnitKey < idLevel[j].UnitKey })

	debug.LogResolve("built report: %d files, %d conflicts (by_risk=%v)", len(fileLevel), len(idLevel), byRisk)
	return Report{
		Schema:      SchemaName,
		GeneratedAt: generatedAt,
		Context:     ctx,
		FileLevel:   fileLevel,
		IDLevel:     idLevel,
		Summary: Summary{
			TotalFiles:     len(fileLevel),
			TotalConflicts: len(idLevel),
			ByRisk:         byRisk,
		},
		SymbolsHash: symbolsHash(idLevel),
	}
}

func policyName(p types.MergePolicy) string {
	switch p {
	case types.PolicyOverride:
		return "override"
	case types.PolicyPerKeyOverride:
		return "per_key_override"
	case types.PolicyContainerMerge:
		return "container_merge"
	case types.PolicyFIOS:
		return "fios"
	default:
		return "unknown"
	}
}

// symbolsHash folds the sorted unit-keys into one stable digest so
// consumers can cheaply detect "did the conflict set change" without
// diffing the whole id_level array.
func symbolsHash(idLevel []IDLevelEntry) string {
	var acc uint64
	for _, e := range idLevel {
		acc ^= xxhash.Sum64String(e.UnitKey)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, acc)
	return fmt.Sprintf("%x", buf)
}

// ContextFromPlayset derives a Context from a playset's CVs in load
// order (spec.md §4.11): the vanilla CV's version string plus every
// mod's display name in rank order.
func ContextFromPlayset(playset resolver.Playset, reg *registry.Registry) Context {
	ctx := Context{CVIDs: append([]types.CVID(nil), playset...), ModNames: []string{}}
	for _, cvid := range playset {
		cv, ok := reg.Version(cvid)
		if !ok {
			continue
		}
		switch cv.Kind {
		case types.KindVanilla:
			if cv.VanillaVersion != nil {
				ctx.VanillaVersion = cv.VanillaVersion.VersionString
			}
		case types.KindMod:
			if cv.ModPackage != nil {
				ctx.ModNames = append(ctx.ModNames, cv.ModPackage.DisplayName)
			}
		}
	}
	return ctx
}

// Schema describes the conflicts.v1 shape for validation and for any
// future tool-surface that wants to advertise it (mirroring the
// teacher's jsonschema.Schema tool-input descriptions).
func Schema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"schema", "generated_at", "context", "file_level", "id_level", "summary"},
		Properties: map[string]*jsonschema.Schema{
			"schema":       {Type: "string", Const: SchemaName},
			"generated_at": {Type: "string"},
			"context": {
				Type:     "object",
				Required: []string{"cvids", "vanilla_version", "mod_names"},
				Properties: map[string]*jsonschema.Schema{
					"cvids":           {Type: "array", Items: &jsonschema.Schema{Type: "integer"}},
					"vanilla_version": {Type: "string"},
					"mod_names":       {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
				},
			},
			"file_level": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type:     "object",
					Required: []string{"relpath", "policy", "winner_cvid", "candidates"},
					Properties: map[string]*jsonschema.Schema{
						"relpath":     {Type: "string"},
						"policy":      {Type: "string"},
						"winner_cvid": {Type: "integer"},
					},
				},
			},
			"id_level": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type:     "object",
					Required: []string{"unit_key", "domain", "winner_cvid", "risk", "candidates"},
					Properties: map[string]*jsonschema.Schema{
						"unit_key":    {Type: "string"},
						"domain":      {Type: "string"},
						"winner_cvid": {Type: "integer"},
						"risk":        {Type: "string", Enum: []any{"low", "medium", "high"}},
					},
				},
			},
			"summary": {
				Type:     "object",
				Required: []string{"total_files", "total_conflicts", "by_risk"},
				Properties: map[string]*jsonschema.Schema{
					"total_files":     {Type: "integer"},
					"total_conflicts": {Type: "integer"},
				},
			},
		},
	}
}

// Validate checks rpt against Schema(), round-tripping it through JSON
// first since jsonschema.Resolved.Validate works over decoded instances
// rather than Go structs (spec.md §4.11's "schema-compliance" proof,
// grounded on original_source/proofs/show_schema_compliance.py, but
// performed here at generation time instead of as a standalone audit).
func Validate(rpt Report) error {
	resolved, err := Schema().Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve conflicts.v1 schema: %w", err)
	}

	raw, err := json.Marshal(rpt)
	if err != nil {
		return fmt.Errorf("marshal report for validation: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("decode report for validation: %w", err)
	}

	if err := resolved.Validate(instance); err != nil {
		debug.LogResolve("report failed conflicts.v1 validation: %v", err)
		return err
	}
	return nil
}
