// Package routing implements the routing table (C6): pure data mapping a
// relpath predicate to a file_type and a processing envelope. Grounded
// on the teacher's priority/classification tables in
// internal/indexing/pipeline_scanner.go, replaced here by
// doublestar glob predicates instead of extension lists, plus a JSON
// overlay merged over the compiled-in default (SPEC_FULL.md SUPPLEMENTED
// FEATURES, grounded on original_source/legacy/old_builder/routing.py).
package routing

import (
	"encoding/json"
	"os"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/paradoxindex/ckindex/internal/types"
)

// Rule is one routing table row: the first matching Patterns entry wins.
type Rule struct {
	Patterns []string
	FileType types.FileClass
	Envelope types.Envelope
}

// Table is an ordered list of routing Rules; a file's envelope is
// decided by the first rule whose pattern matches its relpath (spec.md
// §4.6: "a single file's envelope is fixed the moment the file is
// identified").
type Table struct {
	rules []Rule
}

// Default returns the routing table of spec.md §4.6's representative
// rows.
func Default() *Table {
	return &Table{rules: []Rule{
		{
			Patterns: []string{"common/**/*.txt", "events/**/*.txt"},
			FileType: types.ClassScript,
			Envelope: envelopeOf(types.StageIngest, types.StageParse, types.StageSymbols, types.StageRefs),
		},
		{
			Patterns: []string{"localization/**/*.yml"},
			FileType: types.ClassLocalization,
			Envelope: envelopeOf(types.StageIngest, types.StageLocalization),
		},
		{
			Patterns: []string{"history/**", "map_data/**/*.csv"},
			FileType: types.ClassData,
			Envelope: envelopeOf(types.StageIngest),
		},
		{
			Patterns: []string{"gfx/**", "sound/**", "music/**", "**/*.dds"},
			FileType: types.ClassBinary,
			Envelope: envelopeOf(types.StageIngest),
		},
	}}
}

func envelopeOf(stages ...types.Stage) types.Envelope {
	var e types.Envelope
	for _, s := range stages {
		e |= types.Envelope(s)
	}
	return e
}

// Route returns the file_type and envelope for relpath. A relpath
// matching no rule falls back to {unknown, INGEST} (spec.md §4.6's
// catch-all row).
func (t *Table) Route(relpath string) (types.FileClass, types.Envelope) {
	for _, rule := range t.rules {
		for _, pattern := range rule.Patterns {
			if ok, _ := doublestar.Match(pattern, relpath); ok {
				return rule.FileType, rule.Envelope
			}
		}
	}
	return types.ClassUnknown, envelopeOf(types.StageIngest)
}

// overlayRule is the JSON shape of one overlay row.
type overlayRule struct {
	Patterns []string `json:"patterns"`
	FileType string   `json:"file_type"`
	Envelope []string `json:"envelope"`
}

// LoadOverlay merges a routing.json overlay on top of the default table:
// overlay rules are consulted before the compiled-in defaults, so a mod
// pack can carve out its own routing without forking the binary.
func LoadOverlay(path string) (*Table, error) {
	table := Default()
	if path == "" {
		return table, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var overlay []overlayRule
	if err := json.Unmarshal(data, &overlay); err != nil {
		return nil, err
	}

	overlaid := make([]Rule, 0, len(overlay)+len(table.rules))
	for _, o := range overlay {
		overlaid = append(overlaid, Rule{
			Patterns: o.Patterns,
			FileType: fileClassFromName(o.FileType),
			Envelope: envelopeFromNames(o.Envelope),
		})
	}
	overlaid = append(overlaid, table.rules...)
	return &Table{rules: overlaid}, nil
}

func fileClassFromName(name string) types.FileClass {
	switch name {
	case "script":
		return types.ClassScript
	case "loc":
		return types.ClassLocalization
	case "data":
		return types.ClassData
	case "binary":
		return types.ClassBinary
	default:
		return types.ClassUnknown
	}
}

func envelopeFromNames(names []string) types.Envelope {
	var e types.Envelope
	for _, n := range names {
		switch n {
		case "INGEST":
			e |= types.Envelope(types.StageIngest)
		case "PARSE":
			e |= types.Envelope(types.StageParse)
		case "SYMBOLS":
			e |= types.Envelope(types.StageSymbols)
		case "REFS":
			e |= types.Envelope(types.StageRefs)
		case "LOCALIZATION":
			e |= types.Envelope(types.StageLocalization)
		case "LOOKUPS":
			e |= types.Envelope(types.StageLookups)
		}
	}
	return e
}
