// Package launcher converts a CK3 launcher playset export into a
// resolver.Playset over content already known to the registry. Grounded
// on original_source/scripts/launcher_to_playset.py, reworked from a
// file-to-file CLI converter into a pure function over an in-memory
// Registry: this build has no concept of a playset file on disk, only
// ContentVersions it has already ingested, so conversion here is
// resolution (by workshop id, then display name) rather than rewriting
// a JSON document.
package launcher

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paradoxindex/ckindex/internal/registry"
	"github.com/paradoxindex/ckindex/internal/resolver"
	"github.com/paradoxindex/ckindex/internal/types"
)

// Export mirrors the subset of a CK3 launcher.json playset export this
// package understands: a name, the game version the playset was built
// against, and its ordered mod list (original_source/scripts/
// launcher_to_playset.py's launcher_data).
type Export struct {
	Name        string      `json:"name"`
	GameVersion string      `json:"gameVersion"`
	Mods        []ExportMod `json:"mods"`
}

// ExportMod is one mod entry in a launcher export. A mod is identified
// by SteamID if present, falling back to PdxID, ID, then DisplayName/Name
// (same precedence as the original converter's steam_id lookup).
type ExportMod struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	SteamID     string `json:"steamId"`
	PdxID       string `json:"pdxId"`
	ID          string `json:"id"`
	Enabled     *bool  `json:"enabled"`
}

func (m ExportMod) workshopID() string {
	switch {
	case m.SteamID != "":
		return m.SteamID
	case m.PdxID != "":
		return m.PdxID
	default:
		return m.ID
	}
}

func (m ExportMod) displayName() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Name
}

func (m ExportMod) enabled() bool {
	if m.Enabled == nil {
		return true
	}
	return *m.Enabled
}

// ParseExport decodes a launcher.json export's bytes.
func ParseExport(data []byte) (*Export, error) {
	var e Export
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("launcher: invalid export JSON: %w", err)
	}
	return &e, nil
}

// UnresolvedMod names a launcher mod entry that could not be matched to
// any content version already ingested into the registry.
type UnresolvedMod struct {
	Name   string
	Reason string
}

// ConvertToPlayset resolves every enabled mod in export against reg, in
// the launcher's own load order, returning a resolver.Playset usable
// directly by ResolveFiles/ResolveSymbols. Mods the registry has never
// ingested are skipped and reported in the returned UnresolvedMod slice
// rather than failing the whole conversion — a launcher export commonly
// references mods the workspace hasn't scanned yet.
func ConvertToPlayset(export *Export, reg *registry.Registry) (resolver.Playset, []UnresolvedMod) {
	var playset resolver.Playset
	var unresolved []UnresolvedMod

	for _, mod := range export.Mods {
		if !mod.enabled() {
			continue
		}
		name := mod.displayName()
		cvid, ok := reg.FindModCVID(mod.workshopID(), name)
		if !ok {
			unresolved = append(unresolved, UnresolvedMod{
				Name:   name,
				Reason: "not ingested into this workspace",
			})
			continue
		}
		playset = append(playset, cvid)
	}

	return playset, unresolved
}

// compatPatchMarkers names the substrings original_source/scripts/
// launcher_to_playset.py matches (case-insensitively) against a mod's
// display name to flag it as a compatibility patch for risk scoring.
var compatPatchMarkers = []string{"compatch", "compatibility", "patch", "fix"}

// IsCompatPatchName reports whether name looks like a compatibility
// patch mod by the same substring heuristic as the original converter.
func IsCompatPatchName(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range compatPatchMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// CompatPatchHint builds a resolver.CompatPatchHint that classifies a CV
// as a compat patch by running IsCompatPatchName over its ModPackage's
// DisplayName. Vanilla CVs and unknown CVIDs are never compat patches.
func CompatPatchHint(reg *registry.Registry) resolver.CompatPatchHint {
	return func(cvid types.CVID) bool {
		cv, ok := reg.Version(cvid)
		if !ok || cv.ModPackage == nil {
			return false
		}
		return IsCompatPatchName(cv.ModPackage.DisplayName)
	}
}
