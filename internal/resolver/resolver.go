package resolver

import (
	"fmt"
	"sort"

	"github.com/paradoxindex/ckindex/internal/cache"
	"github.com/paradoxindex/ckindex/internal/debug"
	"github.com/paradoxindex/ckindex/internal/registry"
	"github.com/paradoxindex/ckindex/internal/types"
)

// Playset is an ordered list of content versions; index 0 is the lowest
// rank (vanilla, per spec.md §3 invariant that a playset is
// vanilla-first) and the last index is the highest rank.
type Playset []types.CVID

// FileCandidate is one CV's contribution of a file at its rank in L.
type FileCandidate struct {
	CVID      types.CVID
	LoadOrder int
	Record    *registry.FileRecord
}

// FileResolution is the file-level outcome for one relpath across the
// playset (spec.md §4.10 step 1).
type FileResolution struct {
	Relpath    string
	Candidates []FileCandidate
	WinnerCVID types.CVID
	Policy     types.MergePolicy
}

// ResolveFiles computes, for every relpath contributed by any CV in L,
// the winning FileRecord under its folder's policy: OVERRIDE,
// PER_KEY_OVERRIDE and CONTAINER_MERGE all resolve the *file* itself the
// same way (the greatest load-order index wins); only FIOS reverses
// that to the least index. PER_KEY_OVERRIDE/CONTAINER_MERGE only change
// what happens to the symbols *within* the file (step 2).
func ResolveFiles(playset Playset, reg *registry.Registry, policies *PolicyMap) []FileResolution {
	byPath := make(map[string][]FileCandidate)
	for rank, cvid := range playset {
		for _, rec := range reg.Files(cvid) {
			if rec.Deleted {
				continue
			}
			byPath[rec.Relpath] = append(byPath[rec.Relpath], FileCandidate{
				CVID: cvid, LoadOrder: rank, Record: rec,
			})
		}
	}

	out := make([]FileResolution, 0, len(byPath))
	for relpath, candidates := range byPath {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].LoadOrder < candidates[j].LoadOrder })
		policy := policies.PolicyFor(relpath)
		out = append(out, FileResolution{
			Relpath:    relpath,
			Candidates: candidates,
			WinnerCVID: pickFileWinner(candidates, policy),
			Policy:     policy,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Relpath < out[j].Relpath })
	return out
}

func pickFileWinner(candidates []FileCandidate, policy types.MergePolicy) types.CVID {
	if len(candidates) == 0 {
		return 0
	}
	if policy == types.PolicyFIOS {
		return candidates[0].CVID
	}
	return candidates[len(candidates)-1].CVID
}

// ContributionUnit is one source CV's contribution to a unit-key
// (spec.md §3).
type ContributionUnit struct {
	CVID      types.CVID
	LoadOrder int
	Symbol    types.Symbol
}

// ConflictUnit is a unit-key contributed by two or more sources
// (spec.md §3, §4.10 step 2).
type ConflictUnit struct {
	UnitKey    string
	Domain     string
	Candidates []ContributionUnit
	WinnerCVID types.CVID
	Risk       types.RiskLevel
}

// UnitKey formats the "<kind>:<name>" identity spec.md's DATA MODEL
// names for a ConflictUnit.
func UnitKey(kind types.SymbolKind, name string) string {
	return fmt.Sprintf("%s:%s", kind, name)
}

// CompatPatchHint reports whether a CV is a known compatibility patch,
// feeding risk scoring. Callers typically check a ModPackage's
// DisplayName or workshop tag list; resolver stays agnostic to how that
// classification is made.
type CompatPatchHint func(cvid types.CVID) bool

// ResolveSymbols groups every symbol visible in L by (kind, name),
// applies the owning file's merge policy, and emits a ConflictUnit for
// every unit-key contributed by two or more sources (spec.md §4.10 step
// 2). Only files whose parse produced symbols participate; a file with
// no SYMBOLS stage output contributes nothing here even if it won step
// 1. A unit-key whose policy is CONTAINER_MERGE is decomposed further,
// into one ConflictUnit per conflicting second-level sub-block, routed
// by containerPolicy (nil defaults to DefaultOnActionPolicy()).
func ResolveSymbols(playset Playset, reg *registry.Registry, c *cache.Cache, policies *PolicyMap, containerPolicy *ContainerMergePolicy, hint CompatPatchHint) []ConflictUnit {
	type key struct {
		kind types.SymbolKind
		name string
	}
	contributions := make(map[key][]ContributionUnit)
	keyPolicy := make(map[key]types.MergePolicy)

	for rank, cvid := range playset {
		for _, rec := range reg.Files(cvid) {
			if rec.Deleted {
				continue
			}
			symbols := c.SymbolsForFile(rec.FileID)
			if len(symbols) == 0 {
				continue
			}
			policy := policies.PolicyFor(rec.Relpath)
			for _, sym := range symbols {
				k := key{kind: sym.Kind, name: sym.Name}
				contributions[k] = append(contributions[k], ContributionUnit{
					CVID: cvid, LoadOrder: rank, Symbol: sym,
				})
				keyPolicy[k] = policy
			}
		}
	}

	var out []ConflictUnit
	for k, units := range contributions {
		if len(units) < 2 {
			continue
		}
		sort.Slice(units, func(i, j int) bool { return units[i].LoadOrder < units[j].LoadOrder })
		policy := keyPolicy[k]
		if policy == types.PolicyContainerMerge {
			out = append(out, resolveContainerMerge(k.kind, k.name, units, containerPolicy, hint)...)
			continue
		}
		winner := pickSymbolWinner(units, policy)
		out = append(out, ConflictUnit{
			UnitKey:    UnitKey(k.kind, k.name),
			Domain:     string(k.kind),
			Candidates: units,
			WinnerCVID: winner,
			Risk:       scoreRisk(units, winner, hint),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitKey < out[j].UnitKey })
	debug.LogResolve("resolved %d conflict units across %d playset entries", len(out), len(playset))
	return out
}

func pickSymbolWinner(units []ContributionUnit, policy types.MergePolicy) types.CVID {
	if len(units) == 0 {
		return 0
	}
	if policy == types.PolicyFIOS {
		return units[0].CVID
	}
	return units[len(units)-1].CVID
}

// resolveContainerMerge decomposes a CONTAINER_MERGE unit-key into one
// ConflictUnit per second-level sub-block contributed by two or more
// sources (spec.md §4.10 Scenario C). SubAppend sub-blocks (events{},
// on_actions{}) never produce a ConflictUnit: every source's
// contribution survives in the merged container, so there's no winner
// to report.
func resolveContainerMerge(kind types.SymbolKind, name string, units []ContributionUnit, containerPolicy *ContainerMergePolicy, hint CompatPatchHint) []ConflictUnit {
	if containerPolicy == nil {
		containerPolicy = DefaultOnActionPolicy()
	}

	sources := make([]ContainerSource, 0, len(units))
	byCVID := make(map[types.CVID]ContributionUnit, len(units))
	for _, u := range units {
		sources = append(sources, ContainerSource{CVID: u.CVID, LoadOrder: u.LoadOrder, Node: u.Symbol.Node})
		byCVID[u.CVID] = u
	}

	var out []ConflictUnit
	for _, conflict := range FindContainerConflicts(sources, containerPolicy) {
		candidates := make([]ContributionUnit, 0, len(conflict.Contributors))
		for _, contributor := range conflict.Contributors {
			candidates = append(candidates, byCVID[contributor.CVID])
		}
		winner := conflict.Contributors[len(conflict.Contributors)-1].CVID

		base := 0
		if conflict.Rule == SubSingleSlotConflict {
			// Unlike a plain override, a single-slot conflict silently
			// drops a contributor's definition rather than intentionally
			// replacing it, so it's never scored as low risk.
			base = 1
		}

		out = append(out, ConflictUnit{
			UnitKey:    UnitKey(kind, name) + "." + conflict.Name,
			Domain:     string(kind),
			Candidates: candidates,
			WinnerCVID: winner,
			Risk:       scoreRiskWithBase(candidates, winner, hint, base),
		})
	}
	return out
}

// scoreRisk buckets a ConflictUnit into {low, medium, high} from three
// signals named in spec.md §4.10 step 3: candidate count beyond two,
// whether a losing contributor defines metadata absent from the winner
// (a property the winner silently drops), and whether any contributor
// is a known compatibility patch.
func scoreRisk(units []ContributionUnit, winner types.CVID, hint CompatPatchHint) types.RiskLevel {
	return scoreRiskWithBase(units, winner, hint, 0)
}

// scoreRiskWithBase is scoreRisk with a caller-supplied starting score,
// letting a decomposed CONTAINER_MERGE sub-block conflict (resolveContainerMerge)
// fold in a rule-specific signal on top of the normal candidate-count /
// metadata-drift / compat-patch signals.
func scoreRiskWithBase(units []ContributionUnit, winner types.CVID, hint CompatPatchHint, base int) types.RiskLevel {
	score := base
	if len(units) > 2 {
		score++
	}

	var winnerMeta map[string]string
	for _, u := range units {
		if u.CVID == winner {
			winnerMeta = u.Symbol.Metadata
			break
		}
	}
	for _, u := range units {
		if u.CVID == winner {
			continue
		}
		for mk := range u.Symbol.Metadata {
			if _, ok := winnerMeta[mk]; !ok {
				score++
				break
			}
		}
	}

	if hint != nil {
		for _, u := range units {
			if hint(u.CVID) {
				score++
				break
			}
		}
	}

	switch {
	case score >= 3:
		return types.RiskHigh
	case score >= 1:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}
