// Package query implements the playset-scoped read surface of spec.md
// §4.12: search_symbols, search_files, search_content, get_file, and
// confirm_not_exists. Every result carries the cvid that contributed
// it, and every search is scoped to the files visible under the
// caller's playset (internal/cache.Cache.FilesForCVID). Grounded on the
// teacher's internal/semantic/fuzzy_matcher.go for Jaro-Winkler fuzzy
// matching (github.com/hbollon/go-edlib) and its
// internal/core/semantic_search_index.go for Porter2 stemming
// (github.com/surgebase/porter2); glob matching reuses
// github.com/bmatcuk/doublestar/v4, the same library
// internal/scanner.Scanner already depends on for include/exclude
// patterns.
package query

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hbollon/go-edlib"
	"github.com/surgebase/porter2"

	"github.com/paradoxindex/ckindex/internal/cache"
	"github.com/paradoxindex/ckindex/internal/registry"
	"github.com/paradoxindex/ckindex/internal/resolver"
	"github.com/paradoxindex/ckindex/internal/store"
	"github.com/paradoxindex/ckindex/internal/types"
)

// Engine answers playset-scoped queries over a Registry, Cache and
// Store without mutating any of them.
type Engine struct {
	reg   *registry.Registry
	cache *cache.Cache
	store *store.Store
}

func New(reg *registry.Registry, c *cache.Cache, s *store.Store) *Engine {
	return &Engine{reg: reg, cache: c, store: s}
}

// SymbolHit is a search_symbols result, naming the cvid that contributes
// the symbol (spec.md §4.12: "every result must carry its contributing
// cvid").
type SymbolHit struct {
	Symbol     types.Symbol
	CVID       types.CVID
	Similarity float64 // 1.0 for exact/prefix hits, <1.0 for fuzzy hits
}

func allowedFileSet(playset resolver.Playset, c *cache.Cache) map[types.FileID]struct{} {
	allowed := make(map[types.FileID]struct{})
	for _, cvid := range playset {
		for _, fileID := range c.FilesForCVID(cvid) {
			allowed[fileID] = struct{}{}
		}
	}
	return allowed
}

// SearchSymbols performs an exact/prefix search first; if that yields
// nothing, it falls back to a Jaro-Winkler fuzzy match (stemmed via
// Porter2) over every visible symbol name, per spec.md §4.12's stated
// dual exact+fuzzy behavior.
func (e *Engine) SearchSymbols(playset resolver.Playset, q string, limit int) []SymbolHit {
	allowed := allowedFileSet(playset, e.cache)
	fileToCVID := e.fileToCVIDMap(playset)

	prefixHits := e.cache.SearchSymbolsByPrefix(q, allowed, limit)
	if len(prefixHits) > 0 {
		out := make([]SymbolHit, 0, len(prefixHits))
		for _, s := range prefixHits {
			out = append(out, SymbolHit{Symbol: s, CVID: fileToCVID[s.DefiningFileID], Similarity: 1.0})
		}
		return out
	}

	return e.fuzzySearchSymbols(allowed, fileToCVID, q, limit)
}

func (e *Engine) fuzzySearchSymbols(allowed map[types.FileID]struct{}, fileToCVID map[types.FileID]types.CVID, q string, limit int) []SymbolHit {
	stemmedQuery := porter2.Stem(strings.ToLower(q))

	var hits []SymbolHit
	for fileID := range allowed {
		for _, sym := range e.cache.SymbolsForFile(fileID) {
			similarity := jaroWinklerSimilarity(stemmedQuery, porter2.Stem(strings.ToLower(sym.Name)))
			if similarity < 0.80 {
				continue
			}
			hits = append(hits, SymbolHit{Symbol: sym, CVID: fileToCVID[fileID], Similarity: similarity})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Symbol.Name < hits[j].Symbol.Name
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func jaroWinklerSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	score, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0.0
	}
	return float64(score)
}

func (e *Engine) fileToCVIDMap(playset resolver.Playset) map[types.FileID]types.CVID {
	out := make(map[types.FileID]types.CVID)
	for _, cvid := range playset {
		for _, fileID := range e.cache.FilesForCVID(cvid) {
			out[fileID] = cvid
		}
	}
	return out
}

// FileHit is a search_files or get_file result.
type FileHit struct {
	Record *registry.FileRecord
	CVID   types.CVID
}

// SearchFiles returns every winning file whose relpath matches a
// doublestar glob, scoped to the playset via ResolveFiles.
func (e *Engine) SearchFiles(playset resolver.Playset, glob string, limit int) []FileHit {
	resolutions := resolver.ResolveFiles(playset, e.reg, resolver.DefaultPolicyMap())

	byCVID := make(map[types.CVID]map[string]*registry.FileRecord)
	for _, cvid := range playset {
		m := make(map[string]*registry.FileRecord)
		for _, rec := range e.reg.Files(cvid) {
			m[rec.Relpath] = rec
		}
		byCVID[cvid] = m
	}

	var out []FileHit
	for _, res := range resolutions {
		ok, err := doublestar.Match(glob, res.Relpath)
		if err != nil || !ok {
			continue
		}
		rec := byCVID[res.WinnerCVID][res.Relpath]
		if rec == nil {
			continue
		}
		out = append(out, FileHit{Record: rec, CVID: res.WinnerCVID})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// GetFile returns the winning FileRecord and its decoded text for one
// relpath under the playset, or ok=false if no CV contributes it.
func (e *Engine) GetFile(playset resolver.Playset, relpath string) (rec *registry.FileRecord, text string, cvid types.CVID, ok bool) {
	resolutions := resolver.ResolveFiles(playset, e.reg, resolver.DefaultPolicyMap())
	for _, res := range resolutions {
		if res.Relpath != relpath {
			continue
		}
		for _, c := range res.Candidates {
			if c.CVID == res.WinnerCVID {
				rec = c.Record
				break
			}
		}
		if rec == nil {
			return nil, "", 0, false
		}
		t, isText, err := e.store.GetText(rec.ContentHash)
		if err != nil || !isText {
			return rec, "", res.WinnerCVID, true
		}
		return rec, t, res.WinnerCVID, true
	}
	return nil, "", 0, false
}

// ContentHit is a search_content result.
type ContentHit struct {
	Relpath string
	CVID    types.CVID
	Line    int
	Excerpt string
}

// SearchContent performs a substring scan over the winning text blobs
// visible to the playset (spec.md §4.12: "substring match over text
// blobs"). Deliberately not backed by an inverted index: the cache's
// FilesForCVID membership scoping is enough to bound the scan to the
// playset's own files.
func (e *Engine) SearchContent(playset resolver.Playset, substring string, limit int) []ContentHit {
	resolutions := resolver.ResolveFiles(playset, e.reg, resolver.DefaultPolicyMap())
	lowerNeedle := strings.ToLower(substring)

	var out []ContentHit
	for _, res := range resolutions {
		var rec *registry.FileRecord
		for _, c := range res.Candidates {
			if c.CVID == res.WinnerCVID {
				rec = c.Record
				break
			}
		}
		if rec == nil {
			continue
		}
		text, ok, err := e.store.GetText(rec.ContentHash)
		if err != nil || !ok {
			continue
		}
		for lineNo, line := range strings.Split(text, "\n") {
			if strings.Contains(strings.ToLower(line), lowerNeedle) {
				out = append(out, ContentHit{
					Relpath: res.Relpath,
					CVID:    res.WinnerCVID,
					Line:    lineNo + 1,
					Excerpt: strings.TrimSpace(line),
				})
				if limit > 0 && len(out) >= limit {
					return out
				}
			}
		}
	}
	return out
}

// ConfirmNotExists performs the exhaustive negative check of spec.md
// §4.12: true only if no symbol or reference named name is visible
// anywhere in the playset.
func (e *Engine) ConfirmNotExists(playset resolver.Playset, name string) bool {
	allowed := allowedFileSet(playset, e.cache)
	for fileID := range allowed {
		for _, sym := range e.cache.SymbolsForFile(fileID) {
			if sym.Name == name {
				return false
			}
		}
		for _, ref := range e.cache.ReferencesForFile(fileID) {
			if ref.Name == name {
				return false
			}
		}
	}
	return true
}
