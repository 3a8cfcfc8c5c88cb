// Package cache implements the derived-artifact cache of spec.md §4.9:
// four tables (ASTs, Symbols, References, LocalizationEntries) sharing a
// write-then-delete-previous-generation discipline and a read path
// scoped to a single current parser_version_id. Grounded on the
// teacher's internal/cache package for the generation-based
// invalidation shape, and on golang.org/x/sync/singleflight (also used
// by the teacher) to collapse duplicate concurrent cache misses for the
// same (content_hash, parser_version_id) when many queued tasks resolve
// to identical file content.
package cache

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/paradoxindex/ckindex/internal/types"
)

// ASTKey identifies one cached AST: a specific content blob parsed under
// a specific grammar/parser revision.
type ASTKey struct {
	ContentHash   types.ContentHash
	ParserVersion int
}

// SymbolKey identifies one cached Symbol row.
type SymbolKey struct {
	Name           string
	Kind           types.SymbolKind
	DefiningFileID types.FileID
}

// ReferenceKey identifies one cached Reference row.
type ReferenceKey struct {
	Name       string
	Kind       types.SymbolKind
	UsingFileID types.FileID
	Line       int
}

// LocalizationKey identifies one cached LocalizationEntry row.
type LocalizationKey struct {
	ContentHash   types.ContentHash
	LocKey        string
	ParserVersion int
}

type symbolIndexEntry struct {
	lowerName string
	key       SymbolKey
}

// Cache is the derived-artifact store. All four tables and their
// secondary indices are guarded by one mutex; readers never block the
// queue writer in spirit (spec.md describes snapshot reads) but this
// package, like the teacher's, keeps a single RWMutex since the derived
// tables are cheap to read and write compared to the parse work that
// populates them.
type Cache struct {
	mu sync.RWMutex

	parserVersion int

	asts map[ASTKey]*types.AST

	symbols      map[SymbolKey]types.Symbol
	symbolsByFile map[types.FileID][]SymbolKey
	symbolIndex   []symbolIndexEntry // sorted by lowerName, rebuilt lazily

	references      map[ReferenceKey]types.Reference
	referencesByFile map[types.FileID][]ReferenceKey

	loc           map[LocalizationKey]types.LocalizationEntry
	locByHash     map[types.ContentHash][]LocalizationKey

	filesByCVID map[types.CVID]map[types.FileID]struct{}

	group singleflight.Group
}

// New builds an empty cache for the given current parser_version_id.
// Rows written under an older version are never purged, only ignored by
// the read path (spec.md §4.9 read invariant), so bumping this and
// reopening is cheap and safe.
func New(parserVersion int) *Cache {
	return &Cache{
		parserVersion:    parserVersion,
		asts:             make(map[ASTKey]*types.AST),
		symbols:          make(map[SymbolKey]types.Symbol),
		symbolsByFile:    make(map[types.FileID][]SymbolKey),
		references:       make(map[ReferenceKey]types.Reference),
		referencesByFile: make(map[types.FileID][]ReferenceKey),
		loc:              make(map[LocalizationKey]types.LocalizationEntry),
		locByHash:        make(map[types.ContentHash][]LocalizationKey),
		filesByCVID:      make(map[types.CVID]map[types.FileID]struct{}),
	}
}

// ParserVersion reports the cache's current parser_version_id.
func (c *Cache) ParserVersion() int {
	return c.parserVersion
}

// GetOrComputeAST returns the cached AST for (contentHash, current
// parser version), calling compute at most once across concurrent
// callers that race on the same key (the singleflight collapse spec.md
// §9's domain stack calls for).
func (c *Cache) GetOrComputeAST(contentHash types.ContentHash, compute func() (*types.AST, error)) (*types.AST, error) {
	key := ASTKey{ContentHash: contentHash, ParserVersion: c.parserVersion}

	c.mu.RLock()
	if ast, ok := c.asts[key]; ok {
		c.mu.RUnlock()
		return ast, nil
	}
	c.mu.RUnlock()

	groupKey := contentHash.String()
	v, err, _ := c.group.Do(groupKey, func() (interface{}, error) {
		c.mu.RLock()
		if ast, ok := c.asts[key]; ok {
			c.mu.RUnlock()
			return ast, nil
		}
		c.mu.RUnlock()

		ast, err := compute()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.asts[key] = ast
		c.mu.Unlock()
		return ast, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.AST), nil
}

// PutSymbols replaces every cached symbol defined by fileID with a fresh
// generation (spec.md §4.9 write invariant: delete-then-insert, no
// partial update).
func (c *Cache) PutSymbols(fileID types.FileID, symbols []types.Symbol) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range c.symbolsByFile[fileID] {
		delete(c.symbols, k)
	}
	keys := make([]SymbolKey, 0, len(symbols))
	for _, s := range symbols {
		k := SymbolKey{Name: s.Name, Kind: s.Kind, DefiningFileID: fileID}
		c.symbols[k] = s
		keys = append(keys, k)
	}
	c.symbolsByFile[fileID] = keys
	c.symbolIndex = nil // invalidate; rebuilt lazily on next prefix search
}

// PutReferences replaces every cached reference using fileID.
func (c *Cache) PutReferences(fileID types.FileID, refs []types.Reference) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range c.referencesByFile[fileID] {
		delete(c.references, k)
	}
	keys := make([]ReferenceKey, 0, len(refs))
	for _, r := range refs {
		k := ReferenceKey{Name: r.Name, Kind: r.Kind, UsingFileID: fileID, Line: r.Line}
		c.references[k] = r
		keys = append(keys, k)
	}
	c.referencesByFile[fileID] = keys
}

// PutLocalization replaces every cached localization entry for a blob.
func (c *Cache) PutLocalization(contentHash types.ContentHash, entries []types.LocalizationEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range c.locByHash[contentHash] {
		delete(c.loc, k)
	}
	keys := make([]LocalizationKey, 0, len(entries))
	for _, e := range entries {
		k := LocalizationKey{ContentHash: contentHash, LocKey: e.Key, ParserVersion: c.parserVersion}
		c.loc[k] = e
		keys = append(keys, k)
	}
	c.locByHash[contentHash] = keys
}

// SymbolsForFile returns the current generation of symbols defined by a
// file, in no particular order.
func (c *Cache) SymbolsForFile(fileID types.FileID) []types.Symbol {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := c.symbolsByFile[fileID]
	out := make([]types.Symbol, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.symbols[k])
	}
	return out
}

// ReferencesForFile returns the current generation of references made
// by a file.
func (c *Cache) ReferencesForFile(fileID types.FileID) []types.Reference {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := c.referencesByFile[fileID]
	out := make([]types.Reference, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.references[k])
	}
	return out
}

// LocalizationForContentHash returns the cached localization entries for
// a blob, or nil if none are cached yet.
func (c *Cache) LocalizationForContentHash(contentHash types.ContentHash) []types.LocalizationEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := c.locByHash[contentHash]
	out := make([]types.LocalizationEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.loc[k])
	}
	return out
}

// IndexFileForCVID records that fileID is visible under cvid, feeding
// the cvid-scoped search indices of spec.md §4.9.
func (c *Cache) IndexFileForCVID(cvid types.CVID, fileID types.FileID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.filesByCVID[cvid]
	if !ok {
		set = make(map[types.FileID]struct{})
		c.filesByCVID[cvid] = set
	}
	set[fileID] = struct{}{}
}

// FilesForCVID returns every file indexed under cvid.
func (c *Cache) FilesForCVID(cvid types.CVID) []types.FileID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set := c.filesByCVID[cvid]
	out := make([]types.FileID, 0, len(set))
	for fileID := range set {
		out = append(out, fileID)
	}
	return out
}

// SearchSymbolsByPrefix returns symbols whose name has the given
// case-insensitive prefix, restricted to defining files in allowedFiles
// when it is non-nil (the playset visibility filter), in name order.
func (c *Cache) SearchSymbolsByPrefix(prefix string, allowedFiles map[types.FileID]struct{}, limit int) []types.Symbol {
	c.mu.Lock()
	c.rebuildSymbolIndexLocked()
	index := c.symbolIndex
	symbols := c.symbols
	c.mu.Unlock()

	lowerPrefix := strings.ToLower(prefix)
	start := sort.Search(len(index), func(i int) bool { return index[i].lowerName >= lowerPrefix })

	var out []types.Symbol
	for i := start; i < len(index) && strings.HasPrefix(index[i].lowerName, lowerPrefix); i++ {
		k := index[i].key
		if allowedFiles != nil {
			if _, ok := allowedFiles[k.DefiningFileID]; !ok {
				continue
			}
		}
		out = append(out, symbols[k])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// rebuildSymbolIndexLocked recomputes the sorted prefix index if it was
// invalidated by a write. Callers must hold c.mu.
func (c *Cache) rebuildSymbolIndexLocked() {
	if c.symbolIndex != nil {
		return
	}
	index := make([]symbolIndexEntry, 0, len(c.symbols))
	for k := range c.symbols {
		index = append(index, symbolIndexEntry{lowerName: strings.ToLower(k.Name), key: k})
	}
	sort.Slice(index, func(i, j int) bool {
		if index[i].lowerName != index[j].lowerName {
			return index[i].lowerName < index[j].lowerName
		}
		return index[i].key.DefiningFileID < index[j].key.DefiningFileID
	})
	c.symbolIndex = index
}
