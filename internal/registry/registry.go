// Package registry implements the version registry (C3): it resolves a
// scanned root directory to a stable ContentVersion, reusing an existing
// one whenever the scanned root_hash matches, and otherwise minting a new
// monotonic CVID. Grounded on the teacher's single-writer channel
// discipline (internal/core/FileContentStore) applied to version
// bookkeeping instead of file bytes.
package registry

import (
	"fmt"
	"sync"

	"github.com/paradoxindex/ckindex/internal/scanner"
	"github.com/paradoxindex/ckindex/internal/types"
)

// VanillaVersion is a named snapshot of the base game.
type VanillaVersion struct {
	VersionString string
	RootHash      types.ContentHash
}

// ModPackage is a mod's stable identity across versions.
type ModPackage struct {
	WorkshopID    string
	DisplayName   string
	LocalPathHint string
}

// ContentVersion is one concrete snapshot of either a VanillaVersion or a
// ModPackage.
type ContentVersion struct {
	CVID           types.CVID
	Kind           types.Kind
	VanillaVersion *VanillaVersion
	ModPackage     *ModPackage
	RootHash       types.ContentHash
	IngestedAtUnix int64
	SourcePathHint string
}

// FileRecord is a (CV, normalized relpath) pair pointing at a ContentBlob.
type FileRecord struct {
	FileID      types.FileID
	CVID        types.CVID
	Relpath     string
	ContentHash types.ContentHash
	Fingerprint types.Fingerprint
	Class       types.FileClass
	Deleted     bool
}

// Registry owns CV and FileRecord identity. All mutation goes through
// Ingest, serialized by mu so CVID/FileID assignment stays monotonic and
// idempotent under concurrent ingestion of unrelated roots.
type Registry struct {
	mu sync.Mutex

	nextCVID   types.CVID
	nextFileID types.FileID

	vanillaByKey map[string]types.CVID // version_string -> cvid, latest root_hash wins
	modsByKey    map[string]*ModPackage
	modCVsByPkg  map[string]map[types.ContentHash]types.CVID // pkg key -> root_hash -> cvid

	versions map[types.CVID]*ContentVersion
	files    map[types.CVID]map[string]*FileRecord
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		vanillaByKey: make(map[string]types.CVID),
		modsByKey:    make(map[string]*ModPackage),
		modCVsByPkg:  make(map[string]map[types.ContentHash]types.CVID),
		versions:     make(map[types.CVID]*ContentVersion),
		files:        make(map[types.CVID]map[string]*FileRecord),
	}
}

// IngestVanilla resolves entries scanned from a vanilla game root to a CV.
// Re-ingesting identical bytes under the same version_string returns the
// existing CV and creates nothing (spec.md §4.3: "ingestion is
// idempotent").
func (r *Registry) IngestVanilla(versionString string, entries []scanner.Entry, sourcePathHint string, now int64) (*ContentVersion, bool) {
	rootHash := scanner.RootHash(entries)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.vanillaByKey[versionString]; ok {
		existing := r.versions[existingID]
		if existing.RootHash == rootHash {
			r.rebindFingerprints(existing.CVID, entries)
			return existing, false
		}
	}

	cv := &ContentVersion{
		CVID:           r.allocateCVID(),
		Kind:           types.KindVanilla,
		VanillaVersion: &VanillaVersion{VersionString: versionString, RootHash: rootHash},
		RootHash:       rootHash,
		IngestedAtUnix: now,
		SourcePathHint: sourcePathHint,
	}
	r.vanillaByKey[versionString] = cv.CVID
	r.versions[cv.CVID] = cv
	r.materializeFiles(cv.CVID, entries)
	return cv, true
}

// IngestMod resolves entries scanned from a mod root to a CV, keyed first
// by workshop id (if present) and otherwise by display name, then by
// root_hash within that package (spec.md §4.3).
func (r *Registry) IngestMod(workshopID, displayName string, entries []scanner.Entry, sourcePathHint string, now int64) (*ContentVersion, bool) {
	rootHash := scanner.RootHash(entries)
	pkgKey := modPackageKey(workshopID, displayName)

	r.mu.Lock()
	defer r.mu.Unlock()

	pkg, ok := r.modsByKey[pkgKey]
	if !ok {
		pkg = &ModPackage{WorkshopID: workshopID, DisplayName: displayName, LocalPathHint: sourcePathHint}
		r.modsByKey[pkgKey] = pkg
		r.modCVsByPkg[pkgKey] = make(map[types.ContentHash]types.CVID)
	}

	if existingID, ok := r.modCVsByPkg[pkgKey][rootHash]; ok {
		existing := r.versions[existingID]
		r.rebindFingerprints(existing.CVID, entries)
		return existing, false
	}

	cv := &ContentVersion{
		CVID:           r.allocateCVID(),
		Kind:           types.KindMod,
		ModPackage:     pkg,
		RootHash:       rootHash,
		IngestedAtUnix: now,
		SourcePathHint: sourcePathHint,
	}
	r.modCVsByPkg[pkgKey][rootHash] = cv.CVID
	r.versions[cv.CVID] = cv
	r.materializeFiles(cv.CVID, entries)
	return cv, true
}

func modPackageKey(workshopID, displayName string) string {
	if workshopID != "" {
		return "wsid:" + workshopID
	}
	return "name:" + displayName
}

func (r *Registry) allocateCVID() types.CVID {
	r.nextCVID++
	return r.nextCVID
}

func (r *Registry) materializeFiles(cvid types.CVID, entries []scanner.Entry) {
	byPath := make(map[string]*FileRecord, len(entries))
	for _, e := range entries {
		r.nextFileID++
		byPath[e.Relpath] = &FileRecord{
			FileID:      r.nextFileID,
			CVID:        cvid,
			Relpath:     e.Relpath,
			ContentHash: e.ContentHash,
			Fingerprint: e.Fingerprint,
		}
	}
	r.files[cvid] = byPath
}

// rebindFingerprints updates fingerprints on an unchanged CV when files
// have physically moved on disk but bytes are identical (spec.md §4.3:
// "only touches fingerprints when files have physically moved").
func (r *Registry) rebindFingerprints(cvid types.CVID, entries []scanner.Entry) {
	byPath := r.files[cvid]
	if byPath == nil {
		r.materializeFiles(cvid, entries)
		return
	}
	for _, e := range entries {
		if rec, ok := byPath[e.Relpath]; ok {
			rec.Fingerprint = e.Fingerprint
		}
	}
}

// Version returns the ContentVersion for cvid.
func (r *Registry) Version(cvid types.CVID) (*ContentVersion, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cv, ok := r.versions[cvid]
	return cv, ok
}

// Files returns every FileRecord for cvid.
func (r *Registry) Files(cvid types.CVID) []*FileRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	byPath := r.files[cvid]
	out := make([]*FileRecord, 0, len(byPath))
	for _, rec := range byPath {
		out = append(out, rec)
	}
	return out
}

// FindModCVID resolves a mod's stable identity (workshop id first, then
// display name, same key discipline as IngestMod) to its most recently
// ingested ContentVersion. Used by callers that must resolve an external
// playset reference (e.g. a launcher export) against content already
// known to the registry, without re-ingesting anything.
func (r *Registry) FindModCVID(workshopID, displayName string) (types.CVID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pkgKey := modPackageKey(workshopID, displayName)
	byHash, ok := r.modCVsByPkg[pkgKey]
	if !ok || len(byHash) == 0 {
		return 0, false
	}

	var latest types.CVID
	for _, cvid := range byHash {
		if cvid > latest {
			latest = cvid
		}
	}
	return latest, true
}

// File returns the FileRecord for (cvid, relpath).
func (r *Registry) File(cvid types.CVID, relpath string) (*FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byPath, ok := r.files[cvid]
	if !ok {
		return nil, fmt.Errorf("no content version %d", cvid)
	}
	rec, ok := byPath[relpath]
	if !ok {
		return nil, fmt.Errorf("no file record for %s at cvid %d", relpath, cvid)
	}
	return rec, nil
}
