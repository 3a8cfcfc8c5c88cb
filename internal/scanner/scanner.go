// Package scanner implements the manifest scanner (C2): a streaming walk
// of a directory tree that yields one (relpath, fingerprint, hash) tuple
// per file and a Merkle-style root hash over the whole tree. Grounded on
// the teacher's internal/indexing FileScanner filtering pass, replacing
// its hand-rolled extension/gitignore filtering with doublestar glob
// matching against the configured exclude list (SPEC_FULL.md DOMAIN
// STACK: bmatcuk/doublestar).
package scanner

import (
	"crypto/sha256"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/paradoxindex/ckindex/internal/debug"
	"github.com/paradoxindex/ckindex/internal/pathutil"
	"github.com/paradoxindex/ckindex/internal/types"
)

// Entry is one scanned file: its normalized relpath, its fingerprint and
// the SHA-256 hash of its current bytes.
type Entry struct {
	Relpath     string
	Fingerprint types.Fingerprint
	ContentHash types.ContentHash
	Bytes       []byte
}

// Scanner walks one root directory against an exclude/include glob list.
type Scanner struct {
	Root           string
	Include        []string
	Exclude        []string
	FollowSymlinks bool
}

// New builds a Scanner for root with the given include/exclude glob lists
// (doublestar patterns, e.g. "**/.git/**").
func New(root string, include, exclude []string, followSymlinks bool) *Scanner {
	return &Scanner{Root: root, Include: include, Exclude: exclude, FollowSymlinks: followSymlinks}
}

// Scan walks the tree and invokes visit once per included file, in no
// particular order; the caller sorts if order matters. The scanner reads
// one file's bytes at a time, so memory is bounded regardless of tree
// size (spec.md §4.2: "streams; memory is bounded by one file's bytes").
func (s *Scanner) Scan(visit func(Entry) error) error {
	debug.LogScan("walking %s", s.Root)
	count := 0
	err := filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 && !s.FollowSymlinks {
			return nil
		}

		rel, err := filepath.Rel(s.Root, path)
		if err != nil {
			return nil
		}
		relpath := pathutil.Normalize(rel)

		if !s.included(relpath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		hash := types.ContentHash(sha256.Sum256(content))
		entry := Entry{
			Relpath: relpath,
			Fingerprint: types.Fingerprint{
				ModTimeUnixNano: info.ModTime().UnixNano(),
				Size:            info.Size(),
				Hash:            hash,
			},
			ContentHash: hash,
			Bytes:       content,
		}
		count++
		return visit(entry)
	})
	if err != nil {
		debug.LogScan("walk of %s failed after %d files: %v", s.Root, count, err)
		return err
	}
	debug.LogScan("walked %s, %d files included", s.Root, count)
	return nil
}

func (s *Scanner) included(relpath string) bool {
	for _, pattern := range s.Exclude {
		if ok, _ := doublestar.Match(pattern, relpath); ok {
			return false
		}
	}
	if len(s.Include) == 0 {
		return true
	}
	for _, pattern := range s.Include {
		if ok, _ := doublestar.Match(pattern, relpath); ok {
			return true
		}
	}
	return false
}

// RootHash computes the Merkle-style digest of spec.md §4.2: SHA-256 over
// the sorted sequence of relpath ‖ 0x00 ‖ content_hash. Two roots with
// identical (relpath, content_hash) pairs always hash identically
// regardless of scan order.
func RootHash(entries []Entry) types.ContentHash {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Relpath < sorted[j].Relpath })

	h := sha256.New()
	for _, e := range sorted {
		h.Write([]byte(e.Relpath))
		h.Write([]byte{0x00})
		h.Write(e.ContentHash[:])
	}
	var out types.ContentHash
	copy(out[:], h.Sum(nil))
	return out
}
