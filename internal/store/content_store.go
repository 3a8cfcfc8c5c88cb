// Package store implements the content-addressed blob store (C1): every
// file's bytes are kept exactly once, keyed by SHA-256, with writes
// serialized through a single goroutine and reads served lock-free off a
// shared sync.Map snapshot. Grounded on the teacher's
// internal/core/FileContentStore channel-based single-writer pattern,
// generalized from in-memory FileID indexing to SHA-256 content identity.
package store

import (
	"crypto/sha256"
	"errors"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"github.com/paradoxindex/ckindex/internal/types"
)

// DefaultMaxParseableSize is the size above which a blob is stored but
// flagged non-parseable (spec.md §4.1).
const DefaultMaxParseableSize = 2 * 1024 * 1024

var byteOrderMarkUTF8 = []byte{0xEF, 0xBB, 0xBF}

// blob is the immutable record kept for one ContentHash.
type blob struct {
	hash         types.ContentHash
	fastHash     uint64
	bytes        []byte
	isText       bool
	detectedEnc  string
	nonParseable bool
}

// snapshot holds every blob in one sync.Map that only the writer
// goroutine stores into; it is not swapped on write, and reads never block.
type snapshot struct {
	blobs sync.Map // map[types.ContentHash]*blob
}

type putRequest struct {
	content  []byte
	response chan putResult
}

type putResult struct {
	hash  types.ContentHash
	isNew bool
}

// Store is the content-addressed blob store. Safe for concurrent use:
// reads hit the lock-free snapshot; writes funnel through one goroutine
// so two puts of the same bytes never race on "is this hash new".
type Store struct {
	snapshot atomic.Value // *snapshot

	maxParseableSize int64

	putChan   chan *putRequest
	closeChan chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
}

// New creates a Store with the given non-parseable size cap (0 uses
// DefaultMaxParseableSize).
func New(maxParseableSize int64) *Store {
	if maxParseableSize <= 0 {
		maxParseableSize = DefaultMaxParseableSize
	}
	s := &Store{
		maxParseableSize: maxParseableSize,
		putChan:          make(chan *putRequest, 64),
		closeChan:        make(chan struct{}),
		doneChan:         make(chan struct{}),
	}
	s.snapshot.Store(&snapshot{})
	go s.run()
	return s
}

// Close stops the writer goroutine. Safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.closeChan)
		<-s.doneChan
	})
}

func (s *Store) run() {
	defer close(s.doneChan)
	for {
		select {
		case req := <-s.putChan:
			req.response <- s.handlePut(req.content)
		case <-s.closeChan:
			for {
				select {
				case req := <-s.putChan:
					req.response <- s.handlePut(req.content)
				default:
					return
				}
			}
		}
	}
}

// Put stores content, returning its hash and whether this is the blob's
// first appearance. Idempotent: storing identical bytes twice returns the
// same hash with isNew=false the second time.
func (s *Store) Put(content []byte) (types.ContentHash, bool) {
	req := &putRequest{content: content, response: make(chan putResult, 1)}
	s.putChan <- req
	res := <-req.response
	return res.hash, res.isNew
}

func (s *Store) handlePut(content []byte) putResult {
	hash := types.ContentHash(sha256.Sum256(content))
	snap := s.snapshot.Load().(*snapshot)

	fast := xxhash.Sum64(content)
	if existing, ok := snap.blobs.Load(hash); ok {
		b := existing.(*blob)
		if b.fastHash == fast {
			return putResult{hash: hash, isNew: false}
		}
	}

	b := s.classify(hash, fast, content)
	snap.blobs.Store(hash, b)
	return putResult{hash: hash, isNew: true}
}

// classify splits content into the text/binary classification of
// spec.md §4.1: valid UTF-8 (BOM stripped) is text; anything else is
// binary. Content above maxParseableSize is kept but flagged
// non-parseable regardless of class.
func (s *Store) classify(hash types.ContentHash, fast uint64, content []byte) *blob {
	b := &blob{hash: hash, fastHash: fast, bytes: content}

	stripped := content
	if len(stripped) >= 3 && stripped[0] == byteOrderMarkUTF8[0] &&
		stripped[1] == byteOrderMarkUTF8[1] && stripped[2] == byteOrderMarkUTF8[2] {
		stripped = stripped[3:]
	}

	if utf8.Valid(stripped) {
		b.isText = true
		b.bytes = stripped
		b.detectedEnc = "utf-8"
	} else {
		b.isText = false
	}

	if int64(len(content)) > s.maxParseableSize {
		b.nonParseable = true
	}
	return b
}

var errNotFound = errors.New("content hash not found in store")

// GetText returns the decoded text for hash, or errNotFound if hash was
// never stored, or ok=false if the blob is binary.
func (s *Store) GetText(hash types.ContentHash) (text string, ok bool, err error) {
	b, err := s.lookup(hash)
	if err != nil {
		return "", false, err
	}
	if !b.isText {
		return "", false, nil
	}
	return string(b.bytes), true, nil
}

// GetBytes returns the raw bytes stored for hash.
func (s *Store) GetBytes(hash types.ContentHash) ([]byte, error) {
	b, err := s.lookup(hash)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b.bytes))
	copy(out, b.bytes)
	return out, nil
}

// Exists reports whether hash is present in the store.
func (s *Store) Exists(hash types.ContentHash) bool {
	snap := s.snapshot.Load().(*snapshot)
	_, ok := snap.blobs.Load(hash)
	return ok
}

// IsParseable reports whether the blob for hash is under the size cap.
// Returns false (not an error) for an unknown hash.
func (s *Store) IsParseable(hash types.ContentHash) bool {
	b, err := s.lookup(hash)
	if err != nil {
		return false
	}
	return !b.nonParseable
}

// IsText reports whether the blob for hash classified as text.
func (s *Store) IsText(hash types.ContentHash) bool {
	b, err := s.lookup(hash)
	if err != nil {
		return false
	}
	return b.isText
}

func (s *Store) lookup(hash types.ContentHash) (*blob, error) {
	snap := s.snapshot.Load().(*snapshot)
	v, ok := snap.blobs.Load(hash)
	if !ok {
		return nil, errNotFound
	}
	return v.(*blob), nil
}
