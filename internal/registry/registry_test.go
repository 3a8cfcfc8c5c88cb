package registry

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paradoxindex/ckindex/internal/scanner"
	"github.com/paradoxindex/ckindex/internal/types"
)

func entry(relpath string, content string) scanner.Entry {
	h := types.ContentHash(sha256.Sum256([]byte(content)))
	return scanner.Entry{Relpath: relpath, ContentHash: h, Fingerprint: types.Fingerprint{Hash: h, Size: int64(len(content))}}
}

func TestIngestVanillaIsIdempotent(t *testing.T) {
	r := New()
	entries := []scanner.Entry{entry("common/traits/00_traits.txt", "trait = {}")}

	cv1, created1 := r.IngestVanilla("1.12.1", entries, "/game", 100)
	cv2, created2 := r.IngestVanilla("1.12.1", entries, "/game", 200)

	assert.True(t, created1)
	assert.False(t, created2)
	assert.Equal(t, cv1.CVID, cv2.CVID)
}

func TestIngestVanillaNewVersionStringMintsNewCV(t *testing.T) {
	r := New()
	entries := []scanner.Entry{entry("common/traits/00_traits.txt", "trait = {}")}

	cv1, _ := r.IngestVanilla("1.12.1", entries, "/game", 100)
	cv2, created := r.IngestVanilla("1.12.2", entries, "/game", 200)

	assert.True(t, created)
	assert.NotEqual(t, cv1.CVID, cv2.CVID)
}

func TestIngestModKeyedByWorkshopIDThenName(t *testing.T) {
	r := New()
	entries := []scanner.Entry{entry("common/traits/mod_trait.txt", "trait = {}")}

	cv1, created1 := r.IngestMod("123456", "My Mod", entries, "/mods/a", 100)
	cv2, created2 := r.IngestMod("123456", "My Mod Renamed", entries, "/mods/a", 200)

	assert.True(t, created1)
	assert.False(t, created2)
	assert.Equal(t, cv1.CVID, cv2.CVID)
}

func TestIngestModNewRootHashMintsNewCVWithinSamePackage(t *testing.T) {
	r := New()
	v1 := []scanner.Entry{entry("a.txt", "one")}
	v2 := []scanner.Entry{entry("a.txt", "two")}

	cv1, _ := r.IngestMod("", "My Mod", v1, "/mods/a", 100)
	cv2, created := r.IngestMod("", "My Mod", v2, "/mods/a", 200)

	assert.True(t, created)
	assert.NotEqual(t, cv1.CVID, cv2.CVID)
	assert.Equal(t, cv1.ModPackage, cv2.ModPackage)
}

func TestFileLookup(t *testing.T) {
	r := New()
	entries := []scanner.Entry{entry("common/traits/00_traits.txt", "trait = {}")}
	cv, _ := r.IngestVanilla("1.12.1", entries, "/game", 100)

	rec, err := r.File(cv.CVID, "common/traits/00_traits.txt")
	require.NoError(t, err)
	assert.Equal(t, "common/traits/00_traits.txt", rec.Relpath)

	_, err = r.File(cv.CVID, "does/not/exist.txt")
	assert.Error(t, err)
}
