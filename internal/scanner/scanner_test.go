package scanner

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paradoxindex/ckindex/internal/types"
)

func sha(b []byte) types.ContentHash {
	return types.ContentHash(sha256.Sum256(b))
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func TestScanYieldsNormalizedRelpaths(t *testing.T) {
	root := writeTree(t, map[string]string{
		"common/traits/00_traits.txt": "trait = { }",
		"localization/english/l_english.yml": "l_english:",
	})

	s := New(root, nil, nil, false)
	var seen []string
	err := s.Scan(func(e Entry) error {
		seen = append(seen, e.Relpath)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"common/traits/00_traits.txt", "localization/english/l_english.yml"}, seen)
}

func TestScanExcludesGitDirectory(t *testing.T) {
	root := writeTree(t, map[string]string{
		".git/HEAD":                  "ref: refs/heads/main",
		"common/traits/00_traits.txt": "trait = { }",
	})

	s := New(root, nil, []string{"**/.git/**"}, false)
	var seen []string
	err := s.Scan(func(e Entry) error {
		seen = append(seen, e.Relpath)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"common/traits/00_traits.txt"}, seen)
}

func TestRootHashDeterministicRegardlessOfOrder(t *testing.T) {
	a := []Entry{
		{Relpath: "b.txt", ContentHash: sha([]byte("b"))},
		{Relpath: "a.txt", ContentHash: sha([]byte("a"))},
	}
	b := []Entry{
		{Relpath: "a.txt", ContentHash: sha([]byte("a"))},
		{Relpath: "b.txt", ContentHash: sha([]byte("b"))},
	}
	assert.Equal(t, RootHash(a), RootHash(b))
}

func TestRootHashChangesWithContent(t *testing.T) {
	a := []Entry{{Relpath: "a.txt", ContentHash: sha([]byte("a"))}}
	b := []Entry{{Relpath: "a.txt", ContentHash: sha([]byte("different"))}}
	assert.NotEqual(t, RootHash(a), RootHash(b))
}
