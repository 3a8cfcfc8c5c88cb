package store

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutIsIdempotent(t *testing.T) {
	s := New(0)
	defer s.Close()

	content := []byte("culture = { }")
	h1, isNew1 := s.Put(content)
	h2, isNew2 := s.Put(bytes.Clone(content))

	assert.True(t, isNew1)
	assert.False(t, isNew2)
	assert.Equal(t, h1, h2)
}

func TestGetTextRoundTrip(t *testing.T) {
	s := New(0)
	defer s.Close()

	content := []byte("trait = { is_good = yes }")
	hash, _ := s.Put(content)

	text, ok, err := s.GetText(hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(content), text)
	assert.True(t, s.Exists(hash))
}

func TestGetTextStripsBOM(t *testing.T) {
	s := New(0)
	defer s.Close()

	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte("root = { }")...)
	hash, _ := s.Put(withBOM)

	text, ok, err := s.GetText(hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "root = { }", text)
}

func TestBinaryBlobIsNotText(t *testing.T) {
	s := New(0)
	defer s.Close()

	binary := []byte{0xFF, 0xFE, 0x00, 0x01, 0x80, 0x81}
	hash, _ := s.Put(binary)

	_, ok, err := s.GetText(hash)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.IsText(hash))

	raw, err := s.GetBytes(hash)
	require.NoError(t, err)
	assert.Equal(t, binary, raw)
}

func TestOversizeBlobFlaggedNonParseable(t *testing.T) {
	s := New(8)
	defer s.Close()

	hash, _ := s.Put([]byte("this is definitely more than eight bytes"))
	assert.False(t, s.IsParseable(hash))
}

func TestUnknownHashReturnsError(t *testing.T) {
	s := New(0)
	defer s.Close()

	var zero [32]byte
	_, _, err := s.GetText(zero)
	assert.Error(t, err)
	assert.False(t, s.Exists(zero))
}

func TestConcurrentPutsOfSameContent(t *testing.T) {
	s := New(0)
	defer s.Close()

	content := []byte("decision = { }")
	results := make(chan bool, 32)
	for i := 0; i < 32; i++ {
		go func() {
			_, isNew := s.Put(bytes.Clone(content))
			results <- isNew
		}()
	}

	newCount := 0
	for i := 0; i < 32; i++ {
		if <-results {
			newCount++
		}
	}
	assert.Equal(t, 1, newCount)
}
