package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paradoxindex/ckindex/internal/types"
)

func TestExtractSymbolFromTraitFile(t *testing.T) {
	ast := Parse(`
trait_brave = {
	is_good = yes
	effect = { @give_courage }
}`)
	require.True(t, ast.ParseOK)

	symbols, refs := Extract(ast, "common/traits/00_traits.txt", types.FileID(7), DefaultRegistry())

	require.Len(t, symbols, 1)
	assert.Equal(t, "trait_brave", symbols[0].Name)
	assert.Equal(t, KindTrait, symbols[0].Kind)
	assert.Equal(t, types.FileID(7), symbols[0].DefiningFileID)

	require.Len(t, refs, 1)
	assert.Equal(t, "give_courage", refs[0].Name)
}

func TestExtractNoSymbolsForUnmatchedRelpath(t *testing.T) {
	ast := Parse(`some_block = { key = value }`)
	symbols, _ := Extract(ast, "history/characters/00_history.txt", types.FileID(1), DefaultRegistry())
	assert.Empty(t, symbols)
}
