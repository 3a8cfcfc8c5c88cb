package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paradoxindex/ckindex/internal/types"
)

func TestMergeContainerBlocksAppendsAcrossSources(t *testing.T) {
	policy := DefaultOnActionPolicy()

	vanilla := &types.Node{
		Kind: types.NodeBlock,
		Name: "on_yearly_pulse",
		Children: []*types.Node{
			{Kind: types.NodeBlock, Name: "events"},
		},
	}
	mod := &types.Node{
		Kind: types.NodeBlock,
		Name: "on_yearly_pulse",
		Children: []*types.Node{
			{Kind: types.NodeBlock, Name: "events"},
		},
	}

	merged := MergeContainerBlocks([]*types.Node{vanilla, mod}, policy)
	assert.Equal(t, "on_yearly_pulse", merged.Name)
	assert.Len(t, merged.Children, 2)
}

func TestMergeContainerBlocksOverridesSingleSlot(t *testing.T) {
	policy := DefaultOnActionPolicy()

	vanilla := &types.Node{
		Kind: types.NodeBlock,
		Children: []*types.Node{
			{Kind: types.NodeAssignment, Key: "weight_multiplier", Text: "1"},
		},
	}
	mod := &types.Node{
		Kind: types.NodeBlock,
		Children: []*types.Node{
			{Kind: types.NodeAssignment, Key: "weight_multiplier", Text: "2"},
		},
	}

	merged := MergeContainerBlocks([]*types.Node{vanilla, mod}, policy)
	require.Len(t, merged.Children, 1)
	assert.Equal(t, "2", merged.Children[0].Text)
}

func TestMergeContainerBlocksKeepsLastOnSingleSlotConflict(t *testing.T) {
	policy := DefaultOnActionPolicy()

	vanilla := &types.Node{
		Kind: types.NodeBlock,
		Children: []*types.Node{
			{Kind: types.NodeAssignment, Key: "effect", Text: "vanilla_effect"},
		},
	}
	mod := &types.Node{
		Kind: types.NodeBlock,
		Children: []*types.Node{
			{Kind: types.NodeAssignment, Key: "effect", Text: "mod_effect"},
		},
	}

	merged := MergeContainerBlocks([]*types.Node{vanilla, mod}, policy)
	require.Len(t, merged.Children, 1)
	assert.Equal(t, "mod_effect", merged.Children[0].Text)
}

func TestFindContainerConflictsReportsSingleSlotConflictButNotAppend(t *testing.T) {
	policy := DefaultOnActionPolicy()

	vanilla := &types.Node{
		Kind: types.NodeBlock,
		Name: "on_yearly_pulse",
		Children: []*types.Node{
			{Kind: types.NodeBlock, Name: "events"},
			{Kind: types.NodeAssignment, Key: "effect", Text: "vanilla_effect"},
		},
	}
	mod := &types.Node{
		Kind: types.NodeBlock,
		Name: "on_yearly_pulse",
		Children: []*types.Node{
			{Kind: types.NodeBlock, Name: "events"},
			{Kind: types.NodeAssignment, Key: "effect", Text: "mod_effect"},
		},
	}

	sources := []ContainerSource{
		{CVID: 1, LoadOrder: 0, Node: vanilla},
		{CVID: 2, LoadOrder: 1, Node: mod},
	}

	conflicts := FindContainerConflicts(sources, policy)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "effect", conflicts[0].Name)
	assert.Equal(t, SubSingleSlotConflict, conflicts[0].Rule)
	require.Len(t, conflicts[0].Contributors, 2)
	assert.Equal(t, types.CVID(2), conflicts[0].Contributors[len(conflicts[0].Contributors)-1].CVID)
}

func TestMergeContainerBlocksSkipsNilSources(t *testing.T) {
	policy := DefaultOnActionPolicy()
	mod := &types.Node{Kind: types.NodeBlock, Name: "on_startup"}

	merged := MergeContainerBlocks([]*types.Node{nil, mod}, policy)
	assert.Equal(t, "on_startup", merged.Name)
	assert.Empty(t, merged.Children)
}

func TestContainerMergePolicyRegisterOverridesDefault(t *testing.T) {
	policy := NewContainerMergePolicy(SubAppend)
	assert.Equal(t, SubAppend, policy.RuleFor("anything"))

	policy.Register("effect", SubSingleSlotConflict)
	assert.Equal(t, SubSingleSlotConflict, policy.RuleFor("effect"))
	assert.Equal(t, SubAppend, policy.RuleFor("unregistered"))
}
