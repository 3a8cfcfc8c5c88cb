package resolver

import (
	"sort"

	"github.com/paradoxindex/ckindex/internal/types"
)

// MergeContainerBlocks merges N sources' same-named top-level container
// block (e.g. the on_action:on_yearly_pulse block) into one logical
// block, routing each second-level child by subPolicy (spec.md §4.10
// CONTAINER_MERGE). sources must be given in load order: index 0 is the
// lowest rank. A nil entry (the CV does not define this block) is
// skipped.
func MergeContainerBlocks(sources []*types.Node, subPolicy *ContainerMergePolicy) *types.Node {
	merged := &types.Node{Kind: types.NodeBlock}
	for _, src := range sources {
		if src == nil {
			continue
		}
		merged.Name = src.Name
		merged.Operator = src.Operator
		break
	}

	slotIndex := make(map[string]int)
	for _, src := range sources {
		if src == nil {
			continue
		}
		for _, child := range src.Children {
			name := subBlockName(child)
			switch subPolicy.RuleFor(name) {
			case SubAppend:
				merged.Children = append(merged.Children, child)
			case SubSingleSlotOverride:
				if idx, ok := slotIndex[name]; ok {
					merged.Children[idx] = child
				} else {
					slotIndex[name] = len(merged.Children)
					merged.Children = append(merged.Children, child)
				}
			case SubSingleSlotConflict:
				if idx, ok := slotIndex[name]; ok {
					// A later source also defines this slot. The merge
					// still takes the higher-load-order definition, same
					// as SubSingleSlotOverride; the only difference is
					// that this rule is also surfaced as a conflict (see
					// FindContainerConflicts) rather than treated as an
					// intentional replacement.
					merged.Children[idx] = child
				} else {
					slotIndex[name] = len(merged.Children)
					merged.Children = append(merged.Children, child)
				}
			}
		}
	}
	return merged
}

func subBlockName(n *types.Node) string {
	switch n.Kind {
	case types.NodeBlock:
		return n.Name
	case types.NodeAssignment:
		return n.Key
	default:
		return ""
	}
}

// ContainerSource pairs one CV's contribution to a container block with
// the load-order rank a caller needs to pick a winner.
type ContainerSource struct {
	CVID      types.CVID
	LoadOrder int
	Node      *types.Node
}

// ContainerSubBlockConflict is one single-slot sub-block name contributed
// by two or more sources within a merged container block.
type ContainerSubBlockConflict struct {
	Name         string
	Rule         SubRule
	Contributors []ContainerSource
}

// FindContainerConflicts walks the same second-level routing rules
// MergeContainerBlocks uses to assemble a container, but instead of
// building the merged block it reports which single-slot (override or
// conflict) sub-block names are contributed by two or more sources.
// SubAppend sub-blocks are never reported: every source's contribution
// survives in the merged block, so there is no winner to attribute.
func FindContainerConflicts(sources []ContainerSource, subPolicy *ContainerMergePolicy) []ContainerSubBlockConflict {
	bySub := make(map[string][]ContainerSource)
	var order []string
	for _, src := range sources {
		if src.Node == nil {
			continue
		}
		seen := make(map[string]bool)
		for _, child := range src.Node.Children {
			name := subBlockName(child)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			if subPolicy.RuleFor(name) == SubAppend {
				continue
			}
			if _, ok := bySub[name]; !ok {
				order = append(order, name)
			}
			bySub[name] = append(bySub[name], src)
		}
	}

	var out []ContainerSubBlockConflict
	for _, name := range order {
		contributors := bySub[name]
		if len(contributors) < 2 {
			continue
		}
		sort.Slice(contributors, func(i, j int) bool { return contributors[i].LoadOrder < contributors[j].LoadOrder })
		out = append(out, ContainerSubBlockConflict{
			Name:         name,
			Rule:         subPolicy.RuleFor(name),
			Contributors: contributors,
		})
	}
	return out
}
