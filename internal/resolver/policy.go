// Package resolver implements the load-order-aware file and symbol
// override computation of spec.md §4.10: four closed merge policies
// applied over an ordered playset, producing FileResolutions and
// ConflictUnits that internal/report turns into the conflicts.v1
// document. Every function here is a pure function of its inputs plus
// cache contents, per spec.md's "no I/O" requirement.
package resolver

import (
	"strings"

	"github.com/paradoxindex/ckindex/internal/types"
)

// SubRule names how a CONTAINER_MERGE policy routes one second-level
// block name within a merged container (spec.md §4.10).
type SubRule int

const (
	// SubAppend concatenates same-named sub-blocks across sources
	// (on_action's events{}/on_actions{}).
	SubAppend SubRule = iota
	// SubSingleSlotConflict keeps one definition of the sub-block: as with
	// SubSingleSlotOverride the last source's definition wins, but a
	// sub-block defined by two or more sources is also reported as a
	// conflict (on_action's effect{}/trigger{}).
	SubSingleSlotConflict
	// SubSingleSlotOverride lets the last source's definition replace
	// earlier ones in place (on_action's weight_multiplier{}/fallback{}).
	SubSingleSlotOverride
)

// ContainerMergePolicy is the extensible registry of second-level
// sub-block routing rules for one CONTAINER_MERGE domain (spec.md §9
// Open Questions: the sub-rule set must not be hard-coded). Callers may
// Register additional sub-block names beyond DefaultOnActionPolicy's
// seed set without touching this package.
type ContainerMergePolicy struct {
	rules       map[string]SubRule
	defaultRule SubRule
}

// NewContainerMergePolicy builds an empty policy falling back to
// defaultRule for any sub-block name with no explicit rule.
func NewContainerMergePolicy(defaultRule SubRule) *ContainerMergePolicy {
	return &ContainerMergePolicy{rules: make(map[string]SubRule), defaultRule: defaultRule}
}

// Register binds one sub-block name to a rule, overwriting any prior
// registration for that name.
func (p *ContainerMergePolicy) Register(blockName string, rule SubRule) {
	p.rules[blockName] = rule
}

// RuleFor returns the routing rule for a sub-block name.
func (p *ContainerMergePolicy) RuleFor(blockName string) SubRule {
	if r, ok := p.rules[blockName]; ok {
		return r
	}
	return p.defaultRule
}

// DefaultOnActionPolicy seeds the on_action CONTAINER_MERGE sub-rules
// named in spec.md §4.10.
func DefaultOnActionPolicy() *ContainerMergePolicy {
	p := NewContainerMergePolicy(SubSingleSlotOverride)
	p.Register("events", SubAppend)
	p.Register("on_actions", SubAppend)
	p.Register("effect", SubSingleSlotConflict)
	p.Register("trigger", SubSingleSlotConflict)
	p.Register("weight_multiplier", SubSingleSlotOverride)
	p.Register("fallback", SubSingleSlotOverride)
	return p
}

// PolicyRule binds a vpath predicate to one of the four closed merge
// policies.
type PolicyRule struct {
	Predicate func(relpath string) bool
	Policy    types.MergePolicy
}

// PolicyMap is the ordered predicate -> policy table of spec.md §4.10's
// algorithm input P. Rules are tried in registration order; the first
// match wins.
type PolicyMap struct {
	rules         []PolicyRule
	defaultPolicy types.MergePolicy
}

// NewPolicyMap builds an empty map falling back to defaultPolicy.
func NewPolicyMap(defaultPolicy types.MergePolicy) *PolicyMap {
	return &PolicyMap{defaultPolicy: defaultPolicy}
}

// Register appends a rule to the end of the match order.
func (m *PolicyMap) Register(predicate func(string) bool, policy types.MergePolicy) {
	m.rules = append(m.rules, PolicyRule{Predicate: predicate, Policy: policy})
}

// PolicyFor returns the policy bound to relpath.
func (m *PolicyMap) PolicyFor(relpath string) types.MergePolicy {
	for _, r := range m.rules {
		if r.Predicate(relpath) {
			return r.Policy
		}
	}
	return m.defaultPolicy
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// DefaultPolicyMap seeds the folder-level policy assignments spec.md
// §4.10 names: OVERRIDE for most folders, PER_KEY_OVERRIDE for
// localization and defines, CONTAINER_MERGE for on_actions, FIOS for
// GUI/graphics types.
func DefaultPolicyMap() *PolicyMap {
	m := NewPolicyMap(types.PolicyOverride)
	m.Register(func(p string) bool {
		return hasAnyPrefix(p, "localisation/", "localization/")
	}, types.PolicyPerKeyOverride)
	m.Register(func(p string) bool {
		return hasAnyPrefix(p, "common/defines")
	}, types.PolicyPerKeyOverride)
	m.Register(func(p string) bool {
		return hasAnyPrefix(p, "common/on_action")
	}, types.PolicyContainerMerge)
	m.Register(func(p string) bool {
		return hasAnyPrefix(p, "gui/", "gfx/")
	}, types.PolicyFIOS)
	return m
}
