package script

import "github.com/paradoxindex/ckindex/internal/types"

// Well-known symbol kinds. This is not a closed set: the Open Questions
// in spec.md §9 call for "which AST shapes yield which symbol kinds" to
// be an extensible registry rather than a hard-coded switch, so these
// constants are seed values for DefaultRegistry, not a type enum.
const (
	KindTrait           types.SymbolKind = "trait"
	KindEvent           types.SymbolKind = "event"
	KindDecision        types.SymbolKind = "decision"
	KindScriptedEffect  types.SymbolKind = "scripted_effect"
	KindScriptedTrigger types.SymbolKind = "scripted_trigger"
	KindOnAction        types.SymbolKind = "on_action"
	KindCulture         types.SymbolKind = "culture"
)

// ExtractionRule maps a top-level Block's relpath prefix and block shape
// to a SymbolKind. Domains are matched by relpath folder (the routing
// table already tells us file_type; this narrows to symbol kind within
// "script" files).
type ExtractionRule struct {
	// RelpathPrefix restricts the rule to files under this folder, e.g.
	// "common/traits/".
	RelpathPrefix string
	Kind          types.SymbolKind
}

// Registry holds the active set of extraction rules. Callers own an
// instance and can register additional rules without touching the
// parser itself, per spec.md §9.
type Registry struct {
	rules []ExtractionRule
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds a rule, later-registered rules take precedence on
// overlapping prefixes so callers can specialize a default registry.
func (r *Registry) Register(rule ExtractionRule) {
	r.rules = append([]ExtractionRule{rule}, r.rules...)
}

// KindFor returns the SymbolKind for a top-level block found in relpath,
// and whether any rule matched.
func (r *Registry) KindFor(relpath string) (types.SymbolKind, bool) {
	for _, rule := range r.rules {
		if hasPrefix(relpath, rule.RelpathPrefix) {
			return rule.Kind, true
		}
	}
	return "", false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// DefaultRegistry seeds the registry with the domains named in spec.md
// §3 (trait, event, decision, scripted_effect, scripted_trigger,
// on_action, culture).
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ExtractionRule{RelpathPrefix: "common/traits/", Kind: KindTrait})
	r.Register(ExtractionRule{RelpathPrefix: "events/", Kind: KindEvent})
	r.Register(ExtractionRule{RelpathPrefix: "common/decisions/", Kind: KindDecision})
	r.Register(ExtractionRule{RelpathPrefix: "common/scripted_effects/", Kind: KindScriptedEffect})
	r.Register(ExtractionRule{RelpathPrefix: "common/scripted_triggers/", Kind: KindScriptedTrigger})
	r.Register(ExtractionRule{RelpathPrefix: "common/on_action/", Kind: KindOnAction})
	r.Register(ExtractionRule{RelpathPrefix: "common/culture/cultures/", Kind: KindCulture})
	return r
}
