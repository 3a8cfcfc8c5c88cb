package types

// NodeKind closes the AST node algebra: Root, Block, Assignment, Value, List.
// Replacing the dynamically-typed dict nodes the original Python AST used
// (see SPEC_FULL.md AMBIENT STACK / Design Notes) with a closed Go type
// keeps every consumer exhaustive over the same five shapes.
type NodeKind int

const (
	NodeRoot NodeKind = iota
	NodeBlock
	NodeAssignment
	NodeValue
	NodeList
)

// Op is one of the Paradox-script operators.
type Op string

const (
	OpAssign    Op = "="
	OpEq        Op = "=="
	OpNotEq     Op = "!="
	OpLess      Op = "<"
	OpLessEq    Op = "<="
	OpGreater   Op = ">"
	OpGreaterEq Op = ">="
	OpMaybe     Op = "?="
)

// ValueType tags the literal kind of a Value node.
type ValueType int

const (
	ValString ValueType = iota
	ValNumber
	ValBool
	ValIdent
	ValScriptedRef
)

// Pos is a 1-based line/column position, used to number AST nodes
// stably by their position in the source file.
type Pos struct {
	Line, Col int
}

// Node is one node of the parsed script AST. Only the fields relevant to
// NodeKind are populated; callers switch on Kind.
type Node struct {
	Kind NodeKind

	// Block / Root; an Assignment holds its single value here
	Children []*Node

	// Name: Block only. Operator: Block and Assignment.
	Name     string
	Operator Op

	// Assignment only
	Key string

	// Value only
	Text      string
	ValueType ValueType

	// List only
	Items []*Node

	Pos Pos
}

// Diagnostic is a non-fatal parse problem. The parser is total: it always
// returns a (possibly partial) AST plus zero or more diagnostics, never
// an exception.
type Diagnostic struct {
	Line, Col int
	Message   string
}

// AST is the parser's full output for one file, cached by
// (content_hash, parser_version_id).
type AST struct {
	Root        *Node
	ParseOK     bool
	NodeCount   int
	Diagnostics []Diagnostic
}

// SymbolKind enumerates the domain-specific categories a Symbol can
// belong to. Per spec.md §9 Open Questions, the set of kinds and the
// AST-shape-to-kind extraction rules are an extensible registry
// (internal/script/symbolkinds.go), not a hard-coded switch.
type SymbolKind string

// Symbol is a definition extracted from an AST.
type Symbol struct {
	Name           string
	Kind           SymbolKind
	DefiningFileID FileID
	Line           int
	Metadata       map[string]string

	// Node is the top-level block this symbol was extracted from. It is
	// kept alongside the flattened Name/Kind/Metadata view so a
	// CONTAINER_MERGE policy can route the block's second-level children
	// independently (internal/resolver.MergeContainerBlocks); most
	// callers never need to look at it.
	Node *Node
}

// Reference is a use of a symbol found while walking an AST.
type Reference struct {
	Name        string
	Kind        SymbolKind
	UsingFileID FileID
	Line        int
	Context     string
}

// LocalizationEntry is one parsed localization key for one language.
type LocalizationEntry struct {
	ContentHash    ContentHash
	Language       string
	Key            string
	Version        int
	RawValue       string
	PlainText      string
	ScriptedRefs   []string
	VariableRefs   []string
	IconRefs       []string
	Line           int
}
