package script

import "github.com/paradoxindex/ckindex/internal/types"

// Extract walks ast's top-level blocks, emitting one Symbol per named
// block whose relpath domain matches a registry rule, and one Reference
// for every scripted-value ref (`@ident`) found anywhere beneath it;
// bare identifier values are not recorded as references. fileID is
// stamped onto every resulting Symbol/Reference (spec.md §3: a
// Reference's using file, a Symbol's defining file).
func Extract(ast *types.AST, relpath string, fileID types.FileID, reg *Registry) ([]types.Symbol, []types.Reference) {
	if ast == nil || ast.Root == nil {
		return nil, nil
	}

	var symbols []types.Symbol
	var references []types.Reference

	kind, matched := reg.KindFor(relpath)

	for _, child := range ast.Root.Children {
		if child.Kind != types.NodeBlock {
			continue
		}
		if matched && child.Name != "" {
			symbols = append(symbols, types.Symbol{
				Name:           child.Name,
				Kind:           kind,
				DefiningFileID: fileID,
				Line:           child.Pos.Line,
				Node:           child,
			})
		}
		walkReferences(child, fileID, &references)
	}

	return symbols, references
}

func walkReferences(n *types.Node, fileID types.FileID, out *[]types.Reference) {
	if n == nil {
		return
	}
	switch n.Kind {
	case types.NodeValue:
		if n.ValueType == types.ValScriptedRef {
			*out = append(*out, types.Reference{
				Name:        n.Text,
				Kind:        KindScriptedEffect,
				UsingFileID: fileID,
				Line:        n.Pos.Line,
				Context:     "@" + n.Text,
			})
		}
	case types.NodeBlock, types.NodeRoot:
		for _, c := range n.Children {
			walkReferences(c, fileID, out)
		}
	case types.NodeAssignment:
		for _, c := range n.Children {
			walkReferences(c, fileID, out)
		}
	case types.NodeList:
		for _, item := range n.Items {
			walkReferences(item, fileID, out)
		}
	}
}
