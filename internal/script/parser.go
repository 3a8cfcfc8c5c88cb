package script

import (
	"strconv"

	"github.com/paradoxindex/ckindex/internal/types"
)

// Parser is a recursive-descent parser over a pre-lexed token buffer.
// Buffering the whole stream up front (rather than lexing lazily) makes
// the block/list ambiguity in the grammar (§4.4: a `{...}` can hold
// either statements or bare values) resolvable by lookahead without a
// separate re-lex pass.
type Parser struct {
	tokens      []Token
	pos         int
	diagnostics []types.Diagnostic
	nodeCount   int
}

// Parse lexes and parses src, returning a total AST: it never panics and
// always returns a Root node, with parse_ok=false and a non-empty
// Diagnostics list on malformed input (spec.md §4.4).
func Parse(src string) *types.AST {
	lex := NewLexer(src)
	var tokens []Token
	for {
		tok := lex.Next()
		tokens = append(tokens, tok)
		if tok.Kind == TokEOF {
			break
		}
	}

	p := &Parser{tokens: tokens, diagnostics: append([]types.Diagnostic{}, lex.Diagnostics()...)}
	root := p.parseRoot()

	return &types.AST{
		Root:        root,
		ParseOK:     len(p.diagnostics) == 0,
		NodeCount:   p.nodeCount,
		Diagnostics: p.diagnostics,
	}
}

func (p *Parser) peek() Token  { return p.tokens[p.pos] }
func (p *Parser) peekAt(n int) Token {
	i := p.pos + n
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[i]
}
func (p *Parser) next() Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) errorf(pos types.Pos, msg string) {
	p.diagnostics = append(p.diagnostics, types.Diagnostic{Line: pos.Line, Col: pos.Col, Message: msg})
}

func (p *Parser) newNode(kind types.NodeKind, pos types.Pos) *Node {
	p.nodeCount++
	return &Node{Kind: kind, Pos: pos}
}

// Node is a local alias kept so this file reads naturally; it is exactly
// types.Node.
type Node = types.Node

func isOpToken(k TokenKind) bool {
	switch k {
	case TokOpAssign, TokOpEq, TokOpNotEq, TokOpLess, TokOpLessEq, TokOpGreater, TokOpGreaterEq, TokOpMaybe:
		return true
	}
	return false
}

func opFromToken(t Token) types.Op {
	switch t.Kind {
	case TokOpAssign:
		return types.OpAssign
	case TokOpEq:
		return types.OpEq
	case TokOpNotEq:
		return types.OpNotEq
	case TokOpLess:
		return types.OpLess
	case TokOpLessEq:
		return types.OpLessEq
	case TokOpGreater:
		return types.OpGreater
	case TokOpGreaterEq:
		return types.OpGreaterEq
	case TokOpMaybe:
		return types.OpMaybe
	}
	return types.OpAssign
}

// parseRoot parses stmt* until EOF.
func (p *Parser) parseRoot() *Node {
	root := p.newNode(types.NodeRoot, types.Pos{Line: 1, Col: 1})
	for p.peek().Kind != TokEOF {
		if p.peek().Kind == TokRBrace {
			// Stray closing brace: emit a diagnostic and skip it so the
			// parser keeps making forward progress (never crashes).
			tok := p.next()
			p.errorf(tok.Pos, "unexpected '}'")
			continue
		}
		stmt, ok := p.parseStmt()
		if !ok {
			continue
		}
		root.Children = append(root.Children, stmt)
	}
	return root
}

// parseStmt parses one `ident op value` or `ident op '{' stmt* '}'`.
// Returns ok=false when no statement could be formed at the current
// position; the offending token has already been consumed here so
// parsing keeps progressing.
func (p *Parser) parseStmt() (*Node, bool) {
	first := p.peek()

	if !isStmtLeadToken(first.Kind) {
		tok := p.next()
		p.errorf(tok.Pos, "expected identifier or value")
		return nil, false
	}

	// Lookahead: ident followed by an operator is an assignment/block;
	// anything else at this position is a bare value (only meaningful
	// inside a list, but the parser tolerates it at any level rather than
	// raising an error the caller can't recover from).
	if first.Kind == TokIdent && isOpToken(p.peekAt(1).Kind) {
		key := p.next()
		opTok := p.next()
		op := opFromToken(opTok)

		if p.peek().Kind == TokLBrace {
			return p.parseBraceAsAssignment(key.Text, op, key.Pos)
		}

		val := p.parseValue()
		assign := p.newNode(types.NodeAssignment, key.Pos)
		assign.Key = key.Text
		assign.Operator = op
		assign.Children = []*Node{val}
		return assign, true
	}

	return p.parseValue(), true
}

func isStmtLeadToken(k TokenKind) bool {
	switch k {
	case TokIdent, TokScriptedRef, TokString, TokNumber, TokBool, TokLBrace:
		return true
	}
	return false
}

// parseBraceAsAssignment resolves the block/list ambiguity for
// `key op '{' ... '}'`: if the brace content looks like statements
// (ident followed by an operator), it is a named Block; otherwise its
// contents are bare values and the value is a List.
func (p *Parser) parseBraceAsAssignment(key string, op types.Op, pos types.Pos) (*Node, bool) {
	lbrace := p.next() // consume '{'

	if p.peek().Kind == TokRBrace {
		p.next()
		block := p.newNode(types.NodeBlock, pos)
		block.Name = key
		block.Operator = op
		return block, true
	}

	if p.looksLikeStmt() {
		block := p.newNode(types.NodeBlock, pos)
		block.Name = key
		block.Operator = op
		for p.peek().Kind != TokRBrace && p.peek().Kind != TokEOF {
			stmt, ok := p.parseStmt()
			if ok {
				block.Children = append(block.Children, stmt)
			}
		}
		p.expectRBrace(lbrace.Pos)
		return block, true
	}

	list := p.parseListBody(lbrace.Pos)
	assign := p.newNode(types.NodeAssignment, pos)
	assign.Key = key
	assign.Operator = op
	assign.Children = []*Node{list}
	return assign, true
}

// looksLikeStmt reports whether the tokens at the current position begin
// a statement (ident op ...) rather than a bare value.
func (p *Parser) looksLikeStmt() bool {
	return p.peek().Kind == TokIdent && isOpToken(p.peekAt(1).Kind)
}

func (p *Parser) expectRBrace(openPos types.Pos) {
	if p.peek().Kind == TokRBrace {
		p.next()
		return
	}
	p.errorf(openPos, "unterminated block")
}

// parseValue parses one value: literal, scripted ref, block, or list.
func (p *Parser) parseValue() *Node {
	tok := p.peek()

	switch tok.Kind {
	case TokString:
		p.next()
		n := p.newNode(types.NodeValue, tok.Pos)
		n.Text = tok.Text
		n.ValueType = types.ValString
		return n
	case TokNumber:
		p.next()
		n := p.newNode(types.NodeValue, tok.Pos)
		n.Text = tok.Text
		n.ValueType = types.ValNumber
		if _, err := strconv.ParseFloat(tok.Text, 64); err != nil {
			p.errorf(tok.Pos, "malformed number literal")
		}
		return n
	case TokBool:
		p.next()
		n := p.newNode(types.NodeValue, tok.Pos)
		n.Text = tok.Text
		n.ValueType = types.ValBool
		return n
	case TokScriptedRef:
		p.next()
		n := p.newNode(types.NodeValue, tok.Pos)
		n.Text = tok.Text
		n.ValueType = types.ValScriptedRef
		return n
	case TokIdent:
		p.next()
		n := p.newNode(types.NodeValue, tok.Pos)
		n.Text = tok.Text
		n.ValueType = types.ValIdent
		return n
	case TokLBrace:
		p.next()
		if p.looksLikeStmt() {
			block := p.newNode(types.NodeBlock, tok.Pos)
			for p.peek().Kind != TokRBrace && p.peek().Kind != TokEOF {
				stmt, ok := p.parseStmt()
				if ok {
					block.Children = append(block.Children, stmt)
				}
			}
			p.expectRBrace(tok.Pos)
			return block
		}
		return p.parseListBody(tok.Pos)
	default:
		p.errorf(tok.Pos, "expected a value")
		p.next()
		n := p.newNode(types.NodeValue, tok.Pos)
		n.ValueType = types.ValIdent
		return n
	}
}

// parseListBody parses value* up to the matching '}'; the opening brace
// has already been consumed by the caller.
func (p *Parser) parseListBody(openPos types.Pos) *Node {
	list := p.newNode(types.NodeList, openPos)
	for p.peek().Kind != TokRBrace && p.peek().Kind != TokEOF {
		list.Items = append(list.Items, p.parseValue())
	}
	p.expectRBrace(openPos)
	return list
}
