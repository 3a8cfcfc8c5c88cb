// Package script implements the Paradox-style script parser (C4): a
// hand-written lexer and recursive-descent parser that turns script text
// into the closed AST algebra of internal/types, never panicking on
// malformed input. Grounded on the teacher's internal/parser
// recursive-descent structure (Next/Peek/Expect token-stream shape),
// rebuilt against this spec's own five-node grammar instead of the
// teacher's tree-sitter grammars.
package script

import (
	"strings"
	"unicode"

	"github.com/paradoxindex/ckindex/internal/types"
)

// TokenKind classifies one lexical token.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokScriptedRef // @ident
	TokString
	TokNumber
	TokBool
	TokOpAssign
	TokOpEq
	TokOpNotEq
	TokOpLess
	TokOpLessEq
	TokOpGreater
	TokOpGreaterEq
	TokOpMaybe
	TokLBrace
	TokRBrace
)

// Token is one lexed unit with its source position.
type Token struct {
	Kind TokenKind
	Text string
	Pos  types.Pos
}

// Lexer produces a token stream from Paradox script source. It never
// errors: unrecognized bytes are skipped and surfaced as a diagnostic by
// the caller via Lexer.Diagnostics.
type Lexer struct {
	src         []rune
	pos         int
	line, col   int
	diagnostics []types.Diagnostic
}

// NewLexer creates a Lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), line: 1, col: 1}
}

// Diagnostics returns the diagnostics accumulated while lexing.
func (l *Lexer) Diagnostics() []types.Diagnostic { return l.diagnostics }

func (l *Lexer) peekByte() (rune, bool) {
	if l.pos >= len(l.src) {
		return 0, false
	}
	return l.src[l.pos], true
}

func (l *Lexer) peekAt(offset int) (rune, bool) {
	i := l.pos + offset
	if i >= len(l.src) {
		return 0, false
	}
	return l.src[i], true
}

func (l *Lexer) advance() (rune, bool) {
	r, ok := l.peekByte()
	if !ok {
		return 0, false
	}
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r, true
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		r, ok := l.peekByte()
		if !ok {
			return
		}
		if unicode.IsSpace(r) {
			l.advance()
			continue
		}
		if r == '#' {
			for {
				r, ok := l.peekByte()
				if !ok || r == '\n' {
					break
				}
				l.advance()
			}
			continue
		}
		return
	}
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) ||
		r == '.' || r == ':' || r == '_' || r == '-'
}

// Next returns the next token. At end of input it returns TokEOF forever.
func (l *Lexer) Next() Token {
	l.skipWhitespaceAndComments()

	startLine, startCol := l.line, l.col
	r, ok := l.peekByte()
	if !ok {
		return Token{Kind: TokEOF, Pos: types.Pos{Line: startLine, Col: startCol}}
	}

	switch r {
	case '{':
		l.advance()
		return Token{Kind: TokLBrace, Text: "{", Pos: types.Pos{Line: startLine, Col: startCol}}
	case '}':
		l.advance()
		return Token{Kind: TokRBrace, Text: "}", Pos: types.Pos{Line: startLine, Col: startCol}}
	case '"':
		return l.lexString(startLine, startCol)
	case '@':
		return l.lexScriptedRef(startLine, startCol)
	case '=':
		l.advance()
		if n, ok := l.peekByte(); ok && n == '=' {
			l.advance()
			return Token{Kind: TokOpEq, Text: "==", Pos: types.Pos{Line: startLine, Col: startCol}}
		}
		return Token{Kind: TokOpAssign, Text: "=", Pos: types.Pos{Line: startLine, Col: startCol}}
	case '!':
		if n, ok := l.peekAt(1); ok && n == '=' {
			l.advance()
			l.advance()
			return Token{Kind: TokOpNotEq, Text: "!=", Pos: types.Pos{Line: startLine, Col: startCol}}
		}
		l.advance()
		l.diagnostics = append(l.diagnostics, types.Diagnostic{Line: startLine, Col: startCol, Message: "unexpected '!'"})
		return l.Next()
	case '<':
		l.advance()
		if n, ok := l.peekByte(); ok && n == '=' {
			l.advance()
			return Token{Kind: TokOpLessEq, Text: "<=", Pos: types.Pos{Line: startLine, Col: startCol}}
		}
		return Token{Kind: TokOpLess, Text: "<", Pos: types.Pos{Line: startLine, Col: startCol}}
	case '>':
		l.advance()
		if n, ok := l.peekByte(); ok && n == '=' {
			l.advance()
			return Token{Kind: TokOpGreaterEq, Text: ">=", Pos: types.Pos{Line: startLine, Col: startCol}}
		}
		return Token{Kind: TokOpGreater, Text: ">", Pos: types.Pos{Line: startLine, Col: startCol}}
	case '?':
		if n, ok := l.peekAt(1); ok && n == '=' {
			l.advance()
			l.advance()
			return Token{Kind: TokOpMaybe, Text: "?=", Pos: types.Pos{Line: startLine, Col: startCol}}
		}
		l.advance()
		l.diagnostics = append(l.diagnostics, types.Diagnostic{Line: startLine, Col: startCol, Message: "unexpected '?'"})
		return l.Next()
	}

	if r == '-' || unicode.IsDigit(r) {
		if tok, ok := l.tryLexNumber(startLine, startCol); ok {
			return tok
		}
	}

	if isIdentRune(r) {
		return l.lexIdent(startLine, startCol)
	}

	l.advance()
	l.diagnostics = append(l.diagnostics, types.Diagnostic{Line: startLine, Col: startCol, Message: "unexpected character"})
	return l.Next()
}

func (l *Lexer) lexString(startLine, startCol int) Token {
	l.advance() // opening quote
	var b strings.Builder
	for {
		r, ok := l.peekByte()
		if !ok {
			l.diagnostics = append(l.diagnostics, types.Diagnostic{Line: startLine, Col: startCol, Message: "unterminated string"})
			break
		}
		if r == '\\' {
			l.advance()
			esc, ok := l.advance()
			if !ok {
				break
			}
			switch esc {
			case '"':
				b.WriteRune('"')
			case '\\':
				b.WriteRune('\\')
			case 'n':
				b.WriteRune('\n')
			default:
				b.WriteRune(esc)
			}
			continue
		}
		if r == '"' {
			l.advance()
			break
		}
		l.advance()
		b.WriteRune(r)
	}
	return Token{Kind: TokString, Text: b.String(), Pos: types.Pos{Line: startLine, Col: startCol}}
}

func (l *Lexer) lexScriptedRef(startLine, startCol int) Token {
	l.advance() // '@'
	var b strings.Builder
	for {
		r, ok := l.peekByte()
		if !ok || !isIdentRune(r) {
			break
		}
		l.advance()
		b.WriteRune(r)
	}
	return Token{Kind: TokScriptedRef, Text: b.String(), Pos: types.Pos{Line: startLine, Col: startCol}}
}

func (l *Lexer) tryLexNumber(startLine, startCol int) (Token, bool) {
	save := l.pos
	saveLine, saveCol := l.line, l.col

	var b strings.Builder
	if r, ok := l.peekByte(); ok && r == '-' {
		l.advance()
		b.WriteRune('-')
	}
	sawDigit := false
	for {
		r, ok := l.peekByte()
		if !ok || !(unicode.IsDigit(r) || r == '.') {
			break
		}
		if unicode.IsDigit(r) {
			sawDigit = true
		}
		l.advance()
		b.WriteRune(r)
	}
	if !sawDigit {
		l.pos, l.line, l.col = save, saveLine, saveCol
		return Token{}, false
	}
	// a trailing identifier rune (e.g. "1.12.1" continuing with letters)
	// means this was actually an identifier; back off and lex as ident.
	if r, ok := l.peekByte(); ok && (unicode.IsLetter(r) || r == '_' || r == ':') {
		l.pos, l.line, l.col = save, saveLine, saveCol
		return Token{}, false
	}
	return Token{Kind: TokNumber, Text: b.String(), Pos: types.Pos{Line: startLine, Col: startCol}}, true
}

func (l *Lexer) lexIdent(startLine, startCol int) Token {
	var b strings.Builder
	for {
		r, ok := l.peekByte()
		if !ok || !isIdentRune(r) {
			break
		}
		l.advance()
		b.WriteRune(r)
	}
	text := b.String()
	if text == "yes" || text == "no" {
		return Token{Kind: TokBool, Text: text, Pos: types.Pos{Line: startLine, Col: startCol}}
	}
	return Token{Kind: TokIdent, Text: text, Pos: types.Pos{Line: startLine, Col: startCol}}
}
