// Package parser implements a hand-written recursive-descent parser over
// internal/lexer's token stream, producing internal/ast trees. It covers
// the JEXL expression/statement grammar plus the ternary, elvis and
// safe-navigation sugar, each lowered to the ordinary node kinds so the
// interpreter needs no extra dispatch cases.
package parser

import (
	"github.com/cwbudde/go-jexl/internal/ast"
	"github.com/cwbudde/go-jexl/internal/jexlerr"
	"github.com/cwbudde/go-jexl/internal/lexer"
	"github.com/cwbudde/go-jexl/pkg/token"
)

// tokenSource is the minimal lexer surface the parser depends on, letting
// tests feed a canned token sequence without a real Lexer.
type tokenSource interface {
	NextToken() token.Token
}

// Parser turns a token stream into an AST. Parser state is not reentrant;
// the engine facade serializes access with a mutex.
type Parser struct {
	lex    tokenSource
	cur    token.Token
	peek   token.Token
	peek2  token.Token
	errors []*jexlerr.Error
}

// New creates a Parser reading from lex.
func New(lex tokenSource) *Parser {
	p := &Parser{lex: lex}
	p.next()
	p.next()
	p.next()
	return p
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.peek2
	p.peek2 = p.lex.NextToken()
}

func (p *Parser) errorf(format string, args ...any) {
	p.errors = append(p.errors, jexlerr.New(jexlerr.KindParseError, format, args...))
}

// Errors returns all parse errors accumulated so far.
func (p *Parser) Errors() []*jexlerr.Error { return p.errors }

// ParseScript parses a full script: a semicolon-separated statement list.
func ParseScript(src string) (ast.Node, []*jexlerr.Error) {
	p := New(lexer.New(src))
	return p.parseScript(), p.errors
}

// ParseExpression parses a single expression/statement form (the engine
// facade's CreateExpression entry point).
func ParseExpression(src string) (ast.Node, []*jexlerr.Error) {
	p := New(lexer.New(src))
	n := p.parseStatement()
	for p.cur.Type == token.SEMI {
		p.next()
	}
	if p.cur.Type != token.EOF {
		p.errorf("unexpected trailing input after expression")
	}
	return n, p.errors
}

func (p *Parser) parseScript() ast.Node {
	begin := p.cur.Pos.Offset
	var stmts []ast.Node
	for p.cur.Type != token.EOF {
		if p.cur.Type == token.SEMI {
			p.next()
			continue
		}
		stmts = append(stmts, p.parseStatement())
		for p.cur.Type == token.SEMI {
			p.next()
		}
	}
	return ast.New(ast.KindScript, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, stmts...)
}

func (p *Parser) parseBlock() ast.Node {
	begin := p.cur.Pos.Offset
	p.expect(token.LBRACE)
	var stmts []ast.Node
	for p.cur.Type != token.RBRACE && p.cur.Type != token.EOF {
		stmts = append(stmts, p.parseStatement())
		for p.cur.Type == token.SEMI {
			p.next()
		}
	}
	end := p.cur.Pos.Offset
	p.expect(token.RBRACE)
	return ast.New(ast.KindBlock, ast.Span{Begin: begin, End: end}, stmts...)
}

func (p *Parser) expect(t token.Type) token.Token {
	if p.cur.Type != t {
		p.errorf("expected %s, got %s %q", t, p.cur.Type, p.cur.Literal)
		return p.cur
	}
	tok := p.cur
	p.next()
	return tok
}

// identLike reports whether t can serve as a property or method name:
// a plain identifier, or a keyword (which cannot begin a statement in
// name position, so no ambiguity arises).
func identLike(t token.Type) bool {
	return t == token.IDENT || t.IsKeyword()
}

func (p *Parser) expectIdentLike() token.Token {
	if !identLike(p.cur.Type) {
		p.errorf("expected identifier, got %s %q", p.cur.Type, p.cur.Literal)
		return p.cur
	}
	tok := p.cur
	p.next()
	return tok
}

func (p *Parser) parseStatement() ast.Node {
	switch p.cur.Type {
	case token.LBRACE:
		// `{ <non-identifier key> :` opens a map literal rather than a
		// block; an identifier key stays a block so `{ ns:fn() }` parses.
		if p.peek2.Type == token.COLON && p.peek.Type != token.IDENT {
			return p.parseAssignmentOrExpr()
		}
		return p.parseBlock()
	case token.IF:
		return p.parseIf()
	case token.WHILE:
		return p.parseWhile()
	case token.FOREACH:
		return p.parseForEach()
	default:
		return p.parseAssignmentOrExpr()
	}
}

func (p *Parser) parseIf() ast.Node {
	begin := p.cur.Pos.Offset
	p.next() // if
	p.expect(token.LPAREN)
	cond := p.parseExpr()
	p.expect(token.RPAREN)
	then := p.parseStatement()
	children := []ast.Node{cond, then}
	if p.cur.Type == token.ELSE {
		p.next()
		children = append(children, p.parseStatement())
	}
	return ast.New(ast.KindIf, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, children...)
}

func (p *Parser) parseWhile() ast.Node {
	begin := p.cur.Pos.Offset
	p.next() // while
	p.expect(token.LPAREN)
	cond := p.parseExpr()
	p.expect(token.RPAREN)
	body := p.parseStatement()
	return ast.New(ast.KindWhile, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, cond, body)
}

func (p *Parser) parseForEach() ast.Node {
	begin := p.cur.Pos.Offset
	p.next() // foreach
	p.expect(token.LPAREN)
	nameTok := p.expect(token.IDENT)
	loopVar := ast.NewLeaf(ast.KindIdentifier, nameTok.Literal, ast.Span{Begin: nameTok.Pos.Offset, End: nameTok.Pos.Offset + len(nameTok.Literal)})
	p.expect(token.IN)
	iterable := p.parseExpr()
	p.expect(token.RPAREN)
	body := p.parseStatement()
	return ast.New(ast.KindForEach, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, loopVar, iterable, body)
}

func (p *Parser) parseAssignmentOrExpr() ast.Node {
	begin := p.cur.Pos.Offset
	left := p.parseExpr()
	if p.cur.Type == token.ASSIGN {
		p.next()
		right := p.parseExpr()
		return ast.New(ast.KindAssignment, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, left, right)
	}
	return left
}

// parseExpr parses the ternary/elvis level, the lowest expression
// precedence below assignment.
func (p *Parser) parseExpr() ast.Node {
	begin := p.cur.Pos.Offset
	cond := p.parseOr()
	if p.cur.Type == token.QUESTION_COLON {
		p.next()
		rhs := p.parseExpr()
		// elvis: cond ?: rhs == if (cond) cond else rhs. The condition
		// subtree is shared, not duplicated, so re-evaluating it costs no
		// more than a second tree-walk over the same nodes.
		return ast.New(ast.KindIf, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, cond, cond, rhs)
	}
	if p.cur.Type == token.QUESTION {
		p.next()
		then := p.parseExpr()
		p.expect(token.COLON)
		els := p.parseExpr()
		return ast.New(ast.KindIf, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, cond, then, els)
	}
	return cond
}

func (p *Parser) parseOr() ast.Node {
	left := p.parseAnd()
	for p.cur.Type == token.PIPE_PIPE || p.cur.Type == token.OR_WORD {
		begin := left.Span().Begin
		p.next()
		right := p.parseAnd()
		left = ast.New(ast.KindOr, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, left, right)
	}
	return left
}

func (p *Parser) parseAnd() ast.Node {
	left := p.parseBitOr()
	for p.cur.Type == token.AMP_AMP || p.cur.Type == token.AND_WORD {
		begin := left.Span().Begin
		p.next()
		right := p.parseBitOr()
		left = ast.New(ast.KindAnd, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, left, right)
	}
	return left
}

func (p *Parser) parseBitOr() ast.Node {
	left := p.parseBitXor()
	for p.cur.Type == token.PIPE {
		begin := left.Span().Begin
		p.next()
		right := p.parseBitXor()
		left = ast.New(ast.KindBitOr, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, left, right)
	}
	return left
}

func (p *Parser) parseBitXor() ast.Node {
	left := p.parseBitAnd()
	for p.cur.Type == token.CARET {
		begin := left.Span().Begin
		p.next()
		right := p.parseBitAnd()
		left = ast.New(ast.KindBitXor, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, left, right)
	}
	return left
}

func (p *Parser) parseBitAnd() ast.Node {
	left := p.parseEquality()
	for p.cur.Type == token.AMP {
		begin := left.Span().Begin
		p.next()
		right := p.parseEquality()
		left = ast.New(ast.KindBitAnd, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, left, right)
	}
	return left
}

var equalityKinds = map[token.Type]ast.Kind{
	token.EQ: ast.KindEq, token.EQ_WORD: ast.KindEq,
	token.NE: ast.KindNe, token.NE_WORD: ast.KindNe,
}

func (p *Parser) parseEquality() ast.Node {
	left := p.parseRelational()
	for {
		k, ok := equalityKinds[p.cur.Type]
		if !ok {
			return left
		}
		begin := left.Span().Begin
		p.next()
		right := p.parseRelational()
		left = ast.New(k, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, left, right)
	}
}

var relationalKinds = map[token.Type]ast.Kind{
	token.LT: ast.KindLt, token.LT_WORD: ast.KindLt,
	token.LE: ast.KindLe, token.LE_WORD: ast.KindLe,
	token.GT: ast.KindGt, token.GT_WORD: ast.KindGt,
	token.GE: ast.KindGe, token.GE_WORD: ast.KindGe,
}

func (p *Parser) parseRelational() ast.Node {
	left := p.parseAdditive()
	for {
		k, ok := relationalKinds[p.cur.Type]
		if !ok {
			return left
		}
		begin := left.Span().Begin
		p.next()
		right := p.parseAdditive()
		left = ast.New(k, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, left, right)
	}
}

func (p *Parser) parseAdditive() ast.Node {
	left := p.parseMultiplicative()
	for p.cur.Type == token.PLUS || p.cur.Type == token.MINUS {
		begin := left.Span().Begin
		k := ast.KindAdd
		if p.cur.Type == token.MINUS {
			k = ast.KindSub
		}
		p.next()
		right := p.parseMultiplicative()
		left = ast.New(k, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, left, right)
	}
	return left
}

var multiplicativeKinds = map[token.Type]ast.Kind{
	token.STAR: ast.KindMul,
	token.SLASH: ast.KindDiv, token.DIV_WORD: ast.KindDiv,
	token.PERCENT: ast.KindMod, token.MOD_WORD: ast.KindMod,
}

func (p *Parser) parseMultiplicative() ast.Node {
	left := p.parseUnary()
	for {
		k, ok := multiplicativeKinds[p.cur.Type]
		if !ok {
			return left
		}
		begin := left.Span().Begin
		p.next()
		right := p.parseUnary()
		left = ast.New(k, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, left, right)
	}
}

func (p *Parser) parseUnary() ast.Node {
	begin := p.cur.Pos.Offset
	switch p.cur.Type {
	case token.MINUS:
		p.next()
		operand := p.parseUnary()
		return ast.New(ast.KindUMinus, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, operand)
	case token.BANG, token.NOT_WORD:
		p.next()
		operand := p.parseUnary()
		return ast.New(ast.KindNot, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, operand)
	case token.TILDE:
		p.next()
		operand := p.parseUnary()
		return ast.New(ast.KindBitNot, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, operand)
	}
	return p.parsePostfix()
}

// parsePostfix builds either a flat Reference chain rooted at an
// identifier (a.b.c(), a[0].b, ns:func()) or, for every other primary
// expression (literals, parens, array/map literals, size/empty), returns
// it unchanged — this implementation does not support postfix chaining off
// a non-reference expression.
func (p *Parser) parsePostfix() ast.Node {
	if p.cur.Type != token.IDENT {
		return p.parsePrimary()
	}

	begin := p.cur.Pos.Offset
	firstTok := p.cur
	p.next()

	// Namespace function call: ns:func(args). The '(' lookahead keeps a
	// ternary's ':' branch from being consumed as a namespace.
	if p.cur.Type == token.COLON && identLike(p.peek.Type) && p.peek2.Type == token.LPAREN {
		p.next() // colon
		fnTok := p.cur
		p.next()
		p.expect(token.LPAREN)
		args := p.parseArgs()
		p.expect(token.RPAREN)
		name := firstTok.Literal + ":" + fnTok.Literal
		nameSpan := ast.Span{Begin: firstTok.Pos.Offset, End: p.cur.Pos.Offset}
		nameLeaf := ast.NewLeaf(ast.KindIdentifier, name, nameSpan)
		method := ast.New(ast.KindMethod, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, append([]ast.Node{nameLeaf}, args...)...)
		return ast.New(ast.KindReference, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, method)
	}

	firstLeaf := ast.NewLeaf(ast.KindIdentifier, firstTok.Literal, ast.Span{Begin: firstTok.Pos.Offset, End: firstTok.Pos.Offset + len(firstTok.Literal)})
	segments := []ast.Node{firstLeaf}

	if p.cur.Type == token.LPAREN {
		p.next()
		args := p.parseArgs()
		p.expect(token.RPAREN)
		segments[0] = ast.New(ast.KindMethod, ast.Span{Begin: firstLeaf.Span().Begin, End: p.cur.Pos.Offset}, append([]ast.Node{firstLeaf}, args...)...)
	}

	for {
		switch p.cur.Type {
		case token.LBRACK:
			p.next()
			idx := p.parseExpr()
			p.expect(token.RBRACK)
			segments = append(segments, ast.New(ast.KindArrayAccess, ast.Span{Begin: idx.Span().Begin, End: p.cur.Pos.Offset}, idx))
		case token.DOT, token.QUESTION_DOT:
			p.next()
			nameTok := p.expectIdentLike()
			nameSpan := ast.Span{Begin: nameTok.Pos.Offset, End: nameTok.Pos.Offset + len(nameTok.Literal)}
			nameLeaf := ast.NewLeaf(ast.KindIdentifier, nameTok.Literal, nameSpan)
			if p.cur.Type == token.LPAREN {
				p.next()
				args := p.parseArgs()
				p.expect(token.RPAREN)
				segments = append(segments, ast.New(ast.KindMethod, ast.Span{Begin: nameSpan.Begin, End: p.cur.Pos.Offset}, append([]ast.Node{nameLeaf}, args...)...))
			} else {
				segments = append(segments, nameLeaf)
			}
		default:
			return ast.New(ast.KindReference, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, segments...)
		}
	}
}

func (p *Parser) parseArgs() []ast.Node {
	var args []ast.Node
	if p.cur.Type == token.RPAREN {
		return args
	}
	args = append(args, p.parseExpr())
	for p.cur.Type == token.COMMA {
		p.next()
		args = append(args, p.parseExpr())
	}
	return args
}

func (p *Parser) parsePrimary() ast.Node {
	begin := p.cur.Pos.Offset
	switch p.cur.Type {
	case token.INT:
		tok := p.cur
		p.next()
		return ast.NewLeaf(ast.KindInt, tok.Literal, ast.Span{Begin: begin, End: p.cur.Pos.Offset})
	case token.FLOAT:
		tok := p.cur
		p.next()
		return ast.NewLeaf(ast.KindFloat, tok.Literal, ast.Span{Begin: begin, End: p.cur.Pos.Offset})
	case token.STRING:
		tok := p.cur
		p.next()
		return ast.NewLeaf(ast.KindStr, tok.Literal, ast.Span{Begin: begin, End: p.cur.Pos.Offset})
	case token.TRUE:
		p.next()
		return ast.NewLeaf(ast.KindTrue, "true", ast.Span{Begin: begin, End: p.cur.Pos.Offset})
	case token.FALSE:
		p.next()
		return ast.NewLeaf(ast.KindFalse, "false", ast.Span{Begin: begin, End: p.cur.Pos.Offset})
	case token.NULL:
		p.next()
		return ast.NewLeaf(ast.KindNull, "null", ast.Span{Begin: begin, End: p.cur.Pos.Offset})
	case token.SIZE:
		p.next()
		p.expect(token.LPAREN)
		args := p.parseArgs()
		p.expect(token.RPAREN)
		return ast.New(ast.KindSizeFn, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, args...)
	case token.EMPTY:
		p.next()
		p.expect(token.LPAREN)
		args := p.parseArgs()
		p.expect(token.RPAREN)
		return ast.New(ast.KindEmptyFn, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, args...)
	case token.IDENT:
		tok := p.cur
		p.next()
		ident := ast.NewLeaf(ast.KindIdentifier, tok.Literal, ast.Span{Begin: begin, End: p.cur.Pos.Offset})
		return ast.New(ast.KindReference, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, ident)
	case token.LPAREN:
		p.next()
		expr := p.parseExpr()
		p.expect(token.RPAREN)
		return expr
	case token.LBRACK:
		p.next()
		var items []ast.Node
		if p.cur.Type != token.RBRACK {
			items = append(items, p.parseExpr())
			for p.cur.Type == token.COMMA {
				p.next()
				items = append(items, p.parseExpr())
			}
		}
		p.expect(token.RBRACK)
		return ast.New(ast.KindArrayLit, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, items...)
	case token.LBRACE:
		p.next()
		var entries []ast.Node
		for p.cur.Type != token.RBRACE && p.cur.Type != token.EOF {
			entryBegin := p.cur.Pos.Offset
			key := p.parseExpr()
			p.expect(token.COLON)
			val := p.parseExpr()
			entries = append(entries, ast.New(ast.KindMapEntry, ast.Span{Begin: entryBegin, End: p.cur.Pos.Offset}, key, val))
			if p.cur.Type == token.COMMA {
				p.next()
				continue
			}
			break
		}
		p.expect(token.RBRACE)
		return ast.New(ast.KindMapLit, ast.Span{Begin: begin, End: p.cur.Pos.Offset}, entries...)
	default:
		p.errorf("unexpected token %s %q", p.cur.Type, p.cur.Literal)
		tok := p.cur
		p.next()
		return ast.NewLeaf(ast.KindNull, tok.Literal, ast.Span{Begin: begin, End: p.cur.Pos.Offset})
	}
}
