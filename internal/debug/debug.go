// Package debug implements the JEXL debugger/pretty-printer: canonical
// source reconstruction from an AST, with start/end output-offset tracking
// for a designated cause node so diagnostics can quote the exact offending
// substring. It re-emits canonical punctuation and spacing, not the
// original source bytes.
package debug

import (
	"strconv"
	"strings"

	"github.com/cwbudde/go-jexl/internal/ast"
)

// Render reconstructs canonical JEXL source for root. If cause is non-nil
// and appears in root's subtree, Begin/End record the byte offsets in the
// returned string spanned by cause's rendering.
func Render(root ast.Node, cause ast.Node) (source string, begin, end int) {
	p := &printer{cause: cause, begin: -1, end: -1}
	p.node(root)
	out := p.sb.String()
	if p.begin < 0 {
		return out, 0, len(out)
	}
	return out, p.begin, p.end
}

type printer struct {
	sb    strings.Builder
	cause ast.Node
	begin int
	end   int
}

func (p *printer) enter(n ast.Node) {
	if n == p.cause {
		p.begin = p.sb.Len()
	}
}

func (p *printer) leave(n ast.Node) {
	if n == p.cause {
		p.end = p.sb.Len()
	}
}

var binaryOps = map[ast.Kind]string{
	ast.KindAdd: "+", ast.KindSub: "-", ast.KindMul: "*", ast.KindDiv: "/", ast.KindMod: "%",
	ast.KindBitAnd: "&", ast.KindBitOr: "|", ast.KindBitXor: "^",
	ast.KindAnd: "&&", ast.KindOr: "||",
	ast.KindEq: "==", ast.KindNe: "!=", ast.KindLt: "<", ast.KindLe: "<=",
	ast.KindGt: ">", ast.KindGe: ">=",
}

func (p *printer) node(n ast.Node) {
	if n == nil {
		return
	}
	p.enter(n)
	defer p.leave(n)

	if op, ok := binaryOps[n.Kind()]; ok {
		ch := n.Children()
		p.node(ch[0])
		p.sb.WriteString(" ")
		p.sb.WriteString(op)
		p.sb.WriteString(" ")
		p.node(ch[1])
		return
	}

	switch n.Kind() {
	case ast.KindScript, ast.KindBlock:
		for i, c := range n.Children() {
			if i > 0 {
				p.sb.WriteString("; ")
			}
			p.node(c)
		}
	case ast.KindUMinus:
		p.sb.WriteString("-")
		p.node(n.Children()[0])
	case ast.KindBitNot:
		p.sb.WriteString("~")
		p.node(n.Children()[0])
	case ast.KindNot:
		p.sb.WriteString("!")
		p.node(n.Children()[0])
	case ast.KindInt, ast.KindFloat, ast.KindIdentifier:
		p.sb.WriteString(n.Image())
	case ast.KindStr:
		p.sb.WriteString("'")
		p.sb.WriteString(strings.ReplaceAll(n.Image(), "'", "\\'"))
		p.sb.WriteString("'")
	case ast.KindTrue:
		p.sb.WriteString("true")
	case ast.KindFalse:
		p.sb.WriteString("false")
	case ast.KindNull:
		p.sb.WriteString("null")
	case ast.KindMapLit:
		p.sb.WriteString("{")
		for i, c := range n.Children() {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.node(c)
		}
		p.sb.WriteString("}")
	case ast.KindMapEntry:
		ch := n.Children()
		p.node(ch[0])
		p.sb.WriteString(": ")
		p.node(ch[1])
	case ast.KindArrayLit:
		p.sb.WriteString("[")
		for i, c := range n.Children() {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.node(c)
		}
		p.sb.WriteString("]")
	case ast.KindArrayAccess:
		// Always a single index expression: a Reference-segment form
		// produced by parsePostfix's "[" handling, rendered as "[idx]".
		p.sb.WriteString("[")
		p.node(n.Children()[0])
		p.sb.WriteString("]")
	case ast.KindReference:
		for i, c := range n.Children() {
			if i > 0 && c.Kind() != ast.KindArrayAccess {
				p.sb.WriteString(".")
			}
			p.node(c)
		}
	case ast.KindMethod:
		ch := n.Children()
		p.sb.WriteString(ch[0].Image())
		p.sb.WriteString("(")
		for i, a := range ch[1:] {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.node(a)
		}
		p.sb.WriteString(")")
	case ast.KindAssignment:
		ch := n.Children()
		p.node(ch[0])
		p.sb.WriteString(" = ")
		p.node(ch[1])
	case ast.KindIf:
		ch := n.Children()
		p.sb.WriteString("if (")
		p.node(ch[0])
		p.sb.WriteString(") ")
		p.node(ch[1])
		if len(ch) == 3 {
			p.sb.WriteString(" else ")
			p.node(ch[2])
		}
	case ast.KindWhile:
		ch := n.Children()
		p.sb.WriteString("while (")
		p.node(ch[0])
		p.sb.WriteString(") ")
		p.node(ch[1])
	case ast.KindForEach:
		ch := n.Children()
		p.sb.WriteString("foreach(")
		p.node(ch[0])
		p.sb.WriteString(" in ")
		p.node(ch[1])
		p.sb.WriteString(") ")
		p.node(ch[2])
	case ast.KindSizeFn, ast.KindSizeMethod:
		p.sb.WriteString("size(")
		for i, c := range n.Children() {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.node(c)
		}
		p.sb.WriteString(")")
	case ast.KindEmptyFn:
		p.sb.WriteString("empty(")
		for i, c := range n.Children() {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.node(c)
		}
		p.sb.WriteString(")")
	default:
		p.sb.WriteString(strconv.Quote(n.Kind().String()))
	}
}

// FormatError renders the "@[begin,end]: substring\n message" diagnostic
// given a root AST, the cause node, and the error message.
func FormatError(root ast.Node, cause ast.Node, message string) string {
	src, begin, end := Render(root, cause)
	substr := src
	if begin >= 0 && end <= len(src) && begin <= end {
		substr = src[begin:end]
	}
	var sb strings.Builder
	sb.WriteString("@[")
	sb.WriteString(strconv.Itoa(begin))
	sb.WriteString(",")
	sb.WriteString(strconv.Itoa(end))
	sb.WriteString("]: ")
	sb.WriteString(substr)
	sb.WriteString("\n")
	sb.WriteString(message)
	return sb.String()
}
