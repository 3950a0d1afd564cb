// Package jexlerr implements the JEXL error-kind enum and diagnostic
// formatting: a single sum type carrying the offending AST node for offset
// reconstruction, rendered as "@[begin,end]: substring\n message".
package jexlerr

import (
	"fmt"
	"strings"

	"github.com/cwbudde/go-jexl/internal/ast"
)

// Kind identifies the category of a JEXL diagnostic.
type Kind int

const (
	KindParseError Kind = iota
	KindNullOperand
	KindDivideByZero
	KindInvalidComparison
	KindUnknownVariable
	KindNoSuchMethod
	KindAmbiguousMethod
	KindBadAssignment
	KindIndexOutOfRange
	KindMalformedTemplate
	KindTypeCoercion
)

var kindNames = [...]string{
	"ParseError", "NullOperand", "DivideByZero", "InvalidComparison",
	"UnknownVariable", "NoSuchMethod", "AmbiguousMethod", "BadAssignment",
	"IndexOutOfRange", "MalformedTemplate", "TypeCoercion",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Recoverable reports whether, in silent mode, this kind of error is
// converted to a null result rather than rethrown. AmbiguousMethod and
// BadAssignment always surface regardless of mode.
func (k Kind) Recoverable() bool {
	switch k {
	case KindAmbiguousMethod, KindBadAssignment, KindParseError, KindMalformedTemplate:
		return false
	default:
		return true
	}
}

// Error is the single diagnostic type every JEXL-facing failure is
// reported as. Cause, when non-nil, anchors the error to the AST node
// whose reconstructed substring the debugger prints; ParseError and
// MalformedTemplate carry no cause node.
type Error struct {
	Kind    Kind
	Message string
	Cause   ast.Node
	// Reconstructed holds the debugger's rendering of Cause, set by the
	// engine facade's error-wrapping shim (internal/debug.Render)
	// rather than computed here, so this package has no dependency on
	// the pretty-printer.
	Reconstructed string
	Begin, End    int
}

// New creates an Error with no cause node (parse-time / template-time
// diagnostics).
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error anchored to an AST node.
func Wrap(k Kind, cause ast.Node, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string { return e.Format(false) }

// Format renders the error as "@[begin,end]: reconstructed_substring\n
// explanation" when a reconstructed substring is available, falling back
// to a bare message otherwise. If color is true, ANSI codes highlight the
// span marker.
func (e *Error) Format(color bool) string {
	var sb strings.Builder

	if e.Reconstructed != "" {
		if color {
			sb.WriteString("\033[2m")
		}
		sb.WriteString(fmt.Sprintf("@[%d,%d]: %s\n", e.Begin, e.End, e.Reconstructed))
		if color {
			sb.WriteString("\033[0m")
		}
	}

	if color {
		sb.WriteString("\033[1;31m")
	}
	sb.WriteString(e.Message)
	if color {
		sb.WriteString("\033[0m")
	}
	return sb.String()
}

// FormatErrors renders multiple diagnostics, numbering them when there is
// more than one.
func FormatErrors(errs []*Error, color bool) string {
	if len(errs) == 0 {
		return ""
	}
	if len(errs) == 1 {
		return errs[0].Format(color)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d error(s):\n\n", len(errs)))
	for i, e := range errs {
		sb.WriteString(fmt.Sprintf("[Error %d of %d]\n", i+1, len(errs)))
		sb.WriteString(e.Format(color))
		if i < len(errs)-1 {
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}
