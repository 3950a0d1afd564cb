package debug

import (
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"

	"github.com/cwbudde/go-jexl/internal/parser"
)

func renderExpr(t *testing.T, src string) string {
	t.Helper()
	root, errs := parser.ParseExpression(src)
	if len(errs) != 0 {
		t.Fatalf("parsing %q: unexpected errors: %v", src, errs)
	}
	out, _, _ := Render(root, nil)
	return out
}

func TestRenderBinaryOperatorsAreSpaced(t *testing.T) {
	got := renderExpr(t, "1+2*3")
	want := "1 + 2 * 3"
	if got != want {
		t.Errorf("Render(%q) = %q, want %q", "1+2*3", got, want)
	}
}

func TestRenderArrayAccessSegment(t *testing.T) {
	// Regression: ArrayAccess segments must render as "a[0]", not "a.[0]" or
	// the indexless "a0".
	got := renderExpr(t, "a[0]")
	want := "a[0]"
	if got != want {
		t.Errorf("Render(%q) = %q, want %q", "a[0]", got, want)
	}
}

func TestRenderReferenceChainDotsBetweenIdentifierSegments(t *testing.T) {
	got := renderExpr(t, "a.b.c")
	want := "a.b.c"
	if got != want {
		t.Errorf("Render(%q) = %q, want %q", "a.b.c", got, want)
	}
}

func TestRenderMixedReferenceChain(t *testing.T) {
	got := renderExpr(t, "a.b[0].c()")
	want := "a.b[0].c()"
	if got != want {
		t.Errorf("Render(%q) = %q, want %q", "a.b[0].c()", got, want)
	}
}

func TestRenderStringLiteralEscapesSingleQuote(t *testing.T) {
	got := renderExpr(t, `'it\'s'`)
	want := `'it\'s'`
	if got != want {
		t.Errorf("Render(%q) = %q, want %q", `'it\'s'`, got, want)
	}
}

func TestRenderSizeAndEmptyBuiltins(t *testing.T) {
	if got := renderExpr(t, "size(xs)"); got != "size(xs)" {
		t.Errorf("Render(%q) = %q, want %q", "size(xs)", got, "size(xs)")
	}
	if got := renderExpr(t, "empty(xs)"); got != "empty(xs)" {
		t.Errorf("Render(%q) = %q, want %q", "empty(xs)", got, "empty(xs)")
	}
}

func TestRenderMapAndArrayLiterals(t *testing.T) {
	if got := renderExpr(t, "[1, 2, 3]"); got != "[1, 2, 3]" {
		t.Errorf("Render array literal = %q", got)
	}
}

func TestRenderCanonicalFormSnapshots(t *testing.T) {
	sources := []string{
		"1+2*3",
		"a.b[0].c()",
		"if(x==null)'unset' else x",
		"while(n>0){acc=acc+n;n=n-1}",
		"foreach(v in xs){total=total+v}",
		"empty(x)&&size(xs)>0",
		"m = {'a':1,'b':[2,3]}",
		"!done||n%2==0",
	}
	for _, src := range sources {
		snaps.MatchSnapshot(t, src, renderScript(t, src))
	}
}

// renderScript parses src as a script so statement forms (while, foreach)
// are accepted alongside plain expressions.
func renderScript(t *testing.T, src string) string {
	t.Helper()
	root, errs := parser.ParseScript(src)
	if len(errs) != 0 {
		t.Fatalf("parsing %q: unexpected errors: %v", src, errs)
	}
	out, _, _ := Render(root, nil)
	return out
}

func TestRenderCauseNodeSpan(t *testing.T) {
	root, errs := parser.ParseExpression("1 + 2")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	// The right operand (the literal "2") is the second child of the Add node.
	cause := root.Children()[1]
	src, begin, end := Render(root, cause)
	if src[begin:end] != "2" {
		t.Errorf("expected cause span to cover \"2\", got %q (full: %q)", src[begin:end], src)
	}
}

func TestFormatErrorIncludesSpanAndMessage(t *testing.T) {
	root, errs := parser.ParseExpression("1 / 0")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	cause := root.Children()[1]
	got := FormatError(root, cause, "division by zero")
	want := "@[4,5]: 0\ndivision by zero"
	if got != want {
		t.Errorf("FormatError = %q, want %q", got, want)
	}
}
