package template

import (
	"fmt"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"

	"github.com/cwbudde/go-jexl/internal/context"
	"github.com/cwbudde/go-jexl/internal/value"
	"github.com/cwbudde/go-jexl/pkg/jexl"
)

func TestParseConstantOnly(t *testing.T) {
	e, err := Parse("hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Kind != KindConstant || e.Constant.String() != "hello world" {
		t.Errorf("expected a bare Constant, got %+v", e)
	}
}

func TestParseSingleImmediate(t *testing.T) {
	e, err := Parse("${1+1}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Kind != KindImmediate || e.Body != "1+1" {
		t.Errorf("expected a single Immediate(\"1+1\"), got %+v", e)
	}
}

func TestParseSingleDeferred(t *testing.T) {
	e, err := Parse("#{x}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Kind != KindDeferred || e.Body != "x" {
		t.Errorf("expected a single Deferred(\"x\"), got %+v", e)
	}
}

func TestParseMixedProducesComposite(t *testing.T) {
	e, err := Parse("Hello ${name}!")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Kind != KindComposite || len(e.Children) != 3 {
		t.Fatalf("expected a 3-child Composite, got %+v", e)
	}
	if e.Children[0].Kind != KindConstant || e.Children[0].Constant.String() != "Hello " {
		t.Errorf("expected first child Constant(\"Hello \"), got %+v", e.Children[0])
	}
	if e.Children[1].Kind != KindImmediate || e.Children[1].Body != "name" {
		t.Errorf("expected second child Immediate(\"name\"), got %+v", e.Children[1])
	}
	if e.Children[2].Kind != KindConstant || e.Children[2].Constant.String() != "!" {
		t.Errorf("expected third child Constant(\"!\"), got %+v", e.Children[2])
	}
	if !e.HasImmediate || e.HasDeferred {
		t.Errorf("expected HasImmediate=true, HasDeferred=false, got %+v", e)
	}
}

func TestParseUnterminatedImmediateIsMalformed(t *testing.T) {
	_, err := Parse("${1+1")
	if err == nil {
		t.Fatalf("expected an error for an unterminated \"${\"")
	}
}

func TestParseUnterminatedDeferredIsMalformed(t *testing.T) {
	_, err := Parse("#{x")
	if err == nil {
		t.Fatalf("expected an error for an unterminated \"#{\"")
	}
}

func TestParseEscapedDollarIsLiteral(t *testing.T) {
	e, err := Parse(`\$`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Kind != KindConstant || e.Constant.String() != "$" {
		t.Errorf("expected an escaped \"$\" to become a literal constant, got %+v", e)
	}
}

func TestParseNestedDeferredContainingImmediate(t *testing.T) {
	e, err := Parse("#{${x}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Kind != KindNested || e.Body != "${x}" {
		t.Errorf("expected Nested(\"${x}\"), got %+v", e)
	}
}

func TestEvaluateConstant(t *testing.T) {
	jx := jexl.New()
	eng := NewEngine(jx, 0)
	tpl, err := eng.CreateTemplate("just text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := tpl.Evaluate(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "just text" {
		t.Errorf("expected \"just text\", got %q", got)
	}
}

func TestEvaluateImmediate(t *testing.T) {
	jx := jexl.New()
	eng := NewEngine(jx, 0)
	tpl, err := eng.CreateTemplate("total=${1+2}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := tpl.Evaluate(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "total=3" {
		t.Errorf("expected \"total=3\", got %q", got)
	}
}

func TestEvaluateCompositeFoldsImmediatesDuringPrepare(t *testing.T) {
	jx := jexl.New()
	eng := NewEngine(jx, 0)
	tpl, err := eng.CreateTemplate("A${1+1}B#{x}C")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.NewMapContextFrom(map[string]value.Value{"x": value.Int32(9)})
	got, err := tpl.Evaluate(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "A2B9C" {
		t.Errorf("expected \"A2B9C\", got %q", got)
	}
}

func TestEvaluateNestedDeferred(t *testing.T) {
	jx := jexl.New()
	eng := NewEngine(jx, 0)
	tpl, err := eng.CreateTemplate("#{${x}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.NewMapContextFrom(map[string]value.Value{"x": value.Int32(5)})
	got, err := tpl.Evaluate(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "5" {
		t.Errorf("expected \"5\", got %q", got)
	}
}

func TestEvaluateNullSubExpressionIsOmittedFromComposite(t *testing.T) {
	jx := jexl.New()
	eng := NewEngine(jx, 0)
	tpl, err := eng.CreateTemplate("[${missing}]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := tpl.Evaluate(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "[]" {
		t.Errorf("expected a null immediate result to contribute no text, got %q", got)
	}
}

func TestCreateTemplateCachesParsedForm(t *testing.T) {
	jx := jexl.New()
	eng := NewEngine(jx, 4)
	t1, err := eng.CreateTemplate("${1+1}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t2, err := eng.CreateTemplate("${1+1}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if t1.root != t2.root {
		t.Errorf("expected the second parse of identical template source to hit the cache")
	}
}

func TestPrepareThenEvaluateAcrossContexts(t *testing.T) {
	jx := jexl.New()
	eng := NewEngine(jx, 0)
	tpl, err := eng.CreateTemplate("Hello ${name}, now is #{time}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prepareCtx := context.NewMapContextFrom(map[string]value.Value{"name": value.Str("Ada")})
	prepared, err := tpl.Prepare(prepareCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	evalCtx := context.NewMapContextFrom(map[string]value.Value{"time": value.Str("noon")})
	got, err := prepared.Evaluate(evalCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hello Ada, now is noon" {
		t.Errorf("expected \"Hello Ada, now is noon\", got %q", got)
	}
}

func TestPrepareWithoutImmediateReturnsSameTemplate(t *testing.T) {
	jx := jexl.New()
	eng := NewEngine(jx, 0)
	tpl, err := eng.CreateTemplate("just #{x} here")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prepared, err := tpl.Prepare(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prepared != tpl {
		t.Errorf("expected preparing a template with no immediate parts to return the template itself")
	}
}

func TestPrepareEvaluateMatchesDirectEvaluate(t *testing.T) {
	jx := jexl.New()
	eng := NewEngine(jx, 0)
	tpl, err := eng.CreateTemplate("A${1+1}B#{2*2}C")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	direct, err := tpl.Evaluate(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prepared, err := tpl.Prepare(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	viaPrepare, err := prepared.Evaluate(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if direct != viaPrepare {
		t.Errorf("expected prepare-then-evaluate to match direct evaluate: %q vs %q", viaPrepare, direct)
	}
}

func TestParseTreeSnapshots(t *testing.T) {
	sources := []string{
		"plain text only",
		"Hello ${name}!",
		"a ${x} b #{y} c",
		`escaped \$ and \# sigils`,
		"#{'quoted } brace' + ${inner}}",
	}
	for _, src := range sources {
		e, err := Parse(src)
		if err != nil {
			t.Fatalf("parsing %q: unexpected error: %v", src, err)
		}
		snaps.MatchSnapshot(t, src, dumpExpr(e))
	}
}

// dumpExpr renders a parse tree in a compact stable form for snapshots.
func dumpExpr(e *Expr) string {
	switch e.Kind {
	case KindConstant:
		return fmt.Sprintf("Constant(%q)", e.Constant.String())
	case KindImmediate:
		return fmt.Sprintf("Immediate(%q)", e.Body)
	case KindDeferred:
		return fmt.Sprintf("Deferred(%q)", e.Body)
	case KindNested:
		return fmt.Sprintf("Nested(%q)", e.Body)
	case KindComposite:
		out := fmt.Sprintf("Composite(imm=%v, def=%v)[", e.HasImmediate, e.HasDeferred)
		for i, c := range e.Children {
			if i > 0 {
				out += ", "
			}
			out += dumpExpr(c)
		}
		return out + "]"
	default:
		return "Unknown"
	}
}

func TestTemplateSourceRoundTrips(t *testing.T) {
	jx := jexl.New()
	eng := NewEngine(jx, 0)
	tpl, err := eng.CreateTemplate("hello ${x}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Source() != "hello ${x}" {
		t.Errorf("expected Source() to round-trip the original text, got %q", tpl.Source())
	}
}
