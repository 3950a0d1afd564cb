// Package template implements JEXL's unified expression template engine:
// a small state-machine scanner splitting literal text from
// `${immediate}` and `#{deferred}` sub-expressions, a two-phase
// prepare/evaluate lifecycle, and its own bounded LRU cache keyed by
// source text. Each `${}`/`#{}` body is evaluated through pkg/jexl's
// Engine as an ordinary JEXL expression.
package template

import (
	"strings"
	"sync"

	"github.com/cwbudde/go-jexl/internal/context"
	"github.com/cwbudde/go-jexl/internal/jexlerr"
	"github.com/cwbudde/go-jexl/internal/value"
	"github.com/cwbudde/go-jexl/pkg/jexl"
)

// Kind tags the template expression variant.
type Kind int

const (
	KindConstant Kind = iota
	KindImmediate
	KindDeferred
	KindNested
	KindComposite
)

// Expr is a TemplateExpr node: Constant(Value), Immediate(src), Deferred
// (src), Nested(src), or Composite(children, flags). Source, when set on
// a prepared node, back-references the pre-prepare form it replaced.
type Expr struct {
	Kind     Kind
	Constant value.Value
	Body     string // raw sub-expression body for Immediate/Deferred/Nested
	Children []*Expr
	// HasImmediate/HasDeferred are Composite's meta-flag bits, driving the
	// prepare strategy.
	HasImmediate bool
	HasDeferred  bool
	// PreparedFrom is nil for an original (unprepared) node; non-nil on a
	// node produced by Prepare, pointing back at the form it replaced.
	PreparedFrom *Expr
}

// Scanner states for Parse's literal/${}/#{} state machine.
const (
	stConst = iota
	stImm0
	stDef0
	stImm1
	stDef1
	stEscape
)

// Parse scans src into a template expression. A single sub-expression is
// returned directly; a mix of constants and sub-expressions is wrapped as
// a Composite. An unterminated `${`/`#{` raises MalformedTemplate.
func Parse(src string) (*Expr, error) {
	runes := []rune(src)
	n := len(runes)

	var parts []*Expr
	var buf strings.Builder
	st := stConst
	exprStart := 0
	innerDepth := 0
	nested := false

	flushConst := func() {
		if buf.Len() > 0 {
			parts = append(parts, &Expr{Kind: KindConstant, Constant: value.Str(buf.String())})
			buf.Reset()
		}
	}

	i := 0
	for i < n {
		c := runes[i]
		switch st {
		case stConst:
			switch c {
			case '$':
				st = stImm0
				i++
			case '#':
				st = stDef0
				i++
			case '\\':
				st = stEscape
				i++
			default:
				buf.WriteRune(c)
				i++
			}
		case stImm0:
			if c == '{' {
				flushConst()
				st = stImm1
				exprStart = i + 1
				i++
			} else {
				buf.WriteRune('$')
				buf.WriteRune(c)
				st = stConst
				i++
			}
		case stDef0:
			if c == '{' {
				flushConst()
				st = stDef1
				exprStart = i + 1
				innerDepth = 0
				nested = false
				i++
			} else {
				buf.WriteRune('#')
				buf.WriteRune(c)
				st = stConst
				i++
			}
		case stImm1:
			if c == '}' {
				parts = append(parts, &Expr{Kind: KindImmediate, Body: string(runes[exprStart:i])})
				st = stConst
			}
			i++
		case stDef1:
			switch {
			case c == '"' || c == '\'':
				quote := c
				i++
				for i < n && runes[i] != quote {
					if runes[i] == '\\' {
						i++
					}
					i++
				}
				if i >= n {
					return nil, jexlerr.New(jexlerr.KindMalformedTemplate, "unterminated quoted literal inside deferred expression")
				}
				i++ // closing quote
			case c == '$' && i+1 < n && runes[i+1] == '{':
				innerDepth++
				nested = true
				i += 2
			case c == '}':
				if innerDepth > 0 {
					innerDepth--
					i++
				} else {
					kind := KindDeferred
					if nested {
						kind = KindNested
					}
					parts = append(parts, &Expr{Kind: kind, Body: string(runes[exprStart:i])})
					st = stConst
					i++
				}
			default:
				i++
			}
		case stEscape:
			if c == '#' || c == '$' {
				buf.WriteRune(c)
			} else {
				buf.WriteRune('\\')
				buf.WriteRune(c)
			}
			st = stConst
			i++
		}
	}

	switch st {
	case stImm1, stDef1:
		return nil, jexlerr.New(jexlerr.KindMalformedTemplate, "unterminated %s at end of template", stateName(st))
	case stImm0:
		buf.WriteRune('$')
	case stDef0:
		buf.WriteRune('#')
	case stEscape:
		buf.WriteRune('\\')
	}
	flushConst()

	if len(parts) == 0 {
		return &Expr{Kind: KindConstant, Constant: value.Str("")}, nil
	}
	if len(parts) == 1 {
		return parts[0], nil
	}

	hasImm, hasDef := false, false
	for _, p := range parts {
		switch p.Kind {
		case KindImmediate:
			hasImm = true
		case KindDeferred, KindNested:
			hasDef = true
		}
	}
	return &Expr{Kind: KindComposite, Children: parts, HasImmediate: hasImm, HasDeferred: hasDef}, nil
}

func stateName(st int) string {
	switch st {
	case stImm1:
		return "'${' expression"
	case stDef1:
		return "'#{' expression"
	default:
		return "expression"
	}
}

// Prepare runs the prepare phase: Constant/Immediate/Deferred return
// themselves; a Nested evaluates its inner immediates and re-parses the
// result as a new Deferred; a Composite containing both immediate and
// deferred children evaluates each Immediate child into a Constant
// (dropping nulls), returning itself when nothing changed.
func Prepare(e *Expr, jx *jexl.Engine, ctx context.Context) (*Expr, error) {
	switch e.Kind {
	case KindConstant, KindImmediate, KindDeferred:
		return e, nil
	case KindNested:
		inner, err := Parse(e.Body)
		if err != nil {
			return nil, err
		}
		preparedInner, err := Prepare(inner, jx, ctx)
		if err != nil {
			return nil, err
		}
		v, err := Evaluate(preparedInner, jx, ctx)
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: KindDeferred, Body: toStr(v), PreparedFrom: e}, nil
	case KindComposite:
		if !(e.HasImmediate && e.HasDeferred) {
			return e, nil
		}
		changed := false
		newChildren := make([]*Expr, 0, len(e.Children))
		for _, c := range e.Children {
			if c.Kind == KindImmediate {
				v, err := Evaluate(c, jx, ctx)
				if err != nil {
					return nil, err
				}
				changed = true
				if value.IsNull(v) {
					continue
				}
				newChildren = append(newChildren, &Expr{Kind: KindConstant, Constant: v, PreparedFrom: c})
				continue
			}
			newChildren = append(newChildren, c)
		}
		if !changed {
			return e, nil
		}
		return &Expr{
			Kind:         KindComposite,
			Children:     newChildren,
			HasImmediate: false,
			HasDeferred:  e.HasDeferred,
			PreparedFrom: e,
		}, nil
	default:
		return e, nil
	}
}

// Evaluate runs the evaluate phase: a Constant yields its value, an
// Immediate/Deferred interprets its body, a Nested prepares then
// evaluates, and a Composite concatenates the string images of its
// children, skipping nulls.
func Evaluate(e *Expr, jx *jexl.Engine, ctx context.Context) (value.Value, error) {
	switch e.Kind {
	case KindConstant:
		return e.Constant, nil
	case KindImmediate, KindDeferred:
		expr, err := jx.CreateExpression(e.Body)
		if err != nil {
			return nil, jexlerr.New(jexlerr.KindMalformedTemplate, "%v", err)
		}
		return expr.Evaluate(ctx)
	case KindNested:
		prepared, err := Prepare(e, jx, ctx)
		if err != nil {
			return nil, err
		}
		return Evaluate(prepared, jx, ctx)
	case KindComposite:
		var sb strings.Builder
		for _, c := range e.Children {
			v, err := Evaluate(c, jx, ctx)
			if err != nil {
				return nil, err
			}
			if value.IsNull(v) {
				continue
			}
			sb.WriteString(toStr(v))
		}
		return value.Str(sb.String()), nil
	default:
		return value.NullValue, nil
	}
}

func toStr(v value.Value) string {
	if value.IsNull(v) {
		return ""
	}
	return v.String()
}

// Engine wraps a pkg/jexl.Engine with a bounded LRU template cache keyed
// by source text, synchronized on its own lock so it is independent of
// the underlying JEXL engine's expression cache.
type Engine struct {
	JX *jexl.Engine

	mu    sync.Mutex
	cache map[string]*Expr
	order []string
	cap   int
}

// NewEngine creates a template Engine layered on jx with a cache of the
// given capacity (0 disables caching).
func NewEngine(jx *jexl.Engine, cacheSize int) *Engine {
	return &Engine{JX: jx, cache: make(map[string]*Expr), cap: cacheSize}
}

// Template is a parsed unified expression bound to the Engine that
// produced it, ready to Prepare/Evaluate against many Contexts.
type Template struct {
	engine *Engine
	source string
	root   *Expr
}

// CreateTemplate parses src, consulting and (on success only) populating
// the cache.
func (e *Engine) CreateTemplate(src string) (*Template, error) {
	e.mu.Lock()
	if root, ok := e.cache[src]; ok {
		e.touch(src)
		e.mu.Unlock()
		return &Template{engine: e, source: src, root: root}, nil
	}
	e.mu.Unlock()

	root, err := Parse(src)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.cap > 0 {
		if _, exists := e.cache[src]; !exists {
			e.order = append(e.order, src)
			if len(e.order) > e.cap {
				oldest := e.order[0]
				e.order = e.order[1:]
				delete(e.cache, oldest)
			}
		}
		e.cache[src] = root
	}
	e.mu.Unlock()

	return &Template{engine: e, source: src, root: root}, nil
}

// touch moves src to the most-recently-used end of the eviction order.
// Caller holds e.mu.
func (e *Engine) touch(src string) {
	for i, k := range e.order {
		if k == src {
			e.order = append(append(e.order[:i:i], e.order[i+1:]...), src)
			return
		}
	}
}

// Prepare evaluates against ctx the immediate sub-expressions of a
// template that mixes immediate and deferred parts, and the inner
// immediates of a nested deferred, returning a Template whose deferred
// parts remain to be evaluated later, possibly against a different
// context. Any other template, including one with only immediate parts,
// is returned unchanged.
func (t *Template) Prepare(ctx context.Context) (*Template, error) {
	prepared, err := Prepare(t.root, t.engine.JX, ctx)
	if err != nil {
		return nil, err
	}
	if prepared == t.root {
		return t, nil
	}
	return &Template{engine: t.engine, source: t.source, root: prepared}, nil
}

// Evaluate runs the template's prepare-then-evaluate pipeline against ctx
// and returns the concatenated string result.
func (t *Template) Evaluate(ctx context.Context) (string, error) {
	prepared, err := Prepare(t.root, t.engine.JX, ctx)
	if err != nil {
		return "", err
	}
	v, err := Evaluate(prepared, t.engine.JX, ctx)
	if err != nil {
		return "", err
	}
	return toStr(v), nil
}

// Source returns the template's original source text.
func (t *Template) Source() string { return t.source }
