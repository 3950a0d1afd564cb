// Package jexl implements the JEXL engine facade: the public entry point
// for parsing, caching, and evaluating expressions and scripts, and the
// silent/lenient/cache/functions configuration toggles.
package jexl

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/go-jexl/internal/arith"
	"github.com/cwbudde/go-jexl/internal/ast"
	"github.com/cwbudde/go-jexl/internal/context"
	"github.com/cwbudde/go-jexl/internal/debug"
	"github.com/cwbudde/go-jexl/internal/interp"
	"github.com/cwbudde/go-jexl/internal/jexlerr"
	"github.com/cwbudde/go-jexl/internal/parser"
	"github.com/cwbudde/go-jexl/internal/uberspect"
	"github.com/cwbudde/go-jexl/internal/value"
)

// Engine is the public JEXL entry point. It is safe to share across
// goroutines: parse and cache operations are serialized internally, but
// each Evaluate/Execute call must be given its own Context.
type Engine struct {
	mu sync.Mutex // guards the (non-reentrant) parser state and cache

	silent    bool
	lenient   bool
	cache     *lruCache
	functions map[string]value.Value
	uberspect uberspect.Uberspect
	arith     *arith.Arith
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithSilent sets the engine's initial silent mode.
func WithSilent(v bool) Option { return func(e *Engine) { e.silent = v } }

// WithLenient sets the engine's initial null-handling mode.
func WithLenient(v bool) Option { return func(e *Engine) { e.lenient = v } }

// WithCacheSize sets the initial parse-cache capacity; 0 disables caching.
func WithCacheSize(n int) Option { return func(e *Engine) { e.cache = newLRUCache(n) } }

// WithFunctions registers the initial namespace -> host function map.
func WithFunctions(fns map[string]value.Value) Option {
	return func(e *Engine) { e.functions = fns }
}

// New creates an Engine in lenient, non-silent mode with caching disabled
// unless overridden by opts.
func New(opts ...Option) *Engine {
	e := &Engine{
		lenient:   true,
		cache:     newLRUCache(0),
		functions: make(map[string]value.Value),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.arith = arith.New(!e.lenient)
	e.uberspect = uberspect.New(e.arith)
	return e
}

// SetSilent toggles silent mode: recoverable runtime errors return null
// and log a warning instead of raising.
func (e *Engine) SetSilent(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.silent = v
}

// SetLenient toggles null-handling mode.
func (e *Engine) SetLenient(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lenient = v
	e.arith = arith.New(!v)
	e.uberspect = uberspect.New(e.arith)
}

// SetCacheSize resizes the parse cache; 0 disables it.
func (e *Engine) SetCacheSize(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.Resize(n)
}

// SetFunctions replaces the namespace -> host function map consulted by
// "ns:func(args)" calls.
func (e *Engine) SetFunctions(fns map[string]value.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.functions = fns
}

// cleanSource trims surrounding whitespace and appends a trailing ';' if
// absent.
func cleanSource(src string) string {
	src = strings.TrimSpace(src)
	if src == "" || !strings.HasSuffix(src, ";") {
		src += ";"
	}
	return src
}

// parse returns the cached root AST for src if present, else parses and
// (on success only) caches it. Guarded by e.mu: the parser is not
// reentrant.
func (e *Engine) parse(src string, asScript bool) (ast.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cacheKey := "expr:" + src
	if asScript {
		cacheKey = "script:" + src
	}
	if root, ok := e.cache.Get(cacheKey); ok {
		return root.(ast.Node), nil
	}

	var root ast.Node
	var errs []*jexlerr.Error
	if asScript {
		root, errs = parser.ParseScript(src)
	} else {
		root, errs = parser.ParseExpression(src)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%s", jexlerr.FormatErrors(errs, false))
	}
	e.cache.Put(cacheKey, root)
	return root, nil
}

// Expression is a single parsed statement/reference form, ready to
// evaluate against many Contexts.
type Expression struct {
	engine *Engine
	source string
	root   ast.Node
}

// Script is a sequence of statements whose value is that of the last.
type Script struct {
	engine *Engine
	source string
	root   ast.Node
}

// CreateExpression parses text as a single expression.
func (e *Engine) CreateExpression(text string) (*Expression, error) {
	src := cleanSource(text)
	root, err := e.parse(src, false)
	if err != nil {
		return nil, err
	}
	return &Expression{engine: e, source: src, root: root}, nil
}

// CreateScript parses text as a script (statement sequence).
func (e *Engine) CreateScript(text string) (*Script, error) {
	src := cleanSource(text)
	root, err := e.parse(src, true)
	if err != nil {
		return nil, err
	}
	return &Script{engine: e, source: src, root: root}, nil
}

// CreateScriptFromFile reads path and parses it as a script.
func (e *Engine) CreateScriptFromFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script file: %w", err)
	}
	return e.CreateScript(string(data))
}

// CreateScriptFromURL fetches url and parses its body as a script.
func (e *Engine) CreateScriptFromURL(url string) (*Script, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching script url: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading script url body: %w", err)
	}
	return e.CreateScript(string(data))
}

func (e *Engine) newActivation(ctx context.Context) *interp.Activation {
	if ctx == nil {
		ctx = context.NewMapContext()
	}
	return &interp.Activation{
		Context:   ctx,
		Registers: context.NewRegisters(),
		Uberspect: e.uberspect,
		Arith:     e.arith,
		Silent:    e.silent,
		Functions: e.functions,
	}
}

// run evaluates root under ctx, applying the silent-mode shim: recoverable
// errors become (Null, nil) plus a logged warning; AmbiguousMethod and
// BadAssignment always surface.
func (e *Engine) run(root ast.Node, ctx context.Context) (value.Value, error) {
	act := e.newActivation(ctx)
	ip := interp.New()
	v, err := ip.Eval(root, act)
	if err == nil {
		return v, nil
	}
	je, ok := err.(*jexlerr.Error)
	if !ok {
		return nil, err
	}
	if e.silent && je.Kind.Recoverable() {
		log.Printf("jexl: warn: %v", je)
		return value.NullValue, nil
	}
	src, begin, end := debug.Render(root, je.Cause)
	je.Reconstructed, je.Begin, je.End = substr(src, begin, end), begin, end
	return nil, je
}

func substr(s string, begin, end int) string {
	if begin < 0 || end > len(s) || begin > end {
		return s
	}
	return s[begin:end]
}

// Evaluate evaluates the expression under ctx.
func (x *Expression) Evaluate(ctx context.Context) (value.Value, error) {
	return x.engine.run(x.root, ctx)
}

// Source returns the cleaned source text this expression was parsed from.
func (x *Expression) Source() string { return x.source }

// Execute runs the script under ctx, returning the last statement's value.
func (s *Script) Execute(ctx context.Context) (value.Value, error) {
	return s.engine.run(s.root, ctx)
}

// Source returns the cleaned source text this script was parsed from.
func (s *Script) Source() string { return s.source }

// GetProperty evaluates expr against bean by synthesizing a tiny source
// snippet that references the reserved "$0" register, so the evaluator
// needs no bean-specific code path. ctx may be nil.
func (e *Engine) GetProperty(ctx context.Context, bean value.Value, expr string) (value.Value, error) {
	snippet := context.RegisterName(0) + "." + strings.TrimPrefix(strings.TrimSpace(expr), ".")
	x, err := e.CreateExpression(snippet)
	if err != nil {
		return nil, err
	}
	act := e.newActivation(ctx)
	act.Registers.Set(0, bean)
	ip := interp.New()
	return ip.Eval(x.root, act)
}

// SetProperty assigns v into bean at expr by synthesizing a snippet that
// references the "$0" (bean) and "$1" (value) registers.
func (e *Engine) SetProperty(ctx context.Context, bean value.Value, expr string, v value.Value) error {
	path := strings.TrimPrefix(strings.TrimSpace(expr), ".")
	snippet := context.RegisterName(0) + "." + path + " = " + context.RegisterName(1)
	x, err := e.CreateExpression(snippet)
	if err != nil {
		return err
	}
	act := e.newActivation(ctx)
	act.Registers.Set(0, bean)
	act.Registers.Set(1, v)
	ip := interp.New()
	_, err = ip.Eval(x.root, act)
	return err
}
