// Package grammar maps language identifiers and file extensions to
// tree-sitter grammars, loading and memoizing each grammar at most once.
// Grounded on the teacher's lazy-singleton patterns (CredentialBroker's
// LRU-backed cache), adapted to grammar lookup instead of token minting.
package grammar

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language is a normalized tree-sitter language identifier.
type Language string

const (
	JS     Language = "js"
	TS     Language = "ts"
	TSX    Language = "tsx"
	Python Language = "python"
	Java   Language = "java"
	Go     Language = "go"
	C      Language = "c"
)

var extToLang = map[string]Language{
	".js": JS, ".jsx": JS, ".mjs": JS, ".cjs": JS,
	".ts": TS, ".mts": TS,
	".tsx": TSX,
	".py":  Python,
	".java": Java,
	".go":  Go,
	".c":   C, ".h": C,
}

// LanguageForExt returns the normalized language for a file extension
// (including the leading dot), and whether it is supported.
func LanguageForExt(ext string) (Language, bool) {
	lang, ok := extToLang[strings.ToLower(ext)]
	return lang, ok
}

// LanguageForFile is a convenience wrapper resolving from a full path.
func LanguageForFile(filename string) (Language, bool) {
	return LanguageForExt(filepath.Ext(filename))
}

// Registry lazily loads and memoizes tree-sitter grammars by Language.
type Registry struct {
	mu    sync.Mutex
	cache map[Language]*sitter.Language
}

func NewRegistry() *Registry {
	return &Registry{cache: make(map[Language]*sitter.Language)}
}

func (r *Registry) grammarFor(lang Language) (*sitter.Language, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.cache[lang]; ok {
		return g, nil
	}
	var g *sitter.Language
	switch lang {
	case JS:
		g = javascript.GetLanguage()
	case TS:
		g = typescript.GetLanguage()
	case TSX:
		g = tsx.GetLanguage()
	case Python:
		g = python.GetLanguage()
	case Java:
		g = java.GetLanguage()
	case Go:
		g = golang.GetLanguage()
	case C:
		g = c.GetLanguage()
	default:
		return nil, fmt.Errorf("grammar: unsupported language %q", lang)
	}
	r.cache[lang] = g
	return g, nil
}

// Tree wraps a parsed tree-sitter AST; callers MUST call Close once done,
// per spec.md §4.3's "delete() MUST be called by the caller" contract.
type Tree struct {
	tree *sitter.Tree
	src  []byte
}

func (t *Tree) Root() *sitter.Node { return t.tree.RootNode() }
func (t *Tree) Source() []byte     { return t.src }
func (t *Tree) Close()             { t.tree.Close() }

// Parse parses source in lang, returning a Tree the caller must Close.
func (r *Registry) Parse(source []byte, lang Language) (*Tree, error) {
	g, err := r.grammarFor(lang)
	if err != nil {
		return nil, err
	}
	parser := sitter.NewParser()
	parser.SetLanguage(g)
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, err
	}
	return &Tree{tree: tree, src: source}, nil
}

// NewQuery compiles a tree-sitter S-expression query against lang's grammar.
func (r *Registry) NewQuery(pattern string, lang Language) (*sitter.Query, error) {
	g, err := r.grammarFor(lang)
	if err != nil {
		return nil, err
	}
	return sitter.NewQuery([]byte(pattern), g)
}
