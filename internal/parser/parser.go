package parser

import (
	"context"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/EcoCode-hq/ecocode/internal/syntax"
)

// Parser turns Python source into a syntax.Tree using tree-sitter.
// It is safe for concurrent use; every call gets its own sitter.Parser.
type Parser struct {
	opts Options
}

// NewParser creates a parser with the given limits
func NewParser(opts Options) *Parser {
	return &Parser{opts: opts}
}

// ParseFile reads and parses a single Python file
func (p *Parser) ParseFile(ctx context.Context, filePath string) (*syntax.Tree, error) {
	if lang := DetectLanguage(filePath); !lang.Supported() {
		return nil, fmt.Errorf("unsupported language %s for file: %s", lang, filePath)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return p.Parse(ctx, string(content))
}

// Parse parses Python source. Failures are always *syntax.ParseError.
func (p *Parser) Parse(ctx context.Context, source string) (*syntax.Tree, error) {
	if p.opts.MaxSourceBytes > 0 && len(source) > p.opts.MaxSourceBytes {
		return nil, &syntax.ParseError{
			Kind:    syntax.ErrorKindLimit,
			Message: fmt.Sprintf("source is %d bytes, limit is %d", len(source), p.opts.MaxSourceBytes),
		}
	}

	sp := sitter.NewParser()
	defer sp.Close()
	sp.SetLanguage(python.GetLanguage())

	content := []byte(source)
	tree, err := sp.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, &syntax.ParseError{Kind: syntax.ErrorKindParse, Message: err.Error()}
	}
	if tree == nil {
		return nil, &syntax.ParseError{Kind: syntax.ErrorKindParse, Message: "parser returned no tree"}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, &syntax.ParseError{Kind: syntax.ErrorKindParse, Message: "parser returned no root node"}
	}
	if root.HasError() {
		return nil, syntaxError(root)
	}

	l := &lowerer{source: content, maxDepth: p.opts.MaxDepth}
	node, err := l.lower(root, 0)
	if err != nil {
		return nil, err
	}
	if bad := checkLayout(root); bad != nil {
		return nil, bad
	}

	return &syntax.Tree{Root: node, Source: source}, nil
}

// syntaxError locates the first ERROR or MISSING node in pre-order
func syntaxError(root *sitter.Node) *syntax.ParseError {
	bad := firstError(root)
	if bad == nil {
		return &syntax.ParseError{Kind: syntax.ErrorKindSyntax, Line: 1, Column: 1, Message: "invalid syntax"}
	}

	msg := "invalid syntax"
	if bad.IsMissing() {
		msg = fmt.Sprintf("expected '%s'", bad.Type())
	}

	return &syntax.ParseError{
		Kind:    syntax.ErrorKindSyntax,
		Line:    int(bad.StartPoint().Row) + 1,
		Column:  int(bad.StartPoint().Column) + 1,
		Message: msg,
	}
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !(child.HasError() || child.IsMissing()) {
			continue
		}
		if found := firstError(child); found != nil {
			return found
		}
	}
	return nil
}

// lowerer converts tree-sitter nodes into syntax nodes
type lowerer struct {
	source   []byte
	maxDepth int
}

func (l *lowerer) lower(n *sitter.Node, depth int) (*syntax.Node, error) {
	if l.maxDepth > 0 && depth > l.maxDepth {
		return nil, &syntax.ParseError{
			Kind:    syntax.ErrorKindLimit,
			Line:    int(n.StartPoint().Row) + 1,
			Message: fmt.Sprintf("syntax tree depth exceeds %d", l.maxDepth),
		}
	}

	if n.Type() == "parenthesized_expression" {
		if inner := statements(n); len(inner) == 1 {
			return l.lower(inner[0], depth+1)
		}
	}

	out := &syntax.Node{
		Kind:      syntax.KindOther,
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   endLine(n),
	}

	children := namedChildren(n)

	switch n.Type() {
	case "module":
		out.Kind = syntax.KindModule
	case "function_definition":
		out.Kind = syntax.KindFunctionDef
		if hasAsync(n) {
			out.Kind = syntax.KindAsyncFunctionDef
		}
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			out.Ident = nameNode.Content(l.source)
		}
		// decorators belong to the function they wrap
		if parent := n.Parent(); parent != nil && parent.Type() == "decorated_definition" {
			for _, c := range namedChildren(parent) {
				if c.Type() == "decorator" {
					children = append(children, c)
				}
			}
		}
	case "decorated_definition":
		if def := n.ChildByFieldName("definition"); def != nil && def.Type() == "function_definition" {
			children = []*sitter.Node{def}
		}
	case "for_statement":
		out.Kind = syntax.KindFor
		if hasAsync(n) {
			out.Kind = syntax.KindAsyncFor
		}
	case "while_statement":
		out.Kind = syntax.KindWhile
	case "call":
		// named children keep source order, so the callee comes first
		out.Kind = syntax.KindCall
	case "attribute":
		out.Kind = syntax.KindAttribute
		if attrNode := n.ChildByFieldName("attribute"); attrNode != nil {
			out.Ident = attrNode.Content(l.source)
		}
		children = nil
		if obj := n.ChildByFieldName("object"); obj != nil {
			children = []*sitter.Node{obj}
		}
	case "identifier":
		out.Kind = syntax.KindName
		out.Ident = n.Content(l.source)
	case "augmented_assignment":
		out.Kind = syntax.KindAugAssign
		if op := n.ChildByFieldName("operator"); op != nil {
			out.Op = syntax.Op(op.Type())
		}
	}

	if len(children) > 0 {
		out.Children = make([]*syntax.Node, 0, len(children))
		for _, c := range children {
			lowered, err := l.lower(c, depth+1)
			if err != nil {
				return nil, err
			}
			out.Children = append(out.Children, lowered)
		}
	}

	return out, nil
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	count := int(n.NamedChildCount())
	if count == 0 {
		return nil
	}
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		if c := n.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func hasAsync(n *sitter.Node) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "async" {
			return true
		}
	}
	return false
}

// endLine returns the 1-based last line a node occupies, not counting
// trailing comments. A node ending at column 0 stops before that line begins.
func endLine(n *sitter.Node) int {
	start, end := n.StartPoint(), lastToken(n).EndPoint()
	if end.Column == 0 && end.Row > start.Row {
		return int(end.Row)
	}
	return int(end.Row) + 1
}
