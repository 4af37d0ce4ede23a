package parser

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/EcoCode-hq/ecocode/internal/syntax"
)

const (
	msgUnexpectedIndent = "unexpected indent"
	msgExpectedBlock    = "expected an indented block"
	msgUnindent         = "unindent does not match any outer indentation level"
)

// clauses continue their parent statement and share its column
var clauseTypes = map[string]bool{
	"elif_clause":         true,
	"else_clause":         true,
	"except_clause":       true,
	"except_group_clause": true,
	"finally_clause":      true,
}

// layoutChecker enforces the indentation rules tree-sitter's scanner lets
// through, along with Python 2 statement forms. It keeps the earliest
// violation in source order.
type layoutChecker struct {
	first *syntax.ParseError
}

func checkLayout(root *sitter.Node) *syntax.ParseError {
	c := &layoutChecker{}
	c.visit(root)
	return c.first
}

func (c *layoutChecker) visit(n *sitter.Node) {
	switch t := n.Type(); {
	case t == "module":
		c.aligned(statements(n), 0)
	case t == "block":
		c.block(n)
	case t == "print_statement":
		c.report(n.StartPoint(), "Missing parentheses in call to 'print'")
	case t == "exec_statement":
		c.report(n.StartPoint(), "Missing parentheses in call to 'exec'")
	case clauseTypes[t]:
		c.clause(n)
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child != nil {
			c.visit(child)
		}
	}
}

func (c *layoutChecker) block(b *sitter.Node) {
	stmts := statements(b)
	if len(stmts) == 0 {
		// the suite was only a newline
		c.report(sitter.Point{Row: b.StartPoint().Row + 1}, msgExpectedBlock)
		return
	}

	first := stmts[0]
	header := b.Parent()
	if header != nil && !inlineSuite(b, first) && first.StartPoint().Column <= header.StartPoint().Column {
		c.report(first.StartPoint(), msgExpectedBlock)
		return
	}
	c.aligned(stmts, first.StartPoint().Column)
}

// aligned checks that every statement opening a new line starts at column
func (c *layoutChecker) aligned(stmts []*sitter.Node, column uint32) {
	prevEnd := -1
	for _, s := range stmts {
		start := s.StartPoint()
		if int(start.Row) != prevEnd && start.Column != column {
			msg := msgUnexpectedIndent
			if start.Column < column {
				msg = msgUnindent
			}
			c.report(start, msg)
		}
		prevEnd = int(lastToken(s).EndPoint().Row)
	}
}

func (c *layoutChecker) clause(n *sitter.Node) {
	parent := n.Parent()
	if parent == nil || n.StartPoint().Row == parent.StartPoint().Row {
		return
	}
	if col, want := n.StartPoint().Column, parent.StartPoint().Column; col != want {
		msg := "invalid syntax"
		if col < want {
			msg = msgUnindent
		}
		c.report(n.StartPoint(), msg)
	}
}

func (c *layoutChecker) report(at sitter.Point, msg string) {
	line, col := int(at.Row)+1, int(at.Column)+1
	if c.first != nil && (c.first.Line < line || c.first.Line == line && c.first.Column <= col) {
		return
	}
	c.first = &syntax.ParseError{Kind: syntax.ErrorKindSyntax, Line: line, Column: col, Message: msg}
}

// inlineSuite reports whether a block's first statement follows the colon
// on the header line
func inlineSuite(b, first *sitter.Node) bool {
	prev := b.PrevSibling()
	for prev != nil && prev.Type() == "comment" {
		prev = prev.PrevSibling()
	}
	if prev == nil {
		return first.StartPoint().Row == b.Parent().StartPoint().Row
	}
	return first.StartPoint().Row == prev.EndPoint().Row
}

// statements returns the named children of a module or block, minus comments
func statements(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for _, c := range namedChildren(n) {
		if c.Type() != "comment" {
			out = append(out, c)
		}
	}
	return out
}

// lastToken follows the right edge of n down to its last non-comment token
func lastToken(n *sitter.Node) *sitter.Node {
	for {
		var next *sitter.Node
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if c := n.Child(i); c != nil && c.Type() != "comment" {
				next = c
				break
			}
		}
		if next == nil {
			return n
		}
		n = next
	}
}
