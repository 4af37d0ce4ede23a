package analysis

import (
	"strings"

	"github.com/EcoCode-hq/ecocode/internal/syntax"
)

// ExtractFunctions returns every function definition in the tree, nested ones
// included, in depth-first pre-order.
func ExtractFunctions(tree *syntax.Tree) []FunctionRecord {
	if tree == nil || tree.Root == nil {
		return nil
	}

	lines := splitLines(tree.Source)
	var records []FunctionRecord

	syntax.Walk(tree.Root, func(n *syntax.Node) bool {
		if n.Kind == syntax.KindFunctionDef {
			records = append(records, FunctionRecord{
				Name:      n.Ident,
				StartLine: n.StartLine,
				EndLine:   n.EndLine,
				Node:      n,
				Snippet:   snippet(lines, n.StartLine, n.EndLine),
			})
		}
		return true
	})

	return records
}

// splitLines splits on any line ending and drops the empty tail a trailing
// newline would otherwise produce.
func splitLines(source string) []string {
	if source == "" {
		return nil
	}
	source = strings.ReplaceAll(source, "\r\n", "\n")
	source = strings.ReplaceAll(source, "\r", "\n")
	lines := strings.Split(source, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// snippet returns lines [start, end] (1-based, inclusive), clamped at the end
// of the file. A start outside the file yields "".
func snippet(lines []string, start, end int) string {
	if start < 1 || start > len(lines) || end < start {
		return ""
	}
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start-1:end], "\n")
}
