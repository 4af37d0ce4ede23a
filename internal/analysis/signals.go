package analysis

import "github.com/EcoCode-hq/ecocode/internal/syntax"

// Labels reported by the detectors
const (
	LabelSortMethod   = "sort()"
	LabelStringConcat = "string concatenation in loop (+=)"
	LabelListAppend   = "list append in loop (.append)"

	ioCallName       = "open"
	sortMethodName   = "sort"
	appendMethodName = "append"
)

// Measure computes all signals for one function subtree
func Measure(fn *syntax.Node, name string, expensive map[string]bool) Signals {
	return Signals{
		LoopDepth:      LoopDepth(fn),
		Recursive:      IsRecursive(fn, name),
		ExpensiveCalls: ExpensiveCalls(fn, expensive),
		LoopIssues:     LoopIssues(fn),
	}
}

// LoopDepth returns the deepest nesting of for/while loops under fn. Depth is
// carried by value, so siblings never see each other's loops.
func LoopDepth(fn *syntax.Node) int {
	deepest := 0

	var visit func(n *syntax.Node, depth int)
	visit = func(n *syntax.Node, depth int) {
		if n.Kind.IsLoop() {
			depth++
			if depth > deepest {
				deepest = depth
			}
		}
		for _, c := range n.Children {
			visit(c, depth)
		}
	}

	if fn != nil {
		visit(fn, 0)
	}
	return deepest
}

// IsRecursive reports whether fn calls a bare identifier equal to its own
// name. Calls through attributes (self.f()) and aliases are not detected.
func IsRecursive(fn *syntax.Node, name string) bool {
	if name == "" {
		return false
	}
	return syntax.Find(fn, func(n *syntax.Node) bool {
		callee, ok := n.CalleeName()
		return ok && callee == name
	}) != nil
}

// ExpensiveCalls lists, once each and in order of first appearance, calls to
// identifiers in the expensive set and any .sort() method call.
func ExpensiveCalls(fn *syntax.Node, expensive map[string]bool) []string {
	var found LabelSet

	syntax.Walk(fn, func(n *syntax.Node) bool {
		switch n.Kind {
		case syntax.KindCall:
			if callee, ok := n.CalleeName(); ok && expensive[callee] {
				found.Add(callee)
			}
			if method, ok := n.MethodName(); ok && method == sortMethodName {
				found.Add(LabelSortMethod)
			}
		case syntax.KindModule, syntax.KindFunctionDef, syntax.KindAsyncFunctionDef,
			syntax.KindFor, syntax.KindAsyncFor, syntax.KindWhile,
			syntax.KindAttribute, syntax.KindName, syntax.KindAugAssign, syntax.KindOther:
		}
		return true
	})

	return found.Slice()
}

// LoopIssues flags anti-patterns found anywhere inside any loop of fn.
// Nested loops are rescanned; the set keeps each label once.
func LoopIssues(fn *syntax.Node) []string {
	var issues LabelSet

	syntax.Walk(fn, func(loop *syntax.Node) bool {
		if !loop.Kind.IsLoop() {
			return true
		}
		syntax.Walk(loop, func(n *syntax.Node) bool {
			switch n.Kind {
			case syntax.KindAugAssign:
				if n.Op == syntax.OpAdd {
					issues.Add(LabelStringConcat)
				}
			case syntax.KindCall:
				if method, ok := n.MethodName(); ok && method == appendMethodName {
					issues.Add(LabelListAppend)
				}
			case syntax.KindModule, syntax.KindFunctionDef, syntax.KindAsyncFunctionDef,
				syntax.KindFor, syntax.KindAsyncFor, syntax.KindWhile,
				syntax.KindAttribute, syntax.KindName, syntax.KindOther:
			}
			return true
		})
		return true
	})

	return issues.Slice()
}
