// Package syntax holds the language-neutral syntax tree the analysis engine
// walks. Trees are produced by internal/parser and are read-only afterwards.
package syntax

// Kind tags a node. The set is closed; anything the analyzers do not care
// about is lowered to KindOther.
type Kind int

const (
	KindOther Kind = iota
	KindModule
	KindFunctionDef
	KindAsyncFunctionDef
	KindFor
	KindAsyncFor
	KindWhile
	KindCall
	KindAttribute
	KindName
	KindAugAssign
)

var kindNames = [...]string{
	KindOther:            "Other",
	KindModule:           "Module",
	KindFunctionDef:      "FunctionDef",
	KindAsyncFunctionDef: "AsyncFunctionDef",
	KindFor:              "For",
	KindAsyncFor:         "AsyncFor",
	KindWhile:            "While",
	KindCall:             "Call",
	KindAttribute:        "Attribute",
	KindName:             "Name",
	KindAugAssign:        "AugAssign",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

// IsLoop reports whether the kind counts toward loop nesting.
// Async loops are separate kinds and do not count.
func (k Kind) IsLoop() bool {
	return k == KindFor || k == KindWhile
}

// Op is the operator tag carried by augmented assignments
type Op string

const (
	OpNone     Op = ""
	OpAdd      Op = "+="
	OpSub      Op = "-="
	OpMult     Op = "*="
	OpDiv      Op = "/="
	OpFloorDiv Op = "//="
	OpMod      Op = "%="
	OpPow      Op = "**="
	OpMatMult  Op = "@="
	OpLShift   Op = "<<="
	OpRShift   Op = ">>="
	OpBitAnd   Op = "&="
	OpBitOr    Op = "|="
	OpBitXor   Op = "^="
)

// Node is one syntax tree node.
//
// Ident holds the function name for FunctionDef, the identifier for Name and
// the attribute name for Attribute. A Call keeps its callee expression as
// Children[0]; an Attribute keeps its receiver as Children[0].
type Node struct {
	Kind      Kind
	Ident     string
	Op        Op
	StartLine int // 1-based
	EndLine   int // 1-based, inclusive
	Children  []*Node
}

// Callee returns the called expression of a Call node, or nil
func (n *Node) Callee() *Node {
	if n == nil || n.Kind != KindCall || len(n.Children) == 0 {
		return nil
	}
	return n.Children[0]
}

// CalleeName returns the bare identifier a Call invokes, if the callee is a Name
func (n *Node) CalleeName() (string, bool) {
	c := n.Callee()
	if c == nil || c.Kind != KindName {
		return "", false
	}
	return c.Ident, true
}

// MethodName returns the attribute name a Call invokes, if the callee is an Attribute
func (n *Node) MethodName() (string, bool) {
	c := n.Callee()
	if c == nil || c.Kind != KindAttribute {
		return "", false
	}
	return c.Ident, true
}

// Tree is a parsed source file
type Tree struct {
	Root   *Node
	Source string
}

// Walk visits n and its descendants depth-first in pre-order. Returning
// false from fn skips the children of the current node.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Find returns the first node in pre-order for which pred is true
func Find(n *Node, pred func(*Node) bool) *Node {
	var found *Node
	Walk(n, func(c *Node) bool {
		if found != nil {
			return false
		}
		if pred(c) {
			found = c
			return false
		}
		return true
	})
	return found
}
