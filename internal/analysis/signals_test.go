package analysis

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EcoCode-hq/ecocode/internal/parser"
	"github.com/EcoCode-hq/ecocode/internal/syntax"
)

var defaultExpensive = map[string]bool{"sorted": true, "open": true, "print": true}

// firstFunction parses source and returns the first function definition
func firstFunction(t *testing.T, source string) *syntax.Node {
	t.Helper()
	tree, err := parser.NewParser(parser.DefaultOptions()).Parse(context.Background(), source)
	require.NoError(t, err)
	fns := ExtractFunctions(tree)
	require.NotEmpty(t, fns)
	return fns[0].Node
}

func TestLoopDepth(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   int
	}{
		{
			name:   "no loops",
			source: "def f(x):\n    return x + 1\n",
			want:   0,
		},
		{
			name: "three nested whiles",
			source: `def f(n):
    while n:
        while n:
            while n:
                n -= 1
`,
			want: 3,
		},
		{
			name: "sibling loops do not accumulate",
			source: `def f(xs):
    for x in xs:
        pass
    for y in xs:
        pass
    while xs:
        xs.pop()
`,
			want: 1,
		},
		{
			name: "conditionals do not reset depth",
			source: `def f(xs):
    for x in xs:
        if x:
            for y in xs:
                pass
`,
			want: 2,
		},
		{
			name: "nested function loops count structurally",
			source: `def f(xs):
    for x in xs:
        def g():
            while True:
                break
`,
			want: 2,
		},
		{
			name:   "comprehensions are not loops",
			source: "def f(xs):\n    return [x for x in xs for y in xs]\n",
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LoopDepth(firstFunction(t, tt.source)))
		})
	}
}

func TestLoopDepth_Nil(t *testing.T) {
	assert.Equal(t, 0, LoopDepth(nil))
}

func TestIsRecursive(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   bool
	}{
		{"bare self call", "def f(n):\n    return f(n - 1)\n", true},
		{"attribute call", "def f(self):\n    return self.f()\n", false},
		{"different name", "def f(n):\n    return g(n)\n", false},
		{"call inside nested function", "def f():\n    def g():\n        f()\n    return g\n", true},
		{"name reference without call", "def f():\n    return f\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := firstFunction(t, tt.source)
			assert.Equal(t, tt.want, IsRecursive(fn, fn.Ident))
		})
	}
}

func TestIsRecursive_EmptyName(t *testing.T) {
	fn := &syntax.Node{Kind: syntax.KindFunctionDef, Children: []*syntax.Node{
		{Kind: syntax.KindCall, Children: []*syntax.Node{{Kind: syntax.KindName}}},
	}}
	assert.False(t, IsRecursive(fn, ""))
}

func TestExpensiveCalls(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   []string
	}{
		{
			name:   "none",
			source: "def f(x):\n    return len(x)\n",
			want:   []string{},
		},
		{
			name:   "sorted twice counts once",
			source: "def f(a, b):\n    return sorted(a) + sorted(b)\n",
			want:   []string{"sorted"},
		},
		{
			name: "first appearance order",
			source: `def f(path, xs):
    print(path)
    xs.sort()
    with open(path) as fh:
        return sorted(fh)
`,
			want: []string{"print", "sort()", "open", "sorted"},
		},
		{
			name:   "sort on any receiver",
			source: "def f(self):\n    self.rows.sort(key=len)\n",
			want:   []string{"sort()"},
		},
		{
			name:   "attribute named like an expensive builtin",
			source: "def f(io):\n    io.open()\n",
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpensiveCalls(firstFunction(t, tt.source), defaultExpensive)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ExpensiveCalls() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExpensiveCalls_CustomSet(t *testing.T) {
	fn := firstFunction(t, "def f(url):\n    print(url)\n    return fetch(url)\n")
	got := ExpensiveCalls(fn, map[string]bool{"fetch": true})
	assert.Equal(t, []string{"fetch"}, got)
}

func TestLoopIssues(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   []string
	}{
		{
			name:   "outside loop is ignored",
			source: "def f(xs, s):\n    s += 'x'\n    xs.append(1)\n",
			want:   []string{},
		},
		{
			name: "concat then append",
			source: `def f(xs):
    s = ''
    out = []
    for x in xs:
        s += x
        out.append(x)
`,
			want: []string{LabelStringConcat, LabelListAppend},
		},
		{
			name: "deduplicated across loops",
			source: `def f(xs):
    out = []
    for x in xs:
        out.append(x)
    while xs:
        out.append(xs.pop())
`,
			want: []string{LabelListAppend},
		},
		{
			name: "other augmented operators are not flagged",
			source: `def f(n):
    while n:
        n -= 1
        n *= 1
`,
			want: []string{},
		},
		{
			name: "deep inside nested loop",
			source: `def f(grid):
    total = 0
    for row in grid:
        for cell in row:
            if cell:
                total += cell
`,
			want: []string{LabelStringConcat},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LoopIssues(firstFunction(t, tt.source))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("LoopIssues() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLabelSet(t *testing.T) {
	var s LabelSet
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Has("a"))
	assert.Equal(t, []string{}, s.Slice())

	s.Add("b")
	s.Add("a")
	s.Add("b")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("a"))
	assert.Equal(t, []string{"b", "a"}, s.Slice())

	out := s.Slice()
	out[0] = "mutated"
	assert.Equal(t, []string{"b", "a"}, s.Slice())
}

func TestMeasure(t *testing.T) {
	fn := firstFunction(t, `def walk(tree, acc):
    for node in tree:
        acc.append(node)
        walk(node, acc)
    return sorted(acc)
`)
	got := Measure(fn, "walk", defaultExpensive)
	want := Signals{
		LoopDepth:      1,
		Recursive:      true,
		ExpensiveCalls: []string{"sorted"},
		LoopIssues:     []string{LabelListAppend},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Measure() mismatch (-want +got):\n%s", diff)
	}
}
