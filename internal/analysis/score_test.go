package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		signals Signals
		want    int
	}{
		{"empty", Signals{}, 0},
		{"depth only", Signals{LoopDepth: 3}, 36},
		{"recursion only", Signals{Recursive: true}, 20},
		{"one expensive call", Signals{ExpensiveCalls: []string{"sorted"}}, 15},
		{"nested append", Signals{LoopDepth: 2, LoopIssues: []string{LabelListAppend}}, 34},
		{
			"everything",
			Signals{LoopDepth: 2, Recursive: true, ExpensiveCalls: []string{"open", "sorted"}, LoopIssues: []string{LabelStringConcat}},
			24 + 20 + 30 + 10,
		},
		{"capped", Signals{LoopDepth: 10, Recursive: true}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.signals))
		})
	}
}

func TestScore_Monotonic(t *testing.T) {
	labels := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	for depth := 0; depth <= 10; depth++ {
		for _, rec := range []bool{false, true} {
			for e := 0; e <= len(labels); e++ {
				for i := 0; i <= 3; i++ {
					base := Signals{LoopDepth: depth, Recursive: rec, ExpensiveCalls: labels[:e], LoopIssues: labels[:i]}
					s := Score(base)
					assert.GreaterOrEqual(t, s, 0)
					assert.LessOrEqual(t, s, 100)

					deeper := base
					deeper.LoopDepth++
					assert.GreaterOrEqual(t, Score(deeper), s)

					recursive := base
					recursive.Recursive = true
					assert.GreaterOrEqual(t, Score(recursive), s)

					if e < len(labels) {
						more := base
						more.ExpensiveCalls = labels[:e+1]
						assert.GreaterOrEqual(t, Score(more), s)
					}

					moreIssues := base
					moreIssues.LoopIssues = labels[:i+1]
					assert.GreaterOrEqual(t, Score(moreIssues), s)
				}
			}
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		signals Signals
		want    Category
	}{
		{"empty", Signals{}, CategoryCPU},
		{"open", Signals{ExpensiveCalls: []string{"open"}}, CategoryIO},
		{"open with loops", Signals{LoopDepth: 3, Recursive: true, ExpensiveCalls: []string{"sorted", "open"}}, CategoryIO},
		{"deep loops", Signals{LoopDepth: 2}, CategoryCPU},
		{"sorting", Signals{ExpensiveCalls: []string{LabelSortMethod}}, CategoryCPU},
		{"print only", Signals{ExpensiveCalls: []string{"print"}}, CategoryCPU},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.signals))
		})
	}
}

func TestReasons(t *testing.T) {
	assert.Equal(t, []string{}, Reasons(Signals{}))

	got := Reasons(Signals{
		LoopDepth:      2,
		Recursive:      true,
		ExpensiveCalls: []string{"print", "sort()"},
		LoopIssues:     []string{LabelStringConcat, LabelListAppend},
	})
	assert.Equal(t, []string{
		"Loop nesting depth = 2",
		"Recursion detected",
		"Expensive calls: print, sort()",
		LabelStringConcat,
		LabelListAppend,
	}, got)
}

func TestReasons_OnlyIssues(t *testing.T) {
	got := Reasons(Signals{LoopIssues: []string{LabelListAppend}})
	assert.Equal(t, []string{LabelListAppend}, got)
}
