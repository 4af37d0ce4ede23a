package analysis

import (
	"fmt"
	"slices"
	"strings"
)

// Score weights
const (
	weightLoopDepth = 12
	weightRecursion = 20
	weightExpensive = 15
	weightLoopIssue = 10
	maxScore        = 100
)

// Score combines signals into a value in [0, 100]
func Score(s Signals) int {
	score := s.LoopDepth * weightLoopDepth
	if s.Recursive {
		score += weightRecursion
	}
	score += len(s.ExpensiveCalls) * weightExpensive
	score += len(s.LoopIssues) * weightLoopIssue

	return max(0, min(score, maxScore))
}

// Classify attributes a function to IO when it opens files and to CPU
// otherwise. Deep loops, recursion and sorting are CPU as well, which is the
// default anyway.
func Classify(s Signals) Category {
	if slices.Contains(s.ExpensiveCalls, ioCallName) {
		return CategoryIO
	}
	return CategoryCPU
}

// Reasons renders the signals as human readable lines in a fixed order:
// loop depth, recursion, expensive calls, then one line per loop issue.
func Reasons(s Signals) []string {
	reasons := make([]string, 0, 3+len(s.LoopIssues))

	if s.LoopDepth > 0 {
		reasons = append(reasons, fmt.Sprintf("Loop nesting depth = %d", s.LoopDepth))
	}
	if s.Recursive {
		reasons = append(reasons, "Recursion detected")
	}
	if len(s.ExpensiveCalls) > 0 {
		reasons = append(reasons, "Expensive calls: "+strings.Join(s.ExpensiveCalls, ", "))
	}
	reasons = append(reasons, s.LoopIssues...)

	return reasons
}
