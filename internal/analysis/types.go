// Package analysis estimates how expensive Python functions are from their
// syntax trees alone. Nothing is executed; all figures are heuristics.
package analysis

import "github.com/EcoCode-hq/ecocode/internal/syntax"

// Category is the coarse resource class a hotspot is attributed to
type Category string

const (
	CategoryCPU Category = "CPU"
	CategoryIO  Category = "IO"
)

// DefaultFilename is used when a caller does not name the source
const DefaultFilename = "main.py"

// Disclaimer accompanies every summary
const Disclaimer = "Energy and cost are heuristic estimates from static analysis (not hardware power counters)."

// Options configures a single Analyzer. Values are copied at construction so
// analyzers with different assumptions can run side by side.
type Options struct {
	ElectricityRatePerKWh float64
	JoulesPerScorePoint   float64
	ExpensiveCalls        []string
	MaxSourceBytes        int
	MaxDepth              int
}

// DefaultOptions returns the stock heuristic constants
func DefaultOptions() Options {
	return Options{
		ElectricityRatePerKWh: 8.0,
		JoulesPerScorePoint:   0.05,
		ExpensiveCalls:        []string{"sorted", "open", "print"},
		MaxSourceBytes:        1 << 20,
		MaxDepth:              1000,
	}
}

// FunctionRecord is one function definition found in a tree
type FunctionRecord struct {
	Name      string
	StartLine int
	EndLine   int
	Node      *syntax.Node
	Snippet   string
}

// Signals are the structural facts measured for one function
type Signals struct {
	LoopDepth      int
	Recursive      bool
	ExpensiveCalls []string
	LoopIssues     []string
}

// Energy is the heuristic cost projection for one function
type Energy struct {
	JoulesPerRun    float64
	CostPerRun      float64
	CostPer1000Runs float64
	CostPer1MRuns   float64
}

// Hotspot is the ranked record reported for each function
type Hotspot struct {
	Name                     string   `json:"name"`
	Score                    int      `json:"score"`
	Category                 Category `json:"category"`
	Reasons                  []string `json:"reasons"`
	StartLine                int      `json:"start_line"`
	EndLine                  int      `json:"end_line"`
	CodeSnippet              string   `json:"code_snippet"`
	EstimatedJoulesPerRun    float64  `json:"estimated_joules_per_run"`
	EstimatedCostPer1000Runs float64  `json:"estimated_cost_per_1000_runs"`
	EstimatedCostPer1MRuns   float64  `json:"estimated_cost_per_1m_runs"`
}

// Summary describes one analysis run
type Summary struct {
	Filename              string  `json:"filename"`
	Language              string  `json:"language"`
	FunctionCount         int     `json:"function_count"`
	HotspotCount          int     `json:"hotspot_count"`
	ElectricityRatePerKWh float64 `json:"electricity_rate_per_kwh"`
	Note                  string  `json:"note"`
}

// Error is the structured failure carried in a Result
type Error struct {
	Kind    syntax.ErrorKind `json:"kind"`
	Line    *int             `json:"line,omitempty"`
	Column  *int             `json:"column,omitempty"`
	Message string           `json:"message"`
	Detail  string           `json:"detail"`
}

// Result is the outcome of analyzing one source text. Callers branch on
// Error rather than on a Go error return.
type Result struct {
	Summary  Summary   `json:"summary"`
	Hotspots []Hotspot `json:"hotspots"`
	Error    *Error    `json:"error,omitempty"`
}

// Failed reports whether the source could not be analyzed
func (r *Result) Failed() bool {
	return r != nil && r.Error != nil
}

// TopScore returns the highest hotspot score, or 0 when there are none
func (r *Result) TopScore() int {
	if r == nil || len(r.Hotspots) == 0 {
		return 0
	}
	return r.Hotspots[0].Score
}
