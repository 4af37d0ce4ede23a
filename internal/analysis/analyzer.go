package analysis

import (
	"cmp"
	"context"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/EcoCode-hq/ecocode/internal/parser"
	"github.com/EcoCode-hq/ecocode/internal/syntax"
)

// TreeParser produces syntax trees from source text
type TreeParser interface {
	Parse(ctx context.Context, source string) (*syntax.Tree, error)
}

// Analyzer ranks the functions of a source file by estimated cost.
// It holds no mutable state and is safe for concurrent use.
type Analyzer struct {
	opts      Options
	parser    TreeParser
	expensive map[string]bool
}

// NewAnalyzer creates an analyzer. A nil parser selects the tree-sitter
// Python parser bounded by opts.
func NewAnalyzer(opts Options, p TreeParser) *Analyzer {
	if p == nil {
		p = parser.NewParser(parser.Options{
			MaxSourceBytes: opts.MaxSourceBytes,
			MaxDepth:       opts.MaxDepth,
		})
	}

	expensive := make(map[string]bool, len(opts.ExpensiveCalls))
	for _, name := range opts.ExpensiveCalls {
		expensive[name] = true
	}
	opts.ExpensiveCalls = slices.Clone(opts.ExpensiveCalls)

	return &Analyzer{
		opts:      opts,
		parser:    p,
		expensive: expensive,
	}
}

// Options returns the analyzer's configuration
func (a *Analyzer) Options() Options {
	opts := a.opts
	opts.ExpensiveCalls = slices.Clone(a.opts.ExpensiveCalls)
	return opts
}

// Analyze parses source and scores every function in it. Parse failures are
// reported through Result.Error with zero counts and no hotspots.
func (a *Analyzer) Analyze(ctx context.Context, source, filename string) *Result {
	if filename == "" {
		filename = DefaultFilename
	}

	tree, err := a.parser.Parse(ctx, source)
	if err != nil {
		log.Debug().Err(err).Str("filename", filename).Msg("parse failed")
		return a.failure(filename, err)
	}

	return a.AnalyzeTree(tree, filename)
}

// AnalyzeTree scores the functions of an already parsed tree
func (a *Analyzer) AnalyzeTree(tree *syntax.Tree, filename string) *Result {
	if filename == "" {
		filename = DefaultFilename
	}

	functions := ExtractFunctions(tree)
	hotspots := make([]Hotspot, 0, len(functions))
	for _, fn := range functions {
		hotspots = append(hotspots, a.hotspot(fn))
	}

	slices.SortStableFunc(hotspots, func(x, y Hotspot) int {
		return cmp.Compare(y.Score, x.Score)
	})

	log.Debug().
		Str("filename", filename).
		Int("functions", len(functions)).
		Msg("analysis complete")

	return &Result{
		Summary:  a.summary(filename, len(functions), len(hotspots)),
		Hotspots: hotspots,
	}
}

func (a *Analyzer) hotspot(fn FunctionRecord) Hotspot {
	signals := Measure(fn.Node, fn.Name, a.expensive)
	score := Score(signals)
	energy := Estimate(score, a.opts.JoulesPerScorePoint, a.opts.ElectricityRatePerKWh)

	return Hotspot{
		Name:                     fn.Name,
		Score:                    score,
		Category:                 Classify(signals),
		Reasons:                  Reasons(signals),
		StartLine:                fn.StartLine,
		EndLine:                  fn.EndLine,
		CodeSnippet:              fn.Snippet,
		EstimatedJoulesPerRun:    energy.JoulesPerRun,
		EstimatedCostPer1000Runs: energy.CostPer1000Runs,
		EstimatedCostPer1MRuns:   energy.CostPer1MRuns,
	}
}

func (a *Analyzer) summary(filename string, functions, hotspots int) Summary {
	return Summary{
		Filename:              filename,
		Language:              string(parser.LanguagePython),
		FunctionCount:         functions,
		HotspotCount:          hotspots,
		ElectricityRatePerKWh: a.opts.ElectricityRatePerKWh,
		Note:                  Disclaimer,
	}
}

func (a *Analyzer) failure(filename string, err error) *Result {
	pe := syntax.AsParseError(err)
	resErr := &Error{
		Kind:    pe.Kind,
		Message: pe.Message,
		Detail:  pe.Error(),
	}
	if pe.Line > 0 {
		line := pe.Line
		resErr.Line = &line
	}
	if pe.Column > 0 {
		col := pe.Column
		resErr.Column = &col
	}

	return &Result{
		Summary:  a.summary(filename, 0, 0),
		Hotspots: []Hotspot{},
		Error:    resErr,
	}
}
