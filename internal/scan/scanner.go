// Package scan analyzes every matching Python file under a directory tree
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/EcoCode-hq/ecocode/internal/analysis"
)

// Options controls which files are scanned and how
type Options struct {
	// Include and Exclude are doublestar patterns over slash-separated
	// paths relative to the scan root
	Include []string
	Exclude []string

	// MinScore drops hotspots below this score from the ranking
	MinScore int

	// Concurrency bounds parallel file analysis
	Concurrency int
}

// DefaultOptions returns options matching every .py file
func DefaultOptions() Options {
	return Options{
		Include:     []string{"**/*.py"},
		Concurrency: 4,
	}
}

// FileResult is the analysis of one file
type FileResult struct {
	Path   string           `json:"path"`
	Result *analysis.Result `json:"result"`
}

// RankedHotspot is a hotspot tagged with its file
type RankedHotspot struct {
	File string `json:"file"`
	analysis.Hotspot
}

// Totals aggregates a scan
type Totals struct {
	Files           int     `json:"files"`
	Failed          int     `json:"failed"`
	Functions       int     `json:"functions"`
	Hotspots        int     `json:"hotspots"`
	TopScore        int     `json:"top_score"`
	JoulesPerRun    float64 `json:"estimated_joules_per_run"`
	CostPer1000Runs float64 `json:"estimated_cost_per_1000_runs"`
}

// Report is the outcome of scanning a tree
type Report struct {
	Root    string          `json:"root"`
	Commit  string          `json:"commit,omitempty"`
	Files   []FileResult    `json:"files"`
	Ranking []RankedHotspot `json:"ranking"`
	Totals  Totals          `json:"totals"`
}

// Top returns at most n ranked hotspots. n <= 0 returns all of them.
func (r *Report) Top(n int) []RankedHotspot {
	if n <= 0 || n >= len(r.Ranking) {
		return r.Ranking
	}
	return r.Ranking[:n]
}

// Scanner runs the analyzer over a directory tree
type Scanner struct {
	analyzer *analysis.Analyzer
	opts     Options
}

// NewScanner creates a scanner
func NewScanner(a *analysis.Analyzer, opts Options) *Scanner {
	if len(opts.Include) == 0 {
		opts.Include = DefaultOptions().Include
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultOptions().Concurrency
	}
	return &Scanner{analyzer: a, opts: opts}
}

// Included reports whether a slash-separated relative file path is scanned
func (s *Scanner) Included(rel string) bool {
	return matchAny(s.opts.Include, rel) && !s.excluded(rel)
}

func (s *Scanner) excluded(rel string) bool {
	return matchAny(s.opts.Exclude, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// Collect lists the files under root to be scanned, sorted
func (s *Scanner) Collect(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && s.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type().IsRegular() && s.Included(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

// AnalyzeFile analyzes one file given relative to root
func (s *Scanner) AnalyzeFile(ctx context.Context, root, rel string) (FileResult, error) {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return FileResult{}, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	return FileResult{
		Path:   rel,
		Result: s.analyzer.Analyze(ctx, string(data), rel),
	}, nil
}

// Scan analyzes every matching file under root in parallel
func (s *Scanner) Scan(ctx context.Context, root string) (*Report, error) {
	files, err := s.Collect(root)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("root", root).Int("files", len(files)).Msg("scanning")

	results := make([]FileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fr, err := s.AnalyzeFile(gctx, root, rel)
			if err != nil {
				return err
			}
			results[i] = fr
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := s.buildReport(root, results)

	log.Info().
		Str("root", root).
		Int("files", report.Totals.Files).
		Int("failed", report.Totals.Failed).
		Int("hotspots", report.Totals.Hotspots).
		Msg("scan complete")

	return report, nil
}

// buildReport ranks hotspots across files. Results must be ordered by path;
// ties keep that order.
func (s *Scanner) buildReport(root string, results []FileResult) *Report {
	report := &Report{
		Root:    root,
		Files:   results,
		Ranking: []RankedHotspot{},
	}

	for _, fr := range results {
		report.Totals.Files++
		if fr.Result.Failed() {
			report.Totals.Failed++
			continue
		}

		report.Totals.Functions += fr.Result.Summary.FunctionCount
		report.Totals.Hotspots += fr.Result.Summary.HotspotCount
		report.Totals.TopScore = max(report.Totals.TopScore, fr.Result.TopScore())

		for _, h := range fr.Result.Hotspots {
			report.Totals.JoulesPerRun += h.EstimatedJoulesPerRun
			report.Totals.CostPer1000Runs += h.EstimatedCostPer1000Runs
			if h.Score >= s.opts.MinScore {
				report.Ranking = append(report.Ranking, RankedHotspot{File: fr.Path, Hotspot: h})
			}
		}
	}

	slices.SortStableFunc(report.Ranking, func(a, b RankedHotspot) int {
		return b.Score - a.Score
	})

	report.Totals.JoulesPerRun = analysis.Round(report.Totals.JoulesPerRun, 4)
	report.Totals.CostPer1000Runs = analysis.Round(report.Totals.CostPer1000Runs, 6)

	return report
}
