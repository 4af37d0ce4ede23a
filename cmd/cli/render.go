package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/EcoCode-hq/ecocode/internal/analysis"
	"github.com/EcoCode-hq/ecocode/internal/nats"
	"github.com/EcoCode-hq/ecocode/internal/scan"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// Score bands for coloring
const (
	highScore   = 60
	mediumScore = 30
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8a8f98"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)
	highStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)
	mediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	lowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	ioStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3"))
)

func checkFormat(format string) error {
	switch format {
	case formatText, formatJSON:
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func scoreStyle(score int) lipgloss.Style {
	switch {
	case score >= highScore:
		return highStyle
	case score >= mediumScore:
		return mediumStyle
	default:
		return lowStyle
	}
}

func formatScore(score int) string {
	return scoreStyle(score).Render(fmt.Sprintf("%3d", score))
}

func formatCategory(c analysis.Category) string {
	label := fmt.Sprintf("%-3s", c)
	if c == analysis.CategoryIO {
		return ioStyle.Render(label)
	}
	return mutedStyle.Render(label)
}

// renderResult prints one file's hotspots. top <= 0 prints all of them.
func renderResult(w io.Writer, res *analysis.Result, top int) {
	s := res.Summary

	if res.Failed() {
		fmt.Fprintf(w, "%s  %s\n", titleStyle.Render(s.Filename), errorStyle.Render(res.Error.Detail))
		return
	}

	fmt.Fprintf(w, "%s  %s\n",
		titleStyle.Render(s.Filename),
		mutedStyle.Render(fmt.Sprintf("%d functions, rate %g/kWh", s.FunctionCount, s.ElectricityRatePerKWh)))

	hotspots := res.Hotspots
	if top > 0 && top < len(hotspots) {
		hotspots = hotspots[:top]
	}

	for _, h := range hotspots {
		fmt.Fprintf(w, "  %s  %s  %s %s\n",
			formatScore(h.Score),
			formatCategory(h.Category),
			h.Name,
			mutedStyle.Render(fmt.Sprintf("(lines %d-%d)", h.StartLine, h.EndLine)))
		if len(h.Reasons) > 0 {
			fmt.Fprintf(w, "            %s\n", strings.Join(h.Reasons, "; "))
		}
		fmt.Fprintf(w, "            %s\n", mutedStyle.Render(fmt.Sprintf(
			"%g J/run, %g per 1000 runs, %g per 1M runs",
			h.EstimatedJoulesPerRun, h.EstimatedCostPer1000Runs, h.EstimatedCostPer1MRuns)))
	}

	if hidden := len(res.Hotspots) - len(hotspots); hidden > 0 {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  ... %d more", hidden)))
	}
}

// renderScan prints the cross-file ranking and totals
func renderScan(w io.Writer, report *scan.Report, top int) {
	header := report.Root
	if report.Commit != "" {
		short := report.Commit
		if len(short) > 8 {
			short = short[:8]
		}
		header = fmt.Sprintf("%s @ %s", header, short)
	}
	fmt.Fprintln(w, titleStyle.Render(header))

	t := report.Totals
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf(
		"%d files, %d functions, %d failed to parse, %g J/run total, %g per 1000 runs total",
		t.Files, t.Functions, t.Failed, t.JoulesPerRun, t.CostPer1000Runs)))

	ranked := report.Top(top)
	if len(ranked) == 0 {
		fmt.Fprintln(w, "  no functions to report")
	}
	for _, h := range ranked {
		fmt.Fprintf(w, "  %s  %s  %s %s\n",
			formatScore(h.Score),
			formatCategory(h.Category),
			h.Name,
			mutedStyle.Render(fmt.Sprintf("%s:%d", h.File, h.StartLine)))
		if len(h.Reasons) > 0 {
			fmt.Fprintf(w, "            %s\n", strings.Join(h.Reasons, "; "))
		}
	}
	if hidden := len(report.Ranking) - len(ranked); hidden > 0 {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  ... %d more", hidden)))
	}

	for _, fr := range report.Files {
		if fr.Result.Failed() {
			fmt.Fprintf(w, "  %s %s\n", errorStyle.Render(fr.Path), fr.Result.Error.Detail)
		}
	}
}

func renderEvent(w io.Writer, ev nats.ReportEvent) {
	status := formatScore(ev.TopScore)
	if ev.ErrorKind != "" {
		status = errorStyle.Render(ev.ErrorKind)
	}

	fmt.Fprintf(w, "%s  %s  %s %s\n",
		mutedStyle.Render(ev.AnalyzedAt.Local().Format("15:04:05")),
		status,
		ev.Filename,
		mutedStyle.Render(fmt.Sprintf("(%d functions)", ev.FunctionCount)))
}
