package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/EcoCode-hq/ecocode/internal/analysis"
)

func analyzeCmd(g *globalFlags) *cobra.Command {
	var (
		format string
		top    int
	)

	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Rank the functions of a single Python file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}

			project, err := loadProject(filepath.Dir(path))
			if err != nil {
				return err
			}

			opts, err := g.analysisOptions(cmd, project)
			if err != nil {
				return err
			}

			res := analysis.NewAnalyzer(opts, nil).Analyze(cmd.Context(), string(data), filepath.Base(path))

			out := cmd.OutOrStdout()
			if format == formatJSON {
				return writeJSON(out, res)
			}

			renderResult(out, res, top)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format (text, json)")
	cmd.Flags().IntVarP(&top, "top", "n", 0, "show only the N highest scoring functions")

	return cmd
}
