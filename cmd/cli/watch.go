package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/EcoCode-hq/ecocode/internal/analysis"
	"github.com/EcoCode-hq/ecocode/internal/scan"
)

func watchCmd(g *globalFlags) *cobra.Command {
	var (
		debounce time.Duration
		top      int
	)

	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Re-analyze Python files in a directory as they change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			if !isDir(root) {
				return fmt.Errorf("%s is not a directory", root)
			}

			project, err := loadProject(root)
			if err != nil {
				return err
			}

			opts, err := g.analysisOptions(cmd, project)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			scanner := scan.NewScanner(analysis.NewAnalyzer(opts, nil), project.ScanOptions())
			out := cmd.OutOrStdout()

			report, err := scanner.Scan(ctx, root)
			if err != nil {
				return err
			}
			renderScan(out, report, top)

			w, err := scan.NewWatcher(scanner, root, debounce)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", root)

			return w.Run(ctx, func(fr scan.FileResult) {
				fmt.Fprintln(out)
				renderResult(out, fr.Result, top)
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", scan.DefaultDebounce, "wait for writes to settle this long")
	cmd.Flags().IntVarP(&top, "top", "n", 10, "show only the N highest scoring functions (0 for all)")

	return cmd
}
