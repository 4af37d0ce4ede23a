package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/EcoCode-hq/ecocode/internal/analysis"
	"github.com/EcoCode-hq/ecocode/internal/config"
	"github.com/EcoCode-hq/ecocode/internal/repo"
	"github.com/EcoCode-hq/ecocode/internal/scan"
)

func scanCmd(g *globalFlags) *cobra.Command {
	var (
		repoURL     string
		branch      string
		format      string
		top         int
		minScore    int
		concurrency int
		failOver    int
	)

	cmd := &cobra.Command{
		Use:   "scan [DIR]",
		Short: "Rank functions across every Python file in a directory or repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			if repoURL != "" && len(args) > 0 {
				return fmt.Errorf("pass either DIR or --repo, not both")
			}

			ctx := cmd.Context()
			root := "."
			if len(args) > 0 {
				root = args[0]
			}

			var commit string
			if repoURL != "" {
				checkout, cleanup, err := cloneRepo(cmd, repoURL, branch)
				if err != nil {
					return err
				}
				defer cleanup()
				root = checkout.Path
				commit = checkout.CommitSHA
			} else if head, err := repo.Head(root); err == nil {
				commit = head.CommitSHA
			} else if !errors.Is(err, git.ErrRepositoryNotExists) {
				log.Debug().Err(err).Msg("could not read git HEAD")
			}

			project, err := loadProject(root)
			if err != nil {
				return err
			}

			opts, err := g.analysisOptions(cmd, project)
			if err != nil {
				return err
			}

			scanOpts := project.ScanOptions()
			if cmd.Flags().Changed("min-score") {
				scanOpts.MinScore = minScore
			}
			if cmd.Flags().Changed("concurrency") {
				scanOpts.Concurrency = concurrency
			}

			scanner := scan.NewScanner(analysis.NewAnalyzer(opts, nil), scanOpts)
			report, err := scanner.Scan(ctx, root)
			if err != nil {
				return err
			}
			report.Commit = commit

			out := cmd.OutOrStdout()
			if format == formatJSON {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				renderScan(out, report, top)
			}

			if failOver > 0 && report.Totals.TopScore >= failOver {
				return fmt.Errorf("top score %d reaches --fail-over %d", report.Totals.TopScore, failOver)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&repoURL, "repo", "r", "", "GitHub repository URL to clone and scan")
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "branch to clone (default branch when empty)")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format (text, json)")
	cmd.Flags().IntVarP(&top, "top", "n", 20, "show only the N highest scoring functions (0 for all)")
	cmd.Flags().IntVar(&minScore, "min-score", 0, "hide functions scoring below this")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 4, "files analyzed in parallel")
	cmd.Flags().IntVar(&failOver, "fail-over", 0, "exit non-zero when any function scores at least this (0 disables)")

	return cmd
}

// cloneRepo fetches a remote repository into the configured work directory
func cloneRepo(cmd *cobra.Command, repoURL, branch string) (*repo.Checkout, func(), error) {
	info, err := repo.ParseRepoURL(repoURL)
	if err != nil {
		return nil, nil, err
	}
	info.Branch = branch

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	svc := repo.NewService(cfg.WorkDir, cfg.GitHubToken)
	checkout, err := svc.Clone(cmd.Context(), info)
	if err != nil {
		return nil, nil, err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Cloned %s/%s at %s (%s)\n", info.Owner, info.Name, checkout.ShortSHA(), checkout.Branch)

	cleanup := func() {
		if err := svc.Remove(checkout); err != nil {
			log.Warn().Err(err).Str("path", checkout.Path).Msg("failed to remove checkout")
		}
	}
	return checkout, cleanup, nil
}

func loadProject(dir string) (*config.ProjectConfig, error) {
	project, err := config.LoadProjectConfig(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load project config: %w", err)
	}
	return project, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
