package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/EcoCode-hq/ecocode/internal/analysis"
	"github.com/EcoCode-hq/ecocode/internal/config"
	"github.com/EcoCode-hq/ecocode/internal/jobs"
	"github.com/EcoCode-hq/ecocode/internal/repo"
	"github.com/EcoCode-hq/ecocode/internal/scan"
)

// Cloner fetches repositories into local checkouts
type Cloner interface {
	Clone(ctx context.Context, info *repo.Info) (*repo.Checkout, error)
	Remove(c *repo.Checkout) error
}

// ScanWorker clones a repository, scans its Python files and stores the
// ranked report on the job
type ScanWorker struct {
	*BaseWorker
	cloner Cloner
	opts   analysis.Options
}

// NewScanWorker wires the scan handler into base. Project files found in
// the checkout override opts.
func NewScanWorker(base *BaseWorker, cloner Cloner, opts analysis.Options) *ScanWorker {
	w := &ScanWorker{BaseWorker: base, cloner: cloner, opts: opts}
	base.handler = w.handleJob
	return w
}

func (w *ScanWorker) handleJob(ctx context.Context, job *jobs.Job) error {
	info, err := repo.ParseRepoURL(job.RepoURL)
	if err != nil {
		return err
	}
	info.Branch = job.Branch

	checkout, err := w.cloner.Clone(ctx, info)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.cloner.Remove(checkout); err != nil {
			log.Warn().Err(err).Str("path", checkout.Path).Msg("failed to remove checkout")
		}
	}()

	project, err := config.LoadProjectConfig(checkout.Path)
	if err != nil {
		return fmt.Errorf("failed to load project config: %w", err)
	}

	scanner := scan.NewScanner(analysis.NewAnalyzer(project.Apply(w.opts), nil), project.ScanOptions())
	report, err := scanner.Scan(ctx, checkout.Path)
	if err != nil {
		return err
	}

	// the checkout is temporary; report the repository instead
	report.Root = info.Owner + "/" + info.Name
	report.Commit = checkout.CommitSHA

	log.Info().
		Str("job_id", job.ID.String()).
		Str("commit", checkout.ShortSHA()).
		Int("files", report.Totals.Files).
		Int("top_score", report.Totals.TopScore).
		Msg("repository scanned")

	return w.store.Complete(ctx, job.ID, checkout.CommitSHA, report)
}
