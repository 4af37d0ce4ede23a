package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/EcoCode-hq/ecocode/internal/analysis"
	"github.com/EcoCode-hq/ecocode/internal/config"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand
type globalFlags struct {
	rate           float64
	joulesPerPoint float64
	verbose        bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "ecocode",
		Short:         "EcoCode - static energy hotspot analysis for Python",
		Long:          `EcoCode ranks Python functions by an estimated energy cost derived from their syntax alone.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(g.verbose)
		},
	}

	rootCmd.PersistentFlags().Float64Var(&g.rate, "rate", 0, "electricity rate per kWh (overrides ELECTRICITY_RATE_PER_KWH)")
	rootCmd.PersistentFlags().Float64Var(&g.joulesPerPoint, "joules-per-point", 0, "joules per score point (overrides JOULES_PER_SCORE_POINT)")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(analyzeCmd(g))
	rootCmd.AddCommand(scanCmd(g))
	rootCmd.AddCommand(watchCmd(g))
	rootCmd.AddCommand(eventsCmd())

	return rootCmd
}

func setupLogging(verbose bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// analysisOptions layers environment configuration, the project file and
// command-line flags, in that order
func (g *globalFlags) analysisOptions(cmd *cobra.Command, project *config.ProjectConfig) (analysis.Options, error) {
	cfg, err := config.Load()
	if err != nil {
		return analysis.Options{}, err
	}

	opts := cfg.AnalysisOptions()
	if project != nil {
		opts = project.Apply(opts)
	}

	if cmd.Flags().Changed("rate") {
		if g.rate < 0 {
			return analysis.Options{}, fmt.Errorf("--rate must not be negative")
		}
		opts.ElectricityRatePerKWh = g.rate
	}
	if cmd.Flags().Changed("joules-per-point") {
		if g.joulesPerPoint < 0 {
			return analysis.Options{}, fmt.Errorf("--joules-per-point must not be negative")
		}
		opts.JoulesPerScorePoint = g.joulesPerPoint
	}

	return opts, nil
}
