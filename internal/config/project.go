package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/EcoCode-hq/ecocode/internal/analysis"
	"github.com/EcoCode-hq/ecocode/internal/scan"
)

// ProjectConfig represents a .ecocode.yaml file in a repository
type ProjectConfig struct {
	Version string `yaml:"version"`

	// File patterns (doublestar syntax, relative to the scan root)
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`

	// Heuristic overrides
	Energy EnergyConfig `yaml:"energy,omitempty"`

	// Identifiers treated as expensive calls
	ExpensiveCalls []string `yaml:"expensive_calls,omitempty"`

	// Hotspots below this score are hidden in reports
	MinScore int `yaml:"min_score,omitempty"`

	// Files analyzed in parallel
	Concurrency int `yaml:"concurrency,omitempty"`
}

// EnergyConfig overrides the energy projection constants
type EnergyConfig struct {
	ElectricityRatePerKWh *float64 `yaml:"electricity_rate_per_kwh,omitempty"`
	JoulesPerScorePoint   *float64 `yaml:"joules_per_score_point,omitempty"`
}

// DefaultProjectConfig returns sensible defaults
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Version: "1.0",
		Include: []string{"**/*.py"},
		Exclude: []string{
			"**/.git/**",
			"**/.venv/**",
			"**/venv/**",
			"**/__pycache__/**",
			"**/site-packages/**",
			"**/node_modules/**",
		},
		Concurrency: 4,
	}
}

// LoadProjectConfig loads a .ecocode.yaml from the given directory
func LoadProjectConfig(repoPath string) (*ProjectConfig, error) {
	configPath := filepath.Join(repoPath, ".ecocode.yaml")

	// Check if config exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Also try .ecocode.yml
		configPath = filepath.Join(repoPath, ".ecocode.yml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return DefaultProjectConfig(), nil
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg := DefaultProjectConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Apply overlays project settings onto engine options
func (p *ProjectConfig) Apply(opts analysis.Options) analysis.Options {
	if p.Energy.ElectricityRatePerKWh != nil {
		opts.ElectricityRatePerKWh = *p.Energy.ElectricityRatePerKWh
	}
	if p.Energy.JoulesPerScorePoint != nil {
		opts.JoulesPerScorePoint = *p.Energy.JoulesPerScorePoint
	}
	if len(p.ExpensiveCalls) > 0 {
		opts.ExpensiveCalls = append([]string(nil), p.ExpensiveCalls...)
	}
	return opts
}

// ScanOptions returns the tree scan settings of the project
func (p *ProjectConfig) ScanOptions() scan.Options {
	return scan.Options{
		Include:     p.Include,
		Exclude:     p.Exclude,
		MinScore:    p.MinScore,
		Concurrency: p.Concurrency,
	}
}
