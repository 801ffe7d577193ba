// Package projectconfig provides the ProjectConfig struct and loader for
// .kraeval.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default values for project configuration. These are the single source of
// truth; New() references them and no other code should duplicate them.
const (
	DefaultDataDir    = "data/races/"
	DefaultResultsDir = "results/"
	DefaultPromptsDir = "prompts/"

	DefaultTrainRatio = 0.7
	DefaultValRatio   = 0.15
	DefaultTestRatio  = 0.15
	DefaultSplits     = 5

	DefaultWorkers = 4
	DefaultSeed    = 42
	DefaultECEBins = 10

	DefaultMinConsensus    = 2
	DefaultQuorum          = 2
	DefaultJuryConcurrency = 3
	DefaultClientTimeout   = 300

	DefaultGate = "strict"
)

// PathsConfig holds directory paths for race data, results, and prompts.
type PathsConfig struct {
	Data    string `yaml:"data,omitempty"`
	Results string `yaml:"results,omitempty"`
	Prompts string `yaml:"prompts,omitempty"`
}

// SplitConfig holds the temporal split ratios and fold count.
type SplitConfig struct {
	TrainRatio float64 `yaml:"train_ratio,omitempty"`
	ValRatio   float64 `yaml:"val_ratio,omitempty"`
	TestRatio  float64 `yaml:"test_ratio,omitempty"`
	Splits     int     `yaml:"splits,omitempty"`
}

// EvaluationConfig holds evaluation-run parameters.
type EvaluationConfig struct {
	Workers        int      `yaml:"workers,omitempty"`
	Seed           int64    `yaml:"seed,omitempty"`
	ECEBins        int      `yaml:"ece_bins,omitempty"`
	DeferThreshold *float64 `yaml:"defer_threshold,omitempty"`
}

// ClientSpec configures one jury LLM client.
type ClientSpec struct {
	Name    string   `yaml:"name"`
	Kind    string   `yaml:"kind"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	Weight  float64  `yaml:"weight,omitempty"`
	Timeout int      `yaml:"timeout,omitempty"`
}

// JuryConfig holds deliberation settings.
type JuryConfig struct {
	MinConsensus int          `yaml:"min_consensus,omitempty"`
	Quorum       int          `yaml:"quorum,omitempty"`
	Concurrency  int          `yaml:"concurrency,omitempty"`
	Clients      []ClientSpec `yaml:"clients,omitempty"`
}

// PromotionConfig holds champion/challenger gate settings.
type PromotionConfig struct {
	Gate string `yaml:"gate,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .kraeval.yaml.
type ProjectConfig struct {
	Paths      PathsConfig      `yaml:"paths,omitempty"`
	Split      SplitConfig      `yaml:"split,omitempty"`
	Evaluation EvaluationConfig `yaml:"evaluation,omitempty"`
	Jury       JuryConfig       `yaml:"jury,omitempty"`
	Promotion  PromotionConfig  `yaml:"promotion,omitempty"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Paths: PathsConfig{
			Data:    DefaultDataDir,
			Results: DefaultResultsDir,
			Prompts: DefaultPromptsDir,
		},
		Split: SplitConfig{
			TrainRatio: DefaultTrainRatio,
			ValRatio:   DefaultValRatio,
			TestRatio:  DefaultTestRatio,
			Splits:     DefaultSplits,
		},
		Evaluation: EvaluationConfig{
			Workers: DefaultWorkers,
			Seed:    DefaultSeed,
			ECEBins: DefaultECEBins,
		},
		Jury: JuryConfig{
			MinConsensus: DefaultMinConsensus,
			Quorum:       DefaultQuorum,
			Concurrency:  DefaultJuryConcurrency,
		},
		Promotion: PromotionConfig{
			Gate: DefaultGate,
		},
	}
}

// Load finds .kraeval.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil // no file found → return defaults
		}
		return nil, fmt.Errorf("loading .kraeval.yaml: %w", err)
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing .kraeval.yaml: %w", err)
	}

	// Merge file values onto defaults.
	mergeConfig(cfg, &fileCfg)
	return cfg, nil
}

// findConfigFile walks up from dir looking for .kraeval.yaml (max 10
// levels). Returns os.ErrNotExist if no config file is found. Propagates
// real I/O errors (e.g. permission denied) instead of swallowing them.
func findConfigFile(dir string) ([]byte, error) {
	// Convert to absolute path so filepath.Dir(".") walks correctly.
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, ".kraeval.yaml")
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst. Jury clients
// replace the default set wholesale when present.
func mergeConfig(dst, src *ProjectConfig) {
	// Paths
	if src.Paths.Data != "" {
		dst.Paths.Data = src.Paths.Data
	}
	if src.Paths.Results != "" {
		dst.Paths.Results = src.Paths.Results
	}
	if src.Paths.Prompts != "" {
		dst.Paths.Prompts = src.Paths.Prompts
	}

	// Split: the three ratios move together, so a file that sets any
	// ratio must set all of them.
	if src.Split.TrainRatio != 0 || src.Split.ValRatio != 0 || src.Split.TestRatio != 0 {
		dst.Split.TrainRatio = src.Split.TrainRatio
		dst.Split.ValRatio = src.Split.ValRatio
		dst.Split.TestRatio = src.Split.TestRatio
	}
	if src.Split.Splits != 0 {
		dst.Split.Splits = src.Split.Splits
	}

	// Evaluation
	if src.Evaluation.Workers != 0 {
		dst.Evaluation.Workers = src.Evaluation.Workers
	}
	if src.Evaluation.Seed != 0 {
		dst.Evaluation.Seed = src.Evaluation.Seed
	}
	if src.Evaluation.ECEBins != 0 {
		dst.Evaluation.ECEBins = src.Evaluation.ECEBins
	}
	if src.Evaluation.DeferThreshold != nil {
		dst.Evaluation.DeferThreshold = src.Evaluation.DeferThreshold
	}

	// Jury
	if src.Jury.MinConsensus != 0 {
		dst.Jury.MinConsensus = src.Jury.MinConsensus
	}
	if src.Jury.Quorum != 0 {
		dst.Jury.Quorum = src.Jury.Quorum
	}
	if src.Jury.Concurrency != 0 {
		dst.Jury.Concurrency = src.Jury.Concurrency
	}
	if len(src.Jury.Clients) > 0 {
		dst.Jury.Clients = src.Jury.Clients
	}

	// Promotion
	if src.Promotion.Gate != "" {
		dst.Promotion.Gate = src.Promotion.Gate
	}
}
