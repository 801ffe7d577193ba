package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/coyaSONG/kra-analysis/internal/projectconfig"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func newInitCommand() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a kraeval project",
		Long: `Initialize a kraeval project directory.

Creates a .kraeval.yaml config with defaults plus the race data, results,
and prompts directories. Use --interactive to run a guided wizard that
collects the paths and evaluation settings.

If no directory is specified, the current directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return initCommandE(cmd, args, interactive)
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Run guided project setup wizard")

	return cmd
}

func initCommandE(cmd *cobra.Command, args []string, interactive bool) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	cfg := projectconfig.New()
	if interactive {
		collected, err := runProjectWizard(cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return fmt.Errorf("wizard failed: %w", err)
		}
		cfg = collected
	}

	for _, sub := range []string{cfg.Paths.Data, cfg.Paths.Results, cfg.Paths.Prompts} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", sub, err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	configPath := filepath.Join(dir, ".kraeval.yaml")
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Initialized kraeval project:")                          //nolint:errcheck
	fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", configPath)                                     //nolint:errcheck
	fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", filepath.Join(dir, cfg.Paths.Data))             //nolint:errcheck
	fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", filepath.Join(dir, cfg.Paths.Results))          //nolint:errcheck
	fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", filepath.Join(dir, cfg.Paths.Prompts))          //nolint:errcheck
	fmt.Fprintln(cmd.OutOrStdout(), "\nAdd jury clients under jury.clients to run the full pipeline.") //nolint:errcheck
	return nil
}

// runProjectWizard runs an interactive huh form collecting the project
// layout and evaluation settings on top of the defaults.
func runProjectWizard(in io.Reader, out io.Writer) (*projectconfig.ProjectConfig, error) {
	cfg := projectconfig.New()

	var (
		dataDir    = cfg.Paths.Data
		resultsDir = cfg.Paths.Results
		promptsDir = cfg.Paths.Prompts
		workersRaw = strconv.Itoa(cfg.Evaluation.Workers)
		splitsRaw  = strconv.Itoa(cfg.Split.Splits)
		gate       = cfg.Promotion.Gate
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Race data directory").
				Description("Where collector JSON race files live").
				Value(&dataDir).
				Validate(requireNonEmpty("data directory")),
			huh.NewInput().
				Title("Results directory").
				Description("Where reports and ground-truth results are stored").
				Value(&resultsDir).
				Validate(requireNonEmpty("results directory")),
			huh.NewInput().
				Title("Prompts directory").
				Description("Where versioned prompt files live").
				Value(&promptsDir).
				Validate(requireNonEmpty("prompts directory")),
			huh.NewInput().
				Title("Workers").
				Description("Concurrent race evaluations").
				Value(&workersRaw).
				Validate(requirePositiveInt("workers")),
			huh.NewInput().
				Title("Walk-forward folds").
				Value(&splitsRaw).
				Validate(requirePositiveInt("folds")),
			huh.NewSelect[string]().
				Title("Promotion gate").
				Options(
					huh.NewOption("strict", "strict"),
				).
				Value(&gate),
		),
	).
		WithInput(in).
		WithOutput(out)

	// Use accessible mode for non-TTY input (e.g., tests, piped input).
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return nil, err
	}

	cfg.Paths.Data = strings.TrimSpace(dataDir)
	cfg.Paths.Results = strings.TrimSpace(resultsDir)
	cfg.Paths.Prompts = strings.TrimSpace(promptsDir)
	cfg.Evaluation.Workers, _ = strconv.Atoi(strings.TrimSpace(workersRaw))
	cfg.Split.Splits, _ = strconv.Atoi(strings.TrimSpace(splitsRaw))
	cfg.Promotion.Gate = gate
	return cfg, nil
}

func requireNonEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func requirePositiveInt(field string) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n < 1 {
			return fmt.Errorf("%s must be a positive integer", field)
		}
		return nil
	}
}
