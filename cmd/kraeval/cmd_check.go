package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/coyaSONG/kra-analysis/internal/dataset"
	"github.com/coyaSONG/kra-analysis/internal/leakage"
	"github.com/coyaSONG/kra-analysis/internal/models"
	"github.com/spf13/cobra"
)

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <data-dir | report.json>",
		Short: "Scan race data or a report for post-race leakage",
		Long: `Scan for post-race information that must not reach a predictor.

Given a directory, every race JSON file in it is scanned. Given a v2
report file, its archived detailed results are scanned. Any forbidden
field (finish positions, result times, dividends) fails the check with
exit code 1.`,
		Args: cobra.ExactArgs(1),
		RunE: checkCommandE,
	}
	return cmd
}

func checkCommandE(_ *cobra.Command, args []string) error {
	path := args[0]

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var rep leakage.Report
	if info.IsDir() {
		rep, err = checkDataDir(path)
	} else {
		rep, err = checkReportFile(path)
	}
	if err != nil {
		return err
	}

	printLeakageReport(rep)

	if !rep.Passed {
		return &GateFailureError{
			Message: fmt.Sprintf("leakage check failed: %d issue(s) found", len(rep.Issues)),
		}
	}
	return nil
}

func checkDataDir(dir string) (leakage.Report, error) {
	races, err := dataset.LoadRaceDir(dir)
	if err != nil {
		return leakage.Report{}, fmt.Errorf("failed to load races: %w", err)
	}
	if len(races) == 0 {
		return leakage.Report{}, fmt.Errorf("no races found in %s", dir)
	}

	// Reuse the detailed-result scanner by wrapping each race payload.
	results := make([]models.DetailedResult, 0, len(races))
	for _, race := range races {
		results = append(results, models.DetailedResult{
			RaceID:   race.RaceID,
			RaceData: race.Data,
		})
	}
	return leakage.CheckDetailedResults(results), nil
}

func checkReportFile(path string) (leakage.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return leakage.Report{}, fmt.Errorf("failed to read report: %w", err)
	}

	var doc struct {
		DetailedResults []models.DetailedResult `json:"detailed_results"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return leakage.Report{}, fmt.Errorf("failed to parse report: %w", err)
	}
	if len(doc.DetailedResults) == 0 {
		return leakage.Report{}, fmt.Errorf("%s carries no detailed results to scan", path)
	}
	return leakage.CheckDetailedResults(doc.DetailedResults), nil
}

func printLeakageReport(rep leakage.Report) {
	status := "PASSED"
	if !rep.Passed {
		status = "FAILED"
	}
	fmt.Printf("Leakage check: %s\n", status)
	fmt.Printf("Races scanned: %d\n", rep.CheckedRaces)
	fmt.Printf("Forbidden fields: %s\n", strings.Join(rep.ForbiddenFields, ", "))
	if len(rep.Issues) > 0 {
		fmt.Println("\nIssues:")
		for _, issue := range rep.Issues {
			fmt.Printf("  - %s\n", issue)
		}
	}
	fmt.Println()
}
