// Package report builds and validates v2 evaluation report artifacts.
//
// A report is a plain JSON-compatible map so that validation, persistence,
// and promotion tooling can treat it uniformly regardless of which fields
// upstream stages managed to produce. BuildV2 never fails: missing or
// partial inputs become zero-valued fields rather than errors.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/coyaSONG/kra-analysis/internal/leakage"
	"github.com/coyaSONG/kra-analysis/internal/metrics"
	"github.com/coyaSONG/kra-analysis/internal/models"
	"github.com/coyaSONG/kra-analysis/schemas"
)

// Version is the report schema version this package produces.
const Version = "v2"

// gzipThreshold is the serialized size above which WriteArtifact also
// writes a gzip-compressed copy. Large detailed-result archives dominate
// report size; compressing them keeps results directories manageable.
const gzipThreshold = 1 << 20

// requiredKeys are the top-level keys every v2 report must carry.
var requiredKeys = []string{
	"report_version",
	"prompt_version",
	"test_date",
	"total_races",
	"valid_predictions",
	"successful_predictions",
	"success_rate",
	"average_correct_horses",
	"total_correct_horses",
	"avg_execution_time",
	"error_stats",
	"detailed_results",
	"metrics_v2",
	"leakage_check",
	"promotion_context",
}

// requiredMetricKeys are the keys metrics_v2 must carry.
var requiredMetricKeys = []string{
	"log_loss",
	"brier",
	"ece",
	"topk",
	"roi",
	"coverage",
	"deferred_count",
	"samples",
	"json_valid_rate",
}

// defaultPrinter is used to format schema validation error messages.
var defaultPrinter = message.NewPrinter(language.English)

// reportSchema is the compiled JSON Schema for v2 reports.
var reportSchema *jsonschema.Schema

func init() {
	reportSchema = mustCompileSchema(schemas.ReportSchemaJSON, "report.schema.json")
}

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	var schemaDoc any
	if err := json.Unmarshal([]byte(raw), &schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// Summary carries the run-level aggregates BuildV2 folds into the report.
type Summary struct {
	TestDate              string         `json:"test_date"`
	TotalRaces            int            `json:"total_races"`
	ValidPredictions      int            `json:"valid_predictions"`
	SuccessfulPredictions int            `json:"successful_predictions"`
	SuccessRate           float64        `json:"success_rate"`
	AverageCorrectHorses  float64        `json:"average_correct_horses"`
	TotalCorrectHorses    int            `json:"total_correct_horses"`
	AvgExecutionTimeMs    float64        `json:"avg_execution_time"`
	ErrorStats            map[string]int `json:"error_stats"`
}

// BuildV2 assembles the fixed-shape v2 report map. Zero-valued summary or
// metric fields pass through as zeros so a partially failed run still
// yields a validatable artifact. The returned map is freshly allocated and
// shares nothing with the inputs except the detailed-result payloads.
func BuildV2(promptVersion string, summary Summary, bundle metrics.Bundle, results []models.DetailedResult, leak leakage.Report, promotionContext map[string]any) map[string]any {
	topk := make(map[string]any, len(bundle.TopK))
	for k, v := range bundle.TopK {
		topk[k] = v
	}
	errorStats := make(map[string]any, len(summary.ErrorStats))
	for k, v := range summary.ErrorStats {
		errorStats[k] = v
	}

	var promoCtx any
	if promotionContext != nil {
		promoCtx = promotionContext
	}

	return map[string]any{
		"report_version":         Version,
		"prompt_version":         promptVersion,
		"test_date":              summary.TestDate,
		"total_races":            summary.TotalRaces,
		"valid_predictions":      summary.ValidPredictions,
		"successful_predictions": summary.SuccessfulPredictions,
		"success_rate":           summary.SuccessRate,
		"average_correct_horses": summary.AverageCorrectHorses,
		"total_correct_horses":   summary.TotalCorrectHorses,
		"avg_execution_time":     summary.AvgExecutionTimeMs,
		"error_stats":            errorStats,
		"detailed_results":       resultsToJSON(results),
		"metrics_v2": map[string]any{
			"log_loss": bundle.LogLoss,
			"brier":    bundle.Brier,
			"ece":      bundle.ECE,
			"topk":     topk,
			"roi": map[string]any{
				"avg_roi": bundle.ROI.AvgROI,
				"bets":    bundle.ROI.Bets,
				"wins":    bundle.ROI.Wins,
			},
			"coverage":        bundle.Coverage,
			"deferred_count":  bundle.DeferredCount,
			"samples":         bundle.Samples,
			"json_valid_rate": bundle.JSONValidRate,
		},
		"leakage_check": map[string]any{
			"passed":           leak.Passed,
			"issues":           stringsOrEmpty(leak.Issues),
			"checked_races":    leak.CheckedRaces,
			"forbidden_fields": stringsOrEmpty(leak.ForbiddenFields),
		},
		"promotion_context": promoCtx,
	}
}

// ValidateV2 checks a report for structural completeness: every required
// top-level key, every required metrics_v2 key, and a leakage_check map
// carrying both passed and issues. It never mutates the input.
func ValidateV2(report map[string]any) (bool, []string) {
	var errs []string

	if report == nil {
		return false, []string{"report is nil"}
	}

	for _, key := range requiredKeys {
		if _, ok := report[key]; !ok {
			errs = append(errs, fmt.Sprintf("missing required key: %q", key))
		}
	}

	if raw, ok := report["metrics_v2"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			errs = append(errs, "metrics_v2 is not an object")
		} else {
			for _, key := range requiredMetricKeys {
				if _, ok := m[key]; !ok {
					errs = append(errs, fmt.Sprintf("metrics_v2 missing required key: %q", key))
				}
			}
		}
	}

	if raw, ok := report["leakage_check"]; ok {
		lc, ok := raw.(map[string]any)
		if !ok {
			errs = append(errs, "leakage_check is not an object")
		} else {
			if _, ok := lc["passed"]; !ok {
				errs = append(errs, `leakage_check missing required key: "passed"`)
			}
			if _, ok := lc["issues"]; !ok {
				errs = append(errs, `leakage_check missing required key: "issues"`)
			}
		}
	}

	return len(errs) == 0, errs
}

// ValidateSerialized validates raw report JSON against the embedded
// report schema. Returns nil when the document conforms.
func ValidateSerialized(data []byte) []string {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return []string{fmt.Sprintf("JSON parse error: %v", err)}
	}

	err := reportSchema.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var errs []string
	collectSchemaErrors(ve, &errs)
	return errs
}

// WriteArtifact serializes the report to dir/filename as indented UTF-8
// JSON, validating it first. Reports above gzipThreshold also get a
// compressed sibling with a .gz suffix. Returns the plain artifact path.
func WriteArtifact(report map[string]any, dir, filename string) (string, error) {
	if ok, errs := ValidateV2(report); !ok {
		return "", fmt.Errorf("report failed validation: %v", errs)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling report: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report dir: %w", err)
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	if len(data) >= gzipThreshold {
		if err := writeGzip(path+".gz", data); err != nil {
			return "", fmt.Errorf("writing compressed report: %w", err)
		}
	}

	return path, nil
}

func writeGzip(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(f)
	if _, err := zw.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(defaultPrinter)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}

// resultsToJSON converts detailed results into generic JSON values so the
// report map round-trips cleanly through encoding/json and the schema
// validator sees the same shapes either way.
func resultsToJSON(results []models.DetailedResult) []any {
	out := make([]any, 0, len(results))
	for _, r := range results {
		data, err := json.Marshal(r)
		if err != nil {
			continue
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

func stringsOrEmpty(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}
