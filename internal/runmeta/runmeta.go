// Package runmeta records the provenance of an evaluation run so results
// can be reproduced: the code revision, prompt version, data snapshot,
// and seed that produced a report.
package runmeta

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RunMetadata identifies one evaluation run. Every field is required for
// a run to count as reproducible; Seed may legitimately be 0.
type RunMetadata struct {
	CommitSHA      string `json:"commit_sha"`
	PromptVersion  string `json:"prompt_version"`
	DataSnapshotID string `json:"data_snapshot_id"`
	Seed           int64  `json:"seed"`
	Mode           string `json:"mode"`
	CreatedAt      string `json:"created_at"`
}

// New fills in CreatedAt with the current UTC time in RFC 3339.
func New(commitSHA, promptVersion, dataSnapshotID string, seed int64, mode string) RunMetadata {
	return RunMetadata{
		CommitSHA:      commitSHA,
		PromptVersion:  promptVersion,
		DataSnapshotID: dataSnapshotID,
		Seed:           seed,
		Mode:           mode,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	}
}

// Validate reports every missing field. A string field is missing when it
// is empty after trimming whitespace.
func (m RunMetadata) Validate() error {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"commit_sha", m.CommitSHA},
		{"prompt_version", m.PromptVersion},
		{"data_snapshot_id", m.DataSnapshotID},
		{"mode", m.Mode},
		{"created_at", m.CreatedAt},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("run metadata missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// WriteArtifact validates the metadata and writes it as indented UTF-8
// JSON to dir/filename, creating dir as needed. Returns the written path.
func WriteArtifact(m RunMetadata, dir, filename string) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling run metadata: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating metadata dir: %w", err)
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing run metadata: %w", err)
	}
	return path, nil
}
