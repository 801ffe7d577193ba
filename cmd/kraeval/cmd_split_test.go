package main

import (
	"fmt"
	"testing"

	"github.com/coyaSONG/kra-analysis/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetSplitGlobals() {
	splitDataDir = ""
	splitFolds = 0
}

func writeRaceFiles(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		writeFile(t, dir, fmt.Sprintf("race_%03d.json", i), fmt.Sprintf(`{
			"race_id": "race_1_202506%02d_1",
			"race_date": "202506%02d",
			"horses": [{"horse_no": 1, "win_odds": 2.5}]
		}`, i+1, i+1))
	}
}

func TestSplitCommand_PrintsFolds(t *testing.T) {
	resetSplitGlobals()

	dir := t.TempDir()
	writeRaceFiles(t, dir, 20)

	cmd := newSplitCommand()
	cmd.SetArgs([]string{"--data-dir", dir, "--splits", "3"})
	assert.NoError(t, cmd.Execute())
}

func TestSplitCommand_EmptyDataDir(t *testing.T) {
	resetSplitGlobals()

	cmd := newSplitCommand()
	cmd.SetArgs([]string{"--data-dir", t.TempDir()})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no races")
}

func TestSplitCommand_MissingDataDir(t *testing.T) {
	resetSplitGlobals()

	cmd := newSplitCommand()
	cmd.SetArgs([]string{"--data-dir", "/nonexistent/races"})
	assert.Error(t, cmd.Execute())
}

func TestDateRange(t *testing.T) {
	records := []models.RaceRecord{
		{RaceDate: "20250603"},
		{RaceDate: "20250601"},
		{RaceDate: "20250602"},
	}

	first, last := dateRange(records)
	assert.Equal(t, "20250601", first)
	assert.Equal(t, "20250603", last)
}
