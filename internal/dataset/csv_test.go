package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coyaSONG/kra-analysis/internal/models"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadCSV(t *testing.T) {
	tests := []struct {
		name     string
		csv      string
		wantRows int
		wantCols int
		wantErr  string
	}{
		{
			name:     "happy path 3 rows 3 columns",
			csv:      "race_id,horse_no,win_odds\nrace_1_20250601_1,1,2.5\nrace_1_20250601_1,2,4.1\nrace_1_20250601_2,1,8.0\n",
			wantRows: 3,
			wantCols: 3,
		},
		{
			name:     "single row",
			csv:      "race_id,horse_no\nr1,1\n",
			wantRows: 1,
			wantCols: 2,
		},
		{
			name:     "headers only",
			csv:      "race_id,horse_no,win_odds\n",
			wantRows: 0,
			wantCols: 0,
		},
		{
			name:    "mismatched column count",
			csv:     "race_id,horse_no\nok,1\nbad\n",
			wantErr: "wrong number of fields",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCSV(t, t.TempDir(), "test.csv", tt.csv)

			rows, err := LoadCSV(path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Len(t, rows, tt.wantRows)
			if tt.wantRows > 0 {
				assert.Len(t, rows[0], tt.wantCols)
			}
		})
	}
}

func TestLoadCSV_MissingFile(t *testing.T) {
	_, err := LoadCSV("/nonexistent/path/data.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: open")
}

func TestLoadOddsCSV(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "odds.csv",
		"race_id,horse_no,win_odds\nr1,1,2.5\nr1,2,4.1\nr2,1,8.0\n")

	odds, err := LoadOddsCSV(path)
	require.NoError(t, err)
	require.Len(t, odds, 2)

	assert.Equal(t, OddsSnapshot{1: 2.5, 2: 4.1}, odds["r1"])
	assert.Equal(t, OddsSnapshot{1: 8.0}, odds["r2"])
}

func TestLoadOddsCSV_BadRows(t *testing.T) {
	cases := []struct {
		name string
		csv  string
		want string
	}{
		{"missing race id", "race_id,horse_no,win_odds\n,1,2.5\n", "missing race_id"},
		{"bad horse no", "race_id,horse_no,win_odds\nr1,x,2.5\n", "horse_no"},
		{"bad odds", "race_id,horse_no,win_odds\nr1,1,cheap\n", "win_odds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeCSV(t, t.TempDir(), "odds.csv", tc.csv)
			_, err := LoadOddsCSV(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestApplyOdds(t *testing.T) {
	records := []models.RaceRecord{
		{
			RaceID:   "r1",
			RaceDate: "20250601",
			Horses: []models.Horse{
				{No: 1},               // filled from snapshot
				{No: 2, WinOdds: 3.0}, // existing quote kept
				{No: 3},               // not in snapshot
			},
		},
		{RaceID: "r9", RaceDate: "20250601", Horses: []models.Horse{{No: 1}}},
	}
	odds := map[string]OddsSnapshot{
		"r1": {1: 2.5, 2: 99.0},
	}

	updated := ApplyOdds(records, odds)

	assert.Equal(t, 1, updated)
	assert.Equal(t, 2.5, records[0].Horses[0].WinOdds)
	assert.Equal(t, 3.0, records[0].Horses[1].WinOdds)
	assert.Equal(t, 0.0, records[0].Horses[2].WinOdds)
	assert.Equal(t, 0.0, records[1].Horses[0].WinOdds)
}
