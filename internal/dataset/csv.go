package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/coyaSONG/kra-analysis/internal/models"
)

// Row is one CSV row keyed by column name.
type Row map[string]string

// LoadCSV reads a CSV file whose first row names the columns.
func LoadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: parse %s: %w", path, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("csv: %s is empty (no header row)", path)
	}

	headers := records[0]
	rows := make([]Row, 0, len(records)-1)

	for i, record := range records[1:] {
		if len(record) != len(headers) {
			return nil, fmt.Errorf("csv: row %d has %d columns, expected %d", i+2, len(record), len(headers))
		}
		row := make(Row, len(headers))
		for j, h := range headers {
			row[h] = record[j]
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// OddsSnapshot maps a horse's program number to its pre-race win odds.
type OddsSnapshot map[int]float64

// LoadOddsCSV reads an odds snapshot table with race_id, horse_no, and
// win_odds columns, one row per entrant.
func LoadOddsCSV(path string) (map[string]OddsSnapshot, error) {
	rows, err := LoadCSV(path)
	if err != nil {
		return nil, err
	}

	out := make(map[string]OddsSnapshot)
	for i, row := range rows {
		raceID := row["race_id"]
		if raceID == "" {
			return nil, fmt.Errorf("csv: row %d missing race_id", i+2)
		}
		no, err := strconv.Atoi(row["horse_no"])
		if err != nil {
			return nil, fmt.Errorf("csv: row %d horse_no: %w", i+2, err)
		}
		odds, err := strconv.ParseFloat(row["win_odds"], 64)
		if err != nil {
			return nil, fmt.Errorf("csv: row %d win_odds: %w", i+2, err)
		}

		snap := out[raceID]
		if snap == nil {
			snap = OddsSnapshot{}
			out[raceID] = snap
		}
		snap[no] = odds
	}
	return out, nil
}

// ApplyOdds fills in win odds for entrants that lack a quote, from the
// snapshot table. Entrants that already carry odds keep them. Returns
// how many entrants were updated.
func ApplyOdds(records []models.RaceRecord, odds map[string]OddsSnapshot) int {
	updated := 0
	for ri := range records {
		snap, ok := odds[records[ri].RaceID]
		if !ok {
			continue
		}
		for hi := range records[ri].Horses {
			h := &records[ri].Horses[hi]
			if h.WinOdds > 0 {
				continue
			}
			if quote, ok := snap[h.No]; ok && quote > 0 {
				h.WinOdds = quote
				updated++
			}
		}
	}
	return updated
}
