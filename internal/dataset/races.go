// Package dataset loads race records and enrichment tables from disk.
// Upstream collectors write JSON with inconsistent key casing (camelCase
// KRA fields next to snake_case internal ones); the loaders here absorb
// that drift and hand the rest of the pipeline typed records, with the
// raw payload preserved for leakage scanning.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/coyaSONG/kra-analysis/internal/models"
)

// LoadRaceDir reads every .json file under dir (sorted by name, not
// recursive) and returns the combined race records.
func LoadRaceDir(dir string) ([]models.RaceRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading race dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var records []models.RaceRecord
	for _, name := range names {
		recs, err := LoadRaceFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	return records, nil
}

// LoadRaceFile parses one race JSON file. The document may be a single
// race object or a list of them.
func LoadRaceFile(path string) ([]models.RaceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading race file: %w", err)
	}

	var payloads []map[string]any
	var single map[string]any
	if err := json.Unmarshal(data, &single); err == nil {
		payloads = []map[string]any{single}
	} else {
		var list []map[string]any
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		payloads = list
	}

	records := make([]models.RaceRecord, 0, len(payloads))
	for i, p := range payloads {
		rec, err := RecordFromPayload(p)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", path, i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// RecordFromPayload adapts one raw race payload into a typed record. A
// missing race_id is derived from meet, date, and race number; a missing
// race_date is an error since the temporal splitter cannot order the
// record.
func RecordFromPayload(payload map[string]any) (models.RaceRecord, error) {
	rec := models.RaceRecord{
		RaceID:   stringKey(payload, "race_id", "raceId"),
		RaceDate: stringKey(payload, "race_date", "rcDate", "raceDate"),
		Meet:     stringKey(payload, "meet"),
		RaceNo:   intKey(payload, "race_no", "rcNo", "raceNo"),
		Data:     payload,
	}

	if rec.RaceDate == "" {
		return models.RaceRecord{}, fmt.Errorf("race payload missing race_date")
	}
	if rec.RaceID == "" {
		rec.RaceID = fmt.Sprintf("race_%s_%s_%d", rec.Meet, rec.RaceDate, rec.RaceNo)
	}

	for _, entriesKey := range []string{"horses", "entries"} {
		raw, ok := payload[entriesKey].([]any)
		if !ok {
			continue
		}
		for _, e := range raw {
			entry, ok := e.(map[string]any)
			if !ok {
				continue
			}
			no := intKey(entry, "horse_no", "no", "chulNo")
			if no <= 0 {
				continue
			}
			rec.Horses = append(rec.Horses, models.Horse{
				No:      no,
				Name:    stringKey(entry, "horse_name", "name", "hrName"),
				WinOdds: floatKey(entry, "win_odds", "winOdds", "odds"),
				Jockey:  stringKey(entry, "jockey", "jkName"),
				Trainer: stringKey(entry, "trainer", "trName"),
			})
		}
		break
	}
	return rec, nil
}

func stringKey(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch s := v.(type) {
			case string:
				if s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(s, 'f', -1, 64)
			}
		}
	}
	return ""
}

func intKey(m map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return int(v)
		case int:
			return v
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}
	return 0
}

func floatKey(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return 0
}
