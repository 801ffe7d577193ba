package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadResults reads ground-truth finish orders from path, which may be a
// single JSON file or a directory of them. Each file holds either a map
// of race id to finish order, or a list of objects carrying a race id and
// the order under one of the keys "actual", "top3", or "result". Later
// entries for the same race id win.
func LoadResults(path string) (map[string][]int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading results path: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("reading results dir: %w", err)
		}
		files = files[:0]
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			files = append(files, filepath.Join(path, e.Name()))
		}
		sort.Strings(files)
	}

	results := make(map[string][]int)
	for _, file := range files {
		if err := loadResultsFile(file, results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func loadResultsFile(path string, into map[string][]int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading results file: %w", err)
	}

	// Map form: race id to finish order.
	var byID map[string]json.RawMessage
	if err := json.Unmarshal(data, &byID); err == nil {
		for id, raw := range byID {
			order, err := decodeFinishOrder(raw)
			if err != nil {
				return fmt.Errorf("%s: race %q: %w", path, id, err)
			}
			into[id] = order
		}
		return nil
	}

	// List form: objects with a race id and a finish-order key.
	var list []map[string]any
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("parsing results file %s: %w", path, err)
	}
	for i, entry := range list {
		id := stringKey(entry, "race_id", "raceId")
		if id == "" {
			return fmt.Errorf("%s: entry %d has no race_id", path, i)
		}
		order, ok := finishOrderFromEntry(entry)
		if !ok {
			return fmt.Errorf("%s: race %q has no finish order", path, id)
		}
		into[id] = order
	}
	return nil
}

func decodeFinishOrder(raw json.RawMessage) ([]int, error) {
	var nums []int
	if err := json.Unmarshal(raw, &nums); err != nil {
		return nil, fmt.Errorf("finish order is not a number list: %w", err)
	}
	if len(nums) == 0 {
		return nil, fmt.Errorf("finish order is empty")
	}
	return nums, nil
}

func finishOrderFromEntry(entry map[string]any) ([]int, bool) {
	for _, key := range []string{"actual", "top3", "result"} {
		raw, ok := entry[key].([]any)
		if !ok {
			continue
		}
		var nums []int
		for _, v := range raw {
			if f, ok := v.(float64); ok {
				nums = append(nums, int(f))
			}
		}
		if len(nums) > 0 {
			return nums, true
		}
	}
	return nil, false
}
