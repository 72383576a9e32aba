// Package storage persists runs as a metadata.json and an abundances.csv
// per run directory.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/stiffnet/internal/config"
	"github.com/san-kum/stiffnet/internal/experiment"
)

const (
	metadataFile   = "metadata.json"
	abundancesFile = "abundances.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Network   string             `json:"network"`
	Zones     string             `json:"zones"`
	Method    string             `json:"method"`
	Timestamp time.Time          `json:"timestamp"`
	Dt        float64            `json:"dt"`
	Duration  float64            `json:"duration"`
	Species   []string           `json:"species"`
	Labels    []string           `json:"labels"`
	Attempts  int                `json:"attempts"`
	Failures  int                `json:"failures"`
	Metrics   map[string]float64 `json:"metrics"`
}

// ZoneKey joins zone labels into the key used in the abundance table.
func ZoneKey(labels [3]string) string {
	return strings.Join(labels[:], "/")
}

func (s *Store) Save(cfg *config.Config, result *experiment.Result) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", cfg.Method, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		Network:   cfg.Network,
		Zones:     cfg.Zones,
		Method:    cfg.Method,
		Timestamp: now,
		Dt:        cfg.Dt,
		Duration:  cfg.Duration,
		Species:   result.Species,
		Attempts:  result.Attempts,
		Failures:  result.Failures,
		Metrics:   result.Metrics,
	}
	for _, l := range result.Zones {
		meta.Labels = append(meta.Labels, ZoneKey(l))
	}

	if err := writeMetadata(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeAbundances(filepath.Join(runDir, abundancesFile), meta, result); err != nil {
		return "", err
	}
	return runID, nil
}

func writeMetadata(path string, meta RunMetadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func writeAbundances(path string, meta RunMetadata, result *experiment.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"time", "zone"}, result.Species...)
	if err := w.Write(header); err != nil {
		return err
	}
	for i, t := range result.Times {
		ts := strconv.FormatFloat(t, 'g', -1, 64)
		for j, y := range result.Abundances[i] {
			row := make([]string, 0, len(header))
			row = append(row, ts, meta.Labels[j])
			for _, v := range y {
				row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

// List returns the stored runs, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	slices.SortFunc(runs, func(a, b RunMetadata) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Row is one zone's abundances at one time.
type Row struct {
	Time       float64
	Zone       string
	Abundances []float64
}

type Table struct {
	Species []string
	Rows    []Row
}

// Series returns the history of one species in one zone.
func (t *Table) Series(zone, species string) (times, values []float64, err error) {
	idx := slices.Index(t.Species, species)
	if idx < 0 {
		return nil, nil, fmt.Errorf("unknown species %q", species)
	}
	for _, r := range t.Rows {
		if r.Zone != zone {
			continue
		}
		times = append(times, r.Time)
		values = append(values, r.Abundances[idx])
	}
	if len(times) == 0 {
		return nil, nil, fmt.Errorf("unknown zone %q", zone)
	}
	return times, values, nil
}

func (s *Store) LoadAbundances(runID string) (*Table, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, abundancesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("abundance table has no header")
	}
	header := records[0]
	if len(header) < 2 {
		return nil, fmt.Errorf("abundance table header has %d columns", len(header))
	}

	table := &Table{Species: header[2:], Rows: make([]Row, 0, len(records)-1)}
	for i, record := range records[1:] {
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		row := Row{Time: t, Zone: record[1], Abundances: make([]float64, len(record)-2)}
		for j, field := range record[2:] {
			if row.Abundances[j], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
