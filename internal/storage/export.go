package storage

import (
	"encoding/json"
	"io"
	"os"
)

type ExportData struct {
	Metadata RunMetadata `json:"metadata"`
	Species  []string    `json:"species"`
	Rows     []ExportRow `json:"rows"`
}

type ExportRow struct {
	Time       float64   `json:"time"`
	Zone       string    `json:"zone"`
	Abundances []float64 `json:"abundances"`
}

// Export writes a stored run, metadata and abundances, as indented JSON.
func (s *Store) Export(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	table, err := s.LoadAbundances(runID)
	if err != nil {
		return err
	}

	data := ExportData{
		Metadata: *meta,
		Species:  table.Species,
		Rows:     make([]ExportRow, len(table.Rows)),
	}
	for i, r := range table.Rows {
		data.Rows[i] = ExportRow{Time: r.Time, Zone: r.Zone, Abundances: r.Abundances}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (s *Store) ExportFile(path, runID string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return s.Export(file, runID)
}
