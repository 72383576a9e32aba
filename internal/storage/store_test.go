package storage

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/stiffnet/internal/config"
	"github.com/san-kum/stiffnet/internal/experiment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult() *experiment.Result {
	return &experiment.Result{
		Species: []string{"a", "b"},
		Zones:   [][3]string{{"1", "0", "0"}, {"2", "0", "0"}},
		Times:   []float64{0, 0.5},
		Abundances: [][][]float64{
			{{1, 0}, {0.5, 0.5}},
			{{0.75, 0.25}, {0.25, 0.75}},
		},
		Metrics:  map[string]float64{"mass_drift": 1e-12},
		Attempts: 3,
		Failures: 1,
	}
}

func TestSaveLoad(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "runs"))
	require.NoError(t, s.Init())

	cfg := config.DefaultConfig()
	cfg.Network = "net.yaml"
	id, err := s.Save(cfg, testResult())
	require.NoError(t, err)

	meta, err := s.Load(id)
	require.NoError(t, err)
	assert.Equal(t, id, meta.ID)
	assert.Equal(t, "net.yaml", meta.Network)
	assert.Equal(t, []string{"1/0/0", "2/0/0"}, meta.Labels)
	assert.Equal(t, 1, meta.Failures)
	assert.Equal(t, 1e-12, meta.Metrics["mass_drift"])

	table, err := s.LoadAbundances(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, table.Species)
	require.Len(t, table.Rows, 4)

	times, values, err := table.Series("2/0/0", "b")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5}, times)
	assert.Equal(t, []float64{0.5, 0.75}, values)

	_, _, err = table.Series("2/0/0", "zz")
	assert.Error(t, err)
	_, _, err = table.Series("9/0/0", "a")
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	runs, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = s.Save(config.DefaultConfig(), testResult())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "not-a-run"), 0755))

	runs, err = s.List()
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestListMissingDir(t *testing.T) {
	runs, err := New(filepath.Join(t.TempDir(), "missing")).List()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestExport(t *testing.T) {
	s := New(t.TempDir())
	id, err := s.Save(config.DefaultConfig(), testResult())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, s.ExportFile(path, id))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var data ExportData
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, id, data.Metadata.ID)
	assert.Len(t, data.Rows, 4)
	assert.Equal(t, []float64{0.25, 0.75}, data.Rows[3].Abundances)

	assert.Error(t, s.Export(io.Discard, "missing"))
}
