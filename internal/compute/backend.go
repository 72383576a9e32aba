package compute

import (
	"sync"

	"github.com/san-kum/stiffnet/internal/sparse"
)

type Backend interface {
	Name() string
	Available() bool
	// MatVec returns m·x.
	MatVec(m *sparse.Matrix, x []float64) []float64
	// SumMatVec returns Σ matrices[i]·x.
	SumMatVec(matrices []*sparse.Matrix, x []float64) []float64
	Cleanup()
}

var (
	backendMu     sync.RWMutex
	activeBackend Backend = NewCPUBackend(0)
)

func SetBackend(b Backend) {
	backendMu.Lock()
	defer backendMu.Unlock()
	if activeBackend != nil {
		activeBackend.Cleanup()
	}
	activeBackend = b
}

func GetBackend() Backend {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return activeBackend
}
