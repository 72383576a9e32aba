package dynamo

import "sync"

// VectorPool hands out zeroed scratch vectors and keeps one sync.Pool per
// length.
type VectorPool struct {
	mu    sync.Mutex
	pools map[int]*sync.Pool
}

// Vectors is the process-wide scratch pool.
var Vectors = NewVectorPool()

func NewVectorPool() *VectorPool {
	return &VectorPool{pools: make(map[int]*sync.Pool)}
}

func (p *VectorPool) get(size int) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, ok := p.pools[size]
	if !ok {
		sp = &sync.Pool{
			New: func() any {
				v := make([]float64, size)
				return &v
			},
		}
		p.pools[size] = sp
	}
	return sp
}

// Get returns a zeroed vector of the given length.
func (p *VectorPool) Get(size int) []float64 {
	return *p.get(size).Get().(*[]float64)
}

// GetAndCopy returns a pooled copy of src.
func (p *VectorPool) GetAndCopy(src []float64) []float64 {
	dst := p.Get(len(src))
	copy(dst, src)
	return dst
}

// Put zeroes v and returns it to the pool. Nil and empty vectors are ignored.
func (p *VectorPool) Put(v []float64) {
	if len(v) == 0 {
		return
	}
	clear(v)
	p.get(len(v)).Put(&v)
}
