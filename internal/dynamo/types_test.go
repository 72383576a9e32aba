package dynamo

import (
	"math"
	"testing"
)

func TestVectorIsValid(t *testing.T) {
	tests := []struct {
		name string
		v    Vector
		want bool
	}{
		{"finite", Vector{1, 2, 3}, true},
		{"empty", Vector{}, true},
		{"nan", Vector{1, math.NaN()}, false},
		{"inf", Vector{math.Inf(-1)}, false},
	}
	for _, tt := range tests {
		if got := tt.v.IsValid(); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestVectorArithmetic(t *testing.T) {
	a := Vector{1, 2}
	b := Vector{3, 4}

	if got := a.Add(b); got[0] != 4 || got[1] != 6 {
		t.Errorf("add: got %v", got)
	}
	if got := b.Sub(a); got[0] != 2 || got[1] != 2 {
		t.Errorf("sub: got %v", got)
	}
	if got := a.Scale(2); got[1] != 4 {
		t.Errorf("scale: got %v", got)
	}
	if a[0] != 1 {
		t.Error("arithmetic must not modify the receiver")
	}
	if got := b.Norm(); math.Abs(got-5) > 1e-12 {
		t.Errorf("norm: expected 5, got %f", got)
	}
}

func TestWithinEpsilon(t *testing.T) {
	if !WithinEpsilon(0.1+0.2, 0.3, 1e-10) {
		t.Error("0.1+0.2 should match 0.3")
	}
	if WithinEpsilon(0.5, 1.0, 1e-10) {
		t.Error("0.5 should not match 1.0")
	}
	if !WithinEpsilon(0, 0, 1e-10) {
		t.Error("zero should match zero")
	}
}

func TestVectorPoolReturnsZeroed(t *testing.T) {
	p := NewVectorPool()
	v := p.Get(8)
	if len(v) != 8 {
		t.Fatalf("expected length 8, got %d", len(v))
	}
	for i := range v {
		v[i] = float64(i + 1)
	}
	p.Put(v)

	w := p.Get(8)
	for i, x := range w {
		if x != 0 {
			t.Fatalf("entry %d not zeroed: %f", i, x)
		}
	}

	c := p.GetAndCopy([]float64{1, 2, 3})
	if c[2] != 3 {
		t.Errorf("expected copy, got %v", c)
	}
}
