package linalg

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vector is a resizable dense vector of float64
type Vector struct {
	data []float64
}

// NewVector creates a zeroed vector of length n
func NewVector(n int) *Vector {
	return &Vector{data: make([]float64, n)}
}

// VectorOf wraps a copy of values
func VectorOf(values ...float64) *Vector {
	v := NewVector(len(values))
	copy(v.data, values)
	return v
}

// Resize changes the length of the vector. Existing values up to the new length
// are kept, new entries are zero.
func (v *Vector) Resize(n int) {
	if n < 0 {
		panic(fmt.Sprintf("linalg: negative vector length %d", n))
	}
	if cap(v.data) >= n {
		old := len(v.data)
		v.data = v.data[:n]
		for i := old; i < n; i++ {
			v.data[i] = 0
		}
		return
	}
	data := make([]float64, n)
	copy(data, v.data)
	v.data = data
}

func (v *Vector) Len() int {
	return len(v.data)
}

func (v *Vector) At(i int) float64 {
	return v.data[i]
}

func (v *Vector) Set(i int, value float64) {
	v.data[i] = value
}

// AddAt adds value to entry i
func (v *Vector) AddAt(i int, value float64) {
	v.data[i] += value
}

// Vec3 reads the three entries starting at i
func (v *Vector) Vec3(i int) mgl64.Vec3 {
	return mgl64.Vec3{v.data[i], v.data[i+1], v.data[i+2]}
}

// SetVec3 writes the three entries starting at i
func (v *Vector) SetVec3(i int, value mgl64.Vec3) {
	v.data[i] = value[0]
	v.data[i+1] = value[1]
	v.data[i+2] = value[2]
}

func (v *Vector) Zero() {
	clear(v.data)
}

// CopyFrom resizes v to the length of other and copies its values
func (v *Vector) CopyFrom(other *Vector) {
	v.Resize(other.Len())
	copy(v.data, other.data)
}

func (v *Vector) Scale(s float64) {
	for i := range v.data {
		v.data[i] *= s
	}
}

func (v *Vector) Dot(other *Vector) float64 {
	if len(v.data) != len(other.data) {
		panic(fmt.Sprintf("linalg: dot of vectors with length %d and %d", len(v.data), len(other.data)))
	}
	var sum float64
	for i, x := range v.data {
		sum += x * other.data[i]
	}
	return sum
}

// Norm returns the euclidean length of the vector
func (v *Vector) Norm() float64 {
	var sum float64
	for _, x := range v.data {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// IsFinite reports whether no entry is NaN or infinite
func (v *Vector) IsFinite() bool {
	for _, x := range v.data {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Raw exposes the backing slice. It is invalidated by Resize.
func (v *Vector) Raw() []float64 {
	return v.data
}
