package linalg

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// PivotThreshold is the smallest LU pivot magnitude accepted before the
	// matrix is considered near-singular.
	PivotThreshold = 1e-10
	// SingularThreshold scales max|diag A| into the cut-off below which
	// singular values are zeroed.
	SingularThreshold = 1e-10
	// DefaultTolerance is the relative residual the conjugate gradient accepts
	DefaultTolerance = 1e-8
	// SparseDensity is the nonzero density under which conjugate gradient
	// switches to sparse row storage.
	SparseDensity = 0.5
)

// SolveMethod selects the strategy used to solve A·x = b. Methods are ordered
// by robustness: escalation always moves to a higher method.
type SolveMethod int

const (
	MethodLU SolveMethod = iota
	MethodCG
	MethodSVD
)

func (m SolveMethod) String() string {
	switch m {
	case MethodLU:
		return "lu"
	case MethodCG:
		return "cg"
	case MethodSVD:
		return "svd"
	}
	return fmt.Sprintf("SolveMethod(%d)", int(m))
}

// ParseSolveMethod converts "lu", "cg" or "svd" into a SolveMethod
func ParseSolveMethod(name string) (SolveMethod, error) {
	switch name {
	case "lu":
		return MethodLU, nil
	case "cg":
		return MethodCG, nil
	case "svd":
		return MethodSVD, nil
	}
	return MethodLU, fmt.Errorf("linalg: unknown solve method %q", name)
}

// Representation tags the storage currently held by a Matrix. They are
// mutually exclusive, and only Dense accepts mutation.
type Representation int

const (
	Dense Representation = iota
	Sparse
	LUFull
	LUBanded
	SVDDecomposed
)

func (r Representation) String() string {
	switch r {
	case Dense:
		return "dense"
	case Sparse:
		return "sparse"
	case LUFull:
		return "lu"
	case LUBanded:
		return "banded-lu"
	case SVDDecomposed:
		return "svd"
	}
	return fmt.Sprintf("Representation(%d)", int(r))
}

// Matrix is a resizable row-major matrix that can be prepared for solving with
// one of three strategies. The dense values are kept untouched by every
// decomposition so the matrix can always be reverted or re-decomposed with a
// more robust method.
type Matrix struct {
	rows, cols int
	data       []float64

	repr      Representation
	prepared  bool
	method    SolveMethod
	minMethod SolveMethod
	tolerance float64

	// structure analysis
	bandwidth int
	density   float64
	analysed  bool

	// sparse row storage
	rowPtr []int
	colIdx []int
	values []float64

	// lu factors, full n×n or banded n×(2·bandwidth+1)
	lu []float64

	// svd factors
	u, v      [][]float64
	w         []float64
	zeroed        int
	converged     bool
	svdIterations int

	// conjugate gradient scratch
	r, p, s, q, t []float64
}

// NewMatrix creates a zeroed dense rows×cols matrix
func NewMatrix(rows, cols int) *Matrix {
	m := &Matrix{tolerance: DefaultTolerance}
	m.Resize(rows, cols)
	return m
}

// Resize changes the shape of the matrix and zeroes it. The matrix returns to
// the dense representation; the solve method stays escalated.
func (m *Matrix) Resize(rows, cols int) {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("linalg: invalid shape %dx%d", rows, cols))
	}
	m.rows, m.cols = rows, cols
	n := rows * cols
	if cap(m.data) >= n {
		m.data = m.data[:n]
		clear(m.data)
	} else {
		m.data = make([]float64, n)
	}
	m.Revert()
	m.analysed = false
	m.bandwidth = max(rows, cols)
	m.density = 1
}

func (m *Matrix) Rows() int {
	return m.rows
}

func (m *Matrix) Cols() int {
	return m.cols
}

// Representation returns the storage currently in use
func (m *Matrix) Representation() Representation {
	return m.repr
}

// Revert drops any decomposition and returns the matrix to dense storage
func (m *Matrix) Revert() {
	m.repr = Dense
	m.prepared = false
	m.zeroed = 0
}

func (m *Matrix) mustDense() {
	if m.repr != Dense {
		panic(fmt.Sprintf("linalg: cannot modify a matrix in %s representation, Revert it first", m.repr))
	}
	m.prepared = false
}

func (m *Matrix) checkIndex(i, j int) {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(fmt.Sprintf("linalg: index (%d,%d) out of range for %dx%d matrix", i, j, m.rows, m.cols))
	}
}

// At returns element (i, j) of the original dense values
func (m *Matrix) At(i, j int) float64 {
	m.checkIndex(i, j)
	return m.data[i*m.cols+j]
}

func (m *Matrix) Set(i, j int, value float64) {
	m.checkIndex(i, j)
	m.mustDense()
	m.data[i*m.cols+j] = value
}

// Add adds value to element (i, j)
func (m *Matrix) Add(i, j int, value float64) {
	m.checkIndex(i, j)
	m.mustDense()
	m.data[i*m.cols+j] += value
}

func (m *Matrix) Zero() {
	m.mustDense()
	clear(m.data)
}

// SetIdentity turns a square matrix into the identity
func (m *Matrix) SetIdentity() {
	m.Zero()
	for i := 0; i < min(m.rows, m.cols); i++ {
		m.data[i*m.cols+i] = 1
	}
}

// SubMatrix copies the block starting at (row, col) into dst, using the shape of dst
func (m *Matrix) SubMatrix(row, col int, dst *Matrix) {
	m.checkIndex(row+dst.rows-1, col+dst.cols-1)
	dst.mustDense()
	for i := 0; i < dst.rows; i++ {
		copy(dst.data[i*dst.cols:(i+1)*dst.cols], m.data[(row+i)*m.cols+col:(row+i)*m.cols+col+dst.cols])
	}
}

// SetSubMatrix writes src into the block starting at (row, col)
func (m *Matrix) SetSubMatrix(row, col int, src *Matrix) {
	if src.rows == 0 || src.cols == 0 {
		return
	}
	m.checkIndex(row+src.rows-1, col+src.cols-1)
	m.mustDense()
	for i := 0; i < src.rows; i++ {
		copy(m.data[(row+i)*m.cols+col:(row+i)*m.cols+col+src.cols], src.data[i*src.cols:(i+1)*src.cols])
	}
}

// AddSubMatrix adds src onto the block starting at (row, col)
func (m *Matrix) AddSubMatrix(row, col int, src *Matrix) {
	if src.rows == 0 || src.cols == 0 {
		return
	}
	m.checkIndex(row+src.rows-1, col+src.cols-1)
	m.mustDense()
	for i := 0; i < src.rows; i++ {
		base := (row+i)*m.cols + col
		for j := 0; j < src.cols; j++ {
			m.data[base+j] += src.data[i*src.cols+j]
		}
	}
}

// Row copies row i into dst
func (m *Matrix) Row(i int, dst *Vector) {
	m.checkIndex(i, 0)
	dst.Resize(m.cols)
	copy(dst.data, m.data[i*m.cols:(i+1)*m.cols])
}

func (m *Matrix) SetRow(i int, src *Vector) {
	m.checkIndex(i, src.Len()-1)
	m.mustDense()
	copy(m.data[i*m.cols:], src.data)
}

// Col copies column j into dst
func (m *Matrix) Col(j int, dst *Vector) {
	m.checkIndex(0, j)
	dst.Resize(m.rows)
	for i := 0; i < m.rows; i++ {
		dst.data[i] = m.data[i*m.cols+j]
	}
}

func (m *Matrix) SetCol(j int, src *Vector) {
	m.checkIndex(src.Len()-1, j)
	m.mustDense()
	for i, x := range src.data {
		m.data[i*m.cols+j] = x
	}
}

// RowVec3 reads three consecutive entries of row i starting at column j
func (m *Matrix) RowVec3(i, j int) mgl64.Vec3 {
	m.checkIndex(i, j+2)
	base := i*m.cols + j
	return mgl64.Vec3{m.data[base], m.data[base+1], m.data[base+2]}
}

// SetRowVec3 writes v into row i starting at column j
func (m *Matrix) SetRowVec3(i, j int, v mgl64.Vec3) {
	m.checkIndex(i, j+2)
	m.mustDense()
	base := i*m.cols + j
	m.data[base], m.data[base+1], m.data[base+2] = v[0], v[1], v[2]
}

// ColVec3 reads three consecutive entries of column j starting at row i
func (m *Matrix) ColVec3(i, j int) mgl64.Vec3 {
	m.checkIndex(i+2, j)
	return mgl64.Vec3{m.data[i*m.cols+j], m.data[(i+1)*m.cols+j], m.data[(i+2)*m.cols+j]}
}

// SetColVec3 writes v into column j starting at row i
func (m *Matrix) SetColVec3(i, j int, v mgl64.Vec3) {
	m.checkIndex(i+2, j)
	m.mustDense()
	m.data[i*m.cols+j] = v[0]
	m.data[(i+1)*m.cols+j] = v[1]
	m.data[(i+2)*m.cols+j] = v[2]
}

// MulVec computes dst = m·x using the original dense values
func (m *Matrix) MulVec(x, dst *Vector) {
	if x.Len() != m.cols {
		panic(fmt.Sprintf("linalg: multiply %dx%d matrix with vector of length %d", m.rows, m.cols, x.Len()))
	}
	dst.Resize(m.rows)
	for i := 0; i < m.rows; i++ {
		var sum float64
		row := m.data[i*m.cols : (i+1)*m.cols]
		for j, a := range row {
			sum += a * x.data[j]
		}
		dst.data[i] = sum
	}
}

// MaxAbsDiagonal returns max|a_ii|
func (m *Matrix) MaxAbsDiagonal() float64 {
	var d float64
	for i := 0; i < min(m.rows, m.cols); i++ {
		d = math.Max(d, math.Abs(m.data[i*m.cols+i]))
	}
	return d
}

// SetTolerance sets the relative residual accepted by the conjugate gradient
func (m *Matrix) SetTolerance(tolerance float64) {
	if tolerance > 0 {
		m.tolerance = tolerance
	}
}

func (m *Matrix) Tolerance() float64 {
	return m.tolerance
}

// SetMinSolveMethod bounds the solve method from below. If the current method
// is less robust it is raised immediately; it is never lowered.
func (m *Matrix) SetMinSolveMethod(method SolveMethod) {
	m.minMethod = method
	if m.method < method {
		m.method = method
		if m.repr != Dense {
			m.Revert()
		}
	}
}

// ResetSolveMethod starts a new matrix lifetime: the method falls back to the
// configured minimum.
func (m *Matrix) ResetSolveMethod() {
	m.method = m.minMethod
	if m.repr != Dense {
		m.Revert()
	}
}

// SolveMethod returns the current, possibly escalated, solve method
func (m *Matrix) SolveMethod() SolveMethod {
	return m.method
}

// Bandwidth returns the bandwidth found by the last AnalyseStructure
func (m *Matrix) Bandwidth() int {
	return m.bandwidth
}

// RankDeficiency is the number of singular values zeroed by the last SVD
func (m *Matrix) RankDeficiency() int {
	return m.zeroed
}

func (m *Matrix) String() string {
	return fmt.Sprintf("Matrix(%dx%d, %s, %s)", m.rows, m.cols, m.repr, m.method)
}
