package linalg

import "fmt"

func (m *Matrix) mustSquare() {
	if m.rows != m.cols {
		panic(fmt.Sprintf("linalg: %dx%d matrix is not square", m.rows, m.cols))
	}
}

// AnalyseStructure records the sparsity pattern of a square dense matrix.
// mask reports entries expected to be nonzero; entries whose value is nonzero
// always count, and a nil mask uses the values alone. The bandwidth feeds the
// banded LU decomposition, the density decides whether conjugate gradient
// works on sparse row storage.
func (m *Matrix) AnalyseStructure(mask func(i, j int) bool) {
	m.mustSquare()
	if m.repr != Dense {
		m.Revert()
	}
	n := m.rows
	bandwidth, nonzero := 0, 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if m.data[i*n+j] != 0 || (mask != nil && mask(i, j)) {
				nonzero++
				bandwidth = max(bandwidth, abs(i-j))
			}
		}
	}
	m.bandwidth = bandwidth
	if n > 0 {
		m.density = float64(nonzero) / float64(n*n)
	} else {
		m.density = 0
	}
	m.analysed = true
	m.prepared = false

	if m.method == MethodCG && m.density < SparseDensity {
		m.toSparse()
	}
}

// PrepForSolve decomposes the matrix with the current solve method. A
// near-singular LU escalates to conjugate gradient; the SVD always succeeds.
// It reports whether the solve method changed.
func (m *Matrix) PrepForSolve() bool {
	m.mustSquare()
	if m.repr != Dense {
		m.Revert()
	}
	start := m.method
	if m.method < m.minMethod {
		m.method = m.minMethod
	}

	for m.method == MethodLU {
		if m.decomposeLU() {
			break
		}
		m.method = MethodCG
	}

	switch m.method {
	case MethodCG:
		if m.analysed && m.density < SparseDensity {
			m.toSparse()
		}
	case MethodSVD:
		m.decomposeSVD()
	}
	m.prepared = true

	return m.method != start
}

// Solve computes x with A·x = b, preparing the matrix first when needed. It
// never fails: whatever the conditioning of A, x ends up finite. The result
// reports whether the solve method was escalated during the call.
func (m *Matrix) Solve(b, x *Vector) bool {
	m.mustSquare()
	if b.Len() != m.rows {
		panic(fmt.Sprintf("linalg: solve %dx%d system with right-hand side of length %d", m.rows, m.cols, b.Len()))
	}
	x.Resize(m.rows)
	if m.rows == 0 {
		return false
	}

	changed := false
	if !m.prepared {
		changed = m.PrepForSolve()
	}

	switch m.repr {
	case LUFull:
		m.luSolve(b, x)
	case LUBanded:
		m.bandSolve(b, x)
	case SVDDecomposed:
		m.svdSolve(b, x)
	default:
		if !m.cgSolve(b, x) {
			m.escalateToSVD()
			m.svdSolve(b, x)
			changed = true
		}
	}

	if !x.IsFinite() {
		if m.method != MethodSVD {
			m.escalateToSVD()
			m.svdSolve(b, x)
			changed = true
		}
		if !x.IsFinite() {
			x.Zero()
		}
	}

	return changed
}

func (m *Matrix) escalateToSVD() {
	m.method = MethodSVD
	m.Revert()
	m.decomposeSVD()
	m.prepared = true
}

// toSparse builds the row-indexed storage from the nonzero dense values
func (m *Matrix) toSparse() {
	n := m.rows
	m.rowPtr = append(m.rowPtr[:0], 0)
	m.colIdx = m.colIdx[:0]
	m.values = m.values[:0]
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if a := m.data[i*n+j]; a != 0 {
				m.colIdx = append(m.colIdx, j)
				m.values = append(m.values, a)
			}
		}
		m.rowPtr = append(m.rowPtr, len(m.values))
	}
	m.repr = Sparse
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
