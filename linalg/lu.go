package linalg

import "math"

// decomposeLU factorizes A = L·U without pivoting, in banded storage when the
// analysed bandwidth allows it. It returns false on a pivot below
// PivotThreshold, leaving the matrix dense.
func (m *Matrix) decomposeLU() bool {
	n := m.rows
	if m.analysed && 2*m.bandwidth < n {
		return m.decomposeBanded()
	}

	if cap(m.lu) >= n*n {
		m.lu = m.lu[:n*n]
	} else {
		m.lu = make([]float64, n*n)
	}
	copy(m.lu, m.data)
	lu := m.lu

	for k := 0; k < n; k++ {
		pivot := lu[k*n+k]
		if math.Abs(pivot) < PivotThreshold {
			return false
		}
		for i := k + 1; i < n; i++ {
			l := lu[i*n+k] / pivot
			lu[i*n+k] = l
			if l == 0 {
				continue
			}
			for j := k + 1; j < n; j++ {
				lu[i*n+j] -= l * lu[k*n+j]
			}
		}
	}
	m.repr = LUFull

	return true
}

func (m *Matrix) luSolve(b, x *Vector) {
	n := m.rows
	lu := m.lu
	for i := 0; i < n; i++ {
		sum := b.data[i]
		for k := 0; k < i; k++ {
			sum -= lu[i*n+k] * x.data[k]
		}
		x.data[i] = sum
	}
	for i := n - 1; i >= 0; i-- {
		sum := x.data[i]
		for k := i + 1; k < n; k++ {
			sum -= lu[i*n+k] * x.data[k]
		}
		x.data[i] = sum / lu[i*n+i]
	}
}

// Banded storage keeps row i, columns i-bw..i+bw at lu[i*width+(j-i+bw)].
// Without pivoting the factors stay inside the band.
func (m *Matrix) bandIndex(i, j int) int {
	return i*(2*m.bandwidth+1) + j - i + m.bandwidth
}

func (m *Matrix) decomposeBanded() bool {
	n, bw := m.rows, m.bandwidth
	width := 2*bw + 1
	if cap(m.lu) >= n*width {
		m.lu = m.lu[:n*width]
		clear(m.lu)
	} else {
		m.lu = make([]float64, n*width)
	}
	for i := 0; i < n; i++ {
		for j := max(0, i-bw); j <= min(n-1, i+bw); j++ {
			m.lu[m.bandIndex(i, j)] = m.data[i*n+j]
		}
	}

	lu := m.lu
	for k := 0; k < n; k++ {
		pivot := lu[m.bandIndex(k, k)]
		if math.Abs(pivot) < PivotThreshold {
			return false
		}
		last := min(n-1, k+bw)
		for i := k + 1; i <= last; i++ {
			l := lu[m.bandIndex(i, k)] / pivot
			lu[m.bandIndex(i, k)] = l
			if l == 0 {
				continue
			}
			for j := k + 1; j <= last; j++ {
				lu[m.bandIndex(i, j)] -= l * lu[m.bandIndex(k, j)]
			}
		}
	}
	m.repr = LUBanded

	return true
}

func (m *Matrix) bandSolve(b, x *Vector) {
	n, bw := m.rows, m.bandwidth
	lu := m.lu
	for i := 0; i < n; i++ {
		sum := b.data[i]
		for k := max(0, i-bw); k < i; k++ {
			sum -= lu[m.bandIndex(i, k)] * x.data[k]
		}
		x.data[i] = sum
	}
	for i := n - 1; i >= 0; i-- {
		sum := x.data[i]
		for j := i + 1; j <= min(n-1, i+bw); j++ {
			sum -= lu[m.bandIndex(i, j)] * x.data[j]
		}
		x.data[i] = sum / lu[m.bandIndex(i, i)]
	}
}
