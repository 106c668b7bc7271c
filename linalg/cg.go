package linalg

import "math"

// cgSolve runs the conjugate gradient on the normal equations (CGLS), which
// needs neither symmetry nor definiteness of A. It works on sparse row storage
// when the matrix was converted, dense values otherwise. At most n iterations
// are made. It returns false when the residual does not drop below
// tolerance·|b|, or grows beyond |b|.
func (m *Matrix) cgSolve(b, x *Vector) bool {
	n := m.rows
	m.r = resize(m.r, n)
	m.p = resize(m.p, n)
	m.s = resize(m.s, n)
	m.q = resize(m.q, n)
	r, p, s, q := m.r, m.p, m.s, m.q

	clear(x.data)
	copy(r, b.data)
	bnorm := norm(r)
	if bnorm == 0 {
		return true
	}

	m.mulTranspose(r, s)
	copy(p, s)
	gamma := dot(s, s)

	for iter := 0; iter < n && gamma > 0; iter++ {
		m.mul(p, q)
		qq := dot(q, q)
		if qq == 0 {
			break
		}
		alpha := gamma / qq
		for i := range x.data {
			x.data[i] += alpha * p[i]
			r[i] -= alpha * q[i]
		}

		rnorm := norm(r)
		if rnorm <= m.tolerance*bnorm {
			return true
		}
		if rnorm > bnorm || math.IsNaN(rnorm) {
			return false
		}

		m.mulTranspose(r, s)
		next := dot(s, s)
		beta := next / gamma
		gamma = next
		for i := range p {
			p[i] = s[i] + beta*p[i]
		}
	}

	return norm(r) <= m.tolerance*bnorm
}

// mul computes dst = A·x
func (m *Matrix) mul(x, dst []float64) {
	n := m.rows
	if m.repr == Sparse {
		for i := 0; i < n; i++ {
			var sum float64
			for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
				sum += m.values[k] * x[m.colIdx[k]]
			}
			dst[i] = sum
		}
		return
	}
	for i := 0; i < n; i++ {
		var sum float64
		for j, a := range m.data[i*n : (i+1)*n] {
			sum += a * x[j]
		}
		dst[i] = sum
	}
}

// mulTranspose computes dst = Aᵀ·x
func (m *Matrix) mulTranspose(x, dst []float64) {
	n := m.rows
	clear(dst)
	if m.repr == Sparse {
		for i := 0; i < n; i++ {
			for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
				dst[m.colIdx[k]] += m.values[k] * x[i]
			}
		}
		return
	}
	for i := 0; i < n; i++ {
		xi := x[i]
		if xi == 0 {
			continue
		}
		for j, a := range m.data[i*n : (i+1)*n] {
			dst[j] += a * xi
		}
	}
}

func resize(s []float64, n int) []float64 {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]float64, n)
}

func dot(a, b []float64) float64 {
	var sum float64
	for i, x := range a {
		sum += x * b[i]
	}
	return sum
}

func norm(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}
