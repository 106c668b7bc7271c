package linalg

import "math"

// MaxSVDIterations is the default cap on the QR sweeps spent on a single
// singular value
const MaxSVDIterations = 30

// decomposeSVD computes A = U·diag(w)·Vᵀ by Householder bidiagonalization
// followed by implicit-shift QR (Golub–Reinsch). Singular values under
// SingularThreshold·max|a_ii| are zeroed and counted as rank deficiency.
func (m *Matrix) decomposeSVD() {
	n := m.rows
	m.u = resizeSquare(m.u, n)
	m.v = resizeSquare(m.v, n)
	m.w = resize(m.w, n)
	for i := 0; i < n; i++ {
		copy(m.u[i], m.data[i*n:(i+1)*n])
	}

	m.converged = svd(m.u, m.w, m.v, m.SVDIterations())

	limit := SingularThreshold * m.MaxAbsDiagonal()
	if limit == 0 {
		var wmax float64
		for _, w := range m.w {
			wmax = math.Max(wmax, w)
		}
		limit = SingularThreshold * wmax
	}
	m.zeroed = 0
	for j, w := range m.w {
		if w <= limit || math.IsNaN(w) {
			m.w[j] = 0
			m.zeroed++
		}
	}
	m.repr = SVDDecomposed
}

func (m *Matrix) svdSolve(b, x *Vector) {
	n := m.rows
	m.t = resize(m.t, n)
	tmp := m.t
	for j := 0; j < n; j++ {
		var s float64
		if m.w[j] != 0 {
			for i := 0; i < n; i++ {
				s += m.u[i][j] * b.data[i]
			}
			s /= m.w[j]
		}
		tmp[j] = s
	}
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < n; j++ {
			s += m.v[i][j] * tmp[j]
		}
		x.data[i] = s
	}
}

// Converged reports whether the last SVD settled every singular value within
// the sweep cap
func (m *Matrix) Converged() bool {
	return m.repr != SVDDecomposed || m.converged
}

// SetSVDIterations changes the sweep cap of later decompositions, n < 1
// restores MaxSVDIterations
func (m *Matrix) SetSVDIterations(n int) {
	m.svdIterations = n
}

func (m *Matrix) SVDIterations() int {
	if m.svdIterations < 1 {
		return MaxSVDIterations
	}
	return m.svdIterations
}

// SingularValues copies the singular values of the last SVD, zeroed ones included
func (m *Matrix) SingularValues() []float64 {
	if m.repr != SVDDecomposed {
		return nil
	}
	return append([]float64(nil), m.w...)
}

// svd overwrites the square matrix a with U, fills w with the singular values
// and v with V. It reports false when a singular value needed more than
// maxIter sweeps; the values reached so far are kept.
func svd(a [][]float64, w []float64, v [][]float64, maxIter int) bool {
	n := len(a)
	m := n
	if n == 0 {
		return true
	}
	rv1 := make([]float64, n)
	var g, scale, anorm float64
	var l int

	for i := 0; i < n; i++ {
		l = i + 1
		rv1[i] = scale * g
		g, scale = 0, 0
		var s float64
		if i < m {
			for k := i; k < m; k++ {
				scale += math.Abs(a[k][i])
			}
			if scale != 0 {
				for k := i; k < m; k++ {
					a[k][i] /= scale
					s += a[k][i] * a[k][i]
				}
				f := a[i][i]
				g = -sign(math.Sqrt(s), f)
				h := f*g - s
				a[i][i] = f - g
				for j := l; j < n; j++ {
					s = 0
					for k := i; k < m; k++ {
						s += a[k][i] * a[k][j]
					}
					f = s / h
					for k := i; k < m; k++ {
						a[k][j] += f * a[k][i]
					}
				}
				for k := i; k < m; k++ {
					a[k][i] *= scale
				}
			}
		}
		w[i] = scale * g
		g, s, scale = 0, 0, 0
		if i < m && i != n-1 {
			for k := l; k < n; k++ {
				scale += math.Abs(a[i][k])
			}
			if scale != 0 {
				for k := l; k < n; k++ {
					a[i][k] /= scale
					s += a[i][k] * a[i][k]
				}
				f := a[i][l]
				g = -sign(math.Sqrt(s), f)
				h := f*g - s
				a[i][l] = f - g
				for k := l; k < n; k++ {
					rv1[k] = a[i][k] / h
				}
				for j := l; j < m; j++ {
					s = 0
					for k := l; k < n; k++ {
						s += a[j][k] * a[i][k]
					}
					for k := l; k < n; k++ {
						a[j][k] += s * rv1[k]
					}
				}
				for k := l; k < n; k++ {
					a[i][k] *= scale
				}
			}
		}
		anorm = math.Max(anorm, math.Abs(w[i])+math.Abs(rv1[i]))
	}

	// right-hand transformations
	for i := n - 1; i >= 0; i-- {
		if i < n-1 {
			if g != 0 {
				for j := l; j < n; j++ {
					v[j][i] = (a[i][j] / a[i][l]) / g
				}
				for j := l; j < n; j++ {
					var s float64
					for k := l; k < n; k++ {
						s += a[i][k] * v[k][j]
					}
					for k := l; k < n; k++ {
						v[k][j] += s * v[k][i]
					}
				}
			}
			for j := l; j < n; j++ {
				v[i][j], v[j][i] = 0, 0
			}
		}
		v[i][i] = 1
		g = rv1[i]
		l = i
	}

	// left-hand transformations
	for i := min(m, n) - 1; i >= 0; i-- {
		l = i + 1
		g = w[i]
		for j := l; j < n; j++ {
			a[i][j] = 0
		}
		if g != 0 {
			g = 1 / g
			for j := l; j < n; j++ {
				var s float64
				for k := l; k < m; k++ {
					s += a[k][i] * a[k][j]
				}
				f := (s / a[i][i]) * g
				for k := i; k < m; k++ {
					a[k][j] += f * a[k][i]
				}
			}
			for j := i; j < m; j++ {
				a[j][i] *= g
			}
		} else {
			for j := i; j < m; j++ {
				a[j][i] = 0
			}
		}
		a[i][i]++
	}

	converged := true
	for k := n - 1; k >= 0; k-- {
		for its := 1; its <= maxIter; its++ {
			split := true
			var nm int
			for l = k; l >= 0; l-- {
				nm = l - 1
				// rv1[0] is always zero, so the scan stops at l == 0
				if math.Abs(rv1[l])+anorm == anorm {
					split = false
					break
				}
				if math.Abs(w[nm])+anorm == anorm {
					break
				}
			}
			if split {
				c, s := 0.0, 1.0
				for i := l; i <= k; i++ {
					f := s * rv1[i]
					rv1[i] = c * rv1[i]
					if math.Abs(f)+anorm == anorm {
						break
					}
					g = w[i]
					h := math.Hypot(f, g)
					w[i] = h
					h = 1 / h
					c = g * h
					s = -f * h
					for j := 0; j < m; j++ {
						y, z := a[j][nm], a[j][i]
						a[j][nm] = y*c + z*s
						a[j][i] = z*c - y*s
					}
				}
			}

			z := w[k]
			if l == k {
				if z < 0 {
					w[k] = -z
					for j := 0; j < n; j++ {
						v[j][k] = -v[j][k]
					}
				}
				break
			}
			if its == maxIter {
				converged = false
				break
			}

			x := w[l]
			nm = k - 1
			y := w[nm]
			g = rv1[nm]
			h := rv1[k]
			f := ((y-z)*(y+z) + (g-h)*(g+h)) / (2 * h * y)
			g = math.Hypot(f, 1)
			f = ((x-z)*(x+z) + h*((y/(f+sign(g, f)))-h)) / x
			c, s := 1.0, 1.0
			for j := l; j <= nm; j++ {
				i := j + 1
				g = rv1[i]
				y = w[i]
				h = s * g
				g = c * g
				z = math.Hypot(f, h)
				rv1[j] = z
				c = f / z
				s = h / z
				f = x*c + g*s
				g = g*c - x*s
				h = y * s
				y *= c
				for jj := 0; jj < n; jj++ {
					x, z = v[jj][j], v[jj][i]
					v[jj][j] = x*c + z*s
					v[jj][i] = z*c - x*s
				}
				z = math.Hypot(f, h)
				w[j] = z
				if z != 0 {
					z = 1 / z
					c = f * z
					s = h * z
				}
				f = c*g + s*y
				x = c*y - s*g
				for jj := 0; jj < m; jj++ {
					y, z = a[jj][j], a[jj][i]
					a[jj][j] = y*c + z*s
					a[jj][i] = z*c - y*s
				}
			}
			rv1[l] = 0
			rv1[k] = f
			w[k] = x
		}
	}

	return converged
}

func sign(a, b float64) float64 {
	if b >= 0 {
		return math.Abs(a)
	}
	return -math.Abs(a)
}

func resizeSquare(a [][]float64, n int) [][]float64 {
	if cap(a) >= n {
		a = a[:n]
	} else {
		a = make([][]float64, n)
	}
	for i := range a {
		a[i] = resize(a[i], n)
		clear(a[i])
	}
	return a
}
