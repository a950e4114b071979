// Package lambert solves Lambert's problem: given two position vectors and a
// time of flight under a central gravity field, find the conic arc (or arcs,
// for multi-revolution transfers) connecting them.
//
// The solver follows Izzo's reformulation of Lambert's problem (D. Izzo,
// "Revisiting Lambert's Problem", 2014; see also Izzo & Gondolo, "On the
// Solution of Lambert's Problem by Householder's Method", 2012 PyKEP
// documentation): non-dimensionalize by the semi-perimeter, reduce the time
// equation to a scalar function of one variable x, and solve that scalar
// equation per branch with Householder's method (cubic convergence).
package lambert

import (
	"errors"
	"fmt"
	"math"

	"github.com/kartikkumar/d2d-go/internal/elements"
)

// ErrInvalidGeometry reports Δt≤0, μ≤0, or a zero-length endpoint position.
// Collinear endpoints are not an error: SolveLambert returns no branches.
var ErrInvalidGeometry = errors.New("lambert: invalid geometry")

// DivergenceError reports that Householder's method failed to converge for a
// specific revolution/branch combination; the branch is simply omitted from
// the result, it is not fatal to the overall solve.
type DivergenceError struct {
	Revolutions int
	LowPath     bool
	Iterations  int
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("lambert: Householder iteration did not converge for N=%d lowPath=%v after %d iterations",
		e.Revolutions, e.LowPath, e.Iterations)
}

// Branch is one solution of Lambert's problem: the velocity at each endpoint
// of the transfer conic consistent with the requested revolution count and
// period (short or long).
type Branch struct {
	Revolutions int
	LowPath     bool // true for the short-period solution within N>0
	V1          elements.Vector3
	V2          elements.Vector3
}

const (
	householderMaxIterations = 35
	householderTolerance     = 1e-12
)

// SolveLambert returns every feasible branch connecting r1 to r2 in time dt
// under gravitational parameter mu, up to nmax whole revolutions. Branches
// are ordered N=0 first, then ascending N, short-period before long-period
// within each N>0. The function is pure: it has no internal state and depends
// only on its arguments.
func SolveLambert(r1, r2 elements.Vector3, dt, mu float64, prograde bool, nmax int) ([]Branch, error) {
	if dt <= 0 || mu <= 0 {
		return nil, ErrInvalidGeometry
	}

	r1Norm := norm(r1)
	r2Norm := norm(r2)
	if r1Norm == 0 || r2Norm == 0 {
		return nil, ErrInvalidGeometry
	}

	crossR1R2 := cross(r1, r2)
	crossNorm := norm(crossR1R2)
	if crossNorm/(r1Norm*r2Norm) < 1e-12 {
		// Collinear endpoints: the transfer plane is undefined (Δθ≈0 or
		// Δθ≈π/2π); yield no solution rather than guessing a plane.
		return nil, nil
	}

	c := sub(r2, r1)
	cNorm := norm(c)
	s := (r1Norm + r2Norm + cNorm) * 0.5

	ir1 := scale(r1, 1.0/r1Norm)
	ir2 := scale(r2, 1.0/r2Norm)

	ih := scale(crossR1R2, 1.0/crossNorm)
	lambdaSq := 1.0 - cNorm/s
	lambda := math.Sqrt(math.Max(lambdaSq, 0))
	if ih[2] < 0 {
		lambda = -lambda
	}
	if !prograde {
		ih = scale(ih, -1)
		lambda = -lambda
	}

	it1 := cross(ih, ir1)
	it2 := cross(ih, ir2)

	tNonDim := math.Sqrt(2*mu/(s*s*s)) * dt

	var branches []Branch

	for n := 0; n <= nmax; n++ {
		lowPaths := []bool{true}
		if n > 0 {
			lowPaths = []bool{true, false}
		}
		for _, lowPath := range lowPaths {
			x0 := initialGuess(tNonDim, lambda, n, lowPath)
			x, _, err := householder(x0, tNonDim, lambda, n)
			if err != nil {
				// A branch that fails numerically is skipped, not fatal.
				continue
			}

			y := computeY(x, lambda)
			gamma := math.Sqrt(mu * s / 2.0)
			rho := (r1Norm - r2Norm) / cNorm
			sigma := math.Sqrt(math.Max(1-rho*rho, 0))

			vr1 := gamma * ((lambda*y - x) - rho*(lambda*y+x)) / r1Norm
			vr2 := -gamma * ((lambda*y - x) + rho*(lambda*y+x)) / r2Norm
			vt := gamma * sigma * (y + lambda*x)
			vt1 := vt / r1Norm
			vt2 := vt / r2Norm

			v1 := add(scale(ir1, vr1), scale(it1, vt1))
			v2 := add(scale(ir2, vr2), scale(it2, vt2))

			branches = append(branches, Branch{Revolutions: n, LowPath: lowPath, V1: v1, V2: v2})
		}
	}

	return branches, nil
}

// computeY evaluates the Lancaster-Blanchard auxiliary variable y(x).
func computeY(x, lambda float64) float64 {
	return math.Sqrt(math.Max(1-lambda*lambda*(1-x*x), 0))
}

// computePsi evaluates the transfer-angle-like auxiliary psi(x,y),
// elliptic/hyperbolic branches per Izzo's formulation.
func computePsi(x, y, lambda float64) float64 {
	if x >= -1 && x < 1 {
		return math.Acos(clamp(x*y+lambda*(1-x*x), -1, 1))
	}
	if x > 1 {
		return math.Asinh((y - x*lambda) * math.Sqrt(x*x-1))
	}
	return 0
}

// tofEquation evaluates T(x) - T0 for revolution count m.
func tofEquation(x, t0, lambda float64, m int) float64 {
	y := computeY(x, lambda)
	psi := computePsi(x, y, lambda)
	oneMinusX2 := 1 - x*x
	if math.Abs(oneMinusX2) < 1e-13 {
		oneMinusX2 = math.Copysign(1e-13, oneMinusX2)
	}
	t := ((psi+float64(m)*math.Pi)/math.Sqrt(math.Abs(oneMinusX2)) - x + lambda*y) / oneMinusX2
	return t - t0
}

func tofEquationP(x, y, t, lambda float64) float64 {
	denom := 1 - x*x
	return (3*t*x - 2 + 2*lambda*lambda*lambda*x/y) / denom
}

func tofEquationP2(x, y, t, dt, lambda float64) float64 {
	denom := 1 - x*x
	return (3*t + 5*x*dt + 2*(1-lambda*lambda)*lambda*lambda*lambda/(y*y*y)) / denom
}

func tofEquationP3(x, y, dt, ddt, lambda float64) float64 {
	denom := 1 - x*x
	return (7*x*ddt + 8*dt - 6*(1-lambda*lambda)*math.Pow(lambda, 5)*x/math.Pow(y, 5)) / denom
}

// householder refines x via Householder's method (cubic convergence),
// returning the converged x and iteration count, or DivergenceError if the
// iteration cap is exceeded.
func householder(x0, t0, lambda float64, m int) (float64, int, error) {
	x := x0
	for iter := 0; iter < householderMaxIterations; iter++ {
		y := computeY(x, lambda)
		fval := tofEquation(x, t0, lambda, m)
		t := fval + t0
		fder := tofEquationP(x, y, t, lambda)
		fder2 := tofEquationP2(x, y, t, fder, lambda)
		fder3 := tofEquationP3(x, y, fder, fder2, lambda)

		denom := fder*(fder*fder-fval*fder2) + fder3*fval*fval/6.0
		if denom == 0 {
			return 0, iter, &DivergenceError{Revolutions: m, Iterations: iter}
		}
		xNew := x - fval*(fder*fder-fval*fder2/2.0)/denom
		if math.IsNaN(xNew) || math.IsInf(xNew, 0) {
			return 0, iter, &DivergenceError{Revolutions: m, Iterations: iter}
		}
		if math.Abs(xNew-x) < householderTolerance {
			return xNew, iter, nil
		}
		x = xNew
	}
	return 0, householderMaxIterations, &DivergenceError{Revolutions: m, Iterations: householderMaxIterations}
}

// initialGuess produces a starting x for Householder iteration, following
// Izzo's piecewise initial-guess construction.
func initialGuess(t, lambda float64, m int, lowPath bool) float64 {
	if m == 0 {
		t0 := math.Acos(clamp(lambda, -1, 1)) + lambda*math.Sqrt(math.Max(1-lambda*lambda, 0))
		t1 := (2.0 / 3.0) * (1 - lambda*lambda*lambda)
		switch {
		case t >= t0:
			return math.Pow(t0/t, 2.0/3.0) - 1
		case t < t1:
			return 2.5*t1/t*(t1-t)/(1-math.Pow(lambda, 5)) + 1
		default:
			return math.Pow(t0/t, math.Log2(t1/t0)) - 1
		}
	}

	mpi := float64(m)*math.Pi + math.Pi
	if lowPath {
		v := math.Pow(mpi/(8*t), 2.0/3.0)
		return (v - 1) / (v + 1)
	}
	v := math.Pow(8*t/mpi, 2.0/3.0)
	return (v - 1) / (v + 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func cross(a, b elements.Vector3) elements.Vector3 {
	return elements.Vector3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func sub(a, b elements.Vector3) elements.Vector3 {
	return elements.Vector3{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func add(a, b elements.Vector3) elements.Vector3 {
	return elements.Vector3{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func scale(a elements.Vector3, s float64) elements.Vector3 {
	return elements.Vector3{a[0] * s, a[1] * s, a[2] * s}
}

func norm(a elements.Vector3) float64 {
	return math.Sqrt(a[0]*a[0] + a[1]*a[1] + a[2]*a[2])
}
