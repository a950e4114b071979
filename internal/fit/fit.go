// Package fit implements the virtual-TLE fitter: given a Cartesian state and
// epoch, produce a mean-element set whose SGP4/SDP4 propagation reproduces
// that state to a prescribed tolerance.
//
// The objective packs a candidate osculating state into a mean-element
// record, re-propagates it with SGP4, and measures the Cartesian residual.
// The minimizer is gonum.org/v1/gonum/optimize's Nelder-Mead, a
// derivative-free search suited to an objective with no usable gradient.
package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/kartikkumar/d2d-go/internal/elements"
	"github.com/kartikkumar/d2d-go/internal/meanelem"
	"github.com/kartikkumar/d2d-go/internal/units"
)

// Tolerance bundles the fitter's termination and convergence thresholds.
type Tolerance struct {
	RelativeStep float64
	AbsoluteStep float64
}

// DivergenceError reports that the fit failed the post-optimization
// convergence test; it carries the last residual for diagnostics.
type DivergenceError struct {
	PositionResidualKm  float64
	VelocityResidualKmS float64
	NonFiniteComponent  bool
}

func (e *DivergenceError) Error() string {
	if e.NonFiniteComponent {
		return "fit: virtual-TLE fit diverged (non-finite propagated state)"
	}
	return fmt.Sprintf("fit: virtual-TLE fit did not converge, position residual %g km, velocity residual %g km/s",
		e.PositionResidualKm, e.VelocityResidualKmS)
}

const (
	maxIterations = 2000
	// The objective's residual terms are expressed in meters and m/s for
	// uniform conditioning; the decision vector itself stays in natural
	// units (km, radians).
	kmToM = 1000.0
)

// Fit synthesizes a mean-element set whose propagation at a zero epoch
// offset reproduces target at targetEpochJD within tol. The seed supplies
// the catalog identity and drag auxiliaries the decision variables do not
// cover.
func Fit(target elements.CartesianState, targetEpochJD float64, seed meanelem.MeanElements, mu float64, tol Tolerance, propagate meanelem.Propagator) (meanelem.MeanElements, error) {
	seedOsculating, err := elements.CartesianToKeplerian(target, mu, 1e-9)
	if err != nil {
		return meanelem.MeanElements{}, fmt.Errorf("fit: seeding from target state: %w", err)
	}
	// A mean-element set can only represent a bound orbit; a hyperbolic
	// target (e.g. a high-Δv transfer branch) has no fit.
	if seedOsculating.Eccentricity >= 1 || seedOsculating.SemiMajorAxisKm <= 0 {
		return meanelem.MeanElements{}, fmt.Errorf("fit: target state is not elliptic (e=%g, a=%g km)",
			seedOsculating.Eccentricity, seedOsculating.SemiMajorAxisKm)
	}

	x0 := []float64{
		seedOsculating.SemiMajorAxisKm,
		seedOsculating.Eccentricity,
		seedOsculating.InclinationRad,
		seedOsculating.RAANRad,
		seedOsculating.ArgPeriapsisRad,
		meanAnomalyFromOsculating(seedOsculating),
	}

	pack := func(x []float64) meanelem.MeanElements {
		el := elements.KeplerianElements{
			SemiMajorAxisKm: x[0],
			Eccentricity:    x[1],
			InclinationRad:  x[2],
			RAANRad:         x[3],
			ArgPeriapsisRad: x[4],
		}
		meanMotionRev := meanMotionRevPerDay(x[0], mu)
		m := meanelem.MeanElements{
			NoradID:           seed.NoradID,
			Name:              seed.Name,
			EpochJD:           targetEpochJD,
			Designator:        seed.Designator,
			InclinationDeg:    units.NewAngle(el.InclinationRad).Degrees(),
			RAANDeg:           units.NewAngle(el.RAANRad).Degrees(),
			Eccentricity:      el.Eccentricity,
			ArgPerigeeDeg:     units.NewAngle(el.ArgPeriapsisRad).Degrees(),
			MeanAnomalyDeg:    units.NewAngle(x[5]).Degrees(),
			MeanMotionRev:     meanMotionRev,
			MeanMotionDotRev:  seed.MeanMotionDotRev,
			MeanMotionDDotRev: seed.MeanMotionDDotRev,
			BStar:             seed.BStar,
			ElementSetNumber:  seed.ElementSetNumber,
			RevolutionAtEpoch: seed.RevolutionAtEpoch,
			EphemerisType:     seed.EphemerisType,
		}
		return m.NormalizeAngles()
	}

	objective := func(x []float64) float64 {
		// Reject simplex vertices outside the elliptic domain before they
		// reach the propagator's text codec.
		if x[0] <= 0 || x[1] < 0 || x[1] >= 1 {
			return math.Inf(1)
		}
		candidate := pack(x)
		state, err := propagate.Propagate(candidate, 0)
		if err != nil {
			return math.Inf(1)
		}
		dPos := sub(state.Position, target.Position)
		dVel := sub(state.Velocity, target.Velocity)
		posResidualM := norm(dPos) * kmToM
		velResidualMps := norm(dVel) * kmToM
		return posResidualM*posResidualM + velResidualMps*velResidualMps
	}

	problem := optimize.Problem{Func: objective}
	result, err := optimize.Minimize(problem, x0, &optimize.Settings{
		MajorIterations: maxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   tol.AbsoluteStep * tol.AbsoluteStep,
			Iterations: 50,
		},
	}, &optimize.NelderMead{})
	if err != nil {
		return meanelem.MeanElements{}, fmt.Errorf("fit: optimization failed: %w", err)
	}

	fitted := pack(result.X)

	finalState, propErr := propagate.Propagate(fitted, 0)
	if propErr != nil {
		return meanelem.MeanElements{}, &DivergenceError{NonFiniteComponent: true}
	}

	if !convergenceTest(finalState, target, tol) {
		dPos := sub(finalState.Position, target.Position)
		dVel := sub(finalState.Velocity, target.Velocity)
		return meanelem.MeanElements{}, &DivergenceError{
			PositionResidualKm:  norm(dPos),
			VelocityResidualKmS: norm(dVel),
		}
	}

	return fitted, nil
}

// convergenceTest checks, for each Cartesian component, that
// |predicted - target| <= tol_abs + tol_rel*|target| and that no component
// is non-finite.
func convergenceTest(predicted, target elements.CartesianState, tol Tolerance) bool {
	check := func(p, t float64) bool {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return false
		}
		return math.Abs(p-t) <= tol.AbsoluteStep+tol.RelativeStep*math.Abs(t)
	}
	for axis := 0; axis < 3; axis++ {
		if !check(predicted.Position[axis], target.Position[axis]) {
			return false
		}
		if !check(predicted.Velocity[axis], target.Velocity[axis]) {
			return false
		}
	}
	return true
}

func meanAnomalyFromOsculating(el elements.KeplerianElements) float64 {
	E := elements.TrueToEccentricAnomaly(el.TrueAnomalyRad, el.Eccentricity)
	return elements.EccentricToMeanAnomaly(E, el.Eccentricity)
}

func meanMotionRevPerDay(aKm, mu float64) float64 {
	n := math.Sqrt(mu / (aKm * aKm * aKm)) // rad/s
	return n * 86400.0 / (2 * math.Pi)
}

func sub(a, b elements.Vector3) elements.Vector3 {
	return elements.Vector3{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func norm(a elements.Vector3) float64 {
	return math.Sqrt(a[0]*a[0] + a[1]*a[1] + a[2]*a[2])
}
