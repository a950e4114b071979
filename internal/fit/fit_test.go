package fit

import (
	"math"
	"testing"

	"github.com/kartikkumar/d2d-go/internal/elements"
	"github.com/kartikkumar/d2d-go/internal/meanelem"
)

const muEarth = 398600.4418

// keplerianPropagatorStub implements meanelem.Propagator by converting the
// candidate mean-element set straight to Cartesian via two-body Keplerian
// mechanics, standing in for SGP4 so the optimizer loop can be exercised
// without a live satellite propagator.
type keplerianPropagatorStub struct{}

func (keplerianPropagatorStub) Propagate(m meanelem.MeanElements, secondsFromEpoch float64) (elements.CartesianState, error) {
	n := 2 * math.Pi * m.MeanMotionRev / 86400.0
	meanAnomaly := degToRad(m.MeanAnomalyDeg) + n*secondsFromEpoch

	E, err := elements.MeanToEccentricAnomaly(math.Mod(meanAnomaly, 2*math.Pi), m.Eccentricity)
	if err != nil {
		return elements.CartesianState{}, err
	}
	nu := elements.EccentricToTrueAnomaly(E, m.Eccentricity)

	el := elements.KeplerianElements{
		SemiMajorAxisKm: math.Cbrt(muEarth / (n * n)),
		Eccentricity:    m.Eccentricity,
		InclinationRad:  degToRad(m.InclinationDeg),
		RAANRad:         degToRad(m.RAANDeg),
		ArgPeriapsisRad: degToRad(m.ArgPerigeeDeg),
		TrueAnomalyRad:  nu,
	}
	return elements.KeplerianToCartesian(el, muEarth, 1e-9)
}

func degToRad(d float64) float64 { return d * math.Pi / 180.0 }

// TestFitReproducesState: given a departure Cartesian state, the fitter
// produces mean elements whose propagation at epoch reproduces the input
// state.
func TestFitReproducesState(t *testing.T) {
	// A bound (elliptic) state: speed well below escape velocity at this
	// radius, so the mean-element parameterization can represent it.
	target := elements.CartesianState{
		Position: elements.Vector3{7806.3, 8214.5, -445.8},
		Velocity: elements.Vector3{-4.9, 4.7, 0.24},
	}
	seed := meanelem.MeanElements{
		NoradID:       12345,
		MeanMotionRev: 14.2,
		Eccentricity:  0.001,
	}

	tol := Tolerance{RelativeStep: 1e-6, AbsoluteStep: 1e-6}
	fitted, err := Fit(target, 2451545.0, seed, muEarth, tol, keplerianPropagatorStub{})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	got, err := keplerianPropagatorStub{}.Propagate(fitted, 0)
	if err != nil {
		t.Fatalf("Propagate(fitted): %v", err)
	}

	for axis := 0; axis < 3; axis++ {
		if math.Abs(got.Position[axis]-target.Position[axis]) > 1e-3 {
			t.Errorf("position[%d] = %g, want %g", axis, got.Position[axis], target.Position[axis])
		}
		if math.Abs(got.Velocity[axis]-target.Velocity[axis]) > 1e-6 {
			t.Errorf("velocity[%d] = %g, want %g", axis, got.Velocity[axis], target.Velocity[axis])
		}
	}
}

func TestMeanElementsAngleNormalization(t *testing.T) {
	m := meanelem.MeanElements{InclinationDeg: -10, RAANDeg: 400, ArgPerigeeDeg: -1, MeanAnomalyDeg: 720}
	n := m.NormalizeAngles()
	if n.InclinationDeg < 0 || n.InclinationDeg > 180 {
		t.Errorf("inclination = %g, want [0,180]", n.InclinationDeg)
	}
	if n.RAANDeg < 0 || n.RAANDeg >= 360 {
		t.Errorf("RAAN = %g, want [0,360)", n.RAANDeg)
	}
	if n.ArgPerigeeDeg < 0 || n.ArgPerigeeDeg >= 360 {
		t.Errorf("arg perigee = %g, want [0,360)", n.ArgPerigeeDeg)
	}
	if n.MeanAnomalyDeg < 0 || n.MeanAnomalyDeg >= 360 {
		t.Errorf("mean anomaly = %g, want [0,360)", n.MeanAnomalyDeg)
	}
}
