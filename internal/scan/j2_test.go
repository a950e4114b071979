package scan

import (
	"math"
	"testing"

	"github.com/kartikkumar/d2d-go/internal/elements"
	"github.com/kartikkumar/d2d-go/internal/meanelem"
	"github.com/kartikkumar/d2d-go/internal/store"
)

// TestJ2SecularRates checks the inclination structure of the secular drift:
// the node rate vanishes for a polar orbit, and the perigee rate flips sign
// between equatorial and polar geometry on otherwise identical elements.
func TestJ2SecularRates(t *testing.T) {
	a, e := 7000.0, 0.01
	p := a * (1 - e*e)
	n := math.Sqrt(meanelem.MuEarth / (a * a * a))

	raanDotPolar, argDotPolar := j2SecularRates(n, p, math.Pi/2)
	if math.Abs(raanDotPolar) > 1e-18 {
		t.Errorf("polar node rate = %g, want 0", raanDotPolar)
	}

	raanDotEq, argDotEq := j2SecularRates(n, p, 0)
	if raanDotEq >= 0 {
		t.Errorf("equatorial node rate = %g, want negative", raanDotEq)
	}
	if argDotEq <= 0 {
		t.Errorf("equatorial perigee rate = %g, want positive", argDotEq)
	}
	if argDotPolar >= 0 {
		t.Errorf("polar perigee rate = %g, want negative (opposite sign to equatorial)", argDotPolar)
	}
}

// TestEvaluateJ2RowErrorNorm builds a transfer row from an elliptic Kepler
// state, runs the secular correction, and checks that the recorded error
// magnitudes equal the Euclidean norm of their components.
func TestEvaluateJ2RowErrorNorm(t *testing.T) {
	el := elements.KeplerianElements{
		SemiMajorAxisKm: 7000,
		Eccentricity:    0.01,
		InclinationRad:  0.9,
		RAANRad:         0.5,
		ArgPeriapsisRad: 0.3,
		TrueAnomalyRad:  0.1,
	}
	state, err := elements.KeplerianToCartesian(el, meanelem.MuEarth, 1e-9)
	if err != nil {
		t.Fatalf("KeplerianToCartesian: %v", err)
	}

	lr := store.LambertRow{
		TransferID:         7,
		TimeOfFlightSec:    1200,
		DeparturePositionX: state.Position[0],
		DeparturePositionY: state.Position[1],
		DeparturePositionZ: state.Position[2],
		DepartureVelocityX: state.Velocity[0],
		DepartureVelocityY: state.Velocity[1],
		DepartureVelocityZ: state.Velocity[2],
		ArrivalPositionX:   state.Position[0],
		ArrivalPositionY:   state.Position[1],
		ArrivalPositionZ:   state.Position[2],
		ArrivalVelocityX:   state.Velocity[0],
		ArrivalVelocityY:   state.Velocity[1],
		ArrivalVelocityZ:   state.Velocity[2],
	}

	row, err := evaluateJ2Row(lr)
	if err != nil {
		t.Fatalf("evaluateJ2Row: %v", err)
	}
	if !row.Success {
		t.Fatal("success = false, want true")
	}
	if row.LambertTransferID != 7 {
		t.Errorf("LambertTransferID = %d, want 7", row.LambertTransferID)
	}

	wantPos := math.Sqrt(row.ArrivalPosXError*row.ArrivalPosXError +
		row.ArrivalPosYError*row.ArrivalPosYError +
		row.ArrivalPosZError*row.ArrivalPosZError)
	if math.Abs(row.ArrivalPositionError-wantPos) > 1e-9 {
		t.Errorf("position error magnitude = %g, want %g (norm of components)", row.ArrivalPositionError, wantPos)
	}
	wantVel := math.Sqrt(row.ArrivalVelXError*row.ArrivalVelXError +
		row.ArrivalVelYError*row.ArrivalVelYError +
		row.ArrivalVelZError*row.ArrivalVelZError)
	if math.Abs(row.ArrivalVelocityError-wantVel) > 1e-12 {
		t.Errorf("velocity error magnitude = %g, want %g (norm of components)", row.ArrivalVelocityError, wantVel)
	}
}
