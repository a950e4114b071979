package scan

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kartikkumar/d2d-go/internal/elements"
	"github.com/kartikkumar/d2d-go/internal/fit"
	"github.com/kartikkumar/d2d-go/internal/meanelem"
	"github.com/kartikkumar/d2d-go/internal/store"
)

// lambertRowFromStates builds a lambert row whose departure and arrival
// columns hold the given SGP4 states, with zero burns: the transfer orbit is
// then the departure object's own trajectory, which the virtual-TLE fitter
// must be able to recover.
func lambertRowFromStates(depID, arrID int, epochJD, tof float64, departure, arrival elements.CartesianState) store.LambertRow {
	return store.LambertRow{
		DepartureObjectID:  depID,
		ArrivalObjectID:    arrID,
		DepartureEpochJD:   epochJD,
		TimeOfFlightSec:    tof,
		DeparturePositionX: departure.Position[0],
		DeparturePositionY: departure.Position[1],
		DeparturePositionZ: departure.Position[2],
		DepartureVelocityX: departure.Velocity[0],
		DepartureVelocityY: departure.Velocity[1],
		DepartureVelocityZ: departure.Velocity[2],
		ArrivalPositionX:   arrival.Position[0],
		ArrivalPositionY:   arrival.Position[1],
		ArrivalPositionZ:   arrival.Position[2],
		ArrivalVelocityX:   arrival.Velocity[0],
		ArrivalVelocityY:   arrival.Velocity[1],
		ArrivalVelocityZ:   arrival.Velocity[2],
	}
}

// TestRunSGP4ScanRowOutcomes seeds three lambert rows through the full scan:
// one over the Δv cutoff, one whose transfer state is hyperbolic so the
// virtual-TLE fit must fail, and one recoverable transfer. Every row must
// come back with a verdict: the first two as success=0 with zeroed error
// columns, the third as success=1 with error magnitudes that match their
// components. The real SGP4 propagator and fitter are exercised, same as
// production.
func TestRunSGP4ScanRowOutcomes(t *testing.T) {
	entries := orderingCatalog()
	dep := entries[0]

	propagator := meanelem.NewSGP4Propagator()
	departureState, err := propagator.Propagate(dep.Elements, 0)
	if err != nil {
		t.Fatalf("propagating departure object: %v", err)
	}
	const tof = 600.0
	arrivalState, err := propagator.Propagate(dep.Elements, tof)
	if err != nil {
		t.Fatalf("propagating to arrival: %v", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.CreateLambertTable(); err != nil {
		t.Fatalf("CreateLambertTable: %v", err)
	}

	overCutoff := lambertRowFromStates(dep.ID, entries[1].ID, dep.Elements.EpochJD, tof, departureState, arrivalState)
	overCutoff.TransferDeltaV = 9.0

	fitFailure := lambertRowFromStates(dep.ID, entries[1].ID, dep.Elements.EpochJD, tof, departureState, arrivalState)
	fitFailure.DepartureDeltaVX = 50.0 // pushes the transfer state hyperbolic
	fitFailure.TransferDeltaV = 0.5

	success := lambertRowFromStates(dep.ID, entries[1].ID, dep.Elements.EpochJD, tof, departureState, arrivalState)

	if err := st.InsertLambertRows([]store.LambertRow{overCutoff, fitFailure, success}); err != nil {
		t.Fatalf("InsertLambertRows: %v", err)
	}

	cfg := SGP4ScanConfig{
		Catalog:              entries,
		TransferDeltaVCutoff: 1.0,
		Tolerance:            fit.Tolerance{RelativeStep: 1e-3, AbsoluteStep: 1e-2},
	}
	if err := RunSGP4Scan(context.Background(), cfg, st, zerolog.Nop()); err != nil {
		t.Fatalf("RunSGP4Scan: %v", err)
	}

	assertZeroRow := func(transferID int64, label string) {
		t.Helper()
		row, err := st.ScanRowByLambertTransferID("sgp4", transferID)
		if err != nil {
			t.Fatalf("%s: reading sgp4 row: %v", label, err)
		}
		if row.Success {
			t.Errorf("%s: success = true, want false", label)
		}
		zeros := []float64{
			row.ArrivalPositionX, row.ArrivalPositionY, row.ArrivalPositionZ,
			row.ArrivalVelocityX, row.ArrivalVelocityY, row.ArrivalVelocityZ,
			row.ArrivalPosXError, row.ArrivalPosYError, row.ArrivalPosZError, row.ArrivalPositionError,
			row.ArrivalVelXError, row.ArrivalVelYError, row.ArrivalVelZError, row.ArrivalVelocityError,
		}
		for i, v := range zeros {
			if v != 0 {
				t.Errorf("%s: column %d = %g, want 0", label, i, v)
			}
		}
	}

	assertZeroRow(1, "over-cutoff transfer")
	assertZeroRow(2, "failed virtual-TLE fit")

	row, err := st.ScanRowByLambertTransferID("sgp4", 3)
	if err != nil {
		t.Fatalf("success transfer: reading sgp4 row: %v", err)
	}
	if !row.Success {
		t.Fatal("success transfer: success = false, want true")
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
