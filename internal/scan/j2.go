package scan

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/kartikkumar/d2d-go/internal/elements"
	"github.com/kartikkumar/d2d-go/internal/meanelem"
	"github.com/kartikkumar/d2d-go/internal/store"
)

// earthMeanRadiusKm (the WGS72 equatorial radius) and j2Constant (the
// rounded value 1.08263e-3) are the constants the secular correction is
// evaluated against.
const (
	earthMeanRadiusKm = 6378.135
	j2Constant        = 1.08263e-3
)

// J2ScanConfig bundles the J2 analysis inputs. It has no tunable parameters
// beyond the shortlist, which the caller handles via the store directly.
type J2ScanConfig struct{}

// RunJ2Analysis applies, for each successful sgp4 row, a first-order J2
// secular correction to the Keplerian transfer departure state over the
// transfer's time of flight, and records the analogous arrival miss.
func RunJ2Analysis(ctx context.Context, cfg J2ScanConfig, st *store.Store, logger zerolog.Logger) error {
	if err := st.CreateScanTable("j2"); err != nil {
		return fmt.Errorf("scan: preparing j2 table: %w", err)
	}

	lambertRows, err := st.LambertRows()
	if err != nil {
		return fmt.Errorf("scan: reading lambert rows: %w", err)
	}
	sgp4Success, err := successfulSGP4ByTransferID(st)
	if err != nil {
		return err
	}

	var rows []store.ScanRow
	progress := newProgressReporter(logger, len(sgp4Success))
	for _, lr := range lambertRows {
		if !sgp4Success[lr.TransferID] {
			continue
		}

		select {
		case <-ctx.Done():
			logger.Warn().Msg("j2 analysis cancelled, committing completed rows")
			if err := st.InsertScanRows("j2", rows); err != nil {
				return fmt.Errorf("scan: committing j2 rows: %w", err)
			}
			return nil
		default:
		}

		row, err := evaluateJ2Row(lr)
		if err != nil {
			logger.Debug().Err(err).Int("transfer_id", int(lr.TransferID)).Msg("j2 analysis: degenerate transfer elements")
			rows = append(rows, zeroScanRow(lr.TransferID))
			progress.add(1)
			continue
		}
		rows = append(rows, row)
		progress.add(1)
	}

	logger.Info().Int("rows", len(rows)).Msg("j2 analysis complete, committing")
	if err := st.InsertScanRows("j2", rows); err != nil {
		return fmt.Errorf("scan: committing j2 rows: %w", err)
	}
	return nil
}

// successfulSGP4ByTransferID collects the transfer ids of every sgp4 row
// with success set.
func successfulSGP4ByTransferID(st *store.Store) (map[int64]bool, error) {
	rows, err := st.SuccessfulScanTransferIDs("sgp4")
	if err != nil {
		return nil, fmt.Errorf("scan: reading sgp4 successes: %w", err)
	}
	out := make(map[int64]bool, len(rows))
	for _, id := range rows {
		out[id] = true
	}
	return out, nil
}

func evaluateJ2Row(lr store.LambertRow) (store.ScanRow, error) {
	transferDeparture := elements.CartesianState{
		Position: elements.Vector3{lr.DeparturePositionX, lr.DeparturePositionY, lr.DeparturePositionZ},
		Velocity: elements.Vector3{
			lr.DepartureVelocityX + lr.DepartureDeltaVX,
			lr.DepartureVelocityY + lr.DepartureDeltaVY,
			lr.DepartureVelocityZ + lr.DepartureDeltaVZ,
		},
	}

	kep, err := elements.CartesianToKeplerian(transferDeparture, meanelem.MuEarth, 1e-9)
	if err != nil {
		return store.ScanRow{}, err
	}

	a := kep.SemiMajorAxisKm
	e := kep.Eccentricity
	i := kep.InclinationRad
	p := a * (1 - e*e)

	n := math.Sqrt(meanelem.MuEarth / (a * a * a)) // rad/s

	raanDot, argPerigeeDot := j2SecularRates(n, p, i)

	dt := lr.TimeOfFlightSec
	deltaRAAN := raanDot * dt
	deltaArgPerigee := argPerigeeDot * dt

	eccentricAnomaly0 := elements.TrueToEccentricAnomaly(kep.TrueAnomalyRad, e)
	meanAnomaly0 := elements.EccentricToMeanAnomaly(eccentricAnomaly0, e)
	meanAnomalyF := meanAnomaly0 + n*dt
	eccentricAnomalyF, err := elements.MeanToEccentricAnomaly(meanAnomalyF, e)
	if err != nil {
		return store.ScanRow{}, err
	}
	trueAnomalyF := elements.EccentricToTrueAnomaly(eccentricAnomalyF, e)

	newElements := elements.KeplerianElements{
		SemiMajorAxisKm: a,
		Eccentricity:    e,
		InclinationRad:  i,
		RAANRad:         kep.RAANRad + deltaRAAN,
		ArgPeriapsisRad: kep.ArgPeriapsisRad + deltaArgPerigee,
		TrueAnomalyRad:  trueAnomalyF,
	}

	arrivalState, err := elements.KeplerianToCartesian(newElements, meanelem.MuEarth, 1e-9)
	if err != nil {
		return store.ScanRow{}, err
	}

	targetPosition := elements.Vector3{lr.ArrivalPositionX, lr.ArrivalPositionY, lr.ArrivalPositionZ}
	targetVelocity := elements.Vector3{
		lr.ArrivalVelocityX - lr.ArrivalDeltaVX,
		lr.ArrivalVelocityY - lr.ArrivalDeltaVY,
		lr.ArrivalVelocityZ - lr.ArrivalDeltaVZ,
	}

	return buildScanRow(lr.TransferID, arrivalState, targetPosition, targetVelocity), nil
}

// j2SecularRates returns the first-order secular drift rates of the
// ascending node and argument of perigee for mean motion n (rad/s),
// semi-latus rectum p (km), and inclination i (rad).
func j2SecularRates(n, p, i float64) (raanDot, argPerigeeDot float64) {
	k := j2Constant * (earthMeanRadiusKm / p) * (earthMeanRadiusKm / p)
	cosI := math.Cos(i)
	raanDot = -1.5 * n * k * cosI
	argPerigeeDot = 0.75 * n * k * (5*cosI*cosI - 1)
	return
}

