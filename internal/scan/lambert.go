// Package scan implements the three grid-scan drivers: the Lambert grid
// scan, the SGP4 grid scan, and the J2 secular analysis. All three share the
// same shape: read upstream rows (or the catalog), evaluate a per-row
// numerical bridge, and write through the result store, which is the single
// source of truth between stages.
package scan

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kartikkumar/d2d-go/internal/catalog"
	"github.com/kartikkumar/d2d-go/internal/elements"
	"github.com/kartikkumar/d2d-go/internal/lambert"
	"github.com/kartikkumar/d2d-go/internal/meanelem"
	"github.com/kartikkumar/d2d-go/internal/store"
	"github.com/kartikkumar/d2d-go/internal/units"
)

// channelHighWaterMark bounds the completed-record channel workers feed into
// the single writer goroutine, providing backpressure when the writer lags.
const channelHighWaterMark = 4096

// progressInterval rate-limits the scan's progress line.
const progressInterval = 2 * time.Second

// LambertScanConfig bundles the Lambert grid scan's inputs.
type LambertScanConfig struct {
	Catalog []catalog.Entry

	// DepartureEpochJD overrides every departure object's time-of-flight
	// origin when non-nil; nil means each departure object's own TLE epoch.
	DepartureEpochJD *float64

	TimeOfFlightMinSec float64
	TimeOfFlightMaxSec float64
	TimeOfFlightSteps  int // K, inclusive endpoints, uniform spacing when K>=2

	Prograde       bool
	RevolutionsMax int

	// Workers caps the number of goroutines evaluating (p,q) pairs
	// concurrently. 0 or 1 selects single-threaded mode, which produces
	// insertions in (p,q,k,branch) lexicographic order for reproducible
	// runs.
	Workers int
}

// RunLambertScan enumerates every ordered pair of catalog objects, every
// sampled time of flight, and every Lambert branch, and persists a transfer
// row for each.
func RunLambertScan(ctx context.Context, cfg LambertScanConfig, st *store.Store, logger zerolog.Logger) error {
	if err := st.CreateLambertTable(); err != nil {
		return fmt.Errorf("scan: creating lambert table: %w", err)
	}

	tofGrid := timeOfFlightGrid(cfg.TimeOfFlightMinSec, cfg.TimeOfFlightMaxSec, cfg.TimeOfFlightSteps)

	pairs := make([][2]int, 0, len(cfg.Catalog)*(len(cfg.Catalog)-1))
	for p := range cfg.Catalog {
		for q := range cfg.Catalog {
			if p == q {
				continue
			}
			pairs = append(pairs, [2]int{p, q})
		}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	var rows []store.LambertRow
	var rowErr error
	progress := newProgressReporter(logger, len(pairs)*len(tofGrid))

	if workers == 1 {
		rows, rowErr = runLambertSingleThreaded(ctx, cfg, pairs, tofGrid, progress, logger)
	} else {
		rows, rowErr = runLambertParallel(ctx, cfg, pairs, tofGrid, workers, progress, logger)
	}
	if rowErr != nil {
		return rowErr
	}

	logger.Info().Int("rows", len(rows)).Msg("lambert scan complete, committing")
	if err := st.InsertLambertRows(rows); err != nil {
		return fmt.Errorf("scan: committing lambert rows: %w", err)
	}

	if err := st.CreateLambertIndex(); err != nil {
		return fmt.Errorf("scan: indexing lambert rows: %w", err)
	}

	return nil
}

func timeOfFlightGrid(min, max float64, steps int) []float64 {
	if steps <= 1 {
		return []float64{min}
	}
	grid := make([]float64, steps)
	step := (max - min) / float64(steps-1)
	for k := 0; k < steps; k++ {
		grid[k] = min + float64(k)*step
	}
	return grid
}

func runLambertSingleThreaded(ctx context.Context, cfg LambertScanConfig, pairs [][2]int, tofGrid []float64, progress *progressReporter, logger zerolog.Logger) ([]store.LambertRow, error) {
	propagator := meanelem.NewSGP4Propagator()
	var rows []store.LambertRow

	for _, pair := range pairs {
		select {
		case <-ctx.Done():
			logger.Warn().Msg("lambert scan cancelled, committing completed rows")
			return rows, nil
		default:
		}

		pairRows, err := evaluatePair(cfg, pair[0], pair[1], tofGrid, propagator, logger)
		if err != nil {
			return nil, err
		}
		rows = append(rows, pairRows...)
		progress.add(len(tofGrid))
	}
	return rows, nil
}

func runLambertParallel(ctx context.Context, cfg LambertScanConfig, pairs [][2]int, tofGrid []float64, workers int, progress *progressReporter, logger zerolog.Logger) ([]store.LambertRow, error) {
	if workers > runtime.NumCPU() {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}

	type indexRange struct{ start, end int }
	chunk := (len(pairs) + workers - 1) / workers
	if chunk == 0 {
		chunk = 1
	}
	var ranges []indexRange
	for start := 0; start < len(pairs); start += chunk {
		end := start + chunk
		if end > len(pairs) {
			end = len(pairs)
		}
		ranges = append(ranges, indexRange{start, end})
	}

	resultCh := make(chan []store.LambertRow, channelHighWaterMark)
	errCh := make(chan error, len(ranges))
	var wg sync.WaitGroup

	for _, r := range ranges {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			propagator := meanelem.NewSGP4Propagator() // thread-local, never shared
			for i := r.start; i < r.end; i++ {
				select {
				case <-ctx.Done():
					return
				default:
				}
				pairRows, err := evaluatePair(cfg, pairs[i][0], pairs[i][1], tofGrid, propagator, logger)
				if err != nil {
					errCh <- err
					return
				}
				resultCh <- pairRows
				progress.add(len(tofGrid))
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
		close(errCh)
	}()

	var rows []store.LambertRow
	for pairRows := range resultCh {
		rows = append(rows, pairRows...)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return rows, nil
}

// evaluatePair computes every LambertRow for one (departure, arrival) pair
// across the full time-of-flight grid, in lexicographic (k, branch) order.
func evaluatePair(cfg LambertScanConfig, p, q int, tofGrid []float64, propagator meanelem.Propagator, logger zerolog.Logger) ([]store.LambertRow, error) {
	depEntry := cfg.Catalog[p]
	arrEntry := cfg.Catalog[q]

	departureEpochJD := depEntry.Elements.EpochJD
	if cfg.DepartureEpochJD != nil {
		departureEpochJD = *cfg.DepartureEpochJD
	}

	departureState, err := propagator.Propagate(depEntry.Elements, (departureEpochJD-depEntry.Elements.EpochJD)*86400.0)
	if err != nil {
		logger.Debug().Err(err).Int("object", depEntry.ID).Msg("skipping pair: departure propagation failed")
		return nil, nil
	}

	var rows []store.LambertRow
	for _, tof := range tofGrid {
		arrivalSecondsFromArrivalEpoch := (departureEpochJD + tof/86400.0 - arrEntry.Elements.EpochJD) * 86400.0
		arrivalState, err := propagator.Propagate(arrEntry.Elements, arrivalSecondsFromArrivalEpoch)
		if err != nil {
			logger.Debug().Err(err).Int("object", arrEntry.ID).Float64("tof", tof).Msg("skipping row: arrival propagation failed")
			continue
		}

		branches, err := lambert.SolveLambert(departureState.Position, arrivalState.Position, tof, meanelem.MuEarth, cfg.Prograde, cfg.RevolutionsMax)
		if err != nil {
			logger.Debug().Err(err).Msg("skipping row: invalid Lambert geometry")
			continue
		}

		for _, branch := range branches {
			row, err := buildLambertRow(depEntry, arrEntry, departureEpochJD, tof, branch, departureState, arrivalState, cfg.Prograde)
			if err != nil {
				logger.Debug().Err(err).Msg("skipping branch: degenerate transfer elements")
				continue
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func buildLambertRow(dep, arr catalog.Entry, departureEpochJD, tof float64, branch lambert.Branch, departureState, arrivalState elements.CartesianState, prograde bool) (store.LambertRow, error) {
	depDeltaV := elements.Vector3{
		branch.V1[0] - departureState.Velocity[0],
		branch.V1[1] - departureState.Velocity[1],
		branch.V1[2] - departureState.Velocity[2],
	}
	arrDeltaV := elements.Vector3{
		arrivalState.Velocity[0] - branch.V2[0],
		arrivalState.Velocity[1] - branch.V2[1],
		arrivalState.Velocity[2] - branch.V2[2],
	}

	transferDeparture := elements.CartesianState{Position: departureState.Position, Velocity: branch.V1}
	kep, err := elements.CartesianToKeplerian(transferDeparture, meanelem.MuEarth, 1e-9)
	if err != nil {
		return store.LambertRow{}, err
	}

	totalDeltaV := vectorNorm(depDeltaV) + vectorNorm(arrDeltaV)

	return store.LambertRow{
		DepartureObjectID:  dep.ID,
		ArrivalObjectID:    arr.ID,
		DepartureEpochJD:   departureEpochJD,
		TimeOfFlightSec:    tof,
		Revolutions:        branch.Revolutions,
		IsLowPath:          branch.LowPath,
		Prograde:           prograde,
		DeparturePositionX: departureState.Position[0],
		DeparturePositionY: departureState.Position[1],
		DeparturePositionZ: departureState.Position[2],
		DepartureVelocityX: departureState.Velocity[0],
		DepartureVelocityY: departureState.Velocity[1],
		DepartureVelocityZ: departureState.Velocity[2],
		DepartureDeltaVX:   depDeltaV[0],
		DepartureDeltaVY:   depDeltaV[1],
		DepartureDeltaVZ:   depDeltaV[2],
		ArrivalPositionX:   arrivalState.Position[0],
		ArrivalPositionY:   arrivalState.Position[1],
		ArrivalPositionZ:   arrivalState.Position[2],
		ArrivalVelocityX:   arrivalState.Velocity[0],
		ArrivalVelocityY:   arrivalState.Velocity[1],
		ArrivalVelocityZ:   arrivalState.Velocity[2],
		ArrivalDeltaVX:     arrDeltaV[0],
		ArrivalDeltaVY:     arrDeltaV[1],
		ArrivalDeltaVZ:     arrDeltaV[2],
		SemiMajorAxisKm:    kep.SemiMajorAxisKm,
		Eccentricity:       kep.Eccentricity,
		InclinationDeg:     units.NewAngle(kep.InclinationRad).Degrees(),
		RAANDeg:            units.NewAngle(kep.RAANRad).Degrees(),
		ArgPerigeeDeg:      units.NewAngle(kep.ArgPeriapsisRad).Degrees(),
		TrueAnomalyDeg:     units.NewAngle(kep.TrueAnomalyRad).Degrees(),
		TransferDeltaV:     totalDeltaV,
	}, nil
}

func vectorNorm(v elements.Vector3) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// progressReporter prints a rate-limited completion line at info level.
type progressReporter struct {
	logger    zerolog.Logger
	total     int
	mu        sync.Mutex
	completed int
	last      time.Time
}

func newProgressReporter(logger zerolog.Logger, total int) *progressReporter {
	return &progressReporter{logger: logger, total: total, last: time.Now()}
}

// add is safe for concurrent use: runLambertParallel's workers each report
// their own pair's completions into the same reporter.
func (p *progressReporter) add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed += n
	if time.Since(p.last) >= progressInterval || p.completed >= p.total {
		p.logger.Info().Int("completed", p.completed).Int("total", p.total).Msg("scan progress")
		p.last = time.Now()
	}
}
