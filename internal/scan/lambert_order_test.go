package scan

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kartikkumar/d2d-go/internal/catalog"
	"github.com/kartikkumar/d2d-go/internal/meanelem"
)

// orderingCatalog builds three LEO objects in distinct orbital planes so
// that every ordered pair yields a non-collinear, solvable Lambert problem.
func orderingCatalog() []catalog.Entry {
	base := meanelem.MeanElements{
		EpochJD:        2460310.5,
		InclinationDeg: 51.6,
		Eccentricity:   0.001,
		ArgPerigeeDeg:  0,
		MeanMotionRev:  15.5,
		BStar:          0.0001,
	}
	entries := make([]catalog.Entry, 3)
	raans := []float64{0, 120, 240}
	anomalies := []float64{0, 90, 180}
	ids := []int{30001, 30002, 30003}
	for i := range entries {
		el := base
		el.NoradID = ids[i]
		el.RAANDeg = raans[i]
		el.MeanAnomalyDeg = anomalies[i]
		entries[i] = catalog.Entry{ID: ids[i], Name: "obj", Elements: el}
	}
	return entries
}

// pairIndex maps a catalog NoradID back to its position in orderingCatalog,
// the index runLambertSingleThreaded enumerates its pairs over.
func pairIndex(entries []catalog.Entry, id int) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// TestRunLambertSingleThreadedOrdering: with Workers<=1, rows must come out
// in strict lexicographic (p,q,k,branch) order, matching the nested-loop
// enumeration over the catalog.
func TestRunLambertSingleThreadedOrdering(t *testing.T) {
	entries := orderingCatalog()

	pairs := make([][2]int, 0, len(entries)*(len(entries)-1))
	for p := range entries {
		for q := range entries {
			if p == q {
				continue
			}
			pairs = append(pairs, [2]int{p, q})
		}
	}

	cfg := LambertScanConfig{
		Catalog:            entries,
		TimeOfFlightMinSec: 1200,
		TimeOfFlightMaxSec: 2400,
		TimeOfFlightSteps:  3,
		Prograde:           true,
		RevolutionsMax:     0,
	}
	tofGrid := timeOfFlightGrid(cfg.TimeOfFlightMinSec, cfg.TimeOfFlightMaxSec, cfg.TimeOfFlightSteps)

	logger := zerolog.Nop()
	progress := newProgressReporter(logger, len(pairs)*len(tofGrid))

	rows, err := runLambertSingleThreaded(context.Background(), cfg, pairs, tofGrid, progress, logger)
	if err != nil {
		t.Fatalf("runLambertSingleThreaded: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("expected at least one row from a 3-object, 3-step-TOF scan")
	}

	pairRank := func(depID, arrID int) int {
		p := pairIndex(entries, depID)
		q := pairIndex(entries, arrID)
		for i, pr := range pairs {
			if pr[0] == p && pr[1] == q {
				return i
			}
		}
		t.Fatalf("row (%d,%d) is not a known catalog pair", depID, arrID)
		return -1
	}

	lastPairRank := -1
	var lastTOF float64
	sawNewPair := true
	for _, row := range rows {
		rank := pairRank(row.DepartureObjectID, row.ArrivalObjectID)
		if rank < lastPairRank {
			t.Fatalf("pair order violated: row for pair rank %d appeared after rank %d", rank, lastPairRank)
		}
		if rank != lastPairRank {
			lastPairRank = rank
			lastTOF = -1
			sawNewPair = true
		}
		if !sawNewPair && row.TimeOfFlightSec < lastTOF {
			t.Fatalf("time-of-flight order violated within pair rank %d: %g came after %g", rank, row.TimeOfFlightSec, lastTOF)
		}
		lastTOF = row.TimeOfFlightSec
		sawNewPair = false
	}
}
