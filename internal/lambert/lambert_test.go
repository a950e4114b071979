package lambert

import (
	"math"
	"testing"

	"github.com/kartikkumar/d2d-go/internal/elements"
)

const muEarth = 398600.4418

// TestBranchCount: for r1=(10000,0,0), r2=(0,12000,0), Nmax=2, a
// sufficiently long flight time admitting one revolution must yield exactly
// 3 branches (N=0, then short/long period at N=1).
func TestBranchCount(t *testing.T) {
	r1 := elements.Vector3{10000, 0, 0}
	r2 := elements.Vector3{0, 12000, 0}

	// One full period of a 15000 km orbit sits between the minimum flight
	// times of the one- and two-revolution families for this geometry, so
	// exactly the N=0 and N=1 branches are feasible.
	dt := 2 * math.Pi * math.Sqrt(math.Pow(15000, 3)/muEarth)

	branches, err := SolveLambert(r1, r2, dt, muEarth, true, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(branches) != 3 {
		t.Fatalf("len(branches) = %d, want 3 (N=0, N=1 short, N=1 long)", len(branches))
	}
	if branches[0].Revolutions != 0 {
		t.Errorf("branches[0].Revolutions = %d, want 0", branches[0].Revolutions)
	}
	for _, b := range branches[1:] {
		if b.Revolutions != 1 {
			t.Errorf("branch.Revolutions = %d, want 1", b.Revolutions)
		}
	}
}

// TestBranchOrdering checks that N=0 precedes N>0 and that each N>0 carries
// exactly 0 or 2 entries.
func TestBranchOrdering(t *testing.T) {
	r1 := elements.Vector3{10000, 0, 0}
	r2 := elements.Vector3{0, 12000, 0}
	period := 2 * math.Pi * math.Sqrt(math.Pow(15000, 3)/muEarth)

	branches, err := SolveLambert(r1, r2, 1.3*period, muEarth, true, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	counts := map[int]int{}
	lastN := -1
	for _, b := range branches {
		if b.Revolutions < lastN {
			t.Fatalf("branch N=%d appeared after N=%d, ordering violated", b.Revolutions, lastN)
		}
		lastN = b.Revolutions
		counts[b.Revolutions]++
	}
	for n, count := range counts {
		if n == 0 {
			continue
		}
		if count != 0 && count != 2 {
			t.Errorf("N=%d has %d branches, want 0 or 2", n, count)
		}
	}
}

// TestBoundaryMatch checks that a Kepler propagation of (r1,v1) by dt along
// each returned branch reproduces r2.
func TestBoundaryMatch(t *testing.T) {
	r1 := elements.Vector3{7000, 0, 0}
	r2 := elements.Vector3{0, 8000, 1000}
	dt := 1800.0

	branches, err := SolveLambert(r1, r2, dt, muEarth, true, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(branches) == 0 {
		t.Fatalf("expected at least one branch")
	}

	for i, b := range branches {
		state := elements.CartesianState{Position: r1, Velocity: b.V1}
		samples, err := elements.SampleKeplerOrbit(state, dt, 1, muEarth, 2451545.0)
		if err != nil {
			t.Fatalf("branch %d: SampleKeplerOrbit: %v", i, err)
		}
		got := samples[len(samples)-1].State.Position
		for axis := 0; axis < 3; axis++ {
			if math.Abs(got[axis]-r2[axis]) > 1e-3 {
				t.Errorf("branch %d: position[%d] = %g, want %g", i, axis, got[axis], r2[axis])
			}
		}
	}
}

func TestInvalidGeometry(t *testing.T) {
	r1 := elements.Vector3{7000, 0, 0}
	r2 := elements.Vector3{0, 8000, 0}

	if _, err := SolveLambert(r1, r2, -1, muEarth, true, 0); err != ErrInvalidGeometry {
		t.Errorf("dt<=0: err = %v, want ErrInvalidGeometry", err)
	}
	if _, err := SolveLambert(r1, r2, 1800, -1, true, 0); err != ErrInvalidGeometry {
		t.Errorf("mu<=0: err = %v, want ErrInvalidGeometry", err)
	}
}

func TestCollinearEndpoints(t *testing.T) {
	r1 := elements.Vector3{7000, 0, 0}
	r2 := elements.Vector3{14000, 0, 0}

	branches, err := SolveLambert(r1, r2, 1800, muEarth, true, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(branches) != 0 {
		t.Errorf("collinear endpoints: got %d branches, want 0", len(branches))
	}
}
