package config

import (
	"math"
	"strings"
	"testing"
)

const lambertScannerDoc = `{
  // comment lines are stripped before parsing
  "catalog": "catalog.txt",
  "database": "d2d.sqlite",
  "departure_epoch": [],
  "time_of_flight_grid": [36000, 72000, 2],
  "is_prograde": true,
  "revolutions_maximum": 2,
  "shortlist": [10, "shortlist.csv"]
}`

func TestLoadStripsCommentLines(t *testing.T) {
	doc, err := Load(strings.NewReader(lambertScannerDoc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := doc["catalog"]; !ok {
		t.Fatalf("expected key %q in parsed document", "catalog")
	}
}

func TestParseLambertScannerEmptyDepartureEpoch(t *testing.T) {
	doc, err := Load(strings.NewReader(lambertScannerDoc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, err := ParseLambertScanner(doc)
	if err != nil {
		t.Fatalf("ParseLambertScanner: %v", err)
	}
	if cfg.DepartureEpochJD != nil {
		t.Errorf("DepartureEpochJD = %v, want nil for empty departure_epoch", *cfg.DepartureEpochJD)
	}
	if cfg.TimeOfFlightMinSec != 36000 || cfg.TimeOfFlightMaxSec != 72000 || cfg.TimeOfFlightSteps != 2 {
		t.Errorf("time of flight grid = [%g,%g,%d], want [36000,72000,2]",
			cfg.TimeOfFlightMinSec, cfg.TimeOfFlightMaxSec, cfg.TimeOfFlightSteps)
	}
	if cfg.ShortlistLength != 10 || cfg.ShortlistPath != "shortlist.csv" {
		t.Errorf("shortlist = [%d,%q], want [10,\"shortlist.csv\"]", cfg.ShortlistLength, cfg.ShortlistPath)
	}
	if cfg.TLELines != 0 {
		t.Errorf("TLELines = %d, want 0 (not set)", cfg.TLELines)
	}
}

func TestParseLambertScannerSixFieldDepartureEpoch(t *testing.T) {
	doc, err := Load(strings.NewReader(`{
  "catalog": "catalog.txt",
  "database": "d2d.sqlite",
  "departure_epoch": [2024, 1, 1, 0, 0, 0],
  "time_of_flight_grid": [36000, 72000, 2],
  "is_prograde": true,
  "revolutions_maximum": 0,
  "shortlist": [5, "shortlist.csv"],
  "tle_lines": 3
}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, err := ParseLambertScanner(doc)
	if err != nil {
		t.Fatalf("ParseLambertScanner: %v", err)
	}
	if cfg.DepartureEpochJD == nil {
		t.Fatal("DepartureEpochJD = nil, want non-nil for 6-field departure_epoch")
	}
	// 2024-01-01T00:00:00Z: JD 2460310.5
	if math.Abs(*cfg.DepartureEpochJD-2460310.5) > 1e-6 {
		t.Errorf("DepartureEpochJD = %g, want 2460310.5", *cfg.DepartureEpochJD)
	}
	if cfg.TLELines != 3 {
		t.Errorf("TLELines = %d, want 3", cfg.TLELines)
	}
}

func TestParseLambertScannerRejectsBadDepartureEpochLength(t *testing.T) {
	doc, err := Load(strings.NewReader(`{
  "catalog": "catalog.txt",
  "database": "d2d.sqlite",
  "departure_epoch": [2024, 1, 1],
  "time_of_flight_grid": [36000, 72000, 2],
  "is_prograde": true,
  "revolutions_maximum": 0,
  "shortlist": [5, "shortlist.csv"]
}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := ParseLambertScanner(doc); err == nil {
		t.Fatal("expected error for a 3-field departure_epoch, got nil")
	}
}

func TestParseCatalogPrunerMissingKey(t *testing.T) {
	doc, err := Load(strings.NewReader(`{"catalog": "catalog.txt"}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = ParseCatalogPruner(doc)
	if err == nil {
		t.Fatal("expected MissingConfigKeyError, got nil")
	}
	missing, ok := err.(*MissingConfigKeyError)
	if !ok {
		t.Fatalf("expected *MissingConfigKeyError, got %T: %v", err, err)
	}
	if missing.Key != "semi_major_axis_filter" {
		t.Errorf("missing key = %q, want %q", missing.Key, "semi_major_axis_filter")
	}
}

func TestParseCatalogPrunerFullDocument(t *testing.T) {
	doc, err := Load(strings.NewReader(`{
  "catalog": "catalog.txt",
  "semi_major_axis_filter": [6578, 8378],
  "eccentricity_filter": [0.0, 0.2],
  "inclination_filter": [0.0, 180.0],
  "name_regex": "",
  "catalog_cutoff": 0,
  "catalog_pruned": "pruned.txt"
}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, err := ParseCatalogPruner(doc)
	if err != nil {
		t.Fatalf("ParseCatalogPruner: %v", err)
	}
	if cfg.SemiMajorAxisMinKm != 6578 || cfg.SemiMajorAxisMaxKm != 8378 {
		t.Errorf("semi-major axis filter = [%g,%g], want [6578,8378]", cfg.SemiMajorAxisMinKm, cfg.SemiMajorAxisMaxKm)
	}
	if cfg.PrunedCatalogPath != "pruned.txt" {
		t.Errorf("PrunedCatalogPath = %q, want %q", cfg.PrunedCatalogPath, "pruned.txt")
	}
}

func TestFindShortlistRejectsWrongArity(t *testing.T) {
	doc, err := Load(strings.NewReader(`{"shortlist": [10]}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, _, err := findShortlist(doc); err == nil {
		t.Fatal("expected error for a 1-element shortlist, got nil")
	}
}
