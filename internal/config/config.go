// Package config loads the hierarchical key/value configuration document
// that selects a mode and its parameters. The document is JSON-shaped with
// `//`-prefixed comment lines stripped before unmarshaling.
package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Mode selects which pipeline stage a configuration document drives.
type Mode string

const (
	ModeCatalogPruner  Mode = "catalog_pruner"
	ModeLambertScanner Mode = "lambert_scanner"
	ModeSGP4Scanner    Mode = "sgp4_scanner"
	ModeJ2Analysis     Mode = "j2_analysis"
	ModeLambertFetch   Mode = "lambert_fetch"
	ModeSGP4Fetch      Mode = "sgp4_fetch"
)

// MissingConfigKeyError reports that a required key for the selected mode
// was absent from the document.
type MissingConfigKeyError struct {
	Key string
}

func (e *MissingConfigKeyError) Error() string {
	return fmt.Sprintf("config: required key %q missing from configuration", e.Key)
}

// Document is the raw parsed key/value tree; mode-specific Parse functions
// below extract and validate the required keys for their mode.
type Document map[string]json.RawMessage

// Load reads a configuration document, stripping `//`-prefixed comment
// lines before unmarshaling the remainder as JSON.
func Load(r io.Reader) (Document, error) {
	var stripped bytes.Buffer
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "//") {
			continue
		}
		stripped.WriteString(line)
		stripped.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: reading document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(stripped.Bytes(), &doc); err != nil {
		return nil, fmt.Errorf("config: parsing document: %w", err)
	}
	return doc, nil
}

// find looks up a required key, returning MissingConfigKeyError if absent.
func find(doc Document, key string) (json.RawMessage, error) {
	raw, ok := doc[key]
	if !ok {
		return nil, &MissingConfigKeyError{Key: key}
	}
	return raw, nil
}

func findString(doc Document, key string) (string, error) {
	raw, err := find(doc, key)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("config: key %q is not a string: %w", key, err)
	}
	return s, nil
}

func findFloat(doc Document, key string) (float64, error) {
	raw, err := find(doc, key)
	if err != nil {
		return 0, err
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("config: key %q is not a number: %w", key, err)
	}
	return v, nil
}

func findInt(doc Document, key string) (int, error) {
	v, err := findFloat(doc, key)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func findBool(doc Document, key string) (bool, error) {
	raw, err := find(doc, key)
	if err != nil {
		return false, err
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, fmt.Errorf("config: key %q is not a boolean: %w", key, err)
	}
	return v, nil
}

func findFloatArray(doc Document, key string) ([]float64, error) {
	raw, err := find(doc, key)
	if err != nil {
		return nil, err
	}
	var v []float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("config: key %q is not a numeric array: %w", key, err)
	}
	return v, nil
}

// CatalogPrunerConfig is the catalog_pruner mode's parameters.
type CatalogPrunerConfig struct {
	CatalogPath        string
	SemiMajorAxisMinKm float64
	SemiMajorAxisMaxKm float64
	EccentricityMin    float64
	EccentricityMax    float64
	InclinationMinDeg  float64
	InclinationMaxDeg  float64
	NameRegex          string
	Cutoff             int
	PrunedCatalogPath  string
}

// ParseCatalogPruner validates and extracts catalog_pruner's required keys.
func ParseCatalogPruner(doc Document) (CatalogPrunerConfig, error) {
	var cfg CatalogPrunerConfig
	var err error

	if cfg.CatalogPath, err = findString(doc, "catalog"); err != nil {
		return cfg, err
	}
	sma, err := findFloatArray(doc, "semi_major_axis_filter")
	if err != nil {
		return cfg, err
	}
	if len(sma) != 2 {
		return cfg, fmt.Errorf("config: semi_major_axis_filter must have exactly 2 elements")
	}
	cfg.SemiMajorAxisMinKm, cfg.SemiMajorAxisMaxKm = sma[0], sma[1]

	ecc, err := findFloatArray(doc, "eccentricity_filter")
	if err != nil {
		return cfg, err
	}
	if len(ecc) != 2 {
		return cfg, fmt.Errorf("config: eccentricity_filter must have exactly 2 elements")
	}
	cfg.EccentricityMin, cfg.EccentricityMax = ecc[0], ecc[1]

	inc, err := findFloatArray(doc, "inclination_filter")
	if err != nil {
		return cfg, err
	}
	if len(inc) != 2 {
		return cfg, fmt.Errorf("config: inclination_filter must have exactly 2 elements")
	}
	cfg.InclinationMinDeg, cfg.InclinationMaxDeg = inc[0], inc[1]

	if cfg.NameRegex, err = findString(doc, "name_regex"); err != nil {
		return cfg, err
	}
	if cfg.Cutoff, err = findInt(doc, "catalog_cutoff"); err != nil {
		return cfg, err
	}
	if cfg.PrunedCatalogPath, err = findString(doc, "catalog_pruned"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LambertScannerConfig is the lambert_scanner mode's parameters.
type LambertScannerConfig struct {
	CatalogPath  string
	DatabasePath string

	// DepartureEpochJD is nil when the config's departure_epoch key is an
	// empty array, meaning each object's own TLE epoch; otherwise it holds
	// the Julian date built from the six-integer [Y,M,D,h,m,s] form.
	DepartureEpochJD *float64

	TimeOfFlightMinSec float64
	TimeOfFlightMaxSec float64
	TimeOfFlightSteps  int

	IsPrograde         bool
	RevolutionsMaximum int

	ShortlistLength int
	ShortlistPath   string

	// TLELines holds the optional tle_lines value (2 or 3); 0 means not set.
	// It is parsed and validated only: the catalog loader does not read it
	// and always detects the line count from the first character.
	TLELines int
}

// ParseLambertScanner validates and extracts lambert_scanner's required keys.
func ParseLambertScanner(doc Document) (LambertScannerConfig, error) {
	var cfg LambertScannerConfig
	var err error

	if cfg.CatalogPath, err = findString(doc, "catalog"); err != nil {
		return cfg, err
	}
	if cfg.DatabasePath, err = findString(doc, "database"); err != nil {
		return cfg, err
	}

	depEpoch, err := find(doc, "departure_epoch")
	if err != nil {
		return cfg, err
	}
	var epochFields []int
	if err := json.Unmarshal(depEpoch, &epochFields); err != nil {
		return cfg, fmt.Errorf("config: departure_epoch must be an array of integers: %w", err)
	}
	if len(epochFields) == 6 {
		jd := sixFieldEpochToJulianDate(epochFields)
		cfg.DepartureEpochJD = &jd
	} else if len(epochFields) != 0 {
		return cfg, fmt.Errorf("config: departure_epoch must have 6 elements or be empty, got %d", len(epochFields))
	}

	tof, err := findFloatArray(doc, "time_of_flight_grid")
	if err != nil {
		return cfg, err
	}
	if len(tof) != 3 {
		return cfg, fmt.Errorf("config: time_of_flight_grid must have exactly 3 elements [min,max,steps]")
	}
	cfg.TimeOfFlightMinSec, cfg.TimeOfFlightMaxSec = tof[0], tof[1]
	cfg.TimeOfFlightSteps = int(tof[2])

	if cfg.IsPrograde, err = findBool(doc, "is_prograde"); err != nil {
		return cfg, err
	}
	if cfg.RevolutionsMaximum, err = findInt(doc, "revolutions_maximum"); err != nil {
		return cfg, err
	}

	n, path, err := findShortlist(doc)
	if err != nil {
		return cfg, err
	}
	cfg.ShortlistLength, cfg.ShortlistPath = n, path

	if raw, ok := doc["tle_lines"]; ok {
		var lines int
		if err := json.Unmarshal(raw, &lines); err != nil {
			return cfg, fmt.Errorf("config: tle_lines must be an integer: %w", err)
		}
		if lines != 2 && lines != 3 {
			return cfg, fmt.Errorf("config: tle_lines can only be set to 2 or 3")
		}
		cfg.TLELines = lines
	}

	return cfg, nil
}

// SGP4ScannerConfig is the sgp4_scanner mode's parameters.
type SGP4ScannerConfig struct {
	CatalogPath          string
	DatabasePath         string
	TransferDeltaVCutoff float64
	RelativeTolerance    float64
	AbsoluteTolerance    float64
	ShortlistLength      int
	ShortlistPath        string
}

// ParseSGP4Scanner validates and extracts sgp4_scanner's required keys.
func ParseSGP4Scanner(doc Document) (SGP4ScannerConfig, error) {
	var cfg SGP4ScannerConfig
	var err error

	if cfg.CatalogPath, err = findString(doc, "catalog"); err != nil {
		return cfg, err
	}
	if cfg.DatabasePath, err = findString(doc, "database"); err != nil {
		return cfg, err
	}
	if cfg.TransferDeltaVCutoff, err = findFloat(doc, "transfer_deltav_cutoff"); err != nil {
		return cfg, err
	}
	if cfg.RelativeTolerance, err = findFloat(doc, "relative_tolerance"); err != nil {
		return cfg, err
	}
	if cfg.AbsoluteTolerance, err = findFloat(doc, "absolute_tolerance"); err != nil {
		return cfg, err
	}
	n, path, err := findShortlist(doc)
	if err != nil {
		return cfg, err
	}
	cfg.ShortlistLength, cfg.ShortlistPath = n, path
	return cfg, nil
}

// J2AnalysisConfig is the j2_analysis mode's parameters.
type J2AnalysisConfig struct {
	DatabasePath    string
	ShortlistLength int
	ShortlistPath   string
}

// ParseJ2Analysis validates and extracts j2_analysis's required keys.
func ParseJ2Analysis(doc Document) (J2AnalysisConfig, error) {
	var cfg J2AnalysisConfig
	var err error
	if cfg.DatabasePath, err = findString(doc, "database"); err != nil {
		return cfg, err
	}
	n, path, err := findShortlist(doc)
	if err != nil {
		return cfg, err
	}
	cfg.ShortlistLength, cfg.ShortlistPath = n, path
	return cfg, nil
}

// FetchConfig is shared by lambert_fetch and sgp4_fetch: a transfer_id to
// fetch plus the output filenames for each of the six sampled ephemerides
// (departure/arrival/transfer, each an "_orbit" file sampled over one full
// orbital period and a "_path" file sampled over the time of flight).
type FetchConfig struct {
	DatabasePath           string
	TransferID             int64
	OutputSteps            int
	OutputDirectory        string
	MetadataPath           string
	DepartureOrbitFilename string
	DeparturePathFilename  string
	ArrivalOrbitFilename   string
	ArrivalPathFilename    string
	TransferOrbitFilename  string
	TransferPathFilename   string
}

// ParseFetch validates and extracts the lambert_fetch/sgp4_fetch shared keys.
func ParseFetch(doc Document) (FetchConfig, error) {
	var cfg FetchConfig
	var err error
	if cfg.DatabasePath, err = findString(doc, "database"); err != nil {
		return cfg, err
	}
	transferID, err := findFloat(doc, "transfer_id")
	if err != nil {
		return cfg, err
	}
	cfg.TransferID = int64(transferID)
	if cfg.OutputSteps, err = findInt(doc, "output_steps"); err != nil {
		return cfg, err
	}
	if cfg.OutputDirectory, err = findString(doc, "output_directory"); err != nil {
		return cfg, err
	}
	if cfg.MetadataPath, err = findString(doc, "metadata"); err != nil {
		return cfg, err
	}
	if cfg.DepartureOrbitFilename, err = findString(doc, "departure_orbit"); err != nil {
		return cfg, err
	}
	if cfg.DeparturePathFilename, err = findString(doc, "departure_path"); err != nil {
		return cfg, err
	}
	if cfg.ArrivalOrbitFilename, err = findString(doc, "arrival_orbit"); err != nil {
		return cfg, err
	}
	if cfg.ArrivalPathFilename, err = findString(doc, "arrival_path"); err != nil {
		return cfg, err
	}
	if cfg.TransferOrbitFilename, err = findString(doc, "transfer_orbit"); err != nil {
		return cfg, err
	}
	if cfg.TransferPathFilename, err = findString(doc, "transfer_path"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// findShortlist extracts the shortlist = [N, path] pair shared by every
// scan mode's config.
func findShortlist(doc Document) (int, string, error) {
	raw, err := find(doc, "shortlist")
	if err != nil {
		return 0, "", err
	}
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return 0, "", fmt.Errorf("config: shortlist must be an array: %w", err)
	}
	if len(fields) != 2 {
		return 0, "", fmt.Errorf("config: shortlist must have exactly 2 elements [N,path]")
	}
	var n int
	if err := json.Unmarshal(fields[0], &n); err != nil {
		return 0, "", fmt.Errorf("config: shortlist[0] must be an integer: %w", err)
	}
	var path string
	if err := json.Unmarshal(fields[1], &path); err != nil {
		return 0, "", fmt.Errorf("config: shortlist[1] must be a string: %w", err)
	}
	return n, path, nil
}

// sixFieldEpochToJulianDate converts a [year, month, day, hour, minute,
// second] field list to a Julian date (UTC).
func sixFieldEpochToJulianDate(fields []int) float64 {
	y, mo, d, h, mi, s := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]
	// Fliegel & Van Flandern algorithm for the Julian day number at noon,
	// then offset to midnight and add the time-of-day fraction.
	a := (14 - mo) / 12
	y2 := y + 4800 - a
	m2 := mo + 12*a - 3
	jdn := d + (153*m2+2)/5 + 365*y2 + y2/4 - y2/100 + y2/400 - 32045
	dayFraction := (float64(h-12) + float64(mi)/60.0 + float64(s)/3600.0) / 24.0
	return float64(jdn) + dayFraction
}
