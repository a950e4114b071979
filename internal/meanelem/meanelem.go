// Package meanelem implements the mean-element propagation contract (a thin,
// thread-safe wrapper around the SGP4/SDP4 propagator) and the structured
// mean-element record the rest of the system exchanges.
//
// Upstream NORAD two-line-element text is a boundary-only representation:
// internally, a mean-element set is the structured MeanElements record below.
// Lines()/ParseLines() serialize to/from text only at the edge where the
// external propagator library insists on it.
package meanelem

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	gosatellite "github.com/joshuaferrara/go-satellite"

	"github.com/kartikkumar/d2d-go/internal/elements"
)

// MeanElements is a mean-element set: epoch, mean motion, eccentricity,
// inclination, RAAN, argument of perigee, and mean anomaly, plus the
// drag-like auxiliaries SGP4/SDP4 requires.
type MeanElements struct {
	NoradID    int
	Name       string
	EpochJD    float64 // Julian date (UTC)
	Designator string  // international designator, e.g. "98067A"

	InclinationDeg float64
	RAANDeg        float64
	Eccentricity   float64
	ArgPerigeeDeg  float64
	MeanAnomalyDeg float64
	MeanMotionRev  float64 // revolutions per day

	MeanMotionDotRev   float64 // first derivative of mean motion, rev/day^2
	MeanMotionDDotRev  float64 // second derivative of mean motion, rev/day^3
	BStar              float64
	ElementSetNumber   int
	RevolutionAtEpoch  int
	EphemerisType      int
	ClassificationChar byte // 'U', 'C', or 'S'
}

// CatalogEntry binds a MeanElements set to a catalog identity.
type CatalogEntry struct {
	ID       int
	Name     string
	Elements MeanElements
}

// MuEarth is Earth's gravitational parameter, km^3/s^2 (WGS84 convention),
// the value the mean-element/osculating-element bridge is recovered against.
const MuEarth = 398600.4418

// SemiMajorAxisKm recovers the semi-major axis implied by the mean motion,
// via Kepler's third law: n = sqrt(mu/a^3). This is the recovered a the
// catalog filter's semi-major-axis window operates on.
func (m MeanElements) SemiMajorAxisKm() float64 {
	revsPerSec := m.MeanMotionRev / 86400.0
	n := 2 * math.Pi * revsPerSec
	return math.Cbrt(MuEarth / (n * n))
}

// PropagatorDomainError reports that SGP4/SDP4 could not propagate the given
// elements to the requested epoch offset (deep-space decay, negative
// perigee, etc.).
type PropagatorDomainError struct {
	NoradID          int
	SecondsFromEpoch float64
	Reason           string
}

func (e *PropagatorDomainError) Error() string {
	return fmt.Sprintf("meanelem: propagation domain error for object %d at t+%gs: %s",
		e.NoradID, e.SecondsFromEpoch, e.Reason)
}

// Propagator is the mean-element propagation contract: deterministic, safe
// for concurrent calls as long as distinct goroutines use distinct Propagator
// instances over immutable MeanElements.
type Propagator interface {
	Propagate(m MeanElements, secondsFromEpoch float64) (elements.CartesianState, error)
}

// SGP4Propagator implements Propagator over go-satellite's SGP4/SDP4.
// A single SGP4Propagator must not be shared across goroutines that are
// propagating different mean-element sets concurrently; each worker holds
// its own instance.
type SGP4Propagator struct{}

// NewSGP4Propagator constructs a Propagator backed by go-satellite.
func NewSGP4Propagator() *SGP4Propagator {
	return &SGP4Propagator{}
}

// Propagate serializes m to TLE text, builds a go-satellite Satellite, and
// propagates it by secondsFromEpoch, returning the ECI/TEME state in km,
// km/s. go-satellite takes the target instant as whole calendar seconds, so
// any fractional second of the target time is dropped (truncated).
func (p *SGP4Propagator) Propagate(m MeanElements, secondsFromEpoch float64) (elements.CartesianState, error) {
	line1, line2, err := m.Lines()
	if err != nil {
		return elements.CartesianState{}, &PropagatorDomainError{NoradID: m.NoradID, SecondsFromEpoch: secondsFromEpoch, Reason: err.Error()}
	}

	sat := gosatellite.TLEToSat(line1, line2, gosatellite.GravityWGS84)

	t := julianDateToTime(m.EpochJD).Add(time.Duration(secondsFromEpoch * float64(time.Second)))
	pos, vel := gosatellite.Propagate(sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	if math.IsNaN(pos.X) || math.IsNaN(vel.X) {
		return elements.CartesianState{}, &PropagatorDomainError{
			NoradID: m.NoradID, SecondsFromEpoch: secondsFromEpoch, Reason: "SGP4/SDP4 returned NaN state",
		}
	}

	return elements.CartesianState{
		Position: elements.Vector3{pos.X, pos.Y, pos.Z},
		Velocity: elements.Vector3{vel.X, vel.Y, vel.Z},
	}, nil
}

// julianDateToTime converts a Julian date to a UTC time.Time.
func julianDateToTime(jd float64) time.Time {
	const unixEpochJD = 2440587.5
	seconds := (jd - unixEpochJD) * 86400.0
	return time.Unix(0, 0).UTC().Add(time.Duration(seconds * float64(time.Second)))
}

// TimeToJulianDate converts a UTC time.Time to a Julian date.
func TimeToJulianDate(t time.Time) float64 {
	const unixEpochJD = 2440587.5
	return unixEpochJD + float64(t.UnixNano())/1e9/86400.0
}

// NormalizeAngles clamps the element set's angular components to their
// canonical ranges: inclination in [0, pi] (expressed here in degrees,
// [0,180]), RAAN/argument of perigee/mean anomaly in [0, 360) degrees.
// Applied by the virtual-TLE fitter before packing a candidate state into a
// MeanElements record.
func (m MeanElements) NormalizeAngles() MeanElements {
	out := m
	out.InclinationDeg = normalizeDeg180(m.InclinationDeg)
	out.RAANDeg = normalizeDeg360(m.RAANDeg)
	out.ArgPerigeeDeg = normalizeDeg360(m.ArgPerigeeDeg)
	out.MeanAnomalyDeg = normalizeDeg360(m.MeanAnomalyDeg)
	return out
}

func normalizeDeg360(deg float64) float64 {
	d := math.Mod(deg, 360.0)
	if d < 0 {
		d += 360.0
	}
	return d
}

func normalizeDeg180(deg float64) float64 {
	d := math.Mod(deg, 360.0)
	if d < 0 {
		d += 360.0
	}
	if d > 180.0 {
		d = 360.0 - d
	}
	return d
}

// Lines serializes m to a standard NORAD two-line element set.
func (m MeanElements) Lines() (line1, line2 string, err error) {
	epochYear, epochDay := julianDateToEpochYearDay(m.EpochJD)

	designator := m.Designator
	if designator == "" {
		designator = "00000A"
	}
	if len(designator) < 8 {
		designator = designator + strings.Repeat(" ", 8-len(designator))
	}

	class := m.ClassificationChar
	if class == 0 {
		class = 'U'
	}

	line1 = fmt.Sprintf("1 %05d%c %-8s %02d%012.8f %s %s %s %d %4d",
		m.NoradID, class, designator,
		epochYear, epochDay,
		formatMeanMotionDot(m.MeanMotionDotRev),
		formatExponential(m.MeanMotionDDotRev),
		formatExponential(m.BStar),
		m.EphemerisType,
		m.ElementSetNumber,
	)
	line1 = padTo(line1, 68)
	line1 += strconv.Itoa(tleChecksum(line1))

	eccString := formatEccentricity(m.Eccentricity)
	line2 = fmt.Sprintf("2 %05d %08.4f %08.4f %s %08.4f %08.4f %11.8f%5d",
		m.NoradID,
		normalizeDeg180(m.InclinationDeg),
		normalizeDeg360(m.RAANDeg),
		eccString,
		normalizeDeg360(m.ArgPerigeeDeg),
		normalizeDeg360(m.MeanAnomalyDeg),
		m.MeanMotionRev,
		m.RevolutionAtEpoch,
	)
	line2 = padTo(line2, 68)
	line2 += strconv.Itoa(tleChecksum(line2))

	return line1, line2, nil
}

// ParseLines parses a standard two-line element set into a MeanElements
// record. Name is left empty; callers of the three-line catalog format
// populate it separately from the name line.
func ParseLines(line1, line2 string) (MeanElements, error) {
	if len(line1) < 68 || len(line2) < 68 {
		return MeanElements{}, fmt.Errorf("meanelem: TLE lines too short")
	}

	noradID, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return MeanElements{}, fmt.Errorf("meanelem: parsing NORAD ID: %w", err)
	}

	epochYear, err := strconv.Atoi(strings.TrimSpace(line1[18:20]))
	if err != nil {
		return MeanElements{}, fmt.Errorf("meanelem: parsing epoch year: %w", err)
	}
	epochDay, err := strconv.ParseFloat(strings.TrimSpace(line1[20:32]), 64)
	if err != nil {
		return MeanElements{}, fmt.Errorf("meanelem: parsing epoch day: %w", err)
	}

	meanMotionDot, err := strconv.ParseFloat(strings.TrimSpace(line1[33:43]), 64)
	if err != nil {
		return MeanElements{}, fmt.Errorf("meanelem: parsing mean motion derivative: %w", err)
	}

	bstar, err := strconv.ParseFloat(parseExponential(strings.TrimSpace(line1[53:61])), 64)
	if err != nil {
		return MeanElements{}, fmt.Errorf("meanelem: parsing bstar: %w", err)
	}

	elementSet, _ := strconv.Atoi(strings.TrimSpace(line1[64:68]))

	inclination, err := strconv.ParseFloat(strings.TrimSpace(line2[8:16]), 64)
	if err != nil {
		return MeanElements{}, fmt.Errorf("meanelem: parsing inclination: %w", err)
	}
	raan, err := strconv.ParseFloat(strings.TrimSpace(line2[17:25]), 64)
	if err != nil {
		return MeanElements{}, fmt.Errorf("meanelem: parsing RAAN: %w", err)
	}
	eccStr := "0." + strings.TrimSpace(line2[26:33])
	ecc, err := strconv.ParseFloat(eccStr, 64)
	if err != nil {
		return MeanElements{}, fmt.Errorf("meanelem: parsing eccentricity: %w", err)
	}
	argPerigee, err := strconv.ParseFloat(strings.TrimSpace(line2[34:42]), 64)
	if err != nil {
		return MeanElements{}, fmt.Errorf("meanelem: parsing argument of perigee: %w", err)
	}
	meanAnomaly, err := strconv.ParseFloat(strings.TrimSpace(line2[43:51]), 64)
	if err != nil {
		return MeanElements{}, fmt.Errorf("meanelem: parsing mean anomaly: %w", err)
	}
	meanMotion, err := strconv.ParseFloat(strings.TrimSpace(line2[52:63]), 64)
	if err != nil {
		return MeanElements{}, fmt.Errorf("meanelem: parsing mean motion: %w", err)
	}
	revAtEpoch, _ := strconv.Atoi(strings.TrimSpace(line2[63:68]))

	return MeanElements{
		NoradID:            noradID,
		EpochJD:            epochYearDayToJulianDate(epochYear, epochDay),
		Designator:         strings.TrimSpace(line1[9:17]),
		InclinationDeg:     inclination,
		RAANDeg:            raan,
		Eccentricity:       ecc,
		ArgPerigeeDeg:      argPerigee,
		MeanAnomalyDeg:     meanAnomaly,
		MeanMotionRev:      meanMotion,
		MeanMotionDotRev:   meanMotionDot,
		BStar:              bstar,
		ElementSetNumber:   elementSet,
		RevolutionAtEpoch:  revAtEpoch,
		ClassificationChar: line1[7],
	}, nil
}

func julianDateToEpochYearDay(jd float64) (year int, dayOfYear float64) {
	t := julianDateToTime(jd)
	year = t.Year() % 100
	startOfYear := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	dayOfYear = t.Sub(startOfYear).Hours()/24.0 + 1.0
	return
}

func epochYearDayToJulianDate(year int, dayOfYear float64) float64 {
	fullYear := 1900 + year
	if year < 57 {
		fullYear = 2000 + year
	}
	startOfYear := time.Date(fullYear, 1, 1, 0, 0, 0, 0, time.UTC)
	t := startOfYear.Add(time.Duration((dayOfYear - 1.0) * 24.0 * float64(time.Hour)))
	return TimeToJulianDate(t)
}

// formatEccentricity formats e in [0,1) as 7 digits with the decimal point
// implied, per the NORAD TLE convention.
func formatEccentricity(e float64) string {
	return fmt.Sprintf("%07.0f", e*1.0e7)
}

// formatExponential formats a value per the NORAD TLE convention used for
// the second derivative of mean motion and BSTAR: a signed mantissa with an
// implied decimal point followed by a signed decimal exponent, e.g.
// "+12345-3" meaning +0.12345e-3.
func formatExponential(v float64) string {
	if v == 0 {
		return " 00000+0"
	}
	sign := byte('+')
	if v < 0 {
		sign = '-'
		v = -v
	}
	exp := 0
	for v >= 1.0 {
		v /= 10.0
		exp++
	}
	for v < 0.1 {
		v *= 10.0
		exp--
	}
	mantissa := int(math.Round(v * 1.0e5))
	expSign := byte('+')
	if exp < 0 {
		expSign = '-'
		exp = -exp
	}
	return fmt.Sprintf("%c%05d%c%1d", sign, mantissa, expSign, exp)
}

func parseExponential(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "0"
	}
	sign := ""
	if s[0] == '-' {
		sign = "-"
		s = s[1:]
	} else if s[0] == '+' {
		s = s[1:]
	}
	if len(s) < 2 {
		return "0"
	}
	mantissa := s[:len(s)-2]
	expPart := s[len(s)-2:]
	return fmt.Sprintf("%s0.%se%s", sign, mantissa, expPart)
}

// formatMeanMotionDot formats the first derivative of mean motion as the
// 10-character column 34-43 field: a sign (space for positive), an implied
// leading zero, and eight decimal digits, e.g. " .00001234".
func formatMeanMotionDot(v float64) string {
	sign := byte(' ')
	if v < 0 {
		sign = '-'
		v = -v
	}
	return fmt.Sprintf("%c.%08d", sign, int(math.Round(v*1e8)))
}

func padTo(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

// tleChecksum computes the standard NORAD TLE modulo-10 checksum: the sum of
// all digits in the line, with '-' counted as 1 and all other non-digit
// characters counted as 0, mod 10.
func tleChecksum(line string) int {
	sum := 0
	for _, c := range line {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum += 1
		}
	}
	return sum % 10
}
