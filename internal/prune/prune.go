// Package prune filters a mean-element catalog by bounded windows on
// altitude, eccentricity, and inclination, plus an optional name-pattern
// regular expression.
package prune

import (
	"fmt"
	"regexp"

	"github.com/kartikkumar/d2d-go/internal/catalog"
)

// earthMeanRadiusKm is the WGS72-convention Earth radius used to recover
// altitude windows from the mean-element semi-major axis.
const earthMeanRadiusKm = 6378.135

// Filter bounds the catalog pruner's accept windows.
type Filter struct {
	SemiMajorAxisMinKm float64
	SemiMajorAxisMaxKm float64
	EccentricityMin    float64
	EccentricityMax    float64
	InclinationMinDeg  float64
	InclinationMaxDeg  float64
	NameRegex          string // empty means no name filter
	Cutoff             int    // 0 means no cap
}

// Apply filters entries in insertion order, returning a subsequence of the
// input.
func Apply(f Filter, entries []catalog.Entry) ([]catalog.Entry, error) {
	var nameFilter *regexp.Regexp
	if f.NameRegex != "" {
		re, err := regexp.Compile(f.NameRegex)
		if err != nil {
			return nil, fmt.Errorf("prune: compiling name regex %q: %w", f.NameRegex, err)
		}
		nameFilter = re
	}

	var out []catalog.Entry
	for _, e := range entries {
		if nameFilter != nil && !nameFilter.MatchString(e.Name) {
			continue
		}

		altitude := e.Elements.SemiMajorAxisKm() - earthMeanRadiusKm
		if altitude < f.SemiMajorAxisMinKm || altitude > f.SemiMajorAxisMaxKm {
			continue
		}

		if e.Elements.Eccentricity < f.EccentricityMin || e.Elements.Eccentricity > f.EccentricityMax {
			continue
		}

		if e.Elements.InclinationDeg < f.InclinationMinDeg || e.Elements.InclinationDeg > f.InclinationMaxDeg {
			continue
		}

		if f.Cutoff != 0 && len(out) == f.Cutoff {
			break
		}

		out = append(out, e)
	}

	return out, nil
}
