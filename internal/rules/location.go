package rules

import "strings"

// Coarse distances used by the location heuristic, in kilometres.
const (
	distanceCrossCountry = 2000.0
	distanceCrossRegion  = 500.0
	distanceSameRegion   = 100.0
	distanceUnparseable  = 1000.0
)

// UnknownCountry is the country token of an empty location.
const UnknownCountry = "UNKNOWN"

// EstimateDistanceKm approximates the distance between two free-text
// locations of the form "City, Region, Country". It compares comma
// separated segments from the right; no geocoding is involved.
func EstimateDistanceKm(from, to string) float64 {
	a, b := strings.TrimSpace(from), strings.TrimSpace(to)
	if a == "" || b == "" || strings.EqualFold(a, b) {
		return 0
	}

	pa, pb := splitLocation(a), splitLocation(b)
	if len(pa) < 2 || len(pb) < 2 {
		return distanceUnparseable
	}
	if !strings.EqualFold(pa[len(pa)-1], pb[len(pb)-1]) {
		return distanceCrossCountry
	}
	if !strings.EqualFold(pa[len(pa)-2], pb[len(pb)-2]) {
		return distanceCrossRegion
	}
	return distanceSameRegion
}

// CountryOf extracts the upper-cased country token of a location.
func CountryOf(location string) string {
	loc := strings.TrimSpace(location)
	if loc == "" {
		return UnknownCountry
	}
	parts := splitLocation(loc)
	return strings.ToUpper(parts[len(parts)-1])
}

func splitLocation(loc string) []string {
	parts := strings.Split(loc, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
