package cty

import (
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
)

// Grid4FromLatLon returns the 4-character Maidenhead grid for an east-positive
// lat/lon pair. It returns false when coordinates are out of range or
// non-finite.
func Grid4FromLatLon(lat, lon float64) (string, bool) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return "", false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", false
	}
	// The north pole and antimeridian belong to the last square.
	lat = math.Min(lat, 89.999999)
	lon = math.Min(lon, 179.999999)

	adjLon := lon + 180
	adjLat := lat + 90
	fieldLon := int(adjLon / 20)
	fieldLat := int(adjLat / 10)
	squareLon := int(math.Mod(adjLon, 20) / 2)
	squareLat := int(math.Mod(adjLat, 10))
	return string([]byte{
		byte('A' + fieldLon),
		byte('A' + fieldLat),
		byte('0' + squareLon),
		byte('0' + squareLat),
	}), true
}

// LatLonFromGrid decodes a 4- or 6-character Maidenhead locator into the
// east-positive centre point of the square (or subsquare).
func LatLonFromGrid(locator string) (orb.Point, error) {
	loc := strings.ToUpper(strings.TrimSpace(locator))
	if len(loc) != 4 && len(loc) != 6 {
		return orb.Point{}, errors.Newf("locator %q: want 4 or 6 characters", locator)
	}
	if loc[0] < 'A' || loc[0] > 'R' || loc[1] < 'A' || loc[1] > 'R' {
		return orb.Point{}, errors.Newf("locator %q: invalid field", locator)
	}
	if loc[2] < '0' || loc[2] > '9' || loc[3] < '0' || loc[3] > '9' {
		return orb.Point{}, errors.Newf("locator %q: invalid square", locator)
	}
	lon := float64(loc[0]-'A')*20 + float64(loc[2]-'0')*2 - 180
	lat := float64(loc[1]-'A')*10 + float64(loc[3]-'0') - 90
	if len(loc) == 4 {
		return orb.Point{lon + 1, lat + 0.5}, nil
	}
	if loc[4] < 'A' || loc[4] > 'X' || loc[5] < 'A' || loc[5] > 'X' {
		return orb.Point{}, errors.Newf("locator %q: invalid subsquare", locator)
	}
	lon += float64(loc[4]-'A') * (2.0 / 24)
	lat += float64(loc[5]-'A') * (1.0 / 24)
	return orb.Point{lon + 1.0/24, lat + 0.5/24}, nil
}
