package cty

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Entity describes a DXCC entity as seen under one table key. Values are
// copied out of the table, so callers may keep or modify them freely.
//
// Longitude follows the cty.dat convention: positive values are west of
// Greenwich. Use Point for east-positive geometry.
type Entity struct {
	Name          string
	CQZone        int
	ITUZone       int
	Continent     string
	Latitude      float64
	Longitude     float64
	UTCOffset     int // seconds east of UTC
	PrimaryPrefix string
	WAEDC         bool
	ExactMatch    bool
}

// Location returns a fixed zone for the entity's UTC offset, named after the
// primary prefix.
func (e Entity) Location() *time.Location {
	return time.FixedZone(e.PrimaryPrefix, e.UTCOffset)
}

// Point returns the entity position as an east-positive lon/lat point.
func (e Entity) Point() orb.Point {
	return orb.Point{-e.Longitude, e.Latitude}
}

// Grid returns the 4-character Maidenhead square containing the entity
// position.
func (e Entity) Grid() (string, bool) {
	p := e.Point()
	return Grid4FromLatLon(p.Lat(), p.Lon())
}

// Path returns the great-circle distance in kilometres and the initial
// bearing in degrees (0-360) from a station position to the entity.
func Path(from orb.Point, e Entity) (km float64, bearing float64) {
	to := e.Point()
	km = geo.Distance(from, to) / 1000
	bearing = geo.Bearing(from, to)
	if bearing < 0 {
		bearing += 360
	}
	return km, bearing
}
