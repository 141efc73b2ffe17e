package derived

import (
	"math"

	"github.com/banshee-data/lapsync/internal/resample"
)

const earthRadius = 6378137.0

// Positions holds a stream's GPS fix per frame in degrees.
type Positions struct {
	Lat resample.Series
	Lon resample.Series
}

func (p Positions) ok() bool { return !p.Lat.Empty() && !p.Lon.Empty() }

// projection is an equirectangular local plane around an origin fix. x points
// east and y north, in metres.
type projection struct {
	lat0, lon0 float64
	cosLat     float64
}

func newProjection(lat0, lon0 float64) projection {
	c := math.Cos(lat0 * math.Pi / 180)
	if math.Abs(c) < 1e-6 {
		c = 1e-6
	}
	return projection{lat0: lat0, lon0: lon0, cosLat: c}
}

func (p projection) xy(lat, lon float64) (float64, float64) {
	x := (lon - p.lon0) * math.Pi / 180 * p.cosLat * earthRadius
	y := (lat - p.lat0) * math.Pi / 180 * earthRadius
	return x, y
}

// origin returns the first finite fix of p.
func (p Positions) origin() (lat, lon float64, ok bool) {
	n := p.Lat.Len()
	if p.Lon.Len() < n {
		n = p.Lon.Len()
	}
	for i := 0; i < n; i++ {
		la, lo := p.Lat.Values[i], p.Lon.Values[i]
		if finite(la) && finite(lo) {
			return la, lo, true
		}
	}
	return 0, 0, false
}

// at returns the projected position at fractional frame f.
func (p Positions) at(pr projection, f float64) (float64, float64) {
	return pr.xy(p.Lat.Sample(f), p.Lon.Sample(f))
}
