package fusion

import "math"

const (
	arcsecPerDeg = 3600.0
	degToRad     = math.Pi / 180.0
	radToDeg     = 180.0 / math.Pi
)

// Coord is a sky position in degrees.
type Coord struct {
	RaDeg  float64
	DecDeg float64
}

// ValidCoord reports whether ra/dec are finite and inside [0,360) x [-90,90].
func ValidCoord(raDeg, decDeg float64) bool {
	if math.IsNaN(raDeg) || math.IsInf(raDeg, 0) || math.IsNaN(decDeg) || math.IsInf(decDeg, 0) {
		return false
	}
	if raDeg < 0 || raDeg >= 360 {
		return false
	}
	if decDeg < -90 || decDeg > 90 {
		return false
	}
	return true
}

// AngularSepArcsec returns the great-circle separation between two positions
// in arcseconds, using the haversine formula. Planar deltas are wrong away
// from the equator and across the RA wrap, so everything goes through the
// sphere.
func AngularSepArcsec(a, b Coord) float64 {
	ra1 := a.RaDeg * degToRad
	dec1 := a.DecDeg * degToRad
	ra2 := b.RaDeg * degToRad
	dec2 := b.DecDeg * degToRad

	sinDec := math.Sin((dec2 - dec1) / 2)
	sinRa := math.Sin((ra2 - ra1) / 2)
	h := sinDec*sinDec + math.Cos(dec1)*math.Cos(dec2)*sinRa*sinRa
	if h < 0 {
		h = 0
	}
	if h > 1 {
		h = 1
	}
	return 2 * math.Asin(math.Sqrt(h)) * radToDeg * arcsecPerDeg
}

// Centroid returns the mean position of the given coordinates computed on
// unit vectors, which keeps a group straddling RA=0/360 (or sitting near a
// pole) from averaging to the far side of the sky.
func Centroid(coords []Coord) Coord {
	if len(coords) == 0 {
		return Coord{}
	}
	var x, y, z float64
	for _, c := range coords {
		ra := c.RaDeg * degToRad
		dec := c.DecDeg * degToRad
		cosDec := math.Cos(dec)
		x += cosDec * math.Cos(ra)
		y += cosDec * math.Sin(ra)
		z += math.Sin(dec)
	}
	norm := math.Sqrt(x*x + y*y + z*z)
	if norm < 1e-12 {
		// Degenerate (antipodal cancellation); fall back to the first member.
		return coords[0]
	}
	ra := math.Atan2(y, x) * radToDeg
	if ra < 0 {
		ra += 360
	}
	if ra >= 360 {
		ra -= 360
	}
	dec := math.Atan2(z, math.Hypot(x, y)) * radToDeg
	return Coord{RaDeg: ra, DecDeg: dec}
}
