package sorter

import "math"

// distance returns the Euclidean distance between a reading and a
// reference color in RGB space.
func distance(a, b Reading) float64 {
	dr := a.R - b.R
	dg := a.G - b.G
	db := a.B - b.B
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// Classify returns the profile whose reference color is nearest to the
// reading, plus the distance to it as a diagnostic. Every reading matches
// some profile: there is no rejection threshold, a sample far from all
// references still routes to the nearest one. Ties go to the profile that
// appears first in the palette.
//
// The palette must be non-empty; config validation guarantees that.
func (p Palette) Classify(r Reading) (Profile, float64) {
	best := 0
	bestDist := distance(r, p[0].Reference)
	for i := 1; i < len(p); i++ {
		if d := distance(r, p[i].Reference); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return p[best], bestDist
}
