package nephron

import (
	"github.com/talgya/nephron-sim/internal/physio"
	"github.com/talgya/nephron-sim/internal/species"
)

// RateSet holds one reabsorption-fraction vector per segment.
// A fraction of 0.7 removes 70% of the incoming flow; a negative fraction adds to it.
type RateSet [SegmentCount]species.Vector

// DefaultRates returns the healthy baseline reabsorption table.
func DefaultRates() RateSet {
	//              Na     K      HCO3  Urea  Cl    Glu   Water
	return RateSet{
		Proximal:           {0.67, 0.80, 0.80, 0.50, 0.55, 0.99, 0.67},
		DescendingLimb:     {0.00, 0.00, 0.00, 0.00, 0.00, 0.00, 0.45},
		ThickAscendingLimb: {0.75, 0.95, 0.50, 0.00, 0.75, 0.00, 0.00},
		Distal:             {0.60, 0.50, 0.50, 0.00, 0.60, 0.00, 0.10},
		CorticalDuct:       {0.50, -1.0, 0.60, 0.20, 0.50, 0.00, 0.70},
		MedullaryDuct:      {0.50, 0.00, 0.50, 0.50, 0.50, 0.00, 0.80},
	}
}

// Get returns the fraction for species s in segment seg.
func (r *RateSet) Get(seg Segment, s species.Species) float64 {
	return r[seg][s]
}

// Set stores the fraction for species s in segment seg. Bounds are not enforced until Clamp.
func (r *RateSet) Set(seg Segment, s species.Species, v float64) {
	r[seg][s] = v
}

// Add shifts the fraction for species s in segment seg by delta.
func (r *RateSet) Add(seg Segment, s species.Species, delta float64) {
	r[seg][s] += delta
}

// Remaining returns 1 - rate for every species in seg.
func (r *RateSet) Remaining(seg Segment) species.Vector {
	var out species.Vector
	for i, v := range r[seg] {
		out[i] = 1 - v
	}
	return out
}

// Bounds returns the saturation interval for one rate component.
// Collecting-duct potassium may go negative to model net secretion.
func Bounds(seg Segment, s species.Species) (lo, hi float64) {
	if s == species.Potassium && (seg == CorticalDuct || seg == MedullaryDuct) {
		return physio.SecretionFloor, physio.RateCeiling
	}
	return physio.RateFloor, physio.RateCeiling
}

// Clamp saturates every component of the set into its bounds. Applying it twice is a no-op.
func (r *RateSet) Clamp() {
	for _, seg := range Segments() {
		for _, s := range species.All() {
			lo, hi := Bounds(seg, s)
			r[seg][s] = physio.Clamp(r[seg][s], lo, hi)
		}
	}
}

// Clamped returns a saturated copy of r.
func (r RateSet) Clamped() RateSet {
	r.Clamp()
	return r
}
