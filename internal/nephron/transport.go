package nephron

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/talgya/nephron-sim/internal/physio"
	"github.com/talgya/nephron-sim/internal/species"
)

// ErrInvalidInput is returned when Simulate is given a non-finite or negative
// GFR or concentration, or a non-finite rate.
var ErrInvalidInput = errors.New("invalid transport input")

// Stream is the molar-flow state of tubular fluid at one point along the nephron.
type Stream struct {
	Flow species.Vector `json:"flow"` // mol/hr per species
}

// Total returns the summed flow of all species. It is always derived from Flow.
func (s Stream) Total() float64 {
	return s.Flow.Sum()
}

// Volume returns the fluid volume flow in L/hr implied by the water flow.
func (s Stream) Volume() float64 {
	return s.Flow[species.Water] * physio.WaterMolarMass / physio.WaterDensity
}

// Concentrations returns each solute's flow divided by the stream volume (mol/L).
// Epsilon keeps the result finite when the stream carries no water.
func (s Stream) Concentrations() species.Solutes {
	var out species.Solutes
	vol := s.Volume() + physio.Epsilon
	for _, sp := range species.SoluteList() {
		out[sp] = s.Flow[sp] / vol
	}
	return out
}

// Result holds the streams produced by one engine invocation.
// Streams[0] is the glomerular filtrate; Streams[i+1] is the output of segment i.
type Result struct {
	GFR     float64
	Streams [StreamCount]Stream
}

// Filtrate returns the stream entering the proximal tubule.
func (r *Result) Filtrate() Stream { return r.Streams[0] }

// Output returns the stream leaving seg.
func (r *Result) Output(seg Segment) Stream { return r.Streams[seg+1] }

// Urine returns the stream leaving the medullary collecting duct.
func (r *Result) Urine() Stream { return r.Streams[StreamCount-1] }

// Delivery returns the NaCl flow (Na + Cl, mol/hr) leaving the thick ascending
// limb, the signal sensed by tubuloglomerular feedback.
func (r *Result) Delivery() float64 {
	out := r.Output(ThickAscendingLimb)
	return out.Flow[species.Sodium] + out.Flow[species.Chloride]
}

// StreamTable returns a StreamCount × 8 matrix: column 0 is the stream total,
// columns 1..7 are the species flows in species order (mol/hr).
func (r *Result) StreamTable() *mat.Dense {
	t := mat.NewDense(StreamCount, species.Count+1, nil)
	for i, st := range r.Streams {
		t.Set(i, 0, st.Total())
		for j, v := range st.Flow {
			t.Set(i, j+1, v)
		}
	}
	return t
}

// ConcentrationTable returns a StreamCount × 6 matrix of solute concentrations (mol/L).
func (r *Result) ConcentrationTable() *mat.Dense {
	t := mat.NewDense(StreamCount, species.SoluteCount, nil)
	for i, st := range r.Streams {
		c := st.Concentrations()
		t.SetRow(i, c[:])
	}
	return t
}

// Filter computes the glomerular filtrate for the given plasma concentrations
// (mmol/L) and GFR (L/hr).
func Filter(plasma species.Solutes, gfr float64) Stream {
	var flow species.Vector
	for _, s := range species.SoluteList() {
		flow[s] = plasma[s] * gfr / physio.MillimolesPerMole
	}
	flow[species.Water] = physio.WaterDensity * gfr / physio.WaterMolarMass
	return Stream{Flow: flow}
}

// Apply passes in through seg: every species is multiplied by its remaining fraction.
func Apply(in Stream, rates *RateSet, seg Segment) Stream {
	remaining := rates.Remaining(seg)
	var out Stream
	floats.MulTo(out.Flow[:], in.Flow[:], remaining[:])
	return out
}

// Simulate filters plasma at the given GFR and folds the filtrate through every
// segment in order. It has no side effects and is safe for concurrent use.
func Simulate(plasma species.Solutes, gfr float64, rates RateSet) (*Result, error) {
	if err := validate(plasma, gfr, &rates); err != nil {
		return nil, err
	}

	res := &Result{GFR: gfr}
	res.Streams[0] = Filter(plasma, gfr)
	for _, seg := range Segments() {
		res.Streams[seg+1] = Apply(res.Streams[seg], &rates, seg)
	}
	return res, nil
}

func validate(plasma species.Solutes, gfr float64, rates *RateSet) error {
	if math.IsNaN(gfr) || math.IsInf(gfr, 0) || gfr < 0 {
		return fmt.Errorf("%w: gfr %v", ErrInvalidInput, gfr)
	}
	for _, s := range species.SoluteList() {
		c := plasma[s]
		if math.IsNaN(c) || math.IsInf(c, 0) || c < 0 {
			return fmt.Errorf("%w: %s concentration %v", ErrInvalidInput, s.Name(), c)
		}
	}
	for _, seg := range Segments() {
		for _, s := range species.All() {
			v := rates[seg][s]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s rate in %s is %v", ErrInvalidInput, s.Name(), seg.Label(), v)
			}
		}
	}
	return nil
}
