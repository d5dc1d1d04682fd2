package nephron

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/nephron-sim/internal/physio"
	"github.com/talgya/nephron-sim/internal/species"
)

func healthyPlasma() species.Solutes {
	return species.Solutes{140, 4.25, 24, 4.75, 101, 5.0}
}

func TestSimulateFiltrationUnits(t *testing.T) {
	gfr := 105.0 / 60 * 60
	res, err := Simulate(healthyPlasma(), gfr, DefaultRates())
	require.NoError(t, err)

	want := (140+4.25+24+4.75+101+5)*gfr/1000 + (1000*gfr)/18
	assert.InDelta(t, want, res.Filtrate().Total(), 1e-9*want)

	f := res.Filtrate().Flow
	assert.InDelta(t, 140*gfr/1000, f[species.Sodium], 1e-12)
	assert.InDelta(t, 1000*gfr/18, f[species.Water], 1e-9)
}

func TestSimulateShape(t *testing.T) {
	res, err := Simulate(healthyPlasma(), 105, DefaultRates())
	require.NoError(t, err)

	r, c := res.StreamTable().Dims()
	assert.Equal(t, 7, r)
	assert.Equal(t, 8, c)

	r, c = res.ConcentrationTable().Dims()
	assert.Equal(t, 7, r)
	assert.Equal(t, 6, c)
}

func TestStreamTotalsConserved(t *testing.T) {
	cases := []struct {
		name   string
		plasma species.Solutes
		gfr    float64
	}{
		{"healthy", healthyPlasma(), 105},
		{"hyperkalemia", species.Solutes{140, 5.5, 20, 4.75, 101, 5}, 90},
		{"dilute", species.Solutes{120, 3, 15, 1, 80, 0}, 120},
		{"zero gfr", healthyPlasma(), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Simulate(tc.plasma, tc.gfr, DefaultRates())
			require.NoError(t, err)

			table := res.StreamTable()
			for i := 0; i < StreamCount; i++ {
				sum := 0.0
				for j := 1; j <= species.Count; j++ {
					sum += table.At(i, j)
				}
				assert.InDelta(t, sum, table.At(i, 0), 1e-9*math.Max(1, math.Abs(sum)), "row %d", i)
			}
		})
	}
}

func TestSegmentsDepleteUnlessSecreting(t *testing.T) {
	rates := DefaultRates()
	res, err := Simulate(healthyPlasma(), 105, rates)
	require.NoError(t, err)

	for _, seg := range Segments() {
		in := res.Streams[seg].Flow
		out := res.Output(seg).Flow
		for _, s := range species.All() {
			rate := rates.Get(seg, s)
			switch {
			case rate < 0:
				assert.Greater(t, out[s], in[s], "%s %s should be secreted", seg, s)
			default:
				assert.LessOrEqual(t, out[s], in[s], "%s %s should not grow", seg, s)
			}
		}
	}
}

func TestSegmentOrderMatters(t *testing.T) {
	rates := DefaultRates()
	res, err := Simulate(healthyPlasma(), 105, rates)
	require.NoError(t, err)

	// Water removed in the descending limb is applied to what the PCT left, not the filtrate.
	want := res.Filtrate().Flow[species.Water] * (1 - 0.67) * (1 - 0.45)
	assert.InDelta(t, want, res.Output(DescendingLimb).Flow[species.Water], 1e-9)
}

func TestConcentrationsFiniteWithoutWater(t *testing.T) {
	rates := DefaultRates()
	rates.Set(Proximal, species.Water, 1)

	res, err := Simulate(healthyPlasma(), 105, rates)
	require.NoError(t, err)

	assert.Zero(t, res.Output(Proximal).Flow[species.Water])
	table := res.ConcentrationTable()
	for i := 0; i < StreamCount; i++ {
		for j := 0; j < species.SoluteCount; j++ {
			v := table.At(i, j)
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "row %d col %d = %v", i, j, v)
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}
}

func TestConcentrationDerivation(t *testing.T) {
	res, err := Simulate(healthyPlasma(), 105, DefaultRates())
	require.NoError(t, err)

	// Filtrate concentration equals plasma concentration converted to mol/L.
	c := res.Filtrate().Concentrations()
	assert.InDelta(t, 0.140, c[species.Sodium], 1e-9)
	assert.InDelta(t, 0.00425, c[species.Potassium], 1e-9)
}

func TestDeliveryIsThickAscendingLimbNaCl(t *testing.T) {
	res, err := Simulate(healthyPlasma(), 105, DefaultRates())
	require.NoError(t, err)

	out := res.StreamTable()
	want := out.At(3, 1+int(species.Sodium)) + out.At(3, 1+int(species.Chloride))
	assert.InDelta(t, want, res.Delivery(), 1e-12)
}

func TestSimulateRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name   string
		plasma species.Solutes
		gfr    float64
		mutate func(*RateSet)
	}{
		{"negative gfr", healthyPlasma(), -1, nil},
		{"nan gfr", healthyPlasma(), math.NaN(), nil},
		{"inf gfr", healthyPlasma(), math.Inf(1), nil},
		{"negative concentration", species.Solutes{140, -1, 24, 4.75, 101, 5}, 105, nil},
		{"nan concentration", species.Solutes{math.NaN(), 4.25, 24, 4.75, 101, 5}, 105, nil},
		{"nan rate", healthyPlasma(), 105, func(r *RateSet) { r.Set(Distal, species.Sodium, math.NaN()) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rates := DefaultRates()
			if tc.mutate != nil {
				tc.mutate(&rates)
			}
			_, err := Simulate(tc.plasma, tc.gfr, rates)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestSimulateZeroGFR(t *testing.T) {
	res, err := Simulate(healthyPlasma(), 0, DefaultRates())
	require.NoError(t, err)
	for _, st := range res.Streams {
		assert.Zero(t, st.Total())
	}
}

func TestSimulateDoesNotMutateRates(t *testing.T) {
	rates := DefaultRates()
	before := rates
	_, err := Simulate(healthyPlasma(), 105, rates)
	require.NoError(t, err)
	assert.Equal(t, before, rates)
}

func TestSimulateConcurrent(t *testing.T) {
	want, err := Simulate(healthyPlasma(), 105, DefaultRates())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Simulate(healthyPlasma(), 105, DefaultRates())
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, want.Streams, r.Streams)
	}
}

func TestClampBounds(t *testing.T) {
	rates := DefaultRates()
	rates.Set(Proximal, species.Sodium, 1.5)
	rates.Set(Distal, species.Water, -0.2)
	rates.Set(CorticalDuct, species.Potassium, -7)
	rates.Set(MedullaryDuct, species.Potassium, -2)
	rates.Set(Distal, species.Potassium, -0.5)

	rates.Clamp()

	assert.Equal(t, physio.RateCeiling, rates.Get(Proximal, species.Sodium))
	assert.Equal(t, 0.0, rates.Get(Distal, species.Water))
	assert.Equal(t, physio.SecretionFloor, rates.Get(CorticalDuct, species.Potassium))
	assert.Equal(t, -2.0, rates.Get(MedullaryDuct, species.Potassium))
	assert.Equal(t, 0.0, rates.Get(Distal, species.Potassium))
}

func TestClampIdempotent(t *testing.T) {
	rates := DefaultRates()
	rates.Add(CorticalDuct, species.Potassium, -10)
	rates.Add(Proximal, species.Bicarbonate, 0.5)
	rates.Add(Distal, species.Sodium, -3)

	once := rates.Clamped()
	twice := once.Clamped()
	assert.Equal(t, once, twice)
}

func TestDefaultRatesWithinBounds(t *testing.T) {
	rates := DefaultRates()
	assert.Equal(t, rates, rates.Clamped())
}

func TestParseSegment(t *testing.T) {
	seg, ok := ParseSegment("cortical_duct")
	require.True(t, ok)
	assert.Equal(t, CorticalDuct, seg)

	seg, ok = ParseSegment("PCT")
	require.True(t, ok)
	assert.Equal(t, Proximal, seg)

	_, ok = ParseSegment("loop")
	assert.False(t, ok)
}
