package scenario

import (
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/nephron-sim/internal/species"
)

// Variability perturbs daily intake with smooth simplex noise, one independent
// track per species. Amplitude is the peak relative deviation (0.05 = ±5%).
type Variability struct {
	Amplitude float64 `yaml:"amplitude" json:"amplitude"`
	Frequency float64 `yaml:"frequency" json:"frequency"` // Noise cycles per day (default 0.15)
	Seed      int64   `yaml:"seed" json:"seed"`
}

// Enabled reports whether the variability changes intake at all.
func (v Variability) Enabled() bool {
	return v.Amplitude > 0
}

// Source returns an intake source for the controller.
func (v Variability) Source() *NoiseIntake {
	freq := v.Frequency
	if freq <= 0 {
		freq = 0.15
	}
	return &NoiseIntake{
		noise:     opensimplex.NewNormalized(v.Seed),
		amplitude: v.Amplitude,
		frequency: freq,
	}
}

// NoiseIntake scales the healthy baseline intake by 1 ± amplitude using
// deterministic noise, so the same seed always yields the same run.
type NoiseIntake struct {
	noise     opensimplex.Noise
	amplitude float64
	frequency float64
}

// Intake implements engine.IntakeSource.
func (n *NoiseIntake) Intake(day int, baseline species.Vector) species.Vector {
	for _, s := range species.All() {
		// Species tracks sit far apart on the second axis so they are uncorrelated.
		x := n.noise.Eval2(float64(day)*n.frequency, float64(s)*17.3)
		baseline[s] *= 1 + n.amplitude*(2*x-1)
	}
	return baseline
}
