package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/talgya/nephron-sim/internal/nephron"
	"github.com/talgya/nephron-sim/internal/physio"
	"github.com/talgya/nephron-sim/internal/species"
)

// ErrInvalidConfig is returned by Validate and NewController for unusable configurations.
var ErrInvalidConfig = errors.New("invalid controller config")

// LearningRates are the per-day step sizes of the three proportional rules.
type LearningRates struct {
	Sodium      float64 `yaml:"sodium" json:"sodium"`
	Potassium   float64 `yaml:"potassium" json:"potassium"`
	Bicarbonate float64 `yaml:"bicarbonate" json:"bicarbonate"`
}

// Config holds everything the controller needs to run a scenario.
type Config struct {
	Setpoint      species.Solutes `json:"setpoint"`       // Healthy plasma concentrations (mmol/L)
	BaselineGFR   float64         `json:"baseline_gfr"`   // L/hr
	BaselineRates nephron.RateSet `json:"baseline_rates"` // Starting reabsorption table
	LearningRates LearningRates   `json:"learning_rates"`
	Days          int             `json:"days"`
	BodyWater     float64         `json:"body_water"` // Total body water (L)

	TGFIterations int     `json:"tgf_iterations"`
	GFRMin        float64 `json:"gfr_min"`
	GFRMax        float64 `json:"gfr_max"`
}

// DefaultConfig returns the healthy-adult configuration.
func DefaultConfig() Config {
	return Config{
		Setpoint: species.Solutes{
			physio.SodiumSetpoint,
			physio.PotassiumSetpoint,
			physio.BicarbonateSetpoint,
			physio.UreaSetpoint,
			physio.ChlorideSetpoint,
			physio.GlucoseSetpoint,
		},
		BaselineGFR:   physio.BaselineGFR,
		BaselineRates: nephron.DefaultRates(),
		LearningRates: LearningRates{
			Sodium:      0.002,
			Potassium:   0.003,
			Bicarbonate: 0.004,
		},
		Days:          20,
		BodyWater:     physio.BodyWater,
		TGFIterations: physio.TGFIterations,
		GFRMin:        physio.GFRMin,
		GFRMax:        physio.GFRMax,
	}
}

// Validate reports the first problem that would make the controller misbehave.
func (c Config) Validate() error {
	if !positive(c.BaselineGFR) {
		return fmt.Errorf("%w: baseline GFR %v", ErrInvalidConfig, c.BaselineGFR)
	}
	if !positive(c.BodyWater) {
		return fmt.Errorf("%w: body water %v", ErrInvalidConfig, c.BodyWater)
	}
	if c.Days < 0 {
		return fmt.Errorf("%w: days %d", ErrInvalidConfig, c.Days)
	}
	if c.TGFIterations < 1 {
		return fmt.Errorf("%w: tgf iterations %d", ErrInvalidConfig, c.TGFIterations)
	}
	if !finite(c.GFRMin) || !finite(c.GFRMax) || c.GFRMin <= 0 || c.GFRMin > c.GFRMax {
		return fmt.Errorf("%w: gfr bounds [%v, %v]", ErrInvalidConfig, c.GFRMin, c.GFRMax)
	}
	if c.BaselineGFR < c.GFRMin || c.BaselineGFR > c.GFRMax {
		return fmt.Errorf("%w: baseline GFR %v outside [%v, %v]", ErrInvalidConfig, c.BaselineGFR, c.GFRMin, c.GFRMax)
	}
	lr := c.LearningRates
	for _, v := range []float64{lr.Sodium, lr.Potassium, lr.Bicarbonate} {
		if !finite(v) || v < 0 {
			return fmt.Errorf("%w: learning rate %v", ErrInvalidConfig, v)
		}
	}
	for _, s := range species.SoluteList() {
		if v := c.Setpoint[s]; !finite(v) || v < 0 {
			return fmt.Errorf("%w: %s setpoint %v", ErrInvalidConfig, s.Name(), v)
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func positive(v float64) bool { return finite(v) && v > 0 }
