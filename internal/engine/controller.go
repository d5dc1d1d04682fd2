// Controller ties the transport engine to plasma state and runs it each day.
package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/nephron-sim/internal/nephron"
	"github.com/talgya/nephron-sim/internal/physio"
	"github.com/talgya/nephron-sim/internal/species"
)

// IntakeSource supplies the daily intake (mol/day per species) that urine output is balanced against.
// baseline is the healthy daily output computed at setpoint.
type IntakeSource interface {
	Intake(day int, baseline species.Vector) species.Vector
}

// Option customizes a Controller.
type Option func(*Controller)

// WithIntake replaces the steady intake with src.
func WithIntake(src IntakeSource) Option {
	return func(c *Controller) { c.intake = src }
}

// Controller holds the mutable state of one scenario run: the reabsorption
// rates and plasma concentrations. Each day it nudges the rates toward the
// setpoints, re-solves GFR under tubuloglomerular feedback, and applies the
// resulting urine output to whole-body mass balance.
type Controller struct {
	cfg    Config
	rates  nephron.RateSet
	plasma species.Solutes

	// Computed once at setpoint with baseline rates and GFR.
	healthyDelivery float64
	healthyLoss     species.Vector

	intake  IntakeSource
	history *History
}

// NewController validates cfg, precomputes the healthy reference output and
// records day 0 with the initial plasma state.
func NewController(cfg Config, initial species.Solutes, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Days run on saturated rates, so the reference must too.
	rates := cfg.BaselineRates.Clamped()
	ref, err := nephron.Simulate(cfg.Setpoint, cfg.BaselineGFR, rates)
	if err != nil {
		return nil, fmt.Errorf("healthy reference: %w", err)
	}
	if d := ref.Delivery(); !positive(d) || d <= physio.DeliveryFloor {
		return nil, fmt.Errorf("%w: healthy macula densa delivery %v", ErrInvalidConfig, d)
	}
	if _, err := nephron.Simulate(initial, cfg.BaselineGFR, rates); err != nil {
		return nil, fmt.Errorf("initial plasma: %w", err)
	}

	c := &Controller{
		cfg:             cfg,
		rates:           rates,
		plasma:          initial,
		healthyDelivery: ref.Delivery(),
		healthyLoss:     ref.Urine().Flow.Scale(physio.HoursPerDay),
		history:         NewHistory(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.history.Append(c.record(0, cfg.BaselineGFR, c.healthyDelivery, 0, species.Vector{}, initial))
	return c, nil
}

// Config returns the configuration the controller was built with.
func (c *Controller) Config() Config { return c.cfg }

// Rates returns a copy of the current reabsorption table.
func (c *Controller) Rates() nephron.RateSet { return c.rates }

// Plasma returns the current plasma concentrations.
func (c *Controller) Plasma() species.Solutes { return c.plasma }

// History returns the run history. Callers must not append to it.
func (c *Controller) History() *History { return c.history }

// HealthyDailyLoss returns the reference urine output at setpoint (mol/day).
func (c *Controller) HealthyDailyLoss() species.Vector { return c.healthyLoss }

// HealthyDelivery returns the reference macula densa NaCl delivery (mol/hr).
func (c *Controller) HealthyDelivery() float64 { return c.healthyDelivery }

// Run simulates cfg.Days days and returns the history.
func (c *Controller) Run() (*History, error) {
	eng := NewEngine()
	eng.Day = c.history.Last().Day
	eng.OnDay = c.TickDay
	if err := eng.Run(c.cfg.Days); err != nil {
		return c.history, err
	}
	return c.history, nil
}

// TickDay runs one day: adjust rates, solve GFR, compute output, update plasma, record.
func (c *Controller) TickDay(day int) error {
	c.AdjustRates()

	gfr, _, guarded, err := c.SolveGFR()
	if err != nil {
		return fmt.Errorf("solve gfr: %w", err)
	}

	loss, delivery, err := c.DailyOutput(gfr)
	if err != nil {
		return fmt.Errorf("daily output: %w", err)
	}

	intake := c.healthyLoss
	if c.intake != nil {
		intake = c.intake.Intake(day, c.healthyLoss)
	}
	tracked := c.UpdatePlasma(intake.Sub(loss))

	rec := c.record(day, gfr, delivery, guarded, loss, tracked)
	c.history.Append(rec)

	slog.Debug("daily report",
		"day", day,
		"time", SimDay(day),
		"na", fmt.Sprintf("%.3f", rec.Sodium),
		"k", fmt.Sprintf("%.3f", rec.Potassium),
		"hco3", fmt.Sprintf("%.3f", rec.Bicarbonate),
		"gfr", fmt.Sprintf("%.2f", gfr),
		"dct_na", fmt.Sprintf("%.4f", rec.DistalSodiumRate),
		"ccd_water", fmt.Sprintf("%.4f", rec.CorticalWaterRate),
		"ccd_k", fmt.Sprintf("%.4f", rec.CorticalPotassiumRate),
	)
	return nil
}

// AdjustRates applies the three proportional rules (Na, then K, then HCO3)
// and saturates the whole rate table.
func (c *Controller) AdjustRates() {
	lr := c.cfg.LearningRates
	sp := c.cfg.Setpoint

	// Sodium: trade distal Na reabsorption against cortical water reabsorption.
	switch physio.SodiumBand.Classify(c.plasma[species.Sodium], sp[species.Sodium]) {
	case physio.High:
		c.rates.Add(nephron.Distal, species.Sodium, -lr.Sodium)
		c.rates.Add(nephron.CorticalDuct, species.Water, lr.Sodium)
	case physio.Low:
		c.rates.Add(nephron.Distal, species.Sodium, lr.Sodium)
		c.rates.Add(nephron.CorticalDuct, species.Water, -lr.Sodium)
	}

	// Potassium: lowering collecting-duct K rates increases secretion.
	switch physio.PotassiumBand.Classify(c.plasma[species.Potassium], sp[species.Potassium]) {
	case physio.High:
		c.rates.Add(nephron.CorticalDuct, species.Potassium, -lr.Potassium)
		c.rates.Add(nephron.MedullaryDuct, species.Potassium, -lr.Potassium)
	case physio.Low:
		c.rates.Add(nephron.CorticalDuct, species.Potassium, lr.Potassium)
		c.rates.Add(nephron.MedullaryDuct, species.Potassium, lr.Potassium)
	}

	// Bicarbonate: acidosis raises proximal reclamation, alkalosis lowers it.
	switch physio.BicarbonateBand.Classify(c.plasma[species.Bicarbonate], sp[species.Bicarbonate]) {
	case physio.Low:
		c.rates.Add(nephron.Proximal, species.Bicarbonate, lr.Bicarbonate)
	case physio.High:
		c.rates.Add(nephron.Proximal, species.Bicarbonate, -lr.Bicarbonate)
	}

	c.rates.Clamp()
}

// SolveGFR runs the fixed tubuloglomerular feedback iteration starting from the
// baseline GFR. Every pass scales the baseline by healthy/current NaCl delivery
// and clamps to [GFRMin, GFRMax]. A pass whose delivery is at or below
// physio.DeliveryFloor keeps the previous candidate and is counted as guarded.
// The returned delivery is the one measured on the last pass, at the candidate
// that pass started from.
func (c *Controller) SolveGFR() (gfr, delivery float64, guarded int, err error) {
	gfr = c.cfg.BaselineGFR
	for i := 0; i < c.cfg.TGFIterations; i++ {
		res, err := nephron.Simulate(c.plasma, gfr, c.rates)
		if err != nil {
			return 0, 0, guarded, err
		}
		delivery = res.Delivery()

		factor := c.healthyDelivery / delivery
		if delivery <= physio.DeliveryFloor || math.IsNaN(factor) || math.IsInf(factor, 0) {
			guarded++
			slog.Warn("degenerate macula densa delivery, keeping GFR",
				"iteration", i+1,
				"delivery", delivery,
				"gfr", gfr,
			)
			continue
		}
		gfr = physio.Clamp(c.cfg.BaselineGFR*factor, c.cfg.GFRMin, c.cfg.GFRMax)
	}
	return gfr, delivery, guarded, nil
}

// DailyOutput returns the day's urine output (mol/day) and macula densa
// delivery (mol/hr) at the given GFR and current rates.
func (c *Controller) DailyOutput(gfr float64) (loss species.Vector, delivery float64, err error) {
	res, err := nephron.Simulate(c.plasma, gfr, c.rates)
	if err != nil {
		return species.Vector{}, 0, err
	}
	return res.Urine().Flow.Scale(physio.HoursPerDay), res.Delivery(), nil
}

// UpdatePlasma applies net (mol/day, intake minus output) to whole-body
// content and writes the new Na, K and HCO3 concentrations back. All six
// recomputed concentrations are returned. When the resulting body water is
// not positive the plasma state is left unchanged.
func (c *Controller) UpdatePlasma(net species.Vector) species.Solutes {
	volume := c.cfg.BodyWater
	water := volume*physio.WaterDensity/physio.WaterMolarMass + net[species.Water]
	newVolume := water * physio.WaterMolarMass / physio.WaterDensity

	if !positive(newVolume) {
		slog.Warn("body water depleted, skipping plasma update", "volume", newVolume)
		return c.plasma
	}

	var next species.Solutes
	for _, s := range species.SoluteList() {
		moles := c.plasma[s]*volume/physio.MillimolesPerMole + net[s]
		next[s] = moles / newVolume * physio.MillimolesPerMole
	}

	c.plasma[species.Sodium] = next[species.Sodium]
	c.plasma[species.Potassium] = next[species.Potassium]
	c.plasma[species.Bicarbonate] = next[species.Bicarbonate]
	return next
}

func (c *Controller) record(day int, gfr, delivery float64, guarded int, loss species.Vector, tracked species.Solutes) DayRecord {
	return DayRecord{
		Day:                   day,
		Sodium:                c.plasma[species.Sodium],
		Potassium:             c.plasma[species.Potassium],
		Bicarbonate:           c.plasma[species.Bicarbonate],
		DistalSodiumRate:      c.rates.Get(nephron.Distal, species.Sodium),
		CorticalWaterRate:     c.rates.Get(nephron.CorticalDuct, species.Water),
		CorticalPotassiumRate: c.rates.Get(nephron.CorticalDuct, species.Potassium),
		GFR:                   gfr,
		Delivery:              delivery,
		GuardedIterations:     guarded,
		DailyLoss:             loss,
		Tracked:               tracked,
	}
}
