// Package scenario defines the initial conditions a controller run starts from:
// built-in clinical presets and YAML scenario files.
package scenario

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/talgya/nephron-sim/internal/engine"
	"github.com/talgya/nephron-sim/internal/nephron"
	"github.com/talgya/nephron-sim/internal/species"
)

// RateOverride replaces one baseline reabsorption fraction.
type RateOverride struct {
	Segment string  `yaml:"segment" json:"segment"`
	Species string  `yaml:"species" json:"species"`
	Value   float64 `yaml:"value" json:"value"`
}

// Scenario is a labelled initial plasma state plus optional tweaks to the controller config.
type Scenario struct {
	Name        string          `json:"name"`
	Label       string          `json:"label"`
	Description string          `json:"description,omitempty"`
	Plasma      species.Solutes `json:"plasma"`
	Days        int             `json:"days,omitempty"` // 0 keeps the config default

	BodyWater     float64               `json:"body_water,omitempty"`
	LearningRates *engine.LearningRates `json:"learning_rates,omitempty"`
	RateOverrides []RateOverride        `json:"rate_overrides,omitempty"`
	Variability   Variability           `json:"variability"`
}

// file is the on-disk YAML layout. Plasma is keyed by species name or symbol.
type file struct {
	Name          string                `yaml:"name"`
	Label         string                `yaml:"label"`
	Description   string                `yaml:"description"`
	Days          int                   `yaml:"days"`
	Plasma        map[string]float64    `yaml:"plasma"`
	BodyWater     float64               `yaml:"body_water"`
	LearningRates *engine.LearningRates `yaml:"learning_rates"`
	RateOverrides []RateOverride        `yaml:"rate_overrides"`
	Variability   Variability           `yaml:"variability"`
}

// Healthy returns the setpoint plasma state.
func Healthy() Scenario {
	return Scenario{
		Name:        "healthy",
		Label:       "Healthy adult",
		Description: "Plasma at setpoint; the controller should hold steady.",
		Plasma:      engine.DefaultConfig().Setpoint,
	}
}

// Builtin returns every preset, keyed by name.
func Builtin() map[string]Scenario {
	sp := engine.DefaultConfig().Setpoint
	with := func(edits map[species.Species]float64) species.Solutes {
		out := sp
		for s, v := range edits {
			out[s] = v
		}
		return out
	}

	list := []Scenario{
		Healthy(),
		{
			Name:        "hyperkalemia_acidosis",
			Label:       "Hyperkalemia with metabolic acidosis",
			Description: "Elevated potassium and depleted bicarbonate; secretion and proximal reclamation must both rise.",
			Plasma:      with(map[species.Species]float64{species.Potassium: 5.5, species.Bicarbonate: 20}),
		},
		{
			Name:        "hypokalemia_alkalosis",
			Label:       "Hypokalemia with metabolic alkalosis",
			Description: "Low potassium and excess bicarbonate.",
			Plasma:      with(map[species.Species]float64{species.Potassium: 3.2, species.Bicarbonate: 29}),
		},
		{
			Name:        "hyponatremia",
			Label:       "Hyponatremia",
			Description: "Dilutional low sodium; distal sodium reabsorption rises while cortical water reabsorption falls.",
			Plasma:      with(map[species.Species]float64{species.Sodium: 130}),
		},
		{
			Name:        "hypernatremia",
			Label:       "Hypernatremia",
			Description: "Concentrated plasma sodium.",
			Plasma:      with(map[species.Species]float64{species.Sodium: 150}),
		},
	}

	out := make(map[string]Scenario, len(list))
	for _, s := range list {
		out[s.Name] = s
	}
	return out
}

// Names returns the built-in scenario names in sorted order.
func Names() []string {
	b := Builtin()
	names := make([]string, 0, len(b))
	for n := range b {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named built-in scenario.
func Lookup(name string) (Scenario, error) {
	s, ok := Builtin()[name]
	if !ok {
		return Scenario{}, fmt.Errorf("unknown scenario %q", name)
	}
	return s, nil
}

// Load reads a YAML scenario file. Species missing from its plasma section keep their setpoint.
func Load(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML scenario document.
func Parse(data []byte) (Scenario, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario: %w", err)
	}
	if f.Name == "" {
		return Scenario{}, fmt.Errorf("scenario has no name")
	}

	plasma, err := species.SolutesFromMap(f.Plasma, engine.DefaultConfig().Setpoint)
	if err != nil {
		return Scenario{}, fmt.Errorf("scenario %s plasma: %w", f.Name, err)
	}

	s := Scenario{
		Name:          f.Name,
		Label:         f.Label,
		Description:   f.Description,
		Plasma:        plasma,
		Days:          f.Days,
		BodyWater:     f.BodyWater,
		LearningRates: f.LearningRates,
		RateOverrides: f.RateOverrides,
		Variability:   f.Variability,
	}
	if s.Label == "" {
		s.Label = s.Name
	}
	if _, err := s.Apply(engine.DefaultConfig()); err != nil {
		return Scenario{}, err
	}
	return s, nil
}

// Apply returns base with the scenario's day count, body water, learning
// rates, and rate overrides applied.
func (s Scenario) Apply(base engine.Config) (engine.Config, error) {
	cfg := base
	if s.Days > 0 {
		cfg.Days = s.Days
	}
	if s.BodyWater > 0 {
		cfg.BodyWater = s.BodyWater
	}
	if s.LearningRates != nil {
		cfg.LearningRates = *s.LearningRates
	}
	for _, o := range s.RateOverrides {
		seg, ok := nephron.ParseSegment(o.Segment)
		if !ok {
			return base, fmt.Errorf("scenario %s: unknown segment %q", s.Name, o.Segment)
		}
		sp, err := species.Parse(o.Species)
		if err != nil {
			return base, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			return base, fmt.Errorf("scenario %s: %s %s rate is not finite", s.Name, seg, sp.Name())
		}
		cfg.BaselineRates.Set(seg, sp, o.Value)
	}
	if err := cfg.Validate(); err != nil {
		return base, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return cfg, nil
}

// NewController builds a controller for this scenario on top of base.
func (s Scenario) NewController(base engine.Config) (*engine.Controller, error) {
	cfg, err := s.Apply(base)
	if err != nil {
		return nil, err
	}
	var opts []engine.Option
	if s.Variability.Enabled() {
		opts = append(opts, engine.WithIntake(s.Variability.Source()))
	}
	return engine.NewController(cfg, s.Plasma, opts...)
}
