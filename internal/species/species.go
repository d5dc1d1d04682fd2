// Package species defines the fixed set of solutes and water tracked along the nephron.
// Every flow vector, rate vector, and stream column in the simulation uses this ordering.
package species

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Species identifies one tracked quantity. The numeric value is its column index.
type Species uint8

const (
	Sodium      Species = iota // Na⁺
	Potassium                  // K⁺
	Bicarbonate                // HCO3⁻
	Urea
	Chloride // Cl⁻
	Glucose
	Water
)

// Count is the number of tracked species including water.
const Count = 7

// SoluteCount is the number of species carried as plasma concentrations (everything but water).
const SoluteCount = 6

var names = [Count]string{"sodium", "potassium", "bicarbonate", "urea", "chloride", "glucose", "water"}

var symbols = [Count]string{"Na", "K", "HCO3", "Urea", "Cl", "Glucose", "Water"}

// All returns every species in column order.
func All() []Species {
	return []Species{Sodium, Potassium, Bicarbonate, Urea, Chloride, Glucose, Water}
}

// SoluteList returns the non-water species in column order.
func SoluteList() []Species {
	return []Species{Sodium, Potassium, Bicarbonate, Urea, Chloride, Glucose}
}

// Name returns the lower-case name ("sodium").
func (s Species) Name() string {
	if int(s) < Count {
		return names[s]
	}
	return "unknown"
}

// Symbol returns the short chemical label ("Na").
func (s Species) Symbol() string {
	if int(s) < Count {
		return symbols[s]
	}
	return "?"
}

func (s Species) String() string { return s.Symbol() }

// IsSolute reports whether s has a plasma concentration (i.e. is not water).
func (s Species) IsSolute() bool { return s < Water }

// Parse resolves a species from its name or symbol, case-insensitively.
func Parse(v string) (Species, error) {
	key := strings.ToLower(strings.TrimSpace(v))
	for i := 0; i < Count; i++ {
		if key == names[i] || key == strings.ToLower(symbols[i]) {
			return Species(i), nil
		}
	}
	switch key {
	case "na+":
		return Sodium, nil
	case "k+":
		return Potassium, nil
	case "hco3-":
		return Bicarbonate, nil
	case "cl-":
		return Chloride, nil
	}
	return 0, fmt.Errorf("unknown species %q", v)
}

// Vector holds one value per species, indexed by Species.
// Used for molar flows (mol/hr), daily totals (mol/day) and rate fractions.
type Vector [Count]float64

// Sum returns the total across all species.
func (v Vector) Sum() float64 {
	return floats.Sum(v[:])
}

// Scale returns v multiplied by f.
func (v Vector) Scale(f float64) Vector {
	floats.Scale(f, v[:])
	return v
}

// Sub returns v - o.
func (v Vector) Sub(o Vector) Vector {
	floats.Sub(v[:], o[:])
	return v
}

// Get returns the value for s.
func (v Vector) Get(s Species) float64 { return v[s] }

// Solutes holds plasma concentrations (mmol/L) for the six non-water species.
type Solutes [SoluteCount]float64

// Get returns the concentration of s. Water has no concentration and returns 0.
func (c Solutes) Get(s Species) float64 {
	if !s.IsSolute() {
		return 0
	}
	return c[s]
}

// Map returns concentrations keyed by species name.
func (c Solutes) Map() map[string]float64 {
	out := make(map[string]float64, SoluteCount)
	for _, s := range SoluteList() {
		out[s.Name()] = c[s]
	}
	return out
}

// SolutesFromMap builds a concentration set from named values.
// Species absent from m keep their value from defaults.
func SolutesFromMap(m map[string]float64, defaults Solutes) (Solutes, error) {
	out := defaults
	for key, val := range m {
		s, err := Parse(key)
		if err != nil {
			return out, err
		}
		if !s.IsSolute() {
			return out, fmt.Errorf("%s has no plasma concentration", s.Name())
		}
		out[s] = val
	}
	return out, nil
}
