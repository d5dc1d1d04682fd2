package engine

import "github.com/talgya/nephron-sim/internal/species"

// DayRecord is the controller state after one simulated day.
// Day 0 is the initial state before any adjustment.
type DayRecord struct {
	Day int `json:"day"`

	// Plasma concentrations fed back into the controller (mmol/L).
	Sodium      float64 `json:"sodium"`
	Potassium   float64 `json:"potassium"`
	Bicarbonate float64 `json:"bicarbonate"`

	// Tracked reabsorption fractions.
	DistalSodiumRate      float64 `json:"distal_sodium_rate"`
	CorticalWaterRate     float64 `json:"cortical_water_rate"`
	CorticalPotassiumRate float64 `json:"cortical_potassium_rate"`

	GFR               float64 `json:"gfr"`      // L/hr after TGF
	Delivery          float64 `json:"delivery"` // NaCl at the macula densa, mol/hr
	GuardedIterations int     `json:"guarded_iterations"`

	DailyLoss species.Vector  `json:"daily_loss"` // Urine output, mol/day
	Tracked   species.Solutes `json:"tracked"`    // Mass-balance result for all six solutes
}

// History is the append-only, day-indexed record of a controller run.
type History struct {
	records []DayRecord
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Append adds the next day's record.
func (h *History) Append(r DayRecord) {
	h.records = append(h.records, r)
}

// Len returns the number of recorded days, including day 0.
func (h *History) Len() int { return len(h.records) }

// At returns the record at index i.
func (h *History) At(i int) DayRecord { return h.records[i] }

// Last returns the most recent record. It panics on an empty history.
func (h *History) Last() DayRecord { return h.records[len(h.records)-1] }

// Records returns a copy of every record.
func (h *History) Records() []DayRecord {
	out := make([]DayRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Days returns the day numbers as floats, for plotting.
func (h *History) Days() []float64 {
	return h.series(func(r DayRecord) float64 { return float64(r.Day) })
}

func (h *History) Sodium() []float64 {
	return h.series(func(r DayRecord) float64 { return r.Sodium })
}

func (h *History) Potassium() []float64 {
	return h.series(func(r DayRecord) float64 { return r.Potassium })
}

func (h *History) Bicarbonate() []float64 {
	return h.series(func(r DayRecord) float64 { return r.Bicarbonate })
}

func (h *History) GFR() []float64 {
	return h.series(func(r DayRecord) float64 { return r.GFR })
}

func (h *History) Delivery() []float64 {
	return h.series(func(r DayRecord) float64 { return r.Delivery })
}

func (h *History) DistalSodiumRate() []float64 {
	return h.series(func(r DayRecord) float64 { return r.DistalSodiumRate })
}

func (h *History) CorticalWaterRate() []float64 {
	return h.series(func(r DayRecord) float64 { return r.CorticalWaterRate })
}

func (h *History) CorticalPotassiumRate() []float64 {
	return h.series(func(r DayRecord) float64 { return r.CorticalPotassiumRate })
}

// GuardedIterations returns the total number of TGF passes skipped for degenerate delivery.
func (h *History) GuardedIterations() int {
	n := 0
	for _, r := range h.records {
		n += r.GuardedIterations
	}
	return n
}

func (h *History) series(f func(DayRecord) float64) []float64 {
	out := make([]float64, len(h.records))
	for i, r := range h.records {
		out[i] = f(r)
	}
	return out
}
