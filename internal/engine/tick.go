// Package engine provides the day loop and the homeostatic controller that
// drives the transport engine toward plasma setpoints.
package engine

import (
	"fmt"
	"log/slog"
)

// Engine drives the simulation forward one day at a time.
// Days are sequentially dependent, so a single Engine is never run concurrently.
type Engine struct {
	Day     int  // Last completed day (0 before the first)
	Running bool

	// OnDay is called once per simulated day, starting at day 1.
	OnDay func(day int) error
}

// NewEngine creates a day-loop engine positioned before day 1.
func NewEngine() *Engine {
	return &Engine{}
}

// Run advances the engine by days, stopping at the first OnDay error.
// There is no early exit otherwise: every requested day runs.
func (e *Engine) Run(days int) error {
	if days < 0 {
		return fmt.Errorf("negative day count %d", days)
	}
	e.Running = true
	defer func() { e.Running = false }()

	slog.Debug("day loop started", "from_day", e.Day+1, "days", days)
	for i := 0; i < days; i++ {
		if err := e.step(); err != nil {
			return fmt.Errorf("day %d: %w", e.Day+1, err)
		}
	}
	slog.Debug("day loop finished", "day", e.Day)
	return nil
}

func (e *Engine) step() error {
	if e.OnDay != nil {
		if err := e.OnDay(e.Day + 1); err != nil {
			return err
		}
	}
	e.Day++
	return nil
}

// SimDay returns a human-readable label for a simulated day.
func SimDay(day int) string {
	if day == 0 {
		return "baseline"
	}
	return fmt.Sprintf("Week %d Day %d", (day-1)/7+1, (day-1)%7+1)
}
