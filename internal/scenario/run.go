package scenario

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/nephron-sim/internal/engine"
)

// Result is a finished scenario run.
type Result struct {
	Scenario Scenario
	Config   engine.Config
	History  *engine.History
	Took     time.Duration
}

// Run builds a controller for s on top of base and simulates every day.
func Run(s Scenario, base engine.Config) (*Result, error) {
	start := time.Now()
	c, err := s.NewController(base)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	hist, err := c.Run()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	res := &Result{Scenario: s, Config: c.Config(), History: hist, Took: time.Since(start)}
	last := hist.Last()
	slog.Info("scenario complete",
		"scenario", s.Name,
		"days", last.Day,
		"na", fmt.Sprintf("%.3f", last.Sodium),
		"k", fmt.Sprintf("%.3f", last.Potassium),
		"hco3", fmt.Sprintf("%.3f", last.Bicarbonate),
		"gfr", fmt.Sprintf("%.2f", last.GFR),
		"guarded", hist.GuardedIterations(),
		"took", res.Took,
	)
	return res, nil
}
