package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/talgya/nephron-sim/internal/engine"
	"github.com/talgya/nephron-sim/internal/persistence"
	"github.com/talgya/nephron-sim/internal/physio"
	"github.com/talgya/nephron-sim/internal/scenario"
	"github.com/talgya/nephron-sim/internal/species"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	highStyle   = cellStyle.Foreground(lipgloss.Color("9"))
	lowStyle    = cellStyle.Foreground(lipgloss.Color("11"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// newLogger picks a text handler for terminals and JSON otherwise.
func newLogger(w *os.File, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func f2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
func f3(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
func f4(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

// bandStyle colours a controlled concentration by which side of its dead-band it sits on.
func bandStyle(b physio.Band, value, setpoint float64) lipgloss.Style {
	switch b.Classify(value, setpoint) {
	case physio.High:
		return highStyle
	case physio.Low:
		return lowStyle
	}
	return cellStyle
}

// printHistory writes the day-by-day trajectory of a run.
func printHistory(w io.Writer, title string, hist *engine.History, setpoint species.Solutes) {
	records := hist.Records()
	t := newTable("day", "Na+", "K+", "HCO3-", "GFR", "DCT Na", "CCD H2O", "CCD K", "guarded")
	for _, r := range records {
		t.Row(
			strconv.Itoa(r.Day),
			f3(r.Sodium), f3(r.Potassium), f3(r.Bicarbonate),
			f2(r.GFR),
			f4(r.DistalSodiumRate), f4(r.CorticalWaterRate), f4(r.CorticalPotassiumRate),
			strconv.Itoa(r.GuardedIterations),
		)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		r := records[row]
		switch col {
		case 1:
			return bandStyle(physio.SodiumBand, r.Sodium, setpoint[species.Sodium])
		case 2:
			return bandStyle(physio.PotassiumBand, r.Potassium, setpoint[species.Potassium])
		case 3:
			return bandStyle(physio.BicarbonateBand, r.Bicarbonate, setpoint[species.Bicarbonate])
		}
		return cellStyle
	})

	fmt.Fprintln(w, titleStyle.Render(title))
	fmt.Fprintln(w, t.Render())
}

// printSummaries writes one line per finished scenario.
func printSummaries(w io.Writer, results []*scenario.Result) {
	t := newTable("scenario", "days", "Na+", "K+", "HCO3-", "GFR", "guarded", "took")
	for _, res := range results {
		last := res.History.Last()
		t.Row(
			res.Scenario.Name,
			strconv.Itoa(last.Day),
			f3(last.Sodium), f3(last.Potassium), f3(last.Bicarbonate),
			f2(last.GFR),
			strconv.Itoa(res.History.GuardedIterations()),
			res.Took.Round(time.Microsecond).String(),
		)
	}
	fmt.Fprintln(w, t.Render())
}

// printRuns writes the stored-run listing.
func printRuns(w io.Writer, runs []persistence.Run, total int) {
	t := newTable("id", "scenario", "days", "Na+", "K+", "HCO3-", "GFR", "created")
	for _, r := range runs {
		t.Row(
			r.ID,
			r.Scenario,
			strconv.Itoa(r.Days),
			f3(r.Sodium), f3(r.Potassium), f3(r.Bicarbonate),
			f2(r.GFR),
			humanize.Time(r.Created()),
		)
	}
	fmt.Fprintln(w, t.Render())
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("showing %d of %s stored runs", len(runs), humanize.Comma(int64(total)))))
}

// printScenarios writes the built-in catalog.
func printScenarios(w io.Writer, list []scenario.Scenario) {
	t := newTable("name", "label", "Na+", "K+", "HCO3-")
	for _, s := range list {
		t.Row(s.Name, s.Label, f2(s.Plasma[species.Sodium]), f2(s.Plasma[species.Potassium]), f2(s.Plasma[species.Bicarbonate]))
	}
	fmt.Fprintln(w, t.Render())
}
