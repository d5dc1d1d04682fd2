package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/talgya/nephron-sim/internal/engine"
	"github.com/talgya/nephron-sim/internal/species"
)

// CSVHeader returns the column names written by WriteCSV.
func CSVHeader() []string {
	header := []string{
		"day", "sodium", "potassium", "bicarbonate",
		"dct_na_rate", "ccd_water_rate", "ccd_k_rate",
		"gfr", "delivery", "guarded_iterations",
	}
	for _, s := range species.SoluteList() {
		header = append(header, "tracked_"+s.Name())
	}
	for _, s := range species.All() {
		header = append(header, "loss_"+s.Name())
	}
	return header
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 15, 64)
}

// WriteCSV writes one row per recorded day.
func WriteCSV(w io.Writer, hist *engine.History) error {
	if hist == nil || hist.Len() == 0 {
		return ErrEmptyHistory
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader()); err != nil {
		return fmt.Errorf("csv header: %w", err)
	}

	for _, r := range hist.Records() {
		row := []string{
			strconv.Itoa(r.Day),
			formatFloat(r.Sodium),
			formatFloat(r.Potassium),
			formatFloat(r.Bicarbonate),
			formatFloat(r.DistalSodiumRate),
			formatFloat(r.CorticalWaterRate),
			formatFloat(r.CorticalPotassiumRate),
			formatFloat(r.GFR),
			formatFloat(r.Delivery),
			strconv.Itoa(r.GuardedIterations),
		}
		for _, v := range r.Tracked {
			row = append(row, formatFloat(v))
		}
		for _, v := range r.DailyLoss {
			row = append(row, formatFloat(v))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("csv day %d: %w", r.Day, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the CSV report to path, creating parent directories.
func SaveCSV(path string, hist *engine.History) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	if err := WriteCSV(f, hist); err != nil {
		return err
	}
	return f.Close()
}
