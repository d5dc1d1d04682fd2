// Package report renders controller histories as PNG charts and CSV tables.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/talgya/nephron-sim/internal/engine"
	"github.com/talgya/nephron-sim/internal/species"
)

// ErrEmptyHistory is returned when there is nothing to render.
var ErrEmptyHistory = errors.New("empty history")

var (
	lineColor     = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	setpointColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Panel is one chart in the report grid.
type Panel struct {
	Title  string
	YLabel string
	Series func(*engine.History) []float64

	// Setpoint draws a dashed reference line when HasSetpoint is set.
	Setpoint    float64
	HasSetpoint bool
}

// Panels returns the standard 4x2 report layout: the three controlled
// concentrations, GFR, the three adjusted rates and macula densa delivery.
func Panels(setpoint species.Solutes) []Panel {
	return []Panel{
		{Title: "Plasma Na+", YLabel: "mmol/L", Series: (*engine.History).Sodium,
			Setpoint: setpoint[species.Sodium], HasSetpoint: true},
		{Title: "Plasma K+", YLabel: "mmol/L", Series: (*engine.History).Potassium,
			Setpoint: setpoint[species.Potassium], HasSetpoint: true},
		{Title: "Plasma HCO3-", YLabel: "mmol/L", Series: (*engine.History).Bicarbonate,
			Setpoint: setpoint[species.Bicarbonate], HasSetpoint: true},
		{Title: "GFR", YLabel: "L/hr", Series: (*engine.History).GFR},
		{Title: "DCT Na+ reabsorption", YLabel: "fraction", Series: (*engine.History).DistalSodiumRate},
		{Title: "CCD water reabsorption", YLabel: "fraction", Series: (*engine.History).CorticalWaterRate},
		{Title: "CCD K+ reabsorption", YLabel: "fraction (<0 secretes)", Series: (*engine.History).CorticalPotassiumRate},
		{Title: "Macula densa NaCl", YLabel: "mol/hr", Series: (*engine.History).Delivery},
	}
}

// PlotOptions controls the rendered chart.
type PlotOptions struct {
	Title    string
	Setpoint species.Solutes
	Width    vg.Length
	Height   vg.Length
	DPI      int
}

// DefaultPlotOptions returns screen-sized options for the healthy setpoint.
func DefaultPlotOptions() PlotOptions {
	return PlotOptions{
		Title:    "Homeostatic response",
		Setpoint: engine.DefaultConfig().Setpoint,
		Width:    12 * vg.Inch,
		Height:   12 * vg.Inch,
		DPI:      96,
	}
}

func stylePlot(p *plot.Plot) {
	p.Title.TextStyle.Font.Size = vg.Points(13)
	p.Title.Padding = vg.Points(6)
	p.X.Label.TextStyle.Font.Size = vg.Points(10)
	p.Y.Label.TextStyle.Font.Size = vg.Points(10)
	p.X.Tick.Label.Font.Size = vg.Points(9)
	p.Y.Tick.Label.Font.Size = vg.Points(9)
	p.X.Padding = vg.Points(6)
	p.Y.Padding = vg.Points(6)
	p.Add(plotter.NewGrid())
}

func newPanelPlot(panel Panel, days, ys []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = panel.Title
	p.X.Label.Text = "day"
	p.Y.Label.Text = panel.YLabel
	stylePlot(p)

	pts := make(plotter.XYs, len(days))
	for i := range days {
		pts[i].X = days[i]
		pts[i].Y = ys[i]
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", panel.Title, err)
	}
	line.LineStyle.Width = vg.Points(2)
	line.LineStyle.Color = lineColor
	p.Add(line)

	if panel.HasSetpoint {
		sp := panel.Setpoint
		ref := plotter.NewFunction(func(float64) float64 { return sp })
		ref.Color = setpointColor
		ref.Width = vg.Points(1)
		ref.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(ref)
		p.Y.Min = min(p.Y.Min, sp)
		p.Y.Max = max(p.Y.Max, sp)
	}

	// Flat series otherwise collapse to a zero-height axis.
	if p.Y.Max-p.Y.Min < 1e-6 {
		p.Y.Min -= 0.5
		p.Y.Max += 0.5
	}
	return p, nil
}

// WritePlot renders every panel of hist into a single PNG on w.
func WritePlot(w io.Writer, hist *engine.History, opts PlotOptions) error {
	if hist == nil || hist.Len() == 0 {
		return ErrEmptyHistory
	}

	panels := Panels(opts.Setpoint)
	const cols = 2
	rows := (len(panels) + cols - 1) / cols

	days := hist.Days()
	plots := make([][]*plot.Plot, rows)
	for r := range plots {
		plots[r] = make([]*plot.Plot, cols)
		for c := range plots[r] {
			i := r*cols + c
			if i >= len(panels) {
				plots[r][c] = plot.New()
				continue
			}
			p, err := newPanelPlot(panels[i], days, panels[i].Series(hist))
			if err != nil {
				return err
			}
			plots[r][c] = p
		}
	}

	canvas := vgimg.NewWith(
		vgimg.UseWH(opts.Width, opts.Height),
		vgimg.UseDPI(opts.DPI),
	)
	dc := draw.New(canvas)

	header := vg.Points(0)
	if opts.Title != "" {
		header = vg.Points(28)
		font := plot.DefaultFont
		font.Size = vg.Points(16)
		dc.FillText(draw.TextStyle{
			Color:   color.Black,
			Font:    font,
			Handler: plot.DefaultTextHandler,
			XAlign:  draw.XCenter,
			YAlign:  draw.YTop,
		}, vg.Point{X: opts.Width / 2, Y: opts.Height - vg.Points(6)}, opts.Title)
	}
	body := draw.Crop(dc, 0, 0, 0, -header)

	tiles := draw.Tiles{
		Rows:      rows,
		Cols:      cols,
		PadX:      vg.Points(12),
		PadY:      vg.Points(12),
		PadTop:    vg.Points(6),
		PadBottom: vg.Points(6),
		PadLeft:   vg.Points(6),
		PadRight:  vg.Points(6),
	}
	canvases := plot.Align(plots, tiles, body)
	for r := range plots {
		for c := range plots[r] {
			plots[r][c].Draw(canvases[r][c])
		}
	}

	bw := bufio.NewWriter(w)
	pngc := vgimg.PngCanvas{Canvas: canvas}
	if _, err := pngc.WriteTo(bw); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return bw.Flush()
}

// SavePlot writes the PNG report to path, creating parent directories.
func SavePlot(path string, hist *engine.History, opts PlotOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	defer f.Close()

	if err := WritePlot(f, hist, opts); err != nil {
		return err
	}
	return f.Close()
}
