package main

import (
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/tripletloader/monte"
)

// plotClassHistogram writes a bar chart of the examples drawn per class.
func plotClassHistogram(outDir string, classNames []string, counts []int) error {
	p := plot.New()
	p.Title.Text = "Examples drawn per class"
	p.Y.Label.Text = "examples"

	values := make(plotter.Values, len(counts))
	for i, c := range counts {
		values[i] = float64(c)
	}
	width := vg.Points(max(4, 360/float64(max(1, len(counts)))))
	bars, err := plotter.NewBarChart(values, width)
	if err != nil {
		return err
	}
	bars.Color = color.RGBA{R: 20, G: 80, B: 200, A: 220}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.Add(plotter.NewGrid())
	if len(classNames) <= 40 {
		p.NominalX(classNames...)
	}

	if err := ensureDir(outDir); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, filepath.Join(outDir, "class_histogram.png"))
}

// plotFileDraws writes a histogram of how many times each file was drawn in
// each audit trial.
func plotFileDraws(outDir string, report *monte.Report) error {
	var values plotter.Values
	for _, t := range report.Trials {
		for _, n := range t.FileDraws {
			values = append(values, float64(n))
		}
	}
	if len(values) == 0 {
		return nil
	}
	p := plot.New()
	p.Title.Text = "Draws per file and trial"
	p.X.Label.Text = "draws"
	p.Y.Label.Text = "files"

	bins := report.PerFile.Max - report.PerFile.Min + 1
	hist, err := plotter.NewHist(values, max(1, min(bins, 50)))
	if err != nil {
		return err
	}
	hist.FillColor = color.RGBA{R: 200, G: 30, B: 30, A: 180}
	p.Add(hist)
	p.Add(plotter.NewGrid())

	if err := ensureDir(outDir); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, filepath.Join(outDir, "file_draws.png"))
}

func ensureDir(path string) error {
	// Attempt to create directory if it doesn't exist (silently succeed if present).
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
