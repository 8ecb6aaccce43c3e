package main

// balance builds a balanced dataset from a directory of class subfolders,
// draws batches from it and reports how the classes were sampled.
//
// Usage:
//   go run ./cmd/balance -dir ~/data/faces -classes-per-batch 4 -images-per-class 2
//   go run ./cmd/balance -config balance.yaml -decode -parallel
//   go run ./cmd/balance -dir ~/data/faces -safe-triplet -samples-per-epoch 800 -audit-trials 16
//
// Without -config the embedded default configuration is used; -write-config
// writes it out as a starting point. Flags override the configuration.

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	mldatasets "github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/tripletloader/datasets"
	"github.com/Noofbiz/tripletloader/monte"
)

func main() {
	klog.InitFlags(nil)
	configPath := flag.String("config", "", "YAML configuration file (default: embedded configuration)")
	writeConfig := flag.String("write-config", "", "write the default configuration to this path and exit")
	values := registerFlags(flag.CommandLine)
	flag.Parse()
	defer klog.Flush()

	if *writeConfig != "" {
		if err := os.WriteFile(*writeConfig, []byte(defaultConfigYAML), 0644); err != nil {
			klog.Exitf("failed to write default config to %s: %v", *writeConfig, err)
		}
		klog.Infof("Wrote default config to %s", *writeConfig)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		klog.Exitf("%+v", err)
	}
	if err := values.apply(flag.CommandLine, cfg); err != nil {
		klog.Exitf("%+v", err)
	}

	ds, err := datasets.NewBalancedImageDataset(cfg.Dir, cfg.Dataset)
	if err != nil {
		klog.Exitf("failed to build dataset from %s: %v", cfg.Dir, err)
	}
	opts := ds.Options()
	fmt.Printf("Dataset %s: %s files in %d classes\n", ds.Name(), humanize.Comma(int64(ds.NumFiles())), ds.NumClasses())
	if ds.Standalone() {
		fmt.Printf("\tsingle pass without labels, batches of %d\n", ds.BatchSize())
	} else {
		fmt.Printf("\tbatches of %d classes x %d images, safe_triplet=%v\n",
			opts.NumClassesPerBatch, opts.NumImagesPerClass, opts.SafeTriplet)
	}

	ctx := context.Background()
	start := time.Now()
	stats, err := drain(ctx, ds, cfg)
	if err != nil {
		klog.Exitf("sampling failed: %+v", err)
	}
	elapsed := time.Since(start)
	printSummary(ds, stats, elapsed)

	if cfg.PlotDir != "" && stats.labeled {
		if err := plotClassHistogram(cfg.PlotDir, ds.ClassNames(), stats.classCounts); err != nil {
			klog.Errorf("failed to plot class histogram: %v", err)
		} else {
			klog.Infof("Class histogram written to %s", cfg.PlotDir)
		}
	}

	if cfg.Audit.Trials > 0 {
		if err := runAudit(ctx, cfg); err != nil {
			klog.Exitf("audit failed: %+v", err)
		}
	}
}

// runStats accumulates what was drawn.
type runStats struct {
	batches  int
	examples int
	bytes    uint64

	labeled     bool
	classCounts []int
}

func (s *runStats) addClasses(classes []int) {
	s.labeled = true
	for _, c := range classes {
		s.classCounts[c]++
	}
}

// drain draws cfg.Batches batches, or the whole stream if cfg.Batches is 0.
func drain(ctx context.Context, ds *datasets.BalancedImageDataset, cfg *Config) (*runStats, error) {
	n := cfg.Batches
	if n == 0 {
		n = ds.Cardinality()
		if n == datasets.Infinite {
			return nil, errors.New("the stream is infinite: set -batches, or bound it with -samples-per-epoch")
		}
	}
	stats := &runStats{classCounts: make([]int, ds.NumClasses())}
	bar := progressbar.NewOptions(n,
		progressbar.OptionSetDescription("Sampling"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("batches"),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)
	defer func() { _ = bar.Finish() }()

	switch {
	case cfg.Parallel:
		// Batches are decoded ahead by gomlx's parallel dataset.
		pds := mldatasets.Take(mldatasets.Parallel(ds), n)
		for {
			_, inputs, labels, err := pds.Yield()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			stats.batches++
			stats.examples += inputs[0].Shape().Dimensions[0]
			stats.bytes += uint64(inputs[0].Shape().Memory())
			if len(labels) > 0 {
				classes, err := classesFromLabels(labels[0])
				if err != nil {
					return nil, err
				}
				stats.addClasses(classes)
			}
			_ = bar.Add(1)
		}

	case cfg.Decode:
		for stats.batches < n {
			batch, err := ds.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			stats.batches++
			stats.examples += len(batch.Samples)
			stats.bytes += uint64(4 * len(batch.Images.Buf))
			if batch.Labels != nil {
				stats.addClasses(batch.Classes())
			}
			_ = bar.Add(1)
		}

	default:
		// Indices only: no file is opened.
		for stats.batches < n {
			samples, err := ds.NextIndices()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			stats.batches++
			stats.examples += len(samples)
			if !ds.Standalone() {
				classes := make([]int, len(samples))
				for i, s := range samples {
					classes[i] = s.Class
				}
				stats.addClasses(classes)
			}
			_ = bar.Add(1)
		}
	}
	return stats, nil
}

// classesFromLabels recovers the class of each example from a label tensor
// of any label mode.
func classesFromLabels(t *tensors.Tensor) ([]int, error) {
	switch v := t.Value().(type) {
	case []int32:
		classes := make([]int, len(v))
		for i, c := range v {
			classes[i] = int(c)
		}
		return classes, nil
	case [][]float32:
		classes := make([]int, len(v))
		for i, row := range v {
			if len(row) == 1 {
				// Binary.
				if row[0] >= 0.5 {
					classes[i] = 1
				}
				continue
			}
			for c, x := range row {
				if x > row[classes[i]] {
					classes[i] = c
				}
			}
		}
		return classes, nil
	}
	return nil, errors.Errorf("unexpected label tensor %s", t.Shape())
}

func printSummary(ds *datasets.BalancedImageDataset, stats *runStats, elapsed time.Duration) {
	fmt.Printf("Drew %s batches, %s examples in %s\n",
		humanize.Comma(int64(stats.batches)), humanize.Comma(int64(stats.examples)), elapsed.Round(time.Millisecond))
	if stats.bytes > 0 {
		fmt.Printf("\tdecoded %s of images (%s/s)\n",
			humanize.Bytes(stats.bytes), humanize.Bytes(uint64(float64(stats.bytes)/max(elapsed.Seconds(), 1e-9))))
	}
	if !stats.labeled || stats.examples == 0 {
		return
	}
	fmt.Println("Examples per class:")
	for class, name := range ds.ClassNames() {
		count := stats.classCounts[class]
		fmt.Printf("\t%-20s %8s  %5.1f%%  (%s files)\n", name, humanize.Comma(int64(count)),
			100*float64(count)/float64(stats.examples), humanize.Comma(int64(len(ds.ClassPool(class)))))
	}
}

// runAudit replays the sampler over independently seeded datasets and
// reports how evenly the files were drawn.
func runAudit(ctx context.Context, cfg *Config) error {
	factory := func(seed int64) (monte.Source, error) {
		opts := cfg.Dataset
		opts.Seed = datasets.SeedOf(seed)
		ds, err := datasets.NewBalancedImageDataset(cfg.Dir, opts)
		if err != nil {
			return nil, err
		}
		return ds, nil
	}
	m, err := monte.NewMonte(factory, cfg.Audit.Trials)
	if err != nil {
		return err
	}
	if cfg.Audit.Seed != nil {
		m.SetSeed(*cfg.Audit.Seed)
	}
	klog.Infof("Running coverage audit: %d trials", cfg.Audit.Trials)
	report, err := m.Simulate(ctx, cfg.Audit.Batches)
	if err != nil {
		return err
	}

	fmt.Printf("Coverage audit over %d trials:\n", len(report.Trials))
	fmt.Printf("\tdraws per file: min %d, max %d, mean %.2f, stddev %.2f\n",
		report.PerFile.Min, report.PerFile.Max, report.PerFile.Mean, report.PerFile.StdDev)
	fmt.Printf("\tlargest spread within a class: %d\n", report.MaxSpread)
	fmt.Printf("\tunbalanced batches: %d\n", report.Unbalanced)
	for class, s := range report.PerClass {
		fmt.Printf("\tclass %-4d examples per trial: min %d, max %d, mean %.1f\n", class, s.Min, s.Max, s.Mean)
	}

	if cfg.PlotDir != "" {
		if err := plotFileDraws(cfg.PlotDir, report); err != nil {
			klog.Errorf("failed to plot file draws: %v", err)
		}
	}
	return nil
}
