package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	synod "github.com/lucaerba/SLR-210"
	"github.com/lucaerba/SLR-210/store"
)

const runUsageStr = `
Usage: synod run [arguments]

Simulates one instance with N processes, f of which are fault-prone.
Flags override the values of the -config file.
`

type runFlags struct {
	config   *string
	n        *int
	f        *int
	alpha    *float64
	tle      *int
	interval *int
	delay    *int
	timeout  *int
	seed     *int64
	db       *string
	verbose  *bool
}

func newRunFlags(fs *flag.FlagSet) *runFlags {
	def := synod.DefaultConfig()
	return &runFlags{
		config:   fs.String("config", "", "JSON config file"),
		n:        fs.Int("n", def.N, "number of processes"),
		f:        fs.Int("f", def.F, "number of fault-prone processes"),
		alpha:    fs.Float64("alpha", def.Alpha, "crash probability per message of a fault-prone process"),
		tle:      fs.Int("tle", def.Tle, "milliseconds before all but one process are held, 0 never holds"),
		interval: fs.Int("interval", def.Launch_Interval, "milliseconds between retries of a process"),
		delay:    fs.Int("delay", def.Max_Delay, "maximum random message delay in milliseconds"),
		timeout:  fs.Int("timeout", def.Timeout, "milliseconds before a run gives up"),
		seed:     fs.Int64("seed", def.Seed, "random seed, 0 seeds from the clock"),
		db:       fs.String("db", def.Results_DB, "SQLite results database, empty to not store"),
		verbose:  fs.Bool("v", false, "log every message"),
	}
}

// load reads the -config file, if any, and applies the flags set on the
// command line on top of it.
func (rf *runFlags) load(fs *flag.FlagSet) (synod.Config, error) {
	config := synod.DefaultConfig()
	if *rf.config != "" {
		loaded, err := synod.LoadConfig(*rf.config)
		if err != nil {
			return config, err
		}
		config = *loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "n":
			config.N = *rf.n
		case "f":
			config.F = *rf.f
		case "alpha":
			config.Alpha = *rf.alpha
		case "tle":
			config.Tle = *rf.tle
		case "interval":
			config.Launch_Interval = *rf.interval
		case "delay":
			config.Max_Delay = *rf.delay
		case "timeout":
			config.Timeout = *rf.timeout
		case "seed":
			config.Seed = *rf.seed
		case "db":
			config.Results_DB = *rf.db
		}
	})
	return config, config.Validate()
}

func runCommand(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, runUsageStr)
		fs.PrintDefaults()
	}
	rf := newRunFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 0 {
		usage(runUsageStr)
	}

	config, err := rf.load(fs)
	if err != nil {
		logrus.Fatal(err)
	}
	logger := newLogger(config.Log_Level, *rf.verbose)

	sim := config.Simulation()
	result, err := synod.Simulate(ctx, sim, logger)
	if err != nil {
		logger.Fatal(err)
	}
	printResult(result)

	if config.Results_DB != "" {
		if err := saveRuns(ctx, config.Results_DB, sim, result); err != nil {
			logger.Fatal(err)
		}
	}
}

func printResult(r *synod.Result) {
	cfg := r.Config
	if r.Decided {
		fmt.Printf("N=%d f=%d alpha=%v tle=%v: decided %d in %v, %d decisions, %d messages\n",
			cfg.N, cfg.F, cfg.Alpha, cfg.HoldAfter, r.Value, r.Latency, len(r.Decisions), r.Messages)
	} else {
		fmt.Printf("N=%d f=%d alpha=%v tle=%v: no decision within %v, %d messages\n",
			cfg.N, cfg.F, cfg.Alpha, cfg.HoldAfter, cfg.Timeout, r.Messages)
	}
	if !r.Agreement {
		fmt.Printf("  AGREEMENT VIOLATED: %v\n", r.Decisions)
	}
}

func saveRuns(ctx context.Context, path string, sim synod.SimulationConfig, results ...*synod.Result) error {
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, r := range results {
		if _, err := s.SaveRun(ctx, store.RecordFrom(sim, r)); err != nil {
			return err
		}
	}
	return nil
}

const sweepUsageStr = `
Usage: synod sweep [arguments]

Simulates every combination of
	N	3, 10, 100
	f	1, 4, 49	(f <= N)
	alpha	0, 0.1, 1
	tle	500, 1000, 1500, 2000 ms
and stores each run in the results database.
`

const defaultResultsDB = "synod.db"

var (
	sweepN     = []int{3, 10, 100}
	sweepF     = []int{1, 4, 49}
	sweepAlpha = []float64{0, 0.1, 1}
	sweepTle   = []int{500, 1000, 1500, 2000}
)

// sweepGrid lists the configurations of a sweep based on base.
func sweepGrid(base synod.Config) []synod.Config {
	var grid []synod.Config
	for _, n := range sweepN {
		for _, f := range sweepF {
			if f > n {
				continue
			}
			for _, alpha := range sweepAlpha {
				for _, tle := range sweepTle {
					c := base
					c.N, c.F, c.Alpha, c.Tle = n, f, alpha, tle
					grid = append(grid, c)
				}
			}
		}
	}
	return grid
}

func sweepCommand(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, sweepUsageStr)
		fs.PrintDefaults()
	}
	rf := newRunFlags(fs)
	repeat := fs.Int("repeat", 1, "runs per configuration")
	fs.Parse(args)
	if fs.NArg() != 0 || *repeat < 1 {
		usage(sweepUsageStr)
	}

	base, err := rf.load(fs)
	if err != nil {
		logrus.Fatal(err)
	}
	if base.Results_DB == "" {
		base.Results_DB = defaultResultsDB
	}
	logger := newLogger(base.Log_Level, *rf.verbose)

	s, err := store.Open(base.Results_DB)
	if err != nil {
		logger.Fatal(err)
	}
	defer s.Close()

	for _, config := range sweepGrid(base) {
		for i := 0; i < *repeat; i++ {
			sim := config.Simulation()
			if sim.Seed != 0 {
				sim.Seed += int64(i)
			}

			result, err := synod.Simulate(ctx, sim, logger)
			if errors.Is(err, context.Canceled) {
				logger.Warn("Sweep interrupted")
				return
			} else if err != nil {
				logger.Fatal(err)
			}
			printResult(result)

			if _, err := s.SaveRun(ctx, store.RecordFrom(sim, result)); err != nil {
				logger.Fatal(err)
			}
		}
	}
}

const reportUsageStr = `
Usage: synod report [-db <file>]

Prints, for every configuration in the results database, how many runs
decided and their mean latency.
`

func reportCommand(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, reportUsageStr)
		fs.PrintDefaults()
	}
	db := fs.String("db", defaultResultsDB, "SQLite results database")
	fs.Parse(args)
	if fs.NArg() != 0 || *db == "" {
		usage(reportUsageStr)
	}

	s, err := store.Open(*db)
	if err != nil {
		logrus.Fatal(err)
	}
	defer s.Close()

	summaries, err := s.Summary(ctx)
	if err != nil {
		logrus.Fatal(err)
	}

	fmt.Printf("%5s %4s %6s %8s %6s %8s %12s\n", "N", "f", "alpha", "tle", "runs", "decided", "latency")
	for _, sum := range summaries {
		fmt.Printf("%5d %4d %6.2f %8v %6d %8d %12v\n",
			sum.N, sum.F, sum.Alpha, sum.Tle, sum.Runs, sum.Decided, sum.MeanLatency)
	}
}
