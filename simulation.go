package synod

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// SimulationConfig holds the parameters of one run.
type SimulationConfig struct {
	N              int
	F              int
	Alpha          float64
	HoldAfter      time.Duration // 0 never holds
	LaunchInterval time.Duration
	MaxDelay       time.Duration
	Timeout        time.Duration
	Settle         time.Duration
	Seed           int64 // 0 seeds from the clock
}

func (c SimulationConfig) Validate() error {
	switch {
	case c.N < 1:
		return fmt.Errorf("%w: %d processes", ErrInvalidConfig, c.N)
	case c.F < 0 || c.F > c.N:
		return fmt.Errorf("%w: %d faulty out of %d", ErrInvalidConfig, c.F, c.N)
	case c.Alpha < 0 || c.Alpha > 1:
		return fmt.Errorf("%w: crash probability %v", ErrInvalidConfig, c.Alpha)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout %v", ErrInvalidConfig, c.Timeout)
	case c.HoldAfter < 0 || c.LaunchInterval < 0 || c.MaxDelay < 0 || c.Settle < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	return nil
}

// Result is what a run observed.
type Result struct {
	Config    SimulationConfig
	Seed      int64
	Decided   bool
	Value     Value         // first decided value, NoValue if none
	Latency   time.Duration // run start to first decision
	Agreement bool          // every decision carried Value
	Decisions []Event
	Faulty    []int
	Survivor  int // NoSender if nobody was held
	Messages  int64
	Stats     map[Kind]int64
}

// Simulate runs one experiment: N processes on an in-memory network are
// given their membership and launched, F of them are told to crash, and
// after HoldAfter all but one random non-faulty survivor are held.
//
// The run ends Settle after the first ack majority, or at Timeout. Not
// deciding is a valid outcome and is not an error; an error is returned
// only for a bad config or when ctx itself ends.
func Simulate(ctx context.Context, cfg SimulationConfig, logger logrus.FieldLogger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = discardLogger()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	driver := rand.New(rand.NewSource(seed))

	logger.Infof("Simulation started with N=%d f=%d alpha=%v tle=%v seed=%d",
		cfg.N, cfg.F, cfg.Alpha, cfg.HoldAfter, seed)

	nw := NewNetwork(cfg.MaxDelay, driver.Int63())
	events := NewEventLog()
	start := time.Now()

	procs := make([]*Process, cfg.N)
	for i := range procs {
		p, err := NewProcess(cfg.N, i, cfg.Alpha, Env{
			Start:          start,
			Logger:         logger,
			Observer:       events,
			LaunchInterval: cfg.LaunchInterval,
			Rand:           rand.New(rand.NewSource(driver.Int63())),
		})
		if err != nil {
			return nil, err
		}
		procs[i] = p
		nw.Attach(p)
	}
	defer func() {
		for _, p := range procs {
			p.Stop()
		}
	}()
	for _, p := range procs {
		p.Start()
	}

	peers := nw.Peers()
	all := make([]int, cfg.N)
	for i := range all {
		all[i] = i
	}

	// Control messages go straight to the mailboxes. Only protocol traffic
	// crosses the network.
	membership := Membership{Peers: peers}
	for _, p := range procs {
		p.Deliver(NoSender, membership)
	}
	for _, p := range procs {
		p.Deliver(NoSender, Launch{})
	}

	faulty := pickDistinct(driver, all, cfg.F)
	isFaulty := make(map[int]bool, len(faulty))
	for _, i := range faulty {
		isFaulty[i] = true
		procs[i].Deliver(NoSender, Crash{})
	}
	logger.Infof("Processes %v are fault-prone", faulty)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	majority := make(chan error, 1)
	go func() {
		majority <- events.Wait(runCtx, EventMajority, 1)
	}()

	var hold <-chan time.Time
	if cfg.HoldAfter > 0 {
		t := time.NewTimer(cfg.HoldAfter)
		defer t.Stop()
		hold = t.C
	}

	survivor := NoSender
	var err error
	for waiting := true; waiting; {
		select {
		case <-hold:
			hold = nil
			var candidates []int
			for _, i := range all {
				if !isFaulty[i] {
					candidates = append(candidates, i)
				}
			}
			if len(candidates) == 0 {
				logger.Warnf("No correct process left to survive the hold")
				continue
			}
			survivor = candidates[randInt(driver, 0, len(candidates))]
			for _, i := range all {
				if i != survivor {
					procs[i].Deliver(NoSender, Hold{})
				}
			}
			logger.Infof("Holding every process but %d", survivor)

		case err = <-majority:
			waiting = false
		}
	}

	if err == nil && cfg.Settle > 0 {
		settleCtx, stop := context.WithTimeout(ctx, cfg.Settle)
		events.Wait(settleCtx, EventDecided, cfg.N)
		stop()
	}

	result := &Result{
		Config:    cfg,
		Seed:      seed,
		Value:     NoValue,
		Agreement: true,
		Decisions: events.Decisions(),
		Faulty:    faulty,
		Survivor:  survivor,
	}
	for _, d := range result.Decisions {
		if !result.Decided || d.Elapsed < result.Latency {
			result.Latency = d.Elapsed
		}
		if !result.Decided {
			result.Decided, result.Value = true, d.Value
		} else if d.Value != result.Value {
			result.Agreement = false
		}
	}
	result.Messages = nw.Total()
	result.Stats = nw.Stats()

	if result.Decided {
		logger.Infof("Simulation decided %d after %v (%d decisions, %d messages)",
			result.Value, result.Latency, len(result.Decisions), result.Messages)
	} else {
		logger.Infof("Simulation did not decide within %v", cfg.Timeout)
	}
	if !result.Agreement {
		logger.Errorf("Processes decided different values: %v", result.Decisions)
	}

	return result, ctx.Err()
}
