package synod

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidConfig is wrapped by every configuration and validation error.
	ErrInvalidConfig = errors.New("synod: invalid configuration")

	// ErrNotMember is returned for a pid missing from the cluster config.
	ErrNotMember = errors.New("synod: not a cluster member")
)

// Config is the on-disk run configuration. Durations are in milliseconds.
type Config struct {
	N                   int     // number of processes
	F                   int     // number of processes told to crash
	Alpha               float64 // crash probability per message once crashed
	Tle                 int     // time before all but one process are held; 0 never holds
	Launch_Interval     int     // retry period of each process
	Max_Delay           int     // upper bound of the random per-message delay
	Timeout             int     // give up on a run after this long
	Settle              int     // time left to the decide flood after a majority
	Seed                int64   // 0 seeds from the clock
	Log_Level           string
	Results_DB          string
	Cluster_Config_File string
}

func DefaultConfig() Config {
	return Config{
		N:               3,
		F:               1,
		Alpha:           0.1,
		Tle:             500,
		Launch_Interval: 50,
		Max_Delay:       0,
		Timeout:         10000,
		Settle:          100,
		Log_Level:       "info",
	}
}

// LoadConfig reads a JSON config file. Fields it leaves out keep their
// DefaultConfig value.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c Config) Validate() error {
	switch {
	case c.N < 1:
		return fmt.Errorf("%w: N = %d, need at least one process", ErrInvalidConfig, c.N)
	case c.F < 0 || c.F > c.N:
		return fmt.Errorf("%w: F = %d out of [0,%d]", ErrInvalidConfig, c.F, c.N)
	case c.Alpha < 0 || c.Alpha > 1:
		return fmt.Errorf("%w: Alpha = %v out of [0,1]", ErrInvalidConfig, c.Alpha)
	case c.Tle < 0 || c.Launch_Interval < 0 || c.Max_Delay < 0 || c.Settle < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: Timeout = %d, must be positive", ErrInvalidConfig, c.Timeout)
	}
	if _, err := logrus.ParseLevel(c.Log_Level); err != nil {
		return fmt.Errorf("%w: Log_Level %q", ErrInvalidConfig, c.Log_Level)
	}
	return nil
}

// Simulation converts c into the parameters of one simulated run.
func (c Config) Simulation() SimulationConfig {
	return SimulationConfig{
		N:              c.N,
		F:              c.F,
		Alpha:          c.Alpha,
		HoldAfter:      millis(c.Tle),
		LaunchInterval: millis(c.Launch_Interval),
		MaxDelay:       millis(c.Max_Delay),
		Timeout:        millis(c.Timeout),
		Settle:         millis(c.Settle),
		Seed:           c.Seed,
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
