package main

import (
	"flag"
	"testing"

	synod "github.com/lucaerba/SLR-210"
)

func Test_SweepGrid(t *testing.T) {
	grid := sweepGrid(synod.DefaultConfig())

	// f = 49 only fits N = 100, f = 4 fits N = 10 and N = 100.
	if want := (3 + 2 + 1) * len(sweepAlpha) * len(sweepTle); len(grid) != want {
		t.Fatalf("Grid has %d configurations, want %d", len(grid), want)
	}
	for _, c := range grid {
		if c.F > c.N {
			t.Errorf("Configuration with f=%d > N=%d", c.F, c.N)
		}
		if err := c.Validate(); err != nil {
			t.Errorf("Invalid configuration %+v: %v", c, err)
		}
	}
}

func Test_FlagsOverrideDefaults(t *testing.T) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	rf := newRunFlags(fs)
	if err := fs.Parse([]string{"-n", "10", "-alpha", "1", "-db", ""}); err != nil {
		t.Fatal(err)
	}

	config, err := rf.load(fs)
	if err != nil {
		t.Fatal(err)
	}
	want := synod.DefaultConfig()
	want.N, want.Alpha, want.Results_DB = 10, 1, ""
	if config != want {
		t.Errorf("Got %+v, want %+v", config, want)
	}

	fs = flag.NewFlagSet("run", flag.ContinueOnError)
	rf = newRunFlags(fs)
	fs.Parse([]string{"-f", "7"})
	if _, err := rf.load(fs); err == nil {
		t.Errorf("f > N was accepted")
	}
}
