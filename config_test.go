package synod

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const CONFIG_FILE = "synod.json"

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "synod.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func Test_LoadSampleConfig(t *testing.T) {
	config, err := LoadConfig(CONFIG_FILE)
	if err != nil {
		t.Fatal(err)
	}
	if config.N != 3 || config.F != 1 || config.Alpha != 0.1 || config.Cluster_Config_File != "cluster.json" {
		t.Errorf("Unexpected sample config %+v", config)
	}
}

func Test_LoadConfigKeepsDefaults(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, `{"N": 10, "Tle": 1500}`))
	if err != nil {
		t.Fatal(err)
	}

	want := DefaultConfig()
	want.N, want.Tle = 10, 1500
	if *config != want {
		t.Errorf("Got %+v, want %+v", *config, want)
	}

	sim := config.Simulation()
	if sim.N != 10 || sim.HoldAfter != 1500*time.Millisecond || sim.LaunchInterval != 50*time.Millisecond {
		t.Errorf("Unexpected simulation parameters %+v", sim)
	}
	if err := sim.Validate(); err != nil {
		t.Errorf("Converted config is invalid: %v", err)
	}
}

func Test_LoadConfigRejectsBadFiles(t *testing.T) {
	bodies := []string{
		`{"N": 0}`,
		`{"N": 3, "F": 4}`,
		`{"Alpha": 1.1}`,
		`{"Tle": -5}`,
		`{"Timeout": 0}`,
		`{"Log_Level": "loud"}`,
		`{"Bogus": 1}`,
		`{"N": "three"}`,
	}

	for _, body := range bodies {
		if _, err := LoadConfig(writeConfig(t, body)); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("LoadConfig(%s) returned %v, want ErrInvalidConfig", body, err)
		}
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil || errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Missing file returned %v", err)
	}
}

func Test_NewLogger(t *testing.T) {
	if _, err := NewLogger("debug", os.Stderr); err != nil {
		t.Errorf("NewLogger(debug) returned %v", err)
	}
	if _, err := NewLogger("chatty", os.Stderr); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewLogger(chatty) returned %v", err)
	}
}
