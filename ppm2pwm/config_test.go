package ppm2pwm

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestTomlConfiguration(t *testing.T) {
	defer SetConfiguration(DefaultConfiguration())

	// Load configuration
	file, err := os.Open("../conf.toml")
	if err != nil {
		t.Fatal("Unable to open configuration TOML file")
	}
	defer file.Close()
	err = LoadConfiguration(file)
	if err != nil {
		t.Errorf("Unable to load configuration: '%v'", err)
	}
	loaded := GetConfiguration()
	if loaded.SyncGapTicks != 2100 {
		t.Errorf("Bad sync gap: %v", loaded.SyncGapTicks)
	}
	if loaded.SyntheticPeriod.Duration != 22500*time.Microsecond {
		t.Errorf("Bad synthetic period: %v", loaded.SyntheticPeriod)
	}
}

func TestTomlOverridesDefaults(t *testing.T) {
	defer SetConfiguration(DefaultConfiguration())

	err := LoadConfiguration(strings.NewReader(`
channel_slots = 7
validated_channels = 6
throttle_channel = 0
trigger_edge = "falling"
tick_duration = "500ns"
`))
	if err != nil {
		t.Fatalf("Unable to load configuration: %v", err)
	}
	loaded := GetConfiguration()
	if loaded.ChannelSlots != 7 || loaded.ValidatedChannels != 6 || loaded.ThrottleChannel != 0 {
		t.Errorf("Bad channel settings: %+v", loaded)
	}
	if loaded.TriggerEdge != "falling" {
		t.Errorf("Bad edge: %v", loaded.TriggerEdge)
	}
	if loaded.TickDuration.Duration != 500*time.Nanosecond {
		t.Errorf("Bad tick duration: %v", loaded.TickDuration)
	}
	// Untouched keys keep their defaults
	if loaded.PwmHz != 50 {
		t.Errorf("Bad PWM frequency: %v", loaded.PwmHz)
	}
}

func TestYamlConfiguration(t *testing.T) {
	defer SetConfiguration(DefaultConfiguration())

	err := LoadYamlConfiguration(strings.NewReader(`
edge_source: synthetic
sync_gap_ticks: 3000
diagnostic_sinks: [logger, serial]
synthetic_period: 20ms
synthetic_channels: [1000, 1100, 1200]
`))
	if err != nil {
		t.Fatalf("Unable to load configuration: %v", err)
	}
	loaded := GetConfiguration()
	if loaded.EdgeSource != "synthetic" || loaded.SyncGapTicks != 3000 {
		t.Errorf("Bad configuration: %+v", loaded)
	}
	if len(loaded.DiagnosticSinks) != 2 || loaded.DiagnosticSinks[1] != "serial" {
		t.Errorf("Bad sinks: %v", loaded.DiagnosticSinks)
	}
	if loaded.SyntheticPeriod.Duration != 20*time.Millisecond {
		t.Errorf("Bad period: %v", loaded.SyntheticPeriod)
	}
	if len(loaded.SyntheticChannels) != 3 || loaded.SyntheticChannels[2] != 1200 {
		t.Errorf("Bad channels: %v", loaded.SyntheticChannels)
	}
}

func TestYamlRejectsUnknownKeys(t *testing.T) {
	defer SetConfiguration(DefaultConfiguration())
	if err := LoadYamlConfiguration(strings.NewReader("sync_gap: 3000\n")); err == nil {
		t.Error("Expected an error for an unknown key")
	}
}

func TestBadConfigurationIsNotUsed(t *testing.T) {
	defer SetConfiguration(DefaultConfiguration())
	bad := []string{
		`throttle_channel = 9`,
		`trigger_edge = "both"`,
		`prescaler = 3`,
		`min_pulse_ticks = 2500`,
		`validated_channels = 10`,
		`log_level = "loud"`,
		`max_duty = 30000`,
		`channel_slots = 0`,
	}
	for _, text := range bad {
		if err := LoadConfiguration(strings.NewReader(text)); err == nil {
			t.Errorf("Accepted bad configuration %v", text)
		}
		if GetConfiguration().ThrottleChannel != DefaultThrottleChannel || GetConfiguration().Prescaler != 64 {
			t.Errorf("Bad configuration %v was applied", text)
		}
	}
}

func TestConfigurationDerivedValues(t *testing.T) {
	c := DefaultConfiguration()
	if c.EffectiveMaxDuty() != 2343 {
		t.Errorf("Bad derived max duty: %v", c.EffectiveMaxDuty())
	}
	c.MaxDuty = 1000
	if c.EffectiveMaxDuty() != 1000 {
		t.Errorf("Bad explicit max duty: %v", c.EffectiveMaxDuty())
	}
	filter := c.Filter()
	if filter.Min != 1000 || filter.Max != 2000 || filter.Channels != 8 {
		t.Errorf("Bad filter: %+v", filter)
	}
}
