package ppm2pwm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Duration reads values like "1us" or "22.5ms" from TOML and YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Configuration struct {
	// Edge input
	EdgeSource   string   `toml:"edge_source" yaml:"edge_source"`
	GpioChip     string   `toml:"gpio_chip" yaml:"gpio_chip"`
	PpmLine      int      `toml:"ppm_line" yaml:"ppm_line"`
	PpmPin       string   `toml:"ppm_pin" yaml:"ppm_pin"`
	TriggerEdge  string   `toml:"trigger_edge" yaml:"trigger_edge"`
	TickDuration Duration `toml:"tick_duration" yaml:"tick_duration"`

	// Decoding and validation
	ChannelSlots      int    `toml:"channel_slots" yaml:"channel_slots"`
	SyncGapTicks      uint32 `toml:"sync_gap_ticks" yaml:"sync_gap_ticks"`
	MinPulseTicks     uint16 `toml:"min_pulse_ticks" yaml:"min_pulse_ticks"`
	MaxPulseTicks     uint16 `toml:"max_pulse_ticks" yaml:"max_pulse_ticks"`
	ValidatedChannels int    `toml:"validated_channels" yaml:"validated_channels"`

	// Re-encoding
	ThrottleChannel int    `toml:"throttle_channel" yaml:"throttle_channel"`
	PwmOutput       string `toml:"pwm_output" yaml:"pwm_output"`
	PwmPin          int    `toml:"pwm_pin" yaml:"pwm_pin"`
	PwmPinName      string `toml:"pwm_pin_name" yaml:"pwm_pin_name"`
	PwmHz           uint32 `toml:"pwm_hz" yaml:"pwm_hz"`
	ClockHz         uint32 `toml:"clock_hz" yaml:"clock_hz"`
	Prescaler       uint32 `toml:"prescaler" yaml:"prescaler"`
	MinDuty         int16  `toml:"min_duty" yaml:"min_duty"`
	// 0 means a tenth of the counter range. Turn-on sits at minus this value.
	MaxDuty         int16  `toml:"max_duty" yaml:"max_duty"`
	RpioCycleLength uint32 `toml:"rpio_cycle_length" yaml:"rpio_cycle_length"`

	// Diagnostics
	DiagnosticSinks []string `toml:"diagnostic_sinks" yaml:"diagnostic_sinks"`
	SerialPort      string   `toml:"serial_port" yaml:"serial_port"`
	SerialBaud      int      `toml:"serial_baud" yaml:"serial_baud"`
	SnapshotEvery   int      `toml:"snapshot_every" yaml:"snapshot_every"`
	SnapshotQueue   int      `toml:"snapshot_queue" yaml:"snapshot_queue"`

	// Logging
	LogLevel      string `toml:"log_level" yaml:"log_level"`
	LogDirectory  string `toml:"log_directory" yaml:"log_directory"`
	LogMaxSizeMB  int    `toml:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `toml:"log_max_backups" yaml:"log_max_backups"`

	// Synthetic input for running without a receiver
	SyntheticChannels   []uint16 `toml:"synthetic_channels" yaml:"synthetic_channels"`
	SyntheticGapTicks   uint32   `toml:"synthetic_gap_ticks" yaml:"synthetic_gap_ticks"`
	SyntheticPeriod     Duration `toml:"synthetic_period" yaml:"synthetic_period"`
	SyntheticNoiseEvery int      `toml:"synthetic_noise_every" yaml:"synthetic_noise_every"`
}

// Defaults match a Teensy style setup: 1 us ticks, 150 MHz peripheral clock
// divided by 64, 50 Hz servo PWM.
func DefaultConfiguration() Configuration {
	return Configuration{
		EdgeSource:   "gpiocdev",
		GpioChip:     "gpiochip0",
		PpmLine:      14,
		PpmPin:       "GPIO14",
		TriggerEdge:  "rising",
		TickDuration: Duration{time.Microsecond},

		ChannelSlots:      DefaultChannelSlots,
		SyncGapTicks:      uint32(DefaultSyncGap),
		MinPulseTicks:     uint16(DefaultMinPulse),
		MaxPulseTicks:     uint16(DefaultMaxPulse),
		ValidatedChannels: DefaultChannelSlots - 1,

		ThrottleChannel: DefaultThrottleChannel,
		PwmOutput:       "rpio",
		PwmPin:          12,
		PwmPinName:      "GPIO12",
		PwmHz:           50,
		ClockHz:         150000000,
		Prescaler:       64,
		MinDuty:         0,
		MaxDuty:         0,
		RpioCycleLength: DefaultRpioCycleLength,

		DiagnosticSinks: []string{"logger"},
		SerialPort:      "/dev/ttyS0",
		SerialBaud:      115200,
		SnapshotEvery:   50,
		SnapshotQueue:   8,

		LogLevel:      "info",
		LogDirectory:  "logs",
		LogMaxSizeMB:  10,
		LogMaxBackups: 5,

		SyntheticChannels:   []uint16{1500, 1500, 1000, 1500, 1000, 1000, 1000, 1000},
		SyntheticGapTicks:   10000,
		SyntheticPeriod:     Duration{22500 * time.Microsecond},
		SyntheticNoiseEvery: 0,
	}
}

var configuration = DefaultConfiguration()

func GetConfiguration() Configuration {
	return configuration
}

func SetConfiguration(newConfiguration Configuration) {
	configuration = newConfiguration
}

// LoadConfiguration reads TOML on top of the defaults and makes it the
// package configuration.
func LoadConfiguration(reader io.Reader) error {
	loaded := DefaultConfiguration()
	metadata, err := toml.DecodeReader(reader, &loaded)
	if err != nil {
		return err
	}
	for _, key := range metadata.Undecoded() {
		Logger.Warningf("Unknown configuration key %v", key)
	}
	return useConfiguration(loaded)
}

func LoadYamlConfiguration(reader io.Reader) error {
	loaded := DefaultConfiguration()
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	if err := decoder.Decode(&loaded); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return useConfiguration(loaded)
}

// LoadConfigurationFile picks TOML or YAML from the file extension.
func LoadConfigurationFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = LoadYamlConfiguration(file)
	default:
		err = LoadConfiguration(file)
	}
	if err != nil {
		return fmt.Errorf("load %v: %w", path, err)
	}
	return nil
}

func useConfiguration(loaded Configuration) error {
	if err := loaded.Validate(); err != nil {
		return err
	}
	configuration = loaded
	return nil
}

func (c Configuration) Validate() error {
	if c.ChannelSlots < 1 {
		return errors.New("channel_slots must be at least 1")
	}
	if c.ValidatedChannels < 0 || c.ValidatedChannels > c.ChannelSlots {
		return fmt.Errorf("validated_channels must be between 0 and %v", c.ChannelSlots)
	}
	if c.MinPulseTicks > c.MaxPulseTicks {
		return errors.New("min_pulse_ticks is above max_pulse_ticks")
	}
	if c.MinPulseTicks == c.MaxPulseTicks {
		return errors.New("pulse range is empty")
	}
	if c.ThrottleChannel < 0 || c.ThrottleChannel >= c.ChannelSlots {
		return fmt.Errorf("throttle_channel must be between 0 and %v", c.ChannelSlots-1)
	}
	if c.TickDuration.Duration <= 0 {
		return errors.New("tick_duration must be positive")
	}
	if _, err := ParseEdge(c.TriggerEdge); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if err := c.PeripheralConfig().Validate(); err != nil {
		return err
	}
	maxRange := c.PeripheralConfig().MaxRange()
	if c.MinDuty < -maxRange || c.EffectiveMaxDuty() > maxRange || c.MinDuty > c.EffectiveMaxDuty() {
		return fmt.Errorf("duty range [%v, %v] must lie within [%v, %v]", c.MinDuty, c.EffectiveMaxDuty(), -maxRange, maxRange)
	}
	if c.SnapshotEvery < 1 {
		return errors.New("snapshot_every must be at least 1")
	}
	return nil
}

func (c Configuration) PeripheralConfig() PeripheralConfig {
	return PeripheralConfig{
		ClockHz:   c.ClockHz,
		Prescaler: c.Prescaler,
		PwmHz:     c.PwmHz,
	}
}

func (c Configuration) EffectiveMaxDuty() int16 {
	if c.MaxDuty != 0 {
		return c.MaxDuty
	}
	return c.PeripheralConfig().MaxDuty()
}

func (c Configuration) Filter() *ValidityFilter {
	return NewValidityFilter(PulseWidth(c.MinPulseTicks), PulseWidth(c.MaxPulseTicks), c.ValidatedChannels)
}
