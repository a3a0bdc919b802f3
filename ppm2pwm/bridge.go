package ppm2pwm

import (
	"fmt"
	"io"
	"strings"
)

// Bridge wires an edge source through the decoder to the consumers. Without
// an output it only decodes and reports frames.
type Bridge struct {
	Decoder    *Decoder
	Filter     *ValidityFilter
	Peripheral *Peripheral
	Encoder    *Encoder
	Pwm        *PwmConsumer
	Logging    *LoggingConsumer
	source     EdgeSource
	closers    []io.Closer
}

type BridgeStats struct {
	Decoder  DecoderStats
	Cursor   int
	Accepted uint64
	Rejected uint64
	Dropped  uint64
	Reloads  uint64
	Active   DutyRegisters
	Pending  bool
}

func NewBridge(c Configuration, source EdgeSource, output Output, sink DiagnosticSink) (*Bridge, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("bridge needs an edge source")
	}
	bridge := &Bridge{
		Filter: c.Filter(),
		source: source,
	}

	var consumers MultiConsumer
	if output != nil {
		peripheral, err := NewPeripheral(c.PeripheralConfig(), output)
		if err != nil {
			return nil, err
		}
		maxDuty := c.EffectiveMaxDuty()
		// Start with the output at the bottom of its range
		peripheral.SetTurnOn(-maxDuty)
		peripheral.SetTurnOff(c.MinDuty)
		peripheral.SetOutputEnable(true)
		peripheral.SetLoadOK()
		bridge.Peripheral = peripheral
		bridge.Encoder = NewEncoder(
			peripheral,
			c.ThrottleChannel,
			PulseWidth(c.MinPulseTicks),
			PulseWidth(c.MaxPulseTicks),
			c.MinDuty,
			maxDuty,
		)
		bridge.Pwm = NewPwmConsumer(bridge.Filter, bridge.Encoder)
		consumers = append(consumers, bridge.Pwm)
	}
	if sink != nil {
		bridge.Logging = NewLoggingConsumer(sink, bridge.Filter, c.SnapshotEvery, c.SnapshotQueue)
		consumers = append(consumers, bridge.Logging)
	}

	var consumer FrameConsumer
	switch len(consumers) {
	case 0:
	case 1:
		consumer = consumers[0]
	default:
		consumer = consumers
	}
	decoder, err := NewDecoder(c.ChannelSlots, Tick(c.SyncGapTicks), consumer)
	if err != nil {
		return nil, err
	}
	bridge.Decoder = decoder
	return bridge, nil
}

// NewBridgeFromConfiguration builds the edge source, the PWM output (when
// reencode is set) and the diagnostic sinks named by the configuration.
func NewBridgeFromConfiguration(c Configuration, reencode bool) (*Bridge, error) {
	source, err := NewEdgeSource(c)
	if err != nil {
		return nil, err
	}
	var output Output
	if reencode {
		output, err = NewOutput(c)
		if err != nil {
			return nil, err
		}
	}
	sink, closers, err := NewDiagnosticSink(c)
	if err != nil {
		if output != nil {
			output.Close()
		}
		return nil, err
	}
	bridge, err := NewBridge(c, source, output, sink)
	if err != nil {
		closeAll(closers)
		if output != nil {
			output.Close()
		}
		return nil, err
	}
	bridge.closers = closers
	return bridge, nil
}

func (bridge *Bridge) Start() error {
	if bridge.Peripheral != nil {
		bridge.Peripheral.Start()
	}
	if err := bridge.source.Start(bridge.Decoder.OnEdge); err != nil {
		if bridge.Peripheral != nil {
			bridge.Peripheral.Stop()
		}
		return err
	}
	return nil
}

func (bridge *Bridge) Close() error {
	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	record(bridge.source.Close())
	if bridge.Logging != nil {
		record(bridge.Logging.Close())
	}
	if bridge.Peripheral != nil {
		record(bridge.Peripheral.Close())
	}
	record(closeAll(bridge.closers))
	return first
}

func (bridge *Bridge) Stats() BridgeStats {
	stats := BridgeStats{
		Decoder: bridge.Decoder.Stats(),
		Cursor:  bridge.Decoder.Cursor(),
	}
	if bridge.Pwm != nil {
		stats.Accepted = bridge.Pwm.Accepted()
		stats.Rejected = bridge.Pwm.Rejected()
	}
	if bridge.Logging != nil {
		stats.Dropped = bridge.Logging.Dropped()
	}
	if bridge.Peripheral != nil {
		stats.Reloads = bridge.Peripheral.Reloads()
		stats.Active = bridge.Peripheral.Active()
		stats.Pending = bridge.Peripheral.LoadOK()
	}
	return stats
}

func NewEdgeSource(c Configuration) (EdgeSource, error) {
	edge, err := ParseEdge(c.TriggerEdge)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(c.EdgeSource) {
	case "gpiocdev":
		return NewGpiocdevEdgeSource(c.GpioChip, c.PpmLine, edge, c.TickDuration.Duration), nil
	case "periph":
		return NewPeriphEdgeSource(c.PpmPin, edge, NewClockTickSource(c.TickDuration.Duration)), nil
	case "synthetic":
		channels := make([]PulseWidth, len(c.SyntheticChannels))
		for i, value := range c.SyntheticChannels {
			channels[i] = PulseWidth(value)
		}
		source := NewSyntheticEdgeSource(channels, Tick(c.SyntheticGapTicks), c.SyntheticPeriod.Duration)
		source.NoiseEvery = c.SyntheticNoiseEvery
		return source, nil
	}
	return nil, fmt.Errorf("unknown edge source %q", c.EdgeSource)
}

func NewOutput(c Configuration) (Output, error) {
	switch strings.ToLower(c.PwmOutput) {
	case "rpio":
		if !IsPi() {
			Logger.Warning("Not a Pi, using a dry run PWM output")
			return NewDryRunOutput(), nil
		}
		output, err := NewRpioOutput(c.PwmPin, c.RpioCycleLength)
		if err != nil {
			return nil, err
		}
		return output, nil
	case "periph":
		output, err := NewPeriphOutput(c.PwmPinName)
		if err != nil {
			return nil, err
		}
		return output, nil
	case "dryrun":
		return NewDryRunOutput(), nil
	}
	return nil, fmt.Errorf("unknown PWM output %q", c.PwmOutput)
}

// NewDiagnosticSink returns nil when no sinks are configured. The closers
// release sink resources such as serial ports.
func NewDiagnosticSink(c Configuration) (DiagnosticSink, []io.Closer, error) {
	var sinks multiSink
	var closers []io.Closer
	for _, name := range c.DiagnosticSinks {
		switch strings.ToLower(name) {
		case "logger":
			sinks = append(sinks, NewLoggerSink(Logger))
		case "serial":
			sink, err := NewSerialSink(c.SerialPort, c.SerialBaud)
			if err != nil {
				closeAll(closers)
				return nil, nil, err
			}
			sinks = append(sinks, sink)
			closers = append(closers, sink)
		case "none":
		default:
			closeAll(closers)
			return nil, nil, fmt.Errorf("unknown diagnostic sink %q", name)
		}
	}
	switch len(sinks) {
	case 0:
		return nil, closers, nil
	case 1:
		return sinks[0], closers, nil
	}
	return sinks, closers, nil
}

func closeAll(closers []io.Closer) error {
	var first error
	for _, closer := range closers {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
