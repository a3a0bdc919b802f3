package ppm2pwm

import (
	"testing"
	"time"
)

func newTestBridge(t *testing.T, sink DiagnosticSink) (*Bridge, *SyntheticEdgeSource, *DryRunOutput) {
	c := DefaultConfiguration()
	c.SnapshotEvery = 1
	source := NewSyntheticEdgeSource(
		[]PulseWidth{1500, 1500, 1500, 1500, 1500, 1500, 1500, 1500},
		10000,
		time.Millisecond,
	)
	output := NewDryRunOutput()
	bridge, err := NewBridge(c, source, output, sink)
	if err != nil {
		t.Fatalf("Unable to create bridge: %v", err)
	}
	return bridge, source, output
}

func TestBridgeStartsAtMinimumThrottle(t *testing.T) {
	bridge, _, output := newTestBridge(t, nil)
	if !bridge.Peripheral.LoadOK() {
		t.Error("Start-up values were not committed")
	}
	bridge.Peripheral.Reload()
	// 1 ms of a 20 ms period
	if output.HighCounts() != 2343 {
		t.Errorf("Bad start-up high counts: %v", output.HighCounts())
	}
}

func TestBridgeReencodesThrottle(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	close(sink.release)
	bridge, source, output := newTestBridge(t, sink)
	bridge.Peripheral.Reload()

	source.EmitFrame(bridge.Decoder.OnEdge)
	bridge.Peripheral.Reload()
	if output.HighCounts() != 2343+1171 {
		t.Errorf("Bad high counts: %v", output.HighCounts())
	}

	// Glitched frames leave the output alone
	source.NoiseEvery = 1
	source.EmitFrame(bridge.Decoder.OnEdge)
	if bridge.Peripheral.LoadOK() {
		t.Error("Glitched frame asserted load-ok")
	}
	bridge.Peripheral.Reload()
	if output.HighCounts() != 2343+1171 {
		t.Errorf("Glitch changed the output: %v", output.HighCounts())
	}

	stats := bridge.Stats()
	if stats.Accepted != 1 || stats.Rejected != 1 || stats.Decoder.Frames != 2 {
		t.Errorf("Bad stats: %+v", stats)
	}
	if err := bridge.Close(); err != nil {
		t.Errorf("Unable to close: %v", err)
	}
	if sink.count() != 2 {
		t.Errorf("Bad snapshot count: %v", sink.count())
	}
}

func TestBridgeExplicitMaxDuty(t *testing.T) {
	c := DefaultConfiguration()
	c.MaxDuty = 1000
	source := NewSyntheticEdgeSource(
		[]PulseWidth{1500, 1500, 2000, 1500, 1500, 1500, 1500, 1500},
		10000,
		time.Millisecond,
	)
	output := NewDryRunOutput()
	bridge, err := NewBridge(c, source, output, nil)
	if err != nil {
		t.Fatalf("Unable to create bridge: %v", err)
	}
	defer bridge.Close()

	bridge.Peripheral.Reload()
	if bridge.Peripheral.Active().TurnOn != -1000 {
		t.Errorf("Bad turn on: %v", bridge.Peripheral.Active().TurnOn)
	}
	if output.HighCounts() != 1000 {
		t.Errorf("Bad start-up high counts: %v", output.HighCounts())
	}

	// Full throttle doubles the pulse
	source.EmitFrame(bridge.Decoder.OnEdge)
	bridge.Peripheral.Reload()
	if output.HighCounts() != 2000 {
		t.Errorf("Bad full throttle high counts: %v", output.HighCounts())
	}
}

func TestBridgeDecodeOnly(t *testing.T) {
	c := DefaultConfiguration()
	source := NewSyntheticEdgeSource([]PulseWidth{1500, 1500}, 10000, time.Millisecond)
	bridge, err := NewBridge(c, source, nil, nil)
	if err != nil {
		t.Fatalf("Unable to create bridge: %v", err)
	}
	if bridge.Peripheral != nil || bridge.Pwm != nil {
		t.Error("Decode only bridge has a PWM side")
	}
	source.EmitFrame(bridge.Decoder.OnEdge)
	if bridge.Stats().Decoder.Frames != 1 {
		t.Errorf("Bad frame count: %v", bridge.Stats().Decoder.Frames)
	}
	if err := bridge.Close(); err != nil {
		t.Errorf("Unable to close: %v", err)
	}
}

func TestBridgeRunsWithSyntheticSource(t *testing.T) {
	bridge, _, output := newTestBridge(t, nil)
	if err := bridge.Start(); err != nil {
		t.Fatalf("Unable to start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for output.HighCounts() != 2343+1171 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if output.HighCounts() != 2343+1171 {
		t.Errorf("Bad high counts: %v", output.HighCounts())
	}
	bridge.Close()
}

func TestNewBridgeRejectsBadConfiguration(t *testing.T) {
	c := DefaultConfiguration()
	c.ThrottleChannel = 20
	if _, err := NewBridge(c, NewSyntheticEdgeSource(nil, 5000, time.Millisecond), NewDryRunOutput(), nil); err == nil {
		t.Error("Expected an error for a bad throttle channel")
	}
	if _, err := NewBridge(DefaultConfiguration(), nil, nil, nil); err == nil {
		t.Error("Expected an error without an edge source")
	}
}

func TestFactories(t *testing.T) {
	c := DefaultConfiguration()
	c.EdgeSource = "synthetic"
	source, err := NewEdgeSource(c)
	if err != nil {
		t.Errorf("Unable to create synthetic source: %v", err)
	}
	if _, ok := source.(*SyntheticEdgeSource); !ok {
		t.Errorf("Bad source type %T", source)
	}
	c.EdgeSource = "carrier pigeon"
	if _, err := NewEdgeSource(c); err == nil {
		t.Error("Expected an error for an unknown source")
	}

	c.PwmOutput = "dryrun"
	output, err := NewOutput(c)
	if err != nil {
		t.Errorf("Unable to create dry run output: %v", err)
	}
	if _, ok := output.(*DryRunOutput); !ok {
		t.Errorf("Bad output type %T", output)
	}

	c.DiagnosticSinks = []string{"logger"}
	sink, closers, err := NewDiagnosticSink(c)
	if err != nil || len(closers) != 0 {
		t.Errorf("Bad logger sink: %v %v", err, closers)
	}
	if _, ok := sink.(*LoggerSink); !ok {
		t.Errorf("Bad sink type %T", sink)
	}
	c.DiagnosticSinks = []string{"none"}
	sink, _, err = NewDiagnosticSink(c)
	if sink != nil || err != nil {
		t.Errorf("Expected no sink: %v %v", sink, err)
	}
	c.DiagnosticSinks = []string{"smoke signals"}
	if _, _, err = NewDiagnosticSink(c); err == nil {
		t.Error("Expected an error for an unknown sink")
	}
}
