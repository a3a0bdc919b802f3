package ppm2pwm

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// Edge selects which transition of the PPM line is timed. It fixes which
// phase of the signal each measured interval starts on.
type Edge uint8

const (
	RisingEdge Edge = iota + 1
	FallingEdge
)

func ParseEdge(name string) (Edge, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "rising":
		return RisingEdge, nil
	case "falling":
		return FallingEdge, nil
	}
	return 0, fmt.Errorf("unknown edge %q, want rising or falling", name)
}

func (edge Edge) String() string {
	switch edge {
	case RisingEdge:
		return "rising"
	case FallingEdge:
		return "falling"
	}
	return fmt.Sprintf("Edge(%d)", uint8(edge))
}

type EdgeHandler func(now Tick)

// EdgeSource calls the handler once per qualifying edge, never concurrently
// with itself.
type EdgeSource interface {
	Start(handler EdgeHandler) error
	Close() error
}

// GpiocdevEdgeSource takes edges from the Linux GPIO character device. The
// kernel timestamps each event, so scheduling delays in user space do not
// distort the measured intervals.
type GpiocdevEdgeSource struct {
	chip   string
	offset int
	edge   Edge
	tick   time.Duration
	line   *gpiocdev.Line
}

func NewGpiocdevEdgeSource(chip string, offset int, edge Edge, tick time.Duration) *GpiocdevEdgeSource {
	return &GpiocdevEdgeSource{
		chip:   chip,
		offset: offset,
		edge:   edge,
		tick:   tick,
	}
}

func (source *GpiocdevEdgeSource) Start(handler EdgeHandler) error {
	var edgeOption gpiocdev.LineReqOption
	switch source.edge {
	case RisingEdge:
		edgeOption = gpiocdev.WithRisingEdge
	case FallingEdge:
		edgeOption = gpiocdev.WithFallingEdge
	default:
		return fmt.Errorf("bad edge %v", source.edge)
	}
	tick := source.tick
	line, err := gpiocdev.RequestLine(source.chip, source.offset,
		gpiocdev.WithPullUp,
		edgeOption,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			handler(DurationToTicks(evt.Timestamp, tick))
		}))
	if err != nil {
		if errors.Is(err, syscall.EINVAL) {
			return fmt.Errorf("request line %v:%v: %w (pull-up needs Linux 5.5 or later)", source.chip, source.offset, err)
		}
		return fmt.Errorf("request line %v:%v: %w", source.chip, source.offset, err)
	}
	source.line = line
	return nil
}

func (source *GpiocdevEdgeSource) Close() error {
	if source.line == nil {
		return nil
	}
	err := source.line.Close()
	source.line = nil
	return err
}

// PeriphEdgeSource waits for edges with periph.io and stamps them from a tick
// source when the wait returns. It is portable but less precise than the
// character device.
type PeriphEdgeSource struct {
	pinName  string
	edge     Edge
	ticks    TickSource
	pin      gpio.PinIO
	stopChan chan struct{}
	done     chan struct{}
}

func NewPeriphEdgeSource(pinName string, edge Edge, ticks TickSource) *PeriphEdgeSource {
	return &PeriphEdgeSource{
		pinName: pinName,
		edge:    edge,
		ticks:   ticks,
	}
}

func (source *PeriphEdgeSource) Start(handler EdgeHandler) error {
	var edge gpio.Edge
	switch source.edge {
	case RisingEdge:
		edge = gpio.RisingEdge
	case FallingEdge:
		edge = gpio.FallingEdge
	default:
		return fmt.Errorf("bad edge %v", source.edge)
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("initialize periph: %w", err)
	}
	pin := gpioreg.ByName(source.pinName)
	if pin == nil {
		return fmt.Errorf("no such pin %q", source.pinName)
	}
	if err := pin.In(gpio.PullUp, edge); err != nil {
		return fmt.Errorf("configure %v for edges: %w", source.pinName, err)
	}
	source.pin = pin
	source.stopChan = make(chan struct{})
	source.done = make(chan struct{})
	go func() {
		defer close(source.done)
		for {
			select {
			case <-source.stopChan:
				return
			default:
			}
			if pin.WaitForEdge(100 * time.Millisecond) {
				handler(source.ticks.Now())
			}
		}
	}()
	return nil
}

func (source *PeriphEdgeSource) Close() error {
	if source.pin == nil {
		return nil
	}
	close(source.stopChan)
	<-source.done
	err := source.pin.In(gpio.PullNoChange, gpio.NoEdge)
	source.pin = nil
	return err
}

// SyntheticEdgeSource produces a clean PPM signal from fixed channel values,
// for running without a receiver attached.
type SyntheticEdgeSource struct {
	mutex    sync.Mutex
	channels []PulseWidth
	gap      Tick
	period   time.Duration
	// Every NoiseEvery frames one channel is replaced by a short glitch
	NoiseEvery int
	now        Tick
	frames     int
	stopChan   chan struct{}
	done       chan struct{}
}

func NewSyntheticEdgeSource(channels []PulseWidth, gap Tick, period time.Duration) *SyntheticEdgeSource {
	values := make([]PulseWidth, len(channels))
	copy(values, channels)
	return &SyntheticEdgeSource{
		channels: values,
		gap:      gap,
		period:   period,
	}
}

// SetChannel changes the value emitted for one channel from the next frame on.
func (source *SyntheticEdgeSource) SetChannel(channel int, value PulseWidth) {
	source.mutex.Lock()
	defer source.mutex.Unlock()
	if channel >= 0 && channel < len(source.channels) {
		source.channels[channel] = value
	}
}

// EmitFrame calls the handler for one frame's worth of edges: one per channel
// then one after the sync gap.
func (source *SyntheticEdgeSource) EmitFrame(handler EdgeHandler) {
	source.mutex.Lock()
	source.frames++
	glitch := source.NoiseEvery > 0 && source.frames%source.NoiseEvery == 0
	edges := make([]Tick, 0, len(source.channels)+1)
	for i, value := range source.channels {
		if glitch && i == len(source.channels)/2 {
			value = 300
		}
		source.now += Tick(value)
		edges = append(edges, source.now)
	}
	source.now += source.gap
	edges = append(edges, source.now)
	source.mutex.Unlock()

	for _, edge := range edges {
		handler(edge)
	}
}

func (source *SyntheticEdgeSource) Start(handler EdgeHandler) error {
	if source.period <= 0 {
		return fmt.Errorf("synthetic frame period must be positive")
	}
	source.stopChan = make(chan struct{})
	source.done = make(chan struct{})
	go func() {
		defer close(source.done)
		ticker := time.NewTicker(source.period)
		defer ticker.Stop()
		for {
			select {
			case <-source.stopChan:
				return
			case <-ticker.C:
				source.EmitFrame(handler)
			}
		}
	}()
	return nil
}

func (source *SyntheticEdgeSource) Close() error {
	if source.stopChan == nil {
		return nil
	}
	close(source.stopChan)
	<-source.done
	source.stopChan = nil
	return nil
}
