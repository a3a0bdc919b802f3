package ppm2pwm

import (
	"sync"
	"sync/atomic"
	"time"
)

// FrameConsumer receives each completed frame from inside the edge handler.
// It must not block and must not keep the frame after returning.
type FrameConsumer interface {
	ConsumeFrame(frame *ChannelFrame)
}

type FrameConsumerFunc func(frame *ChannelFrame)

func (f FrameConsumerFunc) ConsumeFrame(frame *ChannelFrame) {
	f(frame)
}

// MultiConsumer hands each frame to several consumers in order.
type MultiConsumer []FrameConsumer

func (consumers MultiConsumer) ConsumeFrame(frame *ChannelFrame) {
	for _, consumer := range consumers {
		consumer.ConsumeFrame(frame)
	}
}

// PwmConsumer re-encodes valid frames and drops everything else, leaving the
// previous PWM output in place.
type PwmConsumer struct {
	filter   *ValidityFilter
	encoder  *Encoder
	accepted atomic.Uint64
	rejected atomic.Uint64
	failed   atomic.Uint64
}

func NewPwmConsumer(filter *ValidityFilter, encoder *Encoder) *PwmConsumer {
	return &PwmConsumer{
		filter:  filter,
		encoder: encoder,
	}
}

func (consumer *PwmConsumer) ConsumeFrame(frame *ChannelFrame) {
	if !consumer.filter.IsValid(frame) {
		consumer.rejected.Add(1)
		return
	}
	if err := consumer.encoder.Encode(frame); err != nil {
		consumer.failed.Add(1)
		return
	}
	consumer.accepted.Add(1)
}

func (consumer *PwmConsumer) Accepted() uint64 {
	return consumer.accepted.Load()
}

func (consumer *PwmConsumer) Rejected() uint64 {
	return consumer.rejected.Load()
}

// Failed counts valid frames the encoder could not use, which only happens
// when the throttle channel is outside the frame.
func (consumer *PwmConsumer) Failed() uint64 {
	return consumer.failed.Load()
}

// Snapshot is a copy of a frame handed to a diagnostic sink.
type Snapshot struct {
	Sequence uint64
	Time     time.Time
	Pulses   []PulseWidth
	Valid    bool
}

func (snapshot Snapshot) String() string {
	if snapshot.Valid {
		return "PPM Data: " + formatPulses(snapshot.Pulses)
	}
	return "PPM Data: " + formatPulses(snapshot.Pulses) + " invalid"
}

// DiagnosticSink receives snapshots on the LoggingConsumer's goroutine, so it
// may block.
type DiagnosticSink interface {
	WriteSnapshot(snapshot Snapshot) error
}

// LoggingConsumer offers every Nth frame to a diagnostic sink through a
// bounded queue. When the queue is full the snapshot is dropped rather than
// delaying the edge handler.
type LoggingConsumer struct {
	filter    *ValidityFilter
	sink      DiagnosticSink
	every     uint64
	snapshots chan Snapshot
	stopChan  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	frames    atomic.Uint64
	dropped   atomic.Uint64
}

func NewLoggingConsumer(sink DiagnosticSink, filter *ValidityFilter, every int, queueDepth int) *LoggingConsumer {
	if every < 1 {
		every = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	consumer := &LoggingConsumer{
		filter:    filter,
		sink:      sink,
		every:     uint64(every),
		snapshots: make(chan Snapshot, queueDepth),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	go consumer.run()
	return consumer
}

func (consumer *LoggingConsumer) ConsumeFrame(frame *ChannelFrame) {
	sequence := consumer.frames.Add(1)
	if sequence%consumer.every != 0 {
		return
	}
	pulses := make([]PulseWidth, frame.Len())
	copy(pulses, frame.Pulses)
	snapshot := Snapshot{
		Sequence: sequence,
		Time:     time.Now(),
		Pulses:   pulses,
		Valid:    consumer.filter == nil || consumer.filter.IsValid(frame),
	}
	select {
	case consumer.snapshots <- snapshot:
	default:
		consumer.dropped.Add(1)
	}
}

func (consumer *LoggingConsumer) run() {
	defer close(consumer.done)
	for {
		select {
		case snapshot := <-consumer.snapshots:
			consumer.write(snapshot)
		case <-consumer.stopChan:
			// Flush whatever is already queued
			for {
				select {
				case snapshot := <-consumer.snapshots:
					consumer.write(snapshot)
				default:
					return
				}
			}
		}
	}
}

func (consumer *LoggingConsumer) write(snapshot Snapshot) {
	if err := consumer.sink.WriteSnapshot(snapshot); err != nil {
		Logger.Warningf("Unable to write snapshot %v: %v", snapshot.Sequence, err)
	}
}

func (consumer *LoggingConsumer) Frames() uint64 {
	return consumer.frames.Load()
}

func (consumer *LoggingConsumer) Dropped() uint64 {
	return consumer.dropped.Load()
}

// Close flushes queued snapshots and stops the sink goroutine. Frames
// consumed afterwards are queued but never written.
func (consumer *LoggingConsumer) Close() error {
	consumer.closeOnce.Do(func() {
		close(consumer.stopChan)
	})
	<-consumer.done
	return nil
}
