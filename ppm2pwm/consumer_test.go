package ppm2pwm

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestPwmConsumer(t *testing.T) (*PwmConsumer, *Peripheral) {
	encoder, peripheral := newTestEncoder(t)
	filter := NewValidityFilter(DefaultMinPulse, DefaultMaxPulse, DefaultChannelSlots-1)
	return NewPwmConsumer(filter, encoder), peripheral
}

func TestPwmConsumerValidFrame(t *testing.T) {
	consumer, peripheral := newTestPwmConsumer(t)
	consumer.ConsumeFrame(frameOf(1500, 1500, 1500, 1500, 1500, 1500, 1500, 1500, 5000))
	if consumer.Accepted() != 1 || consumer.Rejected() != 0 {
		t.Errorf("Bad counts: %v %v", consumer.Accepted(), consumer.Rejected())
	}
	if peripheral.Shadow().TurnOff != 1171 {
		t.Errorf("Bad shadow turn off: %v", peripheral.Shadow().TurnOff)
	}
	if !peripheral.LoadOK() {
		t.Error("Load-ok not asserted")
	}
}

func TestPwmConsumerIgnoresNoise(t *testing.T) {
	consumer, peripheral := newTestPwmConsumer(t)
	peripheral.SetOutputEnable(true)
	consumer.ConsumeFrame(frameOf(1500, 1500, 2000, 1500, 1500, 1500, 1500, 1500, 5000))
	peripheral.Reload()
	committed := peripheral.Active()

	noisy := [][]PulseWidth{
		{1500, 1500, 1500, 900, 1500, 1500, 1500, 1500, 5000},
		{1500, 1500, 1200, 1500, 1500, 1500, 1500, 2500, 5000},
		{300, 1500, 1500, 1500, 1500, 1500, 1500, 1500, 5000},
		{1500, 1500, 1500, 4000, 1500, 1500, 1500, 1500, 1500},
	}
	for _, pulses := range noisy {
		consumer.ConsumeFrame(frameOf(pulses...))
		if peripheral.LoadOK() {
			t.Errorf("Noise asserted load-ok: %v", pulses)
		}
		peripheral.Reload()
		if peripheral.Active() != committed {
			t.Errorf("Noise changed the output: %+v", peripheral.Active())
		}
		if peripheral.Shadow().TurnOff != committed.TurnOff {
			t.Errorf("Noise changed the shadow: %+v", peripheral.Shadow())
		}
	}
	if consumer.Rejected() != uint64(len(noisy)) {
		t.Errorf("Bad rejected count: %v", consumer.Rejected())
	}
}

func TestDecoderToPwmScenarios(t *testing.T) {
	consumer, peripheral := newTestPwmConsumer(t)
	decoder := newTestDecoder(t, consumer)
	now := feed(decoder, 0, 5000)
	peripheral.Reload()

	// Scenario A: eight 1500 pulses then a sync gap
	now = feed(decoder, now, append(repeat(1500, 8), 3000)...)
	if decoder.Cursor() != 0 {
		t.Errorf("Bad cursor: %v", decoder.Cursor())
	}
	if !peripheral.LoadOK() || peripheral.Shadow().TurnOff != 1171 {
		t.Errorf("Valid frame not encoded: %+v", peripheral.Shadow())
	}
	peripheral.Reload()

	// Scenario B: one channel too short
	intervals := append(repeat(1500, 8), 3000)
	intervals[5] = 900
	now = feed(decoder, now, intervals...)
	if decoder.Cursor() != 0 {
		t.Errorf("Bad cursor: %v", decoder.Cursor())
	}
	if peripheral.LoadOK() {
		t.Error("Invalid frame asserted load-ok")
	}
	if peripheral.Active().TurnOff != 1171 {
		t.Errorf("Invalid frame changed the output: %+v", peripheral.Active())
	}

	// Scenario C: the frame fills up without a gap
	intervals = repeat(1500, 9)
	intervals[2] = 2000
	feed(decoder, now, intervals...)
	if decoder.Cursor() != 0 {
		t.Errorf("Bad cursor: %v", decoder.Cursor())
	}
	if !peripheral.LoadOK() || peripheral.Shadow().TurnOff != 2343 {
		t.Errorf("Full frame not encoded: %+v", peripheral.Shadow())
	}
	if consumer.Accepted() != 2 || consumer.Rejected() != 2 {
		t.Errorf("Bad counts: %v %v", consumer.Accepted(), consumer.Rejected())
	}
}

type blockingSink struct {
	mutex     sync.Mutex
	release   chan struct{}
	snapshots []Snapshot
}

func (sink *blockingSink) WriteSnapshot(snapshot Snapshot) error {
	<-sink.release
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	sink.snapshots = append(sink.snapshots, snapshot)
	return nil
}

func (sink *blockingSink) count() int {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	return len(sink.snapshots)
}

func TestLoggingConsumerNeverBlocks(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	consumer := NewLoggingConsumer(sink, nil, 1, 1)
	frame := frameOf(1500, 1500, 1500)

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			consumer.ConsumeFrame(frame)
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("ConsumeFrame blocked on a slow sink")
	}
	if consumer.Dropped() < 8 {
		t.Errorf("Bad dropped count: %v", consumer.Dropped())
	}
	if consumer.Frames() != 10 {
		t.Errorf("Bad frame count: %v", consumer.Frames())
	}

	close(sink.release)
	consumer.Close()
	written := uint64(sink.count())
	if written+consumer.Dropped() != 10 {
		t.Errorf("Lost snapshots: %v written, %v dropped", written, consumer.Dropped())
	}
}

func TestLoggingConsumerCopiesFrames(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	close(sink.release)
	filter := NewValidityFilter(DefaultMinPulse, DefaultMaxPulse, 2)
	consumer := NewLoggingConsumer(sink, filter, 2, 10)

	frame := frameOf(1500, 1500, 5000)
	for i := 0; i < 4; i++ {
		consumer.ConsumeFrame(frame)
		frame.Pulses[0] = 800
	}
	consumer.Close()

	if sink.count() != 2 {
		t.Fatalf("Bad snapshot count: %v", sink.count())
	}
	first := sink.snapshots[0]
	if first.Sequence != 2 || first.Pulses[0] != 800 || first.Valid {
		t.Errorf("Bad first snapshot: %+v", first)
	}
	if !strings.HasSuffix(first.String(), "invalid") {
		t.Errorf("Bad snapshot text: %v", first.String())
	}
	// Changing the frame afterwards must not change the snapshot
	frame.Pulses[0] = 1234
	if sink.snapshots[1].Pulses[0] != 800 {
		t.Errorf("Snapshot shares the frame: %v", sink.snapshots[1].Pulses[0])
	}
}

func TestSnapshotString(t *testing.T) {
	snapshot := Snapshot{Pulses: []PulseWidth{1500, 1000, 2100}, Valid: true}
	if snapshot.String() != "PPM Data: [1500, 1000, 2100]" {
		t.Errorf("Bad snapshot text: %v", snapshot.String())
	}
}

func TestMultiConsumer(t *testing.T) {
	first := &recordingConsumer{}
	second := &recordingConsumer{}
	consumers := MultiConsumer{first, second}
	consumers.ConsumeFrame(frameOf(1, 2, 3))
	if len(first.frames) != 1 || len(second.frames) != 1 {
		t.Errorf("Bad fan out: %v %v", len(first.frames), len(second.frames))
	}
}
