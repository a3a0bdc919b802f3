package ppm2pwm

import (
	"errors"
	"sync"
)

// Eight channels plus the sync slot
const DefaultChannelSlots = 9

// Gaps longer than this many ticks are the sync pulse between frames
const DefaultSyncGap Tick = 2100

type DecoderStats struct {
	Edges uint64
	// Frames counts every frame boundary, Overruns the subset that ended
	// because the frame filled up before a sync gap arrived.
	Frames   uint64
	Overruns uint64
}

// Decoder turns edge timestamps into PPM frames. It is meant to be driven by
// a single edge interrupt; OnEdge is still serialized so that sources which
// call back from more than one goroutine stay safe.
type Decoder struct {
	mutex    sync.Mutex
	frame    *ChannelFrame
	cursor   int
	lastEdge Tick
	syncGap  Tick
	consumer FrameConsumer
	stats    DecoderStats
}

func NewDecoder(slots int, syncGap Tick, consumer FrameConsumer) (*Decoder, error) {
	if slots < 1 {
		return nil, errors.New("decoder needs at least one channel slot")
	}
	return &Decoder{
		frame:    NewChannelFrame(slots),
		cursor:   0,
		lastEdge: 0,
		syncGap:  syncGap,
		consumer: consumer,
	}, nil
}

// OnEdge records the interval since the previous edge and closes the frame on
// a sync gap or when every slot is filled. The first edge after start measures
// from tick 0, which normally looks like a sync gap and just resynchronizes.
func (decoder *Decoder) OnEdge(now Tick) {
	decoder.mutex.Lock()
	defer decoder.mutex.Unlock()

	elapsed := Elapsed(now, decoder.lastEdge)
	decoder.lastEdge = now
	decoder.stats.Edges++

	slots := decoder.frame.Len()
	if decoder.cursor < slots {
		decoder.frame.Pulses[decoder.cursor] = pulseWidthFromTicks(elapsed)
		decoder.cursor++
	}

	isSync := elapsed > decoder.syncGap
	if isSync || decoder.cursor >= slots {
		decoder.stats.Frames++
		if !isSync {
			decoder.stats.Overruns++
		}
		if decoder.consumer != nil {
			decoder.consumer.ConsumeFrame(decoder.frame)
		}
		decoder.cursor = 0
	}
}

func (decoder *Decoder) Cursor() int {
	decoder.mutex.Lock()
	defer decoder.mutex.Unlock()
	return decoder.cursor
}

// Frame returns a copy of the frame being collected.
func (decoder *Decoder) Frame() *ChannelFrame {
	decoder.mutex.Lock()
	defer decoder.mutex.Unlock()
	return decoder.frame.Clone()
}

func (decoder *Decoder) Slots() int {
	return decoder.frame.Len()
}

func (decoder *Decoder) Stats() DecoderStats {
	decoder.mutex.Lock()
	defer decoder.mutex.Unlock()
	return decoder.stats
}
