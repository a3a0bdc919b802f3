package ppm2pwm

import (
	"time"
)

// Tick is one count of the free running edge timer. It wraps at 32 bits.
type Tick uint32

type TickSource interface {
	Now() Tick
}

// Elapsed returns the ticks from last to now. Unsigned subtraction keeps the
// result correct across a single wrap of the counter.
func Elapsed(now, last Tick) Tick {
	return now - last
}

// DurationToTicks converts a monotonic timestamp to ticks of the given length,
// keeping only the low 32 bits like a hardware counter would.
func DurationToTicks(d time.Duration, tick time.Duration) Tick {
	if tick <= 0 {
		tick = time.Microsecond
	}
	if d < 0 {
		d = 0
	}
	return Tick(uint64(d / tick))
}

// ClockTickSource counts ticks on the monotonic clock since it was created.
type ClockTickSource struct {
	start time.Time
	tick  time.Duration
}

func NewClockTickSource(tick time.Duration) *ClockTickSource {
	return &ClockTickSource{
		start: time.Now(),
		tick:  tick,
	}
}

func (source *ClockTickSource) Now() Tick {
	return DurationToTicks(time.Since(source.start), source.tick)
}
