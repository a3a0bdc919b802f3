package ppm2pwm

import (
	"math"
	"strconv"
	"strings"
)

// PulseWidth is the time between two qualifying edges, in ticks.
type PulseWidth uint16

const MaxPulseWidth = PulseWidth(math.MaxUint16)

// ChannelFrame holds one pulse width per PPM channel plus a final slot that
// normally receives the sync gap.
type ChannelFrame struct {
	Pulses []PulseWidth
}

func NewChannelFrame(slots int) *ChannelFrame {
	return &ChannelFrame{
		Pulses: make([]PulseWidth, slots),
	}
}

func (frame *ChannelFrame) Len() int {
	return len(frame.Pulses)
}

// Channel returns the pulse width in slot i, or 0 if there is no such slot.
func (frame *ChannelFrame) Channel(i int) PulseWidth {
	if i < 0 || i >= len(frame.Pulses) {
		return 0
	}
	return frame.Pulses[i]
}

func (frame *ChannelFrame) Clone() *ChannelFrame {
	pulses := make([]PulseWidth, len(frame.Pulses))
	copy(pulses, frame.Pulses)
	return &ChannelFrame{Pulses: pulses}
}

func (frame *ChannelFrame) String() string {
	return formatPulses(frame.Pulses)
}

func formatPulses(pulses []PulseWidth) string {
	var builder strings.Builder
	builder.WriteByte('[')
	for i, pulse := range pulses {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(strconv.Itoa(int(pulse)))
	}
	builder.WriteByte(']')
	return builder.String()
}

// Intervals longer than a PulseWidth can hold saturate instead of wrapping, so
// a long gap can never alias into the valid range.
func pulseWidthFromTicks(elapsed Tick) PulseWidth {
	if elapsed > Tick(MaxPulseWidth) {
		return MaxPulseWidth
	}
	return PulseWidth(elapsed)
}
