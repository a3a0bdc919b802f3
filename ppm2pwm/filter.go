package ppm2pwm

// Physical PPM channel pulses are 1 to 2 ms long
const (
	DefaultMinPulse PulseWidth = 1000
	DefaultMaxPulse PulseWidth = 2000
)

// ValidityFilter accepts a frame only if each of its first Channels slots is
// within [Min, Max]. Later slots, normally just the sync gap, are ignored.
type ValidityFilter struct {
	Min      PulseWidth
	Max      PulseWidth
	Channels int
}

func NewValidityFilter(min, max PulseWidth, channels int) *ValidityFilter {
	return &ValidityFilter{
		Min:      min,
		Max:      max,
		Channels: channels,
	}
}

func (filter *ValidityFilter) IsValid(frame *ChannelFrame) bool {
	channels := filter.Channels
	if channels > frame.Len() {
		channels = frame.Len()
	}
	for i := 0; i < channels; i++ {
		pulse := frame.Pulses[i]
		if pulse < filter.Min || pulse > filter.Max {
			return false
		}
	}
	return true
}
