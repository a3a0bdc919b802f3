package ppm2pwm

import (
	"fmt"
)

// Channel 3 on most transmitters
const DefaultThrottleChannel = 2

// Encoder maps one channel of a valid frame onto the peripheral's turn-off
// threshold. It only ever writes the shadow side and then asserts load-ok.
type Encoder struct {
	Channel    int
	InputMin   PulseWidth
	InputMax   PulseWidth
	MinDuty    int16
	MaxDuty    int16
	peripheral *Peripheral
}

func NewEncoder(peripheral *Peripheral, channel int, inputMin, inputMax PulseWidth, minDuty, maxDuty int16) *Encoder {
	return &Encoder{
		Channel:    channel,
		InputMin:   inputMin,
		InputMax:   inputMax,
		MinDuty:    minDuty,
		MaxDuty:    maxDuty,
		peripheral: peripheral,
	}
}

// Duty linearly maps [InputMin, InputMax] to [MinDuty, MaxDuty], truncating
// toward zero. Values outside the input range are clamped.
func (encoder *Encoder) Duty(value PulseWidth) int16 {
	span := float32(encoder.InputMax) - float32(encoder.InputMin)
	if span <= 0 {
		return encoder.MinDuty
	}
	fraction := (float32(value) - float32(encoder.InputMin)) / span
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	dutySpan := float32(encoder.MaxDuty) - float32(encoder.MinDuty)
	return int16(float32(encoder.MinDuty) + fraction*dutySpan)
}

func (encoder *Encoder) Encode(frame *ChannelFrame) error {
	if encoder.Channel < 0 || encoder.Channel >= frame.Len() {
		return fmt.Errorf("channel %v is not in a %v slot frame", encoder.Channel, frame.Len())
	}
	duty := encoder.Duty(frame.Pulses[encoder.Channel])
	encoder.peripheral.SetTurnOff(duty)
	encoder.peripheral.SetLoadOK()
	return nil
}
