package ppm2pwm

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"
)

// The Pi's PWM clock is 19.2 MHz divided down by an integer, so keep the cycle
// length moderate. Very long cycles drift from the requested period.
const DefaultRpioCycleLength = 20000

// RpioOutput drives one of the Pi's hardware PWM pins (12, 13, 18 or 19).
type RpioOutput struct {
	pin         rpio.Pin
	cycleLength uint32
}

func NewRpioOutput(pinNumber int, cycleLength uint32) (*RpioOutput, error) {
	switch pinNumber {
	case 12, 13, 18, 19:
	default:
		return nil, fmt.Errorf("pin %v has no hardware PWM", pinNumber)
	}
	if cycleLength == 0 {
		cycleLength = DefaultRpioCycleLength
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open rpio: %w", err)
	}
	return &RpioOutput{
		pin:         rpio.Pin(pinNumber),
		cycleLength: cycleLength,
	}, nil
}

func (output *RpioOutput) Configure(cycleCounts uint32, pwmHz uint32) error {
	// Param freq should be in range 4688Hz - 19.2MHz to prevent
	// unexpected behavior
	frequency := pwmHz * output.cycleLength
	if frequency < 4688 || frequency > 19200000 {
		return fmt.Errorf("PWM clock %v Hz out of range, adjust the cycle length", frequency)
	}
	output.pin.Pwm()
	output.pin.Freq(int(frequency))
	output.pin.DutyCycle(0, output.cycleLength)
	return nil
}

func (output *RpioOutput) Write(highCounts uint32, cycleCounts uint32) error {
	output.pin.DutyCycle(scaleCounts(highCounts, cycleCounts, output.cycleLength), output.cycleLength)
	return nil
}

func (output *RpioOutput) Close() error {
	output.pin.DutyCycle(0, output.cycleLength)
	output.pin.Output()
	output.pin.Low()
	return rpio.Close()
}

// PeriphOutput uses periph.io's PWM support, which covers boards other than
// the Pi as well.
type PeriphOutput struct {
	pin       gpio.PinIO
	frequency physic.Frequency
}

func NewPeriphOutput(pinName string) (*PeriphOutput, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialize periph: %w", err)
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("no such pin %q", pinName)
	}
	return &PeriphOutput{pin: pin}, nil
}

func (output *PeriphOutput) Configure(cycleCounts uint32, pwmHz uint32) error {
	output.frequency = physic.Frequency(pwmHz) * physic.Hertz
	return output.pin.PWM(0, output.frequency)
}

func (output *PeriphOutput) Write(highCounts uint32, cycleCounts uint32) error {
	duty := gpio.Duty(scaleCounts(highCounts, cycleCounts, uint32(gpio.DutyMax)))
	return output.pin.PWM(duty, output.frequency)
}

func (output *PeriphOutput) Close() error {
	return output.pin.Halt()
}

// DryRunOutput remembers the last write instead of touching hardware.
type DryRunOutput struct {
	mutex       sync.Mutex
	cycleCounts uint32
	pwmHz       uint32
	highCounts  uint32
	writes      uint64
	changes     uint64
}

func NewDryRunOutput() *DryRunOutput {
	return &DryRunOutput{}
}

func (output *DryRunOutput) Configure(cycleCounts uint32, pwmHz uint32) error {
	output.mutex.Lock()
	defer output.mutex.Unlock()
	output.cycleCounts = cycleCounts
	output.pwmHz = pwmHz
	return nil
}

func (output *DryRunOutput) Write(highCounts uint32, cycleCounts uint32) error {
	output.mutex.Lock()
	defer output.mutex.Unlock()
	output.writes++
	if highCounts != output.highCounts {
		output.changes++
		Logger.Debugf("PWM high %v of %v counts", highCounts, cycleCounts)
	}
	output.highCounts = highCounts
	output.cycleCounts = cycleCounts
	return nil
}

func (output *DryRunOutput) Close() error {
	return nil
}

func (output *DryRunOutput) HighCounts() uint32 {
	output.mutex.Lock()
	defer output.mutex.Unlock()
	return output.highCounts
}

// Changes is the number of writes that changed the output level.
func (output *DryRunOutput) Changes() uint64 {
	output.mutex.Lock()
	defer output.mutex.Unlock()
	return output.changes
}

func (output *DryRunOutput) Writes() uint64 {
	output.mutex.Lock()
	defer output.mutex.Unlock()
	return output.writes
}

// PulseMicroseconds is the length of the high pulse, for display.
func (output *DryRunOutput) PulseMicroseconds() float64 {
	output.mutex.Lock()
	defer output.mutex.Unlock()
	if output.cycleCounts == 0 || output.pwmHz == 0 {
		return 0
	}
	return float64(output.highCounts) / float64(output.cycleCounts) * 1e6 / float64(output.pwmHz)
}

func scaleCounts(counts uint32, from uint32, to uint32) uint32 {
	if from == 0 {
		return 0
	}
	if counts > from {
		counts = from
	}
	return uint32(uint64(counts) * uint64(to) / uint64(from))
}
