package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bskari/go-ppm2pwm/ppm2pwm"
)

func newTestEncoder(configuration ppm2pwm.Configuration) (*ppm2pwm.Encoder, *ppm2pwm.Peripheral, error) {
	output, err := ppm2pwm.NewOutput(configuration)
	if err != nil {
		return nil, nil, err
	}
	peripheralConfig := configuration.PeripheralConfig()
	peripheral, err := ppm2pwm.NewPeripheral(peripheralConfig, output)
	if err != nil {
		output.Close()
		return nil, nil, err
	}
	maxDuty := configuration.EffectiveMaxDuty()
	peripheral.SetTurnOn(-maxDuty)
	peripheral.SetTurnOff(configuration.MinDuty)
	peripheral.SetOutputEnable(true)
	peripheral.SetLoadOK()
	peripheral.Start()
	encoder := ppm2pwm.NewEncoder(
		peripheral,
		configuration.ThrottleChannel,
		ppm2pwm.PulseWidth(configuration.MinPulseTicks),
		ppm2pwm.PulseWidth(configuration.MaxPulseTicks),
		configuration.MinDuty,
		maxDuty,
	)
	return encoder, peripheral, nil
}

func setThrottle(encoder *ppm2pwm.Encoder, frame *ppm2pwm.ChannelFrame, value ppm2pwm.PulseWidth) error {
	frame.Pulses[encoder.Channel] = value
	return encoder.Encode(frame)
}

// Steps the throttle from the bottom to the top of its range and back
func sweepTest(configuration ppm2pwm.Configuration) error {
	encoder, peripheral, err := newTestEncoder(configuration)
	if err != nil {
		return err
	}
	defer peripheral.Close()
	frame := ppm2pwm.NewChannelFrame(configuration.ChannelSlots)

	low := ppm2pwm.PulseWidth(configuration.MinPulseTicks)
	high := ppm2pwm.PulseWidth(configuration.MaxPulseTicks)
	step := (high - low) / 20
	if step == 0 {
		step = 1
	}

	// Pause a bit at the bottom so an ESC can arm
	setThrottle(encoder, frame, low)
	time.Sleep(3 * time.Second)

	for value := low; value <= high && value >= low; value += step {
		fmt.Printf("Setting throttle to %v, duty %v\n", value, encoder.Duty(value))
		setThrottle(encoder, frame, value)
		time.Sleep(250 * time.Millisecond)
	}
	// Pause a bit at the top
	time.Sleep(3 * time.Second)

	fmt.Printf("Setting throttle to %v\n", low)
	setThrottle(encoder, frame, low)
	time.Sleep(1 * time.Second)
	return nil
}

// Manual testing with oscilloscope
func manualTest(configuration ppm2pwm.Configuration) error {
	encoder, peripheral, err := newTestEncoder(configuration)
	if err != nil {
		return err
	}
	defer peripheral.Close()
	frame := ppm2pwm.NewChannelFrame(configuration.ChannelSlots)

	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("PWM at %v Hz, counter range %v to %v\n",
		configuration.PwmHz, peripheral.Config().MinRange(), peripheral.Config().MaxRange())
	for {
		fmt.Print("Enter pulse width: ")
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return nil
		}
		value, err := strconv.Atoi(line)
		if err != nil {
			fmt.Printf("Bad atoi: %v\n", err)
			continue
		}
		if value > int(configuration.MaxPulseTicks) {
			fmt.Println("Too high")
			continue
		}
		if value < int(configuration.MinPulseTicks) {
			fmt.Println("Too low")
			continue
		}
		setThrottle(encoder, frame, ppm2pwm.PulseWidth(value))
		// Wait for the next reload so the active value is what we print
		time.Sleep(time.Second / time.Duration(configuration.PwmHz) * 2)
		active := peripheral.Active()
		fmt.Printf("Turn on %v, turn off %v, high %v counts\n", active.TurnOn, active.TurnOff, peripheral.HighCounts())
	}
}
