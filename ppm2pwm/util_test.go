package ppm2pwm

import (
	"testing"
)

func skipIfNotPi(t *testing.T) {
	if !IsPi() {
		t.Skip("Skipping non-Pi")
	}
}

func TestRpioOutput(t *testing.T) {
	skipIfNotPi(t)
	output, err := NewRpioOutput(12, DefaultRpioCycleLength)
	if err != nil {
		t.Skipf("Unable to open rpio, probably not root: %v", err)
	}
	peripheral, err := NewPeripheral(defaultPeripheralConfig(), output)
	if err != nil {
		t.Fatalf("Unable to create peripheral: %v", err)
	}
	peripheral.SetOutputEnable(true)
	peripheral.SetTurnOn(-2343)
	peripheral.SetTurnOff(1171)
	peripheral.SetLoadOK()
	if _, err := peripheral.Reload(); err != nil {
		t.Errorf("Unable to write: %v", err)
	}
	if err := peripheral.Close(); err != nil {
		t.Errorf("Unable to close: %v", err)
	}
}

func TestRpioOutputRejectsPlainPins(t *testing.T) {
	if _, err := NewRpioOutput(4, DefaultRpioCycleLength); err == nil {
		t.Error("Expected an error for a pin without hardware PWM")
	}
}

func TestClampInt16(t *testing.T) {
	if clampInt16(5, -3, 3) != 3 || clampInt16(-5, -3, 3) != -3 || clampInt16(1, -3, 3) != 1 {
		t.Error("Bad clamp")
	}
}
