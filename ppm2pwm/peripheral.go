package ppm2pwm

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// DutyRegisters are the per-output compare values. The output is high while
// the counter is between TurnOn and TurnOff.
type DutyRegisters struct {
	TurnOn  int16
	TurnOff int16
}

// PeripheralConfig describes a PWM submodule that counts from -MaxRange to
// MaxRange once per period.
type PeripheralConfig struct {
	ClockHz   uint32
	Prescaler uint32
	PwmHz     uint32
}

func (config PeripheralConfig) CounterHz() uint32 {
	return config.ClockHz / config.Prescaler
}

func (config PeripheralConfig) MaxRange() int16 {
	return int16(config.CounterHz() / config.PwmHz / 2)
}

func (config PeripheralConfig) MinRange() int16 {
	return -config.MaxRange()
}

// CycleCounts is the number of counter steps in one PWM period.
func (config PeripheralConfig) CycleCounts() uint32 {
	return uint32(int32(config.MaxRange()) - int32(config.MinRange()))
}

// MaxDuty is a tenth of the half range. With TurnOn at -MaxDuty the output
// pulse runs from 5% (TurnOff 0) to 10% (TurnOff MaxDuty) of the period,
// which at 50 Hz is the usual 1 to 2 ms servo pulse.
func (config PeripheralConfig) MaxDuty() int16 {
	return int16(float32(config.MaxRange()) / 10.0)
}

func (config PeripheralConfig) Validate() error {
	if config.ClockHz == 0 {
		return fmt.Errorf("clock frequency must be positive")
	}
	if config.PwmHz == 0 {
		return fmt.Errorf("PWM frequency must be positive")
	}
	switch config.Prescaler {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		return fmt.Errorf("bad prescaler %v", config.Prescaler)
	}
	halfRange := config.CounterHz() / config.PwmHz / 2
	if halfRange < 10 || halfRange > math.MaxInt16 {
		return fmt.Errorf("counter range %v does not fit the 16 bit counter, adjust prescaler", halfRange)
	}
	return nil
}

// Output is the hardware that finally produces the waveform.
type Output interface {
	Configure(cycleCounts uint32, pwmHz uint32) error
	Write(highCounts uint32, cycleCounts uint32) error
	Close() error
}

// Peripheral is a double buffered PWM submodule. Writes land in the shadow
// registers and only reach the active registers, and the output, at a reload
// after SetLoadOK.
type Peripheral struct {
	mutex    sync.Mutex
	config   PeripheralConfig
	shadow   DutyRegisters
	active   DutyRegisters
	loadOK   bool
	enabled  bool
	running  bool
	reloads  uint64
	output   Output
	stopChan chan struct{}
	done     chan struct{}
}

func NewPeripheral(config PeripheralConfig, output Output) (*Peripheral, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if output == nil {
		return nil, fmt.Errorf("peripheral needs an output")
	}
	if err := output.Configure(config.CycleCounts(), config.PwmHz); err != nil {
		return nil, fmt.Errorf("configure PWM output: %w", err)
	}
	return &Peripheral{
		config: config,
		output: output,
	}, nil
}

func (peripheral *Peripheral) Config() PeripheralConfig {
	return peripheral.config
}

func (peripheral *Peripheral) clampCount(value int16) int16 {
	return clampInt16(value, peripheral.config.MinRange(), peripheral.config.MaxRange())
}

func (peripheral *Peripheral) SetTurnOn(value int16) {
	peripheral.mutex.Lock()
	defer peripheral.mutex.Unlock()
	peripheral.shadow.TurnOn = peripheral.clampCount(value)
}

func (peripheral *Peripheral) SetTurnOff(value int16) {
	peripheral.mutex.Lock()
	defer peripheral.mutex.Unlock()
	peripheral.shadow.TurnOff = peripheral.clampCount(value)
}

// SetOutputEnable is not buffered; it takes effect at the next reload even if
// no new values were loaded.
func (peripheral *Peripheral) SetOutputEnable(enabled bool) {
	peripheral.mutex.Lock()
	defer peripheral.mutex.Unlock()
	peripheral.enabled = enabled
}

// SetLoadOK commits the shadow registers; they become active at the next
// reload.
func (peripheral *Peripheral) SetLoadOK() {
	peripheral.mutex.Lock()
	defer peripheral.mutex.Unlock()
	peripheral.loadOK = true
}

func (peripheral *Peripheral) LoadOK() bool {
	peripheral.mutex.Lock()
	defer peripheral.mutex.Unlock()
	return peripheral.loadOK
}

func (peripheral *Peripheral) Shadow() DutyRegisters {
	peripheral.mutex.Lock()
	defer peripheral.mutex.Unlock()
	return peripheral.shadow
}

func (peripheral *Peripheral) Active() DutyRegisters {
	peripheral.mutex.Lock()
	defer peripheral.mutex.Unlock()
	return peripheral.active
}

func (peripheral *Peripheral) Reloads() uint64 {
	peripheral.mutex.Lock()
	defer peripheral.mutex.Unlock()
	return peripheral.reloads
}

// HighCounts is how many counter steps per period the output is high with the
// active registers.
func (peripheral *Peripheral) HighCounts() uint32 {
	peripheral.mutex.Lock()
	defer peripheral.mutex.Unlock()
	return peripheral.highCounts()
}

func (peripheral *Peripheral) highCounts() uint32 {
	if !peripheral.enabled {
		return 0
	}
	high := int32(peripheral.active.TurnOff) - int32(peripheral.active.TurnOn)
	if high < 0 {
		return 0
	}
	if uint32(high) > peripheral.config.CycleCounts() {
		return peripheral.config.CycleCounts()
	}
	return uint32(high)
}

// Reload runs at the end of every PWM period. It promotes the shadow
// registers only if load-ok was asserted, then refreshes the output. It
// reports whether new values were loaded.
func (peripheral *Peripheral) Reload() (bool, error) {
	peripheral.mutex.Lock()
	defer peripheral.mutex.Unlock()
	loaded := peripheral.loadOK
	if loaded {
		peripheral.active = peripheral.shadow
		peripheral.loadOK = false
		peripheral.reloads++
	}
	err := peripheral.output.Write(peripheral.highCounts(), peripheral.config.CycleCounts())
	return loaded, err
}

// Start runs reloads at the PWM frequency until Stop. The first reload
// happens right away so committed start-up values reach the output.
func (peripheral *Peripheral) Start() {
	peripheral.mutex.Lock()
	if peripheral.running {
		peripheral.mutex.Unlock()
		return
	}
	peripheral.running = true
	peripheral.stopChan = make(chan struct{})
	peripheral.done = make(chan struct{})
	period := time.Second / time.Duration(peripheral.config.PwmHz)
	stopChan := peripheral.stopChan
	done := peripheral.done
	peripheral.mutex.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		failing := false
		for {
			_, err := peripheral.Reload()
			if err != nil && !failing {
				Logger.Errorf("Unable to write PWM output: %v", err)
			}
			failing = err != nil
			select {
			case <-stopChan:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (peripheral *Peripheral) Stop() {
	peripheral.mutex.Lock()
	if !peripheral.running {
		peripheral.mutex.Unlock()
		return
	}
	peripheral.running = false
	stopChan := peripheral.stopChan
	done := peripheral.done
	peripheral.mutex.Unlock()

	close(stopChan)
	<-done
}

// Close stops reloading, drives the output low and releases it.
func (peripheral *Peripheral) Close() error {
	peripheral.Stop()
	peripheral.mutex.Lock()
	defer peripheral.mutex.Unlock()
	peripheral.enabled = false
	if err := peripheral.output.Write(0, peripheral.config.CycleCounts()); err != nil {
		Logger.Warningf("Unable to clear PWM output: %v", err)
	}
	return peripheral.output.Close()
}
