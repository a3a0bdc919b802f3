package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bskari/go-ppm2pwm/ppm2pwm"
)

func main() {
	configPtr := flag.String("config", "conf.toml", "TOML or YAML configuration file")
	decodePtr := flag.Bool("decode", false, "Decode PPM frames and log them")
	bridgePtr := flag.Bool("bridge", false, "Re-encode the throttle channel as PWM")
	dumpPtr := flag.Bool("dump", false, "Show decoded frames on a terminal dashboard")
	testPwmPtr := flag.Bool("test-pwm", false, "Sweep the PWM output through its range")
	manualPtr := flag.Bool("manual", false, "With -test-pwm, read duty values from stdin")
	flag.Parse()

	if _, err := os.Stat(*configPtr); err == nil {
		if err := ppm2pwm.LoadConfigurationFile(*configPtr); err != nil {
			fmt.Fprintf(os.Stderr, "Unable to load configuration: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Printf("No configuration at %v, using defaults\n", *configPtr)
	}
	configuration := ppm2pwm.GetConfiguration()
	closer := configureLogging(configuration)
	defer closer()

	var err error
	if *decodePtr {
		err = runBridge(configuration, false)
	} else if *bridgePtr {
		err = runBridge(configuration, true)
	} else if *dumpPtr {
		err = dumpFrames(configuration)
	} else if *testPwmPtr {
		if *manualPtr {
			err = manualTest(configuration)
		} else {
			err = sweepTest(configuration)
		}
	} else {
		fmt.Println("Nothing to do")
	}
	if err != nil {
		ppm2pwm.Logger.Criticalf("%v", err)
		closer()
		os.Exit(1)
	}
}

func configureLogging(configuration ppm2pwm.Configuration) func() {
	level, err := ppm2pwm.ParseLogLevel(configuration.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	ppm2pwm.SetLogLevel(level)
	if err := os.MkdirAll(configuration.LogDirectory, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Unable to create log directory: %v\n", err)
		return func() {}
	}
	logName := filepath.Join(configuration.LogDirectory, getLogName())
	rotating := ppm2pwm.ConfigureRotatingLogger(logName, configuration.LogMaxSizeMB, configuration.LogMaxBackups)
	return func() {
		rotating.Close()
	}
}

func getLogName() string {
	now := time.Now()
	return fmt.Sprintf("%04d-%02d-%02d-%02d-%02d-%02d-ppm2pwm.log", now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second())
}

func runBridge(configuration ppm2pwm.Configuration, reencode bool) error {
	bridge, err := ppm2pwm.NewBridgeFromConfiguration(configuration, reencode)
	if err != nil {
		return fmt.Errorf("couldn't initialize bridge: %w", err)
	}
	defer bridge.Close()
	if err := bridge.Start(); err != nil {
		return fmt.Errorf("couldn't start bridge: %w", err)
	}
	ppm2pwm.Logger.Infof("Listening for PPM on %v (%v edge)", describeInput(configuration), configuration.TriggerEdge)

	// Capture SIGINT (Ctrl+C) to exit gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	var previous uint64
	for {
		select {
		case <-sigChan:
			ppm2pwm.Logger.Info("Exiting")
			return nil
		case <-ticker.C:
			stats := bridge.Stats()
			if stats.Decoder.Frames == previous {
				ppm2pwm.Logger.Warning("No PPM frames received")
			}
			previous = stats.Decoder.Frames
			ppm2pwm.Logger.Debugf("Frames:%v overruns:%v accepted:%v rejected:%v dropped:%v",
				stats.Decoder.Frames, stats.Decoder.Overruns, stats.Accepted, stats.Rejected, stats.Dropped)
		}
	}
}

func describeInput(configuration ppm2pwm.Configuration) string {
	switch configuration.EdgeSource {
	case "gpiocdev":
		return fmt.Sprintf("%v:%v", configuration.GpioChip, configuration.PpmLine)
	case "periph":
		return configuration.PpmPin
	}
	return configuration.EdgeSource
}
