package main

import (
	"fmt"
	"time"

	"github.com/bskari/go-ppm2pwm/ppm2pwm"
	"github.com/nsf/termbox-go"
)

func dumpFrames(configuration ppm2pwm.Configuration) error {
	if !ppm2pwm.IsPi() && configuration.EdgeSource != "synthetic" {
		// No receiver off the Pi, so show a made up signal
		configuration.EdgeSource = "synthetic"
		configuration.SyntheticNoiseEvery = 40
	}
	// The dashboard replaces console logging
	ppm2pwm.ConfigureConsole(nil)
	configuration.SnapshotEvery = 1

	source, err := ppm2pwm.NewEdgeSource(configuration)
	if err != nil {
		return err
	}
	var dashboard *ppm2pwm.Dashboard
	var bridge *ppm2pwm.Bridge
	dashboard = ppm2pwm.NewDashboard(func() ppm2pwm.BridgeStats {
		return bridge.Stats()
	})
	bridge, err = ppm2pwm.NewBridge(configuration, source, ppm2pwm.NewDryRunOutput(), dashboard)
	if err != nil {
		return err
	}
	defer bridge.Close()

	err = termbox.Init()
	if err != nil {
		return err
	}
	defer termbox.Close()

	eventQueue := make(chan termbox.Event)
	go func() {
		for {
			eventQueue <- termbox.PollEvent()
		}
	}()

	if err := bridge.Start(); err != nil {
		return err
	}
	dashboard.Message(fmt.Sprintf("Listening on %v, press any key to exit", describeInput(configuration)))

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case event := <-eventQueue:
			// Check for any key presses
			if event.Type == termbox.EventKey {
				return nil
			}
		case <-ticker.C:
			// Keep the counters moving even when no frames arrive
			dashboard.Update()
		}
	}
}
