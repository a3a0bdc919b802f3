package ppm2pwm

import (
	"io/ioutil"
	"strings"
	"sync"
)

var isPiOnce sync.Once
var isPiCache = false

// IsPi reports whether we're running on a Raspberry Pi, so hardware can be
// skipped everywhere else.
func IsPi() bool {
	isPiOnce.Do(func() {
		data, err := ioutil.ReadFile("/proc/cpuinfo")
		if err != nil {
			Logger.Warningf("Couldn't open /proc/cpuinfo: %v", err)
			return
		}
		text := string(data)
		isPiCache = strings.Contains(text, "ARM") || strings.Contains(text, "Raspberry Pi")
	})
	return isPiCache
}

func clampInt16(value, minimum, maximum int16) int16 {
	if value < minimum {
		return minimum
	}
	if value > maximum {
		return maximum
	}
	return value
}
