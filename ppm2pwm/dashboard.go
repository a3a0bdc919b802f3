package ppm2pwm

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/nsf/termbox-go"
)

type StringWriter struct {
	Line int
}

func (writer *StringWriter) WriteLine(str string) {
	for x := 0; x < len(str); x++ {
		termbox.SetCell(x, writer.Line, rune(str[x]), termbox.ColorWhite, termbox.ColorBlack)
	}
	writer.Line++
}

func (writer *StringWriter) IndentLine(str string) {
	for x := 0; x < len(str); x++ {
		termbox.SetCell(x+3, writer.Line, rune(str[x]), termbox.ColorWhite, termbox.ColorBlack)
	}
	writer.Line++
}

// Dashboard is a diagnostic sink that draws the latest frame and bridge
// counters on the terminal. termbox must be initialized by the caller.
// drawMutex is held for a whole redraw since termbox calls are not safe
// to interleave.
type Dashboard struct {
	mutex        sync.Mutex
	drawMutex    sync.Mutex
	draw         func(lines []string) error
	latest       *Snapshot
	messages     *list.List
	stats        func() BridgeStats
	drawTime     time.Time
	drawInterval time.Duration
}

func NewDashboard(stats func() BridgeStats) *Dashboard {
	return &Dashboard{
		messages:     list.New(),
		stats:        stats,
		draw:         drawLines,
		drawInterval: 500 * time.Millisecond,
	}
}

func (dashboard *Dashboard) WriteSnapshot(snapshot Snapshot) error {
	dashboard.mutex.Lock()
	dashboard.latest = &snapshot
	if !snapshot.Valid {
		dashboard.message(fmt.Sprintf("Rejected frame %v", formatPulses(snapshot.Pulses)))
	}
	dashboard.mutex.Unlock()
	return dashboard.Update()
}

// Message adds a line to the short message history.
func (dashboard *Dashboard) Message(message string) {
	dashboard.mutex.Lock()
	defer dashboard.mutex.Unlock()
	dashboard.message(message)
}

func (dashboard *Dashboard) message(message string) {
	now := time.Now()
	formatted := fmt.Sprintf("%s %s", now.Format("15:04:05.000"), message)
	dashboard.messages.PushFront(formatted)
	if dashboard.messages.Len() > 3 {
		dashboard.messages.Remove(dashboard.messages.Back())
	}
}

// Update redraws, at most every drawInterval.
func (dashboard *Dashboard) Update() error {
	dashboard.drawMutex.Lock()
	defer dashboard.drawMutex.Unlock()

	dashboard.mutex.Lock()
	if time.Since(dashboard.drawTime) < dashboard.drawInterval {
		dashboard.mutex.Unlock()
		return nil
	}
	dashboard.drawTime = time.Now()
	lines := dashboard.lines()
	dashboard.mutex.Unlock()

	return dashboard.draw(lines)
}

func drawLines(lines []string) error {
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
	writer := &StringWriter{Line: 0}
	for _, line := range lines {
		if len(line) > 0 && line[0] == '=' {
			writer.WriteLine(line)
		} else {
			writer.IndentLine(line)
		}
	}
	return termbox.Flush()
}

func (dashboard *Dashboard) lines() []string {
	lines := []string{"=== Frame ==="}
	if dashboard.latest == nil {
		lines = append(lines, "(No frames yet)")
	} else {
		for i, pulse := range dashboard.latest.Pulses {
			lines = append(lines, fmt.Sprintf("[%d]: %5d", i+1, pulse))
		}
		if dashboard.latest.Valid {
			lines = append(lines, "Valid")
		} else {
			lines = append(lines, "Invalid")
		}
	}

	if dashboard.stats != nil {
		stats := dashboard.stats()
		lines = append(lines, "=== Decoder ===")
		lines = append(lines, fmt.Sprintf("Edges:%v Frames:%v Overruns:%v Cursor:%v",
			stats.Decoder.Edges, stats.Decoder.Frames, stats.Decoder.Overruns, stats.Cursor))
		lines = append(lines, "=== PWM ===")
		lines = append(lines, fmt.Sprintf("Accepted:%v Rejected:%v Dropped snapshots:%v",
			stats.Accepted, stats.Rejected, stats.Dropped))
		lines = append(lines, fmt.Sprintf("Turn on:%v Turn off:%v Reloads:%v Pending:%v",
			stats.Active.TurnOn, stats.Active.TurnOff, stats.Reloads, stats.Pending))
	}

	lines = append(lines, "=== Messages ===")
	for e := dashboard.messages.Front(); e != nil; e = e.Next() {
		lines = append(lines, e.Value.(string))
	}
	return lines
}
