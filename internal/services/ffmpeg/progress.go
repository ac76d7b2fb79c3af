package ffmpeg

import (
	"strconv"
	"strings"
	"time"
)

// progressTracker folds -progress key=value lines into updates.
type progressTracker struct {
	duration time.Duration
	outTime  time.Duration
	speed    string
}

func newProgressTracker(duration time.Duration) *progressTracker {
	return &progressTracker{duration: duration}
}

// feed consumes one stdout line. An update is emitted when ffmpeg closes a
// progress block.
func (p *progressTracker) feed(line string) (ProgressUpdate, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return ProgressUpdate{}, false
	}
	value = strings.TrimSpace(value)
	switch key {
	case "out_time_us", "out_time_ms":
		// both keys carry microseconds
		if micros, err := strconv.ParseInt(value, 10, 64); err == nil && micros >= 0 {
			p.outTime = time.Duration(micros) * time.Microsecond
		}
	case "speed":
		p.speed = value
	case "progress":
		return ProgressUpdate{
			Percent: p.percent(),
			OutTime: p.outTime,
			Speed:   p.speed,
			Done:    value == "end",
		}, true
	}
	return ProgressUpdate{}, false
}

func (p *progressTracker) percent() float64 {
	if p.duration <= 0 {
		return 0
	}
	pct := float64(p.outTime) / float64(p.duration) * 100
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}
