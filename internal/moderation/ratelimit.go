package moderation

import "time"

// Cooldown allows one admitted submission per submitter per window. The window
// is measured in wall-clock seconds since the last admitted submission and is
// evaluated lazily at intake time.
type Cooldown struct {
	Window time.Duration
}

// Check returns 0 when userID may submit at now, or the number of seconds to
// wait otherwise. It never mutates last.
func (c Cooldown) Check(last map[int64]int64, userID int64, now time.Time) int64 {
	window := int64(c.Window / time.Second)
	if window <= 0 {
		return 0
	}
	prev, ok := last[userID]
	if !ok || prev == 0 {
		return 0
	}
	elapsed := now.Unix() - prev
	if elapsed >= window {
		return 0
	}
	return window - elapsed
}
