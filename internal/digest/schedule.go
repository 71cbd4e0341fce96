package digest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	reHHMM     = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)
)

// ParseSchedule accepts a standard cron expression ("0 9 * * *", "@daily"),
// or a fixed interval given as a Go duration ("6h") or HH:MM ("02:30").
// The "every:" prefix forces interval parsing.
func ParseSchedule(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("schedule required")
	}
	if rest, ok := cutPrefixFold(s, "every:"); ok {
		d, err := parseInterval(rest)
		if err != nil {
			return nil, err
		}
		return cron.Every(d), nil
	}
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		sched, err := cronParser.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid cron %q: %w", s, err)
		}
		return sched, nil
	}
	d, err := parseInterval(s)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q (use cron like '0 9 * * *', HH:MM like '02:30', or a duration like '6h')", raw)
	}
	return cron.Every(d), nil
}

func parseInterval(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return 0, fmt.Errorf("invalid interval %q", v)
		}
	}
	// cron.Every rounds down to whole seconds.
	if d < time.Minute {
		return 0, fmt.Errorf("interval %q is shorter than a minute", v)
	}
	return d, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}
