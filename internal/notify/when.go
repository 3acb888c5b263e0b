package notify

import (
	"fmt"
	"strings"
	"time"
)

// parseWhen turns the model's free-form "when" argument into a fire
// time. Accepted forms, tried in order:
//   - Go durations: "30m", "2h"
//   - "in N seconds/minutes/hours/days"
//   - RFC 3339 or bare ISO timestamps
//   - "tomorrow", "next week"
//   - clock times: "15:04", "3:04pm" (today, or tomorrow if passed)
func parseWhen(when string, now time.Time) (time.Time, error) {
	when = strings.TrimSpace(when)
	if when == "" {
		return time.Time{}, fmt.Errorf("when is required")
	}

	if dur, err := time.ParseDuration(when); err == nil && dur > 0 {
		return now.Add(dur), nil
	}

	lower := strings.ToLower(when)

	if rest, ok := strings.CutPrefix(lower, "in "); ok {
		if dur, err := parseHumanDuration(rest); err == nil {
			return now.Add(dur), nil
		}
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, when); err == nil {
			return t, nil
		}
	}

	switch {
	case strings.Contains(lower, "tomorrow"):
		return now.Add(24 * time.Hour), nil
	case strings.Contains(lower, "next week"):
		return now.Add(7 * 24 * time.Hour), nil
	}

	for _, layout := range []string{"15:04", "3:04pm", "3:04 pm", "3pm"} {
		if t, err := time.Parse(layout, lower); err == nil {
			t = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
			if t.Before(now) {
				t = t.Add(24 * time.Hour)
			}
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("could not parse time: %s", when)
}

func parseHumanDuration(s string) (time.Duration, error) {
	parts := strings.Fields(strings.TrimSpace(s))
	if len(parts) < 2 {
		return 0, fmt.Errorf("expected '<number> <unit>'")
	}

	var num int
	if _, err := fmt.Sscanf(parts[0], "%d", &num); err != nil {
		return 0, err
	}

	unit := strings.ToLower(parts[1])
	switch {
	case strings.HasPrefix(unit, "second"):
		return time.Duration(num) * time.Second, nil
	case strings.HasPrefix(unit, "minute"):
		return time.Duration(num) * time.Minute, nil
	case strings.HasPrefix(unit, "hour"):
		return time.Duration(num) * time.Hour, nil
	case strings.HasPrefix(unit, "day"):
		return time.Duration(num) * 24 * time.Hour, nil
	case strings.HasPrefix(unit, "week"):
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown unit: %s", unit)
}
