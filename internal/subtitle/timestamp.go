package subtitle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var timestampRe = regexp.MustCompile(`((?:\d+:)?\d{1,2}:\d{2}[.,]\d{1,3})\s*-->\s*((?:\d+:)?\d{1,2}:\d{2}[.,]\d{1,3})`)

// parseTimestamp accepts HH:MM:SS,mmm, HH:MM:SS.mmm and MM:SS.mmm
func parseTimestamp(ts string) (time.Duration, error) {
	ts = strings.Replace(strings.TrimSpace(ts), ",", ".", 1)
	clock, frac, ok := strings.Cut(ts, ".")
	if !ok {
		return 0, fmt.Errorf("timestamp %q: missing milliseconds", ts)
	}

	parts := strings.Split(clock, ":")
	if len(parts) == 2 {
		parts = append([]string{"0"}, parts...)
	}
	if len(parts) != 3 {
		return 0, fmt.Errorf("timestamp %q: bad clock", ts)
	}

	var fields [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("timestamp %q: %w", ts, err)
		}
		fields[i] = n
	}
	if fields[1] > 59 || fields[2] > 59 {
		return 0, fmt.Errorf("timestamp %q: out of range", ts)
	}

	for len(frac) < 3 {
		frac += "0"
	}
	ms, err := strconv.Atoi(frac[:3])
	if err != nil {
		return 0, fmt.Errorf("timestamp %q: %w", ts, err)
	}

	return time.Duration(fields[0])*time.Hour +
		time.Duration(fields[1])*time.Minute +
		time.Duration(fields[2])*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}

func formatTimestamp(d time.Duration, sep byte) string {
	if d < 0 {
		d = 0
	}
	totalMs := d.Milliseconds()
	h := totalMs / 3600000
	totalMs %= 3600000
	m := totalMs / 60000
	totalMs %= 60000
	s := totalMs / 1000
	ms := totalMs % 1000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms)
}

func parseTimeLine(line string) (start, end time.Duration, ok bool) {
	m := timestampRe.FindStringSubmatch(line)
	if len(m) != 3 {
		return 0, 0, false
	}
	start, err := parseTimestamp(m[1])
	if err != nil {
		return 0, 0, false
	}
	end, err = parseTimestamp(m[2])
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}
