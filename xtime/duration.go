package xtime

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	durationPartRx = regexp.MustCompile(`(\d*\.\d+|\d+)[^\d.]*`)

	// Units not supported by time.ParseDuration, in hours.
	extraUnits = []struct {
		unit  string
		hours time.Duration
	}{
		{"d", 24}, {"D", 24},
		{"w", 7 * 24}, {"W", 7 * 24},
		{"M", 30 * 24},
		{"y", 365 * 24}, {"Y", 365 * 24},
	}
)

// ParseDuration parses a duration string, such as "90s", "1h30m" or "2d".
// Besides the units supported by time.ParseDuration, it accepts "d"="D",
// "w"="W", "M" (30 days) and "y"="Y" (365 days).
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}

	parts := durationPartRx.FindAllString(s, -1)
	if len(parts) == 0 || strings.Join(parts, "") != s {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	var sum time.Duration
	for _, part := range parts {
		var mult time.Duration = 1
		for _, u := range extraUnits {
			if strings.HasSuffix(part, u.unit) {
				part = strings.TrimSuffix(part, u.unit) + "h"
				mult = u.hours
				break
			}
		}

		dur, err := time.ParseDuration(part)
		if err != nil {
			//nolint:wrapcheck // The stdlib error is descriptive enough.
			return 0, err
		}
		sum += dur * mult
	}

	if neg {
		sum = -sum
	}

	return sum, nil
}

// FormatDuration formats a duration into a string that ParseDuration accepts,
// using days and weeks for long durations, e.g. "1w2d3h" or "1m30s".
// Components smaller than round are omitted.
func FormatDuration(d time.Duration, round time.Duration) string {
	if round > 0 {
		d = d.Round(round)
	}
	if d == 0 {
		return "0s"
	}

	neg := d < 0
	if neg {
		d = -d
	}

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}

	units := []struct {
		suffix string
		size   time.Duration
	}{
		{"w", 7 * 24 * time.Hour},
		{"d", 24 * time.Hour},
		{"h", time.Hour},
		{"m", time.Minute},
		{"s", time.Second},
		{"ms", time.Millisecond},
	}
	for _, u := range units {
		if d < u.size || u.size < round {
			continue
		}
		fmt.Fprintf(&sb, "%d%s", d/u.size, u.suffix)
		d %= u.size
	}
	if d > 0 && round < time.Millisecond {
		sb.WriteString(d.String())
	}

	return sb.String()
}
