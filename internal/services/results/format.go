package results

import (
	"fmt"
	"strings"
	"time"
)

// HumanizeDuration renders ms as "1h 2m 3s". With withMillis the seconds keep
// four significant digits, e.g. "2m 3.250s".
func HumanizeDuration(ms int64, withMillis bool) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / int64(time.Hour/time.Millisecond)
	minutes := (ms / int64(time.Minute/time.Millisecond)) % 60

	var b strings.Builder
	if hours > 0 {
		fmt.Fprintf(&b, "%dh ", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dm ", minutes)
	}

	if !withMillis {
		fmt.Fprintf(&b, "%ds", (ms/1000)%60)
		return b.String()
	}

	rest := ms - (hours*3600+minutes*60)*1000
	seconds := strings.TrimSuffix(fmt.Sprintf("%#.4g", float64(rest)/1000), ".")
	b.WriteString(seconds)
	b.WriteString("s")
	return b.String()
}

// ScoreLabel names the severity of a scored answer
func ScoreLabel(points int) string {
	switch {
	case points == 5:
		return "Correct"
	case points == -1:
		return "Minor error"
	case points == -2:
		return "Moderate error"
	case points <= -3:
		return "Severe error"
	default:
		return fmt.Sprintf("%d", points)
	}
}
