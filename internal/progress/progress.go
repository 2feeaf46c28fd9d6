// Package progress implements the Phase-1 progress reporter (spec.md
// §4.6): a notify-every-N-pages counter that prints a single status
// line using the process's local time.
package progress

import (
	"fmt"
	"io"
	"time"
)

// Reporter prints progress lines and tracks the since-last-notify page
// counter.
type Reporter struct {
	out        io.Writer
	notifyRate int
	quiet      bool
	sampling   bool
	start      time.Time

	notifyCtr int
}

// New returns a Reporter that writes to out every notifyRate pages,
// unless quiet is set. sampling disables percentage/ETA text, which is
// meaningless once pages aren't visited in image order.
func New(out io.Writer, notifyRate int, quiet, sampling bool) *Reporter {
	return &Reporter{out: out, notifyRate: notifyRate, quiet: quiet, sampling: sampling, start: time.Now()}
}

// Tick records one submitted page and, once the notify-rate threshold
// is reached, prints a status line and resets the counter.
func (r *Reporter) Tick(posText string, fractionDone float64) {
	if r.quiet || r.notifyRate <= 0 {
		return
	}

	r.notifyCtr++
	if r.notifyCtr < r.notifyRate {
		return
	}
	r.notifyCtr = 0

	now := time.Now()
	line := fmt.Sprintf("%s %s", now.Format("15:04:05"), posText)

	if !r.sampling {
		pct := fractionDone * 100
		elapsed := now.Sub(r.start)
		var etaText, etaClock string
		if fractionDone > 0 {
			total := time.Duration(float64(elapsed) / fractionDone)
			remaining := total - elapsed
			if remaining < 0 {
				remaining = 0
			}
			etaText = remaining.Round(time.Second).String()
			etaClock = now.Add(remaining).Format("15:04:05")
		} else {
			etaText = "unknown"
			etaClock = "unknown"
		}
		line = fmt.Sprintf("%s (%.2f%%) Done in %s at %s", line, pct, etaText, etaClock)
	}

	fmt.Fprintln(r.out, line)
}
