package market

import (
	"fmt"
	"strings"
	"time"
)

// Window is one fixed-length trading interval. Start is always aligned
// to a multiple of Length.
type Window struct {
	Start  time.Time
	Length time.Duration
}

// CurrentWindow returns the window containing now.
func CurrentWindow(now time.Time, length time.Duration) Window {
	secs := int64(length / time.Second)
	start := now.Unix() - now.Unix()%secs
	return Window{Start: time.Unix(start, 0).UTC(), Length: length}
}

func (w Window) End() time.Time {
	return w.Start.Add(w.Length)
}

func (w Window) Next() Window {
	return Window{Start: w.End(), Length: w.Length}
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End())
}

// Remaining is the time until the window closes; negative once expired.
func (w Window) Remaining(now time.Time) time.Duration {
	return w.End().Sub(now)
}

func (w Window) Elapsed(now time.Time) time.Duration {
	return now.Sub(w.Start)
}

// Slug is the deterministic market identifier for an asset in this
// window, e.g. "btc-updown-900-1735689600".
func (w Window) Slug(asset string) string {
	return fmt.Sprintf("%s-updown-%d-%d", strings.ToLower(asset), int64(w.Length/time.Second), w.Start.Unix())
}
