package feed

import (
	"math"
	"time"
)

// PlaceholderChange24h returns a display-only 24h change in roughly [-10, 10].
//
// The value is derived from the calendar date and the symbol's character codes,
// so it is stable for a symbol over one day. It is not a market statistic and
// must not be used for anything but presentation; no historical price source
// is consulted.
func PlaceholderChange24h(symbol string, at time.Time) float64 {
	at = at.UTC()
	sum := 0
	for _, c := range symbol {
		sum += int(c)
	}
	seed := ((at.Day() + int(at.Month())) * sum) % 100
	change := float64(seed)/100*20 - 10
	return math.Round(change*100) / 100
}
