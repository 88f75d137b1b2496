package analyzer

import "github.com/kitkwok/tightzone/internal/contracts"

// DefaultSegments is the number of windows the recent history is cut into
const DefaultSegments = 4

// minBarsPerSegment is the history depth required per window before any
// zone is reported
const minBarsPerSegment = 5

type window struct {
	start, end int
	high, low  float64
}

func (w window) spread() float64 {
	return w.high - w.low
}

// IdentifyZones splits the most recent history into k equal windows and keeps
// those whose closing range narrows relative to the last kept window.
// Flat and widening windows are skipped, the scan does not stop at them.
// Short histories yield no zones.
func IdentifyZones(bars []contracts.PriceBar, k int) []contracts.ContractionZone {
	if k <= 0 {
		k = DefaultSegments
	}

	n := len(bars)
	if n < k*minBarsPerSegment {
		return []contracts.ContractionZone{}
	}

	zones := make([]contracts.ContractionZone, 0, k)
	var prevRange float64
	accepted := false

	for _, w := range splitWindows(bars, k) {
		r := w.spread()
		if r <= 0 {
			continue
		}
		if accepted && r >= prevRange {
			continue
		}
		zones = append(zones, contracts.ContractionZone{
			Start: w.start,
			End:   w.end,
			High:  w.high,
			Low:   w.low,
		})
		prevRange = r
		accepted = true
	}

	return zones
}

// splitWindows cuts the last k*floor(n/k) bars into k windows, oldest first
func splitWindows(bars []contracts.PriceBar, k int) []window {
	n := len(bars)
	width := n / k
	if width < 1 {
		width = 1
	}
	offset := n - k*width
	if offset < 0 {
		offset = 0
	}

	windows := make([]window, 0, k)
	for i := 0; i < k; i++ {
		start := offset + i*width
		end := start + width
		if end > n {
			end = n
		}
		if end-start < 2 {
			continue
		}

		high, low := bars[start].Close, bars[start].Close
		for _, bar := range bars[start+1 : end] {
			if bar.Close > high {
				high = bar.Close
			}
			if bar.Close < low {
				low = bar.Close
			}
		}
		windows = append(windows, window{start: start, end: end - 1, high: high, low: low})
	}
	return windows
}
