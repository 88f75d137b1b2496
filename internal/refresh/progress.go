package refresh

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/kitkwok/tightzone/internal/contracts"
)

// Event is one structured line on the gathering step's stdout
type Event struct {
	Type    string `json:"type"` // progress, found
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
	Count   int    `json:"count,omitempty"`
}

const (
	EventProgress = "progress"
	EventFound    = "found"
)

// ProgressEvent reports current of total
func ProgressEvent(current, total int) Event {
	return Event{Type: EventProgress, Current: current, Total: total}
}

// FoundEvent reports the final candidate count
func FoundEvent(count int) Event {
	return Event{Type: EventFound, Count: count}
}

// Textual markers for gathering steps that do not speak JSON
var (
	fractionPattern = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)
	foundPattern    = regexp.MustCompile(`(?i)found\s+(\d+)`)
)

// applyLine folds one output line into p. It reports whether p changed.
// Unrecognized or malformed lines leave p untouched.
func applyLine(p *contracts.Progress, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if strings.HasPrefix(line, "{") {
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return false
		}
		return applyEvent(p, ev)
	}

	if m := foundPattern.FindStringSubmatch(line); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return false
		}
		return applyEvent(p, FoundEvent(n))
	}

	if m := fractionPattern.FindStringSubmatch(line); m != nil {
		current, err1 := strconv.Atoi(m[1])
		total, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			return false
		}
		return applyEvent(p, ProgressEvent(current, total))
	}

	return false
}

func applyEvent(p *contracts.Progress, ev Event) bool {
	switch ev.Type {
	case EventProgress:
		if ev.Total <= 0 || ev.Current < 0 {
			return false
		}
		p.Current = ev.Current
		p.Total = ev.Total
		p.Recalculate()
		return true
	case EventFound:
		if ev.Count < 0 {
			return false
		}
		p.Found = ev.Count
		return true
	default:
		return false
	}
}
