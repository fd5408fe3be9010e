package hive

import (
	"regexp"
	"strings"

	"github.com/thammarongsak/waibon-safe-room/internal/bootstrap"
)

// Roster names in speaking order. The first one leads every run.
const (
	AgentWaibonOS = "WaibonOS"
	AgentWaibeAI  = "WaibeAI"
	AgentZetaAI   = "ZetaAI"
)

// Roster is the fixed cyclic speaking order.
var Roster = []string{AgentWaibonOS, AgentWaibeAI, AgentZetaAI}

// MarkerDone ends a run when used as the next speaker.
const MarkerDone = "done"

var nextMarkerRe = regexp.MustCompile(`(?is)\[NEXT\]\s*(.*?)\s*\[/NEXT\]`)

// Decision is what a turn's output says about who speaks next.
type Decision struct {
	Text      string // output with every control marker removed
	Next      string // roster name; empty when Terminate
	Terminate bool
	Explicit  bool // a valid marker was found
}

// ParseDecision reads the last [NEXT]…[/NEXT] marker of a turn by current.
// An absent or unrecognized marker advances to the next roster member.
func ParseDecision(output, current string) Decision {
	d := Decision{Text: strings.TrimSpace(nextMarkerRe.ReplaceAllString(output, ""))}

	matches := nextMarkerRe.FindAllStringSubmatch(output, -1)
	if len(matches) > 0 {
		value := strings.TrimSpace(matches[len(matches)-1][1])
		if strings.EqualFold(value, MarkerDone) {
			d.Terminate = true
			d.Explicit = true
			return d
		}
		if name, ok := Canonical(value); ok {
			d.Next = name
			d.Explicit = true
			return d
		}
	}
	d.Next = NextInCycle(current)
	return d
}

// Canonical maps a roster name or alias (case-insensitive) to its roster name.
func Canonical(name string) (string, bool) {
	name = strings.Trim(strings.TrimSpace(name), "{}")
	for _, r := range Roster {
		if strings.EqualFold(r, name) {
			return r, true
		}
	}
	if seed, ok := bootstrap.Defaults().HivePersona(name); ok {
		for _, r := range Roster {
			if r == seed.Name {
				return r, true
			}
		}
	}
	return "", false
}

// NextInCycle returns the roster member after current, wrapping around.
// Unknown names restart at the leader.
func NextInCycle(current string) string {
	for i, r := range Roster {
		if r == current {
			return Roster[(i+1)%len(Roster)]
		}
	}
	return Roster[0]
}

// FirstLine returns the first non-empty line of s, trimmed.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
