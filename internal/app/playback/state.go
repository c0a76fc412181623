// Package playback provides the playback controller that turns decode engine
// output into volume-scaled, faded 16-bit stereo PCM.
package playback

import "strings"

// State represents the playback state as a bit set. The zero value is idle.
type State uint8

const (
	StatePlaying  State = 1 << iota // Track is started
	StatePaused                     // Rendering silence until resumed
	StateFading                     // Fade marker is set (derived)
	StateEnded                      // Fade and end silence elapsed, end was notified
	StateFinished                   // Decode engine reached its end, or playback was stopped
)

// StateIdle is the state with no flags set.
const StateIdle State = 0

// Has reports whether all flags in f are set.
func (s State) Has(f State) bool {
	return s&f == f
}

// String returns the string representation of the state.
func (s State) String() string {
	if s == StateIdle {
		return "idle"
	}
	var parts []string
	if s.Has(StatePlaying) {
		parts = append(parts, "playing")
	}
	if s.Has(StatePaused) {
		parts = append(parts, "paused")
	}
	if s.Has(StateFading) {
		parts = append(parts, "fading")
	}
	if s.Has(StateEnded) {
		parts = append(parts, "ended")
	}
	if s.Has(StateFinished) {
		parts = append(parts, "finished")
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}
