// Package state provides session state management.
package state

import "strings"

// Phase represents the session lifecycle phase.
type Phase int

const (
	PhaseWaiting    Phase = iota // Created, Run not called yet
	PhaseActive                  // Playing through the playlist
	PhaseTerminated              // Playlist finished or quit
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseActive:
		return "active"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// PlayFlags is the session play state as a bit set.
type PlayFlags uint8

const (
	FlagPlay  PlayFlags = 1 << iota // A track is started
	FlagPause                       // Playback is paused
	FlagEnd                         // Leave the current track
)

// Has reports whether all flags in f are set.
func (f PlayFlags) Has(flag PlayFlags) bool {
	return f&flag == flag
}

// String returns the string representation of the flags.
func (f PlayFlags) String() string {
	if f == 0 {
		return "stopped"
	}
	var parts []string
	if f.Has(FlagPlay) {
		parts = append(parts, "play")
	}
	if f.Has(FlagPause) {
		parts = append(parts, "pause")
	}
	if f.Has(FlagEnd) {
		parts = append(parts, "end")
	}
	return strings.Join(parts, "|")
}

// Nav is the directive applied when the current track is left.
type Nav int

const (
	NavNone Nav = iota // Advance to the next track
	NavNext            // Skip to the next track
	NavPrev            // Go back one track
	NavQuit            // End the session
)

// String returns the string representation of the directive.
func (n Nav) String() string {
	switch n {
	case NavNone:
		return "none"
	case NavNext:
		return "next"
	case NavPrev:
		return "prev"
	case NavQuit:
		return "quit"
	default:
		return "unknown"
	}
}
