// Package event provides the control event records and the queue that carries
// them from producers (keyboard, media-control backends, signals) to the
// playback session.
package event

import "fmt"

// Kind represents a control event kind.
type Kind int

const (
	KindControl      Kind = iota // Param: ControlStart, ControlStop, ControlRestart
	KindPause                    // Param: PauseOn, PauseOff, PauseToggle
	KindFade                     // Param unused
	KindPlaylistNav              // Param: NavNext, NavPrev, NavQuit
	KindSeekRelative             // Param: signed sample offset
	KindSeekAbsolute             // Param: sample position
	KindSeekPercent              // Param: percent of the total play time
	KindVolume                   // Param: 16.16 master volume
	KindVolumeStep               // Param: signed 16.16 master volume delta
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindPause:
		return "pause"
	case KindFade:
		return "fade"
	case KindPlaylistNav:
		return "playlist_nav"
	case KindSeekRelative:
		return "seek_relative"
	case KindSeekAbsolute:
		return "seek_absolute"
	case KindSeekPercent:
		return "seek_percent"
	case KindVolume:
		return "volume"
	case KindVolumeStep:
		return "volume_step"
	default:
		return "unknown"
	}
}

// Control parameters
const (
	ControlStart int32 = iota
	ControlStop
	ControlRestart
)

// Pause parameters
const (
	PauseOn int32 = iota
	PauseOff
	PauseToggle
)

// Playlist navigation parameters
const (
	NavNext int32 = iota
	NavPrev
	NavQuit
)

// Record is a single control event.
type Record struct {
	Kind  Kind
	Param int32
}

// String returns a short description of the record for logging.
func (r Record) String() string {
	return fmt.Sprintf("%s(%d)", r.Kind, r.Param)
}

// Control returns a control record.
func Control(p int32) Record { return Record{Kind: KindControl, Param: p} }

// Pause returns a pause record.
func Pause(p int32) Record { return Record{Kind: KindPause, Param: p} }

// Fade returns a fade-out record.
func Fade() Record { return Record{Kind: KindFade} }

// Nav returns a playlist navigation record.
func Nav(p int32) Record { return Record{Kind: KindPlaylistNav, Param: p} }

// SeekRelative returns a record seeking by delta samples.
func SeekRelative(delta int32) Record { return Record{Kind: KindSeekRelative, Param: delta} }

// SeekAbsolute returns a record seeking to sample pos.
func SeekAbsolute(pos int32) Record { return Record{Kind: KindSeekAbsolute, Param: pos} }

// SeekPercent returns a record seeking to pct percent of the track.
func SeekPercent(pct int32) Record { return Record{Kind: KindSeekPercent, Param: pct} }

// Volume returns a record setting the 16.16 master volume.
func Volume(vol int32) Record { return Record{Kind: KindVolume, Param: vol} }

// VolumeStep returns a record changing the master volume by a 16.16 delta.
func VolumeStep(delta int32) Record { return Record{Kind: KindVolumeStep, Param: delta} }
