package playback

import "github.com/osa030/chipbox/internal/domain/track"

// PosUnit selects the unit of a playback position.
type PosUnit int

const (
	PosSample     PosUnit = iota // Output samples
	PosTick                      // Engine ticks (file time base)
	PosFileOffset                // Byte offset in the source file
)

// String returns the string representation of the position unit.
func (u PosUnit) String() string {
	switch u {
	case PosSample:
		return "sample"
	case PosTick:
		return "tick"
	case PosFileOffset:
		return "file_offset"
	default:
		return "unknown"
	}
}

// Frame is one stereo sample frame of roughly 24-bit signed PCM.
type Frame [2]int32

// EngineEventType represents a decode engine notification.
type EngineEventType int

const (
	EngineStart EngineEventType = iota
	EngineStop
	EngineLoop
	EngineEnd
)

// String returns the string representation of the engine event type.
func (e EngineEventType) String() string {
	switch e {
	case EngineStart:
		return "start"
	case EngineStop:
		return "stop"
	case EngineLoop:
		return "loop"
	case EngineEnd:
		return "end"
	default:
		return "unknown"
	}
}

// EngineEvent is delivered by a decode engine from inside Start, Stop,
// Render or Seek.
type EngineEvent struct {
	Type EngineEventType
	Loop uint32 // Index of the loop just completed (EngineLoop only)
}

// Engine is a decode engine with one track loaded.
//
// Engines are not safe for concurrent use; the controller serializes all
// calls. Event handlers are invoked synchronously from the engine method that
// caused them, and the engine position must already reflect the event.
// After EngineEnd, Render keeps producing silent frames and advancing the
// sample position.
type Engine interface {
	Start() error
	Stop() error
	Reset() error
	Render(frames []Frame) (int, error)
	Seek(unit PosUnit, pos uint32) error
	Position(unit PosUnit) uint32
	TotalPlayTicks(loops uint32) uint32
	LoopTicks() uint32
	CurrentLoop() uint32
	TickRate() uint32
	SetSampleRate(rate uint32)
	SetSpeed(speed float64)
	SetEventHandler(fn func(EngineEvent))
	Info() track.Info
	Close() error
}

// Loader opens sources into decode engines.
type Loader interface {
	Load(source string) (Engine, error)
}
