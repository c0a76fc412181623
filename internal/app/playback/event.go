package playback

// EventType represents a playback event type.
type EventType int

const (
	EventEngineStarted EventType = iota // Decode engine started
	EventEngineStopped                  // Decode engine stopped
	EventLoop                           // Decode engine completed a loop
	EventTrackEnded                     // Fade and end silence elapsed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventEngineStarted:
		return "engine_started"
	case EventEngineStopped:
		return "engine_stopped"
	case EventLoop:
		return "loop"
	case EventTrackEnded:
		return "track_ended"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type  EventType
	Loop  uint32 // Completed loop count (EventLoop only)
	State State  // Playback state when the event was emitted
}
