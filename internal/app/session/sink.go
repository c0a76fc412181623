package session

import "github.com/osa030/chipbox/internal/app/playback"

// Sink is an audio output driven by the session.
type Sink interface {
	Start() error
	Stop() error
	Pause() error
	Resume() error
}

// CallbackSink pulls samples from a renderer on its own goroutine. A sink
// that returns playback.ErrCallbackUnsupported is used in push mode.
type CallbackSink interface {
	Sink
	SetRenderer(r playback.Renderer) error
}

// PushSink accepts buffers written by the control loop.
type PushSink interface {
	Sink
	Write(samples []int16) error
	BufferFrames() int
}
