package audio

import (
	"sync"
	"time"
)

// NullSink discards all samples.
type NullSink struct {
	opts Options

	mu      sync.Mutex
	frames  int64
	paused  bool
	started bool
}

// NewNullSink creates a sink that discards its input.
func NewNullSink(opts Options) *NullSink {
	return &NullSink{opts: opts}
}

// SetRenderer implements session.CallbackSink.
func (s *NullSink) SetRenderer(Renderer) error {
	return ErrCallbackUnsupported
}

// Start implements Sink.
func (s *NullSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

// Stop implements Sink.
func (s *NullSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// Pause implements Sink.
func (s *NullSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	return nil
}

// Resume implements Sink.
func (s *NullSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	return nil
}

// Write implements session.PushSink. With Realtime set it blocks for the duration
// of the written audio.
func (s *NullSink) Write(samples []int16) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	frames := len(samples) / 2
	s.frames += int64(frames)
	s.mu.Unlock()

	if s.opts.Realtime && frames > 0 {
		time.Sleep(time.Duration(frames) * time.Second / time.Duration(s.opts.SampleRate))
	}
	return nil
}

// BufferFrames implements session.PushSink.
func (s *NullSink) BufferFrames() int {
	return s.opts.BufferFrames
}

// Frames returns the number of frames written so far.
func (s *NullSink) Frames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Paused reports whether the sink is paused.
func (s *NullSink) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}
