package audio

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	zlog "github.com/rs/zerolog/log"
)

// BeepSink plays through the beep speaker. The speaker goroutine streams
// from the renderer.
type BeepSink struct {
	opts Options

	mu       sync.Mutex
	renderer Renderer
	ctrl     *beep.Ctrl
	scratch  []int16
	started  bool
	inited   bool
}

// NewBeepSink creates a beep sink. The speaker is initialized on Start.
func NewBeepSink(opts Options) *BeepSink {
	return &BeepSink{opts: opts}
}

// SetRenderer implements session.CallbackSink.
func (s *BeepSink) SetRenderer(r Renderer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderer = r
	return nil
}

// stream implements beep.Streamer. It is called with the speaker lock held.
func (s *BeepSink) stream(samples [][2]float64) (int, bool) {
	s.mu.Lock()
	r := s.renderer
	s.mu.Unlock()

	s.scratch = renderFloats(r, s.scratch, samples)
	return len(samples), true
}

// Start implements Sink.
func (s *BeepSink) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	if !s.inited {
		sr := beep.SampleRate(s.opts.SampleRate)
		if err := speaker.Init(sr, s.opts.BufferFrames); err != nil {
			s.mu.Unlock()
			return errors.Wrap(err, "failed to initialize speaker")
		}
		s.inited = true
	}
	s.ctrl = &beep.Ctrl{Streamer: beep.StreamerFunc(s.stream)}
	s.started = true
	ctrl := s.ctrl
	s.mu.Unlock()

	// speaker calls stream with its own lock held, so s.mu must not be held here
	speaker.Play(ctrl)
	zlog.Debug().Msgf("audio: beep started: rate=%d buffer_frames=%d", s.opts.SampleRate, s.opts.BufferFrames)
	return nil
}

// Stop implements Sink.
func (s *BeepSink) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	speaker.Clear()
	return nil
}

// Pause implements Sink.
func (s *BeepSink) Pause() error {
	return s.setPaused(true)
}

// Resume implements Sink.
func (s *BeepSink) Resume() error {
	return s.setPaused(false)
}

func (s *BeepSink) setPaused(paused bool) error {
	s.mu.Lock()
	started, ctrl := s.started, s.ctrl
	s.mu.Unlock()

	if !started {
		return ErrNotStarted
	}
	speaker.Lock()
	ctrl.Paused = paused
	speaker.Unlock()
	return nil
}
