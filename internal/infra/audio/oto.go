package audio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ebitengine/oto/v3"
	zlog "github.com/rs/zerolog/log"
)

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

// OtoSink plays through the system audio device using oto. The device pulls
// samples from the renderer through Read.
type OtoSink struct {
	opts     Options
	renderer atomic.Pointer[Renderer] // Atomic for lock-free Read()
	scratch  []int16

	mutex   sync.Mutex // Only for setup/control operations
	player  *oto.Player
	started bool
}

// NewOtoSink creates an oto sink. The device is opened on Start.
func NewOtoSink(opts Options) *OtoSink {
	return &OtoSink{opts: opts}
}

// SetRenderer implements session.CallbackSink.
func (s *OtoSink) SetRenderer(r Renderer) error {
	s.renderer.Store(&r)
	return nil
}

// Read implements io.Reader for the oto player.
func (s *OtoSink) Read(p []byte) (int, error) {
	var r Renderer
	if rp := s.renderer.Load(); rp != nil {
		r = *rp
	}
	s.scratch = renderBytes(r, s.scratch, p)
	return len(p), nil
}

func (s *OtoSink) context() (*oto.Context, error) {
	otoOnce.Do(func() {
		bufferDur := time.Duration(s.opts.BufferFrames) * time.Second / time.Duration(s.opts.SampleRate)
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   s.opts.SampleRate,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   bufferDur,
		})
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoErr
}

// Start implements Sink.
func (s *OtoSink) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.started {
		return nil
	}
	ctx, err := s.context()
	if err != nil {
		return errors.Wrap(err, "failed to open oto context")
	}

	s.player = ctx.NewPlayer(s)
	s.player.Play()
	s.started = true
	zlog.Debug().Msgf("audio: oto started: rate=%d buffer_frames=%d", s.opts.SampleRate, s.opts.BufferFrames)
	return nil
}

// Stop implements Sink.
func (s *OtoSink) Stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	err := s.player.Close()
	s.player = nil
	if err != nil {
		return errors.Wrap(err, "failed to close oto player")
	}
	return nil
}

// Pause implements Sink.
func (s *OtoSink) Pause() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.started {
		return ErrNotStarted
	}
	s.player.Pause()
	return nil
}

// Resume implements Sink.
func (s *OtoSink) Resume() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.started {
		return ErrNotStarted
	}
	s.player.Play()
	return nil
}
