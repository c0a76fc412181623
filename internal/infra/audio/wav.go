package audio

import (
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	zlog "github.com/rs/zerolog/log"
)

// WavSink writes the rendered output to a 16-bit stereo WAV file.
type WavSink struct {
	opts Options

	mu      sync.Mutex
	file    *os.File
	enc     *wav.Encoder
	buf     *goaudio.IntBuffer
	frames  int64
	started bool
}

// NewWavSink creates a WAV file sink. The file is created on Start.
func NewWavSink(opts Options) *WavSink {
	return &WavSink{opts: opts}
}

// SetRenderer implements session.CallbackSink. The file writer is driven by the
// session instead.
func (s *WavSink) SetRenderer(Renderer) error {
	return ErrCallbackUnsupported
}

// Start implements Sink.
func (s *WavSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	f, err := os.Create(s.opts.WavPath)
	if err != nil {
		return errors.Wrap(err, "failed to create wav file")
	}

	s.file = f
	s.enc = wav.NewEncoder(f, s.opts.SampleRate, 16, 2, 1)
	s.buf = &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: s.opts.SampleRate},
		SourceBitDepth: 16,
	}
	s.frames = 0
	s.started = true
	zlog.Info().Msgf("audio: writing wav: path=%s rate=%d", s.opts.WavPath, s.opts.SampleRate)
	return nil
}

// Write implements session.PushSink.
func (s *WavSink) Write(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotStarted
	}
	if cap(s.buf.Data) < len(samples) {
		s.buf.Data = make([]int, len(samples))
	}
	s.buf.Data = s.buf.Data[:len(samples)]
	for i, v := range samples {
		s.buf.Data[i] = int(v)
	}
	if err := s.enc.Write(s.buf); err != nil {
		return errors.Wrap(err, "failed to write wav samples")
	}
	s.frames += int64(len(samples) / 2)
	return nil
}

// BufferFrames implements session.PushSink.
func (s *WavSink) BufferFrames() int {
	return s.opts.BufferFrames
}

// Frames returns the number of frames written so far.
func (s *WavSink) Frames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Stop implements Sink. It finalizes the WAV header and closes the file.
func (s *WavSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	encErr := s.enc.Close()
	fileErr := s.file.Close()
	if encErr != nil {
		return errors.Wrap(encErr, "failed to finalize wav file")
	}
	if fileErr != nil {
		return errors.Wrap(fileErr, "failed to close wav file")
	}
	zlog.Info().Msgf("audio: wav written: path=%s frames=%d", s.opts.WavPath, s.frames)
	return nil
}

// Pause implements Sink. Nothing is written while the session is paused.
func (s *WavSink) Pause() error { return nil }

// Resume implements Sink.
func (s *WavSink) Resume() error { return nil }
