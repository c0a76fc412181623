// Package audio provides the audio output sinks.
//
// A sink either pulls PCM from a playback.Renderer on a driver goroutine
// (callback mode) or accepts buffers pushed by the session (push mode).
package audio

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/chipbox/internal/app/playback"
)

// Errors
var (
	ErrCallbackUnsupported = playback.ErrCallbackUnsupported
	ErrNotStarted          = errors.New("sink is not started")
	ErrUnknownDriver       = errors.New("unknown audio driver")
)

// Renderer is the PCM source pulled by callback drivers.
type Renderer = playback.Renderer

// Sink is an audio output.
type Sink interface {
	Start() error
	Stop() error
	Pause() error
	Resume() error
}

// Options configures a sink.
type Options struct {
	SampleRate   int
	BufferFrames int
	WavPath      string // wav driver only
	Realtime     bool   // null driver: pace writes to the sample rate
}

// New creates a sink for the named driver.
func New(driver string, opts Options) (Sink, error) {
	if opts.SampleRate <= 0 {
		return nil, errors.Newf("invalid sample rate %d", opts.SampleRate)
	}
	if opts.BufferFrames <= 0 {
		opts.BufferFrames = opts.SampleRate / 20
	}

	switch driver {
	case "oto":
		return NewOtoSink(opts), nil
	case "beep":
		return NewBeepSink(opts), nil
	case "wav":
		return NewWavSink(opts), nil
	case "null":
		return NewNullSink(opts), nil
	default:
		return nil, errors.Wrapf(ErrUnknownDriver, "driver=%s", driver)
	}
}

// renderBytes fills p with signed 16-bit little-endian stereo PCM from r.
// Frames the renderer does not produce are left silent.
func renderBytes(r Renderer, scratch []int16, p []byte) []int16 {
	samples := (len(p) / 4) * 2
	if cap(scratch) < samples {
		scratch = make([]int16, samples)
	}
	scratch = scratch[:samples]

	n := 0
	if r != nil {
		n = r.Render(scratch)
	}
	clear(scratch[n*2:])

	for i, s := range scratch {
		p[i*2] = byte(s)
		p[i*2+1] = byte(uint16(s) >> 8)
	}
	clear(p[samples*2:])
	return scratch
}

// renderFloats fills out with stereo float samples in [-1, 1) from r.
func renderFloats(r Renderer, scratch []int16, out [][2]float64) []int16 {
	samples := len(out) * 2
	if cap(scratch) < samples {
		scratch = make([]int16, samples)
	}
	scratch = scratch[:samples]

	n := 0
	if r != nil {
		n = r.Render(scratch)
	}
	clear(scratch[n*2:])

	for i := range out {
		out[i][0] = float64(scratch[i*2]) / 32768
		out[i][1] = float64(scratch[i*2+1]) / 32768
	}
	return scratch
}
