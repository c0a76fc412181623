package playback

import "github.com/cockroachdb/errors"

// ErrCallbackUnsupported is returned by an audio sink that cannot pull from a
// Renderer. The caller falls back to pushing buffers.
var ErrCallbackUnsupported = errors.New("sink does not support callback rendering")

// Renderer produces interleaved 16-bit stereo samples and returns the number
// of frames written.
type Renderer interface {
	Render(out []int16) int
}

var _ Renderer = (*Controller)(nil)
