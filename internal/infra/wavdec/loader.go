package wavdec

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/chipbox/internal/app/playback"
	"github.com/osa030/chipbox/internal/domain/track"
)

var ErrInvalidFile = errors.New("not a valid PCM wav file")

// Loader opens WAV files into decode engines.
type Loader struct{}

// NewLoader creates a WAV loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load implements playback.Loader.
func (l *Loader) Load(path string) (playback.Engine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open wav file")
	}
	defer f.Close()

	e, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}
	zlog.Debug().Msgf("wavdec: loaded: path=%s rate=%d frames=%d loop=%d..%d",
		path, e.srcRate, len(e.data), e.loopStart, e.loopEnd)
	return e, nil
}

// Decode reads a whole WAV stream into an engine.
func Decode(r io.ReadSeeker) (*Engine, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidFile
	}
	dec.ReadMetadata()
	md := dec.Metadata

	// metadata chunks may follow the data chunk, so decode from a fresh start
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "failed to rewind")
	}
	dec = wav.NewDecoder(r)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read pcm data")
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 || buf.Format.SampleRate <= 0 {
		return nil, ErrInvalidFile
	}

	frames, err := toFrames(buf)
	if err != nil {
		return nil, err
	}

	info, loopStart, loopEnd := parseMetadata(md, uint32(len(frames)))
	info.Format = fmt.Sprintf("WAV PCM%d", buf.SourceBitDepth)
	return newEngine(frames, uint32(buf.Format.SampleRate), loopStart, loopEnd, info), nil
}

// toFrames converts interleaved samples to stereo frames of roughly 24 bits.
// Mono is duplicated and channels past the second are dropped.
func toFrames(buf *goaudio.IntBuffer) ([]playback.Frame, error) {
	var conv func(int) int32
	switch buf.SourceBitDepth {
	case 8:
		conv = func(v int) int32 { return int32(v-128) << 16 }
	case 16:
		conv = func(v int) int32 { return int32(v) << 8 }
	case 24:
		conv = func(v int) int32 { return int32(v) }
	case 32:
		conv = func(v int) int32 { return int32(v >> 8) }
	default:
		return nil, errors.Wrapf(ErrInvalidFile, "unsupported bit depth %d", buf.SourceBitDepth)
	}

	ch := buf.Format.NumChannels
	n := len(buf.Data) / ch
	frames := make([]playback.Frame, n)
	for i := 0; i < n; i++ {
		l := conv(buf.Data[i*ch])
		r := l
		if ch > 1 {
			r = conv(buf.Data[i*ch+1])
		}
		frames[i] = playback.Frame{l, r}
	}
	return frames, nil
}

// parseMetadata extracts tags and the first sampler loop. The smpl loop end
// is inclusive. A file with neither a loop nor a title is treated as a raw
// capture.
func parseMetadata(md *wav.Metadata, frames uint32) (info track.Info, loopStart, loopEnd uint32) {
	if md == nil {
		info.RawCapture = true
		return info, 0, 0
	}

	info.Title = md.Title
	info.Artist = md.Artist
	info.Album = md.Product
	info.Date = md.CreationDate
	info.System = md.Software

	if md.SamplerInfo != nil && len(md.SamplerInfo.Loops) > 0 {
		lp := md.SamplerInfo.Loops[0]
		if lp != nil && lp.End >= lp.Start && lp.End < frames {
			loopStart, loopEnd = lp.Start, lp.End+1
		}
	}

	info.RawCapture = loopEnd == 0 && info.Title == ""
	return info, loopStart, loopEnd
}
