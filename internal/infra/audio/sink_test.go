package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callbackSink interface {
	Sink
	SetRenderer(r Renderer) error
}

type pushSink interface {
	Sink
	Write(samples []int16) error
	BufferFrames() int
}

// rampRenderer writes frames [i, -i] for i counting up, at most limit frames per call.
type rampRenderer struct {
	next  int16
	limit int
}

func (r *rampRenderer) Render(out []int16) int {
	n := len(out) / 2
	if r.limit > 0 && n > r.limit {
		n = r.limit
	}
	for i := 0; i < n; i++ {
		out[i*2] = r.next
		out[i*2+1] = -r.next
		r.next++
	}
	return n
}

func TestNew(t *testing.T) {
	tests := []struct {
		driver  string
		wantErr bool
	}{
		{driver: "oto"},
		{driver: "beep"},
		{driver: "wav"},
		{driver: "null"},
		{driver: "alsa", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			s, err := New(tt.driver, Options{SampleRate: 44100})
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnknownDriver)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}

	_, err := New("null", Options{})
	assert.Error(t, err)
}

func TestNew_Modes(t *testing.T) {
	for _, driver := range []string{"oto", "beep"} {
		s, err := New(driver, Options{SampleRate: 44100})
		require.NoError(t, err)
		_, ok := s.(callbackSink)
		assert.True(t, ok, driver)
	}

	for _, driver := range []string{"wav", "null"} {
		s, err := New(driver, Options{SampleRate: 44100})
		require.NoError(t, err)
		cs, ok := s.(callbackSink)
		require.True(t, ok)
		assert.ErrorIs(t, cs.SetRenderer(&rampRenderer{}), ErrCallbackUnsupported)
		ps, ok := s.(pushSink)
		require.True(t, ok, driver)
		assert.Equal(t, 2205, ps.BufferFrames())
	}
}

func TestRenderBytes(t *testing.T) {
	r := &rampRenderer{next: 0x0102, limit: 2}
	p := make([]byte, 16) // 4 frames
	for i := range p {
		p[i] = 0xFF
	}

	renderBytes(r, nil, p)
	assert.Equal(t, []byte{
		0x02, 0x01, 0xFE, 0xFE, // 0x0102, -0x0102
		0x03, 0x01, 0xFD, 0xFE, // 0x0103, -0x0103
		0, 0, 0, 0, // not rendered
		0, 0, 0, 0,
	}, p)

	// odd trailing bytes are silenced
	p = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	renderBytes(nil, nil, p)
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, p)
}

func TestRenderFloats(t *testing.T) {
	r := &rampRenderer{next: 16384, limit: 1}
	out := make([][2]float64, 2)
	out[1] = [2]float64{1, 1}

	renderFloats(r, nil, out)
	assert.Equal(t, [2]float64{0.5, -0.5}, out[0])
	assert.Equal(t, [2]float64{0, 0}, out[1])
}

func TestWavSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	s := NewWavSink(Options{SampleRate: 22050, BufferFrames: 64, WavPath: path})

	assert.ErrorIs(t, s.Write([]int16{1, 2}), ErrNotStarted)

	require.NoError(t, s.Start())
	require.NoError(t, s.Write([]int16{1, -1, 2, -2}))
	require.NoError(t, s.Pause())
	require.NoError(t, s.Resume())
	require.NoError(t, s.Write([]int16{32767, -32768}))
	assert.Equal(t, int64(3), s.Frames())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop(), "stop is idempotent")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Format.NumChannels)
	assert.Equal(t, 22050, buf.Format.SampleRate)
	assert.Equal(t, []int{1, -1, 2, -2, 32767, -32768}, buf.Data)
}

func TestWavSink_CreateFailure(t *testing.T) {
	s := NewWavSink(Options{SampleRate: 44100, WavPath: filepath.Join(t.TempDir(), "missing", "out.wav")})
	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create wav file")
}

func TestNullSink(t *testing.T) {
	s := NewNullSink(Options{SampleRate: 44100, BufferFrames: 128})

	assert.ErrorIs(t, s.Write([]int16{0, 0}), ErrNotStarted)
	require.NoError(t, s.Start())
	require.NoError(t, s.Write(make([]int16, 256)))
	require.NoError(t, s.Pause())
	assert.True(t, s.Paused())
	require.NoError(t, s.Resume())
	assert.False(t, s.Paused())
	require.NoError(t, s.Write(make([]int16, 10)))
	assert.Equal(t, int64(133), s.Frames())
	assert.Equal(t, 128, s.BufferFrames())
	require.NoError(t, s.Stop())
}
