package mediactrl

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/chipbox/internal/app/event"
	"github.com/osa030/chipbox/internal/app/notification"
	"github.com/osa030/chipbox/internal/app/session"
	"github.com/osa030/chipbox/internal/app/session/state"
	"github.com/osa030/chipbox/internal/domain/track"
	"github.com/osa030/chipbox/internal/infra/config"
)

type fakeHost struct {
	mu        sync.Mutex
	pushed    []event.Record
	observers map[notification.Handle]notification.Observer
	np        session.NowPlaying
	next      int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		observers: make(map[notification.Handle]notification.Observer),
		np:        session.NowPlaying{Volume: 1.0},
	}
}

func (h *fakeHost) Push(r event.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushed = append(h.pushed, r)
}

func (h *fakeHost) Subscribe(o notification.Observer) notification.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := notification.Handle(strings.Repeat("h", h.next))
	h.observers[id] = o
	return id
}

func (h *fakeHost) Unsubscribe(id notification.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.observers, id)
}

func (h *fakeHost) NowPlaying() session.NowPlaying {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.np
}

func (h *fakeHost) SampleRate() uint32 { return 1000 }

func (h *fakeHost) signal(mask notification.Mask) {
	h.mu.Lock()
	obs := make([]notification.Observer, 0, len(h.observers))
	for _, o := range h.observers {
		obs = append(obs, o)
	}
	h.mu.Unlock()
	for _, o := range obs {
		o.OnSignal(mask)
	}
}

func (h *fakeHost) records() []event.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event.Record(nil), h.pushed...)
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := zlog.Logger
	zlog.Logger = zerolog.New(&buf)
	t.Cleanup(func() { zlog.Logger = old })
	return &buf
}

func TestRegistered(t *testing.T) {
	assert.Equal(t, []string{"keyboard", "log", "none"}, Registered())
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mc      config.MediaControlConfig
		want    string
		wantErr bool
	}{
		{name: "keyboard", mc: config.MediaControlConfig{Type: "keyboard"}, want: "keyboard"},
		{name: "log", mc: config.MediaControlConfig{Type: "log", Settings: map[string]any{"show_position": true}}, want: "log"},
		{name: "none", mc: config.MediaControlConfig{Type: "none"}, want: "none"},
		{name: "unknown", mc: config.MediaControlConfig{Type: "mpris"}, wantErr: true},
		{
			name:    "invalid settings",
			mc:      config.MediaControlConfig{Type: "keyboard", Settings: map[string]any{"volume_step": 5.0}},
			wantErr: true,
		},
		{
			name:    "wrong setting type",
			mc:      config.MediaControlConfig{Type: "keyboard", Settings: map[string]any{"seek_step_ms": "soon"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.mc)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Name())
		})
	}

	_, err := New(config.MediaControlConfig{Type: "mpris"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestNewFromConfig(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.MediaControls = []config.MediaControlConfig{{Type: "log"}, {Type: "none"}}

	backends, err := NewFromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, backends, 2)
	assert.Equal(t, "log", backends[0].Name())
	assert.Equal(t, "none", backends[1].Name())

	cfg.MediaControls = append(cfg.MediaControls, config.MediaControlConfig{Type: "bogus"})
	_, err = NewFromConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 2")
}

func TestKeyboardSettings(t *testing.T) {
	k, err := NewKeyboard(map[string]any{"seek_step_ms": 1000})
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), k.config.SeekStepMs)
	assert.Equal(t, uint32(60000), k.config.LongSeekStepMs)
	assert.Equal(t, 0.1, k.config.VolumeStep)
}

func TestReadKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []KeyPress
	}{
		{name: "runes", input: "qN5", want: []KeyPress{{Key: KeyRune, Rune: 'q'}, {Key: KeyRune, Rune: 'N'}, {Key: KeyRune, Rune: '5'}}},
		{name: "arrows", input: "\x1b[D\x1b[C", want: []KeyPress{{Key: KeyLeft}, {Key: KeyRight}}},
		{name: "ctrl arrows", input: "\x1b[1;5D\x1b[1;5C", want: []KeyPress{{Key: KeyCtrlLeft}, {Key: KeyCtrlRight}}},
		{name: "page keys", input: "\x1b[5~\x1b[6~", want: []KeyPress{{Key: KeyPgUp}, {Key: KeyPgDn}}},
		{name: "bare esc", input: "\x1b", want: []KeyPress{{Key: KeyEsc}}},
		{name: "esc then rune", input: "\x1bq", want: []KeyPress{{Key: KeyEsc}, {Key: KeyRune, Rune: 'q'}}},
		{name: "ctrl c", input: "\x03", want: []KeyPress{{Key: KeyCtrlC}}},
		{name: "unknown sequence", input: "\x1b[A", want: []KeyPress{{Key: KeyNone}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := bufio.NewReader(strings.NewReader(tt.input))
			var got []KeyPress
			for {
				kp, err := readKey(br)
				if err != nil {
					break
				}
				got = append(got, kp)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyboardTranslate(t *testing.T) {
	k, err := NewKeyboard(nil)
	require.NoError(t, err)
	host := newFakeHost()

	tests := []struct {
		kp   KeyPress
		want event.Record
		ok   bool
	}{
		{kp: KeyPress{Key: KeyRune, Rune: 'Q'}, want: event.Nav(event.NavQuit), ok: true},
		{kp: KeyPress{Key: KeyEsc}, want: event.Nav(event.NavQuit), ok: true},
		{kp: KeyPress{Key: KeyRune, Rune: ' '}, want: event.Pause(event.PauseToggle), ok: true},
		{kp: KeyPress{Key: KeyRune, Rune: 'p'}, want: event.Pause(event.PauseToggle), ok: true},
		{kp: KeyPress{Key: KeyRune, Rune: 'f'}, want: event.Fade(), ok: true},
		{kp: KeyPress{Key: KeyRune, Rune: 'R'}, want: event.Control(event.ControlRestart), ok: true},
		{kp: KeyPress{Key: KeyLeft}, want: event.SeekRelative(-5000), ok: true},
		{kp: KeyPress{Key: KeyRight}, want: event.SeekRelative(5000), ok: true},
		{kp: KeyPress{Key: KeyCtrlLeft}, want: event.SeekRelative(-60000), ok: true},
		{kp: KeyPress{Key: KeyCtrlRight}, want: event.SeekRelative(60000), ok: true},
		{kp: KeyPress{Key: KeyRune, Rune: 'b'}, want: event.Nav(event.NavPrev), ok: true},
		{kp: KeyPress{Key: KeyPgUp}, want: event.Nav(event.NavPrev), ok: true},
		{kp: KeyPress{Key: KeyRune, Rune: 'n'}, want: event.Nav(event.NavNext), ok: true},
		{kp: KeyPress{Key: KeyPgDn}, want: event.Nav(event.NavNext), ok: true},
		{kp: KeyPress{Key: KeyRune, Rune: '0'}, want: event.SeekPercent(0), ok: true},
		{kp: KeyPress{Key: KeyRune, Rune: '7'}, want: event.SeekPercent(70), ok: true},
		{kp: KeyPress{Key: KeyRune, Rune: 'x'}},
		{kp: KeyPress{Key: KeyNone}},
	}

	for _, tt := range tests {
		got, ok := k.translate(tt.kp, host)
		assert.Equal(t, tt.ok, ok, "%+v", tt.kp)
		if tt.ok {
			assert.Equal(t, tt.want, got, "%+v", tt.kp)
		}
	}
}

func TestKeyboardVolume(t *testing.T) {
	k, err := NewKeyboard(map[string]any{"volume_step": 0.25})
	require.NoError(t, err)
	host := newFakeHost()

	// steps are relative so that presses within one control tick add up
	up, ok := k.translate(KeyPress{Key: KeyRune, Rune: '+'}, host)
	require.True(t, ok)
	assert.Equal(t, event.VolumeStep(0x4000), up)

	down, ok := k.translate(KeyPress{Key: KeyRune, Rune: '-'}, host)
	require.True(t, ok)
	assert.Equal(t, event.VolumeStep(-0x4000), down)
}

func TestKeyboardReadLoop(t *testing.T) {
	k, err := NewKeyboard(nil)
	require.NoError(t, err)
	k.input = strings.NewReader(" \x1b[Cnq")
	host := newFakeHost()

	require.NoError(t, k.Start(context.Background(), host))
	assert.Error(t, k.Start(context.Background(), host))

	select {
	case <-k.Done():
	case <-time.After(time.Second):
		t.Fatal("read loop did not finish")
	}
	require.NoError(t, k.Stop())

	assert.Equal(t, []event.Record{
		event.Pause(event.PauseToggle),
		event.SeekRelative(5000),
		event.Nav(event.NavNext),
		event.Nav(event.NavQuit),
	}, host.records())
}

func TestLogBackend(t *testing.T) {
	buf := captureLog(t)

	l, err := NewLog(map[string]any{"show_position": true})
	require.NoError(t, err)
	host := newFakeHost()
	require.NoError(t, l.Start(context.Background(), host))
	require.Error(t, l.Start(context.Background(), host))

	host.np = session.NowPlaying{
		HasTrack: true,
		Index:    1,
		Count:    3,
		Track: track.Track{
			Path: "/music/stage1.wav",
			Info: track.Info{Title: "Stage 1", Album: "Streets of Rage", Artist: "Yuzo Koshiro"},
		},
		CoverArt: "/music/cover.png",
		Flags:    state.FlagPlay | state.FlagPause,
		Position: 12.5,
		Total:    90,
		Volume:   0.75,
	}
	host.signal(notification.SignalNewTrack)
	host.signal(notification.SignalPlayState)
	host.signal(notification.SignalPosition)
	host.signal(notification.SignalVolume)

	out := buf.String()
	assert.Contains(t, out, "[2/3] Stage 1")
	assert.Contains(t, out, "album=Streets of Rage")
	assert.Contains(t, out, "cover_art=/music/cover.png")
	assert.Contains(t, out, "playback: paused")
	assert.Contains(t, out, "position: 12.50s / 90.00s")
	assert.Contains(t, out, "volume: 0.75")

	require.NoError(t, l.Stop())
	assert.Empty(t, host.observers)
	require.NoError(t, l.Stop())
}

func TestStartStopAll(t *testing.T) {
	host := newFakeHost()
	l, err := NewLog(nil)
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background(), host))

	// the second log backend start fails since it is the same instance
	started := StartAll(context.Background(), host, []Backend{None{}, l})
	assert.Equal(t, []Backend{None{}}, started)

	StopAll([]Backend{None{}, l})
	assert.Empty(t, host.observers)
}
