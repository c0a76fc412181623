package mediactrl

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/osa030/chipbox/internal/app/envelope"
	"github.com/osa030/chipbox/internal/app/event"
)

func init() {
	Register("keyboard", func(settings map[string]any) (Backend, error) {
		return NewKeyboard(settings)
	})
}

type KeyboardConfig struct {
	SeekStepMs     uint32  `yaml:"seek_step_ms" mapstructure:"seek_step_ms" default:"5000" validate:"gte=1"`
	LongSeekStepMs uint32  `yaml:"long_seek_step_ms" mapstructure:"long_seek_step_ms" default:"60000" validate:"gte=1"`
	VolumeStep     float64 `yaml:"volume_step" mapstructure:"volume_step" default:"0.1" validate:"gt=0,lte=1"`
}

// Key is a decoded key press.
type Key int

const (
	KeyNone Key = iota
	KeyRune
	KeyEsc
	KeyLeft
	KeyRight
	KeyCtrlLeft
	KeyCtrlRight
	KeyPgUp
	KeyPgDn
	KeyCtrlC
)

// KeyPress is a key with its character for KeyRune.
type KeyPress struct {
	Key  Key
	Rune byte
}

// Keyboard turns terminal key presses into control events.
type Keyboard struct {
	config KeyboardConfig
	input  io.Reader

	mu       sync.Mutex
	oldState *term.State
	fd       int
	done     chan struct{}
}

// NewKeyboard creates a keyboard backend reading from stdin.
func NewKeyboard(settings map[string]any) (*Keyboard, error) {
	var cfg KeyboardConfig
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}
	return &Keyboard{config: cfg, input: os.Stdin, fd: int(os.Stdin.Fd())}, nil
}

// Name implements Backend.
func (k *Keyboard) Name() string { return "keyboard" }

// Start implements Backend. A terminal input is switched to raw mode until
// Stop is called.
func (k *Keyboard) Start(ctx context.Context, host Host) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.done != nil {
		return errors.New("keyboard already started")
	}
	if f, ok := k.input.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		k.fd = int(f.Fd())
		st, err := term.MakeRaw(k.fd)
		if err != nil {
			return errors.Wrap(err, "failed to enable raw mode")
		}
		k.oldState = st
	}

	k.done = make(chan struct{})
	go k.readLoop(ctx, host, k.done)
	zlog.Debug().Msgf("mediactrl: keyboard started: raw=%v", k.oldState != nil)
	return nil
}

// Done is closed when the input ends. Reads from a terminal only end when
// the process exits.
func (k *Keyboard) Done() <-chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.done
}

// Stop implements Backend. It restores the terminal.
func (k *Keyboard) Stop() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.oldState == nil {
		return nil
	}
	err := term.Restore(k.fd, k.oldState)
	k.oldState = nil
	if err != nil {
		return errors.Wrap(err, "failed to restore terminal")
	}
	return nil
}

func (k *Keyboard) readLoop(ctx context.Context, host Host, done chan struct{}) {
	defer close(done)

	br := bufio.NewReader(k.input)
	for {
		kp, err := readKey(br)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				zlog.Warn().Msgf("mediactrl: keyboard read failed: %v", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if r, ok := k.translate(kp, host); ok {
			zlog.Debug().Msgf("mediactrl: key event: %s", r)
			host.Push(r)
		}
	}
}

// translate maps a key press to a control event.
func (k *Keyboard) translate(kp KeyPress, host Host) (event.Record, bool) {
	rate := uint64(host.SampleRate())
	step := int32(uint64(k.config.SeekStepMs) * rate / 1000)
	longStep := int32(uint64(k.config.LongSeekStepMs) * rate / 1000)

	switch kp.Key {
	case KeyEsc, KeyCtrlC:
		return event.Nav(event.NavQuit), true
	case KeyLeft:
		return event.SeekRelative(-step), true
	case KeyRight:
		return event.SeekRelative(step), true
	case KeyCtrlLeft:
		return event.SeekRelative(-longStep), true
	case KeyCtrlRight:
		return event.SeekRelative(longStep), true
	case KeyPgUp:
		return event.Nav(event.NavPrev), true
	case KeyPgDn:
		return event.Nav(event.NavNext), true
	case KeyRune:
	default:
		return event.Record{}, false
	}

	switch c := kp.Rune; {
	case c == 'q' || c == 'Q':
		return event.Nav(event.NavQuit), true
	case c == ' ' || c == 'p' || c == 'P':
		return event.Pause(event.PauseToggle), true
	case c == 'f' || c == 'F':
		return event.Fade(), true
	case c == 'r' || c == 'R':
		return event.Control(event.ControlRestart), true
	case c == 'b' || c == 'B':
		return event.Nav(event.NavPrev), true
	case c == 'n' || c == 'N':
		return event.Nav(event.NavNext), true
	case c >= '0' && c <= '9':
		return event.SeekPercent(int32(c-'0') * 10), true
	case c == '+' || c == '=':
		return event.VolumeStep(envelope.VolumeToFixed(k.config.VolumeStep)), true
	case c == '-' || c == '_':
		return event.VolumeStep(envelope.VolumeToFixed(-k.config.VolumeStep)), true
	}
	return event.Record{}, false
}

// readKey decodes one key press including ANSI cursor sequences. An ESC
// byte with nothing buffered behind it is a bare Esc key.
func readKey(br *bufio.Reader) (KeyPress, error) {
	c, err := br.ReadByte()
	if err != nil {
		return KeyPress{}, err
	}
	switch c {
	case 0x03:
		return KeyPress{Key: KeyCtrlC}, nil
	case 0x1b:
	default:
		return KeyPress{Key: KeyRune, Rune: c}, nil
	}

	if br.Buffered() == 0 {
		return KeyPress{Key: KeyEsc}, nil
	}
	c, _ = br.ReadByte()
	if c != '[' && c != 'O' {
		_ = br.UnreadByte()
		return KeyPress{Key: KeyEsc}, nil
	}

	// CSI: parameters up to the final byte
	var params []byte
	for {
		c, err = br.ReadByte()
		if err != nil {
			return KeyPress{Key: KeyNone}, nil
		}
		if c >= 0x40 && c <= 0x7e {
			break
		}
		params = append(params, c)
	}

	ctrl := string(params) == "1;5"
	switch {
	case c == 'D' && ctrl:
		return KeyPress{Key: KeyCtrlLeft}, nil
	case c == 'C' && ctrl:
		return KeyPress{Key: KeyCtrlRight}, nil
	case c == 'D':
		return KeyPress{Key: KeyLeft}, nil
	case c == 'C':
		return KeyPress{Key: KeyRight}, nil
	case c == '~' && string(params) == "5":
		return KeyPress{Key: KeyPgUp}, nil
	case c == '~' && string(params) == "6":
		return KeyPress{Key: KeyPgDn}, nil
	}
	return KeyPress{Key: KeyNone}, nil
}
