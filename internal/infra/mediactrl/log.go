package mediactrl

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/chipbox/internal/app/notification"
	"github.com/osa030/chipbox/internal/app/session/state"
)

func init() {
	Register("log", func(settings map[string]any) (Backend, error) {
		return NewLog(settings)
	})
	Register("none", func(map[string]any) (Backend, error) {
		return None{}, nil
	})
}

type LogConfig struct {
	ShowPosition bool `yaml:"show_position" mapstructure:"show_position"`
	HideCoverArt bool `yaml:"hide_cover_art" mapstructure:"hide_cover_art"`
}

// Log reports now-playing information through the logger.
type Log struct {
	config LogConfig

	mu     sync.Mutex
	host   Host
	handle notification.Handle
}

// NewLog creates a log backend.
func NewLog(settings map[string]any) (*Log, error) {
	var cfg LogConfig
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}
	return &Log{config: cfg}, nil
}

// Name implements Backend.
func (l *Log) Name() string { return "log" }

// Start implements Backend.
func (l *Log) Start(_ context.Context, host Host) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.host != nil {
		return errors.New("log backend already started")
	}
	l.host = host
	l.handle = host.Subscribe(notification.ObserverFunc(l.onSignal))
	return nil
}

// Stop implements Backend.
func (l *Log) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.host == nil {
		return nil
	}
	l.host.Unsubscribe(l.handle)
	l.host = nil
	return nil
}

func (l *Log) onSignal(mask notification.Mask) {
	l.mu.Lock()
	host := l.host
	l.mu.Unlock()
	if host == nil {
		return
	}
	np := host.NowPlaying()

	if mask.Has(notification.SignalNewTrack) && np.HasTrack {
		info := np.Track.Info
		zlog.Info().Msgf("now playing: [%d/%d] %s", np.Index+1, np.Count, np.Track.DisplayTitle())
		if info.Album != "" || info.Artist != "" {
			zlog.Info().Msgf("now playing: album=%s artist=%s system=%s date=%s",
				info.Album, info.Artist, info.System, info.Date)
		}
		if !l.config.HideCoverArt && np.CoverArt != "" {
			zlog.Info().Msgf("now playing: cover_art=%s", np.CoverArt)
		}
		zlog.Debug().Msgf("now playing: format=%s looping=%v raw=%v length=%.2fs",
			info.Format, np.Looping, info.RawCapture, np.Total)
	}

	if mask.Has(notification.SignalPlayState) && np.HasTrack {
		switch {
		case np.Flags.Has(state.FlagPause):
			zlog.Info().Msg("playback: paused")
		case np.Flags.Has(state.FlagPlay):
			zlog.Info().Msg("playback: playing")
		}
	}

	if mask.Has(notification.SignalPosition) && l.config.ShowPosition && np.HasTrack {
		zlog.Info().Msgf("position: %.2fs / %.2fs loop=%d", np.Position, np.Total, np.Loop)
	}

	if mask.Has(notification.SignalVolume) {
		zlog.Info().Msgf("volume: %.2f", np.Volume)
	}
}

// None is a backend that does nothing.
type None struct{}

// Name implements Backend.
func (None) Name() string { return "none" }

// Start implements Backend.
func (None) Start(context.Context, Host) error { return nil }

// Stop implements Backend.
func (None) Stop() error { return nil }
