// Package mediactrl provides media-control backends. A backend produces
// control events for the session, consumes its state change signals, or both.
package mediactrl

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/chipbox/internal/app/event"
	"github.com/osa030/chipbox/internal/app/notification"
	"github.com/osa030/chipbox/internal/app/session"
	"github.com/osa030/chipbox/internal/infra/config"
)

var ErrUnknownBackend = errors.New("unknown media control backend")

// Host is the session as seen by a backend.
type Host interface {
	Push(r event.Record)
	Subscribe(o notification.Observer) notification.Handle
	Unsubscribe(h notification.Handle)
	NowPlaying() session.NowPlaying
	SampleRate() uint32
}

// Backend is a media-control backend.
type Backend interface {
	// Name returns the backend type name (used in config).
	Name() string

	// Start attaches the backend to the session. It must not block.
	Start(ctx context.Context, host Host) error

	// Stop detaches the backend and releases its resources.
	Stop() error
}

// Factory creates a backend from its settings map.
type Factory func(settings map[string]any) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend type available to New.
func Register(typ string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[typ] = f
}

// Registered returns the registered backend types in sorted order.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	types := make([]string, 0, len(registry))
	for typ := range registry {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// New creates a backend from its configuration.
func New(mc config.MediaControlConfig) (Backend, error) {
	registryMu.RLock()
	f, ok := registry[mc.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownBackend, "type %q", mc.Type)
	}
	return f(mc.Settings)
}

// NewFromConfig creates all configured backends in order.
func NewFromConfig(cfg *config.Config) ([]Backend, error) {
	var backends []Backend
	for i, mc := range cfg.MediaControls {
		zlog.Debug().Msgf("mediactrl: creating backend: index=%d type=%s settings=%+v", i+1, mc.Type, mc.Settings)
		b, err := New(mc)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create media control (index %d, type %s)", i, mc.Type)
		}
		backends = append(backends, b)
		zlog.Info().Msgf("mediactrl: registered backend: index=%d type=%s", i+1, mc.Type)
	}
	return backends, nil
}

// StartAll starts every backend. Backends that fail to start are logged and
// left out of the returned list.
func StartAll(ctx context.Context, host Host, backends []Backend) []Backend {
	started := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if err := b.Start(ctx, host); err != nil {
			zlog.Warn().Msgf("mediactrl: failed to start backend: type=%s error=%v", b.Name(), err)
			continue
		}
		started = append(started, b)
	}
	return started
}

// StopAll stops the backends in reverse order.
func StopAll(backends []Backend) {
	for i := len(backends) - 1; i >= 0; i-- {
		if err := backends[i].Stop(); err != nil {
			zlog.Warn().Msgf("mediactrl: failed to stop backend: type=%s error=%v", backends[i].Name(), err)
		}
	}
}

// decodeSettings fills out from a settings map, then applies defaults and
// validation tags.
func decodeSettings(settings map[string]any, out any) error {
	if len(settings) > 0 {
		if err := mapstructure.Decode(settings, out); err != nil {
			return errors.Wrap(err, "failed to decode settings")
		}
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
