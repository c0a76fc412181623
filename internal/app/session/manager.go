// Package session provides the session manager that plays a playlist track
// by track and interprets control events.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/chipbox/internal/app/envelope"
	"github.com/osa030/chipbox/internal/app/event"
	"github.com/osa030/chipbox/internal/app/notification"
	"github.com/osa030/chipbox/internal/app/playback"
	"github.com/osa030/chipbox/internal/app/session/state"
	"github.com/osa030/chipbox/internal/domain/playlist"
	"github.com/osa030/chipbox/internal/domain/track"
	"github.com/osa030/chipbox/internal/infra/config"
)

var (
	ErrDecodeFailure  = errors.New("failed to open track")
	ErrSinkStart      = errors.New("failed to start audio sink")
	ErrSinkWrite      = errors.New("failed to write to audio sink")
	ErrEmptyPlaylist  = errors.New("playlist is empty")
	ErrAlreadyStarted = errors.New("session already started")
)

// maxMasterVolume bounds keyboard volume steps, matching the config limit of 16.
const maxMasterVolume = 16 << 16

// Manager manages the playback session.
type Manager struct {
	mu sync.RWMutex

	// Configuration
	config *config.Config

	// Components
	stateMgr     *state.Manager
	playback     *playback.Controller
	events       *event.Queue
	notification *notification.Manager
	loader       playback.Loader
	sink         Sink
	playlist     *playlist.Playlist

	// Sink mode
	pushSink   PushSink
	pcmBuf     []int16
	sinkPaused bool
	writeFails int

	// Current track
	current  *track.Track
	coverArt string

	done    chan struct{}
	started bool
}

// NewManager creates a new session manager.
func NewManager(
	cfg *config.Config,
	pl *playlist.Playlist,
	loader playback.Loader,
	sink Sink,
) *Manager {
	pbCfg := playback.Config{
		MasterVolume:  cfg.MasterVolume(),
		ChannelInvert: cfg.ChannelInvert(),
		LoopCount:     cfg.Playback.MaxLoops,
		PlaybackSpeed: cfg.Playback.Speed,
	}

	stateMgr := state.New(uuid.New().String())
	stateMgr.SetPlaylistInfo(pl.Name, pl.Len())

	return &Manager{
		config:       cfg,
		stateMgr:     stateMgr,
		playback:     playback.NewController(pbCfg, cfg.Audio.SampleRate),
		events:       event.NewQueue(),
		notification: notification.NewManager(),
		loader:       loader,
		sink:         sink,
		playlist:     pl,
		done:         make(chan struct{}),
	}
}

// Done returns a channel that is closed when Run returns.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Push queues a control event. It is safe to call from any goroutine.
func (m *Manager) Push(r event.Record) {
	m.events.Push(r)
}

// Subscribe registers an observer for state change signals.
func (m *Manager) Subscribe(o notification.Observer) notification.Handle {
	return m.notification.Subscribe(o)
}

// Unsubscribe removes an observer.
func (m *Manager) Unsubscribe(h notification.Handle) {
	m.notification.Unsubscribe(h)
}

// SampleRate returns the output sample rate.
func (m *Manager) SampleRate() uint32 {
	return m.playback.SampleRate()
}

// NowPlaying is a snapshot of the session for observers.
type NowPlaying struct {
	SessionID string
	Phase     state.Phase
	Index     int
	Count     int
	HasTrack  bool
	Track     track.Track
	CoverArt  string
	Position  float64 // seconds, loops included
	Total     float64 // seconds, configured loops included
	Loop      uint32
	Looping   bool
	Flags     state.PlayFlags
	Playback  playback.State
	Volume    float64
}

// NowPlaying returns the current session snapshot.
func (m *Manager) NowPlaying() NowPlaying {
	m.mu.RLock()
	defer m.mu.RUnlock()

	np := NowPlaying{
		SessionID: m.stateMgr.GetSessionID(),
		Phase:     m.stateMgr.GetPhase(),
		Index:     m.stateMgr.GetIndex(),
		Count:     m.stateMgr.GetTrackCount(),
		Flags:     m.stateMgr.GetFlags(),
		Playback:  m.playback.State(),
		Volume:    envelope.FixedToVolume(m.playback.Config().MasterVolume),
	}
	if m.current != nil {
		np.HasTrack = true
		np.Track = *m.current
		np.CoverArt = m.coverArt
		np.Position = m.playback.CurrentTime(true)
		np.Total = m.playback.TotalTime(true)
		np.Loop = m.playback.CurrentLoop()
		np.Looping = m.playback.LoopTicks() > 0
	}
	return np
}

// Run plays the playlist until it is exhausted, quit is requested or ctx is
// cancelled. Only fatal errors are returned.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()
	defer close(m.done)

	if m.playlist.Len() == 0 {
		return ErrEmptyPlaylist
	}

	if err := m.setupSink(); err != nil {
		return err
	}
	if err := m.sink.Start(); err != nil {
		return errors.Wrapf(ErrSinkStart, "%v", err)
	}
	defer func() {
		if err := m.sink.Stop(); err != nil {
			zlog.Error().Msgf("session: failed to stop audio sink: %v", err)
		}
	}()

	sessionID := m.stateMgr.GetSessionID()
	m.stateMgr.SetIndex(0)
	m.stateMgr.SetPhase(state.PhaseActive)
	zlog.Info().Msgf("session: phase changed: phase=ACTIVE session_id=%s playlist=%q tracks=%d",
		sessionID, m.stateMgr.GetPlaylistName(), m.stateMgr.GetTrackCount())

	direction := state.NavNext
	for {
		idx := m.stateMgr.GetIndex()
		if idx < 0 || idx >= m.playlist.Len() {
			break
		}

		nav, err := m.playTrack(ctx, idx)
		if err != nil {
			if !errors.Is(err, ErrDecodeFailure) {
				return err
			}
			zlog.Error().Msgf("session: skipping track: index=%d: %v", idx, err)
			nav = m.navAfterFailure(ctx, idx, direction)
		}

		if nav == state.NavNone {
			nav = state.NavNext
		}
		if nav != state.NavQuit {
			direction = nav
		}
		m.stateMgr.Advance(nav)
	}

	m.stateMgr.SetPhase(state.PhaseTerminated)
	zlog.Info().Msgf("session: phase changed: phase=TERMINATED session_id=%s", sessionID)
	return nil
}

// setupSink selects callback or push mode.
func (m *Manager) setupSink() error {
	if cs, ok := m.sink.(CallbackSink); ok {
		err := cs.SetRenderer(m.playback)
		if err == nil {
			zlog.Debug().Msg("session: audio sink in callback mode")
			return nil
		}
		if !errors.Is(err, playback.ErrCallbackUnsupported) {
			return errors.Wrapf(ErrSinkStart, "%v", err)
		}
	}

	ps, ok := m.sink.(PushSink)
	if !ok {
		return errors.Wrap(ErrSinkStart, "sink supports neither callback nor push mode")
	}
	frames := ps.BufferFrames()
	if frames <= 0 {
		frames = m.config.BufferFrames()
	}
	m.pushSink = ps
	m.pcmBuf = make([]int16, frames*2)
	zlog.Debug().Msgf("session: audio sink in push mode: buffer_frames=%d", frames)
	return nil
}

// navAfterFailure decides where to go after a track could not be opened.
// One pending event is still interpreted so that a quit is honored.
func (m *Manager) navAfterFailure(ctx context.Context, idx int, direction state.Nav) state.Nav {
	if idx == 0 && direction == state.NavPrev {
		direction = state.NavNext
	}
	if ctx.Err() != nil {
		return state.NavQuit
	}
	r, ok := m.events.TryPop()
	if !ok {
		return direction
	}
	if r.Kind != event.KindPlaylistNav {
		zlog.Debug().Msgf("session: dropping event after failed track: %s", r)
		return direction
	}
	switch r.Param {
	case event.NavQuit:
		return state.NavQuit
	case event.NavNext:
		return state.NavNext
	case event.NavPrev:
		return state.NavPrev
	}
	return direction
}

// playTrack plays one playlist entry and returns the navigation directive.
func (m *Manager) playTrack(ctx context.Context, idx int) (state.Nav, error) {
	trk, _ := m.playlist.At(idx)

	eng, err := m.loader.Load(trk.Path)
	if err != nil {
		return state.NavNone, errors.Wrapf(ErrDecodeFailure, "%s: %v", trk.Path, err)
	}
	m.playback.Attach(eng)
	defer func() {
		if err := m.playback.Detach(); err != nil && !errors.Is(err, playback.ErrNotLoaded) {
			zlog.Warn().Msgf("session: failed to detach track: %v", err)
		}
	}()

	m.prepareTrack(idx, trk, eng)

	if err := m.playback.Start(); err != nil {
		return state.NavNone, errors.Wrapf(ErrDecodeFailure, "%s: %v", trk.Path, err)
	}
	m.stateMgr.SetFlags(state.FlagPlay)
	if m.sinkPaused {
		m.setSinkPaused(false)
	}
	zlog.Info().Msgf("session: track started: index=%d/%d title=%s path=%s",
		idx+1, m.playlist.Len(), trk.DisplayTitle(), trk.Path)
	m.signal(notification.SignalNewTrack)

	m.runTrack(ctx)

	if err := m.playback.Stop(); err != nil {
		zlog.Warn().Msgf("session: failed to stop playback: %v", err)
	}
	m.drainPlaybackEvents()
	m.stateMgr.SetFlags(0)
	m.signal(notification.SignalPlayState)

	m.mu.Lock()
	m.current = nil
	m.coverArt = ""
	m.mu.Unlock()

	return m.stateMgr.TakeNav(), nil
}

// prepareTrack configures loops, fade and end silence for the track.
func (m *Manager) prepareTrack(idx int, trk *track.Track, eng playback.Engine) {
	rate := m.playback.SampleRate()
	pb := m.config.Playback

	m.playback.SetLoopCount(pb.MaxLoops)

	fadeMs := pb.FadeTimePlaylistMs
	if m.playlist.IsLast(idx) {
		fadeMs = pb.FadeTimeMs
	}
	m.playback.SetFadeSamples(envelope.MSecToSamples(fadeMs, rate))

	silenceMs := pb.FadePauseMs
	if eng.LoopTicks() == 0 {
		silenceMs = pb.JinglePauseMs
	}
	m.playback.SetEndSilenceSamples(envelope.MSecToSamples(silenceMs, rate))

	info := eng.Info()
	m.mu.Lock()
	trk.Info = info
	cur := *trk
	m.current = &cur
	m.coverArt = track.FindCoverArt(trk.Path)
	m.mu.Unlock()

	zlog.Debug().Msgf("session: track prepared: index=%d fade_ms=%d silence_ms=%d loop_ticks=%d",
		idx, fadeMs, silenceMs, eng.LoopTicks())
}

// runTrack ticks until the track ends or is left.
func (m *Manager) runTrack(ctx context.Context) {
	tick := m.config.TickInterval()
	if tick <= 0 {
		tick = 50 * time.Millisecond
	}
	var ticker *time.Ticker
	if m.pushSink == nil {
		ticker = time.NewTicker(tick)
		defer ticker.Stop()
	}

	for {
		if m.stateMgr.GetFlags().Has(state.FlagEnd) || m.playback.State().Has(playback.StateEnded) {
			return
		}

		if ctx.Err() != nil {
			zlog.Info().Msg("session: context cancelled, quitting")
			m.stateMgr.RequestNav(state.NavQuit)
			continue
		}

		switch {
		case ticker != nil:
			select {
			case <-ctx.Done():
				continue
			case <-ticker.C:
			}
		case m.stateMgr.IsPaused():
			select {
			case <-ctx.Done():
				continue
			case <-time.After(tick):
			}
		default:
			if !m.renderPush() {
				select {
				case <-ctx.Done():
					continue
				case <-time.After(tick):
				}
			}
		}

		m.drainPlaybackEvents()
		if r, ok := m.events.TryPop(); ok {
			m.handleEvent(r)
		}
		m.checkAutoFade()
	}
}

// renderPush renders one buffer and writes it to the push sink. It reports
// whether any frames were rendered.
func (m *Manager) renderPush() bool {
	n := m.playback.Render(m.pcmBuf)
	if n == 0 {
		return false
	}
	if err := m.pushSink.Write(m.pcmBuf[:n*2]); err != nil {
		if m.writeFails == 0 {
			zlog.Error().Msgf("session: %v", errors.Wrapf(ErrSinkWrite, "%v", err))
		}
		m.writeFails++
		return true
	}
	if m.writeFails > 0 {
		zlog.Info().Msgf("session: audio sink recovered after %d failed writes", m.writeFails)
		m.writeFails = 0
	}
	return true
}

// drainPlaybackEvents handles the controller's buffered events.
func (m *Manager) drainPlaybackEvents() {
	for {
		select {
		case ev, ok := <-m.playback.Events():
			if !ok {
				return
			}
			m.handlePlaybackEvent(ev)
		default:
			return
		}
	}
}

// handlePlaybackEvent handles playback events.
func (m *Manager) handlePlaybackEvent(ev playback.Event) {
	zlog.Debug().Msgf("session: playback event: type=%s loop=%d state=%s", ev.Type, ev.Loop, ev.State)

	switch ev.Type {
	case playback.EventLoop:
		m.signal(notification.SignalPosition)
	case playback.EventTrackEnded:
		// runTrack observes StateEnded
	}
}

// handleEvent interprets one control event.
func (m *Manager) handleEvent(r event.Record) {
	zlog.Debug().Msgf("session: control event: %s", r)

	if r.Kind == event.KindPlaylistNav {
		m.handleNav(r.Param)
		return
	}
	if !m.stateMgr.IsPlaying() {
		zlog.Debug().Msgf("session: ignoring event while not playing: %s", r)
		return
	}

	switch r.Kind {
	case event.KindControl:
		switch r.Param {
		case event.ControlStart:
			m.setPaused(false)
			m.signal(notification.SignalPlayState)
		case event.ControlStop:
			m.setPaused(true)
			m.reset()
			m.signal(notification.SignalPosition | notification.SignalPlayState)
		case event.ControlRestart:
			m.reset()
			m.signal(notification.SignalPosition)
		}

	case event.KindPause:
		switch r.Param {
		case event.PauseOn:
			m.setPaused(true)
		case event.PauseOff:
			m.setPaused(false)
		case event.PauseToggle:
			m.setPaused(!m.stateMgr.IsPaused())
		}
		m.signal(notification.SignalPlayState)

	case event.KindFade:
		m.playback.SetFadeSamples(m.singleFadeSamples())
		if err := m.playback.FadeOut(); err != nil {
			zlog.Warn().Msgf("session: fade out failed: %v", err)
		}

	case event.KindSeekRelative:
		pos := int64(m.playback.Position(playback.PosSample)) + int64(r.Param)
		if pos < 0 {
			pos = 0
		}
		m.seek(playback.PosSample, uint32(pos))

	case event.KindSeekAbsolute:
		pos := r.Param
		if pos < 0 {
			pos = 0
		}
		m.seek(playback.PosSample, uint32(pos))

	case event.KindSeekPercent:
		pct := r.Param
		if pct < 0 {
			pct = 0
		}
		ticks := uint64(m.playback.TotalPlayTicks()) * uint64(pct) / 100
		m.seek(playback.PosTick, uint32(ticks))

	case event.KindVolume:
		m.setVolume(r.Param)

	case event.KindVolumeStep:
		vol := int64(m.playback.Config().MasterVolume) + int64(r.Param)
		m.setVolume(int32(max(0, min(vol, maxMasterVolume))))
	}
}

func (m *Manager) handleNav(param int32) {
	idx := m.stateMgr.GetIndex()
	switch param {
	case event.NavQuit:
		m.stateMgr.RequestNav(state.NavQuit)
	case event.NavNext:
		m.stateMgr.RequestNav(state.NavNext)
	case event.NavPrev:
		if idx == 0 {
			zlog.Debug().Msg("session: already at the first track")
			return
		}
		m.stateMgr.RequestNav(state.NavPrev)
	}
}

func (m *Manager) setVolume(vol int32) {
	m.playback.SetMasterVolume(vol)
	zlog.Info().Msgf("session: volume changed: volume=%.2f", envelope.FixedToVolume(vol))
	m.signal(notification.SignalVolume)
}

func (m *Manager) seek(unit playback.PosUnit, pos uint32) {
	if err := m.playback.Seek(unit, pos); err != nil {
		zlog.Warn().Msgf("session: %v", err)
		return
	}
	m.signal(notification.SignalPosition)
}

func (m *Manager) reset() {
	if err := m.playback.Reset(); err != nil {
		zlog.Warn().Msgf("session: reset failed: %v", err)
	}
}

// setPaused updates the controller, the session flags and the sink.
func (m *Manager) setPaused(paused bool) {
	var err error
	if paused {
		err = m.playback.Pause()
		m.stateMgr.AddFlags(state.FlagPause)
	} else {
		err = m.playback.Resume()
		m.stateMgr.ClearFlags(state.FlagPause)
	}
	if err != nil {
		zlog.Warn().Msgf("session: pause state change failed: %v", err)
	}
	if paused != m.sinkPaused {
		m.setSinkPaused(paused)
	}
}

func (m *Manager) setSinkPaused(paused bool) {
	var err error
	if paused {
		err = m.sink.Pause()
	} else {
		err = m.sink.Resume()
	}
	if err != nil {
		zlog.Warn().Msgf("session: audio sink pause=%v failed: %v", paused, err)
	}
	m.sinkPaused = paused
}

func (m *Manager) singleFadeSamples() uint32 {
	return envelope.MSecToSamples(m.config.Playback.FadeTimeMs, m.playback.SampleRate())
}

// checkAutoFade fades out raw captures before their natural end.
func (m *Manager) checkAutoFade() {
	if !m.config.Playback.FadeRawLogs {
		return
	}
	m.mu.RLock()
	raw := m.current != nil && m.current.Info.RawCapture
	m.mu.RUnlock()
	if !raw || m.stateMgr.IsPaused() {
		return
	}
	st := m.playback.State()
	if st.Has(playback.StateFading) || st.Has(playback.StateFinished) {
		return
	}

	remaining := m.playback.TotalTime(true) - m.playback.CurrentTime(true)
	fadeSecs := float64(m.config.Playback.FadeTimeMs) / 1000
	if remaining > fadeSecs {
		return
	}

	m.playback.SetFadeSamples(m.singleFadeSamples())
	if err := m.playback.FadeOut(); err != nil {
		zlog.Warn().Msgf("session: auto fade failed: %v", err)
		return
	}
	zlog.Debug().Msgf("session: auto fade for raw capture: remaining=%.2fs", remaining)
}

// signal fires a signal to all observers on the control loop goroutine.
func (m *Manager) signal(mask notification.Mask) {
	zlog.Debug().Msgf("session: signal: %s", mask)
	m.notification.Signal(mask)
}

// Close closes the session manager.
func (m *Manager) Close() {
	m.playback.Close()
	m.notification.Close()
}
