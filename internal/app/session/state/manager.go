package state

import (
	"sync"
	"time"
)

// Manager manages session state with thread-safe access.
type Manager struct {
	mu sync.RWMutex

	// Session identity
	sessionID    string
	playlistName string

	// Session lifecycle
	phase     Phase
	startTime *time.Time
	endTime   *time.Time

	// Playback
	flags      PlayFlags
	nav        Nav
	index      int
	trackCount int
}

// New creates a new state manager.
func New(sessionID string) *Manager {
	return &Manager{
		sessionID: sessionID,
		phase:     PhaseWaiting,
	}
}

// GetSessionID returns the session ID.
func (m *Manager) GetSessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// GetPhase returns the current session phase.
func (m *Manager) GetPhase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// SetPhase sets the session phase and records the start and end times.
func (m *Manager) SetPhase(p Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	switch p {
	case PhaseActive:
		m.startTime = &now
	case PhaseTerminated:
		m.endTime = &now
	}
	m.phase = p
}

// GetTimes returns the start and end times.
func (m *Manager) GetTimes() (*time.Time, *time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.startTime, m.endTime
}

// SetPlaylistInfo sets playlist information.
func (m *Manager) SetPlaylistInfo(name string, trackCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlistName = name
	m.trackCount = trackCount
}

// GetPlaylistName returns the playlist name.
func (m *Manager) GetPlaylistName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.playlistName
}

// GetTrackCount returns the number of tracks in the playlist.
func (m *Manager) GetTrackCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trackCount
}

// GetIndex returns the current playlist index.
func (m *Manager) GetIndex() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index
}

// SetIndex sets the current playlist index.
func (m *Manager) SetIndex(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = i
}

// GetFlags returns the play state flags.
func (m *Manager) GetFlags() PlayFlags {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags
}

// SetFlags replaces the play state flags.
func (m *Manager) SetFlags(f PlayFlags) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags = f
}

// AddFlags sets the given flags.
func (m *Manager) AddFlags(f PlayFlags) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags |= f
}

// ClearFlags clears the given flags.
func (m *Manager) ClearFlags(f PlayFlags) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags &^= f
}

// IsPlaying returns true if a track is started.
func (m *Manager) IsPlaying() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags.Has(FlagPlay)
}

// IsPaused returns true if playback is paused.
func (m *Manager) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags.Has(FlagPause)
}

// GetNav returns the pending navigation directive.
func (m *Manager) GetNav() Nav {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nav
}

// RequestNav records a navigation directive and marks the current track to
// be left.
func (m *Manager) RequestNav(n Nav) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nav = n
	m.flags |= FlagEnd
}

// TakeNav returns the pending directive and resets it to NavNone.
func (m *Manager) TakeNav() Nav {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.nav
	m.nav = NavNone
	return n
}

// Advance applies a directive to the current index and returns the new index.
// Previous clamps at 0; quit returns -1.
func (m *Manager) Advance(n Nav) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch n {
	case NavQuit:
		m.index = -1
	case NavPrev:
		if m.index > 0 {
			m.index--
		}
	default:
		m.index++
	}
	return m.index
}
