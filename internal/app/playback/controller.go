package playback

import (
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/chipbox/internal/app/envelope"
	"github.com/osa030/chipbox/internal/domain/track"
)

// Errors
var (
	ErrNotLoaded      = errors.New("no track loaded")
	ErrSeekOutOfRange = errors.New("seek position out of range")
)

// Channel inversion bits for Config.ChannelInvert.
const (
	InvertLeft  uint8 = 0x01
	InvertRight uint8 = 0x02
)

const (
	defaultSampleRate = 44100
	eventBufferSize   = 16
)

// Config holds controller configuration.
type Config struct {
	MasterVolume      int32   // 16.16 fixed point, negative inverts both channels
	ChannelInvert     uint8   // InvertLeft | InvertRight
	LoopCount         uint32  // Loops before fading out (0 = loop forever)
	FadeSamples       uint32  // Fade-out length
	EndSilenceSamples uint32  // Silence after the fade (or engine end) before the track ends
	PlaybackSpeed     float64 // Engine playback speed (1.0 = normal)
}

// DefaultConfig returns the configuration used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MasterVolume:  envelope.Unity,
		LoopCount:     2,
		PlaybackSpeed: 1.0,
	}
}

// Controller wraps a decode engine and renders its output with master volume,
// fade-out and end detection applied.
//
// Render is called from the audio driver's goroutine. Every other method may be
// called from the control loop. All of them share one mutex.
type Controller struct {
	mu sync.Mutex

	engine     Engine
	config     Config
	sampleRate uint32

	// Playback state (without the derived StateFading bit)
	state State

	// Fade and silence markers in output samples, envelope.Unset when not set
	fadeStart    uint32
	silenceStart uint32

	seeking       bool
	renderFailing bool
	frameBuf      []Frame

	// Events
	eventCh chan Event
	closed  bool
}

// NewController creates a new playback controller.
func NewController(config Config, sampleRate uint32) *Controller {
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}
	if config.PlaybackSpeed <= 0 {
		config.PlaybackSpeed = 1.0
	}
	return &Controller{
		config:       config,
		sampleRate:   sampleRate,
		state:        StateIdle,
		fadeStart:    envelope.Unset,
		silenceStart: envelope.Unset,
		eventCh:      make(chan Event, eventBufferSize),
	}
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Attach attaches a loaded decode engine, closing any previous one.
func (c *Controller) Attach(e Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine != nil {
		if err := c.detachLocked(); err != nil {
			zlog.Warn().Msgf("playback: failed to close previous engine: %v", err)
		}
	}

	c.engine = e
	c.state = StateIdle
	c.fadeStart = envelope.Unset
	c.silenceStart = envelope.Unset
	c.renderFailing = false
	e.SetEventHandler(c.onEngineEvent)
}

// Detach closes and releases the attached engine.
func (c *Controller) Detach() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		return ErrNotLoaded
	}
	return c.detachLocked()
}

func (c *Controller) detachLocked() error {
	e := c.engine
	c.engine = nil
	c.state = StateIdle
	c.fadeStart = envelope.Unset
	c.silenceStart = envelope.Unset

	e.SetEventHandler(nil)
	if err := e.Close(); err != nil {
		return errors.Wrap(err, "failed to close engine")
	}
	return nil
}

// Loaded reports whether an engine is attached.
func (c *Controller) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine != nil
}

// Info returns the metadata of the attached track.
func (c *Controller) Info() (track.Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		return track.Info{}, false
	}
	return c.engine.Info(), true
}

// Start starts playback of the attached track from its current position.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		return ErrNotLoaded
	}

	c.engine.SetSampleRate(c.sampleRate)
	c.engine.SetSpeed(c.config.PlaybackSpeed)
	c.fadeStart = envelope.Unset
	c.silenceStart = envelope.Unset
	c.renderFailing = false

	if err := c.engine.Start(); err != nil {
		return errors.Wrap(err, "failed to start engine")
	}
	c.state = StatePlaying
	return nil
}

// Stop stops playback and marks the track finished.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		return ErrNotLoaded
	}
	if !c.state.Has(StatePlaying) {
		c.state |= StateFinished
		return nil
	}

	err := c.engine.Stop()
	c.state &^= StatePlaying | StatePaused
	c.state |= StateFinished
	if err != nil {
		return errors.Wrap(err, "failed to stop engine")
	}
	return nil
}

// Reset rewinds the track to its start and clears the fade and silence
// markers. Playing and paused flags are kept.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		return ErrNotLoaded
	}

	c.fadeStart = envelope.Unset
	c.silenceStart = envelope.Unset
	c.state &^= StateEnded | StateFinished
	if err := c.engine.Reset(); err != nil {
		return errors.Wrap(err, "failed to reset engine")
	}
	return nil
}

// Seek moves playback to pos. Fade and silence markers that lie ahead of the
// new position are cleared; markers already passed stay in effect.
func (c *Controller) Seek(unit PosUnit, pos uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		return ErrNotLoaded
	}

	c.seeking = true
	err := c.engine.Seek(unit, pos)
	c.seeking = false
	if err != nil {
		return errors.Wrapf(ErrSeekOutOfRange, "seek to %s %d: %v", unit, pos, err)
	}

	cur := c.engine.Position(PosSample)
	if cur < c.fadeStart {
		c.fadeStart = envelope.Unset
	}
	if c.silenceStart != envelope.Unset && cur < c.silenceStart {
		c.silenceStart = envelope.Unset
		c.state &^= StateEnded | StateFinished
	}
	zlog.Debug().Msgf("playback: seek done: unit=%s pos=%d sample=%d", unit, pos, cur)
	return nil
}

// FadeOut starts the fade at the current position. Repeated calls do not
// restart a fade in progress.
func (c *Controller) FadeOut() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		return ErrNotLoaded
	}
	c.fadeOutLocked()
	return nil
}

func (c *Controller) fadeOutLocked() {
	if c.fadeStart != envelope.Unset {
		return
	}
	c.fadeStart = c.engine.Position(PosSample)
	zlog.Debug().Msgf("playback: fade out: start=%d length=%d", c.fadeStart, c.config.FadeSamples)
}

// Pause makes Render produce silence until Resume is called.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		return ErrNotLoaded
	}
	c.state |= StatePaused
	return nil
}

// Resume undoes Pause.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		return ErrNotLoaded
	}
	c.state &^= StatePaused
	return nil
}

// Render fills out with interleaved 16-bit stereo samples and returns the
// number of frames written. Fewer frames than requested are written when the
// engine delivers less or when the track ends inside this buffer. When nothing
// is playing the whole buffer is filled with silence.
func (c *Controller) Render(out []int16) int {
	want := len(out) / 2
	if want == 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil || !c.state.Has(StatePlaying) || c.state.Has(StatePaused) || c.state.Has(StateEnded) {
		clear(out[:want*2])
		return want
	}

	if len(c.frameBuf) < want {
		c.frameBuf = make([]Frame, want)
	}
	buf := c.frameBuf[:want]
	clear(buf)

	pos := c.engine.Position(PosSample)
	n, err := c.renderEngine(buf)
	if err != nil {
		if !c.renderFailing {
			zlog.Error().Msgf("playback: render failed, output silenced: %v", err)
			c.renderFailing = true
		}
		clear(out[:want*2])
		return want
	}
	c.renderFailing = false
	if n > want {
		n = want
	}

	vol := envelope.VolumeAt(pos, c.fadeStart, c.config.FadeSamples, c.config.MasterVolume)
	i := 0
	for ; i < n; i, pos = i+1, pos+1 {
		if envelope.Fading(pos, c.fadeStart) {
			if pos-c.fadeStart >= c.config.FadeSamples && c.silenceStart == envelope.Unset {
				c.silenceStart = pos
			}
			vol = envelope.VolumeAt(pos, c.fadeStart, c.config.FadeSamples, c.config.MasterVolume)
		}
		if c.silenceStart != envelope.Unset && pos >= c.silenceStart &&
			pos-c.silenceStart >= c.config.EndSilenceSamples {
			c.state |= StateEnded
			zlog.Debug().Msgf("playback: track ended: sample=%d", pos)
			c.sendEventLocked(Event{Type: EventTrackEnded, State: c.stateLocked()})
			break
		}

		out[i*2], out[i*2+1] = c.mixFrame(buf[i], vol)
	}
	return i
}

// renderEngine shields the audio goroutine from engine panics.
func (c *Controller) renderEngine(buf []Frame) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("engine panic: %v", r)
		}
	}()
	return c.engine.Render(buf)
}

// mixFrame applies volume and channel inversion and converts to 16 bits.
func (c *Controller) mixFrame(f Frame, vol int32) (int16, int16) {
	l := (int64(f[0]) * int64(vol)) >> 16
	r := (int64(f[1]) * int64(vol)) >> 16
	if c.config.ChannelInvert&InvertLeft != 0 {
		l = -l
	}
	if c.config.ChannelInvert&InvertRight != 0 {
		r = -r
	}
	return clip16(l >> 8), clip16(r >> 8)
}

func clip16(v int64) int16 {
	if v < -0x8000 {
		return -0x8000
	}
	if v > 0x7FFF {
		return 0x7FFF
	}
	return int16(v)
}

// onEngineEvent is called by the engine while c.mu is held.
func (c *Controller) onEngineEvent(ev EngineEvent) {
	switch ev.Type {
	case EngineStart:
		c.sendEventLocked(Event{Type: EventEngineStarted, State: c.stateLocked()})
	case EngineStop:
		c.sendEventLocked(Event{Type: EventEngineStopped, State: c.stateLocked()})
	case EngineLoop:
		if c.config.LoopCount > 0 && ev.Loop >= c.config.LoopCount {
			c.fadeOutLocked()
		}
		if c.seeking {
			return
		}
		c.sendEventLocked(Event{Type: EventLoop, Loop: ev.Loop, State: c.stateLocked()})
	case EngineEnd:
		c.state |= StateFinished
		if c.silenceStart == envelope.Unset {
			c.silenceStart = c.engine.Position(PosSample)
		}
		zlog.Debug().Msgf("playback: engine reached end: sample=%d", c.silenceStart)
	}
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
	default:
		// Channel full, drop event; the control loop also polls State()
	}
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	if c.engine == nil {
		return StateIdle
	}
	s := c.state
	if c.fadeStart != envelope.Unset {
		s |= StateFading
	}
	return s
}

// FadeStart returns the fade marker, envelope.Unset when no fade is pending.
func (c *Controller) FadeStart() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fadeStart
}

// SilenceStart returns the end-silence marker, envelope.Unset when not set.
func (c *Controller) SilenceStart() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.silenceStart
}

// Position returns the current playback position, 0 when nothing is loaded.
func (c *Controller) Position(unit PosUnit) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		return 0
	}
	return c.engine.Position(unit)
}

// CurrentLoop returns the number of loops completed.
func (c *Controller) CurrentLoop() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		return 0
	}
	return c.engine.CurrentLoop()
}

// LoopTicks returns the loop length in engine ticks, 0 for tracks without a loop.
func (c *Controller) LoopTicks() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		return 0
	}
	return c.engine.LoopTicks()
}

// TotalPlayTicks returns the track length including the configured loops.
func (c *Controller) TotalPlayTicks() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		return 0
	}
	return c.engine.TotalPlayTicks(c.config.LoopCount)
}

// CurrentTime returns the playback position in seconds. Without includeLoops
// the time spent in completed loops is subtracted.
func (c *Controller) CurrentTime(includeLoops bool) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		return -1
	}
	secs := float64(c.engine.Position(PosSample)) / float64(c.sampleRate)
	if !includeLoops {
		if loops := c.engine.CurrentLoop(); loops > 0 {
			secs -= c.ticksToSecondsLocked(uint64(c.engine.LoopTicks()) * uint64(loops))
		}
	}
	return secs
}

// TotalTime returns the track length in seconds, either including the
// configured loops or for a single pass.
func (c *Controller) TotalTime(includeLoops bool) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		return -1
	}
	loops := uint32(1)
	if includeLoops {
		loops = c.config.LoopCount
	}
	return c.ticksToSecondsLocked(uint64(c.engine.TotalPlayTicks(loops)))
}

// LoopTime returns the loop length in seconds.
func (c *Controller) LoopTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		return -1
	}
	return c.ticksToSecondsLocked(uint64(c.engine.LoopTicks()))
}

func (c *Controller) ticksToSecondsLocked(ticks uint64) float64 {
	rate := c.engine.TickRate()
	if rate == 0 {
		return 0
	}
	return float64(ticks) / float64(rate)
}

// Config returns the current configuration.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// SetConfig replaces the configuration.
func (c *Controller) SetConfig(config Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if config.PlaybackSpeed <= 0 {
		config.PlaybackSpeed = 1.0
	}
	oldSpeed := c.config.PlaybackSpeed
	c.config = config
	if c.engine != nil && oldSpeed != config.PlaybackSpeed {
		c.engine.SetSpeed(config.PlaybackSpeed)
	}
}

// SetMasterVolume sets the 16.16 master volume.
func (c *Controller) SetMasterVolume(vol int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.MasterVolume = vol
}

// SetLoopCount sets the number of loops played before fading out.
func (c *Controller) SetLoopCount(loops uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.LoopCount = loops
}

// SetFadeSamples sets the fade-out length.
func (c *Controller) SetFadeSamples(n uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.FadeSamples = n
}

// SetEndSilenceSamples sets the silence length after the fade.
func (c *Controller) SetEndSilenceSamples(n uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.EndSilenceSamples = n
}

// SetPlaybackSpeed sets the engine playback speed.
func (c *Controller) SetPlaybackSpeed(speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if speed <= 0 {
		speed = 1.0
	}
	c.config.PlaybackSpeed = speed
	if c.engine != nil {
		c.engine.SetSpeed(speed)
	}
}

// SampleRate returns the output sample rate.
func (c *Controller) SampleRate() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sampleRate
}

// SetSampleRate sets the output sample rate. It takes effect on the next Start.
func (c *Controller) SetSampleRate(rate uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rate == 0 {
		rate = defaultSampleRate
	}
	c.sampleRate = rate
}

// Close detaches the engine and closes the event channel.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine != nil {
		if err := c.detachLocked(); err != nil {
			zlog.Warn().Msgf("playback: %v", err)
		}
	}
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
}
