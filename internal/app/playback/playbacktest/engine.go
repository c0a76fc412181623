// Package playbacktest provides a scripted decode engine for tests.
package playbacktest

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/chipbox/internal/app/playback"
	"github.com/osa030/chipbox/internal/domain/track"
)

// ErrOutOfRange is returned by Seek past the end of a non-looping track.
var ErrOutOfRange = errors.New("position out of range")

// Engine is a playback.Engine producing a constant frame. One tick equals
// one output sample.
type Engine struct {
	// Length is the track length in samples. With Looping set, playback
	// jumps back to LoopStart every time Length is reached.
	Length    uint32
	LoopStart uint32
	Looping   bool
	Value     playback.Frame
	TrackInfo track.Info

	// Failure injection
	RenderErr     error
	PanicOnRender bool
	StartErr      error

	mu         sync.Mutex
	handler    func(playback.EngineEvent)
	started    bool
	ended      bool
	pos        uint32 // samples played since start
	trackPos   uint32 // position inside the track data
	curLoop    uint32
	sampleRate uint32
	speed      float64
	closed     bool
}

// New creates a non-looping engine of the given length.
func New(length uint32, value playback.Frame) *Engine {
	return &Engine{Length: length, Value: value}
}

// NewLooping creates an engine that loops back to loopStart at length.
func NewLooping(length, loopStart uint32, value playback.Frame) *Engine {
	return &Engine{Length: length, LoopStart: loopStart, Looping: true, Value: value}
}

func (e *Engine) emit(ev playback.EngineEvent) {
	if e.handler != nil {
		e.handler(ev)
	}
}

// Start implements playback.Engine.
func (e *Engine) Start() error {
	if e.StartErr != nil {
		return e.StartErr
	}
	e.started = true
	e.emit(playback.EngineEvent{Type: playback.EngineStart})
	return nil
}

// Stop implements playback.Engine.
func (e *Engine) Stop() error {
	e.started = false
	e.emit(playback.EngineEvent{Type: playback.EngineStop})
	return nil
}

// Reset implements playback.Engine.
func (e *Engine) Reset() error {
	e.pos, e.trackPos, e.curLoop = 0, 0, 0
	e.ended = false
	return nil
}

func (e *Engine) step() playback.Frame {
	e.pos++
	if e.ended {
		return playback.Frame{}
	}
	e.trackPos++
	if e.trackPos >= e.Length {
		if e.Looping {
			e.trackPos = e.LoopStart
			e.curLoop++
			e.emit(playback.EngineEvent{Type: playback.EngineLoop, Loop: e.curLoop})
		} else {
			e.ended = true
			e.emit(playback.EngineEvent{Type: playback.EngineEnd})
		}
	}
	return e.Value
}

// Render implements playback.Engine.
func (e *Engine) Render(frames []playback.Frame) (int, error) {
	if e.PanicOnRender {
		panic("render exploded")
	}
	if e.RenderErr != nil {
		return 0, e.RenderErr
	}
	if !e.started {
		return 0, nil
	}
	for i := range frames {
		frames[i] = e.step()
	}
	return len(frames), nil
}

// Seek implements playback.Engine by replaying from the start.
func (e *Engine) Seek(unit playback.PosUnit, pos uint32) error {
	if unit == playback.PosFileOffset {
		pos /= 4
	}
	if !e.Looping && pos > e.Length {
		return errors.Wrapf(ErrOutOfRange, "seek to %d", pos)
	}
	_ = e.Reset()
	for e.pos < pos {
		e.step()
	}
	return nil
}

// Position implements playback.Engine.
func (e *Engine) Position(unit playback.PosUnit) uint32 {
	if unit == playback.PosFileOffset {
		return e.trackPos * 4
	}
	return e.pos
}

// TotalPlayTicks implements playback.Engine.
func (e *Engine) TotalPlayTicks(loops uint32) uint32 {
	if !e.Looping {
		return e.Length
	}
	if loops == 0 {
		loops = 1
	}
	return e.Length + (loops-1)*e.LoopTicks()
}

// LoopTicks implements playback.Engine.
func (e *Engine) LoopTicks() uint32 {
	if !e.Looping {
		return 0
	}
	return e.Length - e.LoopStart
}

// CurrentLoop implements playback.Engine.
func (e *Engine) CurrentLoop() uint32 { return e.curLoop }

// TickRate implements playback.Engine.
func (e *Engine) TickRate() uint32 {
	if e.sampleRate == 0 {
		return 44100
	}
	return e.sampleRate
}

// SetSampleRate implements playback.Engine.
func (e *Engine) SetSampleRate(rate uint32) { e.sampleRate = rate }

// SetSpeed implements playback.Engine.
func (e *Engine) SetSpeed(speed float64) { e.speed = speed }

// SetEventHandler implements playback.Engine.
func (e *Engine) SetEventHandler(fn func(playback.EngineEvent)) { e.handler = fn }

// Info implements playback.Engine.
func (e *Engine) Info() track.Info { return e.TrackInfo }

// Close implements playback.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// SampleRate returns the rate set by the controller.
func (e *Engine) SampleRate() uint32 { return e.sampleRate }

// Speed returns the speed set by the controller.
func (e *Engine) Speed() float64 { return e.speed }

// Loader serves scripted engines by source name.
type Loader struct {
	mu      sync.Mutex
	Engines map[string]func() *Engine
	Loaded  []string
}

// Load implements playback.Loader.
func (l *Loader) Load(source string) (playback.Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.Loaded = append(l.Loaded, source)
	fn, ok := l.Engines[source]
	if !ok || fn == nil {
		return nil, errors.Newf("cannot open %q", source)
	}
	return fn(), nil
}

// LoadedSources returns the sources requested so far.
func (l *Loader) LoadedSources() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Loaded...)
}
