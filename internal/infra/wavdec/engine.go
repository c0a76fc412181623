// Package wavdec provides a decode engine for PCM WAV files. Loop points are
// read from the smpl chunk and tags from the LIST/INFO chunk.
package wavdec

import (
	"math/bits"

	"github.com/cockroachdb/errors"

	"github.com/osa030/chipbox/internal/app/playback"
	"github.com/osa030/chipbox/internal/domain/track"
)

var ErrOutOfRange = errors.New("position out of range")

const fracBits = 32

// Engine plays decoded PCM frames. One tick is one source frame.
//
// Positions are kept in 32.32 fixed point source frames so that the output
// rate and playback speed can differ from the file rate.
type Engine struct {
	data      []playback.Frame
	srcRate   uint32
	loopStart uint32
	loopEnd   uint32 // exclusive; 0 when the track does not loop
	info      track.Info

	handler func(playback.EngineEvent)
	started bool
	ended   bool

	outRate uint32
	speed   float64
	step    uint64

	cursor  uint64 // position inside data
	played  uint64 // ticks played since start, loops included
	samples uint32 // output samples since start
	curLoop uint32
}

// newEngine creates an engine over decoded frames. loopEnd is exclusive;
// pass loopEnd 0 for a track without a loop.
func newEngine(data []playback.Frame, rate, loopStart, loopEnd uint32, info track.Info) *Engine {
	e := &Engine{
		data:    data,
		srcRate: rate,
		info:    info,
		outRate: rate,
		speed:   1.0,
	}
	if loopEnd > loopStart && loopEnd <= uint32(len(data)) {
		e.loopStart, e.loopEnd = loopStart, loopEnd
	}
	e.info.Looping = e.looping()
	e.updateStep()
	return e
}

func (e *Engine) looping() bool {
	return e.loopEnd > 0
}

func (e *Engine) trackEnd() uint64 {
	if e.looping() {
		return uint64(e.loopEnd) << fracBits
	}
	return uint64(len(e.data)) << fracBits
}

func (e *Engine) loopLen() uint64 {
	return uint64(e.loopEnd-e.loopStart) << fracBits
}

func (e *Engine) updateStep() {
	out := e.outRate
	if out == 0 {
		out = e.srcRate
	}
	speed := e.speed
	if speed <= 0 {
		speed = 1.0
	}
	e.step = uint64(float64(e.srcRate) * speed / float64(out) * (1 << fracBits))
	if e.step == 0 {
		e.step = 1
	}
}

func (e *Engine) emit(t playback.EngineEventType, loop uint32) {
	if e.handler != nil {
		e.handler(playback.EngineEvent{Type: t, Loop: loop})
	}
}

// Start implements playback.Engine.
func (e *Engine) Start() error {
	if len(e.data) == 0 {
		return errors.New("no audio data")
	}
	e.started = true
	e.emit(playback.EngineStart, 0)
	return nil
}

// Stop implements playback.Engine.
func (e *Engine) Stop() error {
	e.started = false
	e.emit(playback.EngineStop, 0)
	return nil
}

// Reset implements playback.Engine.
func (e *Engine) Reset() error {
	e.rewind()
	return nil
}

func (e *Engine) rewind() {
	e.cursor, e.played, e.samples, e.curLoop = 0, 0, 0, 0
	e.ended = false
}

// Render implements playback.Engine.
func (e *Engine) Render(frames []playback.Frame) (int, error) {
	if !e.started {
		return 0, nil
	}
	for i := range frames {
		frames[i] = e.next()
	}
	return len(frames), nil
}

func (e *Engine) next() playback.Frame {
	e.samples++
	if e.ended {
		return playback.Frame{}
	}

	f := e.data[e.cursor>>fracBits]
	e.cursor += e.step
	e.played += e.step

	end := e.trackEnd()
	for e.cursor >= end && !e.ended {
		if e.looping() {
			e.cursor -= e.loopLen()
			e.curLoop++
			e.emit(playback.EngineLoop, e.curLoop)
		} else {
			e.ended = true
			e.emit(playback.EngineEnd, 0)
		}
	}
	return f
}

// Seek implements playback.Engine. Loop events for every loop boundary
// crossed are delivered before Seek returns.
func (e *Engine) Seek(unit playback.PosUnit, pos uint32) error {
	var target uint64
	switch unit {
	case playback.PosTick:
		target = uint64(pos) << fracBits
	case playback.PosFileOffset:
		target = uint64(pos/4) << fracBits
	default:
		// a sample position past 2^32 ticks does not fit the 32.32 cursor
		hi, lo := bits.Mul64(uint64(pos), e.step)
		if hi != 0 {
			return errors.Wrapf(ErrOutOfRange, "seek to %s %d", unit, pos)
		}
		target = lo
	}

	end := e.trackEnd()
	if !e.looping() && target > end {
		return errors.Wrapf(ErrOutOfRange, "seek to %s %d", unit, pos)
	}

	e.rewind()
	e.played = target
	e.samples = uint32(target / e.step)

	switch {
	case target < end:
		e.cursor = target
	case e.looping():
		loops := (target-end)/e.loopLen() + 1
		e.cursor = target - loops*e.loopLen()
		for i := uint64(0); i < loops; i++ {
			e.curLoop++
			e.emit(playback.EngineLoop, e.curLoop)
		}
	default:
		e.cursor = end
		e.ended = true
		e.emit(playback.EngineEnd, 0)
	}
	return nil
}

// Position implements playback.Engine. The file offset is the byte offset
// of the current frame in 16-bit stereo PCM data.
func (e *Engine) Position(unit playback.PosUnit) uint32 {
	switch unit {
	case playback.PosTick:
		return uint32(e.played >> fracBits)
	case playback.PosFileOffset:
		return uint32(e.cursor>>fracBits) * 4
	default:
		return e.samples
	}
}

// TotalPlayTicks implements playback.Engine.
func (e *Engine) TotalPlayTicks(loops uint32) uint32 {
	if !e.looping() {
		return uint32(len(e.data))
	}
	if loops == 0 {
		loops = 1
	}
	return e.loopEnd + (loops-1)*e.LoopTicks()
}

// LoopTicks implements playback.Engine.
func (e *Engine) LoopTicks() uint32 {
	if !e.looping() {
		return 0
	}
	return e.loopEnd - e.loopStart
}

// CurrentLoop implements playback.Engine.
func (e *Engine) CurrentLoop() uint32 { return e.curLoop }

// TickRate implements playback.Engine.
func (e *Engine) TickRate() uint32 { return e.srcRate }

// SetSampleRate implements playback.Engine.
func (e *Engine) SetSampleRate(rate uint32) {
	e.outRate = rate
	e.updateStep()
}

// SetSpeed implements playback.Engine.
func (e *Engine) SetSpeed(speed float64) {
	e.speed = speed
	e.updateStep()
}

// SetEventHandler implements playback.Engine.
func (e *Engine) SetEventHandler(fn func(playback.EngineEvent)) { e.handler = fn }

// Info implements playback.Engine.
func (e *Engine) Info() track.Info { return e.info }

// Close implements playback.Engine.
func (e *Engine) Close() error {
	e.data = nil
	e.started = false
	return nil
}
