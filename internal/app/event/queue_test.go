package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()

	_, ok := q.TryPop()
	assert.False(t, ok, "empty queue")

	records := []Record{
		Pause(PauseOn),
		SeekAbsolute(0),
		Pause(PauseOff),
		Pause(PauseOff), // duplicates are not coalesced
	}
	for _, r := range records {
		q.Push(r)
	}
	assert.Equal(t, len(records), q.Len())

	for _, want := range records {
		got, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok = q.TryPop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_Clear(t *testing.T) {
	q := NewQueue()
	q.Push(Fade())
	q.Push(Nav(NavNext))
	q.Clear()

	assert.Equal(t, 0, q.Len())
	q.Push(Nav(NavQuit))
	r, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, Nav(NavQuit), r)
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	const (
		producers = 8
		perWorker = 500
	)
	q := NewQueue()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				q.Push(Record{Kind: Kind(p), Param: int32(i)})
			}
		}(p)
	}

	// consume while producers run
	lastParam := make(map[Kind]int32)
	received := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	check := func(r Record) {
		last, seen := lastParam[r.Kind]
		if seen {
			assert.Equal(t, last+1, r.Param, "per-producer order for kind %s", r.Kind)
		} else {
			assert.Equal(t, int32(0), r.Param)
		}
		lastParam[r.Kind] = r.Param
		received++
	}

loop:
	for {
		select {
		case <-done:
			break loop
		default:
			if r, ok := q.TryPop(); ok {
				check(r)
			}
		}
	}
	for {
		r, ok := q.TryPop()
		if !ok {
			break
		}
		check(r)
	}

	assert.Equal(t, producers*perWorker, received)
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindControl, "control"},
		{KindPause, "pause"},
		{KindFade, "fade"},
		{KindPlaylistNav, "playlist_nav"},
		{KindSeekRelative, "seek_relative"},
		{KindSeekAbsolute, "seek_absolute"},
		{KindSeekPercent, "seek_percent"},
		{KindVolume, "volume"},
		{KindVolumeStep, "volume_step"},
		{Kind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}

func TestRecord_String(t *testing.T) {
	assert.Equal(t, "seek_relative(-220500)", SeekRelative(-220500).String())
	assert.Equal(t, "playlist_nav(2)", Nav(NavQuit).String())
}
