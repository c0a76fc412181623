package notification

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the signals it receives.
type recorder struct {
	mu      sync.Mutex
	name    string
	log     *[]string
	signals []Mask
}

func (r *recorder) OnSignal(mask Mask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, mask)
	if r.log != nil {
		*r.log = append(*r.log, r.name)
	}
}

func TestManager_SignalOrder(t *testing.T) {
	m := NewManager()
	var order []string
	a := &recorder{name: "a", log: &order}
	b := &recorder{name: "b", log: &order}
	c := &recorder{name: "c", log: &order}

	m.Subscribe(a)
	hb := m.Subscribe(b)
	m.Subscribe(c)
	require.Equal(t, 3, m.SubscriberCount())

	m.Signal(SignalNewTrack)
	m.Signal(SignalPlayState | SignalPosition)
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, order)
	assert.Equal(t, []Mask{SignalNewTrack, SignalPlayState | SignalPosition}, a.signals)
	assert.Equal(t, uint64(2), m.SequenceNo())

	m.Unsubscribe(hb)
	order = nil
	m.Signal(SignalVolume)
	assert.Equal(t, []string{"a", "c"}, order)
	assert.Len(t, b.signals, 2)

	// unknown handles are ignored
	m.Unsubscribe("missing")
	assert.Equal(t, 2, m.SubscriberCount())
}

func TestManager_EmptyMask(t *testing.T) {
	m := NewManager()
	r := &recorder{}
	m.Subscribe(r)

	m.Signal(0)
	assert.Empty(t, r.signals)
	assert.Equal(t, uint64(0), m.SequenceNo())
}

func TestManager_SignalTo(t *testing.T) {
	m := NewManager()
	a := &recorder{}
	b := &recorder{}
	m.Subscribe(a)
	hb := m.Subscribe(b)

	m.SignalTo(hb, SignalAll)
	assert.Empty(t, a.signals)
	assert.Equal(t, []Mask{SignalAll}, b.signals)

	m.SignalTo("missing", SignalAll)
}

func TestManager_PanickingObserver(t *testing.T) {
	m := NewManager()
	m.Subscribe(ObserverFunc(func(Mask) { panic("observer failure") }))
	r := &recorder{}
	m.Subscribe(r)

	assert.NotPanics(t, func() { m.Signal(SignalPosition) })
	assert.Equal(t, []Mask{SignalPosition}, r.signals)
}

func TestManager_NoConcurrentDelivery(t *testing.T) {
	m := NewManager()

	var (
		mu     sync.Mutex
		inside int
		maxIn  int
		calls  int
	)
	m.Subscribe(ObserverFunc(func(Mask) {
		mu.Lock()
		inside++
		if inside > maxIn {
			maxIn = inside
		}
		calls++
		mu.Unlock()

		mu.Lock()
		inside--
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Signal(SignalPosition)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxIn)
	assert.Equal(t, 16*50, calls)
}

func TestManager_Close(t *testing.T) {
	m := NewManager()
	r := &recorder{}
	m.Subscribe(r)
	m.Close()

	assert.Equal(t, 0, m.SubscriberCount())
	m.Signal(SignalAll)
	assert.Empty(t, r.signals)
}

func TestMask_String(t *testing.T) {
	tests := []struct {
		mask Mask
		want string
	}{
		{0, "none"},
		{SignalNewTrack, "new_track"},
		{SignalPlayState | SignalPosition, "play_state|position"},
		{SignalAll, "new_track|play_state|position|volume"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.mask.String())
		})
	}
}
