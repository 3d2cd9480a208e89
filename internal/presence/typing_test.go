package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signal struct {
	counterpart string
	typing      bool
	at          time.Time
}

type recorder struct {
	clk  clock.Clock
	mu   sync.Mutex
	sent []signal
	fail bool
}

func (r *recorder) emit(counterpart string, typing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("not connected")
	}
	r.sent = append(r.sent, signal{counterpart, typing, r.clk.Now()})
	return nil
}

func (r *recorder) signals() []signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]signal(nil), r.sent...)
}

func setup() (*clock.Mock, *recorder, *Tracker) {
	clk := clock.NewMock()
	rec := &recorder{clk: clk}
	return clk, rec, NewTracker(clk, 3*time.Second, rec.emit)
}

func TestTypingExpiresAfterIdleWindow(t *testing.T) {
	clk, rec, tracker := setup()
	start := clk.Now()

	tracker.Keystroke("c1")
	clk.Add(time.Second)
	tracker.Keystroke("c1")
	clk.Add(time.Second)
	tracker.Keystroke("c1")

	require.Equal(t, []signal{{"c1", true, start}}, rec.signals())

	clk.Add(2999 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	require.Len(t, rec.signals(), 1)
	assert.True(t, tracker.Active("c1"))

	clk.Add(time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.signals()) == 2 }, time.Second, 5*time.Millisecond)

	last := rec.signals()[1]
	assert.False(t, last.typing)
	assert.Equal(t, start.Add(5*time.Second), last.at)
	assert.False(t, tracker.Active("c1"))

	clk.Add(10 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, rec.signals(), 2)
}

func TestStopEmitsFalseOnce(t *testing.T) {
	clk, rec, tracker := setup()

	tracker.Keystroke("c1")
	assert.True(t, tracker.Stop("c1"))
	assert.False(t, tracker.Stop("c1"))

	clk.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)

	sent := rec.signals()
	require.Len(t, sent, 2)
	assert.True(t, sent[0].typing)
	assert.False(t, sent[1].typing)
}

func TestTypingRestartsAfterExpiry(t *testing.T) {
	clk, rec, tracker := setup()

	tracker.Keystroke("c1")
	clk.Add(3 * time.Second)
	require.Eventually(t, func() bool { return len(rec.signals()) == 2 }, time.Second, 5*time.Millisecond)

	tracker.Keystroke("c1")
	sent := rec.signals()
	require.Len(t, sent, 3)
	assert.True(t, sent[2].typing)
}

func TestStopAllCoversEveryCounterpart(t *testing.T) {
	clk, rec, tracker := setup()

	tracker.Keystroke("c1")
	tracker.Keystroke("c2")
	tracker.StopAll()
	clk.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)

	stops := map[string]int{}
	for _, s := range rec.signals() {
		if !s.typing {
			stops[s.counterpart]++
		}
	}
	assert.Equal(t, map[string]int{"c1": 1, "c2": 1}, stops)
	assert.False(t, tracker.Active("c1"))
}

func TestFailedStartIsRetriedOnNextKeystroke(t *testing.T) {
	clk, rec, tracker := setup()
	rec.fail = true

	tracker.Keystroke("c1")
	assert.False(t, tracker.Active("c1"))

	rec.mu.Lock()
	rec.fail = false
	rec.mu.Unlock()
	tracker.Keystroke("c1")
	assert.Equal(t, []signal{{"c1", true, clk.Now()}}, rec.signals())
	tracker.Keystroke("")
	assert.Len(t, rec.signals(), 1)
}
