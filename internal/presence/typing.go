package presence

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	jww "github.com/spf13/jwalterweatherman"
)

// DefaultIdle is how long after the last keystroke typing is considered over.
const DefaultIdle = 3 * time.Second

// EmitFunc publishes a local typing signal towards counterpart.
type EmitFunc func(counterpart string, typing bool) error

type pending struct {
	timer *clock.Timer
	gen   uint64
}

// Tracker debounces local typing signals. At most one idle timer runs per
// counterpart; typing=true is emitted on the first keystroke and
// typing=false once, when the timer fires or typing is stopped.
type Tracker struct {
	clock clock.Clock
	idle  time.Duration
	emit  EmitFunc

	mu     sync.Mutex
	gen    uint64
	active map[string]*pending
}

// NewTracker returns a tracker. A nil clock uses the wall clock and a
// non-positive idle uses DefaultIdle.
func NewTracker(clk clock.Clock, idle time.Duration, emit EmitFunc) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Tracker{
		clock:  clk,
		idle:   idle,
		emit:   emit,
		active: make(map[string]*pending),
	}
}

// Keystroke records composer activity towards counterpart.
func (t *Tracker) Keystroke(counterpart string) {
	if counterpart == "" {
		return
	}
	t.mu.Lock()
	p, ok := t.active[counterpart]
	if !ok {
		p = &pending{}
		t.active[counterpart] = p
	}
	t.gen++
	gen := t.gen
	p.gen = gen
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = t.clock.AfterFunc(t.idle, func() { t.expire(counterpart, gen) })
	t.mu.Unlock()

	if ok {
		return
	}
	if err := t.emit(counterpart, true); err != nil {
		jww.WARN.Printf("typing start not sent counterpart=%s err=%v", counterpart, err)
		t.forget(counterpart, gen)
	}
}

// Stop ends typing towards counterpart, typically because the message was
// sent. It reports whether a typing=false signal was emitted.
func (t *Tracker) Stop(counterpart string) bool {
	t.mu.Lock()
	p, ok := t.active[counterpart]
	if ok {
		p.timer.Stop()
		delete(t.active, counterpart)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	t.send(counterpart)
	return true
}

// StopAll ends typing towards every counterpart and cancels all timers.
func (t *Tracker) StopAll() {
	t.mu.Lock()
	stopped := make([]string, 0, len(t.active))
	for counterpart, p := range t.active {
		p.timer.Stop()
		stopped = append(stopped, counterpart)
	}
	t.active = make(map[string]*pending)
	t.mu.Unlock()

	for _, counterpart := range stopped {
		t.send(counterpart)
	}
}

// Active reports whether typing towards counterpart is in progress.
func (t *Tracker) Active(counterpart string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[counterpart]
	return ok
}

func (t *Tracker) expire(counterpart string, gen uint64) {
	if !t.forget(counterpart, gen) {
		return
	}
	t.send(counterpart)
}

// forget drops the entry for counterpart if it still belongs to gen.
func (t *Tracker) forget(counterpart string, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.active[counterpart]
	if !ok || p.gen != gen {
		return false
	}
	p.timer.Stop()
	delete(t.active, counterpart)
	return true
}

func (t *Tracker) send(counterpart string) {
	if err := t.emit(counterpart, false); err != nil {
		jww.WARN.Printf("typing stop not sent counterpart=%s err=%v", counterpart, err)
	}
}
