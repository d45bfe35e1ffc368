package jackpot

import (
	"time"

	"github.com/coder/quartz"
)

// phaseTimer is a single cancel-and-reschedule timer. Every schedule or stop
// bumps gen, so a callback that already fired but lost the race for the
// engine lock can tell it is stale.
type phaseTimer struct {
	clock quartz.Clock
	timer *quartz.Timer
	gen   uint64
	ends  time.Time
}

func (t *phaseTimer) schedule(d time.Duration, fire func(gen uint64)) {
	t.stop()
	gen := t.gen
	t.ends = t.clock.Now().Add(d)
	t.timer = t.clock.AfterFunc(d, func() { fire(gen) }, "jackpot", "phase")
}

func (t *phaseTimer) stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.ends = time.Time{}
}

func (t *phaseTimer) active() bool { return t.timer != nil }

func (t *phaseTimer) remaining(now time.Time) time.Duration {
	if t.timer == nil {
		return 0
	}
	return max(0, t.ends.Sub(now))
}
