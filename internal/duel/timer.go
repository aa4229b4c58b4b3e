package duel

import "time"

// timerKind identifies which scheduled wakeup fired.
type timerKind int

const (
	timerWaiting timerKind = iota
	timerCountdown
	timerDeadline
	timerReveal
	timerGrace
)

// wakeup is posted onto the session inbox when a scheduled timer fires. The
// generation counter lets the loop drop firings that were cancelled while
// already in flight.
type wakeup struct {
	kind timerKind
	gen  uint64
	seat int // grace timers only
}

func (wakeup) sessionEvent() {}

// alarm is a cancellable one-shot timer slot. All methods run on the session
// loop; the AfterFunc callback only posts a wakeup back onto that loop, so no
// locking is needed.
type alarm struct {
	gen uint64
	t   *time.Timer
}

// schedule cancels any pending firing and arms the slot. fire receives the
// generation the wakeup must carry to be considered current.
func (a *alarm) schedule(d time.Duration, fire func(gen uint64)) {
	a.cancel()
	a.gen++
	gen := a.gen
	a.t = time.AfterFunc(d, func() { fire(gen) })
}

// cancel stops the pending timer and invalidates any firing already queued.
func (a *alarm) cancel() {
	if a.t != nil {
		a.t.Stop()
		a.t = nil
	}
	a.gen++
}

// matches reports whether a wakeup generation is still current.
func (a *alarm) matches(gen uint64) bool {
	return a.t != nil && gen == a.gen
}
