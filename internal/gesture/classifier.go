package gesture

import (
	"log"
	"sync"
	"time"
)

// State is the classifier's press lifecycle position.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateLongPressActive
)

// Kind identifies an emitted gesture event.
type Kind int

const (
	KindTap Kind = iota
	KindLongPressStarted
	KindLongPressEnded
)

func (k Kind) String() string {
	switch k {
	case KindTap:
		return "tap"
	case KindLongPressStarted:
		return "long_press_started"
	case KindLongPressEnded:
		return "long_press_ended"
	}
	return "unknown"
}

// Event is one classified gesture outcome. Elapsed is the press
// duration at emission time.
type Event struct {
	Kind    Kind
	Elapsed time.Duration
}

// Feedback is the best-effort haptics boundary. Vibrate failures are
// ignored; absence of the capability never changes classification.
type Feedback interface {
	Vibrate(d time.Duration) error
}

// NoFeedback is the null haptics implementation.
type NoFeedback struct{}

func (NoFeedback) Vibrate(time.Duration) error { return nil }

// Classifier turns press-start/press-end event pairs into tap or
// long-press events. It owns the single press-duration timer; all
// transitions are serialized under one mutex, so a release and a timer
// fire landing in the same tick resolve in whichever order the host
// scheduler delivers them and the loser is a no-op. The winner at
// exactly the threshold is therefore platform-dependent.
type Classifier struct {
	mu        sync.Mutex
	threshold time.Duration
	emit      func(Event)
	haptics   Feedback

	state     State
	pressedAt time.Time
	timer     *time.Timer
	arm       uint64 // generation counter; stale timer fires are discarded
}

func NewClassifier(threshold time.Duration, haptics Feedback, emit func(Event)) *Classifier {
	if threshold <= 0 {
		threshold = 500 * time.Millisecond
	}
	if haptics == nil {
		haptics = NoFeedback{}
	}
	if emit == nil {
		emit = func(Event) {}
	}
	return &Classifier{threshold: threshold, emit: emit, haptics: haptics}
}

// State returns the current lifecycle position.
func (c *Classifier) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PressStart arms the long-press timer. Re-arming while a press is
// outstanding is a contract violation by the caller; the previous timer
// is defensively cancelled so it can never double-fire.
func (c *Classifier) PressStart() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.state = StateArmed
	c.pressedAt = time.Now()
	c.arm++
	seq := c.arm
	c.timer = time.AfterFunc(c.threshold, func() { c.fire(seq) })
	c.mu.Unlock()
}

// fire runs when the press-duration timer elapses. A fire from a
// cancelled or superseded arm is silently dropped.
func (c *Classifier) fire(seq uint64) {
	c.mu.Lock()
	if seq != c.arm || c.state != StateArmed {
		c.mu.Unlock()
		return
	}
	c.state = StateLongPressActive
	c.timer = nil
	elapsed := time.Since(c.pressedAt)
	c.mu.Unlock()

	if err := c.haptics.Vibrate(50 * time.Millisecond); err != nil {
		log.Printf("[gesture] haptic feedback unavailable: %v", err)
	}
	metricLongPresses.Inc()
	c.emit(Event{Kind: KindLongPressStarted, Elapsed: elapsed})
}

// PressEnd finishes the press: a tap if the timer has not fired yet,
// the end of the long press otherwise.
func (c *Classifier) PressEnd() {
	c.mu.Lock()
	switch c.state {
	case StateArmed:
		c.stopTimerLocked()
		c.state = StateIdle
		elapsed := time.Since(c.pressedAt)
		c.mu.Unlock()
		metricTaps.Inc()
		metricPressDuration.Observe(float64(elapsed.Milliseconds()))
		c.emit(Event{Kind: KindTap, Elapsed: elapsed})
	case StateLongPressActive:
		c.state = StateIdle
		elapsed := time.Since(c.pressedAt)
		c.mu.Unlock()
		metricPressDuration.Observe(float64(elapsed.Milliseconds()))
		c.emit(Event{Kind: KindLongPressEnded, Elapsed: elapsed})
	default:
		c.mu.Unlock()
	}
}

// PressCancel aborts a pending press. While armed it cancels silently;
// once the long press is active it must finalize like a release so the
// recording overlay is always closed.
func (c *Classifier) PressCancel() {
	c.mu.Lock()
	if c.state == StateArmed {
		c.stopTimerLocked()
		c.state = StateIdle
		c.mu.Unlock()
		metricCancels.Inc()
		return
	}
	c.mu.Unlock()
	c.PressEnd()
}

// stopTimerLocked cancels the outstanding timer if any. Stopping an
// already-fired timer is a no-op; the arm counter handles that race.
func (c *Classifier) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// ClassifyPress resolves an already-completed press from its start and
// end timestamps alone: strictly under the threshold is a tap,
// anything else a long press.
func ClassifyPress(start, end time.Time, threshold time.Duration) Kind {
	if end.Sub(start) < threshold {
		return KindTap
	}
	return KindLongPressEnded
}
