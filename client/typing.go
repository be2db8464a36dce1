package client

import (
	"sync"
	"time"
)

// Debouncer collapses a stream of keystrokes into a single typing
// notification and a single stop-typing once input goes quiet. The first
// keystroke fires start; each keystroke re-arms the idle timer; the timer
// firing (or an explicit Blur) flips back and fires stop exactly once.
type Debouncer struct {
	mu     sync.Mutex
	idle   time.Duration
	typing bool
	timer  *time.Timer
	start  func()
	stop   func()
}

// NewDebouncer creates a debouncer with the given idle interval.
func NewDebouncer(idle time.Duration, start, stop func()) *Debouncer {
	return &Debouncer{
		idle:  idle,
		start: start,
		stop:  stop,
	}
}

// Keystroke records one unit of input activity.
func (d *Debouncer) Keystroke() {
	d.mu.Lock()
	fireStart := false
	if !d.typing {
		d.typing = true
		fireStart = true
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.idle, d.expire)
	d.mu.Unlock()

	if fireStart {
		d.start()
	}
}

// Blur forces an immediate stop-typing if one is pending.
func (d *Debouncer) Blur() {
	d.mu.Lock()
	fireStop := d.typing
	d.typing = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	if fireStop {
		d.stop()
	}
}

func (d *Debouncer) expire() {
	d.mu.Lock()
	fireStop := d.typing
	d.typing = false
	d.timer = nil
	d.mu.Unlock()

	if fireStop {
		d.stop()
	}
}
