package session

import (
	"sync"
	"time"
)

// Watchdog default parameters.
const (
	defaultWatchdogInterval  = 30 * time.Second
	defaultInactivityTimeout = 4 * time.Minute
)

// Watchdog auto-stops a session after a period of audio silence. It ticks
// on a fixed interval, compares the last-audio time against the timeout,
// and fires the expiry callback exactly once. Socket detach does not stop
// the watchdog — a client that walks away without stopping still gets its
// meeting finalized.
type Watchdog struct {
	interval  time.Duration
	timeout   time.Duration
	lastAudio func() time.Time
	onExpire  func(silence time.Duration)

	done     chan struct{}
	stopOnce sync.Once
}

// NewWatchdog creates a [Watchdog]. interval and timeout fall back to the
// defaults (30 s, 4 min) when non-positive. lastAudio supplies the time of
// the most recent accepted frame; onExpire runs on the watchdog goroutine
// when the silence threshold is crossed.
func NewWatchdog(interval, timeout time.Duration, lastAudio func() time.Time, onExpire func(silence time.Duration)) *Watchdog {
	if interval <= 0 {
		interval = defaultWatchdogInterval
	}
	if timeout <= 0 {
		timeout = defaultInactivityTimeout
	}
	return &Watchdog{
		interval:  interval,
		timeout:   timeout,
		lastAudio: lastAudio,
		onExpire:  onExpire,
		done:      make(chan struct{}),
	}
}

// Start launches the watchdog goroutine.
func (w *Watchdog) Start() {
	go w.loop()
}

// Stop cancels the watchdog. Idempotent; safe to call from onExpire.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watchdog) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			silence := now.Sub(w.lastAudio())
			if silence >= w.timeout {
				w.Stop()
				w.onExpire(silence)
				return
			}
		}
	}
}
