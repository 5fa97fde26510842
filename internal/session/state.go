package session

import (
	"strings"
	"sync"
	"time"
)

// finalEntry records one streaming window transcript for the suggestion
// gate's rolling word count.
type finalEntry struct {
	at    time.Time
	words int
	text  string
}

// State is the in-memory half of a live session. It is owned by the
// [Orchestrator]; every mutation happens under mu, and no I/O is performed
// while mu is held. A State survives socket detach/reattach — only the
// emitter handle swaps.
type State struct {
	ID        string
	DeckID    string
	TenantID  string
	StartedAt time.Time

	mu sync.Mutex

	emitter   Emitter
	streaming Streamer // lazily created on first audio frame

	framesReceived int
	bytesReceived  int
	lastAudioAt    time.Time
	lastStatusAt   time.Time

	initialScheduled  bool
	initialDone       bool
	suggestionLastRun time.Time
	recentFinals      []finalEntry
	kbContext         string // cached formatted knowledge-base context

	watchdog        *Watchdog
	watchdogStarted bool

	stopped      bool
	finalizeOnce sync.Once
}

// setEmitter swaps the attached socket handle. A nil emitter detaches.
func (s *State) setEmitter(e Emitter) {
	s.mu.Lock()
	s.emitter = e
	s.mu.Unlock()
}

// currentEmitter returns the attached emitter, or nil while detached.
func (s *State) currentEmitter() Emitter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitter
}

// emit delivers ev through fn when a socket is attached; while detached
// events are dropped.
func (s *State) emit(fn func(Emitter)) {
	if e := s.currentEmitter(); e != nil {
		fn(e)
	}
}

// lastAudio returns the time of the most recently accepted frame; used by
// the watchdog.
func (s *State) lastAudio() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAudioAt
}

// recordFinal appends a window-final transcript to the rolling gate window
// and prunes entries older than window.
func (s *State) recordFinal(text string, at time.Time, window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recentFinals = append(s.recentFinals, finalEntry{
		at:    at,
		words: len(strings.Fields(text)),
		text:  text,
	})
	s.pruneFinalsLocked(at, window)
}

// recentWindow returns the joined text and word count of the finals inside
// the rolling window ending at now.
func (s *State) recentWindow(now time.Time, window time.Duration) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneFinalsLocked(now, window)
	var (
		parts []string
		words int
	)
	for _, f := range s.recentFinals {
		parts = append(parts, f.text)
		words += f.words
	}
	return strings.Join(parts, " "), words
}

// pruneFinalsLocked drops entries older than the window. Must be called
// with mu held.
func (s *State) pruneFinalsLocked(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(s.recentFinals) && s.recentFinals[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.recentFinals = append([]finalEntry(nil), s.recentFinals[i:]...)
	}
}
