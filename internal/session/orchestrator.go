package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/internal/kbctx"
	"github.com/parley-ai/parley/internal/store"
	"github.com/parley-ai/parley/internal/suggest"
	"github.com/parley-ai/parley/internal/transcribe"
	"github.com/parley-ai/parley/internal/transcript"
	"github.com/parley-ai/parley/pkg/audio"
	"github.com/parley-ai/parley/pkg/types"
)

// Streamer is the per-session streaming transcriber handle. Implemented by
// [transcribe.Streaming].
type Streamer interface {
	// Send enqueues one PCM frame. Never blocks.
	Send(pcm []byte)

	// Close stops the stream after a final flush. Idempotent.
	Close()

	// Complete returns the full session PCM captured so far.
	Complete() []byte
}

// FullTranscriber runs the end-of-session diarized transcription.
// Implemented by [transcribe.Full].
type FullTranscriber interface {
	TranscribeComplete(ctx context.Context, pcm []byte, opts transcribe.FullOptions) (*types.FullTranscript, error)
}

// Generator produces suggested questions. Implemented by [suggest.Engine].
type Generator interface {
	Generate(ctx context.Context, kbContext, transcript string, existing []string) (*suggest.Result, error)
}

// ContextBuilder assembles the deck knowledge base. Implemented by
// [kbctx.Assembler].
type ContextBuilder interface {
	Assemble(ctx context.Context, deckID string) (*kbctx.KnowledgeBase, error)
}

// MeetingSummarizer produces the end-of-meeting summary. Implemented by
// [Summarizer].
type MeetingSummarizer interface {
	Summarize(ctx context.Context, in SummaryInput) *types.MeetingSummary
}

// Config tunes the orchestrator. Zero values fall back to the defaults
// noted per field.
type Config struct {
	// SampleRate of inbound PCM in Hz. Default 16000.
	SampleRate int

	// Language hint forwarded to the transcription providers. Empty means
	// auto-detect.
	Language string

	// WatchdogInterval is the inactivity check cadence. Default 30 s.
	WatchdogInterval time.Duration

	// InactivityTimeout is the silence span after which a session is
	// auto-stopped. Default 4 min.
	InactivityTimeout time.Duration

	// SuggestionInterval is the minimum spacing between rolling suggestion
	// runs. Default 60 s.
	SuggestionInterval time.Duration

	// SuggestionWindow is the rolling transcript window the suggestion
	// gate counts words in. Default 3 min.
	SuggestionWindow time.Duration

	// SuggestionMinWords is the minimum word count inside the window
	// before a rolling run fires. Default 50.
	SuggestionMinWords int

	// RecordingStatusEvery is the minimum spacing between recording-status
	// events. Default 5 s.
	RecordingStatusEvery time.Duration

	// FinalizeTimeout bounds the end-of-session transcription and summary
	// pipeline. Default 10 min.
	FinalizeTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = defaultWatchdogInterval
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = defaultInactivityTimeout
	}
	if c.SuggestionInterval <= 0 {
		c.SuggestionInterval = 60 * time.Second
	}
	if c.SuggestionWindow <= 0 {
		c.SuggestionWindow = 3 * time.Minute
	}
	if c.SuggestionMinWords <= 0 {
		c.SuggestionMinWords = 50
	}
	if c.RecordingStatusEvery <= 0 {
		c.RecordingStatusEvery = 5 * time.Second
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = 10 * time.Minute
	}
}

// Deps are the orchestrator's collaborators. LiveTranscripts receives the
// streaming window partials and is expected to be wrapped in a
// [store.TranscriptGuard] so persistence hiccups never interrupt a live
// meeting; Transcripts is the unguarded store used during finalization,
// where a write failure must mark the session failed.
type Deps struct {
	Registry        *Registry
	Sessions        store.SessionStore
	LiveTranscripts store.TranscriptStore
	Transcripts     store.TranscriptStore
	Assembler       ContextBuilder
	Engine          Generator
	Summarizer      MeetingSummarizer
	Full            FullTranscriber

	// NewStreamer builds the streaming transcriber for one session. nil
	// means no speech provider is configured; audio is then rejected with
	// PROVIDER_KEY_MISSING.
	NewStreamer func(sessionID string, onResult func(types.Transcript), onError func(error)) Streamer
}

// StopResult is returned by [Orchestrator.Stop].
type StopResult struct {
	EndedAt         time.Time `json:"endedAt"`
	DurationSeconds float64   `json:"durationSeconds"`
	SummaryPending  bool      `json:"summaryPending"`
}

// Orchestrator ties the live-session pieces together: audio ingest,
// streaming transcription, suggestion runs, the inactivity watchdog, and
// the exactly-once finalization pipeline.
type Orchestrator struct {
	cfg  Config
	deps Deps

	// qmu serializes question-list read-modify-write cycles across
	// suggestion runs and the answered/deleted operations.
	qmu sync.Mutex

	now func() time.Time
}

// NewOrchestrator creates an [Orchestrator].
func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		cfg:  cfg,
		deps: deps,
		now:  time.Now,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Attach / detach

// Attach binds a socket emitter to a session. It validates the session
// against the store, creates the live state on first join (reconnects get
// the existing state back), starts the inactivity watchdog, confirms the
// join, and replays the current question list.
func (o *Orchestrator) Attach(ctx context.Context, sessionID string, e Emitter) error {
	sess, err := o.deps.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NewError(CodeSessionNotFound, "session not found: "+sessionID)
		}
		slog.Error("session lookup failed on join",
			"session_id", sessionID,
			"error", err)
		return NewError(CodeJoinError, "could not load session")
	}
	if sess.Status != types.SessionActive {
		return NewError(CodeSessionInactive, "session is not active")
	}

	st := o.deps.Registry.Create(sessionID, func() *State {
		return &State{
			ID:        sess.ID,
			DeckID:    sess.DeckID,
			TenantID:  sess.TenantID,
			StartedAt: sess.StartedAt,
		}
	})
	st.setEmitter(e)
	o.startWatchdog(st)

	st.emit(func(em Emitter) {
		em.EmitStatus(StatusEvent{Status: "joined", Message: "session joined"})
		if visible := sess.VisibleQuestions(); len(visible) > 0 {
			em.EmitQuestionsUpdated(QuestionsUpdatedEvent{Questions: visible})
		}
	})

	st.mu.Lock()
	schedule := !st.initialScheduled
	if schedule {
		st.initialScheduled = true
	}
	st.mu.Unlock()
	if schedule {
		go o.runInitialSuggestions(st)
	}

	slog.Info("session attached",
		"session_id", sessionID,
		"deck_id", sess.DeckID)
	return nil
}

// Detach unbinds the socket from a session. The session keeps recording;
// the watchdog keeps running.
func (o *Orchestrator) Detach(sessionID string) {
	if st, ok := o.deps.Registry.Get(sessionID); ok {
		st.setEmitter(nil)
		slog.Info("session detached", "session_id", sessionID)
	}
}

// startWatchdog arms the inactivity watchdog exactly once per session.
func (o *Orchestrator) startWatchdog(st *State) {
	st.mu.Lock()
	if st.watchdogStarted {
		st.mu.Unlock()
		return
	}
	st.watchdogStarted = true
	if st.lastAudioAt.IsZero() {
		st.lastAudioAt = o.now()
	}
	st.watchdog = NewWatchdog(o.cfg.WatchdogInterval, o.cfg.InactivityTimeout, st.lastAudio, func(silence time.Duration) {
		o.autoStop(st, silence)
	})
	w := st.watchdog
	st.mu.Unlock()
	w.Start()
}

// ─────────────────────────────────────────────────────────────────────────────
// Audio ingest

// HandleAudio ingests one audio frame. raw may be a []byte (binary frame)
// or a base64 string (JSON frame); malformed frames are dropped silently.
// Frames arriving after stop are dropped. The returned error, if any, is a
// session [*Error] the gateway forwards to the client.
func (o *Orchestrator) HandleAudio(sessionID string, raw any) error {
	pcm, ok := audio.Normalize(raw)
	if !ok {
		return nil
	}

	st, found := o.deps.Registry.Get(sessionID)
	if !found {
		return NewError(CodeSessionNotFound, "no live session: "+sessionID)
	}

	now := o.now()

	st.mu.Lock()
	if st.stopped {
		st.mu.Unlock()
		return nil
	}
	if st.streaming == nil {
		if o.deps.NewStreamer == nil {
			st.mu.Unlock()
			return NewError(CodeProviderKeyMissing, "no speech provider configured")
		}
		st.streaming = o.deps.NewStreamer(st.ID,
			func(tr types.Transcript) { o.onPartial(st, tr) },
			func(err error) { o.onStreamError(st, err) })
		if st.streaming == nil {
			st.mu.Unlock()
			return NewError(CodeProviderKeyMissing, "no speech provider available for this session")
		}
	}
	st.framesReceived++
	st.bytesReceived += len(pcm)
	st.lastAudioAt = now
	st.streaming.Send(pcm) // non-blocking by contract

	var status *RecordingStatusEvent
	if now.Sub(st.lastStatusAt) >= o.cfg.RecordingStatusEvery {
		st.lastStatusAt = now
		status = &RecordingStatusEvent{
			AudioSizeMB:              float64(st.bytesReceived) / (1 << 20),
			AudioChunks:              st.framesReceived,
			EstimatedDurationSeconds: audio.DurationSeconds(st.bytesReceived, o.cfg.SampleRate),
			Message:                  "recording",
		}
	}

	var windowText string
	runSuggestions := false
	if st.initialDone && now.Sub(st.suggestionLastRun) >= o.cfg.SuggestionInterval {
		st.pruneFinalsLocked(now, o.cfg.SuggestionWindow)
		words := 0
		for _, f := range st.recentFinals {
			words += f.words
		}
		if words >= o.cfg.SuggestionMinWords {
			parts := make([]string, 0, len(st.recentFinals))
			for _, f := range st.recentFinals {
				parts = append(parts, f.text)
			}
			windowText = joinNonEmpty(parts)
			st.suggestionLastRun = now
			runSuggestions = true
		}
	}
	st.mu.Unlock()

	if status != nil {
		st.emit(func(em Emitter) { em.EmitRecordingStatus(*status) })
	}
	if runSuggestions {
		go o.runRollingSuggestions(st, windowText, "")
	}
	return nil
}

// onPartial handles one streaming window transcript: emit to the client,
// persist through the guarded store, and feed the suggestion gate.
func (o *Orchestrator) onPartial(st *State, tr types.Transcript) {
	tr.SessionID = st.ID
	tr.DeckID = st.DeckID
	tr.IsFinal = false // window partial; the full-audio pass writes the finals

	st.emit(func(em Emitter) {
		em.EmitTranscription(TranscriptionEvent{
			Text:         tr.Text,
			IsFinal:      true, // each window result is final for its span
			Timestamp:    tr.Timestamp,
			LanguageCode: tr.LanguageCode,
		})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = o.deps.LiveTranscripts.AppendTranscript(ctx, tr)

	st.recordFinal(tr.Text, tr.Timestamp, o.cfg.SuggestionWindow)
}

// onStreamError reports a streaming transcription failure without
// interrupting capture.
func (o *Orchestrator) onStreamError(st *State, err error) {
	slog.Warn("streaming transcription failed",
		"session_id", st.ID,
		"error", err)
	st.emit(func(em Emitter) {
		em.EmitError(ErrorEvent{Code: CodeTranscriptionError, Message: "transcription temporarily unavailable"})
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Stop and finalization

// Stop ends a session on client request. It is idempotent: stopping an
// already-ended session returns the stored result without re-running
// finalization. Finalization itself runs asynchronously; SummaryPending
// reports whether it was kicked off by this call.
func (o *Orchestrator) Stop(ctx context.Context, sessionID string) (*StopResult, error) {
	sess, err := o.deps.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != types.SessionActive {
		res := &StopResult{
			DurationSeconds: sess.DurationSeconds,
			SummaryPending:  sess.SummaryState == types.SummaryPending || sess.SummaryState == types.SummaryGenerating,
		}
		if sess.EndedAt != nil {
			res.EndedAt = *sess.EndedAt
		}
		return res, nil
	}

	// A stop can arrive for an active session with no live state, e.g.
	// when no client ever joined. Build the state so finalization has a
	// capture handle (empty) to work with.
	st := o.deps.Registry.Create(sessionID, func() *State {
		return &State{
			ID:        sess.ID,
			DeckID:    sess.DeckID,
			TenantID:  sess.TenantID,
			StartedAt: sess.StartedAt,
		}
	})

	endedAt, duration, _ := o.claimStop(ctx, st, sess)
	return &StopResult{EndedAt: endedAt, DurationSeconds: duration, SummaryPending: true}, nil
}

// autoStop runs on the watchdog goroutine when the inactivity timeout is
// crossed.
func (o *Orchestrator) autoStop(st *State, silence time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, err := o.deps.Sessions.GetSession(ctx, st.ID)
	if err != nil {
		slog.Error("auto-stop could not load session",
			"session_id", st.ID,
			"error", err)
		return
	}
	if sess.Status != types.SessionActive {
		return
	}

	endedAt, duration, claimed := o.claimStop(ctx, st, sess)
	if !claimed {
		return
	}

	slog.Info("session auto-stopped after inactivity",
		"session_id", st.ID,
		"silence_seconds", silence.Seconds())
	st.emit(func(em Emitter) {
		em.EmitAutoStopped(AutoStoppedEvent{
			Reason:        "inactivity",
			EndedAt:       endedAt,
			TotalDuration: duration,
		})
	})
}

// claimStop linearizes concurrent stop requests. The caller that wins the
// claim persists the ended status and owns finalization; losers get the
// already-recorded end time back.
func (o *Orchestrator) claimStop(ctx context.Context, st *State, sess *types.Session) (time.Time, float64, bool) {
	st.mu.Lock()
	if st.stopped {
		st.mu.Unlock()
		endedAt := o.now()
		if sess.EndedAt != nil {
			endedAt = *sess.EndedAt
		}
		return endedAt, sess.DurationSeconds, false
	}
	st.stopped = true
	watchdog := st.watchdog
	st.mu.Unlock()

	endedAt := o.now()
	duration := endedAt.Sub(st.StartedAt).Seconds()

	err := o.updateSession(ctx, st.ID, func(s *types.Session) {
		s.Status = types.SessionEnded
		s.EndedAt = &endedAt
		s.DurationSeconds = duration
		s.SummaryState = types.SummaryGenerating
	})
	if err != nil {
		slog.Error("could not persist session end",
			"session_id", st.ID,
			"error", err)
	}

	if watchdog != nil {
		watchdog.Stop()
	}

	st.finalizeOnce.Do(func() {
		go o.finalize(st, duration)
	})
	return endedAt, duration, true
}

// updateSession runs a reload-mutate-write cycle under the question mutex.
// Every session-row write outside the question operations goes through
// here so concurrent suggestion inserts and lifecycle transitions never
// overwrite each other.
func (o *Orchestrator) updateSession(ctx context.Context, id string, mutate func(*types.Session)) error {
	o.qmu.Lock()
	defer o.qmu.Unlock()

	sess, err := o.deps.Sessions.GetSession(ctx, id)
	if err != nil {
		return err
	}
	mutate(sess)
	return o.deps.Sessions.UpdateSession(ctx, sess)
}

// finalize runs the end-of-session pipeline: close the stream, transcribe
// the complete recording with diarization, label speakers, persist the
// final segments, generate the summary, and update the session record.
func (o *Orchestrator) finalize(st *State, durationSeconds float64) {
	defer o.deps.Registry.Remove(st.ID)

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.FinalizeTimeout)
	defer cancel()

	st.mu.Lock()
	streaming := st.streaming
	st.mu.Unlock()

	var pcm []byte
	if streaming != nil {
		streaming.Close()
		pcm = streaming.Complete()
	}

	var (
		ft  *types.FullTranscript
		err error
	)
	if o.deps.Full != nil && len(pcm) > 0 {
		ft, err = o.deps.Full.TranscribeComplete(ctx, pcm, transcribe.FullOptions{
			SampleRate: o.cfg.SampleRate,
			Language:   o.cfg.Language,
		})
		switch {
		case errors.Is(err, transcribe.ErrAudioTooShort):
			ft = nil
		case err != nil:
			slog.Error("full transcription failed",
				"session_id", st.ID,
				"error", err)
			o.markFailed(ctx, st)
			return
		}
	}

	var (
		labels       map[int]string
		participants []string
		language     string
	)
	if ft != nil {
		labels = transcript.LabelSpeakers(ft.Segments)
		transcript.ApplyLabels(ft.Segments, labels)
		participants = transcript.Participants(ft.Segments, labels)
		language = ft.Language

		if err := o.persistSegments(ctx, st, ft); err != nil {
			slog.Error("could not persist final transcript",
				"session_id", st.ID,
				"error", err)
			o.markFailed(ctx, st)
			return
		}
	}

	var languages []string
	if language != "" {
		languages = []string{language}
	}

	// No generation provider means no summary; the session still ends
	// cleanly with its transcript.
	var summary *types.MeetingSummary
	if o.deps.Summarizer != nil {
		summary = o.deps.Summarizer.Summarize(ctx, SummaryInput{
			Transcript:      ft,
			SpeakerLabels:   labels,
			DurationSeconds: durationSeconds,
			Participants:    participants,
			Languages:       languages,
		})
	}

	count, countErr := o.deps.Transcripts.CountTranscripts(ctx, st.ID, false)
	if countErr != nil {
		slog.Warn("could not count transcripts",
			"session_id", st.ID,
			"error", countErr)
	}

	err = o.updateSession(ctx, st.ID, func(s *types.Session) {
		if language != "" {
			s.DetectedLanguages = mergeLanguage(s.DetectedLanguages, language)
		}
		s.Summary = summary
		if summary != nil {
			s.SummaryState = types.SummaryCompleted
		} else {
			s.SummaryState = types.SummaryFailed
		}
		if countErr == nil {
			s.TranscriptCount = count
		}
	})
	if err != nil {
		slog.Error("could not persist finalized session",
			"session_id", st.ID,
			"error", err)
		return
	}

	slog.Info("session finalized",
		"session_id", st.ID,
		"duration_seconds", durationSeconds,
		"transcript_count", count)
}

// persistSegments writes the diarized full-audio segments through the
// unguarded store. Segment timestamps anchor at the session start plus the
// segment's offset in the recording.
func (o *Orchestrator) persistSegments(ctx context.Context, st *State, ft *types.FullTranscript) error {
	for _, seg := range ft.Segments {
		tr := types.Transcript{
			SessionID:    st.ID,
			DeckID:       st.DeckID,
			Timestamp:    st.StartedAt.Add(time.Duration(seg.Start * float64(time.Second))),
			Text:         seg.Text,
			Speaker:      seg.Speaker,
			IsFinal:      true,
			LanguageCode: ft.Language,
		}
		if seg.SpeakerID >= 0 {
			id := seg.SpeakerID
			tr.SpeakerID = &id
		}
		if err := o.deps.Transcripts.AppendTranscript(ctx, tr); err != nil {
			return err
		}
	}
	return nil
}

// markFailed records a finalization failure on the session.
func (o *Orchestrator) markFailed(ctx context.Context, st *State) {
	err := o.updateSession(ctx, st.ID, func(s *types.Session) {
		s.Status = types.SessionFailed
		s.SummaryState = types.SummaryFailed
	})
	if err != nil {
		slog.Error("could not persist failed session",
			"session_id", st.ID,
			"error", err)
	}
	st.emit(func(em Emitter) {
		em.EmitError(ErrorEvent{Code: CodeTranscriptionError, Message: "session processing failed"})
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Suggested questions

// MarkAnswered flips a question's answered flag (write-once), persists,
// pushes the updated list to the attached client, and returns the visible
// list. A replacement generation run is kicked off when the session is
// still live.
func (o *Orchestrator) MarkAnswered(ctx context.Context, sessionID, questionID string) ([]types.SuggestedQuestion, error) {
	o.qmu.Lock()
	defer o.qmu.Unlock()

	sess, err := o.deps.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	q := sess.Question(questionID)
	if q == nil || q.Deleted {
		return nil, fmt.Errorf("question %q: %w", questionID, store.ErrNotFound)
	}
	if !q.Answered {
		q.Answered = true
		now := o.now()
		q.AnsweredAt = &now
		if err := o.deps.Sessions.UpdateSession(ctx, sess); err != nil {
			return nil, err
		}
	}

	visible := sess.VisibleQuestions()
	if st, ok := o.deps.Registry.Get(sessionID); ok {
		st.emit(func(em Emitter) {
			em.EmitQuestionsUpdated(QuestionsUpdatedEvent{Questions: visible})
		})
		st.mu.Lock()
		live := !st.stopped && st.initialDone
		st.mu.Unlock()
		if live {
			windowText, _ := st.recentWindow(o.now(), o.cfg.SuggestionWindow)
			go o.runRollingSuggestions(st, windowText, questionID)
		}
	}
	return visible, nil
}

// DeleteQuestion hides a question from the visible list (write-once),
// persists, pushes the update, and returns the visible list.
func (o *Orchestrator) DeleteQuestion(ctx context.Context, sessionID, questionID string) ([]types.SuggestedQuestion, error) {
	o.qmu.Lock()
	defer o.qmu.Unlock()

	sess, err := o.deps.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	q := sess.Question(questionID)
	if q == nil || q.Deleted {
		return nil, fmt.Errorf("question %q: %w", questionID, store.ErrNotFound)
	}
	q.Deleted = true
	if err := o.deps.Sessions.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	visible := sess.VisibleQuestions()
	if st, ok := o.deps.Registry.Get(sessionID); ok {
		st.emit(func(em Emitter) {
			em.EmitQuestionsUpdated(QuestionsUpdatedEvent{Questions: visible})
		})
	}
	return visible, nil
}

// runInitialSuggestions produces the opening question batch from the deck
// knowledge base alone, before any conversation exists. Until it succeeds
// the rolling gate stays closed; a failure re-arms scheduling so the next
// join retries.
func (o *Orchestrator) runInitialSuggestions(st *State) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	kbContext, err := o.knowledgeContext(ctx, st)
	if err != nil {
		slog.Error("initial suggestions: knowledge base unavailable",
			"session_id", st.ID,
			"error", err)
		st.mu.Lock()
		st.initialScheduled = false
		st.mu.Unlock()
		return
	}

	res, added, err := o.generateAndStore(ctx, st, kbContext, "", "")
	if err != nil {
		slog.Error("initial suggestion generation failed",
			"session_id", st.ID,
			"error", err)
		st.mu.Lock()
		st.initialScheduled = false
		st.mu.Unlock()
		return
	}

	st.mu.Lock()
	st.initialDone = true
	st.suggestionLastRun = o.now()
	st.mu.Unlock()

	st.emit(func(em Emitter) {
		em.EmitSuggestion(SuggestionEvent{
			Questions: added,
			Context:   res.Context,
			Topics:    res.Topics,
			Timestamp: o.now(),
		})
	})
}

// runRollingSuggestions refreshes the question list against the recent
// conversation window. A non-empty replaceID marks a just-answered
// question whose list position the first new question should take.
func (o *Orchestrator) runRollingSuggestions(st *State, windowText, replaceID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	kbContext, err := o.knowledgeContext(ctx, st)
	if err != nil {
		slog.Warn("rolling suggestions: knowledge base unavailable",
			"session_id", st.ID,
			"error", err)
		return
	}

	res, added, err := o.generateAndStore(ctx, st, kbContext, windowText, replaceID)
	if err != nil {
		slog.Warn("rolling suggestion generation failed",
			"session_id", st.ID,
			"error", err)
		return
	}
	if len(added) == 0 {
		return
	}

	st.emit(func(em Emitter) {
		em.EmitSuggestion(SuggestionEvent{
			Questions: added,
			Context:   res.Context,
			Topics:    res.Topics,
			Timestamp: o.now(),
		})
	})
}

// generateAndStore runs one generation pass and inserts the surviving
// questions into the persisted session: at the head, or — when replaceID
// names a just-answered question — the first new question slots in at
// that question's position with the extras prepended. The LLM call runs
// outside the question mutex; the insert re-filters against whatever the
// list looks like by then. It returns the engine result and the full
// visible list after insertion.
func (o *Orchestrator) generateAndStore(ctx context.Context, st *State, kbContext, windowText, replaceID string) (*suggest.Result, []types.SuggestedQuestion, error) {
	sess, err := o.deps.Sessions.GetSession(ctx, st.ID)
	if err != nil {
		return nil, nil, err
	}
	if sess.Status != types.SessionActive {
		return nil, nil, fmt.Errorf("session %s is %s, skipping suggestion run", st.ID, sess.Status)
	}

	existing := make([]string, 0, len(sess.SuggestedQuestions))
	for _, q := range sess.SuggestedQuestions {
		if !q.Deleted {
			existing = append(existing, q.Text)
		}
	}

	res, err := o.deps.Engine.Generate(ctx, kbContext, windowText, existing)
	if err != nil {
		return nil, nil, err
	}
	if len(res.Questions) == 0 {
		return res, nil, nil
	}

	o.qmu.Lock()
	defer o.qmu.Unlock()

	sess, err = o.deps.Sessions.GetSession(ctx, st.ID)
	if err != nil {
		return nil, nil, err
	}
	if sess.Status != types.SessionActive {
		return nil, nil, fmt.Errorf("session %s ended during suggestion run", st.ID)
	}

	current := make([]string, 0, len(sess.SuggestedQuestions))
	for _, q := range sess.SuggestedQuestions {
		if !q.Deleted {
			current = append(current, q.Text)
		}
	}
	texts := suggest.FilterNew(res.Questions, current)
	if len(texts) == 0 {
		return res, nil, nil
	}

	now := o.now()
	fresh := make([]types.SuggestedQuestion, 0, len(texts))
	for _, text := range texts {
		fresh = append(fresh, types.SuggestedQuestion{
			ID:        uuid.NewString(),
			Text:      text,
			CreatedAt: now,
		})
	}
	slot := -1
	if replaceID != "" {
		for i, q := range sess.SuggestedQuestions {
			if q.ID == replaceID {
				slot = i
				break
			}
		}
	}
	if slot >= 0 {
		qs := make([]types.SuggestedQuestion, 0, len(sess.SuggestedQuestions)+len(fresh))
		qs = append(qs, fresh[1:]...)
		qs = append(qs, sess.SuggestedQuestions[:slot]...)
		qs = append(qs, fresh[0])
		qs = append(qs, sess.SuggestedQuestions[slot:]...)
		sess.SuggestedQuestions = qs
	} else {
		sess.SuggestedQuestions = append(fresh, sess.SuggestedQuestions...)
	}
	sess.SuggestionCount += len(fresh)
	if err := o.deps.Sessions.UpdateSession(ctx, sess); err != nil {
		return nil, nil, err
	}
	return res, sess.VisibleQuestions(), nil
}

// knowledgeContext returns the formatted knowledge base for the session's
// deck, assembling and caching it on first use.
func (o *Orchestrator) knowledgeContext(ctx context.Context, st *State) (string, error) {
	st.mu.Lock()
	cached := st.kbContext
	st.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	kb, err := o.deps.Assembler.Assemble(ctx, st.DeckID)
	if err != nil {
		return "", err
	}
	formatted := kbctx.Format(kb)

	st.mu.Lock()
	st.kbContext = formatted
	st.mu.Unlock()
	return formatted, nil
}

// mergeLanguage appends lang to langs if absent.
func mergeLanguage(langs []string, lang string) []string {
	for _, l := range langs {
		if l == lang {
			return langs
		}
	}
	return append(langs, lang)
}

func joinNonEmpty(parts []string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += p
	}
	return out
}
