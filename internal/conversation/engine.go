package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healthsphere/healthsphere/internal/brain"
	"github.com/healthsphere/healthsphere/internal/observability"
	"github.com/healthsphere/healthsphere/internal/policy"
)

const (
	// DefaultSilenceWindow is the quiet period after the last partial
	// transcript before an utterance is treated as finished. ASR finality
	// flags are unreliable across speech engines; trailing silence is the
	// robust fallback.
	DefaultSilenceWindow = 2000 * time.Millisecond

	// GreetingMessage seeds every new call.
	GreetingMessage = "Hello, I'm your AI medical assistant. Can you tell me Your Name, age and what is your problem?"

	// FallbackMessage replaces the assistant reply when the backend fails.
	FallbackMessage = "I'm sorry, I'm having trouble processing your request. Could you please try again?"

	defaultReplyTimeout = 30 * time.Second
	persistTimeout      = 5 * time.Second
)

// SaveFunc persists the full transcript of a session. Called best-effort
// after every completed exchange; failures are counted, never surfaced.
type SaveFunc func(ctx context.Context, sessionID string, turns []Turn) error

// Hooks are observer callbacks for the UI layer. Both are optional and are
// invoked outside the engine lock, once per appended turn / reported error.
type Hooks struct {
	OnTurn  func(Turn)
	OnError func(code, detail string, retryable bool)
}

// Config assembles one engine for one consultation call.
type Config struct {
	SessionID        string
	PersonaPrompt    string
	SilenceWindow    time.Duration
	ReplyTimeout     time.Duration
	RedactBeforeSave bool
	Brain            brain.Adapter
	Relay            SaveFunc
	Metrics          *observability.Metrics
}

// Engine converts a noisy stream of transcript updates into a clean,
// ordered, deduplicated sequence of conversation turns.
//
// All state transitions funnel through two gates: the debounce gate
// (HandleTranscript plus the silence timer) and the dedup/serialization
// guard (submitLocked). At most one reply call is in flight per session;
// utterances arriving while one is in flight are dropped, never queued.
type Engine struct {
	cfg   Config
	hooks Hooks

	mu            sync.Mutex
	active        bool
	epoch         uint64
	timerSeq      uint64
	turns         []Turn
	lastSubmitted string
	submitting    bool
	pendingText   string
	pendingTimer  *time.Timer
}

func NewEngine(cfg Config, hooks Hooks) *Engine {
	if cfg.SilenceWindow <= 0 {
		cfg.SilenceWindow = DefaultSilenceWindow
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = defaultReplyTimeout
	}
	return &Engine{cfg: cfg, hooks: hooks}
}

// Start activates the call session and seeds the greeting turn. Starting an
// already active engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		return
	}
	e.active = true
	e.epoch++
	e.turns = nil
	e.lastSubmitted = ""
	e.submitting = false
	greeting := e.appendLocked(RoleAssistant, GreetingMessage)
	e.mu.Unlock()

	e.cfg.Metrics.CallEvents.WithLabelValues("started").Inc()
	e.notifyTurn(greeting)
}

/// Stop ends the call session: the pending debounce timer is cancelled, all
// turns are cleared and the epoch advances so that an in-flight reply
// resolving later is discarded instead of mutating dead state.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}
	e.active = false
	e.epoch++
	e.cancelTimerLocked()
	e.turns = nil
	e.lastSubmitted = ""
	e.submitting = false
	e.mu.Unlock()

	e.cfg.Metrics.CallEvents.WithLabelValues("ended").Inc()
}

// Active reports whether a call session is live.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Turns returns a snapshot of the transcript so far.
func (e *Engine) Turns() []Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Turn, len(e.turns))
	copy(out, e.turns)
	return out
}

// Submitting reports whether a user-turn reply cycle is in flight.
func (e *Engine) Submitting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submitting
}

// HandleTranscript is the debounce gate. Final transcripts submit
// immediately; partials (re)arm the silence timer so that only the last
// text of a burst is ever submitted. Empty text and events arriving while
// a submission is in flight are dropped with no side effect.
func (e *Engine) HandleTranscript(text string, isFinal bool) {
	if strings.TrimSpace(text) == "" {
		e.cfg.Metrics.TranscriptEvents.WithLabelValues("dropped_empty").Inc()
		return
	}

	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		e.cfg.Metrics.TranscriptEvents.WithLabelValues("dropped_inactive").Inc()
		return
	}
	if e.submitting {
		e.mu.Unlock()
		e.cfg.Metrics.TranscriptEvents.WithLabelValues("dropped_in_flight").Inc()
		return
	}

	e.cancelTimerLocked()

	if isFinal {
		turn, submitted := e.submitLocked(text)
		e.mu.Unlock()
		e.cfg.Metrics.TranscriptEvents.WithLabelValues("final").Inc()
		if submitted {
			e.notifyTurn(turn)
		}
		return
	}

	e.pendingText = text
	e.timerSeq++
	seq := e.timerSeq
	epoch := e.epoch
	e.pendingTimer = time.AfterFunc(e.cfg.SilenceWindow, func() {
		e.silenceElapsed(epoch, seq)
	})
	e.mu.Unlock()
	e.cfg.Metrics.TranscriptEvents.WithLabelValues("partial").Inc()
}

// silenceElapsed fires when the quiet period after the last partial passed.
// AfterFunc callbacks can race with cancellation, so the epoch and timer
// sequence are re-checked under the lock before the pending text is used.
func (e *Engine) silenceElapsed(epoch, seq uint64) {
	e.mu.Lock()
	if !e.active || epoch != e.epoch || seq != e.timerSeq {
		e.mu.Unlock()
		return
	}
	text := e.pendingText
	e.pendingTimer = nil
	e.pendingText = ""
	if strings.TrimSpace(text) == "" {
		e.mu.Unlock()
		return
	}
	turn, submitted := e.submitLocked(text)
	e.mu.Unlock()

	e.cfg.Metrics.TranscriptEvents.WithLabelValues("silence_submit").Inc()
	if submitted {
		e.notifyTurn(turn)
	}
}

// submitLocked is the dedup guard and the sole serialization point: it
// drops text identical to the last submission, refuses re-entry while a
// reply is in flight, and otherwise appends the user turn and launches the
// reply call. The history handed to the backend is snapshotted before the
// new user turn mutates the shared list, then the triggering utterance is
// appended as the final history entry, so it appears exactly once.
func (e *Engine) submitLocked(text string) (Turn, bool) {
	if strings.TrimSpace(text) == strings.TrimSpace(e.lastSubmitted) {
		e.cfg.Metrics.TranscriptEvents.WithLabelValues("dropped_duplicate").Inc()
		return Turn{}, false
	}
	if e.submitting {
		e.cfg.Metrics.TranscriptEvents.WithLabelValues("dropped_in_flight").Inc()
		return Turn{}, false
	}

	e.submitting = true
	e.lastSubmitted = text

	history := make([]brain.Message, 0, len(e.turns)+1)
	for _, t := range e.turns {
		history = append(history, brain.Message{Role: string(t.Role), Content: t.Content})
	}
	history = append(history, brain.Message{Role: string(RoleUser), Content: text})

	turn := e.appendLocked(RoleUser, text)

	epoch := e.epoch
	go e.runReply(epoch, history)
	return turn, true
}

func (e *Engine) runReply(epoch uint64, history []brain.Message) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ReplyTimeout)
	defer cancel()

	resp, err := e.cfg.Brain.Reply(ctx, brain.Request{
		SessionID:     e.cfg.SessionID,
		PersonaPrompt: e.cfg.PersonaPrompt,
		History:       history,
	})
	e.cfg.Metrics.ObserveReplyLatency(time.Since(start))

	e.mu.Lock()
	if !e.active || epoch != e.epoch {
		// The call ended while the reply was in flight. The session state
		// has already been cleared; applying the result would resurrect a
		// dead transcript.
		e.mu.Unlock()
		e.cfg.Metrics.CallEvents.WithLabelValues("stale_reply_discarded").Inc()
		return
	}

	content := strings.TrimSpace(resp.Content)
	failed := err != nil || content == ""
	if failed {
		content = FallbackMessage
	}
	turn := e.appendLocked(RoleAssistant, content)
	e.submitting = false
	snapshot := make([]Turn, len(e.turns))
	copy(snapshot, e.turns)
	e.mu.Unlock()

	if failed {
		e.cfg.Metrics.BrainErrors.WithLabelValues("reply_failed").Inc()
		detail := "reply backend returned empty content"
		retryable := true
		if err != nil {
			detail = err.Error()
			retryable = brain.Retryable(err)
		}
		if e.hooks.OnError != nil {
			e.hooks.OnError("brain_reply_failed", detail, retryable)
		}
	}
	e.notifyTurn(turn)
	e.persist(snapshot)
}

// persist hands the transcript snapshot to the relay on a detached goroutine
// with its own deadline. Failures increment a counter; they never block,
// retry or roll back the in-memory transcript.
func (e *Engine) persist(snapshot []Turn) {
	if e.cfg.Relay == nil {
		return
	}
	if e.cfg.RedactBeforeSave {
		for i := range snapshot {
			snapshot[i].Content, _ = policy.RedactPII(snapshot[i].Content)
		}
	}
	go func(turns []Turn) {
		saveCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := e.cfg.Relay(saveCtx, e.cfg.SessionID, turns); err != nil {
			e.cfg.Metrics.PersistFailures.Inc()
		}
	}(snapshot)
}

func (e *Engine) appendLocked(role Role, content string) Turn {
	turn := Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	e.turns = append(e.turns, turn)
	e.cfg.Metrics.TurnsAppended.WithLabelValues(string(role)).Inc()
	return turn
}

func (e *Engine) cancelTimerLocked() {
	e.timerSeq++
	if e.pendingTimer != nil {
		e.pendingTimer.Stop()
		e.pendingTimer = nil
	}
	e.pendingText = ""
}

func (e *Engine) notifyTurn(t Turn) {
	if e.hooks.OnTurn != nil {
		e.hooks.OnTurn(t)
	}
}
