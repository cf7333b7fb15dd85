package grading

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/sebadog/radsim/internal/model"
)

// State is the workflow state of one case-viewing session.
type State string

const (
	StateAwaitingFirst  State = "awaiting_first_attempt"
	StateAwaitingSecond State = "awaiting_second_attempt"
	StateResolved       State = "resolved"
	StateGaveUp         State = "gave_up"
)

// Guard errors. None of them mutates session state.
var (
	ErrEmptyImpression = errors.New("impression is empty")
	ErrNotConfigured   = errors.New("feedback service is not configured")
	ErrNotGradable     = errors.New("case has no expected findings")
	ErrGradingInFlight = errors.New("a grading request is already in flight")
	ErrCaseResolved    = errors.New("case is already resolved")
)

// Attempt is one scored submission round.
type Attempt struct {
	Number     int    `json:"number"`
	Impression string `json:"impression"`
	Feedback   string `json:"feedback"`
	Score      int    `json:"score"`
}

// Session is a snapshot of one learner's grading workflow on one case.
// Attempts are ephemeral: they live in memory for the duration of the
// session and are discarded on reset.
type Session struct {
	CaseID       string    `json:"case_id"`
	State        State     `json:"state"`
	Attempts     []Attempt `json:"attempts,omitempty"`
	Feedback     string    `json:"feedback,omitempty"`
	Score        *int      `json:"score,omitempty"`
	ClueGiven    bool      `json:"clue_given"`
	ShowExpected bool      `json:"show_expected"`
	ShowTeaching bool      `json:"show_teaching_points"`
}

type sessionKey struct {
	userID int64
	caseID string
}

type session struct {
	Session
	grading bool // an LLM call for this session is outstanding
}

// CaseCompleter receives the best-effort completion write when a session
// resolves.
type CaseCompleter interface {
	SetCompleted(id string, completed bool) error
}

// Manager owns the in-memory attempt sessions, keyed by learner and case.
type Manager struct {
	mu        sync.Mutex
	eval      *Evaluator
	completer CaseCompleter
	sessions  map[sessionKey]*session
}

// NewManager creates a session manager.
func NewManager(eval *Evaluator, completer CaseCompleter) *Manager {
	return &Manager{
		eval:      eval,
		completer: completer,
		sessions:  make(map[sessionKey]*session),
	}
}

// Get returns the current session snapshot for a learner and case. A
// learner who has never attempted the case sees a fresh
// awaiting-first-attempt view; no map entry is created, so read-only
// traffic such as case listings does not grow the session map.
func (m *Manager) Get(userID int64, caseID string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[sessionKey{userID: userID, caseID: caseID}]; ok {
		return sess.snapshot()
	}
	return Session{CaseID: caseID, State: StateAwaitingFirst}
}

// Submit grades one impression and advances the session state machine.
// Guard failures (empty text, unconfigured service, in-flight request,
// already-resolved case) return a sentinel error without any transition.
// A transport failure also leaves the state untouched so the learner can
// resubmit; the returned snapshot carries the error message as feedback.
func (m *Manager) Submit(ctx context.Context, c model.Case, userID int64, impression string) (Session, error) {
	impression = strings.TrimSpace(impression)
	if impression == "" {
		return m.Get(userID, c.ID), ErrEmptyImpression
	}
	if !m.eval.Configured() {
		return m.Get(userID, c.ID), ErrNotConfigured
	}
	if len(c.ExpectedFindings) == 0 {
		return m.Get(userID, c.ID), ErrNotGradable
	}

	key := sessionKey{userID: userID, caseID: c.ID}

	m.mu.Lock()
	sess := m.get(userID, c.ID)
	if sess.grading {
		snap := sess.snapshot()
		m.mu.Unlock()
		return snap, ErrGradingInFlight
	}
	state := sess.State
	if state != StateAwaitingFirst && state != StateAwaitingSecond {
		snap := sess.snapshot()
		m.mu.Unlock()
		return snap, ErrCaseResolved
	}
	var firstImpression string
	if state == StateAwaitingSecond {
		firstImpression = sess.Attempts[0].Impression
	}
	sess.grading = true
	m.mu.Unlock()

	// The evaluator call runs outside the lock; the grading flag blocks
	// duplicate in-flight submissions for the same session.
	var result EvaluationResult
	var evalErr error
	if state == StateAwaitingFirst {
		result, evalErr = m.eval.EvaluateFirst(ctx, c, impression)
	} else {
		result, evalErr = m.eval.EvaluateSecond(ctx, c, firstImpression, impression)
	}

	m.mu.Lock()
	sess, ok := m.sessions[key]
	if !ok {
		// Reset raced with grading; honor the reset.
		m.mu.Unlock()
		return m.Get(userID, c.ID), evalErr
	}
	sess.grading = false

	if evalErr != nil {
		// No transition: surface the message, keep the round open.
		sess.Feedback = result.Feedback
		snap := sess.snapshot()
		m.mu.Unlock()
		return snap, evalErr
	}

	attempt := Attempt{
		Number:     len(sess.Attempts) + 1,
		Impression: impression,
		Feedback:   result.Feedback,
		Score:      result.Score,
	}
	sess.Attempts = append(sess.Attempts, attempt)
	sess.Feedback = result.Feedback
	score := result.Score
	sess.Score = &score
	sess.ClueGiven = result.ClueGiven

	resolved := false
	switch state {
	case StateAwaitingFirst:
		if result.Score == MaxScore {
			resolved = true
		} else {
			sess.State = StateAwaitingSecond
		}
	case StateAwaitingSecond:
		// No third attempt.
		resolved = true
	}
	if resolved {
		sess.State = StateResolved
		sess.ShowExpected = true
		sess.ShowTeaching = true
	}
	snap := sess.snapshot()
	m.mu.Unlock()

	if resolved {
		m.markCompleted(c.ID)
	}
	return snap, nil
}

// GiveUp ends the session with a zero score, reveals the expected findings
// and teaching points, and marks the case complete.
func (m *Manager) GiveUp(userID int64, caseID string) (Session, error) {
	m.mu.Lock()
	sess := m.get(userID, caseID)
	if sess.State == StateResolved || sess.State == StateGaveUp {
		snap := sess.snapshot()
		m.mu.Unlock()
		return snap, ErrCaseResolved
	}
	if sess.grading {
		snap := sess.snapshot()
		m.mu.Unlock()
		return snap, ErrGradingInFlight
	}
	sess.State = StateGaveUp
	score := 0
	sess.Score = &score
	sess.ShowExpected = true
	sess.ShowTeaching = true
	snap := sess.snapshot()
	m.mu.Unlock()

	m.markCompleted(caseID)
	return snap, nil
}

// Reset discards the session entirely and returns a fresh one. The case's
// stored completion flag is not rolled back.
func (m *Manager) Reset(userID int64, caseID string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey{userID: userID, caseID: caseID})
	return Session{CaseID: caseID, State: StateAwaitingFirst}
}

// get returns the live session for the key, creating one if needed.
// Caller must hold m.mu.
func (m *Manager) get(userID int64, caseID string) *session {
	key := sessionKey{userID: userID, caseID: caseID}
	sess, ok := m.sessions[key]
	if !ok {
		sess = &session{Session: Session{CaseID: caseID, State: StateAwaitingFirst}}
		m.sessions[key] = sess
	}
	return sess
}

// markCompleted issues the best-effort completion write. Failure is logged
// and surfaced nowhere else; the state transition is not rolled back.
func (m *Manager) markCompleted(caseID string) {
	if err := m.completer.SetCompleted(caseID, true); err != nil {
		slog.Warn("failed to mark case completed", "case_id", caseID, "error", err)
	}
}

func (s *session) snapshot() Session {
	snap := s.Session
	snap.Attempts = append([]Attempt(nil), s.Attempts...)
	if s.Score != nil {
		score := *s.Score
		snap.Score = &score
	}
	return snap
}
