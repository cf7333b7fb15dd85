package grading

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sebadog/radsim/internal/model"
)

// stubGenerator replies with canned text or a canned error.
type stubGenerator struct {
	configured bool
	reply      string
	err        error
	calls      int
}

func (g *stubGenerator) Configured() bool { return g.configured }

func (g *stubGenerator) Generate(_ context.Context, _, _ string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

// stubCompleter records completion writes.
type stubCompleter struct {
	mu        sync.Mutex
	completed []string
	err       error
}

func (c *stubCompleter) SetCompleted(id string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = append(c.completed, id)
	return c.err
}

func (c *stubCompleter) completedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.completed...)
}

func newTestManager(gen *stubGenerator) (*Manager, *stubCompleter) {
	completer := &stubCompleter{}
	return NewManager(NewEvaluator(gen), completer), completer
}

func gradableCase() model.Case {
	return model.Case{
		ID:               "case-1",
		Title:            "Chest trauma",
		ExpectedFindings: []string{"Pneumothorax", "Rib fracture"},
	}
}

func TestManagerGetReturnsFreshView(t *testing.T) {
	m, _ := newTestManager(&stubGenerator{configured: true})
	sess := m.Get(7, "case-1")
	if sess.State != StateAwaitingFirst {
		t.Errorf("State = %q, want %q", sess.State, StateAwaitingFirst)
	}
	if sess.CaseID != "case-1" {
		t.Errorf("CaseID = %q, want case-1", sess.CaseID)
	}
	if len(sess.Attempts) != 0 {
		t.Errorf("new session should have no attempts, got %d", len(sess.Attempts))
	}
}

func TestSubmitPartialFirstAttempt(t *testing.T) {
	gen := &stubGenerator{
		configured: true,
		reply:      "FEEDBACK: Look again at the ribs.\nSCORE: 50\nCLUE_GIVEN: true\nSHOW_EXPECTED: false",
	}
	m, completer := newTestManager(gen)

	sess, err := m.Submit(context.Background(), gradableCase(), 1, "pneumothorax present")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sess.State != StateAwaitingSecond {
		t.Errorf("State = %q, want %q", sess.State, StateAwaitingSecond)
	}
	if sess.Score == nil || *sess.Score != 50 {
		t.Errorf("Score = %v, want 50", sess.Score)
	}
	if !sess.ClueGiven {
		t.Error("ClueGiven should be true after a partial first attempt")
	}
	if sess.ShowExpected {
		t.Error("expected findings must stay hidden while a second attempt remains")
	}
	if len(sess.Attempts) != 1 || sess.Attempts[0].Number != 1 {
		t.Errorf("Attempts = %+v, want one attempt numbered 1", sess.Attempts)
	}
	if got := completer.completedIDs(); len(got) != 0 {
		t.Errorf("case should not be completed yet, got %v", got)
	}
}

func TestSubmitPerfectFirstAttemptResolves(t *testing.T) {
	gen := &stubGenerator{
		configured: true,
		reply:      "FEEDBACK: All findings identified.\nSCORE: 100\nCLUE_GIVEN: false\nSHOW_EXPECTED: true",
	}
	m, completer := newTestManager(gen)

	sess, err := m.Submit(context.Background(), gradableCase(), 1, "pneumothorax and rib fracture")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sess.State != StateResolved {
		t.Errorf("State = %q, want %q", sess.State, StateResolved)
	}
	if !sess.ShowExpected || !sess.ShowTeaching {
		t.Error("resolution should reveal expected findings and teaching points")
	}
	if got := completer.completedIDs(); len(got) != 1 || got[0] != "case-1" {
		t.Errorf("completed = %v, want [case-1]", got)
	}
}

func TestSubmitSecondAttemptAlwaysResolves(t *testing.T) {
	gen := &stubGenerator{
		configured: true,
		reply:      "FEEDBACK: Look again.\nSCORE: 50\nCLUE_GIVEN: true\nSHOW_EXPECTED: false",
	}
	m, completer := newTestManager(gen)
	c := gradableCase()

	if _, err := m.Submit(context.Background(), c, 1, "pneumothorax"); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	gen.reply = "FEEDBACK: Better, the fracture was still missed.\nSCORE: 50\nCLUE_GIVEN: false\nSHOW_EXPECTED: false"
	sess, err := m.Submit(context.Background(), c, 1, "pneumothorax, effusion")
	if err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
	if sess.State != StateResolved {
		t.Errorf("State = %q, want %q after second attempt", sess.State, StateResolved)
	}
	if !sess.ShowExpected {
		t.Error("second attempt should end with expected findings revealed")
	}
	if len(sess.Attempts) != 2 || sess.Attempts[1].Number != 2 {
		t.Errorf("Attempts = %+v, want two attempts", sess.Attempts)
	}
	if got := completer.completedIDs(); len(got) != 1 {
		t.Errorf("completed = %v, want exactly one write", got)
	}

	// A third submission is refused without touching state.
	if _, err := m.Submit(context.Background(), c, 1, "one more thing"); !errors.Is(err, ErrCaseResolved) {
		t.Errorf("third Submit() error = %v, want ErrCaseResolved", err)
	}
}

func TestSubmitGuards(t *testing.T) {
	t.Run("empty impression", func(t *testing.T) {
		gen := &stubGenerator{configured: true}
		m, _ := newTestManager(gen)
		_, err := m.Submit(context.Background(), gradableCase(), 1, "   \n ")
		if !errors.Is(err, ErrEmptyImpression) {
			t.Errorf("error = %v, want ErrEmptyImpression", err)
		}
		if gen.calls != 0 {
			t.Error("generator should not be called for an empty impression")
		}
		if sess := m.Get(1, "case-1"); sess.State != StateAwaitingFirst {
			t.Errorf("State = %q, guard must not transition", sess.State)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		m, _ := newTestManager(&stubGenerator{configured: false})
		_, err := m.Submit(context.Background(), gradableCase(), 1, "pneumothorax")
		if !errors.Is(err, ErrNotConfigured) {
			t.Errorf("error = %v, want ErrNotConfigured", err)
		}
	})

	t.Run("no expected findings", func(t *testing.T) {
		m, _ := newTestManager(&stubGenerator{configured: true})
		c := gradableCase()
		c.ExpectedFindings = nil
		_, err := m.Submit(context.Background(), c, 1, "pneumothorax")
		if !errors.Is(err, ErrNotGradable) {
			t.Errorf("error = %v, want ErrNotGradable", err)
		}
	})
}

func TestSubmitTransportFailureKeepsRoundOpen(t *testing.T) {
	gen := &stubGenerator{configured: true, err: errors.New("HTTP 500 from upstream")}
	m, completer := newTestManager(gen)
	c := gradableCase()

	sess, err := m.Submit(context.Background(), c, 1, "pneumothorax")
	if err == nil {
		t.Fatal("Submit() should surface the transport error")
	}
	if sess.State != StateAwaitingFirst {
		t.Errorf("State = %q, transport failure must not consume the attempt", sess.State)
	}
	if len(sess.Attempts) != 0 {
		t.Errorf("Attempts = %+v, want none recorded", sess.Attempts)
	}
	if sess.Feedback == "" {
		t.Error("snapshot should carry the error message as feedback")
	}
	if got := completer.completedIDs(); len(got) != 0 {
		t.Errorf("completed = %v, want none", got)
	}

	// Resubmission succeeds once the service recovers.
	gen.err = nil
	gen.reply = "FEEDBACK: ok\nSCORE: 100\nCLUE_GIVEN: false\nSHOW_EXPECTED: true"
	sess, err = m.Submit(context.Background(), c, 1, "pneumothorax and rib fracture")
	if err != nil {
		t.Fatalf("resubmission error = %v", err)
	}
	if sess.State != StateResolved {
		t.Errorf("State = %q, want %q after recovery", sess.State, StateResolved)
	}
	if len(sess.Attempts) != 1 {
		t.Errorf("Attempts = %d, failed round must not count", len(sess.Attempts))
	}
}

func TestGiveUp(t *testing.T) {
	m, completer := newTestManager(&stubGenerator{configured: true})

	sess, err := m.GiveUp(1, "case-1")
	if err != nil {
		t.Fatalf("GiveUp() error = %v", err)
	}
	if sess.State != StateGaveUp {
		t.Errorf("State = %q, want %q", sess.State, StateGaveUp)
	}
	if sess.Score == nil || *sess.Score != 0 {
		t.Errorf("Score = %v, want 0", sess.Score)
	}
	if !sess.ShowExpected || !sess.ShowTeaching {
		t.Error("giving up should reveal expected findings and teaching points")
	}
	if got := completer.completedIDs(); len(got) != 1 || got[0] != "case-1" {
		t.Errorf("completed = %v, want [case-1]", got)
	}

	if _, err := m.GiveUp(1, "case-1"); !errors.Is(err, ErrCaseResolved) {
		t.Errorf("second GiveUp() error = %v, want ErrCaseResolved", err)
	}
}

func TestGiveUpCompletionFailureStillResolves(t *testing.T) {
	m, completer := newTestManager(&stubGenerator{configured: true})
	completer.err = errors.New("disk full")

	sess, err := m.GiveUp(1, "case-1")
	if err != nil {
		t.Fatalf("GiveUp() error = %v", err)
	}
	if sess.State != StateGaveUp {
		t.Errorf("State = %q, completion failure must not roll back", sess.State)
	}
}

func TestReset(t *testing.T) {
	gen := &stubGenerator{
		configured: true,
		reply:      "FEEDBACK: ok\nSCORE: 50\nCLUE_GIVEN: true\nSHOW_EXPECTED: false",
	}
	m, _ := newTestManager(gen)
	c := gradableCase()

	if _, err := m.Submit(context.Background(), c, 1, "pneumothorax"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	sess := m.Reset(1, c.ID)
	if sess.State != StateAwaitingFirst {
		t.Errorf("State = %q, want %q after reset", sess.State, StateAwaitingFirst)
	}
	if len(sess.Attempts) != 0 || sess.Score != nil {
		t.Errorf("reset session should be empty, got %+v", sess)
	}
}

func TestReadsDoNotGrowSessionMap(t *testing.T) {
	gen := &stubGenerator{configured: true}
	m, _ := newTestManager(gen)

	// Simulate many users listing many cases.
	for userID := int64(1); userID <= 50; userID++ {
		for _, caseID := range []string{"case-1", "case-2", "case-3"} {
			if sess := m.Get(userID, caseID); sess.State != StateAwaitingFirst {
				t.Fatalf("Get State = %q, want fresh view", sess.State)
			}
		}
	}
	m.mu.Lock()
	n := len(m.sessions)
	m.mu.Unlock()
	if n != 0 {
		t.Errorf("session map holds %d entries after reads only, want 0", n)
	}

	// Rejected submissions do not leave entries behind either.
	if _, err := m.Submit(context.Background(), gradableCase(), 1, "  "); !errors.Is(err, ErrEmptyImpression) {
		t.Fatalf("Submit error = %v, want ErrEmptyImpression", err)
	}
	m.mu.Lock()
	n = len(m.sessions)
	m.mu.Unlock()
	if n != 0 {
		t.Errorf("session map holds %d entries after a rejected submission, want 0", n)
	}
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	gen := &stubGenerator{
		configured: true,
		reply:      "FEEDBACK: ok\nSCORE: 50\nCLUE_GIVEN: true\nSHOW_EXPECTED: false",
	}
	m, _ := newTestManager(gen)
	c := gradableCase()

	if _, err := m.Submit(context.Background(), c, 1, "pneumothorax"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if sess := m.Get(2, c.ID); sess.State != StateAwaitingFirst {
		t.Errorf("user 2 State = %q, want fresh session", sess.State)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	gen := &stubGenerator{
		configured: true,
		reply:      "FEEDBACK: ok\nSCORE: 50\nCLUE_GIVEN: true\nSHOW_EXPECTED: false",
	}
	m, _ := newTestManager(gen)
	c := gradableCase()

	sess, err := m.Submit(context.Background(), c, 1, "pneumothorax")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	sess.Attempts[0].Feedback = "mutated"
	*sess.Score = 1

	fresh := m.Get(1, c.ID)
	if fresh.Attempts[0].Feedback == "mutated" {
		t.Error("snapshot attempts should not alias manager state")
	}
	if *fresh.Score != 50 {
		t.Errorf("Score = %d, snapshot score should not alias manager state", *fresh.Score)
	}
}
