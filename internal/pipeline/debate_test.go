package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/lorenzotomasdiez/consilium/internal/dispatch"
	"github.com/lorenzotomasdiez/consilium/internal/llm"
)

// scriptedInvoker answers debater calls in sequence and moderator calls
// from a fixed queue, optionally failing at a specific debater call.
type scriptedInvoker struct {
	mu            sync.Mutex
	debater       []string
	moderator     []string
	failAtDebater int // 1-based call index, 0 = never
	calls         []dispatch.Call
}

func (s *scriptedInvoker) Invoke(ctx context.Context, call dispatch.Call, meter *dispatch.Meter) (*llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)

	switch call.Stage {
	case "debater":
		n := 0
		for _, c := range s.calls {
			if c.Stage == "debater" {
				n++
			}
		}
		if s.failAtDebater > 0 && n == s.failAtDebater {
			return nil, errors.New("backend exhausted retries")
		}
		content := "I agree with the assessment.\nANSWER: A"
		if len(s.debater) > 0 {
			content = s.debater[0]
			if len(s.debater) > 1 {
				s.debater = s.debater[1:]
			}
		}
		return &llm.Completion{Content: content, Model: "mock", TokensUsed: 10}, nil
	case "moderator":
		content := `{"final_answer": "A", "justification": "settled"}`
		if len(s.moderator) > 0 {
			content = s.moderator[0]
			if len(s.moderator) > 1 {
				s.moderator = s.moderator[1:]
			}
		}
		return &llm.Completion{Content: content, Model: "mock", TokensUsed: 10}, nil
	}
	return nil, errors.New("unexpected stage " + call.Stage)
}

func (s *scriptedInvoker) stageCount(stage string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Stage == stage {
			n++
		}
	}
	return n
}

func TestDebateRunsFixedRoundsDespiteAgreement(t *testing.T) {
	// Both agents claim agreement from round 1; the debate must still
	// run every configured round.
	inv := &scriptedInvoker{}
	exec := NewDebateExecutor(inv, DefaultTemperatures(), 3, 1024, nil)

	run, err := exec.Execute(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if run.Failed {
		t.Fatalf("run failed: %s", run.FailureReason)
	}
	if len(run.Rounds) != 3 {
		t.Fatalf("got %d rounds, want 3", len(run.Rounds))
	}
	if got := inv.stageCount("debater"); got != 6 {
		t.Errorf("debater called %d times, want 6", got)
	}
	if got := inv.stageCount("moderator"); got != 1 {
		t.Errorf("moderator called %d times, want 1", got)
	}
	for i, r := range run.Rounds {
		if r.Round != i+1 {
			t.Errorf("round %d has index %d", i, r.Round)
		}
		if r.Statements[0].Role != RoleAdvocate || r.Statements[1].Role != RoleChallenger {
			t.Errorf("round %d roles = %q, %q", r.Round, r.Statements[0].Role, r.Statements[1].Role)
		}
	}
	if run.FinalAnswer != "A" {
		t.Errorf("FinalAnswer = %q, want A", run.FinalAnswer)
	}
}

func TestDebateForcesInitialDisagreement(t *testing.T) {
	inv := &scriptedInvoker{}
	exec := NewDebateExecutor(inv, DefaultTemperatures(), 2, 1024, nil)

	if _, err := exec.Execute(context.Background(), testQuestion()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	// Second debater call is the round-1 challenger.
	var debaterCalls []dispatch.Call
	for _, c := range inv.calls {
		if c.Stage == "debater" {
			debaterCalls = append(debaterCalls, c)
		}
	}
	challenger := debaterCalls[1]
	if challenger.Role != RoleChallenger {
		t.Fatalf("second debater call role = %q", challenger.Role)
	}
	if !strings.Contains(challenger.User, "DIFFERENT") {
		t.Error("round-1 challenger prompt must force a different answer")
	}
	// Later rounds must not force disagreement.
	if strings.Contains(debaterCalls[2].User, "DIFFERENT") {
		t.Error("round-2 prompt should not force disagreement")
	}
	// Rebuttals replay the transcript.
	if !strings.Contains(debaterCalls[2].User, "[Round 1]") {
		t.Error("rebuttal prompt should include the round-1 transcript")
	}
}

func TestDebateStatementAnswerExtraction(t *testing.T) {
	inv := &scriptedInvoker{debater: []string{"Given the presentation, this is classic.\n**ANSWER: C**"}}
	exec := NewDebateExecutor(inv, DefaultTemperatures(), 1, 1024, nil)

	run, err := exec.Execute(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := run.Rounds[0].Statements[0].Answer; got != "C" {
		t.Errorf("extracted answer = %q, want C", got)
	}
}

func TestDebateMidRoundFailureAbandonsRun(t *testing.T) {
	// Third debater call is round 2's advocate.
	inv := &scriptedInvoker{failAtDebater: 3}
	exec := NewDebateExecutor(inv, DefaultTemperatures(), 3, 1024, nil)

	run, err := exec.Execute(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !run.Failed {
		t.Fatal("run should be failed")
	}
	if run.FailureReason != ReasonDebateIncomplete {
		t.Errorf("FailureReason = %q, want %q", run.FailureReason, ReasonDebateIncomplete)
	}
	if len(run.Rounds) != 1 {
		t.Errorf("got %d completed rounds, want 1", len(run.Rounds))
	}
	if got := inv.stageCount("moderator"); got != 0 {
		t.Errorf("moderator called %d times on a partial transcript, want 0", got)
	}
	if run.Correct != nil {
		t.Error("failed run must not carry a correctness flag")
	}
}

func TestDebateModeratorRepairRetry(t *testing.T) {
	inv := &scriptedInvoker{moderator: []string{
		"After weighing both sides I side with the advocate.",
		`{"final_answer": "B", "justification": "repaired"}`,
	}}
	exec := NewDebateExecutor(inv, DefaultTemperatures(), 1, 1024, nil)

	run, err := exec.Execute(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Failed {
		t.Fatalf("run failed: %s", run.FailureReason)
	}
	if run.FinalAnswer != "B" {
		t.Errorf("FinalAnswer = %q, want B from the repair call", run.FinalAnswer)
	}
	if got := inv.stageCount("moderator"); got != 2 {
		t.Errorf("moderator called %d times, want 2", got)
	}
}

func TestDebateModeratorScrapeFallback(t *testing.T) {
	// Neither moderator attempt returns JSON, but the original text
	// names an option label.
	inv := &scriptedInvoker{moderator: []string{
		"The challenger made the stronger case.\nANSWER: C",
		"still not json",
	}}
	exec := NewDebateExecutor(inv, DefaultTemperatures(), 1, 1024, nil)

	run, err := exec.Execute(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Failed {
		t.Fatalf("run failed: %s", run.FailureReason)
	}
	if run.FinalAnswer != "C" {
		t.Errorf("FinalAnswer = %q, want C scraped from free text", run.FinalAnswer)
	}
}

func TestDebateUnmoderatableTranscriptFails(t *testing.T) {
	inv := &scriptedInvoker{
		debater:   []string{"I decline to answer this question."},
		moderator: []string{"no decision here", "nothing usable either"},
	}
	exec := NewDebateExecutor(inv, DefaultTemperatures(), 1, 1024, nil)

	run, err := exec.Execute(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !run.Failed {
		t.Fatal("run should be failed")
	}
	if run.FailureReason != ReasonModerationUnparseable {
		t.Errorf("FailureReason = %q, want %q", run.FailureReason, ReasonModerationUnparseable)
	}
}

func TestDebateCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inv := &cancelAwareInvoker{}
	exec := NewDebateExecutor(inv, DefaultTemperatures(), 3, 1024, nil)
	if _, err := exec.Execute(ctx, testQuestion()); err == nil {
		t.Fatal("expected cancellation error, not a finalized run")
	}
}

type cancelAwareInvoker struct{}

func (c *cancelAwareInvoker) Invoke(ctx context.Context, call dispatch.Call, meter *dispatch.Meter) (*llm.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llm.Completion{Content: "ANSWER: A", Model: "mock"}, nil
}
