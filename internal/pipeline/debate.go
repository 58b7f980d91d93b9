package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lorenzotomasdiez/consilium/internal/dispatch"
	"github.com/lorenzotomasdiez/consilium/internal/jsonx"
)

// Debate role names. Two roles strictly alternate; the moderator only
// speaks after the final round.
const (
	RoleAdvocate   = "Clinician A"
	RoleChallenger = "Clinician B"
	RoleModerator  = "Moderator"
)

// DebateExecutor runs the adversarial debate protocol: a fixed number
// of alternating rounds followed by moderation. Early agreement never
// shortens the debate; forcing the full exchange is the point of the
// protocol. The exchange is inherently sequential and never
// parallelized.
type DebateExecutor struct {
	invoker   Invoker
	temps     Temperatures
	rounds    int
	maxTokens int
	logger    *zap.Logger

	// OnStatement, when set, is called after each statement lands.
	OnStatement func(round int, s Statement)
}

// NewDebateExecutor creates the executor with a fixed round count.
func NewDebateExecutor(invoker Invoker, temps Temperatures, rounds, maxTokens int, logger *zap.Logger) *DebateExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rounds < 1 {
		rounds = 1
	}
	return &DebateExecutor{
		invoker:   invoker,
		temps:     temps,
		rounds:    rounds,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Rounds returns the configured fixed round count.
func (e *DebateExecutor) Rounds() int { return e.rounds }

// Execute runs one question through the debate. If any round's call
// fails after the dispatcher's retry budget, the debate is abandoned
// and the run marked failed; a partial transcript is never moderated.
func (e *DebateExecutor) Execute(ctx context.Context, q Question) (*PipelineRun, error) {
	started := time.Now()
	meter := &dispatch.Meter{}
	run := &PipelineRun{
		ID:           uuid.NewString(),
		QuestionID:   q.ID,
		Architecture: ArchDebate,
		StartedAt:    started,
	}

	for round := 1; round <= e.rounds; round++ {
		dr, err := e.runRound(ctx, q, run.Rounds, round, meter)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("pipeline: %w", ctx.Err())
			}
			e.logger.Warn("debate abandoned",
				zap.String("question", q.ID),
				zap.Int("round", round),
				zap.Error(err))
			run.Failed = true
			run.FailureReason = ReasonDebateIncomplete
			run.finalize(q, meter, started)
			return run, nil
		}
		run.Rounds = append(run.Rounds, dr)
	}

	answer, justification, err := e.moderate(ctx, q, run.Rounds, meter)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pipeline: %w", ctx.Err())
		}
		run.Failed = true
		run.FailureReason = failureReasonFor(err)
		run.finalize(q, meter, started)
		return run, nil
	}

	run.FinalAnswer = answer
	run.Justification = justification
	run.finalize(q, meter, started)
	return run, nil
}

func (e *DebateExecutor) runRound(ctx context.Context, q Question, transcript []DebateRound, round int, meter *dispatch.Meter) (DebateRound, error) {
	dr := DebateRound{Round: round, Timestamp: time.Now()}

	first, err := e.speak(ctx, q, transcript, round, RoleAdvocate, nil, meter)
	if err != nil {
		return dr, err
	}
	dr.Statements[0] = first
	e.emit(round, first)

	// Round 1 forces the challenger to take the opposite position.
	var opening *Statement
	if round == 1 {
		opening = &first
	}
	withFirst := append(append([]DebateRound{}, transcript...), DebateRound{Round: round, Statements: [2]Statement{first}})
	second, err := e.speak(ctx, q, withFirst, round, RoleChallenger, opening, meter)
	if err != nil {
		return dr, err
	}
	dr.Statements[1] = second
	e.emit(round, second)

	return dr, nil
}

func (e *DebateExecutor) emit(round int, s Statement) {
	if e.OnStatement != nil {
		e.OnStatement(round, s)
	}
}

func (e *DebateExecutor) speak(ctx context.Context, q Question, transcript []DebateRound, round int, role string, forcedAgainst *Statement, meter *dispatch.Meter) (Statement, error) {
	var user string
	switch {
	case forcedAgainst != nil:
		user = forcedDisagreementPrompt(q, *forcedAgainst)
	case round == 1:
		user = openingUserPrompt(q)
	default:
		user = rebuttalUserPrompt(q, transcript, round)
	}

	out, err := e.invoker.Invoke(ctx, dispatch.Call{
		Stage:       "debater",
		Role:        role,
		System:      debaterSystemPrompt(role),
		User:        user,
		Temperature: e.temps.Debater,
		MaxTokens:   e.maxTokens,
	}, meter)
	if err != nil {
		return Statement{}, err
	}

	return Statement{
		Role:    role,
		Content: out.Content,
		Answer:  extractAnswer(out.Content, q),
	}, nil
}

func (e *DebateExecutor) moderate(ctx context.Context, q Question, transcript []DebateRound, meter *dispatch.Meter) (string, string, error) {
	call := dispatch.Call{
		Stage:       "moderator",
		Role:        RoleModerator,
		System:      moderatorSystemPrompt(),
		User:        moderatorUserPrompt(q, transcript),
		Temperature: e.temps.Moderator,
		MaxTokens:   e.maxTokens,
	}

	out, err := e.invoker.Invoke(ctx, call, meter)
	if err != nil {
		return "", "", err
	}

	var payload decisionPayload
	if perr := jsonx.Unmarshal(out.Content, &payload); perr == nil && q.HasLabel(payload.FinalAnswer) {
		return payload.FinalAnswer, payload.Justification, nil
	}

	// One repair call, then fall back to scraping a bare option label
	// from the moderator's free text.
	repair := call
	repair.User = repairPrompt(out.Content)
	if out2, err2 := e.invoker.Invoke(ctx, repair, meter); err2 == nil {
		if jsonx.Unmarshal(out2.Content, &payload) == nil && q.HasLabel(payload.FinalAnswer) {
			return payload.FinalAnswer, payload.Justification, nil
		}
	}
	if answer := extractAnswer(out.Content, q); answer != "" {
		return answer, out.Content, nil
	}
	return "", "", dispatch.NewFailure(dispatch.KindParse, "moderator", fmt.Errorf("no option label in moderator output"))
}

func failureReasonFor(err error) string {
	if dispatch.FailureKind(err) == dispatch.KindParse {
		return ReasonModerationUnparseable
	}
	return string(dispatch.FailureKind(err))
}
