package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lorenzotomasdiez/consilium/internal/catalog"
	"github.com/lorenzotomasdiez/consilium/internal/dispatch"
	"github.com/lorenzotomasdiez/consilium/internal/jsonx"
)

// IndependentExecutor runs the independent consultation protocol:
// selector, then k concurrent specialist calls, then one synthesizer
// call that is the sole arbiter of the final answer.
type IndependentExecutor struct {
	invoker     Invoker
	selector    Selector
	temps       Temperatures
	maxTokens   int
	parallelism int
	fallback    FallbackFunc
	logger      *zap.Logger

	// OnStage, when set, is called with a short progress label as each
	// stage completes.
	OnStage func(stage string)
}

// NewIndependentExecutor creates the executor. parallelism bounds the
// number of specialist calls in flight at once.
func NewIndependentExecutor(invoker Invoker, selector Selector, temps Temperatures, maxTokens, parallelism int, logger *zap.Logger) *IndependentExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if parallelism < 1 {
		parallelism = 1
	}
	return &IndependentExecutor{
		invoker:     invoker,
		selector:    selector,
		temps:       temps,
		maxTokens:   maxTokens,
		parallelism: parallelism,
		fallback:    SumOfProbabilities,
		logger:      logger,
	}
}

// SetFallback overrides the synthesizer-failure fallback rule.
func (e *IndependentExecutor) SetFallback(f FallbackFunc) { e.fallback = f }

func (e *IndependentExecutor) stage(name string) {
	if e.OnStage != nil {
		e.OnStage(name)
	}
}

// Execute runs one question through the protocol. The returned run is
// always finalized: either carrying an answer or marked failed. A
// non-nil error is returned only when ctx was canceled before the run
// could be finalized.
func (e *IndependentExecutor) Execute(ctx context.Context, q Question) (*PipelineRun, error) {
	started := time.Now()
	meter := &dispatch.Meter{}
	run := &PipelineRun{
		ID:           uuid.NewString(),
		QuestionID:   q.ID,
		Architecture: ArchIndependent,
		StartedAt:    started,
	}

	// Stage 1: selection. Must complete before any specialist call.
	selection, err := e.selector.Select(ctx, q, meter)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pipeline: %w", ctx.Err())
		}
		// Selector degradation is handled inside the selector; an error
		// here means even the fallback path was unusable.
		run.Failed = true
		run.FailureReason = string(dispatch.FailureKind(err))
		run.finalize(q, meter, started)
		return run, nil
	}
	if selection.Degraded {
		run.addFlag(FlagDegradedSelection)
	}
	e.stage(fmt.Sprintf("selected %d specialists", len(selection.SpecialtyIDs)))

	// Stage 2: k specialist calls, independent, bounded fan-out. The
	// synthesizer waits for all of them: a full join, not a race.
	consultations := make([]*Consultation, len(selection.SpecialtyIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, id := range selection.SpecialtyIDs {
		i, id := i, id
		g.Go(func() error {
			c, err := e.consult(gctx, q, id, meter)
			if err != nil {
				// A failed consultation is recorded, not fatal; the
				// run proceeds with the remaining specialists.
				e.logger.Warn("consultation failed",
					zap.String("question", q.ID),
					zap.String("specialty", id),
					zap.Error(err))
				return nil
			}
			consultations[i] = c
			return nil
		})
	}
	g.Wait()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("pipeline: %w", ctx.Err())
	}

	for _, c := range consultations {
		if c != nil {
			run.Consultations = append(run.Consultations, *c)
		}
	}
	if len(run.Consultations) == 0 {
		run.Failed = true
		run.FailureReason = ReasonNoConsultations
		run.finalize(q, meter, started)
		return run, nil
	}
	e.stage(fmt.Sprintf("%d/%d consultations completed", len(run.Consultations), len(selection.SpecialtyIDs)))

	// Stage 3: synthesis at the pinned temperature.
	answer, justification, usedFallback := e.synthesize(ctx, q, run.Consultations, meter)
	if ctx.Err() != nil {
		return nil, fmt.Errorf("pipeline: %w", ctx.Err())
	}
	if usedFallback {
		run.addFlag(FlagSynthesizerFallback)
	}
	run.FinalAnswer = answer
	run.Justification = justification
	run.finalize(q, meter, started)
	e.stage("synthesized final answer " + answer)
	return run, nil
}

type consultationPayload struct {
	SpecialtyID  string             `json:"specialty_id"`
	Rationale    string             `json:"rationale"`
	Distribution map[string]float64 `json:"distribution"`
	Evidence     []string           `json:"evidence"`
}

func (e *IndependentExecutor) consult(ctx context.Context, q Question, specialtyID string, meter *dispatch.Meter) (*Consultation, error) {
	spec, ok := catalog.ByID(specialtyID)
	if !ok {
		return nil, dispatch.NewFailure(dispatch.KindHallucination, "specialist", fmt.Errorf("unknown specialty %q", specialtyID))
	}

	call := dispatch.Call{
		Stage:       "specialist",
		Role:        spec.ID,
		System:      specialistSystemPrompt(spec),
		User:        specialistUserPrompt(q),
		Temperature: e.temps.Specialist,
		MaxTokens:   e.maxTokens,
	}
	out, err := e.invoker.Invoke(ctx, call, meter)
	if err != nil {
		return nil, err
	}

	var payload consultationPayload
	if perr := jsonx.Unmarshal(out.Content, &payload); perr != nil {
		// One repair call, then give up on this specialist.
		repair := call
		repair.User = repairPrompt(out.Content)
		out, err = e.invoker.Invoke(ctx, repair, meter)
		if err != nil {
			return nil, err
		}
		if perr = jsonx.Unmarshal(out.Content, &payload); perr != nil {
			return nil, dispatch.NewFailure(dispatch.KindParse, "specialist", perr)
		}
	}
	if len(payload.Distribution) == 0 {
		return nil, dispatch.NewFailure(dispatch.KindParse, "specialist", fmt.Errorf("empty distribution"))
	}

	c := &Consultation{
		// A specialist claiming a different specialty is never
		// forwarded; the assigned id wins.
		SpecialtyID:  spec.ID,
		Rationale:    payload.Rationale,
		Distribution: payload.Distribution,
		Evidence:     payload.Evidence,
	}
	c.Normalize()
	return c, nil
}

type decisionPayload struct {
	FinalAnswer   string `json:"final_answer"`
	Justification string `json:"justification"`
}

// synthesize returns the final answer, its justification, and whether
// the deterministic fallback was used.
func (e *IndependentExecutor) synthesize(ctx context.Context, q Question, consultations []Consultation, meter *dispatch.Meter) (string, string, bool) {
	call := dispatch.Call{
		Stage:       "synthesizer",
		System:      synthesizerSystemPrompt(),
		User:        synthesizerUserPrompt(q, consultations),
		Temperature: e.temps.Synthesizer,
		MaxTokens:   e.maxTokens,
	}

	out, err := e.invoker.Invoke(ctx, call, meter)
	if err == nil {
		var payload decisionPayload
		perr := jsonx.Unmarshal(out.Content, &payload)
		if perr != nil || !q.HasLabel(payload.FinalAnswer) {
			repair := call
			repair.User = repairPrompt(out.Content)
			if out2, err2 := e.invoker.Invoke(ctx, repair, meter); err2 == nil {
				if jsonx.Unmarshal(out2.Content, &payload) == nil && q.HasLabel(payload.FinalAnswer) {
					return payload.FinalAnswer, payload.Justification, false
				}
			}
		} else {
			return payload.FinalAnswer, payload.Justification, false
		}
	}

	// Explicit, reproducible fallback; never a silent guess.
	answer := e.fallback(q, consultations)
	e.logger.Info("synthesizer fallback used",
		zap.String("question", q.ID),
		zap.String("answer", answer))
	return answer, "fallback: highest summed probability mass across consultations", true
}
