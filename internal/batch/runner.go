// Package batch drives a checkpointed evaluation run over an ordered
// question sequence. One pipeline execution per question, one durable
// checkpoint record per finalized question, exact resume after
// interruption.
package batch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lorenzotomasdiez/consilium/internal/aggregate"
	"github.com/lorenzotomasdiez/consilium/internal/checkpoint"
	"github.com/lorenzotomasdiez/consilium/internal/pipeline"
)

// Executor runs one question end to end. Both pipeline protocols
// satisfy this.
type Executor interface {
	Execute(ctx context.Context, q pipeline.Question) (*pipeline.PipelineRun, error)
}

// Runner executes a batch against a checkpoint store. Questions
// already finalized in the store are skipped without issuing any
// model calls.
type Runner struct {
	store  checkpoint.Store
	exec   Executor
	logger *zap.Logger

	// OnResult is called after each question finalizes, including
	// questions restored from the checkpoint on resume.
	OnResult func(q pipeline.Question, run *pipeline.PipelineRun, resumed bool)
}

// New builds a Runner. A nil logger is replaced with a no-op.
func New(store checkpoint.Store, exec Executor, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{store: store, exec: exec, logger: logger}
}

// Result is the outcome of one batch invocation.
type Result struct {
	BatchID string
	Runs    []*pipeline.PipelineRun
	Resumed int // questions restored from the checkpoint, not executed
	Summary aggregate.BatchResult
}

// Run processes the questions in order, resuming from the checkpoint
/// state for batchID. Cancellation is honored between questions only:
// a question's run is always either fully finalized or never started.
func (r *Runner) Run(ctx context.Context, batchID string, questions []pipeline.Question) (*Result, error) {
	state, err := r.store.Load(batchID)
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}

	res := &Result{BatchID: batchID}
	if n := len(state.Records); n > 0 {
		r.logger.Info("resuming batch",
			zap.String("batch_id", batchID),
			zap.Int("finalized", n),
			zap.Int("total", len(questions)))
	}

	for _, q := range questions {
		if rec, ok := state.Records[q.ID]; ok {
			res.Runs = append(res.Runs, rec.Run)
			res.Resumed++
			r.emit(q, rec.Run, true)
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch: stopped before question %s: %w", q.ID, err)
		}

		run, err := r.exec.Execute(ctx, q)
		if err != nil {
			// Only cancellation escapes the executor; model-level
			// failures come back as finalized failed runs.
			return nil, fmt.Errorf("batch: question %s: %w", q.ID, err)
		}

		rec := checkpoint.Record{
			QuestionID:  q.ID,
			FinalizedAt: time.Now().UTC(),
			Run:         run,
		}
		if err := r.store.Append(batchID, rec); err != nil {
			return nil, fmt.Errorf("batch: question %s: %w", q.ID, err)
		}

		res.Runs = append(res.Runs, run)
		r.emit(q, run, false)

		r.logger.Info("question finalized",
			zap.String("batch_id", batchID),
			zap.String("question_id", q.ID),
			zap.String("answer", run.FinalAnswer),
			zap.Bool("failed", run.Failed),
			zap.Int("calls", run.Calls))
	}

	res.Summary = aggregate.Summarize(batchID, res.Runs)
	return res, nil
}

func (r *Runner) emit(q pipeline.Question, run *pipeline.PipelineRun, resumed bool) {
	if r.OnResult != nil {
		r.OnResult(q, run, resumed)
	}
}
