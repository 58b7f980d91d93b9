// Package dispatch issues individual LLM calls with per-call timeouts,
// a centralized retry policy for transient failures, and per-run cost
// accounting. Structured-output repair is left to callers since it
// needs stage-specific prompts.
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lorenzotomasdiez/consilium/internal/llm"
)

// Backend is the external completion service boundary.
type Backend interface {
	Complete(ctx context.Context, r llm.Request) (*llm.Completion, error)
	Model() string
}

// Call describes one LLM invocation for a pipeline stage.
type Call struct {
	Stage       string
	Role        string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Meter accumulates per-run call and token counts. It is safe for
// concurrent use; specialist calls within a run may run in parallel.
type Meter struct {
	mu     sync.Mutex
	calls  int
	tokens int
}

func (m *Meter) record(tokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.tokens += tokens
}

// Calls returns the number of backend calls issued so far.
func (m *Meter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Tokens returns the total tokens reported by the backend so far.
func (m *Meter) Tokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

// Dispatcher wraps a Backend with timeout, retry, and metering.
type Dispatcher struct {
	backend Backend
	policy  RetryPolicy
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a Dispatcher. timeout applies per call, not per pipeline.
func New(backend Backend, policy RetryPolicy, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{backend: backend, policy: policy, timeout: timeout, logger: logger}
}

// Invoke issues one call, retrying transient failures per the policy.
// Every attempt, including failed ones, is recorded on the meter.
func (d *Dispatcher) Invoke(ctx context.Context, call Call, meter *Meter) (*llm.Completion, error) {
	messages := []llm.Message{
		{Role: "system", Content: call.System},
		{Role: "user", Content: call.User},
	}

	var lastFailure *Failure
	for attempt := 0; attempt <= d.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := d.policy.Backoff(attempt - 1)
			select {
			case <-ctx.Done():
				return nil, classify(call.Stage, ctx.Err())
			case <-time.After(delay):
			}
			d.logger.Debug("retrying call",
				zap.String("stage", call.Stage),
				zap.Int("attempt", attempt),
				zap.String("kind", string(lastFailure.Kind)))
		}

		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		out, err := d.backend.Complete(callCtx, llm.Request{
			Messages:    messages,
			Temperature: call.Temperature,
			MaxTokens:   call.MaxTokens,
		})
		cancel()

		if meter != nil {
			tokens := 0
			if out != nil {
				tokens = out.TokensUsed
			}
			meter.record(tokens)
		}

		if err == nil {
			return out, nil
		}

		lastFailure = classify(call.Stage, err)
		if !lastFailure.Transient {
			return nil, lastFailure
		}
	}

	d.logger.Warn("call failed after retries",
		zap.String("stage", call.Stage),
		zap.String("kind", string(lastFailure.Kind)),
		zap.Error(lastFailure.Err))
	return nil, lastFailure
}
