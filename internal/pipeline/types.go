// Package pipeline composes dispatcher calls into the two consultation
// protocols: independent multi-specialist consultation and fixed-round
// adversarial debate.
package pipeline

import (
	"context"
	"time"

	"github.com/lorenzotomasdiez/consilium/internal/dispatch"
	"github.com/lorenzotomasdiez/consilium/internal/llm"
)

// Architecture identifies which protocol produced a run.
const (
	ArchIndependent = "independent"
	ArchDebate      = "debate"
)

// Flags recorded on a run when a stage degraded.
const (
	FlagDegradedSelection   = "degraded-selection"
	FlagSynthesizerFallback = "synthesizer-fallback"
)

// Failure reasons for runs that could not produce an answer.
const (
	ReasonDebateIncomplete      = "debate-incomplete"
	ReasonNoConsultations       = "no-consultations"
	ReasonModerationUnparseable = "moderation-unparseable"
)

// Option is one labeled answer choice.
type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Question is an immutable multiple-choice question. GroundTruth is
// optional and used only for scoring.
type Question struct {
	ID          string   `json:"id"`
	Prompt      string   `json:"prompt"`
	Options     []Option `json:"options"`
	GroundTruth string   `json:"ground_truth,omitempty"`
}

// Labels returns the option labels in order.
func (q Question) Labels() []string {
	labels := make([]string, len(q.Options))
	for i, o := range q.Options {
		labels[i] = o.Label
	}
	return labels
}

// HasLabel reports whether label names one of the question's options.
func (q Question) HasLabel(label string) bool {
	for _, o := range q.Options {
		if o.Label == label {
			return true
		}
	}
	return false
}

// Consultation is one specialist's structured output for one question.
type Consultation struct {
	SpecialtyID  string             `json:"specialty_id"`
	Rationale    string             `json:"rationale"`
	Distribution map[string]float64 `json:"distribution"`
	Evidence     []string           `json:"evidence,omitempty"`
}

// Normalize clamps negative probabilities to zero and rescales the
// distribution to sum to 1.0. Model output routinely arrives with mass
// that does not sum exactly to one.
func (c *Consultation) Normalize() {
	var sum float64
	for label, p := range c.Distribution {
		if p < 0 {
			c.Distribution[label] = 0
			continue
		}
		sum += p
	}
	if sum <= 0 {
		return
	}
	for label, p := range c.Distribution {
		c.Distribution[label] = p / sum
	}
}

// Statement is one role's contribution to a debate round.
type Statement struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Answer  string `json:"answer,omitempty"`
}

// DebateRound holds the two alternating statements of one round.
// Rounds are immutable once written.
type DebateRound struct {
	Round      int          `json:"round"`
	Statements [2]Statement `json:"statements"`
	Timestamp  time.Time    `json:"timestamp"`
}

// PipelineRun is one full execution for one question under one
// architecture. It is finalized exactly once: either with an answer or
// marked failed.
type PipelineRun struct {
	ID            string         `json:"id"`
	QuestionID    string         `json:"question_id"`
	Architecture  string         `json:"architecture"`
	Consultations []Consultation `json:"consultations,omitempty"`
	Rounds        []DebateRound  `json:"rounds,omitempty"`
	FinalAnswer   string         `json:"final_answer,omitempty"`
	Justification string         `json:"justification,omitempty"`
	Correct       *bool          `json:"correct,omitempty"`
	Failed        bool           `json:"failed"`
	FailureReason string         `json:"failure_reason,omitempty"`
	Flags         []string       `json:"flags,omitempty"`
	Calls         int            `json:"calls"`
	Tokens        int            `json:"tokens"`
	LatencySecs   float64        `json:"latency_seconds"`
	StartedAt     time.Time      `json:"started_at"`
}

func (r *PipelineRun) addFlag(flag string) {
	for _, f := range r.Flags {
		if f == flag {
			return
		}
	}
	r.Flags = append(r.Flags, flag)
}

// finalize stamps accounting fields and the correctness flag.
func (r *PipelineRun) finalize(q Question, meter *dispatch.Meter, started time.Time) {
	r.Calls = meter.Calls()
	r.Tokens = meter.Tokens()
	r.LatencySecs = time.Since(started).Seconds()
	if !r.Failed && q.GroundTruth != "" {
		correct := r.FinalAnswer == q.GroundTruth
		r.Correct = &correct
	}
}

// Selection is the selector's output: an ordered list of catalog ids.
type Selection struct {
	SpecialtyIDs []string `json:"specialty_ids"`
	Rationale    string   `json:"rationale,omitempty"`
	Degraded     bool     `json:"degraded"`
}

// Selector chooses which specialists participate for a question.
type Selector interface {
	Select(ctx context.Context, q Question, meter *dispatch.Meter) (Selection, error)
}

// Invoker is the dispatcher boundary, an interface so tests can mock it.
type Invoker interface {
	Invoke(ctx context.Context, call dispatch.Call, meter *dispatch.Meter) (*llm.Completion, error)
}

// Temperatures is the per-stage temperature schedule. Selection and
// synthesis are pinned to zero for reproducibility; specialist calls
// run warm to induce reasoning diversity.
type Temperatures struct {
	Selector    float64
	Specialist  float64
	Synthesizer float64
	Debater     float64
	Moderator   float64
}

// DefaultTemperatures returns the standard schedule.
func DefaultTemperatures() Temperatures {
	return Temperatures{
		Selector:    0.0,
		Specialist:  0.7,
		Synthesizer: 0.0,
		Debater:     0.3,
		Moderator:   0.0,
	}
}
