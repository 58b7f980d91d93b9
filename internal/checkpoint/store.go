// Package checkpoint persists per-question results incrementally so a
// batch run can resume exactly after interruption: no re-issued calls
// for finalized questions and no double-counted results.
package checkpoint

import (
	"errors"
	"time"

	"github.com/lorenzotomasdiez/consilium/internal/pipeline"
)

// ErrAlreadyFinalized is returned when appending a result for a
// question id that is already finalized in the batch. Re-appending is
// rejected, never silently overwritten, to prevent double counting
// after a faulty resume.
var ErrAlreadyFinalized = errors.New("checkpoint: question already finalized")

// Record is one durable entry: a finalized run (which may itself be a
// failure) keyed by question id.
type Record struct {
	QuestionID  string                `json:"question_id"`
	FinalizedAt time.Time             `json:"finalized_at"`
	Run         *pipeline.PipelineRun `json:"run"`
}

// State is the loaded checkpoint for one batch: an ordered mapping
// from question id to finalized record. Append-only during normal
// operation.
type State struct {
	BatchID string
	Order   []string
	Records map[string]Record
}

// NewState returns an empty state for batchID.
func NewState(batchID string) *State {
	return &State{BatchID: batchID, Records: make(map[string]Record)}
}

// Finalized reports whether questionID already has a durable result.
func (s *State) Finalized(questionID string) bool {
	_, ok := s.Records[questionID]
	return ok
}

func (s *State) add(rec Record) {
	if s.Finalized(rec.QuestionID) {
		return
	}
	s.Order = append(s.Order, rec.QuestionID)
	s.Records[rec.QuestionID] = rec
}

// NextUnprocessed returns the index of the first question id in ids
// with no finalized record, or len(ids) if the batch is complete. The
// batch executor must skip every question strictly before it.
func NextUnprocessed(s *State, ids []string) int {
	for i, id := range ids {
		if !s.Finalized(id) {
			return i
		}
	}
	return len(ids)
}

// Store is the durable checkpoint backend. Append must be safe to call
// from one writer at a time per process; implementations serialize
// concurrent appends internally.
type Store interface {
	Load(batchID string) (*State, error)
	Append(batchID string, rec Record) error
	Close() error
}
