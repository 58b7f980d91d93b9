// Package aggregate computes accuracy, agreement, and stability
// statistics over finalized pipeline runs. Everything here is a pure
// function of its inputs; repeated batch runs over the same question
// set are compared without touching storage.
package aggregate

import (
	"sort"

	"github.com/lorenzotomasdiez/consilium/internal/pipeline"
)

// BatchResult summarizes one batch run. Failed runs are counted
// separately and excluded from the accuracy denominator: accuracy is
// correct over completed, not correct over total.
type BatchResult struct {
	BatchID   string  `json:"batch_id"`
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Correct   int     `json:"correct"`
	Failed    int     `json:"failed"`
	Accuracy  float64 `json:"accuracy"`
}

// Summarize folds a batch's runs into a BatchResult.
func Summarize(batchID string, runs []*pipeline.PipelineRun) BatchResult {
	r := BatchResult{BatchID: batchID, Total: len(runs)}
	for _, run := range runs {
		if run.Failed {
			r.Failed++
			continue
		}
		r.Completed++
		if run.Correct != nil && *run.Correct {
			r.Correct++
		}
	}
	if r.Completed > 0 {
		r.Accuracy = float64(r.Correct) / float64(r.Completed)
	}
	return r
}

// RunSet indexes one batch's runs by question id for cross-run
// comparison.
type RunSet struct {
	BatchID string
	runs    map[string]*pipeline.PipelineRun
}

// NewRunSet builds a RunSet. Later duplicates of a question id are
// ignored; a finalized question is never recomputed within a batch, so
// duplicates only arise from malformed input.
func NewRunSet(batchID string, runs []*pipeline.PipelineRun) *RunSet {
	s := &RunSet{BatchID: batchID, runs: make(map[string]*pipeline.PipelineRun, len(runs))}
	for _, run := range runs {
		if _, ok := s.runs[run.QuestionID]; !ok {
			s.runs[run.QuestionID] = run
		}
	}
	return s
}

// Summary returns the BatchResult for this set.
func (s *RunSet) Summary() BatchResult {
	runs := make([]*pipeline.PipelineRun, 0, len(s.runs))
	for _, id := range s.questionIDs() {
		runs = append(runs, s.runs[id])
	}
	return Summarize(s.BatchID, runs)
}

func (s *RunSet) questionIDs() []string {
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// correct reports whether the question completed and was answered
// correctly in this set. Missing and failed runs are never correct.
func (s *RunSet) correct(questionID string) bool {
	run, ok := s.runs[questionID]
	if !ok || run.Failed || run.Correct == nil {
		return false
	}
	return *run.Correct
}

// completed reports whether the question has a non-failed run in this
// set.
func (s *RunSet) completed(questionID string) bool {
	run, ok := s.runs[questionID]
	return ok && !run.Failed
}

// QuestionIDs returns the sorted union of question ids across the
// given sets.
func QuestionIDs(sets ...*RunSet) []string {
	seen := make(map[string]bool)
	for _, s := range sets {
		for id := range s.runs {
			seen[id] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Agreement is the pairwise agreement rate between two runs over the
// given questions: the fraction where both runs completed and reached
// the same correctness outcome. A failed or missing run agrees with
// nothing.
func Agreement(a, b *RunSet, questionIDs []string) float64 {
	if len(questionIDs) == 0 {
		return 0
	}
	agree := 0
	for _, id := range questionIDs {
		if !a.completed(id) || !b.completed(id) {
			continue
		}
		if a.correct(id) == b.correct(id) {
			agree++
		}
	}
	return float64(agree) / float64(len(questionIDs))
}

// Stability classifies each question by how many of the N runs
// answered it correctly.
type Stability struct {
	Runs          int            `json:"runs"`
	CorrectCounts map[string]int `json:"correct_counts"` // question id -> runs correct
}

// ClassifyStability counts, for every question, the number of sets in
// which it was answered correctly.
func ClassifyStability(sets []*RunSet, questionIDs []string) Stability {
	st := Stability{Runs: len(sets), CorrectCounts: make(map[string]int, len(questionIDs))}
	for _, id := range questionIDs {
		m := 0
		for _, s := range sets {
			if s.correct(id) {
				m++
			}
		}
		st.CorrectCounts[id] = m
	}
	return st
}

// Bucket returns the sorted question ids correct in exactly m runs.
func (st Stability) Bucket(m int) []string {
	var ids []string
	for id, n := range st.CorrectCounts {
		if n == m {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// AlwaysCorrect returns the questions correct in every run.
func (st Stability) AlwaysCorrect() []string { return st.Bucket(st.Runs) }

// NeverCorrect returns the questions correct in no run.
func (st Stability) NeverCorrect() []string { return st.Bucket(0) }

// Ceiling is the theoretical best accuracy an oracle choosing among
// the runs could reach: the fraction of questions correct in at least
// one run.
func Ceiling(sets []*RunSet, questionIDs []string) float64 {
	if len(questionIDs) == 0 {
		return 0
	}
	ever := 0
	for _, id := range questionIDs {
		for _, s := range sets {
			if s.correct(id) {
				ever++
				break
			}
		}
	}
	return float64(ever) / float64(len(questionIDs))
}
