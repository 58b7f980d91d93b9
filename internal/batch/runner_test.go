package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/lorenzotomasdiez/consilium/internal/checkpoint"
	"github.com/lorenzotomasdiez/consilium/internal/pipeline"
)

type mockExecutor struct {
	executed []string
	failOn   map[string]bool
	onExec   func(qid string)
}

func (m *mockExecutor) Execute(ctx context.Context, q pipeline.Question) (*pipeline.PipelineRun, error) {
	m.executed = append(m.executed, q.ID)
	if m.onExec != nil {
		m.onExec(q.ID)
	}
	run := &pipeline.PipelineRun{
		ID:           "run-" + q.ID,
		QuestionID:   q.ID,
		Architecture: pipeline.ArchIndependent,
	}
	if m.failOn[q.ID] {
		run.Failed = true
		run.FailureReason = pipeline.ReasonDebateIncomplete
		return run, nil
	}
	run.FinalAnswer = q.GroundTruth
	correct := true
	run.Correct = &correct
	return run, nil
}

func questions(n int) []pipeline.Question {
	var qs []pipeline.Question
	for i := 0; i < n; i++ {
		qs = append(qs, pipeline.Question{
			ID:     fmt.Sprintf("q-%04d", i+1),
			Prompt: "which option",
			Options: []pipeline.Option{
				{Label: "A", Text: "first"},
				{Label: "B", Text: "second"},
			},
			GroundTruth: "A",
		})
	}
	return qs
}

func newStore(t *testing.T) checkpoint.Store {
	t.Helper()
	store, err := checkpoint.NewJSONLStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONLStore: %v", err)
	}
	return store
}

func TestRunProcessesAllQuestions(t *testing.T) {
	store := newStore(t)
	exec := &mockExecutor{}
	runner := New(store, exec, nil)

	qs := questions(3)
	res, err := runner.Run(context.Background(), "batch-1", qs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(res.Runs))
	}
	if len(exec.executed) != 3 {
		t.Errorf("executed %d pipelines, want 3", len(exec.executed))
	}
	if res.Summary.Correct != 3 {
		t.Errorf("Summary.Correct = %d, want 3", res.Summary.Correct)
	}

	state, err := store.Load("batch-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(state.Records) != 3 {
		t.Errorf("checkpointed %d records, want 3", len(state.Records))
	}
}

func TestRunResumesWithoutReexecuting(t *testing.T) {
	store := newStore(t)
	qs := questions(4)

	first := New(store, &mockExecutor{}, nil)
	if _, err := first.Run(context.Background(), "batch-1", qs[:2]); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	exec := &mockExecutor{}
	second := New(store, exec, nil)
	res, err := second.Run(context.Background(), "batch-1", qs)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if len(exec.executed) != 2 {
		t.Errorf("re-executed %v, want only the 2 unfinalized questions", exec.executed)
	}
	if res.Resumed != 2 {
		t.Errorf("Resumed = %d, want 2", res.Resumed)
	}
	if len(res.Runs) != 4 {
		t.Errorf("got %d runs, want 4", len(res.Runs))
	}
	seen := map[string]int{}
	for _, run := range res.Runs {
		seen[run.QuestionID]++
	}
	for qid, n := range seen {
		if n != 1 {
			t.Errorf("question %s appears %d times in result", qid, n)
		}
	}
}

func TestRunStopsBetweenQuestionsOnCancel(t *testing.T) {
	store := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	exec := &mockExecutor{}
	exec.onExec = func(qid string) {
		if len(exec.executed) == 2 {
			cancel()
		}
	}
	runner := New(store, exec, nil)

	_, err := runner.Run(ctx, "batch-1", questions(4))
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if len(exec.executed) != 2 {
		t.Errorf("executed %v, want exactly 2 before the stop", exec.executed)
	}

	// The two finished questions must be durable.
	state, err := store.Load("batch-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(state.Records) != 2 {
		t.Errorf("checkpointed %d records, want 2", len(state.Records))
	}
}

func TestRunFinalizesFailedRuns(t *testing.T) {
	store := newStore(t)
	qs := questions(3)
	exec := &mockExecutor{failOn: map[string]bool{qs[1].ID: true}}
	runner := New(store, exec, nil)

	res, err := runner.Run(context.Background(), "batch-1", qs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary.Failed != 1 {
		t.Errorf("Summary.Failed = %d, want 1", res.Summary.Failed)
	}
	if res.Summary.Completed != 2 {
		t.Errorf("Summary.Completed = %d, want 2", res.Summary.Completed)
	}

	// A failed run is finalized; resuming must not retry it.
	retry := &mockExecutor{}
	if _, err := New(store, retry, nil).Run(context.Background(), "batch-1", qs); err != nil {
		t.Fatalf("resume Run: %v", err)
	}
	if len(retry.executed) != 0 {
		t.Errorf("resume re-executed %v, want none", retry.executed)
	}
}

func TestLoadDatasetJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.jsonl")
	content := `{"question":"first question","options":{"B":"beta","A":"alpha"},"answer":"A"}
{"id":"custom","question":"second question","options":{"A":"x","B":"y","C":"z"},"answer":"C"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	qs, err := LoadDataset(path)
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("got %d questions, want 2", len(qs))
	}
	if qs[0].ID != "q-0001" {
		t.Errorf("derived id = %q, want q-0001", qs[0].ID)
	}
	if qs[1].ID != "custom" {
		t.Errorf("explicit id = %q, want custom", qs[1].ID)
	}
	// Options sorted by label.
	if qs[0].Options[0].Label != "A" || qs[0].Options[1].Label != "B" {
		t.Errorf("options not sorted: %+v", qs[0].Options)
	}
}

func TestLoadDatasetJSONArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.json")
	content := `[{"question":"only question","options":{"A":"x","B":"y"},"answer":"B"}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	qs, err := LoadDataset(path)
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if len(qs) != 1 || qs[0].GroundTruth != "B" {
		t.Fatalf("unexpected questions: %+v", qs)
	}
}

func TestLoadDatasetRejectsBadAnswerLabel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.jsonl")
	content := `{"question":"q","options":{"A":"x","B":"y"},"answer":"Z"}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDataset(path); err == nil {
		t.Fatal("expected error for answer label not in options")
	}
}
