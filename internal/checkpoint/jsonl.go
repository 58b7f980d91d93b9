package checkpoint

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JSONLStore keeps one directory per batch holding an append-only
// records file plus a progress file replaced atomically on every
// append. A crash mid-append can tear at most the trailing line, which
// the loader tolerates; previously finalized entries are never
// corrupted.
type JSONLStore struct {
	dir string

	mu    sync.Mutex
	seen  map[string]map[string]bool // batchID -> finalized question ids
	order map[string]int             // batchID -> finalized count
}

type progress struct {
	BatchID   string    `json:"batch_id"`
	Finalized int       `json:"finalized"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewJSONLStore creates a store rooted at dir.
func NewJSONLStore(dir string) (*JSONLStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	return &JSONLStore{
		dir:   dir,
		seen:  make(map[string]map[string]bool),
		order: make(map[string]int),
	}, nil
}

func (s *JSONLStore) batchDir(batchID string) string {
	return filepath.Join(s.dir, batchID)
}

func (s *JSONLStore) recordsPath(batchID string) string {
	return filepath.Join(s.batchDir(batchID), "records.jsonl")
}

// Load reads the batch state. A missing batch yields an empty state so
// a fresh run and a resume share one code path.
func (s *JSONLStore) Load(batchID string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(batchID)
}

func (s *JSONLStore) loadLocked(batchID string) (*State, error) {
	state := NewState(batchID)
	f, err := os.Open(s.recordsPath(batchID))
	if os.IsNotExist(err) {
		s.index(state)
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			// Torn trailing line from a crash mid-write; everything
			// before it is intact.
			continue
		}
		state.add(rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}

	s.index(state)
	return state, nil
}

// index refreshes the in-memory duplicate index from a loaded state.
func (s *JSONLStore) index(state *State) {
	ids := make(map[string]bool, len(state.Records))
	for id := range state.Records {
		ids[id] = true
	}
	s.seen[state.BatchID] = ids
	s.order[state.BatchID] = len(state.Order)
}

// Append durably writes one record. Appending an already-finalized
// question id returns ErrAlreadyFinalized.
func (s *JSONLStore) Append(batchID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.seen[batchID]
	if !ok {
		// First touch of this batch by this process: hydrate the
		// duplicate index from disk so idempotence survives restarts.
		if _, err := s.loadLocked(batchID); err != nil {
			return err
		}
		ids = s.seen[batchID]
	}
	if ids[rec.QuestionID] {
		return fmt.Errorf("%w: %s", ErrAlreadyFinalized, rec.QuestionID)
	}

	if err := os.MkdirAll(s.batchDir(batchID), 0o755); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	f, err := os.OpenFile(s.recordsPath(batchID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	ids[rec.QuestionID] = true
	s.order[batchID]++
	return s.writeProgress(batchID)
}

// writeProgress replaces the progress file via write-then-rename so a
// crash never leaves a half-written progress record.
func (s *JSONLStore) writeProgress(batchID string) error {
	p := progress{
		BatchID:   batchID,
		Finalized: s.order[batchID],
		UpdatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	dir := s.batchDir(batchID)
	tmp, err := os.CreateTemp(dir, "progress-*.tmp")
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, "progress.json")); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Close implements Store. The JSONL store holds no open handles
// between appends.
func (s *JSONLStore) Close() error { return nil }
