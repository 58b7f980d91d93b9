package batch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/lorenzotomasdiez/consilium/internal/pipeline"
)

// datasetQuestion is the on-disk question shape: options keyed by
// label, the way clinical QA sets ship them.
type datasetQuestion struct {
	ID      string            `json:"id"`
	Prompt  string            `json:"question"`
	Options map[string]string `json:"options"`
	Answer  string            `json:"answer"`
}

// LoadDataset reads questions from path. Both a JSON array and JSONL
// (one object per line) are accepted. Questions without an id get one
// derived from their position (q-0001, q-0002, ...), so the same file
// always yields the same ids and checkpoint resume stays stable.
func LoadDataset(path string) ([]pipeline.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}

	var raw []datasetQuestion
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("batch: dataset %s is empty", path)
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("batch: parsing dataset %s: %w", path, err)
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(trimmed))
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var q datasetQuestion
			if err := json.Unmarshal(line, &q); err != nil {
				return nil, fmt.Errorf("batch: dataset %s line %d: %w", path, lineNo, err)
			}
			raw = append(raw, q)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("batch: %w", err)
		}
	}

	questions := make([]pipeline.Question, 0, len(raw))
	for i, q := range raw {
		id := q.ID
		if id == "" {
			id = fmt.Sprintf("q-%04d", i+1)
		}
		if q.Prompt == "" {
			return nil, fmt.Errorf("batch: question %s has no text", id)
		}
		if len(q.Options) < 2 {
			return nil, fmt.Errorf("batch: question %s needs at least two options", id)
		}

		labels := make([]string, 0, len(q.Options))
		for label := range q.Options {
			labels = append(labels, label)
		}
		sort.Strings(labels)

		opts := make([]pipeline.Option, 0, len(labels))
		for _, label := range labels {
			opts = append(opts, pipeline.Option{Label: label, Text: q.Options[label]})
		}

		question := pipeline.Question{
			ID:          id,
			Prompt:      q.Prompt,
			Options:     opts,
			GroundTruth: q.Answer,
		}
		if q.Answer != "" && !question.HasLabel(q.Answer) {
			return nil, fmt.Errorf("batch: question %s: answer %q is not an option label", id, q.Answer)
		}
		questions = append(questions, question)
	}

	seen := make(map[string]bool, len(questions))
	for _, q := range questions {
		if seen[q.ID] {
			return nil, fmt.Errorf("batch: duplicate question id %s", q.ID)
		}
		seen[q.ID] = true
	}
	return questions, nil
}
