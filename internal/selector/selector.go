// Package selector picks the top-k specialties for a question. It is
// the only stage allowed to name specialties, and it may only name
// catalog entries; anything else degrades to the generalist subset
// rather than propagating an invented role.
package selector

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lorenzotomasdiez/consilium/internal/catalog"
	"github.com/lorenzotomasdiez/consilium/internal/dispatch"
	"github.com/lorenzotomasdiez/consilium/internal/jsonx"
	"github.com/lorenzotomasdiez/consilium/internal/pipeline"
)

// Selector implements pipeline.Selector with one LLM call at a pinned
// zero temperature so repeated selection on the same question and
// catalog version is reproducible.
type Selector struct {
	invoker     pipeline.Invoker
	topK        int
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// New creates a Selector choosing topK specialties per question.
func New(invoker pipeline.Invoker, topK int, temperature float64, maxTokens int, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topK < 1 {
		topK = 1
	}
	return &Selector{
		invoker:     invoker,
		topK:        topK,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      logger,
	}
}

type selectionPayload struct {
	SelectedSpecialties []string `json:"selected_specialties"`
	Rationale           string   `json:"rationale"`
}

func (s *Selector) systemPrompt() string {
	return fmt.Sprintf(
		"You are a clinical triage planner. Score the question against the specialty catalog below and select the "+
			"%d most relevant specialties for consultation.\n\nCatalog (use ONLY these ids, copied exactly):\n%s\n"+
			"Return ONLY valid JSON in this exact format:\n"+
			`{"selected_specialties": ["<specialty_id>", ...], "rationale": "..."}`+"\n"+
			"No other text, no markdown.",
		s.topK, catalog.FormatForPrompt(),
	)
}

func strictRetryPrompt(original string, invalid []string) string {
	var sb strings.Builder
	sb.WriteString("Your previous response could not be used.\n")
	if len(invalid) > 0 {
		fmt.Fprintf(&sb, "It named specialty ids that DO NOT EXIST in the catalog: %s.\n", strings.Join(invalid, ", "))
		sb.WriteString("Valid ids are exactly:\n")
		for _, id := range catalog.IDs() {
			fmt.Fprintf(&sb, "  - %s\n", id)
		}
	}
	fmt.Fprintf(&sb, "\nPrevious response:\n%s\n\n", original)
	sb.WriteString(`Return ONLY a JSON object of the form {"selected_specialties": [...], "rationale": "..."} using only valid catalog ids. No markdown, no explanation.`)
	return sb.String()
}

// Select returns an ordered list of up to topK distinct catalog ids,
// padded from the generalist subset when the model returns fewer.
// Unparseable or invalid output gets one stricter retry; persistent
// failure of any kind degrades to the fixed generalist subset with the
// degraded flag set. An error is returned only when ctx was canceled.
func (s *Selector) Select(ctx context.Context, q pipeline.Question, meter *dispatch.Meter) (pipeline.Selection, error) {
	call := dispatch.Call{
		Stage:       "selector",
		System:      s.systemPrompt(),
		User:        fmt.Sprintf("Question:\n%s\n\nSelect the %d most relevant specialties as JSON.", q.Prompt, s.topK),
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	}

	ids, err := s.attempt(ctx, call, meter)
	if err == nil {
		return pipeline.Selection{SpecialtyIDs: s.pad(ids)}, nil
	}
	if ctx.Err() != nil {
		return pipeline.Selection{}, fmt.Errorf("selector: %w", ctx.Err())
	}

	s.logger.Warn("selection degraded to generalists",
		zap.String("question", q.ID),
		zap.Error(err))
	return pipeline.Selection{
		SpecialtyIDs: s.truncate(catalog.GeneralistIDs()),
		Degraded:     true,
	}, nil
}

// attempt performs the initial call plus at most one strict-format
// retry, validating every returned id against the catalog.
func (s *Selector) attempt(ctx context.Context, call dispatch.Call, meter *dispatch.Meter) ([]string, error) {
	out, err := s.invoker.Invoke(ctx, call, meter)
	if err != nil {
		return nil, err
	}

	ids, verr := s.parse(out.Content)
	if verr == nil {
		return ids, nil
	}

	var invalid []string
	if f, ok := verr.(*dispatch.Failure); ok && f.Kind == dispatch.KindHallucination {
		invalid = strings.Split(strings.TrimPrefix(f.Err.Error(), "invalid ids: "), ", ")
	}
	retry := call
	retry.User = strictRetryPrompt(out.Content, invalid)
	out, err = s.invoker.Invoke(ctx, retry, meter)
	if err != nil {
		return nil, err
	}
	return s.parse(out.Content)
}

func (s *Selector) parse(raw string) ([]string, error) {
	var payload selectionPayload
	if err := jsonx.Unmarshal(raw, &payload); err != nil {
		return nil, dispatch.NewFailure(dispatch.KindParse, "selector", err)
	}
	if len(payload.SelectedSpecialties) == 0 {
		return nil, dispatch.NewFailure(dispatch.KindParse, "selector", fmt.Errorf("no specialties selected"))
	}

	// Dedupe while preserving rank order.
	seen := make(map[string]bool)
	var ids []string
	for _, id := range payload.SelectedSpecialties {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if ok, invalid := catalog.Validate(ids); !ok {
		return nil, dispatch.NewFailure(dispatch.KindHallucination, "selector",
			fmt.Errorf("invalid ids: %s", strings.Join(invalid, ", ")))
	}
	return s.truncate(ids), nil
}

func (s *Selector) truncate(ids []string) []string {
	if len(ids) > s.topK {
		return ids[:s.topK]
	}
	return ids
}

// pad tops up a short selection with generalists not already chosen.
func (s *Selector) pad(ids []string) []string {
	if len(ids) >= s.topK {
		return ids
	}
	chosen := make(map[string]bool, len(ids))
	for _, id := range ids {
		chosen[id] = true
	}
	for _, id := range catalog.GeneralistIDs() {
		if len(ids) >= s.topK {
			break
		}
		if !chosen[id] {
			ids = append(ids, id)
		}
	}
	return ids
}
