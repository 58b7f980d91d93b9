package pipeline

import (
	"fmt"
	"strings"

	"github.com/lorenzotomasdiez/consilium/internal/catalog"
)

func formatOptions(q Question) string {
	var sb strings.Builder
	for _, o := range q.Options {
		fmt.Fprintf(&sb, "%s. %s\n", o.Label, o.Text)
	}
	return sb.String()
}

func specialistSystemPrompt(spec catalog.Specialty) string {
	return fmt.Sprintf(
		"You are a %s specialist consulted on a clinical multiple-choice question. "+
			"Analyze the case strictly from your specialty's perspective and return ONLY valid JSON in this exact format:\n"+
			`{"specialty_id": "%s", "rationale": "...", "distribution": {"<option label>": <probability>, ...}, "evidence": ["..."]}`+"\n"+
			"Probabilities must be non-negative and sum to at most 1.0. "+
			"Do NOT include any other text, explanation, or markdown formatting.",
		spec.DisplayName, spec.ID,
	)
}

func specialistUserPrompt(q Question) string {
	return fmt.Sprintf("Question:\n%s\n\nOptions:\n%s\nProvide your consultation as JSON.", q.Prompt, formatOptions(q))
}

func repairPrompt(original string) string {
	return fmt.Sprintf(
		"Your previous response was not valid JSON matching the required format.\n\n"+
			"Previous response:\n%s\n\n"+
			"Return ONLY the corrected JSON object, no markdown, no explanation.",
		original,
	)
}

func formatConsultations(consultations []Consultation) string {
	var sb strings.Builder
	for i, c := range consultations {
		fmt.Fprintf(&sb, "\n### Specialist %d: %s\n", i+1, c.SpecialtyID)
		fmt.Fprintf(&sb, "Rationale: %s\n", c.Rationale)
		for label, p := range c.Distribution {
			fmt.Fprintf(&sb, "  - option %s: p=%.2f\n", label, p)
		}
		if len(c.Evidence) > 0 {
			fmt.Fprintf(&sb, "Evidence: %s\n", strings.Join(c.Evidence, "; "))
		}
	}
	return sb.String()
}

func synthesizerSystemPrompt() string {
	return "You are the synthesizing clinician. You receive independent specialist consultations " +
		"and must commit to one final answer. Weigh the consultations, resolve disagreements, and return ONLY valid JSON:\n" +
		`{"final_answer": "<option label>", "justification": "..."}` + "\n" +
		"final_answer must be exactly one of the question's option labels. No other text."
}

func synthesizerUserPrompt(q Question, consultations []Consultation) string {
	return fmt.Sprintf(
		"Question:\n%s\n\nOptions:\n%s\nSpecialist consultations:\n%s\n\nProvide the final decision as JSON.",
		q.Prompt, formatOptions(q), formatConsultations(consultations),
	)
}

// Debate prompts. Round 1 forces the second role to disagree with the
// first; agreement in later rounds never shortens the debate.

func debaterSystemPrompt(role string) string {
	return fmt.Sprintf(
		"You are %s, a clinical reasoning agent in a structured debate about a multiple-choice question. "+
			"Argue rigorously, cite findings from the case, and always end your statement with a line of the form "+
			"ANSWER: <option label>.",
		role,
	)
}

func openingUserPrompt(q Question) string {
	return fmt.Sprintf(
		"Question:\n%s\n\nOptions:\n%s\nAnalyze the case, state your differential, and commit to an answer.",
		q.Prompt, formatOptions(q),
	)
}

func forcedDisagreementPrompt(q Question, opening Statement) string {
	return fmt.Sprintf(
		"Question:\n%s\n\nOptions:\n%s\n%s argued:\n%s\n\n%s selected answer %s.\n\n"+
			"You MUST propose a DIFFERENT answer than %s. Even if you suspect they are correct, argue the strongest "+
			"case for an alternative as devil's advocate, so that multiple diagnostic possibilities are explored. "+
			"Critique their reasoning, identify weaknesses, and commit to an answer OTHER than %s.",
		q.Prompt, formatOptions(q),
		opening.Role, opening.Content, opening.Role, opening.Answer, opening.Role, opening.Answer,
	)
}

func rebuttalUserPrompt(q Question, transcript []DebateRound, round int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question:\n%s\n\nOptions:\n%s\nDebate transcript so far:\n", q.Prompt, formatOptions(q))
	for _, r := range transcript {
		for _, s := range r.Statements {
			if s.Content == "" {
				continue
			}
			fmt.Fprintf(&sb, "[Round %d] %s: %s\n", r.Round, s.Role, s.Content)
		}
	}
	fmt.Fprintf(&sb,
		"\nThis is round %d. Directly address your opponent's latest argument: refute or acknowledge its specific "+
			"points. You may change your answer if their arguments are convincing. Commit to an answer.",
		round,
	)
	return sb.String()
}

func moderatorSystemPrompt() string {
	return "You are the moderator of a completed clinical debate. Synthesize both agents' positions into a final " +
		"decision and return ONLY valid JSON:\n" +
		`{"final_answer": "<option label>", "justification": "..."}` + "\n" +
		"final_answer must be exactly one of the question's option labels. No other text."
}

func moderatorUserPrompt(q Question, transcript []DebateRound) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question:\n%s\n\nOptions:\n%s\nFull debate transcript:\n", q.Prompt, formatOptions(q))
	for _, r := range transcript {
		for _, s := range r.Statements {
			fmt.Fprintf(&sb, "[Round %d] %s: %s\n", r.Round, s.Role, s.Content)
		}
	}
	sb.WriteString("\nProvide the final decision as JSON.")
	return sb.String()
}
