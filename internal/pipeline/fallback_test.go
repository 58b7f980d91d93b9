package pipeline

import "testing"

func TestSumOfProbabilitiesPicksHighestMass(t *testing.T) {
	q := testQuestion()
	consultations := []Consultation{
		{SpecialtyID: "cardiology", Distribution: map[string]float64{"A": 0.2, "B": 0.8}},
		{SpecialtyID: "emergency_medicine", Distribution: map[string]float64{"A": 0.5, "B": 0.3, "C": 0.2}},
	}
	if got := SumOfProbabilities(q, consultations); got != "B" {
		t.Errorf("SumOfProbabilities = %q, want B", got)
	}
}

func TestSumOfProbabilitiesTieBreaksLowestLabel(t *testing.T) {
	q := testQuestion()
	consultations := []Consultation{
		{Distribution: map[string]float64{"A": 0.5, "C": 0.5}},
	}
	if got := SumOfProbabilities(q, consultations); got != "A" {
		t.Errorf("SumOfProbabilities = %q, want A on a tie", got)
	}
}

func TestSumOfProbabilitiesIgnoresInvalidLabels(t *testing.T) {
	q := testQuestion()
	consultations := []Consultation{
		{Distribution: map[string]float64{"Z": 0.9, "B": 0.1}},
	}
	if got := SumOfProbabilities(q, consultations); got != "B" {
		t.Errorf("SumOfProbabilities = %q, want B (Z is not an option)", got)
	}
}

func TestSumOfProbabilitiesDeterministic(t *testing.T) {
	q := testQuestion()
	consultations := []Consultation{
		{Distribution: map[string]float64{"A": 0.34, "B": 0.33, "C": 0.33}},
		{Distribution: map[string]float64{"A": 0.1, "B": 0.45, "C": 0.45}},
	}
	first := SumOfProbabilities(q, consultations)
	for i := 0; i < 20; i++ {
		if got := SumOfProbabilities(q, consultations); got != first {
			t.Fatalf("run %d returned %q, first run returned %q", i, got, first)
		}
	}
}

func TestExtractAnswerVariants(t *testing.T) {
	q := testQuestion()
	cases := []struct {
		name string
		text string
		want string
	}{
		{"plain line", "reasoning here\nANSWER: B", "B"},
		{"bold markdown", "**ANSWER: C**", "C"},
		{"lowercase keyword", "answer: A", "A"},
		{"indented", "   ANSWER:   B", "B"},
		{"label in prose", "The findings point to option C overall.", "C"},
		{"no label", "no decision was reached", ""},
		{"answer line wins over earlier label", "Option B is tempting.\nANSWER: A", "A"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractAnswer(tc.text, q); got != tc.want {
				t.Errorf("extractAnswer(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestNormalizeClampsNegatives(t *testing.T) {
	c := Consultation{Distribution: map[string]float64{"A": -0.5, "B": 0.5}}
	c.Normalize()
	if c.Distribution["A"] != 0 {
		t.Errorf("negative probability not clamped: %v", c.Distribution["A"])
	}
	if c.Distribution["B"] != 1.0 {
		t.Errorf("B = %v, want 1.0 after rescale", c.Distribution["B"])
	}
}

func TestNormalizeAllZeroLeavesDistribution(t *testing.T) {
	c := Consultation{Distribution: map[string]float64{"A": 0, "B": 0}}
	c.Normalize()
	if c.Distribution["A"] != 0 || c.Distribution["B"] != 0 {
		t.Errorf("all-zero distribution changed: %v", c.Distribution)
	}
}
