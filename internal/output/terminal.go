package output

import (
	"fmt"
	"sort"

	"github.com/lorenzotomasdiez/consilium/internal/aggregate"
	"github.com/lorenzotomasdiez/consilium/internal/catalog"
	"github.com/lorenzotomasdiez/consilium/internal/pipeline"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiDim    = "\033[2m"
)

// Colorize wraps s with an ANSI color code and reset.
func Colorize(color, s string) string { return color + s + ansiReset }

// Bold wraps s with ANSI bold and reset.
func Bold(s string) string { return ansiBold + s + ansiReset }

// PrintResult prints one finalized question outcome.
func PrintResult(q pipeline.Question, run *pipeline.PipelineRun, resumed bool) {
	prefix := ""
	if resumed {
		prefix = Colorize(ansiDim, "[resumed] ")
	}

	switch {
	case run.Failed:
		fmt.Printf("%s%s %s %s\n",
			prefix,
			Bold(q.ID),
			Colorize(ansiYellow, "FAILED"),
			Colorize(ansiDim, run.FailureReason),
		)
	case run.Correct != nil && *run.Correct:
		fmt.Printf("%s%s %s answer=%s\n",
			prefix, Bold(q.ID), Colorize(ansiGreen, "CORRECT"), run.FinalAnswer)
	case run.Correct != nil:
		fmt.Printf("%s%s %s answer=%s expected=%s\n",
			prefix, Bold(q.ID), Colorize(ansiRed, "WRONG"), run.FinalAnswer, q.GroundTruth)
	default:
		fmt.Printf("%s%s answer=%s\n", prefix, Bold(q.ID), run.FinalAnswer)
	}
}

// PrintStatement prints one debate statement as it is produced.
func PrintStatement(round int, st pipeline.Statement) {
	fmt.Printf("%s %s: %s\n",
		Colorize(ansiYellow, fmt.Sprintf("[Round %d]", round)),
		Bold(st.Role),
		st.Content,
	)
}

// PrintSummary prints the batch result banner.
func PrintSummary(r aggregate.BatchResult) {
	fmt.Printf("\n%s\n", Colorize(ansiBold+ansiCyan, "=== Batch "+r.BatchID+" ==="))
	fmt.Printf("Total: %d  Completed: %d  Failed: %s\n",
		r.Total, r.Completed, failureColor(r.Failed))
	fmt.Printf("Accuracy: %s (%d/%d)\n",
		Colorize(ansiBold+ansiGreen, fmt.Sprintf("%.1f%%", r.Accuracy*100)),
		r.Correct, r.Completed)
}

func failureColor(n int) string {
	s := fmt.Sprintf("%d", n)
	if n > 0 {
		return Colorize(ansiRed, s)
	}
	return s
}

// PrintAgreement prints the pairwise agreement matrix for the given
// run sets.
func PrintAgreement(sets []*aggregate.RunSet, ids []string) {
	fmt.Printf("\n%s\n", Bold("Pairwise agreement"))
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			rate := aggregate.Agreement(sets[i], sets[j], ids)
			fmt.Printf("  %s vs %s: %s\n",
				sets[i].BatchID, sets[j].BatchID,
				Colorize(ansiYellow, fmt.Sprintf("%.1f%%", rate*100)))
		}
	}
}

// PrintStability prints the per-question stability buckets and the
// oracle ceiling.
func PrintStability(st aggregate.Stability, ceiling float64) {
	fmt.Printf("\n%s\n", Bold("Stability"))
	fmt.Printf("  always correct (%d/%d): %d questions\n",
		st.Runs, st.Runs, len(st.AlwaysCorrect()))
	for m := st.Runs - 1; m >= 1; m-- {
		if bucket := st.Bucket(m); len(bucket) > 0 {
			fmt.Printf("  correct in %d of %d: %d questions %s\n",
				m, st.Runs, len(bucket), Colorize(ansiDim, fmt.Sprint(bucket)))
		}
	}
	fmt.Printf("  never correct: %d questions\n", len(st.NeverCorrect()))
	fmt.Printf("Ceiling: %s\n", Colorize(ansiBold+ansiCyan, fmt.Sprintf("%.1f%%", ceiling*100)))
}

// PrintCatalog prints the specialty roster grouped by category.
func PrintCatalog(specialties []catalog.Specialty) {
	byCategory := make(map[catalog.Category][]string)
	for _, s := range specialties {
		byCategory[s.Category] = append(byCategory[s.Category], fmt.Sprintf("%s (%s)", s.DisplayName, s.ID))
	}
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, string(c))
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Printf("%s\n", Colorize(ansiBold+ansiCyan, c))
		for _, line := range byCategory[catalog.Category(c)] {
			fmt.Printf("  %s\n", line)
		}
	}
}
