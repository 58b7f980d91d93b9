package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lorenzotomasdiez/consilium/internal/aggregate"
	"github.com/lorenzotomasdiez/consilium/internal/output"
	"github.com/lorenzotomasdiez/consilium/internal/pipeline"
)

func newAggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate [batch-id...]",
		Short: "Compare repeated batch runs: accuracy, agreement, stability, ceiling",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAggregate,
	}
	return cmd
}

func runAggregate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sets := make([]*aggregate.RunSet, 0, len(args))
	for _, batchID := range args {
		state, err := store.Load(batchID)
		if err != nil {
			return err
		}
		if len(state.Records) == 0 {
			return fmt.Errorf("batch %s has no finalized runs", batchID)
		}
		runs := make([]*pipeline.PipelineRun, 0, len(state.Records))
		for _, id := range state.Order {
			runs = append(runs, state.Records[id].Run)
		}
		sets = append(sets, aggregate.NewRunSet(batchID, runs))
	}

	for _, set := range sets {
		output.PrintSummary(set.Summary())
	}

	if len(sets) > 1 {
		ids := aggregate.QuestionIDs(sets...)
		output.PrintAgreement(sets, ids)
		st := aggregate.ClassifyStability(sets, ids)
		output.PrintStability(st, aggregate.Ceiling(sets, ids))
	}
	return nil
}
