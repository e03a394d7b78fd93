package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codebuildervaibhav/diarization-splitter/internal/diarization"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <table.csv>",
		Short: "Check a diarization table and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open diarization table: %w", err)
			}
			defer f.Close()

			segments, err := diarization.Load(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			summary := diarization.Summarize(segments)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d segments, %d speakers, ends at %.2fs\n\n",
				summary.TotalSegments, len(summary.Speakers), summary.TotalDuration)

			fmt.Fprintln(out, summaryTable(summary, segments))
			return nil
		},
	}
}
