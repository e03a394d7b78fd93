package main

import (
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/codebuildervaibhav/diarization-splitter/internal/diarization"
	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

// newTable returns a rounded table writer; numeric columns (1-based) are right aligned
func newTable(header table.Row, numeric ...int) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)

	tw.SetColumnConfigs(rightAligned(numeric...))
	return tw
}

func rightAligned(columns ...int) []table.ColumnConfig {
	configs := make([]table.ColumnConfig, 0, len(columns))
	for _, n := range columns {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	return configs
}

// clipsTable lists clip counts per speaker, sorted by label
func clipsTable(report *types.Report) string {
	if len(report.Speakers) == 0 {
		return ""
	}
	speakers := make([]string, 0, len(report.Speakers))
	for speaker := range report.Speakers {
		speakers = append(speakers, speaker)
	}
	sort.Strings(speakers)

	tw := newTable(table.Row{"Speaker", "Clips"}, 2)
	for _, speaker := range speakers {
		tw.AppendRow(table.Row{speaker, len(report.Speakers[speaker])})
	}
	return tw.Render()
}

func failuresTable(failures []types.Failure) string {
	tw := newTable(table.Row{"Row", "Speaker", "Start", "End", "Kind", "Error"}, 1, 3, 4)
	// ffmpeg stderr tails can be long
	tw.SetColumnConfigs(append(rightAligned(1, 3, 4), table.ColumnConfig{Number: 6, WidthMax: 60}))
	for _, f := range failures {
		tw.AppendRow(table.Row{
			f.Row,
			f.Segment.Speaker,
			f.Segment.StartLabel(),
			f.Segment.EndLabel(),
			string(f.Kind),
			f.Error,
		})
	}
	return tw.Render()
}

// summaryTable shows segments and speaking time per speaker in first-seen order
func summaryTable(summary diarization.Summary, segments []types.Segment) string {
	seconds := make(map[string]float64, len(summary.Speakers))
	for _, seg := range segments {
		seconds[seg.Speaker] += seg.Duration()
	}

	tw := newTable(table.Row{"Speaker", "Segments", "Seconds"}, 2, 3)
	for _, speaker := range summary.Speakers {
		tw.AppendRow(table.Row{
			speaker,
			summary.SpeakerBreakdown[speaker],
			strconv.FormatFloat(seconds[speaker], 'f', 2, 64),
		})
	}
	return tw.Render()
}
