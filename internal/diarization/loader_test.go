package diarization

import (
	"errors"
	"strings"
	"testing"

	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

const sessionTable = `start,end,speaker
0.03,2.28,therapist
2.28,4.09,patient
4.09,5.50,therapist
5.50,7.75,patient
`

func TestLoadPreservesOrderAndFormatting(t *testing.T) {
	segments, err := LoadString(sessionTable)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(segments) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(segments))
	}

	want := []struct {
		row          int
		start, end   string
		speaker      string
		startSeconds float64
	}{
		{1, "0.03", "2.28", "therapist", 0.03},
		{2, "2.28", "4.09", "patient", 2.28},
		{3, "4.09", "5.50", "therapist", 4.09},
		{4, "5.50", "7.75", "patient", 5.50},
	}
	for i, w := range want {
		got := segments[i]
		if got.Row != w.row || got.Speaker != w.speaker {
			t.Errorf("segment %d = row %d speaker %q", i, got.Row, got.Speaker)
		}
		if got.StartLabel() != w.start || got.EndLabel() != w.end {
			t.Errorf("segment %d labels = %s/%s, want %s/%s", i, got.StartLabel(), got.EndLabel(), w.start, w.end)
		}
		if got.Start != w.startSeconds {
			t.Errorf("segment %d start = %v, want %v", i, got.Start, w.startSeconds)
		}
	}
}

func TestLoadHeaderVariants(t *testing.T) {
	table := "\ufeffSpeaker, Start ,END,confidence\nalice,1,2,0.9\nbob,1.5,3,0.8\n"
	segments, err := LoadString(table)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if segments[0].Speaker != "alice" || segments[1].Start != 1.5 {
		t.Fatalf("unexpected segments: %+v", segments)
	}
}

func TestLoadAllowsOverlaps(t *testing.T) {
	table := "start,end,speaker\n0,5,a\n1,3,b\n0,5,a\n"
	segments, err := LoadString(table)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("overlapping and duplicate rows must be kept, got %d", len(segments))
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		table  string
		target error
		row    int
		fields []string
	}{
		{
			name:   "missing column",
			table:  "start,end\n0,1\n",
			target: types.ErrSchema,
			fields: []string{"speaker"},
		},
		{
			name:   "missing several columns",
			table:  "begin,finish,speaker\n0,1,a\n",
			target: types.ErrSchema,
			fields: []string{"start", "end"},
		},
		{
			name:   "missing value",
			table:  "start,end,speaker\n0,1,a\n1,,b\n",
			target: types.ErrSchema,
			row:    2,
			fields: []string{"end"},
		},
		{
			name:   "short row",
			table:  "start,end,speaker\n0,1\n",
			target: types.ErrSchema,
			row:    1,
			fields: []string{"speaker"},
		},
		{
			name:   "non numeric start",
			table:  "start,end,speaker\nabc,1,a\n",
			target: types.ErrValue,
			row:    1,
			fields: []string{"start"},
		},
		{
			name:   "negative start",
			table:  "start,end,speaker\n-1,1,a\n",
			target: types.ErrValue,
			row:    1,
			fields: []string{"start"},
		},
		{
			name:   "not a finite number",
			table:  "start,end,speaker\n0,NaN,a\n",
			target: types.ErrValue,
			row:    1,
			fields: []string{"end"},
		},
		{
			name:   "end equals start",
			table:  "start,end,speaker\n0,1,a\n2,2,b\n",
			target: types.ErrRange,
			row:    2,
		},
		{
			name:   "end before start",
			table:  "start,end,speaker\n3,1,a\n",
			target: types.ErrRange,
			row:    1,
		},
		{
			name:   "blank speaker",
			table:  "start,end,speaker\n0,1,\"  \"\n",
			target: types.ErrSchema,
			row:    1,
			fields: []string{"speaker"},
		},
		{
			name:   "empty input",
			table:  "",
			target: types.ErrSchema,
		},
		{
			name:   "header only",
			table:  "start,end,speaker\n",
			target: types.ErrSchema,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments, err := LoadString(tt.table)
			if err == nil {
				t.Fatalf("expected error, got %d segments", len(segments))
			}
			if segments != nil {
				t.Fatalf("failed load must not return segments")
			}
			if !errors.Is(err, tt.target) {
				t.Fatalf("error %v does not match %v", err, tt.target)
			}
			var typed *types.Error
			if !errors.As(err, &typed) {
				t.Fatalf("expected *types.Error, got %T", err)
			}
			if typed.Row != tt.row {
				t.Fatalf("row = %d, want %d", typed.Row, tt.row)
			}
			if tt.fields != nil && strings.Join(typed.Fields, ",") != strings.Join(tt.fields, ",") {
				t.Fatalf("fields = %v, want %v", typed.Fields, tt.fields)
			}
		})
	}
}

func TestLoadFailsFastOnFirstBadRow(t *testing.T) {
	table := "start,end,speaker\n0,1,a\n5,4,b\nx,1,c\n"
	_, err := LoadString(table)
	if !errors.Is(err, types.ErrRange) {
		t.Fatalf("expected the range error from row 2 first, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	segments, err := LoadString(sessionTable)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	summary := Summarize(segments)
	if summary.TotalSegments != 4 {
		t.Errorf("TotalSegments = %d", summary.TotalSegments)
	}
	if strings.Join(summary.Speakers, ",") != "therapist,patient" {
		t.Errorf("Speakers = %v", summary.Speakers)
	}
	if summary.TotalDuration != 7.75 {
		t.Errorf("TotalDuration = %v", summary.TotalDuration)
	}
	if summary.SpeakerBreakdown["therapist"] != 2 || summary.SpeakerBreakdown["patient"] != 2 {
		t.Errorf("SpeakerBreakdown = %v", summary.SpeakerBreakdown)
	}
}
