package diarization

import "github.com/codebuildervaibhav/diarization-splitter/internal/types"

// Summary describes a loaded diarization table
type Summary struct {
	TotalSegments    int            `json:"total_segments"`
	Speakers         []string       `json:"speakers"`
	TotalDuration    float64        `json:"total_duration"`
	SpeakerBreakdown map[string]int `json:"speaker_breakdown"`
}

// Summarize computes table statistics. Speakers are listed in the order
// they first appear; TotalDuration is the latest end time.
func Summarize(segments []types.Segment) Summary {
	summary := Summary{
		TotalSegments:    len(segments),
		Speakers:         []string{},
		SpeakerBreakdown: make(map[string]int),
	}
	for _, seg := range segments {
		if _, seen := summary.SpeakerBreakdown[seg.Speaker]; !seen {
			summary.Speakers = append(summary.Speakers, seg.Speaker)
		}
		summary.SpeakerBreakdown[seg.Speaker]++
		if seg.End > summary.TotalDuration {
			summary.TotalDuration = seg.End
		}
	}
	return summary
}
