package diarization

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

// Required column names
const (
	ColumnStart   = "start"
	ColumnEnd     = "end"
	ColumnSpeaker = "speaker"
)

var requiredColumns = []string{ColumnStart, ColumnEnd, ColumnSpeaker}

// Load parses a diarization table and returns its segments in input order.
// The first invalid row fails the whole load.
func Load(r io.Reader) ([]types.Segment, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, types.NewError(types.KindSchema, 0, "table is empty")
		}
		return nil, types.WrapError(types.KindSchema, 0, err, "failed to read header")
	}

	columns, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	var segments []types.Segment
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, types.WrapError(types.KindSchema, row, err, "malformed row")
		}

		segment, err := parseRow(record, columns, row)
		if err != nil {
			return nil, err
		}
		segments = append(segments, segment)
	}

	if len(segments) == 0 {
		return nil, types.NewError(types.KindSchema, 0, "table has no rows")
	}
	return segments, nil
}

// LoadString is a convenience wrapper around Load
func LoadString(table string) ([]types.Segment, error) {
	return Load(strings.NewReader(table))
}

func indexColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		name = strings.ToLower(strings.TrimSpace(name))
		if _, seen := columns[name]; !seen {
			columns[name] = i
		}
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &types.Error{
			Kind:   types.KindSchema,
			Fields: missing,
			Msg:    fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
		}
	}
	return columns, nil
}

func parseRow(record []string, columns map[string]int, row int) (types.Segment, error) {
	field := func(name string) (string, bool) {
		idx := columns[name]
		if idx >= len(record) {
			return "", false
		}
		value := strings.TrimSpace(record[idx])
		return value, value != ""
	}

	var missing []string
	for _, name := range requiredColumns {
		if idx := columns[name]; idx >= len(record) || record[idx] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return types.Segment{}, &types.Error{
			Kind:   types.KindSchema,
			Row:    row,
			Fields: missing,
			Msg:    fmt.Sprintf("missing values for: %s", strings.Join(missing, ", ")),
		}
	}

	startText, _ := field(ColumnStart)
	endText, _ := field(ColumnEnd)

	start, err := parseSeconds(startText, ColumnStart, row)
	if err != nil {
		return types.Segment{}, err
	}
	end, err := parseSeconds(endText, ColumnEnd, row)
	if err != nil {
		return types.Segment{}, err
	}

	if end <= start {
		return types.Segment{}, types.NewError(types.KindRange, row,
			"end %s must be greater than start %s", endText, startText)
	}

	speaker, ok := field(ColumnSpeaker)
	if !ok {
		return types.Segment{}, &types.Error{
			Kind:   types.KindSchema,
			Row:    row,
			Fields: []string{ColumnSpeaker},
			Msg:    "speaker must be a non-empty string",
		}
	}

	return types.Segment{
		Row:       row,
		Start:     start,
		End:       end,
		Speaker:   speaker,
		StartText: startText,
		EndText:   endText,
	}, nil
}

func parseSeconds(text, column string, row int) (float64, error) {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &types.Error{
			Kind:   types.KindValue,
			Row:    row,
			Fields: []string{column},
			Msg:    fmt.Sprintf("%s %q is not a number", column, text),
		}
	}
	if v < 0 {
		return 0, &types.Error{
			Kind:   types.KindValue,
			Row:    row,
			Fields: []string{column},
			Msg:    fmt.Sprintf("%s %s must not be negative", column, text),
		}
	}
	return v, nil
}
