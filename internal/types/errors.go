package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies loader and pipeline failures
type ErrorKind string

const (
	KindSchema ErrorKind = "schema"
	KindValue  ErrorKind = "value"
	KindRange  ErrorKind = "range"
	KindMedia  ErrorKind = "media"
	KindIO     ErrorKind = "io"
)

// Sentinels matched with errors.Is against *Error values.
var (
	ErrSchema = errors.New("schema error")
	ErrValue  = errors.New("value error")
	ErrRange  = errors.New("range error")
	ErrMedia  = errors.New("media error")
	ErrIO     = errors.New("io error")
)

var kindSentinels = map[ErrorKind]error{
	KindSchema: ErrSchema,
	KindValue:  ErrValue,
	KindRange:  ErrRange,
	KindMedia:  ErrMedia,
	KindIO:     ErrIO,
}

// Error carries the kind of failure plus the offending row or field
type Error struct {
	Kind   ErrorKind
	Row    int // 1-based data row, 0 when not row specific
	Fields []string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Row > 0 {
		fmt.Fprintf(&b, " at row %d", e.Row)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// Code returns the API error code for the kind
func (k ErrorKind) Code() string {
	if k == "" {
		return "ERR_INTERNAL"
	}
	return "ERR_" + strings.ToUpper(string(k))
}

// NewError builds an *Error of the given kind
func NewError(kind ErrorKind, row int, format string, args ...any) *Error {
	return &Error{Kind: kind, Row: row, Msg: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind to an underlying error
func WrapError(kind ErrorKind, row int, err error, msg string) *Error {
	return &Error{Kind: kind, Row: row, Msg: msg, Err: err}
}

// KindOf extracts the kind from err, or "" when err is not classified
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}

// RowOf extracts the row number from err, or 0
func RowOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Row
	}
	return 0
}
