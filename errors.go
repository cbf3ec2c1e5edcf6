package spreadsheet

import (
	"github.com/pkg/errors"
)

// ErrCode enumerates the Engine-level failure categories distinct from
// in-sheet cell error values (spec §7): these are returned from Go APIs,
// never rendered into a cell.
type ErrCode int

const (
	ErrCodeUnknownSheet ErrCode = iota
	ErrCodeDuplicateSheet
	ErrCodeInvalidSheetName
	ErrCodeInvalidLocation
	ErrCodeMalformedInput
)

var errCodeText = map[ErrCode]string{
	ErrCodeUnknownSheet:     "unknown sheet",
	ErrCodeDuplicateSheet:   "duplicate sheet",
	ErrCodeInvalidSheetName: "invalid sheet name",
	ErrCodeInvalidLocation:  "invalid cell location",
	ErrCodeMalformedInput:   "malformed input",
}

func (c ErrCode) String() string {
	if s, ok := errCodeText[c]; ok {
		return s
	}
	return "engine error"
}

// EngineError is the error type returned by every fallible Engine/
// CellStore/bulk operation. It wraps github.com/pkg/errors so callers get
// a stack trace at the point of failure (spec §7), with Code available
// for programmatic dispatch.
type EngineError struct {
	Code ErrCode
	msg  string
	err  error
}

func NewEngineError(code ErrCode, msg string) *EngineError {
	return &EngineError{Code: code, msg: msg, err: errors.New(msg)}
}

func WrapEngineError(code ErrCode, msg string, cause error) *EngineError {
	return &EngineError{Code: code, msg: msg, err: errors.Wrap(cause, msg)}
}

func (e *EngineError) Error() string {
	return e.err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.err
}

// Is reports whether target names the same error code, so callers can
// write `errors.Is(err, &EngineError{Code: ErrCodeUnknownSheet})`.
func (e *EngineError) Is(target error) bool {
	other, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}
