package feature

import (
	"fmt"

	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
)

var (
	// ErrMalformedRecord is the kind of errors for records that do not parse or
	// lack required fields.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrIndexOutOfRange is the kind of errors for trees referencing feature rows
	// that do not exist.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// RecordError describes an invalid record. Kind is ErrMalformedRecord or
// ErrIndexOutOfRange.
type RecordError struct {
	Path string
	Line int
	Kind error
	Msg  string
}

func (e *RecordError) Error() string {
	var where string
	switch {
	case e.Path != "" && e.Line > 0:
		where = fmt.Sprintf("%s:%d: ", e.Path, e.Line)
	case e.Path != "":
		where = e.Path + ": "
	case e.Line > 0:
		where = fmt.Sprintf("line %d: ", e.Line)
	}
	return fmt.Sprintf("%s%v: %s", where, e.Kind, e.Msg)
}

// Unwrap returns the kind so that errors.Is matches it.
func (e *RecordError) Unwrap() error {
	return e.Kind
}

func malformed(format string, args ...interface{}) *RecordError {
	return &RecordError{Kind: ErrMalformedRecord, Msg: fmt.Sprintf(format, args...)}
}

func outOfRange(format string, args ...interface{}) *RecordError {
	return &RecordError{Kind: ErrIndexOutOfRange, Msg: fmt.Sprintf(format, args...)}
}
