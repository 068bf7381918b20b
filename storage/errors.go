package storage

import "fmt"

// Status codes reported by the store. Negative codes are fatal for the
// call that produced them; positive codes are warnings. The values are
// also used directly as wire status codes by the protocol layers.
const (
	// CodeInsufficientBuffer warns that a read was truncated to the
	// caller's buffer. The truncated prefix is still returned.
	CodeInsufficientBuffer int32 = 1000

	// CodeNoStorage indicates neither segment carries a valid magic word.
	CodeNoStorage int32 = -1001

	// CodeMigrateMagic indicates the migration destination already claims
	// to be active. This never arises in normal operation and signals
	// corruption.
	CodeMigrateMagic int32 = -1002

	// CodeNotFound indicates no live record exists for the key.
	CodeNotFound int32 = -1003

	// CodeCorrupt indicates the log contains invalid data, or that a
	// value known to be live was lost.
	CodeCorrupt int32 = -1004

	// CodeTooLarge indicates the value does not fit even after migration.
	CodeTooLarge int32 = -1005
)

// Error describes a storage failure (or, for positive codes, a warning).
// Param is the key involved where one applies.
type Error struct {
	Code  int32
	Param uint16
}

// Matchable sentinels for errors.Is. A zero Param in a sentinel matches
// any key.
var (
	ErrBufferTooSmall  = &Error{Code: CodeInsufficientBuffer}
	ErrNoStorage       = &Error{Code: CodeNoStorage}
	ErrMigrateConflict = &Error{Code: CodeMigrateMagic}
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrCorrupt         = &Error{Code: CodeCorrupt}
	ErrTooLarge        = &Error{Code: CodeTooLarge}
)

func (e *Error) Error() string {
	name := "unknown storage error"
	switch e.Code {
	case CodeInsufficientBuffer:
		name = "value truncated to buffer"
	case CodeNoStorage:
		name = "no active storage segment"
	case CodeMigrateMagic:
		name = "migration destination already active"
	case CodeNotFound:
		name = "not found"
	case CodeCorrupt:
		name = "storage corrupt"
	case CodeTooLarge:
		name = "value too large"
	}
	if e.Param == 0 {
		return fmt.Sprintf("storage: %s (%d)", name, e.Code)
	}
	return fmt.Sprintf("storage: %s (key 0x%04X, %d)", name, e.Param, e.Code)
}

// StatusCode returns the signed status code for this error.
func (e *Error) StatusCode() int32 {
	return e.Code
}

// Is reports whether target is an *Error with the same code. A target
// with a zero Param matches regardless of key.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Param == 0 || t.Param == e.Param)
}

// IsWarning reports whether err carries a positive (non-fatal) status
// code. Data returned alongside a warning is valid.
func IsWarning(err error) bool {
	var coded interface{ StatusCode() int32 }
	if ok := asStatusCoded(err, &coded); !ok {
		return false
	}
	return coded.StatusCode() > 0
}

func asStatusCoded(err error, out *interface{ StatusCode() int32 }) bool {
	for err != nil {
		if c, ok := err.(interface{ StatusCode() int32 }); ok {
			*out = c
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
