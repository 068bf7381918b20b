package nvm

import "fmt"

// Failure codes reported by the flash layer. The values double as the
// signed 32-bit status codes placed in bootloader status reports, so they
// must not collide with the storage or protocol code ranges.
const (
	// CodeWriteProtect indicates the hardware refused a program operation
	// because the target cell is write protected.
	CodeWriteProtect int32 = -2001

	// CodeProgram indicates the hardware reported a programming fault,
	// typically because the target cell was not erased beforehand.
	CodeProgram int32 = -2002

	// CodeVerify indicates the post-write read-back did not match the
	// value that was programmed.
	CodeVerify int32 = -2003

	// CodeEraseWriteProtect indicates a page erase failed due to write
	// protection.
	CodeEraseWriteProtect int32 = -2004

	// CodeEraseProgram indicates a page erase failed with a programming
	// fault.
	CodeEraseProgram int32 = -2005
)

// Error describes a failed flash operation. Code identifies the failure
// kind and Addr is the flash address the operation targeted.
type Error struct {
	Code int32
	Addr uint32
}

// Matchable sentinels for errors.Is. The zero Addr in a sentinel matches
// any address.
var (
	ErrWriteProtect      = &Error{Code: CodeWriteProtect}
	ErrProgram           = &Error{Code: CodeProgram}
	ErrVerify            = &Error{Code: CodeVerify}
	ErrEraseWriteProtect = &Error{Code: CodeEraseWriteProtect}
	ErrEraseProgram      = &Error{Code: CodeEraseProgram}
)

func (e *Error) Error() string {
	name := "unknown NVM error"
	switch e.Code {
	case CodeWriteProtect:
		name = "write protected"
	case CodeProgram:
		name = "programming fault"
	case CodeVerify:
		name = "read-back verify mismatch"
	case CodeEraseWriteProtect:
		name = "erase refused by write protection"
	case CodeEraseProgram:
		name = "erase programming fault"
	}
	if e.Addr == 0 {
		return fmt.Sprintf("nvm: %s (%d)", name, e.Code)
	}
	return fmt.Sprintf("nvm: %s at 0x%08X (%d)", name, e.Addr, e.Code)
}

// StatusCode returns the signed status code for this error, suitable for
// placing in a bootloader status report.
func (e *Error) StatusCode() int32 {
	return e.Code
}

// Is reports whether target is an *Error with the same code. A target with
// a zero address matches regardless of where the failure occurred.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Addr == 0 || t.Addr == e.Addr)
}
