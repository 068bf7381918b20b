package protocol

import "fmt"

// StatusError represents a failure status reported by the device.
type StatusError struct {
	// Command is the command word the device was acknowledging.
	Command uint32

	// Code is the signed status code from the IN report.
	Code int32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %s (%d)", CommandName(e.Command), StatusName(e.Code), e.Code)
}

// StatusCode returns the signed status code for this error.
func (e *StatusError) StatusCode() int32 {
	return e.Code
}

// Is reports whether target is a StatusError with the same code,
// regardless of command.
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	return ok && t.Code == e.Code
}

// StatusName returns a human-readable name for a status code. It covers
// the bootloader's own codes plus the storage and flash strata that can
// chain up through an IN report.
func StatusName(code int32) string {
	switch code {
	case StatusOK:
		return "success"
	case CodeFSM:
		return "unexpected event for state"
	case CodeCommand:
		return "unrecognized command"
	case CodeBadAddr:
		return "bad address"
	case CodeBadCRC:
		return "CRC32 mismatch"
	case CodeWrite:
		return "flash write failed"
	case CodeShort:
		return "short report"
	case CodeVerify:
		return "flash verify failed"
	}
	switch {
	case code <= -3000 && code > -4000:
		return "bootloader error"
	case code <= -2000 && code > -3000:
		return "flash error"
	case code <= -1000 && code > -2000:
		return "storage error"
	case code > 0:
		return "warning"
	}
	return "unknown error"
}

// CommandName returns a human-readable name for a command word.
func CommandName(command uint32) string {
	switch command {
	case CmdReset:
		return "RESET"
	case CmdProgram:
		return "PROGRAM"
	case CmdRead:
		return "READ"
	case CmdExit:
		return "EXIT"
	case CmdAbort:
		return "ABORT"
	default:
		return fmt.Sprintf("command 0x%08X", command)
	}
}
