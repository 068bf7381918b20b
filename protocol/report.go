package protocol

import (
	"encoding/binary"
	"fmt"
)

// Command is the decoded form of an OUT report's header words. The device
// side decodes every OUT report through ParseCommand; raw data halves are
// consumed verbatim instead.
type Command struct {
	Command  uint32
	Address  uint32
	CRCLower uint32
	CRCUpper uint32
}

// Status is the decoded form of an IN report.
type Status struct {
	// Command echoes the command this report acknowledges.
	Command uint32

	// Code is the signed result; zero is success.
	Code int32

	// CRCLower and CRCUpper are the CRC32 values the device computed over
	// the data halves it received (or read back).
	CRCLower uint32
	CRCUpper uint32

	// Data is the command-specific payload (48 bytes).
	Data []byte
}

// OK reports whether the status code indicates success.
func (s *Status) OK() bool {
	return s.Code >= 0
}

// BuildResetCmd constructs a RESET command report.
func BuildResetCmd() []byte {
	return buildCmd(CmdReset, 0, 0, 0)
}

// BuildProgramCmd constructs a PROGRAM command report for a 128-byte page
// at addr, computing the half CRCs from the page contents. The two raw
// halves must be sent immediately after (see SplitPage).
//
// The address must be 128-byte aligned and within the programmable
// region; the device enforces the same rule and this catches it early.
func BuildProgramCmd(addr uint32, page []byte) ([]byte, error) {
	if len(page) == 0 || len(page) > ProgramPageSize {
		return nil, fmt.Errorf("page must be 1..%d bytes, got %d", ProgramPageSize, len(page))
	}
	if err := CheckProgramAddr(addr); err != nil {
		return nil, err
	}
	lower, upper := PageCRCs(page)
	return buildCmd(CmdProgram, addr, lower, upper), nil
}

// BuildReadCmd constructs a READ command report for the 128-byte page at
// addr.
func BuildReadCmd(addr uint32) ([]byte, error) {
	if err := CheckProgramAddr(addr); err != nil {
		return nil, err
	}
	return buildCmd(CmdRead, addr, 0, 0), nil
}

// BuildExitCmd constructs an EXIT command report naming addr as the user
// program entry point.
func BuildExitCmd(addr uint32) ([]byte, error) {
	if addr < FlashLowerBound || addr > FlashUpperBound {
		return nil, fmt.Errorf("entry point 0x%08X outside programmable region [0x%08X, 0x%08X]",
			addr, FlashLowerBound, FlashUpperBound)
	}
	return buildCmd(CmdExit, addr, 0, 0), nil
}

// BuildAbortCmd constructs an ABORT command report.
func BuildAbortCmd() []byte {
	return buildCmd(CmdAbort, 0, 0, 0)
}

// SplitPage returns the two raw 64-byte OUT reports of a PROGRAM
// transaction, padding short pages with 0xFF.
func SplitPage(page []byte) (lower, upper []byte) {
	padded := PadPage(page)
	return padded[:HalfSize], padded[HalfSize:]
}

// CheckProgramAddr validates a PROGRAM/READ target address the same way
// the device does.
func CheckProgramAddr(addr uint32) error {
	if addr&(ProgramPageSize-1) != 0 {
		return fmt.Errorf("address 0x%08X is not %d-byte aligned", addr, ProgramPageSize)
	}
	if addr < FlashLowerBound || addr > FlashUpperBound {
		return fmt.Errorf("address 0x%08X outside programmable region [0x%08X, 0x%08X]",
			addr, FlashLowerBound, FlashUpperBound)
	}
	return nil
}

// ParseCommand decodes an OUT report's header words.
func ParseCommand(report []byte) (*Command, error) {
	if len(report) != ReportSize {
		return nil, fmt.Errorf("report must be %d bytes, got %d", ReportSize, len(report))
	}
	return &Command{
		Command:  binary.LittleEndian.Uint32(report[0:4]),
		Address:  binary.LittleEndian.Uint32(report[4:8]),
		CRCLower: binary.LittleEndian.Uint32(report[8:12]),
		CRCUpper: binary.LittleEndian.Uint32(report[12:16]),
	}, nil
}

// BuildStatusReport constructs the device's IN report. data may be nil or
// up to 48 bytes.
func BuildStatusReport(command uint32, code int32, crcLower, crcUpper uint32, data []byte) []byte {
	report := make([]byte, ReportSize)
	binary.LittleEndian.PutUint32(report[0:4], command)
	binary.LittleEndian.PutUint32(report[4:8], uint32(code))
	binary.LittleEndian.PutUint32(report[8:12], crcLower)
	binary.LittleEndian.PutUint32(report[12:16], crcUpper)
	copy(report[16:], data)
	return report
}

// ParseStatusReport decodes an IN report.
func ParseStatusReport(report []byte) (*Status, error) {
	if len(report) != ReportSize {
		return nil, fmt.Errorf("report must be %d bytes, got %d", ReportSize, len(report))
	}
	return &Status{
		Command:  binary.LittleEndian.Uint32(report[0:4]),
		Code:     int32(binary.LittleEndian.Uint32(report[4:8])),
		CRCLower: binary.LittleEndian.Uint32(report[8:12]),
		CRCUpper: binary.LittleEndian.Uint32(report[12:16]),
		Data:     report[16:],
	}, nil
}

func buildCmd(command, addr, crcLower, crcUpper uint32) []byte {
	report := make([]byte, ReportSize)
	binary.LittleEndian.PutUint32(report[0:4], command)
	binary.LittleEndian.PutUint32(report[4:8], addr)
	binary.LittleEndian.PutUint32(report[8:12], crcLower)
	binary.LittleEndian.PutUint32(report[12:16], crcUpper)
	return report
}
