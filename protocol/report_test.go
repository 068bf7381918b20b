package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestBuildResetCmd(t *testing.T) {
	report := BuildResetCmd()
	if len(report) != ReportSize {
		t.Fatalf("report length = %d, want %d", len(report), ReportSize)
	}
	for i, b := range report {
		if b != 0 {
			t.Fatalf("byte %d = 0x%02X, want all zero", i, b)
		}
	}
}

func TestBuildProgramCmd(t *testing.T) {
	page := make([]byte, ProgramPageSize)
	for i := range page {
		page[i] = byte(i)
	}

	report, err := BuildProgramCmd(0x08002000, page)
	if err != nil {
		t.Fatalf("BuildProgramCmd() error = %v", err)
	}

	cmd, err := ParseCommand(report)
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	if cmd.Command != CmdProgram {
		t.Errorf("Command = 0x%08X, want 0x%08X", cmd.Command, CmdProgram)
	}
	if cmd.Address != 0x08002000 {
		t.Errorf("Address = 0x%08X, want 0x08002000", cmd.Address)
	}
	wantLower, wantUpper := PageCRCs(page)
	if cmd.CRCLower != wantLower || cmd.CRCUpper != wantUpper {
		t.Errorf("CRCs = (0x%08X, 0x%08X), want (0x%08X, 0x%08X)",
			cmd.CRCLower, cmd.CRCUpper, wantLower, wantUpper)
	}
}

func TestBuildProgramCmdValidation(t *testing.T) {
	page := make([]byte, ProgramPageSize)
	tests := []struct {
		name string
		addr uint32
		page []byte
	}{
		{"misaligned address", 0x08002040, page},
		{"below programmable region", 0x08001000, page},
		{"above programmable region", 0x08007800, page},
		{"empty page", 0x08002000, nil},
		{"oversized page", 0x08002000, make([]byte, ProgramPageSize+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildProgramCmd(tt.addr, tt.page); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestBuildExitCmd(t *testing.T) {
	report, err := BuildExitCmd(0x08002000)
	if err != nil {
		t.Fatalf("BuildExitCmd() error = %v", err)
	}
	cmd, _ := ParseCommand(report)
	if cmd.Command != CmdExit || cmd.Address != 0x08002000 {
		t.Errorf("parsed (0x%08X, 0x%08X), want (CmdExit, 0x08002000)", cmd.Command, cmd.Address)
	}

	// EXIT entry points need not be page aligned, only in range.
	if _, err := BuildExitCmd(0x08002004); err != nil {
		t.Errorf("unaligned in-range entry point rejected: %v", err)
	}
	if _, err := BuildExitCmd(0x08000000); err == nil {
		t.Error("entry point below the programmable region accepted")
	}
}

func TestSplitPagePadsWithErasedValue(t *testing.T) {
	page := []byte{0x01, 0x02, 0x03}
	lower, upper := SplitPage(page)
	if len(lower) != HalfSize || len(upper) != HalfSize {
		t.Fatalf("half lengths = (%d, %d), want (%d, %d)", len(lower), len(upper), HalfSize, HalfSize)
	}
	if !bytes.Equal(lower[:3], page) {
		t.Errorf("lower half prefix = % X, want % X", lower[:3], page)
	}
	for i := 3; i < HalfSize; i++ {
		if lower[i] != 0xFF {
			t.Fatalf("lower pad byte %d = 0x%02X, want 0xFF", i, lower[i])
		}
	}
	for i, b := range upper {
		if b != 0xFF {
			t.Fatalf("upper pad byte %d = 0x%02X, want 0xFF", i, b)
		}
	}
}

func TestStatusReportRoundTrip(t *testing.T) {
	data := []byte{0xAA, 0xBB, 0xCC}
	report := BuildStatusReport(CmdProgram, CodeBadCRC, 0x11111111, 0x22222222, data)

	status, err := ParseStatusReport(report)
	if err != nil {
		t.Fatalf("ParseStatusReport() error = %v", err)
	}
	if status.Command != CmdProgram {
		t.Errorf("Command = 0x%08X, want CmdProgram", status.Command)
	}
	if status.Code != CodeBadCRC {
		t.Errorf("Code = %d, want %d", status.Code, CodeBadCRC)
	}
	if status.OK() {
		t.Error("OK() = true for a negative code")
	}
	if status.CRCLower != 0x11111111 || status.CRCUpper != 0x22222222 {
		t.Errorf("CRCs = (0x%08X, 0x%08X)", status.CRCLower, status.CRCUpper)
	}
	if !bytes.Equal(status.Data[:3], data) {
		t.Errorf("Data prefix = % X, want % X", status.Data[:3], data)
	}
}

func TestParseRejectsShortReports(t *testing.T) {
	if _, err := ParseCommand(make([]byte, 32)); err == nil {
		t.Error("ParseCommand accepted a short report")
	}
	if _, err := ParseStatusReport(make([]byte, 32)); err == nil {
		t.Error("ParseStatusReport accepted a short report")
	}
}

func TestStatusCodeIsSignedOnTheWire(t *testing.T) {
	report := BuildStatusReport(CmdReset, CodeFSM, 0, 0, nil)
	raw := binary.LittleEndian.Uint32(report[4:8])
	if int32(raw) != CodeFSM {
		t.Errorf("wire value 0x%08X does not decode to %d", raw, CodeFSM)
	}
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Command: CmdProgram, Code: CodeBadCRC}
	if err.StatusCode() != CodeBadCRC {
		t.Errorf("StatusCode() = %d, want %d", err.StatusCode(), CodeBadCRC)
	}
	if !errors.Is(err, &StatusError{Code: CodeBadCRC}) {
		t.Error("errors.Is should match on code")
	}
	if errors.Is(err, &StatusError{Code: CodeVerify}) {
		t.Error("errors.Is matched a different code")
	}
	if msg := err.Error(); msg == "" {
		t.Error("empty error message")
	}
}
