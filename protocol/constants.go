package protocol

// ReportSize is the exact length of every HID report, both directions.
const ReportSize = 64

// Command words carried in the first word of an OUT report.
const (
	// CmdReset returns the bootloader to its idle state, discarding any
	// transaction in progress.
	CmdReset uint32 = 0x00

	// CmdProgram begins a 128-byte programming transaction. The command
	// report carries the target address and the expected CRC32 of each
	// 64-byte half; the two halves follow as raw OUT reports.
	CmdProgram uint32 = 0x80

	// CmdRead begins a 128-byte readback transaction.
	CmdRead uint32 = 0x40

	// CmdExit persists the passed address as the user program entry point
	// and resets the device into it. A successful exit produces no IN
	// report.
	CmdExit uint32 = 0xC3

	// CmdAbort resets the device into whatever user program entry point is
	// already persisted, leaving it untouched.
	CmdAbort uint32 = 0x3E
)

// Status codes carried in the second word of an IN report. Zero is
// success; negative values are failures.
const (
	StatusOK int32 = 0

	// CodeFSM reports an event the current state cannot accept.
	CodeFSM int32 = -3001

	// CodeCommand reports an unrecognized command word.
	CodeCommand int32 = -3002

	// CodeBadAddr reports a target address that is misaligned or outside
	// the programmable region.
	CodeBadAddr int32 = -3003

	// CodeBadCRC reports a data half whose CRC32 did not match the value
	// announced in the PROGRAM command.
	CodeBadCRC int32 = -3004

	// CodeWrite reports a flash programming failure.
	CodeWrite int32 = -3005

	// CodeShort reports an OUT report shorter than ReportSize.
	CodeShort int32 = -3006

	// CodeVerify reports a post-program readback mismatch.
	CodeVerify int32 = -3007
)

// Programming geometry. PROGRAM and READ move ProgramPageSize bytes per
// transaction, split into two HalfSize raw reports.
const (
	ProgramPageSize = 128
	HalfSize        = 64
)

// The programmable flash region, inclusive of both bounds. Everything
// below FlashLowerBound belongs to the bootloader itself; everything
// above FlashUpperBound is reserved for the parameter store.
const (
	FlashLowerBound uint32 = 0x08002000
	FlashUpperBound uint32 = 0x080077FF
)

// SkipMagic is the single-shot stored value that makes the boot selector
// ignore the reset cause once and start the user program anyway. The
// selector consumes it on every boot attempt.
const SkipMagic uint32 = 0x3C65A95A
