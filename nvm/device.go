package nvm

// Status holds the hardware status flags reported by a Device after a
// program or erase operation. The flags mirror a typical flash status
// register: an end-of-operation bit plus two failure bits.
type Status uint8

const (
	// StatusEndOfOperation is set when the operation ran to completion.
	StatusEndOfOperation Status = 1 << iota

	// StatusWriteProtectError is set when the operation was refused
	// because the target is write protected.
	StatusWriteProtectError

	// StatusProgramError is set when the operation failed with a
	// programming fault.
	StatusProgramError
)

// Device models a raw flash bank. Implementations perform the operations
// without any checking beyond what the hardware itself does; the Flash
// wrapper is responsible for interpreting the returned status.
//
// A Device is not safe for concurrent use. By construction there is
// exactly one execution context mutating flash at a time.
type Device interface {
	// Bounds returns the first byte address of the bank and the address
	// one past its last byte.
	Bounds() (start, end uint32)

	// PageSize returns the erase granularity in bytes.
	PageSize() uint32

	// ReadHalfword returns the 16-bit value at the given halfword-aligned
	// address. Reading is always permitted and has no side effects.
	ReadHalfword(addr uint32) uint16

	// Program writes one halfword and reports the resulting status flags.
	// Flash bits can only be cleared by programming, never set.
	Program(addr uint32, value uint16) Status

	// ErasePage erases the page containing addr, returning all of its
	// bytes to 0xFF, and reports the resulting status flags.
	ErasePage(addr uint32) Status
}
