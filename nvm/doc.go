// Package nvm provides the raw flash programming primitives used by the
// storage engine and the bootloader.
//
// # Overview
//
// The package is split into two layers:
//
//   - Device is the raw flash bank: halfword reads plus unchecked program
//     and erase operations that report hardware status flags.
//   - Flash wraps a Device and turns status flags into errors, adding
//     alignment checks and read-back verification after every program.
//
// Flash is the only path through which the rest of the firmware mutates
// non-volatile memory.
//
// # Flash semantics
//
// NOR flash can only clear bits when programming; setting bits back to one
// requires erasing a whole page. Callers of WriteHalfword must therefore
// guarantee the target cell is erased (0xFFFF), with one exception carried
// over from the hardware: programming 0x0000 is accepted against any cell
// contents. The storage engine relies on this to tombstone records in
// place.
//
// # Error handling
//
// Program and erase failures are never retried here: a reported fault
// means the cell or page is unreliable and the caller must decide what to
// do. On any error the affected cell's final value is unspecified and must
// be re-read before being relied upon.
//
// # Testing
//
// Sim is a memory-backed Device with true flash semantics and fault
// injection (write protection, programming faults, power loss after a
// chosen number of operations). All storage and bootloader tests run
// against it.
package nvm
