// Package image loads user program images and slices them into the
// 128-byte pages the bootloader programs.
//
// Intel HEX files carry their own load addresses; raw binary files need
// the base address supplied by the caller. Gaps between HEX segments are
// filled with 0xFF so the flattened image programs to the same bytes the
// segments describe, the rest of each page staying erased.
package image
