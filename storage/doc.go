// Package storage implements a wear-leveled parameter store on raw NOR
// flash, standing in for the EEPROM the hardware does not have.
//
// # Layout
//
// The store owns two flash segments, A and B. A segment begins with a
// 16-bit magic word; the segment whose magic word is programmed is the
// active one, and at most one segment is active at a time. Records follow
// the magic word as an append-only log:
//
//	[parameter u16][size u16][data ...], padded to 4-byte alignment
//
// A parameter of 0x0000 is a tombstone (the record is logically deleted),
// 0xFFFF marks erased space and terminates the log, and anything else is a
// live key. Writes append; the most recent record for a key is the one
// nearest the tail.
//
// # Wear leveling
//
// When an append does not fit, the latest live value of every key is
// copied into the other segment, the destination's magic word is
// programmed, and the source segment is erased. The effective capacity is
// therefore half the reserved flash, in exchange for spreading erase
// cycles across both segments.
//
// # Power-loss safety
//
// A record's fields are programmed in order: data, then size, then
// parameter. Flash programming can only clear bits, so until the
// parameter field is written the record is indistinguishable from erased
// tail space. Losing power mid-write can waste space but can never
// produce a record that scans as valid with a partially written payload.
// This ordering is the engine's single most important property.
package storage
