package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/kcuzner/midi-fader/nvm"
)

// Reserved parameter values. Every other 16-bit value is a usable key;
// the store does not interpret keys beyond these two.
const (
	// TombstoneParameter marks a record as logically deleted. Writing
	// 0x0000 over the key field is valid against programmed flash.
	TombstoneParameter uint16 = 0x0000

	// ErasedParameter is the key value of erased flash. It terminates a
	// log scan and is never written.
	ErasedParameter uint16 = 0xFFFF
)

// SegmentMagic marks a segment as active when programmed into its first
// halfword.
const SegmentMagic uint16 = 0x55AA

const (
	// A segment's records start this many bytes past its magic word,
	// keeping them 4-byte aligned.
	segmentHeaderSize = 4

	// Record header: parameter followed by size.
	recordHeaderSize = 4

	// The size field of erased flash. A record whose key is programmed
	// always has a programmed size, so seeing this mid-log is corruption.
	erasedSize uint16 = 0xFFFF
)

// Segment is one of the two flash regions [Start, End) holding the log.
// Start addresses the magic halfword.
type Segment struct {
	Start uint32
	End   uint32
}

// Layout places the two alternating segments. Both must be erase-page
// aligned so a migration can erase the source without touching its
// neighbor.
type Layout struct {
	A Segment
	B Segment
}

// Store is the wear-leveled parameter store. It is not safe for
// concurrent use; by construction exactly one execution context mutates
// flash at a time.
type Store struct {
	flash  *nvm.Flash
	layout Layout
}

// New creates a Store over the given flash and segment layout. The layout
// is validated against the device geometry; a bad layout is a build
// configuration error and panics.
func New(flash *nvm.Flash, layout Layout) *Store {
	if flash == nil {
		panic("storage: flash cannot be nil")
	}
	for _, seg := range []Segment{layout.A, layout.B} {
		start, end := flash.Bounds()
		page := flash.PageSize()
		switch {
		case seg.Start < start || seg.End > end || seg.Start >= seg.End:
			panic(fmt.Sprintf("storage: segment [0x%08X,0x%08X) outside flash", seg.Start, seg.End))
		case seg.Start%page != 0 || seg.End%page != 0:
			panic(fmt.Sprintf("storage: segment [0x%08X,0x%08X) not page aligned", seg.Start, seg.End))
		case seg.End-seg.Start < segmentHeaderSize+recordHeaderSize:
			panic(fmt.Sprintf("storage: segment [0x%08X,0x%08X) too small", seg.Start, seg.End))
		}
	}
	return &Store{flash: flash, layout: layout}
}

// Format erases both segments and marks segment A active, destroying all
// stored values. It is run once at manufacturing time (and by tests);
// normal operation never formats.
func (s *Store) Format() error {
	for _, seg := range []Segment{s.layout.A, s.layout.B} {
		for addr := seg.Start; addr < seg.End; addr += s.flash.PageSize() {
			if err := s.flash.ErasePage(addr); err != nil {
				return fmt.Errorf("format: %w", err)
			}
		}
	}
	if err := s.flash.WriteHalfword(s.layout.A.Start, SegmentMagic); err != nil {
		return fmt.Errorf("format: %w", err)
	}
	return nil
}

// Read copies the most recent value of key into buf and returns the
// number of bytes copied. If buf is smaller than the stored value the
// prefix is copied and ErrBufferTooSmall is returned as a non-fatal
// warning alongside the valid count.
func (s *Store) Read(key uint16, buf []byte) (int, error) {
	if key == TombstoneParameter || key == ErasedParameter {
		return 0, fmt.Errorf("storage: key 0x%04X is reserved", key)
	}

	seg, err := s.activeSegment()
	if err != nil {
		return 0, err
	}

	addr, size, found, err := s.findLast(seg, key)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, &Error{Code: CodeNotFound, Param: key}
	}

	n := int(size)
	warn := false
	if len(buf) < n {
		n = len(buf)
		warn = true
	}
	s.flash.ReadAt(buf[:n], addr+recordHeaderSize)
	if warn {
		return n, &Error{Code: CodeInsufficientBuffer, Param: key}
	}
	return n, nil
}

// ReadUint32 reads a value stored as up to four little-endian bytes.
// Shorter stored values are zero extended.
func (s *Store) ReadUint32(key uint16) (uint32, error) {
	var buf [4]byte
	n, err := s.Read(key, buf[:])
	if err != nil && !IsWarning(err) {
		return 0, err
	}
	var v uint32
	for i := 0; i < n; i++ {
		v |= uint32(buf[i]) << (8 * i)
	}
	return v, nil
}

// Write appends a new record for key, then tombstones the previous one.
// If the record does not fit in the active segment's free space a
// migration into the other segment is performed first.
func (s *Store) Write(key uint16, data []byte) error {
	if key == TombstoneParameter || key == ErasedParameter {
		return fmt.Errorf("storage: key 0x%04X is reserved", key)
	}
	if len(data) >= int(erasedSize) {
		return &Error{Code: CodeTooLarge, Param: key}
	}

	seg, err := s.activeSegment()
	if err != nil {
		return err
	}

	oldAddr, _, oldFound, err := s.findLast(seg, key)
	if err != nil {
		return err
	}

	tail, err := s.findTail(seg)
	if err != nil {
		return err
	}

	if nextRecordAddr(tail, uint16(len(data))) > seg.End {
		if err := s.migrate(seg); err != nil {
			return err
		}
		seg, err = s.activeSegment()
		if err != nil {
			return err
		}
		if oldFound {
			// The value was live a moment ago; migration must have
			// carried it over.
			oldAddr, _, oldFound, err = s.findLast(seg, key)
			if err != nil {
				return err
			}
			if !oldFound {
				return &Error{Code: CodeCorrupt, Param: key}
			}
		}
		tail, err = s.findTail(seg)
		if err != nil {
			return err
		}
		if nextRecordAddr(tail, uint16(len(data))) > seg.End {
			return &Error{Code: CodeTooLarge, Param: key}
		}
	}

	if err := s.appendRecord(tail, key, data); err != nil {
		return err
	}

	if oldFound {
		if err := s.flash.WriteHalfword(oldAddr, TombstoneParameter); err != nil {
			return err
		}
	}
	return nil
}

// WriteUint32 stores v as four little-endian bytes.
func (s *Store) WriteUint32(key uint16, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return s.Write(key, buf[:])
}

// activeSegment resolves the segment whose magic word is programmed,
// checking A first like the original layout does.
func (s *Store) activeSegment() (Segment, error) {
	if s.flash.ReadHalfword(s.layout.A.Start) == SegmentMagic {
		return s.layout.A, nil
	}
	if s.flash.ReadHalfword(s.layout.B.Start) == SegmentMagic {
		return s.layout.B, nil
	}
	return Segment{}, ErrNoStorage
}

// walk scans seg's log in address order, calling visit for every record
// (live or tombstoned) until visit returns false or the log ends. It
// returns the tail: the address of the first erased key field, or seg.End
// when the segment is completely full. A scan that would be forced past
// the segment end fails with ErrCorrupt.
func (s *Store) walk(seg Segment, visit func(addr uint32, param, size uint16) bool) (uint32, error) {
	addr := seg.Start + segmentHeaderSize
	for addr < seg.End {
		param := s.flash.ReadHalfword(addr)
		if param == ErasedParameter {
			return addr, nil
		}
		size := s.flash.ReadHalfword(addr + 2)
		if size == erasedSize {
			// A programmed key with an erased size cannot be produced by
			// the write ordering; the log is damaged.
			return 0, ErrCorrupt
		}
		next := nextRecordAddr(addr, size)
		if next > seg.End {
			return 0, ErrCorrupt
		}
		if visit != nil && !visit(addr, param, size) {
			return addr, nil
		}
		addr = next
	}
	return addr, nil
}

// findTail returns the address where the next record would be appended.
func (s *Store) findTail(seg Segment) (uint32, error) {
	return s.walk(seg, nil)
}

// findLast locates the record for key nearest the tail. The most recent
// write always wins, even if an earlier record for the same key was never
// tombstoned (a lost tombstone write is tolerated by design).
func (s *Store) findLast(seg Segment, key uint16) (addr uint32, size uint16, found bool, err error) {
	_, err = s.walk(seg, func(a uint32, p, sz uint16) bool {
		if p == key {
			addr, size, found = a, sz, true
		}
		return true
	})
	if err != nil {
		return 0, 0, false, err
	}
	return addr, size, found, nil
}

// appendRecord programs a record at addr. The data goes first, then the
// size, and the key field last: the key is what marks the record valid,
// so a reader can never observe a valid key in front of a partially
// written record.
func (s *Store) appendRecord(addr uint32, key uint16, data []byte) error {
	for i := 0; i < len(data); i += 2 {
		hw := uint16(data[i])
		if i+1 < len(data) {
			hw |= uint16(data[i+1]) << 8
		}
		if err := s.flash.WriteHalfword(addr+recordHeaderSize+uint32(i), hw); err != nil {
			return err
		}
	}
	if err := s.flash.WriteHalfword(addr+2, uint16(len(data))); err != nil {
		return err
	}
	return s.flash.WriteHalfword(addr, key)
}

// migrate consolidates the latest live value of every key from src into
// the other segment, activates it, and erases src.
func (s *Store) migrate(src Segment) error {
	dest := s.layout.B
	if src.Start == s.layout.B.Start {
		dest = s.layout.A
	}

	if s.flash.ReadHalfword(dest.Start) == SegmentMagic {
		return ErrMigrateConflict
	}

	// Copy keys in first-seen order, each with its latest value. Lost
	// tombstones can leave duplicate live records in src; only the newest
	// survives the move.
	destTail := dest.Start + segmentHeaderSize
	seen := make(map[uint16]bool)
	var copyErr error
	_, err := s.walk(src, func(addr uint32, param, size uint16) bool {
		if param == TombstoneParameter || seen[param] {
			return true
		}
		seen[param] = true

		latestAddr, latestSize, _, ferr := s.findLast(src, param)
		if ferr != nil {
			copyErr = ferr
			return false
		}
		value := make([]byte, latestSize)
		s.flash.ReadAt(value, latestAddr+recordHeaderSize)

		if nextRecordAddr(destTail, latestSize) > dest.End {
			copyErr = &Error{Code: CodeTooLarge, Param: param}
			return false
		}
		if werr := s.appendRecord(destTail, param, value); werr != nil {
			copyErr = werr
			return false
		}
		destTail = nextRecordAddr(destTail, latestSize)
		return true
	})
	if err != nil {
		return err
	}
	if copyErr != nil {
		return copyErr
	}

	// The destination is complete; activate it, then reclaim the source.
	if err := s.flash.WriteHalfword(dest.Start, SegmentMagic); err != nil {
		return err
	}
	for addr := src.Start; addr < src.End; addr += s.flash.PageSize() {
		if err := s.flash.ErasePage(addr); err != nil {
			return err
		}
	}
	return nil
}

// nextRecordAddr computes where the record after (addr, size) begins,
// keeping records 4-byte aligned.
func nextRecordAddr(addr uint32, size uint16) uint32 {
	addr += recordHeaderSize + uint32(size)
	if rem := addr % 4; rem != 0 {
		addr += 4 - rem
	}
	return addr
}
