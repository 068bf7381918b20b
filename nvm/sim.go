package nvm

import "fmt"

// Sim is a memory-backed Device with true NOR flash semantics: programming
// can only clear bits, programming a non-erased cell faults (except for
// the all-zeroes halfword), and erasing works on whole pages.
//
// Sim additionally supports the fault injection the storage and
// bootloader tests need: write-protected ranges, forced status results,
// and power loss after a chosen number of mutating operations.
//
// Example:
//
//	dev := nvm.NewSim(0x08000000, 0x8000)
//	flash := nvm.New(dev)
type Sim struct {
	base     uint32
	mem      []byte
	pageSize uint32

	protected  []simRange
	forced     []Status
	opsLeft    int // mutating ops until power loss; <0 means never
	operations int
}

type simRange struct {
	start, end uint32
}

// SimOption is a functional option for configuring a Sim.
type SimOption func(*Sim)

// WithPageSize sets the erase granularity. The default is 1 KiB, matching
// the target hardware. size must evenly divide the device size.
func WithPageSize(size uint32) SimOption {
	return func(s *Sim) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithWriteProtect marks [start, end) as write protected from creation.
func WithWriteProtect(start, end uint32) SimOption {
	return func(s *Sim) {
		s.protected = append(s.protected, simRange{start, end})
	}
}

// NewSim creates a simulated flash bank of the given size based at base.
// All memory starts erased.
func NewSim(base, size uint32, opts ...SimOption) *Sim {
	s := &Sim{
		base:     base,
		mem:      make([]byte, size),
		pageSize: 1024,
		opsLeft:  -1,
	}
	for i := range s.mem {
		s.mem[i] = 0xFF
	}
	for _, opt := range opts {
		opt(s)
	}
	if size%s.pageSize != 0 {
		panic(fmt.Sprintf("nvm: size 0x%X is not a multiple of the 0x%X page size", size, s.pageSize))
	}
	return s
}

// Bounds implements Device.
func (s *Sim) Bounds() (start, end uint32) {
	return s.base, s.base + uint32(len(s.mem))
}

// PageSize implements Device.
func (s *Sim) PageSize() uint32 {
	return s.pageSize
}

// ReadHalfword implements Device.
func (s *Sim) ReadHalfword(addr uint32) uint16 {
	off := s.offset(addr)
	return uint16(s.mem[off]) | uint16(s.mem[off+1])<<8
}

// Program implements Device. Programming a halfword other than 0x0000
// into a non-erased cell reports a programming fault and leaves the cell
// untouched, like the hardware does.
func (s *Sim) Program(addr uint32, value uint16) Status {
	if st, injected := s.injected(addr); injected {
		return st
	}

	off := s.offset(addr)
	current := uint16(s.mem[off]) | uint16(s.mem[off+1])<<8
	if value != 0x0000 && current != 0xFFFF {
		return StatusProgramError
	}

	// Bits can only be cleared.
	result := current & value
	s.mem[off] = byte(result)
	s.mem[off+1] = byte(result >> 8)
	return StatusEndOfOperation
}

// ErasePage implements Device.
func (s *Sim) ErasePage(addr uint32) Status {
	if st, injected := s.injected(addr); injected {
		return st
	}

	off := s.offset(addr)
	off -= off % int(s.pageSize)
	for i := 0; i < int(s.pageSize); i++ {
		s.mem[off+i] = 0xFF
	}
	return StatusEndOfOperation
}

// injected applies fault injection common to Program and ErasePage. The
// returned status is only meaningful when injected is true.
func (s *Sim) injected(addr uint32) (Status, bool) {
	s.operations++
	if s.opsLeft == 0 {
		// Power is gone: the operation silently never happens and the
		// hardware reports nothing.
		return 0, true
	}
	if s.opsLeft > 0 {
		s.opsLeft--
	}
	if len(s.forced) > 0 {
		st := s.forced[0]
		s.forced = s.forced[1:]
		return st, true
	}
	for _, r := range s.protected {
		if addr >= r.start && addr < r.end {
			return StatusWriteProtectError, true
		}
	}
	return 0, false
}

// PowerLossAfter cuts power after n more mutating operations (programs
// and erases). Subsequent operations do nothing and report no status,
// exactly as if the caller's execution context had vanished.
func (s *Sim) PowerLossAfter(n int) {
	s.opsLeft = n
}

// PowerOn restores power after a simulated loss. Memory keeps whatever
// state the interrupted sequence left behind.
func (s *Sim) PowerOn() {
	s.opsLeft = -1
}

// ForceStatus makes the next mutating operation report st instead of
// executing. Multiple calls queue up in order.
func (s *Sim) ForceStatus(st Status) {
	s.forced = append(s.forced, st)
}

// Protect marks [start, end) as write protected.
func (s *Sim) Protect(start, end uint32) {
	s.protected = append(s.protected, simRange{start, end})
}

// Unprotect removes all write protection.
func (s *Sim) Unprotect() {
	s.protected = nil
}

// Operations returns the number of mutating operations attempted so far,
// which tests use to position power-loss injection.
func (s *Sim) Operations() int {
	return s.operations
}

// Bytes returns the live backing memory for inspection. Mutating it
// bypasses flash semantics; tests should treat it as read only.
func (s *Sim) Bytes() []byte {
	return s.mem
}

func (s *Sim) offset(addr uint32) int {
	if addr < s.base || addr >= s.base+uint32(len(s.mem)) {
		panic(fmt.Sprintf("nvm: simulated address 0x%08X out of range", addr))
	}
	return int(addr - s.base)
}
