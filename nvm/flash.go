package nvm

import "fmt"

// Config holds the Flash configuration.
type Config struct {
	// Critical wraps every unlock/operate/lock sequence. On bare metal
	// this is where interrupts are masked (and, on parts that cannot
	// fetch from flash while it is busy, where execution moves to RAM).
	// The default runs the operation directly.
	Critical func(op func())
}

func defaultConfig() Config {
	return Config{
		Critical: func(op func()) { op() },
	}
}

// Option is a functional option for configuring Flash.
type Option func(*Config)

// WithCriticalSection sets the hook that brackets every program and erase
// operation.
//
// Example:
//
//	flash := nvm.New(dev, nvm.WithCriticalSection(irq.Masked))
func WithCriticalSection(critical func(op func())) Option {
	return func(c *Config) {
		if critical != nil {
			c.Critical = critical
		}
	}
}

// Flash provides checked program and erase operations on top of a raw
// Device. It is the single mutation path for non-volatile memory.
type Flash struct {
	dev Device
	cfg Config
}

// New creates a Flash over the given device.
func New(dev Device, opts ...Option) *Flash {
	if dev == nil {
		panic("nvm: device cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Flash{dev: dev, cfg: cfg}
}

// Bounds returns the device's addressable range.
func (f *Flash) Bounds() (start, end uint32) {
	return f.dev.Bounds()
}

// PageSize returns the device's erase granularity in bytes.
func (f *Flash) PageSize() uint32 {
	return f.dev.PageSize()
}

// ReadHalfword returns the halfword at the given address. addr must be
// 16-bit aligned and within bounds.
func (f *Flash) ReadHalfword(addr uint32) uint16 {
	f.check(addr, "read")
	return f.dev.ReadHalfword(addr)
}

// ReadAt fills p with the flash contents starting at addr. The read range
// must lie within the device bounds; addr must be 16-bit aligned.
func (f *Flash) ReadAt(p []byte, addr uint32) {
	f.check(addr, "read")
	for i := 0; i < len(p); i += 2 {
		hw := f.dev.ReadHalfword(addr + uint32(i))
		p[i] = byte(hw)
		if i+1 < len(p) {
			p[i+1] = byte(hw >> 8)
		}
	}
}

// WriteHalfword programs one halfword. The caller must guarantee the cell
// is currently erased (all ones); the sole exception is programming
// 0x0000, which the hardware accepts against any contents. The written
// value is read back and compared; a mismatch is reported as ErrVerify.
func (f *Flash) WriteHalfword(addr uint32, value uint16) error {
	f.check(addr, "write")

	var st Status
	f.cfg.Critical(func() {
		st = f.dev.Program(addr, value)
	})

	if st&StatusEndOfOperation != 0 {
		if f.dev.ReadHalfword(addr) != value {
			return &Error{Code: CodeVerify, Addr: addr}
		}
		return nil
	}
	if st&StatusWriteProtectError != 0 {
		return &Error{Code: CodeWriteProtect, Addr: addr}
	}
	// No end-of-operation and no specific fault: the operation never
	// completed (for example, power was lost mid-sequence). Surface it as
	// a programming fault; the cell's contents are unspecified.
	return &Error{Code: CodeProgram, Addr: addr}
}

// ErasePage erases the page containing addr, returning all of its bytes
// to 0xFF.
func (f *Flash) ErasePage(addr uint32) error {
	f.check(addr, "erase")

	var st Status
	f.cfg.Critical(func() {
		st = f.dev.ErasePage(addr)
	})

	if st&StatusEndOfOperation != 0 {
		return nil
	}
	if st&StatusWriteProtectError != 0 {
		return &Error{Code: CodeEraseWriteProtect, Addr: addr}
	}
	return &Error{Code: CodeEraseProgram, Addr: addr}
}

// check panics on misuse: an unaligned or out-of-range address is a
// programming error in the caller, not a runtime condition.
func (f *Flash) check(addr uint32, op string) {
	start, end := f.dev.Bounds()
	if addr%2 != 0 {
		panic(fmt.Sprintf("nvm: unaligned %s address 0x%08X", op, addr))
	}
	if addr < start || addr >= end {
		panic(fmt.Sprintf("nvm: %s address 0x%08X outside [0x%08X,0x%08X)", op, addr, start, end))
	}
}
