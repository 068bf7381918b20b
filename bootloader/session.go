package bootloader

import (
	"encoding/binary"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/kcuzner/midi-fader/nvm"
	"github.com/kcuzner/midi-fader/protocol"
	"github.com/kcuzner/midi-fader/storage"
)

// State identifies what the session is waiting for between events.
type State int

const (
	// StateReset is idle: the next OUT report must be a command.
	StateReset State = iota

	// StateStatus is waiting for the queued IN report to finish sending.
	StateStatus

	// StateLowerProgram and StateUpperProgram are waiting for the raw
	// data halves of a PROGRAM transaction.
	StateLowerProgram
	StateUpperProgram
)

func (s State) String() string {
	switch s {
	case StateReset:
		return "RESET"
	case StateStatus:
		return "STATUS"
	case StateLowerProgram:
		return "LPROG"
	case StateUpperProgram:
		return "UPROG"
	default:
		return "UNKNOWN"
	}
}

// Transport queues an IN report for transmission to the host. The session
// queues at most one report per event; the transport must deliver
// Session.InSent once the report has gone out.
type Transport interface {
	SendReport(report []byte) error
}

// Config holds the optional session settings.
type Config struct {
	// Logger receives session activity. Defaults to the standard logrus
	// logger.
	Logger logrus.FieldLogger
}

// Option is a functional option for configuring a Session or SelectBoot.
type Option func(*Config)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Config) {
		if log != nil {
			c.Logger = log
		}
	}
}

func defaultConfig() *Config {
	return &Config{Logger: logrus.StandardLogger()}
}

// Session is the bootloader protocol state machine. It reacts to USB
// events and never blocks; flash work happens inline in the event that
// carries it, exactly one transition at a time.
type Session struct {
	flash     *nvm.Flash
	store     *storage.Store
	transport Transport
	system    System
	log       logrus.FieldLogger

	state State
	next  State

	// PROGRAM transaction context, captured at command time.
	addr        uint32
	expectLower uint32
	expectUpper uint32

	// Computed half CRCs echoed in every status report until the next
	// command arrives.
	inLower uint32
	inUpper uint32
}

// NewSession creates a bootloader session. All four collaborators are
// required.
func NewSession(flash *nvm.Flash, store *storage.Store, transport Transport, system System, opts ...Option) *Session {
	if flash == nil || store == nil || transport == nil || system == nil {
		panic("bootloader: session collaborators cannot be nil")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Session{
		flash:     flash,
		store:     store,
		transport: transport,
		system:    system,
		log:       cfg.Logger,
		state:     StateReset,
	}
}

// State returns the current FSM state, for tests and diagnostics.
func (s *Session) State() State {
	return s.state
}

// Configured handles the USB configured event: the session returns to
// idle and is ready for the first command.
func (s *Session) Configured() {
	s.state = StateReset
	s.next = StateReset
}

// OutReceived handles a received OUT report. Reports that are not exactly
// 64 bytes are a protocol violation in every state.
func (s *Session) OutReceived(report []byte) error {
	if len(report) != protocol.ReportSize {
		s.log.WithField("len", len(report)).Warn("short OUT report")
		s.inLower, s.inUpper = 0, 0
		return s.sendStatus(0, protocol.CodeShort, StateReset)
	}

	switch s.state {
	case StateReset:
		return s.dispatch(report)
	case StateLowerProgram:
		return s.programHalf(report, false)
	case StateUpperProgram:
		return s.programHalf(report, true)
	default:
		s.log.WithField("state", s.state).Warn("OUT report in unexpected state")
		s.inLower, s.inUpper = 0, 0
		return s.sendStatus(0, protocol.CodeFSM, StateReset)
	}
}

// InSent handles the completion of a queued IN report; it advances the
// session to the state chosen when the report was queued.
func (s *Session) InSent() error {
	if s.state != StateStatus {
		s.inLower, s.inUpper = 0, 0
		return s.sendStatus(0, protocol.CodeFSM, StateReset)
	}
	s.state = s.next
	return nil
}

func (s *Session) dispatch(report []byte) error {
	cmd, err := protocol.ParseCommand(report)
	if err != nil {
		return err
	}
	s.inLower, s.inUpper = 0, 0

	switch cmd.Command {
	case protocol.CmdReset:
		return s.sendStatus(protocol.CmdReset, protocol.StatusOK, StateReset)
	case protocol.CmdProgram:
		return s.enterProgram(cmd)
	case protocol.CmdRead:
		// Read-back is reserved and unsupported.
		return s.sendStatus(protocol.CmdRead, protocol.CodeCommand, StateReset)
	case protocol.CmdExit:
		return s.exit(cmd)
	case protocol.CmdAbort:
		return s.abort()
	default:
		s.log.WithField("command", cmd.Command).Warn("unrecognized command")
		return s.sendStatus(cmd.Command, protocol.CodeCommand, StateReset)
	}
}

func (s *Session) enterProgram(cmd *protocol.Command) error {
	s.addr = cmd.Address
	s.expectLower = cmd.CRCLower
	s.expectUpper = cmd.CRCUpper

	// Invalidate the persisted entry point before touching flash: a power
	// loss mid-program must never leave a bootable pointer at a
	// half-programmed image.
	if err := s.clearEntryPoint(); err != nil {
		s.log.WithError(err).Error("failed to clear entry point")
		return s.sendStatus(protocol.CmdProgram, statusCode(err), StateReset)
	}

	if err := protocol.CheckProgramAddr(cmd.Address); err != nil {
		s.log.WithField("addr", cmd.Address).Warn("bad program address")
		return s.sendStatus(protocol.CmdProgram, protocol.CodeBadAddr, StateReset)
	}

	// Erase only when entering a fresh erase page. Pages are filled in
	// 128-byte transactions; erasing on every transaction would destroy
	// the chunks already programmed into the same erase page.
	if cmd.Address%s.flash.PageSize() == 0 {
		if err := s.flash.ErasePage(cmd.Address); err != nil {
			s.log.WithError(err).Error("page erase failed")
			return s.sendStatus(protocol.CmdProgram, statusCode(err), StateReset)
		}
	}

	return s.sendStatus(protocol.CmdProgram, protocol.StatusOK, StateLowerProgram)
}

func (s *Session) programHalf(report []byte, upper bool) error {
	computed := protocol.ChunkCRC(report)
	expected := s.expectLower
	if upper {
		expected = s.expectUpper
		s.inUpper = computed
	} else {
		s.inLower = computed
	}

	// The CRC gates programming entirely: a mismatched half leaves flash
	// untouched and the host retries the whole page.
	if computed != expected {
		s.log.WithFields(logrus.Fields{
			"computed": computed,
			"expected": expected,
			"upper":    upper,
		}).Warn("data half CRC mismatch")
		return s.sendStatus(protocol.CmdProgram, protocol.CodeBadCRC, StateReset)
	}

	base := s.addr
	if upper {
		base += protocol.HalfSize
	}
	for i := 0; i < protocol.HalfSize; i += 2 {
		hw := binary.LittleEndian.Uint16(report[i:])
		if err := s.flash.WriteHalfword(base+uint32(i), hw); err != nil {
			s.log.WithError(err).Error("program failed")
			return s.sendStatus(protocol.CmdProgram, statusCode(err), StateReset)
		}
	}
	for i := 0; i < protocol.HalfSize; i += 2 {
		if got := s.flash.ReadHalfword(base + uint32(i)); got != binary.LittleEndian.Uint16(report[i:]) {
			s.log.WithField("addr", base+uint32(i)).Error("verify mismatch")
			return s.sendStatus(protocol.CmdProgram, protocol.CodeVerify, StateReset)
		}
	}

	next := StateUpperProgram
	if upper {
		next = StateReset
	}
	return s.sendStatus(protocol.CmdProgram, protocol.StatusOK, next)
}

func (s *Session) exit(cmd *protocol.Command) error {
	if cmd.Address == 0 ||
		cmd.Address < protocol.FlashLowerBound || cmd.Address > protocol.FlashUpperBound {
		return s.sendStatus(protocol.CmdExit, protocol.CodeBadAddr, StateReset)
	}

	if err := s.store.WriteUint32(KeyUserVTOR, cmd.Address); err != nil {
		s.log.WithError(err).Error("failed to persist entry point")
		return s.sendStatus(protocol.CmdExit, statusCode(err), StateReset)
	}

	if err := s.resetIntoUserProgram(); err != nil {
		return s.sendStatus(protocol.CmdExit, statusCode(err), StateReset)
	}

	// The reset consumed the session; a successful exit sends no report.
	s.state = StateReset
	return nil
}

func (s *Session) abort() error {
	// The entry point stays untouched; the boot selector decides what the
	// reset lands in. The read only confirms storage is answering.
	if _, err := s.store.ReadUint32(KeyUserVTOR); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.WithError(err).Error("failed to read entry point")
		return s.sendStatus(protocol.CmdAbort, statusCode(err), StateReset)
	}

	if err := s.resetIntoUserProgram(); err != nil {
		return s.sendStatus(protocol.CmdAbort, statusCode(err), StateReset)
	}

	s.state = StateReset
	return nil
}

// resetIntoUserProgram persists the single-shot skip magic and performs a
// system reset so the boot selector starts the user program. If the magic
// cannot be persisted the entry point is cleared, best effort, so the
// device cannot come back up pointing at a questionable image.
func (s *Session) resetIntoUserProgram() error {
	if err := s.store.WriteUint32(KeyBootMagic, protocol.SkipMagic); err != nil {
		s.log.WithError(err).Error("failed to persist skip magic")
		if cerr := s.store.WriteUint32(KeyUserVTOR, 0); cerr != nil {
			s.log.WithError(cerr).Warn("failed to clear entry point after magic failure")
		}
		return err
	}
	s.system.Reset()
	return nil
}

// clearEntryPoint zeroes the persisted entry point if one is set. A key
// that was never written counts as already clear.
func (s *Session) clearEntryPoint() error {
	v, err := s.store.ReadUint32(KeyUserVTOR)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if v == 0 {
		return nil
	}
	return s.store.WriteUint32(KeyUserVTOR, 0)
}

func (s *Session) sendStatus(command uint32, code int32, next State) error {
	s.next = next
	s.state = StateStatus
	report := protocol.BuildStatusReport(command, code, s.inLower, s.inUpper, nil)
	return s.transport.SendReport(report)
}

// statusCode extracts the signed wire code from a chained error. Errors
// with no code of their own report as a generic write failure.
func statusCode(err error) int32 {
	var coded interface{ StatusCode() int32 }
	if errors.As(err, &coded) {
		return coded.StatusCode()
	}
	return protocol.CodeWrite
}
