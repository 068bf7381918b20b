package flasher

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kcuzner/midi-fader/image"
	"github.com/kcuzner/midi-fader/protocol"
)

// Programmer orchestrates flashing operations against the midi-fader
// bootloader over a 64-byte report transport.
type Programmer struct {
	device io.ReadWriter
	config Config
}

// New creates a new Programmer with the given device and options.
//
// Example:
//
//	prog := flasher.New(device,
//	    flasher.WithRetries(5),
//	    flasher.WithProgressCallback(progressFunc),
//	)
func New(device io.ReadWriter, opts ...Option) *Programmer {
	if device == nil {
		panic("device cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Programmer{
		device: device,
		config: cfg,
	}
}

// Flash performs the complete flashing sequence:
//  1. Validate the image against the programmable region
//  2. RESET to resync the bootloader session
//  3. Program every 128-byte page, retrying failed pages
//  4. EXIT into the freshly programmed image
//
// The operation can be cancelled via context between reports.
func (p *Programmer) Flash(ctx context.Context, img *image.Image) error {
	if err := p.Program(ctx, img); err != nil {
		return err
	}
	return p.Exit(ctx, img.EntryPoint())
}

// Program validates and programs the image but leaves the device in the
// bootloader. Use Exit or Abort to leave it.
func (p *Programmer) Program(ctx context.Context, img *image.Image) error {
	if img == nil {
		return fmt.Errorf("image cannot be nil")
	}
	if err := img.Validate(); err != nil {
		return fmt.Errorf("validate image: %w", err)
	}

	pages := img.Pages()
	startTime := time.Now()

	p.reportProgress(Progress{
		Phase:      PhaseReset,
		TotalPages: len(pages),
	})
	if err := p.Reset(ctx); err != nil {
		return fmt.Errorf("reset bootloader: %w", err)
	}

	bytesWritten := 0
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}

		if err := p.programPage(ctx, page); err != nil {
			return err
		}
		bytesWritten += len(page.Data)

		p.reportProgress(Progress{
			Phase:        PhaseProgramming,
			CurrentPage:  i + 1,
			TotalPages:   len(pages),
			Percentage:   (float64(i+1) / float64(len(pages))) * 95,
			BytesWritten: bytesWritten,
			ElapsedTime:  time.Since(startTime),
		})
	}

	p.logInfo("programming complete",
		"pages", len(pages),
		"bytes", bytesWritten,
		"elapsed", time.Since(startTime).String(),
	)
	return nil
}

// programPage runs one PROGRAM transaction, retrying after a RESET resync
// when the device rejects the page.
func (p *Programmer) programPage(ctx context.Context, page image.Page) error {
	var lastErr error
	attempts := p.config.Retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}
		if attempt > 0 {
			p.logDebug("retrying page",
				"address", fmt.Sprintf("0x%08X", page.Address),
				"attempt", attempt+1,
			)
			if err := p.Reset(ctx); err != nil {
				lastErr = err
				continue
			}
		}

		lastErr = p.tryPage(ctx, page)
		if lastErr == nil {
			return nil
		}
		p.logError("page attempt failed",
			"address", fmt.Sprintf("0x%08X", page.Address),
			"error", lastErr.Error(),
		)
	}
	return &PageError{Address: page.Address, Attempts: attempts, Err: lastErr}
}

func (p *Programmer) tryPage(ctx context.Context, page image.Page) error {
	cmd, err := protocol.BuildProgramCmd(page.Address, page.Data)
	if err != nil {
		return err
	}
	if _, err := p.exchange(ctx, cmd); err != nil {
		return fmt.Errorf("program command: %w", err)
	}

	lower, upper := protocol.SplitPage(page.Data)
	if _, err := p.exchange(ctx, lower); err != nil {
		return fmt.Errorf("lower half: %w", err)
	}
	if _, err := p.exchange(ctx, upper); err != nil {
		return fmt.Errorf("upper half: %w", err)
	}
	return nil
}

// Reset returns the bootloader session to its idle state. It is the
// resync primitive: safe to send in any state.
func (p *Programmer) Reset(ctx context.Context) error {
	_, err := p.exchange(ctx, protocol.BuildResetCmd())
	if err != nil {
		// A session stuck mid-transaction answers the first RESET with an
		// FSM error and is idle afterwards; one follow-up settles it.
		if _, retryErr := p.exchange(ctx, protocol.BuildResetCmd()); retryErr == nil {
			return nil
		}
		return err
	}
	return nil
}

// Exit persists addr as the user program entry point and resets the
// device into it. A successful exit produces no status report; the device
// simply disappears, so a failed read counts as success.
func (p *Programmer) Exit(ctx context.Context, addr uint32) error {
	p.reportProgress(Progress{Phase: PhaseExiting, Percentage: 97})

	cmd, err := protocol.BuildExitCmd(addr)
	if err != nil {
		return err
	}
	if err := p.sendExpectingReset(ctx, cmd, protocol.CmdExit); err != nil {
		return err
	}

	p.reportProgress(Progress{Phase: PhaseComplete, Percentage: 100})
	p.logInfo("device exited to user program", "entry", fmt.Sprintf("0x%08X", addr))
	return nil
}

// Abort resets the device into whatever entry point is already persisted,
// without programming anything.
func (p *Programmer) Abort(ctx context.Context) error {
	return p.sendExpectingReset(ctx, protocol.BuildAbortCmd(), protocol.CmdAbort)
}

// sendExpectingReset sends a command whose success is signaled by the
// device resetting instead of answering. Any report that does come back
// is a failure status.
func (p *Programmer) sendExpectingReset(ctx context.Context, cmd []byte, command uint32) error {
	if err := p.writeReport(ctx, cmd); err != nil {
		return err
	}

	report := make([]byte, protocol.ReportSize)
	n, err := p.device.Read(report)
	if err != nil || n == 0 {
		// The device is gone; that's the success path.
		return nil
	}
	status, err := protocol.ParseStatusReport(report[:n])
	if err != nil {
		return fmt.Errorf("parse status report: %w", err)
	}
	if !status.OK() {
		return &protocol.StatusError{Command: status.Command, Code: status.Code}
	}
	return fmt.Errorf("%s: device acknowledged but did not reset", protocol.CommandName(command))
}

// exchange writes one report and reads the status report answering it.
func (p *Programmer) exchange(ctx context.Context, report []byte) (*protocol.Status, error) {
	if err := p.writeReport(ctx, report); err != nil {
		return nil, err
	}

	response := make([]byte, protocol.ReportSize)
	n, err := p.device.Read(response)
	if err != nil {
		return nil, fmt.Errorf("read status report: %w", err)
	}
	status, err := protocol.ParseStatusReport(response[:n])
	if err != nil {
		return nil, err
	}
	if !status.OK() {
		return status, &protocol.StatusError{Command: status.Command, Code: status.Code}
	}
	return status, nil
}

func (p *Programmer) writeReport(ctx context.Context, report []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled: %w", err)
	}
	if _, err := p.device.Write(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if p.config.CommandDelay > 0 {
		time.Sleep(p.config.CommandDelay)
	}
	return nil
}

// reportProgress calls the progress callback if configured.
func (p *Programmer) reportProgress(progress Progress) {
	if p.config.ProgressCallback != nil {
		p.config.ProgressCallback(progress)
	}
}

func (p *Programmer) logDebug(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (p *Programmer) logInfo(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Info(msg, keysAndValues...)
	}
}

func (p *Programmer) logError(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Error(msg, keysAndValues...)
	}
}
