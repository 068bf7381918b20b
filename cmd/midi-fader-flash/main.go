// midi-fader-flash is the host-side programming and configuration tool
// for the midi-fader. It talks to the bootloader to flash firmware images
// and to the running application to read and write parameters.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/sstallion/go-hid"

	"github.com/kcuzner/midi-fader/config"
	"github.com/kcuzner/midi-fader/flasher"
	"github.com/kcuzner/midi-fader/image"
	"github.com/kcuzner/midi-fader/protocol"
)

func init() {
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
}

var (
	log = logrus.New()

	flagVerbose bool
	flagVID     uint16
	flagPID     uint16
	flagDelay   time.Duration
	flagRetries int
	flagBase    string
)

func main() {
	root := &cobra.Command{
		Use:   "midi-fader-flash",
		Short: "Flash and configure midi-fader devices",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagVerbose {
				log.SetLevel(logrus.DebugLevel)
			}
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().Uint16Var(&flagVID, "vid", config.VendorID, "USB vendor ID")
	root.PersistentFlags().Uint16Var(&flagPID, "pid", config.ProductID, "USB product ID")
	root.PersistentFlags().DurationVar(&flagDelay, "delay", 0, "pause after each report written")

	root.AddCommand(flashCmd(), exitCmd(), abortCmd(), resetCmd(),
		statusCmd(), getCmd(), setCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func flashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flash <image>",
		Short: "Program a firmware image and boot into it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := loadImage(args[0])
			if err != nil {
				return err
			}
			return withDevice(func(ctx context.Context, dev *hidDevice) error {
				prog := newProgrammer(dev)
				log.WithFields(logrus.Fields{
					"base":  fmt.Sprintf("0x%08X", img.Base),
					"bytes": len(img.Data),
				}).Info("flashing image")
				return prog.Flash(ctx, img)
			})
		},
	}
	cmd.Flags().StringVar(&flagBase, "base", "0x08002000", "load address for raw binary images")
	cmd.Flags().IntVar(&flagRetries, "retries", 3, "retry attempts per page")
	return cmd
}

func exitCmd() *cobra.Command {
	return &cobra.Command{
		Use: "exit <address>",
		Short: fmt.Sprintf("Persist an entry point (0x%08X..0x%08X) and boot into it",
			protocol.FlashLowerBound, protocol.FlashUpperBound),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			return withDevice(func(ctx context.Context, dev *hidDevice) error {
				return newProgrammer(dev).Exit(ctx, addr)
			})
		},
	}
}

func abortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abort",
		Short: "Leave the bootloader using the persisted entry point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(func(ctx context.Context, dev *hidDevice) error {
				return newProgrammer(dev).Abort(ctx)
			})
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Resync the bootloader session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(func(ctx context.Context, dev *hidDevice) error {
				return newProgrammer(dev).Reset(ctx)
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Identify the attached device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(func(ctx context.Context, dev *hidDevice) error {
				status, err := config.NewClient(dev).Status(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("channels: %d\nversion:  %s\n", status.Channels, status.Version)
				return nil
			})
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <param>",
		Short: "Read a configuration parameter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			param, err := parseParam(args[0])
			if err != nil {
				return err
			}
			return withDevice(func(ctx context.Context, dev *hidDevice) error {
				value, err := config.NewClient(dev).GetParameter(ctx, param)
				if err != nil {
					return err
				}
				fmt.Printf("0x%04X = %d (%d bytes)\n", param, value.Value, value.Size)
				return nil
			})
		},
	}
}

func setCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "set <param> <value>",
		Short: "Write a configuration parameter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			param, err := parseParam(args[0])
			if err != nil {
				return err
			}
			value, err := strconv.ParseInt(args[1], 0, 32)
			if err != nil {
				return fmt.Errorf("parse value %q: %w", args[1], err)
			}
			return withDevice(func(ctx context.Context, dev *hidDevice) error {
				return config.NewClient(dev).SetParameter(ctx, param, config.ParameterValue{
					Value: int32(value),
					Size:  size,
				})
			})
		},
	}
	cmd.Flags().IntVar(&size, "size", 4, "stored size in bytes (1, 2, or 4)")
	return cmd
}

func loadImage(path string) (*image.Image, error) {
	base, err := parseAddr(flagBase)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return image.Load(path, base, f)
}

func newProgrammer(dev *hidDevice) *flasher.Programmer {
	return flasher.New(dev,
		flasher.WithRetries(flagRetries),
		flasher.WithCommandDelay(flagDelay),
		flasher.WithLogger(&logAdapter{log}),
		flasher.WithProgressCallback(func(p flasher.Progress) {
			if p.Phase == flasher.PhaseProgramming {
				log.Debugf("%5.1f%% page %d/%d", p.Percentage, p.CurrentPage, p.TotalPages)
			}
		}),
	)
}

// withDevice opens the first matching HID device and runs fn with a
// signal-aware context.
func withDevice(fn func(ctx context.Context, dev *hidDevice) error) error {
	if err := hid.Init(); err != nil {
		return fmt.Errorf("initialize hidapi: %w", err)
	}
	defer hid.Exit()

	dev, err := hid.OpenFirst(flagVID, flagPID)
	if err != nil {
		return fmt.Errorf("open device %04x:%04x: %w", flagVID, flagPID, err)
	}
	defer dev.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return fn(ctx, &hidDevice{dev: dev})
}

// hidDevice adapts a hidapi device to the 64-byte report io.ReadWriter
// the flasher and config client expect. Writes prepend the report ID
// byte required by hidapi; reads come back without one.
type hidDevice struct {
	dev *hid.Device
}

func (h *hidDevice) Write(p []byte) (int, error) {
	buf := make([]byte, len(p)+1)
	copy(buf[1:], p)
	n, err := h.dev.Write(buf)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		n--
	}
	return n, nil
}

func (h *hidDevice) Read(p []byte) (int, error) {
	return h.dev.ReadWithTimeout(p, 2*time.Second)
}

func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("parse address %q: %w", s, err)
	}
	return uint32(v), nil
}

func parseParam(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("parse parameter %q: %w", s, err)
	}
	return uint16(v), nil
}

// logAdapter feeds the flasher's pluggable logger into logrus.
type logAdapter struct {
	log *logrus.Logger
}

func (a *logAdapter) Debug(msg string, kv ...interface{}) { a.log.WithFields(fields(kv)).Debug(msg) }
func (a *logAdapter) Info(msg string, kv ...interface{})  { a.log.WithFields(fields(kv)).Info(msg) }
func (a *logAdapter) Error(msg string, kv ...interface{}) { a.log.WithFields(fields(kv)).Error(msg) }

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		f[key] = kv[i+1]
	}
	return f
}
