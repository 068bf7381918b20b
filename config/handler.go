package config

import (
	"encoding/binary"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/kcuzner/midi-fader/storage"
)

// Handler is the device side of the configuration protocol. It answers
// every request with exactly one response report, echoing the command.
type Handler struct {
	store    *storage.Store
	channels uint32
	version  string
	log      logrus.FieldLogger
}

// HandlerOption is a functional option for configuring a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the logger.
func WithHandlerLogger(log logrus.FieldLogger) HandlerOption {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// NewHandler creates a configuration handler answering for a device with
// the given channel count and firmware version string.
func NewHandler(store *storage.Store, channels uint32, version string, opts ...HandlerOption) *Handler {
	if store == nil {
		panic("config: store cannot be nil")
	}
	h := &Handler{
		store:    store,
		channels: channels,
		version:  version,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleReport processes one 64-byte request and returns the 64-byte
// response. Malformed (short) requests are answered as unknown commands.
func (h *Handler) HandleReport(request []byte) []byte {
	response := make([]byte, ReportSize)
	if len(request) < 4 {
		setParamWord(response, 0, uint32(ReplyUnknownCommand))
		return response
	}

	command := binary.LittleEndian.Uint32(request[0:4])
	binary.LittleEndian.PutUint32(response[0:4], command)

	switch command {
	case CmdStatus:
		h.status(response)
	case CmdGetParam:
		h.getParam(request, response)
	case CmdSetParam:
		h.setParam(request, response)
	default:
		h.log.WithField("command", command).Warn("unknown configuration command")
		setParamWord(response, 0, uint32(ReplyUnknownCommand))
	}
	return response
}

func (h *Handler) status(response []byte) {
	setParamWord(response, 0, StatusMagic)
	setParamWord(response, 1, h.channels)
	// Version string occupies the tail of the report, NUL padded.
	copy(response[12:], h.version)
}

func (h *Handler) getParam(request, response []byte) {
	param := paramWord(request, 1)
	setParamWord(response, 1, param)

	var buf [4]byte
	n, err := h.store.Read(uint16(param), buf[:])
	if err != nil && !storage.IsWarning(err) {
		h.log.WithError(err).WithField("param", param).Debug("get parameter failed")
		setParamWord(response, 0, uint32(replyCode(err)))
		return
	}

	var value uint32
	for i := 0; i < n; i++ {
		value |= uint32(buf[i]) << (8 * i)
	}
	setParamWord(response, 2, value)
	setParamWord(response, 3, uint32(n))
}

func (h *Handler) setParam(request, response []byte) {
	param := paramWord(request, 1)
	value := paramWord(request, 2)
	size := paramWord(request, 3)
	setParamWord(response, 1, param)

	if size == 0 || size > 4 {
		size = 4
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)

	if err := h.store.Write(uint16(param), buf[:size]); err != nil {
		h.log.WithError(err).WithField("param", param).Warn("set parameter failed")
		setParamWord(response, 0, uint32(replyCode(err)))
	}
}

// replyCode extracts the chained status code of an error for the wire;
// errors without one report the generic unknown-command code.
func replyCode(err error) int32 {
	var coded interface{ StatusCode() int32 }
	if errors.As(err, &coded) {
		return coded.StatusCode()
	}
	return ReplyUnknownCommand
}

// paramWord reads parameter index i (word i+1) of a report.
func paramWord(report []byte, i int) uint32 {
	off := 4 * (i + 1)
	if off+4 > len(report) {
		return 0
	}
	return binary.LittleEndian.Uint32(report[off : off+4])
}

// setParamWord writes parameter index i (word i+1) of a report.
func setParamWord(report []byte, i int, value uint32) {
	off := 4 * (i + 1)
	binary.LittleEndian.PutUint32(report[off:off+4], value)
}
