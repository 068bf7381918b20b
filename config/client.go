package config

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// DeviceStatus is the device identification returned by CmdStatus.
type DeviceStatus struct {
	Channels uint32
	Version  string
}

// ParameterValue is a signed parameter value with its stored size (1, 2,
// or 4 bytes) attached.
type ParameterValue struct {
	Value int32
	Size  int
}

// DeviceError is a non-zero reply code returned by the device.
type DeviceError struct {
	Command uint32
	Code    int32
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device replied %d to configuration command 0x%02X", e.Code, e.Command)
}

// StatusCode returns the signed reply code.
func (e *DeviceError) StatusCode() int32 {
	return e.Code
}

// Is reports whether target is a DeviceError with the same code.
func (e *DeviceError) Is(target error) bool {
	t, ok := target.(*DeviceError)
	return ok && t.Code == e.Code
}

// Client is the host side of the configuration protocol, over any
// transport that moves whole 64-byte reports.
type Client struct {
	device io.ReadWriter
}

// NewClient creates a configuration client.
func NewClient(device io.ReadWriter) *Client {
	if device == nil {
		panic("device cannot be nil")
	}
	return &Client{device: device}
}

// Status queries the device identification and verifies the magic word.
func (c *Client) Status(ctx context.Context) (*DeviceStatus, error) {
	request := make([]byte, ReportSize)
	binary.LittleEndian.PutUint32(request[0:4], CmdStatus)

	response, err := c.exchange(ctx, request, CmdStatus)
	if err != nil {
		return nil, err
	}
	if magic := paramWord(response, 0); magic != StatusMagic {
		return nil, fmt.Errorf("unexpected status response magic 0x%08X", magic)
	}

	version := response[12:]
	if i := bytes.IndexByte(version, 0); i >= 0 {
		version = version[:i]
	}
	return &DeviceStatus{
		Channels: paramWord(response, 1),
		Version:  string(version),
	}, nil
}

// GetParameter reads one persisted parameter, sign extending the value
// from its stored size.
func (c *Client) GetParameter(ctx context.Context, param uint16) (ParameterValue, error) {
	request := make([]byte, ReportSize)
	binary.LittleEndian.PutUint32(request[0:4], CmdGetParam)
	setParamWord(request, 1, uint32(param))

	response, err := c.exchange(ctx, request, CmdGetParam)
	if err != nil {
		return ParameterValue{}, err
	}
	if code := int32(paramWord(response, 0)); code != 0 {
		return ParameterValue{}, &DeviceError{Command: CmdGetParam, Code: code}
	}

	raw := paramWord(response, 2)
	size := int(paramWord(response, 3))
	var value int32
	switch size {
	case 1:
		value = int32(int8(raw))
	case 2:
		value = int32(int16(raw))
	case 4:
		value = int32(raw)
	default:
		return ParameterValue{}, fmt.Errorf("unsupported parameter size %d", size)
	}
	return ParameterValue{Value: value, Size: size}, nil
}

// SetParameter writes one persisted parameter.
func (c *Client) SetParameter(ctx context.Context, param uint16, value ParameterValue) error {
	switch value.Size {
	case 1, 2, 4:
	default:
		return fmt.Errorf("parameter size must be 1, 2, or 4, got %d", value.Size)
	}

	request := make([]byte, ReportSize)
	binary.LittleEndian.PutUint32(request[0:4], CmdSetParam)
	setParamWord(request, 1, uint32(param))
	setParamWord(request, 2, uint32(value.Value))
	setParamWord(request, 3, uint32(value.Size))

	response, err := c.exchange(ctx, request, CmdSetParam)
	if err != nil {
		return err
	}
	if code := int32(paramWord(response, 0)); code != 0 {
		return &DeviceError{Command: CmdSetParam, Code: code}
	}
	return nil
}

func (c *Client) exchange(ctx context.Context, request []byte, command uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("cancelled: %w", err)
	}
	if _, err := c.device.Write(request); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	response := make([]byte, ReportSize)
	n, err := c.device.Read(response)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if n != ReportSize {
		return nil, fmt.Errorf("response is %d bytes, want %d", n, ReportSize)
	}
	if echoed := binary.LittleEndian.Uint32(response[0:4]); echoed != command {
		return nil, fmt.Errorf("response echoes command 0x%02X, sent 0x%02X", echoed, command)
	}
	return response, nil
}
