package config

// USB identity of the midi-fader application device.
const (
	VendorID  uint16 = 0x16C0
	ProductID uint16 = 0x05DC
)

// ReportSize is the length of every configuration report.
const ReportSize = 64

// Command words.
const (
	// CmdStatus asks the device to identify itself: magic word, channel
	// count, and firmware version string.
	CmdStatus uint32 = 0x00

	// CmdGetParam reads one persisted parameter.
	CmdGetParam uint32 = 0x40

	// CmdSetParam writes one persisted parameter.
	CmdSetParam uint32 = 0x80
)

// StatusMagic is the identification value returned in the first response
// parameter of a STATUS command.
const StatusMagic uint32 = 0xDEADBEEF

// ReplyUnknownCommand is the response code for a command word the device
// does not recognize.
const ReplyUnknownCommand int32 = 2

// Parameter identifiers. Faders and buttons are configured per channel:
// the stored key ORs the channel index into bits 8..11, so channel 0 uses
// these values directly.
const (
	ParamFaderMidiChannel uint16 = 0x2001
	ParamFaderMode        uint16 = 0x2002
	ParamFaderControl     uint16 = 0x2003
	ParamFaderControlMin  uint16 = 0x2004
	ParamFaderControlMax  uint16 = 0x2005
	ParamFaderPitchMin    uint16 = 0x2006
	ParamFaderPitchMax    uint16 = 0x2007

	ParamButtonMidiChannel uint16 = 0x4001
	ParamButtonOn          uint16 = 0x4002
	ParamButtonOff         uint16 = 0x4003
	ParamButtonMode        uint16 = 0x4004
	ParamButtonControl     uint16 = 0x4005
	ParamButtonNote        uint16 = 0x4006
	ParamButtonNoteVel     uint16 = 0x4007
	ParamButtonStyle       uint16 = 0x4008
)

// ParamKey computes the stored key for a parameter on a given channel.
func ParamKey(param uint16, channel uint32) uint16 {
	return uint16(channel&0xF)<<8 | param
}
