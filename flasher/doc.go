// Package flasher drives the midi-fader bootloader from the host side.
//
// The Programmer works over any io.ReadWriter that moves whole 64-byte
// HID reports; the cmd/midi-fader-flash tool supplies one backed by
// go-hid. A full flashing run is:
//
//	prog := flasher.New(device)
//	err := prog.Flash(ctx, img)
//
// which validates the image, programs every 128-byte page (retrying
// failed pages after a resync), and exits the bootloader into the new
// program.
package flasher
