package protocol

import "hash/crc32"

// ChunkCRC computes the zlib-variant CRC32 of one raw data half.
func ChunkCRC(chunk []byte) uint32 {
	return crc32.ChecksumIEEE(chunk)
}

// PageCRCs computes the CRC32 of each half of a 128-byte page. Pages
// shorter than ProgramPageSize are implicitly padded with 0xFF, the value
// of erased flash.
func PageCRCs(page []byte) (lower, upper uint32) {
	padded := PadPage(page)
	return ChunkCRC(padded[:HalfSize]), ChunkCRC(padded[HalfSize:])
}

// PadPage extends page to exactly ProgramPageSize bytes with 0xFF. A page
// already that long is returned unchanged.
func PadPage(page []byte) []byte {
	if len(page) == ProgramPageSize {
		return page
	}
	padded := make([]byte, ProgramPageSize)
	copy(padded, page)
	for i := len(page); i < ProgramPageSize; i++ {
		padded[i] = 0xFF
	}
	return padded
}
