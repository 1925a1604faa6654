// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ratchet

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// HeaderSize is the size of the container header.
//
// Container layout (little-endian):
//
//	[4 bytes magic][8 bytes original size][4 bytes CRC32 of the payload][payload]
const HeaderSize = 16

// Header is the fixed container header.
type Header struct {
	Magic [4]byte

	// Size is the declared payload (and original data) length.
	Size uint64

	// Checksum is the CRC32 (IEEE) of the transformed payload.
	Checksum uint32
}

// ParseHeader decodes the header at the start of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrTooShort, len(data))
	}

	var h Header

	copy(h.Magic[:], data[:4])
	h.Size = binary.LittleEndian.Uint64(data[4:12])
	h.Checksum = binary.LittleEndian.Uint32(data[12:16])

	return h, nil
}

// AppendBinary appends the encoded header to b.
func (h Header) AppendBinary(b []byte) ([]byte, error) {
	b = append(b, h.Magic[:]...)
	b = binary.LittleEndian.AppendUint64(b, h.Size)
	b = binary.LittleEndian.AppendUint32(b, h.Checksum)

	return b, nil
}

// header parses the header and checks the magic.
func (c *Codec) header(container []byte) (Header, error) {
	h, err := ParseHeader(container)
	if err != nil {
		return h, err
	}

	if h.Magic != c.opt.Magic {
		return h, fmt.Errorf("%w: %q", ErrBadMagic, h.Magic[:])
	}

	return h, nil
}

// open runs all structural and integrity checks and returns the payload.
func (c *Codec) open(container []byte) ([]byte, error) {
	h, err := c.header(container)
	if err != nil {
		return nil, err
	}

	payload := container[HeaderSize:]

	if h.Size != uint64(len(payload)) {
		return nil, fmt.Errorf("%w: header says %d, payload has %d", ErrSizeMismatch, h.Size, len(payload))
	}

	if sum := crc32.ChecksumIEEE(payload); sum != h.Checksum {
		return nil, fmt.Errorf("%w: expected %08x, got %08x", ErrChecksum, h.Checksum, sum)
	}

	return payload, nil
}

// seal fills in the header in front of a transformed payload.
func (c *Codec) seal(out []byte) {
	payload := out[HeaderSize:]

	h := Header{
		Magic:    c.opt.Magic,
		Size:     uint64(len(payload)),
		Checksum: crc32.ChecksumIEEE(payload),
	}

	h.AppendBinary(out[:0]) //nolint:errcheck
}

func crc32Matches(payload []byte, sum uint32) bool {
	return crc32.ChecksumIEEE(payload) == sum
}
