// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package residual

import (
	"encoding/binary"
	"fmt"
)

// entrySize is the encoded size of a registry entry.
const entrySize = IDSize + 8

// Entry describes one chunk of a stream.
type Entry struct {
	ID   ID
	Size uint64
}

// Registry lists the chunks of a stream in order.
//
// A receiver holding the chunks can rebuild the stream from the registry alone.
type Registry struct {
	Entries []Entry
}

// TotalSize sums the chunk sizes.
func (r Registry) TotalSize() uint64 {
	var total uint64

	for _, e := range r.Entries {
		total += e.Size
	}

	return total
}

// Verify checks that data is the concatenation of the registered chunks.
func (r Registry) Verify(data []byte) error {
	if total := r.TotalSize(); total != uint64(len(data)) {
		return fmt.Errorf("%w: registry covers %d bytes, got %d", ErrRegistryMismatch, total, len(data))
	}

	var off uint64

	for i, e := range r.Entries {
		if !e.ID.Matches(data[off : off+e.Size]) {
			return fmt.Errorf("%w: chunk %d at offset %d", ErrRegistryMismatch, i, off)
		}

		off += e.Size
	}

	return nil
}

// Marshal encodes and compresses the registry.
func (r Registry) Marshal(comp Compressor) ([]byte, error) {
	raw := make([]byte, 0, len(r.Entries)*entrySize)

	for _, e := range r.Entries {
		raw = append(raw, e.ID[:]...)
		raw = binary.LittleEndian.AppendUint64(raw, e.Size)
	}

	return comp.Compress(raw, nil)
}

// UnmarshalRegistry decompresses and decodes a registry.
func UnmarshalRegistry(data []byte, comp Compressor) (Registry, error) {
	raw, err := comp.Decompress(data, nil)
	if err != nil {
		return Registry{}, fmt.Errorf("error decompressing registry: %w", err)
	}

	if len(raw)%entrySize != 0 {
		return Registry{}, fmt.Errorf("%w: registry of %d bytes", ErrShortFrame, len(raw))
	}

	r := Registry{Entries: make([]Entry, 0, len(raw)/entrySize)}

	for off := 0; off < len(raw); off += entrySize {
		r.Entries = append(r.Entries, Entry{
			ID:   ID(raw[off : off+IDSize]),
			Size: binary.LittleEndian.Uint64(raw[off+IDSize : off+entrySize]),
		})
	}

	return r, nil
}
