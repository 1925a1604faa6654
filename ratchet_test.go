// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ratchet_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/siderolabs/gen/xtesting/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/siderolabs/go-ratchet"
	"github.com/siderolabs/go-ratchet/field"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func randomBytes(seed uint64, n int) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	out := make([]byte, n)
	for i := range out {
		out[i] = byte(r.Uint32())
	}

	return out
}

func counterBytes(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i)
	}

	return out
}

func textBytes(n int) []byte {
	const text = "The quick brown fox jumps over the lazy dog. Pack my box with five dozen liquor jugs.\n"

	return bytes.Repeat([]byte(text), n/len(text)+1)[:n]
}

type codecCase struct {
	name    string
	options []ratchet.OptionFunc
}

func codecCases(t testing.TB) []codecCase {
	return []codecCase{
		{
			name: "modular",
		},
		{
			name: "modular small chunks",
			options: []ratchet.OptionFunc{
				ratchet.WithChunkSize(2 * ratchet.DefaultZoneSize),
				ratchet.WithConcurrency(4),
			},
		},
		{
			name: "gf256",
			options: []ratchet.OptionFunc{
				ratchet.WithArithmetic(must.Value(field.NewGF256(field.DefaultElement))(t)),
			},
		},
		{
			name: "gf256 small zones",
			options: []ratchet.OptionFunc{
				ratchet.WithArithmetic(must.Value(field.NewGF256(field.DefaultElement))(t)),
				ratchet.WithZoneSize(7),
				ratchet.WithChunkSize(7 * 10),
			},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	inputs := []struct {
		name string
		data []byte
	}{
		{name: "empty"},
		{name: "one byte", data: []byte{0x42}},
		{name: "hello", data: []byte("GF compression test")},
		{name: "zeros 1023", data: make([]byte, 1023)},
		{name: "zeros 1024", data: make([]byte, 1024)},
		{name: "zeros 5000", data: make([]byte, 5000)},
		{name: "counter 1024", data: counterBytes(1024)},
		{name: "counter 10001", data: counterBytes(10001)},
		{name: "text", data: textBytes(20_000)},
		{name: "random 1000", data: randomBytes(1, 1000)},
		{name: "random 1024", data: randomBytes(2, 1024)},
		{name: "random 1025", data: randomBytes(3, 1025)},
		{name: "random 4103", data: randomBytes(4, 4103)},
		{name: "random 300000", data: randomBytes(5, 300_000)},
		{name: "mixed", data: slicesConcat(textBytes(3000), make([]byte, 2048), counterBytes(4096), randomBytes(6, 3333))},
	}

	for _, codec := range codecCases(t) {
		t.Run(codec.name, func(t *testing.T) {
			t.Parallel()

			c := must.Value(ratchet.NewCodec(append(codec.options, ratchet.WithLogger(zaptest.NewLogger(t)))...))(t)

			for _, input := range inputs {
				t.Run(input.name, func(t *testing.T) {
					t.Parallel()

					container, err := c.Compress(input.data)
					require.NoError(t, err)

					require.Len(t, container, ratchet.HeaderSize+len(input.data))
					require.NoError(t, c.Verify(container))

					decoded, err := c.Decompress(container)
					require.NoError(t, err)

					if len(input.data) == 0 {
						assert.Empty(t, decoded)
					} else {
						assert.Equal(t, input.data, decoded)
					}
				})
			}
		})
	}
}

func slicesConcat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func TestRandomRoundTrip(t *testing.T) {
	t.Parallel()

	c := must.Value(ratchet.NewCodec())(t)
	r := rand.New(rand.NewPCG(42, 42))

	for i := range 64 {
		data := randomBytes(uint64(i)+100, r.IntN(6000))

		// mix in regular runs
		if i%2 == 0 && len(data) > 0 {
			start := r.IntN(len(data))
			end := min(len(data), start+r.IntN(3000))

			for j := start; j < end; j++ {
				data[j] = byte(i)
			}
		}

		container, err := c.Compress(data)
		require.NoError(t, err)

		decoded, err := c.Decompress(container)
		require.NoError(t, err)

		require.True(t, bytes.Equal(data, decoded), "iteration %d, size %d", i, len(data))
	}
}

func TestEmpty(t *testing.T) {
	t.Parallel()

	container, err := ratchet.Compress(nil)
	require.NoError(t, err)

	require.Len(t, container, ratchet.HeaderSize)
	assert.Equal(t, ratchet.DefaultMagic[:], container[:4])
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(container[4:12]))
	assert.Equal(t, crc32.ChecksumIEEE(nil), binary.LittleEndian.Uint32(container[12:16]))

	require.NoError(t, ratchet.Verify(container))

	decoded, err := ratchet.Decompress(container)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestContainerLayout(t *testing.T) {
	t.Parallel()

	data := textBytes(5000)

	container := must.Value(ratchet.Compress(data))(t)

	h, err := ratchet.ParseHeader(container)
	require.NoError(t, err)

	assert.Equal(t, ratchet.DefaultMagic, h.Magic)
	assert.Equal(t, uint64(len(data)), h.Size)
	assert.Equal(t, crc32.ChecksumIEEE(container[ratchet.HeaderSize:]), h.Checksum)

	encoded, err := h.AppendBinary(nil)
	require.NoError(t, err)
	assert.Equal(t, container[:ratchet.HeaderSize], encoded)

	// deterministic
	assert.Equal(t, container, must.Value(ratchet.Compress(data))(t))
}

func TestZeroEntropyPassThrough(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{
		make([]byte, 1024),
		bytes.Repeat([]byte{'A'}, 4096),
		bytes.Repeat([]byte{0xff}, 1500),
	} {
		container := must.Value(ratchet.Compress(data))(t)

		assert.Equal(t, data, container[ratchet.HeaderSize:])
	}
}

func TestShortZonesPassThrough(t *testing.T) {
	t.Parallel()

	// a pass would lower the entropy of this zone, but it is below the adaptive minimum
	data := counterBytes(256)

	container := must.Value(ratchet.Compress(data))(t)
	assert.Equal(t, data, container[ratchet.HeaderSize:])

	// the same holds for the tail zone of a longer input
	data = counterBytes(ratchet.DefaultZoneSize + 512)

	container = must.Value(ratchet.Compress(data))(t)
	assert.NotEqual(t, data[:ratchet.DefaultZoneSize], container[ratchet.HeaderSize:ratchet.HeaderSize+ratchet.DefaultZoneSize])
	assert.Equal(t, data[ratchet.DefaultZoneSize:], container[ratchet.HeaderSize+ratchet.DefaultZoneSize:])
}

func TestCompressTransformedPayload(t *testing.T) {
	t.Parallel()

	container := must.Value(ratchet.Compress(counterBytes(1024)))(t)
	payload := container[ratchet.HeaderSize:]

	// the payload decodes to the counter, so storing it untouched would not round-trip
	_, err := ratchet.Compress(payload)
	require.ErrorIs(t, err, ratchet.ErrAmbiguousZone)

	// the original input is unaffected
	assert.Equal(t, counterBytes(1024), must.Value(ratchet.Decompress(container))(t))
}

func TestUniformZoneTransformed(t *testing.T) {
	t.Parallel()

	// every byte value exactly four times: entropy 8.0, a pass lowers it
	data := counterBytes(1024)

	container := must.Value(ratchet.Compress(data))(t)
	assert.NotEqual(t, data, container[ratchet.HeaderSize:])

	assert.Equal(t, data, must.Value(ratchet.Decompress(container))(t))
}

func TestGF256AlwaysTransforms(t *testing.T) {
	t.Parallel()

	c := must.Value(ratchet.NewCodec(ratchet.WithArithmetic(must.Value(field.NewGF256(field.DefaultElement))(t))))(t)

	data := make([]byte, 1024)

	container := must.Value(c.Compress(data))(t)
	assert.NotEqual(t, data, container[ratchet.HeaderSize:])

	assert.Equal(t, data, must.Value(c.Decompress(container))(t))

	// the default codec cannot decode it back
	decoded, err := ratchet.Decompress(container)
	require.NoError(t, err)
	assert.NotEqual(t, data, decoded)
}

func TestVerify(t *testing.T) {
	t.Parallel()

	data := textBytes(3000)
	container := must.Value(ratchet.Compress(data))(t)

	require.NoError(t, ratchet.Verify(container))

	for _, test := range []struct {
		name   string
		mutate func([]byte) []byte

		class    error
		specific error
	}{
		{
			name:     "too short",
			mutate:   func(b []byte) []byte { return b[:ratchet.HeaderSize-1] },
			class:    ratchet.ErrFormat,
			specific: ratchet.ErrTooShort,
		},
		{
			name:     "empty",
			mutate:   func([]byte) []byte { return nil },
			class:    ratchet.ErrFormat,
			specific: ratchet.ErrTooShort,
		},
		{
			name: "magic",
			mutate: func(b []byte) []byte {
				b[0] ^= 0xff

				return b
			},
			class:    ratchet.ErrFormat,
			specific: ratchet.ErrBadMagic,
		},
		{
			name:     "truncated payload",
			mutate:   func(b []byte) []byte { return b[:len(b)-1] },
			class:    ratchet.ErrFormat,
			specific: ratchet.ErrSizeMismatch,
		},
		{
			name:     "trailing garbage",
			mutate:   func(b []byte) []byte { return append(b, 0) },
			class:    ratchet.ErrFormat,
			specific: ratchet.ErrSizeMismatch,
		},
		{
			name: "checksum",
			mutate: func(b []byte) []byte {
				b[12]++

				return b
			},
			class:    ratchet.ErrIntegrity,
			specific: ratchet.ErrChecksum,
		},
		{
			name: "payload byte",
			mutate: func(b []byte) []byte {
				b[ratchet.HeaderSize+1234] ^= 0x01

				return b
			},
			class:    ratchet.ErrIntegrity,
			specific: ratchet.ErrChecksum,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			damaged := test.mutate(bytes.Clone(container))

			err := ratchet.Verify(damaged)
			require.Error(t, err)
			assert.ErrorIs(t, err, test.class)
			assert.ErrorIs(t, err, test.specific)

			_, err = ratchet.Decompress(damaged)
			assert.ErrorIs(t, err, test.specific)
		})
	}
}

func TestVerifyEveryPayloadByte(t *testing.T) {
	t.Parallel()

	container := must.Value(ratchet.Compress(randomBytes(7, 2000)))(t)

	for i := ratchet.HeaderSize; i < len(container); i++ {
		damaged := bytes.Clone(container)
		damaged[i] ^= byte(i%255 + 1)

		require.ErrorIs(t, ratchet.Verify(damaged), ratchet.ErrChecksum, "byte %d", i)
	}
}

func TestCustomMagic(t *testing.T) {
	t.Parallel()

	c := must.Value(ratchet.NewCodec(ratchet.WithMagic([4]byte{'C', 'R', 'G', 'N'})))(t)

	container := must.Value(c.Compress([]byte("hello")))(t)
	assert.Equal(t, []byte("CRGN"), container[:4])

	require.NoError(t, c.Verify(container))
	require.ErrorIs(t, ratchet.Verify(container), ratchet.ErrBadMagic)

	_, _, err := ratchet.Repair(container)
	require.ErrorIs(t, err, ratchet.ErrBadMagic)
}

func TestRepair(t *testing.T) {
	t.Parallel()

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()

		data := textBytes(1000)
		container := must.Value(ratchet.Compress(data))(t)

		repaired, valid, err := ratchet.Repair(container[:ratchet.HeaderSize+500])
		require.NoError(t, err)

		assert.False(t, valid)
		require.Len(t, repaired, 1000)
		assert.Equal(t, data[:500], repaired[:500])
	})

	t.Run("intact", func(t *testing.T) {
		t.Parallel()

		data := slicesConcat(textBytes(3000), counterBytes(2048))
		container := must.Value(ratchet.Compress(data))(t)

		repaired, valid, err := ratchet.Repair(container)
		require.NoError(t, err)

		assert.True(t, valid)
		assert.Equal(t, data, repaired)
	})

	t.Run("intact zones survive truncation", func(t *testing.T) {
		t.Parallel()

		data := slicesConcat(counterBytes(2048), textBytes(4096))
		container := must.Value(ratchet.Compress(data))(t)

		repaired, valid, err := ratchet.Repair(container[:ratchet.HeaderSize+3000])
		require.NoError(t, err)

		assert.False(t, valid)
		require.Len(t, repaired, len(data))
		assert.Equal(t, data[:2048], repaired[:2048])
	})

	t.Run("corrupted", func(t *testing.T) {
		t.Parallel()

		data := textBytes(4096)
		container := must.Value(ratchet.Compress(data))(t)
		container[ratchet.HeaderSize+4000] ^= 0xff

		repaired, valid, err := ratchet.Repair(container)
		require.NoError(t, err)

		assert.False(t, valid)
		require.Len(t, repaired, len(data))
		assert.Equal(t, data[:3072], repaired[:3072])
	})

	t.Run("header only", func(t *testing.T) {
		t.Parallel()

		container := must.Value(ratchet.Compress(textBytes(100)))(t)

		repaired, valid, err := ratchet.Repair(container[:ratchet.HeaderSize])
		require.NoError(t, err)

		assert.False(t, valid)
		assert.Len(t, repaired, 100)
	})

	t.Run("too short", func(t *testing.T) {
		t.Parallel()

		_, _, err := ratchet.Repair([]byte("RTCH"))
		require.ErrorIs(t, err, ratchet.ErrTooShort)
	})

	t.Run("too large", func(t *testing.T) {
		t.Parallel()

		c := must.Value(ratchet.NewCodec(ratchet.WithMaxSize(1 << 20)))(t)

		header, err := ratchet.Header{Magic: ratchet.DefaultMagic, Size: 1<<20 + 1}.AppendBinary(nil)
		require.NoError(t, err)

		_, _, err = c.Repair(header)
		require.ErrorIs(t, err, ratchet.ErrTooLarge)
		require.ErrorIs(t, err, ratchet.ErrFormat)
	})
}

func TestConcurrentUse(t *testing.T) {
	t.Parallel()

	c := must.Value(ratchet.NewCodec(ratchet.WithChunkSize(4096)))(t)

	var eg errgroup.Group

	for i := range 8 {
		eg.Go(func() error {
			data := slicesConcat(randomBytes(uint64(i), 5000), textBytes(5000+i))

			container, err := c.Compress(data)
			if err != nil {
				return err
			}

			decoded, err := c.Decompress(container)
			if err != nil {
				return err
			}

			if !bytes.Equal(data, decoded) {
				return assert.AnError
			}

			return nil
		})
	}

	require.NoError(t, eg.Wait())
}

func TestEntropy(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 2, 17, 1024} {
		assert.Equal(t, 0.0, ratchet.Entropy(bytes.Repeat([]byte{7}, n)), strconv.Itoa(n))
	}

	assert.Equal(t, 0.0, ratchet.Entropy(nil))
	assert.Equal(t, 8.0, ratchet.Entropy(counterBytes(256)))
	assert.Equal(t, 8.0, ratchet.Entropy(counterBytes(1024)))
	assert.Equal(t, 1.0, ratchet.Entropy([]byte{1, 2, 1, 2}))
	assert.InDelta(t, 1.5, ratchet.Entropy([]byte{1, 1, 2, 3}), 1e-12)
}

func FuzzRoundTrip(f *testing.F) {
	f.Add([]byte(nil))
	f.Add([]byte("hello"))
	f.Add(make([]byte, 1024))
	f.Add(counterBytes(2048))
	f.Add(textBytes(3000))
	f.Add(randomBytes(1, 1500))

	c, err := ratchet.NewCodec()
	require.NoError(f, err)

	// transformed payloads are valid inputs which may be rejected
	f.Add(must.Value(c.Compress(counterBytes(1024)))(f)[ratchet.HeaderSize:])
	f.Add(must.Value(c.Compress(counterBytes(3000)))(f)[ratchet.HeaderSize:])

	f.Fuzz(func(t *testing.T, data []byte) {
		container, err := c.Compress(data)
		if errors.Is(err, ratchet.ErrAmbiguousZone) {
			return
		}

		require.NoError(t, err)
		require.Len(t, container, ratchet.HeaderSize+len(data))

		decoded, err := c.Decompress(container)
		require.NoError(t, err)
		require.True(t, bytes.Equal(data, decoded))
	})
}
