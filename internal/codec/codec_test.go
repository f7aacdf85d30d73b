package codec

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	require.Equal(t, Zstd, Select(make([]byte, 1<<20)))
	require.Equal(t, Brotli, Select(make([]byte, 1<<20+1)))
	require.Equal(t, Zstd, Select(nil))
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	lv := DefaultLevels()

	sizes := []int{1, 5*1024*1024 - 1, 5 * 1024 * 1024, 5*1024*1024 + 1, 10 * 1024 * 1024}
	algos := []Algorithm{Brotli, Lzma, Zstd}

	for _, algo := range algos {
		for _, size := range sizes {
			data := make([]byte, size)
			_, err := rand.Read(data)
			require.NoError(t, err)

			t.Run(string(algo), func(t *testing.T) {
				compressed, err := Compress(algo, data, lv)
				require.NoError(t, err)

				out, err := Decompress(algo, compressed, len(compressed))
				require.NoError(t, err)
				require.True(t, bytes.Equal(data, out))
			})
		}
	}
}

func TestDecompressRejectsSizeMismatch(t *testing.T) {
	compressed, err := Compress(Zstd, []byte("hello world"), DefaultLevels())
	require.NoError(t, err)

	_, err = Decompress(Zstd, compressed, len(compressed)+1)
	require.Error(t, err)
}

func TestCompressUnknownAlgorithm(t *testing.T) {
	_, err := Compress("rot13", []byte("x"), DefaultLevels())
	require.Error(t, err)
}
