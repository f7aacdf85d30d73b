package chunk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitSizes(t *testing.T) {
	cases := []struct {
		name       string
		dataSize   int
		chunkSize  int
		wantChunks int
	}{
		{"1 byte", 1, 10, 1},
		{"chunkSize-1", 9, 10, 1},
		{"chunkSize exactly", 10, 10, 1},
		{"chunkSize+1", 11, 10, 2},
		{"10x chunkSize", 100, 10, 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := bytes.Repeat([]byte{0xAB}, tc.dataSize)
			chunks, err := New(tc.chunkSize).Split("file.bin", bytes.NewReader(data))
			require.NoError(t, err)
			require.Len(t, chunks, tc.wantChunks)

			var reassembled []byte
			for i, c := range chunks {
				require.Equal(t, i, c.ID)
				require.Equal(t, "file.bin", c.FileName)
				reassembled = append(reassembled, c.Data...)
			}
			require.Equal(t, data, reassembled)
		})
	}
}

func TestSplitEmptyYieldsNoChunks(t *testing.T) {
	chunks, err := New(10).Split("empty.bin", bytes.NewReader(nil))
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestStreamMatchesSplit(t *testing.T) {
	data := bytes.Repeat([]byte{0x01, 0x02}, 100)
	want, err := New(7).Split("f", bytes.NewReader(data))
	require.NoError(t, err)

	var got []Chunk
	for r := range New(7).Stream("f", bytes.NewReader(data)) {
		require.NoError(t, r.Err)
		got = append(got, r.Chunk)
	}
	require.Equal(t, want, got)
}
