package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kenchrcum/moonball/internal/cipher"
	"github.com/kenchrcum/moonball/internal/otp"
)

func writeTempFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestBuildExtractRoundTripPlain(t *testing.T) {
	dir := t.TempDir()
	a := writeTempFile(t, dir, "a.txt", []byte("hello moonball"))
	b := writeTempFile(t, dir, "b.bin", make([]byte, 3*1024*1024))

	builder := NewBuilder(context.Background(), WithWorkers(4), WithChunkSize(1024*1024))
	require.NoError(t, builder.AddFile(a))
	require.NoError(t, builder.AddFile(b))

	archivePath := filepath.Join(dir, "out.mnbl")
	require.NoError(t, builder.Save(context.Background(), archivePath))

	outDir := filepath.Join(dir, "extracted")
	require.NoError(t, NewReader(nil).Extract(archivePath, outDir, ""))

	gotA, err := os.ReadFile(filepath.Join(outDir, a))
	require.NoError(t, err)
	require.Equal(t, "hello moonball", string(gotA))

	wantB, err := os.ReadFile(b)
	require.NoError(t, err)
	gotB, err := os.ReadFile(filepath.Join(outDir, b))
	require.NoError(t, err)
	require.Equal(t, wantB, gotB)
}

func TestBuildExtractRoundTripEncrypted(t *testing.T) {
	dir := t.TempDir()
	a := writeTempFile(t, dir, "secret.txt", []byte("for your eyes only"))

	builder := NewBuilder(context.Background(), WithEncryption("hunter2"))
	require.NoError(t, builder.AddFile(a))

	archivePath := filepath.Join(dir, "out.mnbl")
	require.NoError(t, builder.Save(context.Background(), archivePath))

	outDir := filepath.Join(dir, "extracted")
	c := cipher.New("hunter2")
	require.NoError(t, NewReader(c).Extract(archivePath, outDir, ""))

	got, err := os.ReadFile(filepath.Join(outDir, a))
	require.NoError(t, err)
	require.Equal(t, "for your eyes only", string(got))

	// wrong passphrase must fail, never silently produce wrong plaintext
	outDir2 := filepath.Join(dir, "extracted-wrong")
	err = NewReader(cipher.New("wrong")).Extract(archivePath, outDir2, "")
	require.Error(t, err)
}

func TestDuplicateFileNameRejected(t *testing.T) {
	dir := t.TempDir()
	f := writeTempFile(t, dir, "same.txt", []byte("one"))

	builder := NewBuilder(context.Background())
	require.NoError(t, builder.AddFile(f))
	err := builder.AddFile(f)
	require.Error(t, err)
}

// TestSameBaseNameDifferentDirsNotRejected confirms fileName is the full
// caller-supplied path (spec.md §3), not its basename: two files that share
// a basename but live under different directories are distinct chunk keys
// and must both be added, reassembled into their own nested output paths.
func TestSameBaseNameDifferentDirsNotRejected(t *testing.T) {
	dir := t.TempDir()
	subA := filepath.Join(dir, "a")
	subB := filepath.Join(dir, "b")
	require.NoError(t, os.Mkdir(subA, 0o755))
	require.NoError(t, os.Mkdir(subB, 0o755))
	f1 := writeTempFile(t, subA, "same.txt", []byte("one"))
	f2 := writeTempFile(t, subB, "same.txt", []byte("two"))

	builder := NewBuilder(context.Background())
	require.NoError(t, builder.AddFile(f1))
	require.NoError(t, builder.AddFile(f2))

	archivePath := filepath.Join(dir, "out.mnbl")
	require.NoError(t, builder.Save(context.Background(), archivePath))

	outDir := filepath.Join(dir, "extracted")
	require.NoError(t, NewReader(nil).Extract(archivePath, outDir, ""))

	got1, err := os.ReadFile(filepath.Join(outDir, f1))
	require.NoError(t, err)
	require.Equal(t, "one", string(got1))

	got2, err := os.ReadFile(filepath.Join(outDir, f2))
	require.NoError(t, err)
	require.Equal(t, "two", string(got2))
}

func TestEmptyFileRejected(t *testing.T) {
	dir := t.TempDir()
	empty := writeTempFile(t, dir, "empty.txt", nil)

	builder := NewBuilder(context.Background())
	err := builder.AddFile(empty)
	require.Error(t, err)
}

func TestTwoFactorGateRequiresCode(t *testing.T) {
	dir := t.TempDir()
	a := writeTempFile(t, dir, "gated.txt", []byte("inside the vault"))

	builder := NewBuilder(context.Background(), WithTwoFactorAuth(""))
	require.NoError(t, builder.AddFile(a))

	archivePath := filepath.Join(dir, "out.mnbl")
	require.NoError(t, builder.Save(context.Background(), archivePath))

	meta, err := NewReader(nil).ReadMetadata(archivePath)
	require.NoError(t, err)
	require.True(t, meta.Requires2FA)
	require.NotEmpty(t, meta.SecretKey)

	outDir := filepath.Join(dir, "extracted")
	err = NewReader(nil).Extract(archivePath, outDir, "")
	require.Error(t, err)

	code, err := otp.New(meta.SecretKey).Generate()
	require.NoError(t, err)
	require.NoError(t, NewReader(nil).Extract(archivePath, outDir, code))
}

func TestCorruptionDetectedOnFlippedFooterByte(t *testing.T) {
	dir := t.TempDir()
	a := writeTempFile(t, dir, "x.txt", []byte("integrity matters"))

	builder := NewBuilder(context.Background())
	require.NoError(t, builder.AddFile(a))

	archivePath := filepath.Join(dir, "out.mnbl")
	require.NoError(t, builder.Save(context.Background(), archivePath))

	raw, err := os.ReadFile(archivePath)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(archivePath, raw, 0o644))

	err = NewReader(nil).Extract(archivePath, filepath.Join(dir, "extracted"), "")
	require.Error(t, err)
}

func TestOrderInvarianceAcrossWorkerCounts(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 9*1024*1024+17)
	for i := range data {
		data[i] = byte(i)
	}
	a := writeTempFile(t, dir, "big.bin", data)

	var archives [][]byte
	for _, workers := range []int{1, 2, 8} {
		builder := NewBuilder(context.Background(), WithWorkers(workers), WithChunkSize(1024*1024))
		require.NoError(t, builder.AddFile(a))
		out := filepath.Join(dir, "w.mnbl")
		require.NoError(t, builder.Save(context.Background(), out))

		meta, err := NewReader(nil).ReadMetadata(out)
		require.NoError(t, err)
		for i, c := range meta.Chunks {
			require.Equal(t, i, c.ChunkID)
		}

		outDir := filepath.Join(dir, "extract")
		os.RemoveAll(outDir)
		require.NoError(t, NewReader(nil).Extract(out, outDir, ""))
		got, err := os.ReadFile(filepath.Join(outDir, a))
		require.NoError(t, err)
		archives = append(archives, got)
	}

	for i := 1; i < len(archives); i++ {
		require.Equal(t, archives[0], archives[i])
	}
}
