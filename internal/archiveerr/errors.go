// Package archiveerr defines the sentinel error kinds shared across the
// codec, cipher, otp, chunk, embed and archive packages. Callers test for a
// specific failure mode with errors.Is rather than string matching; wrapping
// uses fmt.Errorf("...: %w", err), the same convention the crypto/s3/audit
// packages used throughout.
package archiveerr

import "errors"

var (
	// ErrUsage signals a CLI invocation or API call with invalid arguments.
	ErrUsage = errors.New("archiveerr: usage error")

	// ErrConfig signals a malformed or unreadable configuration file.
	// Fatal at startup only, never raised mid-build.
	ErrConfig = errors.New("archiveerr: configuration error")

	// ErrIO wraps a filesystem failure (open/read/write/rename) outside the
	// archive codec/cipher pipeline itself.
	ErrIO = errors.New("archiveerr: I/O error")

	// ErrCodec marks an unrecognized algorithm tag passed to Compress.
	// Decompression failures, including an unrecognized tag or a payload
	// whose length is not compressedSize, are reported as ErrCorruptArchive.
	ErrCodec = errors.New("archiveerr: codec error")

	// ErrCipher wraps an encryption or decryption failure below the
	// archive-reader boundary. Archive-reader callers see ErrAuthFailure
	// instead, per the rule that "wrong key" and "corrupt ciphertext" never
	// surface as distinguishable outcomes to a caller.
	ErrCipher = errors.New("archiveerr: cipher error")

	// ErrEmbedderUnavailable means the embedder process could not be
	// spawned (binary not found, exec error).
	ErrEmbedderUnavailable = errors.New("archiveerr: embedder unavailable")

	// ErrEmbedderFailed means the embedder process ran and exited non-zero.
	ErrEmbedderFailed = errors.New("archiveerr: embedder failed")

	// ErrEmbedderMalformed means the embedder's stdout was not a JSON
	// []float32.
	ErrEmbedderMalformed = errors.New("archiveerr: embedder returned malformed output")

	// ErrEmbedderTimeout means the embedder did not respond before its
	// context deadline.
	ErrEmbedderTimeout = errors.New("archiveerr: embedder timed out")

	// ErrOTPMissing means an archive requires a TOTP code but none was
	// supplied.
	ErrOTPMissing = errors.New("archiveerr: TOTP code required")

	// ErrOTPInvalid means a supplied TOTP code did not validate within the
	// accepted time-step window.
	ErrOTPInvalid = errors.New("archiveerr: TOTP code invalid")

	// ErrDecryptionFailed means an AEAD open failed (truncated input or
	// authentication failure).
	ErrDecryptionFailed = errors.New("archiveerr: decryption failed")

	// ErrAuthFailure is the error surfaced by the archive reader for any
	// TOTP or decryption failure. A TOTP failure also wraps ErrOTPMissing or
	// ErrOTPInvalid; a decryption failure is returned as ErrAuthFailure alone,
	// so a wrong key and corrupt ciphertext are not told apart.
	ErrAuthFailure = errors.New("archiveerr: authentication failure")

	// ErrCorruptArchive covers any parse, size-mismatch, decompression, or
	// checksum failure encountered while reading an archive.
	ErrCorruptArchive = errors.New("archiveerr: corrupt archive")

	// ErrDuplicateFileName is returned by Builder.AddFile when two entries
	// added to the same archive resolve to the same file name.
	ErrDuplicateFileName = errors.New("archiveerr: duplicate file name in archive")

	// ErrEmptyFile is returned by Builder.AddFile for a zero-byte input.
	ErrEmptyFile = errors.New("archiveerr: cannot archive an empty file")

	// ErrEmbeddingsAbsent is returned by Search when the archive was built
	// without embeddings (embeddingDim == 0).
	ErrEmbeddingsAbsent = errors.New("archiveerr: archive has no embeddings")
)
