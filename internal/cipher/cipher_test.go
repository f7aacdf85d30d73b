package cipher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := New("correct horse battery staple")

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	blob, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	require.Len(t, blob, saltSize+nonceSize+len(plaintext)+16)

	out, err := c.Decrypt(blob)
	require.NoError(t, err)
	require.Equal(t, plaintext, out)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	c := New("same passphrase")
	a, err := c.Encrypt([]byte("identical plaintext"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("identical plaintext"))
	require.NoError(t, err)
	require.NotEqual(t, a, b, "two encryptions of the same plaintext must not collide")
}

func TestDecryptWrongPassphraseFails(t *testing.T) {
	blob, err := New("right").Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = New("wrong").Decrypt(blob)
	require.Error(t, err)
}

func TestDecryptTruncatedFails(t *testing.T) {
	_, err := New("x").Decrypt([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	c := New("x")
	blob, err := c.Encrypt([]byte("message"))
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xFF

	_, err = c.Decrypt(blob)
	require.Error(t, err)
}

func TestHasAESHardwareSupportDoesNotPanic(t *testing.T) {
	require.NotPanics(t, func() { HasAESHardwareSupport() })
}
