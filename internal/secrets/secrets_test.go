package secrets

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestHashVerify(t *testing.T) {
	hash, err := Hash("123456")
	require.NoError(t, err)
	require.NotEqual(t, "123456", hash)

	require.True(t, Verify("123456", hash))
	require.False(t, Verify("654321", hash))
}

func TestCipherRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	cipher, err := NewCipher(key)
	require.NoError(t, err)

	ciphertext, err := cipher.Encrypt("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	require.NotEqual(t, "JBSWY3DPEHPK3PXP", ciphertext)

	plaintext, err := cipher.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, "JBSWY3DPEHPK3PXP", plaintext)
}

func TestCipherDetectsTampering(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	cipher, err := NewCipher(key)
	require.NoError(t, err)

	ciphertext, err := cipher.Encrypt("secret value")
	require.NoError(t, err)

	// Flip a character in the encoded ciphertext
	tampered := []byte(ciphertext)
	if tampered[len(tampered)-1] == 'A' {
		tampered[len(tampered)-1] = 'B'
	} else {
		tampered[len(tampered)-1] = 'A'
	}

	_, err = cipher.Decrypt(string(tampered))
	require.ErrorIs(t, err, ErrCrypto)
}

func TestCipherRejectsWrongKey(t *testing.T) {
	keyA, err := GenerateKey()
	require.NoError(t, err)
	keyB, err := GenerateKey()
	require.NoError(t, err)

	cipherA, err := NewCipher(keyA)
	require.NoError(t, err)
	cipherB, err := NewCipher(keyB)
	require.NoError(t, err)

	ciphertext, err := cipherA.Encrypt("secret value")
	require.NoError(t, err)

	_, err = cipherB.Decrypt(ciphertext)
	require.ErrorIs(t, err, ErrCrypto)
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{
			name: "not base64",
			key:  "!!not base64!!",
		},
		{
			name: "too short",
			key:  "c2hvcnQ=",
		},
		{
			name: "empty",
			key:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCipher(tt.key)
			require.Error(t, err)
		})
	}
}

func TestGenerateNumericCode(t *testing.T) {
	t.Run("generates requested number of digits", func(t *testing.T) {
		code, err := GenerateNumericCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			require.True(t, r >= '0' && r <= '9')
		}
	})

	t.Run("rejects short lengths", func(t *testing.T) {
		_, err := GenerateNumericCode(3)
		require.ErrorIs(t, err, ErrCodeTooShort)
	})
}

func TestTOTP(t *testing.T) {
	secret, err := GenerateTOTPSecret()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(secret), 16)

	uri, err := BuildOTPAuthURI(secret, "ada@acme.test")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "otpauth://totp/"))
	require.Contains(t, uri, "Physiotech")
	require.Contains(t, uri, "ada@acme.test")

	code, err := totp.GenerateCode(secret, time.Now().UTC())
	require.NoError(t, err)

	require.True(t, VerifyTOTP(secret, code, 1))
	require.False(t, VerifyTOTP(secret, "000000", 1))
}

func TestGeneratePassword(t *testing.T) {
	const specials = "!@#$%^&*()-_"

	t.Run("meets complexity requirements", func(t *testing.T) {
		for range 20 {
			password, err := GeneratePassword(24, specials)
			require.NoError(t, err)
			require.Len(t, password, 24)
			require.True(t, strings.ContainsAny(password, "abcdefghijklmnopqrstuvwxyz"))
			require.True(t, strings.ContainsAny(password, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
			require.True(t, strings.ContainsAny(password, "0123456789"))
			require.True(t, strings.ContainsAny(password, specials))
		}
	})

	t.Run("rejects impossible lengths", func(t *testing.T) {
		_, err := GeneratePassword(3, specials)
		require.Error(t, err)
	})

	t.Run("rejects empty specials", func(t *testing.T) {
		_, err := GeneratePassword(24, "")
		require.Error(t, err)
	})
}
