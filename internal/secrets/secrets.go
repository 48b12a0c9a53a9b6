// Package secrets holds the credential utilities used by the signup flow:
// one-way hashing for verification codes, symmetric encryption for stored
// credentials, and generation of codes, TOTP secrets and tenant passwords.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

const otpIssuer = "Physiotech"

var (
	// ErrCrypto indicates a stored ciphertext could not be decrypted. This
	// means stored-data or key corruption and is treated as fatal by callers.
	ErrCrypto = errors.New("ciphertext invalid or key mismatch")

	// ErrCodeTooShort is returned for numeric code lengths below 4 digits.
	ErrCodeTooShort = errors.New("verification codes must be at least 4 digits long")
)

// Hash produces a one-way salted hash of value, suitable for
// equality-checking verification codes.
func Hash(value string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(value), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash value: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether value matches the given hash.
func Verify(value, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(value)) == nil
}

// Cipher encrypts and decrypts stored credentials with a process-wide key.
// The key is loaded once at startup and is read-only afterwards.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a base64 (URL safe) encoded 32 byte key.
func NewCipher(encodedKey string) (*Cipher, error) {
	key, err := base64.URLEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("credentials key must be base64 encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("credentials key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// GenerateKey returns a fresh base64 encoded 32 byte key suitable for
// NewCipher.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(key), nil
}

// Encrypt seals value and returns a base64 encoded nonce+ciphertext.
func (c *Cipher) Encrypt(value string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(value), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Tampered or invalid ciphertext returns ErrCrypto.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	sealed, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrCrypto, err)
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", ErrCrypto
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrCrypto
	}
	return string(plaintext), nil
}

// GenerateNumericCode returns a cryptographically random code of the given
// number of decimal digits.
func GenerateNumericCode(length int) (string, error) {
	if length < 4 {
		return "", ErrCodeTooShort
	}

	var sb strings.Builder
	for range length {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}

// GenerateTOTPSecret returns a random base32 encoded TOTP secret.
func GenerateTOTPSecret() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// BuildOTPAuthURI returns the otpauth:// provisioning URI for the given
// secret and account label, used for authenticator-app enrollment.
func BuildOTPAuthURI(secret, account string) (string, error) {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", fmt.Errorf("invalid TOTP secret: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      otpIssuer,
		AccountName: account,
		Secret:      raw,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build otpauth URI: %w", err)
	}
	return key.URL(), nil
}

// VerifyTOTP checks a TOTP code against the secret, tolerating clock drift
// of up to window 30s time steps either side.
func VerifyTOTP(secret, code string, window uint) bool {
	ok, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      window,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// GeneratePassword returns a random password over letters, digits and the
// given specials, regenerated until it contains at least one lowercase, one
// uppercase, one digit and one special character. Complexity holds by
// construction, the password is never transformed after the fact.
func GeneratePassword(length int, specials string) (string, error) {
	if length < 4 {
		return "", fmt.Errorf("password length %d cannot satisfy complexity rules", length)
	}
	if specials == "" {
		return "", errors.New("at least one special character is required")
	}

	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const digits = "0123456789"
	alphabet := letters + digits + specials

	for {
		buf := make([]byte, length)
		for i := range buf {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
			if err != nil {
				return "", fmt.Errorf("failed to generate password: %w", err)
			}
			buf[i] = alphabet[n.Int64()]
		}

		candidate := string(buf)
		if hasComplexity(candidate, specials) {
			return candidate, nil
		}
	}
}

func hasComplexity(candidate, specials string) bool {
	var lower, upper, digit, special bool
	for _, r := range candidate {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
		if strings.ContainsRune(specials, r) {
			special = true
		}
	}
	return lower && upper && digit && special
}
