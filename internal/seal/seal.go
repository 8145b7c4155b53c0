// Package seal implements the passphrase-based cipher used to store and
// verify the security-code sentinel.
//
// Encrypt and Decrypt derive both the key and the GCM nonce from the
// passphrase alone, so the ciphertext is a self-contained verification token:
// nothing but the passphrase is needed to check it. Identical passphrases
// always reuse the same nonce, which is acceptable only because the sealed
// plaintext is a fixed constant. Anything that must stay confidential goes
// through a Sealer, which uses a stored random salt and a fresh nonce per
// value.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// SaltSize is the length of the passphrase-derived salt, which is also the
// GCM nonce length used by Encrypt.
const SaltSize = 16

const (
	randomNonceSize = 12
	minIterations   = 100_000
)

var (
	// ErrEmptyPassphrase is returned when a passphrase is empty.
	ErrEmptyPassphrase = errors.New("passphrase cannot be empty")
	// ErrDecrypt covers every way a ciphertext can fail to open: bad
	// encoding, truncated input or an authentication tag mismatch.
	ErrDecrypt = errors.New("decryption failed")
)

// Params controls key derivation.
type Params struct {
	// Iterations is the PBKDF2 round count.
	Iterations int
	// KeySize is the derived key length in bytes; 32 selects AES-256.
	KeySize int
}

// DefaultParams returns the production key-derivation parameters.
func DefaultParams() Params {
	return Params{Iterations: 1_000_000, KeySize: 32}
}

// Validate rejects parameters weaker than the production floor.
func (p Params) Validate() error {
	if p.Iterations < minIterations {
		return fmt.Errorf("pbkdf2 iterations must be at least %d, got %d", minIterations, p.Iterations)
	}
	switch p.KeySize {
	case 16, 24, 32:
	default:
		return fmt.Errorf("unsupported key size %d", p.KeySize)
	}
	return nil
}

// Cipher seals short plaintexts under a passphrase.
type Cipher struct {
	params Params
}

// New returns a Cipher using p. Zero fields fall back to DefaultParams.
func New(p Params) *Cipher {
	def := DefaultParams()
	if p.Iterations == 0 {
		p.Iterations = def.Iterations
	}
	if p.KeySize == 0 {
		p.KeySize = def.KeySize
	}
	return &Cipher{params: p}
}

// Params returns the parameters in use.
func (c *Cipher) Params() Params { return c.params }

// DeriveSalt computes the deterministic salt for passphrase: the first
// SaltSize characters of the base64-encoded SHA-512 digest.
func DeriveSalt(passphrase string) []byte {
	sum := sha512.Sum512([]byte(passphrase))
	enc := base64.StdEncoding.EncodeToString(sum[:])
	return []byte(enc[:SaltSize])
}

// DeriveKey stretches passphrase with PBKDF2-HMAC-SHA256.
func (c *Cipher) DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, c.params.Iterations, c.params.KeySize, sha256.New)
}

// Encrypt seals plaintext under passphrase and returns base64 text.
func (c *Cipher) Encrypt(plaintext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrEmptyPassphrase
	}
	salt := DeriveSalt(passphrase)
	aead, err := c.aead(passphrase, salt, SaltSize)
	if err != nil {
		return "", err
	}
	ct := aead.Seal(nil, salt, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt opens a value produced by Encrypt. A wrong passphrase derives a
// different key and nonce, so it fails with ErrDecrypt.
func (c *Cipher) Decrypt(ciphertext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrEmptyPassphrase
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	salt := DeriveSalt(passphrase)
	aead, err := c.aead(passphrase, salt, SaltSize)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	pt, err := aead.Open(nil, salt, raw, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(pt), nil
}

// Verify reports whether ciphertext opens under passphrase to sentinel.
// Every failure counts as a mismatch.
func (c *Cipher) Verify(ciphertext, passphrase, sentinel string) bool {
	pt, err := c.Decrypt(ciphertext, passphrase)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(pt), []byte(sentinel)) == 1
}

// NewSalt returns a random salt for NewSealer.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Sealer encrypts arbitrary data under a key derived once from a passphrase
// and a stored random salt. Every Seal call draws a fresh nonce.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the key for passphrase and salt. The caller stores salt
// next to the sealed values.
func (c *Cipher) NewSealer(passphrase string, salt []byte) (*Sealer, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if len(salt) == 0 {
		return nil, errors.New("salt cannot be empty")
	}
	aead, err := c.aead(passphrase, salt, randomNonceSize)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns base64(nonce || ciphertext).
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, randomNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(raw) < randomNonceSize+s.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	pt, err := s.aead.Open(nil, raw[:randomNonceSize], raw[randomNonceSize:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

func (c *Cipher) aead(passphrase string, salt []byte, nonceSize int) (cipher.AEAD, error) {
	key := c.DeriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return aead, nil
}
