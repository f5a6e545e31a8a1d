package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

const (
	// PBKDF2 iterations for key derivation
	pbkdf2Iterations = 10000

	// SealedPrefix marks a string produced by SealString
	SealedPrefix = "sealed:"
)

// sealingPassphrase is combined with the machine id. It binds sealed values
// to the host that wrote them; it does not protect them from local users.
const sealingPassphrase = "cunzhi/config-sealing/v1"

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrEmptyMachineID    = errors.New("machine ID cannot be empty")
)

// Sealer encrypts small secrets stored in the configuration (bot tokens)
// with ChaCha20-Poly1305 under a key derived from the machine id.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the sealing key from the machine id
func NewSealer(machineID string) (*Sealer, error) {
	if machineID == "" {
		return nil, ErrEmptyMachineID
	}

	key := pbkdf2.Key(
		[]byte(sealingPassphrase),
		[]byte(machineID),
		pbkdf2Iterations,
		chacha20poly1305.KeySize,
		sha3.New256,
	)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chacha20poly1305")
	}

	return &Sealer{aead: aead}, nil
}

// NewHostSealer builds a Sealer bound to the current host
func NewHostSealer() (*Sealer, error) {
	machineID, err := GetMachineID()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get machine ID")
	}
	return NewSealer(machineID)
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext)
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "failed to generate nonce")
	}

	ciphertext := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal
func (s *Sealer) Open(sealedB64 string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(sealedB64)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode base64")
	}

	nonceSize := s.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt")
	}

	return plaintext, nil
}

// SealString seals a configuration value. Empty values stay empty.
func (s *Sealer) SealString(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	sealed, err := s.Seal([]byte(value))
	if err != nil {
		return "", err
	}
	return SealedPrefix + sealed, nil
}

// OpenString reverses SealString. Values without the prefix were written by
// hand and are returned unchanged.
func (s *Sealer) OpenString(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	plaintext, err := s.Open(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// IsSealed reports whether value carries the sealed prefix
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}
