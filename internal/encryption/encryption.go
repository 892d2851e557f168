package encryption

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var (
	ErrInvalidKey        = errors.New("encryption key must be 32 bytes, base64 encoded")
	ErrMalformedCipher   = errors.New("ciphertext too short")
	ErrDecryptionFailure = errors.New("ciphertext authentication failed")
)

// Cipher encrypts message text at the storage boundary.
type Cipher interface {
	Encrypt(plaintext string) ([]byte, error)
	Decrypt(ciphertext []byte) (string, error)
}

// SecretBox seals text with NaCl secretbox. Output layout is nonce || box.
type SecretBox struct {
	key [keySize]byte
}

// NewSecretBox builds a cipher from a base64 (std or url alphabet) encoded 32 byte key.
func NewSecretBox(encodedKey string) (*SecretBox, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(encodedKey)
	}
	if err != nil || len(raw) != keySize {
		return nil, ErrInvalidKey
	}
	sb := &SecretBox{}
	copy(sb.key[:], raw)
	return sb, nil
}

// GenerateKey returns a fresh random key in the encoding NewSecretBox expects.
func GenerateKey() (string, error) {
	var key [keySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

func (s *SecretBox) Encrypt(plaintext string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key), nil
}

func (s *SecretBox) Decrypt(ciphertext []byte) (string, error) {
	if len(ciphertext) < nonceSize+secretbox.Overhead {
		return "", ErrMalformedCipher
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	out, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrDecryptionFailure
	}
	return string(out), nil
}
