package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	ivLen  = 12
	keyLen = 32

	// DefaultTimeCost, DefaultMemoryCost (KiB), and DefaultParallelism match
	// the memory-hard Argon2id profile used to derive object encryption
	// keys from a passphrase: at least 64 MiB and 3 passes.
	DefaultTimeCost    = 3
	DefaultMemoryCost  = 64 * 1024
	DefaultParallelism = 4
)

// KDFParams records the Argon2id parameters used to derive an object
// encryption key, persisted alongside the salt so a key can be
// re-derived from the same passphrase.
type KDFParams struct {
	Salt        []byte
	TimeCost    uint32
	MemoryCost  uint32
	Parallelism uint8
}

// NewKDFParams generates a random salt and returns KDFParams using the
// default memory-hard profile.
func NewKDFParams() (KDFParams, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return KDFParams{}, fmt.Errorf("generate salt: %w", err)
	}
	return KDFParams{
		Salt:        salt,
		TimeCost:    DefaultTimeCost,
		MemoryCost:  DefaultMemoryCost,
		Parallelism: DefaultParallelism,
	}, nil
}

// DeriveKey runs Argon2id over passphrase with params, yielding a 32-byte
// AES-256 key.
func DeriveKey(passphrase string, params KDFParams) []byte {
	return argon2.IDKey([]byte(passphrase), params.Salt, params.TimeCost, params.MemoryCost, params.Parallelism, keyLen)
}

// Encrypt seals plaintext under key with AES-256-GCM and a random nonce,
// returning iv||ciphertext-with-tag.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	iv := make([]byte, ivLen)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	out := make([]byte, 0, len(iv)+len(sealed))
	out = append(out, iv...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt reverses Encrypt: it expects iv||ciphertext-with-tag and
// returns the original plaintext.
func Decrypt(key, payload []byte) ([]byte, error) {
	if len(payload) < ivLen {
		return nil, fmt.Errorf("ciphertext too short")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	iv := payload[:ivLen]
	ciphertext := payload[ivLen:]
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// ObjectEncryptor encrypts and decrypts object-store payloads under a key
// supplied by GetKey, matching the "hash-then-encrypt" model: objects are
// content-addressed by their plaintext hash, and the ciphertext is what
// actually lands on disk.
type ObjectEncryptor struct {
	GetKey func() ([]byte, error)
}

// EncryptPayload encrypts plaintext for storage.
func (e *ObjectEncryptor) EncryptPayload(plaintext []byte) ([]byte, error) {
	key, err := e.GetKey()
	if err != nil {
		return nil, err
	}
	return Encrypt(key, plaintext)
}

// DecryptPayload decrypts a stored payload back to plaintext.
func (e *ObjectEncryptor) DecryptPayload(payload []byte) ([]byte, error) {
	key, err := e.GetKey()
	if err != nil {
		return nil, err
	}
	return Decrypt(key, payload)
}
