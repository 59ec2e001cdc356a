package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const (
	privateKeyFile = "private.pem"
	publicKeyFile  = "public.pem"
)

// KeyPair is an Ed25519 signing keypair together with its key ID, the
// hex-encoded SHA-256 fingerprint of the public key used to look the key
// up in a TrustStore.
type KeyPair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
	KeyID   string
}

// GenerateKeyPair creates a new Ed25519 signing keypair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 keypair: %w", err)
	}
	return &KeyPair{Private: priv, Public: pub, KeyID: Fingerprint(pub)}, nil
}

// Fingerprint returns the hex-encoded SHA-256 fingerprint of a public key,
// used as its trust-store key ID.
func Fingerprint(pub ed25519.PublicKey) string {
	h := merkleHash([]byte(pub))
	return h
}

// SaveKeyPair writes kp's raw key bytes under keysDir as private.pem and
// public.pem. The "pem" extension is kept for familiarity with the
// Ed25519 key files this format replaces; contents are raw key bytes, not
// PEM-encoded.
func SaveKeyPair(keysDir string, kp *KeyPair) error {
	if err := os.MkdirAll(keysDir, 0o700); err != nil {
		return fmt.Errorf("create keys dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(keysDir, privateKeyFile), kp.Private, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(keysDir, publicKeyFile), kp.Public, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}

// LoadPublicKey reads the public key from keysDir/public.pem.
func LoadPublicKey(keysDir string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(filepath.Join(keysDir, publicKeyFile))
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key has wrong length %d", len(data))
	}
	return ed25519.PublicKey(data), nil
}

// LoadPrivateKey reads the private key from keysDir/private.pem.
func LoadPrivateKey(keysDir string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(filepath.Join(keysDir, privateKeyFile))
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key has wrong length %d", len(data))
	}
	return ed25519.PrivateKey(data), nil
}

// SignMerkleRoot signs the hex-encoded Merkle root with priv, returning
// the signature as a hex string.
func SignMerkleRoot(priv ed25519.PrivateKey, rootHex string) string {
	sig := ed25519.Sign(priv, []byte(rootHex))
	return hex.EncodeToString(sig)
}

// VerifyMerkleRootSignature checks sigHex against rootHex under pub.
func VerifyMerkleRootSignature(pub ed25519.PublicKey, rootHex, sigHex string) bool {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, []byte(rootHex), sig)
}
