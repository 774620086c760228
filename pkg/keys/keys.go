// Package keys handles the custodial broadcast key at rest.
// The private key never touches disk unencrypted: configuration carries
// either the hex key directly (development) or an AES-256-GCM sealed blob
// plus a master key (production).
package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"
)

// EncryptPrivateKey seals a 32-byte secp256k1 private key using AES-256-GCM.
// The result is base64(nonce || ciphertext || tag).
func EncryptPrivateKey(privateKey []byte, masterKey []byte) (string, error) {
	if len(masterKey) != 32 {
		return "", fmt.Errorf("master key must be 32 bytes (AES-256)")
	}
	if len(privateKey) != 32 {
		return "", fmt.Errorf("private key must be 32 bytes (secp256k1)")
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, privateKey, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptPrivateKey opens a blob produced by EncryptPrivateKey.
func DecryptPrivateKey(encrypted string, masterKey []byte) ([]byte, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes (AES-256)")
	}

	sealed, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted key: %w", err)
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("encrypted key blob is truncated")
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	privateKey, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt private key: %w", err)
	}
	return privateKey, nil
}

// DeriveKey deterministically derives a secp256k1 private key from a seed and
// a label using HKDF-SHA256. Deterministic keys keep fixture accounts stable
// across test runs.
func DeriveKey(seed []byte, label string) ([]byte, error) {
	if len(seed) < 32 {
		return nil, fmt.Errorf("seed must be at least 32 bytes")
	}

	reader := hkdf.New(sha256.New, seed, nil, []byte("sto-broadcast-key-"+label))

	privateKey := make([]byte, 32)
	if _, err := io.ReadFull(reader, privateKey); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	// Reject the rare derivations that fall outside the curve order.
	if _, err := crypto.ToECDSA(privateKey); err != nil {
		return nil, fmt.Errorf("derived key is not a valid secp256k1 key: %w", err)
	}
	return privateKey, nil
}

// ResolveHex returns the broadcast key as hex from whichever form the
// configuration carries: the plain hex key wins, otherwise the sealed blob is
// opened with the master key.
func ResolveHex(plainHex, encrypted, masterKeyHex string) (string, error) {
	if plainHex != "" {
		return plainHex, nil
	}
	if encrypted == "" {
		return "", fmt.Errorf("no private key configured")
	}

	masterKey, err := hex.DecodeString(strings.TrimPrefix(masterKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("master key is not valid hex: %w", err)
	}

	privateKey, err := DecryptPrivateKey(encrypted, masterKey)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(privateKey), nil
}
