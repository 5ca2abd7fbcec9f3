package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32

	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

// EncryptSecret seals a secret with a passphrase-derived key. The output is
// base64 of salt || nonce || box, suitable for a config-adjacent file.
func EncryptSecret(passphrase string, secret []byte) (string, error) {
	if passphrase == "" {
		return "", fmt.Errorf("config: empty passphrase")
	}
	var salt [saltSize]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return "", fmt.Errorf("config: salt generation failed: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("config: nonce generation failed: %w", err)
	}
	key, err := deriveKey(passphrase, salt[:])
	if err != nil {
		return "", err
	}

	sealed := secretbox.Seal(nil, secret, &nonce, key)
	blob := make([]byte, 0, saltSize+nonceSize+len(sealed))
	blob = append(blob, salt[:]...)
	blob = append(blob, nonce[:]...)
	blob = append(blob, sealed...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptSecret reverses EncryptSecret. A wrong passphrase fails cleanly.
func DecryptSecret(passphrase, encoded string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("config: encrypted blob is not base64: %w", err)
	}
	if len(blob) < saltSize+nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("config: encrypted blob truncated")
	}
	key, err := deriveKey(passphrase, blob[:saltSize])
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	copy(nonce[:], blob[saltSize:saltSize+nonceSize])

	secret, ok := secretbox.Open(nil, blob[saltSize+nonceSize:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("config: decryption failed (wrong passphrase?)")
	}
	return secret, nil
}

func deriveKey(passphrase string, salt []byte) (*[keySize]byte, error) {
	derived, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("config: key derivation failed: %w", err)
	}
	var key [keySize]byte
	copy(key[:], derived)
	return &key, nil
}
