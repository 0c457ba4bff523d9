package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/dmitrijs2005/usenetsync/internal/common"
)

const nonceSize = 12

// DeriveFolderKey derives a 32-byte AES key from a folder passphrase and
// salt using argon2id. Same inputs always produce the same key, so every
// client sharing the passphrase can decrypt the folder's segments.
func DeriveFolderKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// Encrypt seals plaintext with AES-256-GCM under key. The random 12-byte
// nonce is prepended to the returned ciphertext so the payload is
// self-contained.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := common.GenerateRandByteArray(nonceSize)
	sealed := aesgcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

// Decrypt opens a payload produced by Encrypt. Authentication failure
// (wrong key or tampered bytes) is reported as an integrity error.
func Decrypt(payload, key []byte) ([]byte, error) {
	if len(payload) < nonceSize {
		return nil, common.NewIntegrityError(fmt.Errorf("ciphertext too short: %d bytes", len(payload)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plaintext, err := aesgcm.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return nil, common.NewIntegrityError(fmt.Errorf("decrypt: %w", err))
	}
	return plaintext, nil
}
