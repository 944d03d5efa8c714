// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

// This file implements credential encryption for session tokens stored
// on disk.
//
// Encryption Algorithm:
//   - AES-256-GCM (authenticated encryption)
//   - 12-byte random nonce per encryption
//   - Key derived from storage.encryption_secret using HKDF-SHA256
package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// credentialEncryptionSalt binds derived keys to this application's
	// credential encryption use case.
	credentialEncryptionSalt = "mousehold-session-credentials"

	// credentialEncryptionInfo is the HKDF info parameter.
	credentialEncryptionInfo = "credential-encryption-v1"

	aesKeySize   = 32
	gcmNonceSize = 12
)

var (
	// ErrEmptySecret is returned when an empty encryption secret is provided.
	ErrEmptySecret = errors.New("encryption secret cannot be empty")

	// ErrEmptyPlaintext is returned when attempting to encrypt empty data.
	ErrEmptyPlaintext = errors.New("plaintext cannot be empty")

	// ErrEmptyCiphertext is returned when attempting to decrypt empty data.
	ErrEmptyCiphertext = errors.New("ciphertext cannot be empty")

	// ErrDecryptionFailed is returned when decryption fails.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")

	// ErrInvalidCiphertext is returned when the ciphertext format is invalid.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// ErrCiphertextTooShort is returned when the ciphertext is below the minimum length.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// CredentialEncryptor provides AES-256-GCM encryption for stored session
// tokens. The key is derived from the configured encryption secret with
// HKDF-SHA256 so credential encryption is tied to the deployment.
type CredentialEncryptor struct {
	key    []byte
	cipher cipher.AEAD
}

// NewCredentialEncryptor creates an encryptor from the configured
// storage encryption secret.
func NewCredentialEncryptor(secret string) (*CredentialEncryptor, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key, err := deriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CredentialEncryptor{
		key:    key,
		cipher: gcm,
	}, nil
}

// Encrypt encrypts a plaintext string and returns a base64-encoded
// ciphertext in the form base64(nonce || ciphertext || tag).
func (e *CredentialEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := e.cipher.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a base64-encoded ciphertext produced by Encrypt.
func (e *CredentialEncryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", ErrEmptyCiphertext
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed: %s", ErrInvalidCiphertext, err.Error())
	}

	// Minimum length: nonce (12) + at least 1 byte + tag (16)
	minLength := gcmNonceSize + 1 + e.cipher.Overhead()
	if len(data) < minLength {
		return "", ErrCiphertextTooShort
	}

	nonce := data[:gcmNonceSize]
	encryptedData := data[gcmNonceSize:]

	plaintext, err := e.cipher.Open(nil, nonce, encryptedData, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// MaskCredential returns a display-safe version of a credential showing
// only the last 4 characters.
func MaskCredential(credential string) string {
	if credential == "" {
		return ""
	}
	if len(credential) <= 4 {
		return "****"
	}
	return "****..." + credential[len(credential)-4:]
}

// deriveKey derives a 256-bit AES key from the secret using HKDF-SHA256.
func deriveKey(secret string) ([]byte, error) {
	hkdfReader := hkdf.New(
		sha256.New,
		[]byte(secret),
		[]byte(credentialEncryptionSalt),
		[]byte(credentialEncryptionInfo),
	)

	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("failed to read HKDF output: %w", err)
	}

	return key, nil
}
