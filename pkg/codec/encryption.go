package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdfIterations follows OWASP's 2023 minimum for PBKDF2-HMAC-SHA256.
const pbkdfIterations = 600000

const (
	saltSize = 16
	keySize  = 32 // AES-256
)

// seal derives a key from passphrase with a freshly generated salt and
// returns salt || nonce || ciphertext. The salt travels with the
// envelope since a snapshot is self-contained; there is no external key
// store to consult on Load.
func seal(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	key := deriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, saltSize+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// open reverses seal, authenticating the ciphertext against tampering.
// A failed authentication check surfaces as ErrChecksumMismatch, since
// GCM's tag is the format's only integrity check.
func open(envelope []byte, passphrase string) ([]byte, error) {
	if len(envelope) < saltSize+1 {
		return nil, ErrTruncatedSection
	}
	salt := envelope[:saltSize]
	key := deriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	rest := envelope[saltSize:]
	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return nil, ErrTruncatedSection
	}
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrChecksumMismatch
	}
	return plaintext, nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdfIterations, keySize, sha256.New)
}
