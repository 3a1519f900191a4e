// Package crypto provides the at-rest transform for message bodies.
//
// Text content is sealed with an authenticated symmetric cipher before it
// reaches the database and opened again on every read, so a database dump
// never exposes what people wrote. This is confidentiality against storage
// compromise, not end-to-end encryption: the server holds the key.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

// envelopePrefix marks codec output. Stored values without it predate
// encryption and are returned as-is on decrypt.
const envelopePrefix = "enc:v1:"

const nonceSize = 24

var (
	ErrEmptyPlaintext    = errors.New("empty plaintext")
	ErrMalformedEnvelope = errors.New("malformed ciphertext envelope")
	ErrDecryptFailed     = errors.New("ciphertext authentication failed")
)

// Codec seals and opens message text under a single server-side key.
type Codec struct {
	key [32]byte
}

// NewCodec derives the sealing key from the configured secret.
func NewCodec(secret string) *Codec {
	return &Codec{key: sha256.Sum256([]byte(secret))}
}

// Encrypt seals plaintext into the stored envelope format:
// prefix + base64(nonce || box).
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return envelopePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Input that does not carry the envelope prefix is
// treated as legacy unencrypted content and returned unchanged, which makes
// Decrypt idempotent on already-plaintext input.
func (c *Codec) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, envelopePrefix) {
		return stored, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, envelopePrefix))
	if err != nil {
		return "", ErrMalformedEnvelope
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrMalformedEnvelope
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	opened, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", ErrDecryptFailed
	}
	return string(opened), nil
}
