package credentials

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
)

// EnvelopePrefix marks a value sealed by Cipher.
const EnvelopePrefix = "enc:v1:"

const (
	keySize      = chacha20poly1305.KeySize
	nonceSize    = chacha20poly1305.NonceSizeX
	wrappedSize  = keySize + chacha20poly1305.Overhead
	minBlobSize  = nonceSize + wrappedSize + nonceSize + chacha20poly1305.Overhead
	minMasterLen = 32
)

// KeyProvider supplies the key-encryption key for a tenant.
type KeyProvider interface {
	KEK(ctx context.Context, tenantID uint64) ([]byte, error)
}

// StaticKeyProvider derives per-tenant KEKs from one master key with HKDF-SHA256.
type StaticKeyProvider struct {
	master []byte
}

// NewStaticKeyProvider decodes a base64 master key of at least 32 bytes.
func NewStaticKeyProvider(masterB64 string) (*StaticKeyProvider, error) {
	master, err := base64.StdEncoding.DecodeString(strings.TrimSpace(masterB64))
	if err != nil {
		return nil, fmt.Errorf("%w: master key is not base64: %v", apperrors.ErrConfiguration, err)
	}
	if len(master) < minMasterLen {
		return nil, fmt.Errorf("%w: master key must be at least %d bytes", apperrors.ErrConfiguration, minMasterLen)
	}
	return &StaticKeyProvider{master: master}, nil
}

func (p *StaticKeyProvider) KEK(_ context.Context, tenantID uint64) ([]byte, error) {
	info := []byte("concierge-credentials-kek/" + strconv.FormatUint(tenantID, 10))
	kek := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, p.master, nil, info), kek); err != nil {
		return nil, fmt.Errorf("derive kek: %w", err)
	}
	return kek, nil
}

// Cipher seals credential values with a fresh data key per write. The data
// key is wrapped by the tenant KEK; tenant and key name are bound as AAD.
//
// Blob layout: wrapNonce | wrappedDEK | nonce | ciphertext.
type Cipher struct {
	keys KeyProvider
}

func NewCipher(keys KeyProvider) *Cipher {
	return &Cipher{keys: keys}
}

func associatedData(tenantID uint64, key string) []byte {
	return []byte(strconv.FormatUint(tenantID, 10) + ":" + key)
}

// Seal returns EnvelopePrefix followed by the base64 blob.
func (c *Cipher) Seal(ctx context.Context, tenantID uint64, key, plaintext string) (string, error) {
	kek, err := c.keys.KEK(ctx, tenantID)
	if err != nil {
		return "", err
	}
	dek := make([]byte, keySize)
	if _, err := rand.Read(dek); err != nil {
		return "", fmt.Errorf("generate data key: %w", err)
	}
	aad := associatedData(tenantID, key)

	wrapAEAD, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return "", fmt.Errorf("init kek cipher: %w", err)
	}
	dataAEAD, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return "", fmt.Errorf("init data cipher: %w", err)
	}

	blob := make([]byte, nonceSize, minBlobSize+len(plaintext))
	if _, err := rand.Read(blob[:nonceSize]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	blob = wrapAEAD.Seal(blob, blob[:nonceSize], dek, aad)

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	blob = append(blob, nonce...)
	blob = dataAEAD.Seal(blob, nonce, []byte(plaintext), aad)

	return EnvelopePrefix + base64.StdEncoding.EncodeToString(blob), nil
}

// Open reverses Seal. Values without EnvelopePrefix are returned unchanged.
func (c *Cipher) Open(ctx context.Context, tenantID uint64, key, stored string) (string, error) {
	if !strings.HasPrefix(stored, EnvelopePrefix) {
		return stored, nil
	}
	blob, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, EnvelopePrefix))
	if err != nil {
		return "", fmt.Errorf("%w: credential %s: malformed envelope", apperrors.ErrValidation, key)
	}
	if len(blob) < minBlobSize {
		return "", fmt.Errorf("%w: credential %s: truncated envelope", apperrors.ErrValidation, key)
	}
	kek, err := c.keys.KEK(ctx, tenantID)
	if err != nil {
		return "", err
	}
	aad := associatedData(tenantID, key)

	wrapAEAD, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return "", fmt.Errorf("init kek cipher: %w", err)
	}
	wrapNonce, rest := blob[:nonceSize], blob[nonceSize:]
	wrapped, rest := rest[:wrappedSize], rest[wrappedSize:]
	dek, err := wrapAEAD.Open(nil, wrapNonce, wrapped, aad)
	if err != nil {
		return "", fmt.Errorf("%w: credential %s: cannot unwrap data key", apperrors.ErrValidation, key)
	}

	dataAEAD, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return "", fmt.Errorf("init data cipher: %w", err)
	}
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]
	plaintext, err := dataAEAD.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return "", fmt.Errorf("%w: credential %s: cannot decrypt", apperrors.ErrValidation, key)
	}
	return string(plaintext), nil
}
