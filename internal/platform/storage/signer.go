package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Signer signs URL payloads on behalf of a service account.
type Signer interface {
	Email() string
	SignBytes(ctx context.Context, payload []byte) ([]byte, error)
}

// KeySigner signs with a service account's RSA key held in memory.
type KeySigner struct {
	email string
	key   *rsa.PrivateKey
}

// ParseServiceAccountKey builds a KeySigner from a JSON key file body, typically
// resolved from Secret Manager.
func ParseServiceAccountKey(data []byte) (*KeySigner, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("storage: service account key is empty")
	}
	var raw struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("storage: decode service account key: %w", err)
	}
	email := strings.TrimSpace(raw.ClientEmail)
	if email == "" {
		return nil, errors.New("storage: service account key has no client_email")
	}
	key, err := decodeRSAKey(strings.TrimSpace(raw.PrivateKey))
	if err != nil {
		return nil, err
	}
	return &KeySigner{email: email, key: key}, nil
}

// LoadServiceAccountKey reads a JSON key from disk.
func LoadServiceAccountKey(path string) (*KeySigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read service account key: %w", err)
	}
	return ParseServiceAccountKey(data)
}

func (s *KeySigner) Email() string {
	if s == nil {
		return ""
	}
	return s.email
}

// SignBytes returns an RSASSA-PKCS1-v1_5 SHA-256 signature.
func (s *KeySigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("storage: signer has no key")
	}
	if len(payload) == 0 {
		return nil, errors.New("storage: nothing to sign")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("storage: sign: %w", err)
	}
	return sig, nil
}

func decodeRSAKey(pemData string) (*rsa.PrivateKey, error) {
	if pemData == "" {
		return nil, errors.New("storage: service account key has no private_key")
	}
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("storage: private_key is not PEM encoded")
	}
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("storage: private_key is not an RSA key")
		}
		return key, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("storage: parse private_key: %w", err)
	}
	return key, nil
}
