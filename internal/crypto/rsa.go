package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidPublicKey  = errors.New("invalid RSA public key")
	ErrInvalidPrivateKey = errors.New("invalid RSA private key")
	ErrKeyNotConfigured  = errors.New("public key not configured")
)

// LoadPublicKey resolves the token verification key. Inline PEM wins over a path.
func LoadPublicKey(inlinePEM, path string) (*rsa.PublicKey, error) {
	if strings.TrimSpace(inlinePEM) != "" {
		return ParsePublicKey([]byte(inlinePEM))
	}
	if path == "" {
		return nil, ErrKeyNotConfigured
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key %s: %w", path, err)
	}
	return ParsePublicKey(data)
}

// ParsePublicKey parses a PEM-encoded PKIX RSA public key.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return key, nil
}

// ParsePrivateKey parses a PEM-encoded PKCS#1 or PKCS#8 RSA private key.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return key, nil
}

// GenerateKeyPair creates an RSA key pair and returns both halves PEM-encoded.
func GenerateKeyPair(bits int) (privatePEM, publicPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, err
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privatePEM, publicPEM, nil
}
