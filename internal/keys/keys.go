// Package keys loads, generates and publishes the tool's RSA signing key.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

const Bits = 2048

// ParsePrivateKey decodes a PKCS#1 or PKCS#8 PEM RSA private key. Literal
// "\n" sequences, as found in single-line environment values, are accepted.
func ParsePrivateKey(p string) (*rsa.PrivateKey, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, `\n`, "\n"))
	block, _ := pem.Decode([]byte(p))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return k, nil
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		rk, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is %T, want RSA", k)
		}
		return rk, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
}

// LoadPrivateKey parses pemText, or the file at path when pemText is empty.
func LoadPrivateKey(pemText, path string) (*rsa.PrivateKey, error) {
	if strings.TrimSpace(pemText) == "" {
		if path == "" {
			return nil, errors.New("no private key configured")
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		pemText = string(b)
	}
	k, err := ParsePrivateKey(pemText)
	if err != nil {
		return nil, err
	}
	if err := k.Validate(); err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return k, nil
}

func Generate() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, Bits)
}

// EncodePrivateKeyPEM encodes k as PKCS#8.
func EncodePrivateKeyPEM(k *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicKeyPEM encodes the public half as SubjectPublicKeyInfo.
func EncodePublicKeyPEM(k *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(k)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// EnvFormat folds a PEM document onto one line with literal "\n"
// separators, suitable for LTI_PRIVATE_KEY.
func EnvFormat(pemBytes []byte) string {
	return strings.ReplaceAll(strings.TrimSpace(string(pemBytes)), "\n", `\n`)
}
