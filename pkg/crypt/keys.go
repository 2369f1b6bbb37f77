package crypt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

const (
	KeySize                = 2048
	PEMPublicKeyHeader     = "PUBLIC KEY"
	PEMPrivateKeyHeader    = "PRIVATE KEY"
	PEMRSAPublicKeyHeader  = "RSA PUBLIC KEY"
	PEMRSAPrivateKeyHeader = "RSA PRIVATE KEY"
)

var (
	ErrorInvalidPEM     = errors.New("invalid PEM block")
	ErrorUnsupportedKey = errors.New("unsupported key type")
)

// GenerateKeyPair returns a new RSA key pair encoded as PEM.
func GenerateKeyPair() (publicKeyPem string, privateKeyPem string, err error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, KeySize)
	if err != nil {
		return "", "", fmt.Errorf("generating RSA key: %w", err)
	}

	privateKeyPem, err = EncodePrivateKey(privateKey)
	if err != nil {
		return "", "", err
	}

	publicKeyPem, err = EncodePublicKey(&privateKey.PublicKey)
	if err != nil {
		return "", "", err
	}

	return publicKeyPem, privateKeyPem, nil
}

func EncodePrivateKey(privateKey *rsa.PrivateKey) (string, error) {
	keyData, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return "", fmt.Errorf("marshalling private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: PEMPrivateKeyHeader, Bytes: keyData})), nil
}

// EncodePublicKey writes the SubjectPublicKeyInfo form used in actor
// documents.
func EncodePublicKey(publicKey *rsa.PublicKey) (string, error) {
	keyData, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("marshalling public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: PEMPublicKeyHeader, Bytes: keyData})), nil
}

// DecodePublicKey accepts both PKIX and PKCS#1 encodings since peers publish
// either.
func DecodePublicKey(publicKeyPem string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPem))
	if block == nil {
		return nil, ErrorInvalidPEM
	}

	switch block.Type {
	case PEMRSAPublicKeyHeader:
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing public key: %w", err)
		}
		return key, nil
	case PEMPublicKeyHeader:
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing public key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, ErrorUnsupportedKey
		}
		return rsaKey, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrorInvalidPEM, block.Type)
}

func DecodePrivateKey(privateKeyPem string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privateKeyPem))
	if block == nil {
		return nil, ErrorInvalidPEM
	}

	switch block.Type {
	case PEMRSAPrivateKeyHeader:
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		return key, nil
	case PEMPrivateKeyHeader:
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, ErrorUnsupportedKey
		}
		return rsaKey, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrorInvalidPEM, block.Type)
}
