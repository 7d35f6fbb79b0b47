// Package keys handles the RSA key material used to talk to the bunq API:
// key generation, PEM export/import, request signing and response verification.
package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Bits is the RSA modulus size bunq expects for client keys.
const Bits = 2048

const (
	blockPublicKey    = "PUBLIC KEY"
	blockRSAPublicKey = "RSA PUBLIC KEY"
	blockPrivateKey   = "PRIVATE KEY"
)

var (
	// ErrCrypto is matched by every error this package returns.
	ErrCrypto = errors.New("keys: crypto failure")

	ErrKeyGeneration     = fmt.Errorf("%w: key generation", ErrCrypto)
	ErrKeyExport         = fmt.Errorf("%w: key export", ErrCrypto)
	ErrKeyImport         = fmt.Errorf("%w: key import", ErrCrypto)
	ErrSigning           = fmt.Errorf("%w: signing", ErrCrypto)
	ErrVerificationInput = fmt.Errorf("%w: malformed signature", ErrCrypto)
)

// Generate creates a fresh 2048-bit RSA keypair.
func Generate() (*rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, Bits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyGeneration, err)
	}
	return priv, nil
}

// ExportPublicKeyPEM encodes pub as a PKIX "PUBLIC KEY" PEM block,
// base64 wrapped at 64 columns.
func ExportPublicKeyPEM(pub *rsa.PublicKey) (string, error) {
	if pub == nil {
		return "", fmt.Errorf("%w: nil public key", ErrKeyExport)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrKeyExport, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: blockPublicKey, Bytes: der})), nil
}

// ImportPublicKeyPEM parses a PEM encoded RSA public key. Both PKIX
// ("PUBLIC KEY") and PKCS#1 ("RSA PUBLIC KEY") framings are accepted, as is
// bare base64 without any framing.
func ImportPublicKeyPEM(s string) (*rsa.PublicKey, error) {
	der, kind, err := decodePEM(s)
	if err != nil {
		return nil, err
	}

	if kind == blockRSAPublicKey {
		pub, err := x509.ParsePKCS1PublicKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeyImport, err)
		}
		return pub, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		// Some servers label PKCS#1 payloads as "PUBLIC KEY".
		if pub, pkcs1Err := x509.ParsePKCS1PublicKey(der); pkcs1Err == nil {
			return pub, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrKeyImport, err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA public key (%T)", ErrKeyImport, parsed)
	}
	return pub, nil
}

// ExportPrivateKeyPEM encodes priv as a PKCS#8 "PRIVATE KEY" PEM block.
func ExportPrivateKeyPEM(priv *rsa.PrivateKey) (string, error) {
	if priv == nil {
		return "", fmt.Errorf("%w: nil private key", ErrKeyExport)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrKeyExport, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: blockPrivateKey, Bytes: der})), nil
}

// ImportPrivateKeyPEM parses a PKCS#8 (or PKCS#1) RSA private key.
func ImportPrivateKeyPEM(s string) (*rsa.PrivateKey, error) {
	der, _, err := decodePEM(s)
	if err != nil {
		return nil, err
	}
	if priv, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return priv, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyImport, err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA private key (%T)", ErrKeyImport, parsed)
	}
	return priv, nil
}

// Sign returns the base64 RSA-PKCS1v15 signature over the SHA-256 digest of payload.
func Sign(payload []byte, priv *rsa.PrivateKey) (string, error) {
	if priv == nil {
		return "", fmt.Errorf("%w: nil private key", ErrSigning)
	}
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigning, err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify reports whether signature is a valid Sign output for payload under pub.
// A mismatch returns false with a nil error; only an undecodable signature is an error.
func Verify(payload []byte, signature string, pub *rsa.PublicKey) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrVerificationInput, err)
	}
	if pub == nil {
		return false, fmt.Errorf("%w: nil public key", ErrVerificationInput)
	}
	digest := sha256.Sum256(payload)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil, nil
}

// Fingerprint returns the OpenSSH style SHA256 fingerprint of pub, used to
// show which server key was trusted at installation time.
func Fingerprint(pub *rsa.PublicKey) string {
	if pub == nil {
		return ""
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return ""
	}
	return ssh.FingerprintSHA256(sshPub)
}

// decodePEM strips PEM framing and newlines and returns the DER bytes and block type.
func decodePEM(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", fmt.Errorf("%w: empty input", ErrKeyImport)
	}

	if block, _ := pem.Decode([]byte(s)); block != nil {
		return block.Bytes, block.Type, nil
	}

	// Headerless or single-line PEM, as some API responses escape newlines.
	var b strings.Builder
	for _, line := range strings.Split(strings.ReplaceAll(s, `\n`, "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-----") {
			continue
		}
		b.WriteString(line)
	}
	der, err := base64.StdEncoding.DecodeString(b.String())
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrKeyImport, err)
	}
	kind := blockPublicKey
	if strings.Contains(s, "BEGIN "+blockRSAPublicKey) {
		kind = blockRSAPublicKey
	}
	return der, kind, nil
}
