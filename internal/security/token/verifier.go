// Package token implements [4.2 Token Verifier]: loading one RSA private
// key at process start and decrypting encrypted bearer tokens into Claims.
package token

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// Kind enumerates why a token failed verification.
type Kind int

const (
	KindNone Kind = iota
	KindMalformed
	KindDecryption
	KindExpired
	KindNotYetValid
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "Malformed"
	case KindDecryption:
		return "Decryption"
	case KindExpired:
		return "Expired"
	case KindNotYetValid:
		return "NotYetValid"
	default:
		return "None"
	}
}

// VerificationError reports why Verify rejected a token, carrying both the
// machine-readable Kind and a human-readable detail suitable for an
// IDENTITY_REJECTION Failure payload.
type VerificationError struct {
	Kind    Kind
	Details string
}

func (e *VerificationError) Error() string { return e.Details }

// allowedKeyAlgorithms and allowedContentEncryption bound which JWE
// algorithms this node will decrypt, per go-jose/v4's explicit-allowlist API.
var (
	allowedKeyAlgorithms     = []jose.KeyAlgorithm{jose.RSA_OAEP, jose.RSA_OAEP_256, jose.RSA1_5}
	allowedContentEncryption = []jose.ContentEncryption{jose.A256GCM, jose.A128GCM}
)

// Verifier decrypts encrypted bearer tokens and validates their claims. The
// private key is loaded once at construction and is immutable read-only
// state shared across every connection (§5 Shared resources).
type Verifier struct {
	privateKey *rsa.PrivateKey
}

// NewVerifier loads an RSA private key from a PEM file at keyPath. The key
// may be PKCS#1 or PKCS#8 encoded.
func NewVerifier(keyPath string) (*Verifier, error) {
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("token: reading private key %q: %w", keyPath, err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("token: %q contains no PEM block", keyPath)
	}

	key, err := parseRSAPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("token: parsing private key %q: %w", keyPath, err)
	}

	return &Verifier{privateKey: key}, nil
}

func parseRSAPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return rsaKey, nil
}

// Verify decrypts an encrypted bearer token (compact or JSON serialization)
// and validates its claims. It returns a *VerificationError on any failure;
// callers use err.(*VerificationError).Details as the IDENTITY_REJECTION
// detail string.
func (v *Verifier) Verify(encryptedToken string) (Claims, error) {
	jwe, err := jose.ParseEncrypted(encryptedToken, allowedKeyAlgorithms, allowedContentEncryption)
	if err != nil {
		return Claims{}, &VerificationError{Kind: KindMalformed, Details: "Claim was invalid"}
	}

	plaintext, err := jwe.Decrypt(v.privateKey)
	if err != nil {
		return Claims{}, &VerificationError{Kind: KindDecryption, Details: "Claim was invalid"}
	}

	var claims Claims
	if err := json.Unmarshal(plaintext, &claims); err != nil {
		return Claims{}, &VerificationError{Kind: KindMalformed, Details: "Claim was invalid"}
	}

	if verr := verifyClaim(claims); verr != nil {
		return Claims{}, verr
	}
	return claims, nil
}

// verifyClaim mirrors the original's verify_claim: a token whose expiry has
// passed is expired; this core additionally rejects a token that is not yet
// valid (nbf in the future), which the source did not check.
func verifyClaim(claims Claims) *VerificationError {
	now := time.Now().UTC()

	if claims.Expiry != 0 && !claims.ExpiresAt().After(now) {
		return &VerificationError{Kind: KindExpired, Details: "This token is already expired"}
	}
	if claims.NotBefore != 0 && claims.EffectiveFrom().After(now) {
		return &VerificationError{Kind: KindNotYetValid, Details: "This token is not yet valid"}
	}
	return nil
}
