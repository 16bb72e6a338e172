package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"
)

func generateTestKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der := x509.MarshalPKCS1PrivateKey(key)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}

	dir := t.TempDir()
	path := filepath.Join(dir, "private.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

	return key, path
}

func encryptClaims(t *testing.T, pub *rsa.PublicKey, claims Claims) string {
	t.Helper()

	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	encrypter, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.RSA_OAEP_256, Key: pub},
		nil,
	)
	require.NoError(t, err)

	obj, err := encrypter.Encrypt(payload)
	require.NoError(t, err)

	serialized, err := obj.CompactSerialize()
	require.NoError(t, err)
	return serialized
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	t.Parallel()

	key, path := generateTestKeyPair(t)
	v, err := NewVerifier(path)
	require.NoError(t, err)

	now := time.Now().UTC()
	token := encryptClaims(t, &key.PublicKey, Claims{
		Subject: "P1",
		ID:      "P1",
		Expiry:  now.Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "P1", claims.ParticipantIdentifier())
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	key, path := generateTestKeyPair(t)
	v, err := NewVerifier(path)
	require.NoError(t, err)

	now := time.Now().UTC()
	token := encryptClaims(t, &key.PublicKey, Claims{
		ID:     "P1",
		Expiry: now.Add(-time.Second).Unix(),
	})

	_, err = v.Verify(token)
	require.Error(t, err)

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, KindExpired, verr.Kind)
	require.Equal(t, "This token is already expired", verr.Details)
}

func TestVerifyRejectsNotYetValidToken(t *testing.T) {
	t.Parallel()

	key, path := generateTestKeyPair(t)
	v, err := NewVerifier(path)
	require.NoError(t, err)

	now := time.Now().UTC()
	token := encryptClaims(t, &key.PublicKey, Claims{
		ID:        "P1",
		Expiry:    now.Add(time.Hour).Unix(),
		NotBefore: now.Add(time.Hour).Unix(),
	})

	_, err = v.Verify(token)
	require.Error(t, err)

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, KindNotYetValid, verr.Kind)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	t.Parallel()

	_, path := generateTestKeyPair(t)
	v, err := NewVerifier(path)
	require.NoError(t, err)

	_, err = v.Verify("not-a-jwe-token")
	require.Error(t, err)

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, KindMalformed, verr.Kind)
}

func TestVerifyRejectsTokenEncryptedWithDifferentKey(t *testing.T) {
	t.Parallel()

	otherKey, _ := generateTestKeyPair(t)
	_, path := generateTestKeyPair(t)
	v, err := NewVerifier(path)
	require.NoError(t, err)

	token := encryptClaims(t, &otherKey.PublicKey, Claims{ID: "P1", Expiry: time.Now().Add(time.Hour).Unix()})

	_, err = v.Verify(token)
	require.Error(t, err)

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, KindDecryption, verr.Kind)
}
