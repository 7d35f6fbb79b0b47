package keys

import (
	"crypto/rsa"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKeysOnce sync.Once
	testKeyA     *rsa.PrivateKey
	testKeyB     *rsa.PrivateKey
)

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	testKeysOnce.Do(func() {
		var err error
		if testKeyA, err = Generate(); err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if testKeyB, err = Generate(); err != nil {
			t.Fatalf("Generate: %v", err)
		}
	})
	return testKeyA, testKeyB
}

func TestGenerate_Size(t *testing.T) {
	priv, _ := testKeys(t)
	assert.Equal(t, Bits, priv.N.BitLen())
}

func TestExportPublicKeyPEM_Framing(t *testing.T) {
	priv, _ := testKeys(t)

	out, err := ExportPublicKeyPEM(&priv.PublicKey)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "-----BEGIN PUBLIC KEY-----\n"))
	assert.True(t, strings.HasSuffix(out, "-----END PUBLIC KEY-----\n"))
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		assert.LessOrEqual(t, len(line), 64, "line %q exceeds 64 columns", line)
	}
}

func TestPublicKeyPEM_RoundTrip(t *testing.T) {
	priv, _ := testKeys(t)

	out, err := ExportPublicKeyPEM(&priv.PublicKey)
	require.NoError(t, err)

	pub, err := ImportPublicKeyPEM(out)
	require.NoError(t, err)
	assert.True(t, pub.Equal(&priv.PublicKey))

	payload := []byte(`{"secret":"abc"}`)
	sig, err := Sign(payload, priv)
	require.NoError(t, err)
	ok, err := Verify(payload, sig, pub)
	require.NoError(t, err)
	assert.True(t, ok, "imported key should verify signatures of the original")
}

func TestImportPublicKeyPEM_Headerless(t *testing.T) {
	priv, _ := testKeys(t)
	out, err := ExportPublicKeyPEM(&priv.PublicKey)
	require.NoError(t, err)

	var body []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "-----") {
			continue
		}
		body = append(body, line)
	}

	pub, err := ImportPublicKeyPEM(strings.Join(body, ""))
	require.NoError(t, err)
	assert.True(t, pub.Equal(&priv.PublicKey))
}

func TestImportPublicKeyPEM_Malformed(t *testing.T) {
	for _, in := range []string{
		"",
		"-----BEGIN PUBLIC KEY-----\n!!!not base64!!!\n-----END PUBLIC KEY-----",
		"aGVsbG8gd29ybGQ=",
	} {
		_, err := ImportPublicKeyPEM(in)
		require.Error(t, err, "input %q", in)
		assert.ErrorIs(t, err, ErrKeyImport)
		assert.ErrorIs(t, err, ErrCrypto)
	}
}

func TestPrivateKeyPEM_RoundTrip(t *testing.T) {
	priv, _ := testKeys(t)

	out, err := ExportPrivateKeyPEM(priv)
	require.NoError(t, err)
	assert.Contains(t, out, "BEGIN PRIVATE KEY")

	back, err := ImportPrivateKeyPEM(out)
	require.NoError(t, err)
	assert.True(t, back.Equal(priv))
}

func TestSignVerify(t *testing.T) {
	privA, privB := testKeys(t)
	payload := []byte("hello bunq")

	sig, err := Sign(payload, privA)
	require.NoError(t, err)

	ok, err := Verify(payload, sig, &privA.PublicKey)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(payload, sig, &privB.PublicKey)
	require.NoError(t, err)
	assert.False(t, ok, "unrelated key must not verify")

	ok, err = Verify([]byte("hello bunq!"), sig, &privA.PublicKey)
	require.NoError(t, err)
	assert.False(t, ok, "tampered payload must not verify")
}

func TestVerify_MalformedSignature(t *testing.T) {
	privA, _ := testKeys(t)

	ok, err := Verify([]byte("x"), "%%%", &privA.PublicKey)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrVerificationInput)
}

func TestSign_NilKey(t *testing.T) {
	_, err := Sign([]byte("x"), nil)
	assert.ErrorIs(t, err, ErrSigning)
}

func TestFingerprint(t *testing.T) {
	privA, privB := testKeys(t)

	fa := Fingerprint(&privA.PublicKey)
	assert.True(t, strings.HasPrefix(fa, "SHA256:"))
	assert.Equal(t, fa, Fingerprint(&privA.PublicKey))
	assert.NotEqual(t, fa, Fingerprint(&privB.PublicKey))
	assert.Empty(t, Fingerprint(nil))
}
