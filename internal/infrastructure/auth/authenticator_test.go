package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub/internal/adapter/repository"
	"learnhub/internal/domain/entity"
	"learnhub/pkg/errors"
)

const testSecret = "test-secret"

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
}

func newDirectory() *repository.MemoryUserRepository {
	users := repository.NewMemoryUserRepository()
	users.Put(&entity.User{ID: "u1", Username: "alice", DisplayName: "Alice", Role: "student"})
	users.Put(&entity.User{ID: "u2", Username: "bob", Status: entity.UserStatusDisabled})
	return users
}

func TestNormalizeToken(t *testing.T) {
	cases := map[string]string{
		"abc":            "abc",
		"Bearer abc":     "abc",
		"bearer abc":     "abc",
		"BEARER   abc  ": "abc",
		"  abc  ":        "abc",
		"Bearer":         "Bearer",
		"":               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeToken(in), "input %q", in)
	}
}

func TestExtractToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	assert.Equal(t, "from-query", ExtractToken(req))

	req.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", ExtractToken(req))

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.Empty(t, ExtractToken(req))
}

func TestAuthenticateAcceptsBothTokenForms(t *testing.T) {
	a := NewAuthenticator(NewJWTVerifier(testSecret), newDirectory(), time.Second)
	token := signHS256(t, testSecret, validClaims("u1"))

	for _, raw := range []string{token, "Bearer " + token, "bearer " + token} {
		identity, err := a.Authenticate(context.Background(), raw)
		require.NoError(t, err)
		assert.Equal(t, "u1", identity.UserID)
		assert.Equal(t, "alice", identity.Username)
		assert.Equal(t, "student", identity.Role)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	a := NewAuthenticator(NewJWTVerifier(testSecret), newDirectory(), time.Second)

	expired := validClaims("u1")
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	noExpiry := jwt.MapClaims{"sub": "u1"}

	cases := map[string]string{
		"missing":      "",
		"malformed":    "not-a-jwt",
		"bad secret":   signHS256(t, "other-secret", validClaims("u1")),
		"expired":      signHS256(t, testSecret, expired),
		"no expiry":    signHS256(t, testSecret, noExpiry),
		"no subject":   signHS256(t, testSecret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}),
		"unknown user": signHS256(t, testSecret, validClaims("ghost")),
		"disabled":     signHS256(t, testSecret, validClaims("u2")),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			identity, err := a.Authenticate(context.Background(), token)
			assert.Nil(t, identity)
			assert.True(t, errors.Is(err, errors.CodeAuthentication), "got %v", err)
			assert.Equal(t, "authentication failed", errors.As(err).Message)
		})
	}
}

func TestAuthenticateReadsAlternativeSubjectClaims(t *testing.T) {
	a := NewAuthenticator(NewJWTVerifier(testSecret), newDirectory(), time.Second)

	token := signHS256(t, testSecret, jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(time.Hour).Unix()})
	identity, err := a.Authenticate(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, "u1", identity.UserID)
}

func TestAuthenticateProvisionsUnknownSubjects(t *testing.T) {
	users := newDirectory()
	a := NewAuthenticator(NewJWTVerifier(testSecret), users, time.Second).WithProvisioner(users)

	claims := validClaims("new-user")
	claims["email"] = "carol@example.com"
	identity, err := a.Authenticate(context.Background(), signHS256(t, testSecret, claims))
	require.NoError(t, err)
	assert.Equal(t, "carol", identity.Username)

	stored, err := users.GetByID(context.Background(), "new-user")
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", stored.Email)
}

type blockingVerifier struct{}

func (blockingVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAuthenticateTimesOut(t *testing.T) {
	a := NewAuthenticator(blockingVerifier{}, newDirectory(), 50*time.Millisecond)

	start := time.Now()
	_, err := a.Authenticate(context.Background(), "anything")

	assert.True(t, errors.Is(err, errors.CodeAuthentication))
	assert.Less(t, time.Since(start), time.Second)
}

func TestJWKSVerifierAcceptsRS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := fmt.Sprintf(`{"keys":[{"kty":"RSA","kid":"test-key","alg":"RS256","use":"sig","n":%q,"e":%q}]}`,
		base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(jwks))
	}))
	defer srv.Close()

	verifier, err := NewJWKSVerifier(srv.URL, "")
	require.NoError(t, err)
	defer verifier.Close()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims("u1"))
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	claims, err := verifier.Verify(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)

	_, err = verifier.Verify(context.Background(), signHS256(t, testSecret, validClaims("u1")))
	assert.Error(t, err)
}
