package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"learnhub/pkg/logger"
)

var ErrTokenExpired = stderrors.New("token expired or missing expiry")

// JWTVerifier accepts HS256 tokens signed with the shared secret of the REST
// auth layer and, when a JWKS is configured, RS256 tokens from that key set.
type JWTVerifier struct {
	secret []byte
	jwks   *keyfunc.JWKS
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// NewJWKSVerifier fetches the key set once and keeps refreshing it in the
// background until Close.
func NewJWKSVerifier(jwksURL, secret string) (*JWTVerifier, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Warn("JWKS refresh failed: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("load jwks: %w", err)
	}
	return &JWTVerifier{secret: []byte(secret), jwks: jwks}, nil
}

func (v *JWTVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func (v *JWTVerifier) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.secret) == 0 {
			return nil, stderrors.New("hmac tokens are not accepted")
		}
		return v.secret, nil
	case *jwt.SigningMethodRSA:
		if v.jwks == nil {
			return nil, stderrors.New("rsa tokens are not accepted")
		}
		return v.jwks.Keyfunc(token)
	}
	return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
}

func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "RS256"}))
	if _, err := parser.ParseWithClaims(tokenString, claims, v.keyFunc); err != nil {
		return nil, err
	}
	if !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return nil, ErrTokenExpired
	}

	return &Claims{
		Subject: firstString(claims, "sub", "uid", "user_id"),
		Email:   firstString(claims, "email"),
		Name:    firstString(claims, "username", "name"),
		Role:    firstString(claims, "role"),
	}, nil
}

func firstString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if s, ok := claims[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
