package main

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub/internal/adapter/repository"
	"learnhub/internal/infrastructure/auth"
	"learnhub/pkg/config"
	"learnhub/pkg/errors"
)

func TestMemoryProvisionerIsOptIn(t *testing.T) {
	cfg := &config.Config{JWTSecret: "main-test-secret"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "stranger",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)

	authenticate := func() error {
		users := repository.NewMemoryUserRepository()
		verifier, err := newJWTVerifier(cfg)
		require.NoError(t, err)
		a := auth.NewAuthenticator(verifier, users, time.Second)
		if p := memoryProvisioner(cfg, users); p != nil {
			a.WithProvisioner(p)
		}
		_, err = a.Authenticate(context.Background(), token)
		return err
	}

	err = authenticate()
	assert.True(t, errors.Is(err, errors.CodeAuthentication))

	cfg.AuthAutoProvision = true
	assert.NoError(t, authenticate())
}
