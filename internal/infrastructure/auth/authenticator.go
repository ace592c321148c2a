package auth

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"learnhub/internal/domain/entity"
	"learnhub/internal/domain/repository"
	"learnhub/pkg/errors"
	"learnhub/pkg/logger"
)

var (
	ErrMissingToken    = stderrors.New("missing token")
	ErrMissingSubject  = stderrors.New("token has no subject")
	ErrAccountDisabled = stderrors.New("account disabled")
)

// Identity is the authenticated user bound to a connection or request.
type Identity struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Role        string `json:"role,omitempty"`
}

func (i *Identity) IsAdmin() bool {
	return i.Role == entity.RoleAdmin
}

// Claims is what a verifier extracts from a valid token.
type Claims struct {
	Subject string
	Email   string
	Name    string
	Role    string
}

// TokenVerifier checks a bare token (no scheme) and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// AccountProvisioner creates directory entries for verified subjects that
// have none yet. Only wired for the in-memory directory.
type AccountProvisioner interface {
	Put(user *entity.User)
}

type Authenticator struct {
	verifier    TokenVerifier
	users       repository.UserRepository
	timeout     time.Duration
	provisioner AccountProvisioner
}

func NewAuthenticator(verifier TokenVerifier, users repository.UserRepository, timeout time.Duration) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		users:    users,
		timeout:  timeout,
	}
}

func (a *Authenticator) WithProvisioner(p AccountProvisioner) *Authenticator {
	a.provisioner = p
	return a
}

func (a *Authenticator) Timeout() time.Duration {
	return a.timeout
}

// Authenticate verifies raw (a bare token or "Bearer <token>") and resolves
// the account. Every failure is reported as AUTHENTICATION_ERROR.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*Identity, error) {
	token := NormalizeToken(raw)
	if token == "" {
		return nil, errors.Authentication(ErrMissingToken)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		logger.Debug("Token verification failed: %v", err)
		return nil, errors.Authentication(err)
	}
	if claims.Subject == "" {
		return nil, errors.Authentication(ErrMissingSubject)
	}

	user, err := a.users.GetByID(ctx, claims.Subject)
	if errors.Is(err, errors.CodeNotFound) && a.provisioner != nil {
		user = provisionedUser(claims)
		a.provisioner.Put(user)
		err = nil
	}
	if err != nil {
		if !errors.Is(err, errors.CodeNotFound) {
			logger.Error("Account lookup failed for %s: %v", claims.Subject, err)
		}
		return nil, errors.Authentication(err)
	}
	if user.IsDisabled() {
		return nil, errors.Authentication(ErrAccountDisabled)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Authentication(err)
	}

	return identityFor(user), nil
}

func identityFor(user *entity.User) *Identity {
	username := user.Username
	if username == "" {
		username = user.DisplayName
	}
	return &Identity{
		UserID:      user.ID,
		Username:    username,
		DisplayName: user.DisplayName,
		AvatarURL:   user.AvatarURL,
		Role:        user.Role,
	}
}

func provisionedUser(claims *Claims) *entity.User {
	name := claims.Name
	if name == "" {
		name = strings.Split(claims.Email, "@")[0]
	}
	if name == "" {
		name = claims.Subject
	}
	now := time.Now()
	return &entity.User{
		ID:        claims.Subject,
		Email:     claims.Email,
		Username:  name,
		Role:      claims.Role,
		Status:    entity.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NormalizeToken strips an optional, case-insensitive "Bearer " scheme.
func NormalizeToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	return raw
}

// ExtractToken returns the credential presented on an HTTP request: the
// Authorization header first, then the token query parameter.
func ExtractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.TrimSpace(header) != "" {
		return NormalizeToken(header)
	}
	return NormalizeToken(r.URL.Query().Get("token"))
}
