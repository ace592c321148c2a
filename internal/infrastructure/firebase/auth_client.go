package firebase

import (
	"context"

	fbauth "firebase.google.com/go/v4/auth"

	"learnhub/internal/infrastructure/auth"
)

// FirebaseAuthClient verifies Firebase ID tokens for the chat authenticator.
type FirebaseAuthClient struct {
	client *fbauth.Client
}

func NewFirebaseAuthClient(client *fbauth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

func (f *FirebaseAuthClient) Verify(ctx context.Context, token string) (*auth.Claims, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, err
	}

	claims := &auth.Claims{Subject: result.UID}
	if email, ok := result.Claims["email"].(string); ok {
		claims.Email = email
	}
	if name, ok := result.Claims["name"].(string); ok {
		claims.Name = name
	}
	if role, ok := result.Claims["role"].(string); ok {
		claims.Role = role
	}
	return claims, nil
}
