package service

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
)

// ExternalIdentity is the subset of a verified third-party ID token the
// external login flow relies on.
type ExternalIdentity struct {
	Email   string
	Name    string
	Picture string
}

// IdentityVerifier checks a third-party ID token.
type IdentityVerifier interface {
	VerifyIDToken(ctx context.Context, token string) (ExternalIdentity, error)
}

// FirebaseVerifier verifies Firebase Authentication ID tokens.
type FirebaseVerifier struct{ client *auth.Client }

// NewFirebaseVerifier initialises the Firebase app for projectID using
// application default credentials.
func NewFirebaseVerifier(ctx context.Context, projectID string) (*FirebaseVerifier, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, token string) (ExternalIdentity, error) {
	t, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return ExternalIdentity{}, err
	}
	claim := func(k string) string {
		s, _ := t.Claims[k].(string)
		return s
	}
	return ExternalIdentity{Email: claim("email"), Name: claim("name"), Picture: claim("picture")}, nil
}
