// Package identity verifies bearer identity tokens issued by Google or Firebase.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/idtoken"
)

var (
	ErrMissingCredential = errors.New("missing or malformed Authorization header")
	ErrInvalidCredential = errors.New("invalid or expired identity token")
)

// Identity is the verified caller.
type Identity struct {
	UserID string
	Email  string
}

// Verifier validates an identity token and returns the caller it names.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMissingCredential
	}
	return parts[1], nil
}

var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

type payloadValidator interface {
	Validate(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

// GoogleVerifier validates Google-issued OpenID Connect ID tokens for one OAuth client ID.
// Google's signing keys are fetched and cached by the idtoken package.
type GoogleVerifier struct {
	validator payloadValidator
	audience  string
}

// NewGoogleVerifier creates a verifier accepting tokens whose audience is clientID.
func NewGoogleVerifier(ctx context.Context, clientID string) (*GoogleVerifier, error) {
	v, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("idtoken.NewValidator: %w", err)
	}
	return &GoogleVerifier{validator: v, audience: clientID}, nil
}

func (g *GoogleVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	payload, err := g.validator.Validate(ctx, token, g.audience)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	if !googleIssuers[payload.Issuer] {
		return Identity{}, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidCredential, payload.Issuer)
	}
	if payload.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrInvalidCredential)
	}
	email, _ := payload.Claims["email"].(string)
	return Identity{UserID: payload.Subject, Email: email}, nil
}

type firebaseTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseVerifier validates Firebase Authentication ID tokens.
type FirebaseVerifier struct {
	client firebaseTokenVerifier
}

// NewFirebaseVerifier wraps a Firebase Auth client.
func NewFirebaseVerifier(client *auth.Client) *FirebaseVerifier {
	if client == nil {
		panic("Firebase Auth client is not initialized for FirebaseVerifier")
	}
	return &FirebaseVerifier{client: client}
}

func (f *FirebaseVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	t, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	email, _ := t.Claims["email"].(string)
	return Identity{UserID: t.UID, Email: email}, nil
}
