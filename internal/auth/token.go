// Package auth supplies bearer tokens and the current user's identity.
// Tokens are issued and refreshed by an external identity provider; this
// package only reads them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned when no bearer token is configured.
var ErrNoToken = errors.New("auth: no bearer token configured")

// DefaultDisplayName is shown for messages sent by the current user.
const DefaultDisplayName = "You"

// TokenSource returns the bearer token to attach to a request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(_ context.Context) (string, error) {
	tok := strings.TrimSpace(string(s))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// FileToken reads the token from a file on every call so an external
// refresher can rotate it in place.
type FileToken struct {
	Path string
}

// Token implements TokenSource.
func (f FileToken) Token(_ context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	return StaticToken(data).Token(context.Background())
}

// Identity is the signed-in user.
type Identity struct {
	ID   string
	Name string
}

// IdentityFromToken extracts the subject claim without verifying the
// signature. The server verifies tokens; the client only needs the user id to
// attribute its own messages.
func IdentityFromToken(token string) (Identity, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return Identity{}, errors.New("parse token: missing sub claim")
	}
	return Identity{ID: claims.Subject, Name: DefaultDisplayName}, nil
}

// ResolveIdentity picks the configured user id when set, falling back to the
// token's subject. name overrides the default display name.
func ResolveIdentity(ctx context.Context, src TokenSource, userID, name string) (Identity, error) {
	id := Identity{ID: userID, Name: name}
	if id.ID == "" {
		tok, err := src.Token(ctx)
		if err != nil {
			return Identity{}, err
		}
		fromTok, err := IdentityFromToken(tok)
		if err != nil {
			return Identity{}, err
		}
		id.ID = fromTok.ID
	}
	if id.Name == "" {
		id.Name = DefaultDisplayName
	}
	return id, nil
}
