package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/calendar/v3"
)

const (
	// DefaultTokenURL is the OAuth token endpoint for the JWT-bearer exchange.
	DefaultTokenURL = "https://www.googleapis.com/oauth2/v3/token"

	// assertionLifetime bounds a run; the token is never refreshed.
	assertionLifetime = 10 * time.Minute
)

// Credential identifies a service account.
type Credential struct {
	Email        string
	PrivateKey   string // PEM encoded RSA key
	PrivateKeyID string
	TokenURL     string // Defaults to DefaultTokenURL
}

// AuthError is returned when an access token could not be obtained.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// CredentialFromJSON reads a service account key file as downloaded from the cloud console.
func CredentialFromJSON(data []byte) (Credential, error) {
	conf, err := google.JWTConfigFromJSON(data, calendar.CalendarEventsScope)
	if err != nil {
		return Credential{}, &AuthError{Op: "parse credentials", Err: err}
	}
	return Credential{
		Email:        conf.Email,
		PrivateKey:   string(conf.PrivateKey),
		PrivateKeyID: conf.PrivateKeyID,
	}, nil
}

// GetAccessToken exchanges a signed RS256 assertion for a bearer token
// allowed to write calendar events.
//
// The HTTP client used for the exchange can be overridden by storing one
// in ctx under oauth2.HTTPClient.
func GetAccessToken(ctx context.Context, cred Credential) (string, error) {
	if cred.Email == "" || cred.PrivateKey == "" {
		return "", &AuthError{Op: "validate credential", Err: errors.New("email and private key are required")}
	}

	tokenURL := cred.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	conf := &jwt.Config{
		Email:        cred.Email,
		PrivateKey:   []byte(cred.PrivateKey),
		PrivateKeyID: cred.PrivateKeyID,
		Scopes:       []string{calendar.CalendarEventsScope},
		TokenURL:     tokenURL,
		Expires:      assertionLifetime,
	}

	token, err := conf.TokenSource(ctx).Token()
	if err != nil {
		return "", &AuthError{Op: "exchange assertion", Err: err}
	}
	if token.AccessToken == "" {
		return "", &AuthError{Op: "exchange assertion", Err: errors.New("token response has no access_token")}
	}
	return token.AccessToken, nil
}
