package rollout

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"crm-insights/internal/session"
)

// ClientCredentials is a Rollout client id/secret pair, either stored on the
// session or falling back to the environment defaults.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	UpdatedAt    string
}

type Auth struct {
	defaultClientID     string
	defaultClientSecret string
	defaultConsumerKey  string
	tokenTTL            time.Duration
}

func NewAuth(defaultClientID, defaultClientSecret, defaultConsumerKey string, tokenTTL time.Duration) *Auth {
	return &Auth{
		defaultClientID:     strings.TrimSpace(defaultClientID),
		defaultClientSecret: strings.TrimSpace(defaultClientSecret),
		defaultConsumerKey:  strings.TrimSpace(defaultConsumerKey),
		tokenTTL:            tokenTTL,
	}
}

func (a *Auth) DefaultClientID() string { return a.defaultClientID }

func (a *Auth) HasEnvironmentCredentials() bool {
	return a.defaultClientID != "" && a.defaultClientSecret != ""
}

// SessionClientCredentials returns the session-stored pair, or nil when the
// session has none (or an incomplete one).
func (a *Auth) SessionClientCredentials(prefs session.Preferences) *ClientCredentials {
	if !prefs.HasClientCredentials() {
		return nil
	}
	return &ClientCredentials{
		ClientID:     strings.TrimSpace(prefs.ClientID),
		ClientSecret: strings.TrimSpace(prefs.ClientSecret),
		UpdatedAt:    prefs.ClientUpdatedAt,
	}
}

// EffectiveClientCredentials prefers session credentials over the
// environment defaults; nil when neither is configured.
func (a *Auth) EffectiveClientCredentials(prefs session.Preferences) *ClientCredentials {
	if creds := a.SessionClientCredentials(prefs); creds != nil {
		return creds
	}
	if a.HasEnvironmentCredentials() {
		return &ClientCredentials{ClientID: a.defaultClientID, ClientSecret: a.defaultClientSecret}
	}
	return nil
}

func (a *Auth) RequireClientCredentials(prefs session.Preferences) (*ClientCredentials, error) {
	creds := a.EffectiveClientCredentials(prefs)
	if creds == nil {
		return nil, ErrClientCredentialsNotConfigured
	}
	return creds, nil
}

// ResolveConsumerKey picks the tenant key: explicit override, then the
// session preference, then the configured default.
func (a *Auth) ResolveConsumerKey(prefs session.Preferences, override string) string {
	if v := strings.TrimSpace(override); v != "" {
		return v
	}
	if v := strings.TrimSpace(prefs.ConsumerKey); v != "" {
		return v
	}
	return a.defaultConsumerKey
}

// MintToken signs a short-lived HS512 bearer token for the given consumer
// key: iss = client id, sub = consumer key. Returns the token and its expiry
// as unix seconds.
func (a *Auth) MintToken(prefs session.Preferences, consumerKey string) (string, int64, error) {
	if strings.TrimSpace(consumerKey) == "" {
		return "", 0, errors.New("missing consumer key")
	}
	creds, err := a.RequireClientCredentials(prefs)
	if err != nil {
		return "", 0, err
	}

	now := time.Now().Unix()
	exp := now + int64(a.tokenTTL/time.Second)
	claims := jwt.MapClaims{
		"iss": creds.ClientID,
		"sub": consumerKey,
		"iat": now,
		"exp": exp,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(creds.ClientSecret))
	if err != nil {
		return "", 0, err
	}
	return token, exp, nil
}
