package session

import (
	"strings"
	"time"
)

// Preferences is the per-session mutable state: Rollout client credentials,
// consumer-key override, the cached default credential id, and the webhook
// target. One writer per session; never shared across sessions.
type Preferences struct {
	ClientID            string
	ClientSecret        string
	ClientUpdatedAt     string
	ConsumerKey         string
	DefaultCredentialID string
	WebhookTargetURL    string
}

func (p Preferences) HasClientCredentials() bool {
	return strings.TrimSpace(p.ClientID) != "" && strings.TrimSpace(p.ClientSecret) != ""
}

type Session struct {
	id    string
	isNew bool
	dirty bool
	prefs Preferences
}

// New builds a session with known state. The HTTP layer gets its sessions
// from Store.Load; this is for wiring and tests.
func New(id string, prefs Preferences) *Session {
	return &Session{id: id, prefs: prefs}
}

func (s *Session) ID() string { return s.id }

func (s *Session) IsNew() bool { return s.isNew }

func (s *Session) Dirty() bool { return s.dirty }

func (s *Session) Prefs() Preferences { return s.prefs }

// SetClientCredentials stores session-scoped client credentials and drops the
// cached default credential id: a different client may see different
// connected accounts.
func (s *Session) SetClientCredentials(clientID, clientSecret string) {
	s.prefs.ClientID = strings.TrimSpace(clientID)
	s.prefs.ClientSecret = strings.TrimSpace(clientSecret)
	s.prefs.ClientUpdatedAt = time.Now().UTC().Format(time.RFC3339)
	s.prefs.DefaultCredentialID = ""
	s.dirty = true
}

func (s *Session) ClearClientCredentials() {
	s.prefs.ClientID = ""
	s.prefs.ClientSecret = ""
	s.prefs.ClientUpdatedAt = ""
	s.prefs.DefaultCredentialID = ""
	s.dirty = true
}

// SetConsumerKey stores a consumer-key override; empty clears it.
func (s *Session) SetConsumerKey(key string) {
	s.prefs.ConsumerKey = strings.TrimSpace(key)
	s.dirty = true
}

func (s *Session) SetDefaultCredentialID(id string) {
	id = strings.TrimSpace(id)
	if id == "" || id == s.prefs.DefaultCredentialID {
		return
	}
	s.prefs.DefaultCredentialID = id
	s.dirty = true
}

func (s *Session) SetWebhookTarget(url string) {
	s.prefs.WebhookTargetURL = strings.TrimSpace(url)
	s.dirty = true
}
