package session

import (
	"strings"
	"testing"
)

func TestCookieSignRoundtrip(t *testing.T) {
	st := NewStore(nil, nil, "test-secret", 0)
	sess := &Session{id: "abc123"}

	cookie := st.CookieValue(sess)
	if !strings.HasPrefix(cookie, "abc123.") {
		t.Fatalf("cookie should start with the session id, got %q", cookie)
	}

	id, ok := st.verifyCookie(cookie)
	if !ok {
		t.Fatal("expected signed cookie to verify")
	}
	if id != "abc123" {
		t.Errorf("expected id abc123, got %q", id)
	}
}

func TestCookieVerifyRejectsTampering(t *testing.T) {
	st := NewStore(nil, nil, "test-secret", 0)
	other := NewStore(nil, nil, "other-secret", 0)
	cookie := st.CookieValue(&Session{id: "abc123"})

	tests := []struct {
		name   string
		cookie string
	}{
		{"empty", ""},
		{"no separator", "abc123"},
		{"swapped id", "zzz999." + strings.SplitN(cookie, ".", 2)[1]},
		{"wrong key", other.CookieValue(&Session{id: "abc123"})},
		{"truncated sig", cookie[:len(cookie)-2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := st.verifyCookie(tt.cookie); ok {
				t.Errorf("expected cookie %q to be rejected", tt.cookie)
			}
		})
	}
}

func TestSetClientCredentialsInvalidatesDefaultCredential(t *testing.T) {
	sess := &Session{id: "abc123"}
	sess.SetDefaultCredentialID("cred-1")
	if sess.Prefs().DefaultCredentialID != "cred-1" {
		t.Fatal("expected default credential id to be cached")
	}

	sess.SetClientCredentials(" client-a ", " secret-a ")
	prefs := sess.Prefs()
	if prefs.ClientID != "client-a" || prefs.ClientSecret != "secret-a" {
		t.Errorf("expected trimmed credentials, got %q/%q", prefs.ClientID, prefs.ClientSecret)
	}
	if prefs.DefaultCredentialID != "" {
		t.Error("changing client credentials must drop the cached default credential id")
	}
	if prefs.ClientUpdatedAt == "" {
		t.Error("expected ClientUpdatedAt to be set")
	}
	if !sess.Dirty() {
		t.Error("expected session to be dirty after mutation")
	}
}

func TestClearClientCredentials(t *testing.T) {
	sess := &Session{id: "abc123"}
	sess.SetClientCredentials("client-a", "secret-a")
	sess.SetDefaultCredentialID("cred-1")

	sess.ClearClientCredentials()
	prefs := sess.Prefs()
	if prefs.ClientID != "" || prefs.ClientSecret != "" || prefs.DefaultCredentialID != "" {
		t.Errorf("expected cleared preferences, got %+v", prefs)
	}
}

func TestSetDefaultCredentialIDIgnoresEmptyAndUnchanged(t *testing.T) {
	sess := &Session{id: "abc123"}
	sess.SetDefaultCredentialID("   ")
	if sess.Dirty() {
		t.Error("blank credential id must not dirty the session")
	}

	sess.SetDefaultCredentialID("cred-1")
	sess.dirty = false
	sess.SetDefaultCredentialID("cred-1")
	if sess.Dirty() {
		t.Error("unchanged credential id must not dirty the session")
	}
}
