package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"crm-insights/internal/redis"
	"crm-insights/internal/security"
)

const CookieName = "rollout_sid"

// storedPrefs is the Redis representation; the client secret only appears
// AES-GCM encrypted.
type storedPrefs struct {
	ClientID            string `json:"clientId,omitempty"`
	ClientSecretEnc     string `json:"clientSecretEnc,omitempty"`
	ClientUpdatedAt     string `json:"clientUpdatedAt,omitempty"`
	ConsumerKey         string `json:"consumerKey,omitempty"`
	DefaultCredentialID string `json:"defaultCredentialId,omitempty"`
	WebhookTargetURL    string `json:"webhookTargetUrl,omitempty"`
}

type Store struct {
	log   *slog.Logger
	redis *redis.Client
	key   []byte // derived once from the session secret
	ttl   time.Duration
}

func NewStore(log *slog.Logger, redisClient *redis.Client, secret string, ttl time.Duration) *Store {
	key := sha256.Sum256([]byte(secret))
	return &Store{
		log:   log,
		redis: redisClient,
		key:   key[:],
		ttl:   ttl,
	}
}

func (st *Store) MaxAgeSeconds() int {
	return int(st.ttl / time.Second)
}

// Load resolves a session from a signed cookie value. A missing, malformed or
// tampered cookie yields a fresh session rather than an error.
func (st *Store) Load(ctx context.Context, cookie string) *Session {
	id, ok := st.verifyCookie(cookie)
	if !ok {
		return &Session{id: newSessionID(), isNew: true}
	}

	raw, err := st.redis.Get(ctx, redisKey(id))
	if err != nil || raw == "" {
		// expired or evicted; keep the id so the cookie stays stable
		return &Session{id: id}
	}

	var stored storedPrefs
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		st.log.Warn("session_decode_failed", "session_id", id, "error", err)
		return &Session{id: id}
	}

	prefs := Preferences{
		ClientID:            stored.ClientID,
		ClientUpdatedAt:     stored.ClientUpdatedAt,
		ConsumerKey:         stored.ConsumerKey,
		DefaultCredentialID: stored.DefaultCredentialID,
		WebhookTargetURL:    stored.WebhookTargetURL,
	}
	if stored.ClientSecretEnc != "" {
		secret, err := security.DecryptSecret(stored.ClientSecretEnc, st.key)
		if err != nil {
			st.log.Warn("session_secret_decrypt_failed", "session_id", id, "error", err)
		} else {
			prefs.ClientSecret = secret
		}
	}

	return &Session{id: id, prefs: prefs}
}

func (st *Store) Save(ctx context.Context, sess *Session) error {
	stored := storedPrefs{
		ClientID:            sess.prefs.ClientID,
		ClientUpdatedAt:     sess.prefs.ClientUpdatedAt,
		ConsumerKey:         sess.prefs.ConsumerKey,
		DefaultCredentialID: sess.prefs.DefaultCredentialID,
		WebhookTargetURL:    sess.prefs.WebhookTargetURL,
	}
	if sess.prefs.ClientSecret != "" {
		enc, err := security.EncryptSecret(sess.prefs.ClientSecret, st.key)
		if err != nil {
			return fmt.Errorf("session_secret_encrypt_failed: %w", err)
		}
		stored.ClientSecretEnc = enc
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("session_encode_failed: %w", err)
	}
	if err := st.redis.Set(ctx, redisKey(sess.id), string(raw), st.ttl); err != nil {
		return fmt.Errorf("session_store_failed: %w", err)
	}
	sess.dirty = false
	return nil
}

// CookieValue returns the signed cookie payload "<id>.<hmac>".
func (st *Store) CookieValue(sess *Session) string {
	return sess.id + "." + st.sign(sess.id)
}

func (st *Store) sign(id string) string {
	mac := hmac.New(sha256.New, st.key)
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))
}

func (st *Store) verifyCookie(cookie string) (string, bool) {
	cookie = strings.TrimSpace(cookie)
	if cookie == "" {
		return "", false
	}
	id, sig, found := strings.Cut(cookie, ".")
	if !found || id == "" || sig == "" {
		return "", false
	}
	expected := st.sign(id)
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return "", false
	}
	return id, true
}

func redisKey(id string) string {
	return "session:" + id
}

func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is not survivable for session identity
		panic(err)
	}
	return hex.EncodeToString(buf)
}
