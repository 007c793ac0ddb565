package crm

import (
	"context"
	"net/http"
	"strings"

	"crm-insights/internal/rollout"
	"crm-insights/internal/session"
)

// Credential is one connected third-party account reachable through Rollout.
type Credential struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	AppKey      string `json:"appKey"`
	AccountName string `json:"accountName"`
}

// ListCredentials fetches the connected accounts for the resolved consumer
// key and maps them into display entries.
func (s *Service) ListCredentials(ctx context.Context, prefs session.Preferences, consumerKeyOverride string) ([]Credential, error) {
	data, err := s.api.Call(ctx, prefs, rollout.CallOptions{
		BaseURL:      s.platformBase,
		Path:         "/credentials",
		SearchParams: map[string]string{"includeProfile": "true", "includeData": "true"},
		ConsumerKey:  consumerKeyOverride,
	})
	if err != nil {
		return nil, err
	}

	credentials := make([]Credential, 0)
	for _, raw := range rollout.ExtractItems(data) {
		item, ok := asItem(raw)
		if !ok {
			continue
		}
		id := stringField(item, "id")
		if id == "" {
			continue
		}
		appKey, _ := item["appKey"].(string)
		accountName := ""
		if profile, ok := item["profile"].(map[string]any); ok {
			accountName, _ = profile["accountName"].(string)
		}
		label := accountName
		if label == "" {
			label = appKey
		}
		if label == "" {
			label = id
		}
		credentials = append(credentials, Credential{ID: id, Label: label, AppKey: appKey, AccountName: accountName})
	}
	return credentials, nil
}

// ResolveDefaultCredentialID decides which connected account a request should
// use. An explicit id is cached and returned without an upstream call; a
// session-cached id is returned as-is; otherwise the first listed credential
// with a usable id is cached. "" with a nil error means no credential exists.
func (s *Service) ResolveDefaultCredentialID(ctx context.Context, sess *session.Session, explicitID string) (string, error) {
	if v := strings.TrimSpace(explicitID); v != "" {
		sess.SetDefaultCredentialID(v)
		return v, nil
	}
	if cached := sess.Prefs().DefaultCredentialID; cached != "" {
		return cached, nil
	}

	data, err := s.api.Call(ctx, sess.Prefs(), rollout.CallOptions{
		BaseURL:      s.platformBase,
		Path:         "/credentials",
		SearchParams: map[string]string{"includeProfile": "true", "includeData": "true"},
	})
	if err != nil {
		// a tenant with no connected accounts yet responds 404 here; that is
		// "nothing connected", not a failure
		if rollout.StatusOf(err) == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}

	for _, raw := range rollout.ExtractItems(data) {
		item, ok := asItem(raw)
		if !ok {
			continue
		}
		if id := stringField(item, "id"); id != "" {
			sess.SetDefaultCredentialID(id)
			return id, nil
		}
	}
	return "", nil
}
