package crm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"crm-insights/internal/rollout"
	"crm-insights/internal/session"
)

// Webhook is a platform webhook subscription.
type Webhook struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status,omitempty"`
}

// ListWebhooks returns the webhook subscriptions registered for the
// session's consumer.
func (s *Service) ListWebhooks(ctx context.Context, prefs session.Preferences) ([]Webhook, error) {
	data, err := s.api.Call(ctx, prefs, rollout.CallOptions{
		BaseURL: s.platformBase,
		Path:    "/webhooks",
	})
	if err != nil {
		return nil, err
	}

	hooks := []Webhook{}
	for _, raw := range rollout.ExtractItems(data) {
		item, ok := asItem(raw)
		if !ok {
			continue
		}
		id := normalizeID(item["id"])
		if id == "" {
			continue
		}
		hooks = append(hooks, Webhook{
			ID:     id,
			URL:    stringField(item, "url"),
			Status: stringField(item, "status"),
		})
	}
	return hooks, nil
}

// CreateWebhook registers a webhook subscription pointing at targetURL for
// the given event names.
func (s *Service) CreateWebhook(ctx context.Context, prefs session.Preferences, targetURL string, events []string) (*Webhook, error) {
	targetURL = strings.TrimSpace(targetURL)

	body := map[string]any{"url": targetURL}
	if len(events) > 0 {
		body["events"] = events
	}
	data, err := s.api.Call(ctx, prefs, rollout.CallOptions{
		BaseURL: s.platformBase,
		Path:    "/webhooks",
		Method:  http.MethodPost,
		Body:    body,
	})
	if err != nil {
		return nil, err
	}

	hook := &Webhook{URL: targetURL}
	if item, ok := asItem(data); ok {
		if id := normalizeID(item["id"]); id != "" {
			hook.ID = id
		}
		if u := stringField(item, "url"); u != "" {
			hook.URL = u
		}
		hook.Status = stringField(item, "status")
	}
	return hook, nil
}

// DeleteWebhook removes a webhook subscription. A 404 means it is already
// gone and is not an error.
func (s *Service) DeleteWebhook(ctx context.Context, prefs session.Preferences, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	_, err := s.api.Call(ctx, prefs, rollout.CallOptions{
		BaseURL: s.platformBase,
		Path:    "/webhooks/" + url.PathEscape(id),
		Method:  http.MethodDelete,
	})
	if err != nil && rollout.StatusOf(err) != http.StatusNotFound {
		return err
	}
	return nil
}
