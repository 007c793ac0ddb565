package crm

import (
	"context"
	"strconv"
	"strings"

	"crm-insights/internal/rollout"
	"crm-insights/internal/session"
)

// ListPeople returns up to limit people as picker options, deduplicated by
// id. limit is clamped to 1..100 and defaults to 20.
func (s *Service) ListPeople(ctx context.Context, prefs session.Preferences, credentialID string, limit int) ([]Option, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	seen := map[string]bool{}
	options := []Option{}
	cursor := ""
	for iterations := 0; iterations < s.maxPageRequests && len(options) < limit; iterations++ {
		searchParams := map[string]string{"limit": strconv.Itoa(limit)}
		if cursor != "" {
			searchParams["next"] = cursor
		}

		data, err := s.api.Call(ctx, prefs, rollout.CallOptions{
			BaseURL:      s.crmBase,
			Path:         "/people",
			SearchParams: searchParams,
			CredentialID: credentialID,
		})
		if err != nil {
			return nil, err
		}

		for _, raw := range itemsFromResponse(data, "people") {
			person, ok := asItem(raw)
			if !ok {
				continue
			}
			id := normalizeID(person["id"])
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			options = append(options, Option{ID: id, Label: personLabel(person, id)})
			if len(options) >= limit {
				break
			}
		}

		cursor = nextCursor(data)
		if cursor == "" {
			break
		}
	}
	return options, nil
}

func personLabel(person Item, id string) string {
	name := strings.TrimSpace(strings.TrimSpace(stringField(person, "firstName")) + " " + strings.TrimSpace(stringField(person, "lastName")))
	if name != "" {
		return name
	}
	if email := primaryEmail(person); email != "" {
		return email
	}
	return id
}

// primaryEmail prefers the entry flagged isPrimary, falling back to the
// first address present.
func primaryEmail(person Item) string {
	emails, _ := person["emails"].([]any)
	first := ""
	for _, raw := range emails {
		entry, ok := asItem(raw)
		if !ok {
			continue
		}
		value := strings.TrimSpace(stringField(entry, "value"))
		if value == "" {
			continue
		}
		if primary, _ := entry["isPrimary"].(bool); primary {
			return value
		}
		if first == "" {
			first = value
		}
	}
	return first
}

// ListUsers returns up to limit CRM users as picker options, deduplicated
// by id. limit is clamped to 1..500 and defaults to 100; pages are capped
// at 100 regardless.
func (s *Service) ListUsers(ctx context.Context, prefs session.Preferences, credentialID string, limit int) ([]Option, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	pageLimit := limit
	if pageLimit > 100 {
		pageLimit = 100
	}

	seen := map[string]bool{}
	options := []Option{}
	cursor := ""
	for iterations := 0; iterations < s.maxPageRequests && len(options) < limit; iterations++ {
		searchParams := map[string]string{"limit": strconv.Itoa(pageLimit)}
		if cursor != "" {
			searchParams["next"] = cursor
		}

		data, err := s.api.Call(ctx, prefs, rollout.CallOptions{
			BaseURL:      s.crmBase,
			Path:         "/users",
			SearchParams: searchParams,
			CredentialID: credentialID,
		})
		if err != nil {
			return nil, err
		}

		for _, raw := range itemsFromResponse(data, "users") {
			user, ok := asItem(raw)
			if !ok {
				continue
			}
			id := normalizeID(user["id"])
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			options = append(options, Option{ID: id, Label: userLabel(user, id)})
			if len(options) >= limit {
				break
			}
		}

		cursor = nextCursor(data)
		if cursor == "" {
			break
		}
	}
	return options, nil
}

// userLabel mirrors personLabel except users carry a flat email field.
func userLabel(user Item, id string) string {
	name := strings.TrimSpace(strings.TrimSpace(stringField(user, "firstName")) + " " + strings.TrimSpace(stringField(user, "lastName")))
	if name != "" {
		return name
	}
	if email := strings.TrimSpace(stringField(user, "email")); email != "" {
		return email
	}
	return id
}
