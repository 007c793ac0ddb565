package crm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"crm-insights/internal/rollout"
	"crm-insights/internal/session"
)

// FetchPersonByID reads a single person record. A 404 from the connector
// means "no such person" and is reported as a nil Item, not an error.
func (s *Service) FetchPersonByID(ctx context.Context, prefs session.Preferences, credentialID, personID string) (Item, error) {
	personID = strings.TrimSpace(personID)
	if personID == "" {
		return nil, nil
	}

	data, err := s.api.Call(ctx, prefs, rollout.CallOptions{
		BaseURL:      s.crmBase,
		Path:         "/people/" + url.PathEscape(personID),
		CredentialID: credentialID,
	})
	if err != nil {
		if rollout.StatusOf(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	if item, ok := asItem(data); ok {
		return item, nil
	}
	return nil, nil
}

// FetchPersonByEmail scans the paginated people listing for a record whose
// emails contain the given address. Matching is case and whitespace
// insensitive. The scan stops at the page-request cap, so a person deep in
// a large CRM may not be found; callers treat that the same as absent.
func (s *Service) FetchPersonByEmail(ctx context.Context, prefs session.Preferences, credentialID, email string) (Item, error) {
	wanted := strings.ToLower(strings.TrimSpace(email))
	if wanted == "" {
		return nil, nil
	}

	cursor := ""
	for iterations := 0; iterations < s.maxPageRequests; iterations++ {
		searchParams := map[string]string{"limit": pageSize}
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
			if personHasEmail(person, wanted) {
				return person, nil
			}
		}

		cursor = nextCursor(data)
		if cursor == "" {
			break
		}
	}
	return nil, nil
}

func personHasEmail(person Item, wanted string) bool {
	emails, _ := person["emails"].([]any)
	for _, raw := range emails {
		entry, ok := asItem(raw)
		if !ok {
			continue
		}
		value, _ := entry["value"].(string)
		if strings.ToLower(strings.TrimSpace(value)) == wanted {
			return true
		}
	}
	return false
}
