package crm

import (
	"context"
	"errors"
	"sync"

	"crm-insights/internal/session"
)

// ErrPersonNotFound is returned by GetInsights when the identifier resolves
// to no person record.
var ErrPersonNotFound = errors.New("person not found")

// IdentifierType selects how GetInsights resolves its identifier.
type IdentifierType string

const (
	IdentifyByID    IdentifierType = "id"
	IdentifyByEmail IdentifierType = "email"
)

// Insights is the aggregated per-person activity view. Every collection is
// always present and non-nil, even when its fetch failed.
type Insights struct {
	Person       Item   `json:"person"`
	Events       []Item `json:"events"`
	Notes        []Item `json:"notes"`
	Calls        []Item `json:"calls"`
	TextMessages []Item `json:"textMessages"`
	Appointments []Item `json:"appointments"`
	Tasks        []Item `json:"tasks"`
}

// GetInsights resolves the person and fans out to all activity collections
// concurrently. A failed collection fetch is logged and degraded to an
// empty list; only person resolution failures surface as errors.
func (s *Service) GetInsights(ctx context.Context, prefs session.Preferences, credentialID, identifier string, identifierType IdentifierType) (*Insights, error) {
	var person Item
	var err error
	if identifierType == IdentifyByEmail {
		person, err = s.FetchPersonByEmail(ctx, prefs, credentialID, identifier)
	} else {
		person, err = s.FetchPersonByID(ctx, prefs, credentialID, identifier)
	}
	if err != nil {
		return nil, err
	}
	if person == nil {
		return nil, ErrPersonNotFound
	}

	personID := normalizeID(person["id"])
	collections := s.fetchAllCollections(ctx, prefs, credentialID, personID)

	return &Insights{
		Person:       person,
		Events:       collections[SubEvents],
		Notes:        collections[SubNotes],
		Calls:        collections[SubCalls],
		TextMessages: collections[SubTextMessages],
		Appointments: collections[SubAppointments],
		Tasks:        collections[SubTasks],
	}, nil
}

func (s *Service) fetchAllCollections(ctx context.Context, prefs session.Preferences, credentialID, personID string) map[SubResource][]Item {
	results := make([][]Item, len(subResources))
	var wg sync.WaitGroup
	for i, sub := range subResources {
		wg.Add(1)
		go func(i int, sub SubResource) {
			defer wg.Done()
			items, err := s.fetchCollection(ctx, prefs, credentialID, personID, specFor(sub))
			if err != nil {
				s.log.Warn("insights_fetch_suppressed",
					"resource", string(sub),
					"person_id", personID,
					"error", err)
				items = []Item{}
			}
			results[i] = items
		}(i, sub)
	}
	wg.Wait()

	out := make(map[SubResource][]Item, len(subResources))
	for i, sub := range subResources {
		if results[i] == nil {
			results[i] = []Item{}
		}
		out[sub] = results[i]
	}
	return out
}
