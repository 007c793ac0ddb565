package crm

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"crm-insights/internal/rollout"
	"crm-insights/internal/session"
)

const pageSize = "100"

// SubResource tags the per-person collections the insights aggregator knows
// how to fetch.
type SubResource string

const (
	SubEvents       SubResource = "events"
	SubNotes        SubResource = "notes"
	SubCalls        SubResource = "calls"
	SubTextMessages SubResource = "textMessages"
	SubAppointments SubResource = "appointments"
	SubTasks        SubResource = "tasks"
)

var subResources = []SubResource{SubEvents, SubNotes, SubCalls, SubTextMessages, SubAppointments, SubTasks}

// collectionSpec is the per-sub-resource policy driving the generic fetcher.
// Only the fields a sub-resource actually needs are set; the fetcher supplies
// the defaults (match on personId, no transform, no sort).
type collectionSpec struct {
	path        string
	responseKey string
	personField string
	// some endpoints filter by person server-side and need personId as a
	// query param instead of a post-fetch match
	params  func(personID string) map[string]string
	matcher func(item Item, personID string) bool
	process func(item Item) Item
	sort    func(items []Item) []Item
}

func specFor(sub SubResource) collectionSpec {
	switch sub {
	case SubEvents:
		return collectionSpec{path: "/events", responseKey: "events"}
	case SubNotes:
		return collectionSpec{path: "/notes", responseKey: "notes"}
	case SubCalls:
		return collectionSpec{path: "/calls", responseKey: "calls"}
	case SubTextMessages:
		return collectionSpec{
			path: "/textMessages",
			params: func(personID string) map[string]string {
				return map[string]string{"personId": personID}
			},
		}
	case SubAppointments:
		return collectionSpec{
			path:        "/appointments",
			responseKey: "appointments",
			matcher:     appointmentBelongsTo,
			process:     stampAppointmentSortKey,
			sort:        sortAppointmentsByRecency,
		}
	case SubTasks:
		return collectionSpec{path: "/tasks", responseKey: "tasks"}
	default:
		return collectionSpec{path: "/" + string(sub)}
	}
}

// fetchCollection walks a cursor-paginated CRM list endpoint collecting
// records that belong to personID. Bounded two ways: at most
// maxPageRequests page fetches and at most recordLimit collected records,
// so a pathological upstream can neither loop us forever nor blow up the
// response.
func (s *Service) fetchCollection(ctx context.Context, prefs session.Preferences, credentialID, personID string, spec collectionSpec) ([]Item, error) {
	personID = strings.TrimSpace(personID)
	if personID == "" {
		// nothing to match against; skip the network entirely
		return []Item{}, nil
	}

	personField := spec.personField
	if personField == "" {
		personField = "personId"
	}

	collected := make([]Item, 0, s.recordLimit)
	cursor := ""
	iterations := 0

	for iterations < s.maxPageRequests && len(collected) < s.recordLimit {
		searchParams := map[string]string{"limit": pageSize}
		if spec.params != nil {
			for k, v := range spec.params(personID) {
				if k != "" && v != "" {
					searchParams[k] = v
				}
			}
		}
		if cursor != "" {
			searchParams["next"] = cursor
		}

		data, err := s.api.Call(ctx, prefs, rollout.CallOptions{
			BaseURL:      s.crmBase,
			Path:         spec.path,
			SearchParams: searchParams,
			CredentialID: credentialID,
		})
		if err != nil {
			return nil, err
		}

		items := itemsFromResponse(data, spec.responseKey)
		for _, raw := range items {
			item, ok := asItem(raw)
			if !ok {
				continue
			}

			matches := false
			if spec.matcher != nil {
				matches = spec.matcher(item, personID)
			} else {
				itemPersonID := normalizeID(item[personField])
				matches = itemPersonID != "" && itemPersonID == personID
			}
			if !matches {
				continue
			}

			if spec.process != nil {
				item = spec.process(item)
				if item == nil {
					continue
				}
			}
			collected = append(collected, item)
			if len(collected) >= s.recordLimit {
				break
			}
		}
		if len(collected) >= s.recordLimit {
			break
		}

		cursor = nextCursor(data)
		if cursor == "" {
			break
		}
		iterations++
	}

	// sort a copy, then truncate; sorters must not see or mutate the
	// collection buffer
	ordered := collected
	if spec.sort != nil {
		ordered = make([]Item, len(collected))
		copy(ordered, collected)
		ordered = spec.sort(ordered)
	}
	if len(ordered) > s.recordLimit {
		ordered = ordered[:s.recordLimit]
	}
	return ordered, nil
}

// itemsFromResponse prefers the endpoint's documented response key and falls
// back to shape-guessing extraction.
func itemsFromResponse(data any, responseKey string) []any {
	if responseKey != "" {
		if root, ok := data.(map[string]any); ok {
			if arr, ok := root[responseKey].([]any); ok {
				return arr
			}
		}
	}
	return rollout.ExtractItems(data)
}

// appointmentBelongsTo matches either the top-level personId or membership
// in the invitees list; connectors disagree on which one they populate.
func appointmentBelongsTo(appointment Item, personID string) bool {
	if topLevel := normalizeID(appointment["personId"]); topLevel != "" && topLevel == personID {
		return true
	}
	invitees, _ := appointment["invitees"].([]any)
	for _, raw := range invitees {
		invitee, ok := asItem(raw)
		if !ok {
			continue
		}
		if normalizeID(invitee["personId"]) == personID {
			return true
		}
	}
	return false
}

const sortTimestampKey = "_sortTimestamp"

// stampAppointmentSortKey copies the appointment and attaches a derived
// sort timestamp: endsAt/end, else startsAt/start, else updated/created.
// Records with no parseable date sort last.
func stampAppointmentSortKey(appointment Item) Item {
	stamped := make(Item, len(appointment)+1)
	for k, v := range appointment {
		stamped[k] = v
	}

	ts, ok := parseTimestamp(firstString(appointment, "endsAt", "end"))
	if !ok {
		ts, ok = parseTimestamp(firstString(appointment, "startsAt", "start"))
	}
	if !ok {
		ts, ok = parseTimestamp(firstString(appointment, "updated", "created"))
	}
	if !ok {
		ts = math.MinInt64
	}
	stamped[sortTimestampKey] = ts
	return stamped
}

// sortAppointmentsByRecency orders by the derived timestamp, most recent
// first, and strips the scratch field from the output.
func sortAppointmentsByRecency(items []Item) []Item {
	sort.SliceStable(items, func(i, j int) bool {
		return sortTimestamp(items[i]) > sortTimestamp(items[j])
	})
	for _, item := range items {
		delete(item, sortTimestampKey)
	}
	return items
}

func sortTimestamp(item Item) int64 {
	ts, ok := item[sortTimestampKey].(int64)
	if !ok {
		return math.MinInt64
	}
	return ts
}

func firstString(item Item, keys ...string) string {
	for _, key := range keys {
		if s, ok := item[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTimestamp accepts the date shapes CRM connectors actually emit;
// returns unix milliseconds.
func parseTimestamp(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}
