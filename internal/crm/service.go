package crm

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"crm-insights/internal/config"
	"crm-insights/internal/rollout"
	"crm-insights/internal/session"
)

// Item is an opaque upstream record. The CRM behind Rollout decides the
// schema; we only ever reach into the handful of fields named below.
type Item = map[string]any

// Option is an id/label pair for dropdowns (people, users, appointment
// types, outcomes).
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Caller issues a single Rollout API request. Satisfied by *rollout.Client;
// tests substitute stubs.
type Caller interface {
	Call(ctx context.Context, prefs session.Preferences, opts rollout.CallOptions) (any, error)
}

// Service bundles every CRM-facing operation: credential resolution, person
// lookup, the paginated sub-resource fetcher, insights aggregation and
// appointment creation.
type Service struct {
	log             *slog.Logger
	api             Caller
	platformBase    string
	crmBase         string
	recordLimit     int
	maxPageRequests int
}

func NewService(log *slog.Logger, api Caller, cfg config.Config) *Service {
	return &Service{
		log:             log,
		api:             api,
		platformBase:    cfg.PlatformAPIBase,
		crmBase:         cfg.CRMAPIBase,
		recordLimit:     cfg.PersonRecordsLimit,
		maxPageRequests: cfg.MaxPaginatedRequests,
	}
}

// normalizeID stringifies an upstream id (string or number) to a trimmed
// string; "" means absent.
func normalizeID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return ""
	}
}

func asItem(v any) (Item, bool) {
	item, ok := v.(map[string]any)
	return item, ok && item != nil
}

func stringField(item Item, key string) string {
	s, _ := item[key].(string)
	return strings.TrimSpace(s)
}

// nextCursor pulls the opaque pagination token from _metadata.next; ""
// signals the end of pagination.
func nextCursor(data any) string {
	root, ok := data.(map[string]any)
	if !ok {
		return ""
	}
	meta, ok := root["_metadata"].(map[string]any)
	if !ok {
		return ""
	}
	next, _ := meta["next"].(string)
	return next
}
