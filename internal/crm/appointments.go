package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"crm-insights/internal/rollout"
	"crm-insights/internal/session"
)

// AppointmentRequest is the caller-facing shape for scheduling an
// appointment. PersonID, Title and Location are required; the rest is
// filled from connector defaults when absent.
type AppointmentRequest struct {
	PersonID             string `json:"personId"`
	Title                string `json:"title"`
	Location             string `json:"location"`
	Description          string `json:"description"`
	StartsAt             string `json:"startsAt"`
	EndsAt               string `json:"endsAt"`
	AppointmentTypeID    string `json:"appointmentTypeId"`
	AppointmentOutcomeID string `json:"appointmentOutcomeId"`
	UserID               string `json:"userId"`
	IsAllDay             *bool  `json:"isAllDay,omitempty"`
}

// ValidationError names the request fields that are missing.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

func (r *AppointmentRequest) validate() error {
	var missing []string
	if strings.TrimSpace(r.PersonID) == "" {
		missing = append(missing, "personId")
	}
	if strings.TrimSpace(r.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(r.Location) == "" {
		missing = append(missing, "location")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// AppointmentMetadata carries the picker data a scheduling form needs.
type AppointmentMetadata struct {
	Types    []Option `json:"types"`
	Outcomes []Option `json:"outcomes"`
}

// GetAppointmentMetadata loads appointment types and outcomes. Unlike the
// insights fan-out, a catalog failure here propagates with its upstream
// status so the scheduling form can show what went wrong.
func (s *Service) GetAppointmentMetadata(ctx context.Context, prefs session.Preferences, credentialID string) (*AppointmentMetadata, error) {
	types, err := s.listOptions(ctx, prefs, credentialID, "/appointment-types", "Type")
	if err != nil {
		return nil, err
	}
	outcomes, err := s.listOptions(ctx, prefs, credentialID, "/appointment-outcomes", "Outcome")
	if err != nil {
		return nil, err
	}
	return &AppointmentMetadata{Types: types, Outcomes: outcomes}, nil
}

func (s *Service) listOptions(ctx context.Context, prefs session.Preferences, credentialID, path, kind string) ([]Option, error) {
	data, err := s.api.Call(ctx, prefs, rollout.CallOptions{
		BaseURL:      s.crmBase,
		Path:         path,
		SearchParams: map[string]string{"limit": pageSize},
		CredentialID: credentialID,
	})
	if err != nil {
		return nil, err
	}

	options := []Option{}
	for _, raw := range rollout.ExtractItems(data) {
		item, ok := asItem(raw)
		if !ok {
			continue
		}
		id := normalizeID(item["id"])
		if id == "" {
			continue
		}
		label := stringField(item, "name")
		if label == "" {
			label = stringField(item, "label")
		}
		if label == "" {
			label = kind + " " + id
		}
		options = append(options, Option{ID: id, Label: label})
	}
	return options, nil
}

// firstAppointmentTypeID fetches the first configured appointment type id,
// used as a default when the request supplies none.
func (s *Service) firstAppointmentTypeID(ctx context.Context, prefs session.Preferences, credentialID string) (string, error) {
	data, err := s.api.Call(ctx, prefs, rollout.CallOptions{
		BaseURL:      s.crmBase,
		Path:         "/appointment-types",
		SearchParams: map[string]string{"limit": "1"},
		CredentialID: credentialID,
	})
	if err != nil {
		return "", err
	}
	for _, raw := range rollout.ExtractItems(data) {
		if item, ok := asItem(raw); ok {
			if id := normalizeID(item["id"]); id != "" {
				return id, nil
			}
		}
	}
	return "", nil
}

// defaultUserID fetches the first CRM user, used as the appointment owner
// when the request supplies none.
func (s *Service) defaultUserID(ctx context.Context, prefs session.Preferences, credentialID string) (string, error) {
	data, err := s.api.Call(ctx, prefs, rollout.CallOptions{
		BaseURL:      s.crmBase,
		Path:         "/users",
		SearchParams: map[string]string{"limit": "1"},
		CredentialID: credentialID,
	})
	if err != nil {
		return "", err
	}
	for _, raw := range rollout.ExtractItems(data) {
		if item, ok := asItem(raw); ok {
			if id := normalizeID(item["id"]); id != "" {
				return id, nil
			}
		}
	}
	return "", nil
}

// CreateAppointment schedules an appointment, working around the field
// naming and requiredness differences between CRM connectors. Strategy:
// try the natural payload first; on rejection rebuild the payload renaming
// only the fields the connector flagged, retry; if the connector still
// insists on an appointment type we cannot discover, walk a list of common
// type names until one sticks.
func (s *Service) CreateAppointment(ctx context.Context, prefs session.Preferences, credentialID string, req AppointmentRequest) (any, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	typeID := strings.TrimSpace(req.AppointmentTypeID)
	if typeID == "" {
		if id, err := s.firstAppointmentTypeID(ctx, prefs, credentialID); err != nil {
			s.log.Warn("appointment_type_default_failed", "error", err)
		} else {
			typeID = id
		}
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		if id, err := s.defaultUserID(ctx, prefs, credentialID); err != nil {
			s.log.Warn("appointment_user_default_failed", "error", err)
		} else {
			userID = id
		}
	}

	payload := naturalPayload(req, typeID, userID)
	created, firstErr := s.postAppointment(ctx, prefs, credentialID, payload)
	if firstErr == nil {
		return created, nil
	}
	s.log.Info("appointment_create_retry",
		"status", rollout.StatusOf(firstErr),
		"error", firstErr)

	invalid := parseInvalidFields(firstErr)
	missingRequired := parseMissingRequired(firstErr)
	fallback, needsType := buildFallbackPayload(req, typeID, userID, invalid, missingRequired)

	if needsType {
		if id, err := s.firstAppointmentTypeID(ctx, prefs, credentialID); err == nil && id != "" {
			fallback["appointmentTypeId"] = id
		}
	}

	created, secondErr := s.postAppointment(ctx, prefs, credentialID, fallback)
	if secondErr == nil {
		return created, nil
	}

	if _, hasType := fallback["appointmentTypeId"]; !hasType && parse422Paths(secondErr)["/appointmentTypeId"] {
		lastErr := secondErr
		for _, candidate := range []string{"Other", "Default", "Appointment", "Meeting", "Consultation", "1"} {
			fallback["appointmentTypeId"] = candidate
			created, err := s.postAppointment(ctx, prefs, credentialID, fallback)
			if err == nil {
				return created, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
	return nil, secondErr
}

func (s *Service) postAppointment(ctx context.Context, prefs session.Preferences, credentialID string, payload map[string]any) (any, error) {
	return s.api.Call(ctx, prefs, rollout.CallOptions{
		BaseURL:      s.crmBase,
		Path:         "/appointments",
		Method:       http.MethodPost,
		Body:         payload,
		CredentialID: credentialID,
	})
}

func naturalPayload(req AppointmentRequest, typeID, userID string) map[string]any {
	payload := map[string]any{
		"personId": strings.TrimSpace(req.PersonID),
		"title":    strings.TrimSpace(req.Title),
		"location": strings.TrimSpace(req.Location),
	}
	if v := strings.TrimSpace(req.Description); v != "" {
		payload["description"] = v
	}
	if v := strings.TrimSpace(req.StartsAt); v != "" {
		payload["startsAt"] = v
	}
	if v := strings.TrimSpace(req.EndsAt); v != "" {
		payload["endsAt"] = v
	}
	if typeID != "" {
		payload["appointmentTypeId"] = typeID
	}
	if v := strings.TrimSpace(req.AppointmentOutcomeID); v != "" {
		payload["appointmentOutcomeId"] = v
	}
	if userID != "" {
		payload["userId"] = userID
	}
	if req.IsAllDay != nil {
		payload["isAllDay"] = *req.IsAllDay
	}
	return payload
}

// buildFallbackPayload reshapes the request for connectors that reject the
// natural field names. startsAt/endsAt are renamed to start/end only when
// the connector flagged them invalid; person and user association moves
// into an invitees list instead of top-level fields, with personId restored
// at the top level only when a 422 reported it as still required. Returns
// the payload and whether an appointment type still needs to be discovered.
func buildFallbackPayload(req AppointmentRequest, typeID, userID string, invalid map[string]bool, missingRequired map[string]bool) (map[string]any, bool) {
	payload := map[string]any{
		"title":    strings.TrimSpace(req.Title),
		"location": strings.TrimSpace(req.Location),
	}
	if v := strings.TrimSpace(req.Description); v != "" {
		payload["description"] = v
	}
	if v := strings.TrimSpace(req.StartsAt); v != "" {
		if invalid["startsAt"] {
			payload["start"] = v
		} else {
			payload["startsAt"] = v
		}
	}
	if v := strings.TrimSpace(req.EndsAt); v != "" {
		if invalid["endsAt"] {
			payload["end"] = v
		} else {
			payload["endsAt"] = v
		}
	}

	personID := strings.TrimSpace(req.PersonID)
	invitees := []map[string]any{{"personId": personID}}
	if userID != "" {
		invitees = append(invitees, map[string]any{"userId": userID})
	}
	payload["invitees"] = invitees
	// missingRequired is only ever populated from a 422 body
	if missingRequired["/personId"] {
		payload["personId"] = personID
	}
	if req.IsAllDay != nil {
		payload["isAllDay"] = *req.IsAllDay
	}

	needsType := false
	if typeID != "" && !invalid["appointmentTypeId"] {
		payload["appointmentTypeId"] = typeID
	} else if typeID == "" && missingRequired["/appointmentTypeId"] {
		needsType = true
	}
	return payload, needsType
}

var invalidFieldsRe = regexp.MustCompile(`(?i)invalid fields[^:]*:\s*([^"]+)`)

// parseInvalidFields pulls field names out of an "Invalid fields: a, b"
// style error body.
func parseInvalidFields(err error) map[string]bool {
	fields := map[string]bool{}
	body := rollout.BodyOf(err)
	if body == "" {
		return fields
	}
	m := invalidFieldsRe.FindStringSubmatch(body)
	if m == nil {
		return fields
	}
	for _, field := range regexp.MustCompile(`[\s,]+`).Split(m[1], -1) {
		field = strings.TrimSuffix(strings.TrimSpace(field), ".")
		if field != "" {
			fields[field] = true
		}
	}
	return fields
}

type validationErrorBody struct {
	Errors []struct {
		Path    string `json:"path"`
		Message string `json:"message"`
	} `json:"errors"`
}

func parse422Body(err error) *validationErrorBody {
	if rollout.StatusOf(err) != http.StatusUnprocessableEntity {
		return nil
	}
	body := rollout.BodyOf(err)
	if body == "" {
		return nil
	}
	var parsed validationErrorBody
	if jsonErr := json.Unmarshal([]byte(body), &parsed); jsonErr != nil {
		return nil
	}
	return &parsed
}

// parseMissingRequired reads a 422 JSON error body of the shape
// {"errors":[{"path":"/field","message":"... required ..."}]} into a set
// of required field paths.
func parseMissingRequired(err error) map[string]bool {
	paths := map[string]bool{}
	parsed := parse422Body(err)
	if parsed == nil {
		return paths
	}
	for _, e := range parsed.Errors {
		if strings.HasPrefix(e.Path, "/") && strings.Contains(strings.ToLower(e.Message), "required") {
			paths[e.Path] = true
		}
	}
	return paths
}

// parse422Paths collects every error path named by a 422 body, regardless
// of message wording. Connectors phrase type rejections inconsistently, so
// the candidate tier keys off the path alone.
func parse422Paths(err error) map[string]bool {
	paths := map[string]bool{}
	parsed := parse422Body(err)
	if parsed == nil {
		return paths
	}
	for _, e := range parsed.Errors {
		if strings.HasPrefix(e.Path, "/") {
			paths[e.Path] = true
		}
	}
	return paths
}
