package rollout

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crm-insights/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient() *Client {
	auth := NewAuth("test-client", "test-secret", "demo-consumer", time.Hour)
	return NewClient(testLogger(), auth)
}

func TestCallSendsAuthAndCredentialHeaders(t *testing.T) {
	var gotAuth, gotCredential, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCredential = r.Header.Get("X-Rollout-Credential-Id")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := newTestClient()
	out, err := client.Call(context.Background(), session.Preferences{}, CallOptions{
		BaseURL:      srv.URL + "/api", // no trailing slash on purpose
		Path:         "/people",       // leading slash must be stripped
		CredentialID: "cred-1",
		SearchParams: map[string]string{"limit": "100", "empty": ""},
	})
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(gotAuth, "Bearer ") {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}
	if gotCredential != "cred-1" {
		t.Errorf("credential header = %q, want cred-1", gotCredential)
	}
	if gotPath != "/api/people" {
		t.Errorf("path = %q, want /api/people", gotPath)
	}
	if strings.Contains(gotQuery, "empty") {
		t.Errorf("empty search params must be skipped, got query %q", gotQuery)
	}
	if !strings.Contains(gotQuery, "limit=100") {
		t.Errorf("expected limit param, got query %q", gotQuery)
	}

	decoded, ok := out.(map[string]any)
	if !ok || decoded["ok"] != true {
		t.Errorf("unexpected decoded response %v", out)
	}
}

func TestCallSerializesJSONBody(t *testing.T) {
	var gotContentType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"a1"}`))
	}))
	defer srv.Close()

	client := newTestClient()
	out, err := client.Call(context.Background(), session.Preferences{}, CallOptions{
		BaseURL: srv.URL,
		Path:    "appointments",
		Method:  http.MethodPost,
		Body:    map[string]any{"title": "Demo"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}
	if gotBody["title"] != "Demo" {
		t.Errorf("body = %v", gotBody)
	}
	if created, _ := out.(map[string]any); created["id"] != "a1" {
		t.Errorf("unexpected response %v", out)
	}
}

func TestCallReturnsTypedErrorWithStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"path":"/personId","message":"is required"}]}`))
	}))
	defer srv.Close()

	client := newTestClient()
	_, err := client.Call(context.Background(), session.Preferences{}, CallOptions{BaseURL: srv.URL, Path: "appointments"})
	if err == nil {
		t.Fatal("expected error")
	}
	if StatusOf(err) != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", StatusOf(err))
	}
	if !strings.Contains(BodyOf(err), "/personId") {
		t.Errorf("body not preserved: %q", BodyOf(err))
	}
}

func TestCallReturnsTextForNonJSONResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("pong"))
	}))
	defer srv.Close()

	client := newTestClient()
	out, err := client.Call(context.Background(), session.Preferences{}, CallOptions{BaseURL: srv.URL, Path: "ping"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "pong" {
		t.Errorf("expected raw text, got %v", out)
	}
}

func TestCallFailsWithoutClientCredentials(t *testing.T) {
	auth := NewAuth("", "", "demo-consumer", time.Hour)
	client := NewClient(testLogger(), auth)
	_, err := client.Call(context.Background(), session.Preferences{}, CallOptions{BaseURL: "http://127.0.0.1:1", Path: "people"})
	if err == nil {
		t.Fatal("expected credential configuration error")
	}
}

func TestBuildRequestURL(t *testing.T) {
	got, err := buildRequestURL("https://crm.example.com/api", "/people", map[string]string{"limit": "100"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://crm.example.com/api/people?limit=100" {
		t.Errorf("url = %q", got)
	}
}
