package crm

import (
	"context"
	"testing"

	"crm-insights/internal/rollout"
	"crm-insights/internal/session"
)

func TestListCredentialsLabelFallback(t *testing.T) {
	caller := &stubCaller{handler: func(opts rollout.CallOptions) (any, error) {
		if opts.SearchParams["includeProfile"] != "true" || opts.SearchParams["includeData"] != "true" {
			t.Fatalf("expected profile and data includes, got %v", opts.SearchParams)
		}
		return map[string]any{"credentials": []any{
			map[string]any{"id": "c1", "appKey": "hubspot", "profile": map[string]any{"accountName": "Acme"}},
			map[string]any{"id": "c2", "appKey": "pipedrive"},
			map[string]any{"id": "c3"},
			map[string]any{"appKey": "no-id"},
		}}, nil
	}}
	svc := newTestService(t, caller, 25, 5)

	credentials, err := svc.ListCredentials(context.Background(), session.Preferences{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantLabels := []string{"Acme", "pipedrive", "c3"}
	if len(credentials) != len(wantLabels) {
		t.Fatalf("expected %d credentials, got %d", len(wantLabels), len(credentials))
	}
	for i, want := range wantLabels {
		if credentials[i].Label != want {
			t.Fatalf("credential %d label = %q, want %q", i, credentials[i].Label, want)
		}
	}
}

func TestResolveDefaultCredentialIDCachesFirstListed(t *testing.T) {
	caller := &stubCaller{handler: func(opts rollout.CallOptions) (any, error) {
		return map[string]any{"credentials": []any{
			map[string]any{"id": "cred-1"},
			map[string]any{"id": "cred-2"},
		}}, nil
	}}
	svc := newTestService(t, caller, 25, 5)
	sess := session.New("s1", session.Preferences{})

	for i := 0; i < 2; i++ {
		id, err := svc.ResolveDefaultCredentialID(context.Background(), sess, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "cred-1" {
			t.Fatalf("expected cred-1, got %q", id)
		}
	}
	if caller.callCount() != 1 {
		t.Fatalf("second resolve should use the session cache, got %d upstream calls", caller.callCount())
	}
}

func TestResolveDefaultCredentialIDExplicit(t *testing.T) {
	caller := &stubCaller{handler: func(opts rollout.CallOptions) (any, error) {
		t.Fatal("explicit id should not hit upstream")
		return nil, nil
	}}
	svc := newTestService(t, caller, 25, 5)
	sess := session.New("s1", session.Preferences{})

	id, err := svc.ResolveDefaultCredentialID(context.Background(), sess, " cred-9 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "cred-9" {
		t.Fatalf("expected cred-9, got %q", id)
	}
	if sess.Prefs().DefaultCredentialID != "cred-9" {
		t.Fatal("explicit id should be cached on the session")
	}
}

func TestResolveDefaultCredentialIDEmptyTenant(t *testing.T) {
	caller := &stubCaller{handler: func(opts rollout.CallOptions) (any, error) {
		return nil, &rollout.APIError{Status: 404, Body: "no credentials"}
	}}
	svc := newTestService(t, caller, 25, 5)
	sess := session.New("s1", session.Preferences{})

	id, err := svc.ResolveDefaultCredentialID(context.Background(), sess, "")
	if err != nil {
		t.Fatalf("404 during bootstrap is not an error: %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
}
