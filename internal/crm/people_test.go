package crm

import (
	"context"
	"testing"

	"crm-insights/internal/rollout"
	"crm-insights/internal/session"
)

func TestListPeopleDedupesAndLabels(t *testing.T) {
	caller := &stubCaller{handler: func(opts rollout.CallOptions) (any, error) {
		if opts.SearchParams["next"] == "" {
			return map[string]any{
				"people": []any{
					map[string]any{"id": "p1", "firstName": "Jane", "lastName": "Doe"},
					map[string]any{"id": "p2", "emails": []any{
						map[string]any{"value": "backup@x.com"},
						map[string]any{"value": "primary@x.com", "isPrimary": true},
					}},
				},
				"_metadata": map[string]any{"next": "page2"},
			}, nil
		}
		return map[string]any{"people": []any{
			map[string]any{"id": "p1", "firstName": "Jane", "lastName": "Doe"},
			map[string]any{"id": "p3"},
		}}, nil
	}}
	svc := newTestService(t, caller, 25, 5)

	people, err := svc.ListPeople(context.Background(), session.Preferences{}, "cred", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Option{
		{ID: "p1", Label: "Jane Doe"},
		{ID: "p2", Label: "primary@x.com"},
		{ID: "p3", Label: "p3"},
	}
	if len(people) != len(want) {
		t.Fatalf("expected %d people, got %v", len(want), people)
	}
	for i := range want {
		if people[i] != want[i] {
			t.Fatalf("person %d = %+v, want %+v", i, people[i], want[i])
		}
	}
}

func TestListUsersPaginatesAndDedupes(t *testing.T) {
	caller := &stubCaller{handler: func(opts rollout.CallOptions) (any, error) {
		if got := opts.SearchParams["limit"]; got != "100" {
			t.Fatalf("page size should be capped at 100, got %q", got)
		}
		if opts.SearchParams["next"] == "" {
			return map[string]any{
				"users": []any{
					map[string]any{"id": "u1", "firstName": "Ada", "lastName": "L"},
					map[string]any{"id": "u2", "email": "bob@x.com"},
				},
				"_metadata": map[string]any{"next": "page2"},
			}, nil
		}
		return map[string]any{"users": []any{
			map[string]any{"id": "u2", "email": "bob@x.com"},
			map[string]any{"id": "u3"},
		}}, nil
	}}
	svc := newTestService(t, caller, 25, 5)

	users, err := svc.ListUsers(context.Background(), session.Preferences{}, "cred", 150)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Option{
		{ID: "u1", Label: "Ada L"},
		{ID: "u2", Label: "bob@x.com"},
		{ID: "u3", Label: "u3"},
	}
	if len(users) != len(want) {
		t.Fatalf("expected %d users, got %v", len(want), users)
	}
	for i := range want {
		if users[i] != want[i] {
			t.Fatalf("user %d = %+v, want %+v", i, users[i], want[i])
		}
	}
	if caller.callCount() != 2 {
		t.Fatalf("expected 2 page requests, got %d", caller.callCount())
	}
}

func TestListUsersStopsAtLimit(t *testing.T) {
	caller := &stubCaller{handler: func(opts rollout.CallOptions) (any, error) {
		return map[string]any{
			"users": []any{
				map[string]any{"id": "u1"},
				map[string]any{"id": "u2"},
				map[string]any{"id": "u3"},
			},
			"_metadata": map[string]any{"next": "more"},
		}, nil
	}}
	svc := newTestService(t, caller, 25, 5)

	users, err := svc.ListUsers(context.Background(), session.Preferences{}, "cred", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if caller.callCount() != 1 {
		t.Fatalf("limit hit on the first page, expected 1 request, got %d", caller.callCount())
	}
}
