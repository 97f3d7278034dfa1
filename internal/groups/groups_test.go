package groups

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sunflowerdeath/sinkron/internal/store"
)

// fakeStore is a minimal in-memory store.Store for exercising GroupsAPI's
// caching behavior without Postgres.
type fakeStore struct {
	store.Store
	userGroups      map[string][]string
	getUserGroupsN  int
	groupMembers    map[string][]string
	deletedGroups   []string
}

func (f *fakeStore) GetUserGroups(ctx context.Context, user string) ([]string, error) {
	f.getUserGroupsN++
	return f.userGroups[user], nil
}

func (f *fakeStore) DeleteGroup(ctx context.Context, id string) ([]string, error) {
	f.deletedGroups = append(f.deletedGroups, id)
	return f.groupMembers[id], nil
}

func (f *fakeStore) AddUserToGroup(ctx context.Context, group, user string) error {
	f.userGroups[user] = append(f.userGroups[user], group)
	return nil
}

func (f *fakeStore) RemoveUserFromGroup(ctx context.Context, group, user string) error {
	return nil
}

func (f *fakeStore) RemoveUserFromAllGroups(ctx context.Context, user string) ([]string, error) {
	groups := f.userGroups[user]
	delete(f.userGroups, user)
	return groups, nil
}

func newTestAPI(t *testing.T, fs *fakeStore) *API {
	t.Helper()
	api, err := New(fs, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return api
}

func TestGetUserCachesResult(t *testing.T) {
	fs := &fakeStore{userGroups: map[string][]string{"alice": {"editors"}}}
	api := newTestAPI(t, fs)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		u, err := api.GetUser(ctx, "alice")
		if err != nil {
			t.Fatalf("GetUser: %v", err)
		}
		if len(u.Groups) != 1 || u.Groups[0] != "editors" {
			t.Fatalf("unexpected groups: %v", u.Groups)
		}
	}
	if fs.getUserGroupsN != 1 {
		t.Fatalf("expected store to be hit once, got %d", fs.getUserGroupsN)
	}
}

func TestDeleteGroupInvalidatesFormerMembers(t *testing.T) {
	fs := &fakeStore{
		userGroups:   map[string][]string{"alice": {"editors"}},
		groupMembers: map[string][]string{"editors": {"alice"}},
	}
	api := newTestAPI(t, fs)
	ctx := context.Background()

	if _, err := api.GetUser(ctx, "alice"); err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if err := api.DeleteGroup(ctx, "editors"); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}

	fs.userGroups["alice"] = nil // simulate the row deletion store-side
	if _, err := api.GetUser(ctx, "alice"); err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if fs.getUserGroupsN != 2 {
		t.Fatalf("expected cache to be invalidated and re-fetched, got %d store hits", fs.getUserGroupsN)
	}
}
