package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sunflowerdeath/sinkron/internal/authhook"
	"github.com/sunflowerdeath/sinkron/internal/groups"
	"github.com/sunflowerdeath/sinkron/internal/store"
)

// fakeStore implements store.Store in memory, enough to exercise the
// admin collection/group routes without Postgres.
type fakeStore struct {
	store.Store
	collections map[string]*store.Collection
	groups      map[string]*store.Group
	members     map[string][]string // group -> users
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collections: make(map[string]*store.Collection),
		groups:      make(map[string]*store.Group),
		members:     make(map[string][]string),
	}
}

func (f *fakeStore) GetCollection(ctx context.Context, id string) (*store.Collection, error) {
	c, ok := f.collections[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) CreateCollection(ctx context.Context, id string, isRef bool, permissions string) (*store.Collection, error) {
	c := &store.Collection{Id: id, IsRef: isRef, Permissions: permissions}
	f.collections[id] = c
	return c, nil
}

func (f *fakeStore) UpdateCollectionPermissions(ctx context.Context, id, permissions string) error {
	c, ok := f.collections[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Permissions = permissions
	return nil
}

func (f *fakeStore) CreateGroup(ctx context.Context, id string) (*store.Group, error) {
	g := &store.Group{Id: id}
	f.groups[id] = g
	return g, nil
}

func (f *fakeStore) GetGroup(ctx context.Context, id string) (*store.Group, error) {
	g, ok := f.groups[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	g.Members = f.members[id]
	return g, nil
}

func (f *fakeStore) AddUserToGroup(ctx context.Context, group, user string) error {
	f.members[group] = append(f.members[group], user)
	return nil
}

func (f *fakeStore) GetUserGroups(ctx context.Context, user string) ([]string, error) {
	var out []string
	for g, users := range f.members {
		for _, u := range users {
			if u == user {
				out = append(out, g)
			}
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, fs *fakeStore) *Server {
	t.Helper()
	g, err := groups.New(fs, zerolog.Nop())
	if err != nil {
		t.Fatalf("groups.New: %v", err)
	}
	auth := authhook.New("")
	return NewServer(nil, fs, g, auth, nil, "test-token", zerolog.Nop())
}

func TestCheckAuthTokenRejectsMissingHeader(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	req := httptest.NewRequest(http.MethodGet, "/get_collection?id=c1", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateAndGetCollectionRoundTrips(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	mux := s.Routes()

	body, _ := json.Marshal(map[string]any{"id": "c1", "permissions": `{"read":[{"kind":"any"}]}`})
	req := httptest.NewRequest(http.MethodPost, "/create_collection", bytes.NewReader(body))
	req.Header.Set("x-sinkron-api-token", "test-token")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("create_collection status = %d, body %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/get_collection?id=c1", nil)
	req.Header.Set("x-sinkron-api-token", "test-token")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get_collection status = %d, body %s", rec.Code, rec.Body.String())
	}

	var col store.Collection
	if err := json.Unmarshal(rec.Body.Bytes(), &col); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if col.Id != "c1" {
		t.Fatalf("col.Id = %q, want c1", col.Id)
	}
}

func TestGetCollectionNotFound(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	req := httptest.NewRequest(http.MethodGet, "/get_collection?id=missing", nil)
	req.Header.Set("x-sinkron-api-token", "test-token")
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCreateGroupAndAddUserInvalidatesCache(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	mux := s.Routes()

	body, _ := json.Marshal(map[string]any{"id": "g1"})
	req := httptest.NewRequest(http.MethodPost, "/create_group", bytes.NewReader(body))
	req.Header.Set("x-sinkron-api-token", "test-token")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("create_group status = %d", rec.Code)
	}

	// Prime the user cache before the membership change.
	req = httptest.NewRequest(http.MethodGet, "/get_user?id=u1", nil)
	req.Header.Set("x-sinkron-api-token", "test-token")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get_user status = %d", rec.Code)
	}

	body, _ = json.Marshal(map[string]any{"group": "g1", "user": "u1"})
	req = httptest.NewRequest(http.MethodPost, "/add_user_to_group", bytes.NewReader(body))
	req.Header.Set("x-sinkron-api-token", "test-token")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("add_user_to_group status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/get_user?id=u1", nil)
	req.Header.Set("x-sinkron-api-token", "test-token")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get_user status = %d", rec.Code)
	}
	var u struct {
		Groups []string `json:"groups"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &u); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(u.Groups) != 1 || u.Groups[0] != "g1" {
		t.Fatalf("Groups = %v, want [g1]", u.Groups)
	}
}
