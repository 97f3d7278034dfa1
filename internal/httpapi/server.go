// Package httpapi is sinkron's HTTP surface: the unauthenticated `/` and
// `/sync` endpoints, and the `x-sinkron-api-token`-gated admin routes.
// Route table and the token middleware are grounded on
// original_source/sinkron/src/sinkron.rs (SPEC_FULL §12.1).
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sunflowerdeath/sinkron/internal/actors"
	"github.com/sunflowerdeath/sinkron/internal/authhook"
	"github.com/sunflowerdeath/sinkron/internal/groups"
	"github.com/sunflowerdeath/sinkron/internal/permissions"
	"github.com/sunflowerdeath/sinkron/internal/resources"
	"github.com/sunflowerdeath/sinkron/internal/store"
	"github.com/sunflowerdeath/sinkron/internal/wire"
	"github.com/sunflowerdeath/sinkron/internal/wsio"
)

type Server struct {
	root     *actors.Root
	store    store.Store
	groups   *groups.API
	auth     *authhook.Hook
	guard    *resources.Guard
	apiToken string
	logger   zerolog.Logger
}

func NewServer(root *actors.Root, s store.Store, g *groups.API, auth *authhook.Hook, guard *resources.Guard, apiToken string, logger zerolog.Logger) *Server {
	return &Server{root: root, store: s, groups: g, auth: auth, guard: guard, apiToken: apiToken, logger: logger}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/sync", s.handleSync)

	admin := http.NewServeMux()
	admin.HandleFunc("/create_collection", s.handleCreateCollection)
	admin.HandleFunc("/get_collection", s.handleGetCollection)
	admin.HandleFunc("/update_collection_permissions", s.handleUpdateCollectionPermissions)
	admin.HandleFunc("/get_document", s.handleGetDocument)
	admin.HandleFunc("/create_document", s.handleCreateDocument)
	admin.HandleFunc("/update_document", s.handleUpdateDocument)
	admin.HandleFunc("/delete_document", s.handleDeleteDocument)
	admin.HandleFunc("/update_document_permissions", s.handleUpdateDocumentPermissions)
	admin.HandleFunc("/create_group", s.handleCreateGroup)
	admin.HandleFunc("/get_group", s.handleGetGroup)
	admin.HandleFunc("/delete_group", s.handleDeleteGroup)
	admin.HandleFunc("/get_user", s.handleGetUser)
	admin.HandleFunc("/add_user_to_group", s.handleAddUserToGroup)
	admin.HandleFunc("/remove_user_from_group", s.handleRemoveUserFromGroup)
	admin.HandleFunc("/remove_user_from_all_groups", s.handleRemoveUserFromAllGroups)

	mux.Handle("/create_collection", s.checkAuthToken(admin))
	mux.Handle("/get_collection", s.checkAuthToken(admin))
	mux.Handle("/update_collection_permissions", s.checkAuthToken(admin))
	mux.Handle("/get_document", s.checkAuthToken(admin))
	mux.Handle("/create_document", s.checkAuthToken(admin))
	mux.Handle("/update_document", s.checkAuthToken(admin))
	mux.Handle("/delete_document", s.checkAuthToken(admin))
	mux.Handle("/update_document_permissions", s.checkAuthToken(admin))
	mux.Handle("/create_group", s.checkAuthToken(admin))
	mux.Handle("/get_group", s.checkAuthToken(admin))
	mux.Handle("/delete_group", s.checkAuthToken(admin))
	mux.Handle("/get_user", s.checkAuthToken(admin))
	mux.Handle("/add_user_to_group", s.checkAuthToken(admin))
	mux.Handle("/remove_user_from_group", s.checkAuthToken(admin))
	mux.Handle("/remove_user_from_all_groups", s.checkAuthToken(admin))

	return mux
}

// checkAuthToken gates the admin surface behind the x-sinkron-api-token
// header, matching original_source's check_auth_token middleware.
func (s *Server) checkAuthToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-sinkron-api-token") != s.apiToken {
			s.writeError(w, wire.AuthFailed("invalid api token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeError(w http.ResponseWriter, err *wire.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code.HTTPStatus())
	json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: err.Message})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Sinkron api"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

// handleSync upgrades the connection, authenticates it via the configured
// sync-auth-url hook, and hands it to Root.Connect — auth happens before
// any actor is involved, so a failed handshake never touches the
// collection directory, matching original_source's handle_connect.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	colId := r.URL.Query().Get("col")
	token := r.URL.Query().Get("token")
	sinceColrev, _ := strconv.ParseInt(r.URL.Query().Get("colrev"), 10, 64)

	if colId == "" {
		http.Error(w, "missing col parameter", http.StatusBadRequest)
		return
	}
	if s.guard != nil && !s.guard.AllowConnection() {
		http.Error(w, "server overloaded", http.StatusServiceUnavailable)
		return
	}

	userId, authErr := s.auth.Authenticate(r.Context(), token)
	if authErr != nil {
		conn, upErr := wsio.Upgrade(w, r)
		if upErr == nil {
			buf, _ := json.Marshal(wire.NewSyncError(authErr))
			conn.WriteMessage(buf)
			conn.Close()
		}
		return
	}

	user, err := s.groups.GetUser(r.Context(), userId)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userId).Msg("failed to resolve user groups")
		user = permissions.User{Id: userId}
	}

	conn, err := wsio.Upgrade(w, r)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	if connErr := s.root.Connect(r.Context(), colId, sinceColrev, user, conn); connErr != nil {
		buf, _ := json.Marshal(wire.NewSyncError(connErr))
		conn.WriteMessage(buf)
		conn.Close()
	}
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Id          string `json:"id"`
		IsRef       bool   `json:"isRef"`
		Permissions string `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, wire.BadRequest("malformed request body"))
		return
	}
	if body.Id == "" {
		body.Id = uuid.NewString()
	}
	col, err := s.store.CreateCollection(r.Context(), body.Id, body.IsRef, body.Permissions)
	if err != nil {
		s.writeError(w, wire.AsError(err))
		return
	}
	s.writeJSON(w, col)
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	col, err := s.store.GetCollection(r.Context(), id)
	if err != nil {
		s.writeError(w, notFoundOr(err, "collection %s not found", id))
		return
	}
	s.writeJSON(w, col)
}

func (s *Server) handleUpdateCollectionPermissions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Id          string `json:"id"`
		Permissions string `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, wire.BadRequest("malformed request body"))
		return
	}
	if err := s.store.UpdateCollectionPermissions(r.Context(), body.Id, body.Permissions); err != nil {
		s.writeError(w, notFoundOr(err, "collection %s not found", body.Id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	colId := r.URL.Query().Get("col")
	id := r.URL.Query().Get("id")
	doc, err := s.store.GetDocument(r.Context(), colId, id)
	if err != nil {
		s.writeError(w, notFoundOr(err, "document %s not found", id))
		return
	}
	s.writeJSON(w, doc)
}

// createDocumentBody's Permissions field is SPEC_FULL §12.2's supplemented
// per-document override; an empty string falls back to the collection's
// permissions.
type createDocumentBody struct {
	Col         string `json:"col"`
	Id          string `json:"id"`
	Data        string `json:"data"`
	Permissions string `json:"permissions"`
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var body createDocumentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, wire.BadRequest("malformed request body"))
		return
	}
	if body.Id == "" {
		body.Id = uuid.NewString()
	}
	ca, err := s.root.CollectionFor(body.Col)
	if err != nil {
		s.writeError(w, notFoundOr(err, "collection %s not found", body.Col))
		return
	}
	data, decErr := decodeBase64(body.Data)
	if decErr != nil {
		s.writeError(w, wire.BadRequest("data is not valid base64"))
		return
	}
	// Admin-originated changes always generate their own changeid; they
	// never echo one supplied by a caller (see DESIGN.md, HTTP surface).
	doc, mutErr := ca.AdminCreate(body.Id, actors.NewChangeId(), data, body.Permissions)
	if mutErr != nil {
		s.writeError(w, mutErr)
		return
	}
	s.writeJSON(w, doc)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Col  string `json:"col"`
		Id   string `json:"id"`
		Data string `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, wire.BadRequest("malformed request body"))
		return
	}
	ca, err := s.root.CollectionFor(body.Col)
	if err != nil {
		s.writeError(w, notFoundOr(err, "collection %s not found", body.Col))
		return
	}
	data, decErr := decodeBase64(body.Data)
	if decErr != nil {
		s.writeError(w, wire.BadRequest("data is not valid base64"))
		return
	}
	doc, mutErr := ca.AdminUpdate(body.Id, actors.NewChangeId(), data)
	if mutErr != nil {
		s.writeError(w, mutErr)
		return
	}
	s.writeJSON(w, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Col string `json:"col"`
		Id  string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, wire.BadRequest("malformed request body"))
		return
	}
	ca, err := s.root.CollectionFor(body.Col)
	if err != nil {
		s.writeError(w, notFoundOr(err, "collection %s not found", body.Col))
		return
	}
	doc, mutErr := ca.AdminDelete(body.Id, actors.NewChangeId())
	if mutErr != nil {
		s.writeError(w, mutErr)
		return
	}
	s.writeJSON(w, doc)
}

func (s *Server) handleUpdateDocumentPermissions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Col         string `json:"col"`
		Id          string `json:"id"`
		Permissions string `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, wire.BadRequest("malformed request body"))
		return
	}
	if err := s.store.UpdateDocumentPermissions(r.Context(), body.Col, body.Id, body.Permissions); err != nil {
		s.writeError(w, notFoundOr(err, "document %s not found", body.Id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Id string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, wire.BadRequest("malformed request body"))
		return
	}
	if body.Id == "" {
		body.Id = uuid.NewString()
	}
	g, err := s.groups.CreateGroup(r.Context(), body.Id)
	if err != nil {
		s.writeError(w, wire.AsError(err))
		return
	}
	s.writeJSON(w, g)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	g, err := s.groups.GetGroup(r.Context(), id)
	if err != nil {
		s.writeError(w, notFoundOr(err, "group %s not found", id))
		return
	}
	s.writeJSON(w, g)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Id string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, wire.BadRequest("malformed request body"))
		return
	}
	if err := s.groups.DeleteGroup(r.Context(), body.Id); err != nil {
		s.writeError(w, notFoundOr(err, "group %s not found", body.Id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	u, err := s.groups.GetUser(r.Context(), id)
	if err != nil {
		s.writeError(w, wire.Internal(err))
		return
	}
	s.writeJSON(w, u)
}

func (s *Server) handleAddUserToGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Group string `json:"group"`
		User  string `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, wire.BadRequest("malformed request body"))
		return
	}
	if err := s.groups.AddUserToGroup(r.Context(), body.Group, body.User); err != nil {
		s.writeError(w, wire.AsError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveUserFromGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Group string `json:"group"`
		User  string `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, wire.BadRequest("malformed request body"))
		return
	}
	if err := s.groups.RemoveUserFromGroup(r.Context(), body.Group, body.User); err != nil {
		s.writeError(w, notFoundOr(err, "membership not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveUserFromAllGroups(w http.ResponseWriter, r *http.Request) {
	var body struct {
		User string `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, wire.BadRequest("malformed request body"))
		return
	}
	if err := s.groups.RemoveUserFromAllGroups(r.Context(), body.User); err != nil {
		s.writeError(w, wire.AsError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func notFoundOr(err error, format string, args ...any) *wire.Error {
	if err == store.ErrNotFound {
		return wire.NotFound(format, args...)
	}
	return wire.Internal(err)
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
