package actors

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sunflowerdeath/sinkron/internal/crdtdoc"
	"github.com/sunflowerdeath/sinkron/internal/metrics"
	"github.com/sunflowerdeath/sinkron/internal/permissions"
	"github.com/sunflowerdeath/sinkron/internal/store"
	"github.com/sunflowerdeath/sinkron/internal/wire"
	"github.com/sunflowerdeath/sinkron/internal/workerpool"
)

// syncResult is what CollectionActor.Sync replies with: the set of
// documents the caller must catch up on, plus the collection's current
// colrev to stamp the SyncComplete message.
type syncResult struct {
	docs   []*store.Document
	colrev int64
	err    *wire.Error
}

// mutationResult is the reply shape for Create/Update/Delete.
type mutationResult struct {
	doc *store.Document
	err *wire.Error
}

type syncRequest struct {
	sinceColrev int64
	user        permissions.User
	reply       chan syncResult
}

type getRequest struct {
	docId string
	user  permissions.User
	reply chan mutationResult
}

type createRequest struct {
	docId       string
	changeId    string
	data        []byte
	permissions string // admin override, empty to inherit collection perms
	user        permissions.User
	admin       bool // bypasses the create permission check
	reply       chan mutationResult
}

type updateRequest struct {
	docId    string
	changeId string
	data     []byte
	user     permissions.User
	admin    bool
	reply    chan mutationResult
}

type deleteRequest struct {
	docId    string
	changeId string
	user     permissions.User
	admin    bool
	reply    chan mutationResult
}

type subscribeRequest struct {
	clientId int64
	send     chan []byte
}

type unsubscribeRequest struct {
	clientId int64
}

// CollectionActor owns one collection: it is the single writer for that
// collection's colrev, the single place permission checks and CRDT merges
// happen, and the fan-out point for broadcasting accepted mutations to
// every subscribed ClientActor. All of that is serialized through its
// mailbox, exactly as original_source's CollectionActor serializes through
// its mpsc channel.
type CollectionActor struct {
	id     string
	store  store.Store
	pool   *workerpool.Pool
	logger zerolog.Logger

	mergeTimeout time.Duration

	perms  permissions.Permissions
	colrev int64

	subscribers map[int64]chan []byte

	mailbox chan any
	onIdle  func()

	// stop is closed once the actor decides to exit on its own — either
	// its last subscriber unsubscribed (spec.md §4.2.3 invariant 6) or a
	// merge failed fatally (spec.md §4.2.2 step 3, §7). stopOnce guards
	// against closing it twice.
	stop     chan struct{}
	stopOnce sync.Once
}

// NewCollectionActor loads the collection row and starts its mailbox
// loop. onIdle is invoked when the actor exits — once it has no
// subscribers left (or a merge failed fatally) and its mailbox has
// drained, or when ctx is cancelled — so Root can evict it from the
// directory.
func NewCollectionActor(ctx context.Context, id string, s store.Store, pool *workerpool.Pool, mergeTimeout time.Duration, logger zerolog.Logger, onIdle func()) (*CollectionActor, error) {
	col, err := s.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}

	ca := &CollectionActor{
		id:           id,
		store:        s,
		pool:         pool,
		logger:       logger.With().Str("col_id", id).Logger(),
		mergeTimeout: mergeTimeout,
		perms:        permissions.ParseOrEmpty([]byte(col.Permissions)),
		colrev:       col.Colrev,
		subscribers:  make(map[int64]chan []byte),
		mailbox:      make(chan any, 64),
		onIdle:       onIdle,
		stop:         make(chan struct{}),
	}
	metrics.ActiveCollections.Inc()
	supervise(ctx, ca.run, func() {
		metrics.ActiveCollections.Dec()
		if ca.onIdle != nil {
			ca.onIdle()
		}
	})
	return ca, nil
}

func (ca *CollectionActor) run(ctx context.Context) {
	for {
		select {
		case msg := <-ca.mailbox:
			ca.handle(ctx, msg)
		case <-ca.stop:
			for {
				select {
				case msg := <-ca.mailbox:
					ca.handle(ctx, msg)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (ca *CollectionActor) handle(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case syncRequest:
		m.reply <- ca.handleSync(m)
	case getRequest:
		m.reply <- ca.handleGet(ctx, m)
	case createRequest:
		m.reply <- ca.handleCreate(ctx, m)
	case updateRequest:
		res, fatal := ca.handleUpdate(ctx, m)
		m.reply <- res
		if fatal {
			ca.triggerStop()
		}
	case deleteRequest:
		m.reply <- ca.handleDelete(ctx, m)
	case subscribeRequest:
		ca.subscribers[m.clientId] = m.send
	case unsubscribeRequest:
		delete(ca.subscribers, m.clientId)
		if len(ca.subscribers) == 0 {
			ca.triggerStop()
		}
	}
}

// triggerStop signals run()'s mailbox loop to exit once the current
// message is handled and the messages already queued have been drained,
// so the actor's supervise() goroutine runs onExit (which
// decrements the active-collection gauge and evicts it from Root's
// directory) within one message cycle.
func (ca *CollectionActor) triggerStop() {
	ca.stopOnce.Do(func() { close(ca.stop) })
}

// Sync, Get, Create, Update, Delete, Subscribe, and Unsubscribe are the
// public API ClientActor calls into. Each sends a message onto the
// mailbox; all but Subscribe and Unsubscribe then block for the reply.
// Routing every call through the mailbox is what keeps every mutation
// strictly ordered through the single goroutine running run().

func (ca *CollectionActor) Sync(sinceColrev int64, user permissions.User) ([]*store.Document, int64, *wire.Error) {
	reply := make(chan syncResult, 1)
	ca.mailbox <- syncRequest{sinceColrev: sinceColrev, user: user, reply: reply}
	res := <-reply
	return res.docs, res.colrev, res.err
}

func (ca *CollectionActor) Get(docId string, user permissions.User) (*store.Document, *wire.Error) {
	reply := make(chan mutationResult, 1)
	ca.mailbox <- getRequest{docId: docId, user: user, reply: reply}
	res := <-reply
	return res.doc, res.err
}

func (ca *CollectionActor) Create(docId, changeId string, data []byte, permsOverride string, user permissions.User) (*store.Document, *wire.Error) {
	return ca.create(docId, changeId, data, permsOverride, user, false)
}

// AdminCreate bypasses the collection's create permission check, for the
// authenticated admin HTTP surface (SPEC_FULL §12.1).
func (ca *CollectionActor) AdminCreate(docId, changeId string, data []byte, permsOverride string) (*store.Document, *wire.Error) {
	return ca.create(docId, changeId, data, permsOverride, permissions.User{}, true)
}

func (ca *CollectionActor) create(docId, changeId string, data []byte, permsOverride string, user permissions.User, admin bool) (*store.Document, *wire.Error) {
	reply := make(chan mutationResult, 1)
	ca.mailbox <- createRequest{docId: docId, changeId: changeId, data: data, permissions: permsOverride, user: user, admin: admin, reply: reply}
	res := <-reply
	return res.doc, res.err
}

func (ca *CollectionActor) Update(docId, changeId string, data []byte, user permissions.User) (*store.Document, *wire.Error) {
	return ca.update(docId, changeId, data, user, false)
}

func (ca *CollectionActor) AdminUpdate(docId, changeId string, data []byte) (*store.Document, *wire.Error) {
	return ca.update(docId, changeId, data, permissions.User{}, true)
}

func (ca *CollectionActor) update(docId, changeId string, data []byte, user permissions.User, admin bool) (*store.Document, *wire.Error) {
	reply := make(chan mutationResult, 1)
	ca.mailbox <- updateRequest{docId: docId, changeId: changeId, data: data, user: user, admin: admin, reply: reply}
	res := <-reply
	return res.doc, res.err
}

func (ca *CollectionActor) Delete(docId, changeId string, user permissions.User) (*store.Document, *wire.Error) {
	return ca.delete(docId, changeId, user, false)
}

func (ca *CollectionActor) AdminDelete(docId, changeId string) (*store.Document, *wire.Error) {
	return ca.delete(docId, changeId, permissions.User{}, true)
}

func (ca *CollectionActor) delete(docId, changeId string, user permissions.User, admin bool) (*store.Document, *wire.Error) {
	reply := make(chan mutationResult, 1)
	ca.mailbox <- deleteRequest{docId: docId, changeId: changeId, user: user, admin: admin, reply: reply}
	res := <-reply
	return res.doc, res.err
}

func (ca *CollectionActor) Subscribe(clientId int64, send chan []byte) {
	ca.mailbox <- subscribeRequest{clientId: clientId, send: send}
}

func (ca *CollectionActor) Unsubscribe(clientId int64) {
	ca.mailbox <- unsubscribeRequest{clientId: clientId}
}

// handleSync implements spec.md §4.2.1's colrev branching: equal colrevs
// need no page, a client claiming a colrev ahead of the server is
// unprocessable, colrev zero gets every non-deleted document in creation
// order, and anything else gets every document (including tombstones)
// newer than the client's colrev.
func (ca *CollectionActor) handleSync(req syncRequest) syncResult {
	if !ca.perms.Check(req.user, permissions.ActionRead) {
		return syncResult{err: wire.Forbidden("no read access to collection %s", ca.id)}
	}
	if req.sinceColrev == ca.colrev {
		return syncResult{colrev: ca.colrev}
	}
	if req.sinceColrev > ca.colrev {
		return syncResult{err: wire.Unprocessable("client colrev %d ahead of server colrev %d", req.sinceColrev, ca.colrev)}
	}
	docs, err := ca.store.ListChangedSince(context.Background(), ca.id, req.sinceColrev)
	if err != nil {
		return syncResult{err: wire.Internal(err)}
	}
	return syncResult{docs: docs, colrev: ca.colrev}
}

func (ca *CollectionActor) handleGet(ctx context.Context, req getRequest) mutationResult {
	doc, err := ca.store.GetDocument(ctx, ca.id, req.docId)
	if err != nil {
		if err == store.ErrNotFound {
			return mutationResult{err: wire.NotFound("document %s not found", req.docId)}
		}
		return mutationResult{err: wire.Internal(err)}
	}
	if !ca.docPerms(doc).Check(req.user, permissions.ActionRead) {
		return mutationResult{err: wire.Forbidden("no read access to document %s", req.docId)}
	}
	return mutationResult{doc: doc}
}

func (ca *CollectionActor) docPerms(doc *store.Document) permissions.Permissions {
	if doc.Permissions != "" {
		return permissions.ParseOrEmpty([]byte(doc.Permissions))
	}
	return ca.perms
}

// handleCreate has no CRDT step: spec.md §4.2.2 step 3 is "(Update only)",
// and Create's only work is the permission check, the duplicate-id
// precondition, the colrev bump, and inserting the client's bytes as-is
// (original_source/sinkron/src/actors/collection.rs's handle_create never
// touches loro).
func (ca *CollectionActor) handleCreate(ctx context.Context, req createRequest) mutationResult {
	if !req.admin && !ca.perms.Check(req.user, permissions.ActionCreate) {
		return mutationResult{err: wire.Forbidden("no create access to collection %s", ca.id)}
	}
	if _, err := ca.store.GetDocument(ctx, ca.id, req.docId); err == nil {
		return mutationResult{err: wire.Unprocessable("document %s already exists", req.docId)}
	} else if err != store.ErrNotFound {
		return mutationResult{err: wire.Internal(err)}
	}

	effectivePerms := req.permissions
	if effectivePerms == "" {
		effectivePerms = ca.perms.String()
	}

	colrev, err := ca.store.IncrementColrev(ctx, ca.id)
	if err != nil {
		return mutationResult{err: wire.Internal(err)}
	}
	ca.colrev = colrev
	metrics.ColrevBumpsTotal.Inc()

	doc, err := ca.store.CreateDocument(ctx, ca.id, req.docId, req.data, colrev, effectivePerms)
	if err != nil {
		return mutationResult{err: wire.Internal(err)}
	}

	ca.broadcast(wire.OpCreate, req.docId, req.changeId, req.data, colrev)
	return mutationResult{doc: doc}
}

// handleUpdate's second return value reports a fatal merge failure
// (timeout or worker failure): spec.md §4.2.2 step 3 and §7 require that
// to terminate the actor rather than just fail the request, matching the
// original's update_loro_doc, which panics on both its join-error and
// timeout branches.
func (ca *CollectionActor) handleUpdate(ctx context.Context, req updateRequest) (mutationResult, bool) {
	existing, err := ca.store.GetDocument(ctx, ca.id, req.docId)
	if err != nil {
		if err == store.ErrNotFound {
			return mutationResult{err: wire.NotFound("document %s not found", req.docId)}, false
		}
		return mutationResult{err: wire.Internal(err)}, false
	}
	if !req.admin && !ca.docPerms(existing).Check(req.user, permissions.ActionUpdate) {
		return mutationResult{err: wire.Forbidden("no update access to document %s", req.docId)}, false
	}
	if existing.IsDeleted {
		return mutationResult{err: wire.Unprocessable("document %s already deleted", req.docId)}, false
	}

	doc, importErr := crdtdoc.Import(existing.Data)
	if importErr != nil {
		return mutationResult{err: wire.Internal(importErr)}, false
	}
	snapshot, mergeErr, fatal := ca.merge(ctx, doc, req.data)
	if mergeErr != nil {
		return mutationResult{err: mergeErr}, fatal
	}

	colrev, err := ca.store.IncrementColrev(ctx, ca.id)
	if err != nil {
		return mutationResult{err: wire.Internal(err)}, false
	}
	ca.colrev = colrev
	metrics.ColrevBumpsTotal.Inc()

	updated, err := ca.store.UpdateDocument(ctx, ca.id, req.docId, snapshot, colrev)
	if err != nil {
		return mutationResult{err: wire.Internal(err)}, false
	}

	ca.broadcast(wire.OpUpdate, req.docId, req.changeId, snapshot, colrev)
	return mutationResult{doc: updated}, false
}

func (ca *CollectionActor) handleDelete(ctx context.Context, req deleteRequest) mutationResult {
	existing, err := ca.store.GetDocument(ctx, ca.id, req.docId)
	if err != nil {
		if err == store.ErrNotFound {
			return mutationResult{err: wire.NotFound("document %s not found", req.docId)}
		}
		return mutationResult{err: wire.Internal(err)}
	}
	if !req.admin && !ca.docPerms(existing).Check(req.user, permissions.ActionDelete) {
		return mutationResult{err: wire.Forbidden("no delete access to document %s", req.docId)}
	}
	if existing.IsDeleted {
		return mutationResult{err: wire.Unprocessable("document %s already deleted", req.docId)}
	}

	colrev, err := ca.store.IncrementColrev(ctx, ca.id)
	if err != nil {
		return mutationResult{err: wire.Internal(err)}
	}
	ca.colrev = colrev
	metrics.ColrevBumpsTotal.Inc()

	deleted, err := ca.store.DeleteDocument(ctx, ca.id, req.docId, colrev)
	if err != nil {
		return mutationResult{err: wire.Internal(err)}
	}

	ca.broadcast(wire.OpDelete, req.docId, req.changeId, nil, colrev)
	return mutationResult{doc: deleted}
}

// merge runs a CRDT update off the mailbox goroutine on the shared worker
// pool, bounded by mergeTimeout — spec.md §4.2.2 step 3. It distinguishes
// two failure modes the spec treats differently:
//
//   - the update bytes themselves don't import (malformed client data):
//     bad_request, the request just fails (spec.md §4.2.2 step 3, §7;
//     original: SinkronError::bad_request("Couldn't import update")).
//   - the pool times out or can't run the task at all: a bug, not a user
//     error — the caller must terminate the actor (spec.md §7; original's
//     update_loro_doc panics on both its join-error and timeout branches).
//
// The third return value reports the second case.
func (ca *CollectionActor) merge(ctx context.Context, doc *crdtdoc.Doc, update []byte) ([]byte, *wire.Error, bool) {
	mergeCtx, cancel := context.WithTimeout(ctx, ca.mergeTimeout)
	defer cancel()

	var snapshot []byte
	err := ca.pool.Run(mergeCtx, func() error {
		if err := doc.ApplyUpdate(update); err != nil {
			return err
		}
		snapshot = doc.Save()
		return nil
	})
	if err == nil {
		return snapshot, nil, false
	}
	if err == workerpool.ErrTimeout || err == workerpool.ErrQueueFull {
		metrics.MergeTimeouts.Inc()
		ca.logger.Error().Err(err).Msg("crdt merge failed fatally; terminating collection actor")
		return nil, wire.Internal(err), true
	}
	return nil, wire.BadRequest("couldn't import update: %v", err), false
}

// broadcast serializes the change envelope exactly once and fans it out
// to every subscriber, matching the teacher's internal/shared/broadcast.go
// and spec.md §9's "serialize once per mutation" rule.
func (ca *CollectionActor) broadcast(op wire.Op, docId, changeId string, data []byte, colrev int64) {
	var dataB64 *string
	if data != nil {
		s := base64.StdEncoding.EncodeToString(data)
		dataB64 = &s
	}
	msg := wire.ServerChangeMessage{
		Kind:     wire.KindChangeBcast,
		Id:       docId,
		ChangeId: changeId,
		Op:       op,
		Data:     dataB64,
		Colrev:   colrev,
	}
	buf, err := json.Marshal(msg)
	if err != nil {
		ca.logger.Error().Err(err).Msg("failed to marshal broadcast message")
		return
	}

	metrics.SubscribersPerCollection.Observe(float64(len(ca.subscribers)))
	for clientId, send := range ca.subscribers {
		select {
		case send <- buf:
		default:
			metrics.BroadcastDropped.WithLabelValues(ca.id).Inc()
			ca.logger.Warn().Int64("client_id", clientId).Msg("dropped broadcast: send buffer full")
		}
	}
}

// NewChangeId generates a server-assigned changeid for admin-originated
// mutations, which never carry a client-supplied one (see DESIGN.md,
// HTTP surface).
func NewChangeId() string {
	return uuid.NewString()
}
