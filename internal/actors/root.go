package actors

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sunflowerdeath/sinkron/internal/permissions"
	"github.com/sunflowerdeath/sinkron/internal/ratelimit"
	"github.com/sunflowerdeath/sinkron/internal/store"
	"github.com/sunflowerdeath/sinkron/internal/wire"
	"github.com/sunflowerdeath/sinkron/internal/workerpool"
	"github.com/sunflowerdeath/sinkron/internal/wsio"
)

// Root is sinkron's connection directory: one CollectionActor per
// collection, spawned on first use (a connecting client or an admin
// document request) and evicted once its last
// subscriber leaves. Grounded on
// original_source/sinkron/src/actors/sinkron.rs's SinkronActor, but
// expressed as a mutex-guarded map rather than a literal mailbox actor —
// nothing about collection lookup needs message-passing serialization the
// way mutation ordering within a collection does, and a mutex is the more
// idiomatic Go shape for that (see DESIGN.md, Open Question: Root actor
// shape).
type Root struct {
	store        store.Store
	pool         *workerpool.Pool
	limiter      *ratelimit.Limiter
	mergeTimeout time.Duration
	heartbeat    time.Duration
	logger       zerolog.Logger

	mu           sync.Mutex
	collections  map[string]*CollectionActor
	nextClientId int64

	ctx context.Context
}

func NewRoot(ctx context.Context, s store.Store, pool *workerpool.Pool, limiter *ratelimit.Limiter, mergeTimeout, heartbeat time.Duration, logger zerolog.Logger) *Root {
	return &Root{
		store:        s,
		pool:         pool,
		limiter:      limiter,
		mergeTimeout: mergeTimeout,
		heartbeat:    heartbeat,
		logger:       logger,
		collections:  make(map[string]*CollectionActor),
		ctx:          ctx,
	}
}

// CollectionFor returns the running CollectionActor for colId, spawning
// one if none exists yet. Used directly by the admin HTTP surface so
// admin-originated mutations flow through the same mailbox, colrev, and
// broadcast pipeline as client mutations.
func (r *Root) CollectionFor(colId string) (*CollectionActor, error) {
	return r.collectionFor(colId)
}

func (r *Root) collectionFor(colId string) (*CollectionActor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ca, ok := r.collections[colId]; ok {
		return ca, nil
	}

	ca, err := NewCollectionActor(r.ctx, colId, r.store, r.pool, r.mergeTimeout, r.logger, func() {
		r.mu.Lock()
		delete(r.collections, colId)
		r.mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	r.collections[colId] = ca
	return ca, nil
}

// Connect resolves a collection, assigns a client id, and blocks running
// that client's ClientActor until it disconnects. Equivalent to
// SinkronActor's handle_connect + ClientHandle spawn, collapsed into a
// single blocking call since the HTTP handler already runs on its own
// goroutine per connection.
func (r *Root) Connect(ctx context.Context, colId string, sinceColrev int64, user permissions.User, conn *wsio.Conn) *wire.Error {
	ca, err := r.CollectionFor(colId)
	if err != nil {
		if err == store.ErrNotFound {
			return wire.NotFound("collection %s not found", colId)
		}
		return wire.Internal(err)
	}

	clientId := r.nextClientIdValue()
	client := NewClientActor(clientId, user, conn, ca, r.limiter, r.heartbeat, r.logger)
	client.Run(ctx, sinceColrev)
	return nil
}

func (r *Root) nextClientIdValue() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextClientId++
	return r.nextClientId
}
