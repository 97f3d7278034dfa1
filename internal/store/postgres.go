package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Postgres is the Store implementation backing sinkron's relational state.
// Adopted from the pgx/v5 + pgxpool shape used by the pack's
// uncord-chat-uncord-server manifest, since the teacher repo itself is
// storage-less.
type Postgres struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config describes how to reach Postgres; mirrors original_source's
// db.rs DbConfig.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	MaxConns int32
}

func Connect(ctx context.Context, cfg Config, logger zerolog.Logger) (*Postgres, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &Postgres{pool: pool, logger: logger}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func wrapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (p *Postgres) GetCollection(ctx context.Context, id string) (*Collection, error) {
	var c Collection
	err := p.pool.QueryRow(ctx,
		`SELECT id, is_ref, colrev, permissions FROM collections WHERE id = $1`, id,
	).Scan(&c.Id, &c.IsRef, &c.Colrev, &c.Permissions)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &c, nil
}

func (p *Postgres) CreateCollection(ctx context.Context, id string, isRef bool, permissions string) (*Collection, error) {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO collections (id, is_ref, colrev, permissions) VALUES ($1, $2, 0, $3)`,
		id, isRef, permissions)
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}
	return &Collection{Id: id, IsRef: isRef, Colrev: 0, Permissions: permissions}, nil
}

// IncrementColrev atomically bumps a collection's colrev and returns the
// new value. Every document mutation stamps its own colrev from this
// call — the single point of ordering for the whole sync protocol.
func (p *Postgres) IncrementColrev(ctx context.Context, colId string) (int64, error) {
	var colrev int64
	err := p.pool.QueryRow(ctx,
		`UPDATE collections SET colrev = colrev + 1 WHERE id = $1 RETURNING colrev`, colId,
	).Scan(&colrev)
	if err != nil {
		return 0, wrapNotFound(err)
	}
	return colrev, nil
}

func (p *Postgres) UpdateCollectionPermissions(ctx context.Context, id, permissions string) error {
	cmd, err := p.pool.Exec(ctx, `UPDATE collections SET permissions = $1 WHERE id = $2`, permissions, id)
	if err != nil {
		return fmt.Errorf("updating collection permissions: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateDocumentPermissions(ctx context.Context, colId, docId, permissions string) error {
	cmd, err := p.pool.Exec(ctx,
		`UPDATE documents SET permissions = $1 WHERE col_id = $2 AND id = $3`, permissions, colId, docId)
	if err != nil {
		return fmt.Errorf("updating document permissions: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetDocument(ctx context.Context, colId, docId string) (*Document, error) {
	var d Document
	err := p.pool.QueryRow(ctx,
		`SELECT id, col_id, created_at, updated_at, colrev, data, is_deleted, permissions
		 FROM documents WHERE col_id = $1 AND id = $2`, colId, docId,
	).Scan(&d.Id, &d.ColId, &d.CreatedAt, &d.UpdatedAt, &d.Colrev, &d.Data, &d.IsDeleted, &d.Permissions)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &d, nil
}

func (p *Postgres) ListChangedSince(ctx context.Context, colId string, sinceColrev int64) ([]*Document, error) {
	var rows pgx.Rows
	var err error
	if sinceColrev == 0 {
		rows, err = p.pool.Query(ctx,
			`SELECT id, col_id, created_at, updated_at, colrev, data, is_deleted, permissions
			 FROM documents WHERE col_id = $1 AND is_deleted = false
			 ORDER BY created_at ASC`, colId)
	} else {
		rows, err = p.pool.Query(ctx,
			`SELECT id, col_id, created_at, updated_at, colrev, data, is_deleted, permissions
			 FROM documents WHERE col_id = $1 AND colrev > $2
			 ORDER BY colrev ASC`, colId, sinceColrev)
	}
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.Id, &d.ColId, &d.CreatedAt, &d.UpdatedAt, &d.Colrev, &d.Data, &d.IsDeleted, &d.Permissions); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

func (p *Postgres) CreateDocument(ctx context.Context, colId, docId string, data []byte, colrev int64, permissions string) (*Document, error) {
	now := time.Now().UTC()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO documents (id, col_id, created_at, updated_at, colrev, data, is_deleted, permissions)
		 VALUES ($1, $2, $3, $3, $4, $5, false, $6)`,
		docId, colId, now, colrev, data, permissions)
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}
	return &Document{Id: docId, ColId: colId, CreatedAt: now, UpdatedAt: now, Colrev: colrev, Data: data, Permissions: permissions}, nil
}

func (p *Postgres) UpdateDocument(ctx context.Context, colId, docId string, data []byte, colrev int64) (*Document, error) {
	now := time.Now().UTC()
	cmd, err := p.pool.Exec(ctx,
		`UPDATE documents SET data = $1, colrev = $2, updated_at = $3
		 WHERE col_id = $4 AND id = $5 AND is_deleted = false`,
		data, colrev, now, colId, docId)
	if err != nil {
		return nil, fmt.Errorf("updating document: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return p.GetDocument(ctx, colId, docId)
}

func (p *Postgres) DeleteDocument(ctx context.Context, colId, docId string, colrev int64) (*Document, error) {
	now := time.Now().UTC()
	cmd, err := p.pool.Exec(ctx,
		`UPDATE documents SET data = NULL, is_deleted = true, colrev = $1, updated_at = $2
		 WHERE col_id = $3 AND id = $4 AND is_deleted = false`,
		colrev, now, colId, docId)
	if err != nil {
		return nil, fmt.Errorf("deleting document: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return p.GetDocument(ctx, colId, docId)
}

func (p *Postgres) CreateGroup(ctx context.Context, id string) (*Group, error) {
	_, err := p.pool.Exec(ctx, `INSERT INTO groups (id) VALUES ($1)`, id)
	if err != nil {
		return nil, fmt.Errorf("creating group: %w", err)
	}
	return &Group{Id: id}, nil
}

func (p *Postgres) GetGroup(ctx context.Context, id string) (*Group, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT true FROM groups WHERE id = $1`, id).Scan(&exists); err != nil {
		return nil, wrapNotFound(err)
	}
	members, err := p.groupMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Group{Id: id, Members: members}, nil
}

func (p *Postgres) groupMembers(ctx context.Context, groupId string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT "user" FROM members WHERE "group" = $1`, groupId)
	if err != nil {
		return nil, fmt.Errorf("listing group members: %w", err)
	}
	defer rows.Close()
	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteGroup cascades: members rows first, then the group row, returning
// the member ids that existed so the caller can invalidate their cached
// group membership (spec.md §4.4).
func (p *Postgres) DeleteGroup(ctx context.Context, id string) ([]string, error) {
	members, err := p.groupMembers(ctx, id)
	if err != nil {
		return nil, err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM members WHERE "group" = $1`, id); err != nil {
		return nil, fmt.Errorf("deleting group members: %w", err)
	}
	cmd, err := tx.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("deleting group: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing delete: %w", err)
	}
	return members, nil
}

func (p *Postgres) AddUserToGroup(ctx context.Context, group, user string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO members (id, "group", "user") VALUES (gen_random_uuid(), $1, $2)
		 ON CONFLICT DO NOTHING`, group, user)
	if err != nil {
		return fmt.Errorf("adding user to group: %w", err)
	}
	return nil
}

func (p *Postgres) RemoveUserFromGroup(ctx context.Context, group, user string) error {
	cmd, err := p.pool.Exec(ctx,
		`DELETE FROM members WHERE "group" = $1 AND "user" = $2`, group, user)
	if err != nil {
		return fmt.Errorf("removing user from group: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) RemoveUserFromAllGroups(ctx context.Context, user string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `DELETE FROM members WHERE "user" = $1 RETURNING "group"`, user)
	if err != nil {
		return nil, fmt.Errorf("removing user from all groups: %w", err)
	}
	defer rows.Close()
	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (p *Postgres) GetUserGroups(ctx context.Context, user string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT "group" FROM members WHERE "user" = $1`, user)
	if err != nil {
		return nil, fmt.Errorf("listing user groups: %w", err)
	}
	defer rows.Close()
	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
