package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"collabtext/internal/apperr"
	"collabtext/internal/document"
	"collabtext/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	version    BIGINT NOT NULL DEFAULT 1,
	owner_id   TEXT NOT NULL,
	shares     JSONB NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS document_history (
	document_id TEXT NOT NULL,
	version     BIGINT NOT NULL,
	content     TEXT NOT NULL,
	edited_by   TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_document_history_doc_version
	ON document_history (document_id, version DESC);
`

// Postgres is the production DocumentStore backed by pgx/v5.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a pool against dsn and applies the schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "connect to postgres", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, apperr.Wrap(apperr.Transient, "apply schema", err)
	}
	logging.WithComponent("store").Info().Msg("connected to postgres")
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) GetByID(ctx context.Context, documentID string) (*document.Record, error) {
	var (
		rec       document.Record
		sharesRaw []byte
	)
	row := p.pool.QueryRow(ctx, `
		SELECT id, title, content, version, owner_id, shares
		FROM documents WHERE id = $1`, documentID)

	if err := row.Scan(&rec.ID, &rec.Title, &rec.Content, &rec.Version, &rec.Owner, &sharesRaw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "document not found")
		}
		return nil, apperr.Wrap(apperr.Transient, "load document", err)
	}

	rec.Shares = make(map[string]document.Role)
	if len(sharesRaw) > 0 {
		if err := json.Unmarshal(sharesRaw, &rec.Shares); err != nil {
			return nil, apperr.Wrap(apperr.Transient, "decode shares", err)
		}
	}

	history, err := p.loadHistory(ctx, documentID)
	if err != nil {
		return nil, err
	}
	rec.History = history

	return &rec, nil
}

func (p *Postgres) loadHistory(ctx context.Context, documentID string) ([]document.VersionEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT version, content, edited_by, created_at
		FROM document_history
		WHERE document_id = $1
		ORDER BY version DESC
		LIMIT $2`, documentID, document.MaxHistoryEntries)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "load history", err)
	}
	defer rows.Close()

	var entries []document.VersionEntry
	for rows.Next() {
		var e document.VersionEntry
		if err := rows.Scan(&e.Version, &e.Content, &e.EditedBy, &e.Timestamp); err != nil {
			return nil, apperr.Wrap(apperr.Transient, "scan history row", err)
		}
		entries = append(entries, e)
	}

	// rows came back newest-first; reverse to oldest-first, matching the
	// in-memory Record.History ordering.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

func (p *Postgres) Create(ctx context.Context, rec *document.Record) error {
	sharesRaw, err := json.Marshal(rec.Shares)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "encode shares", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO documents (id, title, content, version, owner_id, shares)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.Title, rec.Content, rec.Version, rec.Owner, sharesRaw)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "create document", err)
	}
	return nil
}

// Save persists content, version, and shares, and appends the newest
// history entry (if any) in the same transaction so a concurrent save to
// the same id can never observe a torn write.
func (p *Postgres) Save(ctx context.Context, rec *document.Record) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "begin save transaction", err)
	}
	defer tx.Rollback(ctx)

	sharesRaw, err := json.Marshal(rec.Shares)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "encode shares", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE documents
		SET title = $2, content = $3, version = $4, owner_id = $5, shares = $6, updated_at = now()
		WHERE id = $1`,
		rec.ID, rec.Title, rec.Content, rec.Version, rec.Owner, sharesRaw)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "update document", err)
	}

	if n := len(rec.History); n > 0 {
		latest := rec.History[n-1]
		_, err = tx.Exec(ctx, `
			INSERT INTO document_history (document_id, version, content, edited_by, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			rec.ID, latest.Version, latest.Content, latest.EditedBy, latest.Timestamp)
		if err != nil {
			return apperr.Wrap(apperr.Transient, "append history", err)
		}

		if _, err := tx.Exec(ctx, `
			DELETE FROM document_history
			WHERE document_id = $1 AND version NOT IN (
				SELECT version FROM document_history
				WHERE document_id = $1
				ORDER BY version DESC
				LIMIT $2
			)`, rec.ID, document.MaxHistoryEntries); err != nil {
			return apperr.Wrap(apperr.Transient, "trim history", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.Transient, "commit save transaction", err)
	}
	return nil
}

func (p *Postgres) FindSharedOrOwned(ctx context.Context, userID string) ([]*document.Record, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, title, content, version, owner_id, shares
		FROM documents
		WHERE owner_id = $1 OR shares ? $1`, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "find shared or owned", err)
	}
	defer rows.Close()

	var out []*document.Record
	for rows.Next() {
		var (
			rec       document.Record
			sharesRaw []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Content, &rec.Version, &rec.Owner, &sharesRaw); err != nil {
			return nil, apperr.Wrap(apperr.Transient, "scan document row", err)
		}
		rec.Shares = make(map[string]document.Role)
		if len(sharesRaw) > 0 {
			_ = json.Unmarshal(sharesRaw, &rec.Shares)
		}
		out = append(out, &rec)
	}
	return out, nil
}

var _ DocumentStore = (*Postgres)(nil)
