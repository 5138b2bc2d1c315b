package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"ArxivIntel/internal/domain"
	"ArxivIntel/internal/ports"
)

const stateRowID = 1

const schemaDDL = `
CREATE TABLE IF NOT EXISTS queue_state (
    id                  SMALLINT PRIMARY KEY,
    created_at          TIMESTAMPTZ NOT NULL,
    last_digest_sent_at TIMESTAMPTZ NULL
);
CREATE TABLE IF NOT EXISTS queue_papers (
    paper_id TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    added_at TIMESTAMPTZ NOT NULL,
    payload  JSONB NOT NULL
);`

// PostgresStorage persists the queue into two tables: a single state row and one row per paper.
type PostgresStorage struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

var _ ports.QueueStorage = (*PostgresStorage)(nil)

// NewPostgresStorage wires a sql.DB opened with the postgres driver.
func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Migrate creates the queue tables if they do not exist.
func (r *PostgresStorage) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("migrate queue schema: %w", err)
	}
	return nil
}

// Load returns nil when no state row exists yet.
func (r *PostgresStorage) Load(ctx context.Context) (*domain.QueueSnapshot, error) {
	query, args, err := r.psql.
		Select("created_at", "last_digest_sent_at").
		From("queue_state").
		Where(sq.Eq{"id": stateRowID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build state query: %w", err)
	}

	var (
		snapshot domain.QueueSnapshot
		lastSent sql.NullTime
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&snapshot.CreatedAt, &lastSent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query state: %w", err)
	}
	snapshot.CreatedAt = snapshot.CreatedAt.UTC()
	if lastSent.Valid {
		t := lastSent.Time.UTC()
		snapshot.LastDigestSentAt = &t
	}

	query, args, err = r.psql.
		Select("payload").
		From("queue_papers").
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build papers query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query papers: %w", err)
	}

	snapshot.Papers = []domain.Paper{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		var paper domain.Paper
		if err := json.Unmarshal(payload, &paper); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("decode paper: %w", err)
		}
		snapshot.Papers = append(snapshot.Papers, paper)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return &snapshot, nil
}

// Save replaces the stored queue inside one transaction.
func (r *PostgresStorage) Save(ctx context.Context, snapshot domain.QueueSnapshot) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var lastSent sql.NullTime
	if snapshot.LastDigestSentAt != nil {
		lastSent = sql.NullTime{Time: *snapshot.LastDigestSentAt, Valid: true}
	}

	query, args, err := r.psql.
		Insert("queue_state").
		Columns("id", "created_at", "last_digest_sent_at").
		Values(stateRowID, snapshot.CreatedAt, lastSent).
		Suffix("ON CONFLICT (id) DO UPDATE SET created_at = EXCLUDED.created_at, last_digest_sent_at = EXCLUDED.last_digest_sent_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build state upsert: %w", err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	query, args, err = r.psql.Delete("queue_papers").ToSql()
	if err != nil {
		return fmt.Errorf("build papers delete: %w", err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete papers: %w", err)
	}

	if len(snapshot.Papers) > 0 {
		insert := r.psql.Insert("queue_papers").Columns("paper_id", "position", "added_at", "payload")
		for i, paper := range snapshot.Papers {
			payload, mErr := jsonPayload(paper)
			if mErr != nil {
				err = fmt.Errorf("marshal paper %s: %w", paper.ID, mErr)
				return err
			}
			insert = insert.Values(paper.ID, i, paper.AddedAt, payload)
		}

		query, args, err = insert.ToSql()
		if err != nil {
			return fmt.Errorf("build papers insert: %w", err)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert papers: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func jsonPayload(p domain.Paper) ([]byte, error) {
	return json.Marshal(p)
}
