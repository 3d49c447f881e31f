package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresBackend keeps every collection in one documents table, one row
// per record with the JSON body in a JSONB column.
type PostgresBackend struct {
	db *sql.DB
}

func NewPostgresBackend(db *sql.DB) (*PostgresBackend, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	b := &PostgresBackend{db: db}
	if err := b.ensureSchema(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *PostgresBackend) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	position INTEGER NOT NULL,
	body JSONB NOT NULL,
	PRIMARY KEY (collection, id)
)`
	if _, err := b.db.Exec(q); err != nil {
		return fmt.Errorf("ensure documents schema: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Load(ctx context.Context, collection string) ([]Document, error) {
	if err := validateCollectionName(collection); err != nil {
		return nil, err
	}
	const q = `
SELECT body
FROM documents
WHERE collection = $1
ORDER BY position ASC`
	rows, err := b.db.QueryContext(ctx, q, collection)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrIO, collection, err)
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", ErrIO, collection, err)
		}
		var doc Document
		if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
			return nil, fmt.Errorf("%w: decode %s row: %v", ErrIO, collection, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s: %v", ErrIO, collection, err)
	}
	return out, nil
}

func (b *PostgresBackend) Save(ctx context.Context, collection string, docs []Document) error {
	if err := validateCollectionName(collection); err != nil {
		return err
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrIO, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1`, collection); err != nil {
		return fmt.Errorf("%w: clear %s: %v", ErrIO, collection, err)
	}

	const q = `
INSERT INTO documents (collection, id, position, body)
VALUES ($1, $2, $3, $4)`
	for i, doc := range docs {
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("%w: encode %s/%s: %v", ErrIO, collection, doc.ID(), err)
		}
		if _, err := tx.ExecContext(ctx, q, collection, doc.ID(), i, body); err != nil {
			return fmt.Errorf("%w: insert %s/%s: %v", ErrIO, collection, doc.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit %s: %v", ErrIO, collection, err)
	}
	return nil
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping postgres: %v", ErrIO, err)
	}
	return nil
}
