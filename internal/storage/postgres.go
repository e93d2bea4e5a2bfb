package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
)

// The document is stored whole in a single jsonb row; there is exactly one
// state per deployment, so the id is fixed.
const (
	createStateTable = `
		CREATE TABLE IF NOT EXISTS ghostcover_state (
			id         INT PRIMARY KEY,
			doc        JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	stateRowID = 1
)

// PostgresStorage persists the document as a single jsonb row.
type PostgresStorage struct {
	db  *sql.DB
	log *slog.Logger
}

// NewPostgresStorage prepares the state table and returns the storage.
func NewPostgresStorage(ctx context.Context, db *sql.DB, log *slog.Logger) (*PostgresStorage, error) {
	if log == nil {
		log = slog.Default()
	}

	if _, err := db.ExecContext(ctx, createStateTable); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}

	return &PostgresStorage{db: db, log: log}, nil
}

// Load fetches the single state row. A missing row is reported as
// ErrNotFound; a corrupt payload is logged and also treated as missing so
// the bot starts from a fresh default document.
func (s *PostgresStorage) Load(ctx context.Context) (*domain.Document, error) {
	const query = `SELECT doc FROM ghostcover_state WHERE id = $1`

	var data []byte
	if err := s.db.QueryRowContext(ctx, query, stateRowID).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select state document: %w", err)
	}

	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Error("stored state document corrupt, starting fresh", "error", err)
		return nil, ErrNotFound
	}

	return &doc, nil
}

// Save upserts the state row in one statement.
func (s *PostgresStorage) Save(ctx context.Context, doc *domain.Document) error {
	const query = `
		INSERT INTO ghostcover_state (id, doc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
	`

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode state document: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, stateRowID, data); err != nil {
		return fmt.Errorf("upsert state document: %w", err)
	}

	return nil
}

// Ping proxies to the database connection.
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
