package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite file. It is meant for
// development and single-node deployments.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (creating if needed) the SQLite database at dbPath.
func NewSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One connection serializes writers, so concurrent upserts never race.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	for _, pragma := range allPragmas() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	for _, stmt := range allSchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

// RecordAsk upserts the ASKED row and increments its count.
func (s *SQLiteStore) RecordAsk(ctx context.Context, userID, queryText string) error {
	if err := checkArgs(userID, queryText); err != nil {
		return err
	}
	now := s.now().UnixNano()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertNodes(ctx, tx, userID, queryText, now); err != nil {
			return err
		}

		query := `
			INSERT INTO asks (user_id, query_text, ask_count, first_asked, last_asked, seq)
			VALUES (?, ?, 1, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM asks))
			ON CONFLICT(user_id, query_text) DO UPDATE SET
				ask_count = ask_count + 1,
				last_asked = excluded.last_asked,
				seq = excluded.seq
		`
		if _, err := tx.ExecContext(ctx, query, userID, queryText, now, now); err != nil {
			return fmt.Errorf("upserting ask: %w", err)
		}
		return nil
	})
}

// TopQueries returns the user's most asked queries.
func (s *SQLiteStore) TopQueries(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	query := `
		SELECT query_text
		FROM asks
		WHERE user_id = ?
		ORDER BY ask_count DESC, seq DESC, query_text ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top queries: %w", err)
	}
	defer rows.Close()

	top := []string{}
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scanning top query: %w", err)
		}
		top = append(top, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating top queries: %w", err)
	}
	return top, nil
}

// RecordFeedback upserts the FEEDBACK row, overwriting the rating.
func (s *SQLiteStore) RecordFeedback(ctx context.Context, userID, queryText, rating string) error {
	if err := checkArgs(userID, queryText); err != nil {
		return err
	}
	now := s.now().UnixNano()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertNodes(ctx, tx, userID, queryText, now); err != nil {
			return err
		}

		query := `
			INSERT INTO feedback (user_id, query_text, rating, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id, query_text) DO UPDATE SET
				rating = excluded.rating,
				updated_at = excluded.updated_at
		`
		if _, err := tx.ExecContext(ctx, query, userID, queryText, rating, now); err != nil {
			return fmt.Errorf("upserting feedback: %w", err)
		}
		return nil
	})
}

// History lists every asked query with its count and rating.
func (s *SQLiteStore) History(ctx context.Context, userID string) ([]Entry, error) {
	query := `
		SELECT a.query_text, a.ask_count, a.last_asked, COALESCE(f.rating, '')
		FROM asks a
		LEFT JOIN feedback f ON f.user_id = a.user_id AND f.query_text = a.query_text
		WHERE a.user_id = ?
		ORDER BY a.ask_count DESC, a.seq DESC, a.query_text ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			lastAsked int64
		)
		if err := rows.Scan(&e.Query, &e.Count, &lastAsked, &e.Rating); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		e.LastAsked = time.Unix(0, lastAsked).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func upsertNodes(ctx context.Context, tx *sql.Tx, userID, queryText string, now int64) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, created_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		userID, now,
	); err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO queries (text, created_at) VALUES (?, ?) ON CONFLICT(text) DO NOTHING`,
		queryText, now,
	); err != nil {
		return fmt.Errorf("upserting query: %w", err)
	}
	return nil
}
