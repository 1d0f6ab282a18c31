// Package postgres stores notification details in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/frame_layer/services/frame"
	"github.com/R3E-Network/frame_layer/services/frame/store"
)

// Schema creates the notification table.
const Schema = `
CREATE TABLE IF NOT EXISTS frame_notifications (
	fid        BIGINT PRIMARY KEY,
	url        TEXT NOT NULL,
	token      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// Store implements store.NotificationStore backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ store.NotificationStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, fid int64, details frame.NotificationDetails) error {
	rec := store.Record{
		FID:       fid,
		URL:       details.URL,
		Token:     details.Token,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO frame_notifications (fid, url, token, updated_at)
		VALUES (:fid, :url, :token, :updated_at)
		ON CONFLICT (fid) DO UPDATE
		SET url = EXCLUDED.url, token = EXCLUDED.token, updated_at = EXCLUDED.updated_at
	`, rec)
	if err != nil {
		return fmt.Errorf("save notification details: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, fid int64) (store.Record, error) {
	var rec store.Record
	err := s.db.GetContext(ctx, &rec, `
		SELECT fid, url, token, updated_at
		FROM frame_notifications
		WHERE fid = $1
	`, fid)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("get notification details: %w", err)
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, fid int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM frame_notifications WHERE fid = $1`, fid); err != nil {
		return fmt.Errorf("delete notification details: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM frame_notifications`); err != nil {
		return 0, fmt.Errorf("count notification details: %w", err)
	}
	return n, nil
}
