// Package store defines persistence of notification tokens issued by hosts.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/R3E-Network/frame_layer/services/frame"
)

// ErrNotFound is returned when no notification details exist for a user.
var ErrNotFound = errors.New("store: notification details not found")

// Record is the stored notification details of one user.
type Record struct {
	FID       int64     `json:"fid" db:"fid"`
	URL       string    `json:"url" db:"url"`
	Token     string    `json:"token" db:"token"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Details returns the record as host notification details.
func (r Record) Details() frame.NotificationDetails {
	return frame.NotificationDetails{URL: r.URL, Token: r.Token}
}

// NotificationStore persists notification details keyed by user fid.
type NotificationStore interface {
	// Save creates or replaces the details of fid.
	Save(ctx context.Context, fid int64, details frame.NotificationDetails) error
	// Get returns ErrNotFound when fid has no details.
	Get(ctx context.Context, fid int64) (Record, error)
	// Delete is a no-op when fid has no details.
	Delete(ctx context.Context, fid int64) error
	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}
