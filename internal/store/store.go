package store

import (
	"context"
	"time"
)

// DebugEntry is one persisted client debug line. Timestamp is the
// client-reported time kept verbatim; CreatedAt is when the server
// stored the entry.
type DebugEntry struct {
	ID        int64
	Timestamp string
	Message   string
	Data      string // extra payload, JSON-encoded, "" when absent
	CreatedAt time.Time
}

// DebugLogStore persists debug lines reported by clients.
type DebugLogStore interface {
	// AppendDebugLog stores one entry and returns it with ID and
	// CreatedAt filled in.
	AppendDebugLog(ctx context.Context, timestamp, message, data string) (*DebugEntry, error)

	// DebugLogsSince lists entries stored at or after since, oldest
	// first.
	DebugLogsSince(ctx context.Context, since time.Time) ([]*DebugEntry, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	DebugLogStore

	// Close closes the underlying database connection.
	Close() error
}
