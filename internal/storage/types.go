package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled and the seen-set
// lives in memory only.
type Config struct {
	Driver       string
	Path         string
	ResetOnStart bool          // delete existing state when opening
	BusyTimeout  time.Duration // sqlite only; 0 means default
	Redis        RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Record is one seen item. Data is the upstream JSON object, kept verbatim.
// ID may be empty when the backend only stores Data (file driver).
type Record struct {
	ID   string
	Data json.RawMessage
}

// Store is the persistence contract of the seen-set.
type Store interface {
	// Load returns every stored record.
	Load(ctx context.Context) ([]Record, error)
	// Append adds records; appending an already stored id is a no-op
	// or an overwrite, never a duplicate.
	Append(ctx context.Context, recs []Record) error
	Close() error
}
