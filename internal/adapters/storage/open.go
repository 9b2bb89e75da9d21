package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/ports"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver  string
	Path    string
	DSN     string
	Timeout time.Duration
}

// Open returns the RecordStore selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (ports.RecordStore, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		return OpenSQLite(ctx, SQLiteConfig{Path: cfg.Path, Timeout: cfg.Timeout})
	case DriverPostgres:
		return OpenPostgres(ctx, PostgresConfig{DSN: cfg.DSN, Timeout: cfg.Timeout})
	default:
		return nil, domain.NewStoreError(opOpen, fmt.Errorf("unknown driver %q", cfg.Driver))
	}
}
