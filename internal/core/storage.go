package core

import (
	"context"
	"fmt"

	"codexcore/internal/blob"
	"codexcore/internal/infra/persistence/memory"
	"codexcore/internal/infra/persistence/postgres"
	"codexcore/internal/infra/persistence/sqlite"
	"codexcore/pkg/domain"
)

// StorageDriver identifies a concrete node store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenNodeStore selects a backend from cfg. Defaults to sqlite when unset.
//
//	CODEXCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	CODEXCORE_SQLITE_PATH: path to sqlite file (default ./codexcore.db)
//	CODEXCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenNodeStore(cfg StorageConfig) (domain.NodeStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenArchive selects a blob backend from cfg for snapshot documents. Defaults
// to the filesystem driver when unset.
func OpenArchive(ctx context.Context, cfg ArchiveConfig) (blob.Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(blob.DriverFilesystem)
	}
	switch blob.Driver(driver) {
	case blob.DriverFilesystem:
		return blob.NewFilesystem(cfg.FSRoot)
	case blob.DriverS3:
		return blob.OpenS3FromEnv(ctx)
	case blob.DriverMemory:
		return blob.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}
