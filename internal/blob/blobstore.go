// Package blob re-exports the blob storage abstractions and selects a backend
// driver for snapshot archives.
package blob

import (
	"context"
	"fmt"
	"os"

	"codexcore/internal/blob/core"
	fsstore "codexcore/internal/infra/blob/fs"
	memstore "codexcore/internal/infra/blob/memory"
	s3store "codexcore/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// ErrUnsupported indicates an operation isn't supported by a driver.
var ErrUnsupported = core.ErrUnsupported

// ErrNotFound indicates the key has no stored blob.
var ErrNotFound = core.ErrNotFound

// NewFilesystem returns a filesystem-backed store rooted at root.
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }

// NewMemory returns an in-memory store for tests.
func NewMemory() Store { return memstore.New() }

// OpenS3FromEnv returns an S3-backed store configured from environment.
func OpenS3FromEnv(ctx context.Context) (Store, error) { return s3store.OpenFromEnv(ctx) }

// Open selects a blob.Store implementation using environment variables.
//
//	CODEXCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	CODEXCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./archivedata)
//	(S3 specific variables documented in the s3 driver package)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("CODEXCORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("CODEXCORE_BLOB_FS_ROOT"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
