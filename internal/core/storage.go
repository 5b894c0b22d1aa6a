package core

import (
	"context"
	"fmt"
	"os"

	"housingcore/internal/blob"
	blobfs "housingcore/internal/infra/blob/fs"
	blobmemory "housingcore/internal/infra/blob/memory"
	blobs3 "housingcore/internal/infra/blob/s3"
	"housingcore/internal/infra/persistence/flatfile"
	"housingcore/internal/infra/persistence/memory"
	"housingcore/internal/infra/persistence/postgres"
	"housingcore/internal/infra/persistence/sqlite"
	"housingcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageFlatfile StorageDriver = "flatfile" // pipe-delimited tables on disk
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to flatfile when unset.
//
//	HOUSINGCORE_STORAGE_DRIVER: memory|flatfile|sqlite|postgres (default flatfile)
//	HOUSINGCORE_DATA_DIR: flat-file table directory (default ./data)
//	HOUSINGCORE_SQLITE_PATH: path to sqlite file (default ./housingcore.db)
//	HOUSINGCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine, logger Logger) (PersistentStore, error) {
	driver := os.Getenv("HOUSINGCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageFlatfile)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageFlatfile:
		dir := os.Getenv("HOUSINGCORE_DATA_DIR")
		return flatfile.NewStore(dir, engine, logger)
	case StorageSQLite:
		path := os.Getenv("HOUSINGCORE_SQLITE_PATH")
		return sqlite.NewStore(path, engine)
	case StoragePostgres:
		dsn := os.Getenv("HOUSINGCORE_POSTGRES_DSN")
		return postgres.NewStore(dsn, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenBlobStore selects a receipt-archive backend using environment variables.
// Defaults to the filesystem driver when unset.
//
//	HOUSINGCORE_BLOB_DRIVER: fs|memory|s3 (default fs)
//	HOUSINGCORE_BLOB_FS_ROOT: filesystem root (default ./blobdata)
//	HOUSINGCORE_BLOB_S3_*: see the s3 driver
func OpenBlobStore(ctx context.Context) (blob.Store, error) {
	driver := os.Getenv("HOUSINGCORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(blob.DriverFilesystem)
	}
	switch blob.Driver(driver) {
	case blob.DriverMemory:
		return blobmemory.New(), nil
	case blob.DriverFilesystem:
		return blobfs.New(os.Getenv("HOUSINGCORE_BLOB_FS_ROOT"))
	case blob.DriverS3:
		return blobs3.OpenFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
