package core

import (
	"context"
	"path/filepath"
	"testing"

	blobfs "housingcore/internal/infra/blob/fs"
	blobmemory "housingcore/internal/infra/blob/memory"
	"housingcore/internal/infra/persistence/flatfile"
	"housingcore/internal/infra/persistence/memory"
)

func TestOpenPersistentStoreDriverSelection(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		t.Setenv("HOUSINGCORE_STORAGE_DRIVER", "memory")
		store, err := OpenPersistentStore(DefaultRulesEngine(), NopLogger())
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, ok := store.(*memory.Store); !ok {
			t.Fatalf("store type = %T, want *memory.Store", store)
		}
	})

	t.Run("flatfile default", func(t *testing.T) {
		t.Setenv("HOUSINGCORE_STORAGE_DRIVER", "")
		t.Setenv("HOUSINGCORE_DATA_DIR", t.TempDir())
		store, err := OpenPersistentStore(DefaultRulesEngine(), NopLogger())
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, ok := store.(*flatfile.Store); !ok {
			t.Fatalf("store type = %T, want *flatfile.Store", store)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		t.Setenv("HOUSINGCORE_STORAGE_DRIVER", "cassandra")
		if _, err := OpenPersistentStore(DefaultRulesEngine(), NopLogger()); err == nil {
			t.Fatal("unknown driver should fail")
		}
	})
}

func TestOpenBlobStoreDriverSelection(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		t.Setenv("HOUSINGCORE_BLOB_DRIVER", "memory")
		store, err := OpenBlobStore(ctx)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, ok := store.(*blobmemory.Store); !ok {
			t.Fatalf("store type = %T, want *memory.Store", store)
		}
	})

	t.Run("fs default", func(t *testing.T) {
		t.Setenv("HOUSINGCORE_BLOB_DRIVER", "")
		t.Setenv("HOUSINGCORE_BLOB_FS_ROOT", filepath.Join(t.TempDir(), "blobs"))
		store, err := OpenBlobStore(ctx)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, ok := store.(*blobfs.Store); !ok {
			t.Fatalf("store type = %T, want *fs.Store", store)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		t.Setenv("HOUSINGCORE_BLOB_DRIVER", "gcs")
		if _, err := OpenBlobStore(ctx); err == nil {
			t.Fatal("unknown driver should fail")
		}
	})
}
