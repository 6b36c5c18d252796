package bitcask

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anthanhphan/go-kvs/internal/kv/config"
)

func dirSize(t *testing.T, dir string) int64 {
	t.Helper()
	var total int64
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			t.Fatal(err)
		}
		total += info.Size()
	}
	return total
}

// Overwriting a handful of keys many times accumulates dead bytes;
// once compaction fires, only the live records remain on disk and the
// observable mapping is unchanged.
func TestCompaction_PreservesMappingAndReclaimsSpace(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(config.StoreConfig{
		DataDir:             dir,
		CompactionThreshold: 4 * 1024,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	value := strings.Repeat("x", 128)

	// Fill until well past the threshold with overwrites of 10 keys.
	for round := 0; round < 100; round++ {
		for k := 0; k < 10; k++ {
			if err := store.Set(ctx, fmt.Sprintf("key-%d", k), fmt.Sprintf("%s-%d", value, round)); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
		}
	}

	if got := store.uncompacted.Load(); got > store.compactionThreshold {
		t.Fatalf("compaction never fired, uncompacted=%d", got)
	}

	// The mapping is exactly the last round's writes.
	for k := 0; k < 10; k++ {
		got, found, err := store.Get(ctx, fmt.Sprintf("key-%d", k))
		if err != nil || !found {
			t.Fatalf("key-%d after compaction: (%v, %v)", k, found, err)
		}
		if want := fmt.Sprintf("%s-99", value); got != want {
			t.Errorf("key-%d: expected last value, got %q", k, got)
		}
	}

	// On-disk footprint is a small multiple of the live data, not of
	// the ~1000 records written.
	liveBytes := int64(10 * (len(value) + 64))
	if size := dirSize(t, dir); size > 10*liveBytes {
		t.Errorf("disk usage %d not reclaimed (live data is ~%d bytes)", size, liveBytes)
	}
}

func TestCompaction_RemovedKeysStayRemoved(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(config.StoreConfig{
		DataDir:             dir,
		CompactionThreshold: 2 * 1024,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	value := strings.Repeat("y", 256)

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("key-%d", i)
		if err := store.Set(ctx, key, value); err != nil {
			t.Fatal(err)
		}
		if i%2 == 0 {
			if err := store.Remove(ctx, key); err != nil {
				t.Fatal(err)
			}
		}
	}

	for i := 0; i < 50; i++ {
		_, found, err := store.Get(ctx, fmt.Sprintf("key-%d", i))
		if err != nil {
			t.Fatalf("key-%d: %v", i, err)
		}
		if i%2 == 0 && found {
			t.Errorf("removed key-%d reappeared after compaction", i)
		}
		if i%2 == 1 && !found {
			t.Errorf("live key-%d lost by compaction", i)
		}
	}
}

// Compacted state must replay identically after a restart.
func TestCompaction_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	value := strings.Repeat("z", 200)

	store, err := Open(config.StoreConfig{
		DataDir:             dir,
		CompactionThreshold: 2 * 1024,
	})
	if err != nil {
		t.Fatal(err)
	}
	for round := 0; round < 30; round++ {
		for k := 0; k < 5; k++ {
			if err := store.Set(ctx, fmt.Sprintf("key-%d", k), fmt.Sprintf("%s-%d", value, round)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store = openTestStore(t, dir)
	defer func() { _ = store.Close() }()

	for k := 0; k < 5; k++ {
		got, found, err := store.Get(ctx, fmt.Sprintf("key-%d", k))
		if err != nil || !found {
			t.Fatalf("key-%d after reopen: (%v, %v)", k, found, err)
		}
		if want := fmt.Sprintf("%s-29", value); got != want {
			t.Errorf("key-%d: expected last value after reopen, got %q", k, got)
		}
	}
}

// Stale segments are actually unlinked, not just dereferenced.
func TestCompaction_DeletesStaleSegments(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(config.StoreConfig{
		DataDir:             dir,
		CompactionThreshold: 1024,
		MaxSegmentSize:      2 * 1024,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	value := strings.Repeat("w", 300)
	for round := 0; round < 20; round++ {
		if err := store.Set(ctx, "hot", fmt.Sprintf("%s-%d", value, round)); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := filepath.Glob(filepath.Join(dir, SegmentPrefix+"*"+SegmentSuffix))
	if err != nil {
		t.Fatal(err)
	}
	// compaction output plus the active segment, nothing older
	if len(matches) > 2 {
		t.Errorf("expected at most 2 segments after compaction, found %d: %v", len(matches), matches)
	}
}
