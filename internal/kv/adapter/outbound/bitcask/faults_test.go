package bitcask

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/anthanhphan/go-kvs/internal/kv/config"
)

// A failed fsync must roll the segment back to its pre-append state:
// the frame's bytes were written and the file cursor advanced, so
// leaving them in place would desynchronize the cursor from activeOff
// and point every later record's index entry at its predecessor.
func TestStore_FailedSyncLeavesNoTrace(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(config.StoreConfig{DataDir: dir, FSync: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()

	if err := store.Set(ctx, "key1", "value1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	syncFile = func(*os.File) error { return errors.New("device write failure") }
	err = store.Set(ctx, "key2", "value2")
	syncFile = (*os.File).Sync
	if err == nil {
		t.Fatal("expected Set to fail when fsync fails")
	}

	// no index entry and no bytes left behind
	if _, found, err := store.Get(ctx, "key2"); err != nil || found {
		t.Fatalf("Get after failed Set = (found=%v, err=%v), want absent", found, err)
	}
	info, err := os.Stat(store.segmentPath(store.activeID))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != store.activeOff {
		t.Fatalf("segment size %d out of step with write offset %d", info.Size(), store.activeOff)
	}

	// later appends land where the index says they do
	if err := store.Set(ctx, "key3", "value3"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	for key, want := range map[string]string{"key1": "value1", "key3": "value3"} {
		got, found, err := store.Get(ctx, key)
		if err != nil || !found || got != want {
			t.Errorf("%s: expected (%q, true), got (%q, %v, %v)", key, want, got, found, err)
		}
	}

	// the log replays cleanly without resurrecting the failed write
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	store = openTestStore(t, dir)
	defer func() { _ = store.Close() }()
	if _, found, _ := store.Get(ctx, "key2"); found {
		t.Error("failed write resurfaced after replay")
	}
	if got, found, _ := store.Get(ctx, "key3"); !found || got != "value3" {
		t.Errorf("key3 lost after replay: (%q, %v)", got, found)
	}
}

// An aborted compaction must leave the store writable: the mutation
// that tripped it already succeeded, and later mutations keep going
// until a retry can complete.
func TestStore_SurvivesFailedCompaction(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, dir)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.Set(ctx, fmt.Sprintf("key-%d", i), fmt.Sprintf("value-%d", i)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	// seal the populated segment, then lose it out from under the
	// index so the compaction copy loop hits a read error
	store.writerMu.Lock()
	if err := store.rotateLocked(); err != nil {
		store.writerMu.Unlock()
		t.Fatalf("rotate failed: %v", err)
	}
	store.writerMu.Unlock()
	if err := os.Remove(store.segmentPath(1)); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	// the next mutation trips compaction; the copy failure must not
	// surface through Set and must not kill the writer
	store.uncompacted.Store(store.compactionThreshold + 1)
	if err := store.Set(ctx, "fresh", "alive"); err != nil {
		t.Fatalf("Set during failing compaction: %v", err)
	}

	got, found, err := store.Get(ctx, "fresh")
	if err != nil || !found || got != "alive" {
		t.Fatalf("fresh: expected ('alive', true), got (%q, %v, %v)", got, found, err)
	}

	// still writable after the abort
	if err := store.Set(ctx, "later", "also alive"); err != nil {
		t.Fatalf("Set after aborted compaction: %v", err)
	}
	got, found, err = store.Get(ctx, "later")
	if err != nil || !found || got != "also alive" {
		t.Fatalf("later: expected ('also alive', true), got (%q, %v, %v)", got, found, err)
	}
}
