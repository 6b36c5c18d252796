package bitcask

import (
	"fmt"
	"os"

	"github.com/anthanhphan/gosdk/logger"
)

// compactLocked rewrites every live record into a fresh segment and
// deletes the ones that no longer hold referenced data. The compacted
// records land in segment n+1 and the writer moves to a brand-new
// segment n+2, so the compaction output is sealed the moment it is
// complete. Caller holds writerMu, which makes compaction mutually
// exclusive with Set/Remove and with itself.
//
// Concurrent Gets are only blocked during the final unlink phase:
// index entries are swapped one at a time through the lock-free map,
// and readers hold segGuard shared across lookup+read, so a reader
// that resolved a pointer into an old segment finishes before that
// segment is removed.
func (s *Store) compactLocked() error {
	compactionID := s.activeID + 1
	newActiveID := s.activeID + 2

	// seal the current active segment
	if err := s.active.Sync(); err != nil {
		return fmt.Errorf("failed to sync active segment: %w", err)
	}
	if err := s.active.Close(); err != nil {
		return fmt.Errorf("failed to seal active segment: %w", err)
	}
	s.active = nil

	cf, err := os.OpenFile(s.segmentPath(compactionID), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304
	if err != nil {
		// the sealed active segment is intact, keep appending to it
		if reopenErr := s.openActiveLocked(); reopenErr != nil {
			return fmt.Errorf("failed to reopen active segment %d: %w", s.activeID, reopenErr)
		}
		return fmt.Errorf("failed to create compaction segment: %w", err)
	}

	var (
		offset  int64
		copyErr error
		copied  int
	)
	s.index.Range(func(key string, old pointer) bool {
		frame, err := s.readFrameAt(old)
		if err != nil {
			copyErr = err
			return false
		}
		if _, err := cf.Write(frame); err != nil {
			copyErr = fmt.Errorf("failed to copy record for %q: %w", key, err)
			return false
		}
		s.index.Store(key, pointer{segmentID: compactionID, offset: offset, size: old.size})
		offset += old.size
		copied++
		return true
	})
	if copyErr == nil {
		copyErr = cf.Sync()
	}
	if err := cf.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		// Abort without losing the writer. The partial compaction output
		// stays in place: every index entry repointed so far refers to
		// bytes already written into it, and its records duplicate live
		// data that still exists in the older segments. The writer moves
		// past it so a later retry gets fresh segment ids, and the
		// uncompacted counter is left alone so that retry happens.
		s.activeID = newActiveID
		if err := s.openActiveLocked(); err != nil {
			return fmt.Errorf("failed to open segment %d after aborted compaction: %w", newActiveID, err)
		}
		return fmt.Errorf("compaction aborted: %w", copyErr)
	}

	s.activeID = newActiveID
	if err := s.openActiveLocked(); err != nil {
		return fmt.Errorf("failed to open segment %d after compaction: %w", newActiveID, err)
	}
	s.uncompacted.Store(0)

	// Unlink stale segments only once no in-flight reader can still
	// resolve a pointer into them.
	ids, err := s.segmentIDs()
	if err != nil {
		return err
	}
	s.segGuard.Lock()
	for _, id := range ids {
		if id >= compactionID {
			continue
		}
		if err := os.Remove(s.segmentPath(id)); err != nil {
			logger.Warnw("Failed to remove stale segment", "segment_id", id, "error", err.Error())
		}
	}
	s.segGuard.Unlock()

	logger.Infow("Compaction finished",
		"compaction_segment", compactionID,
		"active_segment", newActiveID,
		"live_records", copied,
		"bytes", offset)
	return nil
}
