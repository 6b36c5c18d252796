// Package bitcask implements the log-structured storage engine. All
// writes append to the active segment file; an in-memory skip map
// points each live key at the byte range of its latest record, and
// compaction rewrites live records into fresh segments once enough
// dead bytes accumulate.
package bitcask

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/anthanhphan/go-kvs/internal/kv/config"
	"github.com/anthanhphan/go-kvs/internal/kv/domain"
	"github.com/anthanhphan/go-kvs/internal/kv/port"
	"github.com/anthanhphan/gosdk/logger"
	"github.com/zhangyunhao116/skipmap"
)

const (
	SegmentPrefix = "segment_"
	SegmentSuffix = ".log"

	// DefaultCompactionThreshold is 1MB of uncompacted bytes.
	DefaultCompactionThreshold = 1024 * 1024
	// DefaultMaxSegmentSize is 64MB.
	DefaultMaxSegmentSize = 64 * 1024 * 1024
)

// syncFile flushes a segment to stable storage. Tests swap it out to
// exercise fsync-failure handling.
var syncFile = (*os.File).Sync

// pointer locates the latest record for a key: which segment, where in
// it, and how many bytes the whole frame occupies.
type pointer struct {
	segmentID uint64
	offset    int64
	size      int64
}

// Store implements port.Engine using segmented append-only logs.
//
// Concurrency: writerMu serializes Set/Remove/compaction/rotation. The
// index is a lock-free skip map, so Get never contends with other
// readers or with writers. segGuard is held shared by every in-flight
// read and exclusively by compaction only while it unlinks stale
// segment files, so a reader that resolved a pointer into an old
// segment can always finish its read.
type Store struct {
	dirPath             string
	fsync               bool
	compactionThreshold int64
	maxSegmentSize      int64

	index *skipmap.FuncMap[string, pointer]

	writerMu    sync.Mutex
	active      *os.File
	activeID    uint64
	activeOff   int64
	uncompacted atomic.Int64

	segGuard sync.RWMutex
}

var _ port.Engine = (*Store)(nil)

// Open initializes the engine at cfg.DataDir, replaying every segment
// in ascending id order to rebuild the index. Malformed data other
// than an incomplete trailing record is a fatal error.
func Open(cfg config.StoreConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	s := &Store{
		dirPath:             filepath.Clean(cfg.DataDir),
		fsync:               cfg.FSync,
		compactionThreshold: cfg.CompactionThreshold,
		maxSegmentSize:      cfg.MaxSegmentSize,
		index: skipmap.NewFunc[string, pointer](func(a, b string) bool {
			return a < b
		}),
	}
	if s.compactionThreshold <= 0 {
		s.compactionThreshold = DefaultCompactionThreshold
	}
	if s.maxSegmentSize <= 0 {
		s.maxSegmentSize = DefaultMaxSegmentSize
	}

	if err := s.replay(); err != nil {
		return nil, fmt.Errorf("failed to replay log: %w", err)
	}

	return s, nil
}

func (s *Store) segmentPath(id uint64) string {
	return filepath.Join(s.dirPath, fmt.Sprintf("%s%05d%s", SegmentPrefix, id, SegmentSuffix))
}

// segmentIDs returns the ids of all segment files, ascending.
func (s *Store) segmentIDs() ([]uint64, error) {
	matches, err := filepath.Glob(filepath.Join(s.dirPath, SegmentPrefix+"*"+SegmentSuffix))
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(matches))
	for _, m := range matches {
		var id uint64
		if _, err := fmt.Sscanf(filepath.Base(m), SegmentPrefix+"%d"+SegmentSuffix, &id); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) replay() error {
	ids, err := s.segmentIDs()
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.replaySegment(id); err != nil {
			return fmt.Errorf("segment %d: %w", id, err)
		}
		s.activeID = id
	}

	if s.activeID == 0 {
		s.activeID = 1
	}
	return s.openActiveLocked()
}

// replaySegment rebuilds index entries and uncompacted accounting from
// one segment. A record whose frame extends past the end of the file
// is the torn tail of a crashed append and is truncated away; any
// other malformed data is corruption and aborts startup.
func (s *Store) replaySegment(id uint64) error {
	path := s.segmentPath(id)
	file, err := os.OpenFile(path, os.O_RDWR, 0600) // #nosec G304
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	fileSize := info.Size()

	reader := bufio.NewReader(file)
	offset := int64(0)
	truncated := false

	for offset < fileSize {
		var header [frameHeaderSize]byte
		if _, err := io.ReadFull(reader, header[:]); err != nil {
			truncated = true
			break
		}
		length := int64(binary.BigEndian.Uint32(header[:]))
		frameSize := frameOverhead + length

		if offset+frameSize > fileSize {
			// torn append: the length prefix landed but the rest did not
			truncated = true
			break
		}
		if length == 0 || length > maxRecordPayload {
			return fmt.Errorf("%w: payload length %d at offset %d", errCorruptRecord, length, offset)
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(reader, payload); err != nil {
			return fmt.Errorf("failed to read record payload: %w", err)
		}
		var sumBuf [frameChecksumSize]byte
		if _, err := io.ReadFull(reader, sumBuf[:]); err != nil {
			return fmt.Errorf("failed to read record checksum: %w", err)
		}

		frame := make([]byte, 0, frameSize)
		frame = append(frame, header[:]...)
		frame = append(frame, payload...)
		frame = append(frame, sumBuf[:]...)
		rec, err := decodeRecord(frame)
		if err != nil {
			return fmt.Errorf("offset %d: %w", offset, err)
		}

		switch rec.Type {
		case recordSet:
			if old, ok := s.index.Load(rec.Key); ok {
				s.uncompacted.Add(old.size)
			}
			s.index.Store(rec.Key, pointer{segmentID: id, offset: offset, size: frameSize})
		case recordDelete:
			if old, ok := s.index.LoadAndDelete(rec.Key); ok {
				s.uncompacted.Add(old.size)
			}
			// the tombstone itself is reclaimable by the next compaction
			s.uncompacted.Add(frameSize)
		default:
			return fmt.Errorf("%w: unexpected record type %q", errCorruptRecord, rec.Type)
		}

		offset += frameSize
	}

	if truncated {
		if err := file.Truncate(offset); err != nil {
			return fmt.Errorf("failed to truncate partial segment tail: %w", err)
		}
		logger.Warnw("Truncated partial segment tail during replay", "segment_id", id, "valid_bytes", offset)
	}

	return nil
}

// openActiveLocked opens the active segment for appending and records
// its current size. Callers own writerMu or are still single-threaded
// in Open.
func (s *Store) openActiveLocked() error {
	file, err := os.OpenFile(s.segmentPath(s.activeID), os.O_RDWR|os.O_CREATE, 0600) // #nosec G304
	if err != nil {
		return err
	}
	off, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		_ = file.Close()
		return err
	}
	s.active = file
	s.activeOff = off
	return nil
}

// appendLocked writes one frame durably to the active segment and
// returns its pointer. On failure the partial bytes are cut back so
// the index never references unwritten data.
func (s *Store) appendLocked(frame []byte) (pointer, error) {
	if s.active == nil {
		return pointer{}, fmt.Errorf("store is closed")
	}

	off := s.activeOff
	if _, err := s.active.Write(frame); err != nil {
		_ = s.active.Truncate(off)
		_, _ = s.active.Seek(off, io.SeekStart)
		return pointer{}, fmt.Errorf("failed to append record: %w", err)
	}
	if s.fsync {
		if err := syncFile(s.active); err != nil {
			// the bytes landed but are not durable: cut them back so the
			// cursor and the index never see the failed frame
			_ = s.active.Truncate(off)
			_, _ = s.active.Seek(off, io.SeekStart)
			return pointer{}, fmt.Errorf("failed to sync segment: %w", err)
		}
	}
	s.activeOff = off + int64(len(frame))
	return pointer{segmentID: s.activeID, offset: off, size: int64(len(frame))}, nil
}

// Set stores value under key. The record is durable before the index
// is updated.
func (s *Store) Set(ctx context.Context, key, value string) error {
	frame, err := encodeRecord(record{Type: recordSet, Key: key, Value: value})
	if err != nil {
		return err
	}

	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	ptr, err := s.appendLocked(frame)
	if err != nil {
		return err
	}
	if old, ok := s.index.Load(key); ok {
		s.uncompacted.Add(old.size)
	}
	s.index.Store(key, ptr)

	s.maintainLocked()
	return nil
}

// Remove deletes key by appending a tombstone. A missing key performs
// no write and reports port.ErrKeyNotFound.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if _, ok := s.index.Load(key); !ok {
		return port.ErrKeyNotFound
	}

	frame, err := encodeRecord(record{Type: recordDelete, Key: key})
	if err != nil {
		return err
	}
	ptr, err := s.appendLocked(frame)
	if err != nil {
		return err
	}
	if old, ok := s.index.LoadAndDelete(key); ok {
		s.uncompacted.Add(old.size)
	}
	// the tombstone is dead weight the moment it lands
	s.uncompacted.Add(ptr.size)

	s.maintainLocked()
	return nil
}

// Get returns the latest value for key, or found=false if the key is
// absent. The shared guard keeps compaction from unlinking the segment
// under this read.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	s.segGuard.RLock()
	defer s.segGuard.RUnlock()

	ptr, ok := s.index.Load(key)
	if !ok {
		return "", false, nil
	}

	frame, err := s.readFrameAt(ptr)
	if err != nil {
		return "", false, err
	}
	rec, err := decodeRecord(frame)
	if err != nil {
		return "", false, err
	}
	if rec.Type != recordSet || rec.Key != key {
		return "", false, fmt.Errorf("%w: index points at record for %q of type %q", errCorruptRecord, rec.Key, rec.Type)
	}
	return rec.Value, true, nil
}

// readFrameAt reads the exact byte range of one record. A dedicated
// file handle per read keeps readers independent of the writer's
// cursor and of each other.
func (s *Store) readFrameAt(ptr pointer) ([]byte, error) {
	f, err := os.Open(s.segmentPath(ptr.segmentID)) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to open segment %d: %w", ptr.segmentID, err)
	}
	defer func() { _ = f.Close() }()

	frame := make([]byte, ptr.size)
	if _, err := f.ReadAt(frame, ptr.offset); err != nil {
		return nil, fmt.Errorf("failed to read record at %d+%d in segment %d: %w", ptr.offset, ptr.size, ptr.segmentID, err)
	}
	return frame, nil
}

// maintainLocked runs post-append housekeeping: compaction once enough
// dead bytes accumulate, otherwise size-based rotation of the active
// segment. The triggering mutation is already durable and indexed, so
// a housekeeping failure is logged rather than reported to its caller;
// the uncompacted counter stays put and the next mutation retries.
// Caller holds writerMu.
func (s *Store) maintainLocked() {
	if s.uncompacted.Load() > s.compactionThreshold {
		if err := s.compactLocked(); err != nil {
			logger.Errorw("Compaction failed", "error", err.Error())
		}
		return
	}
	if s.activeOff > s.maxSegmentSize {
		if err := s.rotateLocked(); err != nil {
			logger.Errorw("Segment rotation failed", "error", err.Error())
		}
	}
}

// rotateLocked seals the active segment and opens the next id.
func (s *Store) rotateLocked() error {
	if err := s.active.Sync(); err != nil {
		return fmt.Errorf("failed to sync segment before rotation: %w", err)
	}
	if err := s.active.Close(); err != nil {
		return fmt.Errorf("failed to seal segment: %w", err)
	}
	s.activeID++
	if err := s.openActiveLocked(); err != nil {
		return fmt.Errorf("failed to open segment %d: %w", s.activeID, err)
	}
	logger.Debugw("Rotated active segment", "segment_id", s.activeID)
	return nil
}

// Stats reports a snapshot for the health endpoint.
func (s *Store) Stats() domain.Stats {
	ids, _ := s.segmentIDs()
	return domain.Stats{
		Engine:           config.EngineBitcask,
		DataDir:          s.dirPath,
		LiveKeys:         s.index.Len(),
		Segments:         len(ids),
		UncompactedBytes: s.uncompacted.Load(),
	}
}

// Close seals the active segment. Every acknowledged write is already
// durable, so Close is not required for correctness.
func (s *Store) Close() error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if s.active == nil {
		return nil
	}
	if err := s.active.Sync(); err != nil {
		_ = s.active.Close()
		s.active = nil
		return err
	}
	err := s.active.Close()
	s.active = nil
	return err
}
