package bitcask

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spaolacci/murmur3"
)

// Record types persisted in segment files.
const (
	recordSet    = "set"
	recordDelete = "del"
)

// record is the persisted form of one write. A recordDelete entry is
// the tombstone for its key.
type record struct {
	Type  string `json:"type"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Frame layout: 4 bytes big-endian payload length, JSON payload,
// 4 bytes murmur3 checksum of the payload. The same length-prefix
// style as the wire protocol, so a truncated trailing record is
// detectable by a short read.
const (
	frameHeaderSize   = 4
	frameChecksumSize = 4
	frameOverhead     = frameHeaderSize + frameChecksumSize

	// maxRecordPayload bounds a single record payload during replay so a
	// garbage length prefix cannot trigger a huge allocation.
	maxRecordPayload = 64 * 1024 * 1024
)

var errCorruptRecord = errors.New("corrupt log record")

// encodeRecord serializes a record into a complete frame.
func encodeRecord(rec record) ([]byte, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	if len(payload) > maxRecordPayload {
		return nil, fmt.Errorf("record payload of %d bytes exceeds limit", len(payload))
	}

	frame := make([]byte, frameHeaderSize+len(payload)+frameChecksumSize)
	binary.BigEndian.PutUint32(frame[:frameHeaderSize], uint32(len(payload)))
	copy(frame[frameHeaderSize:], payload)
	binary.BigEndian.PutUint32(frame[frameHeaderSize+len(payload):], murmur3.Sum32(payload))
	return frame, nil
}

// decodeRecord parses and verifies a complete frame.
func decodeRecord(frame []byte) (record, error) {
	var rec record
	if len(frame) < frameOverhead {
		return rec, fmt.Errorf("%w: frame of %d bytes too short", errCorruptRecord, len(frame))
	}
	length := binary.BigEndian.Uint32(frame[:frameHeaderSize])
	if int(length) != len(frame)-frameOverhead {
		return rec, fmt.Errorf("%w: declared payload length %d does not match frame", errCorruptRecord, length)
	}
	payload := frame[frameHeaderSize : frameHeaderSize+length]
	sum := binary.BigEndian.Uint32(frame[frameHeaderSize+length:])
	if murmur3.Sum32(payload) != sum {
		return rec, fmt.Errorf("%w: checksum mismatch", errCorruptRecord)
	}
	if err := json.Unmarshal(payload, &rec); err != nil {
		return rec, fmt.Errorf("%w: %v", errCorruptRecord, err)
	}
	return rec, nil
}
