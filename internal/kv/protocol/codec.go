package protocol

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single message payload. Frames above this are
// treated as protocol errors rather than allocated.
const MaxFrameSize = 16 * 1024 * 1024

// ErrInvalidFrame reports a malformed frame or payload. It terminates
// only the connection it occurred on.
var ErrInvalidFrame = errors.New("invalid frame")

// WriteFrame writes a length-prefixed payload: 4 bytes big-endian
// length followed by the payload itself.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds limit", ErrInvalidFrame, len(payload))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed payload. A frame may arrive
// split across multiple reads; io.ReadFull blocks until the declared
// length is available. io.EOF is returned unwrapped when the stream
// ends cleanly between frames.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: short length prefix: %v", ErrInvalidFrame, err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > MaxFrameSize {
		return nil, fmt.Errorf("%w: declared payload length %d", ErrInvalidFrame, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: short payload: %v", ErrInvalidFrame, err)
	}
	return payload, nil
}

// Encoder writes framed JSON messages. The framing is symmetric:
// clients encode Commands, servers encode Responses, over the same
// layout.
type Encoder struct {
	w *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

func (e *Encoder) Encode(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := WriteFrame(e.w, payload); err != nil {
		return err
	}
	return e.w.Flush()
}

// Decoder reads framed JSON messages from a byte stream.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// DecodeCommand reads the next Command frame.
func (d *Decoder) DecodeCommand() (Command, error) {
	var cmd Command
	payload, err := ReadFrame(d.r)
	if err != nil {
		return cmd, err
	}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if err := cmd.Validate(); err != nil {
		return cmd, err
	}
	return cmd, nil
}

// DecodeResponse reads the next Response frame.
func (d *Decoder) DecodeResponse() (Response, error) {
	var resp Response
	payload, err := ReadFrame(d.r)
	if err != nil {
		return resp, err
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return resp, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return resp, nil
}
