// Package client is the Go client for the key/value server. Each call
// sends one framed command and blocks until its response frame
// arrives; requests are not pipelined.
package client

import (
	"errors"
	"fmt"
	"net"

	"github.com/anthanhphan/go-kvs/internal/kv/protocol"
)

var (
	// ErrConnectionFailed distinguishes a failure to reach the server
	// from an error the server reported.
	ErrConnectionFailed = errors.New("failed to connect to server")
	// ErrKeyNotFound is returned by Remove when the server reports the
	// key does not exist.
	ErrKeyNotFound = errors.New("key not found")
)

// Client holds one connection to a key/value server. It is not safe
// for concurrent use; open one Client per goroutine.
type Client struct {
	conn net.Conn
	enc  *protocol.Encoder
	dec  *protocol.Decoder
}

// Dial connects to the server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return &Client{
		conn: conn,
		enc:  protocol.NewEncoder(conn),
		dec:  protocol.NewDecoder(conn),
	}, nil
}

// Get returns the value stored under key, or found=false when the key
// is absent.
func (c *Client) Get(key string) (string, bool, error) {
	resp, err := c.roundTrip(protocol.Command{Type: protocol.CmdGet, Key: key})
	if err != nil {
		return "", false, err
	}
	if resp.Value == nil {
		return "", false, nil
	}
	return *resp.Value, true, nil
}

// Set stores value under key.
func (c *Client) Set(key, value string) error {
	_, err := c.roundTrip(protocol.Command{Type: protocol.CmdSet, Key: key, Value: value})
	return err
}

// Remove deletes key. Removing a missing key returns ErrKeyNotFound.
func (c *Client) Remove(key string) error {
	_, err := c.roundTrip(protocol.Command{Type: protocol.CmdRemove, Key: key})
	if err != nil && err.Error() == ErrKeyNotFound.Error() {
		return ErrKeyNotFound
	}
	return err
}

// roundTrip sends one command and reads one response. Server-reported
// failures surface verbatim as errors.
func (c *Client) roundTrip(cmd protocol.Command) (protocol.Response, error) {
	if err := c.enc.Encode(cmd); err != nil {
		return protocol.Response{}, fmt.Errorf("failed to send request: %w", err)
	}
	resp, err := c.dec.DecodeResponse()
	if err != nil {
		return protocol.Response{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.Status != protocol.StatusOK {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
