package protocol

import "fmt"

// Command types carried on the wire.
const (
	CmdGet    = "get"
	CmdSet    = "set"
	CmdRemove = "remove"
)

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Command is one client request. Type selects the operation; Value is
// only meaningful for set.
type Command struct {
	Type  string `json:"type"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Response is one server reply. Value is present only for a get that
// found the key; Error is set only when Status is "error".
type Response struct {
	Status string  `json:"status"`
	Value  *string `json:"value,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// OK builds a success response with no value (set/remove, get miss).
func OK() Response {
	return Response{Status: StatusOK}
}

// OKValue builds a success response carrying a get result.
func OKValue(value string) Response {
	return Response{Status: StatusOK, Value: &value}
}

// Err builds an error response with the given message.
func Err(msg string) Response {
	return Response{Status: StatusError, Error: msg}
}

// Validate checks that a decoded command is well formed.
func (c *Command) Validate() error {
	switch c.Type {
	case CmdGet, CmdSet, CmdRemove:
		return nil
	default:
		return fmt.Errorf("%w: unknown command type %q", ErrInvalidFrame, c.Type)
	}
}
