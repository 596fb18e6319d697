package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/duomem/duomem-go/pkg/core"
)

// Request is one inbound protocol message.
type Request struct {
	// Method names the operation, e.g. "memory.ingest".
	Method string `json:"method"`

	// ID is the correlation id, echoed verbatim in the response. Kept raw
	// so numbers, strings, and null all round-trip unchanged.
	ID json.RawMessage `json:"id"`

	// Params carries the method parameters.
	Params json.RawMessage `json:"params"`
}

// Response is one outbound protocol message. Exactly one of Result and
// Error is set.
type Response struct {
	// ID is the correlation id from the request, or null when the request
	// was too malformed to recover one.
	ID json.RawMessage `json:"id"`

	// Result is the successful payload.
	Result interface{} `json:"result,omitempty"`

	// Error is the failure payload.
	Error *ErrorObject `json:"error,omitempty"`
}

// ErrorObject is the wire shape of a protocol error.
type ErrorObject struct {
	// Kind is the stable error classification from the engine taxonomy.
	Kind string `json:"kind"`

	// Message is the human-readable detail, sanitized for the channel.
	Message string `json:"message"`
}

// ErrDecode marks an inbound line that could not be decoded. The read loop
// reports it and continues.
var ErrDecode = errors.New("malformed protocol message")

// DecodeRequest parses one inbound line into a Request.
//
// Malformed input yields an error wrapping ErrDecode, never a panic. When
// the line is valid JSON but not a valid request (missing method), the id is
// still recovered so the error response can correlate.
func DecodeRequest(line []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if strings.TrimSpace(req.Method) == "" {
		return &req, fmt.Errorf("%w: missing method", ErrDecode)
	}

	return &req, nil
}

// ErrorResponse builds an error response for the given correlation id,
// mapping the error onto the stable kind taxonomy and sanitizing the
// message text.
func ErrorResponse(id json.RawMessage, err error) *Response {
	kind := core.KindOf(err)
	if errors.Is(err, ErrDecode) {
		kind = core.KindDecodeError
	}

	if len(id) == 0 {
		id = json.RawMessage("null")
	}

	return &Response{
		ID: id,
		Error: &ErrorObject{
			Kind:    string(kind),
			Message: SanitizeText(err.Error()),
		},
	}
}

// ResultResponse builds a success response for the given correlation id.
func ResultResponse(id json.RawMessage, result interface{}) *Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &Response{ID: id, Result: result}
}
