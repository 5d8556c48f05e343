package mcp

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	dataPrefix = "data: "
	doneMarker = "[DONE]"
)

// ErrNoValidResponse is returned when the event stream contains no
// acceptable JSON-RPC envelope.
var ErrNoValidResponse = errors.New("no valid JSON-RPC response in SSE stream")

// decodeEventStream extracts the JSON-RPC envelope from a server-sent-event
// body.  The first data: line that parses and either echoes the request id,
// or carries a result, or carries an error, wins.  The permissive match is
// deliberate: the service does not always echo the id.  Malformed lines are
// skipped, not fatal.
func decodeEventStream(text string, id int64) (*envelope, error) {
	for _, line := range strings.Split(text, "\n") {
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(line[len(dataPrefix):])
		if payload == "" || payload == doneMarker {
			continue
		}
		var env envelope
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			continue
		}
		if env.matchesID(id) || env.Result != nil || env.Error != nil {
			return &env, nil
		}
	}
	return nil, ErrNoValidResponse
}
