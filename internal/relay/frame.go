package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire commands and sentinels. Every frame, both directions, is a
// 3-element JSON array.
const (
	CommandUnsub = "UNSUB"
	CommandResp  = "RESP"
	SentinelEOSE = "EOSE"
)

var errMalformedFrame = errors.New("relay: malformed frame")

// DecodeFrame splits an inbound frame into its command, request id, and
// raw payload.
func DecodeFrame(raw []byte) (command, requestID string, payload json.RawMessage, err error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return "", "", nil, fmt.Errorf("%w: %v", errMalformedFrame, err)
	}
	if len(elements) != 3 {
		return "", "", nil, fmt.Errorf("%w: want 3 elements, got %d", errMalformedFrame, len(elements))
	}
	if err := json.Unmarshal(elements[0], &command); err != nil {
		return "", "", nil, fmt.Errorf("%w: command is not a string", errMalformedFrame)
	}
	if err := json.Unmarshal(elements[1], &requestID); err != nil {
		return "", "", nil, fmt.Errorf("%w: request id is not a string", errMalformedFrame)
	}
	return command, requestID, elements[2], nil
}

// EncodeResp frames an outbound reply as ["RESP", requestId, payload].
func EncodeResp(requestID string, payload any) ([]byte, error) {
	return json.Marshal([]any{CommandResp, requestID, payload})
}

// EncodeEOSE frames the end-of-stored-events sentinel for a request id.
func EncodeEOSE(requestID string) ([]byte, error) {
	return EncodeResp(requestID, SentinelEOSE)
}

// Result is the payload of a single-valued reply: the numeric status
// code and message of the operation, plus identifiers when relevant.
type Result struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	EventID string `json:"eventid,omitempty"`
	Pubkey  string `json:"pubkey,omitempty"`
	File    string `json:"file,omitempty"`
	Count   int64  `json:"count,omitempty"`
}
