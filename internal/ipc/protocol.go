// Package ipc handles inter-process communication between the daemon and
// local clients: a request/response command channel plus a push channel
// for telemetry and beat events (spec.md §6 "External Interfaces").
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/austinkregel/local-media/musicd/internal/params"
)

// CommandType represents the type of command a client may send.
type CommandType string

const (
	// CmdGetParams returns the currently active parameter bundle.
	CmdGetParams CommandType = "getParams"
	// CmdSetParams validates and, if valid, hot-reloads the parameter
	// bundle (spec.md §7: whole-bundle accept/reject).
	CmdSetParams CommandType = "setParams"
	// CmdSubscribeTelemetry subscribes the connection to the per-hop
	// telemetry push stream and beat events (spec.md §4.7, §6).
	CmdSubscribeTelemetry CommandType = "subscribeTelemetry"
	// CmdUnsubscribeTelemetry cancels a prior subscription.
	CmdUnsubscribeTelemetry CommandType = "unsubscribeTelemetry"
)

// PushMessage represents a server-initiated message (no request needed).
type PushMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Request represents a client request.
type Request struct {
	Cmd  CommandType     `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response represents a server response.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// SetParamsRequest is the data for a setParams command: a full
// replacement parameter bundle, accepted or rejected as a whole
// (spec.md §7).
type SetParamsRequest struct {
	Params params.Bundle `json:"params"`
}

// GetParamsResponse is the response to a getParams command.
type GetParamsResponse struct {
	Params params.Bundle `json:"params"`
}

// EncodeRequest encodes a request to JSON.
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest decodes a request from JSON.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response to JSON.
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a response from JSON.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(data interface{}) (*Response, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Response{
		Success: true,
		Data:    rawData,
	}, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// NewPushMessage creates a push message for streaming data.
func NewPushMessage(msgType string, data interface{}) ([]byte, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	msg := PushMessage{
		Type: msgType,
		Data: rawData,
	}
	return json.Marshal(msg)
}
