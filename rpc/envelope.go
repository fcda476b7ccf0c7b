// Package rpc implements request/reply over broker queues.
//
// A Client publishes requests tagged with a correlation id and the name of
// its private reply queue; a Responder consumes a named queue, runs a Handler
// and publishes the result back to the reply queue with the same id.
package rpc

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/n9te9/go-graphql-rpc-gateway/broker"
)

const (
	// HeaderTimestampMS carries the publish time in epoch milliseconds.
	HeaderTimestampMS = "x-timestamp-ms"
	// HeaderRemoteError marks a reply whose handler failed before producing a result.
	HeaderRemoteError = "x-rpc-error"

	DefaultMessageTTL = 30 * time.Second
)

var (
	ErrNotInitialized = errors.New("rpc: client not initialized, call InitSending first")
	ErrCallTimeout    = errors.New("rpc: call timed out")
	ErrClientClosed   = errors.New("rpc: client closed")
	ErrUnknownEvent   = errors.New("rpc: unknown event")
)

// RemoteError is returned by Client.Call when the responder's handler failed.
type RemoteError struct {
	Queue   string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: remote handler on %q failed: %s", e.Queue, e.Message)
}

// Envelope is one request or reply as seen by handlers.
type Envelope struct {
	Payload       json.RawMessage
	CorrelationID string
	// ReplyTo is empty for fire-and-forget requests.
	ReplyTo   string
	Timestamp time.Time
	Headers   map[string]any
}

// Decode unmarshals the payload into v.
func (e *Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("rpc: decode payload: %w", err)
	}
	return nil
}

// Stale reports whether the envelope is older than ttl at now. An envelope
// without a timestamp is never stale.
func (e *Envelope) Stale(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 || e.Timestamp.IsZero() {
		return false
	}
	return now.Sub(e.Timestamp) > ttl
}

func (e *Envelope) message() broker.Message {
	headers := make(map[string]any, len(e.Headers)+1)
	for k, v := range e.Headers {
		headers[k] = v
	}
	headers[HeaderTimestampMS] = e.Timestamp.UnixMilli()

	return broker.Message{
		Body:          e.Payload,
		CorrelationID: e.CorrelationID,
		ReplyTo:       e.ReplyTo,
		Timestamp:     e.Timestamp,
		Headers:       headers,
	}
}

func envelopeFrom(msg broker.Message) *Envelope {
	ts := msg.Timestamp
	if ms, ok := headerInt(msg.Headers, HeaderTimestampMS); ok {
		ts = time.UnixMilli(ms)
	}

	return &Envelope{
		Payload:       json.RawMessage(msg.Body),
		CorrelationID: msg.CorrelationID,
		ReplyTo:       msg.ReplyTo,
		Timestamp:     ts,
		Headers:       msg.Headers,
	}
}

func headerInt(headers map[string]any, key string) (int64, bool) {
	switch v := headers[key].(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func headerString(headers map[string]any, key string) (string, bool) {
	switch v := headers[key].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}
