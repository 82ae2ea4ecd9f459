// Package queue carries classification messages from the capture pipeline
// to the worker. Both implementations provide at-least-once delivery:
// fetched messages stay hidden for a visibility window and reappear if not
// acked.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Message is a fetched queue entry. Receipt identifies this delivery for
// acking.
type Message struct {
	Body    string
	Receipt string
}

// Payload is the message body: the blob key of a metadata record. Receivers
// tolerate additional fields.
type Payload struct {
	MetadataPath string `json:"s3_metadata_path"`
}

// Encode renders the payload as the message body.
func (p Payload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodePayload parses a message body.
func DecodePayload(body string) (Payload, error) {
	var p Payload
	err := json.Unmarshal([]byte(body), &p)
	return p, err
}

// Queue is the transport capability set.
type Queue interface {
	// Send appends a message.
	Send(ctx context.Context, body string) error

	// FetchBatch returns up to max messages, hiding each from other
	// consumers for the visibility window. Blocks up to wait when the queue
	// is empty.
	FetchBatch(ctx context.Context, max int, wait time.Duration) ([]Message, error)

	// Ack permanently removes the delivery identified by receipt.
	Ack(ctx context.Context, receipt string) error
}
