// Package protocol defines the wire-level identifiers and broker envelope
// exchanged between peers and the broker. It is the Go analogue of the
// baselib data-model headers: plain structs with JSON tags, no behavior
// beyond parsing and validation.
package protocol

import (
	"github.com/google/uuid"
)

// PeerID identifies a process addressable over the block-transfer protocol.
type PeerID = uuid.UUID

// ConversationID identifies a logical dialog between two peers.
type ConversationID = uuid.UUID

// ChunkID identifies a block of content-addressable data.
type ChunkID = uuid.UUID

// MessageID identifies a single outbound broker message.
type MessageID = uuid.UUID

// NilID is the canonical "absent" value for any of the identifier types above.
var NilID = uuid.Nil

// ParseID parses the canonical textual form of a 128-bit identifier.
// An empty string parses to NilID, matching the "optional UUID text" fields
// of the broker envelope.
func ParseID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

// NewMessageID generates a fresh random message id for an outbound message.
func NewMessageID() MessageID {
	return uuid.New()
}

// FormatID renders an identifier to its canonical textual form, or the
// empty string for NilID.
func FormatID(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
