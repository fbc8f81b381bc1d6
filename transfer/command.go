// Package transfer implements the block-transfer endpoint: the framed
// protocol of spec.md §4.2/§6 layered atop a duplex net.Conn (plain or
// TLS), including version negotiation and the client-authentication
// handshake.
package transfer

// Command is the chunk-store command carried by a command frame, per
// spec.md §3/§6.
type Command uint16

const (
	NoCommand Command = iota
	SendChunk
	ReceiveChunk
	RemoveChunk
	FlushPeerSessions

	// Authenticate variants are identical in framing to their base
	// command but carry BlockType == Authentication.
	AuthenticateSendChunk
	AuthenticateReceiveChunk
)

// BlockType distinguishes an ordinary data block from an authentication
// credential block, per spec.md §4.2.
type BlockType uint8

const (
	Data BlockType = iota
	Authentication
)

// ProtocolVersion is the negotiated wire version. V1 has no
// authentication handshake; V2+ requires one when the endpoint has an
// authentication block configured, per spec.md §4.2.
type ProtocolVersion uint16

const (
	Version1 ProtocolVersion = 1
	Version2 ProtocolVersion = 2

	// CurrentVersion is the highest version this endpoint offers.
	CurrentVersion = Version2
	// MinSupportedVersion is the lowest version this endpoint accepts.
	MinSupportedVersion = Version1
)

const headerSize = 2 + 2 + 16 + 1 + 1 + 4 // version,commandId,chunkId,blockType,flags,payloadSize
