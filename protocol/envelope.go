package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// MessageType is the closed-ish enum of broker envelope message kinds.
// The four reserved backend/RPC values are recognized specially; any other
// textual value is accepted and treated as a "further user type" per
// spec.md §3, routed like any other non-backend message.
type MessageType string

const (
	AsyncRpcDispatch              MessageType = "AsyncRpcDispatch"
	AsyncRpcAcknowledgment        MessageType = "AsyncRpcAcknowledgment"
	BackendAssociateTargetPeerId  MessageType = "BackendAssociateTargetPeerId"
	BackendDissociateTargetPeerId MessageType = "BackendDissociateTargetPeerId"
)

// IsBackendOnly reports whether mt terminates in Process without Dispatch.
func (mt MessageType) IsBackendOnly() bool {
	return mt == BackendAssociateTargetPeerId || mt == BackendDissociateTargetPeerId
}

// AuthenticationToken is the inbound credential carried by a request prior
// to authorization.
type AuthenticationToken struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// SecurityPrincipal is the authorized identity substituted for an
// AuthenticationToken once authorization has succeeded.
type SecurityPrincipal struct {
	SID        string `json:"sid"`
	GivenName  string `json:"givenName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
	Email      string `json:"email,omitempty"`
	TypeID     string `json:"typeId,omitempty"`
}

// PrincipalIdentityInfo carries either an inbound AuthenticationToken or an
// outbound, authorized SecurityPrincipal -- never both at once in a
// well-formed envelope.
type PrincipalIdentityInfo struct {
	AuthenticationToken *AuthenticationToken `json:"authenticationToken,omitempty"`
	SecurityPrincipal   *SecurityPrincipal   `json:"securityPrincipal,omitempty"`
}

// Envelope is the JSON broker-protocol header attached to every block, per
// spec.md §3/§6.
type Envelope struct {
	MessageType           MessageType            `json:"messageType"`
	MessageID             string                 `json:"messageId"`
	ConversationID        string                 `json:"conversationId"`
	SourcePeerID          string                 `json:"sourcePeerId,omitempty"`
	TargetPeerID          string                 `json:"targetPeerId,omitempty"`
	PrincipalIdentityInfo *PrincipalIdentityInfo `json:"principalIdentityInfo,omitempty"`
	PassThroughUserData   json.RawMessage        `json:"passThroughUserData,omitempty"`
}

// Marshal serializes the envelope to its canonical JSON form.
func (e *Envelope) Marshal() ([]byte, error) {
	var b, err = json.Marshal(e)
	if err != nil {
		return nil, errors.WithMessage(err, "marshal envelope")
	}
	return b, nil
}

// Unmarshal parses a header previously produced by Marshal. An empty buffer
// is illegal, matching spec.md §8's zero-length JSON header edge case.
func Unmarshal(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, errors.New("empty broker envelope header")
	}
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.WithMessage(err, "unmarshal envelope")
	}
	return &e, nil
}

// ParsedIDs holds the parsed form of an Envelope's identifier fields.
type ParsedIDs struct {
	MessageID      MessageID
	ConversationID ConversationID
	SourcePeerID   PeerID
	TargetPeerID   PeerID
	HasSource      bool
	HasTarget      bool
}

// ParseIDs parses and validates the identifier fields of e, per spec.md
// §4.3's Preparation rules.
func (e *Envelope) ParseIDs() (ParsedIDs, error) {
	var out ParsedIDs
	var err error

	if out.MessageID, err = ParseID(e.MessageID); err != nil {
		return out, errors.WithMessage(err, "messageId")
	}
	if out.ConversationID, err = ParseID(e.ConversationID); err != nil {
		return out, errors.WithMessage(err, "conversationId")
	}
	if e.SourcePeerID != "" {
		if out.SourcePeerID, err = ParseID(e.SourcePeerID); err != nil {
			return out, errors.WithMessage(err, "sourcePeerId")
		}
		out.HasSource = true
	}
	if e.TargetPeerID != "" {
		if out.TargetPeerID, err = ParseID(e.TargetPeerID); err != nil {
			return out, errors.WithMessage(err, "targetPeerId")
		}
		out.HasTarget = true
	}
	return out, nil
}
