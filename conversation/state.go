// Package conversation implements the half-duplex conversation engine of
// spec.md §3/§4.7: a per-conversation-id state machine that ties request,
// acknowledgement, response, and retry into a bounded pending ring with
// deadlines, driven by repeated calls to OnProcessing.
package conversation

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jpmorganchase/swblocks-baselib-sub004/backend"
	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/errs"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
)

// ProcessFunc is the user-provided hook invoked with the current popped
// message, per spec.md §4.7 step 6. It returns the response envelope and
// payload to send (isLastMessage reports whether this concludes the
// conversation), or an error to abort it.
type ProcessFunc func(env *protocol.Envelope, payload *block.DataBlock) (respEnv *protocol.Envelope, respPayload *block.DataBlock, isLastMessage bool, err error)

type outboundMessage struct {
	env     *protocol.Envelope
	payload *block.DataBlock
}

// State is one conversation's engine state, per spec.md §3: the bounded
// pending ring, the last sent message id awaiting ack, the ack/msg
// deadlines, the retry counter, and the finished flag.
type State struct {
	mu sync.Mutex

	conversationID protocol.ConversationID
	peerID         protocol.PeerID
	dispatcher     backend.Dispatcher
	config         Config
	process        ProcessFunc

	pending *pendingRing
	seed    *message
	current *message

	lastSentMessageID       protocol.MessageID
	isAckExpected           bool
	lastUnacknowledgedSent  time.Time
	wasLastMessageSent      bool
	finished                bool
	lastMessageReceivedAt   time.Time
	retryCount              int
	retryMessage            *outboundMessage
	processingTask          *task.Task
}

// New constructs a conversation engine for conversationID talking to
// peerID, delivering outbound blocks via dispatcher and invoking process
// to handle each popped inbound message.
func New(conversationID protocol.ConversationID, peerID protocol.PeerID, dispatcher backend.Dispatcher, config Config, process ProcessFunc) *State {
	if config.PendingCapacity <= 0 {
		config = DefaultConfig()
	}
	return &State{
		conversationID:        conversationID,
		peerID:                peerID,
		dispatcher:            dispatcher,
		config:                config,
		process:                process,
		pending:                newPendingRing(config.PendingCapacity),
		lastMessageReceivedAt:  time.Now(),
	}
}

// Seed registers the single message to be sent first, before any pending
// message is popped, per spec.md §4.7 step 4.
func (s *State) Seed(env *protocol.Envelope, payload *block.DataBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed = &message{env: env, payload: payload}
}

// PushMessage enqueues an inbound message for processing. A non-
// acknowledgement message is acknowledged back to its sender immediately,
// before it is queued, per spec.md §4.7's acknowledgement policy -- the
// sender's ack-wait state must clear regardless of how long this message
// then waits in the pending ring for OnProcessing to pop it. Pushing onto
// a full ring fails with kind TargetPeerQueueFull, per spec.md §8.
func (s *State) PushMessage(env *protocol.Envelope, payload *block.DataBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if env.MessageType != protocol.AsyncRpcAcknowledgment {
		if err := s.sendMessageLocked(false, s.createAck(env), nil); err != nil {
			return err
		}
	}

	return s.pending.push(message{env: env, payload: payload})
}

// createAck builds the AsyncRpcAcknowledgment envelope sent back to env's
// sender, carrying env's own message id so the sender can retire its
// ack-wait state, per spec.md §4.7.
func (s *State) createAck(env *protocol.Envelope) *protocol.Envelope {
	return &protocol.Envelope{
		MessageType:    protocol.AsyncRpcAcknowledgment,
		MessageID:      env.MessageID,
		ConversationID: env.ConversationID,
		TargetPeerID:   env.SourcePeerID,
	}
}

// Finished reports whether this conversation has completed.
func (s *State) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// OnProcessing implements the seven-step algorithm of spec.md §4.7,
// invoked repeatedly by the scheduler (eg every Config.PollInterval).
func (s *State) OnProcessing() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Step 1: finished, or an async delivery task is still in flight.
	if s.finished {
		return nil
	}
	if inFlight, err := s.checkProcessingTask(); inFlight || err != nil {
		return err
	}

	// Step 2: waiting on an acknowledgement.
	if s.isAckExpected {
		if time.Since(s.lastUnacknowledgedSent) >= s.config.AckTimeout {
			return &errs.Error{Kind: errs.Timeout, ErrorUUID: errs.ResponseTimeout,
				Message: "did not receive acknowledgment within the specified interval"}
		}

		var front, ok = s.pending.front()
		if !ok {
			return nil
		}

		if front.payload != nil ||
			front.env.MessageType != protocol.AsyncRpcAcknowledgment ||
			front.env.MessageID != protocol.FormatID(s.lastSentMessageID) {
			return errs.New(errs.ProtocolValidationFailed,
				"acknowledgment message is expected but a different one was received or the message id does not match")
		}

		s.pending.pop()
		s.lastSentMessageID = protocol.NilID
		s.lastUnacknowledgedSent = time.Time{}
		s.isAckExpected = false
	}

	// Step 3: the last message was sent and acknowledged; finish up.
	if s.wasLastMessageSent {
		if !s.pending.empty() {
			return errs.New(errs.Unexpected, "message was received for conversation %s after it has ended", protocol.FormatID(s.conversationID))
		}
		s.finished = true
		return nil
	}

	// Step 4: a seed message takes priority over the pending queue.
	if s.seed != nil {
		var seed = s.seed
		s.seed = nil
		return s.sendMessageLocked(false, seed.env, seed.payload)
	}

	// Step 5: pop one message from the pending queue, if no current one.
	if s.current == nil {
		if front, ok := s.pending.pop(); ok {
			if front.env.MessageType == protocol.AsyncRpcDispatch {
				var pii = front.env.PrincipalIdentityInfo
				if pii == nil || pii.SecurityPrincipal == nil {
					if err := s.sendErrorResponseLocked(front.env, errs.AuthorizationFailed, "request messages must be authenticated"); err != nil {
						return err
					}
					return nil
				}
			}
			s.current = &front
			s.lastMessageReceivedAt = time.Now()
		}
	}

	// Step 6: invoke the user hook on the current message.
	if s.current != nil {
		var cur = s.current
		s.current = nil
		var respEnv, respPayload, isLast, err = s.process(cur.env, cur.payload)
		if err != nil {
			return err
		}
		if respEnv != nil {
			return s.sendMessageLocked(isLast, respEnv, respPayload)
		}
		return nil
	}

	// Step 7: no message arrived within msgTimeout.
	if time.Since(s.lastMessageReceivedAt) >= s.config.MsgTimeout {
		return &errs.Error{Kind: errs.Timeout, ErrorUUID: errs.ResponseTimeout,
			Message: "did not receive response within the specified interval"}
	}

	return nil
}

// checkProcessingTask polls the in-flight delivery task, if any. It
// reports inFlight=true while the task has not yet completed. Once it
// completes, a delivery failure is retried in place (up to
// Config.MaxDeliveryAttempts, for retryable messaging broker errors only,
// per spec.md §4.7's "Sending"); an exhausted or non-retryable failure is
// returned as this call's error.
func (s *State) checkProcessingTask() (inFlight bool, err error) {
	if s.processingTask == nil {
		return false, nil
	}
	select {
	case <-s.processingTask.Done():
	default:
		return true, nil
	}

	var exc = s.processingTask.Exception()
	s.processingTask = nil
	if exc == nil {
		return false, nil
	}
	if s.retryDeliveryLocked(exc) {
		return true, nil
	}
	return false, exc
}

// retryDeliveryLocked resends the last outbound message after a delivery
// failure, if the cap and error classifier allow it. Caller holds s.mu.
func (s *State) retryDeliveryLocked(cause error) bool {
	s.retryCount++
	if s.retryCount >= s.config.MaxDeliveryAttempts || !IsRetryableMessagingBrokerError(cause) || s.retryMessage == nil {
		return false
	}

	log.WithError(cause).WithField("retry", s.retryCount).Debug("retrying conversation message delivery")

	var t, cerr = s.createProcessingTask(s.retryMessage.env, s.retryMessage.payload)
	if cerr != nil {
		return false
	}
	s.processingTask = t
	return true
}

// sendMessageLocked sends env/payload, marking the unacknowledged state
// unless env is itself an acknowledgement, per spec.md §4.7's "Sending".
func (s *State) sendMessageLocked(isLastMessage bool, env *protocol.Envelope, payload *block.DataBlock) error {
	var isAck = env.MessageType == protocol.AsyncRpcAcknowledgment

	var t, err = s.createProcessingTask(env, payload)
	if err != nil {
		return err
	}
	s.processingTask = t
	s.retryCount = 0
	s.retryMessage = &outboundMessage{env: env, payload: payload}

	if !isAck {
		var msgID, parseErr = protocol.ParseID(env.MessageID)
		if parseErr != nil {
			return errs.Wrap(parseErr, errs.ProtocolValidationFailed, "outbound message id")
		}
		s.lastSentMessageID = msgID
		s.lastUnacknowledgedSent = time.Now()
		s.isAckExpected = true
		s.wasLastMessageSent = isLastMessage
	}
	return nil
}

// sendErrorResponseLocked builds and sends a terminal error-response
// envelope carrying kind/message as its serialized errs.Envelope payload.
func (s *State) sendErrorResponseLocked(request *protocol.Envelope, kind errs.Kind, message string) error {
	var env = &protocol.Envelope{
		MessageType:    protocol.AsyncRpcDispatch,
		MessageID:      protocol.FormatID(protocol.NewMessageID()),
		ConversationID: protocol.FormatID(s.conversationID),
		TargetPeerID:   request.SourcePeerID,
	}
	var wireErr = errs.NewEnvelope(errs.New(kind, "%s", message))
	var body, merr = wireErr.Marshal()
	if merr != nil {
		return merr
	}
	var payload = block.NewDataBlock(len(body))
	if serr := payload.SetPayloadAndHeader(body, nil); serr != nil {
		return serr
	}
	return s.sendMessageLocked(true, env, payload)
}

// createProcessingTask creates one dispatch task delivering env/payload to
// the peer. It does not retry; retries after a failed delivery are made
// by retryDeliveryLocked.
func (s *State) createProcessingTask(env *protocol.Envelope, payload *block.DataBlock) (*task.Task, error) {
	var body, err = env.Marshal()
	if err != nil {
		return nil, err
	}
	var data = block.NewDataBlock(len(body))
	if payload != nil {
		body = append(body, payload.Payload()...)
	}
	if serr := data.SetPayloadAndHeader(nil, body); serr != nil {
		return nil, serr
	}

	return s.dispatcher.CreateDispatchTask(s.peerID, data)
}
