package backend

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/jpmorganchase/swblocks-baselib-sub004/authcache"
	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/errs"
	"github.com/jpmorganchase/swblocks-baselib-sub004/internal/trace"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
)

// brokerState is the broker backend task's state, per spec.md §4.3:
// Preparation -> optionally Authorization -> Dispatch -> Process.
type brokerState string

const (
	statePreparation   brokerState = "preparation"
	stateAuthorization brokerState = "authorization"
	stateDispatch      brokerState = "dispatch"
	stateProcess       brokerState = "process" // Terminal.
)

// brokerTask wraps exactly one inbound message as a four-state state
// machine. It produces at most one outbound forwarded block, per
// spec.md §3/§4.3.
type brokerTask struct {
	ctx context.Context

	routing    *RoutingCache
	authCache  authcache.Cache
	dispatcher Dispatcher

	sourcePeerID protocol.PeerID
	data         *block.DataBlock

	state brokerState
	env   *protocol.Envelope
	ids   protocol.ParsedIDs

	resolvedTarget protocol.PeerID
	needsAuth      bool
	principal      *protocol.SecurityPrincipal

	err error
}

func (b *brokerTask) mustState(s brokerState) {
	if b.state != s {
		log.WithFields(log.Fields{"expect": s, "actual": b.state}).Panic("unexpected brokerTask state")
	}
}

// run drives the state machine to termination. It never returns an error
// for ordinary protocol/authorization failures -- those are converted to a
// server-error envelope and forwarded to the originator per spec.md §4.3's
// failure semantics. A non-nil return indicates a fatal condition (no
// Dispatcher) that must propagate up the task tree.
func (b *brokerTask) run(tok *task.ControlToken) error {
	b.state = statePreparation

	for b.state != stateProcess {
		if tok.IsCanceled() {
			b.err = task.ErrCanceled
			break
		}
		switch b.state {
		case statePreparation:
			if !b.onPreparation() {
				return nil
			}
		case stateAuthorization:
			if !b.onAuthorization() {
				return nil
			}
		case stateDispatch:
			if err := b.onDispatch(); err != nil {
				return err // Fatal: no Dispatcher.
			}
			return nil
		}
	}
	return nil
}

// onPreparation parses the envelope and enforces spec.md §4.3's
// Preparation rules. It returns false after emitting an error envelope
// (the state is then Process); on success it returns true, with the state
// set to Process for backend-only messages and to Authorization or
// Dispatch otherwise.
func (b *brokerTask) onPreparation() bool {
	b.mustState(statePreparation)

	var env, err = protocol.Unmarshal(b.data.Header())
	if err != nil {
		b.fail(errs.New(errs.ProtocolValidationFailed, "malformed broker envelope: %v", err))
		return false
	}
	b.env = env

	if ids, err := env.ParseIDs(); err != nil {
		b.fail(errs.New(errs.ProtocolValidationFailed, "%v", err))
		return false
	} else {
		b.ids = ids
	}

	switch env.MessageType {
	case protocol.BackendAssociateTargetPeerId:
		return b.onAssociate()
	case protocol.BackendDissociateTargetPeerId:
		return b.onDissociate()
	default:
		return b.onRouted()
	}
}

func (b *brokerTask) onAssociate() bool {
	if !b.ids.HasSource || !b.ids.HasTarget {
		b.fail(errs.New(errs.ProtocolValidationFailed, "BackendAssociateTargetPeerId requires source and target peer ids"))
		return false
	}

	var direct = false
	if b.dispatcher != nil {
		_, direct = b.dispatcher.TryGetMessageBlockCompletionQueue(b.ids.TargetPeerID)
	}
	if direct {
		trace.Add(b.ctx, "associate %s -> %s ignored: target is directly connected", b.ids.TargetPeerID, b.ids.SourcePeerID)
		b.state = stateProcess
		return true
	}

	b.routing.AssociateTargetPeerId(b.ids.TargetPeerID, b.ids.SourcePeerID)
	b.state = stateProcess
	return true
}

func (b *brokerTask) onDissociate() bool {
	if !b.ids.HasTarget {
		b.fail(errs.New(errs.ProtocolValidationFailed, "BackendDissociateTargetPeerId requires a target peer id"))
		return false
	}
	b.routing.DissociateTargetPeerId(b.ids.TargetPeerID)
	b.state = stateProcess
	return true
}

func (b *brokerTask) onRouted() bool {
	if !b.ids.HasTarget {
		b.fail(errs.New(errs.ProtocolValidationFailed, "broadcast messages (empty targetPeerId) are not supported"))
		return false
	}

	b.resolvedTarget = b.ids.TargetPeerID
	if phys, ok := b.routing.TryResolveTargetPeerId(b.ids.TargetPeerID); ok {
		b.resolvedTarget = phys
	}

	if b.env.MessageType == protocol.AsyncRpcDispatch &&
		b.env.PrincipalIdentityInfo != nil &&
		b.env.PrincipalIdentityInfo.AuthenticationToken != nil {
		b.needsAuth = true
		b.state = stateAuthorization
	} else {
		b.state = stateDispatch
	}
	return true
}

// onAuthorization delegates to the authorization cache, per spec.md §4.3.
func (b *brokerTask) onAuthorization() bool {
	b.mustState(stateAuthorization)

	var tokenInfo = b.env.PrincipalIdentityInfo.AuthenticationToken
	var tokenBytes = []byte(tokenInfo.Data)

	if p, ok := b.authCache.TryGetAuthorizedPrincipal(tokenBytes); ok {
		b.principal = p
		b.state = stateDispatch
		return true
	}

	var _, result = b.authCache.CreateAuthorizationTask(tokenBytes)
	var p = <-result

	if p == nil {
		var env = errs.NewEnvelope(errs.New(errs.AuthorizationFailed, "authorization failed"))
		env = errs.RedactToken(env, tokenInfo.Data)
		b.failEnvelope(env)
		return false
	}

	b.authCache.Update(tokenBytes, p)
	b.principal = p
	b.state = stateDispatch
	return true
}

// onDispatch rewrites the envelope (stripping the authentication token in
// favor of the authorized principal) and hands the block to the external
// Dispatcher, per spec.md §4.3. Returns a non-nil error only when the
// Dispatcher itself is nil, which is fatal.
func (b *brokerTask) onDispatch() error {
	b.mustState(stateDispatch)

	if b.dispatcher == nil {
		return errs.New(errs.Unexpected, "broker backend has no configured block dispatcher")
	}

	if b.needsAuth && b.principal != nil {
		b.env.PrincipalIdentityInfo.AuthenticationToken = nil
		b.env.PrincipalIdentityInfo.SecurityPrincipal = b.principal
	}

	var header, err = json.Marshal(b.env)
	if err != nil {
		b.fail(errs.New(errs.Json, "reserialize broker envelope: %v", err))
		b.state = stateProcess
		return nil
	}
	if err := b.data.SetPayloadAndHeader(b.data.Payload(), header); err != nil {
		b.fail(errs.New(errs.Unexpected, "rewrite data block: %v", err))
		b.state = stateProcess
		return nil
	}

	var dispatchTask, derr = b.dispatcher.CreateDispatchTask(b.resolvedTarget, b.data)
	if derr != nil {
		b.fail(errs.Wrap(derr, errs.ServerError, "dispatch failed"))
		b.state = stateProcess
		return nil
	}
	<-dispatchTask.Done()
	if err := dispatchTask.Exception(); err != nil {
		b.fail(errs.Wrap(err, errs.ServerError, "dispatch failed"))
	}

	b.state = stateProcess
	return nil
}

// fail converts a failure into a server-error envelope and forwards it to
// the originator's outbound queue, per spec.md §4.3's failure semantics.
func (b *brokerTask) fail(e error) {
	b.failEnvelope(errs.NewEnvelope(e))
}

func (b *brokerTask) failEnvelope(env errs.Envelope) {
	b.err = errEnvelopeAsError(env)
	b.state = stateProcess

	var header, merr = json.Marshal(env)
	if merr != nil {
		log.WithError(merr).Error("marshal server-error envelope")
		return
	}
	if b.data != nil {
		_ = b.data.SetPayloadAndHeader(nil, header)
	}

	if b.dispatcher == nil {
		return
	}
	if q, ok := b.dispatcher.TryGetMessageBlockCompletionQueue(b.sourcePeerID); ok {
		select {
		case q <- b.data:
		default:
			log.Warn("originator outbound queue full while delivering error envelope")
		}
	}
}

func errEnvelopeAsError(env errs.Envelope) error { return env.Restore() }
