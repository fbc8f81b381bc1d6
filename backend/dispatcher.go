package backend

import (
	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
)

// Dispatcher is the external collaborator that delivers a block to a
// target peer's outbound queue, per spec.md §6. It is typically backed by
// the process's connection table; a nil Dispatcher is fatal for any
// message that must Dispatch, per spec.md §4.3.
type Dispatcher interface {
	CreateDispatchTask(targetPeerID protocol.PeerID, data *block.DataBlock) (*task.Task, error)
	TryGetMessageBlockCompletionQueue(peerID protocol.PeerID) (chan *block.DataBlock, bool)
	GetAllActiveQueuesIds() map[protocol.PeerID]struct{}
}
