// Package storage implements the synchronous chunk-storage contract of
// spec.md §4.4 and its gorocksdb-backed reference implementation, plus the
// Async wrapper that bridges it to the task/queue model.
package storage

import (
	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
)

// DataChunkStorage is the synchronous chunk-storage contract of
// spec.md §4.4. Implementations must be safe for concurrent use.
type DataChunkStorage interface {
	// Load reads the chunk identified by (sessionID, chunkID) into data.
	Load(sessionID, chunkID protocol.ChunkID, data *block.DataBlock) error
	// Save persists data under (sessionID, chunkID).
	Save(sessionID, chunkID protocol.ChunkID, data *block.DataBlock) error
	// Remove deletes the chunk identified by (sessionID, chunkID).
	Remove(sessionID, chunkID protocol.ChunkID) error
	// FlushPeerSessions releases all chunks associated with sessionID, or
	// every session's chunks when sessionID is nil.
	FlushPeerSessions(sessionID *protocol.ChunkID) error
}
