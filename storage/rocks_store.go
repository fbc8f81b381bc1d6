package storage

import (
	rocks "github.com/tecbot/gorocksdb"

	"github.com/pkg/errors"

	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
)

// RocksStore is a gorocksdb-backed DataChunkStorage. Keys are the 32-byte
// concatenation of sessionID and chunkID, which lets FlushPeerSessions
// scan a session's chunks via a key prefix.
type RocksStore struct {
	db *rocks.DB
	ro *rocks.ReadOptions
	wo *rocks.WriteOptions
}

// OpenRocksStore opens (creating if missing) a RocksStore at dir.
func OpenRocksStore(dir string) (*RocksStore, error) {
	var opts = rocks.NewDefaultOptions()
	opts.SetCreateIfMissing(true)

	var db, err = rocks.OpenDb(opts, dir)
	if err != nil {
		return nil, errors.WithMessage(err, "open rocksdb store")
	}

	var wo = rocks.NewDefaultWriteOptions()
	wo.SetSync(true)

	return &RocksStore{db: db, ro: rocks.NewDefaultReadOptions(), wo: wo}, nil
}

// Close releases all native resources held by the store.
func (s *RocksStore) Close() {
	s.db.Close()
	s.ro.Destroy()
	s.wo.Destroy()
}

func chunkKey(sessionID, chunkID protocol.ChunkID) []byte {
	var key = make([]byte, 32)
	copy(key[:16], sessionID[:])
	copy(key[16:], chunkID[:])
	return key
}

func (s *RocksStore) Load(sessionID, chunkID protocol.ChunkID, data *block.DataBlock) error {
	var slice, err = s.db.Get(s.ro, chunkKey(sessionID, chunkID))
	if err != nil {
		return errors.WithMessage(err, "rocksdb load")
	}
	defer slice.Free()

	if !slice.Exists() {
		return errors.Errorf("chunk %s not found", protocol.FormatID(chunkID))
	}
	return data.SetPayloadAndHeader(slice.Data(), nil)
}

func (s *RocksStore) Save(sessionID, chunkID protocol.ChunkID, data *block.DataBlock) error {
	if err := s.db.Put(s.wo, chunkKey(sessionID, chunkID), data.Bytes()); err != nil {
		return errors.WithMessage(err, "rocksdb save")
	}
	return nil
}

func (s *RocksStore) Remove(sessionID, chunkID protocol.ChunkID) error {
	if err := s.db.Delete(s.wo, chunkKey(sessionID, chunkID)); err != nil {
		return errors.WithMessage(err, "rocksdb remove")
	}
	return nil
}

// FlushPeerSessions deletes every chunk belonging to sessionID (prefix
// scan), or the entire store when sessionID is nil.
func (s *RocksStore) FlushPeerSessions(sessionID *protocol.ChunkID) error {
	var batch = rocks.NewWriteBatch()
	defer batch.Destroy()

	var it = s.db.NewIterator(s.ro)
	defer it.Close()

	for it.SeekToFirst(); it.Valid(); it.Next() {
		var key = it.Key()
		var match = sessionID == nil || (len(key.Data()) >= 16 && bytesEqual(key.Data()[:16], sessionID[:]))
		if match {
			batch.Delete(append([]byte(nil), key.Data()...))
		}
		key.Free()
	}
	if err := it.Err(); err != nil {
		return errors.WithMessage(err, "rocksdb flush peer sessions: scan")
	}

	if err := s.db.Write(s.wo, batch); err != nil {
		return errors.WithMessage(err, "rocksdb flush peer sessions: write")
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
