package transfer

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
)

// CommandHeader is the fixed 26-byte command frame of spec.md §6.
type CommandHeader struct {
	Version     ProtocolVersion
	CommandID   Command
	ChunkID     protocol.ChunkID
	BlockType   BlockType
	Flags       uint8
	PayloadSize uint32
}

// WriteTo serializes h in network byte order onto w.
func (h CommandHeader) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	buf.Grow(headerSize)

	if err := binary.Write(&buf, binary.BigEndian, uint16(h.Version)); err != nil {
		return 0, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(h.CommandID)); err != nil {
		return 0, err
	}
	var idBytes [16]byte
	copy(idBytes[:], h.ChunkID[:])
	buf.Write(idBytes[:])
	buf.WriteByte(byte(h.BlockType))
	buf.WriteByte(h.Flags)
	if err := binary.Write(&buf, binary.BigEndian, h.PayloadSize); err != nil {
		return 0, err
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// ReadCommandHeader parses a fixed 26-byte header from r. Any error
// (including a short read) is fatal for the connection, per spec.md §4.2.
func ReadCommandHeader(r io.Reader) (CommandHeader, error) {
	var raw [headerSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return CommandHeader{}, errors.WithMessage(err, "read command header")
	}

	var h CommandHeader
	h.Version = ProtocolVersion(binary.BigEndian.Uint16(raw[0:2]))
	h.CommandID = Command(binary.BigEndian.Uint16(raw[2:4]))
	copy(h.ChunkID[:], raw[4:20])
	h.BlockType = BlockType(raw[20])
	h.Flags = raw[21]
	h.PayloadSize = binary.BigEndian.Uint32(raw[22:26])
	return h, nil
}
