// Package block implements the mutable byte-buffer data block and its
// recycling pool, per spec.md §3/§5.
package block

import "github.com/pkg/errors"

// DataBlock is a mutable byte buffer carrying a two-part payload: user
// payload data of length Offset1, followed by header bytes occupying the
// remainder of Size. Ownership is exclusive; lifetimes are managed via a
// Pool that recycles buffers on Put.
type DataBlock struct {
	buf     []byte
	size    int
	offset1 int
}

// NewDataBlock allocates a DataBlock with the given capacity.
func NewDataBlock(capacity int) *DataBlock {
	return &DataBlock{buf: make([]byte, capacity)}
}

// Capacity returns the block's maximum size.
func (b *DataBlock) Capacity() int { return len(b.buf) }

// Size returns the number of valid bytes currently held.
func (b *DataBlock) Size() int { return b.size }

// Offset1 returns the cursor separating payload from header.
func (b *DataBlock) Offset1() int { return b.offset1 }

// Bytes returns the full valid byte range [0, Size).
func (b *DataBlock) Bytes() []byte { return b.buf[:b.size] }

// Payload returns the user-data portion: [0, Offset1).
func (b *DataBlock) Payload() []byte { return b.buf[:b.offset1] }

// Header returns the header portion: [Offset1, Size).
func (b *DataBlock) Header() []byte { return b.buf[b.offset1:b.size] }

// SetPayloadAndHeader resets the block's contents to the given payload and
// header, growing the underlying buffer if necessary. offset1 == size is
// legal (no header); a zero-length header is otherwise only legal when
// offset1 == size, per spec.md §8.
func (b *DataBlock) SetPayloadAndHeader(payload, header []byte) error {
	var total = len(payload) + len(header)
	if total > cap(b.buf) {
		b.buf = make([]byte, total)
	} else if total > len(b.buf) {
		b.buf = b.buf[:cap(b.buf)]
	}
	b.buf = b.buf[:cap(b.buf)]
	n := copy(b.buf, payload)
	n += copy(b.buf[n:], header)
	b.offset1 = len(payload)
	b.size = total
	return nil
}

// Reset clears the block to empty, ready for reuse.
func (b *DataBlock) Reset() {
	b.size = 0
	b.offset1 = 0
}

// ErrOverflow reports a write that exceeds a block's capacity.
// SetPayloadAndHeader never returns it: it grows the buffer instead.
var ErrOverflow = errors.New("data block capacity exceeded")
