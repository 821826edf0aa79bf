package firehose

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/ipld/go-car"
)

// ErrBlockNotFound is returned when a commit's container lacks a referenced block.
var ErrBlockNotFound = errors.New("block not found")

// BlockReader gives keyed access to the blocks in a commit's CAR container.
// The container is parsed on the first lookup, at most once.
type BlockReader struct {
	raw []byte

	once   sync.Once
	blocks map[cid.Cid][]byte
	err    error
}

// NewBlockReader wraps a CAR-encoded block container without parsing it.
func NewBlockReader(raw []byte) *BlockReader {
	return &BlockReader{raw: raw}
}

// Get returns the raw bytes of the block with the given CID.
func (b *BlockReader) Get(c cid.Cid) ([]byte, error) {
	b.once.Do(b.decode)
	if b.err != nil {
		return nil, b.err
	}
	data, ok := b.blocks[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, c)
	}
	return data, nil
}

// Decoded reports whether the container has been parsed.
func (b *BlockReader) Decoded() bool {
	return b.blocks != nil || b.err != nil
}

func (b *BlockReader) decode() {
	if len(b.raw) == 0 {
		b.err = errors.New("empty block container")
		return
	}
	cr, err := car.NewCarReader(bytes.NewReader(b.raw))
	if err != nil {
		b.err = fmt.Errorf("read car header: %w", err)
		return
	}
	blocks := make(map[cid.Cid][]byte)
	for {
		blk, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			b.err = fmt.Errorf("read car block: %w", err)
			return
		}
		blocks[blk.Cid()] = blk.RawData()
	}
	b.blocks = blocks
}
