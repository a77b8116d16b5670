package fetch

import (
	"context"
	"io"
	"sync"
)

// RangeReader is an io.ReaderAt over a remote resource. Reads are served
// from fixed-size blocks fetched on demand, so parsing a TIFF header only
// downloads the blocks that hold its directory.
type RangeReader struct {
	ctx       context.Context
	rf        RangeFetcher
	url       string
	blockSize int64

	mu     sync.Mutex
	blocks map[int64][]byte
}

// NewRangeReader returns a reader using blocks of blockSize bytes
// (64 KiB when <= 0).
func NewRangeReader(ctx context.Context, rf RangeFetcher, url string, blockSize int64) *RangeReader {
	if blockSize <= 0 {
		blockSize = 64 << 10
	}
	return &RangeReader{
		ctx:       ctx,
		rf:        rf,
		url:       url,
		blockSize: blockSize,
		blocks:    make(map[int64][]byte),
	}
}

// Fetched returns how many blocks were downloaded.
func (r *RangeReader) Fetched() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blocks)
}

func (r *RangeReader) block(idx int64) ([]byte, error) {
	r.mu.Lock()
	b, ok := r.blocks[idx]
	r.mu.Unlock()
	if ok {
		return b, nil
	}
	b, err := r.rf.FetchRange(r.ctx, r.url, idx*r.blockSize, r.blockSize)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.blocks[idx] = b
	r.mu.Unlock()
	return b, nil
}

// ReadAt implements io.ReaderAt.
func (r *RangeReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	n := 0
	for n < len(p) {
		pos := off + int64(n)
		idx := pos / r.blockSize
		b, err := r.block(idx)
		if err != nil {
			if n > 0 && err == io.EOF {
				return n, io.EOF
			}
			return n, err
		}
		start := pos - idx*r.blockSize
		if start >= int64(len(b)) {
			return n, io.EOF
		}
		c := copy(p[n:], b[start:])
		n += c
		if int64(len(b)) < r.blockSize && n < len(p) {
			return n, io.EOF
		}
	}
	return n, nil
}
