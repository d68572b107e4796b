package compress

import (
	"errors"
	"sync"
)

// ErrBufferConsumed is returned by Take after the bytes were handed out.
var ErrBufferConsumed = errors.New("buffer already consumed")

// Buffer is a single-owner handle to input bytes. Take hands the bytes out
// exactly once; afterwards the handle is empty and the previous holder must
// not touch the slice.
type Buffer struct {
	mu    sync.Mutex
	data  []byte
	taken bool
}

// NewBuffer wraps data. The caller gives up ownership of data.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Take transfers ownership of the bytes to the caller.
func (b *Buffer) Take() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.taken {
		return nil, ErrBufferConsumed
	}
	data := b.data
	b.data = nil
	b.taken = true
	return data, nil
}

// Consumed reports whether Take has been called.
func (b *Buffer) Consumed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.taken
}

// Len is the number of bytes still owned by the handle.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}
