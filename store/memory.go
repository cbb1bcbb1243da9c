package store

import (
	"context"
	"sync"
)

// Memory is a volatile Store, used by simulations and tests.
type Memory struct {
	mu   sync.Mutex
	data []byte

	// FailWrites makes every Write return this error when set.
	FailWrites error
}

// NewMemory returns an erased (0xFF) store of size bytes.
func NewMemory(size int) *Memory {
	data := make([]byte, size)
	for i := range data {
		data[i] = 0xFF
	}
	return &Memory{data: data}
}

// Read implements Store.
func (m *Memory) Read(ctx context.Context, offset, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkRange(len(m.data), offset, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, m.data[offset:])
	return out, nil
}

// Write implements Store.
func (m *Memory) Write(ctx context.Context, offset int, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	if err := checkRange(len(m.data), offset, len(b)); err != nil {
		return err
	}
	copy(m.data[offset:], b)
	return nil
}
