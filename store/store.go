// Package store provides the byte-addressable non-volatile memory the guide
// persists its localization snapshot and settings in.
package store

import (
	"context"

	"github.com/pkg/errors"
)

// Record offsets
const (
	SnapshotOffset = 0x0000
	SettingsOffset = 0x0040
)

var (
	// ErrOutOfRange is returned for accesses past the end of the store
	ErrOutOfRange = errors.New("store access out of range")
	// ErrTimeout is returned when the device stays busy too long
	ErrTimeout = errors.New("store timed out")
)

// Store reads and writes bytes by offset.
type Store interface {
	Read(ctx context.Context, offset, n int) ([]byte, error)
	Write(ctx context.Context, offset int, b []byte) error
}

func checkRange(size, offset, n int) error {
	if offset < 0 || n < 0 || offset+n > size {
		return errors.Wrapf(ErrOutOfRange, "offset %d length %d size %d", offset, n, size)
	}
	return nil
}
