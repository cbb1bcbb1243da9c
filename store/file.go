package store

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
)

// File is a Store backed by a fixed-size file, for running the guide on a
// host.
type File struct {
	f    *os.File
	size int
}

// OpenFile opens or creates path and grows it to size bytes of 0xFF.
func OpenFile(path string, size int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open store %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat store")
	}
	if have := int(info.Size()); have < size {
		fill := make([]byte, size-have)
		for i := range fill {
			fill[i] = 0xFF
		}
		if _, err := f.WriteAt(fill, int64(have)); err != nil {
			return nil, errors.Wrap(err, "grow store")
		}
	}
	return &File{f: f, size: size}, nil
}

// Read implements Store.
func (s *File) Read(ctx context.Context, offset, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkRange(s.size, offset, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := s.f.ReadAt(out, int64(offset)); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "read store")
	}
	return out, nil
}

// Write implements Store. Data is synced before returning.
func (s *File) Write(ctx context.Context, offset int, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkRange(s.size, offset, len(b)); err != nil {
		return err
	}
	if _, err := s.f.WriteAt(b, int64(offset)); err != nil {
		return errors.Wrap(err, "write store")
	}
	return errors.Wrap(s.f.Sync(), "sync store")
}

// Close closes the backing file.
func (s *File) Close() error {
	return s.f.Close()
}
