package store

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"sailguide/core"
	"sailguide/core/fake"
)

func TestStores(t *testing.T) {
	newEEPROM := func(t *testing.T) Store {
		s, err := NewEEPROM(fake.NewEEPROM(256, 16), EEPROMConfig{
			Bus:          core.SPIConfig{Rate: 1_000_000},
			Size:         256,
			PageSize:     16,
			WriteTimeout: time.Second,
		}, clock.NewMock(), zaptest.NewLogger(t).Sugar())
		test.That(t, err, test.ShouldBeNil)
		return s
	}
	newFile := func(t *testing.T) Store {
		s, err := OpenFile(filepath.Join(t.TempDir(), "nvm.bin"), 256)
		test.That(t, err, test.ShouldBeNil)
		t.Cleanup(func() { s.Close() })
		return s
	}

	stores := []struct {
		name string
		make func(t *testing.T) Store
	}{
		{"memory", func(t *testing.T) Store { return NewMemory(256) }},
		{"file", newFile},
		{"eeprom", newEEPROM},
	}
	for _, tc := range stores {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("erased", func(t *testing.T) {
				s := tc.make(t)
				b, err := s.Read(ctx, 0, 4)
				test.That(t, err, test.ShouldBeNil)
				test.That(t, b, test.ShouldResemble, []byte{0xFF, 0xFF, 0xFF, 0xFF})
			})

			t.Run("write read", func(t *testing.T) {
				s := tc.make(t)
				data := bytes.Repeat([]byte{1, 2, 3, 4, 5}, 8)
				test.That(t, s.Write(ctx, 10, data), test.ShouldBeNil)
				b, err := s.Read(ctx, 10, len(data))
				test.That(t, err, test.ShouldBeNil)
				test.That(t, b, test.ShouldResemble, data)

				b, err = s.Read(ctx, 9, 1)
				test.That(t, err, test.ShouldBeNil)
				test.That(t, b, test.ShouldResemble, []byte{0xFF})
			})

			t.Run("out of range", func(t *testing.T) {
				s := tc.make(t)
				err := s.Write(ctx, 250, make([]byte, 7))
				test.That(t, errors.Is(err, ErrOutOfRange), test.ShouldBeTrue)
				_, err = s.Read(ctx, -1, 2)
				test.That(t, errors.Is(err, ErrOutOfRange), test.ShouldBeTrue)
			})

			t.Run("canceled", func(t *testing.T) {
				s := tc.make(t)
				cctx, cancel := context.WithCancel(ctx)
				cancel()
				test.That(t, errors.Is(s.Write(cctx, 0, []byte{1}), context.Canceled), test.ShouldBeTrue)
				_, err := s.Read(cctx, 0, 1)
				test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
			})
		})
	}
}

func TestEEPROMPageSplit(t *testing.T) {
	dev := fake.NewEEPROM(256, 16)
	s, err := NewEEPROM(dev, EEPROMConfig{Size: 256, PageSize: 16, WriteTimeout: time.Second},
		clock.NewMock(), zaptest.NewLogger(t).Sugar())
	test.That(t, err, test.ShouldBeNil)

	data := make([]byte, 40)
	for i := range data {
		data[i] = byte(i)
	}
	// 6 + 16 + 16 + 2 bytes
	test.That(t, s.Write(context.Background(), 10, data), test.ShouldBeNil)
	test.That(t, dev.PageWrites, test.ShouldEqual, 4)
	test.That(t, dev.Bytes()[10:50], test.ShouldResemble, data)
}

func TestEEPROMBusyTimeout(t *testing.T) {
	dev := fake.NewEEPROM(256, 16)
	dev.Stuck = true
	s, err := NewEEPROM(dev, EEPROMConfig{Size: 256, PageSize: 16, WriteTimeout: 5 * time.Millisecond},
		clock.New(), zaptest.NewLogger(t).Sugar())
	test.That(t, err, test.ShouldBeNil)

	err = s.Write(context.Background(), 0, []byte{1, 2})
	test.That(t, errors.Is(err, ErrTimeout), test.ShouldBeTrue)
}

func TestEEPROMConfig(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	for _, cfg := range []EEPROMConfig{
		{Size: 0, PageSize: 16, WriteTimeout: time.Second},
		{Size: 1 << 17, PageSize: 16, WriteTimeout: time.Second},
		{Size: 256, PageSize: 0, WriteTimeout: time.Second},
		{Size: 256, PageSize: 16},
	} {
		_, err := NewEEPROM(fake.NewEEPROM(256, 16), cfg, clock.NewMock(), logger)
		test.That(t, err, test.ShouldNotBeNil)
	}
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvm.bin")
	ctx := context.Background()

	s, err := OpenFile(path, 128)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Write(ctx, SettingsOffset, []byte{9, 8, 7}), test.ShouldBeNil)
	test.That(t, s.Close(), test.ShouldBeNil)

	s, err = OpenFile(path, 128)
	test.That(t, err, test.ShouldBeNil)
	defer s.Close()
	b, err := s.Read(ctx, SettingsOffset, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b, test.ShouldResemble, []byte{9, 8, 7})
}

func TestMemoryFailWrites(t *testing.T) {
	m := NewMemory(16)
	m.FailWrites = errors.New("bus fault")
	test.That(t, m.Write(context.Background(), 0, []byte{1}), test.ShouldNotBeNil)
}
