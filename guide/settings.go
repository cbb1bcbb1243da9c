package guide

import (
	"context"
	"encoding/binary"

	"github.com/pkg/errors"

	"sailguide/config"
	"sailguide/localization"
	"sailguide/protocol"
	"sailguide/store"
)

const (
	settingsBodySize = 3
	// SettingsSize is the encoded settings length including its CRC.
	SettingsSize = settingsBodySize + 2
)

// Settings are the operator adjustable values kept in the store.
type Settings struct {
	MaxRPM             uint16
	MaxDistanceFaultMM uint8
}

// Encode returns the little-endian record followed by its CRC16.
func (s Settings) Encode() []byte {
	b := make([]byte, SettingsSize)
	binary.LittleEndian.PutUint16(b, s.MaxRPM)
	b[2] = s.MaxDistanceFaultMM
	binary.LittleEndian.PutUint16(b[settingsBodySize:], protocol.CRC16(b[:settingsBodySize]))
	return b
}

// DecodeSettings parses a record written by Encode.
func DecodeSettings(b []byte) (Settings, error) {
	if len(b) < SettingsSize {
		return Settings{}, errors.Errorf("short settings record: %d bytes", len(b))
	}
	if crc := binary.LittleEndian.Uint16(b[settingsBodySize:]); crc != protocol.CRC16(b[:settingsBodySize]) {
		return Settings{}, errors.New("settings crc mismatch")
	}
	return Settings{
		MaxRPM:             binary.LittleEndian.Uint16(b),
		MaxDistanceFaultMM: config.ClampDistanceFault(b[2]),
	}, nil
}

// LoadSnapshot reads the persisted localization snapshot. ok is false when
// the record is unreadable or invalid, which forces a full calibration.
func LoadSnapshot(ctx context.Context, st store.Store) (localization.Snapshot, bool, error) {
	b, err := st.Read(ctx, store.SnapshotOffset, localization.SnapshotSize)
	if err != nil {
		return localization.Snapshot{}, false, errors.Wrap(err, "read snapshot")
	}
	snap, err := localization.DecodeSnapshot(b)
	if err != nil {
		return localization.Snapshot{}, false, err
	}
	return snap, true, nil
}

// LoadSettings reads the persisted settings.
func LoadSettings(ctx context.Context, st store.Store) (Settings, bool, error) {
	b, err := st.Read(ctx, store.SettingsOffset, SettingsSize)
	if err != nil {
		return Settings{}, false, errors.Wrap(err, "read settings")
	}
	s, err := DecodeSettings(b)
	if err != nil {
		return Settings{}, false, err
	}
	return s, true, nil
}

func (g *Guide) settings() Settings {
	return Settings{MaxRPM: g.motor.MaxRPM(), MaxDistanceFaultMM: g.maxDistanceFault}
}

func (g *Guide) saveSettings(ctx context.Context) error {
	if err := g.store.Write(ctx, store.SettingsOffset, g.settings().Encode()); err != nil {
		g.logger.Warnw("settings not persisted", "error", err)
		return errors.Wrap(err, "write settings")
	}
	return nil
}

// MaxRPM returns the travel speed.
func (g *Guide) MaxRPM() uint16 {
	return g.motor.MaxRPM()
}

// SetMaxRPM changes and persists the travel speed. The new value is in
// effect even when persisting fails.
func (g *Guide) SetMaxRPM(ctx context.Context, rpm uint16) error {
	if rpm == 0 {
		return errors.Wrap(ErrOutOfRange, "max rpm must be positive")
	}
	g.motor.SetMaxRPM(rpm)
	g.logger.Infow("max rpm", "rpm", rpm)
	return g.saveSettings(ctx)
}

// MaxDistanceFault returns the distance fault threshold in mm.
func (g *Guide) MaxDistanceFault() uint8 {
	return g.maxDistanceFault
}

// SetMaxDistanceFault changes and persists the distance fault threshold,
// clamped to 5..50 mm.
func (g *Guide) SetMaxDistanceFault(ctx context.Context, mm uint8) error {
	g.maxDistanceFault = config.ClampDistanceFault(mm)
	g.logger.Infow("max distance fault", "mm", g.maxDistanceFault)
	return g.saveSettings(ctx)
}

func (g *Guide) persistSnapshot(ctx context.Context) error {
	snap := g.loc.Snapshot()
	if err := g.store.Write(ctx, store.SnapshotOffset, snap.Encode()); err != nil {
		// Position survives in RAM; a power cycle now needs recalibration
		g.logger.Warnw("snapshot not persisted", "state", snap.State, "error", err)
		return errors.Wrap(err, "write snapshot")
	}
	return nil
}
