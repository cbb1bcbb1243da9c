package link

import (
	"math"

	"github.com/pkg/errors"

	"sailguide/guide"
	"sailguide/localization"
	"sailguide/protocol"
)

// EncodeStatus writes the status message arguments.
func EncodeStatus(out protocol.OutputBuffer, st guide.Status) {
	for _, v := range []uint32{
		uint32(st.State), uint32(st.Recovery), boolArg(st.Localized), uint32(st.Error),
		uint32(st.Mode), uint32(st.SailMode), uint32(st.Movement),
	} {
		protocol.EncodeVLQUint(out, v)
	}
	for _, v := range []int32{
		st.PositionMM, st.MeasuredMM, st.DesiredMM, st.CenterMM, st.EndMM, st.BrakePathMM,
		int32(st.TrimPercent),
	} {
		protocol.EncodeVLQInt(out, v)
	}
	protocol.EncodeVLQUint(out, uint32(math.Round(st.RPM)))
	protocol.EncodeVLQUint(out, uint32(st.RPMSetPoint))
	protocol.EncodeVLQUint(out, uint32(st.MaxRPM))
	protocol.EncodeVLQUint(out, uint32(st.MaxDistanceFaultMM))
	protocol.EncodeVLQInt(out, st.CurrentMA)
}

// DecodeStatus reads the arguments written by EncodeStatus.
func DecodeStatus(data *[]byte) (guide.Status, error) {
	var u [7]uint32
	for i := range u {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return guide.Status{}, errors.Wrap(err, "status")
		}
		u[i] = v
	}
	var s [12]int32
	for i := range s {
		v, err := protocol.DecodeVLQInt(data)
		if err != nil {
			return guide.Status{}, errors.Wrap(err, "status")
		}
		s[i] = v
	}
	return guide.Status{
		State:              localization.State(u[0]),
		Recovery:           localization.Recovery(u[1]),
		Localized:          u[2] != 0,
		Error:              guide.ErrorState(u[3]),
		Mode:               guide.OperatingMode(u[4]),
		SailMode:           guide.SailMode(u[5]),
		Movement:           localization.Movement(u[6]),
		PositionMM:         s[0],
		MeasuredMM:         s[1],
		DesiredMM:          s[2],
		CenterMM:           s[3],
		EndMM:              s[4],
		BrakePathMM:        s[5],
		TrimPercent:        int(s[6]),
		RPM:                float64(uint32(s[7])),
		RPMSetPoint:        uint16(s[8]),
		MaxRPM:             uint16(s[9]),
		MaxDistanceFaultMM: uint8(s[10]),
		CurrentMA:          s[11],
	}, nil
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
