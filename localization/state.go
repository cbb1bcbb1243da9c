package localization

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrIllegalTransition is returned for a state change the calibration
// protocol does not allow
var ErrIllegalTransition = errors.New("illegal calibration transition")

// State is the calibration stage.
type State uint8

// Calibration stages in protocol order
const (
	Init State = iota
	ApproachFront
	ApproachBack
	ApproachCenter
	SetCenterPos
	CenterPosSet
)

var stateNames = [...]string{
	"init",
	"approach_front",
	"approach_back",
	"approach_center",
	"set_center_pos",
	"center_pos_set",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Valid reports whether s is a known stage.
func (s State) Valid() bool {
	return s <= CenterPosSet
}

// transitions lists the forward edges. Returning to Init is always allowed
// and is not listed.
var transitions = map[State][]State{
	Init:           {ApproachFront},
	ApproachFront:  {ApproachBack, CenterPosSet},
	ApproachBack:   {ApproachCenter},
	ApproachCenter: {SetCenterPos},
	SetCenterPos:   {CenterPosSet},
	CenterPosSet:   {CenterPosSet},
}

// CanTransition reports whether from → to is a legal edge. The
// ApproachFront → CenterPosSet shortcut is only taken by a partial recovery;
// callers enforce that.
func CanTransition(from, to State) bool {
	if to == Init {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Movement is the direction the localization expects the guide to travel.
type Movement uint8

// Movements
const (
	Stop Movement = iota
	Forward
	Backward
)

func (m Movement) String() string {
	switch m {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "stop"
	}
}

// Recovery is how the instance was rebuilt from the persisted snapshot.
type Recovery uint8

// Recovery outcomes
const (
	RecoveryReset Recovery = iota
	RecoveryPartial
	RecoveryComplete
)

func (r Recovery) String() string {
	switch r {
	case RecoveryPartial:
		return "partial"
	case RecoveryComplete:
		return "complete"
	default:
		return "reset"
	}
}

// PositionUpdate is the result of a position refresh.
type PositionUpdate uint8

// Position refresh results
const (
	PositionRetained PositionUpdate = iota
	PositionUpdated
)
