//go:build rp2040

package main

import (
	"machine"

	"github.com/pkg/errors"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// Edge timestamp program. X counts down on every other cycle whatever the
// pin does: each path below alternates a decrementing jmp with a pin test,
// and a jmp x-- taken at zero falls through to the same target. Only
// differences between timestamps are used, so X starts wherever it is.
// Autopush moves each capture to the RX FIFO; when the FIFO is full the
// machine stalls there and the main loop sees a full backlog.
//
//	rise:
//	    jmp x--, cap
//	cap:
//	    in x, 32         ; autopush
//	high:
//	    jmp x--, hchk
//	hchk:
//	    jmp pin, high
//	    jmp x--, low     ; pin fell
//	low:                 ; .wrap_target
//	    jmp pin, rise
//	    jmp x--, low     ; .wrap
func buildCaptureProgram(origin uint8) []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		asm.Jmp(origin+captureCap, rp2pio.JmpXNZeroDec).Encode(),  // 0: rise
		asm.In(rp2pio.InSrcX, 32).Encode(),                        // 1: cap
		asm.Jmp(origin+captureHChk, rp2pio.JmpXNZeroDec).Encode(), // 2: high
		asm.Jmp(origin+captureHigh, rp2pio.JmpPinInput).Encode(),  // 3: hchk
		asm.Jmp(origin+captureLow, rp2pio.JmpXNZeroDec).Encode(),  // 4
		asm.Jmp(origin+captureRise, rp2pio.JmpPinInput).Encode(),  // 5: low
		asm.Jmp(origin+captureLow, rp2pio.JmpXNZeroDec).Encode(),  // 6
	}
}

// Instruction indexes of the capture program labels
const (
	captureRise = 0
	captureCap  = 1
	captureHigh = 2
	captureHChk = 3
	captureLow  = 5
	captureWrap = 6
)

const capturePIOOrigin = 0

// edgeCapture timestamps encoder edges on a PIO state machine. Timestamps
// count up at the configured capture rate and wrap at 32 bits.
type edgeCapture struct {
	sm      rp2pio.StateMachine
	dropped uint32 // FIFO reads that found the maximum backlog
}

// newEdgeCapture loads the program on PIO0 and starts counting at rateHz.
func newEdgeCapture(pin machine.Pin, rateHz uint32) (*edgeCapture, error) {
	if rateHz == 0 {
		return nil, errors.New("edge capture rate must be set")
	}
	pio := rp2pio.PIO0
	sm := pio.StateMachine(0)
	sm.TryClaim()

	program := buildCaptureProgram(capturePIOOrigin)
	offset, err := pio.AddProgram(program, capturePIOOrigin)
	if err != nil {
		return nil, errors.Wrap(err, "load edge capture program")
	}

	pin.Configure(machine.PinConfig{Mode: pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetJmpPin(pin)
	cfg.SetInShift(false, true, 32)
	cfg.SetFIFOJoin(rp2pio.FifoJoinRx)
	cfg.SetWrap(offset+captureLow, offset+captureWrap)

	// Two cycles per count: divider = f_sys / (2 * rate) in 16.8 fixed point
	div := uint64(machine.CPUFrequency()) * 256 / (2 * uint64(rateHz))
	cfg.SetClkDivIntFrac(uint16(div>>8), uint8(div))

	sm.Init(offset+captureLow, cfg)
	sm.SetPindirsConsecutive(pin, 1, false)
	sm.SetEnabled(true)
	return &edgeCapture{sm: sm}, nil
}

// Drain hands every queued edge timestamp to fn in arrival order.
func (c *edgeCapture) Drain(fn func(ts uint32)) {
	n := 0
	for !c.sm.IsRxFIFOEmpty() {
		// X counts down, so its negation counts up
		fn(-c.sm.RxGet())
		n++
	}
	if n >= 8 {
		c.dropped++
	}
}
