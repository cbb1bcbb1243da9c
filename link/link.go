// Package link exposes the guide on the framed serial protocol. Commands are
// registered in a fixed order and described by a dictionary the host reads
// with identify.
package link

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sailguide/core"
	"sailguide/guide"
	"sailguide/localization"
	"sailguide/protocol"
)

// Message names. identify_response and identify keep IDs 0 and 1 so a host
// can bootstrap without the dictionary.
const (
	MsgIdentifyResponse    = "identify_response"
	MsgIdentify            = "identify"
	MsgResult              = "result"
	MsgStatus              = "status"
	MsgTrim                = "trim"
	MsgError               = "error"
	MsgSettings            = "settings"
	CmdGetStatus           = "get_status"
	CmdSetOperatingMode    = "set_operating_mode"
	CmdMove                = "move"
	CmdManualMove          = "manual_move"
	CmdSetTrim             = "set_trim"
	CmdGetTrim             = "get_trim"
	CmdGetError            = "get_error"
	CmdSetError            = "set_error"
	CmdSetCenter           = "set_center"
	CmdTrigger             = "trigger"
	CmdGetSettings         = "get_settings"
	CmdSetMaxRPM           = "set_max_rpm"
	CmdSetMaxDistanceFault = "set_max_distance_fault"
	CmdRecalibrate         = "recalibrate"
)

// Fixed bootstrap IDs
const (
	IdentifyResponseID uint16 = 0
	IdentifyID         uint16 = 1
)

// IdentifyChunk is the dictionary chunk size requested by hosts.
const IdentifyChunk = 40

// Guide is the coordinator surface the link drives.
type Guide interface {
	Status() guide.Status
	SetOperatingMode(mode guide.OperatingMode) guide.ModeResult
	Move(m localization.Movement, immediate bool) (guide.MoveResult, error)
	ManualMove(m localization.Movement) error
	SetDesiredTrimPercentage(pct int) error
	CurrentTrimPercentage() int
	Error() guide.ErrorState
	SetError(state guide.ErrorState) error
	SetCenter() error
	Trigger()
	Recalibrate() error
	MaxRPM() uint16
	MaxDistanceFault() uint8
	SetMaxRPM(ctx context.Context, rpm uint16) error
	SetMaxDistanceFault(ctx context.Context, mm uint8) error
}

// Link dispatches received frames to the guide. Receive and Flush belong to
// the main loop, the same goroutine that runs the guide tick.
type Link struct {
	guide     Guide
	registry  *core.CommandRegistry
	transport *protocol.Transport
	out       *protocol.ScratchOutput
	logger    *zap.SugaredLogger

	ctx       context.Context // valid during Receive
	responses map[string]uint16
}

// New registers the command table.
func New(g Guide, logger *zap.SugaredLogger) *Link {
	l := &Link{
		guide:     g,
		registry:  core.NewCommandRegistry(),
		out:       protocol.NewScratchOutput(),
		logger:    logger,
		ctx:       context.Background(),
		responses: make(map[string]uint16),
	}

	// Bootstrap messages first
	l.response(MsgIdentifyResponse, "offset=%u data=%*s")
	l.registry.Register(MsgIdentify, "offset=%u count=%c", l.handleIdentify)

	l.response(MsgResult, "cmd=%hu code=%c value=%i")
	l.response(MsgStatus, "state=%c recovery=%c localized=%c error=%c mode=%c sail_mode=%c movement=%c"+
		" pos=%i measured=%i desired=%i center=%i end=%i brake=%i trim=%i"+
		" rpm=%u rpm_set=%hu max_rpm=%hu max_distance_fault=%c current=%i")
	l.response(MsgTrim, "pct=%i")
	l.response(MsgError, "state=%c")
	l.response(MsgSettings, "max_rpm=%hu max_distance_fault=%c")

	l.registry.Register(CmdGetStatus, "", l.handleGetStatus)
	l.registry.Register(CmdSetOperatingMode, "mode=%c", l.handleSetOperatingMode)
	l.registry.Register(CmdMove, "movement=%c immediate=%c", l.handleMove)
	l.registry.Register(CmdManualMove, "movement=%c", l.handleManualMove)
	l.registry.Register(CmdSetTrim, "pct=%i", l.handleSetTrim)
	l.registry.Register(CmdGetTrim, "", l.handleGetTrim)
	l.registry.Register(CmdGetError, "", l.handleGetError)
	l.registry.Register(CmdSetError, "state=%c", l.handleSetError)
	l.registry.Register(CmdSetCenter, "", l.handleSetCenter)
	l.registry.Register(CmdTrigger, "", l.handleTrigger)
	l.registry.Register(CmdGetSettings, "", l.handleGetSettings)
	l.registry.Register(CmdSetMaxRPM, "rpm=%hu", l.handleSetMaxRPM)
	l.registry.Register(CmdSetMaxDistanceFault, "mm=%c", l.handleSetMaxDistanceFault)
	l.registry.Register(CmdRecalibrate, "", l.handleRecalibrate)

	l.transport = protocol.NewTransport(l.out, l.registry.Dispatch)
	l.transport.SetErrorCallback(l.commandFailed)
	l.transport.SetResetCallback(func() {
		l.logger.Infow("host link reset")
	})
	return l
}

func (l *Link) response(name, format string) {
	l.responses[name] = l.registry.RegisterResponse(name, format)
}

// Registry returns the command table.
func (l *Link) Registry() *core.CommandRegistry {
	return l.registry
}

// Receive consumes complete frames from input and runs their commands.
func (l *Link) Receive(ctx context.Context, input protocol.InputBuffer) {
	l.ctx = ctx
	defer func() { l.ctx = context.Background() }()
	l.transport.Receive(input)
}

// Flush writes queued acknowledgements and responses to w.
func (l *Link) Flush(w io.Writer) error {
	pending := l.out.Result()
	if len(pending) == 0 {
		return nil
	}
	_, err := w.Write(pending)
	l.out.Reset()
	return errors.Wrap(err, "link write")
}

// Reset drops queued output and expects a fresh host sequence, as after a
// USB reconnect.
func (l *Link) Reset() {
	l.out.Reset()
	l.transport.Reset()
}

func (l *Link) send(name string, args func(out protocol.OutputBuffer)) {
	l.transport.SendResponse(l.responses[name], args)
}

func (l *Link) result(cmd string, err error, value int32) {
	c, _ := l.registry.GetCommandByName(cmd)
	code := CodeOf(err)
	if err != nil {
		l.logger.Debugw("command refused", "command", cmd, "code", code, "error", err)
	}
	l.send(MsgResult, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(c.ID))
		protocol.EncodeVLQUint(out, uint32(code))
		protocol.EncodeVLQInt(out, value)
	})
}

// commandFailed answers a command whose arguments did not decode so that
// the host does not wait for a result.
func (l *Link) commandFailed(cmdID uint16, err error) {
	cmd, ok := l.registry.GetCommand(cmdID)
	if !ok {
		l.logger.Warnw("unknown command", "id", cmdID, "error", err)
		return
	}
	l.logger.Warnw("malformed command", "command", cmd.Name, "error", err)
	l.result(cmd.Name, errors.Wrap(ErrBadRequest, err.Error()), 0)
}

func decodeMovement(data *[]byte) (localization.Movement, error) {
	v, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return 0, err
	}
	m := localization.Movement(v)
	if m > localization.Backward {
		return 0, errors.Errorf("movement %d", v)
	}
	return m, nil
}

func (l *Link) handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if count > IdentifyChunk {
		count = IdentifyChunk
	}
	chunk := l.registry.DictionaryChunk(offset, uint8(count))
	l.send(MsgIdentifyResponse, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQString(out, string(chunk))
	})
	return nil
}

func (l *Link) handleGetStatus(data *[]byte) error {
	st := l.guide.Status()
	l.send(MsgStatus, func(out protocol.OutputBuffer) {
		EncodeStatus(out, st)
	})
	return nil
}

func (l *Link) handleSetOperatingMode(data *[]byte) error {
	mode, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	var res error
	if l.guide.SetOperatingMode(guide.OperatingMode(mode)) == guide.ModeDenied {
		res = ErrDenied
	}
	l.result(CmdSetOperatingMode, res, 0)
	return nil
}

func (l *Link) handleMove(data *[]byte) error {
	m, err := decodeMovement(data)
	if err != nil {
		return err
	}
	immediate, err := protocol.DecodeVLQBool(data)
	if err != nil {
		return err
	}
	res, err := l.guide.Move(m, immediate)
	l.result(CmdMove, err, int32(res))
	return nil
}

func (l *Link) handleManualMove(data *[]byte) error {
	m, err := decodeMovement(data)
	if err != nil {
		return err
	}
	l.result(CmdManualMove, l.guide.ManualMove(m), 0)
	return nil
}

func (l *Link) handleSetTrim(data *[]byte) error {
	pct, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	l.result(CmdSetTrim, l.guide.SetDesiredTrimPercentage(int(pct)), 0)
	return nil
}

func (l *Link) handleGetTrim(data *[]byte) error {
	pct := l.guide.CurrentTrimPercentage()
	l.send(MsgTrim, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQInt(out, int32(pct))
	})
	return nil
}

func (l *Link) handleGetError(data *[]byte) error {
	state := l.guide.Error()
	l.send(MsgError, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(state))
	})
	return nil
}

func (l *Link) handleSetError(data *[]byte) error {
	state, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	l.result(CmdSetError, l.guide.SetError(guide.ErrorState(state)), 0)
	return nil
}

func (l *Link) handleSetCenter(data *[]byte) error {
	err := l.guide.SetCenter()
	if errors.Is(err, localization.ErrNotTriggered) {
		err = errors.Wrap(guide.ErrNotCalibrated, err.Error())
	}
	l.result(CmdSetCenter, err, 0)
	return nil
}

func (l *Link) handleTrigger(data *[]byte) error {
	l.guide.Trigger()
	l.result(CmdTrigger, nil, 0)
	return nil
}

func (l *Link) handleRecalibrate(data *[]byte) error {
	l.result(CmdRecalibrate, l.guide.Recalibrate(), 0)
	return nil
}

func (l *Link) handleGetSettings(data *[]byte) error {
	rpm, mm := l.guide.MaxRPM(), l.guide.MaxDistanceFault()
	l.send(MsgSettings, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(rpm))
		protocol.EncodeVLQUint(out, uint32(mm))
	})
	return nil
}

func (l *Link) handleSetMaxRPM(data *[]byte) error {
	rpm, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if rpm > 0xFFFF {
		l.result(CmdSetMaxRPM, errors.Wrapf(guide.ErrOutOfRange, "rpm %d", rpm), 0)
		return nil
	}
	l.result(CmdSetMaxRPM, l.guide.SetMaxRPM(l.ctx, uint16(rpm)), int32(l.guide.MaxRPM()))
	return nil
}

func (l *Link) handleSetMaxDistanceFault(data *[]byte) error {
	mm, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if mm > 0xFF {
		mm = 0xFF
	}
	err = l.guide.SetMaxDistanceFault(l.ctx, uint8(mm))
	l.result(CmdSetMaxDistanceFault, err, int32(l.guide.MaxDistanceFault()))
	return nil
}
