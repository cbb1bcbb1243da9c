// Package client is the console side of the guide command link.
package client

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sailguide/core"
	"sailguide/guide"
	"sailguide/host/serial"
	"sailguide/link"
	"sailguide/localization"
	"sailguide/protocol"
)

// DefaultTimeout bounds a single command exchange.
const DefaultTimeout = time.Second

// maxDictionaryChunks limits dictionary retrieval against a device that
// never sends the empty end chunk.
const maxDictionaryChunks = 1000

// Client talks to one guide.
type Client struct {
	transport *protocol.HostTransport
	timeout   time.Duration
	logger    *zap.SugaredLogger

	mu         sync.Mutex // one exchange at a time
	dictionary string
	ids        map[string]uint16
}

// Dial opens the serial port and connects.
func Dial(ctx context.Context, cfg *serial.Config, logger *zap.SugaredLogger) (*Client, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	// Drop whatever the device sent before we were listening
	if err := port.Flush(); err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "flush"), port.Close())
	}
	c, err := New(ctx, port, clock.New(), DefaultTimeout, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s", cfg.Device)
	}
	return c, nil
}

// New wraps an open port and retrieves the command dictionary.
func New(ctx context.Context, port io.ReadWriteCloser, clk clock.Clock, timeout time.Duration, logger *zap.SugaredLogger) (*Client, error) {
	c := &Client{
		transport: protocol.NewHostTransport(port, clk),
		timeout:   timeout,
		logger:    logger,
	}
	if err := c.retrieveDictionary(ctx); err != nil {
		return nil, multierr.Combine(err, c.transport.Close())
	}
	return c, nil
}

// Close closes the link and the port.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) retrieveDictionary(ctx context.Context) error {
	var dict strings.Builder
	for i := 0; i < maxDictionaryChunks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		offset := uint32(dict.Len())
		data, err := c.exchange(link.IdentifyID, link.IdentifyResponseID, func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, offset)
			protocol.EncodeVLQUint(out, link.IdentifyChunk)
		})
		if err != nil {
			return errors.Wrapf(err, "dictionary chunk at offset %d", offset)
		}
		got, err := protocol.DecodeVLQUint(&data)
		if err != nil {
			return err
		}
		if got != offset {
			return errors.Errorf("dictionary chunk for offset %d, asked for %d", got, offset)
		}
		chunk, err := protocol.DecodeVLQString(&data)
		if err != nil {
			return err
		}
		if chunk == "" {
			c.dictionary = dict.String()
			c.ids = core.ParseDictionary(c.dictionary)
			c.logger.Debugw("dictionary retrieved", "bytes", dict.Len(), "messages", len(c.ids))
			return nil
		}
		dict.WriteString(chunk)
	}
	return errors.New("dictionary did not terminate")
}

// Dictionary returns the device command dictionary.
func (c *Client) Dictionary() string {
	return c.dictionary
}

// exchange sends one command and waits for the response with replyID.
// Unrelated responses are skipped.
func (c *Client) exchange(cmdID, replyID uint16, args func(out protocol.OutputBuffer)) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.transport.SendCommand(cmdID, args, c.timeout); err != nil {
		return nil, err
	}
	for {
		msg, err := c.transport.ReceiveResponse(c.timeout)
		if err != nil {
			return nil, err
		}
		data := msg.Payload
		id, err := protocol.DecodeVLQUint(&data)
		if err != nil {
			return nil, errors.Wrap(err, "response id")
		}
		if uint16(id) == replyID {
			return data, nil
		}
		c.logger.Debugw("skipping response", "id", id, "want", replyID)
	}
}

func (c *Client) id(name string) (uint16, error) {
	id, ok := c.ids[name]
	if !ok {
		return 0, errors.Errorf("device does not know %q", name)
	}
	return id, nil
}

func (c *Client) query(cmd, reply string, args ...int32) ([]byte, error) {
	cmdID, err := c.id(cmd)
	if err != nil {
		return nil, err
	}
	replyID, err := c.id(reply)
	if err != nil {
		return nil, err
	}
	return c.exchange(cmdID, replyID, func(out protocol.OutputBuffer) {
		for _, a := range args {
			protocol.EncodeVLQInt(out, a)
		}
	})
}

// call runs a command answered by a result message and returns its value.
func (c *Client) call(cmd string, args ...int32) (int32, error) {
	data, err := c.query(cmd, link.MsgResult, args...)
	if err != nil {
		return 0, errors.Wrap(err, cmd)
	}
	var fields [3]int32
	for i := range fields {
		if fields[i], err = protocol.DecodeVLQInt(&data); err != nil {
			return 0, errors.Wrapf(err, "%s result", cmd)
		}
	}
	if want := c.ids[cmd]; uint16(fields[0]) != want {
		return 0, errors.Errorf("%s: result for command %d", cmd, fields[0])
	}
	if err := link.Code(fields[1]).Err(); err != nil {
		return fields[2], errors.Wrap(err, cmd)
	}
	return fields[2], nil
}

// Status reads the full guide status.
func (c *Client) Status() (guide.Status, error) {
	data, err := c.query(link.CmdGetStatus, link.MsgStatus)
	if err != nil {
		return guide.Status{}, errors.Wrap(err, link.CmdGetStatus)
	}
	return link.DecodeStatus(&data)
}

// SetOperatingMode switches between manual and automatic mode.
func (c *Client) SetOperatingMode(mode guide.OperatingMode) error {
	_, err := c.call(link.CmdSetOperatingMode, int32(mode))
	return err
}

// Move jogs the guide.
func (c *Client) Move(m localization.Movement, immediate bool) (guide.MoveResult, error) {
	var flag int32
	if immediate {
		flag = 1
	}
	res, err := c.call(link.CmdMove, int32(m), flag)
	return guide.MoveResult(res), err
}

// ManualMove is the remote button jog; Stop releases.
func (c *Client) ManualMove(m localization.Movement) error {
	_, err := c.call(link.CmdManualMove, int32(m))
	return err
}

// SetTrim sets the desired trim percentage.
func (c *Client) SetTrim(pct int) error {
	_, err := c.call(link.CmdSetTrim, int32(pct))
	return err
}

// Trim reads the current trim percentage.
func (c *Client) Trim() (int, error) {
	data, err := c.query(link.CmdGetTrim, link.MsgTrim)
	if err != nil {
		return 0, errors.Wrap(err, link.CmdGetTrim)
	}
	pct, err := protocol.DecodeVLQInt(&data)
	return int(pct), err
}

// ErrorState reads the fault state.
func (c *Client) ErrorState() (guide.ErrorState, error) {
	data, err := c.query(link.CmdGetError, link.MsgError)
	if err != nil {
		return 0, errors.Wrap(err, link.CmdGetError)
	}
	state, err := protocol.DecodeVLQUint(&data)
	return guide.ErrorState(state), err
}

// SetError raises a fault or, with Normal, acknowledges one.
func (c *Client) SetError(state guide.ErrorState) error {
	_, err := c.call(link.CmdSetError, int32(state))
	return err
}

// SetCenter takes the current position as center.
func (c *Client) SetCenter() error {
	_, err := c.call(link.CmdSetCenter)
	return err
}

// Trigger confirms the calibration start.
func (c *Client) Trigger() error {
	_, err := c.call(link.CmdTrigger)
	return err
}

// Recalibrate restarts the calibration; it begins at the next Trigger.
func (c *Client) Recalibrate() error {
	_, err := c.call(link.CmdRecalibrate)
	return err
}

// Settings reads the persisted settings.
func (c *Client) Settings() (guide.Settings, error) {
	data, err := c.query(link.CmdGetSettings, link.MsgSettings)
	if err != nil {
		return guide.Settings{}, errors.Wrap(err, link.CmdGetSettings)
	}
	rpm, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return guide.Settings{}, err
	}
	mm, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return guide.Settings{}, err
	}
	return guide.Settings{MaxRPM: uint16(rpm), MaxDistanceFaultMM: uint8(mm)}, nil
}

// SetMaxRPM changes the travel speed. The device value is returned even
// when persisting failed.
func (c *Client) SetMaxRPM(rpm uint16) (uint16, error) {
	v, err := c.call(link.CmdSetMaxRPM, int32(rpm))
	return uint16(v), err
}

// SetMaxDistanceFault changes the distance fault threshold and returns the
// clamped value in effect.
func (c *Client) SetMaxDistanceFault(mm uint8) (uint8, error) {
	v, err := c.call(link.CmdSetMaxDistanceFault, int32(mm))
	return uint8(v), err
}
