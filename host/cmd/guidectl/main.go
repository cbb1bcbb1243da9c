// Command guidectl is an interactive console for the sail guide.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sailguide/guide"
	"sailguide/host/client"
	"sailguide/host/serial"
	"sailguide/localization"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud    = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
	verbose = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	logCfg := zap.NewDevelopmentConfig()
	if !*verbose {
		logCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zl, err := logCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := zl.Sugar()
	defer logger.Sync() //nolint:errcheck

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud

	logger.Infow("connecting", "device", *device)
	c, err := client.Dial(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatalw("connect failed", "error", err)
	}
	defer c.Close()

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		if parts[0] == "quit" || parts[0] == "exit" || parts[0] == "q" {
			return
		}
		if err := run(c, parts[0], parts[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Errorw("reading input", "error", err)
	}
}

var movements = map[string]localization.Movement{
	"stop":     localization.Stop,
	"forward":  localization.Forward,
	"fwd":      localization.Forward,
	"backward": localization.Backward,
	"back":     localization.Backward,
}

var errorStates = map[string]guide.ErrorState{
	"normal":  guide.Normal,
	"clear":   guide.Normal,
	"dist":    guide.DistanceFault,
	"wind":    guide.WindSpeedFault,
	"motor":   guide.MotorFault,
	"current": guide.CurrentFault,
}

func arg(args []string, i int) (string, error) {
	if i >= len(args) {
		return "", errors.New("missing argument")
	}
	return args[i], nil
}

func intArg(args []string, i, bits int) (int64, error) {
	s, err := arg(args, i)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, bits)
	return v, errors.Wrapf(err, "argument %q", s)
}

func movementArg(args []string) (localization.Movement, error) {
	s, err := arg(args, 0)
	if err != nil {
		return 0, err
	}
	m, ok := movements[s]
	if !ok {
		return 0, errors.Errorf("unknown movement %q", s)
	}
	return m, nil
}

func run(c *client.Client, cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		printHelp()

	case "dict":
		fmt.Print(c.Dictionary())

	case "status":
		st, err := c.Status()
		if err != nil {
			return err
		}
		fmt.Printf("state=%s recovery=%s localized=%t error=%s mode=%s sail=%s movement=%s\n",
			st.State, st.Recovery, st.Localized, st.Error, st.Mode, st.SailMode, st.Movement)
		fmt.Printf("pos=%dmm measured=%dmm desired=%dmm center=%dmm end=±%dmm brake=%dmm trim=%d%%\n",
			st.PositionMM, st.MeasuredMM, st.DesiredMM, st.CenterMM, st.EndMM, st.BrakePathMM, st.TrimPercent)
		fmt.Printf("rpm=%.0f set=%d max=%d max_distance_fault=%dmm current=%dmA\n",
			st.RPM, st.RPMSetPoint, st.MaxRPM, st.MaxDistanceFaultMM, st.CurrentMA)

	case "mode":
		s, err := arg(args, 0)
		if err != nil {
			return err
		}
		mode := guide.Manual
		switch s {
		case "auto", "automatic":
			mode = guide.Automatic
		case "manual":
		default:
			return errors.Errorf("unknown mode %q", s)
		}
		return c.SetOperatingMode(mode)

	case "move":
		m, err := movementArg(args)
		if err != nil {
			return err
		}
		res, err := c.Move(m, len(args) > 1 && args[1] == "now")
		if err != nil {
			return err
		}
		fmt.Println(res)

	case "jog":
		m, err := movementArg(args)
		if err != nil {
			return err
		}
		return c.ManualMove(m)

	case "trim":
		if len(args) == 0 {
			pct, err := c.Trim()
			if err != nil {
				return err
			}
			fmt.Printf("%d%%\n", pct)
			return nil
		}
		pct, err := intArg(args, 0, 32)
		if err != nil {
			return err
		}
		return c.SetTrim(int(pct))

	case "error":
		if len(args) == 0 {
			state, err := c.ErrorState()
			if err != nil {
				return err
			}
			fmt.Println(state)
			return nil
		}
		state, ok := errorStates[args[0]]
		if !ok {
			return errors.Errorf("unknown error state %q", args[0])
		}
		return c.SetError(state)

	case "center":
		return c.SetCenter()

	case "trigger":
		return c.Trigger()

	case "recalibrate":
		return c.Recalibrate()

	case "settings":
		s, err := c.Settings()
		if err != nil {
			return err
		}
		fmt.Printf("max_rpm=%d max_distance_fault=%dmm\n", s.MaxRPM, s.MaxDistanceFaultMM)

	case "maxrpm":
		rpm, err := intArg(args, 0, 17)
		if err != nil {
			return err
		}
		if rpm <= 0 || rpm > 0xFFFF {
			return errors.Errorf("rpm %d out of range", rpm)
		}
		got, err := c.SetMaxRPM(uint16(rpm))
		fmt.Printf("max_rpm=%d\n", got)
		return err

	case "maxdist":
		mm, err := intArg(args, 0, 16)
		if err != nil {
			return err
		}
		if mm < 0 || mm > 0xFF {
			return errors.Errorf("distance %d out of range", mm)
		}
		got, err := c.SetMaxDistanceFault(uint8(mm))
		fmt.Printf("max_distance_fault=%dmm\n", got)
		return err

	default:
		fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", cmd)
	}
	return nil
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  status                     - Show guide status")
	fmt.Println("  mode manual|auto           - Set operating mode")
	fmt.Println("  move stop|fwd|back [now]   - Jog the guide, 'now' skips the brake path")
	fmt.Println("  jog stop|fwd|back          - Manual button jog (manual mode)")
	fmt.Println("  trim [pct]                 - Read or set trim percentage -100..100 (automatic mode)")
	fmt.Println("  error [state]              - Read fault state or set normal|wind|dist|motor|current")
	fmt.Println("  center                     - Take the current position as center")
	fmt.Println("  trigger                    - Start calibration")
	fmt.Println("  recalibrate                - Stop and calibrate again at the next trigger")
	fmt.Println("  settings                   - Show persisted settings")
	fmt.Println("  maxrpm N                   - Set travel speed")
	fmt.Println("  maxdist N                  - Set distance fault threshold (5..50 mm)")
	fmt.Println("  dict                       - Print the command dictionary")
	fmt.Println("  quit/exit/q                - Exit the program")
	fmt.Println()
}
