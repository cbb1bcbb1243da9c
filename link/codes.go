package link

import (
	"github.com/pkg/errors"

	"sailguide/guide"
)

var (
	// ErrDenied is returned for a refused mode change.
	ErrDenied = errors.New("request denied")
	// ErrBadRequest is returned for a command whose arguments did not decode.
	ErrBadRequest = errors.New("malformed command")
	// ErrFailed covers device side failures without a dedicated code.
	ErrFailed = errors.New("command failed")
)

// Code is the outcome carried by a result message.
type Code uint8

// Result codes
const (
	CodeOK Code = iota
	CodeNotManual
	CodeNotAutomatic
	CodeNotCalibrated
	CodeOutOfRange
	CodeFaultActive
	CodeDenied
	CodeBadRequest
	CodeFailed
)

var codeErrors = map[Code]error{
	CodeNotManual:     guide.ErrNotManual,
	CodeNotAutomatic:  guide.ErrNotAutomatic,
	CodeNotCalibrated: guide.ErrNotCalibrated,
	CodeOutOfRange:    guide.ErrOutOfRange,
	CodeFaultActive:   guide.ErrFaultActive,
	CodeDenied:        ErrDenied,
	CodeBadRequest:    ErrBadRequest,
	CodeFailed:        ErrFailed,
}

// CodeOf classifies a command error.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	for code, target := range codeErrors {
		if errors.Is(err, target) {
			return code
		}
	}
	return CodeFailed
}

// Err turns a code back into its sentinel error, nil for CodeOK.
func (c Code) Err() error {
	if c == CodeOK {
		return nil
	}
	if err, ok := codeErrors[c]; ok {
		return err
	}
	return errors.Wrapf(ErrFailed, "code %d", uint8(c))
}
