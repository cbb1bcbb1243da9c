package protocol

import "github.com/pkg/errors"

// ErrBufferTooSmall is returned when a value is truncated
var ErrBufferTooSmall = errors.New("buffer too small for VLQ")

// vlqSpans are the ranges that still fit in one fewer byte. Each range is
// skewed toward positive values so that small negatives stay short.
var vlqSpans = [...]uint{26, 19, 12, 5}

// EncodeVLQInt writes v in 7-bit groups, most significant first, with the
// high bit set on every group but the last.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var buf [5]byte
	n := 0
	for _, bits := range vlqSpans {
		if v < -(1<<bits) || v >= 3<<bits {
			buf[n] = byte(v>>(bits+2))&0x7F | 0x80
			n++
		}
	}
	buf[n] = byte(v) & 0x7F
	output.Output(buf[:n+1])
}

// EncodeVLQUint writes v using the signed encoding.
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt reads one value and advances data past it.
func DecodeVLQInt(data *[]byte) (int32, error) {
	buf := *data
	if len(buf) == 0 {
		return 0, ErrBufferTooSmall
	}
	c := buf[0]
	v := uint32(c & 0x7F)
	if c&0x60 == 0x60 {
		// first group carries the sign
		v |= ^uint32(0x1F)
	}
	i := 1
	for ; c&0x80 != 0; i++ {
		if i >= len(buf) {
			return 0, ErrBufferTooSmall
		}
		c = buf[i]
		v = v<<7 | uint32(c&0x7F)
	}
	*data = buf[i:]
	return int32(v), nil
}

// DecodeVLQUint reads one unsigned value.
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// EncodeVLQBool encodes a flag as 0 or 1
func EncodeVLQBool(output OutputBuffer, b bool) {
	if b {
		EncodeVLQUint(output, 1)
		return
	}
	EncodeVLQUint(output, 0)
}

// DecodeVLQBool decodes a flag; any non-zero value is true
func DecodeVLQBool(data *[]byte) (bool, error) {
	v, err := DecodeVLQUint(data)
	return v != 0, err
}

// EncodeVLQString encodes a string with length prefix
func EncodeVLQString(output OutputBuffer, s string) {
	EncodeVLQUint(output, uint32(len(s)))
	output.Output([]byte(s))
}

// DecodeVLQString decodes a length-prefixed string
func DecodeVLQString(data *[]byte) (string, error) {
	length, err := DecodeVLQUint(data)
	if err != nil {
		return "", err
	}
	if len(*data) < int(length) {
		return "", ErrBufferTooSmall
	}
	s := string((*data)[:length])
	*data = (*data)[length:]
	return s, nil
}
