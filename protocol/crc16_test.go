package protocol

import (
	"testing"

	"go.viam.com/test"
)

func TestCRC16(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{"empty", []byte{}, 0xFFFF},
		// CRC-16/MCRF4XX check value
		{"check string", []byte("123456789"), 0x6F91},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			test.That(t, CRC16(tc.data), test.ShouldEqual, tc.expected)
		})
	}
}

func TestCRC16Different(t *testing.T) {
	// Single bit flips must change the checksum
	data1 := []byte{0x01, 0x02, 0x03}
	data2 := []byte{0x01, 0x02, 0x04}

	test.That(t, CRC16(data1), test.ShouldNotEqual, CRC16(data2))
	test.That(t, CRC16(data1), test.ShouldEqual, CRC16([]byte{0x01, 0x02, 0x03}))
}
