package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "16-bit short form",
			input:    "180d",
			expected: "180d",
		},
		{
			name:     "uppercase short form",
			input:    "180D",
			expected: "180d",
		},
		{
			name:     "full SIG UUID with dashes",
			input:    "0000180d-0000-1000-8000-00805f9b34fb",
			expected: "180d",
		},
		{
			name:     "full SIG UUID without dashes",
			input:    "0000180d00001000800000805f9b34fb",
			expected: "180d",
		},
		{
			name:     "custom 128-bit UUID keeps full form",
			input:    "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
			expected: "6e400001b5a3f393e0a9e50e24dcca9e",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalize(tt.input))
		})
	}
}

func TestLookupService(t *testing.T) {
	tests := []struct {
		name     string
		uuid     string
		expected string
	}{
		{
			name:     "short form",
			uuid:     "180f",
			expected: "Battery Service",
		},
		{
			name:     "uppercase",
			uuid:     "180F",
			expected: "Battery Service",
		},
		{
			name:     "full SIG UUID",
			uuid:     "0000180f-0000-1000-8000-00805f9b34fb",
			expected: "Battery Service",
		},
		{
			name:     "custom 128-bit service",
			uuid:     "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
			expected: "Nordic UART Service",
		},
		{
			name:     "unknown service",
			uuid:     "ffff",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, LookupService(tt.uuid))
		})
	}
}

func TestLookupCharacteristic(t *testing.T) {
	tests := []struct {
		name     string
		uuid     string
		expected string
	}{
		{
			name:     "short form",
			uuid:     "2a19",
			expected: "Battery Level",
		},
		{
			name:     "full SIG UUID",
			uuid:     "00002a37-0000-1000-8000-00805f9b34fb",
			expected: "Heart Rate Measurement",
		},
		{
			name:     "custom 128-bit characteristic",
			uuid:     "6e400003-b5a3-f393-e0a9-e50e24dcca9e",
			expected: "UART TX",
		},
		{
			name:     "unknown characteristic",
			uuid:     "2aff",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, LookupCharacteristic(tt.uuid))
		})
	}
}
