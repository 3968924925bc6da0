package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteCountSI(t *testing.T) {
	tests := []struct {
		bytes    int
		expected string
	}{
		{500, "500 B"},
		{1000, "1.0 kB"},
		{1500, "1.5 kB"},
		{1500000, "1.5 MB"},
		{2000000000, "2.0 GB"},
	}
	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, ByteCountSI(tc.bytes))
		})
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "hello", Preview("hello", 10))
	assert.Equal(t, "hel…", Preview("hello", 3))
	assert.Equal(t, "héé…", Preview("héééé", 3))
	assert.Equal(t, "", Preview("hello", 0))
}
