package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContactCache(t *testing.T) {
	c := NewContactCache(1000, 0.001)

	assert.Equal(t, StatusUnknown, c.Check(1, "628111"))
	c.MarkKnown(1, "628111")
	assert.Equal(t, StatusMaybeKnown, c.Check(1, "628111"))
	assert.Equal(t, StatusUnknown, c.Check(2, "628111"), "tenants do not share entries")

	c.RecordFalsePositive()
	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(2), s.Misses)
	assert.Equal(t, int64(1), s.FalsePositives)
	assert.InDelta(t, 1.0/3, s.HitRate, 1e-9)
	assert.Equal(t, uint32(1), s.ApproximateSize)
}
