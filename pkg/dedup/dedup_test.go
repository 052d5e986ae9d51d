package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldProcess_TTL(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	d := New(time.Minute, 10).WithClock(func() time.Time { return now })

	assert.True(t, d.ShouldProcess("a"))
	assert.False(t, d.ShouldProcess("a"))
	assert.True(t, d.ShouldProcess(""))
	assert.True(t, d.ShouldProcess(""))

	now = now.Add(61 * time.Second)
	assert.True(t, d.ShouldProcess("a"))
}

func TestShouldProcessPayload(t *testing.T) {
	d := New(time.Minute, 10)
	body := []byte(`{"cycleId":"c1","newStatus":"completed"}`)

	assert.True(t, d.ShouldProcessPayload("event/cycleStatus/f1", body))
	assert.False(t, d.ShouldProcessPayload("event/cycleStatus/f1", body))
	assert.True(t, d.ShouldProcessPayload("event/cycleStatus/f2", body))
}

func TestPruneExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	d := New(time.Second, 2).WithClock(func() time.Time { return now })
	d.ShouldProcess("a")
	d.ShouldProcess("b")

	now = now.Add(time.Minute)
	d.ShouldProcess("c")
	assert.LessOrEqual(t, d.Len(), 2)
}
