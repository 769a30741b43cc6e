package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tashkent")
	require.NoError(t, err)

	now := NewSystem(loc).Now()
	assert.Equal(t, loc, now.Location())
}

func TestSystemDefaultsToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, System{}.Now().Location())
	assert.Equal(t, time.UTC, NewSystem(nil).Now().Location())
}

func TestMockSetAndAdvance(t *testing.T) {
	start := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	m := NewMock(start)
	assert.Equal(t, start, m.Now())

	m.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), m.Now())

	later := start.AddDate(0, 0, 3)
	m.Set(later)
	assert.Equal(t, later, m.Now())
}
