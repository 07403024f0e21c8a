package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *clock, *[]State) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	var changes []State
	b := New("redis", Config{
		FailureThreshold: threshold,
		Cooldown:         cooldown,
		OnStateChange:    func(_ string, _, to State) { changes = append(changes, to) },
	})
	b.now = c.now
	return b, c, &changes
}

var errDown = errors.New("connection refused")

func fail() error { return errDown }
func ok() error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _, _ := newTestBreaker(2, time.Minute)

	assert.ErrorIs(t, b.Execute(fail), errDown)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(fail), errDown)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _, _ := newTestBreaker(2, time.Minute)

	_ = b.Execute(fail)
	_ = b.Execute(ok)
	_ = b.Execute(fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_TrialCallAfterCooldown(t *testing.T) {
	b, c, changes := newTestBreaker(1, time.Minute)

	_ = b.Execute(fail)
	c.t = c.t.Add(2 * time.Minute)

	assert.NoError(t, b.Execute(ok))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, *changes)
}

func TestBreaker_FailedTrialCallReopens(t *testing.T) {
	b, c, _ := newTestBreaker(1, time.Minute)

	_ = b.Execute(fail)
	c.t = c.t.Add(2 * time.Minute)
	_ = b.Execute(fail)

	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Execute(ok), ErrOpen)
}
