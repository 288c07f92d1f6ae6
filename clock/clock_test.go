package clock_test

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/scenario-player/clock"
)

func TestSpeedIsClamped(t *testing.T) {
	c := clock.New(10, 100)
	assert.Equal(t, clock.MaxSpeed, c.Speed)
	c.SetSpeed(0.01)
	assert.Equal(t, clock.MinSpeed, c.Speed)
	c.SetSpeed(math.NaN())
	assert.Equal(t, 1.0, c.Speed)
}

func TestClampTime(t *testing.T) {
	c := clock.New(5, 1)
	assert.Equal(t, 0.0, c.ClampTime(-3))
	assert.Equal(t, 5.0, c.ClampTime(7))
	assert.Equal(t, 2.5, c.ClampTime(2.5))
	assert.Equal(t, 0.0, c.ClampTime(math.NaN()))
}

func TestAdvanceStopsExactlyAtDuration(t *testing.T) {
	c := clock.New(1, 1)
	c.Status = clock.StatusPlaying
	c.T = 0.95
	wrapped, ended := c.Advance(0.15)
	assert.False(t, wrapped)
	assert.True(t, ended)
	assert.Equal(t, 1.0, c.T)
	assert.False(t, c.Playing())
	assert.Equal(t, clock.StatusEnded, c.Status)
}

func TestAdvanceLoops(t *testing.T) {
	c := clock.New(1, 2)
	c.Loop = true
	c.Status = clock.StatusPlaying
	c.T = 0.9
	wrapped, ended := c.Advance(0.1)
	assert.True(t, wrapped)
	assert.False(t, ended)
	assert.Equal(t, 0.0, c.T)
	assert.True(t, c.Playing())
}

func TestAdvanceIgnoredWhenPaused(t *testing.T) {
	c := clock.New(1, 1)
	c.Status = clock.StatusPaused
	c.Advance(0.5)
	assert.Equal(t, 0.0, c.T)
}

func TestString(t *testing.T) {
	c := clock.New(75.5, 1)
	c.T = 61.25
	assert.Equal(t, "01:01.250 / 01:15.500", c.String())
	m, s := c.GetMinuteSecond()
	assert.Equal(t, 1, m)
	assert.InDelta(t, 1.25, s, 1e-9)
}

func TestMockTimerFiresOnAdvance(t *testing.T) {
	start := time.Unix(0, 0)
	wall := clock.NewMockClock(start)
	timer := wall.NewTimer(10 * time.Millisecond)
	wall.Advance(5 * time.Millisecond)
	select {
	case <-timer.C():
		t.Fatal("fired early")
	default:
	}
	wall.Advance(5 * time.Millisecond)
	select {
	case now := <-timer.C():
		assert.Equal(t, start.Add(10*time.Millisecond), now)
	default:
		t.Fatal("did not fire")
	}
	assert.False(t, timer.Stop())
}

func TestTimerSchedulerCancel(t *testing.T) {
	wall := clock.NewMockClock(time.Unix(0, 0))
	s := clock.NewTimerScheduler(wall, 16*time.Millisecond)
	var calls atomic.Int32
	cancel := s.RequestFrame(func(time.Time) { calls.Add(1) })
	cancel()
	cancel()
	wall.Advance(time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestTimerSchedulerFires(t *testing.T) {
	wall := clock.NewMockClock(time.Unix(0, 0))
	s := clock.NewTimerScheduler(wall, 16*time.Millisecond)
	got := make(chan time.Time, 1)
	s.RequestFrame(func(now time.Time) { got <- now })
	wall.Advance(16 * time.Millisecond)
	select {
	case now := <-got:
		assert.Equal(t, time.Unix(0, 0).Add(16*time.Millisecond), now)
	case <-time.After(time.Second):
		t.Fatal("frame callback not invoked")
	}
}

func TestManualScheduler(t *testing.T) {
	s := clock.NewManualScheduler()
	var calls int
	s.RequestFrame(func(time.Time) { calls++ })
	cancel := s.RequestFrame(func(time.Time) { calls += 10 })
	assert.Equal(t, 2, s.Pending())
	cancel()
	s.Fire(time.Now())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Pending())
}
