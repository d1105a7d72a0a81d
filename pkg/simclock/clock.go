// Package simclock fixed tick simulation clock.
//
// Simulation code reads "now" only through Clock.Now. Real time advances the
// clock tick by tick; prediction and replay temporarily move it to a past or
// future tick with EnterSimulationTime and move it back with
// ExitSimulationTime. Entries nest.
package simclock

import (
	"fmt"
	"time"

	l4g "github.com/alecthomas/log4go"
)

// DefaultTickRate ticks per second
const DefaultTickRate = 30

// State what simulation code sees as "now"
type State struct {
	Tick       int32         // tick being simulated
	TimeTick   int32         // tick the time is derived from
	Time       time.Duration // TimeTick * interval
	Dt         time.Duration // step length
	Simulating bool          // inside Advance or an entered simulation time
}

// Config clock tuning
type Config struct {
	TickRate int
	// MaxCatchupTicks ticks run by one Advance at most; the rest of the
	// backlog is dropped. 0 means unlimited.
	MaxCatchupTicks int
}

// Scope returned by EnterSimulationTime, handed back to ExitSimulationTime
type Scope struct {
	depth int
	tick  int32
}

// Clock fixed step accumulator with a stack of saved states.
// Not safe for concurrent use.
type Clock struct {
	interval   time.Duration
	maxCatchup int

	tick  int32         // next real tick
	acc   time.Duration // unconsumed real time
	now   State
	stack []State
}

// New 构造
func New(cfg Config) *Clock {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	interval := time.Second / time.Duration(cfg.TickRate)
	return &Clock{
		interval:   interval,
		maxCatchup: cfg.MaxCatchupTicks,
		now:        State{Dt: interval},
	}
}

// Interval length of one tick
func (c *Clock) Interval() time.Duration {
	return c.interval
}

// Tick next real tick to run
func (c *Clock) Tick() int32 {
	return c.tick
}

// SetTick moves the real tick counter, used when a client adopts the server
// tick base.
func (c *Clock) SetTick(tick int32) {
	if len(c.stack) > 0 {
		panic("simclock: SetTick inside simulation time")
	}
	c.tick = tick
	c.now = State{Tick: tick, TimeTick: tick, Time: c.TicksToTime(tick), Dt: c.interval}
}

// Now current simulation state
func (c *Clock) Now() State {
	return c.now
}

// Depth entered simulation times
func (c *Clock) Depth() int {
	return len(c.stack)
}

// Pending real time not yet consumed by a tick
func (c *Clock) Pending() time.Duration {
	return c.acc
}

// Alpha fraction of the next tick already accumulated, for interpolation
func (c *Clock) Alpha() float64 {
	return float64(c.acc) / float64(c.interval)
}

// Advance accumulates dt and runs step once per whole tick, each inside its
// own simulation time. Returns the number of ticks run.
func (c *Clock) Advance(dt time.Duration, step func(State)) int {
	if dt > 0 {
		c.acc += dt
	}
	n := int(c.acc / c.interval)
	c.acc -= time.Duration(n) * c.interval

	if c.maxCatchup > 0 && n > c.maxCatchup {
		l4g.Warn("[clock] tick=%d dropping %d ticks of backlog", c.tick, n-c.maxCatchup)
		n = c.maxCatchup
	}

	for i := 0; i < n; i++ {
		tick := c.tick
		c.Simulate(tick, tick, c.interval, step)
		c.tick++
	}
	if len(c.stack) == 0 {
		c.now = State{Tick: c.tick, TimeTick: c.tick, Time: c.TicksToTime(c.tick) + c.acc, Dt: c.interval}
	}
	return n
}

// EnterSimulationTime saves the current state and makes tick the present.
// Every call must be paired with ExitSimulationTime of the returned Scope.
func (c *Clock) EnterSimulationTime(tick, timeTick int32, dt time.Duration) Scope {
	c.stack = append(c.stack, c.now)
	c.now = State{
		Tick:       tick,
		TimeTick:   timeTick,
		Time:       c.TicksToTime(timeTick),
		Dt:         dt,
		Simulating: true,
	}
	return Scope{depth: len(c.stack), tick: tick}
}

// ExitSimulationTime restores the state saved by the matching
// EnterSimulationTime. Exiting out of order panics.
func (c *Clock) ExitSimulationTime(s Scope) {
	if s.depth == 0 || s.depth != len(c.stack) || s.tick != c.now.Tick {
		panic(fmt.Sprintf("simclock: exit of depth %d tick %d at depth %d tick %d",
			s.depth, s.tick, len(c.stack), c.now.Tick))
	}
	last := len(c.stack) - 1
	c.now = c.stack[last]
	c.stack = c.stack[:last]
}

// Simulate runs fn inside simulation time; the exit happens even if fn panics.
func (c *Clock) Simulate(tick, timeTick int32, dt time.Duration, fn func(State)) {
	s := c.EnterSimulationTime(tick, timeTick, dt)
	defer c.ExitSimulationTime(s)
	if nil != fn {
		fn(c.now)
	}
}

// TicksToTime time of tick
func (c *Clock) TicksToTime(tick int32) time.Duration {
	return time.Duration(tick) * c.interval
}

// TimeToTicks whole ticks in d, rounded to nearest
func (c *Clock) TimeToTicks(d time.Duration) int32 {
	return int32((d + c.interval/2) / c.interval)
}
