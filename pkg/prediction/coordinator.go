package prediction

import (
	"time"

	l4g "github.com/alecthomas/log4go"
	"github.com/byebyebruce/snapsync/pkg/metrics"
	"github.com/byebyebruce/snapsync/pkg/simclock"
)

// Config prediction policy
type Config struct {
	Slots          int           // history slots and the replay bound
	BackupCommands int           // unacknowledged commands resent with each new one
	MaxError       float32       // error at or above this is a teleport
	MinError       float32       // error below this is ignored
	SmoothTime     time.Duration // time to decay a smoothed error
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Slots:          DefaultSlots,
		BackupCommands: 24,
		MaxError:       64,
		MinError:       0.1,
		SmoothTime:     100 * time.Millisecond,
	}
}

// Predictable an entity the client predicts
type Predictable interface {
	PredictionObject() *Object
	// Simulate runs one command; now is the command's simulation time
	Simulate(cmd *Command, now simclock.State)
}

// InterpolationResetter entities dropping interpolation history after a
// misprediction
type InterpolationResetter interface {
	ResetInterpolation(now simclock.State)
}

// Result of one Update
type Result struct {
	Start     int   // first slot run, 1 based
	First     int32 // first command number simulated
	Predicted int   // commands simulated
	Aborted   bool  // too many unacknowledged commands for the ring
}

// Coordinator replays buffered commands through the predicted entities.
// Single goroutine, driven once per client frame.
type Coordinator struct {
	cfg      Config
	clock    *simclock.Clock
	commands *CommandBuffer
	entities []Predictable

	commandsPredicted int
	serverAcked       int
	prevAckHadErrors  bool

	inPrediction bool
	current      *Command
	pass         uint64
	diffs        []FieldDiff
}

// NewCoordinator 构造
func NewCoordinator(cfg Config, clock *simclock.Clock, commands *CommandBuffer) *Coordinator {
	if cfg.Slots <= 0 {
		cfg.Slots = DefaultSlots
	}
	return &Coordinator{
		cfg:      cfg,
		clock:    clock,
		commands: commands,
	}
}

// Config policy in use
func (c *Coordinator) Config() Config {
	return c.cfg
}

// Add starts predicting e. The predicted history is dropped so the next
// Update replays every unacknowledged command from the received state.
func (c *Coordinator) Add(e Predictable) {
	c.entities = append(c.entities, e)
	c.commandsPredicted = 0
	c.serverAcked = 0
	c.prevAckHadErrors = false
}

// Remove stops predicting e
func (c *Coordinator) Remove(e Predictable) {
	for i, v := range c.entities {
		if v == e {
			c.entities = append(c.entities[:i], c.entities[i+1:]...)
			return
		}
	}
}

// InPrediction true while commands are being replayed
func (c *Coordinator) InPrediction() bool {
	return c.inPrediction
}

// CommandsPredicted commands predicted by the last Update
func (c *Coordinator) CommandsPredicted() int {
	return c.commandsPredicted
}

// PreviousAckHadErrors the last acknowledgment found a misprediction
func (c *Coordinator) PreviousAckHadErrors() bool {
	return c.prevAckHadErrors
}

// PreNetworkDataReceived puts every entity back to the last received state
// so a server update is applied on top of it, not on top of a prediction.
func (c *Coordinator) PreNetworkDataReceived() {
	c.restore(OriginalSlot)
}

// PostNetworkDataReceived runs after a server update was applied to the
// entities. acked is the number of commands the update newly acknowledged.
// Compares what was predicted for the last acknowledged command with the
// received state and saves the received state as the original slot.
// Returns true when a checked field differed.
func (c *Coordinator) PostNetworkDataReceived(acked int) bool {
	errorCheck := acked > 0
	c.serverAcked += acked
	c.prevAckHadErrors = false

	slot := c.serverAcked - 1
	canCheck := errorCheck && slot >= 0 && c.serverAcked <= c.commandsPredicted
	for _, e := range c.entities {
		o := e.PredictionObject()
		if canCheck && c.checkErrors(o, slot) {
			c.prevAckHadErrors = true
		}
		o.Save(OriginalSlot)
	}
	return c.prevAckHadErrors
}

func (c *Coordinator) checkErrors(o *Object, slot int) bool {
	var worst DiffType
	worst, c.diffs = o.Compare(slot, c.diffs[:0])
	metrics.PredictionErrors.WithLabelValues(worst.String()).Inc()
	for _, d := range c.diffs {
		l4g.Debug("[prediction] slot=%d field=%s %s", slot, d.Field.Name, d.Diff)
	}

	if delta, ok := o.PredictionError(slot); ok && nil != o.smoother {
		dist := delta.Len()
		switch {
		case dist >= c.cfg.MaxError:
			o.smoother.Clear()
			metrics.PredictionErrors.WithLabelValues("teleport").Inc()
			l4g.Debug("[prediction] teleport error=%.2f", dist)
		case dist > c.cfg.MinError:
			o.smoother.Set(delta, c.clock.Now().Time)
		}
	}
	return worst == DiffDiffers
}

// Update predicts from the first command that needs running up to outgoing.
// received tells whether a server update arrived this frame, incomingAcked
// is the last command the server ran and tickBase the server tick of it.
// Up to Slots unacknowledged commands are predicted; one more aborts.
func (c *Coordinator) Update(received bool, incomingAcked, outgoing, tickBase int32) Result {
	var res Result
	if int(outgoing-incomingAcked) > c.cfg.Slots {
		c.abort(outgoing, incomingAcked)
		res.Aborted = true
		return res
	}

	start := c.firstCommandToExecute(received, incomingAcked, outgoing, tickBase)
	res.Start = start
	res.First = incomingAcked + int32(start)

	c.inPrediction = true
	for i := start; ; i++ {
		current := incomingAcked + int32(i)
		if current > outgoing {
			break
		}
		cmd, ok := c.commands.Get(current)
		if !ok {
			break
		}

		c.runCommand(cmd)
		c.storeResults(i - 1)
		c.commandsPredicted = i
		cmd.Predicted = true
		res.Predicted++
	}
	c.inPrediction = false

	metrics.PredictedCommands.Observe(float64(res.Predicted))
	return res
}

func (c *Coordinator) abort(outgoing, acked int32) {
	l4g.Warn("[prediction] abort: %d unacknowledged commands, ring holds %d", outgoing-acked, c.cfg.Slots)
	metrics.PredictionAborts.Inc()
	for _, e := range c.entities {
		e.PredictionObject().Restore(OriginalSlot)
	}
	c.commandsPredicted = 0
	c.serverAcked = 0
	c.prevAckHadErrors = false
}

// firstCommandToExecute picks the slot to start replay at, restoring or
// shifting the predicted history as needed.
func (c *Coordinator) firstCommandToExecute(received bool, incomingAcked, outgoing, tickBase int32) int {
	destination := 1
	skipAhead := 0

	switch {
	case !received || c.serverAcked == 0:
		// nothing new was confirmed: keep the previous prediction and only
		// run commands created since
		start := incomingAcked + 1
		skipAhead = int(outgoing - start)
		if skipAhead < 0 {
			skipAhead = 0
		}
		if skipAhead > c.commandsPredicted {
			skipAhead = c.commandsPredicted
		}
		c.restore(skipAhead - 1)

	case !c.prevAckHadErrors && c.commandsPredicted > 0 && c.serverAcked <= c.commandsPredicted:
		// confirmed without errors: reuse the last predicted frame and drop
		// the history of the acknowledged commands
		c.restore(c.commandsPredicted - 1)
		skipAhead = c.commandsPredicted - c.serverAcked
		c.shiftIntermediateForward(c.serverAcked, c.commandsPredicted)

	case c.prevAckHadErrors:
		// start over from the received state with fresh interpolation history
		t := tickBase - 1
		for _, e := range c.entities {
			if r, ok := e.(InterpolationResetter); ok {
				c.clock.Simulate(t, t, c.clock.Interval(), r.ResetInterpolation)
			}
		}
	}

	destination += skipAhead
	c.commandsPredicted = 0
	c.prevAckHadErrors = false
	c.serverAcked = 0
	return destination
}

func (c *Coordinator) restore(slot int) {
	for _, e := range c.entities {
		e.PredictionObject().Restore(slot)
	}
}

func (c *Coordinator) shiftIntermediateForward(remove, count int) {
	if remove > count {
		return
	}
	for _, e := range c.entities {
		e.PredictionObject().ShiftIntermediateForward(remove, count)
	}
}

func (c *Coordinator) storeResults(slot int) {
	for _, e := range c.entities {
		e.PredictionObject().Save(slot)
	}
}

func (c *Coordinator) runCommand(cmd *Command) {
	c.pass++
	c.current = cmd
	c.clock.Simulate(cmd.Tick, cmd.Tick, c.clock.Interval(), func(simclock.State) {
		for _, e := range c.entities {
			c.SimulateDependency(e)
		}
	})
	c.current = nil
}

// SimulateDependency simulates e for the current command unless it already
// ran. Entities call it for the entities they depend on.
func (c *Coordinator) SimulateDependency(e Predictable) {
	if nil == c.current {
		return
	}
	o := e.PredictionObject()
	if o.pass == c.pass {
		return
	}
	o.pass = c.pass
	e.Simulate(c.current, c.clock.Now())
}
