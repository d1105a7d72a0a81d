package prediction

import (
	"testing"
	"time"

	"github.com/byebyebruce/snapsync/pkg/simclock"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mover struct {
	pos    mgl32.Vec3
	steps  int32
	speed  float32
	obj    *Object
	resets []int32

	coord *Coordinator
	dep   Predictable
}

func newMover(slots int) *mover {
	m := &mover{speed: 300}
	m.obj = NewObject(slots,
		Bind("origin", &m.pos, 0.01, FlagNetworked),
		Bind("steps", &m.steps, 0, FlagPrivate),
	)
	m.obj.SetErrorField("origin", NewSmoother(100*time.Millisecond))
	return m
}

func (m *mover) PredictionObject() *Object { return m.obj }

func (m *mover) Simulate(cmd *Command, now simclock.State) {
	if nil != m.dep {
		m.coord.SimulateDependency(m.dep)
	}
	m.pos = m.pos.Add(cmd.Move.Mul(m.speed * float32(now.Dt.Seconds())))
	m.steps++
}

func (m *mover) ResetInterpolation(now simclock.State) {
	m.resets = append(m.resets, now.Tick)
}

type harness struct {
	clock *simclock.Clock
	cmds  *CommandBuffer
	coord *Coordinator
	m     *mover
}

func newHarness() *harness {
	h := &harness{
		clock: simclock.New(simclock.Config{TickRate: 10}),
		cmds:  NewCommandBuffer(DefaultSlots),
		m:     newMover(DefaultSlots),
	}
	h.coord = NewCoordinator(DefaultConfig(), h.clock, h.cmds)
	h.coord.Add(h.m)
	h.coord.PostNetworkDataReceived(0)
	return h
}

func (h *harness) issue(from, to int32) {
	for n := from; n <= to; n++ {
		h.cmds.Add(Command{Number: n, Tick: n, Move: mgl32.Vec3{0, 1, 0}})
	}
}

// server applies its state for the acknowledged commands
func (h *harness) receive(pos mgl32.Vec3, acked int) bool {
	h.coord.PreNetworkDataReceived()
	h.m.pos = pos
	return h.coord.PostNetworkDataReceived(acked)
}

func TestRingWraparound(t *testing.T) {
	var v int32
	o := NewObject(DefaultSlots, Bind("v", &v, 0, FlagNetworked))

	v = 5
	o.Save(5)
	v = 95
	o.Save(95)

	assert.Same(t, &o.Ring().Slot(5)[0], &o.Ring().Slot(95)[0], "slot 95 aliases slot 5")
	v = 0
	o.Restore(5)
	assert.Equal(t, int32(95), v)

	assert.False(t, o.Ring().Allocated(6))
	assert.Equal(t, []byte{0, 0, 0, 0}, o.Ring().Slot(6), "fresh slots are zeroed")
	assert.True(t, o.Ring().Allocated(6))
}

func TestRingShiftForward(t *testing.T) {
	var v int32
	o := NewObject(8, Bind("v", &v, 0, 0))
	for i := 0; i < 5; i++ {
		v = int32(10 + i)
		o.Save(i)
	}
	assert.Equal(t, 5, o.IntermediateCount())

	o.ShiftIntermediateForward(3, 5)
	assert.Equal(t, 2, o.IntermediateCount())
	o.Restore(0)
	assert.Equal(t, int32(13), v)
	o.Restore(1)
	assert.Equal(t, int32(14), v)

	// remove more than ran is a no-op
	o.ShiftIntermediateForward(4, 2)
	o.Restore(0)
	assert.Equal(t, int32(13), v)
}

func TestFieldCompare(t *testing.T) {
	var v mgl32.Vec3
	f := Bind("v", &v, 0.5, FlagNetworked)
	enc := func(x mgl32.Vec3) []byte {
		v = x
		buf := make([]byte, f.Stride())
		f.save(buf)
		return buf
	}
	base := enc(mgl32.Vec3{1, 2, 3})
	assert.Equal(t, DiffIdentical, f.Compare(base, enc(mgl32.Vec3{1, 2, 3})))
	assert.Equal(t, DiffWithinTolerance, f.Compare(base, enc(mgl32.Vec3{1, 2.4, 3})))
	assert.Equal(t, DiffDiffers, f.Compare(base, enc(mgl32.Vec3{1, 2, 4})))

	var b bool
	fb := Bind("b", &b, 1, FlagNetworked)
	assert.Equal(t, DiffDiffers, fb.Compare([]byte{1}, []byte{0}), "bool ignores tolerance")

	var i int32
	fi := Bind("i", &i, 2, FlagNetworked)
	bi, bj := make([]byte, 4), make([]byte, 4)
	i = 10
	fi.save(bi)
	i = 12
	fi.save(bj)
	assert.Equal(t, DiffWithinTolerance, fi.Compare(bi, bj))
	i = -10
	fi.save(bj)
	assert.Equal(t, DiffDiffers, fi.Compare(bi, bj))
}

func TestBindFunc(t *testing.T) {
	store := mgl32.Vec4{1, 2, 3, 4}
	f := BindFunc("v", func() mgl32.Vec4 { return store }, func(v mgl32.Vec4) { store = v }, 0, 0)
	o := NewObject(4, f)
	assert.Equal(t, 16, o.BufferSize())
	o.Save(0)
	store = mgl32.Vec4{}
	o.Restore(0)
	assert.Equal(t, mgl32.Vec4{1, 2, 3, 4}, store)
}

func TestCompareSkipsUncheckedFields(t *testing.T) {
	var a, b, c float32
	o := NewObject(4,
		Bind("a", &a, 0, FlagNetworked),
		Bind("b", &b, 0, FlagNetworked|FlagNoErrorCheck),
		Bind("c", &c, 0, FlagPrivate),
	)
	o.Save(0)
	b, c = 1, 1
	d, diffs := o.Compare(0, nil)
	assert.Equal(t, DiffIdentical, d)
	assert.Empty(t, diffs)

	a = 1
	d, diffs = o.Compare(0, nil)
	assert.Equal(t, DiffDiffers, d)
	require.Len(t, diffs, 1)
	assert.Equal(t, "a", diffs[0].Field.Name)
}

func TestPredictForward(t *testing.T) {
	h := newHarness()
	h.issue(1, 5)

	res := h.coord.Update(false, 0, 5, 0)
	assert.Equal(t, 1, res.Start)
	assert.Equal(t, int32(1), res.First)
	assert.Equal(t, 5, res.Predicted)
	assert.InDelta(t, 150, h.m.pos.Y(), 0.01)
	assert.Equal(t, 5, h.coord.CommandsPredicted())
	c, _ := h.cmds.Get(5)
	assert.True(t, c.Predicted)

	// no update and no new command: only the newest command runs again
	res = h.coord.Update(false, 0, 5, 0)
	assert.Equal(t, 5, res.Start)
	assert.Equal(t, 1, res.Predicted)
	assert.InDelta(t, 150, h.m.pos.Y(), 0.01)
}

func TestFastPathReuse(t *testing.T) {
	h := newHarness()
	h.issue(1, 5)
	h.coord.Update(false, 0, 5, 0)

	// server ran 3 commands and agrees
	errs := h.receive(mgl32.Vec3{0, 90, 0}, 3)
	require.False(t, errs)

	h.issue(6, 6)
	res := h.coord.Update(true, 3, 6, 3)
	assert.Equal(t, 3, res.Start)
	assert.Equal(t, int32(6), res.First)
	assert.Equal(t, 1, res.Predicted)
	assert.InDelta(t, 180, h.m.pos.Y(), 0.01)
	assert.Equal(t, int32(6), h.m.steps, "restored private state continues")
	assert.Empty(t, h.m.resets)

	// slots were shifted by the acknowledged count
	h.m.obj.Restore(0)
	assert.InDelta(t, 120, h.m.pos.Y(), 0.01)
}

func TestErrorPathReset(t *testing.T) {
	h := newHarness()
	h.issue(1, 5)
	h.coord.Update(false, 0, 5, 0)

	errs := h.receive(mgl32.Vec3{0, 80, 0}, 3)
	require.True(t, errs)
	assert.True(t, h.coord.PreviousAckHadErrors())
	require.True(t, h.m.obj.Smoother().Active())
	assert.InDelta(t, 10, h.m.obj.Smoother().Offset(h.clock.Now().Time).Y(), 0.01)

	res := h.coord.Update(true, 3, 5, 3)
	assert.Equal(t, 1, res.Start)
	assert.Equal(t, 2, res.Predicted)
	assert.InDelta(t, 140, h.m.pos.Y(), 0.01)
	assert.Equal(t, []int32{2}, h.m.resets)
	assert.Equal(t, 0, h.clock.Depth())
}

func TestTeleport(t *testing.T) {
	h := newHarness()
	h.issue(1, 5)
	h.coord.Update(false, 0, 5, 0)

	errs := h.receive(mgl32.Vec3{0, -1000, 0}, 3)
	assert.True(t, errs)
	assert.False(t, h.m.obj.Smoother().Active(), "teleports are not smoothed")
}

func TestSmallErrorIgnored(t *testing.T) {
	h := newHarness()
	h.issue(1, 2)
	h.coord.Update(false, 0, 2, 0)

	errs := h.receive(mgl32.Vec3{0, 60.005, 0}, 2)
	assert.False(t, errs, "within tolerance")
	assert.False(t, h.m.obj.Smoother().Active())
}

func TestAbortAtRingCapacity(t *testing.T) {
	h := newHarness()
	h.m.pos = mgl32.Vec3{1, 2, 3}
	h.coord.PostNetworkDataReceived(0)

	h.issue(1, 95)
	h.m.pos = mgl32.Vec3{}
	res := h.coord.Update(false, 0, 95, 0)
	assert.True(t, res.Aborted)
	assert.Equal(t, 0, res.Predicted)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, h.m.pos, "falls back to the received state")

	res = h.coord.Update(false, 10, 95, 0)
	assert.False(t, res.Aborted)
	assert.Equal(t, 85, res.Predicted)
}

func TestRingCapacityBoundary(t *testing.T) {
	h := newHarness()
	h.issue(1, DefaultSlots+1)

	// one command more than the ring holds
	res := h.coord.Update(false, 0, DefaultSlots+1, 0)
	assert.True(t, res.Aborted)

	// a full ring is still predicted
	res = h.coord.Update(false, 1, DefaultSlots+1, 0)
	assert.False(t, res.Aborted)
	assert.Equal(t, DefaultSlots, res.Predicted)
	assert.Equal(t, DefaultSlots, h.m.obj.IntermediateCount())
	assert.InDelta(t, 30*DefaultSlots, h.m.pos.Y(), 0.01)

	h2 := newHarness()
	h2.issue(1, DefaultSlots-1)
	res = h2.coord.Update(false, 0, DefaultSlots-1, 0)
	assert.False(t, res.Aborted)
	assert.Equal(t, DefaultSlots-1, res.Predicted)
}

func TestSimulateDependencyOncePerCommand(t *testing.T) {
	h := newHarness()
	dep := newMover(DefaultSlots)
	h.m.dep = dep
	h.m.coord = h.coord
	h.coord.Add(dep)

	h.issue(1, 4)
	h.coord.Update(false, 0, 4, 0)
	assert.Equal(t, int32(4), dep.steps)
	assert.Equal(t, int32(4), h.m.steps)
	assert.False(t, h.coord.InPrediction())

	h.coord.Remove(dep)
	h.m.dep = nil
	h.coord.Update(false, 0, 4, 0)
	assert.Equal(t, int32(4), dep.steps)
}

func TestCommandBuffer(t *testing.T) {
	b := NewCommandBuffer(4)
	assert.Equal(t, int32(-1), b.Newest())
	for n := int32(1); n <= 6; n++ {
		b.Add(Command{Number: n})
	}
	_, ok := b.Get(2)
	assert.False(t, ok, "overwritten")
	c, ok := b.Get(3)
	require.True(t, ok)
	assert.Equal(t, int32(3), c.Number)
	_, ok = b.Get(7)
	assert.False(t, ok)

	numbers := func(cmds []Command) []int32 {
		var out []int32
		for _, c := range cmds {
			out = append(out, c.Number)
		}
		return out
	}
	assert.Equal(t, []int32{5, 6}, numbers(b.Unacknowledged(4, 24)))
	assert.Equal(t, []int32{5, 6}, numbers(b.Unacknowledged(0, 2)))
	assert.Equal(t, []int32{3, 4, 5, 6}, numbers(b.Unacknowledged(0, 24)))
	assert.Empty(t, b.Unacknowledged(6, 24))
}

func TestSmootherDecay(t *testing.T) {
	s := NewSmoother(100 * time.Millisecond)
	s.Set(mgl32.Vec3{10, 0, 0}, time.Second)
	assert.InDelta(t, 10, s.Offset(time.Second).X(), 1e-4)
	assert.InDelta(t, 5, s.Offset(time.Second+50*time.Millisecond).X(), 1e-4)
	assert.Equal(t, mgl32.Vec3{}, s.Offset(time.Second+100*time.Millisecond))
	assert.False(t, s.Active())
}

func BenchmarkUpdate(b *testing.B) {
	h := newHarness()
	h.issue(1, 60)
	for i := 0; i < b.N; i++ {
		h.coord.Update(true, 0, 60, 0)
	}
}
