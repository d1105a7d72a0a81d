package world

import (
	"sort"

	"github.com/byebyebruce/snapsync/pb"
	"github.com/byebyebruce/snapsync/pkg/metrics"
	"github.com/byebyebruce/snapsync/pkg/prediction"
	"github.com/go-gl/mathgl/mgl32"
)

// commandQueue received user commands of one player waiting for a tick.
// Numbers at or below the last executed one are dropped, so resent backups
// run once.
type commandQueue struct {
	cmds []prediction.Command
	last int32 // last executed command number
	max  int
}

func newCommandQueue(max int) *commandQueue {
	return &commandQueue{max: max}
}

func (q *commandQueue) reset() {
	q.cmds = q.cmds[:0]
	q.last = 0
}

// push queues cmd; false when it is stale, a duplicate or the queue is full
func (q *commandQueue) push(cmd prediction.Command) bool {
	if cmd.Number <= q.last {
		metrics.CommandsDropped.WithLabelValues("stale").Inc()
		return false
	}
	i := sort.Search(len(q.cmds), func(i int) bool { return q.cmds[i].Number >= cmd.Number })
	if i < len(q.cmds) && q.cmds[i].Number == cmd.Number {
		return false
	}
	if len(q.cmds) >= q.max {
		metrics.CommandsDropped.WithLabelValues("overflow").Inc()
		return false
	}
	q.cmds = append(q.cmds, prediction.Command{})
	copy(q.cmds[i+1:], q.cmds[i:])
	q.cmds[i] = cmd
	return true
}

// pop takes every queued command in number order
func (q *commandQueue) pop(fn func(cmd *prediction.Command)) int {
	n := len(q.cmds)
	for i := range q.cmds {
		fn(&q.cmds[i])
		q.last = q.cmds[i].Number
	}
	q.cmds = q.cmds[:0]
	return n
}

func (q *commandQueue) len() int {
	return len(q.cmds)
}

// FromWire converts a wire command
func FromWire(c *pb.Command) prediction.Command {
	return prediction.Command{
		Number:  c.Number,
		Tick:    c.Tick,
		Move:    mgl32.Vec3{c.MoveX, c.MoveY, c.MoveZ},
		Yaw:     c.Yaw,
		Buttons: prediction.Buttons(c.Buttons),
	}
}

// ToWire inverse of FromWire
func ToWire(c *prediction.Command) *pb.Command {
	return &pb.Command{
		Number:  c.Number,
		Tick:    c.Tick,
		MoveX:   c.Move[0],
		MoveY:   c.Move[1],
		MoveZ:   c.Move[2],
		Yaw:     c.Yaw,
		Buttons: uint32(c.Buttons),
	}
}
