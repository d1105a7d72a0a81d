package prediction

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Buttons pressed in a command
type Buttons uint32

const (
	ButtonJump Buttons = 1 << iota
	ButtonDuck
	ButtonUse
	ButtonAttack
)

// Command one tick of user input. Numbers increase by one per command.
type Command struct {
	Number  int32
	Tick    int32
	Move    mgl32.Vec3 // forward, side, up in [-1, 1]
	Yaw     float32
	Buttons Buttons

	// Predicted set once the client simulated it at least once
	Predicted bool
}

// CommandBuffer outgoing commands kept by number in a ring; command n lives
// at n mod Cap and is valid while it is one of the Cap newest.
type CommandBuffer struct {
	cmds   []Command
	newest int32
}

// NewCommandBuffer 构造
func NewCommandBuffer(size int) *CommandBuffer {
	if size <= 0 {
		size = DefaultSlots
	}
	return &CommandBuffer{
		cmds:   make([]Command, size),
		newest: -1,
	}
}

// Cap commands held
func (b *CommandBuffer) Cap() int {
	return len(b.cmds)
}

// Newest highest command number added, -1 when empty
func (b *CommandBuffer) Newest() int32 {
	return b.newest
}

func (b *CommandBuffer) index(n int32) int {
	return int(uint32(n) % uint32(len(b.cmds)))
}

// Add stores cmd, overwriting the command Cap numbers older
func (b *CommandBuffer) Add(cmd Command) {
	b.cmds[b.index(cmd.Number)] = cmd
	if cmd.Number > b.newest {
		b.newest = cmd.Number
	}
}

// Get command by number. The pointer stays valid until the slot is reused.
func (b *CommandBuffer) Get(n int32) (*Command, bool) {
	if n < 0 || n > b.newest || n <= b.newest-int32(len(b.cmds)) {
		return nil, false
	}
	c := &b.cmds[b.index(n)]
	if c.Number != n {
		return nil, false
	}
	return c, true
}

// Unacknowledged commands after acked, oldest first, at most max of the newest
func (b *CommandBuffer) Unacknowledged(acked int32, max int) []Command {
	from := acked + 1
	if lo := b.newest - int32(max) + 1; from < lo {
		from = lo
	}
	var out []Command
	for n := from; n <= b.newest; n++ {
		if c, ok := b.Get(n); ok {
			out = append(out, *c)
		}
	}
	return out
}
