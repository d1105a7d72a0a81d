package entity

import (
	"time"

	l4g "github.com/alecthomas/log4go"
	"github.com/byebyebruce/snapsync/pkg/prediction"
	"github.com/byebyebruce/snapsync/pkg/schema"
	"github.com/byebyebruce/snapsync/pkg/simclock"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// Speed units per second at full input
	Speed = 300
	// MaxHealth spawn health
	MaxHealth = 100
)

// player flags
const (
	FlagDucking uint8 = 1 << iota
	FlagUsing
	FlagAttacking
)

// Stats nested networked score
type Stats struct {
	Kills  int32
	Deaths int32
}

// Player entity moved by user commands
type Player struct {
	BaseEntity
	Velocity  mgl32.Vec3
	Yaw       float32
	Health    int32
	Armor     uint8
	Name      string
	TickBase  int32 // server tick the last command ran at
	Flags     uint8
	Inventory []byte
	Stats     Stats

	// LastNotice last notice message received, client only
	LastNotice string

	pred *prediction.Object
}

// NewPlayer 构造
func NewPlayer(name string) *Player {
	return &Player{
		Name:   name,
		Health: MaxHealth,
	}
}

func (p *Player) NetworkClass() *schema.Class {
	return PlayerClass
}

// Move one command of movement, shared by server and client prediction so
// both produce the same bits.
func (p *Player) Move(cmd *prediction.Command, dt float32) {
	fwd, side := cmd.Move.X(), cmd.Move.Y()
	forward := mgl32.Vec3{0, 1, 0}
	right := mgl32.Vec3{1, 0, 0}
	if cmd.Yaw != 0 {
		rot := mgl32.Rotate3DZ(mgl32.DegToRad(cmd.Yaw))
		forward = rot.Mul3x1(forward)
		right = rot.Mul3x1(right)
	}
	wish := forward.Mul(fwd).Add(right.Mul(side))
	if l := wish.Len(); l > 1 {
		wish = wish.Mul(1 / l)
	}

	p.Velocity = wish.Mul(Speed)
	p.Origin = p.Origin.Add(p.Velocity.Mul(dt))
	p.Yaw = cmd.Yaw

	p.Flags = 0
	if cmd.Buttons&prediction.ButtonDuck != 0 {
		p.Flags |= FlagDucking
	}
	if cmd.Buttons&prediction.ButtonUse != 0 {
		p.Flags |= FlagUsing
	}
	if cmd.Buttons&prediction.ButtonAttack != 0 {
		p.Flags |= FlagAttacking
	}
}

// Respawn back to the origin at full health
func (p *Player) Respawn() {
	p.Origin = mgl32.Vec3{}
	p.Velocity = mgl32.Vec3{}
	p.Health = MaxHealth
	p.Stats.Deaths++
}

// PredictionObject prediction.Predictable
func (p *Player) PredictionObject() *prediction.Object {
	if nil == p.pred {
		p.pred = NewPredictionObject(p, prediction.DefaultSlots, 100*time.Millisecond)
	}
	return p.pred
}

// NewPredictionObject binds the predicted fields of p
func NewPredictionObject(p *Player, slots int, smoothing time.Duration) *prediction.Object {
	return prediction.NewObject(slots,
		prediction.Bind("origin", &p.Origin, 0.01, prediction.FlagNetworked),
		prediction.Bind("velocity", &p.Velocity, 0.5, prediction.FlagNetworked),
		prediction.Bind("yaw", &p.Yaw, 0, prediction.FlagNetworked|prediction.FlagNoErrorCheck),
		prediction.BindFunc("flags",
			func() int32 { return int32(p.Flags) },
			func(v int32) { p.Flags = uint8(v) },
			0, prediction.FlagNetworked),
		prediction.Bind("tick_base", &p.TickBase, 0, prediction.FlagNetworked|prediction.FlagNoErrorCheck),
	).SetErrorField("origin", prediction.NewSmoother(smoothing))
}

// SetPredictionObject replaces the prediction binding, used to apply config
func (p *Player) SetPredictionObject(o *prediction.Object) {
	p.pred = o
}

// Simulate prediction.Predictable
func (p *Player) Simulate(cmd *prediction.Command, now simclock.State) {
	p.Move(cmd, float32(now.Dt.Seconds()))
	p.TickBase = now.Tick
}

// RenderOrigin predicted origin plus the decaying prediction error
func (p *Player) RenderOrigin(now time.Duration) mgl32.Vec3 {
	if nil == p.pred || nil == p.pred.Smoother() {
		return p.Origin
	}
	return p.Origin.Add(p.pred.Smoother().Offset(now))
}

// StatsClass nested score
var StatsClass = schema.NewClass("stats", nil, func() any { return &Stats{} }).
	AddField(schema.Field{Name: "kills", Wire: schema.KindInt16,
		Access: schema.Direct(func(o any) *int32 { return &o.(*Stats).Kills })}).
	AddField(schema.Field{Name: "deaths", Wire: schema.KindInt16,
		Access: schema.Direct(func(o any) *int32 { return &o.(*Stats).Deaths })})

// PlayerClass player fields and messages
var PlayerClass = schema.NewClass("player", BaseClass, func() any { return &Player{} }).
	AddField(schema.Field{Name: "velocity", Count: 3,
		Access: schema.DirectArray(func(o any) []float32 { return o.(*Player).Velocity[:] })}).
	AddField(schema.Field{Name: "yaw", Wire: schema.KindUint16, Divisor: 100, Modulo: 360,
		Access: schema.Direct(func(o any) *float32 { return &o.(*Player).Yaw })}).
	AddField(schema.Field{Name: "health", Wire: schema.KindInt16,
		Access: schema.Direct(func(o any) *int32 { return &o.(*Player).Health })}).
	AddField(schema.Field{Name: "armor",
		Access: schema.Direct(func(o any) *uint8 { return &o.(*Player).Armor })}).
	AddField(schema.Field{Name: "name", MaxLen: 32,
		Access: schema.Direct(func(o any) *string { return &o.(*Player).Name })}).
	AddField(schema.Field{Name: "tick_base",
		Access: schema.Direct(func(o any) *int32 { return &o.(*Player).TickBase })}).
	AddField(schema.Field{Name: "flags",
		Access: schema.Indirect(func(o any) uint8 { return o.(*Player).Flags }, func(o any, v uint8) { o.(*Player).Flags = v })}).
	AddField(schema.Field{Name: "inventory", MaxLen: 16,
		Access: schema.Indirect(func(o any) []byte { return o.(*Player).Inventory }, func(o any, v []byte) { o.(*Player).Inventory = v })}).
	AddField(schema.Field{Name: "stats", Class: StatsClass,
		Access: schema.Direct(func(o any) *Stats { return &o.(*Player).Stats })}).
	AddMessage("respawn", schema.MessageToServer|schema.MessageOwnerOnly, func(obj any, from schema.Sender, _ []byte) {
		p := obj.(*Player)
		p.Respawn()
		l4g.Info("[player(%d)] respawn by %d", p.NetworkID(), from.ID)
	}).
	AddMessage("notice", schema.MessageToClient, func(obj any, _ schema.Sender, payload []byte) {
		obj.(*Player).LastNotice = string(payload)
	})
