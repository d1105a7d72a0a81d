// Package entity networked classes shared by server and client.
package entity

import (
	"math"

	"github.com/byebyebruce/snapsync/pkg/schema"
	"github.com/go-gl/mathgl/mgl32"
)

// Entity every object placed in a world
type Entity interface {
	NetworkID() uint32
	NetworkClass() *schema.Class
	Base() *BaseEntity
}

// BaseEntity networked base of every object
type BaseEntity struct {
	id     uint32
	Origin mgl32.Vec3
	Zone   uint32
}

// NetworkID object id, 0 until placed in a world
func (e *BaseEntity) NetworkID() uint32 {
	return e.id
}

// SetNetworkID called once by the world that owns the object
func (e *BaseEntity) SetNetworkID(id uint32) {
	e.id = id
}

func (e *BaseEntity) Base() *BaseEntity {
	return e
}

// BaseClass fields of BaseEntity, parent of every other class
var BaseClass = schema.NewClass("base_entity", nil, nil).
	AddField(schema.Field{Name: "origin", Count: 3,
		Access: schema.DirectArray(func(o any) []float32 { return o.(Entity).Base().Origin[:] })}).
	AddField(schema.Field{Name: "zone",
		Access: schema.Direct(func(o any) *uint32 { return &o.(Entity).Base().Zone })})

// ZoneOf zone of a position on the x axis, every zone is size wide.
// size <= 0 puts everything in zone 0.
func ZoneOf(x, size float32) uint32 {
	if size <= 0 {
		return 0
	}
	return uint32(int32(math.Floor(float64(x / size))))
}

// ZoneDistance zones between a and b
func ZoneDistance(a, b uint32) int32 {
	d := int32(a - b)
	if d < 0 {
		return -d
	}
	return d
}
