package entity

import (
	"github.com/byebyebruce/snapsync/pkg/schema"
)

// pickup kinds
const (
	PickupHealth uint8 = iota + 1
	PickupArmor
)

// Pickup static item, only replicated to clients near its zone
type Pickup struct {
	BaseEntity
	Kind   uint8
	Amount int32
}

// NewPickup 构造
func NewPickup(kind uint8, amount int32, x float32) *Pickup {
	p := &Pickup{Kind: kind, Amount: amount}
	p.Origin[0] = x
	return p
}

func (p *Pickup) NetworkClass() *schema.Class {
	return PickupClass
}

// PickupClass pickup fields
var PickupClass = schema.NewClass("pickup", BaseClass, func() any { return &Pickup{} }).
	AddField(schema.Field{Name: "kind",
		Access: schema.Direct(func(o any) *uint8 { return &o.(*Pickup).Kind })}).
	AddField(schema.Field{Name: "amount", Wire: schema.KindUint8,
		Access: schema.Direct(func(o any) *int32 { return &o.(*Pickup).Amount })})

// NewRegistry registry of every networked class, assigned
func NewRegistry() *schema.Registry {
	r := schema.NewRegistry()
	if err := r.Register(BaseClass, StatsClass, PlayerClass, PickupClass); nil != err {
		panic(err)
	}
	return r.MustAssign()
}
