package entity

import (
	"testing"
	"time"

	"github.com/byebyebruce/snapsync/pkg/prediction"
	"github.com/byebyebruce/snapsync/pkg/schema"
	"github.com/byebyebruce/snapsync/pkg/simclock"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveForward(t *testing.T) {
	p := NewPlayer("a")
	dt := float32(1.0 / 30)
	p.Move(&prediction.Command{Move: mgl32.Vec3{1, 0, 0}}, dt)
	assert.Equal(t, mgl32.Vec3{0, Speed * dt, 0}, p.Origin)
	assert.Equal(t, mgl32.Vec3{0, Speed, 0}, p.Velocity)
}

func TestMoveYawAndClamp(t *testing.T) {
	p := NewPlayer("a")
	p.Move(&prediction.Command{Move: mgl32.Vec3{1, 0, 0}, Yaw: 90}, 1)
	assert.InDelta(t, -Speed, p.Origin.X(), 1e-3)
	assert.InDelta(t, 0, p.Origin.Y(), 1e-3)

	p = NewPlayer("b")
	p.Move(&prediction.Command{Move: mgl32.Vec3{1, 1, 0}, Buttons: prediction.ButtonDuck}, 1)
	assert.InDelta(t, Speed, p.Velocity.Len(), 1e-3, "diagonal input is normalized")
	assert.Equal(t, FlagDucking, p.Flags)
}

func TestPlayerRoundTrip(t *testing.T) {
	NewRegistry()
	p := NewPlayer("bruce")
	p.Origin = mgl32.Vec3{1, -2, 3.5}
	p.Velocity = mgl32.Vec3{0, 300, 0}
	p.Yaw = 450.25
	p.Armor = 7
	p.TickBase = 99
	p.Flags = FlagUsing
	p.Inventory = []byte{1, 2}
	p.Stats = Stats{Kills: 3, Deaths: 1}

	data, spans, err := schema.Serialize(PlayerClass, p)
	require.NoError(t, err)
	assert.Len(t, spans, PlayerClass.FieldCount())

	out := &Player{}
	require.NoError(t, schema.Deserialize(PlayerClass, data, out))
	assert.Equal(t, p.Origin, out.Origin)
	assert.InDelta(t, 90.25, out.Yaw, 0.01)
	assert.Equal(t, p.Name, out.Name)
	assert.Equal(t, p.Health, out.Health)
	assert.Equal(t, p.Inventory, out.Inventory)
	assert.Equal(t, p.Stats, out.Stats)
	assert.Equal(t, p.Flags, out.Flags)
}

func TestRegistryIsDeterministic(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	c, ok := a.Lookup("player")
	require.True(t, ok)
	assert.Same(t, PlayerClass, c)
	assert.True(t, PlayerClass.IsA(BaseClass))
}

func TestRespawnMessage(t *testing.T) {
	NewRegistry()
	p := NewPlayer("a")
	p.Origin = mgl32.Vec3{5, 5, 0}
	p.Health = 1

	id, ok := PlayerClass.MessageID("respawn")
	require.True(t, ok)
	assert.Error(t, PlayerClass.Dispatch(id, p, schema.Sender{ID: 2}, nil), "only the owner")
	require.NoError(t, PlayerClass.Dispatch(id, p, schema.Sender{ID: 1, Owner: true}, nil))
	assert.Equal(t, mgl32.Vec3{}, p.Origin)
	assert.Equal(t, int32(MaxHealth), p.Health)
	assert.Equal(t, int32(1), p.Stats.Deaths)
}

func TestPredictionBinding(t *testing.T) {
	p := NewPlayer("a")
	o := p.PredictionObject()
	assert.Same(t, o, p.PredictionObject())

	p.Simulate(&prediction.Command{Move: mgl32.Vec3{1, 0, 0}}, simclock.State{Tick: 7, Dt: time.Second})
	o.Save(0)
	saved := p.Origin
	p.Origin = mgl32.Vec3{}
	p.Flags = 9
	o.Restore(0)
	assert.Equal(t, saved, p.Origin)
	assert.Equal(t, int32(7), p.TickBase)
	assert.Equal(t, uint8(0), p.Flags)
}

func TestZones(t *testing.T) {
	assert.Equal(t, uint32(0), ZoneOf(50, 0))
	assert.Equal(t, uint32(1), ZoneOf(150, 100))
	assert.Equal(t, uint32(0xFFFFFFFF), ZoneOf(-1, 100))
	assert.Equal(t, int32(2), ZoneDistance(ZoneOf(-1, 100), ZoneOf(150, 100)))
}
