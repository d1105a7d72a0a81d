package logic

import (
	"sort"
	"sync"

	"github.com/byebyebruce/snapsync/logic/room"
	"github.com/byebyebruce/snapsync/logic/world"
	"github.com/byebyebruce/snapsync/pkg/metrics"
	"github.com/byebyebruce/snapsync/pkg/schema"
	"github.com/pkg/errors"
)

var (
	ErrRoomExists = errors.New("room exists")
	ErrRoomLimit  = errors.New("too many rooms")
)

// RoomManager 房间管理器
type RoomManager struct {
	room map[uint64]*room.Room
	wg   sync.WaitGroup
	rw   sync.RWMutex

	cfg      world.Config
	registry *schema.Registry
	pickups  int
	maxRoom  int
	listener room.Listener
}

// NewRoomManager 构造. maxRoom 0 is unlimited.
func NewRoomManager(cfg world.Config, registry *schema.Registry, pickups, maxRoom int, listener room.Listener) *RoomManager {
	m := &RoomManager{
		room:     make(map[uint64]*room.Room),
		cfg:      cfg,
		registry: registry,
		pickups:  pickups,
		maxRoom:  maxRoom,
		listener: listener,
	}
	return m
}

// Registry classes every room replicates
func (m *RoomManager) Registry() *schema.Registry {
	return m.registry
}

// CreateRoom 创建房间
func (m *RoomManager) CreateRoom(id uint64, playerID []uint64) (*room.Room, error) {
	m.rw.Lock()
	defer m.rw.Unlock()

	if _, ok := m.room[id]; ok {
		return nil, errors.Wrapf(ErrRoomExists, "room id[%d]", id)
	}
	if m.maxRoom > 0 && len(m.room) >= m.maxRoom {
		return nil, errors.Wrapf(ErrRoomLimit, "max %d", m.maxRoom)
	}

	r := room.NewRoom(id, playerID, m.cfg, m.registry, m.pickups, m.listener)
	m.room[id] = r
	metrics.Rooms.Inc()

	m.wg.Add(1)
	go func() {
		defer func() {
			m.rw.Lock()
			if m.room[id] == r {
				delete(m.room, id)
			}
			m.rw.Unlock()
			metrics.Rooms.Dec()

			m.wg.Done()
		}()
		r.Run()

	}()

	return r, nil
}

// GetRoom 获得房间
func (m *RoomManager) GetRoom(id uint64) *room.Room {

	m.rw.RLock()
	defer m.rw.RUnlock()

	return m.room[id]
}

// Rooms running rooms ordered by id
func (m *RoomManager) Rooms() []*room.Room {
	m.rw.RLock()
	defer m.rw.RUnlock()

	ret := make([]*room.Room, 0, len(m.room))
	for _, r := range m.room {
		ret = append(ret, r)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID() < ret[j].ID() })
	return ret
}

// RoomNum 获得房间数量
func (m *RoomManager) RoomNum() int {

	m.rw.RLock()
	defer m.rw.RUnlock()

	return len(m.room)
}

// Stop 停止
func (m *RoomManager) Stop() {

	m.rw.Lock()
	rooms := make([]*room.Room, 0, len(m.room))
	for _, v := range m.room {
		rooms = append(rooms, v)
	}
	m.room = make(map[uint64]*room.Room)
	m.rw.Unlock()

	for _, v := range rooms {
		v.Stop()
	}

	m.wg.Wait()
}
