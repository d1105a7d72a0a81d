package server

import (
	"net/http"
	"sort"
	"time"

	"github.com/byebyebruce/snapsync/logic"
	"github.com/byebyebruce/snapsync/logic/entity"
	"github.com/byebyebruce/snapsync/logic/world"
	"github.com/byebyebruce/snapsync/pkg/kcp_server"
	"github.com/byebyebruce/snapsync/pkg/metrics"
	"github.com/byebyebruce/snapsync/pkg/network"
	"github.com/byebyebruce/snapsync/pkg/packet/pb_packet"
	"github.com/byebyebruce/snapsync/pkg/ws_server"
	"github.com/puzpuzpuz/xsync/v3"

	l4g "github.com/alecthomas/log4go"
)

// Config server setup
type Config struct {
	UDPAddress string
	KCP        kcp_server.Config
	World      world.Config
	Pickups    int // pickups spawned per room
	MaxRoom    int
}

// SessionInfo one joined player, read by the web api
type SessionInfo struct {
	RoomID   uint64    `json:"room"`
	PlayerID uint64    `json:"player"`
	Since    time.Time `json:"since"`
}

type sessionKey struct {
	room, player uint64
}

// SnapServer 状态同步服务器
type SnapServer struct {
	roomMgr   *logic.RoomManager
	udpServer *network.Server
	wsServer  *ws_server.Server
	sessions  *xsync.MapOf[sessionKey, SessionInfo]
	totalConn int64
}

// New 构造
func New(cfg Config) (*SnapServer, error) {
	s := &SnapServer{
		sessions: xsync.NewMapOf[sessionKey, SessionInfo](),
	}
	s.roomMgr = logic.NewRoomManager(cfg.World, entity.NewRegistry(), cfg.Pickups, cfg.MaxRoom, s)

	networkServer, err := kcp_server.ListenAndServe(cfg.UDPAddress, s, &pb_packet.MsgProtocol{}, cfg.KCP)
	if err != nil {
		return nil, err
	}
	s.udpServer = networkServer
	s.wsServer = ws_server.New(cfg.KCP.Config, s, &pb_packet.MsgProtocol{})
	return s, nil
}

// RoomManager 获取房间管理器
func (r *SnapServer) RoomManager() *logic.RoomManager {
	return r.roomMgr
}

// WebsocketHandler accepts websocket peers on the same router
func (r *SnapServer) WebsocketHandler() http.Handler {
	return r.wsServer
}

// Sessions joined players ordered by room and player
func (r *SnapServer) Sessions() []SessionInfo {
	ret := make([]SessionInfo, 0, r.sessions.Size())
	r.sessions.Range(func(_ sessionKey, v SessionInfo) bool {
		ret = append(ret, v)
		return true
	})
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].RoomID != ret[j].RoomID {
			return ret[i].RoomID < ret[j].RoomID
		}
		return ret[i].PlayerID < ret[j].PlayerID
	})
	return ret
}

// OnJoin room.Listener
func (r *SnapServer) OnJoin(roomID, playerID uint64) {
	r.sessions.Store(sessionKey{roomID, playerID}, SessionInfo{RoomID: roomID, PlayerID: playerID, Since: time.Now()})
	metrics.Sessions.Set(float64(r.sessions.Size()))
}

// OnLeave room.Listener
func (r *SnapServer) OnLeave(roomID, playerID uint64) {
	r.sessions.Delete(sessionKey{roomID, playerID})
	metrics.Sessions.Set(float64(r.sessions.Size()))
}

// OnRoomClose room.Listener
func (r *SnapServer) OnRoomClose(roomID uint64) {
	r.sessions.Range(func(k sessionKey, _ SessionInfo) bool {
		if k.room == roomID {
			r.sessions.Delete(k)
		}
		return true
	})
	metrics.Sessions.Set(float64(r.sessions.Size()))
	l4g.Info("[server] room(%d) closed", roomID)
}

// Stop 停止服务
func (r *SnapServer) Stop() {
	r.roomMgr.Stop()
	r.udpServer.Stop()
	r.wsServer.Stop()
}
