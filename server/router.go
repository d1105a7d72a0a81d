package server

import (
	"sync/atomic"
	"time"

	"github.com/byebyebruce/snapsync/pb"
	"github.com/byebyebruce/snapsync/pkg/network"
	"github.com/byebyebruce/snapsync/pkg/packet/pb_packet"

	l4g "github.com/alecthomas/log4go"
)

// OnConnect 链接进来
func (r *SnapServer) OnConnect(conn *network.Conn) bool {
	count := atomic.AddInt64(&r.totalConn, 1)
	l4g.Debug("[router] OnConnect [%s] totalConn=%d", conn.GetRawConn().RemoteAddr().String(), count)
	return true
}

func reject(conn *network.Conn, code pb.ERRORCODE) {
	ret := &pb.S2C_ConnectMsg{ErrorCode: code}
	conn.AsyncWritePacket(pb_packet.NewPacket(uint8(pb.ID_MSG_Connect), ret), time.Millisecond)
}

// OnMessage 消息处理, only until the connection joined a room
func (r *SnapServer) OnMessage(conn *network.Conn, p network.Packet) bool {

	msg := p.(*pb_packet.Packet)

	l4g.Debug("[router] OnMessage [%s] msg=[%s] len=[%d]", conn.GetRawConn().RemoteAddr().String(), pb.ID(msg.GetMessageID()), len(msg.GetData()))

	switch pb.ID(msg.GetMessageID()) {
	case pb.ID_MSG_Connect:

		rec := &pb.C2S_ConnectMsg{}
		if err := msg.Unmarshal(rec); nil != err {
			l4g.Error("[router] msg.Unmarshal error=[%s]", err.Error())
			return false
		}

		playerID := rec.GetPlayerID()
		roomID := rec.GetRoomID()
		token := rec.GetToken()

		room := r.roomMgr.GetRoom(roomID)
		if nil == room {
			reject(conn, pb.ERRORCODE_ERR_NoRoom)
			l4g.Error("[router] no room player=[%d] room=[%d]", playerID, roomID)
			return true
		}

		if room.IsOver() {
			reject(conn, pb.ERRORCODE_ERR_RoomState)
			l4g.Error("[router] room is over player=[%d] room==[%d]", playerID, roomID)
			return true
		}

		if !room.HasPlayer(playerID) {
			reject(conn, pb.ERRORCODE_ERR_NoPlayer)
			l4g.Error("[router] !room.HasPlayer(playerID) player=[%d] room==[%d]", playerID, roomID)
			return true
		}

		if token != room.SecretKey() {
			reject(conn, pb.ERRORCODE_ERR_Token)
			l4g.Error("[router] token mismatch player=[%d] room==[%d]", playerID, roomID)
			return true
		}

		if fp := r.roomMgr.Registry().Fingerprint(); rec.Fingerprint != fp {
			reject(conn, pb.ERRORCODE_ERR_Schema)
			l4g.Error("[router] schema fingerprint player=[%d] got=%x want=%x", playerID, rec.Fingerprint, fp)
			return true
		}

		conn.PutExtraData(playerID)

		// 成功由房间回复Connect
		return room.OnConnect(conn)

	case pb.ID_MSG_Heartbeat:
		conn.AsyncWritePacket(pb_packet.NewPacket(uint8(pb.ID_MSG_Heartbeat), nil), time.Millisecond)
		return true
	}

	return false

}

// OnClose 链接断开
func (r *SnapServer) OnClose(conn *network.Conn) {
	count := atomic.AddInt64(&r.totalConn, -1)

	l4g.Info("[router] OnClose: total=%d", count)
}
