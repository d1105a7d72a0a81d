package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/byebyebruce/snapsync/config"
	"github.com/byebyebruce/snapsync/logic/client"
	"github.com/byebyebruce/snapsync/logic/entity"
	"github.com/byebyebruce/snapsync/pkg/kcp_server"
	"github.com/byebyebruce/snapsync/pkg/log4gox"
	"github.com/byebyebruce/snapsync/pkg/network"
	"github.com/byebyebruce/snapsync/pkg/packet/pb_packet"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	l4g "github.com/alecthomas/log4go"
)

var (
	addr     = flag.String("udp", "127.0.0.1:10086", "connect udp address")
	web      = flag.String("web", "", "web api address; creates the room when set, e.g. http://127.0.0.1:8080")
	room     = flag.Uint64("room", 1, "room id")
	id       = flag.Uint64("id", 1, "my id")
	token    = flag.String("token", "", "room secret")
	fps      = flag.Int("fps", 60, "client frames per second")
	duration = flag.Duration("duration", 10*time.Second, "run time")
	envFile  = flag.String("env", ".env", "env file with SNAPSYNC_* overrides")
)

// createRoom asks the web api for a room and returns its secret
func createRoom(base string, roomID, playerID uint64) (string, error) {
	resp, err := http.Get(fmt.Sprintf("%s/create?room=%d&member=%d", base, roomID, playerID))
	if nil != err {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("create room: %s", resp.Status)
	}
	var ret struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ret); nil != err {
		return "", err
	}
	return ret.Secret, nil
}

func main() {
	flag.Parse()

	log4gox.Setup(false)
	defer l4g.Close()

	if err := config.LoadConfig("", *envFile); nil != err {
		l4g.Critical("[client] %s", err.Error())
		return
	}

	secret := *token
	if *web != "" {
		s, err := createRoom(*web, *room, *id)
		if nil != err {
			l4g.Critical("[client] %s", err.Error())
			return
		}
		secret = s
	}

	conn, err := kcp_server.Dial(*addr, config.Cfg.KCP())
	if nil != err {
		panic(err)
	}
	stream := network.NewStream(conn, &pb_packet.MsgProtocol{}, 256)
	defer stream.Close()

	c := client.New(config.Cfg.Prediction(), entity.NewRegistry(), stream)
	if err := c.Connect(*id, *room, secret); nil != err {
		panic(err)
	}
	l4g.Info("[client] addr=%s room=%d id=%d", *addr, *room, *id)

	frame := time.Second / time.Duration(*fps)
	ticker := time.NewTicker(frame)
	defer ticker.Stop()
	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()
	report := time.NewTicker(time.Second)
	defer report.Stop()

	start := time.Now()
	last := start
	for now := range ticker.C {
		if now.Sub(start) > *duration || stream.IsClosed() || c.Closed() {
			break
		}
		c.Drain(stream)

		// walk in a circle
		t := float32(now.Sub(start).Seconds())
		in := client.Input{
			Move: mgl32.Vec3{1, 0, 0},
			Yaw:  float32(math.Mod(float64(t)*45, 360)),
		}
		c.Frame(now.Sub(last), in)
		last = now

		select {
		case <-heartbeat.C:
			if err := c.Heartbeat(); nil != err {
				l4g.Warn("[client] heartbeat: %v", err)
			}
		case <-report.C:
			if p := c.Local(); nil != p {
				res := c.LastResult()
				l4g.Info("[client] ack=%d outgoing=%d predicted=%d origin=%v render=%v",
					c.LastAck(), c.Outgoing(), res.Predicted, p.Origin, c.RenderOrigin())
			}
		default:
		}
	}
	if err := stream.Err(); nil != err {
		l4g.Warn("[client] stream: %v", err)
	}
	l4g.Info("[client] quit")
}
