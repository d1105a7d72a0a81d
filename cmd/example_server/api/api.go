// Package api web api of the example server
package api

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/byebyebruce/snapsync/logic"
	"github.com/byebyebruce/snapsync/pkg/metrics"
	"github.com/byebyebruce/snapsync/server"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	l4g "github.com/alecthomas/log4go"
)

var index = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>snapsync</title></head>
<body>
<h3>snapsync {{.Address}}</h3>
<form action="/create">
room <input name="room" value="1">
member <input name="member" placeholder="1,2,3">
<input type="submit" value="create">
</form>
<table border="1">
<tr><th>room</th><th>players</th><th>secret</th><th>created</th></tr>
{{range .Rooms}}<tr><td>{{.ID}}</td><td>{{.Players}}</td><td>{{.Secret}}</td><td>{{.Created}}</td></tr>
{{end}}</table>
<p><a href="/sessions">sessions</a> <a href="/metrics">metrics</a></p>
</body>
</html>
`))

// Backend what the api reads
type Backend interface {
	RoomManager() *logic.RoomManager
	Sessions() []server.SessionInfo
	WebsocketHandler() http.Handler
}

// RoomInfo one room as listed by the api
type RoomInfo struct {
	ID      uint64    `json:"id"`
	Players []uint64  `json:"players"`
	Secret  string    `json:"secret"`
	Created time.Time `json:"created"`
	Over    bool      `json:"over"`
}

// WebAPI http api
type WebAPI struct {
	b       Backend
	address string // advertised udp address
	router  *chi.Mux
}

// NewWebAPI 构造
func NewWebAPI(b Backend, address string) *WebAPI {
	h := &WebAPI{
		b:       b,
		address: address,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/", h.index)
	r.Get("/create", h.createRoom)
	r.Get("/rooms", h.rooms)
	r.Get("/sessions", h.sessions)
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/ws", b.WebsocketHandler())
	h.router = r
	return h
}

// ServeHTTP http.Handler
func (h *WebAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// ListenAndServe serves in a goroutine
func (h *WebAPI) ListenAndServe(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: h}
	go func() {
		l4g.Info("[api] listen on %s", addr)
		if err := srv.ListenAndServe(); nil != err && err != http.ErrServerClosed {
			l4g.Error("[api] listen error:%s", err.Error())
		}
	}()
	return srv
}

func (h *WebAPI) roomList() []RoomInfo {
	rooms := h.b.RoomManager().Rooms()
	ret := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		ret = append(ret, RoomInfo{
			ID:      r.ID(),
			Players: r.Players(),
			Secret:  r.SecretKey(),
			Created: time.Unix(r.TimeStamp(), 0),
			Over:    r.IsOver(),
		})
	}
	return ret
}

func (h *WebAPI) index(w http.ResponseWriter, r *http.Request) {
	err := index.Execute(w, struct {
		Address string
		Rooms   []RoomInfo
	}{h.address, h.roomList()})
	if nil != err {
		l4g.Error("[api] index error:%s", err.Error())
	}
}

func (h *WebAPI) createRoom(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	roomID, err := strconv.ParseUint(query.Get("room"), 10, 64)
	if nil != err {
		http.Error(w, "bad room", http.StatusBadRequest)
		return
	}

	ps := make([]uint64, 0, 10)
	if members := query.Get("member"); len(members) > 0 {
		for _, v := range strings.Split(members, ",") {
			id, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
			if nil != err {
				http.Error(w, fmt.Sprintf("bad member %q", v), http.StatusBadRequest)
				return
			}
			ps = append(ps, id)
		}
	}

	room, err := h.b.RoomManager().CreateRoom(roomID, ps)
	if nil != err {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	l4g.Info("[api] create room(%d) members=%v", room.ID(), ps)
	writeJSON(w, struct {
		RoomInfo
		Address string `json:"address"`
	}{
		RoomInfo{ID: room.ID(), Players: room.Players(), Secret: room.SecretKey(), Created: time.Unix(room.TimeStamp(), 0)},
		h.address,
	})
}

func (h *WebAPI) rooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.roomList())
}

func (h *WebAPI) sessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.b.Sessions())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); nil != err {
		l4g.Error("[api] encode error:%s", err.Error())
	}
}
