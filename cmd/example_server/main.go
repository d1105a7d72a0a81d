package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/byebyebruce/snapsync/cmd/example_server/api"
	"github.com/byebyebruce/snapsync/config"
	"github.com/byebyebruce/snapsync/pkg/log4gox"
	"github.com/byebyebruce/snapsync/server"
	"github.com/byebyebruce/snapsync/util"

	l4g "github.com/alecthomas/log4go"
)

var (
	configFile = flag.String("config", "", "xml config file")
	envFile    = flag.String("env", ".env", "env file with SNAPSYNC_* overrides")
	dumpConfig = flag.String("dump", "", "write the effective config to this file and exit")
	debugLog   = flag.Bool("log", true, "debug log")
)

func main() {
	flag.Parse()

	log4gox.Setup(*debugLog)
	defer l4g.Close()

	if err := config.LoadConfig(*configFile, *envFile); nil != err {
		l4g.Critical("[main] %s", err.Error())
		return
	}
	cfg := config.Cfg
	if *dumpConfig != "" {
		if err := cfg.Save(*dumpConfig); nil != err {
			l4g.Error("[main] %s", err.Error())
		}
		return
	}

	s, err := server.New(server.Config{
		UDPAddress: cfg.UDPAddress,
		KCP:        cfg.KCP(),
		World:      cfg.World(),
		Pickups:    cfg.Pickups,
		MaxRoom:    cfg.MaxRoom,
	})
	if err != nil {
		panic(err)
	}
	advertise := util.AdvertiseAddress(cfg.UDPAddress)
	web := api.NewWebAPI(s, advertise).ListenAndServe(cfg.WebAddress)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, os.Interrupt)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	l4g.Info("[main] start... udp=%s web=%s", advertise, cfg.WebAddress)
	// 主循环
QUIT:
	for {
		select {
		case sig := <-sigs:
			l4g.Info("Signal: %s", sig.String())
			break QUIT
		case <-ticker.C:
			l4g.Info("[main] rooms=%d sessions=%d", s.RoomManager().RoomNum(), len(s.Sessions()))
		}
	}
	l4g.Info("[main] quiting...")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = web.Shutdown(ctx)
	s.Stop()
}
