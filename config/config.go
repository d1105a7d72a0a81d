package config

import (
	"encoding/xml"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/byebyebruce/snapsync/logic/world"
	"github.com/byebyebruce/snapsync/pkg/kcp_server"
	"github.com/byebyebruce/snapsync/pkg/prediction"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// EnvPrefix prefix of the environment overrides
const EnvPrefix = "SNAPSYNC_"

var (
	Cfg = Default()
)

type Config struct {
	XMLName xml.Name `xml:"snapsync"`

	UDPAddress string `xml:"udp_address"`
	WebAddress string `xml:"web_address"`
	MaxRoom    int    `xml:"max_room"`
	Pickups    int    `xml:"pickups"`
	KCPMode    string `xml:"kcp_mode"` // fast / normal

	TickRate         int     `xml:"tick_rate"`
	SnapshotInterval int     `xml:"snapshot_interval"`
	LedgerSize       int     `xml:"ledger_size"`
	ZoneSize         float32 `xml:"zone_size"`
	ViewZones        int32   `xml:"view_zones"`
	ResyncRate       float64 `xml:"resync_rate"`
	ResyncBurst      int     `xml:"resync_burst"`
	CommandRate      float64 `xml:"command_rate"`

	PredictionSlots int     `xml:"prediction_slots"`
	BackupCommands  int     `xml:"backup_commands"`
	MaxError        float32 `xml:"max_error"`
	SmoothMillis    int     `xml:"smooth_ms"`
}

// Default 默认配置
func Default() Config {
	w := world.DefaultConfig()
	p := prediction.DefaultConfig()
	return Config{
		UDPAddress:       ":10086",
		WebAddress:       ":8080",
		Pickups:          4,
		KCPMode:          "fast",
		TickRate:         w.TickRate,
		SnapshotInterval: w.SnapshotInterval,
		LedgerSize:       w.LedgerSize,
		ZoneSize:         w.ZoneSize,
		ViewZones:        w.ViewZones,
		ResyncRate:       w.ResyncRate,
		ResyncBurst:      w.ResyncBurst,
		CommandRate:      w.CommandRate,
		PredictionSlots:  p.Slots,
		BackupCommands:   p.BackupCommands,
		MaxError:         p.MaxError,
		SmoothMillis:     int(p.SmoothTime / time.Millisecond),
	}
}

// LoadConfig reads the xml file, then the optional .env file and the
// SNAPSYNC_* environment. An empty file name skips the xml.
func LoadConfig(file, envFile string) error {
	c := Default()
	if file != "" {
		contents, err := os.ReadFile(file)
		if nil != err {
			return errors.Wrapf(err, "config %s", file)
		}
		if err := xml.Unmarshal(contents, &c); nil != err {
			return errors.Wrapf(err, "config %s", file)
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); nil != err && !os.IsNotExist(err) {
			return errors.Wrapf(err, "env %s", envFile)
		}
	}
	if err := c.applyEnv(os.LookupEnv); nil != err {
		return err
	}
	Cfg = c
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) error {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
		return nil
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if nil != err {
			return errors.Wrapf(err, "%s%s", EnvPrefix, name)
		}
		*dst = n
		return nil
	}
	float := func(name string, bits int, set func(float64)) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), bits)
		if nil != err {
			return errors.Wrapf(err, "%s%s", EnvPrefix, name)
		}
		set(f)
		return nil
	}

	viewZones := int(c.ViewZones)
	for _, err := range []error{
		str("UDP_ADDRESS", &c.UDPAddress),
		str("WEB_ADDRESS", &c.WebAddress),
		str("KCP_MODE", &c.KCPMode),
		integer("MAX_ROOM", &c.MaxRoom),
		integer("PICKUPS", &c.Pickups),
		integer("TICK_RATE", &c.TickRate),
		integer("SNAPSHOT_INTERVAL", &c.SnapshotInterval),
		integer("LEDGER_SIZE", &c.LedgerSize),
		float("ZONE_SIZE", 32, func(f float64) { c.ZoneSize = float32(f) }),
		integer("VIEW_ZONES", &viewZones),
		float("RESYNC_RATE", 64, func(f float64) { c.ResyncRate = f }),
		integer("RESYNC_BURST", &c.ResyncBurst),
		float("COMMAND_RATE", 64, func(f float64) { c.CommandRate = f }),
		integer("PREDICTION_SLOTS", &c.PredictionSlots),
		integer("BACKUP_COMMANDS", &c.BackupCommands),
		float("MAX_ERROR", 32, func(f float64) { c.MaxError = float32(f) }),
		integer("SMOOTH_MS", &c.SmoothMillis),
	} {
		if nil != err {
			return err
		}
	}
	c.ViewZones = int32(viewZones)
	return nil
}

// World world settings of every room
func (c Config) World() world.Config {
	w := world.DefaultConfig()
	w.TickRate = c.TickRate
	w.SnapshotInterval = c.SnapshotInterval
	w.LedgerSize = c.LedgerSize
	w.ZoneSize = c.ZoneSize
	w.ViewZones = c.ViewZones
	w.ResyncRate = c.ResyncRate
	w.ResyncBurst = c.ResyncBurst
	w.CommandRate = c.CommandRate
	if c.TickRate > 0 {
		w.BadNetworkTicks = int32(2 * c.TickRate)
		w.CommandBurst = 2 * c.TickRate
	}
	return w
}

// Prediction client prediction settings
func (c Config) Prediction() prediction.Config {
	p := prediction.DefaultConfig()
	p.Slots = c.PredictionSlots
	p.BackupCommands = c.BackupCommands
	p.MaxError = c.MaxError
	p.SmoothTime = time.Duration(c.SmoothMillis) * time.Millisecond
	return p
}

// KCP session settings
func (c Config) KCP() kcp_server.Config {
	k := kcp_server.DefaultConfig()
	if c.KCPMode == "normal" {
		k.Mode = kcp_server.ModeNormal
	}
	return k
}

// Save writes c as xml, the format LoadConfig reads
func (c Config) Save(file string) error {
	contents, err := xml.MarshalIndent(c, "", "    ")
	if nil != err {
		return err
	}
	return os.WriteFile(file, contents, 0644)
}
