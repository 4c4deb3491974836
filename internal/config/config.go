package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultConfigName = "config"

// Config is the fully-resolved runtime configuration for masterd, combining
// viper-sourced defaults/environment overrides with the legacy prefs-file
// values loaded by LoadPrefsFile (see prefs.go).
type Config struct {
	Name   string
	Region string

	// Addresses are UDP bind addresses, host only or host:port. At least
	// one is required; Port fills in any entry that omitted a port.
	Addresses []string
	Port      int

	HeartbeatTimeout time.Duration

	Verbosity int
	Timestamp bool

	Flood FloodConfig

	ChallengeMode bool
	TestingMode   bool

	MaxSessionsPerPeer int
	SessionTimeout     time.Duration

	StatusPort int
	PIDFile    string

	// PacketLogPath enables NDJSON wire telemetry when set.
	PacketLogPath string

	PrefsFilePath string
}

// FloodConfig mirrors the flood:: prefs-file group (spec §6.4).
type FloodConfig struct {
	MaxTickets        int
	TicketResetPeriod time.Duration
	BanDuration       time.Duration
	ForgetTime        time.Duration
	TicksOnBadMessage int
}

// Load reads environment-backed defaults via viper, then overlays the
// legacy prefs file (spec §6.4): a missing prefs file causes defaults to
// be written to disk before continuing, matching the teacher's own
// "config file is optional; env-only is fine" posture but reusing the
// legacy on-disk format rather than YAML for daemon tuning.
func Load(prefsPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName(defaultConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("config")

	v.SetEnvPrefix("MASTERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "::", "_"))
	v.AutomaticEnv()

	v.SetDefault("name", "")
	v.SetDefault("region", "")
	v.SetDefault("address", []string{"0.0.0.0:28002"})
	v.SetDefault("port", 28002)
	v.SetDefault("heartbeat", 300)
	v.SetDefault("verbosity", 2)
	v.SetDefault("timestamp", true)
	v.SetDefault("flood.maxtickets", 300)
	v.SetDefault("flood.ticketsresettime", 60)
	v.SetDefault("flood.bantime", 300)
	v.SetDefault("flood.forgettime", 3600)
	v.SetDefault("flood.ticksonbadmessage", 50)
	v.SetDefault("challengemode", false)
	v.SetDefault("testingmode", false)
	v.SetDefault("maxsessionsperpeer", 10)
	v.SetDefault("sessiontimeoutseconds", 120)
	v.SetDefault("status.port", 28080)
	v.SetDefault("pidfile", "masterd.pid")
	v.SetDefault("packetlog.path", "")

	// The config file is optional; env and prefs-file values are enough.
	_ = v.ReadInConfig()

	prefs, err := LoadPrefsFile(prefsPath)
	if err != nil {
		return Config{}, fmt.Errorf("load prefs file: %w", err)
	}
	prefs.ApplyTo(v)

	cfg := Config{
		Name:               v.GetString("name"),
		Region:             v.GetString("region"),
		Addresses:          v.GetStringSlice("address"),
		Port:               v.GetInt("port"),
		HeartbeatTimeout:   time.Duration(v.GetInt("heartbeat")) * time.Second,
		Verbosity:          v.GetInt("verbosity"),
		Timestamp:          v.GetBool("timestamp"),
		ChallengeMode:      v.GetBool("challengemode"),
		TestingMode:        v.GetBool("testingmode"),
		MaxSessionsPerPeer: v.GetInt("maxsessionsperpeer"),
		SessionTimeout:     time.Duration(v.GetInt("sessiontimeoutseconds")) * time.Second,
		StatusPort:         v.GetInt("status.port"),
		PIDFile:            v.GetString("pidfile"),
		PacketLogPath:      v.GetString("packetlog.path"),
		PrefsFilePath:      prefsPath,
		Flood: FloodConfig{
			MaxTickets:        v.GetInt("flood.maxtickets"),
			TicketResetPeriod: time.Duration(v.GetInt("flood.ticketsresettime")) * time.Second,
			BanDuration:       time.Duration(v.GetInt("flood.bantime")) * time.Second,
			ForgetTime:        time.Duration(v.GetInt("flood.forgettime")) * time.Second,
			TicksOnBadMessage: v.GetInt("flood.ticksonbadmessage"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if cfg.MaxSessionsPerPeer > 10 {
		cfg.MaxSessionsPerPeer = 10
	}
	// Name/Region are wire strings (proto.WriteString truncates any single
	// string to 255 bytes); clamp here too so handleInfoRequest's reply
	// writer can size its buffer from a known worst case instead of an
	// unbounded operator-supplied value.
	cfg.Name = truncateBytes(cfg.Name, 255)
	cfg.Region = truncateBytes(cfg.Region, 255)
	return cfg, nil
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (c Config) validate() error {
	if len(c.Addresses) == 0 {
		return fmt.Errorf("at least one bind address is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Verbosity < 0 || c.Verbosity > 5 {
		return fmt.Errorf("verbosity must be 0-5, got %d", c.Verbosity)
	}
	if c.HeartbeatTimeout <= 0 {
		return fmt.Errorf("heartbeat timeout must be positive")
	}
	if c.Flood.MaxTickets <= 0 {
		return fmt.Errorf("flood::MaxTickets must be positive")
	}
	return nil
}
