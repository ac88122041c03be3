// Package config loads the box agent / sync client / sync server
// configuration from a single JSON file via Viper, the way the rest of this
// codebase's ambient config layer works: a typed struct with mapstructure
// tags, defaults seeded before the file is read, and validation after.
package config

import (
	"net"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/fyuneru/boxnet/errors"
	"github.com/fyuneru/boxnet/internal/timeconv"
)

// Config is the root configuration for every binary in this module. Each
// binary only reads the sections it needs.
type Config struct {
	NodeID      NodeConfig      `mapstructure:"node"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`
	Broker      BrokerConfig    `mapstructure:"broker"`
	Analyzer    RPCConfig       `mapstructure:"analyzer"`
	Recognizer  RPCConfig       `mapstructure:"recognizer"`
	Aggregator  AggregatorConfig `mapstructure:"aggregator"`
	Search      SearchConfig    `mapstructure:"search"`
	Sync        SyncConfig      `mapstructure:"sync"`
	Log         LogConfig       `mapstructure:"log"`
}

// NodeConfig identifies this box on the fleet. HWID may be given directly,
// or left empty and resolved at startup from HWIDPath via
// internal/deviceid (spec §7: missing identity is startup-fatal).
// DeviceID is only taken as given; DeviceIDPath is not resolved.
type NodeConfig struct {
	HWID         string `mapstructure:"hw_id"`
	DeviceID     string `mapstructure:"device_id"`
	HWIDPath     string `mapstructure:"hw_id_path"`
	DeviceIDPath string `mapstructure:"device_id_path"`
	Timezone     string `mapstructure:"timezone"`
}

// ServerConfig configures the ingress HTTP listener (box agent) or the sync
// server's REST listener.
type ServerConfig struct {
	BindAddr          string `mapstructure:"bind_addr"`
	MaxContentLength  int64  `mapstructure:"max_content_length_bytes"`
}

// DatabaseConfig configures the relational store (sync server side).
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ObjectStoreConfig configures the S3-compatible image/feature store.
type ObjectStoreConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	FaceBucket      string `mapstructure:"face_bucket"`
	CarBucket       string `mapstructure:"car_bucket"`
}

// BrokerConfig configures the AMQP link shared by the uplink producer (C5)
// and the command consumer (C6).
type BrokerConfig struct {
	URL            string `mapstructure:"url"`
	LogExchange    string `mapstructure:"log_exchange"`
	CommandExchange string `mapstructure:"command_exchange"`
	MessageTTLMinutes int `mapstructure:"message_ttl_minutes"`
	BackoffInitialSeconds int `mapstructure:"backoff_initial_seconds"`
	BackoffMaxSeconds     int `mapstructure:"backoff_max_seconds"`
}

// RPCConfig configures a JSON-RPC 2.0 client (analyzer or recognizer).
type RPCConfig struct {
	BaseURL               string `mapstructure:"base_url"`
	ConnectTimeoutSeconds  int    `mapstructure:"connect_timeout_seconds"`
}

// AggregatorConfig configures the C3 readiness predicates and delay timers,
// per entity kind.
type AggregatorConfig struct {
	FaceQualityThreshold float64 `mapstructure:"face_quality_threshold"`
	FaceCount            int     `mapstructure:"face_count"`
	PlateConfThreshold   float64 `mapstructure:"plate_conf_threshold"`
	VehicleCount         int     `mapstructure:"vehicle_count"`
	ReadyDelaySeconds    int     `mapstructure:"ready_delay_seconds"`
	CleanDelaySeconds    int     `mapstructure:"clean_delay_seconds"`
}

// SearchConfig configures the C4 search batcher.
type SearchConfig struct {
	BatchSize       int      `mapstructure:"batch_size"`
	CacheTTLMinutes int      `mapstructure:"cache_ttl_minutes"`
	TopN            int      `mapstructure:"top_n"`
	Threshold       int      `mapstructure:"threshold"`
	SkipSearch      bool     `mapstructure:"skip_search"`
	IgnoreDBs       []string `mapstructure:"ignore_dbs"`
}

// SyncConfig configures the C7 sync worker and C9 timers.
type SyncConfig struct {
	ServerURL             string `mapstructure:"server_url"`
	BatchSize             int    `mapstructure:"batch_size"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
	HeartbeatMinutes      int    `mapstructure:"heartbeat_minutes"`
	SyncTTLMinutes        int    `mapstructure:"sync_ttl_minutes"`
	MaxIterationsPerStage int    `mapstructure:"max_iterations_per_stage"`
	IterationSleepMillis  int    `mapstructure:"iteration_sleep_millis"`
	CursorPath            string `mapstructure:"cursor_path"`
	UploadURL             string `mapstructure:"upload_url"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	JSONOutput bool `mapstructure:"json_output"`
}

// Load reads configPath (JSON) into a Config, applying defaults first and
// validating the result before returning it.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %s", configPath)
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, errors.Wrapf(err, "unmarshal config from %s", configPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &cfg, nil
}

// SetDefaults seeds every default value a fresh config needs before a file
// is merged in.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("node.timezone", "UTC")
	v.SetDefault("node.hw_id_path", "/etc/boxnet/hw_id")
	v.SetDefault("node.device_id_path", "/etc/boxnet/device_id")

	v.SetDefault("server.bind_addr", ":8080")
	v.SetDefault("server.max_content_length_bytes", 10<<20) // 10 MiB

	v.SetDefault("database.path", "boxnet.db")

	v.SetDefault("object_store.face_bucket", "facetrack")
	v.SetDefault("object_store.car_bucket", "cartrack")
	v.SetDefault("object_store.use_ssl", true)

	v.SetDefault("broker.log_exchange", "box.log")
	v.SetDefault("broker.command_exchange", "box.cmd")
	v.SetDefault("broker.message_ttl_minutes", 10)
	v.SetDefault("broker.backoff_initial_seconds", 2)
	v.SetDefault("broker.backoff_max_seconds", 180)

	v.SetDefault("analyzer.connect_timeout_seconds", 3)
	v.SetDefault("recognizer.connect_timeout_seconds", 3)

	v.SetDefault("aggregator.face_quality_threshold", 0.5)
	v.SetDefault("aggregator.face_count", 2)
	v.SetDefault("aggregator.plate_conf_threshold", 0.8)
	v.SetDefault("aggregator.vehicle_count", 1)
	v.SetDefault("aggregator.ready_delay_seconds", 5)
	v.SetDefault("aggregator.clean_delay_seconds", 60)

	v.SetDefault("search.batch_size", 4)
	v.SetDefault("search.cache_ttl_minutes", 10)
	v.SetDefault("search.top_n", 1)
	v.SetDefault("search.threshold", 80)

	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.connect_timeout_seconds", 10)
	v.SetDefault("sync.heartbeat_minutes", 5)
	v.SetDefault("sync.sync_ttl_minutes", 30)
	v.SetDefault("sync.max_iterations_per_stage", 100)
	v.SetDefault("sync.iteration_sleep_millis", 200)
	v.SetDefault("sync.cursor_path", "sync_log.json")
}

// Validate checks value ranges and any string fields that must parse
// cleanly (timezone, bind address) before the binary starts serving.
func (c *Config) Validate() error {
	if err := timeconv.ValidateTimezone(c.NodeID.Timezone); err != nil {
		return errors.Wrap(err, "node.timezone")
	}
	if _, _, err := net.SplitHostPort(c.Server.BindAddr); err != nil {
		return errors.Wrapf(err, "server.bind_addr %q", c.Server.BindAddr)
	}

	if c.Aggregator.FaceCount < 0 {
		return errors.Newf("aggregator.face_count must be >= 0, got %d", c.Aggregator.FaceCount)
	}
	if c.Aggregator.VehicleCount < 0 {
		return errors.Newf("aggregator.vehicle_count must be >= 0, got %d", c.Aggregator.VehicleCount)
	}
	if c.Aggregator.ReadyDelaySeconds <= 0 {
		return errors.Newf("aggregator.ready_delay_seconds must be > 0, got %d", c.Aggregator.ReadyDelaySeconds)
	}
	if c.Aggregator.CleanDelaySeconds <= 0 {
		return errors.Newf("aggregator.clean_delay_seconds must be > 0, got %d", c.Aggregator.CleanDelaySeconds)
	}

	if c.Search.BatchSize <= 0 {
		return errors.Newf("search.batch_size must be > 0, got %d", c.Search.BatchSize)
	}
	if c.Search.CacheTTLMinutes < 0 {
		return errors.Newf("search.cache_ttl_minutes must be >= 0, got %d", c.Search.CacheTTLMinutes)
	}

	if c.Sync.BatchSize <= 0 {
		return errors.Newf("sync.batch_size must be > 0, got %d", c.Sync.BatchSize)
	}
	if c.Sync.MaxIterationsPerStage <= 0 {
		return errors.Newf("sync.max_iterations_per_stage must be > 0, got %d", c.Sync.MaxIterationsPerStage)
	}

	if c.Broker.BackoffInitialSeconds <= 0 {
		return errors.Newf("broker.backoff_initial_seconds must be > 0, got %d", c.Broker.BackoffInitialSeconds)
	}
	if c.Broker.BackoffMaxSeconds < c.Broker.BackoffInitialSeconds {
		return errors.Newf("broker.backoff_max_seconds (%d) must be >= broker.backoff_initial_seconds (%d)",
			c.Broker.BackoffMaxSeconds, c.Broker.BackoffInitialSeconds)
	}

	return nil
}
