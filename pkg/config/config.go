package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"skybridge/pkg/validation"
)

type Config struct {
	Server struct {
		Port             int           `yaml:"port"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
		// HandshakePenalty is the latency recorded for a session whose
		// handshake timed out but was soft-accepted.
		HandshakePenalty time.Duration `yaml:"handshake_penalty"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		EventFeedEnabled bool          `yaml:"event_feed_enabled"`
		APIAddress       string        `yaml:"api_address"`
		HandshakeSecret  string        `yaml:"handshake_secret"`
	} `yaml:"server"`

	Negotiation struct {
		ProbePort        int           `yaml:"probe_port"`
		ProbeTimeout     time.Duration `yaml:"probe_timeout"`
		ConnectTimeout   time.Duration `yaml:"connect_timeout"`
		PeerRefresh      time.Duration `yaml:"peer_refresh"`
		AccountRefresh   time.Duration `yaml:"account_refresh"`
		DefaultAccountID string        `yaml:"default_account_id"`
		RelayPort        int           `yaml:"relay_port"`
		BluetoothChannel int           `yaml:"bluetooth_channel"`
		NfcChannel       int           `yaml:"nfc_channel"`
		AirPlayChannel   int           `yaml:"airplay_channel"`
	} `yaml:"negotiation"`

	Streaming struct {
		MinBitrateKbps int    `yaml:"min_bitrate_kbps"`
		MaxBitrateKbps int    `yaml:"max_bitrate_kbps"`
		HardwareEncode bool   `yaml:"hardware_encode"`
		QUICEnabled    bool   `yaml:"quic_enabled"`
		QUICPort       int    `yaml:"quic_port"`
		InitialQuality int    `yaml:"initial_quality"`
		DeviceWidth    int    `yaml:"device_width"`
		DeviceHeight   int    `yaml:"device_height"`
		Tier           string `yaml:"tier"`
	} `yaml:"streaming"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Monitoring struct {
		PrometheusEnabled bool          `yaml:"prometheus_enabled"`
		SampleInterval    time.Duration `yaml:"sample_interval"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	// Discovery seeds the platform collaborators on hosts without a
	// native discovery stack.
	Discovery struct {
		Peers         []StaticPeer         `yaml:"peers"`
		BondedDevices []StaticBondedDevice `yaml:"bonded_devices"`
		NfcEnabled    bool                 `yaml:"nfc_enabled"`
	} `yaml:"discovery"`

	Backup struct {
		Enabled       bool          `yaml:"enabled"`
		Directory     string        `yaml:"directory"`
		Interval      time.Duration `yaml:"interval"`
		RetentionDays int           `yaml:"retention_days"`
	} `yaml:"backup"`
}

// StaticPeer is one configured nearby device.
type StaticPeer struct {
	Name             string  `yaml:"name"`
	Address          string  `yaml:"address"`
	IPAddress        string  `yaml:"ip_address"`
	SignalLevel      int     `yaml:"signal_level"`
	LinkSpeedMbps    float64 `yaml:"link_speed_mbps"`
	HasLosslessRadio bool    `yaml:"lossless_radio"`
}

// StaticBondedDevice is one configured Bluetooth bond.
type StaticBondedDevice struct {
	Name        string `yaml:"name"`
	Identifier  string `yaml:"identifier"`
	SignalLevel int    `yaml:"signal_level"`
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = 5920
	cfg.Server.HandshakeTimeout = 2 * time.Second
	cfg.Server.HandshakePenalty = 750 * time.Millisecond
	cfg.Server.WriteTimeout = 5 * time.Second
	cfg.Server.EventFeedEnabled = true
	cfg.Server.APIAddress = ":8080"

	cfg.Negotiation.ProbePort = 5921
	cfg.Negotiation.ProbeTimeout = 500 * time.Millisecond
	cfg.Negotiation.ConnectTimeout = 3 * time.Second
	cfg.Negotiation.PeerRefresh = 10 * time.Second
	cfg.Negotiation.AccountRefresh = 30 * time.Second
	cfg.Negotiation.DefaultAccountID = "skybridge_cloud"
	cfg.Negotiation.RelayPort = 443
	cfg.Negotiation.BluetoothChannel = 3
	cfg.Negotiation.NfcChannel = 1
	cfg.Negotiation.AirPlayChannel = 7000

	cfg.Streaming.MinBitrateKbps = 500
	cfg.Streaming.MaxBitrateKbps = 20000
	cfg.Streaming.HardwareEncode = true
	cfg.Streaming.QUICEnabled = false
	cfg.Streaming.QUICPort = 5922
	cfg.Streaming.InitialQuality = 70
	cfg.Streaming.DeviceWidth = 1920
	cfg.Streaming.DeviceHeight = 1080
	cfg.Streaming.Tier = "standard"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.SampleInterval = time.Second

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "skybridge"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Server.HandshakeSecret = "skybridge-dev-secret"

	cfg.Backup.Enabled = false
	cfg.Backup.Directory = "backups"
	cfg.Backup.Interval = time.Hour
	cfg.Backup.RetentionDays = 7

	return cfg
}

// Load reads the YAML config at path, falling back to defaults when the
// file does not exist. Environment overrides are applied either way.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SKYBRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SKYBRIDGE_REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("SKYBRIDGE_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("SKYBRIDGE_DEFAULT_ACCOUNT"); v != "" {
		c.Negotiation.DefaultAccountID = v
	}
	if v := os.Getenv("SKYBRIDGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SKYBRIDGE_HANDSHAKE_SECRET"); v != "" {
		c.Server.HandshakeSecret = v
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if err := validation.ValidatePort(c.Server.Port); err != nil {
		return fmt.Errorf("server.port: %w", err)
	}
	if err := validation.ValidateHostPort(c.Server.APIAddress); err != nil {
		return fmt.Errorf("server.api_address: %w", err)
	}
	if c.Server.HandshakeTimeout <= 0 {
		return fmt.Errorf("server.handshake_timeout must be > 0")
	}
	if c.Negotiation.ProbeTimeout <= 0 {
		return fmt.Errorf("negotiation.probe_timeout must be > 0")
	}
	if c.Negotiation.ConnectTimeout <= 0 {
		return fmt.Errorf("negotiation.connect_timeout must be > 0")
	}
	if c.Negotiation.PeerRefresh <= 0 {
		return fmt.Errorf("negotiation.peer_refresh must be > 0")
	}
	if c.Negotiation.AccountRefresh <= 0 {
		return fmt.Errorf("negotiation.account_refresh must be > 0")
	}
	if err := validation.ValidateAccountID(c.Negotiation.DefaultAccountID); err != nil {
		return fmt.Errorf("negotiation.default_account_id: %w", err)
	}
	if err := validation.ValidateBitrateRange(c.Streaming.MinBitrateKbps, c.Streaming.MaxBitrateKbps); err != nil {
		return fmt.Errorf("streaming: %w", err)
	}
	if err := validation.ValidateQualityPercent(c.Streaming.InitialQuality); err != nil {
		return fmt.Errorf("streaming.initial_quality: %w", err)
	}
	if err := validation.ValidateTier(c.Streaming.Tier); err != nil {
		return fmt.Errorf("streaming.tier: %w", err)
	}
	if err := validation.ValidateDimensions(c.Streaming.DeviceWidth, c.Streaming.DeviceHeight); err != nil {
		return fmt.Errorf("streaming: %w", err)
	}
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}
	if c.Monitoring.SampleInterval <= 0 {
		return fmt.Errorf("monitoring.sample_interval must be > 0")
	}
	if c.Server.HandshakeSecret == "" {
		return fmt.Errorf("server.handshake_secret must not be empty")
	}
	if c.Backup.Enabled {
		if c.Backup.Directory == "" {
			return fmt.Errorf("backup.directory must not be empty when backup.enabled=true")
		}
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be > 0 when backup.enabled=true")
		}
		if c.Backup.RetentionDays <= 0 {
			return fmt.Errorf("backup.retention_days must be > 0 when backup.enabled=true")
		}
	}
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}
	return nil
}
