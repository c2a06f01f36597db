package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"dag-stitch/controller"

	"github.com/spf13/viper"
)

// DefaultPath is where the daemon reads its configuration
const DefaultPath = "config/config.yaml"

var ErrInvalid = errors.New("invalid config")

// Config is the full daemon configuration
type Config struct {
	RPCURL            string   `mapstructure:"rpc_url"`
	RPCMaxRPS         int      `mapstructure:"rpc_max_rps"`
	P2PPort           int      `mapstructure:"p2p_port"`
	P2PBootstrapPeers []string `mapstructure:"p2p_bootstrap_peers"`
	P2PTopic          string   `mapstructure:"p2p_topic"`

	Adaptive        bool    `mapstructure:"adaptive"`
	BaseMinDelta    uint64  `mapstructure:"base_min_delta"`
	BaseRateLimit   uint64  `mapstructure:"base_rate_limit"` // seconds
	BaseRewardSompi uint64  `mapstructure:"base_reward_sompi"`
	MaxRewardSompi  uint64  `mapstructure:"max_reward_sompi"`
	MinRateLimit    uint64  `mapstructure:"min_rate_limit"` // seconds
	TargetBPS       float64 `mapstructure:"target_bps"`
	SusThreshold    float64 `mapstructure:"sus_threshold"`
	OrphanWindow    int     `mapstructure:"orphan_window"`

	DAGWindow int `mapstructure:"dag_window"`

	Wallet  WalletConfig  `mapstructure:"wallet"`
	LevelDB LevelDBConfig `mapstructure:"leveldb"`
	Log     LogConfig     `mapstructure:"log"`
	Server  ServerConfig  `mapstructure:"server"`
}

type WalletConfig struct {
	KeyFile string `mapstructure:"key_file"`
}

type LevelDBConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	AppLogFile string `mapstructure:"app_log_file"`
	Level      string `mapstructure:"level"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc_max_rps", 20)
	v.SetDefault("p2p_port", 16111)
	v.SetDefault("p2p_bootstrap_peers", []string{})
	v.SetDefault("p2p_topic", "dag-stitch/1.0.0")
	v.SetDefault("adaptive", true)
	v.SetDefault("base_min_delta", 10)
	v.SetDefault("base_rate_limit", 60)
	v.SetDefault("base_reward_sompi", 100_000_000)
	v.SetDefault("max_reward_sompi", 1_000_000_000)
	v.SetDefault("min_rate_limit", 10)
	v.SetDefault("target_bps", 1.0)
	v.SetDefault("sus_threshold", 0.4)
	v.SetDefault("orphan_window", 100)
	v.SetDefault("dag_window", 1000)
	v.SetDefault("wallet.key_file", "wallet.key")
	v.SetDefault("leveldb.path", "data/stitches")
	v.SetDefault("log.app_log_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("server.port", 8080)
}

// Load reads, defaults and validates the configuration file at path
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	u, err := url.Parse(c.RPCURL)
	if c.RPCURL == "" || err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("%w: rpc_url must be a ws:// or wss:// address, got %q", ErrInvalid, c.RPCURL)
	}
	if c.DAGWindow < 1 {
		return fmt.Errorf("%w: dag_window must be at least 1", ErrInvalid)
	}
	if c.MaxRewardSompi < c.BaseRewardSompi {
		return fmt.Errorf("%w: max_reward_sompi below base_reward_sompi", ErrInvalid)
	}
	if c.MinRateLimit > c.BaseRateLimit {
		return fmt.Errorf("%w: min_rate_limit above base_rate_limit", ErrInvalid)
	}
	if c.TargetBPS <= 0 {
		return fmt.Errorf("%w: target_bps must be positive", ErrInvalid)
	}
	if c.SusThreshold < 0 || c.SusThreshold > 1 {
		return fmt.Errorf("%w: sus_threshold must be within [0, 1]", ErrInvalid)
	}
	if c.OrphanWindow < 1 {
		return fmt.Errorf("%w: orphan_window must be at least 1", ErrInvalid)
	}
	if c.RPCMaxRPS < 1 {
		return fmt.Errorf("%w: rpc_max_rps must be at least 1", ErrInvalid)
	}
	return nil
}

// Controller derives the controller parameters
func (c *Config) Controller() controller.Config {
	return controller.Config{
		Adaptive:      c.Adaptive,
		BaseMinDelta:  c.BaseMinDelta,
		BaseRateLimit: time.Duration(c.BaseRateLimit) * time.Second,
		MinRateLimit:  time.Duration(c.MinRateLimit) * time.Second,
		BaseReward:    c.BaseRewardSompi,
		MaxReward:     c.MaxRewardSompi,
		TargetBPS:     c.TargetBPS,
		SusThreshold:  c.SusThreshold,
		HistoryWindow: c.OrphanWindow,
	}
}
