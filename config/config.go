package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Game   GameConfig   `mapstructure:"game"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

type ServerConfig struct {
	HTTPAddress    string        `mapstructure:"http_address"`
	RPCAddress     string        `mapstructure:"rpc_address"`
	MetricsAddress string        `mapstructure:"metrics_address"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
}

// GameConfig 对局参数
type GameConfig struct {
	GameTime       time.Duration `mapstructure:"game_time"`
	BlackoutDelay  time.Duration `mapstructure:"blackout_delay"`
	VotingTime     time.Duration `mapstructure:"voting_time"`
	ResultDisplay  time.Duration `mapstructure:"result_display"`
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	ResyncInterval time.Duration `mapstructure:"resync_interval"`
	MaxPlayers     int           `mapstructure:"max_players"`
}

type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

var ErrInvalidGameConfig = errors.New("invalid game config")

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.metrics_address", ":9090")
	v.SetDefault("server.heartbeat", 30*time.Second)

	v.SetDefault("game.game_time", 30*time.Minute)
	v.SetDefault("game.blackout_delay", 30*time.Second)
	v.SetDefault("game.voting_time", 2*time.Minute)
	v.SetDefault("game.result_display", 3*time.Second)
	v.SetDefault("game.tick_interval", 100*time.Millisecond)
	v.SetDefault("game.resync_interval", time.Second)
	v.SetDefault("game.max_players", 6)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "blackout")
	v.SetDefault("redis.ttl", 24*time.Hour)
}

// Default 返回默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic("config defaults do not decode: " + err.Error())
	}
	return &cfg
}

// LoadConfig reads config.yaml from path. A missing file is not an error; the
// defaults and BLACKOUT_* environment overrides still apply.
func LoadConfig(path string) (config *Config, err error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("blackout")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err = config.Game.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c GameConfig) Validate() error {
	switch {
	case c.GameTime <= 0:
		return fmt.Errorf("%w: game_time must be positive", ErrInvalidGameConfig)
	case c.BlackoutDelay < 0 || c.BlackoutDelay >= c.GameTime:
		return fmt.Errorf("%w: blackout_delay must be within game_time", ErrInvalidGameConfig)
	case c.VotingTime <= 0:
		return fmt.Errorf("%w: voting_time must be positive", ErrInvalidGameConfig)
	case c.ResultDisplay < 0:
		return fmt.Errorf("%w: result_display must not be negative", ErrInvalidGameConfig)
	case c.TickInterval <= 0:
		return fmt.Errorf("%w: tick_interval must be positive", ErrInvalidGameConfig)
	case c.ResyncInterval <= 0:
		return fmt.Errorf("%w: resync_interval must be positive", ErrInvalidGameConfig)
	case c.MaxPlayers <= 0:
		return fmt.Errorf("%w: max_players must be positive", ErrInvalidGameConfig)
	}
	return nil
}
