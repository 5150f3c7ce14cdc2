// Package config 读取服务端静态配置（JSON 文件 + 环境变量 + 默认值）
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	TrustProxy bool   `mapstructure:"trustProxy"`
	StaticDir  string `mapstructure:"staticDir"`
}

type LogConfig struct {
	File    string `mapstructure:"file"`
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type SimConfig struct {
	TickRate     int           `mapstructure:"tickRate"`
	SaveInterval time.Duration `mapstructure:"saveInterval"`
	AFKTimeout   time.Duration `mapstructure:"afkTimeout"`
	RespawnDelay time.Duration `mapstructure:"respawnDelay"`
}

type WorldConfig struct {
	Width        float64 `mapstructure:"width"`
	Height       float64 `mapstructure:"height"`
	BaseX        float64 `mapstructure:"baseX"`
	BaseY        float64 `mapstructure:"baseY"`
	SafetyRadius float64 `mapstructure:"safetyRadius"`
	Hostiles     int     `mapstructure:"hostiles"`
	Resources    int     `mapstructure:"resources"`
	Seed         int64   `mapstructure:"seed"`
}

type NetConfig struct {
	MessagesPerSecond float64 `mapstructure:"messagesPerSecond"`
	MessageBurst      int     `mapstructure:"messageBurst"`
	SendBuffer        int     `mapstructure:"sendBuffer"`
}

// Config 全部配置项
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Sim    SimConfig    `mapstructure:"sim"`
	World  WorldConfig  `mapstructure:"world"`
	Net    NetConfig    `mapstructure:"net"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.trustProxy", false)
	v.SetDefault("server.staticDir", "web")

	v.SetDefault("log.file", "spacearena.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", "spacearena.db")
	v.SetDefault("db.dsn", "")

	v.SetDefault("sim.tickRate", 60)
	v.SetDefault("sim.saveInterval", "30s")
	v.SetDefault("sim.afkTimeout", "10m")
	v.SetDefault("sim.respawnDelay", "10s")

	v.SetDefault("world.width", 20000.0)
	v.SetDefault("world.height", 12500.0)
	v.SetDefault("world.baseX", 1000.0)
	v.SetDefault("world.baseY", 1000.0)
	v.SetDefault("world.safetyRadius", 600.0)
	v.SetDefault("world.hostiles", 40)
	v.SetDefault("world.resources", 60)
	v.SetDefault("world.seed", 0)

	v.SetDefault("net.messagesPerSecond", 120.0)
	v.SetDefault("net.messageBurst", 60)
	v.SetDefault("net.sendBuffer", 64)
}

// Load 读取配置。path 为空或文件不存在时只使用默认值与环境变量，
// 文件存在但格式错误时返回错误。
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SPACEARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 拒绝无法运行的取值
func (c Config) Validate() error {
	switch {
	case c.Sim.TickRate <= 0:
		return errors.New("sim.tickRate must be positive")
	case c.Sim.SaveInterval <= 0:
		return errors.New("sim.saveInterval must be positive")
	case c.Sim.AFKTimeout <= 0:
		return errors.New("sim.afkTimeout must be positive")
	case c.World.Width <= 0 || c.World.Height <= 0:
		return errors.New("world dimensions must be positive")
	}
	return nil
}

// TickInterval 由 tickRate 推导的 Tick 间隔
func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Sim.TickRate)
}
