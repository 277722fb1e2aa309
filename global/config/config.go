package config

import (
	"strings"
	"time"

	"EchoChat/tools/errs"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"

	EnvPrefix = "ECHO"
)

type NodeConfig struct {
	ID       string `mapstructure:"id"`        // 节点ID，参与连接ID与日志
	Snow     int64  `mapstructure:"snow"`      // 雪花节点号 0~1023
	HTTPAddr string `mapstructure:"http_addr"` // HTTP + websocket
	GRPCAddr string `mapstructure:"grpc_addr"` // gRPC 健康检查，空则不启动
}

type ConnConfig struct {
	SendQueue      int           `mapstructure:"send_queue"`      // 每连接发送队列长度
	UnauthTTL      time.Duration `mapstructure:"unauth_ttl"`      // 未 register 的连接存活时间
	SweepEvery     time.Duration `mapstructure:"sweep_every"`     // 清理周期
	MaxPerUser     int           `mapstructure:"max_per_user"`    // <=0 不限制
	PingInterval   time.Duration `mapstructure:"ping_interval"`   // 服务端 ping 周期
	PongWait       time.Duration `mapstructure:"pong_wait"`       // 读超时
	WriteWait      time.Duration `mapstructure:"write_wait"`      // 单帧写超时
	MaxFrameBytes  int64         `mapstructure:"max_frame_bytes"` // 单帧上限
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	EventQueue     int           `mapstructure:"event_queue"` // 事件循环队列长度
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	PostgresURL string `mapstructure:"postgres_url"`
	MongoURI    string `mapstructure:"mongo_uri"`
	MongoDB     string `mapstructure:"mongo_db"`
	MaxPoolSize int    `mapstructure:"max_pool_size"`
	Migrate     bool   `mapstructure:"migrate"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"` // 空则关闭在线状态镜像
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
}

type NatsConfig struct {
	Servers       []string `mapstructure:"servers"` // 空则不导出事件
	Name          string   `mapstructure:"name"`
	SubjectPrefix string   `mapstructure:"subject_prefix"`
	User          string   `mapstructure:"user"`
	Password      string   `mapstructure:"password"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Alg    string        `mapstructure:"alg"`
	TTL    time.Duration `mapstructure:"ttl"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type AppConfig struct {
	Node  NodeConfig  `mapstructure:"node"`
	Conn  ConnConfig  `mapstructure:"conn"`
	Store StoreConfig `mapstructure:"store"`
	Redis RedisConfig `mapstructure:"redis"`
	Nats  NatsConfig  `mapstructure:"nats"`
	JWT   JWTConfig   `mapstructure:"jwt"`
	Log   LogConfig   `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.id", "echo_gw-1")
	v.SetDefault("node.snow", 1)
	v.SetDefault("node.http_addr", ":8080")
	v.SetDefault("node.grpc_addr", ":50052")

	v.SetDefault("conn.send_queue", 256)
	v.SetDefault("conn.unauth_ttl", "60s")
	v.SetDefault("conn.sweep_every", "10s")
	v.SetDefault("conn.max_per_user", 0)
	v.SetDefault("conn.ping_interval", "25s")
	v.SetDefault("conn.pong_wait", "60s")
	v.SetDefault("conn.write_wait", "10s")
	v.SetDefault("conn.max_frame_bytes", 1<<20)
	v.SetDefault("conn.allowed_origins", []string{})
	v.SetDefault("conn.event_queue", 8192)

	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.postgres_url", "")
	v.SetDefault("store.mongo_uri", "")
	v.SetDefault("store.mongo_db", "echo")
	v.SetDefault("store.max_pool_size", 20)
	v.SetDefault("store.migrate", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.presence_ttl", "2m")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("nats.servers", []string{})
	v.SetDefault("nats.user", "")
	v.SetDefault("nats.password", "")
	v.SetDefault("nats.name", "echo-gateway")
	v.SetDefault("nats.subject_prefix", "echo.events")

	// 未设默认值的 key 不会被 Unmarshal 从环境变量读到
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.alg", "HS256")
	v.SetDefault("jwt.ttl", "2h")

	v.SetDefault("log.level", "info")
}

// New returns a viper instance with defaults, optional file and ECHO_* env
// bindings applied. An empty path skips the file.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.WrapMsg(err, "read config", "path", path)
		}
	}
	return v, nil
}

// Decode unmarshals v into an AppConfig and validates it.
func Decode(v *viper.Viper) (*AppConfig, error) {
	var c AppConfig
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&c, hook); err != nil {
		return nil, errs.WrapMsg(err, "decode config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load is New followed by Decode.
func Load(path string) (*AppConfig, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

func (c *AppConfig) Validate() error {
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.PostgresURL == "" {
			return errs.ErrArgs.WrapMsg("store.postgres_url is required", "driver", c.Store.Driver)
		}
	case StoreMongo:
		if c.Store.MongoURI == "" {
			return errs.ErrArgs.WrapMsg("store.mongo_uri is required", "driver", c.Store.Driver)
		}
	default:
		return errs.ErrArgs.WrapMsg("unknown store driver", "driver", c.Store.Driver)
	}
	if c.JWT.Secret == "" {
		return errs.ErrArgs.WrapMsg("jwt.secret is required")
	}
	if c.Conn.SendQueue <= 0 {
		c.Conn.SendQueue = 256
	}
	if c.Conn.EventQueue <= 0 {
		c.Conn.EventQueue = 8192
	}
	return nil
}
