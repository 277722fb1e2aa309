package global

import (
	"context"
	"time"

	"EchoChat/data/database"
	"EchoChat/data/database/memory"
	"EchoChat/data/database/mgo"
	"EchoChat/data/database/pg"
	"EchoChat/global/config"
	"EchoChat/logger"
	midsec "EchoChat/middleware/security"
	"EchoChat/service/chat"
	"EchoChat/service/natsx"
	"EchoChat/service/storage"
	redis "EchoChat/service/storage/redis"
	"EchoChat/tools/ids"
	sec "EchoChat/tools/security"
)

// ExportKinds 导出到 NATS 的事件
var ExportKinds = []string{chat.TypeMessage, chat.TypeLatestActivity, chat.TypeConversationCreated}

func ConfigIds(c *config.AppConfig) {
	ids.SetNodeID(c.Node.Snow)
}

func ConfigLog(c *config.AppConfig) {
	logger.SetLevel(c.Log.Level)
}

func JWTOptions(c *config.AppConfig) sec.Options {
	o := sec.DefaultOptions([]byte(c.JWT.Secret))
	if c.JWT.Alg != "" {
		o.Alg = c.JWT.Alg
	}
	if c.JWT.TTL > 0 {
		o.TTL = c.JWT.TTL
	}
	o.Issuer = c.JWT.Issuer
	return o
}

func AuthOptions(c *config.AppConfig) *midsec.Options {
	return midsec.DefaultOptions(JWTOptions(c))
}

// ConfigStore 按驱动打开存储；memory 时写入演示用户
func ConfigStore(ctx context.Context, c *config.AppConfig) (database.Store, error) {
	var (
		s   database.Store
		err error
	)
	switch c.Store.Driver {
	case config.StorePostgres:
		var ps *pg.Store
		ps, err = pg.Open(ctx, c.Store.PostgresURL, c.Store.MaxPoolSize)
		if err == nil && c.Store.Migrate {
			if err = ps.Migrate(ctx); err != nil {
				_ = ps.Close(ctx)
			}
		}
		s = ps
	case config.StoreMongo:
		var ms *mgo.Store
		ms, err = mgo.Open(ctx, mgo.Config{
			URI:         c.Store.MongoURI,
			Database:    c.Store.MongoDB,
			MaxPoolSize: c.Store.MaxPoolSize,
		})
		if err == nil && c.Store.Migrate {
			if err = ms.EnsureIndexes(ctx); err != nil {
				_ = ms.Close(ctx)
			}
		}
		s = ms
	default:
		mem := memory.New()
		err = database.Seed(ctx, mem, database.DemoUsers)
		s = mem
	}
	if err != nil {
		return nil, err
	}
	logger.Infof("[Store] driver=%s ready", c.Store.Driver)
	return database.Instrument(c.Store.Driver, s), nil
}

// ConfigPresence 配了 Redis 用 Redis，否则进程内；都包一层异步，保证事件循环不阻塞。
// snapshot 由调用方提供，用于周期性刷新 TTL
func ConfigPresence(ctx context.Context, c *config.AppConfig, snapshot func(ctx context.Context) map[string]int) (*storage.AsyncPresence, error) {
	var next storage.Presence
	if c.Redis.Addr == "" {
		next = storage.NewMemoryPresence(c.Node.ID)
	} else {
		rdb, err := redis.InitRedis(ctx, redis.Config{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			PoolSize: c.Redis.PoolSize,
		})
		if err != nil {
			return nil, err
		}
		next = storage.NewRedisPresence(rdb, c.Node.ID, c.Redis.PresenceTTL)
		logger.Infof("[Presence] redis addr=%s ttl=%s", c.Redis.Addr, c.Redis.PresenceTTL)
	}
	refresh := c.Redis.PresenceTTL / 2
	if refresh <= 0 {
		refresh = time.Minute
	}
	return storage.NewAsyncPresence(next, refresh, snapshot), nil
}

// ConfigNats 没配 servers 返回 nil, nil
func ConfigNats(c *config.AppConfig) (*natsx.NatsxClient, error) {
	if len(c.Nats.Servers) == 0 {
		return nil, nil
	}
	return natsx.NewNatsxClient(natsx.NatsxConfig{
		Servers:  c.Nats.Servers,
		Name:     c.Nats.Name,
		User:     c.Nats.User,
		Password: c.Nats.Password,
	})
}

func ConfigExporter(nc *natsx.NatsxClient, c *config.AppConfig) (*natsx.Exporter, error) {
	return natsx.NewExporter(nc, c.Nats.SubjectPrefix, c.Node.ID, ExportKinds, c.Conn.EventQueue)
}

// ServerOptions AppConfig -> 实时层参数
func ServerOptions(c *config.AppConfig) chat.Options {
	return chat.Options{
		NodeID:         c.Node.ID,
		SendQueue:      c.Conn.SendQueue,
		EventQueue:     c.Conn.EventQueue,
		UnauthTTL:      c.Conn.UnauthTTL,
		SweepEvery:     c.Conn.SweepEvery,
		MaxPerUser:     c.Conn.MaxPerUser,
		PingInterval:   c.Conn.PingInterval,
		PongWait:       c.Conn.PongWait,
		WriteWait:      c.Conn.WriteWait,
		MaxFrameBytes:  c.Conn.MaxFrameBytes,
		AllowedOrigins: c.Conn.AllowedOrigins,
		Auth:           AuthOptions(c),
	}
}
