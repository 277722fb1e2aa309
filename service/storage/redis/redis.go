package redis

import (
	"context"
	"sync"
	"time"

	"EchoChat/tools/errs"

	"github.com/redis/go-redis/v9"
)

var (
	redisMu  sync.Mutex
	redisCli *redis.Client
)

// Config 用于初始化 Redis
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// InitRedis 初始化全局客户端并 ping，重复调用返回已有的
func InitRedis(ctx context.Context, c Config) (*redis.Client, error) {
	redisMu.Lock()
	defer redisMu.Unlock()
	if redisCli != nil {
		return redisCli, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.WrapMsg(err, "redis ping", "addr", c.Addr)
	}
	redisCli = rdb
	return rdb, nil
}

// GetRedis 未初始化时返回 nil
func GetRedis() *redis.Client {
	redisMu.Lock()
	defer redisMu.Unlock()
	return redisCli
}

// CloseRedis 关闭连接
func CloseRedis() error {
	redisMu.Lock()
	defer redisMu.Unlock()
	if redisCli == nil {
		return nil
	}
	err := redisCli.Close()
	redisCli = nil
	return err
}
